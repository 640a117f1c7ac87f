package github

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/go-resty/resty/v2"

	"mdnotes/internal/model"
)

// DefaultWebURL hosts the OAuth authorize and token endpoints.
const DefaultWebURL = "https://github.com"

// ErrOAuthCode is returned when GitHub rejects an authorization code.
var ErrOAuthCode = errors.New("github rejected the authorization code")

// OAuthOptions configures an OAuth client for signing users in with GitHub.
type OAuthOptions struct {
	ClientID     string
	ClientSecret string
	WebURL       string
	APIURL       string
	Timeout      time.Duration
}

// OAuth runs the web application flow of a GitHub App's user authorization.
type OAuth struct {
	web      *resty.Client
	api      *resty.Client
	webURL   string
	clientID string
	secret   string
}

// NewOAuth creates an OAuth client from opts.
func NewOAuth(opts OAuthOptions) (*OAuth, error) {
	if opts.ClientID == "" || opts.ClientSecret == "" {
		return nil, fmt.Errorf("github oauth client id and secret are required")
	}
	if opts.WebURL == "" {
		opts.WebURL = DefaultWebURL
	}
	if opts.APIURL == "" {
		opts.APIURL = DefaultAPIURL
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}

	web := resty.New().
		SetBaseURL(opts.WebURL).
		SetTimeout(opts.Timeout).
		SetHeader("Accept", "application/json").
		SetHeader("User-Agent", "mdnotes")
	api := resty.New().
		SetBaseURL(opts.APIURL).
		SetTimeout(opts.Timeout).
		SetHeader("Accept", "application/vnd.github+json").
		SetHeader("X-GitHub-Api-Version", apiVersion).
		SetHeader("User-Agent", "mdnotes")

	return &OAuth{web: web, api: api, webURL: opts.WebURL, clientID: opts.ClientID, secret: opts.ClientSecret}, nil
}

// AuthorizeURL is where the browser is sent to approve the sign-in. GitHub
// echoes state back to the callback.
func (o *OAuth) AuthorizeURL(state string) string {
	q := url.Values{"client_id": {o.clientID}, "state": {state}}
	return o.webURL + "/login/oauth/authorize?" + q.Encode()
}

// Exchange trades an authorization code for a user access token.
func (o *OAuth) Exchange(ctx context.Context, code string) (string, error) {
	var out struct {
		AccessToken      string `json:"access_token"`
		Error            string `json:"error"`
		ErrorDescription string `json:"error_description"`
	}
	req := o.web.R().
		SetContext(ctx).
		SetFormData(map[string]string{
			"client_id":     o.clientID,
			"client_secret": o.secret,
			"code":          code,
		}).
		SetResult(&out)
	if err := send(req, http.MethodPost, "/login/oauth/access_token"); err != nil {
		return "", fmt.Errorf("exchanging oauth code: %w", err)
	}
	// Failures come back as 200 with an error field.
	if out.Error != "" {
		return "", fmt.Errorf("%w: %s: %s", ErrOAuthCode, out.Error, out.ErrorDescription)
	}
	if out.AccessToken == "" {
		return "", fmt.Errorf("%w: no access token in response", ErrOAuthCode)
	}
	return out.AccessToken, nil
}

// User returns the account the token belongs to.
func (o *OAuth) User(ctx context.Context, token string) (*model.RemoteUser, error) {
	var out model.RemoteUser
	req := o.api.R().SetContext(ctx).SetAuthToken(token).SetResult(&out)
	if err := send(req, http.MethodGet, "/user"); err != nil {
		return nil, fmt.Errorf("fetching github user: %w", err)
	}
	return &out, nil
}
