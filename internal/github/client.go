// Package github implements notes.GitHub against the GitHub REST API,
// authenticating as a GitHub App.
package github

import (
	"context"
	"crypto/rsa"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/golang-jwt/jwt/v5"

	"mdnotes/internal/notes"
)

const (
	// DefaultAPIURL is the public GitHub API.
	DefaultAPIURL = "https://api.github.com"

	apiVersion = "2022-11-28"

	// App JWTs may live at most ten minutes. The issue time is backdated to
	// absorb clock drift.
	appTokenLifetime = 9 * time.Minute
	appTokenBackdate = time.Minute

	// Installation tokens are refreshed this long before they expire.
	tokenRefreshMargin = 5 * time.Minute

	defaultConcurrency = 8
)

// Options configures a Client.
type Options struct {
	AppID      int64
	PrivateKey *rsa.PrivateKey
	APIURL     string
	// Concurrency bounds parallel blob downloads.
	Concurrency int
	Timeout     time.Duration
	Logger      notes.Logger
	Clock       notes.Clock
}

// Client talks to the GitHub REST API as a GitHub App. It caches one
// installation access token per installation. Safe for concurrent use.
type Client struct {
	rest        *resty.Client
	appID       int64
	key         *rsa.PrivateKey
	concurrency int
	logger      notes.Logger
	clock       notes.Clock

	mu     sync.Mutex
	tokens map[int64]installationToken
}

type installationToken struct {
	token     string
	expiresAt time.Time
}

var _ notes.GitHub = (*Client)(nil)

// New creates a Client from opts.
func New(opts Options) (*Client, error) {
	if opts.AppID == 0 {
		return nil, fmt.Errorf("github app id is required")
	}
	if opts.PrivateKey == nil {
		return nil, fmt.Errorf("github app private key is required")
	}
	if opts.APIURL == "" {
		opts.APIURL = DefaultAPIURL
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = defaultConcurrency
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = notes.NewNopLogger()
	}
	if opts.Clock == nil {
		opts.Clock = notes.RealClock{}
	}

	rest := resty.New().
		SetBaseURL(opts.APIURL).
		SetTimeout(opts.Timeout).
		SetHeader("Accept", "application/vnd.github+json").
		SetHeader("X-GitHub-Api-Version", apiVersion).
		SetHeader("User-Agent", "mdnotes")

	return &Client{
		rest:        rest,
		appID:       opts.AppID,
		key:         opts.PrivateKey,
		concurrency: opts.Concurrency,
		logger:      opts.Logger,
		clock:       opts.Clock,
		tokens:      make(map[int64]installationToken),
	}, nil
}

// LoadPrivateKey reads a PEM-encoded RSA private key, as downloaded from the
// GitHub App settings page.
func LoadPrivateKey(path string) (*rsa.PrivateKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading github app key: %w", err)
	}
	key, err := jwt.ParseRSAPrivateKeyFromPEM(data)
	if err != nil {
		return nil, fmt.Errorf("parsing github app key %s: %w", path, err)
	}
	return key, nil
}

// AppToken returns a JWT signed with the app private key. It authenticates
// the app itself, for installation-level endpoints.
func (c *Client) AppToken() (string, error) {
	now := c.clock.Now()
	claims := jwt.RegisteredClaims{
		Issuer:    strconv.FormatInt(c.appID, 10),
		IssuedAt:  jwt.NewNumericDate(now.Add(-appTokenBackdate)),
		ExpiresAt: jwt.NewNumericDate(now.Add(appTokenLifetime)),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(c.key)
	if err != nil {
		return "", fmt.Errorf("signing app token: %w", err)
	}
	return signed, nil
}

func (c *Client) installationToken(ctx context.Context, installationID int64) (string, error) {
	c.mu.Lock()
	cached, ok := c.tokens[installationID]
	c.mu.Unlock()
	if ok && c.clock.Now().Add(tokenRefreshMargin).Before(cached.expiresAt) {
		return cached.token, nil
	}

	appToken, err := c.AppToken()
	if err != nil {
		return "", err
	}
	var out struct {
		Token     string    `json:"token"`
		ExpiresAt time.Time `json:"expires_at"`
	}
	req := c.rest.R().
		SetContext(ctx).
		SetAuthToken(appToken).
		SetPathParam("id", strconv.FormatInt(installationID, 10)).
		SetResult(&out)
	if err := send(req, http.MethodPost, "/app/installations/{id}/access_tokens"); err != nil {
		return "", fmt.Errorf("creating installation token: %w", err)
	}

	c.mu.Lock()
	c.tokens[installationID] = installationToken{token: out.Token, expiresAt: out.ExpiresAt}
	c.mu.Unlock()
	c.logger.Debug("installation token issued", "installation", installationID, "expires_at", out.ExpiresAt)
	return out.Token, nil
}

func (c *Client) forget(installationID int64) {
	c.mu.Lock()
	delete(c.tokens, installationID)
	c.mu.Unlock()
}

// appRequest starts a request authenticated as the app.
func (c *Client) appRequest(ctx context.Context) (*resty.Request, error) {
	tok, err := c.AppToken()
	if err != nil {
		return nil, err
	}
	return c.rest.R().SetContext(ctx).SetAuthToken(tok), nil
}

// installationRequest starts a request authenticated as the installation.
func (c *Client) installationRequest(ctx context.Context, installationID int64) (*resty.Request, error) {
	tok, err := c.installationToken(ctx, installationID)
	if err != nil {
		return nil, err
	}
	return c.rest.R().SetContext(ctx).SetAuthToken(tok), nil
}

// APIError is a non-2xx response from the API.
type APIError struct {
	Method     string
	URL        string
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s %s: status %d", e.Method, e.URL, e.StatusCode)
	}
	return fmt.Sprintf("%s %s: status %d: %s", e.Method, e.URL, e.StatusCode, e.Message)
}

// IsNotFound reports whether err is a 404 from the API.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}

func send(req *resty.Request, method, url string) error {
	var body struct {
		Message string `json:"message"`
	}
	req.SetError(&body)
	resp, err := req.Execute(method, url)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, url, err)
	}
	if resp.IsError() {
		return &APIError{Method: method, URL: url, StatusCode: resp.StatusCode(), Message: body.Message}
	}
	return nil
}
