package httpapi

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"

	"mdnotes/internal/github"
	"mdnotes/internal/model"
	"mdnotes/internal/notes"
)

// OAuthStateCookie binds the GitHub callback to the browser that started
// the sign-in.
const OAuthStateCookie = "github_oauth_state"

const oauthStateMaxAge = 600

// OAuthProvider runs the GitHub user authorization flow.
type OAuthProvider interface {
	AuthorizeURL(state string) string
	Exchange(ctx context.Context, code string) (string, error)
	User(ctx context.Context, token string) (*model.RemoteUser, error)
}

func (s *Server) githubLogin(w http.ResponseWriter, r *http.Request) {
	state := rand.Text()
	http.SetCookie(w, &http.Cookie{
		Name:     OAuthStateCookie,
		Value:    state,
		Path:     "/",
		MaxAge:   oauthStateMaxAge,
		HttpOnly: true,
		Secure:   s.opts.SecureCookies,
		SameSite: http.SameSiteLaxMode,
	})
	http.Redirect(w, r, s.opts.OAuth.AuthorizeURL(state), http.StatusFound)
}

func (s *Server) githubCallback(w http.ResponseWriter, r *http.Request) {
	code := r.URL.Query().Get("code")
	state := r.URL.Query().Get("state")
	stored, err := r.Cookie(OAuthStateCookie)
	if code == "" || state == "" || err != nil ||
		subtle.ConstantTimeCompare([]byte(state), []byte(stored.Value)) != 1 {
		s.writeError(w, r, &requestError{msg: "Invalid OAuth state"})
		return
	}
	s.clearStateCookie(w)

	ctx := r.Context()
	token, err := s.opts.OAuth.Exchange(ctx, code)
	if errors.Is(err, github.ErrOAuthCode) {
		s.logger.Warn("github sign-in rejected", "error", err)
		s.writeError(w, r, &requestError{msg: "Invalid OAuth code"})
		return
	}
	if err != nil {
		s.writeError(w, r, fmt.Errorf("%w: %w", notes.ErrRemote, err))
		return
	}
	profile, err := s.opts.OAuth.User(ctx, token)
	if err != nil {
		s.writeError(w, r, fmt.Errorf("%w: %w", notes.ErrRemote, err))
		return
	}

	res, err := s.svc.SignInWithGitHub(ctx, profile)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.setSessionCookie(w, res.Session)
	http.Redirect(w, r, "/", http.StatusFound)
}

func (s *Server) clearStateCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     OAuthStateCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   s.opts.SecureCookies,
		SameSite: http.SameSiteLaxMode,
	})
}
