// Package httpapi exposes the notes service as a JSON API for the editor UI.
package httpapi

import (
	"context"
	"net/http"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"

	"mdnotes/internal/model"
	"mdnotes/internal/notes"
)

// SessionCookie holds the session token.
const SessionCookie = "auth_session"

// maxBodyBytes bounds request bodies; a saved document is the largest.
const maxBodyBytes = 10 << 20

// Options configures a Server.
type Options struct {
	SecureCookies bool
	// WebhookSecret enables the GitHub webhook endpoint when set.
	WebhookSecret []byte
	// OAuth enables GitHub sign-in when set.
	OAuth OAuthProvider
}

// Server routes HTTP requests to the notes service.
type Server struct {
	svc      *notes.Service
	logger   notes.Logger
	opts     Options
	validate *validator.Validate
}

// New creates a Server.
func New(svc *notes.Service, logger notes.Logger, opts Options) *Server {
	v := validator.New(validator.WithRequiredStructEnabled())
	// Report fields by their JSON names.
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return &Server{svc: svc, logger: logger, opts: opts, validate: v}
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()
	r.Use(s.logRequests)

	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}).Methods(http.MethodGet)

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/register", s.register).Methods(http.MethodPost)
	api.HandleFunc("/login", s.login).Methods(http.MethodPost)
	api.HandleFunc("/github/webhook", s.webhook).Methods(http.MethodPost)
	if s.opts.OAuth != nil {
		api.HandleFunc("/login/github", s.githubLogin).Methods(http.MethodGet)
		api.HandleFunc("/login/github/callback", s.githubCallback).Methods(http.MethodGet)
	}

	authed := api.NewRoute().Subrouter()
	authed.Use(s.requireSession)

	authed.HandleFunc("/sign-out", s.signOut).Methods(http.MethodPost)
	authed.HandleFunc("/sign-out/all", s.signOutAll).Methods(http.MethodPost)
	authed.HandleFunc("/user", s.deleteUser).Methods(http.MethodDelete)
	authed.HandleFunc("/user/email", s.changeEmail).Methods(http.MethodPut)
	authed.HandleFunc("/user/password", s.resetPassword).Methods(http.MethodPut)

	authed.HandleFunc("/workspace", s.workspace).Methods(http.MethodGet)
	authed.HandleFunc("/files", s.createFile).Methods(http.MethodPost)
	authed.HandleFunc("/files/{id}", s.getFile).Methods(http.MethodGet)
	authed.HandleFunc("/files/{id}/save", s.saveFile).Methods(http.MethodPut)
	authed.HandleFunc("/folders", s.createFolder).Methods(http.MethodPost)

	items := authed.PathPrefix("/items/{type:file|folder}/{id}").Subrouter()
	items.HandleFunc("", s.deleteItem).Methods(http.MethodDelete)
	items.HandleFunc("/rename", s.rename).Methods(http.MethodPut)
	items.HandleFunc("/move-to", s.moveTo).Methods(http.MethodPut)
	items.HandleFunc("/trash", s.moveToTrash).Methods(http.MethodPut)
	items.HandleFunc("/restore", s.restore).Methods(http.MethodPut)

	authed.HandleFunc("/settings/editor", s.updateEditorSettings).Methods(http.MethodPut)
	authed.HandleFunc("/settings/keybindings", s.setKeybinding).Methods(http.MethodPut)

	authed.HandleFunc("/github/installations", s.recordInstallation).Methods(http.MethodPost)
	authed.HandleFunc("/github/installations/{id:[0-9]+}", s.uninstall).Methods(http.MethodDelete)
	authed.HandleFunc("/github/repositories", s.linkRepositories).Methods(http.MethodPut)
	authed.HandleFunc("/github/repositories/{id:[0-9]+}/branches", s.listBranches).Methods(http.MethodGet)
	authed.HandleFunc("/github/pull", s.pull).Methods(http.MethodPut)
	authed.HandleFunc("/github/push", s.push).Methods(http.MethodPost)
	authed.HandleFunc("/github/history", s.history).Methods(http.MethodGet)

	return r
}

type ctxKey int

const (
	userKey ctxKey = iota
	sessionKey
)

func currentUser(ctx context.Context) *model.User {
	u, _ := ctx.Value(userKey).(*model.User)
	return u
}

func currentSession(ctx context.Context) *model.Session {
	sess, _ := ctx.Value(sessionKey).(*model.Session)
	return sess
}

// requireSession resolves the session cookie. A session extended during
// validation gets a fresh cookie.
func (s *Server) requireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := r.Cookie(SessionCookie)
		if err != nil {
			s.writeError(w, r, notes.ErrUnauthorized)
			return
		}
		res, err := s.svc.ValidateSession(r.Context(), c.Value)
		if err != nil {
			s.clearSessionCookie(w)
			s.writeError(w, r, err)
			return
		}
		if res.Fresh {
			s.setSessionCookie(w, res.Session)
		}
		ctx := context.WithValue(r.Context(), userKey, res.User)
		ctx = context.WithValue(ctx, sessionKey, res.Session)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) setSessionCookie(w http.ResponseWriter, sess *model.Session) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    sess.ID,
		Path:     "/",
		Expires:  sess.ExpiresAt,
		HttpOnly: true,
		Secure:   s.opts.SecureCookies,
		SameSite: http.SameSiteLaxMode,
	})
}

func (s *Server) clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   s.opts.SecureCookies,
		SameSite: http.SameSiteLaxMode,
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.logger.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration", time.Since(start).Round(time.Millisecond))
	})
}
