package notes

import (
	"context"
	"crypto/rand"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"mdnotes/internal/model"
)

const (
	minPasswordLength = 8
	maxPasswordLength = 256
)

var validate = validator.New()

// SessionResult is returned when a session is created or validated.
// Fresh is set when ExpiresAt moved and the cookie must be re-issued.
type SessionResult struct {
	Session *model.Session
	User    *model.User
	Fresh   bool
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func checkEmail(email string) error {
	if err := validate.Var(email, "required,email,max=255"); err != nil {
		return invalidf("Invalid email")
	}
	return nil
}

func checkPassword(password string) error {
	if len(password) < minPasswordLength || len(password) > maxPasswordLength {
		return invalidf("Password must be between %d and %d characters", minPasswordLength, maxPasswordLength)
	}
	return nil
}

// Register creates a new user with default editor settings and signs them in.
func (s *Service) Register(ctx context.Context, email, password string) (*SessionResult, error) {
	user, err := s.CreateUser(ctx, email, password)
	if err != nil {
		return nil, err
	}
	return s.createSession(ctx, user)
}

// CreateUser creates a new user with default editor settings.
func (s *Service) CreateUser(ctx context.Context, email, password string) (*model.User, error) {
	email = normalizeEmail(email)
	if err := checkEmail(email); err != nil {
		return nil, err
	}
	if err := checkPassword(password); err != nil {
		return nil, err
	}

	existing, err := s.database.FindUserByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("checking for existing user: %w", err)
	}
	if existing != nil {
		return nil, conflictf("Email already in use")
	}

	hash, err := HashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("hashing password: %w", err)
	}

	user := &model.User{ID: s.idgen.New(), Email: email, PasswordHash: hash}
	if err := s.database.CreateUser(ctx, user, model.DefaultEditorSettings()); err != nil {
		return nil, fmt.Errorf("creating user: %w", err)
	}
	s.logger.Info("user registered", "user_id", user.ID)
	return user, nil
}

// Login verifies the credentials and starts a new session.
func (s *Service) Login(ctx context.Context, email, password string) (*SessionResult, error) {
	email = normalizeEmail(email)
	if checkEmail(email) != nil || checkPassword(password) != nil {
		return nil, invalidf("Incorrect email or password")
	}

	user, err := s.database.FindUserByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("finding user: %w", err)
	}
	if user == nil || user.PasswordHash == "" {
		return nil, invalidf("Incorrect email or password")
	}

	ok, err := VerifyPassword(user.PasswordHash, password)
	if err != nil {
		return nil, fmt.Errorf("verifying password: %w", err)
	}
	if !ok {
		return nil, invalidf("Incorrect email or password")
	}

	return s.createSession(ctx, user)
}

// SignInWithGitHub starts a session for the account tied to a GitHub user,
// creating the account with default editor settings on first sign-in.
func (s *Service) SignInWithGitHub(ctx context.Context, profile *model.RemoteUser) (*SessionResult, error) {
	if profile == nil || profile.ID == 0 {
		return nil, invalidf("Missing GitHub user")
	}

	user, err := s.database.FindUserByGithubID(ctx, profile.ID)
	if err != nil {
		return nil, fmt.Errorf("finding user: %w", err)
	}
	if user == nil {
		githubID := profile.ID
		user = &model.User{ID: s.idgen.New(), GithubID: &githubID}
		if err := s.database.CreateUser(ctx, user, model.DefaultEditorSettings()); err != nil {
			return nil, fmt.Errorf("creating user: %w", err)
		}
		s.logger.Info("user registered", "user_id", user.ID, "github_login", profile.Login)
	}
	return s.createSession(ctx, user)
}

func (s *Service) createSession(ctx context.Context, user *model.User) (*SessionResult, error) {
	session := &model.Session{
		ID:        rand.Text(),
		UserID:    user.ID,
		ExpiresAt: s.clock.Now().Add(s.sessionTTL),
	}
	if err := s.database.CreateSession(ctx, session); err != nil {
		return nil, fmt.Errorf("creating session: %w", err)
	}
	return &SessionResult{Session: session, User: user, Fresh: true}, nil
}

// ValidateSession resolves a session token to its user. Expired sessions are
// removed. Sessions in the second half of their lifetime are extended.
func (s *Service) ValidateSession(ctx context.Context, token string) (*SessionResult, error) {
	if token == "" {
		return nil, ErrUnauthorized
	}

	session, err := s.database.FindSession(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("finding session: %w", err)
	}
	if session == nil {
		return nil, ErrUnauthorized
	}

	now := s.clock.Now()
	if !now.Before(session.ExpiresAt) {
		if err := s.database.DeleteSession(ctx, session.ID); err != nil {
			return nil, fmt.Errorf("deleting expired session: %w", err)
		}
		return nil, ErrUnauthorized
	}

	user, err := s.database.FindUserByID(ctx, session.UserID)
	if err != nil {
		return nil, fmt.Errorf("finding session user: %w", err)
	}
	if user == nil {
		return nil, ErrUnauthorized
	}

	result := &SessionResult{Session: session, User: user}
	if !now.Before(session.ExpiresAt.Add(-s.sessionTTL / 2)) {
		session.ExpiresAt = now.Add(s.sessionTTL)
		if err := s.database.UpdateSessionExpiry(ctx, session.ID, session.ExpiresAt); err != nil {
			return nil, fmt.Errorf("extending session: %w", err)
		}
		result.Fresh = true
	}
	return result, nil
}

// Logout ends one session.
func (s *Service) Logout(ctx context.Context, sessionID string) error {
	if err := s.database.DeleteSession(ctx, sessionID); err != nil {
		return fmt.Errorf("deleting session: %w", err)
	}
	return nil
}

// SignOutAll ends every session of the user except keepSessionID.
func (s *Service) SignOutAll(ctx context.Context, userID, keepSessionID string) error {
	if err := s.database.DeleteUserSessions(ctx, userID, keepSessionID); err != nil {
		return fmt.Errorf("deleting sessions: %w", err)
	}
	return nil
}

// ChangeEmail replaces the user's email address.
func (s *Service) ChangeEmail(ctx context.Context, user *model.User, email string) error {
	email = normalizeEmail(email)
	if err := checkEmail(email); err != nil {
		return err
	}
	if email == user.Email {
		return invalidf("Email unchanged")
	}

	existing, err := s.database.FindUserByEmail(ctx, email)
	if err != nil {
		return fmt.Errorf("checking email: %w", err)
	}
	if existing != nil {
		return conflictf("Email unavailable")
	}

	if err := s.database.UpdateUserEmail(ctx, user.ID, email); err != nil {
		return fmt.Errorf("updating email: %w", err)
	}
	user.Email = email
	return nil
}

// ResetPassword changes the password after verifying the current one.
func (s *Service) ResetPassword(ctx context.Context, user *model.User, current, next string) error {
	if err := checkPassword(next); err != nil {
		return err
	}
	if user.PasswordHash == "" {
		return invalidf("Account signs in with GitHub and has no password")
	}

	ok, err := VerifyPassword(user.PasswordHash, current)
	if err != nil {
		return fmt.Errorf("verifying password: %w", err)
	}
	if !ok {
		return invalidf("Incorrect password")
	}
	if current == next {
		return invalidf("New password cannot be the same as the current password")
	}

	hash, err := HashPassword(next)
	if err != nil {
		return fmt.Errorf("hashing password: %w", err)
	}
	if err := s.database.UpdateUserPassword(ctx, user.ID, hash); err != nil {
		return fmt.Errorf("updating password: %w", err)
	}
	user.PasswordHash = hash
	return nil
}

// DeleteUser removes the account with all its data, then uninstalls the
// user's GitHub App installations. Remote failures are logged only.
func (s *Service) DeleteUser(ctx context.Context, userID string) error {
	installations, err := s.database.ListInstallations(ctx, userID)
	if err != nil {
		return fmt.Errorf("listing installations: %w", err)
	}

	if err := s.database.DeleteUser(ctx, userID); err != nil {
		return fmt.Errorf("deleting user: %w", err)
	}
	s.logger.Info("user deleted", "user_id", userID)

	if s.github == nil {
		return nil
	}
	for _, inst := range installations {
		if err := s.github.DeleteInstallation(ctx, inst.ID); err != nil {
			s.logger.Warn("failed to uninstall GitHub App", "installation_id", inst.ID, "error", err)
		}
	}
	return nil
}

// SessionTTL returns the configured session lifetime.
func (s *Service) SessionTTL() time.Duration { return s.sessionTTL }
