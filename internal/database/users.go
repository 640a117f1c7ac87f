package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"mdnotes/internal/model"
)

// User operations

const userColumns = "id, email, password_hash, github_id"

func scanUser(row interface{ Scan(...any) error }) (*model.User, error) {
	var u model.User
	var email sql.NullString
	var githubID sql.NullInt64
	if err := row.Scan(&u.ID, &email, &u.PasswordHash, &githubID); err != nil {
		return nil, err
	}
	u.Email = email.String
	if githubID.Valid {
		id := githubID.Int64
		u.GithubID = &id
	}
	return &u, nil
}

// CreateUser inserts the user together with their initial editor settings.
func (s *SQLiteDatabase) CreateUser(ctx context.Context, user *model.User, settings model.EditorSettings) error {
	raw, err := json.Marshal(settings)
	if err != nil {
		return fmt.Errorf("encoding editor settings: %w", err)
	}
	var githubID sql.NullInt64
	if user.GithubID != nil {
		githubID = sql.NullInt64{Int64: *user.GithubID, Valid: true}
	}

	return s.inTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			"INSERT INTO users (id, email, password_hash, github_id) VALUES (?, ?, ?, ?)",
			user.ID, nullString(user.Email), user.PasswordHash, githubID)
		if err != nil {
			return fmt.Errorf("inserting user: %w", err)
		}
		_, err = tx.ExecContext(ctx,
			"INSERT INTO editor_settings (user_id, settings) VALUES (?, ?)", user.ID, string(raw))
		if err != nil {
			return fmt.Errorf("inserting editor settings: %w", err)
		}
		return nil
	})
}

func (s *SQLiteDatabase) FindUserByID(ctx context.Context, id string) (*model.User, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+userColumns+" FROM users WHERE id = ?", id)
	user, err := scanUser(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Not found
		}
		return nil, fmt.Errorf("finding user by id: %w", err)
	}
	return user, nil
}

func (s *SQLiteDatabase) FindUserByEmail(ctx context.Context, email string) (*model.User, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+userColumns+" FROM users WHERE email = ?", email)
	user, err := scanUser(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Not found
		}
		return nil, fmt.Errorf("finding user by email: %w", err)
	}
	return user, nil
}

func (s *SQLiteDatabase) FindUserByGithubID(ctx context.Context, githubID int64) (*model.User, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+userColumns+" FROM users WHERE github_id = ?", githubID)
	user, err := scanUser(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Not found
		}
		return nil, fmt.Errorf("finding user by github id: %w", err)
	}
	return user, nil
}

func (s *SQLiteDatabase) UpdateUserEmail(ctx context.Context, userID, email string) error {
	if _, err := s.db.ExecContext(ctx, "UPDATE users SET email = ? WHERE id = ?", email, userID); err != nil {
		return fmt.Errorf("updating user email: %w", err)
	}
	return nil
}

func (s *SQLiteDatabase) UpdateUserPassword(ctx context.Context, userID, passwordHash string) error {
	if _, err := s.db.ExecContext(ctx, "UPDATE users SET password_hash = ? WHERE id = ?", passwordHash, userID); err != nil {
		return fmt.Errorf("updating user password: %w", err)
	}
	return nil
}

// DeleteUser removes the user. Everything the user owns goes with it through
// ON DELETE CASCADE.
func (s *SQLiteDatabase) DeleteUser(ctx context.Context, userID string) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM users WHERE id = ?", userID); err != nil {
		return fmt.Errorf("deleting user: %w", err)
	}
	return nil
}

// Session operations

func (s *SQLiteDatabase) CreateSession(ctx context.Context, session *model.Session) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO sessions (id, user_id, expires_at) VALUES (?, ?, ?)",
		session.ID, session.UserID, session.ExpiresAt)
	if err != nil {
		return fmt.Errorf("creating session: %w", err)
	}
	return nil
}

func (s *SQLiteDatabase) FindSession(ctx context.Context, id string) (*model.Session, error) {
	var session model.Session
	err := s.db.QueryRowContext(ctx, "SELECT id, user_id, expires_at FROM sessions WHERE id = ?", id).
		Scan(&session.ID, &session.UserID, &session.ExpiresAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Not found
		}
		return nil, fmt.Errorf("finding session: %w", err)
	}
	return &session, nil
}

func (s *SQLiteDatabase) UpdateSessionExpiry(ctx context.Context, id string, expiresAt time.Time) error {
	if _, err := s.db.ExecContext(ctx, "UPDATE sessions SET expires_at = ? WHERE id = ?", expiresAt, id); err != nil {
		return fmt.Errorf("updating session expiry: %w", err)
	}
	return nil
}

func (s *SQLiteDatabase) DeleteSession(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM sessions WHERE id = ?", id); err != nil {
		return fmt.Errorf("deleting session: %w", err)
	}
	return nil
}

func (s *SQLiteDatabase) DeleteUserSessions(ctx context.Context, userID, exceptID string) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM sessions WHERE user_id = ? AND id != ?", userID, exceptID); err != nil {
		return fmt.Errorf("deleting user sessions: %w", err)
	}
	return nil
}
