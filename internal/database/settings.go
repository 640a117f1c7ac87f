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

// Editor settings

func (s *SQLiteDatabase) GetEditorSettings(ctx context.Context, userID string) (*model.EditorSettings, error) {
	var raw string
	err := s.db.QueryRowContext(ctx, "SELECT settings FROM editor_settings WHERE user_id = ?", userID).Scan(&raw)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Not found
		}
		return nil, fmt.Errorf("finding editor settings: %w", err)
	}
	settings := model.DefaultEditorSettings()
	if err := json.Unmarshal([]byte(raw), &settings); err != nil {
		return nil, fmt.Errorf("decoding editor settings: %w", err)
	}
	return &settings, nil
}

func (s *SQLiteDatabase) SaveEditorSettings(ctx context.Context, userID string, settings model.EditorSettings) error {
	raw, err := json.Marshal(settings)
	if err != nil {
		return fmt.Errorf("encoding editor settings: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO editor_settings (user_id, settings) VALUES (?, ?)
		ON CONFLICT (user_id) DO UPDATE SET settings = excluded.settings`,
		userID, string(raw))
	if err != nil {
		return fmt.Errorf("saving editor settings: %w", err)
	}
	return nil
}

// Keybindings

func (s *SQLiteDatabase) ListKeybindings(ctx context.Context, userID string) ([]*model.Keybinding, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT user_id, name, key FROM keybindings WHERE user_id = ? ORDER BY name", userID)
	if err != nil {
		return nil, fmt.Errorf("listing keybindings: %w", err)
	}
	defer rows.Close()

	var result []*model.Keybinding
	for rows.Next() {
		var kb model.Keybinding
		if err := rows.Scan(&kb.UserID, &kb.Name, &kb.Key); err != nil {
			return nil, fmt.Errorf("scanning keybinding: %w", err)
		}
		result = append(result, &kb)
	}
	return result, rows.Err()
}

func (s *SQLiteDatabase) UpsertKeybinding(ctx context.Context, kb *model.Keybinding) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO keybindings (user_id, name, key) VALUES (?, ?, ?)
		ON CONFLICT (user_id, name) DO UPDATE SET key = excluded.key`,
		kb.UserID, kb.Name, kb.Key)
	if err != nil {
		return fmt.Errorf("saving keybinding: %w", err)
	}
	return nil
}

func (s *SQLiteDatabase) DeleteKeybinding(ctx context.Context, userID, name string) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM keybindings WHERE user_id = ? AND name = ?", userID, name); err != nil {
		return fmt.Errorf("deleting keybinding: %w", err)
	}
	return nil
}

// Sync operation tracking

func (s *SQLiteDatabase) CreateSyncOperation(ctx context.Context, op *model.SyncOperation) error {
	res, err := s.db.ExecContext(ctx,
		"INSERT INTO sync_operations (user_id, repository_id, operation, started_at, status) VALUES (?, ?, ?, ?, ?)",
		op.UserID, op.RepositoryID, op.Operation, op.StartedAt, op.Status)
	if err != nil {
		return fmt.Errorf("creating sync operation: %w", err)
	}
	op.ID, err = res.LastInsertId()
	if err != nil {
		return fmt.Errorf("reading sync operation id: %w", err)
	}
	return nil
}

func (s *SQLiteDatabase) FinishSyncOperation(ctx context.Context, id int64, status string, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE sync_operations SET finished_at = ?, status = ? WHERE id = ?", at, status, id)
	if err != nil {
		return fmt.Errorf("finishing sync operation: %w", err)
	}
	return nil
}

func (s *SQLiteDatabase) ListSyncOperations(ctx context.Context, userID string, limit int) ([]*model.SyncOperation, error) {
	if limit <= 0 {
		limit = -1 // no limit
	}
	query := "SELECT id, user_id, repository_id, operation, started_at, finished_at, status FROM sync_operations"
	args := []any{}
	if userID != "" {
		query += " WHERE user_id = ?"
		args = append(args, userID)
	}
	query += " ORDER BY id DESC LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing sync operations: %w", err)
	}
	defer rows.Close()

	var result []*model.SyncOperation
	for rows.Next() {
		var op model.SyncOperation
		var finished sql.NullTime
		if err := rows.Scan(&op.ID, &op.UserID, &op.RepositoryID, &op.Operation, &op.StartedAt, &finished, &op.Status); err != nil {
			return nil, fmt.Errorf("scanning sync operation: %w", err)
		}
		if finished.Valid {
			t := finished.Time
			op.FinishedAt = &t
		}
		result = append(result, &op)
	}
	return result, rows.Err()
}

func (s *SQLiteDatabase) MaxSyncOperationID(ctx context.Context) (int64, error) {
	var id int64
	if err := s.db.QueryRowContext(ctx, "SELECT COALESCE(MAX(id), 0) FROM sync_operations").Scan(&id); err != nil {
		return 0, fmt.Errorf("getting max sync operation ID: %w", err)
	}
	return id, nil
}
