package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"mdnotes/internal/model"
	"mdnotes/internal/notes"
)

// Installation operations

func (s *SQLiteDatabase) UpsertInstallation(ctx context.Context, inst *model.Installation) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO github_installations (id, user_id, username, avatar_url) VALUES (?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			user_id = excluded.user_id,
			username = excluded.username,
			avatar_url = excluded.avatar_url`,
		inst.ID, inst.UserID, inst.Username, inst.AvatarURL)
	if err != nil {
		return fmt.Errorf("upserting installation: %w", err)
	}
	return nil
}

func (s *SQLiteDatabase) FindInstallation(ctx context.Context, id int64) (*model.Installation, error) {
	var inst model.Installation
	err := s.db.QueryRowContext(ctx,
		"SELECT id, user_id, username, avatar_url FROM github_installations WHERE id = ?", id).
		Scan(&inst.ID, &inst.UserID, &inst.Username, &inst.AvatarURL)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Not found
		}
		return nil, fmt.Errorf("finding installation: %w", err)
	}
	return &inst, nil
}

func (s *SQLiteDatabase) ListInstallations(ctx context.Context, userID string) ([]*model.Installation, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, user_id, username, avatar_url FROM github_installations WHERE user_id = ? ORDER BY username, id", userID)
	if err != nil {
		return nil, fmt.Errorf("listing installations: %w", err)
	}
	defer rows.Close()

	var result []*model.Installation
	for rows.Next() {
		var inst model.Installation
		if err := rows.Scan(&inst.ID, &inst.UserID, &inst.Username, &inst.AvatarURL); err != nil {
			return nil, fmt.Errorf("scanning installation: %w", err)
		}
		result = append(result, &inst)
	}
	return result, rows.Err()
}

// DeleteInstallation removes the installation. Its repositories and their
// link rows cascade; the local items are removed explicitly.
func (s *SQLiteDatabase) DeleteInstallation(ctx context.Context, id int64, folderIDs, fileIDs []string) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		var userID string
		err := tx.QueryRowContext(ctx, "SELECT user_id FROM github_installations WHERE id = ?", id).Scan(&userID)
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		} else if err != nil {
			return fmt.Errorf("finding installation: %w", err)
		}
		if _, err := tx.ExecContext(ctx, "DELETE FROM github_installations WHERE id = ?", id); err != nil {
			return fmt.Errorf("deleting installation: %w", err)
		}
		return deleteItemRows(ctx, tx, userID, folderIDs, fileIDs)
	})
}

// Repository operations

const repositoryColumns = "id, installation_id, user_id, name, full_name, html_url, default_branch"

func scanRepository(row interface{ Scan(...any) error }) (*model.Repository, error) {
	var r model.Repository
	if err := row.Scan(&r.ID, &r.InstallationID, &r.UserID, &r.Name, &r.FullName, &r.HTMLURL, &r.DefaultBranch); err != nil {
		return nil, err
	}
	return &r, nil
}

func (s *SQLiteDatabase) FindRepository(ctx context.Context, id int64) (*model.Repository, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+repositoryColumns+" FROM repositories WHERE id = ?", id)
	r, err := scanRepository(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Not found
		}
		return nil, fmt.Errorf("finding repository: %w", err)
	}
	return r, nil
}

func (s *SQLiteDatabase) listRepositories(ctx context.Context, where string, arg any) ([]*model.Repository, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+repositoryColumns+" FROM repositories WHERE "+where+" = ? ORDER BY full_name, id", arg)
	if err != nil {
		return nil, fmt.Errorf("listing repositories: %w", err)
	}
	defer rows.Close()

	var result []*model.Repository
	for rows.Next() {
		r, err := scanRepository(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning repository: %w", err)
		}
		result = append(result, r)
	}
	return result, rows.Err()
}

func (s *SQLiteDatabase) ListRepositories(ctx context.Context, userID string) ([]*model.Repository, error) {
	return s.listRepositories(ctx, "user_id", userID)
}

func (s *SQLiteDatabase) ListInstallationRepositories(ctx context.Context, installationID int64) ([]*model.Repository, error) {
	return s.listRepositories(ctx, "installation_id", installationID)
}

// InsertRepository inserts the repository row and its mirrored items in one
// transaction.
func (s *SQLiteDatabase) InsertRepository(ctx context.Context, repo *model.Repository, items *notes.PullInsert) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			"INSERT INTO repositories ("+repositoryColumns+") VALUES (?, ?, ?, ?, ?, ?, ?)",
			repo.ID, repo.InstallationID, repo.UserID, repo.Name, repo.FullName, repo.HTMLURL, repo.DefaultBranch)
		if err != nil {
			return fmt.Errorf("inserting repository: %w", err)
		}
		if items == nil {
			return nil
		}
		return insertPulled(ctx, tx, repo.UserID, items)
	})
}

func (s *SQLiteDatabase) DeleteRepository(ctx context.Context, repoID int64, folderIDs, fileIDs []string) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		var userID string
		err := tx.QueryRowContext(ctx, "SELECT user_id FROM repositories WHERE id = ?", repoID).Scan(&userID)
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		} else if err != nil {
			return fmt.Errorf("finding repository: %w", err)
		}
		if _, err := tx.ExecContext(ctx, "DELETE FROM repositories WHERE id = ?", repoID); err != nil {
			return fmt.Errorf("deleting repository: %w", err)
		}
		return deleteItemRows(ctx, tx, userID, folderIDs, fileIDs)
	})
}

// Link operations

const linkColumns = "id, repository_id, type, folder_id, file_id, sha, path, state, successor_id"

func scanLink(row interface{ Scan(...any) error }) (*model.Link, error) {
	var l model.Link
	var typ, state string
	var folderID, fileID sql.NullString
	var successor sql.NullInt64
	if err := row.Scan(&l.ID, &l.RepositoryID, &typ, &folderID, &fileID, &l.Sha, &l.Path, &state, &successor); err != nil {
		return nil, err
	}
	l.Type, l.State = model.ItemType(typ), model.LinkState(state)
	l.SuccessorID = successor.Int64
	if l.Type == model.ItemFile {
		l.ItemID = fileID.String
	} else {
		l.ItemID = folderID.String
	}
	return &l, nil
}

// insertLink inserts a link row and sets its ID.
func insertLink(ctx context.Context, q dbtx, l *model.Link) error {
	var folderID, fileID sql.NullString
	if l.State == model.LinkActive {
		if l.Type == model.ItemFile {
			fileID = nullString(l.ItemID)
		} else {
			folderID = nullString(l.ItemID)
		}
	}
	state := l.State
	if state == "" {
		state = model.LinkActive
	}
	var successor sql.NullInt64
	if l.SuccessorID != 0 {
		successor = sql.NullInt64{Int64: l.SuccessorID, Valid: true}
	}
	res, err := q.ExecContext(ctx,
		"INSERT INTO github_links (repository_id, type, folder_id, file_id, sha, path, state, successor_id) VALUES (?, ?, ?, ?, ?, ?, ?, ?)",
		l.RepositoryID, string(l.Type), folderID, fileID, l.Sha, l.Path, string(state), successor)
	if err != nil {
		return fmt.Errorf("inserting link %s: %w", l.Path, err)
	}
	l.ID, err = res.LastInsertId()
	if err != nil {
		return fmt.Errorf("reading link id: %w", err)
	}
	return nil
}

func (s *SQLiteDatabase) ListLinks(ctx context.Context, repoID int64) ([]*model.Link, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT "+linkColumns+" FROM github_links WHERE repository_id = ? ORDER BY id", repoID)
	if err != nil {
		return nil, fmt.Errorf("listing links: %w", err)
	}
	defer rows.Close()

	var result []*model.Link
	for rows.Next() {
		l, err := scanLink(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning link: %w", err)
		}
		result = append(result, l)
	}
	return result, rows.Err()
}

func (s *SQLiteDatabase) FindLinkByItem(ctx context.Context, typ model.ItemType, itemID string) (*model.Link, error) {
	column := "folder_id"
	if typ == model.ItemFile {
		column = "file_id"
	}
	row := s.db.QueryRowContext(ctx,
		"SELECT "+linkColumns+" FROM github_links WHERE state = ? AND type = ? AND "+column+" = ? ORDER BY id DESC LIMIT 1",
		string(model.LinkActive), string(typ), itemID)
	l, err := scanLink(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Not found
		}
		return nil, fmt.Errorf("finding link by item: %w", err)
	}
	return l, nil
}
