package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"mdnotes/internal/model"
	"mdnotes/internal/notes"
)

// Folder operations

const folderColumns = "id, user_id, name, parent_id, created_at"

func scanFolder(row interface{ Scan(...any) error }) (*model.Folder, error) {
	var f model.Folder
	var parentID sql.NullString
	if err := row.Scan(&f.ID, &f.UserID, &f.Name, &parentID, &f.CreatedAt); err != nil {
		return nil, err
	}
	f.ParentID = parentID.String
	return &f, nil
}

func insertFolder(ctx context.Context, q dbtx, f *model.Folder) error {
	_, err := q.ExecContext(ctx,
		"INSERT INTO folders ("+folderColumns+") VALUES (?, ?, ?, ?, ?)",
		f.ID, f.UserID, f.Name, nullString(f.ParentID), f.CreatedAt)
	if err != nil {
		return fmt.Errorf("inserting folder %s: %w", f.Name, err)
	}
	return nil
}

func (s *SQLiteDatabase) ListFolders(ctx context.Context, userID string) ([]*model.Folder, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT "+folderColumns+" FROM folders WHERE user_id = ? ORDER BY name, id", userID)
	if err != nil {
		return nil, fmt.Errorf("listing folders: %w", err)
	}
	defer rows.Close()

	var result []*model.Folder
	for rows.Next() {
		f, err := scanFolder(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning folder: %w", err)
		}
		result = append(result, f)
	}
	return result, rows.Err()
}

func (s *SQLiteDatabase) FindFolder(ctx context.Context, userID, id string) (*model.Folder, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+folderColumns+" FROM folders WHERE user_id = ? AND id = ?", userID, id)
	f, err := scanFolder(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Not found
		}
		return nil, fmt.Errorf("finding folder: %w", err)
	}
	return f, nil
}

func (s *SQLiteDatabase) CreateFolder(ctx context.Context, folder *model.Folder, link *model.Link) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		if err := insertFolder(ctx, tx, folder); err != nil {
			return err
		}
		if link != nil {
			return insertLink(ctx, tx, link)
		}
		return nil
	})
}

// File operations

const fileMetaColumns = "id, user_id, name, icon, icon_color, folder_id, created_at, updated_at"

func scanFile(row interface{ Scan(...any) error }, withDoc bool) (*model.File, error) {
	var f model.File
	var folderID sql.NullString
	dest := []any{&f.ID, &f.UserID, &f.Name, &f.Icon, &f.IconColor, &folderID, &f.CreatedAt, &f.UpdatedAt}
	if withDoc {
		dest = append(dest, &f.Doc)
	}
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}
	f.FolderID = folderID.String
	return &f, nil
}

func insertFile(ctx context.Context, q dbtx, f *model.File) error {
	_, err := q.ExecContext(ctx,
		"INSERT INTO files ("+fileMetaColumns+", doc) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)",
		f.ID, f.UserID, f.Name, f.Icon, f.IconColor, nullString(f.FolderID), f.CreatedAt, f.UpdatedAt, f.Doc)
	if err != nil {
		return fmt.Errorf("inserting file %s: %w", f.Name, err)
	}
	return nil
}

func (s *SQLiteDatabase) ListFiles(ctx context.Context, userID string) ([]*model.File, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT "+fileMetaColumns+" FROM files WHERE user_id = ? ORDER BY name, id", userID)
	if err != nil {
		return nil, fmt.Errorf("listing files: %w", err)
	}
	defer rows.Close()

	var result []*model.File
	for rows.Next() {
		f, err := scanFile(rows, false)
		if err != nil {
			return nil, fmt.Errorf("scanning file: %w", err)
		}
		result = append(result, f)
	}
	return result, rows.Err()
}

func (s *SQLiteDatabase) ListFileContents(ctx context.Context, userID string, ids []string) ([]*model.File, error) {
	var result []*model.File
	for _, batch := range chunks(ids, batchSize) {
		query := fmt.Sprintf("SELECT "+fileMetaColumns+", doc FROM files WHERE user_id = ? AND id IN (%s)", placeholders(len(batch)))
		rows, err := s.db.QueryContext(ctx, query, append([]any{userID}, anys(batch)...)...)
		if err != nil {
			return nil, fmt.Errorf("listing file contents: %w", err)
		}
		for rows.Next() {
			f, err := scanFile(rows, true)
			if err != nil {
				rows.Close()
				return nil, fmt.Errorf("scanning file: %w", err)
			}
			result = append(result, f)
		}
		err = rows.Err()
		rows.Close()
		if err != nil {
			return nil, fmt.Errorf("listing file contents: %w", err)
		}
	}
	return result, nil
}

func (s *SQLiteDatabase) FindFile(ctx context.Context, userID, id string) (*model.File, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+fileMetaColumns+", doc FROM files WHERE user_id = ? AND id = ?", userID, id)
	f, err := scanFile(row, true)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Not found
		}
		return nil, fmt.Errorf("finding file: %w", err)
	}
	return f, nil
}

func (s *SQLiteDatabase) CreateFile(ctx context.Context, file *model.File, link *model.Link) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		if err := insertFile(ctx, tx, file); err != nil {
			return err
		}
		if link != nil {
			return insertLink(ctx, tx, link)
		}
		return nil
	})
}

func (s *SQLiteDatabase) SaveFile(ctx context.Context, userID, id, doc string, updatedAt time.Time) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE files SET doc = ?, updated_at = ? WHERE user_id = ? AND id = ?", doc, updatedAt, userID, id)
	if err != nil {
		return fmt.Errorf("saving file: %w", err)
	}
	return nil
}

func (s *SQLiteDatabase) UpdateFileAppearance(ctx context.Context, userID, id, icon, iconColor string) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE files SET icon = ?, icon_color = ? WHERE user_id = ? AND id = ?", icon, iconColor, userID, id)
	if err != nil {
		return fmt.Errorf("updating file appearance: %w", err)
	}
	return nil
}

// Rename and move

func itemTable(typ model.ItemType) (table, parentColumn string) {
	if typ == model.ItemFile {
		return "files", "folder_id"
	}
	return "folders", "parent_id"
}

func (s *SQLiteDatabase) RenameItem(ctx context.Context, userID string, typ model.ItemType, id, name string, relinks []notes.Relink) error {
	table, _ := itemTable(typ)
	return s.inTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, "UPDATE "+table+" SET name = ? WHERE user_id = ? AND id = ?", name, userID, id)
		if err != nil {
			return fmt.Errorf("renaming %s: %w", typ, err)
		}
		return applyRelinks(ctx, tx, relinks)
	})
}

func (s *SQLiteDatabase) MoveItem(ctx context.Context, userID string, typ model.ItemType, id, parentID string, relinks []notes.Relink) error {
	table, parentColumn := itemTable(typ)
	return s.inTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			"UPDATE "+table+" SET "+parentColumn+" = ? WHERE user_id = ? AND id = ?", nullString(parentID), userID, id)
		if err != nil {
			return fmt.Errorf("moving %s: %w", typ, err)
		}
		return applyRelinks(ctx, tx, relinks)
	})
}

// applyRelinks inserts the new link row of each item and retires its old
// one. A pushed old row stays behind as a superseded path pointing at its
// successor; an unpushed one never reached the remote and is removed, handing
// its own predecessors over to the successor.
func applyRelinks(ctx context.Context, q dbtx, relinks []notes.Relink) error {
	for _, r := range relinks {
		var successor sql.NullInt64
		if r.Path != "" {
			link := &model.Link{
				RepositoryID: r.RepositoryID,
				Type:         r.Type,
				ItemID:       r.ItemID,
				Path:         r.Path,
				State:        model.LinkActive,
			}
			if err := insertLink(ctx, q, link); err != nil {
				return err
			}
			successor = sql.NullInt64{Int64: link.ID, Valid: true}
		}
		if r.Old == nil {
			continue
		}
		var err error
		if r.Old.Pushed() {
			_, err = q.ExecContext(ctx,
				"UPDATE github_links SET state = ?, folder_id = NULL, file_id = NULL, successor_id = ? WHERE id = ?",
				string(model.LinkSuperseded), successor, r.Old.ID)
		} else {
			_, err = q.ExecContext(ctx, "UPDATE github_links SET successor_id = ? WHERE successor_id = ?", successor, r.Old.ID)
			if err == nil {
				_, err = q.ExecContext(ctx, "DELETE FROM github_links WHERE id = ?", r.Old.ID)
			}
		}
		if err != nil {
			return fmt.Errorf("retiring link %s: %w", r.Old.Path, err)
		}
	}
	return nil
}

// Trash operations

func (s *SQLiteDatabase) ListTrash(ctx context.Context, userID string) ([]*model.TrashEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, user_id, folder_id, file_id, created_at FROM trash WHERE user_id = ? ORDER BY created_at DESC, id DESC", userID)
	if err != nil {
		return nil, fmt.Errorf("listing trash: %w", err)
	}
	defer rows.Close()

	var result []*model.TrashEntry
	for rows.Next() {
		var e model.TrashEntry
		var folderID, fileID sql.NullString
		if err := rows.Scan(&e.ID, &e.UserID, &folderID, &fileID, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning trash entry: %w", err)
		}
		e.FolderID, e.FileID = folderID.String, fileID.String
		result = append(result, &e)
	}
	return result, rows.Err()
}

func (s *SQLiteDatabase) IsTrashed(ctx context.Context, userID string, typ model.ItemType, id string) (bool, error) {
	column := "folder_id"
	if typ == model.ItemFile {
		column = "file_id"
	}
	var exists bool
	err := s.db.QueryRowContext(ctx,
		"SELECT EXISTS (SELECT 1 FROM trash WHERE user_id = ? AND "+column+" = ?)", userID, id).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("checking trash: %w", err)
	}
	return exists, nil
}

func (s *SQLiteDatabase) TrashItem(ctx context.Context, entry *model.TrashEntry) error {
	res, err := s.db.ExecContext(ctx,
		"INSERT INTO trash (user_id, folder_id, file_id, created_at) VALUES (?, ?, ?, ?)",
		entry.UserID, nullString(entry.FolderID), nullString(entry.FileID), entry.CreatedAt)
	if err != nil {
		return fmt.Errorf("inserting trash entry: %w", err)
	}
	entry.ID, err = res.LastInsertId()
	if err != nil {
		return fmt.Errorf("reading trash entry id: %w", err)
	}
	return nil
}

func (s *SQLiteDatabase) RemoveTrash(ctx context.Context, userID string, folderIDs, fileIDs []string) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		return removeTrash(ctx, tx, userID, folderIDs, fileIDs)
	})
}

func removeTrash(ctx context.Context, q dbtx, userID string, folderIDs, fileIDs []string) error {
	if err := execIn(ctx, q, "DELETE FROM trash WHERE user_id = ? AND folder_id IN (%s)", []any{userID}, folderIDs); err != nil {
		return fmt.Errorf("removing folder trash entries: %w", err)
	}
	if err := execIn(ctx, q, "DELETE FROM trash WHERE user_id = ? AND file_id IN (%s)", []any{userID}, fileIDs); err != nil {
		return fmt.Errorf("removing file trash entries: %w", err)
	}
	return nil
}

// Deletion

// DeleteItems hard-deletes items. The active link rows of the items are
// turned into pending deletions when pushed, or removed when not.
func (s *SQLiteDatabase) DeleteItems(ctx context.Context, userID string, folderIDs, fileIDs []string) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		for _, col := range []struct {
			name string
			ids  []string
		}{{"folder_id", folderIDs}, {"file_id", fileIDs}} {
			err := execIn(ctx, tx,
				"UPDATE github_links SET state = ?, folder_id = NULL, file_id = NULL WHERE state = ? AND sha != '' AND "+col.name+" IN (%s)",
				[]any{string(model.LinkPendingDelete), string(model.LinkActive)}, col.ids)
			if err != nil {
				return fmt.Errorf("marking links for deletion: %w", err)
			}
			err = execIn(ctx, tx,
				"DELETE FROM github_links WHERE state = ? AND sha = '' AND "+col.name+" IN (%s)",
				[]any{string(model.LinkActive)}, col.ids)
			if err != nil {
				return fmt.Errorf("removing unpushed links: %w", err)
			}
		}
		return deleteItemRows(ctx, tx, userID, folderIDs, fileIDs)
	})
}

// deleteItemRows removes files and folders, then any active link row left
// without an item by the cascade.
func deleteItemRows(ctx context.Context, q dbtx, userID string, folderIDs, fileIDs []string) error {
	if err := execIn(ctx, q, "DELETE FROM files WHERE user_id = ? AND id IN (%s)", []any{userID}, fileIDs); err != nil {
		return fmt.Errorf("deleting files: %w", err)
	}
	if err := execIn(ctx, q, "DELETE FROM folders WHERE user_id = ? AND id IN (%s)", []any{userID}, folderIDs); err != nil {
		return fmt.Errorf("deleting folders: %w", err)
	}
	_, err := q.ExecContext(ctx,
		"DELETE FROM github_links WHERE state = ? AND folder_id IS NULL AND file_id IS NULL", string(model.LinkActive))
	if err != nil {
		return fmt.Errorf("pruning orphaned links: %w", err)
	}
	return nil
}
