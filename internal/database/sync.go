package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"mdnotes/internal/model"
	"mdnotes/internal/notes"
)

// Sync phase operations. Each runs in its own transaction and writes its
// rows with batched CASE updates.

func (s *SQLiteDatabase) ApplyRenames(ctx context.Context, userID string, renames []notes.RenameUpdate) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		var links, folders, files []caseRow
		for _, r := range renames {
			links = append(links, caseRow{key: r.LinkID, set: map[string]any{"path": r.Path}})
			set := map[string]any{"name": r.Name}
			if r.Type == model.ItemFile {
				if r.Reparent {
					set["folder_id"] = nullString(r.ParentID)
				}
				files = append(files, caseRow{key: r.ItemID, set: set})
			} else {
				if r.Reparent {
					set["parent_id"] = nullString(r.ParentID)
				}
				folders = append(folders, caseRow{key: r.ItemID, set: set})
			}
		}

		if err := updateCase(ctx, tx, "github_links", "id", []string{"path"}, links, ""); err != nil {
			return fmt.Errorf("updating link paths: %w", err)
		}
		if err := updateCase(ctx, tx, "folders", "id", []string{"name", "parent_id"}, folders, "user_id = ?", userID); err != nil {
			return fmt.Errorf("renaming folders: %w", err)
		}
		if err := updateCase(ctx, tx, "files", "id", []string{"name", "folder_id"}, files, "user_id = ?", userID); err != nil {
			return fmt.Errorf("renaming files: %w", err)
		}
		return nil
	})
}

func (s *SQLiteDatabase) ApplyContentUpdates(ctx context.Context, userID string, updates []notes.ContentUpdate, at time.Time) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		var links, files []caseRow
		for _, u := range updates {
			links = append(links, caseRow{key: u.LinkID, set: map[string]any{"sha": u.Sha}})
			if u.Type == model.ItemFile && u.Doc != nil {
				files = append(files, caseRow{key: u.ItemID, set: map[string]any{"doc": *u.Doc, "updated_at": at}})
			}
		}

		if err := updateCase(ctx, tx, "github_links", "id", []string{"sha"}, links, ""); err != nil {
			return fmt.Errorf("updating link shas: %w", err)
		}
		if err := updateCase(ctx, tx, "files", "id", []string{"doc", "updated_at"}, files, "user_id = ?", userID); err != nil {
			return fmt.Errorf("updating file contents: %w", err)
		}
		return nil
	})
}

func (s *SQLiteDatabase) InsertPulled(ctx context.Context, userID string, items *notes.PullInsert) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		return insertPulled(ctx, tx, userID, items)
	})
}

// insertPulled inserts folders in the given order so parents exist before
// their children, then files, link rows and deferred reparents.
func insertPulled(ctx context.Context, q dbtx, userID string, items *notes.PullInsert) error {
	for _, f := range items.Folders {
		if err := insertFolder(ctx, q, f); err != nil {
			return err
		}
	}
	for _, f := range items.Files {
		if err := insertFile(ctx, q, f); err != nil {
			return err
		}
	}
	for _, l := range items.Links {
		if err := insertLink(ctx, q, l); err != nil {
			return err
		}
	}

	var folders, files []caseRow
	for _, r := range items.Reparents {
		if r.Type == model.ItemFile {
			files = append(files, caseRow{key: r.ItemID, set: map[string]any{"folder_id": nullString(r.ParentID)}})
		} else {
			folders = append(folders, caseRow{key: r.ItemID, set: map[string]any{"parent_id": nullString(r.ParentID)}})
		}
	}
	if err := updateCase(ctx, q, "folders", "id", []string{"parent_id"}, folders, "user_id = ?", userID); err != nil {
		return fmt.Errorf("reparenting folders: %w", err)
	}
	if err := updateCase(ctx, q, "files", "id", []string{"folder_id"}, files, "user_id = ?", userID); err != nil {
		return fmt.Errorf("reparenting files: %w", err)
	}

	if err := execIn(ctx, q, "DELETE FROM github_links WHERE id IN (%s)", nil, items.DropLinkIDs); err != nil {
		return fmt.Errorf("dropping resolved links: %w", err)
	}
	return nil
}

func (s *SQLiteDatabase) DeletePulled(ctx context.Context, userID string, del *notes.PullDelete) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		if err := execIn(ctx, tx, "DELETE FROM github_links WHERE id IN (%s)", nil, del.LinkIDs); err != nil {
			return fmt.Errorf("deleting links: %w", err)
		}
		if err := execIn(ctx, tx, "UPDATE github_links SET sha = '' WHERE id IN (%s)", nil, del.ResetLinkIDs); err != nil {
			return fmt.Errorf("resetting kept folder links: %w", err)
		}
		return deleteItemRows(ctx, tx, userID, del.FolderIDs, del.FileIDs)
	})
}

func (s *SQLiteDatabase) UpdateLinkShas(ctx context.Context, shas map[int64]string, dropLinkIDs []int64) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		rows := make([]caseRow, 0, len(shas))
		for id, sha := range shas {
			rows = append(rows, caseRow{key: id, set: map[string]any{"sha": sha}})
		}
		if err := updateCase(ctx, tx, "github_links", "id", []string{"sha"}, rows, ""); err != nil {
			return fmt.Errorf("updating link shas: %w", err)
		}
		if err := execIn(ctx, tx, "DELETE FROM github_links WHERE id IN (%s)", nil, dropLinkIDs); err != nil {
			return fmt.Errorf("dropping links: %w", err)
		}
		return nil
	})
}
