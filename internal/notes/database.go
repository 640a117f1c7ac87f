package notes

import (
	"context"
	"time"

	"mdnotes/internal/model"
)

// Database is the local mirror store. Lookups return nil, nil when a row does
// not exist. Methods that take several slices apply them in one transaction.
type Database interface {
	// Users and sessions

	CreateUser(ctx context.Context, user *model.User, settings model.EditorSettings) error
	FindUserByID(ctx context.Context, id string) (*model.User, error)
	FindUserByEmail(ctx context.Context, email string) (*model.User, error)
	FindUserByGithubID(ctx context.Context, githubID int64) (*model.User, error)
	UpdateUserEmail(ctx context.Context, userID, email string) error
	UpdateUserPassword(ctx context.Context, userID, passwordHash string) error
	// DeleteUser removes the user and everything the user owns.
	DeleteUser(ctx context.Context, userID string) error

	CreateSession(ctx context.Context, session *model.Session) error
	FindSession(ctx context.Context, id string) (*model.Session, error)
	UpdateSessionExpiry(ctx context.Context, id string, expiresAt time.Time) error
	DeleteSession(ctx context.Context, id string) error
	// DeleteUserSessions removes every session of the user except exceptID.
	DeleteUserSessions(ctx context.Context, userID, exceptID string) error

	// Workspace

	ListFolders(ctx context.Context, userID string) ([]*model.Folder, error)
	// ListFiles returns the user's files without their content.
	ListFiles(ctx context.Context, userID string) ([]*model.File, error)
	ListFileContents(ctx context.Context, userID string, ids []string) ([]*model.File, error)
	ListTrash(ctx context.Context, userID string) ([]*model.TrashEntry, error)
	FindFolder(ctx context.Context, userID, id string) (*model.Folder, error)
	FindFile(ctx context.Context, userID, id string) (*model.File, error)
	IsTrashed(ctx context.Context, userID string, typ model.ItemType, id string) (bool, error)
	// CreateFolder inserts the folder and, when link is non-nil, its link row.
	CreateFolder(ctx context.Context, folder *model.Folder, link *model.Link) error
	// CreateFile inserts the file and, when link is non-nil, its link row.
	CreateFile(ctx context.Context, file *model.File, link *model.Link) error
	SaveFile(ctx context.Context, userID, id, doc string, updatedAt time.Time) error
	UpdateFileAppearance(ctx context.Context, userID, id, icon, iconColor string) error
	RenameItem(ctx context.Context, userID string, typ model.ItemType, id, name string, relinks []Relink) error
	MoveItem(ctx context.Context, userID string, typ model.ItemType, id, parentID string, relinks []Relink) error
	TrashItem(ctx context.Context, entry *model.TrashEntry) error
	RemoveTrash(ctx context.Context, userID string, folderIDs, fileIDs []string) error
	// DeleteItems hard-deletes the given items. Their pushed link rows become
	// pending deletions and their unpushed link rows are removed.
	DeleteItems(ctx context.Context, userID string, folderIDs, fileIDs []string) error

	// Settings

	GetEditorSettings(ctx context.Context, userID string) (*model.EditorSettings, error)
	SaveEditorSettings(ctx context.Context, userID string, settings model.EditorSettings) error
	ListKeybindings(ctx context.Context, userID string) ([]*model.Keybinding, error)
	UpsertKeybinding(ctx context.Context, kb *model.Keybinding) error
	DeleteKeybinding(ctx context.Context, userID, name string) error

	// GitHub installations and repositories

	UpsertInstallation(ctx context.Context, inst *model.Installation) error
	FindInstallation(ctx context.Context, id int64) (*model.Installation, error)
	ListInstallations(ctx context.Context, userID string) ([]*model.Installation, error)
	// DeleteInstallation removes the installation, its repositories and link
	// rows, and the given local items.
	DeleteInstallation(ctx context.Context, id int64, folderIDs, fileIDs []string) error
	FindRepository(ctx context.Context, id int64) (*model.Repository, error)
	ListRepositories(ctx context.Context, userID string) ([]*model.Repository, error)
	ListInstallationRepositories(ctx context.Context, installationID int64) ([]*model.Repository, error)
	// InsertRepository inserts the repository row followed by items.
	InsertRepository(ctx context.Context, repo *model.Repository, items *PullInsert) error
	// DeleteRepository removes the repository, its link rows, and the given local items.
	DeleteRepository(ctx context.Context, repoID int64, folderIDs, fileIDs []string) error

	// Link rows

	// ListLinks returns every link row of the repository in all states.
	ListLinks(ctx context.Context, repoID int64) ([]*model.Link, error)
	// FindLinkByItem returns the active link row of a local item.
	FindLinkByItem(ctx context.Context, typ model.ItemType, itemID string) (*model.Link, error)

	// Sync phases

	ApplyRenames(ctx context.Context, userID string, renames []RenameUpdate) error
	ApplyContentUpdates(ctx context.Context, userID string, updates []ContentUpdate, at time.Time) error
	InsertPulled(ctx context.Context, userID string, items *PullInsert) error
	DeletePulled(ctx context.Context, userID string, del *PullDelete) error
	// UpdateLinkShas sets link shas by row id and removes dropLinkIDs.
	UpdateLinkShas(ctx context.Context, shas map[int64]string, dropLinkIDs []int64) error

	// Sync history

	CreateSyncOperation(ctx context.Context, op *model.SyncOperation) error
	FinishSyncOperation(ctx context.Context, id int64, status string, at time.Time) error
	// ListSyncOperations returns the newest operations first. An empty userID lists all users.
	ListSyncOperations(ctx context.Context, userID string, limit int) ([]*model.SyncOperation, error)
	MaxSyncOperationID(ctx context.Context) (int64, error)

	// Lifecycle

	CheckMigrations() error
	BackupTo(destPath string) error
	Close() error
}

// Relink moves a local item from its current link row, if any, to a new
// repository path. An empty Path unlinks the item.
type Relink struct {
	Type         model.ItemType
	ItemID       string
	Old          *model.Link
	RepositoryID int64
	Path         string
}

// RenameUpdate applies a remote rename or move to a local item and its link row.
// ParentID is applied only when Reparent is set; an empty ParentID means top level.
type RenameUpdate struct {
	LinkID   int64
	Type     model.ItemType
	ItemID   string
	Name     string
	Path     string
	ParentID string
	Reparent bool
}

// ContentUpdate records a new remote sha for a link row. Doc is set for files
// whose content changed.
type ContentUpdate struct {
	LinkID int64
	Type   model.ItemType
	ItemID string
	Sha    string
	Doc    *string
}

// PullInsert is the set of rows created by one pull or repository link.
// Folders are ordered parents first. Reparents run after all folders exist.
type PullInsert struct {
	Folders     []*model.Folder
	Files       []*model.File
	Links       []*model.Link
	Reparents   []RenameUpdate
	DropLinkIDs []int64
}

// Empty reports whether there is nothing to insert.
func (p *PullInsert) Empty() bool {
	return len(p.Folders) == 0 && len(p.Files) == 0 && len(p.Links) == 0 &&
		len(p.Reparents) == 0 && len(p.DropLinkIDs) == 0
}

// PullDelete is the set of rows removed by one pull.
type PullDelete struct {
	LinkIDs      []int64
	ResetLinkIDs []int64
	FolderIDs    []string
	FileIDs      []string
}

// Empty reports whether there is nothing to delete.
func (d *PullDelete) Empty() bool {
	return len(d.LinkIDs) == 0 && len(d.ResetLinkIDs) == 0 && len(d.FolderIDs) == 0 && len(d.FileIDs) == 0
}
