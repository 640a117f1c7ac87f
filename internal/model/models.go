package model

import (
	"strings"
	"time"
)

// User is an account holder. PasswordHash is an argon2id PHC string.
type User struct {
	ID           string
	Email        string // empty for accounts created through GitHub sign-in
	PasswordHash string // empty when the account has no password
	GithubID     *int64
}

// Session is a login session keyed by an opaque random token.
type Session struct {
	ID        string
	UserID    string
	ExpiresAt time.Time
}

// Folder is a local folder. ParentID is empty for top-level folders.
type Folder struct {
	ID        string
	UserID    string
	Name      string
	ParentID  string
	CreatedAt time.Time
}

// File is a local markdown note. FolderID is empty for root-level notes.
type File struct {
	ID        string
	UserID    string
	Name      string // without the .md extension
	Icon      string
	IconColor string
	Doc       string
	FolderID  string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ItemType distinguishes files from folders in requests that accept either.
type ItemType string

const (
	ItemFile   ItemType = "file"
	ItemFolder ItemType = "folder"
)

// TrashEntry is a soft-delete marker for exactly one of FolderID or FileID.
type TrashEntry struct {
	ID        int64
	UserID    string
	FolderID  string
	FileID    string
	CreatedAt time.Time
}

// Installation is a GitHub App installation owned by a user.
type Installation struct {
	ID        int64 // remote installation id
	UserID    string
	Username  string
	AvatarURL string
}

// Repository is a remote repository connected to a local root folder.
type Repository struct {
	ID             int64 // remote repository id
	InstallationID int64
	UserID         string
	Name           string
	FullName       string
	HTMLURL        string
	DefaultBranch  string
}

// Owner returns the owner segment of FullName.
func (r *Repository) Owner() string {
	owner, _, _ := strings.Cut(r.FullName, "/")
	return owner
}

// Repo returns the repository segment of FullName.
func (r *Repository) Repo() string {
	if _, name, ok := strings.Cut(r.FullName, "/"); ok {
		return name
	}
	return r.FullName
}

// Ref returns the remote coordinates of the repository.
func (r *Repository) Ref() RepoRef {
	return RepoRef{InstallationID: r.InstallationID, Owner: r.Owner(), Name: r.Repo()}
}

// EditorSettings is the per-user editor configuration document, stored as JSON.
type EditorSettings struct {
	FontSize        int    `json:"fontSize"`
	FontFamily      string `json:"fontFamily"`
	LineNumbers     bool   `json:"lineNumbers"`
	LineWrapping    bool   `json:"lineWrapping"`
	HighlightActive bool   `json:"highlightActiveLine"`
	VimMode         bool   `json:"vimMode"`
	Theme           string `json:"theme"`
}

// DefaultEditorSettings returns the settings inserted for new users.
func DefaultEditorSettings() EditorSettings {
	return EditorSettings{
		FontSize:        16,
		FontFamily:      "monospace",
		LineNumbers:     false,
		LineWrapping:    true,
		HighlightActive: true,
		VimMode:         false,
		Theme:           "dark",
	}
}

// Keybinding overrides the default key of a named editor command.
type Keybinding struct {
	UserID string
	Name   string
	Key    string
}

// SyncOperation records one pull or push for history.
type SyncOperation struct {
	ID           int64
	UserID       string
	RepositoryID int64
	Operation    string // "pull" or "push"
	StartedAt    time.Time
	FinishedAt   *time.Time
	Status       string // "running", "success" or "error"
}
