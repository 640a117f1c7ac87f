package model

import (
	"encoding/json"
	"path"
	"strings"
)

// LinkState is the lifecycle of a link row between a local item and a
// remote path.
type LinkState string

const (
	// LinkActive tracks a live local item. Sha is empty until the first push.
	LinkActive LinkState = "active"
	// LinkSuperseded marks the old remote path of an item that was renamed or
	// moved locally. A newer active row carries the new path.
	LinkSuperseded LinkState = "superseded"
	// LinkPendingDelete marks the remote path of an item deleted locally.
	LinkPendingDelete LinkState = "pending_delete"
)

// Link bridges a remote path/sha to a local file or folder id.
// ItemID is empty unless State is LinkActive. Path is empty only for the
// repository root folder.
type Link struct {
	ID           int64
	RepositoryID int64
	Type         ItemType
	ItemID       string
	Sha          string
	Path         string
	State        LinkState
	// SuccessorID is the link that replaced a superseded row, or 0.
	SuccessorID int64
}

// Pushed reports whether the link has been confirmed by the remote at least once.
func (l *Link) Pushed() bool { return l.Sha != "" }

// IsRoot reports whether the link belongs to the repository root folder.
func (l *Link) IsRoot() bool { return l.Type == ItemFolder && l.Path == "" && l.State == LinkActive }

// RepoRef addresses a repository through the installation that grants access to it.
type RepoRef struct {
	InstallationID int64
	Owner          string
	Name           string
}

// FullName returns "owner/name".
func (r RepoRef) FullName() string { return r.Owner + "/" + r.Name }

// Remote tree entry types.
const (
	EntryBlob = "blob"
	EntryTree = "tree"
)

// Git file modes used when writing trees.
const (
	ModeFile = "100644"
	ModeTree = "040000"
)

// RemoteTreeEntry is one entry of a recursive remote tree listing.
type RemoteTreeEntry struct {
	Path string `json:"path"`
	Mode string `json:"mode"`
	Type string `json:"type"`
	Sha  string `json:"sha"`
	Size int64  `json:"size,omitempty"`
	URL  string `json:"url,omitempty"`
}

// IsBlob reports whether the entry is a file.
func (e RemoteTreeEntry) IsBlob() bool { return e.Type == EntryBlob }

// RemoteTree is a recursive tree listing at one point in time.
type RemoteTree struct {
	Sha       string            `json:"sha"`
	Entries   []RemoteTreeEntry `json:"tree"`
	Truncated bool              `json:"truncated"`
}

// TreeEntryInput is one entry of a tree-creation request. A nil Sha with no
// Content deletes Path from the base tree.
type TreeEntryInput struct {
	Path    string  `json:"path"`
	Mode    string  `json:"mode"`
	Type    string  `json:"type"`
	Sha     *string `json:"sha,omitempty"`
	Content *string `json:"content,omitempty"`
}

// IsDeletion reports whether the entry removes its path.
func (e TreeEntryInput) IsDeletion() bool { return e.Sha == nil && e.Content == nil }

// MarshalJSON writes an explicit "sha": null for deletions, which the API
// requires to remove a path.
func (e TreeEntryInput) MarshalJSON() ([]byte, error) {
	type plain TreeEntryInput
	if !e.IsDeletion() {
		return json.Marshal(plain(e))
	}
	return json.Marshal(struct {
		Path string  `json:"path"`
		Mode string  `json:"mode"`
		Type string  `json:"type"`
		Sha  *string `json:"sha"`
	}{e.Path, e.Mode, e.Type, nil})
}

// RemoteUser is the GitHub account behind an OAuth token.
type RemoteUser struct {
	ID    int64  `json:"id"`
	Login string `json:"login"`
}

// RemoteRepository is the subset of repository metadata the service uses.
type RemoteRepository struct {
	ID            int64  `json:"id"`
	Name          string `json:"name"`
	FullName      string `json:"full_name"`
	HTMLURL       string `json:"html_url"`
	DefaultBranch string `json:"default_branch"`
}

// RemoteInstallation is the subset of installation metadata the service uses.
type RemoteInstallation struct {
	ID      int64 `json:"id"`
	Account struct {
		Login     string `json:"login"`
		AvatarURL string `json:"avatar_url"`
	} `json:"account"`
}

// RemoteContent is a file as returned by the contents API.
type RemoteContent struct {
	Name string `json:"name"`
	Path string `json:"path"`
	Sha  string `json:"sha"`
}

// PutContentInput is the body of a create-or-update-file request.
type PutContentInput struct {
	Message string `json:"message"`
	Content string `json:"content"` // base64
	Sha     string `json:"sha,omitempty"`
	Branch  string `json:"branch"`
}

// PullRequestInput is the body of a pull request creation.
type PullRequestInput struct {
	Title string `json:"title"`
	Head  string `json:"head"`
	Base  string `json:"base"`
	Body  string `json:"body"`
}

// PullRequest is a created pull request.
type PullRequest struct {
	Number  int    `json:"number"`
	HTMLURL string `json:"html_url"`
}

// MarkdownExt is the only file extension mirrored locally.
const MarkdownExt = ".md"

// IsMarkdown reports whether p names a markdown file.
func IsMarkdown(p string) bool { return strings.HasSuffix(p, MarkdownExt) }

// NameFromPath returns the local item name for a remote path: the last
// segment, without the markdown extension for files.
func NameFromPath(p string) string {
	return strings.TrimSuffix(path.Base(p), MarkdownExt)
}

// ParentPath returns the directory of p, or "" at the repository root.
func ParentPath(p string) string {
	dir := path.Dir(p)
	if dir == "." || dir == "/" {
		return ""
	}
	return dir
}

// JoinPath joins a parent path and a child segment, treating "" as the root.
func JoinPath(parent, name string) string {
	if parent == "" {
		return name
	}
	return parent + "/" + name
}

// WithinPath reports whether p is scope itself or lies beneath it.
// The empty scope contains every path.
func WithinPath(p, scope string) bool {
	if scope == "" {
		return true
	}
	return p == scope || strings.HasPrefix(p, scope+"/")
}
