package httpapi

import (
	"time"

	"mdnotes/internal/model"
	"mdnotes/internal/notes"
)

type userView struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

type fileView struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Icon      string    `json:"icon"`
	IconColor string    `json:"iconColor,omitempty"`
	FolderID  string    `json:"folderId,omitempty"`
	Doc       string    `json:"doc,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type folderView struct {
	ID           string        `json:"id"`
	Name         string        `json:"name"`
	ParentID     string        `json:"parentId,omitempty"`
	RepositoryID int64         `json:"repositoryId,omitempty"`
	UpdatedAt    time.Time     `json:"updatedAt"`
	Folders      []*folderView `json:"folders"`
	Files        []*fileView   `json:"files"`
}

type trashView struct {
	ID        int64     `json:"id"`
	FolderID  string    `json:"folderId,omitempty"`
	FileID    string    `json:"fileId,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

type installationView struct {
	ID        int64  `json:"id"`
	Username  string `json:"username"`
	AvatarURL string `json:"avatarUrl"`
}

type repositoryView struct {
	ID             int64  `json:"id"`
	InstallationID int64  `json:"installationId"`
	Name           string `json:"name"`
	FullName       string `json:"fullName"`
	HTMLURL        string `json:"htmlUrl"`
	DefaultBranch  string `json:"defaultBranch"`
}

type keybindingView struct {
	Name string `json:"name"`
	Key  string `json:"key"`
}

type workspaceView struct {
	Folders       []*folderView        `json:"folders"`
	Files         []*fileView          `json:"files"`
	Trash         []trashView          `json:"trash"`
	Installations []installationView   `json:"installations"`
	Repositories  []repositoryView     `json:"repositories"`
	Settings      model.EditorSettings `json:"settings"`
	Keybindings   []keybindingView     `json:"keybindings"`
}

type syncOperationView struct {
	ID           int64      `json:"id"`
	RepositoryID int64      `json:"repositoryId"`
	Operation    string     `json:"operation"`
	Status       string     `json:"status"`
	StartedAt    time.Time  `json:"startedAt"`
	FinishedAt   *time.Time `json:"finishedAt,omitempty"`
}

// withDoc controls whether document bodies are included; the workspace
// listing omits them.
func newFileView(f *model.File, withDoc bool) *fileView {
	v := &fileView{
		ID:        f.ID,
		Name:      f.Name,
		Icon:      f.Icon,
		IconColor: f.IconColor,
		FolderID:  f.FolderID,
		CreatedAt: f.CreatedAt,
		UpdatedAt: f.UpdatedAt,
	}
	if withDoc {
		v.Doc = f.Doc
	}
	return v
}

func newFileViews(files []*model.File) []*fileView {
	out := make([]*fileView, 0, len(files))
	for _, f := range files {
		out = append(out, newFileView(f, false))
	}
	return out
}

func newFolderViews(nodes []*notes.FolderNode) []*folderView {
	out := make([]*folderView, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, &folderView{
			ID:           n.ID,
			Name:         n.Name,
			ParentID:     n.ParentID,
			RepositoryID: n.RepositoryID,
			UpdatedAt:    n.UpdatedAt,
			Folders:      newFolderViews(n.Folders),
			Files:        newFileViews(n.Files),
		})
	}
	return out
}

func newWorkspaceView(ws *notes.Workspace) *workspaceView {
	v := &workspaceView{
		Folders:       newFolderViews(ws.Folders),
		Files:         newFileViews(ws.Files),
		Trash:         make([]trashView, 0, len(ws.Trash)),
		Installations: make([]installationView, 0, len(ws.Installations)),
		Repositories:  make([]repositoryView, 0, len(ws.Repositories)),
		Settings:      ws.Settings,
		Keybindings:   make([]keybindingView, 0, len(ws.Keybindings)),
	}
	for _, t := range ws.Trash {
		v.Trash = append(v.Trash, trashView{ID: t.ID, FolderID: t.FolderID, FileID: t.FileID, CreatedAt: t.CreatedAt})
	}
	for _, i := range ws.Installations {
		v.Installations = append(v.Installations, installationView{ID: i.ID, Username: i.Username, AvatarURL: i.AvatarURL})
	}
	for _, r := range ws.Repositories {
		v.Repositories = append(v.Repositories, newRepositoryView(r))
	}
	for _, kb := range ws.Keybindings {
		v.Keybindings = append(v.Keybindings, keybindingView{Name: kb.Name, Key: kb.Key})
	}
	return v
}

func newRepositoryView(r *model.Repository) repositoryView {
	return repositoryView{
		ID:             r.ID,
		InstallationID: r.InstallationID,
		Name:           r.Name,
		FullName:       r.FullName,
		HTMLURL:        r.HTMLURL,
		DefaultBranch:  r.DefaultBranch,
	}
}
