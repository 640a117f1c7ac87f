package notes

import (
	"context"
	"fmt"
	"strings"

	"mdnotes/internal/model"
)

const maxNameLength = 256

// Workspace is everything the editor sidebar shows for one user.
type Workspace struct {
	Folders       []*FolderNode
	Files         []*model.File // root-level files
	Trash         []*model.TrashEntry
	Installations []*model.Installation
	Repositories  []*model.Repository
	Settings      model.EditorSettings
	Keybindings   []*model.Keybinding
}

// CreateFileInput holds the fields of a new file. Icon defaults to the first
// entry of FileIcons; FolderID empty means root level.
type CreateFileInput struct {
	Name     string
	Icon     string
	FolderID string
}

// RenameInput renames a file or folder. Icon and IconColor apply to files
// and are left unchanged when empty.
type RenameInput struct {
	ID        string
	Type      model.ItemType
	Name      string
	Icon      string
	IconColor string
}

func checkName(name string) error {
	if name == "" || len(name) > maxNameLength {
		return invalidf("Name must be between 1 and %d characters", maxNameLength)
	}
	if strings.ContainsAny(name, "/\\") || name == "." || name == ".." {
		return invalidf("Name must not contain path separators")
	}
	return nil
}

func checkType(typ model.ItemType) error {
	if typ != model.ItemFile && typ != model.ItemFolder {
		return invalidf("Unknown item type %q", typ)
	}
	return nil
}

// remoteName returns the last path segment an item occupies remotely.
func remoteName(typ model.ItemType, name string) string {
	if typ == model.ItemFile {
		return name + model.MarkdownExt
	}
	return name
}

// Workspace returns the user's folder tree, root-level files, trash, linked
// repositories and settings.
func (s *Service) Workspace(ctx context.Context, userID string) (*Workspace, error) {
	idx, err := s.loadIndex(ctx, userID)
	if err != nil {
		return nil, err
	}

	repos, err := s.database.ListRepositories(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("listing repositories: %w", err)
	}
	roots := make(map[string]int64, len(repos))
	for _, repo := range repos {
		root, err := s.rootFolderID(ctx, repo.ID)
		if err != nil {
			return nil, err
		}
		if root != "" {
			roots[root] = repo.ID
		}
	}

	trash, err := s.database.ListTrash(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("listing trash: %w", err)
	}
	installations, err := s.database.ListInstallations(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("listing installations: %w", err)
	}
	settings, err := s.EditorSettings(ctx, userID)
	if err != nil {
		return nil, err
	}
	keybindings, err := s.database.ListKeybindings(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("listing keybindings: %w", err)
	}

	return &Workspace{
		Folders:       idx.buildTree(roots),
		Files:         sortedFiles(idx.filesByFolder[""]),
		Trash:         trash,
		Installations: installations,
		Repositories:  repos,
		Settings:      *settings,
		Keybindings:   keybindings,
	}, nil
}

func (s *Service) loadIndex(ctx context.Context, userID string) (*itemIndex, error) {
	folders, err := s.database.ListFolders(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("listing folders: %w", err)
	}
	files, err := s.database.ListFiles(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("listing files: %w", err)
	}
	return newItemIndex(folders, files), nil
}

// rootFolderID returns the local root folder of a repository, or "" if the
// repository has no root link.
func (s *Service) rootFolderID(ctx context.Context, repoID int64) (string, error) {
	links, err := s.database.ListLinks(ctx, repoID)
	if err != nil {
		return "", fmt.Errorf("listing links: %w", err)
	}
	for _, l := range links {
		if l.IsRoot() {
			return l.ItemID, nil
		}
	}
	return "", nil
}

// GetFile returns a file with its content. Trashed files are not found.
func (s *Service) GetFile(ctx context.Context, userID, id string) (*model.File, error) {
	file, err := s.database.FindFile(ctx, userID, id)
	if err != nil {
		return nil, fmt.Errorf("finding file: %w", err)
	}
	if file == nil {
		return nil, notFound("file")
	}
	trashed, err := s.database.IsTrashed(ctx, userID, model.ItemFile, id)
	if err != nil {
		return nil, fmt.Errorf("checking trash: %w", err)
	}
	if trashed {
		return nil, notFound("file")
	}
	return file, nil
}

// childLink builds the unpushed link row for a new item under parentID, or
// returns nil when the parent is not linked to a repository.
func (s *Service) childLink(ctx context.Context, userID, parentID string, typ model.ItemType, id, name string) (*model.Link, error) {
	if parentID == "" {
		return nil, nil
	}
	parentLink, err := s.database.FindLinkByItem(ctx, model.ItemFolder, parentID)
	if err != nil {
		return nil, fmt.Errorf("finding parent link: %w", err)
	}
	if parentLink == nil {
		return nil, nil
	}
	if err := s.checkSiblingName(ctx, userID, parentID, typ, name, id); err != nil {
		return nil, err
	}
	return &model.Link{
		RepositoryID: parentLink.RepositoryID,
		Type:         typ,
		ItemID:       id,
		Path:         model.JoinPath(parentLink.Path, remoteName(typ, name)),
		State:        model.LinkActive,
	}, nil
}

// checkSiblingName rejects a name that would map two items in a linked
// folder to the same remote path.
func (s *Service) checkSiblingName(ctx context.Context, userID, parentID string, typ model.ItemType, name, selfID string) error {
	idx, err := s.loadIndex(ctx, userID)
	if err != nil {
		return err
	}
	taken := false
	if typ == model.ItemFile {
		for _, f := range idx.filesByFolder[parentID] {
			taken = taken || (f.Name == name && f.ID != selfID)
		}
	} else {
		for _, f := range idx.childFolders[parentID] {
			taken = taken || (f.Name == name && f.ID != selfID)
		}
	}
	if taken {
		return conflictf("An item named %q already exists in this folder", name)
	}
	return nil
}

func (s *Service) requireFolder(ctx context.Context, userID, id string) (*model.Folder, error) {
	folder, err := s.database.FindFolder(ctx, userID, id)
	if err != nil {
		return nil, fmt.Errorf("finding folder: %w", err)
	}
	if folder == nil {
		return nil, notFound("folder")
	}
	return folder, nil
}

// CreateFile creates an empty file. Files created inside a linked folder get
// an unpushed link row at the matching repository path.
func (s *Service) CreateFile(ctx context.Context, userID string, in CreateFileInput) (*model.File, error) {
	if err := checkName(in.Name); err != nil {
		return nil, err
	}
	if in.Icon == "" {
		in.Icon = FileIcons[0]
	}
	if !validIcon(in.Icon) {
		return nil, invalidf("Unknown icon %q", in.Icon)
	}
	if in.FolderID != "" {
		if _, err := s.requireFolder(ctx, userID, in.FolderID); err != nil {
			return nil, err
		}
	}

	now := s.clock.Now()
	file := &model.File{
		ID:        s.idgen.New(),
		UserID:    userID,
		Name:      in.Name,
		Icon:      in.Icon,
		IconColor: IconColors[0],
		FolderID:  in.FolderID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	link, err := s.childLink(ctx, userID, in.FolderID, model.ItemFile, file.ID, file.Name)
	if err != nil {
		return nil, err
	}
	if err := s.database.CreateFile(ctx, file, link); err != nil {
		return nil, fmt.Errorf("creating file: %w", err)
	}
	return file, nil
}

// CreateFolder creates a folder, linked like CreateFile when its parent is linked.
func (s *Service) CreateFolder(ctx context.Context, userID, name, parentID string) (*model.Folder, error) {
	if err := checkName(name); err != nil {
		return nil, err
	}
	if parentID != "" {
		if _, err := s.requireFolder(ctx, userID, parentID); err != nil {
			return nil, err
		}
	}

	folder := &model.Folder{
		ID:        s.idgen.New(),
		UserID:    userID,
		Name:      name,
		ParentID:  parentID,
		CreatedAt: s.clock.Now(),
	}
	link, err := s.childLink(ctx, userID, parentID, model.ItemFolder, folder.ID, folder.Name)
	if err != nil {
		return nil, err
	}
	if err := s.database.CreateFolder(ctx, folder, link); err != nil {
		return nil, fmt.Errorf("creating folder: %w", err)
	}
	return folder, nil
}

// SaveFile stores new content and bumps the file's update time.
func (s *Service) SaveFile(ctx context.Context, userID, id, doc string) error {
	file, err := s.database.FindFile(ctx, userID, id)
	if err != nil {
		return fmt.Errorf("finding file: %w", err)
	}
	if file == nil {
		return notFound("file")
	}
	if err := s.database.SaveFile(ctx, userID, id, doc, s.clock.Now()); err != nil {
		return fmt.Errorf("saving file: %w", err)
	}
	return nil
}

// Rename changes an item's name. A linked item and its linked descendants
// move to new repository paths; their old pushed paths are kept as
// superseded link rows until the next push removes them remotely.
func (s *Service) Rename(ctx context.Context, userID string, in RenameInput) error {
	if err := checkType(in.Type); err != nil {
		return err
	}
	if err := checkName(in.Name); err != nil {
		return err
	}

	idx, err := s.loadIndex(ctx, userID)
	if err != nil {
		return err
	}
	parentID, err := idx.parentOf(in.Type, in.ID)
	if err != nil {
		return err
	}

	if in.Type == model.ItemFile {
		file := idx.files[in.ID]
		icon, color := file.Icon, file.IconColor
		if in.Icon != "" {
			icon = in.Icon
		}
		if in.IconColor != "" {
			color = in.IconColor
		}
		if !validIcon(icon) {
			return invalidf("Unknown icon %q", icon)
		}
		if !validIconColor(color) {
			return invalidf("Unknown icon color %q", color)
		}
		if icon != file.Icon || color != file.IconColor {
			if err := s.database.UpdateFileAppearance(ctx, userID, in.ID, icon, color); err != nil {
				return fmt.Errorf("updating file appearance: %w", err)
			}
		}
	}

	link, err := s.database.FindLinkByItem(ctx, in.Type, in.ID)
	if err != nil {
		return fmt.Errorf("finding link: %w", err)
	}

	var relinks []Relink
	if link != nil && !link.IsRoot() {
		if err := s.checkSiblingName(ctx, userID, parentID, in.Type, in.Name, in.ID); err != nil {
			return err
		}
		newPath := model.JoinPath(model.ParentPath(link.Path), remoteName(in.Type, in.Name))
		relinks, err = s.relinkSubtree(ctx, idx, in.Type, in.ID, link, link.RepositoryID, newPath)
		if err != nil {
			return err
		}
	}

	if err := s.database.RenameItem(ctx, userID, in.Type, in.ID, in.Name, relinks); err != nil {
		return fmt.Errorf("renaming item: %w", err)
	}
	return nil
}

func (idx *itemIndex) parentOf(typ model.ItemType, id string) (string, error) {
	if typ == model.ItemFile {
		f, ok := idx.files[id]
		if !ok {
			return "", notFound("file")
		}
		return f.FolderID, nil
	}
	f, ok := idx.folders[id]
	if !ok {
		return "", notFound("folder")
	}
	return f.ParentID, nil
}

func (idx *itemIndex) nameOf(typ model.ItemType, id string) string {
	if typ == model.ItemFile {
		return idx.files[id].Name
	}
	return idx.folders[id].Name
}

// relinkSubtree plans link changes for an item moving to newPath in repoID
// (0 and "" to unlink) together with everything beneath it.
func (s *Service) relinkSubtree(ctx context.Context, idx *itemIndex, typ model.ItemType, id string, link *model.Link, repoID int64, newPath string) ([]Relink, error) {
	active := make(map[string]*model.Link)
	if link != nil {
		links, err := s.database.ListLinks(ctx, link.RepositoryID)
		if err != nil {
			return nil, fmt.Errorf("listing links: %w", err)
		}
		for _, l := range links {
			if l.State == model.LinkActive && l.ItemID != "" {
				active[linkKey(l.Type, l.ItemID)] = l
			}
		}
	}

	var relinks []Relink
	add := func(typ model.ItemType, itemID, path string) {
		old := active[linkKey(typ, itemID)]
		if old == nil && newPath == "" {
			return
		}
		if old != nil && old.RepositoryID == repoID && old.Path == path {
			return
		}
		relinks = append(relinks, Relink{Type: typ, ItemID: itemID, Old: old, RepositoryID: repoID, Path: path})
	}
	add(typ, id, newPath)

	if typ == model.ItemFolder {
		var walk func(folderID, path string)
		walk = func(folderID, path string) {
			for _, f := range idx.filesByFolder[folderID] {
				add(model.ItemFile, f.ID, childPath(newPath, path, remoteName(model.ItemFile, f.Name)))
			}
			for _, c := range idx.childFolders[folderID] {
				p := childPath(newPath, path, c.Name)
				add(model.ItemFolder, c.ID, p)
				walk(c.ID, p)
			}
		}
		walk(id, newPath)
	}
	return relinks, nil
}

// childPath joins a child segment under parent unless the subtree is being unlinked.
func childPath(root, parent, name string) string {
	if root == "" {
		return ""
	}
	return model.JoinPath(parent, name)
}

func linkKey(typ model.ItemType, id string) string { return string(typ) + ":" + id }

// MoveTo moves an item into destinationID, or to the top level when it is
// empty. Links follow the destination as for Rename.
func (s *Service) MoveTo(ctx context.Context, userID string, typ model.ItemType, id, destinationID string) error {
	if err := checkType(typ); err != nil {
		return err
	}
	idx, err := s.loadIndex(ctx, userID)
	if err != nil {
		return err
	}
	currentParent, err := idx.parentOf(typ, id)
	if err != nil {
		return err
	}
	if destinationID != "" {
		if _, ok := idx.folders[destinationID]; !ok {
			return notFound("destination folder")
		}
		if typ == model.ItemFolder && idx.isDescendant(destinationID, id) {
			return invalidf("Cannot move a folder into itself")
		}
	}
	if currentParent == destinationID {
		return nil
	}

	link, err := s.database.FindLinkByItem(ctx, typ, id)
	if err != nil {
		return fmt.Errorf("finding link: %w", err)
	}
	if link != nil && link.IsRoot() {
		return invalidf("Cannot move a repository folder")
	}

	var repoID int64
	var newPath string
	if destinationID != "" {
		destLink, err := s.database.FindLinkByItem(ctx, model.ItemFolder, destinationID)
		if err != nil {
			return fmt.Errorf("finding destination link: %w", err)
		}
		if destLink != nil {
			name := idx.nameOf(typ, id)
			if err := s.checkSiblingName(ctx, userID, destinationID, typ, name, id); err != nil {
				return err
			}
			repoID = destLink.RepositoryID
			newPath = model.JoinPath(destLink.Path, remoteName(typ, name))
		}
	}

	relinks, err := s.relinkSubtree(ctx, idx, typ, id, link, repoID, newPath)
	if err != nil {
		return err
	}
	if err := s.database.MoveItem(ctx, userID, typ, id, destinationID, relinks); err != nil {
		return fmt.Errorf("moving item: %w", err)
	}
	return nil
}

// MoveToTrash soft-deletes an item.
func (s *Service) MoveToTrash(ctx context.Context, userID string, typ model.ItemType, id string) error {
	if err := checkType(typ); err != nil {
		return err
	}
	idx, err := s.loadIndex(ctx, userID)
	if err != nil {
		return err
	}
	if _, err := idx.parentOf(typ, id); err != nil {
		return err
	}
	trashed, err := s.database.IsTrashed(ctx, userID, typ, id)
	if err != nil {
		return fmt.Errorf("checking trash: %w", err)
	}
	if trashed {
		return nil
	}

	entry := &model.TrashEntry{UserID: userID, CreatedAt: s.clock.Now()}
	if typ == model.ItemFile {
		entry.FileID = id
	} else {
		entry.FolderID = id
	}
	if err := s.database.TrashItem(ctx, entry); err != nil {
		return fmt.Errorf("trashing item: %w", err)
	}
	return nil
}

// Restore removes the trash markers of an item and everything beneath it.
func (s *Service) Restore(ctx context.Context, userID string, typ model.ItemType, id string) error {
	if err := checkType(typ); err != nil {
		return err
	}
	idx, err := s.loadIndex(ctx, userID)
	if err != nil {
		return err
	}
	if _, err := idx.parentOf(typ, id); err != nil {
		return err
	}

	var folderIDs, fileIDs []string
	if typ == model.ItemFile {
		fileIDs = []string{id}
	} else {
		folderIDs, fileIDs = idx.subtree(id)
	}
	if err := s.database.RemoveTrash(ctx, userID, folderIDs, fileIDs); err != nil {
		return fmt.Errorf("restoring items: %w", err)
	}
	return nil
}

// Delete hard-deletes an item and everything beneath it. Deleting the root
// folder of a repository disconnects the repository.
func (s *Service) Delete(ctx context.Context, userID string, typ model.ItemType, id string) error {
	if err := checkType(typ); err != nil {
		return err
	}
	idx, err := s.loadIndex(ctx, userID)
	if err != nil {
		return err
	}
	if _, err := idx.parentOf(typ, id); err != nil {
		return err
	}

	if typ == model.ItemFile {
		if err := s.database.DeleteItems(ctx, userID, nil, []string{id}); err != nil {
			return fmt.Errorf("deleting file: %w", err)
		}
		return nil
	}

	folderIDs, fileIDs := idx.subtree(id)
	link, err := s.database.FindLinkByItem(ctx, model.ItemFolder, id)
	if err != nil {
		return fmt.Errorf("finding link: %w", err)
	}
	if link != nil && link.IsRoot() {
		if err := s.database.DeleteRepository(ctx, link.RepositoryID, folderIDs, fileIDs); err != nil {
			return fmt.Errorf("deleting repository: %w", err)
		}
		s.logger.Info("repository disconnected", "repository_id", link.RepositoryID)
		return nil
	}

	if err := s.database.DeleteItems(ctx, userID, folderIDs, fileIDs); err != nil {
		return fmt.Errorf("deleting folder: %w", err)
	}
	return nil
}
