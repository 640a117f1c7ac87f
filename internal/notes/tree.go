package notes

import (
	"sort"
	"time"

	"mdnotes/internal/model"
)

// itemIndex is an in-memory view of a user's folder hierarchy.
type itemIndex struct {
	folders       map[string]*model.Folder
	files         map[string]*model.File
	childFolders  map[string][]*model.Folder // keyed by parent id, "" for top level
	filesByFolder map[string][]*model.File   // keyed by folder id, "" for root level
}

func newItemIndex(folders []*model.Folder, files []*model.File) *itemIndex {
	idx := &itemIndex{
		folders:       make(map[string]*model.Folder, len(folders)),
		files:         make(map[string]*model.File, len(files)),
		childFolders:  make(map[string][]*model.Folder),
		filesByFolder: make(map[string][]*model.File),
	}
	for _, f := range folders {
		idx.folders[f.ID] = f
		idx.childFolders[f.ParentID] = append(idx.childFolders[f.ParentID], f)
	}
	for _, f := range files {
		idx.files[f.ID] = f
		idx.filesByFolder[f.FolderID] = append(idx.filesByFolder[f.FolderID], f)
	}
	return idx
}

// subtree returns the folder and every folder and file beneath it.
// The folder list is ordered parents first.
func (idx *itemIndex) subtree(folderID string) (folderIDs, fileIDs []string) {
	queue := []string{folderID}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		folderIDs = append(folderIDs, id)
		for _, f := range idx.filesByFolder[id] {
			fileIDs = append(fileIDs, f.ID)
		}
		for _, c := range idx.childFolders[id] {
			queue = append(queue, c.ID)
		}
	}
	return folderIDs, fileIDs
}

// isDescendant reports whether folderID is ancestorID or lies beneath it.
func (idx *itemIndex) isDescendant(folderID, ancestorID string) bool {
	seen := make(map[string]bool)
	for id := folderID; id != "" && !seen[id]; {
		if id == ancestorID {
			return true
		}
		seen[id] = true
		f, ok := idx.folders[id]
		if !ok {
			return false
		}
		id = f.ParentID
	}
	return false
}

// FolderNode is a folder with its children for the workspace sidebar.
// UpdatedAt is the newest UpdatedAt of any file beneath the folder.
type FolderNode struct {
	*model.Folder
	Folders      []*FolderNode
	Files        []*model.File
	UpdatedAt    time.Time
	RepositoryID int64
}

// buildTree arranges folders into nodes. roots maps repository root folder
// ids to repository ids.
func (idx *itemIndex) buildTree(roots map[string]int64) []*FolderNode {
	var build func(parentID string) []*FolderNode
	build = func(parentID string) []*FolderNode {
		children := idx.childFolders[parentID]
		nodes := make([]*FolderNode, 0, len(children))
		for _, f := range children {
			node := &FolderNode{
				Folder:       f,
				Folders:      build(f.ID),
				Files:        sortedFiles(idx.filesByFolder[f.ID]),
				UpdatedAt:    f.CreatedAt,
				RepositoryID: roots[f.ID],
			}
			for _, file := range node.Files {
				if file.UpdatedAt.After(node.UpdatedAt) {
					node.UpdatedAt = file.UpdatedAt
				}
			}
			for _, c := range node.Folders {
				if c.UpdatedAt.After(node.UpdatedAt) {
					node.UpdatedAt = c.UpdatedAt
				}
			}
			nodes = append(nodes, node)
		}
		sort.Slice(nodes, func(i, j int) bool { return nodes[i].Name < nodes[j].Name })
		return nodes
	}
	return build("")
}

func sortedFiles(files []*model.File) []*model.File {
	out := append([]*model.File(nil), files...)
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
