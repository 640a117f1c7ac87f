package notes

import (
	"context"
	"fmt"
	"sort"

	"mdnotes/internal/model"
)

// PullInput selects the repository root folder to pull and, optionally, a
// folder beneath it that limits the pull.
type PullInput struct {
	RootFolderID   string
	TargetFolderID string
}

// PullResult counts what a pull changed locally.
type PullResult struct {
	TreeSha  string
	Renamed  int
	Updated  int
	Restored int
	Inserted int
	Deleted  int
	Ignored  int
	Skipped  int // entries left for the next pull because their blob could not be fetched
}

// Pull brings the local mirror of one repository into agreement with the
// default branch. It runs as a sequence of transactional phases: renames,
// content updates, trash restores, insertions, deletions, root sha.
func (s *Service) Pull(ctx context.Context, userID string, in PullInput) (*PullResult, error) {
	if err := s.requireGitHub(); err != nil {
		return nil, err
	}

	rootLink, err := s.database.FindLinkByItem(ctx, model.ItemFolder, in.RootFolderID)
	if err != nil {
		return nil, fmt.Errorf("finding root link: %w", err)
	}
	if rootLink == nil || !rootLink.IsRoot() {
		return nil, invalidf("Folder is not connected to a repository")
	}
	repo, err := s.database.FindRepository(ctx, rootLink.RepositoryID)
	if err != nil {
		return nil, fmt.Errorf("finding repository: %w", err)
	}
	if repo == nil || repo.UserID != userID {
		return nil, notFound("repository")
	}

	scope := ""
	if in.TargetFolderID != "" && in.TargetFolderID != in.RootFolderID {
		target, err := s.database.FindLinkByItem(ctx, model.ItemFolder, in.TargetFolderID)
		if err != nil {
			return nil, fmt.Errorf("finding target link: %w", err)
		}
		if target == nil || target.RepositoryID != repo.ID {
			return nil, invalidf("Target folder is not part of the repository")
		}
		scope = target.Path
	}

	op := s.startOperation(ctx, userID, repo.ID, OperationPull)
	result, err := s.pull(ctx, userID, repo, rootLink, scope)
	s.finishOperation(ctx, op, err)
	if err != nil {
		s.logger.Error("pull failed", "repository", repo.FullName, "error", err)
		return nil, err
	}
	s.logger.Info("pull complete", "repository", repo.FullName, "scope", scope,
		"renamed", result.Renamed, "updated", result.Updated, "restored", result.Restored,
		"inserted", result.Inserted, "deleted", result.Deleted, "skipped", result.Skipped)
	return result, nil
}

func (s *Service) pull(ctx context.Context, userID string, repo *model.Repository, rootLink *model.Link, scope string) (*PullResult, error) {
	ref := repo.Ref()
	tree, err := s.github.GetTree(ctx, ref, repo.DefaultBranch)
	if err != nil {
		return nil, remote("fetching remote tree", err)
	}
	if tree.Truncated {
		s.logger.Warn("remote tree listing truncated", "repository", repo.FullName)
	}

	links, err := s.database.ListLinks(ctx, repo.ID)
	if err != nil {
		return nil, fmt.Errorf("listing links: %w", err)
	}

	diff := DiffTree(tree.Entries, links, scope)
	result := &PullResult{TreeSha: tree.Sha, Ignored: len(diff.Ignored)}

	contents := s.fetchBlobs(ctx, ref, append(matchEntries(diff.Changed()), diff.New...))

	parents := folderPaths(rootLink, links, diff)
	newFolders := make(map[string]bool)
	for _, e := range diff.New {
		if !e.IsBlob() {
			newFolders[e.Path] = true
		}
	}

	// Renames and moves.
	var renames []RenameUpdate
	var deferred []deferredReparent
	for _, m := range diff.Renamed() {
		if m.Link.ItemID == "" {
			continue
		}
		u := RenameUpdate{
			LinkID: m.Link.ID,
			Type:   m.Link.Type,
			ItemID: m.Link.ItemID,
			Name:   model.NameFromPath(m.Entry.Path),
			Path:   m.Entry.Path,
		}
		parentPath := model.ParentPath(m.Entry.Path)
		if id, ok := parents[parentPath]; ok {
			u.ParentID, u.Reparent = id, true
		} else if newFolders[parentPath] {
			deferred = append(deferred, deferredReparent{update: u, parentPath: parentPath})
		}
		renames = append(renames, u)
	}
	if len(renames) > 0 {
		if err := s.database.ApplyRenames(ctx, userID, renames); err != nil {
			return nil, fmt.Errorf("applying renames: %w", err)
		}
	}
	result.Renamed = len(renames)

	// Content updates.
	var updates []ContentUpdate
	for _, m := range diff.Changed() {
		if m.Link.ItemID == "" {
			continue
		}
		u := ContentUpdate{LinkID: m.Link.ID, Type: m.Link.Type, ItemID: m.Link.ItemID, Sha: m.Entry.Sha}
		if m.Entry.IsBlob() {
			doc, ok := contents[m.Entry.Sha]
			if !ok {
				result.Skipped++
				continue
			}
			u.Doc = &doc
		}
		updates = append(updates, u)
	}
	if len(updates) > 0 {
		if err := s.database.ApplyContentUpdates(ctx, userID, updates, s.clock.Now()); err != nil {
			return nil, fmt.Errorf("applying content updates: %w", err)
		}
	}
	for _, u := range updates {
		if u.Doc != nil {
			result.Updated++
		}
	}

	// Items still present remotely leave the trash.
	var restoreFolders, restoreFiles []string
	for _, m := range diff.Existing {
		if m.Link.ItemID == "" {
			continue
		}
		if m.Link.Type == model.ItemFile {
			restoreFiles = append(restoreFiles, m.Link.ItemID)
		} else {
			restoreFolders = append(restoreFolders, m.Link.ItemID)
		}
	}
	if len(restoreFolders)+len(restoreFiles) > 0 {
		restored, err := s.countTrashed(ctx, userID, restoreFolders, restoreFiles)
		if err != nil {
			return nil, err
		}
		if err := s.database.RemoveTrash(ctx, userID, restoreFolders, restoreFiles); err != nil {
			return nil, fmt.Errorf("restoring from trash: %w", err)
		}
		result.Restored = restored
	}

	// Insertions, parents before children, in one transaction.
	ins, skipped := s.planInsert(userID, repo.ID, diff.New, contents, parents, rootLink.ItemID)
	result.Skipped += skipped
	for _, d := range deferred {
		if id, ok := parents[d.parentPath]; ok {
			d.update.ParentID, d.update.Reparent = id, true
			ins.Reparents = append(ins.Reparents, d.update)
		}
	}
	for _, l := range diff.Resolved {
		ins.DropLinkIDs = append(ins.DropLinkIDs, l.ID)
	}
	if !ins.Empty() {
		if err := s.database.InsertPulled(ctx, userID, ins); err != nil {
			return nil, fmt.Errorf("inserting new items: %w", err)
		}
	}
	result.Inserted = len(ins.Folders) + len(ins.Files)

	// Deletions confirmed by the remote listing.
	if len(diff.Removed) > 0 {
		del, err := s.planDelete(ctx, userID, diff.Removed)
		if err != nil {
			return nil, err
		}
		if !del.Empty() {
			if err := s.database.DeletePulled(ctx, userID, del); err != nil {
				return nil, fmt.Errorf("deleting removed items: %w", err)
			}
		}
		result.Deleted = len(del.FolderIDs) + len(del.FileIDs)
	}

	if err := s.database.UpdateLinkShas(ctx, map[int64]string{rootLink.ID: tree.Sha}, nil); err != nil {
		return nil, fmt.Errorf("updating root sha: %w", err)
	}
	return result, nil
}

type deferredReparent struct {
	update     RenameUpdate
	parentPath string
}

// folderPaths maps remote folder paths to local folder ids as they will be
// after the pull: "" is the root folder, current link paths are replaced by
// the paths the differ matched.
func folderPaths(rootLink *model.Link, links []*model.Link, diff *Diff) map[string]string {
	parents := map[string]string{"": rootLink.ItemID}
	for _, l := range links {
		if l.Type == model.ItemFolder && l.State == model.LinkActive && l.ItemID != "" && !l.IsRoot() {
			parents[l.Path] = l.ItemID
		}
	}
	for _, m := range diff.Renamed() {
		if m.Link.Type == model.ItemFolder {
			delete(parents, m.Link.Path)
		}
	}
	for _, l := range diff.Removed {
		if l.Type == model.ItemFolder {
			delete(parents, l.Path)
		}
	}
	for _, m := range diff.Existing {
		if m.Link.Type == model.ItemFolder && m.Link.ItemID != "" {
			parents[m.Entry.Path] = m.Link.ItemID
		}
	}
	return parents
}

func matchEntries(matches []Match) []model.RemoteTreeEntry {
	var out []model.RemoteTreeEntry
	for _, m := range matches {
		out = append(out, m.Entry)
	}
	return out
}

// fetchBlobs fetches the content of every blob entry. Failed blobs are
// logged and left out of the result.
func (s *Service) fetchBlobs(ctx context.Context, ref model.RepoRef, entries []model.RemoteTreeEntry) map[string]string {
	seen := make(map[string]bool)
	var shas []string
	for _, e := range entries {
		if e.IsBlob() && !seen[e.Sha] {
			seen[e.Sha] = true
			shas = append(shas, e.Sha)
		}
	}
	if len(shas) == 0 {
		return map[string]string{}
	}
	contents, err := s.github.GetBlobs(ctx, ref, shas)
	if err != nil {
		s.logger.Warn("some blobs could not be fetched", "requested", len(shas), "fetched", len(contents), "error", err)
	}
	if contents == nil {
		contents = map[string]string{}
	}
	return contents
}

// planInsert builds the rows for new remote entries. Entries must be ordered
// parents first. parents is extended with every folder created. Files whose
// blob is missing from contents are skipped and counted.
func (s *Service) planInsert(userID string, repoID int64, entries []model.RemoteTreeEntry, contents map[string]string, parents map[string]string, fallbackParent string) (*PullInsert, int) {
	now := s.clock.Now()
	ins := &PullInsert{}
	skipped := 0

	ordered := append([]model.RemoteTreeEntry(nil), entries...)
	sortEntries(ordered)

	for _, e := range ordered {
		parentID, ok := parents[model.ParentPath(e.Path)]
		if !ok {
			parentID = fallbackParent
		}
		link := &model.Link{RepositoryID: repoID, Sha: e.Sha, Path: e.Path, State: model.LinkActive}

		if !e.IsBlob() {
			folder := &model.Folder{
				ID:        s.idgen.New(),
				UserID:    userID,
				Name:      model.NameFromPath(e.Path),
				ParentID:  parentID,
				CreatedAt: now,
			}
			parents[e.Path] = folder.ID
			link.Type, link.ItemID = model.ItemFolder, folder.ID
			ins.Folders = append(ins.Folders, folder)
			ins.Links = append(ins.Links, link)
			continue
		}

		doc, ok := contents[e.Sha]
		if !ok {
			skipped++
			continue
		}
		file := &model.File{
			ID:        s.idgen.New(),
			UserID:    userID,
			Name:      model.NameFromPath(e.Path),
			Icon:      FileIcons[0],
			IconColor: IconColors[0],
			Doc:       doc,
			FolderID:  parentID,
			CreatedAt: now,
			UpdatedAt: now,
		}
		link.Type, link.ItemID = model.ItemFile, file.ID
		ins.Files = append(ins.Files, file)
		ins.Links = append(ins.Links, link)
	}
	return ins, skipped
}

// planDelete turns removed links into deletions. A removed folder that still
// holds items which are not removed themselves is kept, and its link is
// reset to unpushed so the next push recreates it remotely.
func (s *Service) planDelete(ctx context.Context, userID string, removed []*model.Link) (*PullDelete, error) {
	idx, err := s.loadIndex(ctx, userID)
	if err != nil {
		return nil, err
	}

	del := &PullDelete{}
	removedItems := make(map[string]bool)
	var folders []*model.Link
	for _, l := range removed {
		switch {
		case l.ItemID == "":
			del.LinkIDs = append(del.LinkIDs, l.ID)
		case l.Type == model.ItemFile:
			if _, ok := idx.files[l.ItemID]; ok {
				del.FileIDs = append(del.FileIDs, l.ItemID)
			}
			removedItems[linkKey(l.Type, l.ItemID)] = true
			del.LinkIDs = append(del.LinkIDs, l.ID)
		default:
			removedItems[linkKey(l.Type, l.ItemID)] = true
			folders = append(folders, l)
		}
	}

	// Deepest folders first so a kept child keeps its ancestors.
	sort.Slice(folders, func(i, j int) bool { return depth(folders[i].Path) > depth(folders[j].Path) })
	for _, l := range folders {
		if _, ok := idx.folders[l.ItemID]; !ok {
			del.LinkIDs = append(del.LinkIDs, l.ID)
			continue
		}
		folderIDs, fileIDs := idx.subtree(l.ItemID)
		keep := false
		for _, id := range folderIDs[1:] {
			keep = keep || !removedItems[linkKey(model.ItemFolder, id)]
		}
		for _, id := range fileIDs {
			keep = keep || !removedItems[linkKey(model.ItemFile, id)]
		}
		if keep {
			delete(removedItems, linkKey(model.ItemFolder, l.ItemID))
			del.ResetLinkIDs = append(del.ResetLinkIDs, l.ID)
			s.logger.Info("keeping folder with unpushed items", "path", l.Path)
			continue
		}
		del.FolderIDs = append(del.FolderIDs, l.ItemID)
		del.LinkIDs = append(del.LinkIDs, l.ID)
	}
	return del, nil
}

// countTrashed counts how many of the given items carry a trash marker.
func (s *Service) countTrashed(ctx context.Context, userID string, folderIDs, fileIDs []string) (int, error) {
	trash, err := s.database.ListTrash(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("listing trash: %w", err)
	}
	wanted := make(map[string]bool, len(folderIDs)+len(fileIDs))
	for _, id := range folderIDs {
		wanted[linkKey(model.ItemFolder, id)] = true
	}
	for _, id := range fileIDs {
		wanted[linkKey(model.ItemFile, id)] = true
	}
	n := 0
	for _, t := range trash {
		if (t.FolderID != "" && wanted[linkKey(model.ItemFolder, t.FolderID)]) ||
			(t.FileID != "" && wanted[linkKey(model.ItemFile, t.FileID)]) {
			n++
		}
	}
	return n, nil
}
