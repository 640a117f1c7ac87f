package notes

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"

	"mdnotes/internal/model"
)

const maxCommitMessageLength = 1000

// PushInput selects the local item to push and where to push it.
type PushInput struct {
	ItemID            string
	Type              model.ItemType
	Branch            string // defaults to the repository's default branch
	CommitMessage     string
	CreatePullRequest bool
	PullRequestTitle  string
	PullRequestBody   string
}

// PushResult describes the remote side of a push.
type PushResult struct {
	Branch      string
	CommitSha   string
	Written     int
	Deleted     int
	Moved       int
	UpToDate    bool
	PullRequest *model.PullRequest
}

// Push uploads a file, or a folder with everything beneath it, to the
// repository it is linked to. Local shas are updated only for pushes to the
// default branch; other branches may get a pull request instead.
// A remote failure leaves local state untouched.
func (s *Service) Push(ctx context.Context, userID string, in PushInput) (*PushResult, error) {
	if err := s.requireGitHub(); err != nil {
		return nil, err
	}
	if err := checkType(in.Type); err != nil {
		return nil, err
	}
	if len(in.CommitMessage) > maxCommitMessageLength {
		return nil, invalidf("Commit message must be at most %d characters", maxCommitMessageLength)
	}

	link, err := s.database.FindLinkByItem(ctx, in.Type, in.ItemID)
	if err != nil {
		return nil, fmt.Errorf("finding link: %w", err)
	}
	if link == nil {
		return nil, invalidf("Item is not connected to a repository")
	}
	repo, err := s.database.FindRepository(ctx, link.RepositoryID)
	if err != nil {
		return nil, fmt.Errorf("finding repository: %w", err)
	}
	if repo == nil || repo.UserID != userID {
		return nil, notFound("repository")
	}

	branch := strings.TrimSpace(in.Branch)
	if branch == "" {
		branch = repo.DefaultBranch
	}
	message := strings.TrimSpace(in.CommitMessage)
	if message == "" {
		message = "Update " + displayPath(repo, link)
	}

	op := s.startOperation(ctx, userID, repo.ID, OperationPush)
	var result *PushResult
	if in.Type == model.ItemFile {
		result, err = s.pushFile(ctx, userID, repo, link, branch, message)
	} else {
		result, err = s.pushFolder(ctx, userID, repo, link, branch, message)
	}
	if err == nil && !result.UpToDate && branch != repo.DefaultBranch && in.CreatePullRequest {
		result.PullRequest, err = s.openPullRequest(ctx, repo, branch, message, in)
	}
	s.finishOperation(ctx, op, err)
	if err != nil {
		s.logger.Error("push failed", "repository", repo.FullName, "branch", branch, "error", err)
		return nil, err
	}
	s.logger.Info("push complete", "repository", repo.FullName, "branch", branch,
		"commit", result.CommitSha, "written", result.Written, "deleted", result.Deleted, "up_to_date", result.UpToDate)
	return result, nil
}

func displayPath(repo *model.Repository, link *model.Link) string {
	if link.Path == "" {
		return repo.FullName
	}
	return link.Path
}

func (s *Service) pushFile(ctx context.Context, userID string, repo *model.Repository, link *model.Link, branch, message string) (*PushResult, error) {
	file, err := s.database.FindFile(ctx, userID, link.ItemID)
	if err != nil {
		return nil, fmt.Errorf("finding file: %w", err)
	}
	if file == nil {
		return nil, notFound("file")
	}

	ref := repo.Ref()
	current, err := s.github.GetContent(ctx, ref, link.Path, branch)
	if err != nil {
		return nil, remote("reading remote file", err)
	}

	result := &PushResult{Branch: branch}
	localSha := BlobSha(file.Doc)
	newSha := localSha
	if current != nil && current.Sha == localSha {
		result.UpToDate = true
	} else {
		put := model.PutContentInput{
			Message: message,
			Content: base64.StdEncoding.EncodeToString([]byte(file.Doc)),
			Branch:  branch,
		}
		if current != nil {
			put.Sha = current.Sha
		}
		written, err := s.github.PutContent(ctx, ref, link.Path, put)
		if err != nil {
			return nil, remote("writing remote file", err)
		}
		newSha = written.Sha
		result.Written = 1
	}

	if branch == repo.DefaultBranch && link.Sha != newSha {
		if err := s.database.UpdateLinkShas(ctx, map[int64]string{link.ID: newSha}, nil); err != nil {
			return nil, fmt.Errorf("updating link sha: %w", err)
		}
	}
	return result, nil
}

func (s *Service) pushFolder(ctx context.Context, userID string, repo *model.Repository, link *model.Link, branch, message string) (*PushResult, error) {
	ref := repo.Ref()
	scope := link.Path

	commitSha, err := s.github.GetReference(ctx, ref, branch)
	if err != nil {
		return nil, remote("resolving branch", err)
	}
	baseTreeSha, err := s.github.GetCommitTree(ctx, ref, commitSha)
	if err != nil {
		return nil, remote("reading commit", err)
	}
	baseTree, err := s.github.GetTree(ctx, ref, baseTreeSha)
	if err != nil {
		return nil, remote("reading tree", err)
	}
	if baseTree.Truncated {
		s.logger.Warn("remote tree listing truncated", "repository", repo.FullName)
	}
	base := make(map[string]model.RemoteTreeEntry, len(baseTree.Entries))
	for _, e := range baseTree.Entries {
		base[e.Path] = e
	}

	links, err := s.database.ListLinks(ctx, repo.ID)
	if err != nil {
		return nil, fmt.Errorf("listing links: %w", err)
	}
	docs, err := s.scopeDocs(ctx, userID, links, scope)
	if err != nil {
		return nil, err
	}

	var entries []model.TreeEntryInput
	written := make(map[string]bool)
	live := make(map[string]bool)
	for _, l := range links {
		if l.Type != model.ItemFile || l.State != model.LinkActive || !model.WithinPath(l.Path, scope) {
			continue
		}
		doc, ok := docs[l.ItemID]
		if !ok {
			continue
		}
		live[l.Path] = true
		if b, ok := base[l.Path]; ok && b.Sha == BlobSha(doc) {
			continue
		}
		content := doc
		entries = append(entries, model.TreeEntryInput{Path: l.Path, Mode: model.ModeFile, Type: model.EntryBlob, Content: &content})
		written[l.Path] = true
	}

	deleted := make(map[string]bool)
	moved := 0
	retired := retiredPaths(links, scope)
	for _, b := range baseTree.Entries {
		if !b.IsBlob() || live[b.Path] || !model.WithinPath(b.Path, scope) {
			continue
		}
		removal := model.TreeEntryInput{Path: b.Path, Mode: model.ModeFile, Type: model.EntryBlob}
		if retired.covers(b.Path) {
			deleted[b.Path] = true
			entries = append(entries, removal)
			continue
		}
		// Blobs the app does not mirror follow their folder.
		target := retired.movedTo(b.Path)
		if target == "" || written[target] || deleted[target] {
			continue
		}
		if _, taken := base[target]; taken {
			continue
		}
		written[target] = true
		moved++
		sha := b.Sha
		entries = append(entries, removal, model.TreeEntryInput{Path: target, Mode: b.Mode, Type: model.EntryBlob, Sha: &sha})
	}

	result := &PushResult{Branch: branch, CommitSha: commitSha, Written: len(written) - moved, Deleted: len(deleted), Moved: moved}
	finalTree := baseTree
	if len(entries) == 0 {
		result.UpToDate = true
	} else {
		treeSha, err := s.github.CreateTree(ctx, ref, baseTreeSha, entries)
		if err != nil {
			return nil, remote("creating tree", err)
		}
		newCommit, err := s.github.CreateCommit(ctx, ref, message, treeSha, []string{commitSha})
		if err != nil {
			return nil, remote("creating commit", err)
		}
		if err := s.github.UpdateReference(ctx, ref, branch, newCommit); err != nil {
			return nil, remote("updating branch", err)
		}
		result.CommitSha = newCommit

		if branch != repo.DefaultBranch {
			return result, nil
		}
		// The tree response does not echo the shas of new entries.
		finalTree, err = s.github.GetTree(ctx, ref, treeSha)
		if err != nil {
			return nil, remote("reading new tree", err)
		}
	}
	if branch != repo.DefaultBranch {
		return result, nil
	}

	shas, drop := syncShas(links, scope, finalTree, docs)
	if len(shas) > 0 || len(drop) > 0 {
		if err := s.database.UpdateLinkShas(ctx, shas, drop); err != nil {
			return nil, fmt.Errorf("updating link shas: %w", err)
		}
	}
	return result, nil
}

// retiredLinks indexes the superseded and pending-delete rows under a push
// scope.
type retiredLinks struct {
	files   map[string]bool
	folders map[string]*model.Link
	byID    map[int64]*model.Link
}

func retiredPaths(links []*model.Link, scope string) *retiredLinks {
	r := &retiredLinks{
		files:   make(map[string]bool),
		folders: make(map[string]*model.Link),
		byID:    make(map[int64]*model.Link, len(links)),
	}
	for _, l := range links {
		r.byID[l.ID] = l
		if l.IsRoot() || !model.WithinPath(l.Path, scope) {
			continue
		}
		switch {
		case l.Type == model.ItemFile && l.State != model.LinkActive:
			r.files[l.Path] = true
		case l.Type == model.ItemFolder:
			// An active folder at a retired path keeps its contents in place.
			if prev := r.folders[l.Path]; prev == nil || l.State == model.LinkActive {
				r.folders[l.Path] = l
			}
		}
	}
	return r
}

// covers reports whether p is the pushed path of a retired file.
func (r *retiredLinks) covers(p string) bool { return r.files[p] }

// movedTo returns the path p takes when its nearest linked folder was
// renamed or moved, or "" when p stays where it is.
func (r *retiredLinks) movedTo(p string) string {
	for dir := model.ParentPath(p); dir != ""; dir = model.ParentPath(dir) {
		l, ok := r.folders[dir]
		if !ok {
			continue
		}
		if l.State != model.LinkSuperseded {
			return ""
		}
		next := r.successor(l)
		if next == nil {
			return ""
		}
		return model.JoinPath(next.Path, strings.TrimPrefix(p, dir+"/"))
	}
	return ""
}

// successor follows a superseded row to the active link that replaced it.
func (r *retiredLinks) successor(l *model.Link) *model.Link {
	for i := 0; i <= len(r.byID) && l != nil; i++ {
		if l.State == model.LinkActive {
			if l.Type != model.ItemFolder || l.Path == "" {
				return nil
			}
			return l
		}
		l = r.byID[l.SuccessorID]
	}
	return nil
}

// scopeDocs loads the content of every linked file under scope that is not
// in the trash, keyed by file id.
func (s *Service) scopeDocs(ctx context.Context, userID string, links []*model.Link, scope string) (map[string]string, error) {
	idx, err := s.loadIndex(ctx, userID)
	if err != nil {
		return nil, err
	}
	trashed, err := s.trashedSet(ctx, userID, idx)
	if err != nil {
		return nil, err
	}

	var ids []string
	for _, l := range links {
		if l.Type == model.ItemFile && l.State == model.LinkActive && l.ItemID != "" &&
			model.WithinPath(l.Path, scope) && !trashed[linkKey(model.ItemFile, l.ItemID)] {
			ids = append(ids, l.ItemID)
		}
	}
	if len(ids) == 0 {
		return map[string]string{}, nil
	}
	files, err := s.database.ListFileContents(ctx, userID, ids)
	if err != nil {
		return nil, fmt.Errorf("loading file contents: %w", err)
	}
	docs := make(map[string]string, len(files))
	for _, f := range files {
		docs[f.ID] = f.Doc
	}
	return docs, nil
}

// trashedSet returns the items that are trashed themselves or lie beneath a
// trashed folder.
func (s *Service) trashedSet(ctx context.Context, userID string, idx *itemIndex) (map[string]bool, error) {
	trash, err := s.database.ListTrash(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("listing trash: %w", err)
	}
	set := make(map[string]bool)
	for _, t := range trash {
		if t.FileID != "" {
			set[linkKey(model.ItemFile, t.FileID)] = true
			continue
		}
		folderIDs, fileIDs := idx.subtree(t.FolderID)
		for _, id := range folderIDs {
			set[linkKey(model.ItemFolder, id)] = true
		}
		for _, id := range fileIDs {
			set[linkKey(model.ItemFile, id)] = true
		}
	}
	return set, nil
}

// syncShas computes the link shas to store after a push. File links take the
// remote sha only when it is the hash of their local content. Folder links
// under scope and the folders above it take the remote tree sha. Superseded
// and pending-delete links under scope are dropped once their path is gone,
// holds different content, or belongs to a live item again.
func syncShas(links []*model.Link, scope string, tree *model.RemoteTree, docs map[string]string) (map[int64]string, []int64) {
	remoteByPath := make(map[string]model.RemoteTreeEntry, len(tree.Entries))
	for _, e := range tree.Entries {
		remoteByPath[e.Path] = e
	}

	active := make(map[typedKey]bool)
	for _, l := range links {
		if l.State == model.LinkActive {
			active[typedKey{l.Type, l.Path}] = true
		}
	}

	shas := make(map[int64]string)
	var drop []int64
	for _, l := range links {
		if l.State != model.LinkActive {
			if model.WithinPath(l.Path, scope) {
				if e, ok := remoteByPath[l.Path]; !ok || e.Sha != l.Sha || active[typedKey{l.Type, l.Path}] {
					drop = append(drop, l.ID)
				}
			}
			continue
		}
		if l.IsRoot() {
			if l.Sha != tree.Sha {
				shas[l.ID] = tree.Sha
			}
			continue
		}

		e, ok := remoteByPath[l.Path]
		if !ok || e.Sha == l.Sha {
			continue
		}
		switch l.Type {
		case model.ItemFile:
			doc, known := docs[l.ItemID]
			if known && e.IsBlob() && BlobSha(doc) == e.Sha && model.WithinPath(l.Path, scope) {
				shas[l.ID] = e.Sha
			}
		case model.ItemFolder:
			if e.Type == model.EntryTree && (model.WithinPath(l.Path, scope) || isAncestorPath(l.Path, scope)) {
				shas[l.ID] = e.Sha
			}
		}
	}
	return shas, drop
}

// isAncestorPath reports whether dir strictly contains p.
func isAncestorPath(dir, p string) bool {
	return dir != p && model.WithinPath(p, dir)
}

func (s *Service) openPullRequest(ctx context.Context, repo *model.Repository, branch, message string, in PushInput) (*model.PullRequest, error) {
	title := strings.TrimSpace(in.PullRequestTitle)
	if title == "" {
		title = message
	}
	pr, err := s.github.CreatePullRequest(ctx, repo.Ref(), model.PullRequestInput{
		Title: title,
		Head:  branch,
		Base:  repo.DefaultBranch,
		Body:  in.PullRequestBody,
	})
	if err != nil {
		return nil, remote("creating pull request", err)
	}
	return pr, nil
}
