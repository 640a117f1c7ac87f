package testutil

import (
	"context"
	"crypto/sha1"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"path"
	"sort"
	"strings"
	"sync"

	"mdnotes/internal/model"
	"mdnotes/internal/notes"
)

// FakeGitHub is an in-memory notes.GitHub backed by a small git object
// store. Blob and tree shas are computed the way git computes them, so local
// hashing can be checked against it. Safe for concurrent use.
type FakeGitHub struct {
	mu            sync.Mutex
	installations map[int64]*model.RemoteInstallation
	repos         map[string]*fakeRepo // by full name
	repoIDs       map[int64]string
	seq           int

	// FailBlobs makes GetBlobs fail for the listed shas.
	FailBlobs map[string]bool
	// Fail makes the named method return the error, e.g. Fail["CreateTree"].
	Fail map[string]error

	Calls        map[string]int
	PullRequests []model.PullRequestInput
	Deleted      []int64 // deleted installation ids
}

type fakeRepo struct {
	meta     model.RemoteRepository
	instID   int64
	branches map[string]string // branch -> commit sha
	commits  map[string]fakeCommit
	trees    map[string]map[string]string // root tree sha -> path -> content
	blobs    map[string]string
}

type fakeCommit struct {
	tree    string
	parents []string
	message string
}

// NewFakeGitHub returns an empty fake.
func NewFakeGitHub() *FakeGitHub {
	return &FakeGitHub{
		installations: make(map[int64]*model.RemoteInstallation),
		repos:         make(map[string]*fakeRepo),
		repoIDs:       make(map[int64]string),
		FailBlobs:     make(map[string]bool),
		Fail:          make(map[string]error),
		Calls:         make(map[string]int),
	}
}

// AddInstallation registers an installation for the given account.
func (g *FakeGitHub) AddInstallation(id int64, login string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	inst := &model.RemoteInstallation{ID: id}
	inst.Account.Login = login
	inst.Account.AvatarURL = "https://avatars.example.com/" + login
	g.installations[id] = inst
}

// AddRepository creates a repository whose default branch holds files
// (path -> content) in a single commit.
func (g *FakeGitHub) AddRepository(installationID, id int64, fullName, defaultBranch string, files map[string]string) model.RepoRef {
	g.mu.Lock()
	defer g.mu.Unlock()

	owner, name, _ := strings.Cut(fullName, "/")
	r := &fakeRepo{
		meta: model.RemoteRepository{
			ID:            id,
			Name:          name,
			FullName:      fullName,
			HTMLURL:       "https://github.com/" + fullName,
			DefaultBranch: defaultBranch,
		},
		instID:   installationID,
		branches: make(map[string]string),
		commits:  make(map[string]fakeCommit),
		trees:    make(map[string]map[string]string),
		blobs:    make(map[string]string),
	}
	g.repos[fullName] = r
	g.repoIDs[id] = fullName
	tree := r.storeTree(copyFiles(files))
	r.branches[defaultBranch] = g.commitLocked(r, tree, nil, "Initial commit")
	return model.RepoRef{InstallationID: installationID, Owner: owner, Name: name}
}

// SetFiles commits a full snapshot of files onto branch, creating the
// branch when needed.
func (g *FakeGitHub) SetFiles(fullName, branch string, files map[string]string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	r := g.repos[fullName]
	var parents []string
	if head, ok := r.branches[branch]; ok {
		parents = []string{head}
	}
	tree := r.storeTree(copyFiles(files))
	r.branches[branch] = g.commitLocked(r, tree, parents, "Remote change")
}

// Edit applies fn to a copy of the files on branch and commits the result.
func (g *FakeGitHub) Edit(fullName, branch string, fn func(files map[string]string)) {
	files := g.Files(fullName, branch)
	fn(files)
	g.SetFiles(fullName, branch, files)
}

// Files returns a copy of the files on branch.
func (g *FakeGitHub) Files(fullName, branch string) map[string]string {
	g.mu.Lock()
	defer g.mu.Unlock()
	r := g.repos[fullName]
	head, ok := r.branches[branch]
	if !ok {
		return nil
	}
	return copyFiles(r.trees[r.commits[head].tree])
}

// Head returns the commit sha of branch.
func (g *FakeGitHub) Head(fullName, branch string) string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.repos[fullName].branches[branch]
}

// CreateBranch points a new branch at the head of from.
func (g *FakeGitHub) CreateBranch(fullName, branch, from string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	r := g.repos[fullName]
	r.branches[branch] = r.branches[from]
}

// TreeSha returns the root tree sha of branch.
func (g *FakeGitHub) TreeSha(fullName, branch string) string {
	g.mu.Lock()
	defer g.mu.Unlock()
	r := g.repos[fullName]
	return r.commits[r.branches[branch]].tree
}

func copyFiles(files map[string]string) map[string]string {
	out := make(map[string]string, len(files))
	for k, v := range files {
		out[k] = v
	}
	return out
}

func (g *FakeGitHub) commitLocked(r *fakeRepo, tree string, parents []string, message string) string {
	g.seq++
	h := sha1.Sum([]byte(fmt.Sprintf("commit %s %v %s %d", tree, parents, message, g.seq)))
	sha := hex.EncodeToString(h[:])
	r.commits[sha] = fakeCommit{tree: tree, parents: parents, message: message}
	return sha
}

func (r *fakeRepo) storeTree(files map[string]string) string {
	for _, content := range files {
		r.blobs[notes.BlobSha(content)] = content
	}
	_, rootSha := listTree(files)
	r.trees[rootSha] = files
	return rootSha
}

// listTree returns the recursive listing of files and the root tree sha.
func listTree(files map[string]string) ([]model.RemoteTreeEntry, string) {
	// children[dir] holds the direct child names of each directory.
	children := map[string]map[string]bool{"": {}}
	for p := range files {
		for dir, child := model.ParentPath(p), p; ; dir, child = model.ParentPath(dir), dir {
			if children[dir] == nil {
				children[dir] = make(map[string]bool)
			}
			children[dir][child] = true
			if dir == "" {
				break
			}
		}
	}

	shas := make(map[string]string)
	var treeSha func(dir string) string
	treeSha = func(dir string) string {
		type item struct {
			name, mode, sha string
			isTree         bool
		}
		var items []item
		for child := range children[dir] {
			if _, isFile := files[child]; isFile {
				items = append(items, item{name: path.Base(child), mode: "100644", sha: notes.BlobSha(files[child])})
				continue
			}
			items = append(items, item{name: path.Base(child), mode: "40000", sha: treeSha(child), isTree: true})
		}
		// Git orders tree entries as if directory names ended in "/".
		sortKey := func(it item) string {
			if it.isTree {
				return it.name + "/"
			}
			return it.name
		}
		sort.Slice(items, func(i, j int) bool { return sortKey(items[i]) < sortKey(items[j]) })

		var body []byte
		for _, it := range items {
			raw, _ := hex.DecodeString(it.sha)
			body = append(body, []byte(it.mode+" "+it.name+"\x00")...)
			body = append(body, raw...)
		}
		h := sha1.New()
		fmt.Fprintf(h, "tree %d\x00", len(body))
		h.Write(body)
		sha := hex.EncodeToString(h.Sum(nil))
		shas[dir] = sha
		return sha
	}
	root := treeSha("")

	var entries []model.RemoteTreeEntry
	for dir := range children {
		if dir != "" {
			entries = append(entries, model.RemoteTreeEntry{Path: dir, Mode: model.ModeTree, Type: model.EntryTree, Sha: shas[dir]})
		}
	}
	for p, content := range files {
		entries = append(entries, model.RemoteTreeEntry{
			Path: p, Mode: model.ModeFile, Type: model.EntryBlob, Sha: notes.BlobSha(content), Size: int64(len(content)),
		})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Path < entries[j].Path })
	return entries, root
}

func (g *FakeGitHub) enter(method string) error {
	g.Calls[method]++
	return g.Fail[method]
}

func (g *FakeGitHub) repo(ref model.RepoRef) (*fakeRepo, error) {
	r, ok := g.repos[ref.FullName()]
	if !ok || r.instID != ref.InstallationID {
		return nil, fmt.Errorf("repository %s not found", ref.FullName())
	}
	return r, nil
}

// resolveTree maps a branch, commit sha or root tree sha to a root tree sha.
func (r *fakeRepo) resolveTree(treeish string) (string, error) {
	if head, ok := r.branches[treeish]; ok {
		treeish = head
	}
	if c, ok := r.commits[treeish]; ok {
		return c.tree, nil
	}
	if _, ok := r.trees[treeish]; ok {
		return treeish, nil
	}
	return "", fmt.Errorf("no tree for %q", treeish)
}

// notes.GitHub implementation

func (g *FakeGitHub) GetInstallation(ctx context.Context, installationID int64) (*model.RemoteInstallation, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.enter("GetInstallation"); err != nil {
		return nil, err
	}
	inst, ok := g.installations[installationID]
	if !ok {
		return nil, fmt.Errorf("installation %d not found", installationID)
	}
	copied := *inst
	return &copied, nil
}

func (g *FakeGitHub) DeleteInstallation(ctx context.Context, installationID int64) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.enter("DeleteInstallation"); err != nil {
		return err
	}
	delete(g.installations, installationID)
	g.Deleted = append(g.Deleted, installationID)
	return nil
}

func (g *FakeGitHub) GetRepository(ctx context.Context, installationID, repositoryID int64) (*model.RemoteRepository, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.enter("GetRepository"); err != nil {
		return nil, err
	}
	name, ok := g.repoIDs[repositoryID]
	if !ok || g.repos[name].instID != installationID {
		return nil, fmt.Errorf("repository %d not found", repositoryID)
	}
	meta := g.repos[name].meta
	return &meta, nil
}

func (g *FakeGitHub) ListBranches(ctx context.Context, ref model.RepoRef) ([]string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.enter("ListBranches"); err != nil {
		return nil, err
	}
	r, err := g.repo(ref)
	if err != nil {
		return nil, err
	}
	var names []string
	for name := range r.branches {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func (g *FakeGitHub) GetTree(ctx context.Context, ref model.RepoRef, treeish string) (*model.RemoteTree, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.enter("GetTree"); err != nil {
		return nil, err
	}
	r, err := g.repo(ref)
	if err != nil {
		return nil, err
	}
	sha, err := r.resolveTree(treeish)
	if err != nil {
		return nil, err
	}
	entries, _ := listTree(r.trees[sha])
	return &model.RemoteTree{Sha: sha, Entries: entries}, nil
}

func (g *FakeGitHub) GetBlobs(ctx context.Context, ref model.RepoRef, shas []string) (map[string]string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.enter("GetBlobs"); err != nil {
		return nil, err
	}
	r, err := g.repo(ref)
	if err != nil {
		return nil, err
	}
	out := make(map[string]string, len(shas))
	var errs []error
	for _, sha := range shas {
		content, ok := r.blobs[sha]
		if !ok || g.FailBlobs[sha] {
			errs = append(errs, fmt.Errorf("blob %s: not available", sha))
			continue
		}
		out[sha] = content
	}
	return out, errors.Join(errs...)
}

func (g *FakeGitHub) GetContent(ctx context.Context, ref model.RepoRef, p, branch string) (*model.RemoteContent, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.enter("GetContent"); err != nil {
		return nil, err
	}
	r, err := g.repo(ref)
	if err != nil {
		return nil, err
	}
	tree, err := r.resolveTree(branch)
	if err != nil {
		return nil, err
	}
	content, ok := r.trees[tree][p]
	if !ok {
		return nil, nil
	}
	return &model.RemoteContent{Name: path.Base(p), Path: p, Sha: notes.BlobSha(content)}, nil
}

func (g *FakeGitHub) PutContent(ctx context.Context, ref model.RepoRef, p string, in model.PutContentInput) (*model.RemoteContent, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.enter("PutContent"); err != nil {
		return nil, err
	}
	r, err := g.repo(ref)
	if err != nil {
		return nil, err
	}
	head, ok := r.branches[in.Branch]
	if !ok {
		return nil, fmt.Errorf("branch %s not found", in.Branch)
	}
	raw, err := base64.StdEncoding.DecodeString(in.Content)
	if err != nil {
		return nil, fmt.Errorf("decoding content: %w", err)
	}

	files := copyFiles(r.trees[r.commits[head].tree])
	if current, exists := files[p]; exists && notes.BlobSha(current) != in.Sha {
		return nil, fmt.Errorf("409 conflict: %s does not match %s", p, in.Sha)
	}
	files[p] = string(raw)
	tree := r.storeTree(files)
	r.branches[in.Branch] = g.commitLocked(r, tree, []string{head}, in.Message)
	return &model.RemoteContent{Name: path.Base(p), Path: p, Sha: notes.BlobSha(string(raw))}, nil
}

func (g *FakeGitHub) GetReference(ctx context.Context, ref model.RepoRef, branch string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.enter("GetReference"); err != nil {
		return "", err
	}
	r, err := g.repo(ref)
	if err != nil {
		return "", err
	}
	head, ok := r.branches[branch]
	if !ok {
		return "", fmt.Errorf("branch %s not found", branch)
	}
	return head, nil
}

func (g *FakeGitHub) GetCommitTree(ctx context.Context, ref model.RepoRef, commitSha string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.enter("GetCommitTree"); err != nil {
		return "", err
	}
	r, err := g.repo(ref)
	if err != nil {
		return "", err
	}
	c, ok := r.commits[commitSha]
	if !ok {
		return "", fmt.Errorf("commit %s not found", commitSha)
	}
	return c.tree, nil
}

func (g *FakeGitHub) CreateTree(ctx context.Context, ref model.RepoRef, baseTree string, entries []model.TreeEntryInput) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.enter("CreateTree"); err != nil {
		return "", err
	}
	r, err := g.repo(ref)
	if err != nil {
		return "", err
	}
	base, ok := r.trees[baseTree]
	if !ok {
		return "", fmt.Errorf("tree %s not found", baseTree)
	}

	files := copyFiles(base)
	for _, e := range entries {
		switch {
		case e.Content != nil:
			files[e.Path] = *e.Content
		case e.Sha != nil:
			content, ok := r.blobs[*e.Sha]
			if !ok {
				return "", fmt.Errorf("blob %s not found", *e.Sha)
			}
			files[e.Path] = content
		default:
			if _, ok := files[e.Path]; !ok {
				return "", fmt.Errorf("422: path %s not in base tree", e.Path)
			}
			delete(files, e.Path)
		}
	}
	return r.storeTree(files), nil
}

func (g *FakeGitHub) CreateCommit(ctx context.Context, ref model.RepoRef, message, tree string, parents []string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.enter("CreateCommit"); err != nil {
		return "", err
	}
	r, err := g.repo(ref)
	if err != nil {
		return "", err
	}
	if _, ok := r.trees[tree]; !ok {
		return "", fmt.Errorf("tree %s not found", tree)
	}
	return g.commitLocked(r, tree, parents, message), nil
}

func (g *FakeGitHub) UpdateReference(ctx context.Context, ref model.RepoRef, branch, commitSha string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.enter("UpdateReference"); err != nil {
		return err
	}
	r, err := g.repo(ref)
	if err != nil {
		return err
	}
	if _, ok := r.branches[branch]; !ok {
		return fmt.Errorf("branch %s not found", branch)
	}
	if _, ok := r.commits[commitSha]; !ok {
		return fmt.Errorf("commit %s not found", commitSha)
	}
	r.branches[branch] = commitSha
	return nil
}

func (g *FakeGitHub) CreatePullRequest(ctx context.Context, ref model.RepoRef, in model.PullRequestInput) (*model.PullRequest, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.enter("CreatePullRequest"); err != nil {
		return nil, err
	}
	if _, err := g.repo(ref); err != nil {
		return nil, err
	}
	g.PullRequests = append(g.PullRequests, in)
	n := len(g.PullRequests)
	return &model.PullRequest{Number: n, HTMLURL: fmt.Sprintf("https://github.com/%s/pull/%d", ref.FullName(), n)}, nil
}

var _ notes.GitHub = (*FakeGitHub)(nil)
