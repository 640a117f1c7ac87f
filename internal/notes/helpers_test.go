package notes_test

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"testing"
	"time"

	"mdnotes/internal/database"
	"mdnotes/internal/model"
	"mdnotes/internal/notes"
	"mdnotes/internal/testutil"
)

const (
	testInstallation = int64(7)
	testRepoID       = int64(42)
	testRepo         = "octo/notes"
)

type env struct {
	t     *testing.T
	ctx   context.Context
	svc   *notes.Service
	db    *database.SQLiteDatabase
	gh    *testutil.FakeGitHub
	clock *testutil.StubClock
	user  *model.User
}

func newEnv(t *testing.T) *env {
	t.Helper()
	e := &env{
		t:     t,
		ctx:   context.Background(),
		db:    testutil.NewTestDatabase(t),
		gh:    testutil.NewFakeGitHub(),
		clock: testutil.FixedClock(),
	}
	e.svc = notes.NewService(e.db, e.gh, notes.NewNopLogger(), e.clock, testutil.NewStubIDGenerator(), 24*time.Hour)
	user, err := e.svc.CreateUser(e.ctx, "ada@example.com", "correct horse")
	if err != nil {
		t.Fatalf("CreateUser() error = %v", err)
	}
	e.user = user
	return e
}

// connect installs the app and links a repository holding files. It returns
// the id of the repository root folder.
func (e *env) connect(files map[string]string) string {
	e.t.Helper()
	e.gh.AddInstallation(testInstallation, "octo")
	e.gh.AddRepository(testInstallation, testRepoID, testRepo, "main", files)
	if _, err := e.svc.RecordInstallation(e.ctx, e.user.ID, testInstallation); err != nil {
		e.t.Fatalf("RecordInstallation() error = %v", err)
	}
	linked, err := e.svc.LinkRepositories(e.ctx, e.user.ID, []notes.InstallationChange{
		{InstallationID: testInstallation, Added: []int64{testRepoID}},
	})
	if err != nil {
		e.t.Fatalf("LinkRepositories() error = %v", err)
	}
	if len(linked) != 1 {
		e.t.Fatalf("LinkRepositories() linked %d repositories, want 1", len(linked))
	}
	return e.rootID()
}

func (e *env) rootID() string {
	e.t.Helper()
	for _, l := range e.links() {
		if l.IsRoot() {
			return l.ItemID
		}
	}
	e.t.Fatal("repository has no root link")
	return ""
}

func (e *env) links() []*model.Link {
	e.t.Helper()
	links, err := e.db.ListLinks(e.ctx, testRepoID)
	if err != nil {
		e.t.Fatalf("ListLinks() error = %v", err)
	}
	return links
}

// link returns the link row in state at path, or nil.
func (e *env) link(state model.LinkState, path string) *model.Link {
	e.t.Helper()
	for _, l := range e.links() {
		if l.State == state && l.Path == path && !l.IsRoot() {
			return l
		}
	}
	return nil
}

func (e *env) pull() *notes.PullResult {
	e.t.Helper()
	res, err := e.svc.Pull(e.ctx, e.user.ID, notes.PullInput{RootFolderID: e.rootID()})
	if err != nil {
		e.t.Fatalf("Pull() error = %v", err)
	}
	return res
}

// tree returns the local files beneath the repository root as relative path
// to content. Folders appear as "path/" with empty content.
func (e *env) tree() map[string]string {
	e.t.Helper()
	folders, err := e.db.ListFolders(e.ctx, e.user.ID)
	if err != nil {
		e.t.Fatalf("ListFolders() error = %v", err)
	}
	files, err := e.db.ListFiles(e.ctx, e.user.ID)
	if err != nil {
		e.t.Fatalf("ListFiles() error = %v", err)
	}
	ids := make([]string, 0, len(files))
	for _, f := range files {
		ids = append(ids, f.ID)
	}
	contents, err := e.db.ListFileContents(e.ctx, e.user.ID, ids)
	if err != nil {
		e.t.Fatalf("ListFileContents() error = %v", err)
	}

	root := e.rootID()
	byID := make(map[string]*model.Folder, len(folders))
	for _, f := range folders {
		byID[f.ID] = f
	}
	// pathOf returns the path of a folder relative to the root, and false
	// when the folder is outside the repository.
	var pathOf func(id string) (string, bool)
	pathOf = func(id string) (string, bool) {
		if id == root {
			return "", true
		}
		f, ok := byID[id]
		if !ok {
			return "", false
		}
		parent, ok := pathOf(f.ParentID)
		if !ok {
			return "", false
		}
		return model.JoinPath(parent, f.Name), true
	}

	out := make(map[string]string)
	for _, f := range folders {
		if p, ok := pathOf(f.ID); ok && p != "" {
			out[p+"/"] = ""
		}
	}
	for _, f := range contents {
		if dir, ok := pathOf(f.FolderID); ok {
			out[model.JoinPath(dir, f.Name+model.MarkdownExt)] = f.Doc
		}
	}
	return out
}

// snapshot renders every local row the sync touches, for byte-level comparisons.
func (e *env) snapshot() []string {
	e.t.Helper()
	var lines []string
	for _, l := range e.links() {
		lines = append(lines, fmt.Sprintf("link %d %s %s %s %q %s", l.ID, l.State, l.Type, l.ItemID, l.Path, l.Sha))
	}
	folders, _ := e.db.ListFolders(e.ctx, e.user.ID)
	for _, f := range folders {
		lines = append(lines, fmt.Sprintf("folder %s %q %s %s", f.ID, f.Name, f.ParentID, f.CreatedAt.Format(time.RFC3339Nano)))
	}
	files, _ := e.db.ListFiles(e.ctx, e.user.ID)
	var ids []string
	for _, f := range files {
		ids = append(ids, f.ID)
	}
	contents, _ := e.db.ListFileContents(e.ctx, e.user.ID, ids)
	for _, f := range contents {
		lines = append(lines, fmt.Sprintf("file %s %q %s %q %s %s %s", f.ID, f.Name, f.FolderID, f.Doc,
			f.Icon, f.IconColor, f.UpdatedAt.Format(time.RFC3339Nano)))
	}
	trash, _ := e.db.ListTrash(e.ctx, e.user.ID)
	for _, tr := range trash {
		lines = append(lines, fmt.Sprintf("trash %s %s", tr.FolderID, tr.FileID))
	}
	sort.Strings(lines)
	return lines
}

// fileID returns the id of the local file linked at path.
func (e *env) fileID(path string) string {
	e.t.Helper()
	l := e.link(model.LinkActive, path)
	if l == nil || l.Type != model.ItemFile {
		e.t.Fatalf("no active file link at %s", path)
	}
	return l.ItemID
}

// folderID returns the id of the local folder linked at path.
func (e *env) folderID(path string) string {
	e.t.Helper()
	l := e.link(model.LinkActive, path)
	if l == nil || l.Type != model.ItemFolder {
		e.t.Fatalf("no active folder link at %s", path)
	}
	return l.ItemID
}

func assertTree(t *testing.T, got, want map[string]string) {
	t.Helper()
	var problems []string
	for p, w := range want {
		g, ok := got[p]
		switch {
		case !ok:
			problems = append(problems, "missing "+p)
		case g != w:
			problems = append(problems, fmt.Sprintf("%s = %q, want %q", p, g, w))
		}
	}
	for p := range got {
		if _, ok := want[p]; !ok {
			problems = append(problems, "unexpected "+p)
		}
	}
	if len(problems) > 0 {
		sort.Strings(problems)
		t.Errorf("local tree mismatch:\n  %s", strings.Join(problems, "\n  "))
	}
}
