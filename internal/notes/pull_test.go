package notes_test

import (
	"errors"
	"slices"
	"testing"
	"time"

	"mdnotes/internal/model"
	"mdnotes/internal/notes"
)

func baseFiles() map[string]string {
	return map[string]string{
		"README.md":       "# Notes\n",
		"notes/a.md":      "alpha\n",
		"notes/b.md":      "beta\n",
		"assets/logo.png": "\x89PNG",
	}
}

func TestLinkRepository_MirrorsDefaultBranch(t *testing.T) {
	e := newEnv(t)
	root := e.connect(baseFiles())

	assertTree(t, e.tree(), map[string]string{
		"README.md":  "# Notes\n",
		"notes/":     "",
		"notes/a.md": "alpha\n",
		"notes/b.md": "beta\n",
	})

	rootFolder, err := e.db.FindFolder(e.ctx, e.user.ID, root)
	if err != nil || rootFolder == nil {
		t.Fatalf("FindFolder(root) = %v, %v", rootFolder, err)
	}
	if rootFolder.Name != testRepo {
		t.Errorf("root folder name = %q, want %q", rootFolder.Name, testRepo)
	}
	for _, l := range e.links() {
		if !l.Pushed() || l.State != model.LinkActive {
			t.Errorf("link %q = %s sha %q, want active and pushed", l.Path, l.State, l.Sha)
		}
		if l.IsRoot() && l.Sha != e.gh.TreeSha(testRepo, "main") {
			t.Errorf("root link sha = %s, want remote tree sha", l.Sha)
		}
	}
	if l := e.link(model.LinkActive, "notes/a.md"); l.Sha != notes.BlobSha("alpha\n") {
		t.Errorf("notes/a.md sha = %s, want blob sha of content", l.Sha)
	}
}

func TestPull_Idempotent(t *testing.T) {
	e := newEnv(t)
	e.connect(baseFiles())
	e.gh.Edit(testRepo, "main", func(f map[string]string) {
		f["README.md"] = "# Notes v2\n"
		f["notes/c.md"] = "gamma\n"
		f["journal/2024/jan.md"] = "cold\n"
		delete(f, "notes/b.md")
	})

	first := e.pull()
	if first.Updated != 1 || first.Inserted != 4 || first.Deleted != 1 {
		t.Errorf("first pull = %+v, want 1 updated, 4 inserted, 1 deleted", first)
	}
	before := e.snapshot()

	e.clock.Advance(time.Hour)
	second := e.pull()
	if second.Renamed+second.Updated+second.Restored+second.Inserted+second.Deleted+second.Skipped != 0 {
		t.Errorf("second pull changed something: %+v", second)
	}
	if after := e.snapshot(); !slices.Equal(before, after) {
		t.Errorf("second pull altered local rows:\nbefore %v\nafter  %v", before, after)
	}
}

func TestPull_FolderRenamedRemotely(t *testing.T) {
	e := newEnv(t)
	e.connect(map[string]string{
		"README.md":  "# Notes\n",
		"notes/a.md": "alpha\n",
	})
	folderLink := e.link(model.LinkActive, "notes")
	fileLink := e.link(model.LinkActive, "notes/a.md")
	file, _ := e.db.FindFile(e.ctx, e.user.ID, fileLink.ItemID)

	e.gh.Edit(testRepo, "main", func(f map[string]string) {
		f["archive/a.md"] = f["notes/a.md"]
		delete(f, "notes/a.md")
	})
	e.clock.Advance(time.Hour)
	res := e.pull()

	if res.Renamed != 2 || res.Updated != 0 || res.Inserted != 0 || res.Deleted != 0 {
		t.Errorf("pull = %+v, want 2 renamed and nothing else", res)
	}

	archive := e.link(model.LinkActive, "archive")
	if archive == nil {
		t.Fatal("no active link at archive")
	}
	if archive.ID != folderLink.ID || archive.ItemID != folderLink.ItemID {
		t.Errorf("archive link = %+v, want the former notes link %+v", archive, folderLink)
	}
	folder, _ := e.db.FindFolder(e.ctx, e.user.ID, folderLink.ItemID)
	if folder.Name != "archive" {
		t.Errorf("folder name = %q, want %q", folder.Name, "archive")
	}

	moved := e.link(model.LinkActive, "archive/a.md")
	if moved == nil {
		t.Fatal("no active link at archive/a.md")
	}
	if moved.ID != fileLink.ID || moved.ItemID != fileLink.ItemID || moved.Sha != fileLink.Sha {
		t.Errorf("archive/a.md link = %+v, want the former notes/a.md link %+v", moved, fileLink)
	}
	after, _ := e.db.FindFile(e.ctx, e.user.ID, fileLink.ItemID)
	if after.Doc != file.Doc || !after.UpdatedAt.Equal(file.UpdatedAt) || after.FolderID != folder.ID {
		t.Errorf("file after rename = %+v, want content and parent untouched", after)
	}
	if e.link(model.LinkActive, "notes") != nil || e.link(model.LinkActive, "notes/a.md") != nil {
		t.Error("old paths still have active links")
	}
}

func TestPull_RenameAndContentChange(t *testing.T) {
	t.Run("rename keeps content and id", func(t *testing.T) {
		e := newEnv(t)
		e.connect(baseFiles())
		old := e.link(model.LinkActive, "notes/a.md")
		before, _ := e.db.FindFile(e.ctx, e.user.ID, old.ItemID)

		e.gh.Edit(testRepo, "main", func(f map[string]string) {
			f["notes/alpha.md"] = f["notes/a.md"]
			delete(f, "notes/a.md")
		})
		e.clock.Advance(time.Minute)
		res := e.pull()

		if res.Renamed != 1 || res.Updated != 0 || res.Inserted != 0 || res.Deleted != 0 {
			t.Errorf("pull = %+v, want exactly one rename", res)
		}
		renamed := e.link(model.LinkActive, "notes/alpha.md")
		if renamed == nil || renamed.ID != old.ID || renamed.ItemID != old.ItemID {
			t.Fatalf("renamed link = %+v, want row %d kept", renamed, old.ID)
		}
		after, _ := e.db.FindFile(e.ctx, e.user.ID, old.ItemID)
		if after.Name != "alpha" || after.Doc != before.Doc || !after.UpdatedAt.Equal(before.UpdatedAt) {
			t.Errorf("file = %+v, want only the name changed", after)
		}
	})

	t.Run("content change keeps id", func(t *testing.T) {
		e := newEnv(t)
		e.connect(baseFiles())
		old := e.link(model.LinkActive, "notes/a.md")

		e.gh.Edit(testRepo, "main", func(f map[string]string) { f["notes/a.md"] = "alpha, revised\n" })
		e.clock.Advance(time.Minute)
		res := e.pull()

		if res.Updated != 1 || res.Renamed != 0 || res.Inserted != 0 || res.Deleted != 0 {
			t.Errorf("pull = %+v, want exactly one update", res)
		}
		cur := e.link(model.LinkActive, "notes/a.md")
		if cur.ID != old.ID || cur.ItemID != old.ItemID || cur.Sha != notes.BlobSha("alpha, revised\n") {
			t.Errorf("link = %+v, want same row with new sha", cur)
		}
		file, _ := e.db.FindFile(e.ctx, e.user.ID, old.ItemID)
		if file.Doc != "alpha, revised\n" {
			t.Errorf("doc = %q, want remote content", file.Doc)
		}
		if !file.UpdatedAt.Equal(e.clock.Now()) {
			t.Errorf("updated_at = %v, want %v", file.UpdatedAt, e.clock.Now())
		}
	})
}

func TestPull_MoveIntoNewFolders(t *testing.T) {
	e := newEnv(t)
	e.connect(baseFiles())
	aID := e.fileID("notes/a.md")

	e.gh.Edit(testRepo, "main", func(f map[string]string) {
		f["archive/2024/a.md"] = f["notes/a.md"]
		delete(f, "notes/a.md")
	})
	res := e.pull()

	if res.Renamed != 1 || res.Inserted != 2 || res.Deleted != 0 {
		t.Errorf("pull = %+v, want 1 renamed, 2 inserted", res)
	}
	assertTree(t, e.tree(), map[string]string{
		"README.md":         "# Notes\n",
		"notes/":            "",
		"notes/b.md":        "beta\n",
		"archive/":          "",
		"archive/2024/":     "",
		"archive/2024/a.md": "alpha\n",
	})
	if got := e.fileID("archive/2024/a.md"); got != aID {
		t.Errorf("moved file id = %s, want %s", got, aID)
	}
}

func TestPull_InsertsParentsBeforeChildren(t *testing.T) {
	e := newEnv(t)
	e.connect(baseFiles())
	e.gh.Edit(testRepo, "main", func(f map[string]string) {
		f["deep/er/est/x.md"] = "x\n"
		f["deep/y.md"] = "y\n"
		f["deep/er/est/img.jpg"] = "jpg"
	})

	res := e.pull()
	if res.Inserted != 5 {
		t.Errorf("inserted = %d, want 5", res.Inserted)
	}
	got := e.tree()
	for _, p := range []string{"deep/", "deep/er/", "deep/er/est/", "deep/er/est/x.md", "deep/y.md"} {
		if _, ok := got[p]; !ok {
			t.Errorf("missing %s after pull", p)
		}
	}
	if _, ok := got["deep/er/est/img.jpg"]; ok {
		t.Error("non-markdown file mirrored")
	}
	est := e.folderID("deep/er/est")
	er := e.folderID("deep/er")
	folder, _ := e.db.FindFolder(e.ctx, e.user.ID, est)
	if folder.ParentID != er {
		t.Errorf("deep/er/est parent = %s, want %s", folder.ParentID, er)
	}
}

func TestPull_RemoteDeletions(t *testing.T) {
	t.Run("file", func(t *testing.T) {
		e := newEnv(t)
		e.connect(baseFiles())
		bID := e.fileID("notes/b.md")
		e.gh.Edit(testRepo, "main", func(f map[string]string) { delete(f, "notes/b.md") })

		res := e.pull()
		if res.Deleted != 1 {
			t.Errorf("deleted = %d, want 1", res.Deleted)
		}
		if f, _ := e.db.FindFile(e.ctx, e.user.ID, bID); f != nil {
			t.Error("deleted file still present")
		}
		if e.link(model.LinkActive, "notes/b.md") != nil {
			t.Error("deleted file still linked")
		}
	})

	t.Run("folder with contents", func(t *testing.T) {
		e := newEnv(t)
		e.connect(baseFiles())
		e.gh.Edit(testRepo, "main", func(f map[string]string) {
			delete(f, "notes/a.md")
			delete(f, "notes/b.md")
		})

		res := e.pull()
		if res.Deleted != 3 {
			t.Errorf("deleted = %d, want 3", res.Deleted)
		}
		assertTree(t, e.tree(), map[string]string{"README.md": "# Notes\n"})
		if n := len(e.links()); n != 2 {
			t.Errorf("links = %d, want root and README only", n)
		}
	})

	t.Run("folder holding unpushed items is kept", func(t *testing.T) {
		e := newEnv(t)
		e.connect(baseFiles())
		notesID := e.folderID("notes")
		draft, err := e.svc.CreateFile(e.ctx, e.user.ID, notes.CreateFileInput{Name: "draft", FolderID: notesID})
		if err != nil {
			t.Fatalf("CreateFile() error = %v", err)
		}
		e.gh.Edit(testRepo, "main", func(f map[string]string) {
			delete(f, "notes/a.md")
			delete(f, "notes/b.md")
		})

		res := e.pull()
		if res.Deleted != 2 {
			t.Errorf("deleted = %d, want 2", res.Deleted)
		}
		assertTree(t, e.tree(), map[string]string{
			"README.md":      "# Notes\n",
			"notes/":         "",
			"notes/draft.md": "",
		})
		kept := e.link(model.LinkActive, "notes")
		if kept == nil || kept.Pushed() {
			t.Errorf("notes link = %+v, want active and unpushed", kept)
		}
		if l := e.link(model.LinkActive, "notes/draft.md"); l == nil || l.ItemID != draft.ID {
			t.Errorf("draft link = %+v", l)
		}

		if again := e.pull(); again.Deleted != 0 || again.Inserted != 0 {
			t.Errorf("second pull = %+v, want no changes", again)
		}
	})
}

func TestPull_TrashSafety(t *testing.T) {
	t.Run("trashed item still on remote is restored", func(t *testing.T) {
		e := newEnv(t)
		e.connect(baseFiles())
		aID := e.fileID("notes/a.md")
		notesID := e.folderID("notes")
		if err := e.svc.MoveToTrash(e.ctx, e.user.ID, model.ItemFile, aID); err != nil {
			t.Fatalf("MoveToTrash() error = %v", err)
		}
		if err := e.svc.MoveToTrash(e.ctx, e.user.ID, model.ItemFolder, notesID); err != nil {
			t.Fatalf("MoveToTrash() error = %v", err)
		}

		res := e.pull()
		if res.Restored != 2 || res.Deleted != 0 {
			t.Errorf("pull = %+v, want 2 restored, none deleted", res)
		}
		trash, _ := e.db.ListTrash(e.ctx, e.user.ID)
		if len(trash) != 0 {
			t.Errorf("trash = %d entries, want 0", len(trash))
		}
		if f, _ := e.db.FindFile(e.ctx, e.user.ID, aID); f == nil {
			t.Error("restored file missing")
		}
	})

	t.Run("trashed item gone from remote is purged", func(t *testing.T) {
		e := newEnv(t)
		e.connect(baseFiles())
		bID := e.fileID("notes/b.md")
		if err := e.svc.MoveToTrash(e.ctx, e.user.ID, model.ItemFile, bID); err != nil {
			t.Fatalf("MoveToTrash() error = %v", err)
		}
		e.gh.Edit(testRepo, "main", func(f map[string]string) { delete(f, "notes/b.md") })

		res := e.pull()
		if res.Deleted != 1 || res.Restored != 0 {
			t.Errorf("pull = %+v, want 1 deleted", res)
		}
		if f, _ := e.db.FindFile(e.ctx, e.user.ID, bID); f != nil {
			t.Error("purged file still present")
		}
		trash, _ := e.db.ListTrash(e.ctx, e.user.ID)
		if len(trash) != 0 {
			t.Errorf("trash = %d entries, want 0", len(trash))
		}
	})

	t.Run("trash alone never purges", func(t *testing.T) {
		e := newEnv(t)
		e.connect(baseFiles())
		draft, _ := e.svc.CreateFile(e.ctx, e.user.ID, notes.CreateFileInput{Name: "draft", FolderID: e.folderID("notes")})
		if err := e.svc.MoveToTrash(e.ctx, e.user.ID, model.ItemFile, draft.ID); err != nil {
			t.Fatalf("MoveToTrash() error = %v", err)
		}
		e.pull()
		if ok, _ := e.db.IsTrashed(e.ctx, e.user.ID, model.ItemFile, draft.ID); !ok {
			t.Error("unpushed trashed file lost its trash marker")
		}
		if f, _ := e.db.FindFile(e.ctx, e.user.ID, draft.ID); f == nil {
			t.Error("unpushed trashed file was purged")
		}
	})
}

func TestPull_LocalEditsAreNotResurrected(t *testing.T) {
	t.Run("local rename", func(t *testing.T) {
		e := newEnv(t)
		e.connect(baseFiles())
		aID := e.fileID("notes/a.md")
		if err := e.svc.Rename(e.ctx, e.user.ID, notes.RenameInput{ID: aID, Type: model.ItemFile, Name: "renamed"}); err != nil {
			t.Fatalf("Rename() error = %v", err)
		}

		res := e.pull()
		if res.Inserted != 0 || res.Ignored != 1 {
			t.Errorf("pull = %+v, want nothing inserted, 1 ignored", res)
		}
		assertTree(t, e.tree(), map[string]string{
			"README.md":        "# Notes\n",
			"notes/":           "",
			"notes/renamed.md": "alpha\n",
			"notes/b.md":       "beta\n",
		})
		if e.link(model.LinkSuperseded, "notes/a.md") == nil {
			t.Error("superseded link dropped before push")
		}
	})

	t.Run("local delete", func(t *testing.T) {
		e := newEnv(t)
		e.connect(baseFiles())
		if err := e.svc.Delete(e.ctx, e.user.ID, model.ItemFile, e.fileID("notes/a.md")); err != nil {
			t.Fatalf("Delete() error = %v", err)
		}

		res := e.pull()
		if res.Inserted != 0 || res.Ignored != 1 {
			t.Errorf("pull = %+v, want nothing inserted, 1 ignored", res)
		}
		if _, ok := e.tree()["notes/a.md"]; ok {
			t.Error("locally deleted file resurrected")
		}
		if e.link(model.LinkPendingDelete, "notes/a.md") == nil {
			t.Error("pending deletion dropped before push")
		}
	})

	t.Run("remote change after local delete wins", func(t *testing.T) {
		e := newEnv(t)
		e.connect(baseFiles())
		if err := e.svc.Delete(e.ctx, e.user.ID, model.ItemFile, e.fileID("notes/a.md")); err != nil {
			t.Fatalf("Delete() error = %v", err)
		}
		e.gh.Edit(testRepo, "main", func(f map[string]string) { f["notes/a.md"] = "edited elsewhere\n" })

		res := e.pull()
		if res.Inserted != 1 {
			t.Errorf("inserted = %d, want 1", res.Inserted)
		}
		if got := e.tree()["notes/a.md"]; got != "edited elsewhere\n" {
			t.Errorf("notes/a.md = %q, want remote content", got)
		}
		if e.link(model.LinkPendingDelete, "notes/a.md") != nil {
			t.Error("resolved pending deletion kept")
		}
	})
}

func TestPull_TargetFolderScope(t *testing.T) {
	e := newEnv(t)
	root := e.connect(baseFiles())
	e.gh.Edit(testRepo, "main", func(f map[string]string) {
		f["README.md"] = "# Outside scope\n"
		f["notes/a.md"] = "alpha 2\n"
	})

	res, err := e.svc.Pull(e.ctx, e.user.ID, notes.PullInput{RootFolderID: root, TargetFolderID: e.folderID("notes")})
	if err != nil {
		t.Fatalf("Pull() error = %v", err)
	}
	if res.Updated != 1 {
		t.Errorf("updated = %d, want 1", res.Updated)
	}
	got := e.tree()
	if got["README.md"] != "# Notes\n" {
		t.Errorf("README.md = %q, want untouched", got["README.md"])
	}
	if got["notes/a.md"] != "alpha 2\n" {
		t.Errorf("notes/a.md = %q, want pulled", got["notes/a.md"])
	}

	t.Run("target outside repository", func(t *testing.T) {
		other, _ := e.svc.CreateFolder(e.ctx, e.user.ID, "loose", "")
		_, err := e.svc.Pull(e.ctx, e.user.ID, notes.PullInput{RootFolderID: root, TargetFolderID: other.ID})
		if !errors.Is(err, notes.ErrInvalid) {
			t.Errorf("Pull() error = %v, want ErrInvalid", err)
		}
	})
}

func TestPull_TargetFolderMoveAcrossScope(t *testing.T) {
	e := newEnv(t)
	root := e.connect(baseFiles())
	id := e.fileID("notes/a.md")
	e.gh.Edit(testRepo, "main", func(f map[string]string) {
		f["other/a.md"] = f["notes/a.md"]
		delete(f, "notes/a.md")
	})

	res, err := e.svc.Pull(e.ctx, e.user.ID, notes.PullInput{RootFolderID: root, TargetFolderID: e.folderID("notes")})
	if err != nil {
		t.Fatalf("Pull() error = %v", err)
	}
	if res.Deleted != 0 {
		t.Errorf("scoped pull deleted = %d, want 0", res.Deleted)
	}
	if got := e.fileID("notes/a.md"); got != id {
		t.Errorf("notes/a.md id = %s, want %s kept until a full pull", got, id)
	}

	full := e.pull()
	if full.Deleted != 0 {
		t.Errorf("full pull deleted = %d, want 0", full.Deleted)
	}
	if got := e.fileID("other/a.md"); got != id {
		t.Errorf("other/a.md id = %s, want moved file %s", got, id)
	}
	assertTree(t, e.tree(), map[string]string{
		"README.md":  "# Notes\n",
		"notes/":     "",
		"notes/b.md": "beta\n",
		"other/":     "",
		"other/a.md": "alpha\n",
	})
}

func TestPull_FailedBlobsAreRetried(t *testing.T) {
	e := newEnv(t)
	e.connect(baseFiles())
	e.gh.Edit(testRepo, "main", func(f map[string]string) {
		f["notes/c.md"] = "gamma\n"
		f["notes/d.md"] = "delta\n"
	})
	e.gh.FailBlobs[notes.BlobSha("gamma\n")] = true

	res := e.pull()
	if res.Skipped != 1 || res.Inserted != 1 {
		t.Errorf("pull = %+v, want 1 skipped, 1 inserted", res)
	}
	if _, ok := e.tree()["notes/c.md"]; ok {
		t.Error("file with failed blob was inserted")
	}

	delete(e.gh.FailBlobs, notes.BlobSha("gamma\n"))
	res = e.pull()
	if res.Inserted != 1 || res.Skipped != 0 {
		t.Errorf("retry pull = %+v, want 1 inserted", res)
	}
	if got := e.tree()["notes/c.md"]; got != "gamma\n" {
		t.Errorf("notes/c.md = %q, want %q", got, "gamma\n")
	}
}

func TestPull_Errors(t *testing.T) {
	e := newEnv(t)
	root := e.connect(baseFiles())

	t.Run("folder without repository", func(t *testing.T) {
		_, err := e.svc.Pull(e.ctx, e.user.ID, notes.PullInput{RootFolderID: e.folderID("notes")})
		if !errors.Is(err, notes.ErrInvalid) {
			t.Errorf("Pull() error = %v, want ErrInvalid", err)
		}
	})

	t.Run("repository of another user", func(t *testing.T) {
		other, err := e.svc.CreateUser(e.ctx, "bob@example.com", "another password")
		if err != nil {
			t.Fatal(err)
		}
		_, err = e.svc.Pull(e.ctx, other.ID, notes.PullInput{RootFolderID: root})
		if !errors.Is(err, notes.ErrNotFound) {
			t.Errorf("Pull() error = %v, want ErrNotFound", err)
		}
	})

	t.Run("remote failure leaves local state", func(t *testing.T) {
		before := e.snapshot()
		e.gh.Fail["GetTree"] = errors.New("502 bad gateway")
		defer delete(e.gh.Fail, "GetTree")

		_, err := e.svc.Pull(e.ctx, e.user.ID, notes.PullInput{RootFolderID: root})
		if !errors.Is(err, notes.ErrRemote) {
			t.Errorf("Pull() error = %v, want ErrRemote", err)
		}
		if after := e.snapshot(); !slices.Equal(before, after) {
			t.Error("failed pull changed local rows")
		}
		ops, _ := e.svc.History(e.ctx, e.user.ID, 1)
		if len(ops) != 1 || ops[0].Status != notes.StatusError || ops[0].Operation != notes.OperationPull {
			t.Errorf("latest operation = %+v, want failed pull", ops)
		}
	})

	t.Run("github not configured", func(t *testing.T) {
		svc := notes.NewService(e.db, nil, notes.NewNopLogger(), e.clock, nil, 0)
		_, err := svc.Pull(e.ctx, e.user.ID, notes.PullInput{RootFolderID: root})
		if !errors.Is(err, notes.ErrInvalid) {
			t.Errorf("Pull() error = %v, want ErrInvalid", err)
		}
	})
}

func TestPull_RecordsHistory(t *testing.T) {
	e := newEnv(t)
	e.connect(baseFiles())
	e.pull()
	e.clock.Advance(time.Minute)
	e.pull()

	ops, err := e.svc.History(e.ctx, e.user.ID, 0)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(ops) != 2 {
		t.Fatalf("History() = %d operations, want 2", len(ops))
	}
	if ops[0].ID <= ops[1].ID {
		t.Errorf("operations not newest first: %d, %d", ops[0].ID, ops[1].ID)
	}
	for _, op := range ops {
		if op.Status != notes.StatusSuccess || op.RepositoryID != testRepoID || op.FinishedAt == nil {
			t.Errorf("operation = %+v, want finished success for repo %d", op, testRepoID)
		}
	}
}
