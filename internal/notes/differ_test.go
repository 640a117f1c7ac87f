package notes_test

import (
	"testing"

	"mdnotes/internal/model"
	"mdnotes/internal/notes"
)

func blobEntry(p, sha string) model.RemoteTreeEntry {
	return model.RemoteTreeEntry{Path: p, Mode: model.ModeFile, Type: model.EntryBlob, Sha: sha}
}

func treeEntry(p, sha string) model.RemoteTreeEntry {
	return model.RemoteTreeEntry{Path: p, Mode: model.ModeTree, Type: model.EntryTree, Sha: sha}
}

func fileLink(id int64, p, sha string) *model.Link {
	return &model.Link{ID: id, RepositoryID: 1, Type: model.ItemFile, ItemID: "file-" + p, Path: p, Sha: sha, State: model.LinkActive}
}

func folderLink(id int64, p, sha string) *model.Link {
	return &model.Link{ID: id, RepositoryID: 1, Type: model.ItemFolder, ItemID: "folder-" + p, Path: p, Sha: sha, State: model.LinkActive}
}

func tombstone(id int64, state model.LinkState, p, sha string) *model.Link {
	return &model.Link{ID: id, RepositoryID: 1, Type: model.ItemFile, Path: p, Sha: sha, State: state}
}

func decisions(d *notes.Diff) map[string]notes.Decision {
	out := make(map[string]notes.Decision)
	for _, m := range d.Existing {
		out[m.Entry.Path] = m.Decision
	}
	for _, e := range d.New {
		out[e.Path] = notes.DecisionNew
	}
	for _, m := range d.Ignored {
		out[m.Entry.Path] = notes.DecisionIgnored
	}
	return out
}

func linkIDs(links []*model.Link) []int64 {
	var ids []int64
	for _, l := range links {
		ids = append(ids, l.ID)
	}
	return ids
}

func TestBlobSha(t *testing.T) {
	tests := []struct {
		content string
		want    string
	}{
		{"", "e69de29bb2d1d6434b8b29ae775ad8c2e48c5391"},
		{"hello\n", "ce013625030ba8dba906f756967f9e9ca394464a"},
	}
	for _, tt := range tests {
		if got := notes.BlobSha(tt.content); got != tt.want {
			t.Errorf("BlobSha(%q) = %s, want %s", tt.content, got, tt.want)
		}
	}
}

func TestRelevantEntries(t *testing.T) {
	entries := []model.RemoteTreeEntry{
		treeEntry("assets", "t1"),
		blobEntry("assets/logo.png", "b1"),
		treeEntry("docs", "t2"),
		treeEntry("docs/deep", "t3"),
		blobEntry("docs/deep/x.md", "b2"),
		blobEntry("README.md", "b3"),
		blobEntry("notes.txt", "b4"),
	}
	got := notes.RelevantEntries(entries)
	want := []string{"README.md", "docs", "docs/deep", "docs/deep/x.md"}
	if len(got) != len(want) {
		t.Fatalf("RelevantEntries() = %v, want paths %v", got, want)
	}
	for i, e := range got {
		if e.Path != want[i] {
			t.Errorf("entry %d = %s, want %s", i, e.Path, want[i])
		}
	}
}

func TestDiffTree(t *testing.T) {
	tests := []struct {
		name         string
		entries      []model.RemoteTreeEntry
		links        []*model.Link
		scope        string
		want         map[string]notes.Decision
		wantLinks    map[string]int64 // entry path -> matched link id
		wantRemoved  []int64
		wantResolved []int64
	}{
		{
			name:      "unchanged",
			entries:   []model.RemoteTreeEntry{blobEntry("a.md", "x")},
			links:     []*model.Link{fileLink(1, "a.md", "x")},
			want:      map[string]notes.Decision{"a.md": notes.DecisionUnchanged},
			wantLinks: map[string]int64{"a.md": 1},
		},
		{
			name:      "renamed when old path is gone",
			entries:   []model.RemoteTreeEntry{blobEntry("b.md", "x")},
			links:     []*model.Link{fileLink(1, "a.md", "x")},
			want:      map[string]notes.Decision{"b.md": notes.DecisionRenamed},
			wantLinks: map[string]int64{"b.md": 1},
		},
		{
			name:      "copy is new while original stays",
			entries:   []model.RemoteTreeEntry{blobEntry("a.md", "x"), blobEntry("copy.md", "x")},
			links:     []*model.Link{fileLink(1, "a.md", "x")},
			want:      map[string]notes.Decision{"a.md": notes.DecisionUnchanged, "copy.md": notes.DecisionNew},
			wantLinks: map[string]int64{"a.md": 1},
		},
		{
			name:    "rename prefers the same base name",
			entries: []model.RemoteTreeEntry{treeEntry("archive", "t"), blobEntry("archive/y.md", "x")},
			links: []*model.Link{
				fileLink(1, "notes/x.md", "x"),
				fileLink(2, "other/y.md", "x"),
			},
			want:        map[string]notes.Decision{"archive": notes.DecisionNew, "archive/y.md": notes.DecisionRenamed},
			wantLinks:   map[string]int64{"archive/y.md": 2},
			wantRemoved: []int64{1},
		},
		{
			name:    "duplicate content renames once",
			entries: []model.RemoteTreeEntry{blobEntry("c.md", "x"), blobEntry("d.md", "x")},
			links:   []*model.Link{fileLink(1, "a.md", "x")},
			want:    map[string]notes.Decision{"c.md": notes.DecisionRenamed, "d.md": notes.DecisionNew},
		},
		{
			name:    "changed content and unpushed link at same path",
			entries: []model.RemoteTreeEntry{blobEntry("a.md", "y"), blobEntry("b.md", "z")},
			links:   []*model.Link{fileLink(1, "a.md", "x"), fileLink(2, "b.md", "")},
			want:    map[string]notes.Decision{"a.md": notes.DecisionChanged, "b.md": notes.DecisionChanged},
		},
		{
			name:    "folder renamed with its tree sha",
			entries: []model.RemoteTreeEntry{treeEntry("archive", "t"), blobEntry("archive/a.md", "x")},
			links:   []*model.Link{folderLink(1, "notes", "t"), fileLink(2, "notes/a.md", "x")},
			want: map[string]notes.Decision{
				"archive":      notes.DecisionRenamed,
				"archive/a.md": notes.DecisionRenamed,
			},
			wantLinks: map[string]int64{"archive": 1, "archive/a.md": 2},
		},
		{
			name: "file and folder with the same path do not match",
			entries: []model.RemoteTreeEntry{
				treeEntry("topic", "t"), blobEntry("topic/a.md", "x"),
			},
			links:       []*model.Link{fileLink(1, "topic", "t")},
			want:        map[string]notes.Decision{"topic": notes.DecisionNew, "topic/a.md": notes.DecisionNew},
			wantRemoved: []int64{1},
		},
		{
			name:        "only pushed links are removed",
			links:       []*model.Link{fileLink(1, "gone.md", "x"), fileLink(2, "draft.md", "")},
			want:        map[string]notes.Decision{},
			wantRemoved: []int64{1},
		},
		{
			name:    "repository root is never removed",
			entries: nil,
			links: []*model.Link{
				{ID: 1, RepositoryID: 1, Type: model.ItemFolder, ItemID: "root", Sha: "r", State: model.LinkActive},
			},
			want: map[string]notes.Decision{},
		},
		{
			name:    "tombstone shields unchanged remote copy",
			entries: []model.RemoteTreeEntry{blobEntry("a.md", "x")},
			links:   []*model.Link{tombstone(1, model.LinkPendingDelete, "a.md", "x")},
			want:    map[string]notes.Decision{"a.md": notes.DecisionIgnored},
		},
		{
			name:         "tombstone resolved by remote change",
			entries:      []model.RemoteTreeEntry{blobEntry("a.md", "y")},
			links:        []*model.Link{tombstone(1, model.LinkSuperseded, "a.md", "x")},
			want:         map[string]notes.Decision{"a.md": notes.DecisionNew},
			wantResolved: []int64{1},
		},
		{
			name:         "tombstone resolved when path is gone",
			links:        []*model.Link{tombstone(1, model.LinkPendingDelete, "a.md", "x")},
			want:         map[string]notes.Decision{},
			wantResolved: []int64{1},
		},
		{
			name:    "recreated item stays local until pushed",
			entries: []model.RemoteTreeEntry{blobEntry("a.md", "x")},
			links: []*model.Link{
				tombstone(1, model.LinkPendingDelete, "a.md", "x"),
				fileLink(2, "a.md", ""),
			},
			want: map[string]notes.Decision{"a.md": notes.DecisionIgnored},
		},
		{
			name: "scope limits entries and removals",
			entries: []model.RemoteTreeEntry{
				blobEntry("README.md", "new"),
				treeEntry("notes", "t2"),
				blobEntry("notes/a.md", "y"),
			},
			links: []*model.Link{
				fileLink(1, "README.md", "old"),
				folderLink(2, "notes", "t1"),
				fileLink(3, "notes/a.md", "x"),
				fileLink(4, "notes/b.md", "z"),
				fileLink(5, "other.md", "w"),
			},
			scope: "notes",
			want: map[string]notes.Decision{
				"notes":      notes.DecisionChanged,
				"notes/a.md": notes.DecisionChanged,
			},
			wantRemoved: []int64{4},
		},
		{
			name: "move out of scope is not a removal",
			entries: []model.RemoteTreeEntry{
				treeEntry("notes", "t2"),
				blobEntry("notes/b.md", "y"),
				treeEntry("other", "o"),
				blobEntry("other/a.md", "x"),
			},
			links: []*model.Link{
				folderLink(1, "notes", "t1"),
				fileLink(2, "notes/a.md", "x"),
				fileLink(3, "notes/b.md", "y"),
			},
			scope: "notes",
			want: map[string]notes.Decision{
				"notes":      notes.DecisionChanged,
				"notes/b.md": notes.DecisionUnchanged,
			},
		},
		{
			name: "move into scope is a rename",
			entries: []model.RemoteTreeEntry{
				treeEntry("notes", "t2"),
				blobEntry("notes/a.md", "x"),
			},
			links: []*model.Link{
				folderLink(1, "notes", "t1"),
				fileLink(2, "other/a.md", "x"),
			},
			scope:     "notes",
			want:      map[string]notes.Decision{"notes": notes.DecisionChanged, "notes/a.md": notes.DecisionRenamed},
			wantLinks: map[string]int64{"notes/a.md": 2},
		},
		{
			name: "non-markdown entries are ignored",
			entries: []model.RemoteTreeEntry{
				treeEntry("img", "t"), blobEntry("img/cat.png", "c"), blobEntry("a.md", "x"),
			},
			links: []*model.Link{fileLink(1, "a.md", "x")},
			want:  map[string]notes.Decision{"a.md": notes.DecisionUnchanged},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			diff := notes.DiffTree(tt.entries, tt.links, tt.scope)

			got := decisions(diff)
			if len(got) != len(tt.want) {
				t.Errorf("classified %d entries %v, want %d %v", len(got), got, len(tt.want), tt.want)
			}
			for p, want := range tt.want {
				if got[p] != want {
					t.Errorf("%s = %s, want %s", p, got[p], want)
				}
			}
			for p, id := range tt.wantLinks {
				found := false
				for _, m := range diff.Existing {
					if m.Entry.Path == p {
						found = true
						if m.Link.ID != id {
							t.Errorf("%s matched link %d, want %d", p, m.Link.ID, id)
						}
					}
				}
				if !found {
					t.Errorf("%s not matched to a link", p)
				}
			}
			if ids := linkIDs(diff.Removed); !equalIDs(ids, tt.wantRemoved) {
				t.Errorf("removed = %v, want %v", ids, tt.wantRemoved)
			}
			if ids := linkIDs(diff.Resolved); !equalIDs(ids, tt.wantResolved) {
				t.Errorf("resolved = %v, want %v", ids, tt.wantResolved)
			}
		})
	}
}

func equalIDs(a, b []int64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestDiffTree_NewEntriesParentsFirst(t *testing.T) {
	entries := []model.RemoteTreeEntry{
		blobEntry("a/b/c/d.md", "1"),
		treeEntry("a/b/c", "2"),
		blobEntry("a/z.md", "3"),
		treeEntry("a/b", "4"),
		treeEntry("a", "5"),
	}
	diff := notes.DiffTree(entries, nil, "")
	want := []string{"a", "a/b", "a/z.md", "a/b/c", "a/b/c/d.md"}
	if len(diff.New) != len(want) {
		t.Fatalf("new = %d entries, want %d", len(diff.New), len(want))
	}
	for i, e := range diff.New {
		if e.Path != want[i] {
			t.Errorf("new[%d] = %s, want %s", i, e.Path, want[i])
		}
	}
	if len(diff.Renamed()) != 0 || len(diff.Changed()) != 0 {
		t.Error("fresh tree produced renames or changes")
	}
}
