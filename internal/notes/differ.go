package notes

import (
	"path"
	"sort"

	"mdnotes/internal/model"
)

// Decision classifies one remote tree entry against the local link rows.
type Decision int

const (
	// DecisionUnchanged: sha and path both match an active link.
	DecisionUnchanged Decision = iota
	// DecisionRenamed: sha matches an active link whose path no longer exists remotely.
	DecisionRenamed
	// DecisionChanged: path matches an active link whose sha differs or was never pushed.
	DecisionChanged
	// DecisionNew: nothing local corresponds to the entry.
	DecisionNew
	// DecisionIgnored: the entry is the unchanged remote copy of an item
	// deleted, renamed or moved locally and not yet pushed.
	DecisionIgnored
)

func (d Decision) String() string {
	switch d {
	case DecisionUnchanged:
		return "unchanged"
	case DecisionRenamed:
		return "renamed"
	case DecisionChanged:
		return "changed"
	case DecisionNew:
		return "new"
	case DecisionIgnored:
		return "ignored"
	default:
		return "unknown"
	}
}

// Match pairs a remote entry with the link row it was classified against.
// Link is nil for DecisionNew.
type Match struct {
	Entry    model.RemoteTreeEntry
	Link     *model.Link
	Decision Decision
}

// Diff is the differ output for one repository and scope.
type Diff struct {
	// Existing holds unchanged, renamed and changed entries.
	Existing []Match
	// New holds entries with no local counterpart, ordered parents first.
	New []model.RemoteTreeEntry
	// Removed holds pushed active links whose item is gone remotely.
	Removed []*model.Link
	// Ignored holds entries shadowed by a superseded or pending-delete link.
	Ignored []Match
	// Resolved holds superseded and pending-delete links that no longer
	// guard anything: their path is gone remotely, or the remote copy changed
	// after the local edit and is pulled as new.
	Resolved []*model.Link
}

// Renamed returns the existing matches whose path changed.
func (d *Diff) Renamed() []Match { return d.filter(DecisionRenamed) }

// Changed returns the existing matches whose content changed.
func (d *Diff) Changed() []Match { return d.filter(DecisionChanged) }

func (d *Diff) filter(dec Decision) []Match {
	var out []Match
	for _, m := range d.Existing {
		if m.Decision == dec {
			out = append(out, m)
		}
	}
	return out
}

// RelevantEntries keeps markdown blobs and the trees that contain them.
func RelevantEntries(entries []model.RemoteTreeEntry) []model.RemoteTreeEntry {
	ancestors := make(map[string]bool)
	for _, e := range entries {
		if e.IsBlob() && model.IsMarkdown(e.Path) {
			for dir := model.ParentPath(e.Path); dir != ""; dir = model.ParentPath(dir) {
				ancestors[dir] = true
			}
		}
	}

	var out []model.RemoteTreeEntry
	for _, e := range entries {
		switch {
		case e.IsBlob() && model.IsMarkdown(e.Path):
			out = append(out, e)
		case e.Type == model.EntryTree && ancestors[e.Path]:
			out = append(out, e)
		}
	}
	sortEntries(out)
	return out
}

// sortEntries orders entries by depth, then path, so parents precede children.
func sortEntries(entries []model.RemoteTreeEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		di, dj := depth(entries[i].Path), depth(entries[j].Path)
		if di != dj {
			return di < dj
		}
		return entries[i].Path < entries[j].Path
	})
}

func depth(p string) int {
	n := 0
	for i := 0; i < len(p); i++ {
		if p[i] == '/' {
			n++
		}
	}
	return n
}

func entryItemType(e model.RemoteTreeEntry) model.ItemType {
	if e.IsBlob() {
		return model.ItemFile
	}
	return model.ItemFolder
}

type typedKey struct {
	typ model.ItemType
	key string
}

// linkLookup is the two-key index the differ consults: by content hash
// first, then by path. Each active link can be consumed by one entry only.
type linkLookup struct {
	byHash     map[typedKey][]*model.Link
	byPath     map[typedKey][]*model.Link
	tombstones map[typedKey]*model.Link
	consumed   map[int64]bool
}

func newLinkLookup(links []*model.Link) *linkLookup {
	lk := &linkLookup{
		byHash:     make(map[typedKey][]*model.Link),
		byPath:     make(map[typedKey][]*model.Link),
		tombstones: make(map[typedKey]*model.Link),
		consumed:   make(map[int64]bool),
	}
	sorted := append([]*model.Link(nil), links...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })

	for _, l := range sorted {
		if l.IsRoot() {
			continue
		}
		if l.State != model.LinkActive {
			k := typedKey{l.Type, l.Path}
			if _, ok := lk.tombstones[k]; !ok {
				lk.tombstones[k] = l
			}
			continue
		}
		lk.byPath[typedKey{l.Type, l.Path}] = append(lk.byPath[typedKey{l.Type, l.Path}], l)
		if l.Pushed() {
			lk.byHash[typedKey{l.Type, l.Sha}] = append(lk.byHash[typedKey{l.Type, l.Sha}], l)
		}
	}
	return lk
}

func (lk *linkLookup) exact(e model.RemoteTreeEntry) *model.Link {
	for _, l := range lk.byPath[typedKey{entryItemType(e), e.Path}] {
		if !lk.consumed[l.ID] && l.Sha == e.Sha {
			return l
		}
	}
	return nil
}

// moved returns a link with the entry's sha whose own path is gone remotely.
// A link with the same base name wins over other candidates.
func (lk *linkLookup) moved(e model.RemoteTreeEntry, remotePaths map[string]bool) *model.Link {
	var best *model.Link
	for _, l := range lk.byHash[typedKey{entryItemType(e), e.Sha}] {
		if lk.consumed[l.ID] || remotePaths[l.Path] {
			continue
		}
		if path.Base(l.Path) == path.Base(e.Path) {
			return l
		}
		if best == nil {
			best = l
		}
	}
	return best
}

func (lk *linkLookup) samePath(e model.RemoteTreeEntry) *model.Link {
	for _, l := range lk.byPath[typedKey{entryItemType(e), e.Path}] {
		if !lk.consumed[l.ID] {
			return l
		}
	}
	return nil
}

// DiffTree classifies the remote entries under scope ("" for the whole
// repository) against every link row of the repository. entries is the full
// recursive listing; links includes rows in all states.
//
// Matching runs over the whole listing so that an item moved across the
// scope boundary is recognized as moved rather than removed. Only decisions
// for entries and links under scope are reported.
func DiffTree(entries []model.RemoteTreeEntry, links []*model.Link, scope string) *Diff {
	relevant := RelevantEntries(entries)
	remotePaths := make(map[string]bool, len(relevant))
	for _, e := range relevant {
		remotePaths[e.Path] = true
	}

	lk := newLinkLookup(links)
	decided := make(map[string]*Match, len(relevant))
	claim := func(e model.RemoteTreeEntry, l *model.Link, dec Decision) {
		lk.consumed[l.ID] = true
		decided[e.Path] = &Match{Entry: e, Link: l, Decision: dec}
	}

	for _, e := range relevant {
		if l := lk.exact(e); l != nil {
			claim(e, l, DecisionUnchanged)
		}
	}
	for _, e := range relevant {
		if decided[e.Path] != nil {
			continue
		}
		if l := lk.moved(e, remotePaths); l != nil {
			claim(e, l, DecisionRenamed)
		}
	}
	for _, e := range relevant {
		if decided[e.Path] != nil {
			continue
		}
		if l := lk.samePath(e); l != nil {
			// An item recreated locally at a path whose old copy is pending
			// deletion stays local until pushed.
			if t := lk.tombstones[typedKey{l.Type, e.Path}]; t != nil && !l.Pushed() && t.Sha == e.Sha {
				continue
			}
			claim(e, l, DecisionChanged)
		}
	}

	var scoped []model.RemoteTreeEntry
	for _, e := range relevant {
		if model.WithinPath(e.Path, scope) {
			scoped = append(scoped, e)
		}
	}

	diff := &Diff{}
	resolved := make(map[int64]bool)
	for _, e := range scoped {
		if m := decided[e.Path]; m != nil {
			diff.Existing = append(diff.Existing, *m)
			continue
		}
		if t := lk.tombstones[typedKey{entryItemType(e), e.Path}]; t != nil {
			if t.Sha == e.Sha {
				diff.Ignored = append(diff.Ignored, Match{Entry: e, Link: t, Decision: DecisionIgnored})
				continue
			}
			resolved[t.ID] = true
			diff.Resolved = append(diff.Resolved, t)
		}
		diff.New = append(diff.New, e)
	}

	for _, l := range links {
		if l.IsRoot() || !model.WithinPath(l.Path, scope) {
			continue
		}
		switch {
		case l.State == model.LinkActive:
			if l.Pushed() && !lk.consumed[l.ID] {
				diff.Removed = append(diff.Removed, l)
			}
		case !remotePaths[l.Path] && !resolved[l.ID]:
			resolved[l.ID] = true
			diff.Resolved = append(diff.Resolved, l)
		}
	}
	sort.Slice(diff.Removed, func(i, j int) bool { return diff.Removed[i].Path < diff.Removed[j].Path })
	sort.Slice(diff.Resolved, func(i, j int) bool { return diff.Resolved[i].ID < diff.Resolved[j].ID })
	return diff
}
