package notes_test

import (
	"errors"
	"testing"

	"mdnotes/internal/model"
	"mdnotes/internal/notes"
)

func TestUpdateEditorSettings(t *testing.T) {
	e := newEnv(t)

	custom := model.DefaultEditorSettings()
	custom.FontSize = 20
	custom.VimMode = true
	custom.Theme = "light"
	if err := e.svc.UpdateEditorSettings(e.ctx, e.user.ID, custom); err != nil {
		t.Fatalf("UpdateEditorSettings() error = %v", err)
	}
	got, err := e.svc.EditorSettings(e.ctx, e.user.ID)
	if err != nil {
		t.Fatalf("EditorSettings() error = %v", err)
	}
	if *got != custom {
		t.Errorf("EditorSettings() = %+v, want %+v", *got, custom)
	}

	for _, size := range []int{0, 7, 49} {
		bad := custom
		bad.FontSize = size
		if err := e.svc.UpdateEditorSettings(e.ctx, e.user.ID, bad); !errors.Is(err, notes.ErrInvalid) {
			t.Errorf("font size %d: error = %v, want ErrInvalid", size, err)
		}
	}
}

func TestSetKeybinding(t *testing.T) {
	e := newEnv(t)

	steps := []struct {
		name, key string
	}{
		{"save", "Mod-s"},
		{"bold", "Mod-b"},
		{"save", "Mod-Shift-s"},
	}
	for _, s := range steps {
		if err := e.svc.SetKeybinding(e.ctx, e.user.ID, s.name, s.key); err != nil {
			t.Fatalf("SetKeybinding(%q, %q) error = %v", s.name, s.key, err)
		}
	}

	bindings := func() map[string]string {
		ws, err := e.svc.Workspace(e.ctx, e.user.ID)
		if err != nil {
			t.Fatalf("Workspace() error = %v", err)
		}
		out := make(map[string]string)
		for _, kb := range ws.Keybindings {
			out[kb.Name] = kb.Key
		}
		return out
	}
	got := bindings()
	if len(got) != 2 || got["save"] != "Mod-Shift-s" || got["bold"] != "Mod-b" {
		t.Errorf("keybindings = %v", got)
	}

	if err := e.svc.SetKeybinding(e.ctx, e.user.ID, "bold", ""); err != nil {
		t.Fatalf("reset error = %v", err)
	}
	if _, ok := bindings()["bold"]; ok {
		t.Error("reset keybinding still stored")
	}

	for _, tt := range []struct{ name, key string }{
		{"", "Mod-x"},
		{"save", string(make([]byte, 65))},
	} {
		if err := e.svc.SetKeybinding(e.ctx, e.user.ID, tt.name, tt.key); !errors.Is(err, notes.ErrInvalid) {
			t.Errorf("SetKeybinding(%q) error = %v, want ErrInvalid", tt.name, err)
		}
	}
}
