package github_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"mdnotes/internal/github"
)

func TestVerifySignature(t *testing.T) {
	secret := []byte("It's a Secret to Everybody")
	body := []byte("Hello, World!")
	// Example from the GitHub webhook documentation.
	const documented = "sha256=757107ea0eb2509fc211221cce984b8a37570b6d7586c22c46f4379c8b043e17"

	if got := github.Sign(secret, body); got != documented {
		t.Errorf("Sign() = %s, want %s", got, documented)
	}

	tests := []struct {
		name   string
		header string
		body   []byte
		ok     bool
	}{
		{"valid", documented, body, true},
		{"tampered body", documented, []byte("Hello, World?"), false},
		{"missing prefix", documented[len("sha256="):], body, false},
		{"sha1 header", "sha1=01dc10d0c83e72ed246219cdd91669667fe2ca59", body, false},
		{"not hex", "sha256=zz", body, false},
		{"empty", "", body, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := github.VerifySignature(secret, tt.body, tt.header)
			if tt.ok && err != nil {
				t.Errorf("VerifySignature() error = %v", err)
			}
			if !tt.ok && !errors.Is(err, github.ErrBadSignature) {
				t.Errorf("VerifySignature() error = %v, want ErrBadSignature", err)
			}
		})
	}
}

func TestParseInstallationEvent(t *testing.T) {
	ev, err := github.ParseInstallationEvent([]byte(`{"action":"deleted","installation":{"id":99,"account":{"login":"octo"}}}`))
	if err != nil {
		t.Fatalf("ParseInstallationEvent() error = %v", err)
	}
	if ev.Action != "deleted" || ev.Installation.ID != 99 || ev.Installation.Account.Login != "octo" {
		t.Errorf("event = %+v", ev)
	}

	for _, body := range []string{`not json`, `{"action":"created"}`} {
		if _, err := github.ParseInstallationEvent([]byte(body)); err == nil {
			t.Errorf("ParseInstallationEvent(%s) expected error", body)
		}
	}
}

func TestLoadWebhookSecret(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "secret")
	if err := os.WriteFile(path, []byte("  s3cret\n"), 0600); err != nil {
		t.Fatal(err)
	}
	got, err := github.LoadWebhookSecret(path)
	if err != nil || string(got) != "s3cret" {
		t.Errorf("LoadWebhookSecret() = %q, %v", got, err)
	}

	empty := filepath.Join(dir, "empty")
	os.WriteFile(empty, []byte("\n"), 0600)
	if _, err := github.LoadWebhookSecret(empty); err == nil {
		t.Error("LoadWebhookSecret(empty) expected error")
	}
	if _, err := github.LoadWebhookSecret(filepath.Join(dir, "missing")); err == nil {
		t.Error("LoadWebhookSecret(missing) expected error")
	}
}

func TestLoadClientSecret(t *testing.T) {
	path := filepath.Join(t.TempDir(), "client-secret")
	if err := os.WriteFile(path, []byte("abc123\n"), 0600); err != nil {
		t.Fatal(err)
	}
	got, err := github.LoadClientSecret(path)
	if err != nil || got != "abc123" {
		t.Errorf("LoadClientSecret() = %q, %v", got, err)
	}
}
