package notes_test

import (
	"errors"
	"testing"
	"time"

	"mdnotes/internal/model"
	"mdnotes/internal/notes"
)

func TestRegister(t *testing.T) {
	e := newEnv(t)

	res, err := e.svc.Register(e.ctx, "  Grace@Example.com ", "hopper1906")
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if res.User.Email != "grace@example.com" {
		t.Errorf("email = %q, want normalized", res.User.Email)
	}
	if !res.Fresh || res.Session.ID == "" || res.Session.UserID != res.User.ID {
		t.Errorf("session = %+v, fresh %v", res.Session, res.Fresh)
	}
	if want := e.clock.Now().Add(24 * time.Hour); !res.Session.ExpiresAt.Equal(want) {
		t.Errorf("expires = %v, want %v", res.Session.ExpiresAt, want)
	}
	settings, err := e.svc.EditorSettings(e.ctx, res.User.ID)
	if err != nil || settings.FontSize != 16 {
		t.Errorf("EditorSettings() = %+v, %v, want defaults", settings, err)
	}

	tests := []struct {
		name     string
		email    string
		password string
		want     error
	}{
		{name: "duplicate email", email: "ADA@example.com", password: "whatever123", want: notes.ErrConflict},
		{name: "invalid email", email: "not-an-email", password: "whatever123", want: notes.ErrInvalid},
		{name: "short password", email: "new@example.com", password: "short", want: notes.ErrInvalid},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := e.svc.Register(e.ctx, tt.email, tt.password); !errors.Is(err, tt.want) {
				t.Errorf("Register() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestLogin(t *testing.T) {
	e := newEnv(t)

	res, err := e.svc.Login(e.ctx, "Ada@Example.com", "correct horse")
	if err != nil {
		t.Fatalf("Login() error = %v", err)
	}
	if res.User.ID != e.user.ID {
		t.Errorf("user = %s, want %s", res.User.ID, e.user.ID)
	}

	for _, tt := range []struct{ name, email, password string }{
		{"wrong password", "ada@example.com", "wrong horse"},
		{"unknown email", "nobody@example.com", "correct horse"},
		{"malformed email", "ada", "correct horse"},
	} {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.svc.Login(e.ctx, tt.email, tt.password)
			if !errors.Is(err, notes.ErrInvalid) {
				t.Fatalf("Login() error = %v, want ErrInvalid", err)
			}
			if msg, _ := notes.PublicMessage(err); msg != "Incorrect email or password" {
				t.Errorf("message = %q", msg)
			}
		})
	}
}

func TestSignInWithGitHub(t *testing.T) {
	e := newEnv(t)
	profile := &model.RemoteUser{ID: 583231, Login: "octocat"}

	first, err := e.svc.SignInWithGitHub(e.ctx, profile)
	if err != nil {
		t.Fatalf("SignInWithGitHub() error = %v", err)
	}
	if first.User.GithubID == nil || *first.User.GithubID != profile.ID || first.User.Email != "" {
		t.Errorf("user = %+v, want github-only account", first.User)
	}
	if !first.Fresh || first.Session.UserID != first.User.ID {
		t.Errorf("session = %+v", first.Session)
	}
	settings, err := e.svc.EditorSettings(e.ctx, first.User.ID)
	if err != nil || settings.FontSize != 16 {
		t.Errorf("EditorSettings() = %+v, %v, want defaults", settings, err)
	}

	second, err := e.svc.SignInWithGitHub(e.ctx, profile)
	if err != nil {
		t.Fatalf("second SignInWithGitHub() error = %v", err)
	}
	if second.User.ID != first.User.ID || second.Session.ID == first.Session.ID {
		t.Errorf("second sign-in = user %s session %s, want same user and a new session", second.User.ID, second.Session.ID)
	}

	t.Run("missing profile", func(t *testing.T) {
		if _, err := e.svc.SignInWithGitHub(e.ctx, &model.RemoteUser{}); !errors.Is(err, notes.ErrInvalid) {
			t.Errorf("SignInWithGitHub() error = %v, want ErrInvalid", err)
		}
	})

	t.Run("account has no password", func(t *testing.T) {
		if err := e.svc.ResetPassword(e.ctx, first.User, "", "battery staple"); !errors.Is(err, notes.ErrInvalid) {
			t.Errorf("ResetPassword() error = %v, want ErrInvalid", err)
		}
	})
}

func TestValidateSession(t *testing.T) {
	e := newEnv(t)
	login, err := e.svc.Login(e.ctx, "ada@example.com", "correct horse")
	if err != nil {
		t.Fatal(err)
	}
	token := login.Session.ID

	t.Run("unknown tokens", func(t *testing.T) {
		for _, tok := range []string{"", "bogus"} {
			if _, err := e.svc.ValidateSession(e.ctx, tok); !errors.Is(err, notes.ErrUnauthorized) {
				t.Errorf("ValidateSession(%q) error = %v, want ErrUnauthorized", tok, err)
			}
		}
	})

	t.Run("first half of lifetime", func(t *testing.T) {
		e.clock.Advance(time.Hour)
		res, err := e.svc.ValidateSession(e.ctx, token)
		if err != nil {
			t.Fatalf("ValidateSession() error = %v", err)
		}
		if res.Fresh || res.User.ID != e.user.ID {
			t.Errorf("result = %+v, want unchanged session of ada", res)
		}
	})

	t.Run("second half extends", func(t *testing.T) {
		e.clock.Advance(12 * time.Hour)
		res, err := e.svc.ValidateSession(e.ctx, token)
		if err != nil {
			t.Fatalf("ValidateSession() error = %v", err)
		}
		if !res.Fresh || !res.Session.ExpiresAt.Equal(e.clock.Now().Add(24*time.Hour)) {
			t.Errorf("session = %+v, fresh %v, want extended by a full lifetime", res.Session, res.Fresh)
		}
	})

	t.Run("expired", func(t *testing.T) {
		e.clock.Advance(25 * time.Hour)
		if _, err := e.svc.ValidateSession(e.ctx, token); !errors.Is(err, notes.ErrUnauthorized) {
			t.Fatalf("ValidateSession() error = %v, want ErrUnauthorized", err)
		}
		if s, _ := e.db.FindSession(e.ctx, token); s != nil {
			t.Error("expired session not removed")
		}
	})
}

func TestLogoutAndSignOutAll(t *testing.T) {
	e := newEnv(t)
	var tokens []string
	for i := 0; i < 3; i++ {
		res, err := e.svc.Login(e.ctx, "ada@example.com", "correct horse")
		if err != nil {
			t.Fatal(err)
		}
		tokens = append(tokens, res.Session.ID)
	}

	if err := e.svc.Logout(e.ctx, tokens[0]); err != nil {
		t.Fatalf("Logout() error = %v", err)
	}
	if _, err := e.svc.ValidateSession(e.ctx, tokens[0]); !errors.Is(err, notes.ErrUnauthorized) {
		t.Errorf("session after logout error = %v, want ErrUnauthorized", err)
	}

	if err := e.svc.SignOutAll(e.ctx, e.user.ID, tokens[2]); err != nil {
		t.Fatalf("SignOutAll() error = %v", err)
	}
	if _, err := e.svc.ValidateSession(e.ctx, tokens[1]); !errors.Is(err, notes.ErrUnauthorized) {
		t.Errorf("other session error = %v, want ErrUnauthorized", err)
	}
	if _, err := e.svc.ValidateSession(e.ctx, tokens[2]); err != nil {
		t.Errorf("kept session error = %v", err)
	}
}

func TestChangeEmail(t *testing.T) {
	e := newEnv(t)
	if _, err := e.svc.CreateUser(e.ctx, "taken@example.com", "password123"); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name  string
		email string
		want  error
	}{
		{name: "unchanged", email: "ADA@example.com", want: notes.ErrInvalid},
		{name: "taken", email: "taken@example.com", want: notes.ErrConflict},
		{name: "invalid", email: "ada@", want: notes.ErrInvalid},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := e.svc.ChangeEmail(e.ctx, e.user, tt.email); !errors.Is(err, tt.want) {
				t.Errorf("ChangeEmail() error = %v, want %v", err, tt.want)
			}
		})
	}

	if err := e.svc.ChangeEmail(e.ctx, e.user, "Lovelace@example.com"); err != nil {
		t.Fatalf("ChangeEmail() error = %v", err)
	}
	if e.user.Email != "lovelace@example.com" {
		t.Errorf("user email = %q", e.user.Email)
	}
	if _, err := e.svc.Login(e.ctx, "lovelace@example.com", "correct horse"); err != nil {
		t.Errorf("Login() with new email error = %v", err)
	}
}

func TestResetPassword(t *testing.T) {
	e := newEnv(t)

	tests := []struct {
		name, current, next string
		want                error
	}{
		{name: "wrong current", current: "wrong horse", next: "battery staple", want: notes.ErrInvalid},
		{name: "same password", current: "correct horse", next: "correct horse", want: notes.ErrInvalid},
		{name: "too short", current: "correct horse", next: "short", want: notes.ErrInvalid},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := e.svc.ResetPassword(e.ctx, e.user, tt.current, tt.next); !errors.Is(err, tt.want) {
				t.Errorf("ResetPassword() error = %v, want %v", err, tt.want)
			}
		})
	}

	if err := e.svc.ResetPassword(e.ctx, e.user, "correct horse", "battery staple"); err != nil {
		t.Fatalf("ResetPassword() error = %v", err)
	}
	if _, err := e.svc.Login(e.ctx, "ada@example.com", "correct horse"); !errors.Is(err, notes.ErrInvalid) {
		t.Errorf("Login() with old password error = %v, want ErrInvalid", err)
	}
	if _, err := e.svc.Login(e.ctx, "ada@example.com", "battery staple"); err != nil {
		t.Errorf("Login() with new password error = %v", err)
	}
}

func TestDeleteUser(t *testing.T) {
	e := newEnv(t)
	e.connect(baseFiles())
	login, _ := e.svc.Login(e.ctx, "ada@example.com", "correct horse")

	if err := e.svc.DeleteUser(e.ctx, e.user.ID); err != nil {
		t.Fatalf("DeleteUser() error = %v", err)
	}
	if len(e.gh.Deleted) != 1 || e.gh.Deleted[0] != testInstallation {
		t.Errorf("uninstalled = %v, want [%d]", e.gh.Deleted, testInstallation)
	}
	if _, err := e.svc.FindUserByEmail(e.ctx, "ada@example.com"); !errors.Is(err, notes.ErrNotFound) {
		t.Errorf("FindUserByEmail() error = %v, want ErrNotFound", err)
	}
	if _, err := e.svc.ValidateSession(e.ctx, login.Session.ID); !errors.Is(err, notes.ErrUnauthorized) {
		t.Errorf("ValidateSession() error = %v, want ErrUnauthorized", err)
	}
	if repo, _ := e.db.FindRepository(e.ctx, testRepoID); repo != nil {
		t.Error("repository survived its owner")
	}

	t.Run("remote failure is not fatal", func(t *testing.T) {
		e := newEnv(t)
		e.connect(baseFiles())
		e.gh.Fail["DeleteInstallation"] = errors.New("503 unavailable")
		if err := e.svc.DeleteUser(e.ctx, e.user.ID); err != nil {
			t.Errorf("DeleteUser() error = %v", err)
		}
	})
}
