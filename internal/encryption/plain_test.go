package encryption

import (
	"bytes"
	"strings"
	"testing"

	"mdnotes/internal/config"
)

func TestPlainEncryptor_RoundTrip(t *testing.T) {
	t.Parallel()
	e := NewPlainEncryptor()

	var encrypted bytes.Buffer
	if err := e.Encrypt(strings.NewReader("snapshot"), &encrypted); err != nil {
		t.Fatalf("Encrypt() error = %v", err)
	}
	if !bytes.HasPrefix(encrypted.Bytes(), plainHeader) {
		t.Errorf("output %q lacks header", encrypted.String())
	}

	dc, err := e.Unlock("anything")
	if err != nil {
		t.Fatalf("Unlock() error = %v", err)
	}
	var out bytes.Buffer
	if err := dc.Decrypt(&encrypted, &out); err != nil {
		t.Fatalf("Decrypt() error = %v", err)
	}
	if out.String() != "snapshot" {
		t.Errorf("Decrypt() = %q, want %q", out.String(), "snapshot")
	}
}

func TestPlainEncryptor_RejectsForeignData(t *testing.T) {
	t.Parallel()
	dc, _ := NewPlainEncryptor().Unlock("")
	var out bytes.Buffer
	if err := dc.Decrypt(strings.NewReader("SQLite format 3"), &out); err == nil {
		t.Error("Decrypt() of unframed data should return error")
	}
	if err := dc.Decrypt(strings.NewReader("MD"), &out); err == nil {
		t.Error("Decrypt() of short data should return error")
	}
}

func TestNewEncryptorFromConfig(t *testing.T) {
	tests := []struct {
		typ     string
		want    string
		wantErr bool
	}{
		{typ: "", want: "age"},
		{typ: "age", want: "age"},
		{typ: "plain", want: "plain"},
		{typ: "test", want: "plain"},
		{typ: "rot13", wantErr: true},
	}
	for _, tt := range tests {
		t.Run("type "+tt.typ, func(t *testing.T) {
			got, err := NewEncryptorFromConfig(config.EncryptionConfig{Type: tt.typ})
			if (err != nil) != tt.wantErr {
				t.Fatalf("error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			switch got.(type) {
			case *AgeEncryptor:
				if tt.want != "age" {
					t.Errorf("got AgeEncryptor, want %s", tt.want)
				}
			case PlainEncryptor:
				if tt.want != "plain" {
					t.Errorf("got PlainEncryptor, want %s", tt.want)
				}
			default:
				t.Errorf("unexpected encryptor %T", got)
			}
		})
	}
}
