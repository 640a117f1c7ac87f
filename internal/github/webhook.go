package github

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
)

// Webhook request headers.
const (
	EventHeader     = "X-GitHub-Event"
	SignatureHeader = "X-Hub-Signature-256"
)

// ErrBadSignature is returned when a webhook payload does not match its signature.
var ErrBadSignature = errors.New("webhook signature mismatch")

// LoadWebhookSecret reads the shared webhook secret, trimming surrounding whitespace.
func LoadWebhookSecret(path string) ([]byte, error) {
	return loadSecret(path, "webhook secret")
}

// LoadClientSecret reads the OAuth client secret of the app.
func LoadClientSecret(path string) (string, error) {
	secret, err := loadSecret(path, "oauth client secret")
	return string(secret), err
}

func loadSecret(path, what string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", what, err)
	}
	secret := strings.TrimSpace(string(data))
	if secret == "" {
		return nil, fmt.Errorf("%s %s is empty", what, path)
	}
	return []byte(secret), nil
}

// Sign returns the X-Hub-Signature-256 value for body.
func Sign(secret, body []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature checks the X-Hub-Signature-256 header against body.
func VerifySignature(secret, body []byte, header string) error {
	hexSum, ok := strings.CutPrefix(header, "sha256=")
	if !ok {
		return ErrBadSignature
	}
	got, err := hex.DecodeString(hexSum)
	if err != nil {
		return ErrBadSignature
	}
	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	if !hmac.Equal(got, mac.Sum(nil)) {
		return ErrBadSignature
	}
	return nil
}

// InstallationEvent is the payload of an "installation" webhook.
type InstallationEvent struct {
	Action       string `json:"action"`
	Installation struct {
		ID      int64 `json:"id"`
		Account struct {
			Login string `json:"login"`
		} `json:"account"`
	} `json:"installation"`
}

// ParseInstallationEvent decodes an installation webhook payload.
func ParseInstallationEvent(body []byte) (*InstallationEvent, error) {
	var ev InstallationEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return nil, fmt.Errorf("decoding installation event: %w", err)
	}
	if ev.Installation.ID == 0 {
		return nil, fmt.Errorf("installation event without installation id")
	}
	return &ev, nil
}
