package notes

import (
	"errors"
	"fmt"
)

// Error kinds surfaced to callers. The HTTP layer maps them to status codes.
var (
	ErrUnauthorized = errors.New("unauthorized")
	ErrNotFound     = errors.New("not found")
	ErrInvalid      = errors.New("invalid request")
	ErrConflict     = errors.New("conflict")
	ErrRemote       = errors.New("remote request failed")
)

// invalidf returns an ErrInvalid carrying a user-facing message.
func invalidf(format string, args ...any) error {
	return &kindError{kind: ErrInvalid, msg: fmt.Sprintf(format, args...)}
}

// conflictf returns an ErrConflict carrying a user-facing message.
func conflictf(format string, args ...any) error {
	return &kindError{kind: ErrConflict, msg: fmt.Sprintf(format, args...)}
}

func notFound(what string) error {
	return &kindError{kind: ErrNotFound, msg: what + " not found"}
}

func remote(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrRemote, err)
}

// kindError is an error whose message is safe to show to the user.
type kindError struct {
	kind error
	msg  string
}

func (e *kindError) Error() string { return e.msg }
func (e *kindError) Unwrap() error { return e.kind }

// PublicMessage returns the user-facing message of err when it carries one.
func PublicMessage(err error) (string, bool) {
	var ke *kindError
	if errors.As(err, &ke) {
		return ke.msg, true
	}
	return "", false
}
