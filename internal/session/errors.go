package session

import (
	"errors"
	"fmt"
)

var (
	ErrNoCookies      = errors.New("login produced no cookies")
	ErrUnexpectedBody = errors.New("unexpected response body")
	ErrAlreadyRun     = errors.New("orchestrator already ran")
	ErrInvalidOptions = errors.New("invalid orchestrator options")
)

// AuthenticationError means the interactive login did not yield a session.
type AuthenticationError struct {
	Err error
}

func (e *AuthenticationError) Error() string {
	return fmt.Sprintf("authentication failed: %v", e.Err)
}

func (e *AuthenticationError) Unwrap() error {
	return e.Err
}

// ResourceFetchError is a non-2xx response from the public or privileged resource.
type ResourceFetchError struct {
	Stage   State
	URL     string
	Status  int
	Snippet string
}

func (e *ResourceFetchError) Error() string {
	if e.Snippet == "" {
		return fmt.Sprintf("%s: %s returned status %d", e.Stage, e.URL, e.Status)
	}
	return fmt.Sprintf("%s: %s returned status %d: %s", e.Stage, e.URL, e.Status, e.Snippet)
}

// TokenFieldError names a required token missing from the tokens page.
type TokenFieldError struct {
	Field string
}

func (e *TokenFieldError) Error() string {
	return fmt.Sprintf("token field %q missing or empty", e.Field)
}

// StageError wraps the first failure of a run with the state it happened in.
type StageError struct {
	Stage State
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}
