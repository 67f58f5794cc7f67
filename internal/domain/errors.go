package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrInvalidPrompt = errors.New("invalid prompt")
)

// AuthError reports that no access credential could be obtained for an
// external API.
type AuthError struct {
	Err error
}

func (e *AuthError) Error() string {
	if e.Err == nil {
		return "auth: no access token available"
	}
	return fmt.Sprintf("auth: %v", e.Err)
}

func (e *AuthError) Unwrap() error { return e.Err }

// TransportError reports a network-level failure talking to an external API.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: transport: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// NoImageDataError is returned when the image API answered without a usable
// payload. Keys lists the fields that were present on the prediction.
type NoImageDataError struct {
	StatusCode int
	Keys       []string
}

func (e *NoImageDataError) Error() string {
	keys := "no prediction object"
	if len(e.Keys) > 0 {
		keys = strings.Join(e.Keys, ", ")
	}
	if e.StatusCode != 0 && (e.StatusCode < 200 || e.StatusCode > 299) {
		return fmt.Sprintf("no image data in response (status %d, keys: %s)", e.StatusCode, keys)
	}
	return fmt.Sprintf("no image data in response (keys: %s)", keys)
}

// GenerationExhaustedError is returned after every allowed attempt failed
// without image data.
type GenerationExhaustedError struct {
	Attempts int
	Last     error
}

func (e *GenerationExhaustedError) Error() string {
	return fmt.Sprintf("no image data after %d attempts", e.Attempts)
}

func (e *GenerationExhaustedError) Unwrap() error { return e.Last }
