package registry

import (
	"errors"
	"fmt"

	"github.com/fyrsmithlabs/schemadoc/internal/schema"
)

var (
	// ErrNotFound is returned when a subject or version does not exist.
	ErrNotFound = errors.New("subject not found")

	// ErrUnauthorized is returned for 401 and 403 responses.
	ErrUnauthorized = errors.New("registry authentication failed")
)

// Schema is the latest registered version of a subject.
type Schema struct {
	Subject    string
	Version    int
	ID         int
	Format     schema.Format
	Definition string

	// Path is the slash-separated file path relative to the source root,
	// set by file-backed sources.
	Path string
}

// APIError is a non-2xx registry response.
type APIError struct {
	StatusCode int
	ErrorCode  int
	Message    string
}

func (e *APIError) Error() string {
	if e.ErrorCode != 0 {
		return fmt.Sprintf("registry error (%d/%d): %s", e.StatusCode, e.ErrorCode, e.Message)
	}
	return fmt.Sprintf("registry error (%d): %s", e.StatusCode, e.Message)
}

func (e *APIError) Unwrap() error {
	switch e.StatusCode {
	case 404:
		return ErrNotFound
	case 401, 403:
		return ErrUnauthorized
	}
	return nil
}
