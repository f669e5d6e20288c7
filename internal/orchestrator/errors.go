package orchestrator

import (
	"errors"
	"fmt"
	"strings"

	"github.com/fyrsmithlabs/schemadoc/internal/config"
)

// Process exit statuses.
const (
	ExitOK    = 0
	ExitError = 1
	ExitFatal = 2
)

// ConfigurationError is fatal before planning: missing credentials, an
// invalid glob, an unknown provider or inconsistent thresholds.
type ConfigurationError = config.ConfigurationError

// ErrRefinementExhausted is recorded on elements that were still flagged
// after the last refinement round. It is reported, never returned.
var ErrRefinementExhausted = errors.New("refinement rounds exhausted")

// SourceConnectionError means the schema source could not be reached or
// rejected the credentials. It aborts the run.
type SourceConnectionError struct {
	Op  string
	Err error
}

func (e *SourceConnectionError) Error() string {
	return fmt.Sprintf("schema source %s failed: %v", e.Op, e.Err)
}

func (e *SourceConnectionError) Unwrap() error {
	return e.Err
}

// UnsupportedFormatError means one subject could not be fetched or parsed.
// The job is skipped and the run continues.
type UnsupportedFormatError struct {
	Subject string
	Format  string
	Err     error
}

func (e *UnsupportedFormatError) Error() string {
	if e.Format != "" {
		return fmt.Sprintf("%s: cannot process %s schema: %v", e.Subject, e.Format, e.Err)
	}
	return fmt.Sprintf("%s: cannot process schema: %v", e.Subject, e.Err)
}

func (e *UnsupportedFormatError) Unwrap() error {
	return e.Err
}

// GenerationError means a batch produced no usable response after its
// retry. Its elements are marked failed.
type GenerationError struct {
	Subject string
	Batch   int
	Round   int
	Paths   []string
	Err     error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("%s batch %d: generation failed for %d element(s) [%s]: %v",
		e.Subject, e.Batch, len(e.Paths), strings.Join(e.Paths, ", "), e.Err)
}

func (e *GenerationError) Unwrap() error {
	return e.Err
}

// PublicationError means the publisher failed. Nothing is published.
type PublicationError struct {
	Publisher string
	Err       error
}

func (e *PublicationError) Error() string {
	return fmt.Sprintf("publish via %s failed: %v", e.Publisher, e.Err)
}

func (e *PublicationError) Unwrap() error {
	return e.Err
}

// IsFatal reports whether err aborts a run before any output is produced.
func IsFatal(err error) bool {
	var cfgErr *ConfigurationError
	var srcErr *SourceConnectionError
	return errors.As(err, &cfgErr) || errors.As(err, &srcErr)
}

// ExitCode maps a run outcome onto the process exit status: 2 for fatal
// configuration or connection failures, 1 when any job ended in error,
// publication failed or the run was cancelled, 0 otherwise.
func ExitCode(summary *RunSummary, err error) int {
	if err != nil {
		if IsFatal(err) {
			return ExitFatal
		}
		return ExitError
	}
	if summary != nil && (summary.ErrorCount() > 0 || summary.Cancelled) {
		return ExitError
	}
	return ExitOK
}
