package recording

import (
	"errors"
	"fmt"
)

// ErrToolMissing indicates the ffmpeg executable could not be found. Capture
// cannot run without it; the API degrades to serving existing deliverables.
var ErrToolMissing = errors.New("ffmpeg executable not found")

// ErrStreamUnavailable indicates a capture session could not connect to the
// live stream. The worker loop retries with backoff, never exits on it.
var ErrStreamUnavailable = errors.New("stream unavailable")

// ErrNoSegments indicates an assembly request found zero usable segments.
// Returned to callers as "not ready yet", not a crash.
var ErrNoSegments = errors.New("no segments available")

// ValidationError rejects a request before any work is attempted.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

// NewValidationError builds a ValidationError with a formatted message.
func NewValidationError(format string, args ...interface{}) *ValidationError {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

// AssemblyError carries the diagnostic output of a failed concatenation run.
type AssemblyError struct {
	Diagnostic string
	Err        error
}

func (e *AssemblyError) Error() string {
	return fmt.Sprintf("assembly failed: %v\nOutput: %s", e.Err, e.Diagnostic)
}

func (e *AssemblyError) Unwrap() error { return e.Err }
