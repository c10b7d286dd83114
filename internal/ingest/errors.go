package ingest

import (
	"errors"

	"github.com/rotisserie/eris"
)

// Sentinel error kinds. Match with errors.Is.
var (
	// ErrUpload fails the file. The batch continues.
	ErrUpload = eris.New("document upload failed")
	// ErrSubmission means the async job could not be started. Triggers fallback.
	ErrSubmission = eris.New("async analysis submission failed")
	// ErrJobFailed is a terminal job failure reported by the backend. Never falls back.
	ErrJobFailed = eris.New("analysis job failed")
	// ErrFallback fails the file.
	ErrFallback = eris.New("synchronous analysis failed")
	// ErrBuildSections fails the file.
	ErrBuildSections = eris.New("section build failed")
	// ErrBatch aborts the remaining files of a batch.
	ErrBatch = eris.New("batch aborted")
	// ErrInvalidTransition is returned for a file state change outside the table.
	ErrInvalidTransition = eris.New("invalid file state transition")
)

// StageError tags an underlying cause with one of the sentinel kinds above so
// that both errors.Is(err, kind) and errors.Is(err, cause) hold.
type StageError struct {
	Kind  error
	Cause error
}

func (e *StageError) Error() string {
	if e.Cause == nil {
		return e.Kind.Error()
	}
	return e.Kind.Error() + ": " + e.Cause.Error()
}

func (e *StageError) Unwrap() []error {
	if e.Cause == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Cause}
}

func stageErr(kind, cause error) error {
	return &StageError{Kind: kind, Cause: cause}
}

// IsFallbackTrigger reports whether err should send the file to the
// synchronous fallback path.
func IsFallbackTrigger(err error) bool {
	return errors.Is(err, ErrSubmission)
}
