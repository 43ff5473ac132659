package pipeline

import (
	"errors"
	"fmt"
)

var (
	ErrNoVideoURL   = errors.New("assembled video has no storage url")
	ErrNotPublished = errors.New("run has no published url")
)

// PipelineError is the single error type a run fails with. Stage names the
// step that failed; Err keeps the provider, poller or assembly cause.
type PipelineError struct {
	RunID string
	Stage string
	Err   error
}

func (e *PipelineError) Error() string {
	if e.RunID == "" {
		return fmt.Sprintf("stage %s: %v", e.Stage, e.Err)
	}
	return fmt.Sprintf("run %s: stage %s: %v", e.RunID, e.Stage, e.Err)
}

func (e *PipelineError) Unwrap() error { return e.Err }

// ValidationError rejects a request before any run is created
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}
