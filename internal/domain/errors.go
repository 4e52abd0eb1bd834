package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrMissingCredential = errors.New("api key is required")
	ErrInvalidKind       = errors.New("invalid generation kind")
	ErrNoArtifacts       = errors.New("no artifacts were produced")
)

// SubmissionError is returned when a job could not be submitted and therefore
// never obtained a task id.
type SubmissionError struct {
	GenerationID string
	Kind         GenerationType
	Err          error
}

func (e *SubmissionError) Error() string {
	return fmt.Sprintf("submit %s job: %v", e.Kind, e.Err)
}

func (e *SubmissionError) Unwrap() error { return e.Err }

// PollError is a transient failure of a single status check. It never changes
// the persisted state of the record.
type PollError struct {
	TaskID string
	Err    error
}

func (e *PollError) Error() string {
	return fmt.Sprintf("poll task %s: %v", e.TaskID, e.Err)
}

func (e *PollError) Unwrap() error { return e.Err }

// ProviderFailure reports that the remote API declared the job failed.
type ProviderFailure struct {
	TaskID  string
	Message string
}

func (e *ProviderFailure) Error() string {
	return e.Message
}

// DownloadError reports that a job succeeded remotely but its artifact could
// not be fetched.
type DownloadError struct {
	URL string
	Err error
}

func (e *DownloadError) Error() string {
	return fmt.Sprintf("artifact download failed: %v", e.Err)
}

func (e *DownloadError) Unwrap() error { return e.Err }
