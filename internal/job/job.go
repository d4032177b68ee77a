// Package job provides the Job aggregate for media operation requests.
// It includes the Job entity with its state machine, the repository port and
// the service that runs operations in the background.
package job

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/maauso/mediaops-api/internal/job/id"
)

// Operation names the media operation a job runs.
type Operation string

const (
	OperationMerge             Operation = "merge"
	OperationReplaceAudio      Operation = "replace_audio"
	OperationMixinAudio        Operation = "mixin_audio"
	OperationCut               Operation = "cut"
	OperationCutOutSegments    Operation = "cut_out_segments"
	OperationDuration          Operation = "duration"
	OperationExtractFrame      Operation = "extract_frame"
	OperationWatermark         Operation = "watermark"
	OperationNormalizeLoudness Operation = "normalize_loudness"
)

// Operations lists every supported operation.
var Operations = []Operation{
	OperationMerge,
	OperationReplaceAudio,
	OperationMixinAudio,
	OperationCut,
	OperationCutOutSegments,
	OperationDuration,
	OperationExtractFrame,
	OperationWatermark,
	OperationNormalizeLoudness,
}

// IsValid returns true if the operation is supported.
func (o Operation) IsValid() bool {
	for _, op := range Operations {
		if o == op {
			return true
		}
	}
	return false
}

// ResultExtension returns the file extension of the operation's output,
// or "" when the operation produces no file.
func (o Operation) ResultExtension() string {
	switch o {
	case OperationDuration:
		return ""
	case OperationExtractFrame:
		return "png"
	case OperationNormalizeLoudness:
		return "mp3"
	default:
		return "mp4"
	}
}

// Status represents the current state of a Job.
type Status string

const (
	// StatusInQueue indicates the job is waiting for a free slot.
	StatusInQueue Status = "IN_QUEUE"
	// StatusRunning indicates the operation is executing.
	StatusRunning Status = "RUNNING"
	// StatusCompleted indicates the job finished successfully.
	StatusCompleted Status = "COMPLETED"
	// StatusFailed indicates the operation returned an error.
	StatusFailed Status = "FAILED"
	// StatusCancelled indicates the job was manually cancelled.
	StatusCancelled Status = "CANCELLED"
	// StatusTimedOut indicates the operation exceeded its time budget.
	StatusTimedOut Status = "TIMED_OUT"
)

// IsValid returns true if s is a known status.
func (s Status) IsValid() bool {
	_, ok := validTransitions[s]
	return ok
}

// ErrInvalidTransition is returned when an invalid state transition is attempted.
var ErrInvalidTransition = errors.New("invalid state transition")

// validTransitions defines which state transitions are allowed.
var validTransitions = map[Status][]Status{
	StatusInQueue:   {StatusRunning, StatusCancelled, StatusTimedOut},
	StatusRunning:   {StatusCompleted, StatusFailed, StatusCancelled, StatusTimedOut},
	StatusCompleted: {},
	StatusFailed:    {},
	StatusCancelled: {},
	StatusTimedOut:  {},
}

// canTransition checks if a transition from one status to another is valid.
func canTransition(from, to Status) bool {
	allowed, ok := validTransitions[from]
	if !ok {
		return false
	}
	for _, s := range allowed {
		if s == to {
			return true
		}
	}
	return false
}

// Job represents one media operation request and its outcome.
type Job struct {
	mu sync.RWMutex

	// ID is the unique identifier for this job.
	ID string
	// Operation is the media operation the job runs.
	Operation Operation
	// Status is the current job state.
	Status Status
	// Error contains any error message if the job failed.
	Error string
	// ResultPath is the local path of the stored result.
	ResultPath string
	// ResultURL is the S3 URL if PushToS3 was true.
	ResultURL string
	// ResultExtension is the container or image extension of the result.
	ResultExtension string
	// DurationMs is the probed duration for merge and duration jobs.
	DurationMs int64
	// PushToS3 indicates whether to upload the result to S3.
	PushToS3 bool
	// CreatedAt is when the job was created.
	CreatedAt time.Time
	// UpdatedAt is when the job was last updated.
	UpdatedAt time.Time
	// StartedAt is when processing started.
	StartedAt time.Time
	// CompletedAt is when processing finished.
	CompletedAt time.Time
}

// New creates a new Job for op with a generated ID and IN_QUEUE status.
func New(op Operation) *Job {
	return NewWithID(id.Generate(), op)
}

// NewWithID creates a new Job with the specified ID and IN_QUEUE status.
func NewWithID(jobID string, op Operation) *Job {
	now := time.Now()
	return &Job{
		ID:        jobID,
		Operation: op,
		Status:    StatusInQueue,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// TransitionTo attempts to change the job status to the specified state.
// Returns ErrInvalidTransition if the transition is not allowed.
func (j *Job) TransitionTo(status Status) error {
	return j.finish(status, "")
}

// finish moves the job to status and records errMsg, both only if the
// transition is allowed.
func (j *Job) finish(status Status, errMsg string) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if !canTransition(j.Status, status) {
		return fmt.Errorf("%w: %s to %s", ErrInvalidTransition, j.Status, status)
	}

	now := time.Now()
	j.Status = status
	j.UpdatedAt = now
	if errMsg != "" {
		j.Error = errMsg
	}

	if status == StatusRunning {
		j.StartedAt = now
	} else {
		j.CompletedAt = now
	}
	return nil
}

// Start moves a queued job to RUNNING.
func (j *Job) Start() error {
	return j.finish(StatusRunning, "")
}

// Complete marks a running job COMPLETED.
func (j *Job) Complete() error {
	return j.finish(StatusCompleted, "")
}

// Fail marks the job FAILED with the operation error.
func (j *Job) Fail(errMsg string) error {
	return j.finish(StatusFailed, errMsg)
}

// Cancel marks the job CANCELLED, for example when its caller went away.
func (j *Job) Cancel() error {
	return j.finish(StatusCancelled, "")
}

// Timeout marks the job TIMED_OUT with the deadline error.
func (j *Job) Timeout(errMsg string) error {
	return j.finish(StatusTimedOut, errMsg)
}

// GetStatus returns the current job status (thread-safe).
func (j *Job) GetStatus() Status {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.Status
}

// SetResult records where the result was stored.
func (j *Job) SetResult(path, url, ext string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.ResultPath = path
	j.ResultURL = url
	j.ResultExtension = ext
	j.UpdatedAt = time.Now()
}

// SetDuration records a probed duration.
func (j *Job) SetDuration(ms int64) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.DurationMs = ms
	j.UpdatedAt = time.Now()
}

// IsTerminal returns true if the job is in a terminal state.
func (j *Job) IsTerminal() bool {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.Status == StatusCompleted ||
		j.Status == StatusFailed ||
		j.Status == StatusCancelled ||
		j.Status == StatusTimedOut
}

// Clone creates a copy of the job for safe reads.
func (j *Job) Clone() *Job {
	j.mu.RLock()
	defer j.mu.RUnlock()

	return &Job{
		ID:              j.ID,
		Operation:       j.Operation,
		Status:          j.Status,
		Error:           j.Error,
		ResultPath:      j.ResultPath,
		ResultURL:       j.ResultURL,
		ResultExtension: j.ResultExtension,
		DurationMs:      j.DurationMs,
		PushToS3:        j.PushToS3,
		CreatedAt:       j.CreatedAt,
		UpdatedAt:       j.UpdatedAt,
		StartedAt:       j.StartedAt,
		CompletedAt:     j.CompletedAt,
	}
}
