// Package server provides the HTTP server for the media operations API.
// It includes handlers, middleware, routes, and DTOs separated from domain types.
package server

import "time"

// InputDTO is one media file of a request.
type InputDTO struct {
	// Base64 is the base64-encoded file content.
	Base64 string `json:"base64" validate:"required,base64"`
	// Extension is the container or image extension, e.g. "mp4" or "png".
	Extension string `json:"extension" validate:"required,alphanum,max=8"`
}

// SegmentDTO is a [start_ms, end_ms) span removed by cut_out_segments.
type SegmentDTO struct {
	StartMs int64 `json:"start_ms" validate:"min=0"`
	EndMs   int64 `json:"end_ms" validate:"gtfield=StartMs"`
}

// ParamsDTO carries the operation parameters. Only the fields used by the
// requested operation are read.
type ParamsDTO struct {
	// DelayMs delays the added audio track.
	DelayMs int64 `json:"delay_ms" validate:"min=0"`
	// Volume scales the added audio track; 1 when omitted.
	Volume *float64 `json:"volume,omitempty" validate:"omitempty,min=0,max=10"`
	// StartMs and EndMs bound a cut.
	StartMs *int64 `json:"start_ms,omitempty" validate:"omitempty,min=0"`
	EndMs   *int64 `json:"end_ms,omitempty" validate:"omitempty,min=1"`
	// Segments are the spans removed by cut_out_segments.
	Segments []SegmentDTO `json:"segments,omitempty" validate:"omitempty,dive"`
	// AtMs is the frame position for extract_frame.
	AtMs int64 `json:"at_ms" validate:"min=0"`
	// Loudness targets for normalize_loudness.
	IntegratedLoudness *float64 `json:"integrated_loudness,omitempty" validate:"omitempty,min=-70,max=-5"`
	LoudnessRange      *float64 `json:"loudness_range,omitempty" validate:"omitempty,min=1,max=50"`
	TruePeak           *float64 `json:"true_peak,omitempty" validate:"omitempty,min=-9,max=0"`
}

// CreateJobRequest is the HTTP request body for creating a new job.
type CreateJobRequest struct {
	// Operation is the media operation to run.
	Operation string `json:"operation" validate:"required,oneof=merge replace_audio mixin_audio cut cut_out_segments duration extract_frame watermark normalize_loudness"`
	// Inputs are the media files, in the order the operation expects.
	Inputs []InputDTO `json:"inputs" validate:"required,min=1,max=16,dive"`
	// Params holds the operation parameters.
	Params ParamsDTO `json:"params"`
	// PushToS3 indicates whether to upload the result to S3.
	PushToS3 bool `json:"push_to_s3"`
}

// CreateJobResponse is the HTTP response after creating a job.
type CreateJobResponse struct {
	// ID is the unique identifier for the created job.
	ID string `json:"id"`
	// Status is the initial job status.
	Status string `json:"status"`
}

// JobResponse is the HTTP response for getting job details.
type JobResponse struct {
	// ID is the unique identifier for the job.
	ID string `json:"id"`
	// Operation is the media operation the job runs.
	Operation string `json:"operation"`
	// Status is the current job status.
	Status string `json:"status"`
	// Error contains any error message if the job failed.
	Error string `json:"error,omitempty"`
	// DurationMs is the probed duration for merge and duration jobs.
	DurationMs *int64 `json:"duration_ms,omitempty"`
	// ResultExtension is the extension of the result file.
	ResultExtension string `json:"result_extension,omitempty"`
	// ResultBase64 is the base64-encoded result (if push_to_s3=false and completed).
	ResultBase64 string `json:"result_base64,omitempty"`
	// ResultURL is the S3 URL of the result (if push_to_s3=true and completed).
	ResultURL string `json:"result_url,omitempty"`
	// CreatedAt is when the job was created.
	CreatedAt time.Time `json:"created_at"`
	// CompletedAt is when the job reached a terminal state.
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// ErrorResponse is the standard error response format.
type ErrorResponse struct {
	// Error is the human-readable error message.
	Error string `json:"error"`
	// Code is the error code for programmatic handling.
	Code string `json:"code"`
}

// HealthResponse is the HTTP response for the health check endpoint.
type HealthResponse struct {
	// Status is the health status of the service.
	Status string `json:"status"`
}

// JobSummary is one entry of the job listing. It never carries result data.
type JobSummary struct {
	ID          string     `json:"id"`
	Operation   string     `json:"operation"`
	Status      string     `json:"status"`
	Error       string     `json:"error,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// ListJobsResponse is the HTTP response for listing jobs.
type ListJobsResponse struct {
	Jobs  []JobSummary `json:"jobs"`
	Count int          `json:"count"`
}
