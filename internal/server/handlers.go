package server

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/maauso/mediaops-api/internal/job"
	"github.com/maauso/mediaops-api/internal/job/id"
	"github.com/maauso/mediaops-api/internal/media"
)

// DefaultMaxBodyBytes bounds the size of a POST /jobs body.
const DefaultMaxBodyBytes int64 = 512 << 20

// Handlers contains the HTTP handlers for the API.
type Handlers struct {
	service            *job.Service
	validator          *validator.Validate
	logger             *slog.Logger
	enableAsyncProcess bool
	maxBodyBytes       int64
}

// HandlerOption is a function that configures a Handlers instance.
type HandlerOption func(*Handlers)

// WithAsyncProcessing enables or disables background processing.
// When disabled, CreateJob only creates the job and returns immediately
// without starting background processing.
func WithAsyncProcessing(enabled bool) HandlerOption {
	return func(h *Handlers) {
		h.enableAsyncProcess = enabled
	}
}

// WithMaxBodyBytes limits the size of request bodies.
func WithMaxBodyBytes(n int64) HandlerOption {
	return func(h *Handlers) {
		if n > 0 {
			h.maxBodyBytes = n
		}
	}
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(service *job.Service, logger *slog.Logger, opts ...HandlerOption) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Handlers{
		service:            service,
		validator:          validator.New(),
		logger:             logger,
		enableAsyncProcess: true,
		maxBodyBytes:       DefaultMaxBodyBytes,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Health handles GET /health requests.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
}

// CreateJob handles POST /jobs requests.
func (h *Handlers) CreateJob(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBodyBytes)

	var req CreateJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Warn("failed to decode request body",
			slog.String("request_id", RequestIDFromContext(r.Context())),
			slog.String("error", err.Error()),
		)
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large", "REQUEST_TOO_LARGE")
			return
		}
		writeError(w, http.StatusBadRequest, "invalid JSON body", "INVALID_JSON")
		return
	}

	if err := h.validator.Struct(req); err != nil {
		h.logger.Warn("request validation failed",
			slog.String("request_id", RequestIDFromContext(r.Context())),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusBadRequest, err.Error(), "VALIDATION_ERROR")
		return
	}

	input, err := toProcessInput(req)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), "INVALID_BASE64")
		return
	}

	createdJob, err := h.service.CreateJob(r.Context(), input)
	if err != nil {
		switch {
		case errors.Is(err, job.ErrInvalidInput):
			writeError(w, http.StatusBadRequest, err.Error(), "VALIDATION_ERROR")
		case errors.Is(err, job.ErrUploadsDisabled):
			writeError(w, http.StatusBadRequest, err.Error(), "S3_NOT_CONFIGURED")
		default:
			h.logger.Error("failed to create job",
				slog.String("error", err.Error()),
			)
			writeError(w, http.StatusInternalServerError, "failed to create job", "JOB_CREATION_FAILED")
		}
		return
	}

	// The job outlives the request, so processing gets a detached context.
	if h.enableAsyncProcess {
		go func(ctx context.Context, jobID string, inp job.ProcessInput) {
			if processErr := h.service.ProcessExistingJob(ctx, jobID, inp); processErr != nil {
				h.logger.Error("background processing failed",
					slog.String("job_id", jobID),
					slog.String("error", processErr.Error()),
				)
			}
		}(context.WithoutCancel(r.Context()), createdJob.ID, input)
	}

	h.logger.Info("job created",
		slog.String("job_id", createdJob.ID),
		slog.String("request_id", RequestIDFromContext(r.Context())),
		slog.String("operation", req.Operation),
	)

	writeJSON(w, http.StatusAccepted, CreateJobResponse{
		ID:     createdJob.ID,
		Status: string(createdJob.Status),
	})
}

// GetJob handles GET /jobs/{id} requests.
func (h *Handlers) GetJob(w http.ResponseWriter, r *http.Request) {
	jobID, ok := pathJobID(w, r)
	if !ok {
		return
	}

	foundJob, err := h.service.GetJob(r.Context(), jobID)
	if err != nil {
		h.jobLookupError(w, jobID, err)
		return
	}

	resp := JobResponse{
		ID:              foundJob.ID,
		Operation:       string(foundJob.Operation),
		Status:          string(foundJob.Status),
		Error:           foundJob.Error,
		ResultExtension: foundJob.ResultExtension,
		CreatedAt:       foundJob.CreatedAt,
		CompletedAt:     completedAt(foundJob),
	}

	if foundJob.Status == job.StatusCompleted {
		if foundJob.Operation == job.OperationDuration || foundJob.Operation == job.OperationMerge {
			d := foundJob.DurationMs
			resp.DurationMs = &d
		}
		if foundJob.PushToS3 && foundJob.ResultURL != "" {
			resp.ResultURL = foundJob.ResultURL
		} else if foundJob.ResultPath != "" {
			if encoded, err := h.readResultBase64(r.Context(), jobID); err != nil {
				// The job itself is still reported.
				h.logger.Error("failed to read job result",
					slog.String("job_id", jobID),
					slog.String("path", foundJob.ResultPath),
					slog.String("error", err.Error()),
				)
			} else {
				resp.ResultBase64 = encoded
			}
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

// DefaultListLimit caps GET /jobs unless the client asks for fewer.
const DefaultListLimit = 100

// ListJobs handles GET /jobs requests. The optional status and operation
// query parameters filter the result; limit caps its length.
func (h *Handlers) ListJobs(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	filter := job.Filter{
		Status:    job.Status(strings.ToUpper(query.Get("status"))),
		Operation: job.Operation(query.Get("operation")),
	}

	limit := DefaultListLimit
	if raw := query.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > DefaultListLimit {
			writeError(w, http.StatusBadRequest, "limit must be between 1 and 100", "INVALID_QUERY")
			return
		}
		limit = n
	}

	jobs, err := h.service.ListJobs(r.Context(), filter)
	if err != nil {
		if errors.Is(err, job.ErrInvalidInput) {
			writeError(w, http.StatusBadRequest, err.Error(), "INVALID_QUERY")
			return
		}
		h.logger.Error("failed to list jobs", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to list jobs", "JOB_FETCH_FAILED")
		return
	}
	if len(jobs) > limit {
		jobs = jobs[:limit]
	}

	resp := ListJobsResponse{Jobs: make([]JobSummary, 0, len(jobs)), Count: len(jobs)}
	for _, j := range jobs {
		resp.Jobs = append(resp.Jobs, JobSummary{
			ID:          j.ID,
			Operation:   string(j.Operation),
			Status:      string(j.Status),
			Error:       j.Error,
			CreatedAt:   j.CreatedAt,
			CompletedAt: completedAt(j),
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

// GetJobResult handles GET /jobs/{id}/result requests by streaming the
// stored result file.
func (h *Handlers) GetJobResult(w http.ResponseWriter, r *http.Request) {
	jobID, ok := pathJobID(w, r)
	if !ok {
		return
	}

	rc, foundJob, err := h.service.OpenResult(r.Context(), jobID)
	if err != nil {
		if errors.Is(err, job.ErrNoResult) {
			writeError(w, http.StatusConflict, "job has no result", "RESULT_NOT_AVAILABLE")
			return
		}
		h.jobLookupError(w, jobID, err)
		return
	}
	defer func() { _ = rc.Close() }()

	w.Header().Set("Content-Type", job.ContentType(foundJob.ResultExtension))
	w.Header().Set("Content-Disposition", "attachment; filename=\""+foundJob.ID+"."+foundJob.ResultExtension+"\"")
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, rc); err != nil {
		h.logger.Warn("failed to stream job result",
			slog.String("job_id", jobID),
			slog.String("error", err.Error()),
		)
	}
}

// DeleteJob handles DELETE /jobs/{id} requests.
func (h *Handlers) DeleteJob(w http.ResponseWriter, r *http.Request) {
	jobID, ok := pathJobID(w, r)
	if !ok {
		return
	}

	if err := h.service.DeleteJob(r.Context(), jobID); err != nil {
		if errors.Is(err, job.ErrJobNotTerminal) {
			writeError(w, http.StatusConflict, "job is still in progress", "JOB_NOT_FINISHED")
			return
		}
		h.jobLookupError(w, jobID, err)
		return
	}

	h.logger.Info("job deleted", slog.String("job_id", jobID))
	w.WriteHeader(http.StatusNoContent)
}

// pathJobID reads the {id} path value. Malformed IDs are rejected before
// they reach the repository or the filesystem.
func pathJobID(w http.ResponseWriter, r *http.Request) (string, bool) {
	jobID := r.PathValue("id")
	if jobID == "" {
		writeError(w, http.StatusBadRequest, "job ID is required", "MISSING_JOB_ID")
		return "", false
	}
	if !id.Valid(jobID) {
		writeError(w, http.StatusBadRequest, "malformed job ID", "INVALID_JOB_ID")
		return "", false
	}
	return jobID, true
}

func completedAt(j *job.Job) *time.Time {
	if j.CompletedAt.IsZero() {
		return nil
	}
	t := j.CompletedAt
	return &t
}

// jobLookupError maps repository errors to responses.
func (h *Handlers) jobLookupError(w http.ResponseWriter, jobID string, err error) {
	if errors.Is(err, job.ErrJobNotFound) {
		writeError(w, http.StatusNotFound, "job not found", "JOB_NOT_FOUND")
		return
	}
	h.logger.Error("failed to get job",
		slog.String("job_id", jobID),
		slog.String("error", err.Error()),
	)
	writeError(w, http.StatusInternalServerError, "failed to get job", "JOB_FETCH_FAILED")
}

func (h *Handlers) readResultBase64(ctx context.Context, jobID string) (string, error) {
	rc, _, err := h.service.OpenResult(ctx, jobID)
	if err != nil {
		return "", err
	}
	defer func() { _ = rc.Close() }()

	data, err := io.ReadAll(rc)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(data), nil
}

// toProcessInput decodes the request into the job service input.
func toProcessInput(req CreateJobRequest) (job.ProcessInput, error) {
	inputs := make([]job.Input, 0, len(req.Inputs))
	for i, in := range req.Inputs {
		data, err := base64.StdEncoding.DecodeString(in.Base64)
		if err != nil {
			return job.ProcessInput{}, fmt.Errorf("input %d is not valid base64", i)
		}
		inputs = append(inputs, job.Input{Data: data, Extension: in.Extension})
	}

	p := req.Params
	segments := make([]media.Segment, 0, len(p.Segments))
	for _, s := range p.Segments {
		segments = append(segments, media.Segment{StartMs: s.StartMs, EndMs: s.EndMs})
	}

	return job.ProcessInput{
		Operation: job.Operation(req.Operation),
		Inputs:    inputs,
		Params: job.Params{
			DelayMs:            p.DelayMs,
			Volume:             p.Volume,
			StartMs:            p.StartMs,
			EndMs:              p.EndMs,
			Segments:           segments,
			AtMs:               p.AtMs,
			IntegratedLoudness: p.IntegratedLoudness,
			LoudnessRange:      p.LoudnessRange,
			TruePeak:           p.TruePeak,
		},
		PushToS3: req.PushToS3,
	}, nil
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
	}
}

// writeError writes an error response in the standard format.
func writeError(w http.ResponseWriter, status int, message, code string) {
	writeJSON(w, status, ErrorResponse{
		Error: message,
		Code:  code,
	})
}
