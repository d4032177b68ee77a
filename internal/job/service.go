package job

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/maauso/mediaops-api/internal/loudnorm"
	"github.com/maauso/mediaops-api/internal/media"
	"github.com/maauso/mediaops-api/internal/session"
	"github.com/maauso/mediaops-api/internal/storage"
)

// Service errors.
var (
	// ErrJobNotTerminal is returned when deleting a job that is still queued
	// or running.
	ErrJobNotTerminal = errors.New("job is not finished")
	// ErrNoResult is returned when a job has no stored result file.
	ErrNoResult = errors.New("job has no result")
	// ErrUploadsDisabled is returned when push_to_s3 is requested without S3.
	ErrUploadsDisabled = errors.New("S3 uploads are not enabled")
)

// DefaultOperationTimeout bounds one operation unless configured otherwise.
const DefaultOperationTimeout = 5 * time.Minute

// Normalizer runs two-pass loudness normalization.
type Normalizer interface {
	Normalize(ctx context.Context, audio []byte, targets loudnorm.Targets) ([]byte, error)
}

// Service runs media operation jobs.
// It coordinates the media processor, the loudness pipeline, storage and
// the repository.
type Service struct {
	repo       Repository
	processor  media.Processor
	normalizer Normalizer
	sessions   *session.Factory
	store      storage.Storage
	logger     *slog.Logger

	timeout time.Duration
	uploads bool
	slots   chan struct{}
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithOperationTimeout sets the time budget of one operation.
func WithOperationTimeout(d time.Duration) ServiceOption {
	return func(s *Service) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// WithUploads enables push_to_s3 requests.
func WithUploads(enabled bool) ServiceOption {
	return func(s *Service) {
		s.uploads = enabled
	}
}

// WithMaxConcurrentJobs limits how many operations run at once.
// Jobs beyond the limit stay IN_QUEUE until a slot frees up.
func WithMaxConcurrentJobs(n int) ServiceOption {
	return func(s *Service) {
		if n > 0 {
			s.slots = make(chan struct{}, n)
		}
	}
}

// NewService creates a new Service.
func NewService(
	repo Repository,
	processor media.Processor,
	normalizer Normalizer,
	sessions *session.Factory,
	store storage.Storage,
	logger *slog.Logger,
	opts ...ServiceOption,
) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{
		repo:       repo,
		processor:  processor,
		normalizer: normalizer,
		sessions:   sessions,
		store:      store,
		logger:     logger,
		timeout:    DefaultOperationTimeout,
		slots:      make(chan struct{}, 2),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateJob validates input and persists a new job in IN_QUEUE status.
func (s *Service) CreateJob(ctx context.Context, input ProcessInput) (*Job, error) {
	if err := input.Validate(); err != nil {
		return nil, err
	}
	if input.PushToS3 && !s.uploads {
		return nil, ErrUploadsDisabled
	}

	job := New(input.Operation)
	job.PushToS3 = input.PushToS3

	s.logger.Info("creating new job",
		slog.String("job_id", job.ID),
		slog.String("operation", string(input.Operation)),
		slog.Int("inputs", len(input.Inputs)),
		slog.Bool("push_to_s3", input.PushToS3),
	)

	if err := s.repo.Save(ctx, job); err != nil {
		s.logger.Error("failed to save job",
			slog.String("job_id", job.ID),
			slog.String("error", err.Error()),
		)
		return nil, err
	}

	return job, nil
}

// GetJob retrieves a job by ID.
func (s *Service) GetJob(ctx context.Context, id string) (*Job, error) {
	return s.repo.FindByID(ctx, id)
}

// ListJobs returns the jobs matching filter, newest first.
func (s *Service) ListJobs(ctx context.Context, filter Filter) ([]*Job, error) {
	if filter.Status != "" && !filter.Status.IsValid() {
		return nil, fmt.Errorf("%w: unknown status %q", ErrInvalidInput, filter.Status)
	}
	if filter.Operation != "" && !filter.Operation.IsValid() {
		return nil, fmt.Errorf("%w: unknown operation %q", ErrInvalidInput, filter.Operation)
	}
	return s.repo.List(ctx, filter)
}

// Process creates a job and runs it to completion.
func (s *Service) Process(ctx context.Context, input ProcessInput) (*Job, error) {
	job, err := s.CreateJob(ctx, input)
	if err != nil {
		return nil, err
	}
	if err := s.ProcessExistingJob(ctx, job.ID, input); err != nil {
		return nil, err
	}
	return s.repo.FindByID(ctx, job.ID)
}

// ProcessExistingJob runs the operation of a queued job and records the
// outcome. An operation failure is stored on the job and not returned; the
// returned error reports problems with the job itself.
func (s *Service) ProcessExistingJob(ctx context.Context, jobID string, input ProcessInput) error {
	select {
	case s.slots <- struct{}{}:
		defer func() { <-s.slots }()
	case <-ctx.Done():
		return ctx.Err()
	}

	job, err := s.repo.FindByID(ctx, jobID)
	if err != nil {
		return err
	}
	if err := job.Start(); err != nil {
		return fmt.Errorf("start job %s: %w", jobID, err)
	}
	if err := s.repo.Save(ctx, job); err != nil {
		return err
	}

	opCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	start := time.Now()
	out, runErr := s.run(opCtx, input)
	if runErr == nil && out.data != nil {
		runErr = s.storeResult(opCtx, job, out.data)
	}

	switch {
	case runErr == nil:
		job.SetDuration(out.durationMs)
		err = job.Complete()
	case errors.Is(runErr, context.DeadlineExceeded):
		err = job.Timeout(runErr.Error())
	case errors.Is(runErr, context.Canceled):
		err = job.Cancel()
	default:
		err = job.Fail(runErr.Error())
	}
	if err != nil {
		return fmt.Errorf("finish job %s: %w", jobID, err)
	}

	attrs := []any{
		slog.String("job_id", jobID),
		slog.String("operation", string(input.Operation)),
		slog.String("status", string(job.GetStatus())),
		slog.Duration("elapsed", time.Since(start)),
	}
	if runErr != nil {
		if stage, ok := loudnorm.FailedStage(runErr); ok {
			attrs = append(attrs, slog.String("loudnorm_stage", string(stage)))
		}
		s.logger.Error("job failed", append(attrs, slog.String("error", runErr.Error()))...)
	} else {
		s.logger.Info("job completed", attrs...)
	}

	return s.repo.Save(ctx, job)
}

// DeleteJob removes a finished job and its stored result.
func (s *Service) DeleteJob(ctx context.Context, id string) error {
	job, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return err
	}
	if !job.IsTerminal() {
		return ErrJobNotTerminal
	}

	if job.ResultURL != "" {
		err := s.store.DeleteUpload(ctx, resultKey(job.ID, job.ResultExtension))
		switch {
		case errors.Is(err, storage.ErrS3NotConfigured):
			s.logger.Warn("uploaded result left in bucket, S3 is no longer configured",
				slog.String("job_id", job.ID),
				slog.String("url", job.ResultURL),
			)
		case err != nil:
			return fmt.Errorf("delete uploaded result: %w", err)
		}
	}
	if job.ResultPath != "" {
		if err := s.store.Remove(ctx, []string{job.ResultPath}); err != nil {
			return fmt.Errorf("remove result: %w", err)
		}
	}
	return s.repo.Delete(ctx, id)
}

// PurgeExpired deletes finished jobs, and their results, that finished more
// than retention ago. It returns the number of jobs removed.
func (s *Service) PurgeExpired(ctx context.Context, retention time.Duration) (int, error) {
	jobs, err := s.repo.List(ctx, Filter{})
	if err != nil {
		return 0, fmt.Errorf("list jobs: %w", err)
	}

	cutoff := time.Now().Add(-retention)
	purged := 0
	for _, j := range jobs {
		if !j.IsTerminal() || j.UpdatedAt.After(cutoff) {
			continue
		}
		if err := s.DeleteJob(ctx, j.ID); err != nil && !errors.Is(err, ErrJobNotFound) {
			return purged, fmt.Errorf("purge job %s: %w", j.ID, err)
		}
		purged++
	}
	return purged, nil
}

// OpenResult opens the stored result of a completed job.
// The caller must close the returned reader.
func (s *Service) OpenResult(ctx context.Context, id string) (io.ReadCloser, *Job, error) {
	job, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if job.Status != StatusCompleted || job.ResultPath == "" {
		return nil, job, ErrNoResult
	}
	rc, err := s.store.OpenResult(ctx, job.ResultPath)
	if err != nil {
		return nil, job, err
	}
	return rc, job, nil
}

// outcome is what an operation produced.
type outcome struct {
	data       []byte
	durationMs int64
}

// run dispatches input to the matching operation.
func (s *Service) run(ctx context.Context, input ProcessInput) (outcome, error) {
	in, p := input.Inputs, input.Params

	switch input.Operation {
	case OperationMerge:
		return s.merge(ctx, in)

	case OperationReplaceAudio, OperationMixinAudio:
		video := media.StreamInput(bytes.NewReader(in[0].Data), in[0].Extension)
		audio := media.StreamInput(bytes.NewReader(in[1].Data), in[1].Extension)
		op := s.processor.ReplaceAudioIntoVideo
		if input.Operation == OperationMixinAudio {
			op = s.processor.MixinAudio
		}
		data, err := op(ctx, video, audio, p.DelayMs, p.volume())
		return outcome{data: data}, err

	case OperationCut:
		data, err := s.processor.Cut(ctx, in[0].Data, media.CutOptions{StartMs: p.StartMs, EndMs: p.EndMs})
		return outcome{data: data}, err

	case OperationCutOutSegments:
		data, err := s.processor.CutOutSegments(ctx, in[0].Data, p.Segments)
		return outcome{data: data}, err

	case OperationDuration:
		ms, err := s.processor.GetDurationFromBuffer(ctx, in[0].Data, in[0].Extension)
		return outcome{durationMs: ms}, err

	case OperationExtractFrame:
		data, err := s.processor.ExtractFrame(ctx, in[0].Data, p.AtMs)
		return outcome{data: data}, err

	case OperationWatermark:
		data, err := s.processor.WatermarkFullSize(ctx, in[0].Data, in[1].Data)
		return outcome{data: data}, err

	case OperationNormalizeLoudness:
		data, err := s.normalizer.Normalize(ctx, in[0].Data, p.targets())
		return outcome{data: data}, err
	}

	return outcome{}, fmt.Errorf("%w: unknown operation %q", ErrInvalidInput, input.Operation)
}

// merge spools every input into a session, since the merge operation reads
// its inputs from paths.
func (s *Service) merge(ctx context.Context, inputs []Input) (outcome, error) {
	staged := make([]*session.Session, 0, len(inputs))
	defer func() {
		for _, sess := range staged {
			if err := sess.Delete(); err != nil {
				s.logger.Warn("failed to delete merge input",
					slog.String("path", sess.Path()),
					slog.String("error", err.Error()),
				)
			}
		}
	}()

	paths := make([]string, 0, len(inputs))
	for _, in := range inputs {
		ext := in.Extension
		if ext == "" {
			ext = "mp4"
		}
		sess := s.sessions.New(ext)
		staged = append(staged, sess)
		if err := sess.Write(ctx, in.Data); err != nil {
			return outcome{}, err
		}
		paths = append(paths, sess.Path())
	}

	res, err := s.processor.Merge(ctx, paths)
	if err != nil {
		return outcome{}, err
	}
	return outcome{data: res.Buffer, durationMs: res.DurationMs}, nil
}

// storeResult keeps the result on disk and uploads it when requested.
func (s *Service) storeResult(ctx context.Context, job *Job, data []byte) error {
	ext := job.Operation.ResultExtension()

	path, err := s.store.SaveResult(ctx, job.ID, ext, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("save result: %w", err)
	}

	var url string
	if job.PushToS3 {
		url, err = s.store.Upload(ctx, resultKey(job.ID, ext), ContentType(ext), bytes.NewReader(data))
		if err != nil {
			if rmErr := s.store.Remove(ctx, []string{path}); rmErr != nil {
				s.logger.Warn("failed to remove result after upload error",
					slog.String("job_id", job.ID),
					slog.String("error", rmErr.Error()),
				)
			}
			return err
		}
	}

	job.SetResult(path, url, ext)
	return nil
}

// resultKey is the bucket key of an uploaded job result.
func resultKey(jobID, ext string) string {
	return "results/" + jobID + "." + ext
}

// ContentType returns the MIME type of a result extension.
func ContentType(ext string) string {
	switch ext {
	case "mp4":
		return "video/mp4"
	case "png":
		return "image/png"
	case "mp3":
		return "audio/mpeg"
	default:
		return "application/octet-stream"
	}
}
