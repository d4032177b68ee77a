package job

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Compile-time check that RedisRepository implements Repository.
var _ Repository = (*RedisRepository)(nil)

const (
	defaultRedisPrefix = "mediaops"
	// DefaultRedisTTL is how long a job record lives after its last save.
	DefaultRedisTTL = 24 * time.Hour
)

// RedisRepository stores jobs as JSON strings in Redis so job state
// survives a restart. An index set tracks the IDs for List.
type RedisRepository struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// RedisOption configures a RedisRepository.
type RedisOption func(*RedisRepository)

// WithKeyPrefix namespaces the repository keys.
func WithKeyPrefix(prefix string) RedisOption {
	return func(r *RedisRepository) {
		if prefix != "" {
			r.prefix = prefix
		}
	}
}

// WithRecordTTL sets the expiry applied on every save.
func WithRecordTTL(ttl time.Duration) RedisOption {
	return func(r *RedisRepository) {
		if ttl > 0 {
			r.ttl = ttl
		}
	}
}

// NewRedisRepository creates a repository on client.
func NewRedisRepository(client *redis.Client, opts ...RedisOption) *RedisRepository {
	r := &RedisRepository{
		client: client,
		prefix: defaultRedisPrefix,
		ttl:    DefaultRedisTTL,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *RedisRepository) jobKey(id string) string {
	return fmt.Sprintf("%s:job:%s", r.prefix, id)
}

func (r *RedisRepository) indexKey() string {
	return r.prefix + ":jobs"
}

// Save writes the job and adds it to the index.
func (r *RedisRepository) Save(ctx context.Context, job *Job) error {
	data, err := json.Marshal(toRecord(job))
	if err != nil {
		return fmt.Errorf("marshal job %s: %w", job.ID, err)
	}

	pipe := r.client.TxPipeline()
	pipe.Set(ctx, r.jobKey(job.ID), data, r.ttl)
	pipe.SAdd(ctx, r.indexKey(), job.ID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("save job %s: %w", job.ID, err)
	}
	return nil
}

// FindByID loads a job. Returns ErrJobNotFound when the key is missing or
// has expired.
func (r *RedisRepository) FindByID(ctx context.Context, id string) (*Job, error) {
	data, err := r.client.Get(ctx, r.jobKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrJobNotFound
		}
		return nil, fmt.Errorf("load job %s: %w", id, err)
	}
	return decodeRecord(data)
}

// List returns the matching jobs still present, newest first. IDs whose
// record has expired are dropped from the index.
func (r *RedisRepository) List(ctx context.Context, filter Filter) ([]*Job, error) {
	ids, err := r.client.SMembers(ctx, r.indexKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	if len(ids) == 0 {
		return []*Job{}, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = r.jobKey(id)
	}
	values, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}

	jobs := make([]*Job, 0, len(values))
	var expired []any
	for i, v := range values {
		s, ok := v.(string)
		if !ok {
			expired = append(expired, ids[i])
			continue
		}
		job, err := decodeRecord([]byte(s))
		if err != nil {
			return nil, err
		}
		if filter.Matches(job) {
			jobs = append(jobs, job)
		}
	}

	if len(expired) > 0 {
		if err := r.client.SRem(ctx, r.indexKey(), expired...).Err(); err != nil {
			return nil, fmt.Errorf("prune job index: %w", err)
		}
	}
	newestFirst(jobs)
	return jobs, nil
}

// Delete removes a job and its index entry.
func (r *RedisRepository) Delete(ctx context.Context, id string) error {
	pipe := r.client.TxPipeline()
	del := pipe.Del(ctx, r.jobKey(id))
	pipe.SRem(ctx, r.indexKey(), id)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("delete job %s: %w", id, err)
	}
	if del.Val() == 0 {
		return ErrJobNotFound
	}
	return nil
}

// record is the stored form of a Job.
type record struct {
	ID              string    `json:"id"`
	Operation       Operation `json:"operation"`
	Status          Status    `json:"status"`
	Error           string    `json:"error,omitempty"`
	ResultPath      string    `json:"result_path,omitempty"`
	ResultURL       string    `json:"result_url,omitempty"`
	ResultExtension string    `json:"result_extension,omitempty"`
	DurationMs      int64     `json:"duration_ms,omitempty"`
	PushToS3        bool      `json:"push_to_s3"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
	StartedAt       time.Time `json:"started_at"`
	CompletedAt     time.Time `json:"completed_at"`
}

func toRecord(j *Job) record {
	c := j.Clone()
	return record{
		ID:              c.ID,
		Operation:       c.Operation,
		Status:          c.Status,
		Error:           c.Error,
		ResultPath:      c.ResultPath,
		ResultURL:       c.ResultURL,
		ResultExtension: c.ResultExtension,
		DurationMs:      c.DurationMs,
		PushToS3:        c.PushToS3,
		CreatedAt:       c.CreatedAt,
		UpdatedAt:       c.UpdatedAt,
		StartedAt:       c.StartedAt,
		CompletedAt:     c.CompletedAt,
	}
}

func decodeRecord(data []byte) (*Job, error) {
	var rec record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("decode job: %w", err)
	}
	return &Job{
		ID:              rec.ID,
		Operation:       rec.Operation,
		Status:          rec.Status,
		Error:           rec.Error,
		ResultPath:      rec.ResultPath,
		ResultURL:       rec.ResultURL,
		ResultExtension: rec.ResultExtension,
		DurationMs:      rec.DurationMs,
		PushToS3:        rec.PushToS3,
		CreatedAt:       rec.CreatedAt,
		UpdatedAt:       rec.UpdatedAt,
		StartedAt:       rec.StartedAt,
		CompletedAt:     rec.CompletedAt,
	}, nil
}
