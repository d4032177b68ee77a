// Package storage manages the on-disk working area of the service and the
// optional S3 delivery of job results.
//
// The working area has two directories under one root: sessions, where the
// media operations keep their ephemeral files, and results, where finished
// job outputs wait until they are fetched or deleted.
package storage

import (
	"context"
	"io"
	"time"
)

// Storage defines the interface for result storage and delivery.
type Storage interface {
	// SessionDir returns the directory that ephemeral sessions live in.
	SessionDir() string

	// SaveResult stores a finished job output as <jobID>.<ext> and returns
	// its path. An existing result for the same job is replaced.
	SaveResult(ctx context.Context, jobID, ext string, data io.Reader) (path string, err error)

	// OpenResult opens a stored result. The caller must close it.
	OpenResult(ctx context.Context, path string) (io.ReadCloser, error)

	// Remove deletes the given files. Missing files are ignored and removal
	// continues past individual failures.
	Remove(ctx context.Context, paths []string) error

	// Sweep deletes session files last modified before now minus maxAge and
	// returns how many were removed.
	Sweep(ctx context.Context, maxAge time.Duration) (int, error)

	// Upload puts data in the bucket under key and returns its URL.
	// Returns ErrS3NotConfigured when no bucket is configured.
	Upload(ctx context.Context, key, contentType string, data io.Reader) (url string, err error)

	// DeleteUpload removes an object put by Upload. A missing object is not
	// an error. Returns ErrS3NotConfigured when no bucket is configured.
	DeleteUpload(ctx context.Context, key string) error
}
