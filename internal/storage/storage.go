// Package storage defines the persistence interface and its implementations.
package storage

import (
	"context"
	"errors"

	"tweet_monitor/internal/model"
)

// ErrAlreadyActive is returned by CreateJob when an active job already
// exists for the post.
var ErrAlreadyActive = errors.New("monitoring job already active for post")

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// Storage is the interface for all persistence operations.
type Storage interface {
	CreateJob(ctx context.Context, job *model.MonitoringJob) error
	GetActiveJobs(ctx context.Context) ([]model.MonitoringJob, error)
	GetJobByPostID(ctx context.Context, postID string) (*model.MonitoringJob, error)
	CompleteJob(ctx context.Context, postID string) error

	CreateSnapshot(ctx context.Context, snap *model.MetricSnapshot) error
	ListSnapshots(ctx context.Context, postID string) ([]model.MetricSnapshot, error)
	LatestSnapshotWithQuoteViews(ctx context.Context, postID string) (*model.MetricSnapshot, error)
	CountSnapshots(ctx context.Context, postID string) (int, error)

	Close() error
}
