package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite" // SQLite driver registration.

	"tweet_monitor/internal/model"
	"tweet_monitor/migrations"
)

const timeLayout = "2006-01-02T15:04:05Z"

// SQLite implements Storage backed by a SQLite database.
type SQLite struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at dsn and runs pending migrations.
func NewSQLite(dsn string) (*SQLite, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	if err := migrations.Run(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLite{db: db}, nil
}

// Close closes the underlying database connection.
func (s *SQLite) Close() error {
	return s.db.Close()
}

// CreateJob inserts a new active monitoring job and populates its ID and
// timestamps. Returns ErrAlreadyActive if an active job exists for the post.
func (s *SQLite) CreateJob(ctx context.Context, job *model.MonitoringJob) error {
	now := time.Now().UTC()
	if job.StartedAt.IsZero() {
		job.StartedAt = now
	}
	job.Status = model.JobActive
	job.CreatedAt = now

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO monitoring_jobs (post_id, post_url, status, started_at, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		job.PostID, job.PostURL, string(job.Status),
		job.StartedAt.UTC().Format(timeLayout), now.Format(timeLayout),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrAlreadyActive
		}
		return fmt.Errorf("insert job: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("last insert id: %w", err)
	}
	job.ID = id
	return nil
}

// GetActiveJobs returns all jobs with status active, oldest first.
func (s *SQLite) GetActiveJobs(ctx context.Context) ([]model.MonitoringJob, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, post_id, post_url, status, started_at, created_at
		 FROM monitoring_jobs WHERE status = ? ORDER BY id`,
		string(model.JobActive),
	)
	if err != nil {
		return nil, fmt.Errorf("query active jobs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var jobs []model.MonitoringJob
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, *j)
	}
	return jobs, rows.Err()
}

// GetJobByPostID returns the most recent job for the post, active or not.
// Returns ErrNotFound if the post was never monitored.
func (s *SQLite) GetJobByPostID(ctx context.Context, postID string) (*model.MonitoringJob, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, post_id, post_url, status, started_at, created_at
		 FROM monitoring_jobs WHERE post_id = ? ORDER BY id DESC LIMIT 1`,
		postID,
	)
	j, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return j, err
}

// CompleteJob transitions the active job for the post to completed.
// Completing a post with no active job is a no-op.
func (s *SQLite) CompleteJob(ctx context.Context, postID string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE monitoring_jobs SET status = ? WHERE post_id = ? AND status = ?`,
		string(model.JobCompleted), postID, string(model.JobActive),
	)
	if err != nil {
		return fmt.Errorf("complete job: %w", err)
	}
	return nil
}

// CreateSnapshot appends a metric snapshot and populates its ID and CreatedAt.
func (s *SQLite) CreateSnapshot(ctx context.Context, snap *model.MetricSnapshot) error {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO metric_snapshots
		   (post_id, like_count, retweet_count, reply_count, quote_count,
		    view_count, bookmark_count, quote_tweet_count, quote_view_sum,
		    data_source, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		snap.PostID, snap.LikeCount, snap.RetweetCount, snap.ReplyCount,
		snap.QuoteCount, snap.ViewCount, snap.BookmarkCount,
		snap.QuoteTweetCount, snap.QuoteViewSum, string(snap.DataSource),
		now.Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("insert snapshot: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("last insert id: %w", err)
	}
	snap.ID = id
	snap.CreatedAt = now
	return nil
}

// ListSnapshots returns all snapshots for the post, oldest first.
func (s *SQLite) ListSnapshots(ctx context.Context, postID string) ([]model.MetricSnapshot, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, post_id, like_count, retweet_count, reply_count, quote_count,
		        view_count, bookmark_count, quote_tweet_count, quote_view_sum,
		        data_source, created_at
		 FROM metric_snapshots WHERE post_id = ? ORDER BY created_at, id`,
		postID,
	)
	if err != nil {
		return nil, fmt.Errorf("query snapshots: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var snaps []model.MetricSnapshot
	for rows.Next() {
		sn, err := scanSnapshot(rows)
		if err != nil {
			return nil, err
		}
		snaps = append(snaps, *sn)
	}
	return snaps, rows.Err()
}

// LatestSnapshotWithQuoteViews returns the most recent snapshot for the
// post with a non-zero quote view sum, the fallback source for untrusted
// aggregates. Returns ErrNotFound if no such snapshot exists.
func (s *SQLite) LatestSnapshotWithQuoteViews(ctx context.Context, postID string) (*model.MetricSnapshot, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, post_id, like_count, retweet_count, reply_count, quote_count,
		        view_count, bookmark_count, quote_tweet_count, quote_view_sum,
		        data_source, created_at
		 FROM metric_snapshots
		 WHERE post_id = ? AND quote_view_sum > 0
		 ORDER BY created_at DESC, id DESC LIMIT 1`,
		postID,
	)
	sn, err := scanSnapshot(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return sn, err
}

// CountSnapshots returns the number of snapshots stored for the post.
func (s *SQLite) CountSnapshots(ctx context.Context, postID string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM metric_snapshots WHERE post_id = ?`, postID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count snapshots: %w", err)
	}
	return count, nil
}

// isUniqueViolation detects the partial unique index on active jobs.
// modernc.org/sqlite surfaces constraint failures as plain errors.
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

type scannable interface {
	Scan(dest ...any) error
}

func scanJob(row scannable) (*model.MonitoringJob, error) {
	var j model.MonitoringJob
	var status, startedStr, createdStr string
	err := row.Scan(&j.ID, &j.PostID, &j.PostURL, &status, &startedStr, &createdStr)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan job: %w", err)
	}
	j.Status = model.JobStatus(status)
	j.StartedAt, _ = time.Parse(timeLayout, startedStr)
	j.CreatedAt, _ = time.Parse(timeLayout, createdStr)
	return &j, nil
}

func scanSnapshot(row scannable) (*model.MetricSnapshot, error) {
	var sn model.MetricSnapshot
	var source, createdStr string
	err := row.Scan(&sn.ID, &sn.PostID, &sn.LikeCount, &sn.RetweetCount,
		&sn.ReplyCount, &sn.QuoteCount, &sn.ViewCount, &sn.BookmarkCount,
		&sn.QuoteTweetCount, &sn.QuoteViewSum, &source, &createdStr)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan snapshot: %w", err)
	}
	sn.DataSource = model.DataSource(source)
	sn.CreatedAt, _ = time.Parse(timeLayout, createdStr)
	return &sn, nil
}
