// Package poller runs the periodic monitoring cycle: for every active
// job it fetches live engagement counters, aggregates quote views,
// applies the trust policy, and appends a metric snapshot.
package poller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"tweet_monitor/internal/model"
	"tweet_monitor/internal/notify"
	"tweet_monitor/internal/storage"
	"tweet_monitor/internal/trust"
	"tweet_monitor/internal/twitter"
)

// MetricsFetcher fetches a tweet's engagement counters.
type MetricsFetcher interface {
	TweetMetrics(ctx context.Context, postID string) (*model.TweetMetrics, error)
}

// QuoteAggregator aggregates quote views for a tweet.
type QuoteAggregator interface {
	Aggregate(ctx context.Context, postID string, expectedQuoteCount int) (*model.QuoteAggregate, error)
}

// Poller drives monitoring cycles over all active jobs.
type Poller struct {
	store   storage.Storage
	metrics MetricsFetcher
	quotes  QuoteAggregator
	sender  notify.Sender
	log     *slog.Logger

	interval time.Duration
	window   time.Duration
}

// New creates a Poller with the default poll interval and monitoring window.
func New(store storage.Storage, metrics MetricsFetcher, quotes QuoteAggregator, sender notify.Sender, log *slog.Logger) *Poller {
	if sender == nil {
		sender = notify.Nop{}
	}
	return &Poller{
		store:    store,
		metrics:  metrics,
		quotes:   quotes,
		sender:   sender,
		log:      log,
		interval: 10 * time.Minute,
		window:   72 * time.Hour,
	}
}

// SetPollInterval overrides the default 10-minute cycle interval.
func (p *Poller) SetPollInterval(d time.Duration) {
	p.interval = d
}

// SetMonitoringWindow overrides the default 72-hour monitoring window.
func (p *Poller) SetMonitoringWindow(d time.Duration) {
	p.window = d
}

// Window returns the configured monitoring window.
func (p *Poller) Window() time.Duration {
	return p.window
}

// CycleSummary reports the outcome of one monitoring cycle. A cycle
// always completes; per-job failures are accumulated, never raised.
type CycleSummary struct {
	RunID    string
	Duration time.Duration

	Processed    int
	Completed    int
	FallbackUsed int
	Skipped      int
	Warnings     int
	Errors       []string
}

// Run starts the cycle loop, blocking until ctx is cancelled.
func (p *Poller) Run(ctx context.Context) {
	p.RunCycle(ctx)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.RunCycle(ctx)
		}
	}
}

// RunCycle processes every active job once, isolating per-job failures.
func (p *Poller) RunCycle(ctx context.Context) CycleSummary {
	start := time.Now()
	sum := CycleSummary{RunID: uuid.NewString()}

	jobs, err := p.store.GetActiveJobs(ctx)
	if err != nil {
		p.log.Error("list active jobs", "run_id", sum.RunID, "error", err)
		sum.Errors = append(sum.Errors, fmt.Sprintf("list active jobs: %v", err))
		sum.Duration = time.Since(start)
		return sum
	}

	for _, job := range jobs {
		if ctx.Err() != nil {
			break
		}
		sum.Processed++
		p.processJob(ctx, job, &sum)
	}

	sum.Duration = time.Since(start)
	p.log.Info("cycle finished",
		"run_id", sum.RunID,
		"processed", sum.Processed,
		"completed", sum.Completed,
		"fallback_used", sum.FallbackUsed,
		"skipped", sum.Skipped,
		"errors", len(sum.Errors),
		"duration", sum.Duration,
	)
	if len(sum.Errors) > 0 || sum.Warnings > 0 {
		p.sender.Send(formatCycleSummary(sum))
	}
	return sum
}

// processJob runs the full pipeline for one job. Any failure is recorded
// on the summary and the job is left active for the next cycle.
func (p *Poller) processJob(ctx context.Context, job model.MonitoringJob, sum *CycleSummary) {
	if p.expired(job) {
		if err := p.store.CompleteJob(ctx, job.PostID); err != nil {
			p.recordError(sum, job.PostID, fmt.Errorf("complete expired job: %w", err))
			return
		}
		p.log.Info("monitoring window expired", "post_id", job.PostID)
		sum.Completed++
		return
	}

	metrics, err := p.metrics.TweetMetrics(ctx, job.PostID)
	if err != nil {
		// No snapshot this cycle; the job stays active and is retried
		// on the next tick. Unauthorized means broken credentials and
		// will not fix itself.
		if twitter.ErrorKind(err) == twitter.KindUnauthorized {
			p.log.Error("metrics fetch unauthorized, check credentials", "post_id", job.PostID, "error", err)
		} else {
			p.log.Warn("metrics fetch failed", "post_id", job.PostID, "error", err)
		}
		p.recordError(sum, job.PostID, fmt.Errorf("fetch metrics: %w", err))
		return
	}

	agg, aggErr := p.quotes.Aggregate(ctx, job.PostID, metrics.QuoteCount)
	if aggErr != nil {
		p.log.Warn("quote aggregation failed", "post_id", job.PostID, "error", aggErr)
		agg = &model.QuoteAggregate{
			ReportedQuoteCount: metrics.QuoteCount,
			CoveragePercent:    model.CoverageUndefined,
		}
	}
	hadFetchFailure := aggErr != nil || len(agg.Errors) > 0

	res, err := trust.Resolve(ctx, p.store, job.PostID, agg, metrics.QuoteCount, hadFetchFailure)
	if err != nil {
		p.recordError(sum, job.PostID, err)
		return
	}

	// Total fetch failure with nothing to fall back to: an absent data
	// point beats a snapshot that looks like a metrics collapse.
	if aggErr != nil && res.DataSource == model.SourceFreshNoFallback {
		p.log.Warn("no aggregate and no fallback, skipping snapshot", "post_id", job.PostID)
		sum.Skipped++
		return
	}

	snap := &model.MetricSnapshot{
		PostID:          job.PostID,
		LikeCount:       metrics.LikeCount,
		RetweetCount:    metrics.RetweetCount,
		ReplyCount:      metrics.ReplyCount,
		QuoteCount:      metrics.QuoteCount,
		ViewCount:       metrics.ViewCount,
		BookmarkCount:   metrics.BookmarkCount,
		QuoteTweetCount: res.QuoteTweetCount,
		QuoteViewSum:    res.QuoteViewSum,
		DataSource:      res.DataSource,
	}
	if err := p.store.CreateSnapshot(ctx, snap); err != nil {
		p.recordError(sum, job.PostID, fmt.Errorf("write snapshot: %w", err))
		return
	}

	switch res.DataSource {
	case model.SourceFallback, model.SourceFallbackOnError:
		sum.FallbackUsed++
		p.log.Info("reused last known-good aggregate",
			"post_id", job.PostID, "source", res.DataSource, "quote_view_sum", res.QuoteViewSum)
	case model.SourceFreshNoFallback:
		sum.Warnings++
		p.log.Warn("untrusted aggregate written without fallback", "post_id", job.PostID)
		p.sender.Send(formatNoFallbackWarning(job.PostID, agg))
	}

	p.log.Debug("snapshot written",
		"post_id", job.PostID,
		"source", snap.DataSource,
		"quote_tweet_count", snap.QuoteTweetCount,
		"quote_view_sum", snap.QuoteViewSum,
		"coverage", agg.CoveragePercent,
		"pages", agg.PagesFetched,
	)

	// A slow cycle may cross the window boundary between the pre-check
	// and the write; completing here keeps the job from one extra cycle.
	if p.expired(job) {
		if err := p.store.CompleteJob(ctx, job.PostID); err != nil {
			p.recordError(sum, job.PostID, fmt.Errorf("complete job after write: %w", err))
			return
		}
		sum.Completed++
	}
}

func (p *Poller) expired(job model.MonitoringJob) bool {
	return !time.Now().Before(job.StartedAt.Add(p.window))
}

func (p *Poller) recordError(sum *CycleSummary, postID string, err error) {
	sum.Errors = append(sum.Errors, fmt.Sprintf("%s: %v", postID, err))
}

// StartMonitoring validates that the tweet exists and creates an active
// monitoring job for it. The validation error keeps the upstream failure
// kind so callers can present a specific message.
func (p *Poller) StartMonitoring(ctx context.Context, postID, postURL string) (*model.MonitoringJob, error) {
	if _, err := p.metrics.TweetMetrics(ctx, postID); err != nil {
		return nil, fmt.Errorf("validate tweet %s: %w", postID, err)
	}

	job := &model.MonitoringJob{PostID: postID, PostURL: postURL}
	if err := p.store.CreateJob(ctx, job); err != nil {
		if errors.Is(err, storage.ErrAlreadyActive) {
			return nil, err
		}
		return nil, fmt.Errorf("create job: %w", err)
	}
	p.log.Info("monitoring started", "post_id", postID, "window", p.window)
	return job, nil
}

// StopMonitoring ends monitoring for the post early. Stopping a post
// with no active job is a no-op.
func (p *Poller) StopMonitoring(ctx context.Context, postID string) error {
	if err := p.store.CompleteJob(ctx, postID); err != nil {
		return fmt.Errorf("stop monitoring: %w", err)
	}
	p.log.Info("monitoring stopped", "post_id", postID)
	return nil
}
