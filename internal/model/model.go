// Package model defines the domain types used across the application.
package model

import "time"

// JobStatus defines the lifecycle state of a monitoring job.
type JobStatus string

// Supported job states. The only transition is active -> completed.
const (
	JobActive    JobStatus = "active"
	JobCompleted JobStatus = "completed"
)

// MonitoringJob tracks one monitored tweet. At most one job per post
// may be active at a time; completed jobs are kept as history.
type MonitoringJob struct {
	ID        int64
	PostID    string
	PostURL   string
	Status    JobStatus
	StartedAt time.Time
	CreatedAt time.Time
}

// DataSource records where a snapshot's quote-aggregate fields came from.
type DataSource string

// Aggregate provenance tags.
const (
	SourceFresh           DataSource = "fresh"
	SourceFallback        DataSource = "fallback"
	SourceFallbackOnError DataSource = "fallback_on_error"
	SourceFreshNoFallback DataSource = "fresh_no_fallback"
)

// MetricSnapshot is one timestamped record of a tweet's engagement
// counters plus the derived quote aggregate. Snapshots are append-only
// and ordered by CreatedAt per post.
type MetricSnapshot struct {
	ID     int64
	PostID string

	LikeCount     int
	RetweetCount  int
	ReplyCount    int
	QuoteCount    int
	ViewCount     int64
	BookmarkCount int

	QuoteTweetCount int
	QuoteViewSum    int64
	DataSource      DataSource

	CreatedAt time.Time
}

// TweetMetrics holds the engagement counters reported for a tweet by
// the primary metrics endpoint.
type TweetMetrics struct {
	LikeCount     int
	RetweetCount  int
	ReplyCount    int
	QuoteCount    int
	ViewCount     int64
	BookmarkCount int
}

// QuoteItem is one quoting tweet after boundary normalization.
type QuoteItem struct {
	AuthorID  string
	ViewCount int64
}

// QuotePage is one page of quoting tweets from the quote-lookup endpoint.
type QuotePage struct {
	Items      []QuoteItem
	HasNext    bool
	NextCursor string
}

// CoverageUndefined marks CoveragePercent when the expected quote count
// is zero and coverage cannot be computed.
const CoverageUndefined = -1

// QuoteAggregate is the result of driving quote pagination for one post.
// It is transient: the poller folds it into a MetricSnapshot.
type QuoteAggregate struct {
	// QuoteTweetCount is the number of distinct quoting authors observed.
	QuoteTweetCount int
	// ReportedQuoteCount is the post's own quote counter, kept alongside
	// the observed count so callers can choose which to persist.
	ReportedQuoteCount int

	QuoteViewSum     int64
	UniqueAuthors    int
	DuplicatesFolded int

	PagesFetched int
	WasComplete  bool
	// CoveragePercent estimates how much of the reported quote count was
	// observed; CoverageUndefined when ReportedQuoteCount is zero.
	CoveragePercent float64
	// Errors holds page-level failure messages, bounded by the aggregator.
	Errors []string
}

// CoverageDefined reports whether CoveragePercent carries a value.
func (a *QuoteAggregate) CoverageDefined() bool {
	return a.CoveragePercent != CoverageUndefined
}
