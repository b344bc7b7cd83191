// Package trust decides whether a fresh quote aggregate is usable and,
// when it is not, resolves a fallback from the last known-good snapshot.
package trust

import (
	"context"
	"errors"
	"fmt"

	"tweet_monitor/internal/model"
	"tweet_monitor/internal/storage"
)

// minCoveragePercent is the coverage at which a zero-view aggregate is
// still accepted: observing a majority of the reported quotes is good
// enough, full silence is not.
const minCoveragePercent = 50

// Trustworthy reports whether a fresh aggregate can be persisted as-is.
//
// An aggregate of exactly zero for a post that itself reports dozens of
// quotes almost always means pagination or the upstream API failed, not
// that engagement collapsed to nothing.
func Trustworthy(agg *model.QuoteAggregate, reportedQuoteCount int) bool {
	if agg.QuoteViewSum > 0 {
		return true
	}
	if reportedQuoteCount == 0 {
		return true
	}
	return agg.CoverageDefined() && agg.CoveragePercent >= minCoveragePercent
}

// Resolution holds the aggregate values chosen for the snapshot being
// written this cycle, with their provenance.
type Resolution struct {
	QuoteTweetCount int
	QuoteViewSum    int64
	DataSource      model.DataSource

	// Warned is set when untrusted fresh values were used because no
	// fallback snapshot exists; the caller should surface this.
	Warned bool
}

// SnapshotReader is the subset of storage the resolver needs.
type SnapshotReader interface {
	LatestSnapshotWithQuoteViews(ctx context.Context, postID string) (*model.MetricSnapshot, error)
}

// Resolve picks the aggregate values to persist for postID.
//
// A trustworthy aggregate is used directly. Otherwise the most recent
// snapshot with a non-zero view sum is reused, tagged fallback (or
// fallback_on_error when the distrust stems from a hard fetch failure).
// With no fallback available the fresh values are kept and tagged
// fresh_no_fallback rather than inventing data.
func Resolve(ctx context.Context, store SnapshotReader, postID string, agg *model.QuoteAggregate, reportedQuoteCount int, hadFetchFailure bool) (*Resolution, error) {
	if Trustworthy(agg, reportedQuoteCount) {
		return &Resolution{
			QuoteTweetCount: agg.QuoteTweetCount,
			QuoteViewSum:    agg.QuoteViewSum,
			DataSource:      model.SourceFresh,
		}, nil
	}

	prior, err := store.LatestSnapshotWithQuoteViews(ctx, postID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return &Resolution{
				QuoteTweetCount: agg.QuoteTweetCount,
				QuoteViewSum:    agg.QuoteViewSum,
				DataSource:      model.SourceFreshNoFallback,
				Warned:          true,
			}, nil
		}
		return nil, fmt.Errorf("load fallback snapshot for %s: %w", postID, err)
	}

	source := model.SourceFallback
	if hadFetchFailure {
		source = model.SourceFallbackOnError
	}
	return &Resolution{
		QuoteTweetCount: prior.QuoteTweetCount,
		QuoteViewSum:    prior.QuoteViewSum,
		DataSource:      source,
	}, nil
}
