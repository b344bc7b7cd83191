// Package quotes drives quote pagination for a tweet and aggregates view
// counts across distinct quoting authors.
package quotes

import (
	"context"
	"fmt"
	"time"

	"github.com/sethvargo/go-retry"

	"tweet_monitor/internal/model"
	"tweet_monitor/internal/twitter"
)

// PageFetcher fetches one page of quoting tweets. An empty cursor
// requests the first page.
type PageFetcher interface {
	QuotesPage(ctx context.Context, postID, cursor string) (*model.QuotePage, error)
}

const (
	// pageCapSlack extends the expected page count to absorb upstream
	// overcounting and deleted quotes.
	pageCapSlack = 2
	minPageCap   = 2

	// maxRecordedErrors bounds the Errors list on the aggregate.
	maxRecordedErrors = 5

	pageRetryAttempts = 2
	pageRetryDelay    = 500 * time.Millisecond
)

// Aggregator aggregates quote views for a post by walking the paginated
// quote lookup.
type Aggregator struct {
	fetcher  PageFetcher
	pageSize int
	maxPages int
}

// New creates an Aggregator. pageSize is the upstream page size used to
// size the page cap; maxPages is the hard ceiling on pages per run.
func New(fetcher PageFetcher, pageSize, maxPages int) *Aggregator {
	return &Aggregator{
		fetcher:  fetcher,
		pageSize: pageSize,
		maxPages: maxPages,
	}
}

// Aggregate walks quote pages for postID, deduplicating authors and
// summing their view counts. expectedQuoteCount is the post's own quote
// counter and sizes both the page cap and the coverage estimate.
//
// Page-level failures never abort an in-progress run: partial results
// are returned with the failure recorded in Errors and WasComplete set
// to false. Only a run that could not fetch a single page returns an
// error.
func (a *Aggregator) Aggregate(ctx context.Context, postID string, expectedQuoteCount int) (*model.QuoteAggregate, error) {
	agg := &model.QuoteAggregate{
		ReportedQuoteCount: expectedQuoteCount,
		CoveragePercent:    model.CoverageUndefined,
	}
	pageCap := a.pageCap(expectedQuoteCount)
	authorViews := make(map[string]int64)

	cursor := ""
	for agg.PagesFetched < pageCap {
		page, err := a.fetchPage(ctx, postID, cursor)
		if err != nil {
			// Without this page's cursor the next page is unreachable,
			// so any persistent failure ends pagination here.
			a.recordError(agg, err)
			if agg.PagesFetched == 0 {
				return nil, fmt.Errorf("fetch first quotes page for %s: %w", postID, err)
			}
			break
		}
		agg.PagesFetched++

		for _, item := range page.Items {
			if _, seen := authorViews[item.AuthorID]; seen {
				// An author quoting more than once folds into their
				// existing total instead of counting twice.
				agg.DuplicatesFolded++
			} else {
				agg.UniqueAuthors++
			}
			authorViews[item.AuthorID] += item.ViewCount
		}

		if !page.HasNext {
			agg.WasComplete = true
			break
		}
		cursor = page.NextCursor
	}

	for _, views := range authorViews {
		agg.QuoteViewSum += views
	}
	agg.QuoteTweetCount = agg.UniqueAuthors

	if expectedQuoteCount > 0 {
		pct := float64(agg.UniqueAuthors) / float64(expectedQuoteCount) * 100
		if pct > 100 {
			pct = 100
		}
		agg.CoveragePercent = pct
	}
	return agg, nil
}

// fetchPage fetches a single page, retrying transient failures a bounded
// number of times.
func (a *Aggregator) fetchPage(ctx context.Context, postID, cursor string) (*model.QuotePage, error) {
	var page *model.QuotePage
	backoff := retry.WithMaxRetries(pageRetryAttempts, retry.NewConstant(pageRetryDelay))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		p, err := a.fetcher.QuotesPage(ctx, postID, cursor)
		if err != nil {
			if twitter.IsRetryable(err) {
				return retry.RetryableError(err)
			}
			return err
		}
		page = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	return page, nil
}

func (a *Aggregator) pageCap(expectedQuoteCount int) int {
	n := expectedQuoteCount/a.pageSize + pageCapSlack
	if n < minPageCap {
		n = minPageCap
	}
	if n > a.maxPages {
		n = a.maxPages
	}
	return n
}

func (a *Aggregator) recordError(agg *model.QuoteAggregate, err error) {
	if len(agg.Errors) < maxRecordedErrors {
		agg.Errors = append(agg.Errors, err.Error())
	}
}
