// Package twitter wraps the upstream tweet API: the base metrics lookup
// and the paginated quote lookup. All payload-shape variance is
// normalized here; the rest of the application only sees model types.
package twitter

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"

	"tweet_monitor/internal/model"
)

// Client calls the upstream tweet API.
type Client struct {
	http *resty.Client
}

// New creates a Client for the given base URL and bearer token.
func New(baseURL, bearerToken string, timeout time.Duration) *Client {
	c := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetHeader("Accept", "application/json").
		SetAuthToken(bearerToken)
	return &Client{http: c}
}

// RestyClient exposes the underlying resty client for transport
// interception in tests.
func (c *Client) RestyClient() *resty.Client {
	return c.http
}

// rawMetrics accepts the field spellings seen across upstream payload
// versions. Views in particular arrive as view_count, views, or
// impression_count depending on the endpoint revision.
type rawMetrics struct {
	LikeCount     int `json:"like_count"`
	FavoriteCount int `json:"favorite_count"`

	RetweetCount int `json:"retweet_count"`
	ReplyCount   int `json:"reply_count"`
	QuoteCount   int `json:"quote_count"`

	ViewCount       *int64 `json:"view_count"`
	Views           *int64 `json:"views"`
	ImpressionCount *int64 `json:"impression_count"`

	BookmarkCount int `json:"bookmark_count"`
}

type metricsResponse struct {
	Data *rawMetrics `json:"data"`
	rawMetrics
}

// TweetMetrics fetches the engagement counters for a tweet.
func (c *Client) TweetMetrics(ctx context.Context, postID string) (*model.TweetMetrics, error) {
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("tweet_id", postID).
		Get("/twitter/tweet/metrics")
	if err != nil {
		return nil, &APIError{Kind: KindTransient, Message: err.Error()}
	}
	if resp.IsError() {
		return nil, &APIError{
			Kind:       classifyStatus(resp.StatusCode()),
			StatusCode: resp.StatusCode(),
			Message:    snippet(resp.Body()),
		}
	}

	var payload metricsResponse
	if err := json.Unmarshal(resp.Body(), &payload); err != nil {
		return nil, &APIError{Kind: KindTransient, Message: fmt.Sprintf("decode metrics: %v", err)}
	}

	raw := payload.rawMetrics
	if payload.Data != nil {
		raw = *payload.Data
	}
	return normalizeMetrics(raw), nil
}

type rawAuthor struct {
	ID string `json:"id"`
}

type rawQuoteTweet struct {
	AuthorID string     `json:"author_id"`
	Author   *rawAuthor `json:"author"`
	User     *rawAuthor `json:"user"`

	ViewCount       *int64 `json:"view_count"`
	Views           *int64 `json:"views"`
	ImpressionCount *int64 `json:"impression_count"`
}

type quotesResponse struct {
	Tweets      []rawQuoteTweet `json:"tweets"`
	Items       []rawQuoteTweet `json:"items"`
	HasNextPage bool            `json:"has_next_page"`
	HasNext     bool            `json:"has_next"`
	NextCursor  string          `json:"next_cursor"`
	Cursor      string          `json:"cursor"`
}

// QuotesPage fetches one page of tweets quoting postID. An empty cursor
// requests the first page.
func (c *Client) QuotesPage(ctx context.Context, postID, cursor string) (*model.QuotePage, error) {
	req := c.http.R().
		SetContext(ctx).
		SetQueryParam("tweet_id", postID)
	if cursor != "" {
		req.SetQueryParam("cursor", cursor)
	}

	resp, err := req.Get("/twitter/tweet/quotes")
	if err != nil {
		return nil, &APIError{Kind: KindTransient, Message: err.Error()}
	}
	if resp.IsError() {
		return nil, &APIError{
			Kind:       classifyStatus(resp.StatusCode()),
			StatusCode: resp.StatusCode(),
			Message:    snippet(resp.Body()),
		}
	}

	var payload quotesResponse
	if err := json.Unmarshal(resp.Body(), &payload); err != nil {
		return nil, &APIError{Kind: KindTransient, Message: fmt.Sprintf("decode quotes page: %v", err)}
	}
	return normalizeQuotesPage(&payload), nil
}

func normalizeMetrics(raw rawMetrics) *model.TweetMetrics {
	likes := raw.LikeCount
	if likes == 0 && raw.FavoriteCount > 0 {
		likes = raw.FavoriteCount
	}
	return &model.TweetMetrics{
		LikeCount:     likes,
		RetweetCount:  raw.RetweetCount,
		ReplyCount:    raw.ReplyCount,
		QuoteCount:    raw.QuoteCount,
		ViewCount:     firstInt64(raw.ViewCount, raw.Views, raw.ImpressionCount),
		BookmarkCount: raw.BookmarkCount,
	}
}

func normalizeQuotesPage(payload *quotesResponse) *model.QuotePage {
	rawItems := payload.Tweets
	if len(rawItems) == 0 {
		rawItems = payload.Items
	}

	page := &model.QuotePage{
		HasNext:    payload.HasNextPage || payload.HasNext,
		NextCursor: payload.NextCursor,
	}
	if page.NextCursor == "" {
		page.NextCursor = payload.Cursor
	}

	for _, raw := range rawItems {
		item, ok := normalizeQuoteItem(raw)
		if !ok {
			continue
		}
		page.Items = append(page.Items, item)
	}

	// A trailing page sometimes reports has_next with an empty cursor;
	// treat that as exhausted rather than looping on the first page.
	if page.NextCursor == "" {
		page.HasNext = false
	}
	return page
}

func normalizeQuoteItem(raw rawQuoteTweet) (model.QuoteItem, bool) {
	authorID := raw.AuthorID
	if authorID == "" && raw.Author != nil {
		authorID = raw.Author.ID
	}
	if authorID == "" && raw.User != nil {
		authorID = raw.User.ID
	}
	if authorID == "" {
		return model.QuoteItem{}, false
	}
	return model.QuoteItem{
		AuthorID:  authorID,
		ViewCount: firstInt64(raw.ViewCount, raw.Views, raw.ImpressionCount),
	}, true
}

func firstInt64(vals ...*int64) int64 {
	for _, v := range vals {
		if v != nil {
			return *v
		}
	}
	return 0
}

func snippet(body []byte) string {
	const max = 200
	if len(body) > max {
		body = body[:max]
	}
	return string(body)
}
