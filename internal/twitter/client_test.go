package twitter

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/h2non/gock"

	"tweet_monitor/internal/model"
)

const testBaseURL = "https://api.test.example.com"

func newTestClient(t *testing.T) *Client {
	t.Helper()
	c := New(testBaseURL, "test-token", 5*time.Second)
	gock.InterceptClient(c.RestyClient().GetClient())
	t.Cleanup(gock.Off)
	return c
}

func loadFixture(t *testing.T, path string) []byte {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read fixture %s: %v", path, err)
	}
	return data
}

func TestTweetMetrics(t *testing.T) {
	tests := []struct {
		name    string
		fixture string
		want    *model.TweetMetrics
	}{
		{
			name:    "wrapped payload with view_count",
			fixture: "../../testdata/metrics.json",
			want: &model.TweetMetrics{
				LikeCount:     3200,
				RetweetCount:  410,
				ReplyCount:    188,
				QuoteCount:    40,
				ViewCount:     950000,
				BookmarkCount: 75,
			},
		},
		{
			name:    "flat legacy payload with favorite_count and impressions",
			fixture: "../../testdata/metrics_legacy.json",
			want: &model.TweetMetrics{
				LikeCount:     150,
				RetweetCount:  30,
				ReplyCount:    12,
				QuoteCount:    5,
				ViewCount:     42000,
				BookmarkCount: 3,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t)
			gock.New(testBaseURL).
				Get("/twitter/tweet/metrics").
				MatchParam("tweet_id", "1234").
				Reply(200).
				BodyString(string(loadFixture(t, tt.fixture)))

			got, err := c.TweetMetrics(context.Background(), "1234")
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("metrics mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestTweetMetricsErrorKinds(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		wantKind  Kind
		retryable bool
	}{
		{name: "not found", status: 404, wantKind: KindNotFound},
		{name: "rate limited", status: 429, wantKind: KindRateLimited},
		{name: "unauthorized", status: 401, wantKind: KindUnauthorized},
		{name: "quota exhausted", status: 402, wantKind: KindQuotaExhausted},
		{name: "server error", status: 503, wantKind: KindTransient, retryable: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t)
			gock.New(testBaseURL).
				Get("/twitter/tweet/metrics").
				Reply(tt.status).
				BodyString(`{"error":"upstream says no"}`)

			_, err := c.TweetMetrics(context.Background(), "1234")
			if err == nil {
				t.Fatal("expected error, got nil")
			}

			var apiErr *APIError
			if !errors.As(err, &apiErr) {
				t.Fatalf("expected *APIError, got %T: %v", err, err)
			}
			if apiErr.Kind != tt.wantKind {
				t.Errorf("kind = %q, want %q", apiErr.Kind, tt.wantKind)
			}
			if IsRetryable(err) != tt.retryable {
				t.Errorf("IsRetryable = %v, want %v", IsRetryable(err), tt.retryable)
			}
		})
	}
}

func TestTweetMetricsNetworkError(t *testing.T) {
	c := newTestClient(t)
	gock.New(testBaseURL).
		Get("/twitter/tweet/metrics").
		ReplyError(errors.New("connection reset"))

	_, err := c.TweetMetrics(context.Background(), "1234")
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if ErrorKind(err) != KindTransient {
		t.Errorf("kind = %q, want %q", ErrorKind(err), KindTransient)
	}
}

func TestQuotesPage(t *testing.T) {
	c := newTestClient(t)
	gock.New(testBaseURL).
		Get("/twitter/tweet/quotes").
		MatchParam("tweet_id", "1234").
		Reply(200).
		BodyString(string(loadFixture(t, "../../testdata/quotes_page1.json")))

	got, err := c.QuotesPage(context.Background(), "1234", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := &model.QuotePage{
		Items: []model.QuoteItem{
			{AuthorID: "u1", ViewCount: 12000},
			{AuthorID: "u2", ViewCount: 8000},
			{AuthorID: "u3", ViewCount: 4000},
			{AuthorID: "u1", ViewCount: 600},
		},
		HasNext:    true,
		NextCursor: "cursor-2",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("page mismatch (-want +got):\n%s", diff)
	}
}

func TestQuotesPageAlternateShape(t *testing.T) {
	c := newTestClient(t)
	gock.New(testBaseURL).
		Get("/twitter/tweet/quotes").
		MatchParam("cursor", "cursor-2").
		Reply(200).
		BodyString(string(loadFixture(t, "../../testdata/quotes_page2.json")))

	got, err := c.QuotesPage(context.Background(), "1234", "cursor-2")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// The authorless item is dropped during normalization; has_next with
	// an empty cursor means the pagination is exhausted.
	want := &model.QuotePage{
		Items: []model.QuoteItem{
			{AuthorID: "u4", ViewCount: 2500},
			{AuthorID: "u2", ViewCount: 100},
		},
		HasNext:    false,
		NextCursor: "",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("page mismatch (-want +got):\n%s", diff)
	}
}

func TestQuotesPageInvalidJSON(t *testing.T) {
	c := newTestClient(t)
	gock.New(testBaseURL).
		Get("/twitter/tweet/quotes").
		Reply(200).
		BodyString("not json at all")

	_, err := c.QuotesPage(context.Background(), "1234", "")
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if ErrorKind(err) != KindTransient {
		t.Errorf("kind = %q, want %q", ErrorKind(err), KindTransient)
	}
}

func TestQuotesPageSendsBearerToken(t *testing.T) {
	c := newTestClient(t)
	gock.New(testBaseURL).
		Get("/twitter/tweet/quotes").
		MatchHeader("Authorization", "Bearer test-token").
		Reply(200).
		BodyString(`{"tweets":[],"has_next_page":false}`)

	got, err := c.QuotesPage(context.Background(), "1234", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got.Items) != 0 || got.HasNext {
		t.Errorf("expected empty final page, got %+v", got)
	}
	if !gock.IsDone() {
		t.Error("expected the mocked request (with auth header) to be consumed")
	}
}

