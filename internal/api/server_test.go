package api

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"tweet_monitor/internal/model"
	"tweet_monitor/internal/poller"
	"tweet_monitor/internal/storage"
	"tweet_monitor/internal/twitter"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type stubMetrics struct {
	errs map[string]error
}

func (s *stubMetrics) TweetMetrics(_ context.Context, postID string) (*model.TweetMetrics, error) {
	if err, ok := s.errs[postID]; ok {
		return nil, err
	}
	return &model.TweetMetrics{QuoteCount: 5}, nil
}

type stubAggregator struct{}

func (stubAggregator) Aggregate(_ context.Context, _ string, expected int) (*model.QuoteAggregate, error) {
	return &model.QuoteAggregate{
		ReportedQuoteCount: expected,
		CoveragePercent:    model.CoverageUndefined,
	}, nil
}

func newTestServer(t *testing.T, metrics *stubMetrics) (*gin.Engine, *storage.SQLite, *poller.Poller) {
	t.Helper()
	store, err := storage.NewSQLite(":memory:")
	if err != nil {
		t.Fatalf("new sqlite: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	core := poller.New(store, metrics, stubAggregator{}, nil, log)
	return NewRouter(store, core, log), store, core
}

func doRequest(t *testing.T, r *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestHealth(t *testing.T) {
	r, _, _ := newTestServer(t, &stubMetrics{})
	w := doRequest(t, r, http.MethodGet, "/healthz", "")
	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", w.Code)
	}
}

func TestStartMonitoring(t *testing.T) {
	r, store, _ := newTestServer(t, &stubMetrics{})

	w := doRequest(t, r, http.MethodPost, "/api/monitors",
		`{"post_id":"1234","post_url":"https://x.com/u/status/1234"}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201, body: %s", w.Code, w.Body.String())
	}

	var resp struct {
		PostID           string `json:"post_id"`
		Status           string `json:"status"`
		TimeRemainingSec int64  `json:"time_remaining_sec"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.PostID != "1234" || resp.Status != "active" {
		t.Errorf("unexpected response: %+v", resp)
	}
	if resp.TimeRemainingSec <= 0 {
		t.Errorf("time_remaining_sec = %d, want positive", resp.TimeRemainingSec)
	}

	job, err := store.GetJobByPostID(context.Background(), "1234")
	if err != nil {
		t.Fatalf("get job: %v", err)
	}
	if job.Status != model.JobActive {
		t.Errorf("job status = %q, want active", job.Status)
	}
}

func TestStartMonitoringErrorMapping(t *testing.T) {
	metrics := &stubMetrics{errs: map[string]error{
		"gone":    &twitter.APIError{Kind: twitter.KindNotFound, StatusCode: 404, Message: "nope"},
		"limited": &twitter.APIError{Kind: twitter.KindRateLimited, StatusCode: 429, Message: "429"},
		"quota":   &twitter.APIError{Kind: twitter.KindQuotaExhausted, StatusCode: 402, Message: "402"},
		"flaky":   &twitter.APIError{Kind: twitter.KindTransient, Message: "timeout"},
	}}
	r, _, _ := newTestServer(t, metrics)

	tests := []struct {
		name       string
		postID     string
		wantStatus int
		wantSubstr string
	}{
		{name: "not found", postID: "gone", wantStatus: 404, wantSubstr: "not found"},
		{name: "rate limited", postID: "limited", wantStatus: 429, wantSubstr: "rate limit"},
		{name: "quota exhausted", postID: "quota", wantStatus: 402, wantSubstr: "quota"},
		{name: "network", postID: "flaky", wantStatus: 502, wantSubstr: "could not reach"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := doRequest(t, r, http.MethodPost, "/api/monitors",
				`{"post_id":"`+tt.postID+`","post_url":"https://x.com/u/status/x"}`)
			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			if !strings.Contains(w.Body.String(), tt.wantSubstr) {
				t.Errorf("body %q does not mention %q", w.Body.String(), tt.wantSubstr)
			}
		})
	}
}

func TestStartMonitoringConflict(t *testing.T) {
	r, _, _ := newTestServer(t, &stubMetrics{})
	body := `{"post_id":"1234","post_url":"https://x.com/u/status/1234"}`

	if w := doRequest(t, r, http.MethodPost, "/api/monitors", body); w.Code != http.StatusCreated {
		t.Fatalf("first start: status = %d", w.Code)
	}
	w := doRequest(t, r, http.MethodPost, "/api/monitors", body)
	if w.Code != http.StatusConflict {
		t.Errorf("status = %d, want 409", w.Code)
	}
}

func TestStartMonitoringBadRequest(t *testing.T) {
	r, _, _ := newTestServer(t, &stubMetrics{})
	w := doRequest(t, r, http.MethodPost, "/api/monitors", `{"post_id":""}`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestStopMonitoring(t *testing.T) {
	r, store, _ := newTestServer(t, &stubMetrics{})
	ctx := context.Background()

	job := model.MonitoringJob{PostID: "1234", PostURL: "https://x.com/u/status/1234"}
	if err := store.CreateJob(ctx, &job); err != nil {
		t.Fatalf("create job: %v", err)
	}

	w := doRequest(t, r, http.MethodDelete, "/api/monitors/1234", "")
	if w.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", w.Code)
	}

	got, err := store.GetJobByPostID(ctx, "1234")
	if err != nil {
		t.Fatalf("get job: %v", err)
	}
	if got.Status != model.JobCompleted {
		t.Errorf("status = %q, want completed", got.Status)
	}

	// Idempotent: stopping an unknown or stopped monitor still succeeds.
	if w := doRequest(t, r, http.MethodDelete, "/api/monitors/1234", ""); w.Code != http.StatusNoContent {
		t.Errorf("second stop: status = %d, want 204", w.Code)
	}
}

func TestListMonitors(t *testing.T) {
	r, store, _ := newTestServer(t, &stubMetrics{})
	ctx := context.Background()

	for _, id := range []string{"a", "b"} {
		job := model.MonitoringJob{PostID: id, PostURL: "https://x.com/u/status/" + id}
		if err := store.CreateJob(ctx, &job); err != nil {
			t.Fatalf("create job %s: %v", id, err)
		}
	}

	w := doRequest(t, r, http.MethodGet, "/api/monitors", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}

	var resp struct {
		Monitors []struct {
			PostID string `json:"post_id"`
		} `json:"monitors"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Monitors) != 2 {
		t.Errorf("got %d monitors, want 2", len(resp.Monitors))
	}
}

func TestListSnapshots(t *testing.T) {
	r, store, core := newTestServer(t, &stubMetrics{})
	core.SetMonitoringWindow(24 * time.Hour)
	ctx := context.Background()

	job := model.MonitoringJob{PostID: "1234", PostURL: "https://x.com/u/status/1234"}
	if err := store.CreateJob(ctx, &job); err != nil {
		t.Fatalf("create job: %v", err)
	}
	snaps := []model.MetricSnapshot{
		{PostID: "1234", LikeCount: 10, QuoteViewSum: 100, QuoteTweetCount: 1, DataSource: model.SourceFresh},
		{PostID: "1234", LikeCount: 20, QuoteViewSum: 250, QuoteTweetCount: 2, DataSource: model.SourceFresh},
	}
	for i := range snaps {
		if err := store.CreateSnapshot(ctx, &snaps[i]); err != nil {
			t.Fatalf("create snapshot %d: %v", i, err)
		}
	}

	w := doRequest(t, r, http.MethodGet, "/api/posts/1234/snapshots", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}

	var resp struct {
		PostID           string `json:"post_id"`
		IsActive         bool   `json:"is_active"`
		TimeRemainingSec int64  `json:"time_remaining_sec"`
		Snapshots        []struct {
			LikeCount    int    `json:"like_count"`
			QuoteViewSum int64  `json:"quote_view_sum"`
			DataSource   string `json:"data_source"`
		} `json:"snapshots"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}

	if !resp.IsActive {
		t.Error("expected is_active=true for a monitored post")
	}
	if resp.TimeRemainingSec <= 0 || resp.TimeRemainingSec > int64((24*time.Hour).Seconds()) {
		t.Errorf("time_remaining_sec = %d, want within (0, 86400]", resp.TimeRemainingSec)
	}
	if len(resp.Snapshots) != 2 {
		t.Fatalf("got %d snapshots, want 2", len(resp.Snapshots))
	}
	if resp.Snapshots[0].LikeCount != 10 || resp.Snapshots[1].QuoteViewSum != 250 {
		t.Errorf("snapshots out of order or wrong: %+v", resp.Snapshots)
	}
}

func TestListSnapshotsUnknownPost(t *testing.T) {
	r, _, _ := newTestServer(t, &stubMetrics{})

	w := doRequest(t, r, http.MethodGet, "/api/posts/unknown/snapshots", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}

	var resp struct {
		IsActive  bool              `json:"is_active"`
		Snapshots []json.RawMessage `json:"snapshots"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.IsActive {
		t.Error("expected is_active=false for an unmonitored post")
	}
	if len(resp.Snapshots) != 0 {
		t.Errorf("got %d snapshots, want 0", len(resp.Snapshots))
	}
}
