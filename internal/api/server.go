// Package api exposes the HTTP surface: monitoring start/stop and the
// snapshot read endpoints consumed by dashboards. Handlers stay thin
// and delegate to the poller and storage.
package api

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"tweet_monitor/internal/model"
	"tweet_monitor/internal/poller"
	"tweet_monitor/internal/storage"
	"tweet_monitor/internal/twitter"
)

// Server handles HTTP requests against the monitoring core.
type Server struct {
	store storage.Storage
	core  *poller.Poller
	log   *slog.Logger
}

// NewRouter builds the gin engine with all routes registered.
func NewRouter(store storage.Storage, core *poller.Poller, log *slog.Logger) *gin.Engine {
	s := &Server{store: store, core: core, log: log}

	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/healthz", s.health)

	api := r.Group("/api")
	{
		api.POST("/monitors", s.startMonitoring)
		api.DELETE("/monitors/:post_id", s.stopMonitoring)
		api.GET("/monitors", s.listMonitors)
		api.GET("/posts/:post_id/snapshots", s.listSnapshots)
	}
	return r
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

type startRequest struct {
	PostID  string `json:"post_id" binding:"required"`
	PostURL string `json:"post_url" binding:"required"`
}

type monitorResponse struct {
	PostID           string    `json:"post_id"`
	PostURL          string    `json:"post_url"`
	Status           string    `json:"status"`
	StartedAt        time.Time `json:"started_at"`
	TimeRemainingSec int64     `json:"time_remaining_sec"`
}

func (s *Server) startMonitoring(c *gin.Context) {
	var req startRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "post_id and post_url are required"})
		return
	}

	job, err := s.core.StartMonitoring(c.Request.Context(), req.PostID, req.PostURL)
	if err != nil {
		s.log.Warn("start monitoring rejected", "post_id", req.PostID, "error", err)
		status, msg := startErrorResponse(req.PostID, err)
		c.JSON(status, gin.H{"error": msg})
		return
	}

	c.JSON(http.StatusCreated, s.monitorResponse(*job))
}

// startErrorResponse maps a start failure to a status code and a message
// that tells the caller which specific thing went wrong.
func startErrorResponse(postID string, err error) (int, string) {
	if errors.Is(err, storage.ErrAlreadyActive) {
		return http.StatusConflict, "monitoring is already active for " + postID
	}
	switch twitter.ErrorKind(err) {
	case twitter.KindNotFound:
		return http.StatusNotFound, "tweet " + postID + " was not found; it may be deleted or the ID is wrong"
	case twitter.KindRateLimited:
		return http.StatusTooManyRequests, "upstream API rate limit hit; try again shortly"
	case twitter.KindQuotaExhausted:
		return http.StatusPaymentRequired, "upstream API quota exhausted"
	case twitter.KindUnauthorized:
		return http.StatusBadGateway, "upstream API rejected our credentials; check configuration"
	case twitter.KindTransient:
		return http.StatusBadGateway, "could not reach the upstream API; try again"
	default:
		return http.StatusInternalServerError, "failed to start monitoring"
	}
}

func (s *Server) stopMonitoring(c *gin.Context) {
	postID := c.Param("post_id")
	if err := s.core.StopMonitoring(c.Request.Context(), postID); err != nil {
		s.log.Error("stop monitoring", "post_id", postID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to stop monitoring"})
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) listMonitors(c *gin.Context) {
	jobs, err := s.store.GetActiveJobs(c.Request.Context())
	if err != nil {
		s.log.Error("list active jobs", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list monitors"})
		return
	}

	resp := make([]monitorResponse, 0, len(jobs))
	for _, j := range jobs {
		resp = append(resp, s.monitorResponse(j))
	}
	c.JSON(http.StatusOK, gin.H{"monitors": resp})
}

type snapshotResponse struct {
	LikeCount       int       `json:"like_count"`
	RetweetCount    int       `json:"retweet_count"`
	ReplyCount      int       `json:"reply_count"`
	QuoteCount      int       `json:"quote_count"`
	ViewCount       int64     `json:"view_count"`
	BookmarkCount   int       `json:"bookmark_count"`
	QuoteTweetCount int       `json:"quote_tweet_count"`
	QuoteViewSum    int64     `json:"quote_view_sum"`
	DataSource      string    `json:"data_source"`
	CreatedAt       time.Time `json:"created_at"`
}

type snapshotsResponse struct {
	PostID           string             `json:"post_id"`
	IsActive         bool               `json:"is_active"`
	TimeRemainingSec int64              `json:"time_remaining_sec"`
	Snapshots        []snapshotResponse `json:"snapshots"`
}

func (s *Server) listSnapshots(c *gin.Context) {
	postID := c.Param("post_id")
	ctx := c.Request.Context()

	job, err := s.store.GetJobByPostID(ctx, postID)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		s.log.Error("get job", "post_id", postID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load monitoring state"})
		return
	}

	snaps, err := s.store.ListSnapshots(ctx, postID)
	if err != nil {
		s.log.Error("list snapshots", "post_id", postID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load snapshots"})
		return
	}

	resp := snapshotsResponse{PostID: postID, Snapshots: make([]snapshotResponse, 0, len(snaps))}
	if job != nil && job.Status == model.JobActive {
		resp.IsActive = true
		resp.TimeRemainingSec = s.timeRemaining(*job)
	}
	for _, sn := range snaps {
		resp.Snapshots = append(resp.Snapshots, snapshotResponse{
			LikeCount:       sn.LikeCount,
			RetweetCount:    sn.RetweetCount,
			ReplyCount:      sn.ReplyCount,
			QuoteCount:      sn.QuoteCount,
			ViewCount:       sn.ViewCount,
			BookmarkCount:   sn.BookmarkCount,
			QuoteTweetCount: sn.QuoteTweetCount,
			QuoteViewSum:    sn.QuoteViewSum,
			DataSource:      string(sn.DataSource),
			CreatedAt:       sn.CreatedAt,
		})
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) monitorResponse(j model.MonitoringJob) monitorResponse {
	return monitorResponse{
		PostID:           j.PostID,
		PostURL:          j.PostURL,
		Status:           string(j.Status),
		StartedAt:        j.StartedAt,
		TimeRemainingSec: s.timeRemaining(j),
	}
}

func (s *Server) timeRemaining(j model.MonitoringJob) int64 {
	remaining := time.Until(j.StartedAt.Add(s.core.Window()))
	if remaining < 0 {
		return 0
	}
	return int64(remaining.Seconds())
}
