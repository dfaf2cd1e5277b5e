// Package api implements the HTTP surface of the match service.
//
// Every route except /health expects an x-user-id header forwarded by the
// Gateway, which also restricts /admin to operators.
//
// Routes:
//
//	GET  /health                       → liveness and vectorizer state
//	GET  /matches                      → ranked matches (?status=&limit=&offset=)
//	GET  /matches/count                → totals per status
//	PUT  /matches/:jobId/status        → move a match to a new status
//	POST /refresh                      → scrape then rematch, returns a task
//	GET  /tasks/:id                    → poll a refresh task
//	POST /admin/vectorizer/refit       → rebuild the vector space, returns a task
package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"jobmate/match-service/internal/apperror"
	"jobmate/match-service/internal/matches"
	"jobmate/match-service/internal/tasks"
)

// ─── Dependencies ────────────────────────────────────────────────────────────

// MatchStore is the read and status side of the match repository.
type MatchStore interface {
	ListForUser(ctx context.Context, userID string, f matches.Filter) ([]matches.Match, error)
	CountByStatus(ctx context.Context, userID string) (matches.Counts, error)
	UpdateStatus(ctx context.Context, userID string, jobID uuid.UUID, newStatus string) (*matches.Match, error)
}

// Pipeline is the part of service.Service reachable over HTTP.
type Pipeline interface {
	StartRefresh(ctx context.Context, userID string) (*tasks.Task, error)
	StartRefit(ctx context.Context, userID string) (*tasks.Task, error)
}

// TaskReader looks up refresh tasks.
type TaskReader interface {
	Get(ctx context.Context, id string) (*tasks.Task, error)
}

// VectorizerState reports the state of the shared vector space.
type VectorizerState interface {
	Fitted() bool
	Fitting() bool
	NeedsRefit() bool
}

const (
	defaultPageSize = 50
	maxPageSize     = 200
)

// ─── Handler ─────────────────────────────────────────────────────────────────

// Handler holds shared dependencies.
type Handler struct {
	matches  MatchStore
	pipeline Pipeline
	tasks    TaskReader
	vec      VectorizerState
	version  string
	log      *zap.Logger
}

// NewHandler returns a configured Handler.
func NewHandler(ms MatchStore, p Pipeline, tr TaskReader, vec VectorizerState, version string, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{matches: ms, pipeline: p, tasks: tr, vec: vec, version: version, log: log}
}

// NewRouter builds the gin engine with every route mounted.
func NewRouter(h *Handler, idp IdentityProvider, log *zap.Logger) *gin.Engine {
	if log == nil {
		log = zap.NewNop()
	}
	r := gin.New()
	r.Use(gin.Recovery(), RequestLogger(log), ErrorMiddleware(log))

	r.GET("/health", h.Health)

	user := r.Group("/")
	user.Use(AuthMiddleware(idp))
	{
		user.GET("/matches", h.ListMatches)
		user.GET("/matches/count", h.CountMatches)
		user.PUT("/matches/:jobId/status", h.UpdateMatchStatus)
		user.POST("/refresh", h.Refresh)
		user.GET("/tasks/:id", h.GetTask)
	}

	admin := r.Group("/admin")
	admin.Use(AuthMiddleware(idp))
	{
		admin.POST("/vectorizer/refit", h.Refit)
	}
	return r
}

// ─── Health ──────────────────────────────────────────────────────────────────

func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"service": "match-service",
		"version": h.version,
		"vectorizer": gin.H{
			"fitted":     h.vec.Fitted(),
			"fitting":    h.vec.Fitting(),
			"needsRefit": h.vec.NeedsRefit(),
		},
	})
}

// ─── Matches ─────────────────────────────────────────────────────────────────

func (h *Handler) ListMatches(c *gin.Context) {
	userID := userIDFromGinContext(c)

	var f matches.Filter
	if raw := c.Query("status"); raw != "" {
		st, err := matches.ParseStatus(raw)
		if err != nil {
			c.Error(apperror.NewInvalidInput(err.Error(), err)) //nolint:errcheck
			return
		}
		f.Status = st
	}
	var err error
	if f.Limit, err = queryInt(c, "limit", defaultPageSize); err != nil {
		c.Error(err) //nolint:errcheck
		return
	}
	if f.Offset, err = queryInt(c, "offset", 0); err != nil {
		c.Error(err) //nolint:errcheck
		return
	}
	switch {
	case f.Limit == 0:
		f.Limit = defaultPageSize
	case f.Limit > maxPageSize:
		f.Limit = maxPageSize
	}

	list, err := h.matches.ListForUser(c.Request.Context(), userID, f)
	if err != nil {
		c.Error(apperror.NewInternal("list matches", err)) //nolint:errcheck
		return
	}
	if list == nil {
		list = []matches.Match{}
	}
	c.JSON(http.StatusOK, list)
}

func (h *Handler) CountMatches(c *gin.Context) {
	counts, err := h.matches.CountByStatus(c.Request.Context(), userIDFromGinContext(c))
	if err != nil {
		c.Error(apperror.NewInternal("count matches", err)) //nolint:errcheck
		return
	}
	c.JSON(http.StatusOK, counts)
}

type updateStatusRequest struct {
	Status string `json:"status" binding:"required"`
}

func (h *Handler) UpdateMatchStatus(c *gin.Context) {
	jobID, err := uuid.Parse(c.Param("jobId"))
	if err != nil {
		c.Error(apperror.NewInvalidInput("invalid job id", err)) //nolint:errcheck
		return
	}
	var req updateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(apperror.NewInvalidInput("body must contain status", err)) //nolint:errcheck
		return
	}

	m, err := h.matches.UpdateStatus(c.Request.Context(), userIDFromGinContext(c), jobID, req.Status)
	if err != nil {
		var verr *matches.ValidationError
		switch {
		case errors.As(err, &verr):
			c.Error(apperror.NewInvalidInput(verr.Msg, err)) //nolint:errcheck
		case errors.Is(err, matches.ErrNotFound):
			c.Error(apperror.NewNotFound("match", jobID.String())) //nolint:errcheck
		default:
			c.Error(apperror.NewInternal("update match status", err)) //nolint:errcheck
		}
		return
	}
	c.JSON(http.StatusOK, m)
}

// ─── Refresh tasks ───────────────────────────────────────────────────────────

func (h *Handler) Refresh(c *gin.Context) {
	task, err := h.pipeline.StartRefresh(c.Request.Context(), userIDFromGinContext(c))
	if err != nil {
		c.Error(apperror.NewInternal("start refresh", err)) //nolint:errcheck
		return
	}
	c.JSON(http.StatusAccepted, task)
}

func (h *Handler) GetTask(c *gin.Context) {
	id := c.Param("id")
	task, err := h.tasks.Get(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, tasks.ErrNotFound) {
			c.Error(apperror.NewNotFound("task", id)) //nolint:errcheck
			return
		}
		c.Error(apperror.NewInternal("get task", err)) //nolint:errcheck
		return
	}
	// Another user's task is reported as missing.
	if task.UserID != "" && task.UserID != userIDFromGinContext(c) {
		c.Error(apperror.NewNotFound("task", id)) //nolint:errcheck
		return
	}
	c.JSON(http.StatusOK, task)
}

// ─── Admin ───────────────────────────────────────────────────────────────────

func (h *Handler) Refit(c *gin.Context) {
	if h.vec.Fitting() {
		c.Error(apperror.NewUnavailable("a refit is already running", nil)) //nolint:errcheck
		return
	}
	task, err := h.pipeline.StartRefit(c.Request.Context(), userIDFromGinContext(c))
	if err != nil {
		c.Error(apperror.NewInternal("start refit", err)) //nolint:errcheck
		return
	}
	c.JSON(http.StatusAccepted, task)
}

func queryInt(c *gin.Context, key string, def int) (int, error) {
	raw := c.Query(key)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, apperror.NewInvalidInput(key+" must be a non-negative integer", err)
	}
	return n, nil
}
