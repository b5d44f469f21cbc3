package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"riskfeed/internal/alerts"
	"riskfeed/internal/options/memorystore"
	"riskfeed/internal/platform/deadline"
	"riskfeed/pkg/storage/postgres"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	msgOptionNotFound      = "Option not found"
	msgSnapshotUnavailable = "Snapshot unavailable"
	msgSaveFailed          = "Failed to save subscription"
)

func detail(c *gin.Context, status int, msg string) {
	c.AbortWithStatusJSON(status, gin.H{"detail": msg})
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// getSnapshot returns the cached snapshot so a page can render before its
// websocket connects.
func (s *Server) getSnapshot(c *gin.Context) {
	if snap := s.deps.Cache.Load(); snap != nil {
		c.JSON(http.StatusOK, snap)
		return
	}

	snap, err := deadline.Call(c.Request.Context(), s.queryTimeout, s.deps.Snapshots.FetchSnapshot)
	if err != nil {
		s.logger.Error("snapshot fetch failed", zap.Error(err))
		detail(c, http.StatusServiceUnavailable, msgSnapshotUnavailable)
		return
	}
	s.deps.Cache.Store(snap)
	c.JSON(http.StatusOK, snap)
}

type optionQuery struct {
	Symbol string `form:"symbol" binding:"required"`
	Expiry string `form:"expiry" binding:"required"`
	ReqID  *int   `form:"reqId" binding:"required"`
}

type historyQuery struct {
	optionQuery
	Range string `form:"range" binding:"required"`
}

type historyResponse struct {
	ReqID  int                     `json:"reqId"`
	Symbol string                  `json:"symbol"`
	Expiry string                  `json:"expiry"`
	Range  string                  `json:"range"`
	Data   []postgres.HistoryPoint `json:"data"`
}

func (s *Server) getHistory(c *gin.Context) {
	var q historyQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		detail(c, http.StatusBadRequest, queryError(err))
		return
	}
	r, err := postgres.ParseRange(q.Range)
	if err != nil {
		detail(c, http.StatusBadRequest, err.Error())
		return
	}

	data, err := deadline.Call(c.Request.Context(), s.queryTimeout, func(ctx context.Context) ([]postgres.HistoryPoint, error) {
		return s.deps.Options.FetchHistory(ctx, q.Symbol, q.Expiry, r)
	})
	if err != nil {
		s.logger.Error("history query failed", zap.String("symbol", q.Symbol), zap.Error(err))
		data = nil
	}
	if data == nil {
		data = []postgres.HistoryPoint{}
	}

	c.JSON(http.StatusOK, historyResponse{
		ReqID:  *q.ReqID,
		Symbol: q.Symbol,
		Expiry: q.Expiry,
		Range:  q.Range,
		Data:   data,
	})
}

type latestResponse struct {
	ReqID int `json:"reqId"`
	*memorystore.Metrics
}

func (s *Server) getLatest(c *gin.Context) {
	var q optionQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		detail(c, http.StatusBadRequest, queryError(err))
		return
	}

	m, err := deadline.Call(c.Request.Context(), s.queryTimeout, func(ctx context.Context) (*memorystore.Metrics, error) {
		return s.deps.Options.FetchMetrics(ctx, q.Symbol, q.Expiry)
	})
	if err != nil {
		s.logger.Error("latest query failed", zap.String("symbol", q.Symbol), zap.Error(err))
	}
	if m == nil {
		detail(c, http.StatusNotFound, msgOptionNotFound)
		return
	}

	c.JSON(http.StatusOK, latestResponse{ReqID: *q.ReqID, Metrics: m})
}

func (s *Server) postEmailAlert(c *gin.Context) {
	var req alerts.Request
	if err := c.ShouldBindJSON(&req); err != nil {
		detail(c, http.StatusBadRequest, alerts.MsgMissingFields)
		return
	}

	res, err := s.deps.Alerts.Subscribe(c.Request.Context(), req)
	switch {
	case errors.Is(err, alerts.ErrInvalidRequest):
		detail(c, http.StatusBadRequest, alertError(err))
		return
	case err != nil:
		detail(c, http.StatusInternalServerError, msgSaveFailed)
		return
	}
	c.JSON(http.StatusOK, res)
}

func queryError(err error) string {
	var numErr *strconv.NumError
	if errors.As(err, &numErr) {
		return "reqId must be an integer"
	}
	return "missing required query parameters"
}

// alertError strips the sentinel prefix so clients see only the reason.
func alertError(err error) string {
	return strings.TrimPrefix(err.Error(), alerts.ErrInvalidRequest.Error()+": ")
}
