package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/slmiksa/pocket-autotrader-hub-sub001/internal/ingest"
	"github.com/slmiksa/pocket-autotrader-hub-sub001/internal/settings"
)

// IngestHandler exposes the ingestion cycle to the external scheduler. The
// run endpoint keeps the scheduler contract: the summary object directly on
// 200 (benign outcomes included), {"error": ...} on 500.
type IngestHandler struct {
	Ingestor *ingest.Ingestor
	Settings *settings.Service
	Logger   *zap.Logger
}

func (h *IngestHandler) Register(r *gin.Engine) {
	group := r.Group("/api/ingest")
	group.POST("/run", h.run)
	group.GET("/status", h.status)
}

func (h *IngestHandler) run(c *gin.Context) {
	if h.Ingestor == nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "ingestor unavailable"})
		return
	}
	summary, err := h.Ingestor.Run(c.Request.Context())
	if err != nil {
		if h.Logger != nil {
			h.Logger.Error("ingest cycle failed", zap.Error(err))
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, summary)
}

func (h *IngestHandler) status(c *gin.Context) {
	if h.Settings == nil {
		Error(c, http.StatusInternalServerError, "settings unavailable", nil)
		return
	}
	ctx := c.Request.Context()
	offset, found, err := h.Settings.Offset(ctx)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	lockedUntil, err := h.Settings.LockedUntil(ctx)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	streak, streakAt, err := h.Settings.EmptyStreak(ctx)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, gin.H{
		"offset":          offset,
		"offset_set":      found,
		"locked_until":    lockedUntil,
		"empty_streak":    streak,
		"empty_streak_at": streakAt,
	}, nil)
}
