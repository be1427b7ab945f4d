package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/pulsemesh/pulsemesh/internal/db"
	"go.uber.org/zap"
)

type WireResult struct {
	IsUp            bool    `json:"is_up"`
	ResponseTimeMs  float64 `json:"response_time_ms"`
	StatusCode      *int    `json:"status_code,omitempty"`
	DaysUntilExpiry *int    `json:"days_until_expiry,omitempty"`
	Error           string  `json:"error,omitempty"`
}

type ReportRequest struct {
	SiteID    string      `json:"site_id" binding:"required,uuid"`
	WorkerID  string      `json:"worker_id" binding:"required"`
	Region    string      `json:"region" binding:"required"`
	CheckedAt time.Time   `json:"checked_at" binding:"required"`
	HTTP      WireResult  `json:"http"`
	Ping      WireResult  `json:"ping"`
	DNS       WireResult  `json:"dns"`
	SSL       WireResult  `json:"ssl"`
	Domain    *WireResult `json:"domain,omitempty"`
}

type HeartbeatRequest struct {
	WorkerID    string    `json:"worker_id" binding:"required"`
	Region      string    `json:"region" binding:"required"`
	At          time.Time `json:"at"`
	ActiveSites int       `json:"active_sites" binding:"min=0"`
}

type RegisterRequest struct {
	WorkerID  string    `json:"worker_id" binding:"required"`
	Region    string    `json:"region" binding:"required"`
	StartedAt time.Time `json:"started_at" binding:"required"`
}

// IngestResults accepts one batch of per-check-type results from one worker.
// Validation failures are per-request rejections, never process failures; the
// whole batch persists in a single transaction or not at all.
func (h *Handler) IngestResults(c *gin.Context) {
	var req ReportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if c.GetString("worker_id") != req.WorkerID {
		c.JSON(http.StatusForbidden, gin.H{"error": "Token subject does not match worker_id"})
		return
	}

	if !h.fleet.IsKnown(req.WorkerID) {
		h.recordIngest(&req, false)
		c.JSON(http.StatusNotFound, gin.H{"error": "Unknown worker"})
		return
	}

	site, err := h.repo.GetSite(req.SiteID)
	if err != nil {
		if errors.Is(err, db.ErrSiteNotFound) {
			h.recordIngest(&req, false)
			c.JSON(http.StatusNotFound, gin.H{"error": "Unknown site"})
			return
		}
		h.logger.Error("Failed to load site for ingest", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}
	if !site.Enabled {
		h.recordIngest(&req, false)
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "Site is disabled"})
		return
	}

	results := batchToResults(&req)
	if err := h.repo.SaveResultBatch(results); err != nil {
		h.logger.Error("Failed to persist result batch",
			zap.String("site_id", req.SiteID),
			zap.String("worker_id", req.WorkerID),
			zap.Error(err),
		)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to persist results"})
		return
	}

	h.recordIngest(&req, true)
	c.JSON(http.StatusAccepted, gin.H{"accepted": len(results)})
}

func (h *Handler) recordIngest(req *ReportRequest, accepted bool) {
	if h.metrics != nil {
		h.metrics.RecordIngest(req.WorkerID, req.Region, accepted)
	}
}

func batchToResults(req *ReportRequest) []*db.CheckResult {
	build := func(checkType db.CheckType, w WireResult) *db.CheckResult {
		return &db.CheckResult{
			ID:              uuid.New().String(),
			SiteID:          req.SiteID,
			WorkerID:        req.WorkerID,
			Region:          req.Region,
			CheckType:       checkType,
			IsUp:            w.IsUp,
			ResponseTimeMs:  w.ResponseTimeMs,
			StatusCode:      w.StatusCode,
			DaysUntilExpiry: w.DaysUntilExpiry,
			Error:           w.Error,
			CheckedAt:       req.CheckedAt,
		}
	}

	results := []*db.CheckResult{
		build(db.CheckTypeHTTP, req.HTTP),
		build(db.CheckTypePing, req.Ping),
		build(db.CheckTypeDNS, req.DNS),
		build(db.CheckTypeSSL, req.SSL),
	}
	if req.Domain != nil {
		results = append(results, build(db.CheckTypeDomain, *req.Domain))
	}
	return results
}

// IngestHeartbeat refreshes a worker's liveness and active-site count.
func (h *Handler) IngestHeartbeat(c *gin.Context) {
	var req HeartbeatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if c.GetString("worker_id") != req.WorkerID {
		c.JSON(http.StatusForbidden, gin.H{"error": "Token subject does not match worker_id"})
		return
	}

	if err := h.fleet.RecordHeartbeat(req.WorkerID, req.ActiveSites); err != nil {
		if errors.Is(err, db.ErrWorkerNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Unknown worker, register first"})
			return
		}
		h.logger.Error("Failed to record heartbeat", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	if h.metrics != nil {
		h.metrics.RecordHeartbeat(req.WorkerID, req.Region)
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// RegisterWorker upserts a worker identity on agent startup.
func (h *Handler) RegisterWorker(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if c.GetString("worker_id") != req.WorkerID {
		c.JSON(http.StatusForbidden, gin.H{"error": "Token subject does not match worker_id"})
		return
	}

	if err := h.fleet.Register(req.WorkerID, req.Region, req.StartedAt); err != nil {
		h.logger.Error("Failed to register worker", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"worker_id": req.WorkerID})
}

// AgentSites serves the enabled-site list agents build their timers from.
func (h *Handler) AgentSites(c *gin.Context) {
	sites, err := h.repo.ListActiveSites()
	if err != nil {
		h.logger.Error("Failed to list active sites", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"sites": sites})
}
