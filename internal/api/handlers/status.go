package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/pulsemesh/pulsemesh/internal/db"
	"go.uber.org/zap"
)

// GetSiteStatus serves the canonical post-consensus verdict for one site.
// This projection is read-only for every consumer; only the aggregator
// writes it.
func (h *Handler) GetSiteStatus(c *gin.Context) {
	siteID := c.Param("id")

	status, err := h.repo.GetSiteStatus(siteID)
	if err != nil {
		if errors.Is(err, db.ErrStatusNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "No status available yet"})
			return
		}
		h.logger.Error("Failed to get site status", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	c.JSON(http.StatusOK, status)
}

// GetSiteHistory serves raw per-region check results, newest first. The
// AI-analysis collaborator reads this as an opaque input.
func (h *Handler) GetSiteHistory(c *gin.Context) {
	siteID := c.Param("id")

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))
	if limit < 1 || limit > 1000 {
		limit = 100
	}

	history, err := h.repo.GetCheckHistory(siteID, limit)
	if err != nil {
		h.logger.Error("Failed to get check history", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"history": history})
}

// GetSiteTransitions serves the audit trail of canonical state changes.
func (h *Handler) GetSiteTransitions(c *gin.Context) {
	siteID := c.Param("id")

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if limit < 1 || limit > 500 {
		limit = 50
	}

	transitions, err := h.repo.ListTransitions(siteID, limit)
	if err != nil {
		h.logger.Error("Failed to list transitions", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"transitions": transitions})
}
