package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// ListWorkers is the fleet query surface for operator/UI views.
func (h *Handler) ListWorkers(c *gin.Context) {
	workers, err := h.fleet.List()
	if err != nil {
		h.logger.Error("Failed to list workers", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"workers": workers})
}

// ListWorkerIDs serves lightweight polling UIs.
func (h *Handler) ListWorkerIDs(c *gin.Context) {
	ids, err := h.fleet.ListIDs()
	if err != nil {
		h.logger.Error("Failed to list worker IDs", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"worker_ids": ids})
}
