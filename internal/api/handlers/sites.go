package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/pulsemesh/pulsemesh/internal/db"
	"go.uber.org/zap"
)

type CreateSiteRequest struct {
	Name            string `json:"name" binding:"required,min=1,max=255"`
	URL             string `json:"url" binding:"required,url"`
	TenantID        string `json:"tenant_id" binding:"required"`
	Enabled         *bool  `json:"enabled" binding:"required"`
	IntervalSeconds int    `json:"interval_seconds" binding:"required,min=10,max=86400"`
}

func (h *Handler) CreateSite(c *gin.Context) {
	var req CreateSiteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	now := time.Now().UTC()
	site := &db.Site{
		ID:              uuid.New().String(),
		TenantID:        req.TenantID,
		Name:            req.Name,
		URL:             req.URL,
		Enabled:         *req.Enabled,
		IntervalSeconds: req.IntervalSeconds,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	if err := h.repo.CreateSite(site); err != nil {
		h.logger.Error("Failed to create site", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create site"})
		return
	}

	h.logger.Info("Site created",
		zap.String("site_id", site.ID),
		zap.String("url", site.URL),
	)

	c.JSON(http.StatusCreated, site)
}

func (h *Handler) GetSite(c *gin.Context) {
	site, err := h.repo.GetSite(c.Param("id"))
	if err != nil {
		if errors.Is(err, db.ErrSiteNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Site not found"})
			return
		}
		h.logger.Error("Failed to get site", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	c.JSON(http.StatusOK, site)
}

func (h *Handler) ListSites(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))

	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 20
	}

	sites, err := h.repo.ListSites(limit, (page-1)*limit)
	if err != nil {
		h.logger.Error("Failed to list sites", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"sites": sites,
		"pagination": gin.H{
			"page":  page,
			"limit": limit,
		},
	})
}

func (h *Handler) UpdateSite(c *gin.Context) {
	site, err := h.repo.GetSite(c.Param("id"))
	if err != nil {
		if errors.Is(err, db.ErrSiteNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Site not found"})
			return
		}
		h.logger.Error("Failed to get site", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	var req CreateSiteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	site.Name = req.Name
	site.URL = req.URL
	site.Enabled = *req.Enabled
	site.IntervalSeconds = req.IntervalSeconds
	site.UpdatedAt = time.Now().UTC()

	if err := h.repo.UpdateSite(site); err != nil {
		h.logger.Error("Failed to update site", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update site"})
		return
	}

	c.JSON(http.StatusOK, site)
}

func (h *Handler) EnableSite(c *gin.Context) {
	h.toggleSite(c, true)
}

// DisableSite soft-disables; history stays addressable, so sites are never
// hard deleted here.
func (h *Handler) DisableSite(c *gin.Context) {
	h.toggleSite(c, false)
}

func (h *Handler) toggleSite(c *gin.Context, enabled bool) {
	if err := h.repo.SetSiteEnabled(c.Param("id"), enabled); err != nil {
		if errors.Is(err, db.ErrSiteNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Site not found"})
			return
		}
		h.logger.Error("Failed to toggle site", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"enabled": enabled})
}
