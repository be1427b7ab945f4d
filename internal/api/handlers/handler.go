package handlers

import (
	"github.com/pulsemesh/pulsemesh/internal/db"
	"github.com/pulsemesh/pulsemesh/internal/fleet"
	"github.com/pulsemesh/pulsemesh/internal/metrics"
	"go.uber.org/zap"
)

// Store is the repository surface the gateway handlers use.
type Store interface {
	CreateSite(s *db.Site) error
	GetSite(id string) (*db.Site, error)
	ListSites(limit, offset int) ([]*db.Site, error)
	ListActiveSites() ([]*db.Site, error)
	UpdateSite(s *db.Site) error
	SetSiteEnabled(id string, enabled bool) error
	SaveResultBatch(results []*db.CheckResult) error
	GetCheckHistory(siteID string, limit int) ([]*db.CheckResult, error)
	GetSiteStatus(siteID string) (*db.SiteStatus, error)
	ListTransitions(siteID string, limit int) ([]*db.StatusTransition, error)
}

type Handler struct {
	repo    Store
	fleet   *fleet.Registry
	metrics *metrics.Collector
	logger  *zap.Logger
}

func NewHandler(repo Store, registry *fleet.Registry, collector *metrics.Collector, logger *zap.Logger) *Handler {
	return &Handler{
		repo:    repo,
		fleet:   registry,
		metrics: collector,
		logger:  logger,
	}
}
