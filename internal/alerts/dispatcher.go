package alerts

import (
	"context"
	"time"

	"github.com/pulsemesh/pulsemesh/internal/config"
	"github.com/pulsemesh/pulsemesh/internal/db"
	"github.com/pulsemesh/pulsemesh/internal/metrics"
	"go.uber.org/zap"
)

// Alert is the payload handed to the external notification collaborator.
type Alert struct {
	SiteID     string    `json:"site_id"`
	SiteName   string    `json:"site_name"`
	FromState  string    `json:"from_state"`
	ToState    string    `json:"to_state"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Notifier delivers one alert. The concrete implementation (webhook here) is
// the boundary to the notification system; channel fan-out lives there.
type Notifier interface {
	Notify(ctx context.Context, alert Alert) error
}

type Store interface {
	PendingTransitions(limit int) ([]*db.StatusTransition, error)
	MarkTransitionDispatched(id string, at time.Time, attempts int) error
	MarkTransitionAbandoned(id string, attempts int) error
	GetSite(id string) (*db.Site, error)
}

// Dispatcher drains undelivered status transitions and fires them at the
// notifier. Each transition is delivered at most once: the dispatched mark is
// written before the next poll can pick the row up again, and a failure for
// one site never blocks transitions for other sites.
type Dispatcher struct {
	store    Store
	notifier Notifier
	cfg      config.AlertsConfig
	logger   *zap.Logger
	metrics  *metrics.Collector
}

func NewDispatcher(store Store, notifier Notifier, cfg config.AlertsConfig, collector *metrics.Collector, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{
		store:    store,
		notifier: notifier,
		cfg:      cfg,
		logger:   logger,
		metrics:  collector,
	}
}

func (d *Dispatcher) Run(ctx context.Context) {
	d.logger.Info("Starting alert dispatcher", zap.Duration("poll_interval", d.cfg.PollInterval))

	ticker := time.NewTicker(d.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			d.logger.Info("Stopping alert dispatcher")
			return
		case <-ticker.C:
			if err := d.ProcessPending(ctx); err != nil {
				d.logger.Error("Failed to process pending transitions", zap.Error(err))
			}
		}
	}
}

// ProcessPending delivers every undispatched transition once, in order.
func (d *Dispatcher) ProcessPending(ctx context.Context) error {
	pending, err := d.store.PendingTransitions(d.cfg.BatchSize)
	if err != nil {
		return err
	}

	for _, transition := range pending {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		d.dispatch(ctx, transition)
	}

	return nil
}

func (d *Dispatcher) dispatch(ctx context.Context, transition *db.StatusTransition) {
	siteName := transition.SiteID
	if site, err := d.store.GetSite(transition.SiteID); err == nil {
		siteName = site.Name
	}

	alert := Alert{
		SiteID:     transition.SiteID,
		SiteName:   siteName,
		FromState:  string(transition.FromState),
		ToState:    string(transition.ToState),
		OccurredAt: transition.OccurredAt,
	}

	maxRetries := d.cfg.MaxRetries
	if maxRetries < 1 {
		maxRetries = 1
	}

	attempts := transition.DispatchAttempts
	var err error
	for i := 0; i < maxRetries; i++ {
		attempts++
		if err = d.notifier.Notify(ctx, alert); err == nil {
			if markErr := d.store.MarkTransitionDispatched(transition.ID, time.Now().UTC(), attempts); markErr != nil {
				d.logger.Error("Failed to mark transition dispatched",
					zap.String("transition_id", transition.ID),
					zap.Error(markErr),
				)
			}
			if d.metrics != nil {
				d.metrics.RecordAlertSent(transition.SiteID, true)
			}
			return
		}
		if i < maxRetries-1 {
			select {
			case <-ctx.Done():
				return
			case <-time.After(d.cfg.Backoff << i):
			}
		}
	}

	// Retries exhausted. Operator-visible, never fatal: mark the row so the
	// queue keeps moving for other sites.
	d.logger.Error("Abandoning alert after retries",
		zap.String("transition_id", transition.ID),
		zap.String("site_id", transition.SiteID),
		zap.String("from", string(transition.FromState)),
		zap.String("to", string(transition.ToState)),
		zap.Int("attempts", attempts),
		zap.Error(err),
	)
	if d.metrics != nil {
		d.metrics.RecordAlertSent(transition.SiteID, false)
	}
	if markErr := d.store.MarkTransitionAbandoned(transition.ID, attempts); markErr != nil {
		d.logger.Error("Failed to mark transition abandoned",
			zap.String("transition_id", transition.ID),
			zap.Error(markErr),
		)
	}
}
