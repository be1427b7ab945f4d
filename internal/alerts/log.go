package alerts

import (
	"context"

	"go.uber.org/zap"
)

// LogNotifier writes alerts to the structured log. Used when no webhook
// endpoint is configured so transitions are still marked as dispatched.
type LogNotifier struct {
	logger *zap.Logger
}

func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Notify(ctx context.Context, alert Alert) error {
	n.logger.Warn("Site status changed",
		zap.String("site_id", alert.SiteID),
		zap.String("site_name", alert.SiteName),
		zap.String("from_state", alert.FromState),
		zap.String("to_state", alert.ToState),
		zap.Time("occurred_at", alert.OccurredAt),
	)
	return nil
}
