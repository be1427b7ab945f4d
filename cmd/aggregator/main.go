package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/pulsemesh/pulsemesh/internal/alerts"
	"github.com/pulsemesh/pulsemesh/internal/config"
	"github.com/pulsemesh/pulsemesh/internal/consensus"
	"github.com/pulsemesh/pulsemesh/internal/db"
	"github.com/pulsemesh/pulsemesh/internal/logging"
	"github.com/pulsemesh/pulsemesh/internal/metrics"
	"go.uber.org/zap"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := logging.NewLogger(cfg.Logging.Dir, "aggregator")
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync()

	database, err := db.NewConnection(cfg.Database.URL, cfg.Database.MaxConnections, cfg.Database.MaxIdleConns)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer database.Close()

	repo := db.NewRepository(database)
	collector := metrics.NewCollector(cfg.RemoteWrite)

	aggregator := consensus.NewAggregator(repo, cfg.Consensus, collector, logger)

	var notifier alerts.Notifier
	if cfg.Alerts.WebhookURL != "" {
		notifier = alerts.NewWebhookNotifier(cfg.Alerts.WebhookURL)
	} else {
		notifier = alerts.NewLogNotifier(logger)
	}
	dispatcher := alerts.NewDispatcher(repo, notifier, cfg.Alerts, collector, logger)

	ctx, cancel := context.WithCancel(context.Background())
	go aggregator.Run(ctx)
	go dispatcher.Run(ctx)
	go collector.StartRemoteWrite(ctx)

	logger.Info("Aggregator started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down aggregator...")
	cancel()
	logger.Info("Aggregator exited")
}
