package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/pulsemesh/pulsemesh/internal/agent"
	"github.com/pulsemesh/pulsemesh/internal/config"
	"github.com/pulsemesh/pulsemesh/internal/logging"
	"github.com/pulsemesh/pulsemesh/internal/probe"
	"go.uber.org/zap"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if cfg.Agent.Region == "" {
		log.Fatal("Region is required (set REGION or agent.region)")
	}
	if cfg.Agent.GatewayURL == "" {
		log.Fatal("Gateway URL is required (set GATEWAY_URL or agent.gatewayurl)")
	}

	logger, err := logging.NewLogger(cfg.Logging.Dir, "agent")
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync()

	client := agent.NewClient(cfg.Agent.GatewayURL, cfg.Agent.WorkerID, cfg.Auth.AgentSecret, cfg.Auth.TokenTTL)
	executor := probe.NewExecutor(cfg.Agent.CheckTimeout)
	a := agent.New(cfg.Agent, client, executor, logger)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit
		logger.Info("Shutting down agent...")
		cancel()
	}()

	logger.Info("Agent starting",
		zap.String("worker_id", cfg.Agent.WorkerID),
		zap.String("region", cfg.Agent.Region),
	)

	if err := a.Run(ctx); err != nil && err != context.Canceled {
		logger.Fatal("Agent exited with error", zap.Error(err))
	}

	logger.Info("Agent exited")
}
