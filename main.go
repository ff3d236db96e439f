package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"skylabel/bsky"
	"skylabel/internal/audit"
	"skylabel/internal/bot"
	"skylabel/internal/conf"
	"skylabel/internal/logging"
	"skylabel/internal/metrics"
	"skylabel/mistral"
)

func main() {
	if err := godotenv.Load(); err != nil {
		logrus.Info("No .env file found, using environment variables")
	}

	cfg := conf.LoadFromEnv()

	logger := logging.NewLogger()
	if cfg.Debug {
		logger.SetLevel(logrus.DebugLevel)
	}
	log := logger.WithField("service", "skylabel")

	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// run returns instead of exiting so deferred cleanup (audit store,
	// metrics listener) always executes before the process dies.
	if err := run(ctx, cfg, log); err != nil {
		log.Fatalf("%v", err)
	}

	log.Info("Shutting down")
}

func run(ctx context.Context, cfg *conf.Config, log logrus.FieldLogger) error {
	// Login is the single fatal path: without a session nothing else can run.
	client := bsky.NewClient(cfg.Bsky.PDSHost, log)
	session, err := client.Login(ctx, cfg.Bsky.Handle, cfg.Bsky.Password)
	if err != nil {
		return fmt.Errorf("login failed: %w", err)
	}
	log.WithFields(logging.Fields{
		"handle": session.Handle,
		"did":    session.DID,
	}).Info("Login successful")

	var collector *metrics.Collector
	if cfg.Metrics.Addr != "" {
		collector = metrics.NewCollector()
		collector.Serve(ctx, cfg.Metrics.Addr, log)
	}

	var onRetry func()
	if collector != nil {
		onRetry = collector.MistralRetries.Inc
	}

	classifier := mistral.NewClient(mistral.Config{
		APIKey:         cfg.Mistral.APIKey,
		Model:          cfg.Mistral.Model,
		Categories:     cfg.Mistral.Categories,
		RateLimitDelay: cfg.Mistral.RateLimitDelay,
		OnRetry:        onRetry,
		Logger:         log,
	})

	var auditStore *audit.Store
	if cfg.Audit.DBPath != "" {
		auditStore, err = audit.NewStore(cfg.Audit.DBPath)
		if err != nil {
			return fmt.Errorf("failed to open audit store: %w", err)
		}
		defer auditStore.Close()
	}

	b, err := bot.New(bot.Config{
		Notifier:      client,
		Fetcher:       client,
		Publisher:     client,
		Classifier:    classifier,
		Interval:      cfg.Poll.Interval,
		RecoveryDelay: cfg.Poll.RecoveryDelay,
		Audit:         auditStore,
		Metrics:       collector,
		Logger:        log,
	})
	if err != nil {
		return fmt.Errorf("failed to create bot: %w", err)
	}

	return b.Run(ctx)
}
