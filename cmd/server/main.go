package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/campuslink/notifier/internal/api"
	"github.com/campuslink/notifier/internal/config"
	"github.com/campuslink/notifier/internal/dispatch"
	"github.com/campuslink/notifier/internal/feedback"
	"github.com/campuslink/notifier/internal/pkg/logger"
	"github.com/campuslink/notifier/internal/sender"
	"github.com/campuslink/notifier/internal/storage"
	"github.com/campuslink/notifier/internal/suppression"
	"github.com/campuslink/notifier/internal/template"
)

func main() {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config/config.yaml"
	}
	cfg, err := config.LoadFromEnv(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	logger.Info("starting notifier",
		"environment", cfg.Notify.Environment,
		"storage", cfg.Storage.Type)

	ctx := context.Background()

	store, err := buildStore(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to initialize storage: %v", err)
	}

	// Suppression cache warming is best effort: an unseeded cache just
	// means every lookup consults the store.
	cache := suppression.NewCache(100_000)
	suppressions := suppression.NewService(store, cache)
	if err := suppressions.WarmCache(ctx); err != nil {
		logger.Warn("suppression cache warm failed", "error", err.Error())
	}
	// Keep the cache in step with suppressions written by other
	// processes against the same store (operator CLI, peer instances).
	go suppressions.RefreshCache(ctx, 5*time.Minute)

	renderer := template.NewRenderer()
	for _, t := range cfg.Templates {
		if err := renderer.Register(template.Template{
			Name:    t.Name,
			Subject: t.Subject,
			HTML:    t.HTML,
			Text:    t.Text,
		}); err != nil {
			log.Fatalf("Failed to register template %q: %v", t.Name, err)
		}
	}
	logger.Info("templates registered", "count", len(cfg.Templates))

	sesSender, err := sender.NewSESSender(cfg.SES, cfg.Notify)
	if err != nil {
		log.Fatalf("Failed to initialize SES sender: %v", err)
	}
	if cfg.SES.NativeTemplates {
		// Server-side rendering needs the templates provisioned in SES.
		// A missing one downgrades to a warning; sends that reference it
		// will fail per item, not at boot.
		for _, t := range cfg.Templates {
			if err := sesSender.VerifyTemplate(ctx, t.Name); err != nil {
				logger.Warn("template missing in SES", "template", t.Name, "error", err.Error())
			}
		}
	}

	var rateGuard dispatch.RateGuard
	if cfg.Redis.Enabled {
		guard, err := dispatch.NewRedisRateGuard(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			logger.Warn("redis unavailable, rate guard disabled", "error", err.Error())
		} else {
			rateGuard = guard
		}
	}

	var archiver *storage.Archiver
	if cfg.Storage.S3Bucket != "" {
		archiver, err = storage.NewArchiver(ctx, cfg.Storage.S3Bucket, cfg.Storage.AWSRegion)
		if err != nil {
			logger.Warn("audit archiver unavailable", "error", err.Error())
		}
	}

	var dispatchArchiver dispatch.Archiver
	var webhookArchiver feedback.PayloadArchiver
	if archiver != nil {
		dispatchArchiver = archiver
		webhookArchiver = archiver
	}

	dispatcher := dispatch.NewDispatcher(cfg.Notify, suppressions, renderer, sesSender, store, rateGuard, dispatchArchiver)
	processor := feedback.NewProcessor(suppressions, store)
	webhook := feedback.NewWebhookHandler(processor, webhookArchiver)

	handlers := api.NewHandlers(dispatcher, suppressions, renderer, store)
	server := api.NewServer(handlers, webhook)

	addr := fmt.Sprintf("%s:%d", cfg.Server.GetHost(), cfg.Server.Port)
	go func() {
		logger.Info("listening", "addr", addr)
		// ErrServerClosed is the normal return during graceful shutdown;
		// Shutdown below owns the drain.
		if err := server.ListenAndServe(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server stopped", "error", err.Error())
			os.Exit(1)
		}
	}()

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	<-done

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err.Error())
	}
}

func buildStore(ctx context.Context, cfg *config.Config) (storage.Store, error) {
	switch cfg.Storage.Type {
	case "dynamodb":
		return storage.NewDynamoStore(ctx, cfg.Storage.DynamoDBTable, cfg.Storage.AWSRegion, cfg.Storage.GetAWSProfile())
	case "postgres":
		store, err := storage.NewPostgresStore(cfg.Storage.DatabaseURL)
		if err != nil {
			return nil, err
		}
		if err := store.EnsureSchema(ctx); err != nil {
			return nil, err
		}
		return store, nil
	case "memory":
		logger.Warn("using in-memory storage, state will not survive restart")
		return storage.NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown storage type %q", cfg.Storage.Type)
	}
}
