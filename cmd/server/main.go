package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/craftscale/genbridge/internal/auth"
	"github.com/craftscale/genbridge/internal/config"
	"github.com/craftscale/genbridge/internal/credits"
	"github.com/craftscale/genbridge/internal/db"
	"github.com/craftscale/genbridge/internal/httpapi"
	"github.com/craftscale/genbridge/internal/metrics"
	"github.com/craftscale/genbridge/internal/objstore"
	"github.com/craftscale/genbridge/internal/provider"
	"github.com/craftscale/genbridge/internal/queue"
	"github.com/craftscale/genbridge/internal/service"
	"github.com/craftscale/genbridge/internal/store"
)

const version = "1.0.0"

func main() {
	zerolog.TimeFieldFormat = time.RFC3339Nano
	log.Logger = log.With().Str("service", "genbridge").Logger()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	// Pretty logging for local dev
	if cfg.Env == "dev" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"})
	}

	ctx := context.Background()

	if cfg.DatabaseURL == "" {
		log.Fatal().Msg("DATABASE_URL is required")
	}
	if cfg.MigrateOnStart {
		if err := db.Migrate(cfg.DatabaseURL); err != nil {
			log.Fatal().Err(err).Msg("failed to apply migrations")
		}
	}

	pool, err := db.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to postgres")
	}
	defer pool.Close()

	objects, err := objstore.NewS3(ctx, objstore.S3Config{
		Endpoint:      cfg.S3Endpoint,
		Region:        cfg.S3Region,
		Bucket:        cfg.S3Bucket,
		AccessKey:     cfg.S3AccessKey,
		SecretKey:     cfg.S3SecretKey,
		PublicBaseURL: cfg.S3PublicBaseURL,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create object store client")
	}

	broker, err := queue.NewRedis(cfg.RedisURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to redis")
	}
	defer broker.Close()

	// Requeue anything a previous process left on its processing lists.
	for queueName := range cfg.QueueConcurrency {
		if _, err := broker.Recover(ctx, queueName); err != nil {
			log.Fatal().Err(err).Str("queue", queueName).Msg("queue recovery failed")
		}
	}

	providers := buildProviders(cfg)

	svc := service.New(service.Options{
		Store:         store.NewPG(pool),
		Objects:       objects,
		Providers:     providers,
		Broker:        broker,
		Credits:       creditsFor(cfg),
		TestMode:      cfg.TestAssetsMode,
		PollDeadlines: cfg.PollDeadlines,
		RetryMax:      cfg.WorkerRetryMax,
	})

	registry := auth.NewRegistry(pool, cfg.RegistrationSecret, cfg.StorefrontSuffix)
	srv := &httpapi.Server{
		Svc:        svc,
		Auth:       registry,
		Registrar:  registry,
		RateLimits: cfg.RateLimits,
		Version:    version,
	}

	httpServer := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      srv.Routes(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	workerCtx, stopWorkers := context.WithCancel(ctx)
	workers := queue.NewPool(broker, cfg.QueueConcurrency, svc.Execute)
	workersDone := make(chan struct{})
	go func() {
		defer close(workersDone)
		if err := workers.Run(workerCtx); err != nil {
			log.Error().Err(err).Msg("worker pool stopped with error")
		}
	}()

	go reportQueueDepth(workerCtx, broker, cfg.QueueConcurrency)

	go func() {
		log.Info().Str("addr", cfg.HTTPAddr).Msg("starting HTTP server")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	// Graceful shutdown on SIGINT/SIGTERM: drain HTTP first so no new
	// work arrives, then stop the workers.
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	log.Info().Msg("shutting down gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown error")
	}

	stopWorkers()
	select {
	case <-workersDone:
	case <-shutdownCtx.Done():
		log.Warn().Msg("workers did not drain before deadline")
	}

	log.Info().Msg("server stopped")
}

// buildProviders wires one adapter per configured upstream slot plus
// the local downscaler. Slots without a base URL are skipped so a dev
// instance can run with a partial set.
func buildProviders(cfg *config.Config) provider.Registry {
	reg := provider.Registry{provider.LocalID: provider.NewLocal()}

	type ctor func(baseURL, apiKey string, timeout time.Duration) provider.Adapter
	ctors := map[string]ctor{
		"provider_a": func(u, k string, t time.Duration) provider.Adapter { return provider.NewProviderA(u, k, t) },
		"provider_b": func(u, k string, t time.Duration) provider.Adapter { return provider.NewProviderB(u, k, t) },
		"provider_c": func(u, k string, t time.Duration) provider.Adapter { return provider.NewProviderC(u, k, t) },
		"provider_d": func(u, k string, t time.Duration) provider.Adapter { return provider.NewProviderD(u, k, t) },
		"provider_e": func(u, k string, t time.Duration) provider.Adapter { return provider.NewProviderE(u, k, t) },
	}

	for id, c := range ctors {
		p, ok := cfg.Providers[id]
		if !ok || p.BaseURL == "" {
			log.Warn().Str("provider", id).Msg("provider not configured, skipping")
			continue
		}
		reg[id] = c(p.BaseURL, p.APIKey, p.Timeout)
	}

	log.Info().Int("providers", len(reg)).Msg("provider registry built")
	return reg
}

// creditsFor selects the credit pre-check: the external service when
// configured, otherwise allow-all.
func creditsFor(cfg *config.Config) credits.Reserver {
	if cfg.CreditsURL != "" {
		return credits.NewHTTP(cfg.CreditsURL)
	}
	return credits.AllowAll{}
}

// reportQueueDepth samples queue depths into the gauge every few
// seconds.
func reportQueueDepth(ctx context.Context, broker queue.Broker, queues map[string]int) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for queueName := range queues {
				depth, err := broker.Depth(ctx, queueName)
				if err != nil {
					continue
				}
				metrics.QueueDepth.WithLabelValues(queueName).Set(float64(depth))
			}
		}
	}
}
