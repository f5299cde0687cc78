package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hookbridge-systems/hookbridge/internal/config"
	"github.com/hookbridge-systems/hookbridge/internal/dispatch"
	"github.com/hookbridge-systems/hookbridge/internal/dlq"
	"github.com/hookbridge-systems/hookbridge/internal/logging"
	"github.com/hookbridge-systems/hookbridge/internal/metrics"
	"github.com/hookbridge-systems/hookbridge/internal/queue"
	"github.com/hookbridge-systems/hookbridge/internal/repository"
	"github.com/hookbridge-systems/hookbridge/internal/resolver"
	"github.com/hookbridge-systems/hookbridge/internal/router"
	"github.com/hookbridge-systems/hookbridge/internal/throttle"
	"github.com/hookbridge-systems/hookbridge/internal/worker"
)

func main() {
	// Parse command-line flags
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Initialize structured logging
	logger := logging.New(logging.ParseLevel(cfg.Logging.Level), cfg.Logging.Format).
		With(slog.String("service", "worker"))
	logging.SetDefault(logger)

	connString := cfg.Database.Postgres.ConnString()

	// Run database migrations
	if cfg.Database.Postgres.MigrationsPath != "" {
		logger.Info("running database migrations")
		m, err := migrate.New("file://"+cfg.Database.Postgres.MigrationsPath, connString)
		if err != nil {
			log.Fatalf("Failed to initialize migrations: %v", err)
		}
		if err := m.Up(); err != nil && err != migrate.ErrNoChange {
			log.Fatalf("Failed to run migrations: %v", err)
		}
		logger.Info("database migrations completed")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize the account store
	store, err := repository.NewPostgresStore(ctx, connString)
	if err != nil {
		log.Fatalf("Failed to connect to PostgreSQL: %v", err)
	}
	defer store.Close()

	// Connect to the queue engine
	q, err := queue.NewRedisQueue(cfg.Redis.URL, cfg.Redis.PoolSize)
	if err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer q.Close()

	// Optional dead letter sink
	var deadLetters dlq.Writer = dlq.Noop{}
	if cfg.DLQ.Enabled {
		js, err := dlq.NewJetStream(ctx, cfg.DLQ.NatsURL, cfg.DLQ.Stream)
		if err != nil {
			log.Fatalf("Failed to initialize dead letter stream: %v", err)
		}
		defer js.Close()
		deadLetters = js
		logger.Info("dead letter stream enabled", slog.String("stream", cfg.DLQ.Stream))
	}

	// Assemble the pipeline
	res := resolver.New(store)
	thr := throttle.New(store, cfg.Throttle.PlanCeilings, cfg.Throttle.ExemptUserIDs, logger)
	disp := dispatch.New(cfg.Delivery.Timeout, cfg.Delivery.RawForwardMarker, logger)

	opts := worker.Options{
		PopTimeout: cfg.Worker.PopTimeout,
		IdleWait:   cfg.Worker.IdleWait,
		DLQ:        deadLetters,
	}

	concurrency := cfg.Worker.Concurrency
	if concurrency < 1 {
		concurrency = 1
	}

	var wg sync.WaitGroup
	for _, name := range router.MessageQueues {
		for i := 0; i < concurrency; i++ {
			w := worker.New(q, name, res, thr, disp, logger, opts)
			wg.Add(1)
			go func() {
				defer wg.Done()
				w.Run(ctx)
			}()
		}
	}

	admin := worker.NewAdmin(q, store, res, disp, logger, opts)
	wg.Add(1)
	go func() {
		defer wg.Done()
		admin.Run(ctx)
	}()

	// Queue depth gauge
	wg.Add(1)
	go func() {
		defer wg.Done()
		observeQueueDepth(ctx, q)
	}()

	// Metrics and health endpoint
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.MetricsPort),
		Handler: mux,
	}
	go func() {
		logger.Info("worker metrics listening", slog.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Metrics server error: %v", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down workers")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	srv.Shutdown(shutdownCtx)

	wg.Wait()
	logger.Info("workers stopped")
}

// observeQueueDepth polls queue lengths for the depth gauge.
func observeQueueDepth(ctx context.Context, q queue.Queue) {
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()

	queues := append([]string{router.QueueNonMessage}, router.MessageQueues...)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, name := range queues {
				depth, err := q.Len(ctx, name)
				if err != nil {
					continue
				}
				metrics.QueueDepth.WithLabelValues(name).Set(float64(depth))
			}
		}
	}
}
