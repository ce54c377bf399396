// main wires high-level dependencies, exposes the HTTP router, and keeps the
// server lifecycle small. Business logic lives in internal services packages.
package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"golang.org/x/sync/errgroup"

	"payhook/internal/audit"
	auditkafka "payhook/internal/audit/kafka"
	"payhook/internal/audit/publisher"
	auditmemory "payhook/internal/audit/store/memory"
	auditpostgres "payhook/internal/audit/store/postgres"
	"payhook/internal/bank"
	"payhook/internal/dispatch"
	dispatchmetrics "payhook/internal/dispatch/metrics"
	"payhook/internal/engine"
	enginemetrics "payhook/internal/engine/metrics"
	"payhook/internal/idempotency"
	"payhook/internal/platform/config"
	"payhook/internal/platform/httpserver"
	"payhook/internal/platform/logger"
	platformredis "payhook/internal/platform/redis"
	"payhook/internal/rules"
	httptransport "payhook/internal/transport/http"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "payhook: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg := config.FromEnv()
	log := logger.New(cfg.Server.LogLevel)

	defs, err := rules.LoadDir(cfg.Rules.Dir)
	if err != nil {
		return fmt.Errorf("load rules: %w", err)
	}
	store := rules.NewStore(defs)
	log.Info("rules loaded", "dir", cfg.Rules.Dir, "count", len(defs))

	guard, redisClient, err := newGuard(cfg, log)
	if err != nil {
		return err
	}
	if redisClient != nil {
		defer redisClient.Close()
	}

	recorder, closeAudit, err := newRecorder(cfg, log)
	if err != nil {
		return err
	}
	defer closeAudit()

	bankClient := bank.New(cfg.Bank.BaseURL, cfg.Bank.APIKey,
		bank.WithTimeout(cfg.Bank.Timeout),
		bank.WithLogger(log.With("component", "bank")))

	dispatcher := dispatch.New(guard, bankClient,
		dispatch.WithLogger(log.With("component", "dispatch")),
		dispatch.WithMetrics(dispatchmetrics.New()))

	eng := engine.New(store, dispatcher, recorder,
		engine.WithLogger(log.With("component", "engine")),
		engine.WithMetrics(enginemetrics.New()))

	handler := httptransport.NewHandler(eng, log.With("component", "http"))
	router := httptransport.NewRouter(handler, log)
	srv := httpserver.New(cfg.Server.Addr, router)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info("starting payhook", "addr", cfg.Server.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	// SIGHUP swaps in a freshly validated rule set; a bad set is
	// rejected whole and the running one stays in place.
	g.Go(func() error {
		reload := make(chan os.Signal, 1)
		signal.Notify(reload, syscall.SIGHUP)
		defer signal.Stop(reload)
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-reload:
				fresh, err := rules.LoadDir(cfg.Rules.Dir)
				if err != nil {
					log.Error("rule reload rejected", "error", err)
					continue
				}
				store.Swap(fresh)
				log.Info("rules reloaded", "count", len(fresh))
			}
		}
	})

	return g.Wait()
}

// newGuard picks the idempotency backend: redis when configured, an
// in-process guard otherwise. The memory guard does not survive
// restarts or span replicas, so it only suits development.
func newGuard(cfg config.Config, log *slog.Logger) (idempotency.Guard, *platformredis.Client, error) {
	client, err := platformredis.New(cfg.Redis)
	if err != nil {
		return nil, nil, fmt.Errorf("redis: %w", err)
	}
	if client == nil {
		log.Warn("redis not configured, using in-memory idempotency guard")
		return idempotency.NewMemoryGuard(cfg.Redis.ClaimTTL), nil, nil
	}
	return idempotency.NewRedisGuard(client.Client, cfg.Redis.ClaimTTL), client, nil
}

// newRecorder assembles the audit pipeline: every configured sink gets
// each record, decoupled from the engine by a buffered publisher.
func newRecorder(cfg config.Config, log *slog.Logger) (*publisher.Publisher, func(), error) {
	var sinks audit.Fanout
	var closers []func()

	if cfg.Audit.PostgresDSN != "" {
		db, err := sql.Open("postgres", cfg.Audit.PostgresDSN)
		if err != nil {
			return nil, nil, fmt.Errorf("open audit db: %w", err)
		}
		pgStore := auditpostgres.New(db)
		if err := pgStore.EnsureSchema(context.Background()); err != nil {
			db.Close()
			return nil, nil, err
		}
		sinks = append(sinks, pgStore)
		closers = append(closers, func() { db.Close() })
	}

	if len(cfg.Audit.KafkaBrokers) > 0 {
		pub, err := auditkafka.NewPublisher(context.Background(),
			cfg.Audit.KafkaBrokers, cfg.Audit.KafkaTopic,
			auditkafka.WithLogger(log.With("component", "audit-kafka")))
		if err != nil {
			for _, c := range closers {
				c()
			}
			return nil, nil, fmt.Errorf("audit kafka: %w", err)
		}
		sinks = append(sinks, pub)
		closers = append(closers, pub.Close)
	}

	if len(sinks) == 0 {
		log.Warn("no audit sinks configured, records stay in memory")
		sinks = append(sinks, auditmemory.NewInMemoryStore())
	}

	rec := publisher.NewPublisher(sinks,
		publisher.WithAsyncBuffer(cfg.Audit.BufferSize),
		publisher.WithLogger(log.With("component", "audit")))

	closeAll := func() {
		rec.Close()
		for _, c := range closers {
			c()
		}
	}
	return rec, closeAll, nil
}
