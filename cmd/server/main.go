package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"golang.org/x/sync/errgroup"

	"masterdata/internal/audit"
	"masterdata/internal/auth"
	"masterdata/internal/dedupe"
	"masterdata/internal/domain"
	"masterdata/internal/golden"
	"masterdata/internal/lineage"
	"masterdata/internal/platform/config"
	"masterdata/internal/platform/httpserver"
	"masterdata/internal/platform/logger"
	"masterdata/internal/platform/metrics"
	"masterdata/internal/platform/redis"
	"masterdata/internal/quality"
	"masterdata/internal/stats"
	"masterdata/internal/storage"
	"masterdata/internal/storage/memory"
	"masterdata/internal/storage/postgres"
	httpapi "masterdata/internal/transport/http"
	"masterdata/internal/workflow"
	"masterdata/pkg/ids"
)

// outboxSize bounds the audit forwarding queue; overflow drops events rather
// than blocking commands, the store stays authoritative either way.
const outboxSize = 1024

// main wires dependencies and keeps the process lifecycle small. Business
// logic lives in the internal services packages.
func main() {
	cfg := config.FromEnv()
	log := logger.New()
	m := metrics.New()

	store, tx, cleanup, err := openStore(cfg)
	if err != nil {
		log.Error("opening store failed", "error", err)
		os.Exit(1)
	}
	defer cleanup()

	cache, err := redis.New(cfg.Redis)
	if err != nil {
		log.Error("connecting to redis failed", "error", err)
		os.Exit(1)
	}
	if cache != nil {
		defer cache.Close()
	}

	var outbox chan domain.WorkflowEvent
	var forwarder *audit.Forwarder
	if len(cfg.Kafka.Brokers) > 0 {
		outbox = make(chan domain.WorkflowEvent, outboxSize)
		forwarder, err = audit.NewForwarder(cfg.Kafka.Brokers, cfg.Kafka.Topic, outbox, log)
		if err != nil {
			log.Error("connecting to kafka failed", "error", err)
			os.Exit(1)
		}
	}

	gen := ids.NewUUID()
	recorder := audit.NewRecorder(store, gen, m, log, outbox)

	goldenSvc := golden.NewService(store, tx, recorder, gen, m, log)
	workflowSvc := workflow.NewService(store, tx, recorder, goldenSvc, gen, m, log)
	dedupeSvc := dedupe.NewService(store, tx, recorder, gen, m, log)
	lineageSvc := lineage.NewService(store)
	recommender := quality.NewRecommender(store)
	statsSvc := stats.NewService(store, cache, log)
	authSvc := auth.NewService(store, cfg.JWTSigningKey)

	handler := httpapi.NewHandler(workflowSvc, goldenSvc, dedupeSvc, lineageSvc, recommender, statsSvc, authSvc, m, log)
	srv := httpserver.New(cfg.Addr, httpapi.NewRouter(handler))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("starting masterdata server", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	if forwarder != nil {
		g.Go(func() error {
			if err := forwarder.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		})
	}
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if forwarder != nil {
			if err := forwarder.Close(shutdownCtx); err != nil {
				log.Warn("closing kafka forwarder failed", "error", err)
			}
		}
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Error("server exited", "error", err)
		os.Exit(1)
	}
	log.Info("server stopped")
}

// openStore selects the persistence backend: postgres when DATABASE_URL is
// set, otherwise the in-memory store for local development.
func openStore(cfg config.Config) (storage.Store, storage.TxRunner, func(), error) {
	if cfg.DatabaseURL == "" {
		s := memory.New()
		return s, s, func() {}, nil
	}
	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		return nil, nil, nil, err
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, nil, nil, err
	}
	s := postgres.New(db)
	return s, s, func() { db.Close() }, nil
}
