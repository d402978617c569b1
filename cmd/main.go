// jobmate-aggregator-service
//
// Pulls job postings from public job boards and Apify actors, normalizes
// them into one schema and upserts them into the shared jobs table.
//   - cron: incremental refresh of the top sources, nightly full sync,
//     stale/expired maintenance
//   - admin REST API: on-demand syncs, Apify loads and their progress
//
// Publishes EVENT_JOBS_SYNCED to Redis after every source sync.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"jobmate/aggregator-service/internal/api"
	"jobmate/aggregator-service/internal/apify"
	"jobmate/aggregator-service/internal/batch"
	"jobmate/aggregator-service/internal/config"
	"jobmate/aggregator-service/internal/db"
	"jobmate/aggregator-service/internal/events"
	"jobmate/aggregator-service/internal/logger"
	"jobmate/aggregator-service/internal/normalize"
	"jobmate/aggregator-service/internal/scheduler"
	"jobmate/aggregator-service/internal/source"
	"jobmate/aggregator-service/internal/store"
	"jobmate/aggregator-service/internal/syncer"
)

const version = "1.0.0"

func main() {
	// ── Config ──────────────────────────────────────────────────────────────
	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("[aggregator-service] Config error: %v", err)
	}

	base, err := logger.New(cfg.LogLevel)
	if err != nil {
		logrus.Fatalf("[aggregator-service] Logger: %v", err)
	}
	log := logger.Service(base)
	normalize.SetLogger(log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ── Job store ────────────────────────────────────────────────────────────
	var jobs store.Store
	switch cfg.StoreDriver {
	case "memory":
		log.Warn("using in-memory job store; data is lost on restart")
		jobs = store.NewMemoryStore()
	default:
		log.Info("connecting to PostgreSQL…")
		pool, err := db.NewPostgresPool(ctx, cfg.DatabaseURL)
		if err != nil {
			log.WithError(err).Fatal("PostgreSQL")
		}
		defer pool.Close()
		pg := store.NewPostgresStore(pool)
		if cfg.AutoMigrate {
			if err := pg.EnsureSchema(ctx); err != nil {
				log.WithError(err).Fatal("schema migration failed")
			}
		}
		jobs = pg
		log.Info("PostgreSQL connected ✓")
	}

	// ── Redis (optional) ─────────────────────────────────────────────────────
	var (
		statuses apify.StatusStore = apify.NewMemoryStatusStore()
		pub      events.Publisher  = events.Nop{}
	)
	if cfg.RedisURL != "" {
		log.Info("connecting to Redis…")
		rdb, err := db.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			log.WithError(err).Fatal("Redis")
		}
		defer rdb.Close()
		statuses = apify.NewRedisStatusStore(rdb)
		pub = events.NewRedisPublisher(rdb, log)
		log.Info("Redis connected ✓")
	} else {
		log.Warn("REDIS_URL not set; load statuses are process-local and sync events are disabled")
	}

	// ── Sources ──────────────────────────────────────────────────────────────
	processor := batch.NewProcessor(jobs, log)
	apifyClient := apify.NewClient(cfg.ApifyToken, nil)
	registry, err := buildRegistry(cfg, apifyClient)
	if err != nil {
		log.WithError(err).Fatal("source registry")
	}
	log.WithField("sources", registry.Names()).Info("sources registered")

	syncs := syncer.New(registry, processor, pub, log)

	var loads api.LoadRunner
	var loader *apify.Loader
	if apifyClient.Configured() {
		loader = apify.NewLoader(apifyClient, statuses, processor, log)
		loads = loader
	}

	// ── Scheduler ────────────────────────────────────────────────────────────
	sched := scheduler.New(syncs, processor, scheduler.Specs{
		Incremental: cfg.IncrementalSyncSpec,
		Full:        cfg.FullSyncSpec,
		Maintenance: cfg.MaintenanceSpec,
	}, scheduler.Options{
		StaleAfterDays:  cfg.StaleAfterDays,
		ExpireAfterDays: cfg.ExpireAfterDays,
		RunOnStart:      cfg.SyncOnStart,
	}, log)
	if err := sched.Start(ctx); err != nil {
		log.WithError(err).Fatal("scheduler")
	}

	// ── HTTP server ──────────────────────────────────────────────────────────
	h := api.NewHandler(syncs, loads, processor, cfg.AdminToken, version, log)
	srv := &http.Server{
		Addr:        fmt.Sprintf(":%s", cfg.Port),
		Handler:     h.Routes(),
		ReadTimeout: 10 * time.Second,
		// POST /sync/all runs every source inline.
		WriteTimeout: 30 * time.Minute,
	}

	go func() {
		log.Infof("v%s listening on :%s", version, cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("HTTP server error")
		}
	}()

	// ── Graceful shutdown ────────────────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down…")
	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("shutdown error")
	}
	sched.Stop()
	if loader != nil {
		loader.Close()
	}
	log.Info("stopped.")
}

// buildRegistry registers the keyless boards, the keyed boards whose keys
// are present and one fetcher per Apify actor when a token is set.
func buildRegistry(cfg *config.Config, client *apify.Client) (*source.Registry, error) {
	hc := source.NewHTTPClient()
	reg := source.NewRegistry(
		source.NewRemotiveFetcher(hc),
		source.NewRemoteOKFetcher(hc),
		source.NewArbeitnowFetcher(hc),
		source.NewHimalayasFetcher(hc),
		source.NewTheMuseFetcher(hc, ""),
		source.NewJobicyFetcher(hc),
	)
	if cfg.USAJobsAPIKey != "" {
		reg.Register(source.NewUSAJobsFetcher(hc, cfg.USAJobsAPIKey, cfg.USAJobsEmail))
	}
	if cfg.FindWorkAPIKey != "" {
		reg.Register(source.NewFindWorkFetcher(hc, cfg.FindWorkAPIKey))
	}
	if !client.Configured() {
		return reg, nil
	}

	q := apify.Query{
		Keywords: cfg.ApifyKeywords,
		Location: cfg.ApifyLocation,
		Boards:   cfg.GreenhouseBoards,
	}
	for _, name := range apify.ActorNames() {
		if name == "greenhouse" && len(q.Boards) == 0 {
			continue
		}
		f, err := source.NewApifyFetcher(client, name, q)
		if err != nil {
			return nil, fmt.Errorf("apify fetcher %s: %w", name, err)
		}
		reg.Register(f)
	}
	return reg, nil
}
