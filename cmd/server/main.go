// Command server runs the worker safety core: the REST surface, the risk
// reactor workers, the audit retention sweeper and the nightly recompute,
// all in one process.
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

	"golang.org/x/sync/errgroup"

	"worksafe/internal/audit"
	auditsink "worksafe/internal/audit/sink"
	auditmemory "worksafe/internal/audit/store/memory"
	auditpostgres "worksafe/internal/audit/store/postgres"
	"worksafe/internal/entity/session"
	"worksafe/internal/entity/store"
	entitymemory "worksafe/internal/entity/store/memory"
	entitypostgres "worksafe/internal/entity/store/postgres"
	formsservice "worksafe/internal/forms/service"
	"worksafe/internal/library"
	"worksafe/internal/platform/config"
	"worksafe/internal/platform/httpserver"
	"worksafe/internal/platform/logger"
	"worksafe/internal/platform/metrics"
	"worksafe/internal/platform/postgres"
	platformredis "worksafe/internal/platform/redis"
	"worksafe/internal/registry"
	"worksafe/internal/risk"
	risklock "worksafe/internal/risk/lock"
	queuememory "worksafe/internal/risk/queue/memory"
	"worksafe/internal/risk/queue/redisqueue"
	riskmemory "worksafe/internal/risk/store/memory"
	riskpostgres "worksafe/internal/risk/store/postgres"
	httptransport "worksafe/internal/transport/http"
	worksiteservice "worksafe/internal/worksite/service"
	id "worksafe/pkg/domain"
)

func main() {
	log := logger.New()
	cfg, err := config.FromEnv()
	if err != nil {
		log.Error("load configuration", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	stats := metrics.New()
	reg, err := registry.Default()
	if err != nil {
		log.Error("build entity registry", "error", err)
		os.Exit(1)
	}

	// Persistence. Without a DSN the process runs entirely in memory,
	// which is the local development mode.
	var (
		db         *sql.DB
		backend    session.Backend
		reader     store.Reader
		auditStore audit.Store
		libStore   library.Store
		riskStore  risk.Store
	)
	if cfg.DatabaseDSN != "" {
		db, err = postgres.Open(ctx, cfg.DatabaseDSN)
		if err != nil {
			log.Error("open postgres", "error", err)
			os.Exit(1)
		}
		defer db.Close()
		if err := postgres.Migrate(ctx, db); err != nil {
			log.Error("migrate schema", "error", err)
			os.Exit(1)
		}
		pg := entitypostgres.New(db, reg)
		backend, reader = pg, pg
		auditStore = auditpostgres.New(db)
		libStore = library.NewPostgresStore(db)
		riskStore = riskpostgres.New(db)
		log.Info("storage ready", "backend", "postgres")
	} else {
		mem := entitymemory.New(reg)
		backend, reader = mem, mem
		auditStore = auditmemory.New(mem)
		libStore = library.NewMemoryStore()
		riskStore = riskmemory.New()
		log.Warn("no database configured, using in-memory storage")
	}

	redisClient, err := platformredis.New(cfg.RedisURL)
	if err != nil {
		log.Error("connect redis", "error", err)
		os.Exit(1)
	}
	if redisClient != nil {
		defer redisClient.Close()
	}

	// Trigger queue and per-entity locks: shared through Redis when
	// available, in-process otherwise.
	var (
		queue  risk.Queue
		locker risk.Locker
	)
	if redisClient != nil {
		queue = redisqueue.New(redisClient, redisqueue.WithMetrics(stats))
		locker = risklock.NewRedis(redisClient)
	} else {
		queue = queuememory.New(queuememory.WithMetrics(stats))
		locker = risklock.NewMemory()
	}

	var enqueuer risk.Enqueuer = queue
	if db != nil {
		enqueuer = risk.NewNotifyingEnqueuer(queue, db)
	}

	// Audit event sink, optional.
	var sink audit.Sink
	if len(cfg.KafkaBrokers) > 0 {
		kafka, err := auditsink.NewKafka(ctx, cfg.KafkaBrokers,
			auditsink.WithTopic(cfg.KafkaAuditTopic),
			auditsink.WithLogger(log))
		if err != nil {
			log.Error("connect kafka", "error", err)
			os.Exit(1)
		}
		defer func() {
			closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := kafka.Close(closeCtx); err != nil {
				log.Warn("close kafka sink", "error", err)
			}
		}()
		sink = kafka
	}

	libService := library.NewService(libStore,
		library.WithLogger(log), library.WithCache(redisClient))

	worksiteOpts := []worksiteservice.Option{
		worksiteservice.WithLogger(log),
		worksiteservice.WithMetrics(stats),
		worksiteservice.WithTriggers(enqueuer),
	}
	formsOpts := []formsservice.Option{
		formsservice.WithLogger(log),
		formsservice.WithMetrics(stats),
	}
	if sink != nil {
		worksiteOpts = append(worksiteOpts, worksiteservice.WithSink(sink))
		formsOpts = append(formsOpts, formsservice.WithSink(sink))
	}
	worksite := worksiteservice.New(backend, reader, reg, auditStore, worksiteOpts...)
	forms := formsservice.New(backend, reader, reg, auditStore, formsOpts...)

	env := &risk.Env{
		Reader:  reader,
		Metrics: riskStore,
		Library: libService,
		Params:  risk.DefaultParams(),
	}
	reactorOpts := []risk.ReactorOption{
		risk.WithConcurrency(cfg.ReactorConcurrency),
		risk.WithReactorLogger(log),
		risk.WithReactorMetrics(stats),
	}
	var wake *risk.WakeListener
	if db != nil {
		wake = risk.NewWakeListener(cfg.DatabaseDSN, log)
		reactorOpts = append(reactorOpts, risk.WithWake(wake.C()))
	}
	reactor := risk.NewReactor(queue, env, locker, reactorOpts...)

	handler := httptransport.NewHandler(worksite, forms, libService,
		risk.NewExplainer(riskStore), log)
	srv := httpserver.New(cfg.Addr, httptransport.NewRouter(handler, cfg, log))

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info("starting http server", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	g.Go(func() error {
		if err := reactor.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})

	if wake != nil {
		g.Go(func() error {
			if err := wake.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Warn("trigger listener stopped", "error", err)
			}
			return nil
		})
	}

	if !cfg.AuditRetention.Forever() {
		sweeper := audit.NewSweeper(auditStore, cfg.AuditRetention, time.Hour, log)
		g.Go(func() error {
			sweeper.Run(ctx)
			return nil
		})
	}

	if cfg.RecomputeCadence == config.RecomputeNightlyFull && db != nil {
		nightly := risk.NewNightly(reader, &dbTenantSource{db: db}, enqueuer, log)
		g.Go(func() error {
			if err := nightly.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		log.Error("shutting down with error", "error", err)
		os.Exit(1)
	}
	log.Info("shutdown complete")
}

// dbTenantSource enumerates tenants for the nightly pass from the tables
// that anchor per-tenant data.
type dbTenantSource struct {
	db *sql.DB
}

func (s *dbTenantSource) Tenants(ctx context.Context) ([]id.TenantID, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT tenant_id FROM work_packages
		UNION SELECT DISTINCT tenant_id FROM contractors`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []id.TenantID
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		tenantID, err := id.ParseTenantID(raw)
		if err != nil {
			return nil, err
		}
		out = append(out, tenantID)
	}
	return out, rows.Err()
}
