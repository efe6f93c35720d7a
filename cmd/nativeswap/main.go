package main

import (
	"NativeSwap/internal/config"
	"NativeSwap/internal/core"
	"NativeSwap/internal/ingestion"
	"NativeSwap/internal/observability"
	"NativeSwap/internal/persistence"
	"NativeSwap/internal/projection"
	"NativeSwap/internal/query"
	"NativeSwap/internal/server"
	"NativeSwap/internal/storage"
	"NativeSwap/migrations"
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// recentKeysOnStart bounds how many event log ids warm the dedup cache
// when no checkpoint carries them.
const recentKeysOnStart = 10_000

func main() {
	configPath := flag.String("config", os.Getenv("NSWAP_CONFIG"), "path to YAML config")
	flag.Parse()

	logger := observability.NewLogger("main")

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatal().Err(err).Msg("load config")
	}
	closer := observability.ConfigureLogging(cfg.Log)
	defer closer.Close()
	logger = observability.NewLogger("main")
	logger.Info().Str("data_dir", cfg.DataDir).Msg("NativeSwap starting")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	// --- Postgres ---
	db, err := sql.Open("postgres", cfg.PostgresURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("postgres open")
	}
	defer db.Close()
	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(5 * time.Minute)
	if err := db.PingContext(ctx); err != nil {
		logger.Fatal().Err(err).Msg("postgres ping")
	}

	if err := persistence.NewMigrator(db, migrations.FS).Up(ctx); err != nil {
		logger.Fatal().Err(err).Msg("run migrations")
	}

	// --- State store ---
	store, err := storage.OpenLevelStore(cfg.DataDir)
	if err != nil {
		logger.Fatal().Err(err).Msg("open state store")
	}
	defer store.Close()

	metrics := observability.NewMetrics(prometheus.DefaultRegisterer)
	healthChecker := observability.NewHealthChecker()
	healthChecker.AddCheck("postgres", db.PingContext)

	// --- Channels ---
	// persistence blocks the engine; projection and notices drop when full
	persistChan := make(chan core.CoreOutput, cfg.PersistChanSize)
	projectionChan := make(chan core.CoreOutput, cfg.ProjectionChanSize)
	noticeChan := make(chan core.CoreOutput, cfg.PublishChanSize)
	txChan := make(chan ingestion.RawTx, cfg.IngestChanSize)

	dbChecker := persistence.NewPostgresIdempotencyChecker(db)
	engine, err := core.NewEngine(core.EngineConfig{
		Store:          store,
		Params:         cfg.Params(),
		LRUCapacity:    cfg.IdempotencyLRUCapacity,
		DBChecker:      dbChecker,
		Metrics:        metrics,
		PersistChan:    persistChan,
		ProjectionChan: projectionChan,
		NoticeChan:     noticeChan,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("start engine")
	}

	checkpoints := persistence.NewCheckpointManager(db)
	if err := recoverEngine(ctx, engine, checkpoints, dbChecker, logger); err != nil {
		logger.Fatal().Err(err).Msg("recovery")
	}

	// --- NATS ---
	nc, js, err := ingestion.ConnectNATS(cfg.NATSURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("nats connect")
	}
	defer nc.Close()
	healthChecker.AddCheck("nats", func(context.Context) error {
		if !nc.IsConnected() {
			return errors.New("nats disconnected")
		}
		return nil
	})
	if err := ingestion.EnsureStreams(ctx, js); err != nil {
		logger.Fatal().Err(err).Msg("ensure transaction stream")
	}
	if err := ingestion.EnsureOutboundStream(ctx, js); err != nil {
		logger.Fatal().Err(err).Msg("ensure outbound stream")
	}

	subscriber := ingestion.NewNATSSubscriber(js, txChan)
	if err := subscriber.Subscribe(ctx, ingestion.DefaultSubjects()); err != nil {
		logger.Fatal().Err(err).Msg("nats subscribe")
	}

	loop := newEngineLoop(engine, checkpoints, cfg.CheckpointInterval, metrics)

	grpcServer := server.NewGRPCServer(cfg.GRPCAddr, cfg.HTTPAddr, &server.ServerDeps{
		DB:            db,
		QueryService:  query.NewQueryService(store, cfg.Params(), engine, db),
		IngestService: ingestion.NewGRPCIngestService(txChan),
		CheckpointMgr: checkpoints,
		Checkpoint:    loop.requestCheckpoint,
		StartTime:     time.Now(),
		HealthChecker: healthChecker,
		Metrics:       metrics,

		SubmitPerMinute: cfg.AdminSubmitPerMinute,
		SubmitBurst:     cfg.AdminSubmitBurst,
	})

	// --- Goroutines ---
	errChan := make(chan error, 8)
	workerCtx, stopWorkers := context.WithCancel(context.Background())
	defer stopWorkers()
	var workers sync.WaitGroup

	// Persistence, projection and publisher outlive ctx so they can drain
	// what the engine emitted before shutdown.
	persistWorker := persistence.NewPersistenceWorker(db, persistChan, cfg.PersistBatchSize, cfg.PersistFlushTimeout, metrics)
	projWorker := projection.NewProjectionWorker(db, projectionChan, metrics)
	publisher := ingestion.NewOutboundPublisher(js, noticeChan, metrics)
	for name, run := range map[string]func(context.Context) error{
		"persistence": persistWorker.Run,
		"projection":  projWorker.Run,
		"publisher":   publisher.Run,
	} {
		workers.Add(1)
		go func() {
			defer workers.Done()
			if err := run(workerCtx); err != nil && !errors.Is(err, context.Canceled) {
				errChan <- fmt.Errorf("%s: %w", name, err)
			}
		}()
	}

	loopDone := make(chan struct{})
	go func() {
		defer close(loopDone)
		loop.run(ctx, txChan)
	}()

	go func() { errChan <- grpcServer.StartGRPC(ctx) }()
	go func() { errChan <- grpcServer.StartHTTPGateway(ctx) }()
	go func() { errChan <- serveMetrics(ctx, cfg.MetricsAddr, logger) }()
	go reportChannels(ctx, metrics, persistChan, projectionChan, noticeChan)

	healthChecker.SetReady(true)
	grpcServer.SetServing(true)
	logger.Info().
		Int64("next_sequence", engine.GetSequence()).
		Uint64("last_block", engine.LastBlock()).
		Str("grpc", cfg.GRPCAddr).
		Str("http", cfg.HTTPAddr).
		Str("metrics", cfg.MetricsAddr).
		Msg("NativeSwap ready")

	select {
	case sig := <-sigChan:
		logger.Info().Str("signal", sig.String()).Msg("shutting down")
	case err := <-errChan:
		logger.Error().Err(err).Msg("goroutine failed, shutting down")
	}

	// --- Graceful shutdown ---
	healthChecker.SetReady(false)
	subscriber.Stop()
	cancel()
	<-loopDone

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	// the loop has stopped, so the engine can be read here
	if _, err := loop.checkpoint(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("final checkpoint failed")
	}

	close(persistChan)
	close(projectionChan)
	close(noticeChan)
	drained := make(chan struct{})
	go func() {
		workers.Wait()
		close(drained)
	}()
	select {
	case <-drained:
	case <-shutdownCtx.Done():
		logger.Warn().Msg("workers did not drain before timeout")
		stopWorkers()
	}

	logger.Info().Msg("NativeSwap shutdown complete")
}

// recoverEngine checks the engine, which resumed from its own store, against
// the latest checkpoint and warms the dedup cache.
func recoverEngine(
	ctx context.Context,
	engine *core.Engine,
	checkpoints *persistence.CheckpointManager,
	dbChecker *persistence.PostgresIdempotencyChecker,
	logger zerolog.Logger,
) error {
	cp, err := checkpoints.LoadLatestCheckpoint(ctx)
	if err != nil {
		return fmt.Errorf("load checkpoint: %w", err)
	}
	if cp == nil {
		logger.Info().Msg("no checkpoint found")
	} else {
		snap, err := cp.SnapshotState()
		if err != nil {
			return err
		}
		if err := engine.RestoreFromSnapshot(snap); err != nil {
			return err
		}
		if err := checkpoints.MarkVerified(ctx, cp.Sequence); err != nil {
			logger.Warn().Err(err).Int64("seq", cp.Sequence).Msg("mark checkpoint verified failed")
		}
		logger.Info().Int64("seq", cp.Sequence).Int("keys", len(snap.IdempotencyKeys)).Msg("checkpoint verified against store")
	}

	keys, err := dbChecker.RecentKeys(ctx, recentKeysOnStart)
	if err != nil {
		return fmt.Errorf("load recent keys: %w", err)
	}
	engine.WarmLRU(keys)

	logged, err := checkpoints.GetLatestSequence(ctx)
	if err != nil {
		return fmt.Errorf("latest logged sequence: %w", err)
	}
	if applied := engine.GetSequence() - 1; logged < applied {
		logger.Warn().
			Int64("logged", logged).
			Int64("applied", applied).
			Msg("event log is behind the state store; the missing rows were lost before persisting")
	}
	return nil
}

func serveMetrics(ctx context.Context, addr string, logger zerolog.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		shutCtx, c := context.WithTimeout(context.Background(), 5*time.Second)
		defer c()
		_ = srv.Shutdown(shutCtx)
	}()
	logger.Info().Str("addr", addr).Msg("metrics server listening")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("metrics server: %w", err)
	}
	return nil
}

func reportChannels(ctx context.Context, metrics *observability.Metrics, persist, proj, notices chan core.CoreOutput) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			metrics.ChannelSize.WithLabelValues("persist").Set(float64(len(persist)))
			metrics.ChannelSize.WithLabelValues("projection").Set(float64(len(proj)))
			metrics.ChannelSize.WithLabelValues("notices").Set(float64(len(notices)))
		}
	}
}
