package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"

	"github.com/Facats/slotwatcherss/internal/config"
	"github.com/Facats/slotwatcherss/internal/database"
	"github.com/Facats/slotwatcherss/internal/handler"
	"github.com/Facats/slotwatcherss/internal/lifecycle"
	"github.com/Facats/slotwatcherss/internal/lock"
	"github.com/Facats/slotwatcherss/internal/logging"
	"github.com/Facats/slotwatcherss/internal/metrics"
	"github.com/Facats/slotwatcherss/internal/platform"
	"github.com/Facats/slotwatcherss/internal/queue"
	"github.com/Facats/slotwatcherss/internal/reconcile"
	"github.com/Facats/slotwatcherss/internal/repository"
	"github.com/Facats/slotwatcherss/internal/router"
	"github.com/Facats/slotwatcherss/internal/sweep"
	"github.com/Facats/slotwatcherss/internal/tier"
)

func main() {
	cfg := config.Load()
	logging.Init(logging.Config{Format: cfg.LogFormat, Level: cfg.LogLevel, Component: "slotwatcher"})

	// Store
	var store lifecycle.Store
	switch cfg.StoreDriver {
	case config.StoreMemory:
		log.Warn().Msg("using in-memory store; slots are lost on restart")
		store = repository.NewMemoryStore()
	default:
		db, err := database.Open(cfg.DB)
		if err != nil {
			log.Fatal().Err(err).Msg("connect to mysql")
		}
		defer db.Close()
		store = repository.NewSQLStore(db)
	}

	// Redis backs the distributed lock, rate limiting and the stats cache.
	rdb := config.NewRedisClient(cfg.Redis)
	if rdb != nil {
		defer rdb.Close()
	}

	var locks lock.Locker = lock.NewKeyedMutex()
	if cfg.LockBackend == config.LockRedis {
		if rdb == nil {
			log.Fatal().Msg("LOCK_BACKEND=redis but redis is unreachable")
		}
		locks = lock.NewRedisLocker(rdb, "slotwatcher:lock", cfg.LockTTL)
	}

	m := metrics.Get()

	platform.SetAPIBase(cfg.Platform.APIBase)
	session, err := platform.NewSession(cfg.Platform.Token, cfg.Platform.Timeout)
	if err != nil {
		log.Fatal().Err(err).Msg("platform session")
	}
	recon := reconcile.New(platform.Authorizer{S: session, GuildID: cfg.Platform.GuildID}, reconcile.Options{
		Roles:   cfg.Platform.Roles,
		Marker:  cfg.Platform.LabelMarker,
		Timeout: cfg.Platform.Timeout,
		Metrics: m,
	})

	opts := lifecycle.Options{Locks: locks, Metrics: m}
	if cfg.EventsEnabled {
		pub := queue.NewPublisher(cfg.RabbitMQURL)
		defer pub.Close()
		opts.Events = pub
	}
	engine := lifecycle.New(store, recon, opts)

	sweeper := sweep.New(engine, cfg.SweepInterval, m)
	if err := sweeper.Start(); err != nil {
		log.Fatal().Err(err).Msg("start sweep")
	}

	e := echo.New()
	e.HideBanner = true
	router.RegisterRoutes(e)
	router.RegisterAPI(e, router.API{
		Slots:      handler.NewSlotHandler(engine, sweeper),
		Broadcasts: handler.NewBroadcastHandler(engine),
		Stats:      handler.NewStatsHandler(engine),
		JWTSecret:  cfg.JWTSecret,
		Redis:      rdb,
		RateLimit:  cfg.RateLimit,
		StatsCache: cfg.StatsCache,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		addr := ":" + cfg.Port
		log.Info().Str("addr", addr).Str("env", cfg.Env).Str("tiers", tier.CatalogVersion).Msg("listening")
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("http server")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http shutdown")
	}
	select {
	case <-sweeper.Stop().Done():
	case <-shutdownCtx.Done():
		log.Warn().Msg("sweep still running at shutdown")
	}
}
