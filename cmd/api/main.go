package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/riverdriver/riverpgxv5"
	"github.com/riverqueue/river/rivermigrate"
	"github.com/rs/cors"
	"github.com/rs/zerolog"

	"github.com/memberhub/backend/internal/auth"
	"github.com/memberhub/backend/internal/config"
	"github.com/memberhub/backend/internal/database"
	"github.com/memberhub/backend/internal/gate"
	"github.com/memberhub/backend/internal/handlers"
	"github.com/memberhub/backend/internal/jobs"
	"github.com/memberhub/backend/internal/ledger"
	"github.com/memberhub/backend/internal/logger"
	"github.com/memberhub/backend/internal/proxy"
	"github.com/memberhub/backend/internal/repository"
	"github.com/memberhub/backend/internal/router"
	"github.com/memberhub/backend/internal/session"
	"github.com/memberhub/backend/internal/subscription"
	"github.com/memberhub/backend/internal/validation"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		bootLog := zerolog.New(os.Stderr)
		bootLog.Fatal().Err(err).Msg("invalid configuration")
	}
	log := logger.New(cfg.AppEnv)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Fatal().Err(err).Msg("server exited")
	}
}

func run(ctx context.Context, cfg *config.Config, log zerolog.Logger) error {
	pool, err := database.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer pool.Close()
	log.Info().Msg("connected to postgres")

	if err := database.ApplySchema(ctx, pool); err != nil {
		return err
	}
	migrator, err := rivermigrate.New(riverpgxv5.New(pool), nil)
	if err != nil {
		return err
	}
	if _, err := migrator.Migrate(ctx, rivermigrate.DirectionUp, nil); err != nil {
		return err
	}
	log.Info().Msg("schema and river migrations applied")

	checks := map[string]handlers.HealthCheck{"postgres": pool.Ping}

	var store session.Store
	switch cfg.SessionStore {
	case "redis":
		rdb, err := database.NewRedis(ctx, cfg.RedisURL)
		if err != nil {
			return err
		}
		defer rdb.Close()
		store = session.NewRedisStore(rdb)
		checks["redis"] = redisPing(rdb)
	default:
		store = session.NewPostgresStore(pool)
	}
	sessions := session.NewRegistry(store, log)

	accounts := repository.NewAccountRepo(pool)

	subRepo := subscription.NewRepository(pool)
	subs := subscription.NewService(subRepo, log)

	ledgerRepo := ledger.NewRepository(pool)
	catalog := ledger.NewCachedCatalog(ledgerRepo, cfg.CatalogCacheTTL)
	quotas := ledger.NewService(ledgerRepo, catalog, cfg.QuotaLocation(), log)

	tokens := auth.NewTokenIssuer(cfg.JWTSecret, cfg.JWTTTL)
	authSvc := auth.NewService(accounts, sessions, tokens, log)

	v, err := validation.New()
	if err != nil {
		return err
	}

	g := gate.New(tokens, accounts, sessions, subs, gate.Options{
		EnforceSingleSession: cfg.SessionEnforced(),
		FailOpen:             cfg.SubscriptionFailOpen,
		LookupTimeout:        cfg.SubscriptionLookupTimeout,
		Paths:                gate.DefaultPaths(),
	}, log)

	riverClient, err := newRiverClient(pool, quotas, subs, cfg, log)
	if err != nil {
		return err
	}

	upstream, err := proxy.New(cfg.DataServiceURL, log)
	if err != nil {
		return err
	}

	r := router.New(router.Deps{
		Auth: auth.NewHandler(authSvc, v, log, cfg.IsProduction(), tokens.TTL()),
		Subscription: &handlers.SubscriptionHandler{
			Subscriptions: subs,
			Ledger:        quotas,
			Plans:         catalog,
			Validator:     v,
			Logger:        log,
		},
		Admin: &handlers.AdminHandler{
			Subscriptions: subs,
			Quotas:        quotas,
			Accounts:      accounts,
			Catalog:       catalog,
			Validator:     v,
			Logger:        log,
		},
		Health:   &handlers.HealthHandler{Checks: checks},
		Gate:     g,
		Upstream: upstream,
		Logger:   log,
	})
	registerActionRoutes(r, quotas, upstream, log)

	handler := cors.New(cors.Options{
		AllowedOrigins:   cfg.CORSAllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		AllowCredentials: true,
	}).Handler(r)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handler,
		ReadTimeout:  cfg.HTTPReadTimeout,
		WriteTimeout: cfg.HTTPWriteTimeout,
		IdleTimeout:  cfg.HTTPIdleTimeout,
	}

	if err := riverClient.Start(ctx); err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", srv.Addr).Msg("starting http server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http shutdown")
	}
	if err := riverClient.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("river shutdown")
	}
	return nil
}

func newRiverClient(pool *pgxpool.Pool, quotas ledger.Service, subs subscription.Evaluator, cfg *config.Config, log zerolog.Logger) (*river.Client[pgx.Tx], error) {
	workers := river.NewWorkers()
	jobs.Register(workers, quotas, subs, log)
	return river.NewClient(riverpgxv5.New(pool), &river.Config{
		Queues: map[string]river.QueueConfig{
			river.QueueDefault: {MaxWorkers: 2},
		},
		Workers:      workers,
		PeriodicJobs: jobs.PeriodicJobs(cfg.DailyResetInterval, cfg.ExpirySweepInterval),
	})
}

func redisPing(rdb *redis.Client) handlers.HealthCheck {
	return func(ctx context.Context) error {
		return rdb.Ping(ctx).Err()
	}
}
