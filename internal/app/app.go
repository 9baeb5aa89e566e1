package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"code.cloudfoundry.org/clock"

	bidding "auction-engine/internal/biddingService"
	"auction-engine/internal/config"
	"auction-engine/internal/models"
	"auction-engine/internal/repository"
	"auction-engine/internal/server"
	"auction-engine/migrations"
	"auction-engine/utils"
)

// Store is what the engine needs from a persistence backend
type Store interface {
	repository.AuctionStore
	repository.WatchlistStore
}

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config *config.Config
	Clock  clock.Clock
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config) *App {
	return &App{Config: cfg, Clock: clock.NewClock()}
}

// OpenStore connects to PostgreSQL when a DSN is configured and falls back to
// the in-memory repository otherwise. The returned closer is never nil.
func (a *App) OpenStore(ctx context.Context) (Store, func(), error) {
	db := a.Config.Database
	if db.DSN == "" {
		utils.Warn("database.dsn not configured; state is kept in memory", nil)
		return repository.NewMemoryRepo(), func() {}, nil
	}

	pool, err := repository.NewPool(ctx, repository.PoolOptions{
		DSN:             db.DSN,
		MaxConns:        db.MaxConns,
		ConnMaxLifetime: db.ConnMaxLifetime,
	})
	if err != nil {
		return nil, nil, err
	}
	if db.ApplyMigrations {
		if err := migrations.Apply(ctx, pool); err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("apply migrations: %w", err)
		}
	}

	store := repository.NewPostgresStore(pool)
	return store, store.Close, nil
}

// NewEngine builds the bidding engine on top of store
func (a *App) NewEngine(store Store) (*bidding.Engine, error) {
	return bidding.NewEngine(store, store, a.Clock, bidding.Options{
		Actor:            a.Config.ActorConfig(),
		Scheduler:        a.Config.SchedulerOptions(),
		SubscriberBuffer: a.Config.Fanout.SubscriberBuffer,
		IncrementPolicy:  models.IncrementPolicy(a.Config.Engine.IncrementPolicy),
	})
}

// Serve runs the engine and the HTTP API until SIGINT or SIGTERM.
func (a *App) Serve(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, closeStore, err := a.OpenStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	engine, err := a.NewEngine(store)
	if err != nil {
		return err
	}

	engineCtx, stopEngine := context.WithCancel(context.Background())
	engineDone := make(chan error, 1)
	go func() {
		engineDone <- engine.Run(engineCtx)
	}()

	srv := &http.Server{
		Addr:              a.Config.HTTP.Addr,
		Handler:           server.SetupRouter(engine),
		ReadHeaderTimeout: a.Config.HTTP.ReadHeaderTimeout,
	}

	srvErr := make(chan error, 1)
	go func() {
		srvErr <- srv.ListenAndServe()
	}()
	utils.Info("auction engine listening", map[string]any{"addr": srv.Addr})

	var runErr error
	select {
	case err := <-srvErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			runErr = fmt.Errorf("http server: %w", err)
		}
	case err := <-engineDone:
		engineDone <- err
		if err != nil {
			runErr = err
		}
	case <-ctx.Done():
		utils.Info("shutdown signal received, stopping server", nil)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), a.shutdownTimeout())
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		utils.Error("server shutdown error", map[string]any{"error": err.Error()})
	}

	// the listener is drained before actors stop so in-flight bids finish
	stopEngine()
	if err := <-engineDone; err != nil && runErr == nil {
		runErr = err
	}
	utils.Info("auction engine stopped", nil)
	return runErr
}

func (a *App) shutdownTimeout() time.Duration {
	if a.Config.HTTP.ShutdownTimeout > 0 {
		return a.Config.HTTP.ShutdownTimeout
	}
	return 10 * time.Second
}
