package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/DoyleJ11/emoji-relay-backend/internal/httpapi"
	"github.com/DoyleJ11/emoji-relay-backend/internal/hub"
	"github.com/DoyleJ11/emoji-relay-backend/internal/store"
	"github.com/DoyleJ11/emoji-relay-backend/internal/store/memory"
	"github.com/DoyleJ11/emoji-relay-backend/internal/store/postgres"
	"github.com/DoyleJ11/emoji-relay-backend/internal/ws"
)

func newLogger(verbose bool) (*zap.Logger, error) {
	if verbose {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func serve(ctx context.Context, cfg *Config) error {
	log, err := newLogger(cfg.verbose)
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	defer func() { _ = log.Sync() }()

	log.Info("starting emoji-relay", zap.String("version", releaseVersion), zap.String("store", cfg.store))

	g, ctx := errgroup.WithContext(ctx)

	h := hub.NewHub(ctx, cfg.feedSweepInterval, log)
	defer h.Shutdown()

	var st store.Store
	switch cfg.store {
	case storePostgres:
		openCtx, cancel := context.WithTimeout(ctx, cfg.syncTimeout)
		pg, err := postgres.Open(openCtx, cfg.databaseURL, h, log)
		cancel()
		if err != nil {
			return fmt.Errorf("open postgres store: %w", err)
		}
		defer func() {
			if err := pg.Close(); err != nil {
				log.Warn("close postgres store", zap.Error(err))
			}
		}()
		g.Go(func() error { return pg.Listen(ctx) })
		st = pg
	default:
		st = memory.New(h)
	}

	srv := &http.Server{
		Addr: cfg.addr(),
		Handler: httpapi.SetupRoutes(st, ws.Config{
			OriginPatterns: cfg.allowedOrigins,
			Timeout:        cfg.syncTimeout,
			IdleTimeout:    cfg.idleTimeout,
		}, log),
		ReadHeaderTimeout: 10 * time.Second,
		// Websocket handlers outlive Shutdown, so they watch ctx instead.
		BaseContext: func(net.Listener) context.Context { return ctx },
	}

	g.Go(func() error {
		log.Info("listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
