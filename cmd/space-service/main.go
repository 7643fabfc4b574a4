package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/cwrk-planet/spaces/config"
	"github.com/cwrk-planet/spaces/internal/auth"
	"github.com/cwrk-planet/spaces/internal/memstore"
	"github.com/cwrk-planet/spaces/internal/postgres"
	"github.com/cwrk-planet/spaces/internal/service"
	"github.com/cwrk-planet/spaces/internal/sqlite"
	"github.com/cwrk-planet/spaces/internal/tracing"
	grpcx "github.com/cwrk-planet/spaces/internal/transport/grpc"
	httpx "github.com/cwrk-planet/spaces/internal/transport/http"
	"github.com/cwrk-planet/spaces/internal/transport/ws"
	"github.com/cwrk-planet/spaces/pkg/logger"
)

type pinger interface {
	Ping(ctx context.Context) error
}

func main() {
	// --- config ---
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if err := cfg.ValidateService(); err != nil {
		log.Fatalf("config: %v", err)
	}

	logger.Init(logger.Config{
		Env:       logger.ParseEnv(cfg.Logging.Env),
		Service:   cfg.Logging.Service,
		Version:   cfg.Logging.Version,
		Backend:   logger.Backend(cfg.Logging.Backend),
		Level:     logger.ParseLevel(cfg.Logging.Level),
		AddSource: cfg.Logging.AddSource,
		Debug:     cfg.Logging.Debug,
	})
	slog.Info("starting space-service",
		"env", cfg.Logging.Env, "version", cfg.Logging.Version, "storage", cfg.Storage.Driver)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := tracing.Setup(ctx, tracing.Config{
		Endpoint: cfg.Tracing.Endpoint,
		Service:  cfg.Logging.Service,
		Version:  cfg.Logging.Version,
		Ratio:    cfg.Tracing.Ratio,
	})
	if err != nil {
		slog.Error("tracing setup failed", "err", err)
	}
	defer func() {
		shCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTracing(shCtx)
	}()

	// --- storage ---
	repo, health, closeRepo, err := openStorage(ctx, cfg)
	if err != nil {
		slog.Error("storage", "err", err)
		os.Exit(1)
	}
	defer closeRepo()

	// --- services ---
	spaces := service.NewSpaceService(repo)
	signer := auth.NewJWTSigner([]byte(cfg.Auth.Secret), cfg.Auth.Issuer, cfg.Auth.Audience, cfg.Auth.TTL, cfg.Auth.ClockSkew)

	// --- WS Hub & Server ---
	wsServer := ws.NewServer(ws.NewHub(), spaces, signer)

	// --- HTTP ---
	router := httpx.NewRouter(httpx.RouterDeps{
		Handler:        httpx.NewHandler(spaces),
		Verifier:       signer,
		WS:             wsServer.HandleWS,
		AllowedOrigins: cfg.HTTP.AllowedOrigins,
	})
	httpSrv := httpx.NewServer(httpx.ServerConfig{Addr: cfg.HTTP.Addr}, router)

	// --- gRPC ---
	grpcSrv := grpcx.NewServer(10 * time.Second)

	// --- run ---
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return httpSrv.Run(gctx) })
	g.Go(func() error { return grpcSrv.Run(gctx, cfg.GRPC.Addr) })
	g.Go(func() error {
		wsServer.RunPruner(gctx, time.Minute)
		return nil
	})
	if health != nil {
		g.Go(func() error {
			watchStorage(gctx, health, grpcSrv)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		slog.Error("server error", "err", err)
		os.Exit(1)
	}
	slog.Info("stopped")
}

func openStorage(ctx context.Context, cfg *config.Config) (service.SpaceRepository, pinger, func(), error) {
	switch cfg.Storage.Driver {
	case "postgres":
		pc := cfg.Storage.Postgres
		pool, err := postgres.NewPool(ctx, postgres.Config{
			DSN:             pc.DSN,
			MaxConns:        pc.MaxConns,
			MinConns:        pc.MinConns,
			MaxConnLifetime: pc.MaxConnLifetime,
			MaxConnIdleTime: pc.MaxConnIdleTime,
			ApplicationName: cfg.Logging.Service,
		})
		if err != nil {
			return nil, nil, nil, fmt.Errorf("postgres: %w", err)
		}
		if pc.Migrate {
			if err := postgres.Migrate(ctx, pool); err != nil {
				pool.Close()
				return nil, nil, nil, fmt.Errorf("postgres migrate: %w", err)
			}
		}
		return postgres.NewSpaceRepository(pool), pool, pool.Close, nil

	case "sqlite":
		store, err := sqlite.Open(cfg.Storage.SQLite.Path)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("sqlite: %w", err)
		}
		return store, store, func() { _ = store.Close() }, nil

	default:
		return memstore.NewSpaceRepository(), nil, func() {}, nil
	}
}

// watchStorage mirrors storage reachability into the grpc health status.
func watchStorage(ctx context.Context, db pinger, srv *grpcx.Server) {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()

	serving := true
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		pctx, cancel := context.WithTimeout(ctx, 2*time.Second)
		err := db.Ping(pctx)
		cancel()

		if ok := err == nil; ok != serving {
			serving = ok
			srv.SetServing(ok)
			slog.Warn("storage health changed", "serving", ok, "err", err)
		}
	}
}
