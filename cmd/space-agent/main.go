package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/cwrk-planet/spaces/config"
	"github.com/cwrk-planet/spaces/internal/auth"
	"github.com/cwrk-planet/spaces/internal/backend"
	"github.com/cwrk-planet/spaces/internal/domain"
	"github.com/cwrk-planet/spaces/internal/media"
	"github.com/cwrk-planet/spaces/internal/space"
	"github.com/cwrk-planet/spaces/internal/tracing"
	grpcx "github.com/cwrk-planet/spaces/internal/transport/grpc"
	"github.com/cwrk-planet/spaces/pkg/logger"
)

func main() {
	var (
		configPath = pflag.String("config", os.Getenv("CONFIG_PATH"), "path to config.yaml")
		spaceID    = pflag.String("space", "", "space id to join")
		userID     = pflag.String("user", "", "local user id")
		name       = pflag.String("name", "", "display name")
		token      = pflag.String("token", "", "bearer token; minted from auth.secret when empty")
		speak      = pflag.Bool("speak", false, "ask to speak once joined")
	)
	pflag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	applyFlags(&cfg.Agent, *spaceID, *userID, *name, *token)
	if err := cfg.ValidateAgent(); err != nil {
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

	a := cfg.Agent
	user := domain.User{ID: a.UserID, DisplayName: a.DisplayName}
	if a.Token == "" {
		signer := auth.NewJWTSigner([]byte(cfg.Auth.Secret), cfg.Auth.Issuer, cfg.Auth.Audience, cfg.Auth.TTL, cfg.Auth.ClockSkew)
		if a.Token, err = signer.SignAccessToken(user, time.Now()); err != nil {
			log.Fatalf("mint token: %v", err)
		}
	}

	if a.HealthAddr != "" {
		hctx, cancel := context.WithTimeout(ctx, 15*time.Second)
		err := backend.WaitHealthy(hctx, a.HealthAddr, grpcx.ServiceName, time.Second)
		cancel()
		if err != nil {
			log.Fatalf("backend: %v", err)
		}
	}

	api, err := backend.New(backend.Options{BaseURL: a.BackendURL, Token: a.Token, Timeout: a.RequestTimeout})
	if err != nil {
		log.Fatalf("backend client: %v", err)
	}
	sessLog := logger.ForSession(a.SpaceID, a.UserID)
	bridge, err := media.New(media.Options{
		URL:            a.MediaURL,
		Token:          a.Token,
		SpaceID:        a.SpaceID,
		UserID:         a.UserID,
		Cameras:        a.Cameras,
		ICEServers:     a.ICEServers,
		RequestTimeout: a.RequestTimeout,
		Logger:         sessLog,
	})
	if err != nil {
		log.Fatalf("media bridge: %v", err)
	}

	sess, err := space.New(space.Options{
		SpaceID:     a.SpaceID,
		User:        user,
		Backend:     api,
		Bridge:      bridge,
		Logger:      sessLog,
		Interval:    a.SyncInterval,
		CallTimeout: a.RequestTimeout,
	})
	if err != nil {
		log.Fatalf("session: %v", err)
	}

	updates, unsubscribe := sess.Updates()
	defer unsubscribe()
	go logUpdates(sessLog, updates)

	runDone := make(chan error, 1)
	go func() { runDone <- sess.Run(ctx) }()

	res, err := sess.HandleJoin(ctx)
	if err != nil {
		sessLog.Error("join failed", "err", err)
	} else {
		sessLog.Info("join", "outcome", res.Outcome, "message", res.Message)
	}
	if *speak && err == nil {
		msg, err := sess.CheckRequestToSpeak(ctx)
		sessLog.Info("request to speak", "message", msg, "err", err)
	}

	select {
	case <-sess.Done():
		st := sess.State()
		sessLog.Info("session finished", "reason", st.ExitReason, "message", st.Message)
	case <-ctx.Done():
		sessLog.Info("interrupted, leaving")
		leaveCtx, cancel := context.WithTimeout(context.Background(), a.RequestTimeout)
		sess.HandleLeave(leaveCtx)
		cancel()
	}

	sess.Close()
	sess.Wait()
	stop()
	if err := <-runDone; err != nil {
		sessLog.Error("tick loop", "err", err)
	}
}

func applyFlags(a *config.Agent, spaceID, userID, name, token string) {
	if spaceID != "" {
		a.SpaceID = spaceID
	}
	if userID != "" {
		a.UserID = userID
	}
	if name != "" {
		a.DisplayName = name
	}
	if token != "" {
		a.Token = token
	}
	if a.DisplayName == "" {
		a.DisplayName = a.UserID
	}
}

// logUpdates logs the interesting transitions of the session state.
func logUpdates(l *slog.Logger, updates <-chan space.State) {
	var prev space.State
	for st := range updates {
		if st.Message != "" && st.Message != prev.Message {
			l.Info("space", "message", st.Message)
		}
		if st.Joined != prev.Joined || st.Attached != prev.Attached || st.JoinPending != prev.JoinPending {
			l.Info("membership",
				"joined", st.Joined, "pending", st.JoinPending,
				"attached", st.Attached, "room", st.RoomName, "can_speak", st.CanSpeak)
		}
		if st.AlertedRemainingTime && !prev.AlertedRemainingTime {
			l.Warn("space ending soon", "remaining", st.Remaining.Round(time.Second))
		}
		prev = st
	}
}
