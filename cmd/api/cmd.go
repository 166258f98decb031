package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/GregMSThompson/skiploss-console/internal/bootstrap"
	"github.com/GregMSThompson/skiploss-console/internal/config"
	"github.com/GregMSThompson/skiploss-console/internal/events"
	"github.com/GregMSThompson/skiploss-console/internal/handlers"
	"github.com/GregMSThompson/skiploss-console/internal/lock"
	"github.com/GregMSThompson/skiploss-console/internal/middleware"
	"github.com/GregMSThompson/skiploss-console/internal/response"
	"github.com/GregMSThompson/skiploss-console/internal/router"
	"github.com/GregMSThompson/skiploss-console/internal/services"
	"github.com/GregMSThompson/skiploss-console/internal/store"
	"github.com/GregMSThompson/skiploss-console/pkg/logger"
)

const turnLockPrefix = "skiploss:turn:"

var exit = os.Exit

// exitOnError logs err, runs cleanup and exits. Deferred calls are skipped by
// os.Exit, so open clients must be passed as cleanup.
func exitOnError(message string, err error, log *slog.Logger, cleanup ...func() error) {
	if err == nil {
		return
	}
	log.Error(message, "error", err)
	for _, fn := range cleanup {
		if cerr := fn(); cerr != nil {
			log.Error("cleanup failed", "error", cerr)
		}
	}
	exit(1)
}

func main() {
	// bootstrap
	cfg, err := config.New()
	exitOnError("config failed", err, slog.Default())
	bs, err := bootstrap.Run(cfg)
	exitOnError("bootstrap failed", err, bs.Log, bs.Close)
	defer bs.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logger.ToContext(ctx, bs.Log)

	// stores
	sstore := store.NewSessionStore()

	var locker lock.Locker = lock.NewMemory()
	if bs.Redis != nil {
		locker = lock.NewRedis(bs.Redis, turnLockPrefix, cfg.TurnLockTTL)
	}

	// events
	hub := events.NewHub(0)

	// services
	sessv := services.NewSessionService(sstore, cfg.DefaultChatSettings())
	tools := services.NewToolExecutor(bs.Gateway, sstore)
	conserv := services.NewConsoleService(bs.Chat, tools, sstore, locker, events.NewSpeaker(hub), cfg.TurnTimeout)
	insv := services.NewInsightsService(sstore, hub, cfg.InsightsInterval)
	go insv.Run(ctx)

	// response handler
	rh := response.New(bs.Log)

	// dependancies
	deps := new(handlers.Deps)
	deps.Log = bs.Log
	deps.ResponseHandler = rh
	deps.ConsoleSvc = conserv
	deps.SessionSvc = sessv
	deps.Events = hub
	deps.AllowedOrigins = cfg.AllowedOrigins

	var auth func(http.Handler) http.Handler
	if bs.Firebase != nil {
		auth = middleware.NewMiddleware(bs.Firebase).FirebaseAuth
	}

	// router
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router.NewRouter(deps, auth),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			bs.Log.Error("server shutdown failed", "error", err)
		}
	}()

	bs.Log.Info("server listening", "addr", srv.Addr)
	err = srv.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		err = nil
	}
	exitOnError("server start failed", err, bs.Log, bs.Close)
}
