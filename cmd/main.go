package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"linkporter/internal/api"
	"linkporter/internal/config"
	fileutil "linkporter/internal/file"
	"linkporter/internal/gate"
	"linkporter/internal/maintenance"
	"linkporter/internal/netdisk"
	"linkporter/internal/notify"
	"linkporter/internal/task"
)

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.Load("config.yml")
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	if err := fileutil.EnsureDir(filepath.Dir(cfg.DBPath)); err != nil {
		log.Fatal().Err(err).Str("path", cfg.DBPath).Msg("ensure data dir")
	}
	store, err := task.NewStore(cfg.DBPath)
	if err != nil {
		log.Fatal().Err(err).Msg("open task store")
	}
	if err := store.ResetStaleRunning(); err != nil {
		log.Warn().Err(err).Msg("reset stale running tasks")
	}

	gateway := netdisk.NewClient(netdisk.ClientOptions{
		BaseURL:           cfg.Netdisk.BaseURL,
		Cookie:            cfg.Netdisk.Cookie,
		RequestsPerSecond: cfg.Netdisk.RequestsPerSecond,
	})
	transferGate := gate.New()

	var notifier notify.Notifier = notify.Nop{}
	if cfg.WebhookURL != "" {
		notifier = notify.NewWebhook(cfg.WebhookURL)
	}

	manager := task.NewManager(task.Options{
		Store:    store,
		Gateway:  gateway,
		Gate:     transferGate,
		Notifier: notifier,
		SaveDir:  cfg.Netdisk.SaveDir,
	})

	baseCtx, baseCancel := context.WithCancel(context.Background())
	manager.SetBaseContext(baseCtx)

	scheduler := maintenance.New(maintenance.Options{
		Gateway:         gateway,
		Gate:            transferGate,
		SaveDir:         cfg.Netdisk.SaveDir,
		RecyclePassword: cfg.Netdisk.RecyclePassword,
	})
	if err := scheduler.Start(cfg.Cleanup.DirCron, cfg.Cleanup.TrashCron); err != nil {
		log.Fatal().Err(err).Msg("start maintenance scheduler")
	}

	router := setupRouter()
	api.NewAPI(manager, cfg.IntervalMin, cfg.IntervalMax).RegisterRoutes(router)

	const (
		readHeaderTimeout = 5 * time.Second
		shutdownTimeout   = 10 * time.Second
	)
	srv := newHTTPServer(cfg.Port, router, readHeaderTimeout)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("http server failed")
		}
	}()

	waitForShutdownSignal()

	gracefulShutdown(srv, baseCancel, manager, scheduler, shutdownTimeout)
}

func setupRouter() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(api.RequestLogger())
	return r
}

func newHTTPServer(port int, handler http.Handler, readHeaderTimeout time.Duration) *http.Server {
	return &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           handler,
		ReadHeaderTimeout: readHeaderTimeout,
	}
}

func waitForShutdownSignal() {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit
	log.Info().Msg("shutdown signal received")
}

func gracefulShutdown(srv *http.Server, cancelBase context.CancelFunc, manager *task.Manager, scheduler *maintenance.Scheduler, timeout time.Duration) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Warn().Err(err).Msg("http server shutdown warning")
	}

	scheduler.Stop()
	cancelBase()
	if done := manager.WaitAll(ctx); !done {
		log.Warn().Msg("background workers did not finish before timeout")
	}
	log.Info().Msg("server exited cleanly")
}
