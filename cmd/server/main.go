package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"tv-playout/internal/platform/config"
	"tv-playout/internal/platform/logger"
	"tv-playout/internal/platform/metrics"
	"tv-playout/internal/playout"

	"github.com/go-chi/chi/v5"
)

const shutdownTimeout = 10 * time.Second

func main() {
	_ = config.Load()

	port := config.GetEnv("PORT", "8080")
	logLevel := config.GetEnv("LOG_LEVEL", "info")
	logFormat := config.GetEnv("LOG_FORMAT", "json")

	log := logger.New(logLevel, logFormat)
	settings := playout.SettingsFromEnv()

	overlays, err := playout.NewOverlayManager(settings)
	if err != nil {
		log.Error("overlay manager init", "error", err)
		os.Exit(1)
	}

	trash, err := playout.NewTrashBin(settings.TrashDir(), settings.TrashRetention, log)
	if err != nil {
		log.Error("trash bin init", "error", err)
		os.Exit(1)
	}

	launcher := &playout.ExecLauncher{Binary: settings.EnginePath}
	supervisor := playout.NewSupervisor(launcher, settings.StopGrace, log)

	continuity, err := playout.NewContinuity(settings, supervisor, trash, log)
	if err != nil {
		log.Error("continuity manager init", "error", err)
		os.Exit(1)
	}

	met := metrics.New()
	orch := playout.NewOrchestrator(settings, playout.NewQueue(), overlays, continuity, trash, log, met)
	h := playout.NewHandler(orch, overlays, settings, log, met)

	orchCtx, orchCancel := context.WithCancel(context.Background())
	orchDone := make(chan struct{})
	go func() {
		orch.Run(orchCtx)
		close(orchDone)
	}()

	r := chi.NewRouter()
	r.Use(logger.RequestLogger(log))
	r.Use(metrics.RequestMiddleware(met))
	r.Get("/metrics", func(w http.ResponseWriter, req *http.Request) {
		met.Handler(func() {
			met.SetQueueLength(orch.QueueLength())
			met.SetBroadcastOn(orch.Broadcasting())
		}).ServeHTTP(w, req)
	})
	r.Group(h.Routes)
	r.Handle("/hls/*", http.StripPrefix("/hls/", http.FileServer(http.Dir(settings.OutputDir))))

	addr := ":" + port
	srv := &http.Server{Addr: addr, Handler: r}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	log.Info("server starting",
		"port", port,
		"engine", settings.EnginePath,
		"output_dir", settings.OutputDir,
		"log_level", logLevel,
	)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	log.Info("shutdown signal received, draining connections")

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error("shutdown error", "error", err)
		os.Exit(1)
	}

	orchCancel()
	select {
	case <-orchDone:
	case <-time.After(shutdownTimeout):
		log.Error("orchestrator did not stop in time")
	}

	log.Info("server stopped")
}
