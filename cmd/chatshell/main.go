// Package main is the entry point for the chat shell.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/driftline/chatshell/internal/app"
	"github.com/driftline/chatshell/internal/config"
	"github.com/driftline/chatshell/internal/responder"
	"github.com/driftline/chatshell/internal/store"
	"github.com/driftline/chatshell/internal/ui"
	"github.com/driftline/chatshell/pkg/logger"
)

func main() {
	configPath := flag.String("config", "config.json", "path to configuration file")
	debug := flag.Bool("debug", false, "enable debug logging to stderr")
	noColor := flag.Bool("no-color", false, "disable colored output")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	if *noColor {
		cfg.UI.ColorsEnabled = false
	}

	log, err := logger.New(cfg.LogLevel, cfg.LogFile, *debug)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	log.Info("starting chatshell", zap.String("version", app.Version))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Optional debug listener for metrics and health.
	if cfg.MetricsAddr != "" {
		r := chi.NewRouter()
		r.Handle("/metrics", promhttp.Handler())
		r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ok"))
		})
		srv := &http.Server{
			Addr:        cfg.MetricsAddr,
			Handler:     r,
			ReadTimeout: 5 * time.Second,
		}
		go func() {
			log.Info("debug listener started", zap.String("addr", cfg.MetricsAddr))
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Warn("debug listener stopped", zap.Error(err))
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	// Backend selection happens exactly once; a startup outage binds the
	// whole session to the file backend.
	backend, err := store.SelectBackend(cfg, log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize storage: %v\n", err)
		log.Error("storage initialization failed", zap.Error(err))
		os.Exit(1)
	}

	manager := store.NewManager(backend, cfg, log)
	rsp := responder.New(cfg, log)
	term := ui.New(cfg.UI, os.Stdin, os.Stdout)

	log.Info("session ready",
		zap.String("backend", backend.Name()),
		zap.String("responder", rsp.Name()))

	a := app.New(cfg, term, manager, rsp, log)
	if err := a.Run(ctx); err != nil {
		log.Error("session ended with error", zap.Error(err))
		os.Exit(1)
	}
}
