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

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/AngelCh415/leadfunnel/internal/app"
	"github.com/AngelCh415/leadfunnel/internal/config"
	"github.com/AngelCh415/leadfunnel/internal/httpx"
	"github.com/AngelCh415/leadfunnel/internal/metrics"
	"github.com/AngelCh415/leadfunnel/internal/store"
)

func main() {
	cfg, err := config.FromEnv()
	if err != nil {
		slog.Error("configuration error", slog.String("err", err.Error()))
		os.Exit(app.ExitConfig)
	}

	logger, logCloser := app.NewLogger(cfg)
	defer logCloser.Close()
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.NewCollectors(reg)

	st := store.NewMemoryStore()
	p, err := app.New(ctx, cfg, logger, m, st)
	if err != nil {
		logger.Error("startup failed", slog.String("err", err.Error()))
		os.Exit(app.ExitCode(err))
	}
	defer p.Close()
	mSvc := metrics.NewService(st)

	r := httpx.NewRouter(logger, p, mSvc, reg)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		srv.Shutdown(sctx)
	}()

	logger.Info("starting server", slog.String("port", cfg.Port))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server error", slog.String("err", err.Error()))
		os.Exit(1)
	}
}
