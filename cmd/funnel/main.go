// Command funnel runs one lead funnel report and exits. Exit status: 0 on
// success (possibly an empty report), 2 on configuration errors, 3 when the
// chat platform cannot list rooms, 4 when the report cannot be written, 130
// when interrupted before every room was processed, 1 otherwise.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/AngelCh415/leadfunnel/internal/app"
	"github.com/AngelCh415/leadfunnel/internal/config"
	"github.com/AngelCh415/leadfunnel/internal/metrics"
)

func main() {
	os.Exit(run())
}

func run() int {
	cfg, err := config.FromEnv()
	if err != nil {
		fmt.Fprintln(os.Stderr, "configuration error:", err)
		return app.ExitConfig
	}
	logger, logCloser := app.NewLogger(cfg)
	defer logCloser.Close()
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	m := metrics.NewCollectors(reg)

	p, err := app.New(ctx, cfg, logger, m, nil)
	if err != nil {
		logger.Error("configuration error", slog.Any("err", err))
		return app.ExitCode(err)
	}
	defer p.Close()

	res, err := p.Run(ctx)
	if cfg.MetricsTextfile != "" {
		if werr := prometheus.WriteToTextfile(cfg.MetricsTextfile, reg); werr != nil {
			logger.Warn("metrics textfile not written", slog.String("path", cfg.MetricsTextfile), slog.Any("err", werr))
		}
	}
	code := app.ExitCode(err)
	switch code {
	case app.ExitOK:
		logger.Info("run complete", slog.String("run_id", res.RunID), slog.Int("records", len(res.Records)))
	case app.ExitSource:
		logger.Error("exiting: message source unavailable", slog.String("run_id", res.RunID), slog.Any("err", err))
	case app.ExitWriteFailed:
		logger.Error("exiting: report write failed", slog.String("run_id", res.RunID),
			slog.String("recovery", res.Recovery), slog.Any("err", err))
	case app.ExitInterrupted:
		logger.Error("exiting: run interrupted", slog.String("run_id", res.RunID),
			slog.String("recovery", res.Recovery), slog.Any("err", err))
	default:
		logger.Error("exiting: run failed", slog.String("run_id", res.RunID), slog.Any("err", err))
	}
	return code
}
