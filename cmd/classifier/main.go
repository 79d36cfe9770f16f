package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/mailtriage/internal/bootstrap"
	"github.com/kirillkom/mailtriage/internal/config"
	"github.com/kirillkom/mailtriage/internal/observability/logging"
	"github.com/kirillkom/mailtriage/internal/observability/metrics"
)

const service = "classifier"

func main() {
	cfg := config.Load()
	logger := logging.NewJSONLogger(service, cfg.LogLevel)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.NewClassifierApp(ctx, cfg)
	if err != nil {
		log.Fatalf("bootstrap error: %v", err)
	}
	defer app.Close()

	pipelineMetrics := metrics.NewPipelineMetrics(service)
	go serveMetrics(cfg.ClassifierMetricsPort, pipelineMetrics)

	runCycle := func() {
		cycleID := uuid.NewString()
		cycleCtx, cancel := context.WithTimeout(ctx, cfg.CycleTimeout)
		defer cancel()

		pipelineMetrics.StartCycle()
		start := time.Now()
		report, err := app.Cycle.RunCycle(cycleCtx)
		pipelineMetrics.FinishCycle(service, time.Since(start), report, err)

		attrs := []any{
			"cycle_id", cycleID,
			"processed", report.Processed,
			"skipped", report.Skipped,
			"failed", report.Failed,
		}
		if len(report.FailedKeys) > 0 {
			attrs = append(attrs, "failed_keys", report.FailedKeys)
		}
		if err != nil {
			slog.Error("cycle_failed", append(attrs, "error", err)...)
			return
		}
		slog.Info("cycle_done", attrs...)
	}

	runCycle()
	if cfg.RunOnce {
		return
	}

	ticker := time.NewTicker(cfg.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			slog.Info("shutting down")
			return
		case <-ticker.C:
			runCycle()
		}
	}
}

func serveMetrics(port string, m *metrics.PipelineMetrics) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	if err := http.ListenAndServe(":"+port, mux); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("metrics server error", "error", err)
	}
}
