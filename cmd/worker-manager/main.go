// Command worker-manager subscribes the ingestion job to a Zeebe broker and
// serves health and metrics endpoints.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"movie-recommender/internal/app"
	"movie-recommender/internal/common/camunda"
	"movie-recommender/internal/common/config"
	"movie-recommender/internal/common/logger"
	runingestion "movie-recommender/internal/workers/ingestion/run-ingestion"
)

func main() {
	healthAddr := flag.String("health-addr", ":8081", "health and metrics listen address")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		zap.NewExample().Fatal("config load failed", zap.Error(err))
	}

	zapLog := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	defer zapLog.Sync()
	log := logger.NewZapAdapter(zapLog)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client, err := camunda.NewClient(ctx, camunda.ConfigFrom(cfg.Camunda), log)
	if err != nil {
		zapLog.Fatal("zeebe client failed", zap.Error(err))
	}
	defer client.Close()

	in, err := app.NewIngestion(ctx, cfg, log)
	if err != nil {
		zapLog.Fatal("ingestion init failed", zap.Error(err))
	}
	defer in.Close()

	var workers []*camunda.Worker
	if wc, ok := cfg.Workers[runingestion.TaskType]; !ok || wc.Enabled {
		wcfg := runingestion.LoadConfig(cfg)
		handler := runingestion.NewHandler(wcfg, in.Pipeline, in.Obs, log)
		workers = append(workers, camunda.NewWorker(client.Zeebe(), runingestion.TaskType, camunda.WorkerOptions{
			MaxJobsActive: wc.MaxJobsActive,
			Timeout:       wcfg.Timeout,
		}, handler, log))
	} else {
		zapLog.Info("worker disabled", zap.String("taskType", runingestion.TaskType))
	}

	srv := &http.Server{Addr: *healthAddr, Handler: healthRouter(client)}
	go func() {
		zapLog.Info("health/metrics server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zapLog.Error("health/metrics server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	zapLog.Info("shutdown signal received, stopping workers")

	for _, w := range workers {
		w.Stop()
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)

	zapLog.Info("worker manager stopped")
}

func healthRouter(client *camunda.Client) http.Handler {
	r := chi.NewRouter()
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeStatus(w, http.StatusOK, "healthy")
	})
	r.Get("/ready", func(w http.ResponseWriter, r *http.Request) {
		if err := client.HealthCheck(r.Context()); err != nil {
			writeStatus(w, http.StatusServiceUnavailable, "unavailable")
			return
		}
		writeStatus(w, http.StatusOK, "ready")
	})
	r.Handle("/metrics", promhttp.Handler())
	return r
}

func writeStatus(w http.ResponseWriter, code int, status string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"status": status,
		"time":   time.Now().Format(time.RFC3339),
	})
}
