package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/mr1hm/go-disaster-risk/internal/alerting"
	"github.com/mr1hm/go-disaster-risk/internal/api"
	"github.com/mr1hm/go-disaster-risk/internal/broadcast"
	"github.com/mr1hm/go-disaster-risk/internal/config"
	internalgrpc "github.com/mr1hm/go-disaster-risk/internal/grpc"
	"github.com/mr1hm/go-disaster-risk/internal/health"
	"github.com/mr1hm/go-disaster-risk/internal/history"
	"github.com/mr1hm/go-disaster-risk/internal/ingestion"
	"github.com/mr1hm/go-disaster-risk/internal/logging"
	"github.com/mr1hm/go-disaster-risk/internal/metrics"
	"github.com/mr1hm/go-disaster-risk/internal/models"
	"github.com/mr1hm/go-disaster-risk/internal/prediction"
	"github.com/mr1hm/go-disaster-risk/internal/refresh"
	"github.com/mr1hm/go-disaster-risk/internal/regions"
	"github.com/mr1hm/go-disaster-risk/internal/repository"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		logging.Fatalf("Fatal while loading config: %v", err)
	}
	logging.Setup(cfg.Logging.Level, cfg.Logging.Format)

	slog.Info("Server starting", "host", cfg.Server.Host, "port", cfg.Server.Port)

	db, err := repository.NewSQLiteDB(cfg.DB.Path)
	if err != nil {
		logging.Fatalf("Failed to initialize database: %v", err)
	}
	defer db.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	dir := regions.NewDirectory(db)
	if cfg.Regions.File != "" {
		n, err := dir.LoadFile(ctx, cfg.Regions.File)
		if err != nil {
			logging.Fatalf("Failed to load regions: %v", err)
		}
		slog.Info("regions loaded", "count", n, "file", cfg.Regions.File)
	}

	predLedger, activityLedger, closeLedgers := openLedgers(ctx, cfg)
	defer closeLedgers()

	m := metrics.NewMetrics()
	settings := config.NewStore(cfg.Engine)
	hub := internalgrpc.NewEventHub()
	activity := history.NewRecorder(activityLedger, models.HistoryKindActivity, nil)

	alerts := alerting.NewManager(db, settings, alerting.Options{
		Activity:  activity,
		Publisher: hub,
		Metrics:   m,
		Logger:    logging.Component("alerting"),
	})

	notifiers := []broadcast.Notifier{broadcast.NewLogNotifier(logging.Component("broadcast"))}
	if len(cfg.Kafka.Brokers) > 0 {
		kn := broadcast.NewKafkaNotifier(cfg.Kafka)
		defer kn.Close()
		notifiers = append(notifiers, kn)
		slog.Info("kafka delivery enabled", "brokers", cfg.Kafka.Brokers, "topic", cfg.Kafka.Topic)
	}
	dispatcher := broadcast.NewDispatcher(db, dir, broadcast.Options{
		Settings:  cfg.Broadcast,
		Workers:   cfg.Worker,
		Notifiers: notifiers,
		Activity:  activity,
		Publisher: hub,
		Metrics:   m,
		Logger:    logging.Component("broadcast"),
	})
	dispatcher.Start(ctx)

	predOpts := prediction.Options{
		Regions: dir,
		Alerts:  alerts,
		Ledger:  history.NewRecorder(predLedger, models.HistoryKindPrediction, nil),
		Metrics: m,
		Logger:  logging.Component("prediction"),
	}
	var prober health.Prober
	if cfg.Model.URL != "" {
		predOpts.Model = prediction.NewRemoteModel(cfg.Model.URL, cfg.Model.Timeout)
		prober = health.NewHTTPProber(cfg.Model.URL, cfg.Model.Timeout, nil)
	} else {
		slog.Warn("MODEL_URL not set, using local classifier only")
	}
	predictions := prediction.NewService(settings, predOpts)
	monitor := health.NewMonitor(prober, m)

	ingestOpts := ingestion.Options{
		Workers:     cfg.Worker,
		MaxBulkRows: cfg.Ingest.MaxBulkRows,
		Regions:     dir,
		Metrics:     m,
		Logger:      logging.Component("ingestion"),
	}
	if cfg.Ingest.WeatherURL != "" {
		ingestOpts.Weather = ingestion.NewWeatherClient(cfg.Ingest)
	}
	ingester := ingestion.NewManager(predictions, ingestOpts)
	ingester.Start(ctx)

	refresher := refresh.NewManager(cfg.Refresh.Interval, refresh.Options{
		Metrics: m,
		Logger:  logging.Component("refresh"),
	})
	refresher.Add("alerts", func(ctx context.Context) error {
		active, err := alerts.Active(ctx, alerting.MaxActiveLimit)
		if err != nil {
			return err
		}
		m.ActiveAlerts.Set(float64(len(active)))
		return nil
	})
	refresher.Add("model", monitor.Check)
	if ingestOpts.Weather != nil {
		refresher.Add("weather", ingester.PollWeather)
	}
	refresher.Start(ctx)

	grpcServer := internalgrpc.NewServer(alerts, hub)
	go func() {
		grpcAddr := fmt.Sprintf(":%d", cfg.GRPC.Port)
		if err := grpcServer.Start(grpcAddr); err != nil {
			logging.Fatalf("gRPC server error: %v", err)
		}
	}()

	gin.SetMode(gin.ReleaseMode)
	handler := api.NewHandler(api.Deps{
		Predictions: predictions,
		Ingest:      ingester,
		Alerts:      alerts,
		Broadcasts:  dispatcher,
		Regions:     dir,
		Activity:    activityLedger,
		Settings:    settings,
		Health:      monitor,
		Refresh:     refresher,
		Hub:         hub,
	})
	router := api.NewRouter(cfg.Server, handler, m)

	srv := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler: router,
	}

	go func() {
		slog.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.Fatalf("server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown error", "error", err)
	}

	ingester.Stop() // assesses readings still queued
	cancel()
	refresher.Stop()
	dispatcher.Stop()
	hub.Close() // ends open event streams
	grpcServer.Stop()

	slog.Info("shutdown complete")
}

// openLedgers picks Redis-backed history when REDIS_ADDR is set so feeds
// survive restarts; otherwise history lives in memory.
func openLedgers(ctx context.Context, cfg *config.Config) (history.Ledger, history.Ledger, func()) {
	if cfg.Redis.Addr == "" {
		return history.NewMemoryLedger(cfg.History.Cap), history.NewMemoryLedger(cfg.History.Cap), func() {}
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		logging.Fatalf("Failed to connect to redis at %s: %v", cfg.Redis.Addr, err)
	}
	slog.Info("history backed by redis", "addr", cfg.Redis.Addr, "cap", cfg.History.Cap)

	return history.NewRedisLedger(client, "risk:predictions", cfg.History.Cap),
		history.NewRedisLedger(client, "risk:activity", cfg.History.Cap),
		func() { client.Close() }
}
