// cmd/portal-engine/main.go
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"portal-engine/internal/assignment"
	"portal-engine/internal/audit"
	"portal-engine/internal/common/aws"
	"portal-engine/internal/common/config"
	"portal-engine/internal/common/database"
	"portal-engine/internal/common/logger"
	"portal-engine/internal/common/observability"
	"portal-engine/internal/conversation"
	"portal-engine/internal/feed"
	"portal-engine/internal/notify"
	"portal-engine/internal/notify/delivery"
	"portal-engine/internal/scheduler"
)

// Engine bundles the live components handed to whatever surface embeds this
// process. The readiness endpoint reports on it.
type Engine struct {
	Assignments   *assignment.Store
	Conversations *conversation.Store
	Notifications *notify.Aggregator
}

// retryWithBackoff attempts to execute a function with exponential backoff
func retryWithBackoff(operation func() error, maxRetries int, initialDelay time.Duration, log *zap.Logger, operationName string) error {
	var err error
	delay := initialDelay

	for i := 0; i < maxRetries; i++ {
		err = operation()
		if err == nil {
			return nil
		}

		if i < maxRetries-1 {
			log.Warn(fmt.Sprintf("%s failed, retrying...", operationName),
				zap.Error(err),
				zap.Int("attempt", i+1),
				zap.Int("maxRetries", maxRetries),
				zap.Duration("nextRetryIn", delay),
			)
			time.Sleep(delay)
			delay *= 2 // Exponential backoff
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", operationName, maxRetries, err)
}

func main() {
	zapLog := logger.New("info", "console")
	defer zapLog.Sync()

	// Wrap zap logger with our logger interface
	log := logger.NewZapAdapter(zapLog)

	zapLog.Info("Starting portal engine...")

	cfg, err := config.Load()
	if err != nil {
		zapLog.Fatal("config load failed", zap.Error(err))
	}

	obs := observability.New("portal-engine")
	defer obs.Shutdown()

	ctx := context.Background()

	// --- Init PostgreSQL with retry ---
	var pg *database.PostgresClient
	err = retryWithBackoff(func() error {
		var err error
		pg, err = database.NewPostgres(cfg.Database.Postgres)
		if err != nil {
			return err
		}
		return pg.Ping(ctx)
	}, 15, 2*time.Second, zapLog, "PostgreSQL connection")

	if err != nil {
		zapLog.Fatal("postgres failed after retries", zap.Error(err))
	}
	defer pg.Close()
	zapLog.Info("PostgreSQL connected successfully")

	// --- Init Redis with retry ---
	var rdb *database.RedisClient
	err = retryWithBackoff(func() error {
		var err error
		rdb, err = database.NewRedis(cfg.Database.Redis)
		if err != nil {
			return err
		}
		return rdb.Ping(ctx)
	}, 10, 2*time.Second, zapLog, "Redis connection")

	if err != nil {
		zapLog.Fatal("redis failed after retries", zap.Error(err))
	}
	defer rdb.Close()
	zapLog.Info("Redis connected successfully")

	// --- Init audit trail ---
	var recorder audit.Recorder = audit.NopRecorder{}
	if cfg.Audit.Enabled {
		var esClient *database.ElasticsearchClient
		err = retryWithBackoff(func() error {
			var err error
			esClient, err = database.NewElasticsearch(cfg.Database.Elasticsearch)
			if err != nil {
				return err
			}
			return esClient.Ping()
		}, 15, 2*time.Second, zapLog, "Elasticsearch connection")

		if err != nil {
			zapLog.Fatal("elasticsearch failed after retries", zap.Error(err))
		}
		recorder = audit.NewESRecorder(esClient.Client, cfg.Audit.Index, log)
		zapLog.Info("Elasticsearch connected successfully")
	}

	// --- Wire stores and feeds ---
	bus := feed.NewRedisBus(rdb.Client, log)

	assignmentStore := assignment.NewStore(
		assignment.NewPostgresRepository(pg.DB), bus, recorder, log,
	)
	conversationStore := conversation.NewStore(
		conversation.NewPostgresRepository(pg.DB), bus, recorder, log,
	)

	// --- Optional urgent delivery channel ---
	var sender notify.Sender
	if cfg.Notifications.Delivery.Enabled {
		sesClient, err := aws.NewSESClient(ctx, cfg.Notifications.Delivery.AWSRegion)
		if err != nil {
			zapLog.Fatal("ses client failed", zap.Error(err))
		}
		snsClient, err := aws.NewSNSClient(ctx, cfg.Notifications.Delivery.AWSRegion)
		if err != nil {
			zapLog.Fatal("sns client failed", zap.Error(err))
		}

		contacts := delivery.NewPostgresContacts(pg.DB)
		sender = delivery.NewFanout(
			delivery.NewEmailSender(sesClient, contacts, cfg.Notifications.Delivery.EmailFrom, log),
			delivery.NewSMSSender(snsClient, contacts, cfg.Notifications.Delivery.SMSPrefix, log),
		)
		zapLog.Info("Urgent delivery channel enabled")
	}

	// --- Notification aggregator ---
	aggregator := notify.NewAggregator(
		bus,
		notify.NewRedisDismissalStore(rdb.Client),
		log,
		notify.Options{
			ResubscribeMax:   cfg.Feeds.ResubscribeMax,
			ResubscribeDelay: time.Duration(cfg.Feeds.ResubscribeDelay) * time.Millisecond,
			Sender:           sender,
			Observability:    obs,
		},
	)
	defer aggregator.Close()

	// --- Slot scheduler ---
	sched := scheduler.New(assignmentStore, cfg.Scheduler, log)
	if err := sched.Start(); err != nil {
		zapLog.Fatal("scheduler failed to start", zap.Error(err))
	}
	defer sched.Stop()

	engine := &Engine{
		Assignments:   assignmentStore,
		Conversations: conversationStore,
		Notifications: aggregator,
	}

	// --- Health & Metrics Server ---
	go serveHTTP(cfg.Metrics.Address, engine, zapLog)

	// --- Graceful Shutdown ---
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	zapLog.Info("Shutdown signal received, stopping...")
}

// serveHTTP exposes the health, readiness and metrics endpoints. Readiness
// reflects which engine components are wired.
func serveHTTP(addr string, engine *Engine, log *zap.Logger) {
	http.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]string{
			"status": "healthy",
			"time":   time.Now().Format(time.RFC3339),
		})
	})
	http.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"status": "ready",
			"time":   time.Now().Format(time.RFC3339),
			"components": map[string]bool{
				"assignments":   engine.Assignments != nil,
				"conversations": engine.Conversations != nil,
				"notifications": engine.Notifications != nil,
			},
		})
	})
	http.Handle("/metrics", promhttp.Handler())
	log.Info("Health/Metrics server listening on " + addr)
	if err := http.ListenAndServe(addr, nil); err != nil {
		log.Error("Health/Metrics server failed", zap.Error(err))
	}
}
