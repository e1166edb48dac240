// The gateway daemon sits between field devices and the central authority.
// It ingests telemetry over MQTT and HTTP, enforces the zero trust
// validation chain, batches accepted messages for delivery, and bridges
// control commands back to devices.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"zero-trust-iot/gateway/internal/alarm"
	"zero-trust-iot/gateway/internal/alerts"
	"zero-trust-iot/gateway/internal/authority"
	"zero-trust-iot/gateway/internal/buffer"
	"zero-trust-iot/gateway/internal/bus"
	"zero-trust-iot/gateway/internal/config"
	"zero-trust-iot/gateway/internal/events"
	"zero-trust-iot/gateway/internal/forwarder"
	"zero-trust-iot/gateway/internal/ingest"
	"zero-trust-iot/gateway/internal/logging"
	"zero-trust-iot/gateway/internal/metrics"
	"zero-trust-iot/gateway/internal/registry"
	"zero-trust-iot/gateway/internal/retry"
	"zero-trust-iot/gateway/internal/sequence"
	"zero-trust-iot/gateway/internal/server"
	"zero-trust-iot/gateway/internal/validator"
	"zero-trust-iot/gateway/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger, err := logging.New(cfg.LogLevel)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()

	logger.Info("gateway starting",
		zap.String("gateway_id", cfg.GatewayID),
		zap.String("authority_url", cfg.AuthorityURL),
		zap.String("mqtt_broker", cfg.MQTTBrokerURL),
		zap.String("http_addr", cfg.HTTPAddr))

	// Authority client and the access registry it feeds.
	client := authority.NewClient(cfg.AuthorityURL, logger)
	cache := registry.NewCache()
	authorizer, err := registry.NewAuthorizer()
	if err != nil {
		logger.Fatal("access policy compile failed", zap.Error(err))
	}
	resolver := registry.NewResolver(cache, authorizer, client, logger)
	syncer := registry.NewSyncer(cache, client, logger)

	// Validation chain and buffer.
	tracker := sequence.NewTracker(cfg.SequenceResetThreshold, cfg.ReplayStrict)
	valid := validator.New(resolver, tracker, cfg.SkewMax())
	buf := buffer.New(cfg.BufferCapacity, cfg.BufferPolicy)

	// Optional Kafka mirror for security and delivery events.
	producer, err := events.NewKafkaProducer(cfg.EventKafkaBrokersList(), cfg.EventKafkaTopic)
	if err != nil {
		logger.Fatal("kafka producer", zap.Error(err))
	}
	if producer != nil {
		logger.Info("event emission enabled", zap.String("topic", cfg.EventKafkaTopic))
	}

	reporter := alerts.NewReporter(cfg.GatewayID, client, producer, logger)
	store := retry.NewStore(cfg.RetryStorePath, cfg.RetryMaxAgeDuration(), cfg.RetryMaxAttempts, logger)
	flusher := forwarder.New(cfg.GatewayID, cfg.BatchSize, buf, client, store, reporter, logger)
	pipeline := ingest.New(valid, buf, reporter, logger)
	monitor := alarm.NewMonitor(client, logger)

	mqttBus := bus.New(bus.Options{
		BrokerURL: cfg.MQTTBrokerURL,
		ClientID:  cfg.MQTTClientID,
		Username:  cfg.MQTTUsername,
		Password:  cfg.MQTTPassword,
		GatewayID: cfg.GatewayID,
	}, pipeline, logger)
	if err := mqttBus.Connect(); err != nil {
		logger.Warn("mqtt connect pending", zap.Error(err))
	}

	srv := server.New(cfg.HTTPAddr, cfg.GatewayID, pipeline, mqttBus, syncer, monitor, logger)

	ctx, cancel := context.WithCancel(context.Background())

	// Initial registry sync. An unreachable authority is tolerated here
	// since the resolver verifies cache misses live.
	if count, err := syncer.Sync(ctx); err != nil {
		logger.Warn("initial registry sync failed", zap.Error(err))
	} else {
		metrics.RegistryDevices.Set(float64(count))
	}
	metrics.RetryStoreDepth.Set(float64(store.Len()))

	runner := worker.NewRunner(logger)
	runner.Every(ctx, "flush", cfg.FlushIntervalDuration(), 0, func(c context.Context) {
		flusher.Flush(c)
	})
	runner.Every(ctx, "retry-sweep", cfg.RetryIntervalDuration(), cfg.RetryIntervalDuration()/10, func(c context.Context) {
		flusher.SweepRetries(c)
	})
	runner.Every(ctx, "registry-sync", cfg.SyncIntervalDuration(), cfg.SyncIntervalDuration()/10, func(c context.Context) {
		count, err := syncer.Sync(c)
		if err != nil {
			logger.Warn("registry sync failed, keeping last known registry", zap.Error(err))
			return
		}
		metrics.RegistryDevices.Set(float64(count))
	})
	runner.Every(ctx, "alarm-poll", cfg.AlarmPollIntervalDuration(), 0, monitor.Poll)

	go func() {
		if err := srv.Start(); err != nil {
			logger.Fatal("http server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down")

	cancel()
	runner.Wait()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", zap.Error(err))
	}
	mqttBus.Close()

	// Drain whatever ingestion accepted before the transports closed.
	flusher.FlushAll(shutdownCtx)

	if producer != nil {
		if err := producer.Close(); err != nil {
			logger.Warn("kafka producer close", zap.Error(err))
		}
	}
	logger.Info("gateway stopped")
}
