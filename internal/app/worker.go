package app

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"

	healthcheck "github.com/leafmarket/pointshop/internal/health"
	"github.com/leafmarket/pointshop/internal/messaging/kafka"
	"github.com/leafmarket/pointshop/internal/metrics"
	"github.com/leafmarket/pointshop/internal/service/fulfillment"
	"github.com/leafmarket/pointshop/internal/version"
)

// RunWorker запускает воркер расчёта покупок и блокируется до отмены контекста.
// Воркеру нужен брокер: без Kafka команды некому доставлять.
func RunWorker(ctx context.Context, cfg Config) error {
	logger := log.WithField("component", "purchase-worker")

	if cfg.KafkaBrokers == "" {
		return fmt.Errorf("purchase worker requires POINTSHOP_KAFKA_BROKERS")
	}

	deps, err := NewDependencies(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer deps.Close()

	purchaseMetrics := metrics.NewPurchaseMetrics()

	processor := fulfillment.NewProcessor(
		deps.Settlements, deps.Statuses, deps.Audit, deps.Stock,
		purchaseMetrics, logger.WithField("component", "fulfillment"),
	)

	dlqProducer, err := initKafkaProducer(cfg.KafkaBrokers, logger)
	if err != nil {
		return fmt.Errorf("create dlq producer: %w", err)
	}
	defer closeKafka(dlqProducer, logger)

	consumer, err := kafka.NewConsumerWithDLQ(
		splitBrokers(cfg.KafkaBrokers),
		cfg.KafkaGroupID,
		[]string{kafka.TopicPurchaseCommands},
		fulfillment.NewCommandHandler(processor),
		dlqProducer,
		cfg.KafkaMaxRetries,
	)
	if err != nil {
		return fmt.Errorf("create kafka consumer: %w", err)
	}

	healthHandler := healthcheck.NewHandler(version.GetVersion())
	deps.RegisterHealthCheckers(healthHandler)
	metricsSrv := startMetricsServer(ctx, cfg.MetricsAddr, logger, healthHandler)

	if err := consumer.Start(ctx); err != nil {
		shutdownHTTP(metricsSrv, logger)
		return fmt.Errorf("start kafka consumer: %w", err)
	}

	<-ctx.Done()
	logger.Info("получен сигнал остановки, останавливаем воркер")

	if err := consumer.Stop(); err != nil {
		logger.WithError(err).Warn("failed to stop kafka consumer")
	}
	shutdownHTTP(metricsSrv, logger)

	return ctx.Err()
}
