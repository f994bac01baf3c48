// Package app связывает хранилище, кеш, очередь и HTTP-слой в запускаемые
// сервисы: сервис допуска заказов и воркер расчёта покупок.
package app

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/IBM/sarama"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"

	"github.com/leafmarket/pointshop/internal/cache"
	"github.com/leafmarket/pointshop/internal/domain"
	healthcheck "github.com/leafmarket/pointshop/internal/health"
	"github.com/leafmarket/pointshop/internal/handler"
	"github.com/leafmarket/pointshop/internal/messaging/kafka"
	"github.com/leafmarket/pointshop/internal/metrics"
	"github.com/leafmarket/pointshop/internal/service/fulfillment"
	"github.com/leafmarket/pointshop/internal/service/idempotency"
	"github.com/leafmarket/pointshop/internal/service/order"
	"github.com/leafmarket/pointshop/internal/service/publisher"
	"github.com/leafmarket/pointshop/internal/version"
)

// Run запускает сервис допуска заказов и блокируется до отмены контекста.
func Run(ctx context.Context, cfg Config) error {
	logger := log.WithField("component", "order-service")

	deps, err := NewDependencies(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer deps.Close()

	purchaseMetrics := metrics.NewPurchaseMetrics()

	if cfg.PrimeStockOnStart {
		if err := deps.PrimeStock(ctx, cfg.DealKeyTTLMargin); err != nil {
			return err
		}
	}

	kafkaProducer, err := initKafkaProducer(cfg.KafkaBrokers, logger)
	if err != nil {
		logger.WithError(err).Warn("failed to create kafka producer, continuing with in-process fulfillment")
	}

	var sender publisher.Sender
	if kafkaProducer != nil {
		sender = kafkaProducer
	} else {
		// Без брокера команды рассчитываются в том же процессе.
		// Режим для разработки и тестов, не для production.
		sender = &loopbackSender{
			processor: fulfillment.NewProcessor(
				deps.Settlements, deps.Statuses, deps.Audit, deps.Stock,
				purchaseMetrics, logger.WithField("component", "fulfillment"),
			),
		}
		logger.Info("no kafka brokers configured, using in-process fulfillment")
	}

	commandPublisher := publisher.New(sender, kafka.TopicPurchaseCommands, publisher.Config{
		MaxAttempts: cfg.PublisherMaxAttempts,
		BaseDelay:   cfg.PublisherBaseDelay,
		MaxDelay:    cfg.PublisherMaxDelay,
		OnDrop:      dropHandler(deps.Stock, deps.Statuses, logger.WithField("component", "command-publisher")),
	}, logger.WithField("component", "command-publisher"))

	admission := order.NewService(
		deps.Members, deps.Products, deps.Timedeals, deps.Guard,
		deps.Stock, commandPublisher, deps.Statuses, purchaseMetrics,
		logger.WithField("component", "order-admission"),
	)

	// Записи идемпотентности накапливаются бесконечно; чистим их фоном,
	// когда хранилище умеет удалять по возрасту.
	if purger, ok := deps.Guard.(idempotency.StalePurger); ok {
		cleanup := idempotency.NewCleanupWorker(
			purger,
			idempotency.WithLogger(logger.WithField("component", "idempotency-cleanup-worker")),
			idempotency.WithInterval(cfg.IdempotencyCleanupInterval),
			idempotency.WithRetention(cfg.IdempotencyRetention),
			idempotency.WithBatchSize(cfg.IdempotencyCleanupBatchSize),
		)
		go cleanup.Run(ctx)
	}

	healthHandler := healthcheck.NewHandler(version.GetVersion())
	deps.RegisterHealthCheckers(healthHandler)
	metricsSrv := startMetricsServer(ctx, cfg.MetricsAddr, logger, healthHandler)

	apiSrv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: handler.NewRouter(admission, logger.WithField("component", "http-handler")),
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Infof("order service listening on %s", cfg.HTTPAddr)
		errCh <- apiSrv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Info("получен сигнал остановки, останавливаем HTTP сервер")
		shutdownHTTP(apiSrv, logger)
		shutdownHTTP(metricsSrv, logger)
		commandPublisher.Close()
		closeKafka(kafkaProducer, logger)
		return ctx.Err()
	case err := <-errCh:
		shutdownHTTP(metricsSrv, logger)
		commandPublisher.Close()
		closeKafka(kafkaProducer, logger)
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// dropHandler компенсирует допуск терминально потерянной команды:
// резерв возвращается в кеш-счётчик, статус переводится в FAILED.
// Возврат выполняется только при первом переходе в FAILED, как и у
// воркера расчёта.
func dropHandler(stock domain.StockReservationCache, statuses domain.PurchaseStatusRepository, logger *log.Entry) func(domain.PurchaseCommand, error) {
	return func(cmd domain.PurchaseCommand, cause error) {
		ctx := context.Background()
		entry := logger.WithFields(log.Fields{
			"member_id":       cmd.MemberID,
			"product_id":      cmd.ProductID,
			"idempotency_key": cmd.IdempotencyKey,
		})

		first, err := statuses.MarkFailed(ctx, cmd.MemberID, cmd.IdempotencyKey, "publish failed: "+cause.Error())
		if err != nil {
			entry.WithError(err).Error("failed to mark dropped command failed")
			return
		}
		if !first {
			return
		}

		key := cache.ProductStockKey(cmd.ProductID)
		if cmd.DealID != nil {
			key = cache.DealStockKey(*cmd.DealID)
		}
		if err := stock.Release(ctx, key, int64(cmd.Quantity)); err != nil && !errors.Is(err, domain.ErrStockKeyNotFound) {
			entry.WithError(err).WithField("stock_key", key).Error("failed to release stock for dropped command")
			return
		}
		entry.Info("dropped command compensated")
	}
}

// loopbackSender доставляет команду напрямую процессору расчёта,
// минуя внешнюю очередь.
type loopbackSender struct {
	processor *fulfillment.Processor
}

func (s *loopbackSender) Publish(_, _ string, value []byte) error {
	cmd, err := kafka.ParsePurchaseCommand(&sarama.ConsumerMessage{Value: value})
	if err != nil {
		return err
	}
	return s.processor.Process(context.Background(), cmd)
}

// startMetricsServer запускает HTTP-обработчик /metrics для Prometheus.
func startMetricsServer(ctx context.Context, addr string, logger *log.Entry, healthHandler *healthcheck.Handler) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/healthz", healthHandler)
	mux.HandleFunc("/readyz", healthHandler.ReadinessHandler)
	mux.HandleFunc("/livez", healthcheck.LivenessHandler)

	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		logger.Infof("метрики доступны по адресу %s/metrics", addr)
		logger.Infof("health checks: %s/healthz, %s/livez", addr, addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Warn("metrics server failed")
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownHTTP(srv, logger)
	}()

	return srv
}

// shutdownHTTP аккуратно останавливает HTTP-сервер.
func shutdownHTTP(srv *http.Server, logger *log.Entry) {
	if srv == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.WithError(err).Warn("http shutdown with error")
	}
}
