// Package publisher доставляет команды покупки в очередь best-effort:
// ограниченное число попыток с экспоненциальной задержкой, после чего
// команда теряется с терминальной записью в лог. К этому моменту допуск
// уже вернул успех клиенту, поэтому сбои не эскалируются вызывающему.
package publisher

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	log "github.com/sirupsen/logrus"

	"github.com/leafmarket/pointshop/internal/domain"
	"github.com/leafmarket/pointshop/internal/messaging/kafka"
)

const (
	defaultMaxAttempts = 5
	defaultBaseDelay   = 100 * time.Millisecond
	defaultMaxDelay    = 5 * time.Second
)

var publishAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "pointshop_publisher_attempts_total",
	Help: "Total number of purchase command publish attempts grouped by result.",
}, []string{"result"})

// Sender отправляет готовое тело сообщения в topic; реализуется Kafka producer.
type Sender interface {
	Publish(topic, key string, value []byte) error
}

// Config задаёт параметры retry при публикации.
type Config struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration

	// OnDrop вызывается, когда команда потеряна терминально: исчерпаны
	// попытки отправки либо команда не сериализуется. Обработчик
	// компенсирует уже выданный допуск (возврат резерва, статус FAILED).
	OnDrop func(cmd domain.PurchaseCommand, cause error)
}

// DefaultConfig возвращает параметры retry по умолчанию.
func DefaultConfig() Config {
	return Config{
		MaxAttempts: defaultMaxAttempts,
		BaseDelay:   defaultBaseDelay,
		MaxDelay:    defaultMaxDelay,
	}
}

// CommandPublisher — at-least-once публикация PurchaseCommand в очередь.
type CommandPublisher struct {
	sender Sender
	topic  string
	cfg    Config
	logger *log.Entry
	wg     sync.WaitGroup
}

// New создаёт publisher поверх отправителя.
func New(sender Sender, topic string, cfg Config, logger *log.Entry) *CommandPublisher {
	if logger == nil {
		logger = log.WithField("component", "command-publisher")
	}
	if topic == "" {
		topic = kafka.TopicPurchaseCommands
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = defaultMaxAttempts
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = defaultBaseDelay
	}
	if cfg.MaxDelay < cfg.BaseDelay {
		cfg.MaxDelay = defaultMaxDelay
	}

	return &CommandPublisher{
		sender: sender,
		topic:  topic,
		cfg:    cfg,
		logger: logger,
	}
}

// Publish сериализует команду и отправляет её асинхронно, чтобы задержка
// брокера не попадала в латентность допуска. Ошибки не возвращаются.
func (p *CommandPublisher) Publish(cmd domain.PurchaseCommand) {
	payload, err := kafka.EncodePurchaseCommand(cmd)
	if err != nil {
		publishAttempts.WithLabelValues("marshal_error").Inc()
		p.logger.WithError(err).WithFields(log.Fields{
			"member_id":       cmd.MemberID,
			"idempotency_key": cmd.IdempotencyKey,
		}).Error("failed to serialize purchase command, dropping")
		p.drop(cmd, err)
		return
	}

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.sendWithRetry(cmd, payload)
	}()
}

func (p *CommandPublisher) sendWithRetry(cmd domain.PurchaseCommand, payload []byte) {
	delay := p.cfg.BaseDelay

	var lastErr error
	for attempt := 1; attempt <= p.cfg.MaxAttempts; attempt++ {
		lastErr = p.sender.Publish(p.topic, cmd.IdempotencyKey, payload)
		if lastErr == nil {
			publishAttempts.WithLabelValues("success").Inc()
			if attempt > 1 {
				p.logger.WithFields(log.Fields{
					"idempotency_key": cmd.IdempotencyKey,
					"attempt":         attempt,
				}).Info("purchase command published after retry")
			}
			return
		}

		publishAttempts.WithLabelValues("error").Inc()
		if attempt < p.cfg.MaxAttempts {
			p.logger.WithError(lastErr).WithFields(log.Fields{
				"idempotency_key": cmd.IdempotencyKey,
				"attempt":         attempt,
				"delay":           delay,
			}).Warn("publish failed, retrying")

			time.Sleep(delay)

			delay *= 2
			if delay > p.cfg.MaxDelay {
				delay = p.cfg.MaxDelay
			}
		}
	}

	// Допуск уже ответил клиенту успехом, а до воркера команда не дойдёт,
	// поэтому компенсация допуска выполняется здесь.
	publishAttempts.WithLabelValues("dropped").Inc()
	p.logger.WithError(lastErr).WithFields(log.Fields{
		"member_id":       cmd.MemberID,
		"product_id":      cmd.ProductID,
		"idempotency_key": cmd.IdempotencyKey,
		"attempts":        p.cfg.MaxAttempts,
	}).Error("purchase command dropped after exhausting retries")
	p.drop(cmd, lastErr)
}

func (p *CommandPublisher) drop(cmd domain.PurchaseCommand, cause error) {
	if p.cfg.OnDrop == nil {
		return
	}
	p.cfg.OnDrop(cmd, cause)
}

// Close дожидается завершения всех фоновых публикаций.
func (p *CommandPublisher) Close() {
	p.wg.Wait()
}

var _ domain.CommandPublisher = (*CommandPublisher)(nil)
