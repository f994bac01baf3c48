package app

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Драйверы хранения.
const (
	StorageDriverMemory   = "memory"
	StorageDriverPostgres = "postgres"
)

// Драйверы кеша остатков.
const (
	CacheDriverMemory = "memory"
	CacheDriverRedis  = "redis"
)

// Config описывает настройки сервисов; заполняется из окружения
// с префиксом POINTSHOP_.
type Config struct {
	HTTPAddr    string `envconfig:"HTTP_ADDR" default:":8080"`
	MetricsAddr string `envconfig:"METRICS_ADDR" default:":9090"`

	StorageDriver       string `envconfig:"STORAGE_DRIVER" default:"memory"`
	PostgresDSN         string `envconfig:"POSTGRES_DSN"`
	PostgresAutoMigrate bool   `envconfig:"POSTGRES_AUTO_MIGRATE" default:"true"`

	CacheDriver   string `envconfig:"CACHE_DRIVER" default:"memory"`
	RedisAddr     string `envconfig:"REDIS_ADDR" default:"localhost:6379"`
	RedisPassword string `envconfig:"REDIS_PASSWORD"`
	RedisDB       int    `envconfig:"REDIS_DB" default:"0"`

	KafkaBrokers      string `envconfig:"KAFKA_BROKERS"`
	KafkaGroupID      string `envconfig:"KAFKA_GROUP_ID" default:"pointshop-purchase-worker"`
	KafkaMaxRetries   int    `envconfig:"KAFKA_MAX_RETRIES" default:"3"`

	PublisherMaxAttempts int           `envconfig:"PUBLISHER_MAX_ATTEMPTS" default:"5"`
	PublisherBaseDelay   time.Duration `envconfig:"PUBLISHER_BASE_DELAY" default:"100ms"`
	PublisherMaxDelay    time.Duration `envconfig:"PUBLISHER_MAX_DELAY" default:"5s"`

	// Настройки воркера очистки ключей идемпотентности.
	IdempotencyCleanupInterval  time.Duration `envconfig:"IDEMPOTENCY_CLEANUP_INTERVAL" default:"1h"`
	IdempotencyRetention        time.Duration `envconfig:"IDEMPOTENCY_RETENTION" default:"24h"`
	IdempotencyCleanupBatchSize int           `envconfig:"IDEMPOTENCY_CLEANUP_BATCH_SIZE" default:"500"`

	// PrimeStockOnStart восстанавливает кеш-счётчики из авторитетного
	// остатка при запуске сервиса допуска.
	PrimeStockOnStart bool `envconfig:"PRIME_STOCK_ON_START" default:"true"`
	// DealKeyTTLMargin — запас к TTL счётчика акции после конца окна.
	DealKeyTTLMargin time.Duration `envconfig:"DEAL_KEY_TTL_MARGIN" default:"10m"`
}

// LoadConfig читает конфигурацию из переменных окружения.
func LoadConfig() (Config, error) {
	var cfg Config
	if err := envconfig.Process("POINTSHOP", &cfg); err != nil {
		return Config{}, fmt.Errorf("load config from env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// DefaultConfig возвращает конфигурацию по умолчанию (memory-драйверы).
func DefaultConfig() Config {
	return Config{
		HTTPAddr:             ":8080",
		MetricsAddr:          ":9090",
		StorageDriver:        StorageDriverMemory,
		CacheDriver:          CacheDriverMemory,
		RedisAddr:            "localhost:6379",
		KafkaGroupID:         "pointshop-purchase-worker",
		KafkaMaxRetries:      3,
		PublisherMaxAttempts: 5,
		PublisherBaseDelay:   100 * time.Millisecond,
		PublisherMaxDelay:    5 * time.Second,
		PostgresAutoMigrate:  true,
		PrimeStockOnStart:    true,
		DealKeyTTLMargin:     10 * time.Minute,

		IdempotencyCleanupInterval:  1 * time.Hour,
		IdempotencyRetention:        24 * time.Hour,
		IdempotencyCleanupBatchSize: 500,
	}
}

// Validate проверяет согласованность конфигурации.
func (c Config) Validate() error {
	switch c.StorageDriver {
	case StorageDriverMemory, StorageDriverPostgres:
	default:
		return fmt.Errorf("unsupported storage driver: %q", c.StorageDriver)
	}
	if c.StorageDriver == StorageDriverPostgres && c.PostgresDSN == "" {
		return fmt.Errorf("postgres storage driver requires POINTSHOP_POSTGRES_DSN")
	}

	switch c.CacheDriver {
	case CacheDriverMemory, CacheDriverRedis:
	default:
		return fmt.Errorf("unsupported cache driver: %q", c.CacheDriver)
	}

	if c.PublisherMaxAttempts <= 0 {
		return fmt.Errorf("publisher max attempts must be positive")
	}
	return nil
}
