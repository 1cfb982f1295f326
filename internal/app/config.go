package app

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/vladislavdragonenkov/cartsync/internal/messaging/kafka"
)

// StorageDriver определяет backend хранилища корзин.
type StorageDriver string

const (
	StorageDriverMemory   StorageDriver = "memory"
	StorageDriverPostgres StorageDriver = "postgres"
)

// Имена переменных окружения сервиса корзины.
const (
	EnvHTTPAddr                    = "CART_HTTP_ADDR"
	EnvGRPCAddr                    = "CART_GRPC_ADDR"
	EnvMetricsAddr                 = "CART_METRICS_ADDR"
	EnvStorageDriver               = "CART_STORAGE_DRIVER"
	EnvPostgresDSN                 = "CART_POSTGRES_DSN"
	EnvPostgresAutoMigrate         = "CART_POSTGRES_AUTO_MIGRATE"
	EnvPostgresMaxConns            = "CART_POSTGRES_MAX_CONNS"
	EnvSeedDemoCatalog             = "CART_SEED_DEMO_CATALOG"
	EnvAPITokens                   = "CART_API_TOKENS"
	EnvKafkaBrokers                = "CART_KAFKA_BROKERS"
	EnvKafkaClientID               = "CART_KAFKA_CLIENT_ID"
	EnvSyncEventsTopic             = "CART_KAFKA_SYNC_TOPIC"
	EnvCartChangesTopic            = "CART_KAFKA_CHANGES_TOPIC"
	EnvEventBufferSize             = "CART_EVENT_BUFFER_SIZE"
	EnvEventMaxAttempts            = "CART_EVENT_MAX_ATTEMPTS"
	EnvEventRetryDelay             = "CART_EVENT_RETRY_DELAY"
	EnvIdempotencyTTL              = "CART_IDEMPOTENCY_TTL"
	EnvIdempotencyCleanupInterval  = "CART_IDEMPOTENCY_CLEANUP_INTERVAL"
	EnvIdempotencyCleanupBatchSize = "CART_IDEMPOTENCY_CLEANUP_BATCH_SIZE"
	EnvShutdownTimeout             = "CART_SHUTDOWN_TIMEOUT"
	EnvLogLevel                    = "CART_LOG_LEVEL"
)

// Config описывает настройки запуска сервиса корзины.
type Config struct {
	HTTPAddr    string
	GRPCAddr    string
	MetricsAddr string

	StorageDriver       StorageDriver
	PostgresDSN         string
	PostgresAutoMigrate bool
	PostgresMaxConns    int
	SeedDemoCatalog     bool

	// Пары token:owner через запятую. Если пусто, токен сам является владельцем.
	APITokens string

	// Список брокеров через запятую. Если пусто, публикация событий выключена.
	KafkaBrokers     string
	KafkaClientID    string
	SyncEventsTopic  string
	CartChangesTopic string
	EventBufferSize  int
	EventMaxAttempts int
	EventRetryDelay  time.Duration

	IdempotencyTTL              time.Duration
	IdempotencyCleanupInterval  time.Duration
	IdempotencyCleanupBatchSize int

	ShutdownTimeout time.Duration
	LogLevel        string
}

// DefaultConfig возвращает настройки для локального запуска без внешних зависимостей.
func DefaultConfig() Config {
	return Config{
		HTTPAddr:                    ":8080",
		GRPCAddr:                    ":50051",
		MetricsAddr:                 ":9090",
		StorageDriver:               StorageDriverMemory,
		PostgresAutoMigrate:         true,
		PostgresMaxConns:            25,
		SeedDemoCatalog:             true,
		KafkaClientID:               "cart-service",
		SyncEventsTopic:             kafka.TopicSyncEvents,
		CartChangesTopic:            kafka.TopicCartChanges,
		EventBufferSize:             1024,
		EventMaxAttempts:            3,
		EventRetryDelay:             50 * time.Millisecond,
		IdempotencyTTL:              24 * time.Hour,
		IdempotencyCleanupInterval:  10 * time.Minute,
		IdempotencyCleanupBatchSize: 500,
		ShutdownTimeout:             5 * time.Second,
		LogLevel:                    "info",
	}
}

// LookupFunc читает переменную окружения (в проде os.LookupEnv).
type LookupFunc func(key string) (string, bool)

// ConfigFromEnv читает конфигурацию из окружения процесса.
func ConfigFromEnv() (Config, []string) {
	return LoadConfig(os.LookupEnv)
}

// LoadConfig накладывает переменные окружения на DefaultConfig.
// Некорректные значения не прерывают запуск: поле остаётся по умолчанию, а причина попадает в warnings.
func LoadConfig(lookup LookupFunc) (Config, []string) {
	cfg := DefaultConfig()
	r := envReader{lookup: lookup}

	r.str(EnvHTTPAddr, &cfg.HTTPAddr)
	r.str(EnvGRPCAddr, &cfg.GRPCAddr)
	r.str(EnvMetricsAddr, &cfg.MetricsAddr)
	r.str(EnvPostgresDSN, &cfg.PostgresDSN)
	r.str(EnvAPITokens, &cfg.APITokens)
	r.str(EnvKafkaBrokers, &cfg.KafkaBrokers)
	r.str(EnvKafkaClientID, &cfg.KafkaClientID)
	r.str(EnvSyncEventsTopic, &cfg.SyncEventsTopic)
	r.str(EnvCartChangesTopic, &cfg.CartChangesTopic)
	r.str(EnvLogLevel, &cfg.LogLevel)

	if v, ok := r.get(EnvStorageDriver); ok {
		switch driver := StorageDriver(strings.ToLower(v)); driver {
		case StorageDriverMemory, StorageDriverPostgres:
			cfg.StorageDriver = driver
		default:
			r.warn(EnvStorageDriver, v, "expected memory or postgres")
		}
	}

	r.boolean(EnvPostgresAutoMigrate, &cfg.PostgresAutoMigrate)
	r.boolean(EnvSeedDemoCatalog, &cfg.SeedDemoCatalog)
	r.positiveInt(EnvPostgresMaxConns, &cfg.PostgresMaxConns)
	r.positiveInt(EnvEventBufferSize, &cfg.EventBufferSize)
	r.positiveInt(EnvEventMaxAttempts, &cfg.EventMaxAttempts)
	r.positiveInt(EnvIdempotencyCleanupBatchSize, &cfg.IdempotencyCleanupBatchSize)
	r.duration(EnvEventRetryDelay, &cfg.EventRetryDelay, true)
	r.duration(EnvIdempotencyTTL, &cfg.IdempotencyTTL, false)
	r.duration(EnvIdempotencyCleanupInterval, &cfg.IdempotencyCleanupInterval, false)
	r.duration(EnvShutdownTimeout, &cfg.ShutdownTimeout, false)

	return cfg, r.warnings
}

// Validate проверяет согласованность настроек перед запуском.
func (c Config) Validate() error {
	switch c.StorageDriver {
	case StorageDriverMemory:
	case StorageDriverPostgres:
		if strings.TrimSpace(c.PostgresDSN) == "" {
			return fmt.Errorf("%s is required for postgres storage", EnvPostgresDSN)
		}
	default:
		return fmt.Errorf("unsupported storage driver: %q", c.StorageDriver)
	}
	if c.HTTPAddr == "" {
		return fmt.Errorf("http address is required")
	}
	return nil
}

// Brokers разбирает KafkaBrokers.
func (c Config) Brokers() []string {
	var brokers []string
	for _, b := range strings.Split(c.KafkaBrokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			brokers = append(brokers, b)
		}
	}
	return brokers
}

type envReader struct {
	lookup   LookupFunc
	warnings []string
}

func (r *envReader) get(key string) (string, bool) {
	if r.lookup == nil {
		return "", false
	}
	v, ok := r.lookup(key)
	if !ok {
		return "", false
	}
	v = strings.TrimSpace(v)
	return v, v != ""
}

func (r *envReader) warn(key, value, reason string) {
	r.warnings = append(r.warnings, fmt.Sprintf("%s=%q ignored: %s", key, value, reason))
}

func (r *envReader) str(key string, dst *string) {
	if v, ok := r.get(key); ok {
		*dst = v
	}
}

func (r *envReader) boolean(key string, dst *bool) {
	v, ok := r.get(key)
	if !ok {
		return
	}
	switch strings.ToLower(v) {
	case "1", "true", "yes", "on":
		*dst = true
	case "0", "false", "no", "off":
		*dst = false
	default:
		r.warn(key, v, "expected boolean")
	}
}

func (r *envReader) positiveInt(key string, dst *int) {
	v, ok := r.get(key)
	if !ok {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		r.warn(key, v, "expected positive integer")
		return
	}
	*dst = n
}

func (r *envReader) duration(key string, dst *time.Duration, allowZero bool) {
	v, ok := r.get(key)
	if !ok {
		return
	}
	d, err := time.ParseDuration(v)
	if err != nil || d < 0 || (d == 0 && !allowZero) {
		r.warn(key, v, "expected positive duration")
		return
	}
	*dst = d
}
