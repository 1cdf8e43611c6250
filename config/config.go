package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Server    ServerConfig
	Logger    LoggerConfig
	Postgres  PostgresConfig
	Redis     RedisConfig
	Kafka     KafkaConfig
	Inventory InventoryConfig
	Sweeper   SweeperConfig
	Alert     AlertConfig
}

type ServerConfig struct {
	AppEnv      string
	GRPCPort    string
	MetricsPort string
}

type LoggerConfig struct {
	Level             string
	Encoding          string
	DisableCaller     bool
	DisableStacktrace bool
}

type PostgresConfig struct {
	Host            string
	Port            string
	User            string
	Password        string
	DBName          string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime int
	ConnMaxIdleTime int
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type KafkaConfig struct {
	Brokers    []string
	OrderTopic string
	AlertTopic string
	GroupID    string
}

type InventoryConfig struct {
	ReservationTTLMinutes int
	ConflictMaxRetries    int
	ProductCacheTTL       time.Duration
	ListCacheTTL          time.Duration
}

type SweeperConfig struct {
	Enabled   bool
	Interval  time.Duration
	BatchSize int
}

type AlertConfig struct {
	Enabled            bool
	BreakerTimeout     time.Duration
	BreakerMaxFailures uint32
	PublishTimeout     time.Duration
}

func LoadEnv() *Config {
	return &Config{
		Server: ServerConfig{
			AppEnv:      getEnv("APP_ENV", "dev"),
			GRPCPort:    getEnv("GRPC_PORT", ":8083"),
			MetricsPort: getEnv("METRICS_PORT", ":9093"),
		},
		Logger: LoggerConfig{
			Level:             getEnv("LOGGER_LEVEL", "debug"),
			Encoding:          getEnv("LOGGER_ENCODING", "console"),
			DisableCaller:     getEnvBool("LOGGER_DISABLE_CALLER", false),
			DisableStacktrace: getEnvBool("LOGGER_DISABLE_STACKTRACE", true),
		},
		Postgres: PostgresConfig{
			Host:            getEnv("POSTGRES_HOST", "localhost"),
			Port:            getEnv("POSTGRES_PORT", "5433"),
			User:            getEnv("POSTGRES_USER", "omnipos"),
			Password:        getEnv("POSTGRES_PASSWORD", "omnipos"),
			DBName:          getEnv("POSTGRES_DB", "omnipos_stock"),
			SSLMode:         getEnv("POSTGRES_SSLMODE", "disable"),
			MaxOpenConns:    getEnvInt("POSTGRES_MAX_OPEN_CONNS", 20),
			MaxIdleConns:    getEnvInt("POSTGRES_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getEnvInt("POSTGRES_CONN_MAX_LIFETIME", 300),
			ConnMaxIdleTime: getEnvInt("POSTGRES_CONN_MAX_IDLE_TIME", 60),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		Kafka: KafkaConfig{
			Brokers:    getEnvSlice("KAFKA_BROKERS", []string{"localhost:9092"}),
			OrderTopic: getEnv("KAFKA_TOPIC_ORDERS", "orders.events"),
			AlertTopic: getEnv("KAFKA_TOPIC_STOCK_ALERTS", "inventory.alerts"),
			GroupID:    getEnv("KAFKA_GROUP_INVENTORY", "inventory"),
		},
		Inventory: InventoryConfig{
			ReservationTTLMinutes: getEnvInt("RESERVATION_TTL_MINUTES", 15),
			ConflictMaxRetries:    getEnvInt("CONFLICT_MAX_RETRIES", 3),
			ProductCacheTTL:       getEnvDuration("PRODUCT_CACHE_TTL", 60*time.Second),
			ListCacheTTL:          getEnvDuration("LIST_CACHE_TTL", 30*time.Second),
		},
		Sweeper: SweeperConfig{
			Enabled:   getEnvBool("SWEEP_ENABLED", true),
			Interval:  getEnvDuration("SWEEP_INTERVAL", time.Minute),
			BatchSize: getEnvInt("SWEEP_BATCH_SIZE", 200),
		},
		Alert: AlertConfig{
			Enabled:            getEnvBool("ALERT_ENABLED", true),
			BreakerTimeout:     getEnvDuration("ALERT_BREAKER_TIMEOUT", 30*time.Second),
			BreakerMaxFailures: uint32(getEnvInt("ALERT_BREAKER_MAX_FAILURES", 5)),
			PublishTimeout:     getEnvDuration("ALERT_PUBLISH_TIMEOUT", 5*time.Second),
		},
	}
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if value, ok := os.LookupEnv(key); ok {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}

func getEnvSlice(key string, fallback []string) []string {
	if value, ok := os.LookupEnv(key); ok {
		return strings.Split(value, ",")
	}
	return fallback
}
