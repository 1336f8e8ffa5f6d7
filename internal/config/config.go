package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	DSN           string
	MigrationsDir string
	DataFile      string
	HTTPPort      string
	GRPCPort      string
	AdminToken    string
	FilterWord    string

	AppendHistoryOnUpdate bool

	KafkaEnabled bool
	KafkaBrokers []string
	KafkaGroupID string
	KafkaTopic   string

	OutboxPollInterval time.Duration
	OutboxBatchSize    int
	OutboxMaxAttempts  int
	OutboxRetryDelay   time.Duration

	AuditWorkers     int
	AuditBatchSize   int
	AuditTimeout     time.Duration
	AuditChannelSize int

	CacheRefreshInterval time.Duration
}

// LoadConfig reads the environment, after merging a .env file from the
// working directory when one exists.
func LoadConfig() *Config {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("[config] .env: %v", err)
	}
	brokersStr := getEnv("KAFKA_BROKERS", "localhost:9092")
	return &Config{
		DSN:           getEnv("APP_DSN", ""),
		MigrationsDir: getEnv("APP_MIGRATIONS", "migrations"),
		DataFile:      getEnv("APP_DATA_FILE", "orders.json"),
		HTTPPort:      getEnv("APP_PORT", "9000"),
		GRPCPort:      getEnv("APP_GRPC_PORT", "9001"),
		AdminToken:    getEnv("APP_ADMIN_TOKEN", "secret"),
		FilterWord:    getEnv("APP_FILTER", ""),

		AppendHistoryOnUpdate: getEnvAsBool("APP_APPEND_HISTORY_ON_UPDATE", false),

		KafkaEnabled: getEnvAsBool("KAFKA_ENABLED", false),
		KafkaBrokers: strings.Split(brokersStr, ","),
		KafkaGroupID: getEnv("KAFKA_GROUP_ID", "order-notifier"),
		KafkaTopic:   getEnv("KAFKA_TOPIC", "order-status-events"),

		OutboxPollInterval: getEnvAsDuration("OUTBOX_POLL_INTERVAL", 2*time.Second),
		OutboxBatchSize:    getEnvAsInt("OUTBOX_BATCH_SIZE", 50),
		OutboxMaxAttempts:  getEnvAsInt("OUTBOX_MAX_ATTEMPTS", 3),
		OutboxRetryDelay:   getEnvAsDuration("OUTBOX_RETRY_DELAY", 2*time.Second),

		AuditWorkers:     getEnvAsInt("AUDIT_WORKERS", 2),
		AuditBatchSize:   getEnvAsInt("AUDIT_BATCH_SIZE", 5),
		AuditTimeout:     getEnvAsDuration("AUDIT_TIMEOUT", 500*time.Millisecond),
		AuditChannelSize: getEnvAsInt("AUDIT_CHANNEL_SIZE", 100),

		CacheRefreshInterval: getEnvAsDuration("CACHE_REFRESH_INTERVAL", time.Minute),
	}
}

func getEnv(key, defaultVal string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultVal
}

func getEnvAsInt(key string, defaultVal int) int {
	if value, err := strconv.Atoi(getEnv(key, "")); err == nil {
		return value
	}
	return defaultVal
}

func getEnvAsBool(key string, defaultVal bool) bool {
	if value, err := strconv.ParseBool(getEnv(key, "")); err == nil {
		return value
	}
	return defaultVal
}

func getEnvAsDuration(key string, defaultVal time.Duration) time.Duration {
	if value, err := time.ParseDuration(getEnv(key, "")); err == nil {
		return value
	}
	return defaultVal
}

func (c *Config) Addr() string {
	return fmt.Sprintf(":%s", c.HTTPPort)
}

func (c *Config) GRPCAddr() string {
	return fmt.Sprintf(":%s", c.GRPCPort)
}

// UsePostgres is false when no DSN is configured; the server then keeps
// orders in DataFile.
func (c *Config) UsePostgres() bool {
	return c.DSN != ""
}
