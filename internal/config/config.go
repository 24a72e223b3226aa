package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

const (
	DataSourcePostgres = "postgres"
	DataSourceMock     = "mock"
)

// DatabaseConfig holds Postgres connection settings.
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
	MaxConns int
	MaxIdle  int
}

// GetDSN returns the lib/pq key/value connection string.
func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode)
}

// Config of portal-data, read from the environment.
type Config struct {
	HTTP struct {
		Addr string
	}
	// DataSource is "postgres" or "mock"; mock serves seeded demo tenants from memory.
	DataSource string
	Database   DatabaseConfig
	Migrate    bool
	// SeedDemo upserts the demo tenants and their data into Postgres at startup.
	SeedDemo   bool
	Redis      struct {
		Enabled  bool
		Addr     string
		Password string
		DB       int
	}
	Log struct {
		Level  string
		Format string
	}
	Tenant struct {
		BaseDomain string
		CacheTTL   time.Duration
	}
	Events struct {
		Enabled bool
		Stream  string
		MaxLen  int64
	}
	// MQTT mirrors change events to a broker, independent of Redis.
	MQTT struct {
		Enabled     bool
		Broker      string
		ClientID    string
		Username    string
		Password    string
		QoS         byte
		TopicPrefix string
	}
	Marketplace struct {
		BaseURL string
		APIKey  string
		Timeout time.Duration
	}
}

func Load() (*Config, error) {
	cfg := &Config{}
	cfg.HTTP.Addr = getEnv("HTTP_ADDR", ":8080")

	cfg.DataSource = getEnv("DATA_SOURCE", DataSourcePostgres)
	if cfg.DataSource != DataSourcePostgres && cfg.DataSource != DataSourceMock {
		return nil, fmt.Errorf("invalid DATA_SOURCE %q (want %s or %s)", cfg.DataSource, DataSourcePostgres, DataSourceMock)
	}

	cfg.Database.Host = getEnv("DB_HOST", "localhost")
	cfg.Database.Port = parseInt(getEnv("DB_PORT", "5432"), 5432)
	cfg.Database.User = getEnv("DB_USER", "postgres")
	cfg.Database.Password = getEnv("DB_PASSWORD", "postgres")
	cfg.Database.Database = getEnv("DB_NAME", "portal")
	cfg.Database.SSLMode = getEnv("DB_SSLMODE", "disable")
	cfg.Database.MaxConns = parseInt(getEnv("DB_MAX_CONNS", "20"), 20)
	cfg.Database.MaxIdle = parseInt(getEnv("DB_MAX_IDLE", "5"), 5)
	cfg.Migrate = getEnv("DB_MIGRATE", "true") == "true"
	cfg.SeedDemo = getEnv("SEED_DEMO", "false") == "true"

	cfg.Redis.Enabled = getEnv("REDIS_ENABLED", "false") == "true"
	cfg.Redis.Addr = getEnv("REDIS_ADDR", "localhost:6379")
	cfg.Redis.Password = getEnv("REDIS_PASSWORD", "")
	cfg.Redis.DB = parseInt(getEnv("REDIS_DB", "0"), 0)

	cfg.Log.Level = getEnv("LOG_LEVEL", "info")
	cfg.Log.Format = getEnv("LOG_FORMAT", "json")

	cfg.Tenant.BaseDomain = getEnv("TENANT_BASE_DOMAIN", "")
	ttl, err := time.ParseDuration(getEnv("TENANT_CACHE_TTL", "5m"))
	if err != nil {
		return nil, fmt.Errorf("invalid TENANT_CACHE_TTL: %w", err)
	}
	cfg.Tenant.CacheTTL = ttl

	cfg.Events.Enabled = getEnv("EVENTS_ENABLED", "false") == "true"
	cfg.Events.Stream = getEnv("EVENTS_STREAM", "portal:changes")
	cfg.Events.MaxLen = int64(parseInt(getEnv("EVENTS_MAXLEN", "10000"), 10000))
	if cfg.Events.Enabled && !cfg.Redis.Enabled {
		return nil, fmt.Errorf("EVENTS_ENABLED requires REDIS_ENABLED")
	}

	cfg.MQTT.Enabled = getEnv("MQTT_ENABLED", "false") == "true"
	cfg.MQTT.Broker = getEnv("MQTT_BROKER", "tcp://localhost:1883")
	cfg.MQTT.ClientID = getEnv("MQTT_CLIENT_ID", "portal-data")
	cfg.MQTT.Username = getEnv("MQTT_USERNAME", "")
	cfg.MQTT.Password = getEnv("MQTT_PASSWORD", "")
	cfg.MQTT.TopicPrefix = getEnv("MQTT_TOPIC_PREFIX", "portal")
	qos := parseInt(getEnv("MQTT_QOS", "1"), 1)
	if qos < 0 || qos > 2 {
		return nil, fmt.Errorf("invalid MQTT_QOS %d (want 0, 1 or 2)", qos)
	}
	cfg.MQTT.QoS = byte(qos)

	cfg.Marketplace.BaseURL = getEnv("MARKETPLACE_BASE_URL", "")
	cfg.Marketplace.APIKey = getEnv("MARKETPLACE_API_KEY", "")
	timeout, err := time.ParseDuration(getEnv("MARKETPLACE_TIMEOUT", "15s"))
	if err != nil {
		return nil, fmt.Errorf("invalid MARKETPLACE_TIMEOUT: %w", err)
	}
	cfg.Marketplace.Timeout = timeout

	return cfg, nil
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func parseInt(s string, def int) int {
	i, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return i
}
