package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds configuration for the gateway.
type Config struct {
	HTTPPort        string
	LogLevel        string
	RequireAPIKey   bool
	CallerKeyPepper []byte
	JWTSecret       []byte
	JWTIssuer       string
	AdminTokenTTL   time.Duration

	HTTP         HTTPConfig
	Database     DatabaseConfig
	Redis        RedisConfig
	Tracker      TrackerConfig
	Tools        ToolsConfig
	Pricing      PricingConfig
	BillingQueue QueueConfig
	AuditFile    AuditFileConfig
	AuditS3      AuditS3Config
}

// HTTPConfig holds server timeouts and limits
type HTTPConfig struct {
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration // 0 disables; streams hold the connection for the whole call
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
	MaxBodyBytes    int64
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
	QueryTimeout    time.Duration
}

// RedisConfig holds Redis connection settings. An empty Address disables Redis.
type RedisConfig struct {
	Address      string
	Password     string
	DB           int
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// TrackerConfig holds request tracker settings
type TrackerConfig struct {
	StoreTimeout       time.Duration
	CompletedCacheSize int
	CompletedCacheTTL  time.Duration
}

// ToolsConfig holds dispatch settings
type ToolsConfig struct {
	ExecutionTimeout    time.Duration
	VolumeLookupTimeout time.Duration
}

// PricingConfig points at an optional YAML pricing file
type PricingConfig struct {
	File string
}

// QueueConfig holds billing queue and worker settings
type QueueConfig struct {
	Capacity     int
	BatchSize    int
	BatchTimeout time.Duration
	MaxRetries   int
	RetryBackoff time.Duration
}

// AuditFileConfig holds the rotating audit file settings
type AuditFileConfig struct {
	Enabled          bool
	FilePathTemplate string
	MaxSize          int64
	MaxFiles         int
	BufferSize       int
	FlushInterval    time.Duration
}

// AuditS3Config holds configuration for the S3 audit archive
type AuditS3Config struct {
	Enabled       bool          // Whether to archive audit records to S3
	BufferSize    int           // In-memory queue size
	FlushSize     int           // Records per S3 object
	FlushInterval time.Duration // Max wait before a partial batch is written
	S3Bucket      string        // S3 bucket name
	S3Region      string        // AWS region
	S3Prefix      string        // Prefix for S3 keys (e.g., "audit/")
	S3Endpoint    string        // Optional endpoint for S3-compatible stores
	PodName       string        // Pod identifier for multi-pod deployments
}

// ErrDatabaseRequired is returned by commands that need PostgreSQL
var ErrDatabaseRequired = errors.New("DATABASE_URL is required")

// RequireDatabase checks that a database URL is configured
func (c *Config) RequireDatabase() error {
	if c.Database.URL == "" {
		return ErrDatabaseRequired
	}
	return nil
}

// RedisEnabled reports whether a Redis address is configured
func (c *Config) RedisEnabled() bool {
	return c.Redis.Address != ""
}

func getEnvInt(key string, defaultValue int) int {
	val := os.Getenv(key)
	if val == "" {
		return defaultValue
	}

	intVal, err := strconv.Atoi(val)
	if err != nil {
		return defaultValue
	}

	return intVal
}

func getEnvInt64(key string, defaultValue int64) int64 {
	val := os.Getenv(key)
	if val == "" {
		return defaultValue
	}
	intVal, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return defaultValue
	}
	return intVal
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	val := os.Getenv(key)
	if val == "" {
		return defaultValue
	}

	duration, err := time.ParseDuration(val)
	if err != nil {
		return defaultValue
	}

	return duration
}

func getEnvString(key string, defaultValue string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultValue
	}
	return val
}

func getEnvBool(key string, defaultValue bool) bool {
	val := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	switch val {
	case "":
		return defaultValue
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return defaultValue
	}
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		HTTPPort:        getEnvString("HTTP_PORT", "8080"),
		LogLevel:        getEnvString("LOG_LEVEL", "info"),
		RequireAPIKey:   getEnvBool("REQUIRE_API_KEY", true),
		CallerKeyPepper: []byte(getEnvString("CALLER_KEY_PEPPER", "tool-gateway-dev-pepper")),
		JWTSecret:       []byte(os.Getenv("JWT_SECRET")),
		JWTIssuer:       getEnvString("JWT_ISSUER", "tool-gateway"),
		AdminTokenTTL:   getEnvDuration("ADMIN_TOKEN_TTL", 12*time.Hour),
		HTTP: HTTPConfig{
			ReadTimeout:     getEnvDuration("HTTP_READ_TIMEOUT", 30*time.Second),
			WriteTimeout:    getEnvDuration("HTTP_WRITE_TIMEOUT", 0),
			IdleTimeout:     getEnvDuration("HTTP_IDLE_TIMEOUT", 120*time.Second),
			ShutdownTimeout: getEnvDuration("HTTP_SHUTDOWN_TIMEOUT", 30*time.Second),
			MaxBodyBytes:    getEnvInt64("HTTP_MAX_BODY_BYTES", 1<<20),
		},
		Database: DatabaseConfig{
			URL:             os.Getenv("DATABASE_URL"),
			MaxOpenConns:    getEnvInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getEnvInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getEnvDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
			ConnMaxIdleTime: getEnvDuration("DB_CONN_MAX_IDLE_TIME", 1*time.Minute),
			QueryTimeout:    getEnvDuration("DB_QUERY_TIMEOUT", 5*time.Second),
		},
		Redis: RedisConfig{
			Address:      getEnvString("REDIS_ADDRESS", ""),
			Password:     getEnvString("REDIS_PASSWORD", ""),
			DB:           getEnvInt("REDIS_DB", 0),
			PoolSize:     getEnvInt("REDIS_POOL_SIZE", 10),
			MinIdleConns: getEnvInt("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  getEnvDuration("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  getEnvDuration("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: getEnvDuration("REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		Tracker: TrackerConfig{
			StoreTimeout:       getEnvDuration("TRACKER_STORE_TIMEOUT", 2*time.Second),
			CompletedCacheSize: getEnvInt("TRACKER_COMPLETED_CACHE_SIZE", 10_000),
			CompletedCacheTTL:  getEnvDuration("TRACKER_COMPLETED_CACHE_TTL", 15*time.Minute),
		},
		Tools: ToolsConfig{
			ExecutionTimeout:    getEnvDuration("TOOL_EXECUTION_TIMEOUT", 30*time.Second),
			VolumeLookupTimeout: getEnvDuration("VOLUME_LOOKUP_TIMEOUT", 250*time.Millisecond),
		},
		Pricing: PricingConfig{
			File: os.Getenv("PRICING_FILE"),
		},
		BillingQueue: QueueConfig{
			Capacity:     getEnvInt("BILLING_QUEUE_CAPACITY", 10_000),
			BatchSize:    getEnvInt("BILLING_QUEUE_BATCH_SIZE", 100),
			BatchTimeout: getEnvDuration("BILLING_QUEUE_BATCH_TIMEOUT", 5*time.Second),
			MaxRetries:   getEnvInt("BILLING_QUEUE_MAX_RETRIES", 3),
			RetryBackoff: getEnvDuration("BILLING_QUEUE_RETRY_BACKOFF", 1*time.Second),
		},
		AuditFile: AuditFileConfig{
			Enabled:          getEnvBool("AUDIT_FILE_ENABLED", false),
			FilePathTemplate: getEnvString("AUDIT_FILE_PATH_TEMPLATE", "/var/log/tool-gateway/audit-%s.jsonl"),
			MaxSize:          getEnvInt64("AUDIT_FILE_MAX_SIZE", 64<<20),
			MaxFiles:         getEnvInt("AUDIT_FILE_MAX_FILES", 10),
			BufferSize:       getEnvInt("AUDIT_FILE_BUFFER_SIZE", 1000),
			FlushInterval:    getEnvDuration("AUDIT_FILE_FLUSH_INTERVAL", 5*time.Second),
		},
		AuditS3: AuditS3Config{
			Enabled:       getEnvBool("AUDIT_S3_ENABLED", false),
			BufferSize:    getEnvInt("AUDIT_S3_BUFFER_SIZE", 10000),
			FlushSize:     getEnvInt("AUDIT_S3_FLUSH_SIZE", 1000),
			FlushInterval: getEnvDuration("AUDIT_S3_FLUSH_INTERVAL", 5*time.Minute),
			S3Bucket:      getEnvString("AUDIT_S3_BUCKET", ""),
			S3Region:      getEnvString("AUDIT_S3_REGION", "us-east-1"),
			S3Prefix:      getEnvString("AUDIT_S3_PREFIX", "audit/"),
			S3Endpoint:    getEnvString("AUDIT_S3_ENDPOINT", ""),
			PodName:       getEnvString("POD_NAME", "gateway-0"),
		},
	}

	if cfg.AuditS3.Enabled && cfg.AuditS3.S3Bucket == "" {
		return nil, errors.New("AUDIT_S3_BUCKET is required when AUDIT_S3_ENABLED is set")
	}
	if len(cfg.CallerKeyPepper) == 0 {
		return nil, errors.New("CALLER_KEY_PEPPER must not be empty")
	}

	return cfg, nil
}
