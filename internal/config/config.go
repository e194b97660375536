// Package config holds the settings shared by the progress API, the chain auditor
// and ledgerctl. Values come from an optional .env file layered under environment
// variables and are validated once at startup.
package config

import (
	"errors"
	"strings"
	"time"
)

// Config is the complete configuration of every ledger process.
type Config struct {
	Application ApplicationConfig
	Logging     LoggingConfig
	Server      ServerConfig
	Kafka       KafkaConfig
	Postgres    PostgresConfig
	MongoDB     MongoDBConfig
	Redis       RedisConfig
	Outbox      OutboxConfig
	Ledger      LedgerConfig
	Audit       AuditConfig
}

// ApplicationConfig contains general application configuration
type ApplicationConfig struct {
	Env  string
	Name string
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level string
}

// ServerConfig contains HTTP server configuration settings
type ServerConfig struct {
	Port               int           // Port to listen on
	ShutdownTimeout    time.Duration // Grace period for server shutdown
	ReadTimeout        time.Duration
	WriteTimeout       time.Duration
	IdleTimeout        time.Duration
	RateLimitRPS       int // Steady-state requests per second per client IP
	RateLimitBurst     int
	CORSAllowedOrigins []string
}

// KafkaConfig contains Kafka configuration
type KafkaConfig struct {
	Brokers           string
	ProgressTopic     string // ProgressRecorded events, keyed by project
	AlertTopic        string // ChainAlert findings from the auditor
	DLQTopic          string
	NumPartitions     int
	ReplicationFactor int
	ConsumerGroup     string
	MinBytes          int
	MaxBytes          int
	MaxWait           time.Duration
}

// PostgresConfig contains PostgreSQL configuration
type PostgresConfig struct {
	URL             string
	MaxConns        int32
	MinConns        int32
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
	MigrationsPath  string

	// StatementTimeout is sent as the session statement_timeout. Zero leaves the server default.
	StatementTimeout time.Duration
}

// MongoDBConfig contains MongoDB configuration for the anchor store
type MongoDBConfig struct {
	URI              string
	Database         string
	AnchorCollection string
	Timeout          time.Duration
	MaxPoolSize      uint64
	MinPoolSize      uint64
	MaxConnIdleTime  time.Duration
}

// RedisConfig contains the Redis settings used for auditor locks
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	LockTTL  time.Duration
}

// OutboxConfig contains outbox pattern configuration
type OutboxConfig struct {
	PollingInterval  time.Duration
	BatchSize        int
	MaxRetryAttempts int
}

// LedgerConfig tunes the append path.
type LedgerConfig struct {
	MaxAppendAttempts int    // read-compute-append attempts before ConcurrentUpdateConflict
	Timezone          string // IANA zone used to decide what "today" is for FutureDate
}

// AuditConfig tunes the chain auditor.
type AuditConfig struct {
	SweepInterval  time.Duration
	WorkerPoolSize int
}

// problems accumulates every invalid setting so operators can fix them in one pass.
type problems []string

func (p *problems) require(key, value string) {
	if value == "" {
		*p = append(*p, key+" is required")
	}
}

func (p *problems) positive(key string, value int64) {
	if value <= 0 {
		*p = append(*p, key+" must be greater than 0")
	}
}

func (p *problems) positiveDuration(key string, value time.Duration) {
	p.positive(key, int64(value))
}

func (p *problems) check(ok bool, message string) {
	if !ok {
		*p = append(*p, message)
	}
}

func (c *Config) validate() error {
	var p problems

	p.positive("SERVER_PORT", int64(c.Server.Port))
	p.positiveDuration("SERVER_SHUTDOWN_TIMEOUT", c.Server.ShutdownTimeout)
	p.positiveDuration("SERVER_READ_TIMEOUT", c.Server.ReadTimeout)
	p.positiveDuration("SERVER_WRITE_TIMEOUT", c.Server.WriteTimeout)
	p.positiveDuration("SERVER_IDLE_TIMEOUT", c.Server.IdleTimeout)
	p.positive("SERVER_RATE_LIMIT_RPS", int64(c.Server.RateLimitRPS))
	p.positive("SERVER_RATE_LIMIT_BURST", int64(c.Server.RateLimitBurst))

	p.require("KAFKA_BROKERS", c.Kafka.Brokers)
	p.require("KAFKA_PROGRESS_TOPIC", c.Kafka.ProgressTopic)
	p.require("KAFKA_ALERT_TOPIC", c.Kafka.AlertTopic)
	p.require("KAFKA_DLQ_TOPIC", c.Kafka.DLQTopic)
	p.require("KAFKA_CONSUMER_GROUP", c.Kafka.ConsumerGroup)
	p.positive("KAFKA_CONSUMER_MIN_BYTES", int64(c.Kafka.MinBytes))
	p.positive("KAFKA_CONSUMER_MAX_BYTES", int64(c.Kafka.MaxBytes))
	p.positiveDuration("KAFKA_CONSUMER_MAX_WAIT", c.Kafka.MaxWait)

	p.require("POSTGRES_URL", c.Postgres.URL)
	p.positive("POSTGRES_MAX_CONNS", int64(c.Postgres.MaxConns))
	p.positive("POSTGRES_MIN_CONNS", int64(c.Postgres.MinConns))
	p.check(c.Postgres.MinConns <= c.Postgres.MaxConns, "POSTGRES_MIN_CONNS must not exceed POSTGRES_MAX_CONNS")
	p.positiveDuration("POSTGRES_MAX_CONN_LIFETIME", c.Postgres.ConnMaxLifetime)
	p.positiveDuration("POSTGRES_MAX_CONN_IDLE_TIME", c.Postgres.ConnMaxIdleTime)
	p.check(c.Postgres.StatementTimeout >= 0, "POSTGRES_STATEMENT_TIMEOUT must not be negative")

	p.require("MONGO_URI", c.MongoDB.URI)
	p.require("MONGO_DATABASE", c.MongoDB.Database)
	p.require("MONGO_ANCHOR_COLLECTION", c.MongoDB.AnchorCollection)
	p.positiveDuration("MONGO_TIMEOUT", c.MongoDB.Timeout)
	p.check(c.MongoDB.MaxPoolSize > 0, "MONGO_MAX_POOL_SIZE must be greater than 0")

	p.require("REDIS_ADDR", c.Redis.Addr)
	p.positiveDuration("REDIS_LOCK_TTL", c.Redis.LockTTL)

	p.positiveDuration("OUTBOX_POLLING_INTERVAL", c.Outbox.PollingInterval)
	p.positive("OUTBOX_BATCH_SIZE", int64(c.Outbox.BatchSize))
	p.positive("OUTBOX_MAX_RETRY_ATTEMPTS", int64(c.Outbox.MaxRetryAttempts))

	p.positive("LEDGER_MAX_APPEND_ATTEMPTS", int64(c.Ledger.MaxAppendAttempts))
	_, tzErr := time.LoadLocation(c.Ledger.Timezone)
	p.check(tzErr == nil, "LEDGER_TIMEZONE must be a valid IANA time zone")

	p.positiveDuration("AUDIT_SWEEP_INTERVAL", c.Audit.SweepInterval)
	p.positive("AUDIT_WORKER_POOL_SIZE", int64(c.Audit.WorkerPoolSize))

	if len(p) > 0 {
		return errors.New(strings.Join(p, ", "))
	}
	return nil
}

// Location returns the ledger's reporting time zone. validate guarantees it loads.
func (c *LedgerConfig) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}
