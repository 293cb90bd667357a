package domain

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config holds the complete polystore configuration.
type Config struct {
	// Server settings (operator API)
	Server ServerConfig `yaml:"server"`

	// Polyglot settings control routing, dual writes and caching.
	Polyglot PolyglotConfig `yaml:"polyglot"`

	// Resilience settings wrap the secondary write path.
	Resilience ResilienceConfig `yaml:"resilience"`

	// Component configurations
	Document   StoreConfig    `yaml:"document"`
	Relational StoreConfig    `yaml:"relational"`
	Cache      CacheConfig    `yaml:"cache"`
	SyncLog    SyncLogConfig  `yaml:"syncLog"`
	EventBus   EventBusConfig `yaml:"eventBus"`

	// Observability
	Logging LoggingConfig `yaml:"logging"`
}

// PolyglotConfig holds the dual-write orchestrator settings.
type PolyglotConfig struct {
	// Mode is "single" or "dual".
	Mode Mode `yaml:"mode"`

	// DefaultTarget is the backend for entity types with no explicit or
	// declared routing.
	DefaultTarget Target `yaml:"defaultTarget"`

	// EntityRouting maps entity type names to their primary backend.
	// Takes precedence over a type's own Routed declaration.
	EntityRouting map[string]Target `yaml:"entityRouting"`

	// EnableCompensation rolls back the primary insert when the paired
	// secondary write fails irrecoverably. Trades availability for
	// consistency.
	EnableCompensation bool `yaml:"enableCompensation"`

	EnableConsistencyValidation bool `yaml:"enableConsistencyValidation"`

	EnableCaching          bool `yaml:"enableCaching"`
	CacheExpirationSeconds int  `yaml:"cacheExpirationSeconds"`

	EnableSyncLogging    bool `yaml:"enableSyncLogging"`
	SyncLogRetentionDays int  `yaml:"syncLogRetentionDays"`

	// SyncMaxRetries is the retry budget recorded on each sync log entry,
	// consumed by retryFailedSyncs.
	SyncMaxRetries int `yaml:"syncMaxRetries"`
}

// ResilienceConfig holds retry, circuit breaker and timeout settings for
// secondary-backend writes.
type ResilienceConfig struct {
	// EnableResilience turns retry and circuit breaking on. When false the
	// secondary write runs once, bounded only by the timeout.
	EnableResilience bool `yaml:"enableResilience"`

	// RetryCount is the number of retries after the initial attempt.
	RetryCount int `yaml:"retryCount"`

	// RetryDelayMs is the initial backoff delay; it doubles each attempt.
	RetryDelayMs int `yaml:"retryDelayMs"`

	// CircuitBreakerFailureThreshold is the minimum number of requests in
	// the sampling window before the failure ratio is considered.
	CircuitBreakerFailureThreshold int `yaml:"circuitBreakerFailureThreshold"`

	// CircuitBreakerDurationSeconds is how long an open circuit rejects
	// attempts before half-opening.
	CircuitBreakerDurationSeconds int `yaml:"circuitBreakerDurationSeconds"`

	// SecondaryWriteTimeoutMs bounds the whole wrapped call, including
	// retry delays.
	SecondaryWriteTimeoutMs int `yaml:"secondaryWriteTimeoutMs"`
}

// SyncLogConfig holds configuration for the sync log store.
type SyncLogConfig struct {
	// Driver is "memory", "sqlite" or "postgres".
	Driver string `yaml:"driver"`

	SQLitePath string `yaml:"sqlitePath"`

	PostgresHost     string `yaml:"postgresHost"`
	PostgresPort     int    `yaml:"postgresPort"`
	PostgresUser     string `yaml:"postgresUser"`
	PostgresPassword string `yaml:"postgresPassword"`
	PostgresDB       string `yaml:"postgresDB"`
	PostgresSSLMode  string `yaml:"postgresSSLMode"`
}

// ServerConfig holds HTTP server settings for the operator API.
type ServerConfig struct {
	Host         string `yaml:"host"`
	Port         int    `yaml:"port"`
	ReadTimeout  int    `yaml:"readTimeout"`  // seconds
	WriteTimeout int    `yaml:"writeTimeout"` // seconds
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}

// DefaultConfig returns a single-node default configuration: relational
// primary on SQLite, no dual writes, in-process cache and sync log.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  30,
			WriteTimeout: 30,
		},
		Polyglot: PolyglotConfig{
			Mode:                        ModeSingleStore,
			DefaultTarget:               TargetRelational,
			EnableCompensation:          false,
			EnableConsistencyValidation: true,
			EnableCaching:               true,
			CacheExpirationSeconds:      300,
			EnableSyncLogging:           true,
			SyncLogRetentionDays:        30,
			SyncMaxRetries:              5,
		},
		Resilience: ResilienceConfig{
			EnableResilience:               true,
			RetryCount:                     3,
			RetryDelayMs:                   100,
			CircuitBreakerFailureThreshold: 5,
			CircuitBreakerDurationSeconds:  30,
			SecondaryWriteTimeoutMs:        5000,
		},
		Document: StoreConfig{
			Driver:          "mongo",
			MongoURI:        "mongodb://localhost:27017",
			MongoDatabase:   "polystore",
			MongoCollection: "entities",
		},
		Relational: StoreConfig{
			Driver:     "sqlite",
			SQLitePath: "./polystore.db",
		},
		Cache: CacheConfig{
			Type:         "memory",
			LocalMaxSize: 10000,
		},
		SyncLog: SyncLogConfig{
			Driver:     "sqlite",
			SQLitePath: "./polystore.db",
		},
		EventBus: EventBusConfig{
			Type:              "channel",
			ChannelBufferSize: 1000,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// LoadConfig reads a YAML configuration file over the defaults.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks settings a deployment cannot run without.
func (c *Config) Validate() error {
	if c.Polyglot.Mode != ModeSingleStore && c.Polyglot.Mode != ModeDualWrite {
		return fmt.Errorf("invalid mode: %s", c.Polyglot.Mode)
	}
	if !c.Polyglot.DefaultTarget.Valid() {
		return fmt.Errorf("invalid default target: %s", c.Polyglot.DefaultTarget)
	}
	for name, target := range c.Polyglot.EntityRouting {
		if !target.Valid() {
			return fmt.Errorf("invalid target %q for entity type %q", target, name)
		}
	}
	return nil
}
