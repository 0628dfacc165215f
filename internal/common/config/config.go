// internal/common/config/config.go
package config

import "fmt"

// Config is the main application configuration struct.
type Config struct {
	App           AppConfig          `mapstructure:"app"`
	Database      DatabaseConfig     `mapstructure:"database"`
	Engine        EngineConfig       `mapstructure:"engine"`
	Notifications NotificationConfig `mapstructure:"notifications"`
	Audit         AuditConfig        `mapstructure:"audit"`
	Logging       LoggingConfig      `mapstructure:"logging"`
}

// --- Core App/Infrastructure Config ---
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
	ListenAddr  string `mapstructure:"listen_addr"` // /metrics, /healthz, pprof
}

type DatabaseConfig struct {
	Postgres      PostgresConfig      `mapstructure:"postgres"`
	Redis         RedisConfig         `mapstructure:"redis"`
	Elasticsearch ElasticsearchConfig `mapstructure:"elasticsearch"`
}

type PostgresConfig struct {
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	Database       string `mapstructure:"database"`
	User           string `mapstructure:"user"`
	Password       string `mapstructure:"password"`
	MaxConnections int    `mapstructure:"max_connections"`
	MaxIdle        int    `mapstructure:"max_idle"`
	SSLMode        string `mapstructure:"sslmode"`
}

// GetDSN returns the PostgreSQL connection string
func (p PostgresConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type ElasticsearchConfig struct {
	Addresses  []string `mapstructure:"addresses"`
	Username   string   `mapstructure:"username"`
	Password   string   `mapstructure:"password"`
	AuditIndex string   `mapstructure:"audit_index"`
}

// EngineConfig holds settings for the scheduling sweeps and the reminder
// retry policy.
type EngineConfig struct {
	SweepIntervalSeconds  int           `mapstructure:"sweep_interval_seconds"`
	DispatchTimeoutMillis int           `mapstructure:"dispatch_timeout_ms"`
	LeaseTTLSeconds       int           `mapstructure:"lease_ttl_seconds"`
	DefaultSLADays        int           `mapstructure:"default_sla_days"`
	PreDueOffsetDays      []int         `mapstructure:"pre_due_offset_days"` // reminder N days before due date
	MaxRetries            int           `mapstructure:"max_retries"`
	Backoff               BackoffConfig `mapstructure:"backoff"`
}

// BackoffConfig selects the reschedule policy for failed dispatches.
// Kind is "fixed" or "exponential".
type BackoffConfig struct {
	Kind        string  `mapstructure:"kind"`
	BaseSeconds int     `mapstructure:"base_seconds"`
	Factor      float64 `mapstructure:"factor"`
	MaxSeconds  int     `mapstructure:"max_seconds"`
}

// NotificationConfig holds per-channel sender settings.
type NotificationConfig struct {
	AWS struct {
		Region string `mapstructure:"region"`
	} `mapstructure:"aws"`

	Email struct {
		Enabled   bool   `mapstructure:"enabled"`
		FromEmail string `mapstructure:"from_email"`
	} `mapstructure:"email"`

	SMS struct {
		Enabled  bool   `mapstructure:"enabled"`
		SenderID string `mapstructure:"sender_id"`
	} `mapstructure:"sms"`

	WhatsApp struct {
		Enabled bool   `mapstructure:"enabled"`
		BaseURL string `mapstructure:"base_url"`
		APIKey  string `mapstructure:"api_key"`
	} `mapstructure:"whatsapp"`

	Voice struct {
		Enabled bool   `mapstructure:"enabled"`
		BaseURL string `mapstructure:"base_url"`
		APIKey  string `mapstructure:"api_key"`
	} `mapstructure:"voice"`

	InApp struct {
		Enabled bool `mapstructure:"enabled"`
	} `mapstructure:"in_app"`
}

// AuditConfig controls the fire-and-forget audit sink.
type AuditConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}
