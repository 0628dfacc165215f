// internal/common/config/loader.go
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

func Load() (*Config, error) {
	loadEnvFile()

	// Base config
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./configs")
	viper.AddConfigPath("../../configs")
	viper.AddConfigPath(".")

	// Enable ENV override like DB_PASSWORD
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	env := os.Getenv("APP_ENVIRONMENT")
	if env == "" {
		env = "development"
	}

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading base config: %w", err)
		}
	}

	// Environment-specific overlay, e.g. config.production.yaml
	envConfigFile := fmt.Sprintf("config.%s", env)
	viper.SetConfigName(envConfigFile)
	_ = viper.MergeInConfig() // ignore error if not found

	expandEnvVars(viper.GetViper())

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyDefaults(&cfg)
	overrideEmptyConfig(&cfg)

	if err := validateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// LoadFromFile loads configuration from a specific file path
func LoadFromFile(path string) (*Config, error) {
	loadEnvFile()

	viper.SetConfigFile(path)
	viper.SetConfigType("yaml")

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	expandEnvVars(viper.GetViper())

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyDefaults(&cfg)
	overrideEmptyConfig(&cfg)

	if err := validateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// loadEnvFile tries .env from the locations a binary or test may run from.
func loadEnvFile() {
	possiblePaths := []string{
		".env",
		"../.env",
		"../../.env",
		"../../../.env",
	}

	if rootDir := findProjectRoot(); rootDir != "" {
		possiblePaths = append(possiblePaths, filepath.Join(rootDir, ".env"))
	}

	for _, path := range possiblePaths {
		if _, err := os.Stat(path); err == nil {
			if err := godotenv.Load(path); err == nil {
				return
			}
		}
	}
}

// findProjectRoot walks up looking for go.mod.
func findProjectRoot() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}

	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return ""
}

// expandEnvVars resolves ${VAR} placeholders in string values.
func expandEnvVars(v *viper.Viper) {
	for _, key := range v.AllKeys() {
		val := v.Get(key)

		if strVal, ok := val.(string); ok {
			if strings.Contains(strVal, "${") || (strings.HasPrefix(strVal, "$") && len(strVal) > 1) {
				expanded := os.ExpandEnv(strVal)
				if expanded != strVal && expanded != "" {
					v.Set(key, expanded)
				}
			}
		}
	}
}

// overrideEmptyConfig fills credentials from the environment when the yaml
// left them empty.
func overrideEmptyConfig(cfg *Config) {
	if cfg.Database.Postgres.User == "" {
		if val := os.Getenv("DB_USER"); val != "" {
			cfg.Database.Postgres.User = val
		}
	}
	if cfg.Database.Postgres.Password == "" {
		if val := os.Getenv("DB_PASSWORD"); val != "" {
			cfg.Database.Postgres.Password = val
		}
	}
	if cfg.Database.Redis.Password == "" {
		if val := os.Getenv("REDIS_PASSWORD"); val != "" {
			cfg.Database.Redis.Password = val
		}
	}
	if cfg.Database.Elasticsearch.Password == "" {
		if val := os.Getenv("ES_PASSWORD"); val != "" {
			cfg.Database.Elasticsearch.Password = val
		}
	}
	if cfg.Notifications.WhatsApp.APIKey == "" {
		if val := os.Getenv("WHATSAPP_API_KEY"); val != "" {
			cfg.Notifications.WhatsApp.APIKey = val
		}
	}
	if cfg.Notifications.Voice.APIKey == "" {
		if val := os.Getenv("VOICE_API_KEY"); val != "" {
			cfg.Notifications.Voice.APIKey = val
		}
	}
}

// applyDefaults sets default values for optional configuration fields
func applyDefaults(cfg *Config) {
	if cfg.App.Name == "" {
		cfg.App.Name = "followup-engine"
	}
	if cfg.App.ListenAddr == "" {
		cfg.App.ListenAddr = ":9090"
	}

	if cfg.Engine.SweepIntervalSeconds == 0 {
		cfg.Engine.SweepIntervalSeconds = 30
	}
	if cfg.Engine.DispatchTimeoutMillis == 0 {
		cfg.Engine.DispatchTimeoutMillis = 10000
	}
	if cfg.Engine.LeaseTTLSeconds == 0 {
		cfg.Engine.LeaseTTLSeconds = 60
	}
	if cfg.Engine.DefaultSLADays == 0 {
		cfg.Engine.DefaultSLADays = 7
	}
	if len(cfg.Engine.PreDueOffsetDays) == 0 {
		cfg.Engine.PreDueOffsetDays = []int{3, 1}
	}
	if cfg.Engine.MaxRetries == 0 {
		cfg.Engine.MaxRetries = 3
	}
	if cfg.Engine.Backoff.Kind == "" {
		cfg.Engine.Backoff.Kind = "exponential"
	}
	if cfg.Engine.Backoff.BaseSeconds == 0 {
		cfg.Engine.Backoff.BaseSeconds = 300
	}
	if cfg.Engine.Backoff.Factor == 0 {
		cfg.Engine.Backoff.Factor = 2
	}
	if cfg.Engine.Backoff.MaxSeconds == 0 {
		cfg.Engine.Backoff.MaxSeconds = 86400
	}

	if cfg.Database.Postgres.MaxConnections == 0 {
		cfg.Database.Postgres.MaxConnections = 20
	}
	if cfg.Database.Postgres.MaxIdle == 0 {
		cfg.Database.Postgres.MaxIdle = 5
	}
	if cfg.Database.Postgres.SSLMode == "" {
		cfg.Database.Postgres.SSLMode = "disable"
	}
	if cfg.Database.Elasticsearch.AuditIndex == "" {
		cfg.Database.Elasticsearch.AuditIndex = "followup-audit"
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
}

// validateConfig rejects contradictory settings before anything is started.
func validateConfig(cfg *Config) error {
	switch cfg.Engine.Backoff.Kind {
	case "fixed", "exponential":
	default:
		return fmt.Errorf("engine.backoff.kind must be fixed or exponential, got %q", cfg.Engine.Backoff.Kind)
	}

	if cfg.Engine.MaxRetries < 0 {
		return fmt.Errorf("engine.max_retries must not be negative")
	}

	for _, d := range cfg.Engine.PreDueOffsetDays {
		if d < 0 {
			return fmt.Errorf("engine.pre_due_offset_days must not contain negative values")
		}
	}

	if cfg.Notifications.WhatsApp.Enabled && cfg.Notifications.WhatsApp.BaseURL == "" {
		return fmt.Errorf("notifications.whatsapp.base_url is required when whatsapp is enabled")
	}
	if cfg.Notifications.Voice.Enabled && cfg.Notifications.Voice.BaseURL == "" {
		return fmt.Errorf("notifications.voice.base_url is required when voice is enabled")
	}

	return nil
}
