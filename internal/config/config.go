package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config represents the application configuration
type Config struct {
	Database DatabaseConfig `json:"database" envPrefix:"ASKDB_"`
	Cache    CacheConfig    `json:"cache"    envPrefix:"ASKDB_"`
	LLM      LLMConfig      `json:"llm"      envPrefix:"ASKDB_"`
	History  HistoryConfig  `json:"history"  envPrefix:"ASKDB_"`
	Logging  LoggingConfig  `json:"logging"  envPrefix:"ASKDB_"`
}

// DatabaseConfig represents target database configuration
type DatabaseConfig struct {
	Dialect         string `json:"dialect"            env:"DB_DIALECT"           envDefault:"sqlite"` // sqlite, mysql, postgres
	DSN             string `json:"dsn"                env:"DB_DSN"               envDefault:"~/.config/askdb/askdb.db"`
	MaxConnections  int    `json:"max_connections"    env:"DB_MAX_CONNECTIONS"   envDefault:"10"`
	MaxIdleConns    int    `json:"max_idle_conns"     env:"DB_MAX_IDLE_CONNS"    envDefault:"5"`
	ConnMaxLifetime string `json:"conn_max_lifetime"  env:"DB_CONN_MAX_LIFETIME" envDefault:"30m"`
	QueryTimeout    string `json:"query_timeout"      env:"DB_QUERY_TIMEOUT"     envDefault:"30s"`
	MaxRows         int    `json:"max_rows"           env:"DB_MAX_ROWS"          envDefault:"1000"`
}

// CacheConfig represents schema cache configuration
type CacheConfig struct {
	Capacity int    `json:"capacity"    env:"CACHE_CAPACITY"    envDefault:"32"`
	TTL      string `json:"ttl"         env:"CACHE_TTL"         envDefault:"5m"`
}

// LLMConfig represents the AI collaborator configuration
type LLMConfig struct {
	Provider      string  `json:"provider"        env:"LLM_PROVIDER"        envDefault:"openai"` // openai, anthropic, ollama
	Model         string  `json:"model"           env:"LLM_MODEL"           envDefault:"gpt-4o-mini"`
	APIKey        string  `json:"api_key"         env:"LLM_API_KEY"`
	BaseURL       string  `json:"base_url"        env:"LLM_BASE_URL"`
	MaxTokens     int     `json:"max_tokens"      env:"LLM_MAX_TOKENS"      envDefault:"1000"`
	Temperature   float64 `json:"temperature"     env:"LLM_TEMPERATURE"     envDefault:"0.1"`
	Timeout       string  `json:"timeout"         env:"LLM_TIMEOUT"         envDefault:"60s"`
	RetryAttempts int     `json:"retry_attempts"  env:"LLM_RETRY_ATTEMPTS"  envDefault:"3"`
	RetryDelay    string  `json:"retry_delay"     env:"LLM_RETRY_DELAY"     envDefault:"500ms"`
}

// HistoryConfig represents query history configuration
type HistoryConfig struct {
	Backend    string `json:"backend"     env:"HISTORY_BACKEND"     envDefault:"memory"` // memory, sqlite
	Path       string `json:"path"        env:"HISTORY_PATH"        envDefault:"~/.config/askdb/history.db"`
	MaxEntries int    `json:"max_entries" env:"HISTORY_MAX_ENTRIES" envDefault:"500"`
}

// LoggingConfig represents logging configuration
type LoggingConfig struct {
	Level  string `json:"level"  env:"LOG_LEVEL"  envDefault:"info"`   // debug, info, warn, error
	Format string `json:"format" env:"LOG_FORMAT" envDefault:"text"`   // text, json
	Output string `json:"output" env:"LOG_OUTPUT" envDefault:"stderr"` // stdout, stderr, file
	File   string `json:"file"   env:"LOG_FILE"   envDefault:"~/.config/askdb/logs/askdb.log"`
}

// LoadConfig loads configuration from file and environment variables
func LoadConfig() (*Config, error) {
	return LoadConfigWithOverrides(nil)
}

// LoadConfigWithOverrides loads configuration with optional command-line flag overrides
func LoadConfigWithOverrides(flagOverrides map[string]interface{}) (*Config, error) {
	config := &Config{}

	// Load from config file if it exists
	configPath := getConfigPath()
	if _, err := os.Stat(configPath); err == nil {
		if err := loadConfigFromFile(config, configPath); err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	}

	// Apply environment variable overrides using env library (also sets defaults)
	if err := env.ParseWithOptions(config, env.Options{
		Prefix: "ASKDB_",
	}); err != nil {
		return nil, fmt.Errorf("failed to parse environment variables: %w", err)
	}

	// Apply command-line flag overrides
	if flagOverrides != nil {
		applyFlagOverrides(config, flagOverrides)
	}

	if err := validateConfig(config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

// loadConfigFromFile loads configuration from a JSON file
func loadConfigFromFile(config *Config, configPath string) error {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	var fileConfig Config
	if err := json.Unmarshal(data, &fileConfig); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	mergeConfigs(config, &fileConfig)

	return nil
}

// applyFlagOverrides applies command-line flag overrides to configuration
func applyFlagOverrides(config *Config, overrides map[string]interface{}) {
	for key, value := range overrides {
		switch key {
		case "dialect":
			if str, ok := value.(string); ok && str != "" {
				config.Database.Dialect = str
			}
		case "dsn":
			if str, ok := value.(string); ok && str != "" {
				config.Database.DSN = str
			}
		case "log-level":
			if str, ok := value.(string); ok && str != "" {
				config.Logging.Level = str
			}
		case "model":
			if str, ok := value.(string); ok && str != "" {
				config.LLM.Model = str
			}
		case "provider":
			if str, ok := value.(string); ok && str != "" {
				config.LLM.Provider = str
			}
		case "max-rows":
			if n, ok := value.(int); ok && n > 0 {
				config.Database.MaxRows = n
			}
		}
	}
}

// mergeConfigs merges source configuration into target configuration
func mergeConfigs(target, source *Config) {
	var mergeValues func(t, s reflect.Value)
	mergeValues = func(t, s reflect.Value) {
		if t.Kind() != s.Kind() {
			return
		}

		if t.Kind() == reflect.Struct {
			for i := 0; i < s.NumField(); i++ {
				mergeValues(t.Field(i), s.Field(i))
			}
		} else if !s.IsZero() {
			t.Set(s)
		}
	}

	mergeValues(reflect.ValueOf(target).Elem(), reflect.ValueOf(source).Elem())
}

// validateConfig validates the configuration for common errors
func validateConfig(config *Config) error {
	validDialects := map[string]bool{
		"sqlite": true, "mysql": true, "postgres": true,
	}
	if !validDialects[strings.ToLower(config.Database.Dialect)] {
		return fmt.Errorf(
			"invalid dialect: %s (must be sqlite, mysql, or postgres)",
			config.Database.Dialect,
		)
	}

	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLogLevels[strings.ToLower(config.Logging.Level)] {
		return fmt.Errorf(
			"invalid log level: %s (must be debug, info, warn, or error)",
			config.Logging.Level,
		)
	}

	validLogFormats := map[string]bool{"text": true, "json": true}
	if !validLogFormats[strings.ToLower(config.Logging.Format)] {
		return fmt.Errorf("invalid log format: %s (must be text or json)", config.Logging.Format)
	}

	validLogOutputs := map[string]bool{"stdout": true, "stderr": true, "file": true}
	if !validLogOutputs[strings.ToLower(config.Logging.Output)] {
		return fmt.Errorf(
			"invalid log output: %s (must be stdout, stderr, or file)",
			config.Logging.Output,
		)
	}

	validProviders := map[string]bool{"openai": true, "anthropic": true, "ollama": true}
	if !validProviders[strings.ToLower(config.LLM.Provider)] {
		return fmt.Errorf(
			"invalid LLM provider: %s (must be openai, anthropic, or ollama)",
			config.LLM.Provider,
		)
	}

	validHistoryBackends := map[string]bool{"memory": true, "sqlite": true}
	if !validHistoryBackends[strings.ToLower(config.History.Backend)] {
		return fmt.Errorf(
			"invalid history backend: %s (must be memory or sqlite)",
			config.History.Backend,
		)
	}

	for name, value := range map[string]string{
		"database query timeout": config.Database.QueryTimeout,
		"cache TTL":              config.Cache.TTL,
		"LLM timeout":            config.LLM.Timeout,
		"LLM retry delay":        config.LLM.RetryDelay,
	} {
		if _, err := time.ParseDuration(value); err != nil {
			return fmt.Errorf("invalid %s: %s", name, value)
		}
	}

	if config.Database.MaxConnections <= 0 {
		return fmt.Errorf(
			"database max connections must be positive: %d",
			config.Database.MaxConnections,
		)
	}

	if config.Database.MaxRows <= 0 {
		return fmt.Errorf("database max rows must be positive: %d", config.Database.MaxRows)
	}

	if config.Cache.Capacity <= 0 {
		return fmt.Errorf("cache capacity must be positive: %d", config.Cache.Capacity)
	}

	return nil
}

// SaveConfig saves configuration to file
func SaveConfig(config *Config) error {
	configPath := getConfigPath()

	if err := os.MkdirAll(filepath.Dir(configPath), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(config, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// getConfigPath returns the path to the configuration file
func getConfigPath() string {
	if configPath := os.Getenv("ASKDB_CONFIG"); configPath != "" {
		return expandPath(configPath)
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "./config.json"
	}

	return filepath.Join(homeDir, ".config", "askdb", "config.json")
}

// expandPath expands ~ to home directory in file paths
func expandPath(path string) string {
	if !strings.HasPrefix(path, "~") {
		return path
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return path
	}

	if path == "~" {
		return homeDir
	}

	if strings.HasPrefix(path, "~/") {
		return filepath.Join(homeDir, path[2:])
	}

	return path
}

// ExpandAllPaths expands all paths in the configuration
func (c *Config) ExpandAllPaths() {
	// Only the sqlite dialect uses a filesystem DSN; network DSNs pass through.
	if strings.ToLower(c.Database.Dialect) == "sqlite" {
		c.Database.DSN = expandPath(c.Database.DSN)
	}

	c.History.Path = expandPath(c.History.Path)
	c.Logging.File = expandPath(c.Logging.File)
}

// QueryTimeoutDuration returns the parsed query timeout
func (c *DatabaseConfig) QueryTimeoutDuration() time.Duration {
	d, err := time.ParseDuration(c.QueryTimeout)
	if err != nil {
		return 30 * time.Second
	}

	return d
}

// TTLDuration returns the parsed cache TTL
func (c *CacheConfig) TTLDuration() time.Duration {
	d, err := time.ParseDuration(c.TTL)
	if err != nil {
		return 5 * time.Minute
	}

	return d
}

// TimeoutDuration returns the parsed LLM call timeout
func (c *LLMConfig) TimeoutDuration() time.Duration {
	d, err := time.ParseDuration(c.Timeout)
	if err != nil {
		return 60 * time.Second
	}

	return d
}

// RetryDelayDuration returns the parsed initial retry delay
func (c *LLMConfig) RetryDelayDuration() time.Duration {
	d, err := time.ParseDuration(c.RetryDelay)
	if err != nil {
		return 500 * time.Millisecond
	}

	return d
}
