package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure.
// It is read-only after Load() returns and thread-safe for concurrent reads.
type Config struct {
	Gateway Gateway       `yaml:"gateway"`
	API     APIConfig     `yaml:"api"`
	Storage StorageConfig `yaml:"storage"`
	Cache   CacheConfig   `yaml:"cache"`
	Backup  BackupConfig  `yaml:"backup"`
	Push    PushConfig    `yaml:"push"`
	Log     LogConfig     `yaml:"log"`
}

// Gateway contains offline gateway HTTP server settings.
type Gateway struct {
	Port            int      `yaml:"port"`
	Upstream        string   `yaml:"upstream"`
	ReadTimeout     Duration `yaml:"read_timeout"`
	WriteTimeout    Duration `yaml:"write_timeout"`
	ShutdownTimeout Duration `yaml:"shutdown_timeout"`
}

// APIConfig contains backend API settings for the request pipeline.
type APIConfig struct {
	BaseURL     string   `yaml:"base_url"`
	Timeout     Duration `yaml:"timeout"`
	RefreshPath string   `yaml:"refresh_path"`
}

// StorageConfig contains database settings.
type StorageConfig struct {
	Path string `yaml:"path"`
}

// CacheConfig contains offline cache settings.
type CacheConfig struct {
	Generation      string   `yaml:"generation"`
	APITTL          Duration `yaml:"api_ttl"`
	JanitorInterval Duration `yaml:"janitor_interval"`
	Precache        []string `yaml:"precache"`
}

// BackupConfig contains S3-compatible state backup settings.
// Backup is disabled when Bucket is empty.
type BackupConfig struct {
	Endpoint  string   `yaml:"endpoint"`
	Bucket    string   `yaml:"bucket"`
	AccessKey string   `yaml:"-"` // env-only, never in YAML
	SecretKey string   `yaml:"-"` // env-only, never in YAML
	Region    string   `yaml:"region"`
	UseSSL    *bool    `yaml:"use_ssl"`
	Interval  Duration `yaml:"interval"`
}

// PushConfig contains the VAPID identity for web push delivery.
// Push sending is disabled when any field is empty.
type PushConfig struct {
	Subscriber string `yaml:"subscriber"`
	PublicKey  string `yaml:"public_key"`
	PrivateKey string `yaml:"-"` // env-only, never in YAML
}

// LogConfig contains logging settings.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Duration is a wrapper around time.Duration that supports YAML string parsing.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler for Duration.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler for Duration.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Load loads configuration with precedence: defaults → YAML file → env vars.
// Returns an immutable Config suitable for concurrent read access.
func Load() (*Config, error) {
	cfg := newDefaults()

	// Determine config path
	configPath := getEnv("SPARKSHELL_CONFIG_PATH", "config/sparkshell.yaml")

	// Load YAML file if it exists (missing file is not an error)
	if err := loadYAMLFile(cfg, configPath); err != nil {
		return nil, err
	}

	// Apply environment variable overrides
	applyEnvOverrides(cfg)

	// Validate configuration
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LoadFromFile loads configuration from a specific path.
// Used for testing and explicit path specification.
func LoadFromFile(path string) (*Config, error) {
	cfg := newDefaults()

	// Load YAML file (file must exist for this function)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// newDefaults returns a Config with all default values.
func newDefaults() *Config {
	return &Config{
		Gateway: Gateway{
			Port:            8099,
			Upstream:        "http://localhost:8080",
			ReadTimeout:     Duration(30 * time.Second),
			WriteTimeout:    Duration(30 * time.Second),
			ShutdownTimeout: Duration(15 * time.Second),
		},
		API: APIConfig{
			BaseURL:     "http://localhost:8080/api/v1",
			Timeout:     Duration(10 * time.Second),
			RefreshPath: "/auth/refresh",
		},
		Storage: StorageConfig{
			Path: "data/sparkshell.db",
		},
		Cache: CacheConfig{
			Generation:      "spark-v1",
			APITTL:          Duration(10 * time.Minute),
			JanitorInterval: Duration(1 * time.Minute),
			Precache: []string{
				"/",
				"/index.html",
				"/src/main.tsx",
				"/src/App.tsx",
				"/manifest.json",
			},
		},
		Backup: BackupConfig{
			Interval: Duration(1 * time.Hour),
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// loadYAMLFile loads configuration from a YAML file if it exists.
// Missing file is not an error; we just use defaults.
func loadYAMLFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			// Missing file is OK; use defaults
			return nil
		}
		return fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parsing config file: %w", err)
	}

	return nil
}

// applyEnvOverrides applies environment variable overrides to the config.
// Only non-empty env vars override config values.
func applyEnvOverrides(cfg *Config) {
	// Gateway
	if v := os.Getenv("SPARKSHELL_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Gateway.Port = port
		}
	}
	if v := os.Getenv("SPARKSHELL_UPSTREAM"); v != "" {
		cfg.Gateway.Upstream = v
	}
	if v := os.Getenv("SPARKSHELL_READ_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Gateway.ReadTimeout = Duration(d)
		}
	}
	if v := os.Getenv("SPARKSHELL_WRITE_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Gateway.WriteTimeout = Duration(d)
		}
	}
	if v := os.Getenv("SPARKSHELL_SHUTDOWN_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Gateway.ShutdownTimeout = Duration(d)
		}
	}

	// API
	if v := os.Getenv("SPARKSHELL_API_BASE_URL"); v != "" {
		cfg.API.BaseURL = v
	}
	if v := os.Getenv("SPARKSHELL_API_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.API.Timeout = Duration(d)
		}
	}

	// Storage
	if v := os.Getenv("SPARKSHELL_DB_PATH"); v != "" {
		cfg.Storage.Path = v
	}

	// Cache
	if v := os.Getenv("SPARKSHELL_CACHE_GENERATION"); v != "" {
		cfg.Cache.Generation = v
	}
	if v := os.Getenv("SPARKSHELL_API_CACHE_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Cache.APITTL = Duration(d)
		}
	}
	if v := os.Getenv("SPARKSHELL_JANITOR_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Cache.JanitorInterval = Duration(d)
		}
	}

	// Backup
	if v := os.Getenv("SPARKSHELL_BACKUP_ENDPOINT"); v != "" {
		cfg.Backup.Endpoint = v
	}
	if v := os.Getenv("SPARKSHELL_BACKUP_BUCKET"); v != "" {
		cfg.Backup.Bucket = v
	}
	if v := os.Getenv("SPARKSHELL_BACKUP_ACCESS_KEY"); v != "" {
		cfg.Backup.AccessKey = v
	}
	if v := os.Getenv("SPARKSHELL_BACKUP_SECRET_KEY"); v != "" {
		cfg.Backup.SecretKey = v
	}
	if v := os.Getenv("SPARKSHELL_BACKUP_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Backup.Interval = Duration(d)
		}
	}

	// Push
	if v := os.Getenv("SPARKSHELL_VAPID_SUBJECT"); v != "" {
		cfg.Push.Subscriber = v
	}
	if v := os.Getenv("SPARKSHELL_VAPID_PUBLIC_KEY"); v != "" {
		cfg.Push.PublicKey = v
	}
	if v := os.Getenv("SPARKSHELL_VAPID_PRIVATE_KEY"); v != "" {
		cfg.Push.PrivateKey = v
	}

	// Log
	if v := os.Getenv("SPARKSHELL_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("SPARKSHELL_LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
}

// validate checks that required configuration values are set.
func (c *Config) validate() error {
	if c.API.BaseURL == "" {
		return errors.New("api.base_url is required")
	}
	if c.Gateway.Upstream == "" {
		return errors.New("gateway.upstream is required")
	}
	if c.Cache.Generation == "" {
		return errors.New("cache.generation is required")
	}
	if c.Backup.Bucket != "" && c.Backup.Endpoint == "" {
		return errors.New("backup.endpoint is required when backup.bucket is set")
	}
	return nil
}

// getEnv returns the value of an environment variable or a default.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
