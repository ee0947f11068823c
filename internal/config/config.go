package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

const defaultConfigFile = "configs/audio-relay.toml"

type Config struct {
	Server  ServerConfig  `toml:"server"`
	Upload  UploadConfig  `toml:"upload"`
	Forward ForwardConfig `toml:"forward"`
	Log     LogConfig     `toml:"log"`
	Auth    AuthConfig    `toml:"auth"`
}

type ServerConfig struct {
	Addr                   string `toml:"addr"`
	GinMode                string `toml:"gin_mode"`
	ShutdownTimeoutSeconds int    `toml:"shutdown_timeout_seconds"`
}

type UploadConfig struct {
	Folder        string `toml:"folder"`
	MaxFileSizeMB int64  `toml:"max_file_size_mb"`
	SaveLocal     bool   `toml:"save_local"`
}

type ForwardConfig struct {
	WebhookURL     string `toml:"webhook_url"`
	APIURL         string `toml:"api_url"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
	CABundle       string `toml:"ca_bundle"`
	Workers        int    `toml:"workers"`
	QueueSize      int    `toml:"queue_size"`
}

type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

type AuthConfig struct {
	JWKSUrl            string `toml:"jwks_url"`
	Issuer             string `toml:"issuer"`
	Audience           string `toml:"audience"`
	JWKSCacheTTL       int    `toml:"jwks_cache_ttl"` // seconds
	RequiredPermission string `toml:"required_permission"`
}

// Load reads defaults, then the optional TOML file named by CONFIG_FILE,
// then environment overrides. The result is validated.
func Load() (*Config, error) {
	cfg := defaultConfig()

	configPath := getEnv("CONFIG_FILE", defaultConfigFile)
	if _, err := os.Stat(configPath); err == nil {
		if _, err := toml.DecodeFile(configPath, cfg); err != nil {
			return nil, fmt.Errorf("decode config file %s: %w", configPath, err)
		}
	} else if configPath != defaultConfigFile {
		return nil, fmt.Errorf("config file %s: %w", configPath, err)
	}

	if err := overrideByEnv(cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:                   ":8000",
			GinMode:                "release",
			ShutdownTimeoutSeconds: 30,
		},
		Upload: UploadConfig{
			Folder:        "./uploads",
			MaxFileSizeMB: 50,
			SaveLocal:     false,
		},
		Forward: ForwardConfig{
			TimeoutSeconds: 30,
			Workers:        2,
			QueueSize:      64,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Auth: AuthConfig{
			JWKSCacheTTL: 900,
		},
	}
}

func overrideByEnv(cfg *Config) error {
	var err error

	cfg.Server.Addr = getEnv("HTTP_ADDR", cfg.Server.Addr)
	cfg.Server.GinMode = getEnv("GIN_MODE", cfg.Server.GinMode)
	if cfg.Server.ShutdownTimeoutSeconds, err = getEnvAsInt("SHUTDOWN_TIMEOUT", cfg.Server.ShutdownTimeoutSeconds); err != nil {
		return err
	}

	cfg.Upload.Folder = getEnv("UPLOAD_FOLDER", cfg.Upload.Folder)
	if cfg.Upload.MaxFileSizeMB, err = getEnvAsInt64("MAX_FILE_SIZE", cfg.Upload.MaxFileSizeMB); err != nil {
		return err
	}
	if cfg.Upload.SaveLocal, err = getEnvAsBool("SAVE_LOCAL", cfg.Upload.SaveLocal); err != nil {
		return err
	}

	cfg.Forward.WebhookURL = getEnv("N8N_WEBHOOK_URL", cfg.Forward.WebhookURL)
	cfg.Forward.APIURL = getEnv("FORWARD_API_URL", cfg.Forward.APIURL)
	cfg.Forward.CABundle = getEnv("FORWARD_CA_BUNDLE", cfg.Forward.CABundle)
	if cfg.Forward.TimeoutSeconds, err = getEnvAsInt("FORWARD_API_TIMEOUT", cfg.Forward.TimeoutSeconds); err != nil {
		return err
	}
	if cfg.Forward.Workers, err = getEnvAsInt("FORWARD_WORKERS", cfg.Forward.Workers); err != nil {
		return err
	}
	if cfg.Forward.QueueSize, err = getEnvAsInt("FORWARD_QUEUE_SIZE", cfg.Forward.QueueSize); err != nil {
		return err
	}

	cfg.Log.Level = getEnv("LOG_LEVEL", cfg.Log.Level)
	cfg.Log.Format = getEnv("LOG_FORMAT", cfg.Log.Format)

	cfg.Auth.JWKSUrl = getEnv("AUTH_JWKS_URL", cfg.Auth.JWKSUrl)
	cfg.Auth.Issuer = getEnv("AUTH_ISSUER", cfg.Auth.Issuer)
	cfg.Auth.Audience = getEnv("AUTH_AUDIENCE", cfg.Auth.Audience)
	cfg.Auth.RequiredPermission = getEnv("AUTH_REQUIRED_PERMISSION", cfg.Auth.RequiredPermission)
	if cfg.Auth.JWKSCacheTTL, err = getEnvAsInt("AUTH_JWKS_CACHE_TTL", cfg.Auth.JWKSCacheTTL); err != nil {
		return err
	}

	return nil
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Addr == "" {
		errs = append(errs, errors.New("server address is empty"))
	}
	switch c.Server.GinMode {
	case "debug", "release", "test":
	default:
		errs = append(errs, fmt.Errorf("gin mode must be debug, release or test, got %q", c.Server.GinMode))
	}
	if c.Server.ShutdownTimeoutSeconds <= 0 {
		errs = append(errs, fmt.Errorf("shutdown timeout must be positive, got %d", c.Server.ShutdownTimeoutSeconds))
	}
	if c.Upload.Folder == "" {
		errs = append(errs, errors.New("upload folder is empty"))
	}
	if c.Upload.MaxFileSizeMB < 0 {
		errs = append(errs, fmt.Errorf("max file size must not be negative, got %d", c.Upload.MaxFileSizeMB))
	}
	if c.Forward.TimeoutSeconds <= 0 {
		errs = append(errs, fmt.Errorf("forward timeout must be positive, got %d", c.Forward.TimeoutSeconds))
	}
	if c.Forward.Workers < 1 {
		errs = append(errs, fmt.Errorf("forward workers must be at least 1, got %d", c.Forward.Workers))
	}
	if c.Forward.QueueSize < 1 {
		errs = append(errs, fmt.Errorf("forward queue size must be at least 1, got %d", c.Forward.QueueSize))
	}
	for name, raw := range map[string]string{
		"webhook url":     c.Forward.WebhookURL,
		"forward api url": c.Forward.APIURL,
		"jwks url":        c.Auth.JWKSUrl,
	} {
		if err := validateHTTPURL(raw); err != nil {
			errs = append(errs, fmt.Errorf("invalid %s: %w", name, err))
		}
	}
	if c.AuthEnabled() && c.Auth.Issuer == "" {
		errs = append(errs, errors.New("auth issuer is required when a jwks url is set"))
	}

	return errors.Join(errs...)
}

// MaxFileSize is the upload limit in bytes; zero means unlimited.
func (c *Config) MaxFileSize() int64 {
	return c.Upload.MaxFileSizeMB * 1024 * 1024
}

func (c *Config) ForwardTimeout() time.Duration {
	return time.Duration(c.Forward.TimeoutSeconds) * time.Second
}

func (c *Config) ShutdownTimeout() time.Duration {
	return time.Duration(c.Server.ShutdownTimeoutSeconds) * time.Second
}

func (c *Config) ForwardingEnabled() bool {
	return c.Forward.WebhookURL != ""
}

func (c *Config) AuthEnabled() bool {
	return c.Auth.JWKSUrl != ""
}

func validateHTTPURL(raw string) error {
	if raw == "" {
		return nil
	}
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return errors.New("missing host")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) (int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue, nil
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return parsed, nil
}

func getEnvAsInt64(key string, defaultValue int64) (int64, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue, nil
	}
	parsed, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return parsed, nil
}

func getEnvAsBool(key string, defaultValue bool) (bool, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue, nil
	}
	parsed, err := strconv.ParseBool(strings.ToLower(raw))
	if err != nil {
		return false, fmt.Errorf("invalid %s: %w", key, err)
	}
	return parsed, nil
}
