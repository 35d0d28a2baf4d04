package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Provider    string            `yaml:"provider"` // "resend", "ses", or "log"
	Resend      ResendConfig      `yaml:"resend"`
	SES         SESConfig         `yaml:"ses"`
	Redis       RedisConfig       `yaml:"redis"`
	Sending     SendingConfig     `yaml:"sending"`
	Auth        AuthConfig        `yaml:"auth"`
	Unsubscribe UnsubscribeConfig `yaml:"unsubscribe"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port int    `yaml:"port"`
	Host string `yaml:"host"`
}

// GetHost returns the server host, with container detection
func (c ServerConfig) GetHost() string {
	// In a container or serverless runtime, listen on all interfaces
	if os.Getenv("ECS_CONTAINER_METADATA_URI") != "" || os.Getenv("AWS_EXECUTION_ENV") != "" || os.Getenv("VERCEL") != "" {
		return "0.0.0.0"
	}
	if host := os.Getenv("SERVER_HOST"); host != "" {
		return host
	}
	return c.Host
}

// ResendConfig holds Resend API configuration
type ResendConfig struct {
	APIKey         string `yaml:"api_key"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// Timeout returns the configured timeout as a duration
func (c ResendConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// SESConfig holds AWS SES API configuration
type SESConfig struct {
	Region         string `yaml:"region"`
	AccessKey      string `yaml:"access_key"`
	SecretKey      string `yaml:"secret_key"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// Timeout returns the configured timeout as a duration
func (c SESConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// RedisConfig holds the connection settings for the suppression store
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// SendingConfig holds campaign send policy
type SendingConfig struct {
	AllowedDomain     string `yaml:"allowed_domain"`     // sending domain suffix, e.g. "lumail.co.uk"
	FromName          string `yaml:"from_name"`          // display name on the From header
	DefaultFromEmail  string `yaml:"default_from_email"` // used when the request omits fromEmail
	AppBaseURL        string `yaml:"app_base_url"`       // base for unsubscribe links
	BatchSize         int    `yaml:"batch_size"`
	BatchPauseSeconds int    `yaml:"batch_pause_seconds"`
	ErrorReportCap    int    `yaml:"error_report_cap"`
}

// BatchPause returns the pause between batches as a duration
func (c SendingConfig) BatchPause() time.Duration {
	return time.Duration(c.BatchPauseSeconds) * time.Second
}

// AuthConfig holds identity-provider session verification settings
type AuthConfig struct {
	Enabled       bool   `yaml:"enabled"`
	SessionSecret string `yaml:"session_secret"`
}

// UnsubscribeConfig holds unsubscribe token settings
type UnsubscribeConfig struct {
	SigningSecret string `yaml:"signing_secret"`
	TTLHours      int    `yaml:"ttl_hours"`
}

// TTL returns the token lifetime as a duration
func (c UnsubscribeConfig) TTL() time.Duration {
	return time.Duration(c.TTLHours) * time.Hour
}

// Default returns a configuration with every default applied and no
// file loaded. Serverless deployments configure entirely via env vars.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

// Load reads and parses the configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	applyDefaults(&cfg)
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Provider == "" {
		cfg.Provider = "resend"
	}
	if cfg.Resend.TimeoutSeconds == 0 {
		cfg.Resend.TimeoutSeconds = 30
	}
	if cfg.SES.TimeoutSeconds == 0 {
		cfg.SES.TimeoutSeconds = 30
	}
	if cfg.SES.Region == "" {
		cfg.SES.Region = "us-east-1"
	}
	if cfg.Redis.Addr == "" {
		cfg.Redis.Addr = "localhost:6379"
	}
	if cfg.Sending.AllowedDomain == "" {
		cfg.Sending.AllowedDomain = "lumail.co.uk"
	}
	if cfg.Sending.FromName == "" {
		cfg.Sending.FromName = "Lumail"
	}
	if cfg.Sending.DefaultFromEmail == "" {
		cfg.Sending.DefaultFromEmail = "newsletter@lumail.co.uk"
	}
	if cfg.Sending.AppBaseURL == "" {
		cfg.Sending.AppBaseURL = "https://app.lumail.co.uk"
	}
	if cfg.Sending.BatchSize == 0 {
		cfg.Sending.BatchSize = 10
	}
	if cfg.Sending.BatchPauseSeconds == 0 {
		cfg.Sending.BatchPauseSeconds = 1
	}
	if cfg.Sending.ErrorReportCap == 0 {
		cfg.Sending.ErrorReportCap = 10
	}
	if cfg.Unsubscribe.TTLHours == 0 {
		cfg.Unsubscribe.TTLHours = 24
	}
}

// LoadFromEnv loads configuration with environment variable overrides.
// It automatically loads a .env file (if present) before reading env vars,
// so secrets can live in .env locally and in real env vars in production.
func LoadFromEnv(path string) (*Config, error) {
	// Load .env file if it exists (no error if missing)
	_ = godotenv.Load()

	cfg, err := Load(path)
	if os.IsNotExist(err) {
		// No config file in serverless bundles, env vars carry everything.
		cfg = Default()
	} else if err != nil {
		return nil, err
	}

	if v := os.Getenv("PROVIDER"); v != "" {
		cfg.Provider = v
	}
	if v := os.Getenv("RESEND_API_KEY"); v != "" {
		cfg.Resend.APIKey = v
	}
	if v := os.Getenv("AWS_SES_ACCESS_KEY"); v != "" {
		cfg.SES.AccessKey = v
	}
	if v := os.Getenv("AWS_SES_SECRET_KEY"); v != "" {
		cfg.SES.SecretKey = v
	}
	if v := os.Getenv("AWS_SES_REGION"); v != "" {
		cfg.SES.Region = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("REDIS_DB"); v != "" {
		if db, err := strconv.Atoi(v); err == nil {
			cfg.Redis.DB = db
		}
	}
	if v := os.Getenv("SENDING_ALLOWED_DOMAIN"); v != "" {
		cfg.Sending.AllowedDomain = v
	}
	if v := os.Getenv("APP_BASE_URL"); v != "" {
		cfg.Sending.AppBaseURL = v
	}
	if v := os.Getenv("SESSION_SECRET"); v != "" {
		cfg.Auth.SessionSecret = v
		cfg.Auth.Enabled = true
	}
	if v := os.Getenv("UNSUBSCRIBE_SIGNING_SECRET"); v != "" {
		cfg.Unsubscribe.SigningSecret = v
	}

	return cfg, nil
}
