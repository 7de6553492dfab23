package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/goccy/go-yaml"
)

// Common errors
var (
	ErrMissingDatabaseURL = errors.New("DATABASE_URL environment variable is required")
	ErrMissingJWTSecret   = errors.New("JWT_SECRET environment variable is required")
)

// Config holds everything the server needs at startup. It is built once in
// main and handed to the packages that need it; nothing reads the
// environment after Load returns.
type Config struct {
	Port        string
	DatabaseURL string
	RedisAddr   string
	JWTSecret   string

	SMTPHost string
	SMTPPort string
	SMTPUser string
	SMTPPass string
	MailFrom string

	ImageKitPrivateKey string
	ImageKitEndpoint   string

	PushEndpoint string

	// Loaded from config.yaml when present.
	AllowedOrigins  []string
	LoginRatePerMin int
}

// fileConfig is the optional config.yaml shape. Only deploy-specific knobs
// live here; secrets stay in the environment.
type fileConfig struct {
	AllowedOrigins  []string `yaml:"allowed_origins"`
	LoginRatePerMin int      `yaml:"login_rate_per_min"`
}

const DefaultImageKitEndpoint = "https://api.imagekit.io/v1"
const DefaultPushEndpoint = "https://exp.host/--/api/v2/push/send"

// Load reads configuration from environment variables, then overlays the
// optional YAML file at path (ignored if path is empty or the file is
// missing).
func Load(path string) (Config, error) {
	cfg := Config{
		Port:               os.Getenv("PORT"),
		DatabaseURL:        os.Getenv("DATABASE_URL"),
		RedisAddr:          os.Getenv("REDIS_ADDR"),
		JWTSecret:          os.Getenv("JWT_SECRET"),
		SMTPHost:           os.Getenv("SMTP_HOST"),
		SMTPPort:           os.Getenv("SMTP_PORT"),
		SMTPUser:           os.Getenv("SMTP_USER"),
		SMTPPass:           os.Getenv("SMTP_PASS"),
		MailFrom:           os.Getenv("MAIL_FROM"),
		ImageKitPrivateKey: os.Getenv("IMAGEKIT_PRIVATE_KEY"),
		ImageKitEndpoint:   os.Getenv("IMAGEKIT_ENDPOINT"),
		PushEndpoint:       os.Getenv("PUSH_ENDPOINT"),
		LoginRatePerMin:    10,
	}

	if cfg.Port == "" {
		cfg.Port = "5050"
	}
	if cfg.RedisAddr == "" {
		cfg.RedisAddr = "localhost:6379"
	}
	if cfg.ImageKitEndpoint == "" {
		cfg.ImageKitEndpoint = DefaultImageKitEndpoint
	}
	if cfg.PushEndpoint == "" {
		cfg.PushEndpoint = DefaultPushEndpoint
	}
	if cfg.MailFrom == "" {
		cfg.MailFrom = cfg.SMTPUser
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err == nil {
			var fc fileConfig
			if err := yaml.Unmarshal(data, &fc); err != nil {
				return Config{}, fmt.Errorf("parsing %s: %w", path, err)
			}
			if len(fc.AllowedOrigins) > 0 {
				cfg.AllowedOrigins = fc.AllowedOrigins
			}
			if fc.LoginRatePerMin > 0 {
				cfg.LoginRatePerMin = fc.LoginRatePerMin
			}
		} else if !os.IsNotExist(err) {
			return Config{}, fmt.Errorf("reading %s: %w", path, err)
		}
	}

	return cfg, nil
}

// Validate checks the settings the server cannot run without.
func (c Config) Validate() error {
	if c.DatabaseURL == "" {
		return ErrMissingDatabaseURL
	}
	if c.JWTSecret == "" {
		return ErrMissingJWTSecret
	}
	return nil
}
