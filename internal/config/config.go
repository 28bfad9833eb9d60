package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// DefaultEnvFiles are read, when present, before the process environment.
var DefaultEnvFiles = []string{".env", ".env.local"}

type Config struct {
	Addr        string `env:"API_ADDR" envDefault:":8787"`
	DatabaseURL string `env:"DATABASE_URL" envDefault:"sqlite:./data/navtree.db"`
	CORSOrigin  string `env:"CORS_ORIGIN" envDefault:"*"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat   string `env:"LOG_FORMAT" envDefault:"json"`

	// Redis backs the tree cache and refresh notifications when set.
	RedisURL      string `env:"REDIS_URL"`
	NotifyChannel string `env:"NOTIFY_CHANNEL" envDefault:"navtree:menu-refresh"`

	Cache CacheOptions `envPrefix:"MENU_CACHE_"`

	MeiliURL       string `env:"MEILI_URL"`
	MeiliMasterKey string `env:"MEILI_MASTER_KEY"`

	S3 S3Options `envPrefix:"S3_"`
}

type CacheOptions struct {
	Enabled bool          `env:"ENABLED" envDefault:"true"`
	TTL     time.Duration `env:"TTL" envDefault:"1h"`
	Key     string        `env:"KEY" envDefault:"menu_tree"`
	// Backend is "redis" or "memory"; empty picks redis when REDIS_URL is set.
	Backend string `env:"BACKEND"`
}

type S3Options struct {
	Endpoint  string `env:"ENDPOINT"`
	AccessKey string `env:"ACCESS_KEY"`
	SecretKey string `env:"SECRET_KEY"`
	Bucket    string `env:"BUCKET" envDefault:"navtree-snapshots"`
	UseSSL    bool   `env:"USE_SSL" envDefault:"false"`
}

// Load reads DefaultEnvFiles and the environment.
func Load() (Config, error) {
	return LoadFiles(DefaultEnvFiles)
}

// LoadFiles reads the given env files (missing ones are skipped) and then
// parses the environment into a Config.
func LoadFiles(envFiles []string) (Config, error) {
	if _, err := LoadEnv(envFiles); err != nil {
		return Config{}, fmt.Errorf("load env files: %w", err)
	}
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadEnv loads the env files that exist and returns how many were read.
// Variables already set in the process win over file values.
func LoadEnv(envFiles []string) (int, error) {
	existing := make([]string, 0, len(envFiles))
	for _, file := range envFiles {
		if info, err := os.Stat(file); err == nil && !info.IsDir() {
			existing = append(existing, file)
		}
	}
	if len(existing) == 0 {
		return 0, nil
	}
	return len(existing), godotenv.Load(existing...)
}

func (c Config) Validate() error {
	switch c.CacheBackend() {
	case "redis", "memory":
	default:
		return fmt.Errorf("MENU_CACHE_BACKEND must be redis or memory, got %q", c.Cache.Backend)
	}
	if c.CacheBackend() == "redis" && c.RedisURL == "" {
		return fmt.Errorf("MENU_CACHE_BACKEND=redis needs REDIS_URL")
	}
	if c.Cache.TTL < 0 {
		return fmt.Errorf("MENU_CACHE_TTL must not be negative")
	}
	return nil
}

// CacheBackend resolves the configured backend name.
func (c Config) CacheBackend() string {
	backend := strings.ToLower(strings.TrimSpace(c.Cache.Backend))
	if backend != "" {
		return backend
	}
	if c.RedisURL != "" {
		return "redis"
	}
	return "memory"
}

func (c Config) SearchEnabled() bool {
	return c.MeiliURL != ""
}

func (c Config) SnapshotsEnabled() bool {
	return c.S3.Endpoint != ""
}
