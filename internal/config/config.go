package config

import (
	"fmt"
	"log"
	"net/url"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

const (
	// jwtSecretMinLen is the minimum length for the token signing secret.
	// HS256 keys shorter than the hash output weaken the signature.
	jwtSecretMinLen = 32

	defaultStateDir = ".reel-sync"
)

// Config holds all environment-based configuration for the reel-sync client.
type Config struct {
	// Environment controls log format
	Environment string `env:"ENVIRONMENT" envDefault:"development"`

	// TMDB catalog access. The key is only required by commands that
	// browse the catalog; favorites commands work without it.
	TMDBAPIKey    string  `env:"TMDB_API_KEY"`
	TMDBBaseURL   string  `env:"TMDB_BASE_URL" envDefault:"https://api.themoviedb.org/3"`
	TMDBRateLimit float64 `env:"TMDB_RATE_LIMIT" envDefault:"20"`

	// Remote favorites backend (reel-sync-server).
	RemoteURL string `env:"REEL_SYNC_REMOTE_URL" envDefault:"http://localhost:8095"`

	// Local state database. Defaults to ~/.reel-sync/state.db.
	StatePath string `env:"REEL_SYNC_STATE_PATH"`

	// Optional credentials used by signin/signup when flags are omitted.
	Email    string `env:"REEL_SYNC_EMAIL"`
	Password string `env:"REEL_SYNC_PASSWORD"`
}

// ServerConfig holds all environment-based configuration for reel-sync-server.
type ServerConfig struct {
	Environment  string        `env:"ENVIRONMENT" envDefault:"development"`
	ListenAddr   string        `env:"LISTEN_ADDR" envDefault:":8095"`
	DatabasePath string        `env:"DATABASE_PATH" envDefault:"reel-sync.db"`
	JWTSecret    string        `env:"JWT_SECRET"`
	TokenTTL     time.Duration `env:"TOKEN_TTL" envDefault:"720h"`
}

// warnInsecureEnvFile checks whether the .env file (if present) has
// overly permissive permissions. On Unix systems, group or world
// readable files risk exposing credentials to other users.
func warnInsecureEnvFile() {
	if runtime.GOOS == "windows" {
		return
	}

	info, err := os.Stat(".env")
	if err != nil {
		return // file does not exist, nothing to check
	}

	mode := info.Mode().Perm()
	if mode&0o077 != 0 {
		log.Printf("WARNING: .env file has insecure permissions %04o; recommended 0600", mode)
	}
}

// Load reads client configuration from environment variables.
// It first attempts to load a .env file if present, then parses env vars.
func Load() (*Config, error) {
	_ = godotenv.Load()

	warnInsecureEnvFile()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	if cfg.StatePath == "" {
		path, err := DefaultStatePath()
		if err != nil {
			return nil, err
		}

		cfg.StatePath = path
	}

	absPath, err := filepath.Abs(cfg.StatePath)
	if err != nil {
		return nil, fmt.Errorf("resolving state path to absolute path: %w", err)
	}

	cfg.StatePath = absPath

	return cfg, nil
}

func (c *Config) validate() error {
	if err := validateURL("TMDB_BASE_URL", c.TMDBBaseURL); err != nil {
		return err
	}

	if err := validateURL("REEL_SYNC_REMOTE_URL", c.RemoteURL); err != nil {
		return err
	}

	if c.TMDBRateLimit <= 0 {
		return fmt.Errorf("TMDB_RATE_LIMIT must be positive, got %v", c.TMDBRateLimit)
	}

	c.TMDBBaseURL = strings.TrimRight(c.TMDBBaseURL, "/")
	c.RemoteURL = strings.TrimRight(c.RemoteURL, "/")

	return nil
}

// RequireCatalog reports whether catalog commands can run.
func (c *Config) RequireCatalog() error {
	if c.TMDBAPIKey == "" {
		return fmt.Errorf("TMDB_API_KEY is required to browse the catalog")
	}

	return nil
}

// IsProduction returns true when the environment is set to production.
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// LoadServer reads server configuration from environment variables.
func LoadServer() (*ServerConfig, error) {
	_ = godotenv.Load()

	warnInsecureEnvFile()

	cfg := &ServerConfig{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

func (c *ServerConfig) validate() error {
	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}

	if len(c.JWTSecret) < jwtSecretMinLen {
		return fmt.Errorf("JWT_SECRET too short (minimum %d characters)", jwtSecretMinLen)
	}

	if c.TokenTTL <= 0 {
		return fmt.Errorf("TOKEN_TTL must be positive, got %s", c.TokenTTL)
	}

	if c.DatabasePath == "" {
		return fmt.Errorf("DATABASE_PATH is required")
	}

	return nil
}

// IsProduction returns true when the environment is set to production.
func (c *ServerConfig) IsProduction() bool {
	return c.Environment == "production"
}

// DefaultStatePath returns the default local state database path:
// ~/.reel-sync/state.db
func DefaultStatePath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("determining home directory: %w", err)
	}

	return filepath.Join(home, defaultStateDir, "state.db"), nil
}

func validateURL(name, raw string) error {
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("%s must be an absolute URL, got %q", name, raw)
	}

	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%s must use http or https, got %q", name, u.Scheme)
	}

	return nil
}
