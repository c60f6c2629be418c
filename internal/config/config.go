package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds backend service configuration, loaded from environment.
type Config struct {
	DatabaseURL string `env:"DATABASE_URL"`

	PostgresUser     string `env:"POSTGRES_USER" envDefault:"agentchain"`
	PostgresPassword string `env:"POSTGRES_PASSWORD" envDefault:"agentchain_pass"`
	PostgresDB       string `env:"POSTGRES_DB" envDefault:"agentchain"`
	PostgresHost     string `env:"POSTGRES_HOST" envDefault:"localhost"`
	PostgresPort     string `env:"POSTGRES_PORT" envDefault:"5432"`
	PostgresSSLMode  string `env:"DATABASE_SSLMODE" envDefault:"disable"`

	ServerAddr    string `env:"SERVER_ADDR" envDefault:"0.0.0.0:8080"`
	MigrationsDir string `env:"MIGRATIONS_DIR" envDefault:"internal/migrations"`

	AuthSecret          string        `env:"AUTH_SECRET"`
	AccessTokenTTL      time.Duration `env:"ACCESS_TOKEN_TTL" envDefault:"15m"`
	RefreshTokenTTL     time.Duration `env:"REFRESH_TOKEN_TTL" envDefault:"720h"`
	LoginNonceTTL       time.Duration `env:"LOGIN_NONCE_TTL" envDefault:"5m"`
	RefreshCookieName   string        `env:"REFRESH_COOKIE_NAME" envDefault:"agentchain_refresh"`
	RefreshCookieSecure bool          `env:"REFRESH_COOKIE_SECURE" envDefault:"false"`

	BlobDir        string `env:"BLOB_DIR" envDefault:"tmp/blobs"`
	MaxUploadBytes int64  `env:"MAX_UPLOAD_BYTES" envDefault:"104857600"`
	TermsPolicy    string `env:"TERMS_POLICY"`

	ChainRPCURL string `env:"CHAIN_RPC_URL" envDefault:"http://127.0.0.1:18080"`
}

// Load reads configuration from environment.
func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, err
	}
	if cfg.DatabaseURL == "" {
		cfg.DatabaseURL = fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
			cfg.PostgresUser, cfg.PostgresPassword, cfg.PostgresHost, cfg.PostgresPort, cfg.PostgresDB, cfg.PostgresSSLMode)
	}
	if cfg.AuthSecret == "" {
		return nil, errors.New("AUTH_SECRET is required")
	}
	return &cfg, nil
}
