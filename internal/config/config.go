// Package config loads process configuration from KZ_* environment
// variables, with command line flags taking precedence.
package config

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/spf13/pflag"
)

type Config struct {
	ListenAddr   string `env:"LISTEN_ADDR" envDefault:":42069"`
	DatabasePath string `env:"DATABASE_PATH" envDefault:"data/cs2kz.db"`

	// JWTSecret signs every token. When empty, a random secret is generated
	// once and persisted to JWTSecretFile.
	JWTSecret     string `env:"JWT_SECRET"`
	JWTSecretFile string `env:"JWT_SECRET_FILE" envDefault:"data/.sk"`

	ServerTokenTTL time.Duration `env:"SERVER_TOKEN_TTL" envDefault:"15m"`
	SessionTTL     time.Duration `env:"SESSION_TTL" envDefault:"168h"`

	CookieDomain    string `env:"COOKIE_DOMAIN"`
	CookieSecure    bool   `env:"COOKIE_SECURE" envDefault:"true"`
	DashboardOrigin string `env:"DASHBOARD_ORIGIN"`

	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"text"`

	TelegramBotToken string `env:"TELEGRAM_BOT_TOKEN"`
	TelegramChatID   int64  `env:"TELEGRAM_CHAT_ID"`

	BootstrapAdminID       uint64 `env:"BOOTSTRAP_ADMIN_ID"`
	BootstrapAdminPassword string `env:"BOOTSTRAP_ADMIN_PASSWORD"`

	JanitorInterval time.Duration `env:"JANITOR_INTERVAL" envDefault:"1h"`
}

// Load reads KZ_* variables and then applies any flags present in args.
func Load(args []string) (Config, error) {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: "KZ_"}); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}

	flags := pflag.NewFlagSet("cs2kz-api", pflag.ContinueOnError)
	flags.StringVar(&cfg.ListenAddr, "listen", cfg.ListenAddr, "address to listen on")
	flags.StringVar(&cfg.DatabasePath, "db", cfg.DatabasePath, "path to the SQLite database")
	flags.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level (debug, info, warn, error)")
	flags.StringVar(&cfg.LogFormat, "log-format", cfg.LogFormat, "log format (text, json)")
	flags.StringVar(&cfg.DashboardOrigin, "dashboard-origin", cfg.DashboardOrigin, "origin allowed to make credentialed requests")
	if err := flags.Parse(args); err != nil {
		return Config{}, err
	}
	if flags.NArg() > 0 {
		return Config{}, fmt.Errorf("unexpected argument: %s", flags.Arg(0))
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if c.ServerTokenTTL <= 0 {
		return errors.New("KZ_SERVER_TOKEN_TTL must be positive")
	}
	if c.SessionTTL <= 0 {
		return errors.New("KZ_SESSION_TTL must be positive")
	}
	if c.JanitorInterval <= 0 {
		return errors.New("KZ_JANITOR_INTERVAL must be positive")
	}
	if c.TelegramBotToken != "" && c.TelegramChatID == 0 {
		return errors.New("KZ_TELEGRAM_CHAT_ID is required when a bot token is set")
	}
	if (c.BootstrapAdminID == 0) != (c.BootstrapAdminPassword == "") {
		return errors.New("KZ_BOOTSTRAP_ADMIN_ID and KZ_BOOTSTRAP_ADMIN_PASSWORD must be set together")
	}
	return nil
}

// Secret returns the configured signing secret, falling back to the
// persisted one and creating it on first start.
func (c Config) Secret() (string, error) {
	if c.JWTSecret != "" {
		return c.JWTSecret, nil
	}
	return loadOrCreateSecret(c.JWTSecretFile)
}

func loadOrCreateSecret(path string) (string, error) {
	b, err := os.ReadFile(path)
	if err == nil {
		if len(b) == 0 {
			return "", fmt.Errorf("secret file %s is empty", path)
		}
		return string(b), nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return "", fmt.Errorf("read secret file: %w", err)
	}

	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate secret: %w", err)
	}
	secret := hex.EncodeToString(buf)

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return "", fmt.Errorf("create secret dir: %w", err)
	}
	if err := os.WriteFile(path, []byte(secret), 0o600); err != nil {
		return "", fmt.Errorf("write secret file: %w", err)
	}
	return secret, nil
}
