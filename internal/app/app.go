// Package app assembles the API from its parts and runs it.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"gorm.io/gorm"

	"cs2kz-api/internal/api/middleware"
	"cs2kz-api/internal/api/websocket"
	"cs2kz-api/internal/audit"
	"cs2kz-api/internal/auth"
	"cs2kz-api/internal/ban"
	"cs2kz-api/internal/bot"
	"cs2kz-api/internal/config"
	"cs2kz-api/internal/janitor"
	"cs2kz-api/internal/model"
	"cs2kz-api/internal/store"
)

const shutdownTimeout = 10 * time.Second

// State is everything a request handler may depend on.
type State struct {
	Config config.Config
	Logger *slog.Logger

	DB    *gorm.DB
	Codec *auth.Codec
	Sink  *audit.Sink
	Hub   *websocket.Hub
	Bans  *ban.Manager
	Authn *middleware.Authenticator

	// Bot is nil unless a Telegram token is configured.
	Bot *bot.BotHandler
}

// New opens storage and builds the application state.
func New(cfg config.Config, logger *slog.Logger) (*State, error) {
	secret, err := cfg.Secret()
	if err != nil {
		return nil, err
	}

	if dir := filepath.Dir(cfg.DatabasePath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
	}
	db, err := store.Open(cfg.DatabasePath, logger)
	if err != nil {
		return nil, err
	}
	if err := store.Migrate(db); err != nil {
		store.Close(db)
		return nil, err
	}
	if err := seedAdmin(db, cfg, logger); err != nil {
		store.Close(db)
		return nil, err
	}

	hub := websocket.NewHub(logger.With("component", "audit_feed"))
	sink := audit.NewSink(logger, hub)
	bans := ban.NewManager(db, sink, logger.With("component", "bans"))
	codec := auth.NewCodec(secret)

	s := &State{
		Config: cfg,
		Logger: logger,
		DB:     db,
		Codec:  codec,
		Sink:   sink,
		Hub:    hub,
		Bans:   bans,
		Authn: &middleware.Authenticator{
			DB:    db,
			Codec: codec,
			Cookies: auth.CookieOptions{
				Domain: cfg.CookieDomain,
				Secure: cfg.CookieSecure,
			},
			Logger: logger.With("component", "auth"),
		},
	}

	if cfg.TelegramBotToken != "" {
		b, err := bot.NewBotHandler(cfg.TelegramBotToken, cfg.TelegramChatID, bans, logger)
		if err != nil {
			store.Close(db)
			return nil, err
		}
		sink.Subscribe(b)
		s.Bot = b
	} else {
		logger.Info("telegram bot token not configured, skipping bot initialization")
	}

	return s, nil
}

func (s *State) Close() error {
	return store.Close(s.DB)
}

// seedAdmin makes sure the configured bootstrap operator exists with every
// permission. An existing player is left untouched.
func seedAdmin(db *gorm.DB, cfg config.Config, logger *slog.Logger) error {
	if cfg.BootstrapAdminID == 0 {
		return nil
	}

	var count int64
	if err := db.Model(&model.Player{}).Where("id = ?", cfg.BootstrapAdminID).Count(&count).Error; err != nil {
		return fmt.Errorf("look up bootstrap admin: %w", err)
	}
	if count > 0 {
		return nil
	}

	admin := model.Player{
		ID:          cfg.BootstrapAdminID,
		Name:        "admin",
		Permissions: model.PermissionAll,
		Password:    cfg.BootstrapAdminPassword,
		CreatedOn:   time.Now().UTC(),
	}
	if err := db.Create(&admin).Error; err != nil {
		return fmt.Errorf("create bootstrap admin: %w", err)
	}
	logger.Info("created bootstrap admin", "steam_id", admin.ID)
	return nil
}

// Run serves HTTP until ctx is cancelled, then shuts down gracefully.
func Run(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	s, err := New(cfg, logger)
	if err != nil {
		return err
	}
	defer s.Close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go janitor.New(s.DB, cfg.JanitorInterval, logger).Run(ctx)

	if s.Bot != nil {
		go s.Bot.Start()
		defer s.Bot.Stop()
		logger.Info("telegram bot started")
	}

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening", "addr", cfg.ListenAddr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancelShutdown()
	return srv.Shutdown(shutdownCtx)
}
