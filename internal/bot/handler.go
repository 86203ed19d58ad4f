package bot

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"gopkg.in/telebot.v3"

	"cs2kz-api/internal/audit"
)

// BanCounter reports how many bans are currently in effect.
type BanCounter interface {
	CountActive(ctx context.Context) (int64, error)
}

// BotHandler holds the bot instance and the chat that receives audit
// notifications.
type BotHandler struct {
	Bot    *telebot.Bot
	ChatID int64

	bans   BanCounter
	logger *slog.Logger
}

// NewBotHandler initializes and returns a new BotHandler
func NewBotHandler(token string, chatID int64, bans BanCounter, logger *slog.Logger) (*BotHandler, error) {
	pref := telebot.Settings{
		Token:  token,
		Poller: &telebot.LongPoller{Timeout: 10 * time.Second},
	}

	b, err := telebot.NewBot(pref)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot: %w", err)
	}

	handler := &BotHandler{
		Bot:    b,
		ChatID: chatID,
		bans:   bans,
		logger: logger.With("component", "bot"),
	}

	handler.setupHandlers()
	return handler, nil
}

func (h *BotHandler) setupHandlers() {
	h.Bot.Handle("/start", h.handleStart)
	h.Bot.Handle("/status", h.handleStatus)
}

func (h *BotHandler) handleStart(c telebot.Context) error {
	message := fmt.Sprintf("Hi %s! This chat receives cs2kz moderation events. Use /status for the current ban count.", c.Sender().FirstName)
	return c.Send(message)
}

func (h *BotHandler) handleStatus(c telebot.Context) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	n, err := h.bans.CountActive(ctx)
	if err != nil {
		h.logger.Warn("failed to count active bans", "error", err)
		return c.Send("Could not query the ban list right now.")
	}
	return c.Send(fmt.Sprintf("Active bans: %d", n))
}

// Notify implements audit.Notifier. Delivery happens in the background so
// a slow Telegram API never holds up a request.
func (h *BotHandler) Notify(_ context.Context, e audit.Event) {
	text := FormatEvent(e)
	go func() {
		if _, err := h.Bot.Send(telebot.ChatID(h.ChatID), text); err != nil {
			h.logger.Warn("failed to deliver audit notification", "event", e.Name, "error", err)
		}
	}()
}

// Start starts the bot poller. It blocks until Stop is called.
func (h *BotHandler) Start() {
	h.Bot.Start()
}

func (h *BotHandler) Stop() {
	h.Bot.Stop()
}

// FormatEvent renders an audit event as a single chat message.
func FormatEvent(e audit.Event) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "[%s] %s by %d", e.Timestamp.UTC().Format(time.RFC3339), e.Name, e.ActorID)

	if len(e.TargetIDs) > 0 {
		ids := make([]string, len(e.TargetIDs))
		for i, id := range e.TargetIDs {
			ids[i] = fmt.Sprint(id)
		}
		fmt.Fprintf(&sb, " on %s", strings.Join(ids, ", "))
	}

	if len(e.Extra) > 0 {
		keys := make([]string, 0, len(e.Extra))
		for k := range e.Extra {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(&sb, "\n%s: %v", k, e.Extra[k])
		}
	}
	return sb.String()
}
