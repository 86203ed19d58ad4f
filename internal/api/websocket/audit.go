package websocket

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"cs2kz-api/internal/audit"
)

const (
	subscriberBuffer = 32
	writeTimeout     = 10 * time.Second
)

// Hub fans committed audit events out to websocket subscribers. Slow
// subscribers drop events rather than block the publisher.
type Hub struct {
	mu     sync.Mutex
	subs   map[chan audit.Event]struct{}
	logger *slog.Logger
}

func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		subs:   make(map[chan audit.Event]struct{}),
		logger: logger,
	}
}

// Notify implements audit.Notifier.
func (h *Hub) Notify(_ context.Context, e audit.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for ch := range h.subs {
		select {
		case ch <- e:
		default:
			h.logger.Warn("audit feed subscriber is lagging, dropping event", "event", e.Name)
		}
	}
}

// Subscribe registers a new subscriber. The returned func unsubscribes and
// closes the channel.
func (h *Hub) Subscribe() (<-chan audit.Event, func()) {
	ch := make(chan audit.Event, subscriberBuffer)

	h.mu.Lock()
	h.subs[ch] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, ch)
			h.mu.Unlock()
			close(ch)
		})
	}
}

// Subscribers returns the number of connected subscribers.
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// AuditFeed upgrades the request and streams every committed audit event
// as a JSON text frame until the client goes away. An empty allowedOrigin
// accepts any origin.
func AuditFeed(h *Hub, allowedOrigin string) gin.HandlerFunc {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			return allowedOrigin == "" || r.Header.Get("Origin") == allowedOrigin
		},
	}

	return func(c *gin.Context) {
		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			h.logger.Info("failed to upgrade websocket", "error", err)
			return
		}
		defer conn.Close()

		events, unsubscribe := h.Subscribe()
		defer unsubscribe()

		// The client never sends anything meaningful; reading only detects
		// when it goes away.
		closed := make(chan struct{})
		go func() {
			defer close(closed)
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()

		for {
			select {
			case <-closed:
				return
			case <-c.Request.Context().Done():
				return
			case e := <-events:
				conn.SetWriteDeadline(time.Now().Add(writeTimeout))
				if err := conn.WriteJSON(e); err != nil {
					if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
						h.logger.Info("audit feed write failed", "error", err)
					}
					return
				}
			}
		}
	}
}
