package websocket

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/go-cmp/cmp"
	"github.com/gorilla/websocket"

	"cs2kz-api/internal/audit"
	"cs2kz-api/internal/store/storetest"
)

func TestHubNotify(t *testing.T) {
	t.Parallel()

	h := NewHub(storetest.Logger())
	events, unsubscribe := h.Subscribe()

	e := audit.Event{Name: "ban.created", ActorID: 1, TargetIDs: []uint64{2}}
	h.Notify(context.Background(), e)

	select {
	case got := <-events:
		if diff := cmp.Diff(e, got); diff != "" {
			t.Errorf("event mismatch (-want +got):\n%s", diff)
		}
	default:
		t.Fatal("no event delivered")
	}

	unsubscribe()
	unsubscribe()
	if n := h.Subscribers(); n != 0 {
		t.Errorf("subscribers = %d after unsubscribe", n)
	}
	// Publishing with no subscribers must not block or panic.
	h.Notify(context.Background(), e)
}

func TestHubDropsForLaggingSubscriber(t *testing.T) {
	t.Parallel()

	h := NewHub(storetest.Logger())
	events, unsubscribe := h.Subscribe()
	defer unsubscribe()

	for i := 0; i < subscriberBuffer+5; i++ {
		h.Notify(context.Background(), audit.Event{Name: "ban.updated"})
	}
	if got := len(events); got != subscriberBuffer {
		t.Errorf("buffered %d events, want %d", got, subscriberBuffer)
	}
}

func TestAuditFeed(t *testing.T) {
	t.Parallel()
	gin.SetMode(gin.TestMode)

	h := NewHub(storetest.Logger())
	r := gin.New()
	r.GET("/ws/audit", AuditFeed(h, ""))
	srv := httptest.NewServer(r)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/audit"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(5 * time.Second)
	for h.Subscribers() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("handler never subscribed")
		}
		time.Sleep(10 * time.Millisecond)
	}

	want := audit.Event{Name: "ban.reverted", ActorID: 7, TargetIDs: []uint64{1, 2}, Timestamp: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	h.Notify(context.Background(), want)

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var got audit.Event
	if err := conn.ReadJSON(&got); err != nil {
		t.Fatalf("read: %v", err)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("event mismatch (-want +got):\n%s", diff)
	}
}

func TestAuditFeedRejectsForeignOrigin(t *testing.T) {
	t.Parallel()
	gin.SetMode(gin.TestMode)

	h := NewHub(storetest.Logger())
	r := gin.New()
	r.GET("/ws/audit", AuditFeed(h, "https://dashboard.cs2kz.org"))
	srv := httptest.NewServer(r)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/audit"
	header := map[string][]string{"Origin": {"https://evil.example"}}
	if _, _, err := websocket.DefaultDialer.Dial(url, header); err == nil {
		t.Fatal("dial from foreign origin succeeded")
	}
}
