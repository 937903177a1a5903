package sse

import (
	"bufio"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"ms-eventhub/internal/auth"
	"ms-eventhub/internal/logger"
	"ms-eventhub/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHubDeliversToOwnerOnly(t *testing.T) {
	hub := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	mine := hub.Subscribe(ctx, "u1")
	other := hub.Subscribe(ctx, "u2")

	hub.Publish(models.Notification{ID: "n1", UserID: "u1", Title: "Paid"})

	select {
	case n := <-mine:
		assert.Equal(t, "n1", n.ID)
	case <-time.After(time.Second):
		t.Fatal("notification not delivered")
	}
	select {
	case n := <-other:
		t.Fatalf("unexpected notification %s", n.ID)
	default:
	}
}

func TestHubDropsWhenClientIsSlow(t *testing.T) {
	hub := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch := hub.Subscribe(ctx, "u1")
	for i := 0; i < clientBuffer+5; i++ {
		hub.Publish(models.Notification{UserID: "u1"})
	}
	assert.Len(t, ch, clientBuffer)
}

func TestHubRemovesOnCancel(t *testing.T) {
	hub := NewHub()
	ctx, cancel := context.WithCancel(context.Background())

	ch := hub.Subscribe(ctx, "u1")
	require.Equal(t, 1, hub.ClientCount("u1"))

	cancel()
	require.Eventually(t, func() bool { return hub.ClientCount("u1") == 0 }, time.Second, 10*time.Millisecond)
	_, ok := <-ch
	assert.False(t, ok)

	// publishing after removal must not panic
	hub.Publish(models.Notification{UserID: "u1"})
}

func TestHandlerStreamsNotifications(t *testing.T) {
	hub := NewHub()
	h := Handler(hub, time.Hour, logger.NewNop())
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h(w, r.WithContext(auth.WithIdentity(r.Context(), auth.Identity{UserID: "u1"})))
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL, nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	require.Eventually(t, func() bool { return hub.ClientCount("u1") == 1 }, time.Second, 10*time.Millisecond)
	hub.Publish(models.Notification{ID: "n7", UserID: "u1", Title: "Tickets sent", Type: "payment_success"})

	reader := bufio.NewReader(resp.Body)
	var lines []string
	for len(lines) < 3 {
		line, err := reader.ReadString('\n')
		require.NoError(t, err)
		if line = strings.TrimSpace(line); line != "" {
			lines = append(lines, line)
		}
	}
	assert.Equal(t, "id: n7", lines[0])
	assert.Equal(t, "event: notification", lines[1])
	assert.Contains(t, lines[2], `"title":"Tickets sent"`)
}
