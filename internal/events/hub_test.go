package events

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"docqa/internal/models"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startHub(t *testing.T) (*Hub, *httptest.Server) {
	t.Helper()
	hub := NewHub(zerolog.Nop())
	hub.Start()
	srv := httptest.NewServer(hub)
	t.Cleanup(func() {
		hub.Shutdown()
		srv.Close()
	})
	return hub, srv
}

func dial(t *testing.T, srv *httptest.Server, query string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/events" + query
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) models.IndexEvent {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var event models.IndexEvent
	require.NoError(t, json.Unmarshal(data, &event))
	return event
}

func TestHub_BroadcastsToSubscribers(t *testing.T) {
	hub, srv := startHub(t)
	a := dial(t, srv, "")
	b := dial(t, srv, "")

	require.Eventually(t, func() bool { return hub.ClientCount() == 2 }, 2*time.Second, 10*time.Millisecond)

	event := models.NewIndexEvent(models.EventIngested, 7)
	event.Title = "Manual"
	event.Chunks = 12
	hub.Publish(event)

	for _, conn := range []*websocket.Conn{a, b} {
		got := readEvent(t, conn)
		assert.Equal(t, event.ID, got.ID)
		assert.Equal(t, models.EventIngested, got.Type)
		assert.Equal(t, int64(7), got.DocumentID)
		assert.Equal(t, "Manual", got.Title)
		assert.Equal(t, 12, got.Chunks)
	}
}

func TestHub_DocumentFilter(t *testing.T) {
	hub, srv := startHub(t)
	only2 := dial(t, srv, "?document_id=2")

	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, 2*time.Second, 10*time.Millisecond)

	hub.Publish(models.NewIndexEvent(models.EventDeleted, 1))
	hub.Publish(models.NewIndexEvent(models.EventDeleted, 2))

	got := readEvent(t, only2)
	assert.Equal(t, int64(2), got.DocumentID)
	assert.Equal(t, models.EventDeleted, got.Type)
}

func TestHub_RejectsBadFilter(t *testing.T) {
	_, srv := startHub(t)

	resp, err := http.Get(srv.URL + "/ws/events?document_id=abc")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHub_UnregistersOnDisconnect(t *testing.T) {
	hub, srv := startHub(t)
	conn := dial(t, srv, "")

	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, 2*time.Second, 10*time.Millisecond)

	conn.Close()

	assert.Eventually(t, func() bool { return hub.ClientCount() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestHub_ShutdownIsIdempotent(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	hub.Start()

	hub.Shutdown()
	hub.Shutdown()

	assert.NotPanics(t, func() {
		hub.Publish(models.NewIndexEvent(models.EventIngested, 1))
	})
	assert.Equal(t, 0, hub.ClientCount())
}
