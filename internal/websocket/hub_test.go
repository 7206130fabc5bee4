package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	gorilla "github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/netsentry/netsentry/internal/events"
)

func startTestHub(t *testing.T) (*Hub, *gorilla.Conn) {
	t.Helper()

	hub := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go hub.Run(ctx)

	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWebSocket))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := gorilla.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	waitForClients(t, hub, 1)
	return hub, conn
}

func TestBroadcastEventReachesClient(t *testing.T) {
	hub, conn := startTestHub(t)

	evt := events.New(events.AlertCreated, "pipeline", map[string]interface{}{"severity": "high"})
	hub.BroadcastEvent(evt)

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, payload, err := conn.ReadMessage()
	require.NoError(t, err)

	var env Envelope
	require.NoError(t, json.Unmarshal(payload, &env))
	assert.Equal(t, "alert.created", env.Type)
	assert.Equal(t, evt.ID, env.ID)
	assert.Equal(t, "pipeline", env.Source)
	assert.Equal(t, "high", env.Data["severity"])

	_, err = time.Parse(time.RFC3339, env.Timestamp)
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(env.Timestamp, "Z"))
}

func TestBridgeEventsForwardsBusEvents(t *testing.T) {
	hub, conn := startTestHub(t)

	bus := events.NewBus(16)
	hub.BridgeEvents(bus)
	bus.Start()
	defer bus.Stop()

	require.NoError(t, bus.Publish(context.Background(), events.New(events.ScanStarted, "orchestrator", map[string]interface{}{"scanId": "abc"})))

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, payload, err := conn.ReadMessage()
	require.NoError(t, err)

	var env Envelope
	require.NoError(t, json.Unmarshal(payload, &env))
	assert.Equal(t, "scan.started", env.Type)
	assert.Equal(t, "abc", env.Data["scanId"])
}

func TestClientCountTracksDisconnect(t *testing.T) {
	hub, conn := startTestHub(t)
	conn.Close()
	waitForClients(t, hub, 0)
}

func waitForClients(t *testing.T, hub *Hub, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if hub.ClientCount() == want {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	assert.Equal(t, want, hub.ClientCount())
}
