package events

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/example/plate-scan/internal/scan"
)

func startHub(t *testing.T) (*Hub, *websocket.Conn) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	hub := NewHub(zap.NewNop())
	go hub.Run(ctx)

	srv := httptest.NewServer(hub)
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, 2*time.Second, time.Millisecond)
	return hub, conn
}

func TestHubBroadcastsToClient(t *testing.T) {
	hub, conn := startHub(t)

	require.NoError(t, hub.BroadcastJSON(map[string]string{"hello": "world"}))

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.JSONEq(t, `{"hello":"world"}`, string(data))
}

func TestHubForwardsScanEvents(t *testing.T) {
	hub, conn := startHub(t)

	stream := make(chan scan.Event, 1)
	stream <- scan.Event{Type: scan.EventState, State: scan.Recognizing.String(), AttemptID: "a-1"}
	close(stream)
	hub.Forward(context.Background(), stream)

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var ev scan.Event
	require.NoError(t, json.Unmarshal(data, &ev))
	assert.Equal(t, scan.EventState, ev.Type)
	assert.Equal(t, "recognizing", ev.State)
	assert.Equal(t, "a-1", ev.AttemptID)
}

func TestHubUnregistersClosedClient(t *testing.T) {
	hub, conn := startHub(t)

	require.NoError(t, conn.Close())
	assert.Eventually(t, func() bool { return hub.ClientCount() == 0 }, 2*time.Second, time.Millisecond)
}
