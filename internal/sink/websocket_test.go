package sink

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantflux/confluence/internal/config"
	"github.com/quantflux/confluence/internal/models"
)

func TestWebSocketSinkBroadcasts(t *testing.T) {
	s := NewWebSocketSink(config.WebSocketSinkConfig{Addr: "127.0.0.1:0"}, zerolog.Nop())
	defer s.Close()

	// Exercise the upgrade handler through a test server so the test does
	// not depend on a fixed port.
	srv := httptest.NewServer(http.HandlerFunc(s.handleWS))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	defer conn.Close()

	require.Eventually(t, func() bool {
		s.mu.RLock()
		defer s.mu.RUnlock()
		return len(s.clients) == 1
	}, time.Second, 10*time.Millisecond)

	require.NoError(t, s.Deliver(context.Background(), testSignal()))

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, payload, err := conn.ReadMessage()
	require.NoError(t, err)

	var got models.Signal
	require.NoError(t, json.Unmarshal(payload, &got))
	assert.Equal(t, "sig-1", got.ID)
	assert.Equal(t, "BTCUSDT", got.Symbol)
}

func TestWebSocketSinkDeliverWithoutSubscribers(t *testing.T) {
	s := NewWebSocketSink(config.WebSocketSinkConfig{Addr: "127.0.0.1:0"}, zerolog.Nop())
	defer s.Close()

	assert.NoError(t, s.Deliver(context.Background(), testSignal()))
}
