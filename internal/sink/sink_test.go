package sink

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	natsserver "github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantflux/confluence/internal/config"
	"github.com/quantflux/confluence/internal/models"
)

func testSignal() models.Signal {
	return models.Signal{
		ID:         "sig-1",
		Symbol:     "BTCUSDT",
		Type:       models.SignalBuy,
		Strength:   models.StrengthStrong,
		Score:      74.2,
		Consensus:  0.91,
		Confidence: 0.55,
		Price:      50123.5,
		Timestamp:  1700003600000,
		Components: map[string]float64{"technical": 70, "volume": 78},
		Thresholds: models.Thresholds{Buy: 68, Sell: 35},
	}
}

func TestLogSinkWritesStructuredLine(t *testing.T) {
	var buf bytes.Buffer
	s := NewLogSink(zerolog.New(&buf))

	require.NoError(t, s.Deliver(context.Background(), testSignal()))
	require.NoError(t, s.Close())

	var line map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "SIGNAL", line["message"])
	assert.Equal(t, "BTCUSDT", line["symbol"])
	assert.Equal(t, "BUY", line["type"])
	assert.Equal(t, 74.2, line["score"])
	assert.Equal(t, 70.0, line["component_technical"])
}

func TestWebhookSinkPostsSignal(t *testing.T) {
	var received models.Signal
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	s := NewWebhookSink(config.WebhookSinkConfig{URL: srv.URL, TimeoutMS: 2000})
	require.NoError(t, s.Deliver(context.Background(), testSignal()))
	assert.Equal(t, "sig-1", received.ID)
	assert.Equal(t, models.SignalBuy, received.Type)
	require.NoError(t, s.Close())
}

func TestWebhookSinkRejectsNon2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	s := NewWebhookSink(config.WebhookSinkConfig{URL: srv.URL, TimeoutMS: 2000})
	err := s.Deliver(context.Background(), testSignal())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
}

func TestWebhookSinkUnreachable(t *testing.T) {
	s := NewWebhookSink(config.WebhookSinkConfig{URL: "http://127.0.0.1:1", TimeoutMS: 200})
	assert.Error(t, s.Deliver(context.Background(), testSignal()))
}

func runNATSServer(t *testing.T) *natsserver.Server {
	t.Helper()
	srv, err := natsserver.NewServer(&natsserver.Options{Host: "127.0.0.1", Port: -1})
	require.NoError(t, err)
	go srv.Start()
	require.True(t, srv.ReadyForConnections(5*time.Second))
	t.Cleanup(srv.Shutdown)
	return srv
}

func TestNATSSinkPublishesPerSymbol(t *testing.T) {
	srv := runNATSServer(t)

	conn, err := nats.Connect(srv.ClientURL())
	require.NoError(t, err)
	defer conn.Close()
	sub, err := conn.SubscribeSync("signals.BTCUSDT")
	require.NoError(t, err)
	require.NoError(t, conn.Flush())

	s, err := NewNATSSink(config.NATSSinkConfig{URL: srv.ClientURL(), Subject: "signals"})
	require.NoError(t, err)
	require.NoError(t, s.Deliver(context.Background(), testSignal()))
	require.NoError(t, s.Close())

	msg, err := sub.NextMsg(5 * time.Second)
	require.NoError(t, err)

	var got models.Signal
	require.NoError(t, json.Unmarshal(msg.Data, &got))
	assert.Equal(t, "sig-1", got.ID)
	assert.Equal(t, 74.2, got.Score)
}

func TestFromConfig(t *testing.T) {
	t.Run("log only by default", func(t *testing.T) {
		cfg := config.SinksConfig{Log: config.LogSinkConfig{Enabled: true}}
		sinks, err := FromConfig(cfg, zerolog.Nop())
		require.NoError(t, err)
		require.Len(t, sinks, 1)
		assert.Equal(t, "log", sinks[0].Name())
	})

	t.Run("webhook added when enabled", func(t *testing.T) {
		cfg := config.SinksConfig{
			Log:     config.LogSinkConfig{Enabled: true},
			Webhook: config.WebhookSinkConfig{Enabled: true, URL: "http://localhost:9", TimeoutMS: 100},
		}
		sinks, err := FromConfig(cfg, zerolog.Nop())
		require.NoError(t, err)
		assert.Len(t, sinks, 2)
	})

	t.Run("nats wired against live server", func(t *testing.T) {
		srv := runNATSServer(t)
		cfg := config.SinksConfig{
			NATS: config.NATSSinkConfig{Enabled: true, URL: srv.ClientURL(), Subject: "signals"},
		}
		sinks, err := FromConfig(cfg, zerolog.Nop())
		require.NoError(t, err)
		require.Len(t, sinks, 1)
		assert.Equal(t, "nats", sinks[0].Name())
		require.NoError(t, sinks[0].Close())
	})
}
