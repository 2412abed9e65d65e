package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/quantflux/confluence/internal/config"
	"github.com/quantflux/confluence/internal/models"
)

const (
	wsWriteTimeout   = 5 * time.Second
	wsClientBuffer   = 16
	wsPingInterval   = 30 * time.Second
	wsMaxMessageSize = 1024
)

// WebSocketSink runs a broadcast hub: subscribers connect to /ws and
// receive every dispatched signal as JSON. A slow subscriber is dropped
// rather than allowed to back-pressure delivery.
type WebSocketSink struct {
	server   *http.Server
	upgrader websocket.Upgrader
	log      zerolog.Logger

	mu      sync.RWMutex
	clients map[*wsClient]struct{}
}

type wsClient struct {
	conn *websocket.Conn
	send chan []byte
}

// NewWebSocketSink creates the hub and starts its HTTP listener.
func NewWebSocketSink(cfg config.WebSocketSinkConfig, log zerolog.Logger) *WebSocketSink {
	s := &WebSocketSink{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		log:     log.With().Str("component", "websocket_sink").Logger(),
		clients: make(map[*wsClient]struct{}),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWS)
	s.server = &http.Server{
		Addr:        cfg.Addr,
		Handler:     mux,
		ReadTimeout: 10 * time.Second,
	}
	go func() {
		s.log.Info().Str("addr", cfg.Addr).Msg("Starting websocket broadcast hub")
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.log.Error().Err(err).Msg("Websocket hub error")
		}
	}()
	return s
}

// Name implements Sink.
func (s *WebSocketSink) Name() string { return "websocket" }

// Deliver implements Sink. Broadcast never blocks on a subscriber; clients
// whose buffer is full are dropped.
func (s *WebSocketSink) Deliver(_ context.Context, sig models.Signal) error {
	payload, err := json.Marshal(sig)
	if err != nil {
		return fmt.Errorf("failed to marshal signal %s: %w", sig.ID, err)
	}

	s.mu.RLock()
	stale := make([]*wsClient, 0)
	for c := range s.clients {
		select {
		case c.send <- payload:
		default:
			stale = append(stale, c)
		}
	}
	s.mu.RUnlock()

	for _, c := range stale {
		s.drop(c)
		s.log.Warn().Msg("Dropped slow websocket subscriber")
	}
	return nil
}

func (s *WebSocketSink) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Error().Err(err).Msg("Websocket upgrade failed")
		return
	}
	client := &wsClient{conn: conn, send: make(chan []byte, wsClientBuffer)}

	s.mu.Lock()
	s.clients[client] = struct{}{}
	count := len(s.clients)
	s.mu.Unlock()
	s.log.Info().Int("subscribers", count).Msg("Websocket subscriber connected")

	go s.writeLoop(client)
	go s.readLoop(client)
}

// writeLoop pushes broadcast payloads and keepalive pings to one client.
func (s *WebSocketSink) writeLoop(c *wsClient) {
	ticker := time.NewTicker(wsPingInterval)
	defer ticker.Stop()
	for {
		select {
		case payload, ok := <-c.send:
			if !ok {
				return
			}
			c.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				s.drop(c)
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				s.drop(c)
				return
			}
		}
	}
}

// readLoop discards inbound frames; its job is noticing disconnects.
func (s *WebSocketSink) readLoop(c *wsClient) {
	c.conn.SetReadLimit(wsMaxMessageSize)
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			s.drop(c)
			return
		}
	}
}

func (s *WebSocketSink) drop(c *wsClient) {
	s.mu.Lock()
	if _, ok := s.clients[c]; ok {
		delete(s.clients, c)
		close(c.send)
		c.conn.Close()
	}
	s.mu.Unlock()
}

// Close implements Sink.
func (s *WebSocketSink) Close() error {
	s.mu.Lock()
	for c := range s.clients {
		delete(s.clients, c)
		close(c.send)
		c.conn.Close()
	}
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.server.Shutdown(ctx)
}

var _ Sink = (*WebSocketSink)(nil)
