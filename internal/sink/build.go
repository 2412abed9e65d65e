package sink

import (
	"github.com/rs/zerolog"

	"github.com/quantflux/confluence/internal/config"
)

// FromConfig builds the enabled sinks. A sink that fails to initialize is
// an error: delivery surfaces are declared intent, not best effort.
func FromConfig(cfg config.SinksConfig, log zerolog.Logger) ([]Sink, error) {
	var sinks []Sink
	if cfg.Log.Enabled {
		sinks = append(sinks, NewLogSink(log))
	}
	if cfg.Webhook.Enabled {
		sinks = append(sinks, NewWebhookSink(cfg.Webhook))
	}
	if cfg.NATS.Enabled {
		ns, err := NewNATSSink(cfg.NATS)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, ns)
	}
	if cfg.WebSocket.Enabled {
		sinks = append(sinks, NewWebSocketSink(cfg.WebSocket, log))
	}
	return sinks, nil
}
