package rules

import (
	"encoding/json"
	"log/slog"

	"github.com/nats-io/nats.go"
)

// NewNATSMirror connects to a NATS server and returns a mirrorFunc that
// republishes every emitted event on "events.<topic>", for external
// consumers that want a feed independent of any gateway connection. The
// gateway only ever publishes, it never subscribes back through NATS.
func NewNATSMirror(url string, logger *slog.Logger) (mirrorFunc, func(), error) {
	nc, err := nats.Connect(url, nats.MaxReconnects(-1))
	if err != nil {
		return nil, nil, err
	}

	fn := func(topic string, payload any) {
		data, err := json.Marshal(payload)
		if err != nil {
			logger.Warn("rules: mirror marshal failed", "topic", topic, "error", err)
			return
		}
		if err := nc.Publish("events."+topic, data); err != nil {
			logger.Warn("rules: mirror publish failed", "topic", topic, "error", err)
		}
	}
	return fn, func() { _ = nc.Drain(); nc.Close() }, nil
}
