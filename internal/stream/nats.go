// Package stream connects the engine to NATS: inbound price ticks and
// outbound notification events.
package stream

import (
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"BabylonEngine/internal/observability"
)

// Connect establishes a NATS connection that reconnects forever.
func Connect(url string) (*nats.Conn, error) {
	log := observability.NewLogger("nats")

	nc, err := nats.Connect(url,
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Warn().Err(err).Msg("nats disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("nats reconnected")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("nats connect %s: %w", url, err)
	}
	return nc, nil
}
