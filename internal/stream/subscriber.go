package stream

import (
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"BabylonEngine/internal/observability"
)

// PriceSink consumes parsed price maps. Implemented by the engine.
type PriceSink interface {
	UpdatePrices(prices map[string]decimal.Decimal)
}

// TickMessage is the wire format of one price update: ticker to price.
// decimal accepts both JSON numbers and strings, so producers may send
// either.
type TickMessage struct {
	Prices map[string]decimal.Decimal `json:"prices"`
}

// PriceSubscriber feeds price updates from a NATS subject into the
// engine. Malformed messages are logged and dropped; market data is a
// stream, the next tick supersedes the lost one.
type PriceSubscriber struct {
	conn    *nats.Conn
	subject string
	sink    PriceSink
	log     zerolog.Logger

	sub *nats.Subscription
}

func NewPriceSubscriber(conn *nats.Conn, subject string, sink PriceSink) *PriceSubscriber {
	return &PriceSubscriber{
		conn:    conn,
		subject: subject,
		sink:    sink,
		log:     observability.NewLogger("price-subscriber"),
	}
}

// Start subscribes and begins feeding ticks to the sink.
func (ps *PriceSubscriber) Start() error {
	sub, err := ps.conn.Subscribe(ps.subject, func(msg *nats.Msg) {
		var tick TickMessage
		if err := json.Unmarshal(msg.Data, &tick); err != nil {
			ps.log.Warn().Err(err).Str("subject", msg.Subject).Msg("dropping malformed tick")
			return
		}
		if len(tick.Prices) == 0 {
			return
		}
		ps.sink.UpdatePrices(tick.Prices)
	})
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", ps.subject, err)
	}
	ps.sub = sub
	ps.log.Info().Str("subject", ps.subject).Msg("price subscription started")
	return nil
}

// Stop drains the subscription.
func (ps *PriceSubscriber) Stop() {
	if ps.sub != nil {
		if err := ps.sub.Drain(); err != nil {
			ps.log.Warn().Err(err).Msg("drain price subscription")
		}
	}
}
