package stream

import (
	"encoding/json"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"BabylonEngine/internal/event"
	"BabylonEngine/internal/observability"
)

// EventPublisher delivers engine events to NATS subjects under a common
// prefix: {prefix}.liquidation, {prefix}.funding, {prefix}.position_closed.
// Delivery is best-effort; a publish failure is logged and dropped, the
// ledger is the source of truth.
type EventPublisher struct {
	conn   *nats.Conn
	prefix string
	log    zerolog.Logger
}

func NewEventPublisher(conn *nats.Conn, prefix string) *EventPublisher {
	return &EventPublisher{
		conn:   conn,
		prefix: prefix,
		log:    observability.NewLogger("event-publisher"),
	}
}

func (ep *EventPublisher) publish(suffix string, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		ep.log.Error().Err(err).Str("event", suffix).Msg("marshal event")
		return
	}
	subject := ep.prefix + "." + suffix
	if err := ep.conn.Publish(subject, data); err != nil {
		ep.log.Warn().Err(err).Str("subject", subject).Msg("publish failed")
	}
}

func (ep *EventPublisher) PublishLiquidation(e event.LiquidationEvent) {
	ep.publish("liquidation", e)
}

func (ep *EventPublisher) PublishFunding(e event.FundingEvent) {
	ep.publish("funding", e)
}

func (ep *EventPublisher) PublishPositionClosed(e event.PositionClosedEvent) {
	ep.publish("position_closed", e)
}

var _ event.Publisher = (*EventPublisher)(nil)
