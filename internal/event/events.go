// Package event defines the outbound notification events the engine
// publishes after financial state commits. Publishing is strictly
// post-commit: a publisher failure can never roll back a mutation.
package event

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// LiquidationEvent announces a forced close.
type LiquidationEvent struct {
	LiquidationID uuid.UUID       `json:"liquidation_id"`
	PositionID    uuid.UUID       `json:"position_id"`
	OwnerID       string          `json:"owner_id"`
	Ticker        string          `json:"ticker"`
	TriggerPrice  decimal.Decimal `json:"trigger_price"`
	FillPrice     decimal.Decimal `json:"fill_price"`
	MarginLost    decimal.Decimal `json:"margin_lost"`
	Timestamp     time.Time       `json:"timestamp"`
}

// FundingEvent announces one market's funding sweep at an 8h boundary.
type FundingEvent struct {
	Ticker            string          `json:"ticker"`
	Rate              decimal.Decimal `json:"rate"`
	Boundary          time.Time       `json:"boundary"`
	PositionsSettled  int             `json:"positions_settled"`
	Timestamp         time.Time       `json:"timestamp"`
}

// PositionClosedEvent announces a user-initiated close.
type PositionClosedEvent struct {
	PositionID  uuid.UUID       `json:"position_id"`
	OwnerID     string          `json:"owner_id"`
	Ticker      string          `json:"ticker"`
	RealizedPnL decimal.Decimal `json:"realized_pnl"`
	Timestamp   time.Time       `json:"timestamp"`
}

// Publisher delivers events to interested observers (notification
// streams, test harnesses). Implementations must not block the caller
// for long and must swallow their own delivery errors.
type Publisher interface {
	PublishLiquidation(e LiquidationEvent)
	PublishFunding(e FundingEvent)
	PublishPositionClosed(e PositionClosedEvent)
}

// NopPublisher discards all events. Default when no stream is wired.
type NopPublisher struct{}

func (NopPublisher) PublishLiquidation(LiquidationEvent)     {}
func (NopPublisher) PublishFunding(FundingEvent)             {}
func (NopPublisher) PublishPositionClosed(PositionClosedEvent) {}
