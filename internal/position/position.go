// Package position implements the leveraged-position ledger: open, close
// and mark-to-market, plus the liquidation monitor and funding processor
// that operate on it.
package position

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"BabylonEngine/internal/ledger"
)

// Side of a leveraged position.
type Side string

const (
	SideLong  Side = "long"
	SideShort Side = "short"
)

// Valid reports whether the side is one of the two known values.
func (s Side) Valid() bool {
	return s == SideLong || s == SideShort
}

// Sign returns +1 for long, -1 for short.
func (s Side) Sign() decimal.Decimal {
	if s == SideShort {
		return decimal.NewFromInt(-1)
	}
	return decimal.NewFromInt(1)
}

// Status of a position. Closed and Liquidated are terminal; a terminal
// position is immutable.
type Status string

const (
	StatusOpen       Status = "open"
	StatusClosed     Status = "closed"
	StatusLiquidated Status = "liquidated"
)

// Position is one leveraged perpetual position. Margin is fixed at open
// (notional / leverage) and never changes; LiquidationPrice is computed
// once at open.
type Position struct {
	ID               uuid.UUID       `json:"id"`
	OwnerID          string          `json:"owner_id"`
	Ticker           string          `json:"ticker"`
	Side             Side            `json:"side"`
	Size             decimal.Decimal `json:"size"`
	EntryPrice       decimal.Decimal `json:"entry_price"`
	Leverage         int             `json:"leverage"`
	Margin           decimal.Decimal `json:"margin"`
	LiquidationPrice decimal.Decimal `json:"liquidation_price"`
	UnrealizedPnL    decimal.Decimal `json:"unrealized_pnl"`
	FundingPaid      decimal.Decimal `json:"funding_paid"`
	Status           Status          `json:"status"`
	OpenedAt         time.Time       `json:"opened_at"`
	ClosedAt         *time.Time      `json:"closed_at,omitempty"`
}

// IsOpen reports whether the position can still be mutated.
func (p *Position) IsOpen() bool {
	return p.Status == StatusOpen
}

// Notional returns economic exposure at the given price.
func (p *Position) Notional(price decimal.Decimal) decimal.Decimal {
	return p.Size.Mul(price)
}

// PnLAt returns the unrealized PnL at the given price:
// (price - entry) × size × sideSign.
func (p *Position) PnLAt(price decimal.Decimal) decimal.Decimal {
	return ledger.Round(price.Sub(p.EntryPrice).Mul(p.Size).Mul(p.Side.Sign()))
}

// MarginRatioAt returns (margin + unrealizedPnL) / notional at the given
// price. Falls to the maintenance threshold or below ⇒ liquidation.
func (p *Position) MarginRatioAt(price decimal.Decimal) decimal.Decimal {
	notional := p.Notional(price)
	if notional.Sign() <= 0 {
		return decimal.Zero
	}
	return p.Margin.Add(p.PnLAt(price)).Div(notional)
}

// LiquidationPriceFor computes the price at which unrealized loss
// exhausts margin down to the maintenance threshold. Symmetric for the
// two sides:
//
//	long:  entry × (1 − 1/leverage + maintenanceRate)
//	short: entry × (1 + 1/leverage − maintenanceRate)
func LiquidationPriceFor(side Side, entry decimal.Decimal, leverage int, maintenanceRate decimal.Decimal) decimal.Decimal {
	one := decimal.NewFromInt(1)
	inv := one.Div(decimal.NewFromInt(int64(leverage)))

	var factor decimal.Decimal
	if side == SideLong {
		factor = one.Sub(inv).Add(maintenanceRate)
	} else {
		factor = one.Add(inv).Sub(maintenanceRate)
	}
	return ledger.Round(entry.Mul(factor))
}

// FundingRecord is the append-only record of one market's funding sweep.
type FundingRecord struct {
	Ticker    string          `json:"ticker"`
	Rate      decimal.Decimal `json:"rate"`
	AppliedAt time.Time       `json:"applied_at"`
}

// Key identifies a funding record uniquely: one per market per boundary.
func (r FundingRecord) Key() string {
	return r.Ticker + ":" + r.AppliedAt.UTC().Format(time.RFC3339)
}

// Liquidation is created exactly once per liquidated position.
type Liquidation struct {
	ID              uuid.UUID       `json:"id"`
	PositionID      uuid.UUID       `json:"position_id"`
	Ticker          string          `json:"ticker"`
	TriggerPrice    decimal.Decimal `json:"trigger_price"`
	ActualFillPrice decimal.Decimal `json:"actual_fill_price"`
	MarginLost      decimal.Decimal `json:"margin_lost"`
	Timestamp       time.Time       `json:"timestamp"`
}
