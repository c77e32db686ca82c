// Package market implements the perpetual-instrument registry: market
// metadata, the price-tick ingress, rolling 24h statistics, and the daily
// OHLC snapshot recorder.
package market

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Market is the public snapshot of one perpetual instrument.
// CurrentPrice is the last tick; MarkPrice is what PnL, funding and
// liquidation use; IndexPrice is the external reference.
type Market struct {
	Ticker          string          `json:"ticker"`
	Name            string          `json:"name"`
	CurrentPrice    decimal.Decimal `json:"current_price"`
	IndexPrice      decimal.Decimal `json:"index_price"`
	MarkPrice       decimal.Decimal `json:"mark_price"`
	High24h         decimal.Decimal `json:"high_24h"`
	Low24h          decimal.Decimal `json:"low_24h"`
	Change24h       decimal.Decimal `json:"change_24h"` // Percent
	Volume24h       decimal.Decimal `json:"volume_24h"`
	OpenInterest    decimal.Decimal `json:"open_interest"`
	FundingRate     decimal.Decimal `json:"funding_rate"`
	NextFundingTime time.Time       `json:"next_funding_time"`
	MaxLeverage     int             `json:"max_leverage"`
	MinOrderSize    decimal.Decimal `json:"min_order_size"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// Instrument is the creation input for a market. Instruments without a
// positive base price are skipped at initialization.
type Instrument struct {
	Name         string
	BasePrice    decimal.Decimal
	MaxLeverage  int             // 0 means registry default
	MinOrderSize decimal.Decimal // Zero means registry default
}

// DeriveTicker normalizes an instrument name to its ticker: uppercase
// alphanumerics only, truncated to 12 characters.
func DeriveTicker(name string) string {
	var b strings.Builder
	for _, r := range strings.ToUpper(name) {
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
			if b.Len() == 12 {
				break
			}
		}
	}
	return b.String()
}

// NextFundingTime returns the next 8h UTC funding boundary strictly after
// now (00:00, 08:00, 16:00).
func NextFundingTime(now time.Time) time.Time {
	now = now.UTC()
	day := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	for _, h := range []int{8, 16, 24} {
		boundary := day.Add(time.Duration(h) * time.Hour)
		if boundary.After(now) {
			return boundary
		}
	}
	return day.Add(32 * time.Hour) // Unreachable; 24h case covers midnight
}

// FundingBoundary truncates a timestamp down to its containing 8h UTC
// boundary. Two calls inside the same epoch map to the same boundary,
// which is what makes the funding sweep idempotent.
func FundingBoundary(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), (t.Hour()/8)*8, 0, 0, 0, time.UTC)
}
