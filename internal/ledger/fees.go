package ledger

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ErrFeeSplitMismatch signals a violated fee-split invariant
// (referrerPaid + platformReceived != feeCharged). It should never occur;
// when it does the single operation fails, not the process.
var ErrFeeSplitMismatch = errors.New("fee split does not sum to fee charged")

// TradeType selects the fee rate applied to a trade.
type TradeType string

const (
	TradePerpOpen   TradeType = "perp_open"
	TradePerpClose  TradeType = "perp_close"
	TradePrediction TradeType = "prediction"
)

// FeeSchedule holds the fee rates and the referral split.
type FeeSchedule struct {
	PerpRate       decimal.Decimal
	PredictionRate decimal.Decimal
	ReferralRate   decimal.Decimal
}

// DefaultFeeSchedule mirrors the platform defaults: 10 bps on perp
// trades, 1% on prediction trades, 20% of each fee to the referrer.
func DefaultFeeSchedule() FeeSchedule {
	return FeeSchedule{
		PerpRate:       decimal.NewFromFloat(0.001),
		PredictionRate: decimal.NewFromFloat(0.01),
		ReferralRate:   decimal.NewFromFloat(0.2),
	}
}

func (s FeeSchedule) rate(t TradeType) decimal.Decimal {
	switch t {
	case TradePrediction:
		return s.PredictionRate
	default:
		return s.PerpRate
	}
}

// FeeRecord documents one fee charge and its exact split.
// Invariant: ReferrerPaid + PlatformReceived == FeeCharged.
type FeeRecord struct {
	TradeID          uuid.UUID       `json:"trade_id"`
	TradeType        TradeType       `json:"trade_type"`
	OwnerID          string          `json:"owner_id"`
	FeeCharged       decimal.Decimal `json:"fee_charged"`
	ReferrerPaid     decimal.Decimal `json:"referrer_paid"`
	PlatformReceived decimal.Decimal `json:"platform_received"`
	ReferrerID       *string         `json:"referrer_id,omitempty"`
	Timestamp        time.Time       `json:"timestamp"`
}

// SetReferrer registers who referred an owner; their wallet receives the
// referral share of every fee the owner pays from now on.
func (l *Ledger) SetReferrer(ownerID, referrerID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.referrers[ownerID] = referrerID
}

// Referrer returns the registered referrer for an owner, if any.
func (l *Ledger) Referrer(ownerID string) (string, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	r, ok := l.referrers[ownerID]
	return r, ok
}

// QuoteFee returns the fee that ProcessTradingFee would charge on a trade
// amount. Callers deduct it from settlements before crediting.
func (l *Ledger) QuoteFee(tradeType TradeType, tradeAmount decimal.Decimal) decimal.Decimal {
	return Round(tradeAmount.Mul(l.fees.rate(tradeType)))
}

// ProcessTradingFee splits a fee between the owner's referrer and the
// platform account and credits both sides. The charge itself is the
// caller's responsibility (debited at open, deducted from settlement at
// close); this routine only distributes it.
func (l *Ledger) ProcessTradingFee(ownerID string, tradeType TradeType, tradeAmount decimal.Decimal) (FeeRecord, error) {
	fee := l.QuoteFee(tradeType, tradeAmount)
	tradeID := uuid.New()

	rec := FeeRecord{
		TradeID:          tradeID,
		TradeType:        tradeType,
		OwnerID:          ownerID,
		FeeCharged:       fee,
		ReferrerPaid:     decimal.Zero,
		PlatformReceived: fee,
		Timestamp:        l.now(),
	}

	if referrerID, ok := l.Referrer(ownerID); ok && fee.Sign() > 0 {
		referrerShare := Round(fee.Mul(l.fees.ReferralRate))
		rec.ReferrerPaid = referrerShare
		rec.PlatformReceived = fee.Sub(referrerShare)
		rec.ReferrerID = &referrerID
	}

	if !rec.ReferrerPaid.Add(rec.PlatformReceived).Equal(rec.FeeCharged) {
		l.log.Error().
			Str("owner", ownerID).
			Str("fee", rec.FeeCharged.String()).
			Str("referrer_paid", rec.ReferrerPaid.String()).
			Str("platform_received", rec.PlatformReceived.String()).
			Msg("fee split invariant violated")
		return FeeRecord{}, fmt.Errorf("fee for %s: %w", ownerID, ErrFeeSplitMismatch)
	}

	if rec.ReferrerID != nil && rec.ReferrerPaid.Sign() > 0 {
		if _, err := l.Credit(*rec.ReferrerID, rec.ReferrerPaid, EntryReferralCommission, tradeID.String()); err != nil {
			return FeeRecord{}, fmt.Errorf("credit referrer: %w", err)
		}
	}
	if rec.PlatformReceived.Sign() > 0 {
		if _, err := l.Credit(PlatformAccount, rec.PlatformReceived, EntryPlatformFee, tradeID.String()); err != nil {
			return FeeRecord{}, fmt.Errorf("credit platform: %w", err)
		}
	}

	if l.metrics != nil {
		l.metrics.FeesCharged.WithLabelValues(string(tradeType)).Inc()
	}
	return rec, nil
}
