package ledger

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Precision is the number of decimal places carried by every monetary
// amount. All amounts are rounded half-even at this precision before they
// touch a balance, so repeated funding and fee accumulation cannot drift.
const Precision = 6

// Round normalizes a monetary amount to the ledger precision.
func Round(d decimal.Decimal) decimal.Decimal {
	return d.RoundBank(Precision)
}

// EntryType discriminates ledger entries. Replaying all entries for an
// owner from zero must reproduce the wallet balance exactly, so every
// balance mutation goes through exactly one entry.
type EntryType string

const (
	EntryDeposit            EntryType = "deposit"
	EntryWithdrawal         EntryType = "withdrawal"
	EntryMarginLock         EntryType = "margin_lock"
	EntryPositionSettlement EntryType = "position_settlement"
	EntryTradeFee           EntryType = "trade_fee"
	EntryFundingPayment     EntryType = "funding_payment"
	EntryFundingReceipt     EntryType = "funding_receipt"
	EntryPredictionBuy      EntryType = "prediction_buy"
	EntryPredictionSell     EntryType = "prediction_sell"
	EntryPredictionPayout   EntryType = "prediction_payout"
	EntryReferralCommission EntryType = "referral_commission"
	EntryPlatformFee        EntryType = "platform_fee"
)

// Direction returns +1 for entry types that credit a wallet and -1 for
// types that debit it. Used by replay verification.
func (t EntryType) Direction() int {
	switch t {
	case EntryDeposit, EntryPositionSettlement, EntryFundingReceipt,
		EntryPredictionSell, EntryPredictionPayout, EntryReferralCommission,
		EntryPlatformFee:
		return 1
	case EntryWithdrawal, EntryMarginLock, EntryTradeFee,
		EntryFundingPayment, EntryPredictionBuy:
		return -1
	default:
		return 0
	}
}

// LedgerEntry is the append-only record of a single balance mutation.
// Invariant: BalanceAfter = BalanceBefore ± Amount.
type LedgerEntry struct {
	ID            uuid.UUID       `json:"id"`
	OwnerID       string          `json:"owner_id"`
	Type          EntryType       `json:"type"`
	Amount        decimal.Decimal `json:"amount"`
	BalanceBefore decimal.Decimal `json:"balance_before"`
	BalanceAfter  decimal.Decimal `json:"balance_after"`
	RelatedID     string          `json:"related_id"`
	Timestamp     time.Time       `json:"timestamp"`
}

// Wallet is the per-owner balance record. A debit never drives Balance
// negative for user wallets; system accounts (prediction float, platform)
// are exempt because their exposure is bounded elsewhere.
type Wallet struct {
	OwnerID        string          `json:"owner_id"`
	Balance        decimal.Decimal `json:"balance"`
	TotalDeposited decimal.Decimal `json:"total_deposited"`
	TotalWithdrawn decimal.Decimal `json:"total_withdrawn"`
	LifetimePnL    decimal.Decimal `json:"lifetime_pnl"`
}
