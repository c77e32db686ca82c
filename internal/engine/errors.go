package engine

import (
	"errors"

	"BabylonEngine/internal/ledger"
	"BabylonEngine/internal/position"
	"BabylonEngine/internal/prediction"
)

// ErrKind classifies engine errors for callers that map them onto an
// outer surface (API status codes, alert severities).
type ErrKind int

const (
	KindInternal ErrKind = iota
	KindValidation
	KindInsufficientFunds
	KindNotFound
	KindStateConflict
)

func (k ErrKind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindInsufficientFunds:
		return "insufficient_funds"
	case KindNotFound:
		return "not_found"
	case KindStateConflict:
		return "state_conflict"
	default:
		return "internal"
	}
}

// KindOf maps an error to its kind via the sentinel errors of the
// underlying packages.
func KindOf(err error) ErrKind {
	switch {
	case err == nil:
		return KindInternal
	case errors.Is(err, ledger.ErrInsufficientFunds):
		return KindInsufficientFunds
	case errors.Is(err, position.ErrPositionNotFound),
		errors.Is(err, position.ErrUnknownTicker),
		errors.Is(err, prediction.ErrMarketNotFound):
		return KindNotFound
	case errors.Is(err, position.ErrPositionAlreadyClosed),
		errors.Is(err, prediction.ErrMarketResolved):
		return KindStateConflict
	case errors.Is(err, position.ErrLeverageExceeded),
		errors.Is(err, position.ErrBelowMinOrderSize),
		errors.Is(err, position.ErrInvalidOrder),
		errors.Is(err, ledger.ErrInvalidAmount),
		errors.Is(err, prediction.ErrInvalidShares),
		errors.Is(err, prediction.ErrInvalidLiquidity),
		errors.Is(err, prediction.ErrInsufficientShares):
		return KindValidation
	case errors.Is(err, ledger.ErrFeeSplitMismatch):
		return KindInternal
	default:
		return KindInternal
	}
}
