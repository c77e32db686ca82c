// Package ledger implements the settlement ledger: per-owner wallet
// accounting, the append-only entry log, and trading-fee splitting.
package ledger

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"BabylonEngine/internal/observability"
)

var (
	// ErrInsufficientFunds is returned when a debit would drive a user
	// wallet balance negative. No state is mutated when it is returned.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrInvalidAmount is returned for zero or negative amounts.
	ErrInvalidAmount = errors.New("amount must be positive")
)

// System accounts are owned by the platform, not a user. Their balances
// may go negative: the prediction float's worst-case exposure is bounded
// by the LMSR liquidity parameter, and the platform account only receives.
const (
	PlatformAccount        = "system:platform"
	PredictionFloatAccount = "system:prediction_float"
)

// IsSystemAccount reports whether an owner ID names a platform-held account.
func IsSystemAccount(ownerID string) bool {
	return strings.HasPrefix(ownerID, "system:")
}

// RewardsSink receives realized-PnL deltas for the platform's points
// system. Delivery is best-effort: a sink failure never rolls back the
// ledger mutation that produced the delta.
type RewardsSink interface {
	OnRealizedPnL(ownerID string, delta decimal.Decimal)
}

// DirtyMarker records which wallets changed so the persistence flush can
// limit its write set. Implemented by persistence.Tracker.
type DirtyMarker interface {
	MarkWallet(ownerID string)
}

// walletState pairs a wallet with its entry log and a mutex making
// {balance check, balance mutation, entry append} one atomic step.
type walletState struct {
	mu      sync.Mutex
	wallet  Wallet
	entries []LedgerEntry
}

// Ledger is the single authority over wallet balances.
type Ledger struct {
	mu        sync.RWMutex
	wallets   map[string]*walletState
	referrers map[string]string

	fees FeeSchedule

	rewards RewardsSink
	dirty   DirtyMarker
	metrics *observability.Metrics
	log     zerolog.Logger
	now     func() time.Time
}

// Option configures optional collaborators.
type Option func(*Ledger)

func WithRewardsSink(s RewardsSink) Option  { return func(l *Ledger) { l.rewards = s } }
func WithDirtyMarker(m DirtyMarker) Option  { return func(l *Ledger) { l.dirty = m } }
func WithMetrics(m *observability.Metrics) Option {
	return func(l *Ledger) { l.metrics = m }
}
func WithClock(now func() time.Time) Option { return func(l *Ledger) { l.now = now } }

func New(fees FeeSchedule, opts ...Option) *Ledger {
	l := &Ledger{
		wallets:   make(map[string]*walletState),
		referrers: make(map[string]string),
		fees:      fees,
		log:       observability.NewLogger("ledger"),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *Ledger) getOrCreate(ownerID string) *walletState {
	l.mu.RLock()
	ws := l.wallets[ownerID]
	l.mu.RUnlock()
	if ws != nil {
		return ws
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if ws = l.wallets[ownerID]; ws == nil {
		ws = &walletState{wallet: Wallet{
			OwnerID:        ownerID,
			Balance:        decimal.Zero,
			TotalDeposited: decimal.Zero,
			TotalWithdrawn: decimal.Zero,
			LifetimePnL:    decimal.Zero,
		}}
		l.wallets[ownerID] = ws
	}
	return ws
}

// Debit removes amount from the owner's wallet. Fails with
// ErrInsufficientFunds before any mutation if the balance does not cover
// the amount; system accounts skip the check.
func (l *Ledger) Debit(ownerID string, amount decimal.Decimal, typ EntryType, relatedID string) (LedgerEntry, error) {
	amount = Round(amount)
	if amount.Sign() <= 0 {
		return LedgerEntry{}, fmt.Errorf("debit %s: %w", ownerID, ErrInvalidAmount)
	}

	ws := l.getOrCreate(ownerID)
	ws.mu.Lock()
	defer ws.mu.Unlock()

	if !IsSystemAccount(ownerID) && ws.wallet.Balance.LessThan(amount) {
		return LedgerEntry{}, fmt.Errorf("debit %s %s for %s: %w",
			amount, ownerID, typ, ErrInsufficientFunds)
	}

	entry := l.applyLocked(ws, amount.Neg(), typ, relatedID)
	if typ == EntryWithdrawal {
		ws.wallet.TotalWithdrawn = ws.wallet.TotalWithdrawn.Add(amount)
	}
	return entry, nil
}

// DebitBatch applies several debits to one wallet as a single atomic
// step: either the balance covers the total and every debit lands, or
// nothing is mutated. Used by position open (margin + fee).
func (l *Ledger) DebitBatch(ownerID string, items []DebitItem) ([]LedgerEntry, error) {
	total := decimal.Zero
	for i := range items {
		items[i].Amount = Round(items[i].Amount)
		if items[i].Amount.Sign() < 0 {
			return nil, fmt.Errorf("debit batch %s: %w", ownerID, ErrInvalidAmount)
		}
		total = total.Add(items[i].Amount)
	}
	if total.Sign() <= 0 {
		return nil, fmt.Errorf("debit batch %s: %w", ownerID, ErrInvalidAmount)
	}

	ws := l.getOrCreate(ownerID)
	ws.mu.Lock()
	defer ws.mu.Unlock()

	if !IsSystemAccount(ownerID) && ws.wallet.Balance.LessThan(total) {
		return nil, fmt.Errorf("debit %s %s: %w", total, ownerID, ErrInsufficientFunds)
	}

	entries := make([]LedgerEntry, 0, len(items))
	for _, item := range items {
		if item.Amount.Sign() == 0 {
			continue
		}
		entries = append(entries, l.applyLocked(ws, item.Amount.Neg(), item.Type, item.RelatedID))
	}
	return entries, nil
}

// DebitItem is one leg of a DebitBatch.
type DebitItem struct {
	Amount    decimal.Decimal
	Type      EntryType
	RelatedID string
}

// Credit adds amount to the owner's wallet. Always succeeds for positive
// amounts; a zero amount is a no-op returning an empty entry.
func (l *Ledger) Credit(ownerID string, amount decimal.Decimal, typ EntryType, relatedID string) (LedgerEntry, error) {
	amount = Round(amount)
	if amount.Sign() < 0 {
		return LedgerEntry{}, fmt.Errorf("credit %s: %w", ownerID, ErrInvalidAmount)
	}
	if amount.Sign() == 0 {
		return LedgerEntry{}, nil
	}

	ws := l.getOrCreate(ownerID)
	ws.mu.Lock()
	entry := l.applyLocked(ws, amount, typ, relatedID)
	if typ == EntryDeposit {
		ws.wallet.TotalDeposited = ws.wallet.TotalDeposited.Add(amount)
	}
	ws.mu.Unlock()
	return entry, nil
}

// CreditWithPnL credits a settlement amount and records the realized PnL
// it carries: LifetimePnL moves by pnl and the delta is forwarded to the
// rewards sink. The sink call happens after the balance commit so a sink
// failure cannot roll back the credit.
func (l *Ledger) CreditWithPnL(ownerID string, amount, pnl decimal.Decimal, typ EntryType, relatedID string) (LedgerEntry, error) {
	amount = Round(amount)
	pnl = Round(pnl)
	if amount.Sign() < 0 {
		return LedgerEntry{}, fmt.Errorf("credit %s: %w", ownerID, ErrInvalidAmount)
	}

	ws := l.getOrCreate(ownerID)
	ws.mu.Lock()
	var entry LedgerEntry
	if amount.Sign() > 0 {
		entry = l.applyLocked(ws, amount, typ, relatedID)
	}
	ws.wallet.LifetimePnL = ws.wallet.LifetimePnL.Add(pnl)
	ws.mu.Unlock()

	if l.dirty != nil {
		l.dirty.MarkWallet(ownerID)
	}
	if l.rewards != nil && !pnl.IsZero() {
		l.rewards.OnRealizedPnL(ownerID, pnl)
	}
	return entry, nil
}

// applyLocked mutates the balance and appends the matching entry. Caller
// holds ws.mu. delta is signed: positive credits, negative debits.
func (l *Ledger) applyLocked(ws *walletState, delta decimal.Decimal, typ EntryType, relatedID string) LedgerEntry {
	before := ws.wallet.Balance
	ws.wallet.Balance = before.Add(delta)

	entry := LedgerEntry{
		ID:            uuid.New(),
		OwnerID:       ws.wallet.OwnerID,
		Type:          typ,
		Amount:        delta.Abs(),
		BalanceBefore: before,
		BalanceAfter:  ws.wallet.Balance,
		RelatedID:     relatedID,
		Timestamp:     l.now(),
	}
	ws.entries = append(ws.entries, entry)

	if l.dirty != nil {
		l.dirty.MarkWallet(ws.wallet.OwnerID)
	}
	if l.metrics != nil {
		l.metrics.LedgerEntries.WithLabelValues(string(typ)).Inc()
	}
	return entry
}

// Deposit credits external funds into a wallet.
func (l *Ledger) Deposit(ownerID string, amount decimal.Decimal, relatedID string) (LedgerEntry, error) {
	return l.Credit(ownerID, amount, EntryDeposit, relatedID)
}

// Withdraw debits funds out to the external world.
func (l *Ledger) Withdraw(ownerID string, amount decimal.Decimal, relatedID string) (LedgerEntry, error) {
	return l.Debit(ownerID, amount, EntryWithdrawal, relatedID)
}

// Balance returns the current wallet balance (zero for unknown owners).
func (l *Ledger) Balance(ownerID string) decimal.Decimal {
	l.mu.RLock()
	ws := l.wallets[ownerID]
	l.mu.RUnlock()
	if ws == nil {
		return decimal.Zero
	}
	ws.mu.Lock()
	defer ws.mu.Unlock()
	return ws.wallet.Balance
}

// GetWallet returns a snapshot copy of the owner's wallet.
func (l *Ledger) GetWallet(ownerID string) (Wallet, bool) {
	l.mu.RLock()
	ws := l.wallets[ownerID]
	l.mu.RUnlock()
	if ws == nil {
		return Wallet{}, false
	}
	ws.mu.Lock()
	defer ws.mu.Unlock()
	return ws.wallet, true
}

// Entries returns a copy of the owner's entry log in append order.
func (l *Ledger) Entries(ownerID string) []LedgerEntry {
	l.mu.RLock()
	ws := l.wallets[ownerID]
	l.mu.RUnlock()
	if ws == nil {
		return nil
	}
	ws.mu.Lock()
	defer ws.mu.Unlock()
	out := make([]LedgerEntry, len(ws.entries))
	copy(out, ws.entries)
	return out
}

// ReplayBalance recomputes the owner's balance from the entry log. Used
// by invariant checks and tests.
func (l *Ledger) ReplayBalance(ownerID string) decimal.Decimal {
	balance := decimal.Zero
	for _, e := range l.Entries(ownerID) {
		balance = balance.Add(e.Amount.Mul(decimal.NewFromInt(int64(e.Type.Direction()))))
	}
	return balance
}

// Wallets returns snapshot copies of all wallets, for persistence flush.
func (l *Ledger) Wallets() []Wallet {
	l.mu.RLock()
	states := make([]*walletState, 0, len(l.wallets))
	for _, ws := range l.wallets {
		states = append(states, ws)
	}
	l.mu.RUnlock()

	out := make([]Wallet, 0, len(states))
	for _, ws := range states {
		ws.mu.Lock()
		out = append(out, ws.wallet)
		ws.mu.Unlock()
	}
	return out
}

// RestoreWallet installs a persisted wallet during hydration. Existing
// in-memory state for the owner is replaced.
func (l *Ledger) RestoreWallet(w Wallet) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.wallets[w.OwnerID] = &walletState{wallet: w}
}
