package prediction

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"BabylonEngine/internal/ledger"
	"BabylonEngine/internal/observability"
)

var (
	ErrMarketNotFound     = errors.New("prediction market not found")
	ErrMarketResolved     = errors.New("prediction market already resolved")
	ErrInvalidLiquidity   = errors.New("liquidity parameter must be positive")
	ErrInvalidShares      = errors.New("share amount must be positive")
	ErrInsufficientShares = errors.New("not enough shares to sell")
)

// Side of a binary prediction market.
type Side string

const (
	SideYes Side = "yes"
	SideNo  Side = "no"
)

// Valid reports whether the side is one of the two known values.
func (s Side) Valid() bool {
	return s == SideYes || s == SideNo
}

// MarketStatus of a prediction market. Resolved is terminal.
type MarketStatus string

const (
	MarketOpen     MarketStatus = "open"
	MarketResolved MarketStatus = "resolved"
)

// Market is the public snapshot of one binary prediction market. Share
// quantities and the liquidity parameter live in float64 for the LMSR
// exponentials; money crosses into decimal at the wallet boundary.
type Market struct {
	ID         uuid.UUID    `json:"id"`
	Question   string       `json:"question"`
	Liquidity  float64      `json:"liquidity"`
	QYes       float64      `json:"q_yes"`
	QNo        float64      `json:"q_no"`
	PriceYes   float64      `json:"price_yes"`
	PriceNo    float64      `json:"price_no"`
	Status     MarketStatus `json:"status"`
	Outcome    *Side        `json:"outcome,omitempty"`
	CreatedAt  time.Time    `json:"created_at"`
	ResolvedAt *time.Time   `json:"resolved_at,omitempty"`
}

// Position is one owner's share holdings in one market. CostBasis is the
// net amount spent acquiring the current holdings (buys add cost, sells
// subtract refunds); resolution realizes payout minus basis as PnL.
type Position struct {
	MarketID  uuid.UUID       `json:"market_id"`
	OwnerID   string          `json:"owner_id"`
	SharesYes float64         `json:"shares_yes"`
	SharesNo  float64         `json:"shares_no"`
	CostBasis decimal.Decimal `json:"cost_basis"`
}

// TradeResult reports the money side of a buy or sell.
type TradeResult struct {
	Cost     decimal.Decimal `json:"cost"`
	Fee      decimal.Decimal `json:"fee"`
	PriceYes float64         `json:"price_yes"`
}

// DirtyMarker records changed prediction markets (and their positions)
// for the persistence flush.
type DirtyMarker interface {
	MarkPredictionMarket(id string)
}

// marketState pairs a market with its holder positions under one mutex;
// share quantities and wallet moves for a trade commit together.
type marketState struct {
	mu        sync.Mutex
	m         Market
	positions map[string]*Position
}

// Maker owns all prediction-market state and trades against the LMSR
// curve. Trade proceeds sit in the prediction float account; its
// worst-case exposure per market is bounded by b·ln(2).
type Maker struct {
	mu      sync.RWMutex
	markets map[uuid.UUID]*marketState

	ledger *ledger.Ledger

	dirty   DirtyMarker
	metrics *observability.Metrics
	log     zerolog.Logger
	now     func() time.Time
}

// MakerOption configures optional collaborators.
type MakerOption func(*Maker)

func MakerWithDirtyMarker(d DirtyMarker) MakerOption {
	return func(mk *Maker) { mk.dirty = d }
}
func MakerWithMetrics(m *observability.Metrics) MakerOption {
	return func(mk *Maker) { mk.metrics = m }
}
func MakerWithClock(now func() time.Time) MakerOption {
	return func(mk *Maker) { mk.now = now }
}

func NewMaker(settle *ledger.Ledger, opts ...MakerOption) *Maker {
	mk := &Maker{
		markets: make(map[uuid.UUID]*marketState),
		ledger:  settle,
		log:     observability.NewLogger("prediction-maker"),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(mk)
	}
	return mk
}

// CreateMarket opens a new binary market. The liquidity parameter b
// controls depth: a trade of b shares moves the price meaningfully, and
// the maker's worst-case loss is b·ln(2).
func (mk *Maker) CreateMarket(question string, liquidity float64) (Market, error) {
	if liquidity <= 0 {
		return Market{}, fmt.Errorf("create market %q: %w", question, ErrInvalidLiquidity)
	}

	m := Market{
		ID:        uuid.New(),
		Question:  question,
		Liquidity: liquidity,
		PriceYes:  0.5,
		PriceNo:   0.5,
		Status:    MarketOpen,
		CreatedAt: mk.now(),
	}

	mk.mu.Lock()
	mk.markets[m.ID] = &marketState{m: m, positions: make(map[string]*Position)}
	mk.mu.Unlock()

	if mk.dirty != nil {
		mk.dirty.MarkPredictionMarket(m.ID.String())
	}
	mk.log.Info().
		Str("market_id", m.ID.String()).
		Str("question", question).
		Float64("liquidity", liquidity).
		Msg("prediction market created")
	return m, nil
}

// Buy purchases shares on one side. The LMSR cost plus the trading fee
// are debited as one atomic wallet step; failure leaves the curve and
// the wallet untouched.
func (mk *Maker) Buy(ownerID string, marketID uuid.UUID, side Side, shares float64) (TradeResult, error) {
	if !side.Valid() || shares <= 0 {
		return TradeResult{}, fmt.Errorf("buy on %s: %w", marketID, ErrInvalidShares)
	}

	ms := mk.lookup(marketID)
	if ms == nil {
		return TradeResult{}, fmt.Errorf("buy on %s: %w", marketID, ErrMarketNotFound)
	}

	ms.mu.Lock()
	defer ms.mu.Unlock()

	if ms.m.Status != MarketOpen {
		return TradeResult{}, fmt.Errorf("buy on %s: %w", marketID, ErrMarketResolved)
	}

	costF := tradeCost(ms.m.Liquidity, ms.m.QYes, ms.m.QNo, shares, side)
	costDec := ledger.Round(decimal.NewFromFloat(costF))
	if costDec.Sign() <= 0 {
		return TradeResult{}, fmt.Errorf("buy on %s: %w", marketID, ErrInvalidShares)
	}
	fee := mk.ledger.QuoteFee(ledger.TradePrediction, costDec)

	_, err := mk.ledger.DebitBatch(ownerID, []ledger.DebitItem{
		{Amount: costDec, Type: ledger.EntryPredictionBuy, RelatedID: marketID.String()},
		{Amount: fee, Type: ledger.EntryTradeFee, RelatedID: marketID.String()},
	})
	if err != nil {
		return TradeResult{}, err
	}
	mk.ledger.Credit(ledger.PredictionFloatAccount, costDec, ledger.EntryPredictionBuy, marketID.String())
	if _, err := mk.ledger.ProcessTradingFee(ownerID, ledger.TradePrediction, costDec); err != nil {
		return TradeResult{}, fmt.Errorf("buy on %s fee processing: %w", marketID, err)
	}

	if side == SideYes {
		ms.m.QYes += shares
	} else {
		ms.m.QNo += shares
	}
	ms.m.PriceYes = priceYes(ms.m.Liquidity, ms.m.QYes, ms.m.QNo)
	ms.m.PriceNo = 1 - ms.m.PriceYes

	pos := ms.positions[ownerID]
	if pos == nil {
		pos = &Position{MarketID: marketID, OwnerID: ownerID, CostBasis: decimal.Zero}
		ms.positions[ownerID] = pos
	}
	if side == SideYes {
		pos.SharesYes += shares
	} else {
		pos.SharesNo += shares
	}
	pos.CostBasis = pos.CostBasis.Add(costDec)

	mk.afterTrade(marketID, side, "buy")
	return TradeResult{Cost: costDec, Fee: fee, PriceYes: ms.m.PriceYes}, nil
}

// Sell returns shares to the curve for the LMSR refund, minus the
// trading fee. Selling more shares than held fails before any mutation.
func (mk *Maker) Sell(ownerID string, marketID uuid.UUID, side Side, shares float64) (TradeResult, error) {
	if !side.Valid() || shares <= 0 {
		return TradeResult{}, fmt.Errorf("sell on %s: %w", marketID, ErrInvalidShares)
	}

	ms := mk.lookup(marketID)
	if ms == nil {
		return TradeResult{}, fmt.Errorf("sell on %s: %w", marketID, ErrMarketNotFound)
	}

	ms.mu.Lock()
	defer ms.mu.Unlock()

	if ms.m.Status != MarketOpen {
		return TradeResult{}, fmt.Errorf("sell on %s: %w", marketID, ErrMarketResolved)
	}

	pos := ms.positions[ownerID]
	held := 0.0
	if pos != nil {
		if side == SideYes {
			held = pos.SharesYes
		} else {
			held = pos.SharesNo
		}
	}
	if shares > held {
		return TradeResult{}, fmt.Errorf("sell %g of %g held on %s: %w",
			shares, held, marketID, ErrInsufficientShares)
	}

	refundF := -tradeCost(ms.m.Liquidity, ms.m.QYes, ms.m.QNo, -shares, side)
	refundDec := ledger.Round(decimal.NewFromFloat(refundF))
	if refundDec.Sign() < 0 {
		refundDec = decimal.Zero
	}
	fee := mk.ledger.QuoteFee(ledger.TradePrediction, refundDec)
	net := refundDec.Sub(fee)
	if net.Sign() < 0 {
		net = decimal.Zero
	}

	if refundDec.Sign() > 0 {
		if _, err := mk.ledger.Debit(ledger.PredictionFloatAccount, refundDec, ledger.EntryPredictionSell, marketID.String()); err != nil {
			return TradeResult{}, fmt.Errorf("sell on %s float debit: %w", marketID, err)
		}
	}
	if _, err := mk.ledger.Credit(ownerID, net, ledger.EntryPredictionSell, marketID.String()); err != nil {
		return TradeResult{}, fmt.Errorf("sell on %s: %w", marketID, err)
	}
	if _, err := mk.ledger.ProcessTradingFee(ownerID, ledger.TradePrediction, refundDec); err != nil {
		return TradeResult{}, fmt.Errorf("sell on %s fee processing: %w", marketID, err)
	}

	if side == SideYes {
		ms.m.QYes -= shares
		pos.SharesYes -= shares
	} else {
		ms.m.QNo -= shares
		pos.SharesNo -= shares
	}
	ms.m.PriceYes = priceYes(ms.m.Liquidity, ms.m.QYes, ms.m.QNo)
	ms.m.PriceNo = 1 - ms.m.PriceYes
	pos.CostBasis = pos.CostBasis.Sub(refundDec)

	mk.afterTrade(marketID, side, "sell")
	return TradeResult{Cost: refundDec, Fee: fee, PriceYes: ms.m.PriceYes}, nil
}

// Resolve settles the market: every winning share pays out exactly 1
// from the float account, losing shares pay nothing, and each holder's
// realized PnL (payout minus cost basis) lands in lifetime PnL. The
// market is immutable afterwards; resolving twice fails.
func (mk *Maker) Resolve(marketID uuid.UUID, outcome Side) error {
	if !outcome.Valid() {
		return fmt.Errorf("resolve %s: %w", marketID, ErrInvalidShares)
	}

	ms := mk.lookup(marketID)
	if ms == nil {
		return fmt.Errorf("resolve %s: %w", marketID, ErrMarketNotFound)
	}

	ms.mu.Lock()
	defer ms.mu.Unlock()

	if ms.m.Status != MarketOpen {
		return fmt.Errorf("resolve %s: %w", marketID, ErrMarketResolved)
	}

	for _, pos := range ms.positions {
		winning := pos.SharesYes
		if outcome == SideNo {
			winning = pos.SharesNo
		}
		payout := ledger.Round(decimal.NewFromFloat(winning))
		if payout.Sign() < 0 {
			payout = decimal.Zero
		}
		realized := payout.Sub(pos.CostBasis)

		if payout.Sign() > 0 {
			if _, err := mk.ledger.Debit(ledger.PredictionFloatAccount, payout, ledger.EntryPredictionPayout, marketID.String()); err != nil {
				mk.log.Error().Err(err).
					Str("market_id", marketID.String()).
					Str("owner", pos.OwnerID).
					Msg("payout float debit failed")
				continue
			}
		}
		if _, err := mk.ledger.CreditWithPnL(pos.OwnerID, payout, realized, ledger.EntryPredictionPayout, marketID.String()); err != nil {
			mk.log.Error().Err(err).
				Str("market_id", marketID.String()).
				Str("owner", pos.OwnerID).
				Msg("payout credit failed")
			continue
		}
	}

	now := mk.now()
	out := outcome
	ms.m.Status = MarketResolved
	ms.m.Outcome = &out
	ms.m.ResolvedAt = &now

	if mk.dirty != nil {
		mk.dirty.MarkPredictionMarket(marketID.String())
	}
	if mk.metrics != nil {
		mk.metrics.PredictionResolved.Inc()
	}
	mk.log.Info().
		Str("market_id", marketID.String()).
		Str("outcome", string(outcome)).
		Msg("prediction market resolved")
	return nil
}

func (mk *Maker) afterTrade(marketID uuid.UUID, side Side, direction string) {
	if mk.dirty != nil {
		mk.dirty.MarkPredictionMarket(marketID.String())
	}
	if mk.metrics != nil {
		mk.metrics.PredictionTrades.WithLabelValues(string(side), direction).Inc()
	}
}

func (mk *Maker) lookup(id uuid.UUID) *marketState {
	mk.mu.RLock()
	defer mk.mu.RUnlock()
	return mk.markets[id]
}

// GetMarket returns a snapshot copy of one market.
func (mk *Maker) GetMarket(id uuid.UUID) (Market, bool) {
	ms := mk.lookup(id)
	if ms == nil {
		return Market{}, false
	}
	ms.mu.Lock()
	defer ms.mu.Unlock()
	return ms.m, true
}

// Markets returns snapshot copies of all markets, oldest first.
func (mk *Maker) Markets() []Market {
	mk.mu.RLock()
	states := make([]*marketState, 0, len(mk.markets))
	for _, ms := range mk.markets {
		states = append(states, ms)
	}
	mk.mu.RUnlock()

	out := make([]Market, 0, len(states))
	for _, ms := range states {
		ms.mu.Lock()
		out = append(out, ms.m)
		ms.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// GetPosition returns a snapshot copy of one owner's holdings in one
// market.
func (mk *Maker) GetPosition(marketID uuid.UUID, ownerID string) (Position, bool) {
	ms := mk.lookup(marketID)
	if ms == nil {
		return Position{}, false
	}
	ms.mu.Lock()
	defer ms.mu.Unlock()
	pos := ms.positions[ownerID]
	if pos == nil {
		return Position{}, false
	}
	return *pos, true
}

// Positions returns snapshot copies of every holding in one market.
func (mk *Maker) Positions(marketID uuid.UUID) []Position {
	ms := mk.lookup(marketID)
	if ms == nil {
		return nil
	}
	ms.mu.Lock()
	defer ms.mu.Unlock()
	out := make([]Position, 0, len(ms.positions))
	for _, pos := range ms.positions {
		out = append(out, *pos)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OwnerID < out[j].OwnerID })
	return out
}

// Restore installs a persisted market and its positions during hydration
// or state import.
func (mk *Maker) Restore(m Market, positions []Position) {
	ms := &marketState{m: m, positions: make(map[string]*Position)}
	for i := range positions {
		pos := positions[i]
		ms.positions[pos.OwnerID] = &pos
	}
	mk.mu.Lock()
	mk.markets[m.ID] = ms
	mk.mu.Unlock()
}
