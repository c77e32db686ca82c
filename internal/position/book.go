package position

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"BabylonEngine/internal/event"
	"BabylonEngine/internal/ledger"
	"BabylonEngine/internal/market"
	"BabylonEngine/internal/observability"
)

var (
	ErrUnknownTicker         = errors.New("unknown ticker")
	ErrLeverageExceeded      = errors.New("leverage exceeds market maximum")
	ErrBelowMinOrderSize     = errors.New("order below minimum size")
	ErrInvalidOrder          = errors.New("invalid order")
	ErrPositionNotFound      = errors.New("position not found")
	ErrPositionAlreadyClosed = errors.New("position already closed")
)

// DirtyMarker records which positions changed for the persistence flush.
type DirtyMarker interface {
	MarkPosition(id string)
}

// positionState pairs a position with the mutex that makes its
// open/close/liquidate transitions atomic.
type positionState struct {
	mu sync.Mutex
	p  Position
}

// OpenRequest describes a position to open.
type OpenRequest struct {
	Ticker   string
	Side     Side
	Size     decimal.Decimal
	Leverage int
}

// OpenResult is returned from a successful open.
type OpenResult struct {
	Position Position
	Fee      ledger.FeeRecord
}

// CloseResult is returned from a successful close.
type CloseResult struct {
	Position       Position
	RealizedPnL    decimal.Decimal
	MarginReturned decimal.Decimal
	Fee            ledger.FeeRecord
}

// Book is the position ledger. It owns all position state; margin moves
// through the settlement ledger and prices come from the registry.
type Book struct {
	mu       sync.RWMutex
	byID     map[uuid.UUID]*positionState
	byTicker map[string]map[uuid.UUID]*positionState
	byOwner  map[string]map[uuid.UUID]*positionState

	registry        *market.Registry
	ledger          *ledger.Ledger
	maintenanceRate decimal.Decimal

	publisher event.Publisher
	dirty     DirtyMarker
	metrics   *observability.Metrics
	log       zerolog.Logger
	now       func() time.Time
}

// BookOption configures optional collaborators.
type BookOption func(*Book)

func WithPublisher(p event.Publisher) BookOption { return func(b *Book) { b.publisher = p } }
func WithDirtyMarker(m DirtyMarker) BookOption   { return func(b *Book) { b.dirty = m } }
func WithMetrics(m *observability.Metrics) BookOption {
	return func(b *Book) { b.metrics = m }
}
func WithClock(now func() time.Time) BookOption { return func(b *Book) { b.now = now } }

func NewBook(registry *market.Registry, settle *ledger.Ledger, maintenanceRate decimal.Decimal, opts ...BookOption) *Book {
	b := &Book{
		byID:            make(map[uuid.UUID]*positionState),
		byTicker:        make(map[string]map[uuid.UUID]*positionState),
		byOwner:         make(map[string]map[uuid.UUID]*positionState),
		registry:        registry,
		ledger:          settle,
		maintenanceRate: maintenanceRate,
		publisher:       event.NopPublisher{},
		log:             observability.NewLogger("position-book"),
		now:             time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Open validates, debits margin + fee as one atomic wallet step, and
// creates the position. Any failure leaves zero side effects.
func (b *Book) Open(ownerID string, req OpenRequest) (OpenResult, error) {
	if !req.Side.Valid() || req.Size.Sign() <= 0 || req.Leverage < 1 {
		b.countRejection("invalid_order")
		return OpenResult{}, fmt.Errorf("open %s %s: %w", req.Ticker, req.Side, ErrInvalidOrder)
	}

	m, ok := b.registry.Get(req.Ticker)
	if !ok {
		b.countRejection("unknown_ticker")
		return OpenResult{}, fmt.Errorf("open %s: %w", req.Ticker, ErrUnknownTicker)
	}
	if req.Leverage > m.MaxLeverage {
		b.countRejection("leverage_exceeded")
		return OpenResult{}, fmt.Errorf("open %s leverage %d > max %d: %w",
			req.Ticker, req.Leverage, m.MaxLeverage, ErrLeverageExceeded)
	}

	entryPrice := m.CurrentPrice
	notional := ledger.Round(req.Size.Mul(entryPrice))
	margin := ledger.Round(notional.Div(decimal.NewFromInt(int64(req.Leverage))))
	if margin.LessThan(m.MinOrderSize) {
		b.countRejection("below_min_order")
		return OpenResult{}, fmt.Errorf("open %s margin %s < min %s: %w",
			req.Ticker, margin, m.MinOrderSize, ErrBelowMinOrderSize)
	}

	id := uuid.New()
	fee := b.ledger.QuoteFee(ledger.TradePerpOpen, notional)

	// Margin and fee leave the wallet together or not at all. The batch
	// holds the wallet lock across check and mutation, so a concurrent
	// open cannot double-spend the same balance.
	_, err := b.ledger.DebitBatch(ownerID, []ledger.DebitItem{
		{Amount: margin, Type: ledger.EntryMarginLock, RelatedID: id.String()},
		{Amount: fee, Type: ledger.EntryTradeFee, RelatedID: id.String()},
	})
	if err != nil {
		b.countRejection("insufficient_funds")
		return OpenResult{}, err
	}

	feeRec, err := b.ledger.ProcessTradingFee(ownerID, ledger.TradePerpOpen, notional)
	if err != nil {
		// Roll the debits back; the split invariant failed before any
		// position state existed.
		b.ledger.Credit(ownerID, margin.Add(fee), ledger.EntryPositionSettlement, id.String())
		return OpenResult{}, fmt.Errorf("open %s fee processing: %w", req.Ticker, err)
	}

	now := b.now()
	p := Position{
		ID:               id,
		OwnerID:          ownerID,
		Ticker:           req.Ticker,
		Side:             req.Side,
		Size:             req.Size,
		EntryPrice:       entryPrice,
		Leverage:         req.Leverage,
		Margin:           margin,
		LiquidationPrice: LiquidationPriceFor(req.Side, entryPrice, req.Leverage, b.maintenanceRate),
		UnrealizedPnL:    decimal.Zero,
		FundingPaid:      decimal.Zero,
		Status:           StatusOpen,
		OpenedAt:         now,
	}
	b.insert(&positionState{p: p})

	b.registry.AddVolume(req.Ticker, notional)
	b.registry.AddOpenInterest(req.Ticker, notional)
	if b.dirty != nil {
		b.dirty.MarkPosition(id.String())
	}
	if b.metrics != nil {
		b.metrics.PositionsOpened.WithLabelValues(req.Ticker, string(req.Side)).Inc()
		b.metrics.OpenPositions.Inc()
	}
	b.log.Info().
		Str("position_id", id.String()).
		Str("owner", ownerID).
		Str("ticker", req.Ticker).
		Str("side", string(req.Side)).
		Str("margin", margin.String()).
		Msg("position opened")

	return OpenResult{Position: p, Fee: feeRec}, nil
}

// Close settles a position at the market price (or an explicit override).
// Losses are capped at posted margin: gross settlement never goes
// negative. Closing a terminal position fails with
// ErrPositionAlreadyClosed.
func (b *Book) Close(id uuid.UUID, exitOverride *decimal.Decimal) (CloseResult, error) {
	ps := b.lookup(id)
	if ps == nil {
		return CloseResult{}, fmt.Errorf("close %s: %w", id, ErrPositionNotFound)
	}

	ps.mu.Lock()
	defer ps.mu.Unlock()

	if !ps.p.IsOpen() {
		return CloseResult{}, fmt.Errorf("close %s: %w", id, ErrPositionAlreadyClosed)
	}

	exitPrice := decimal.Zero
	if exitOverride != nil && exitOverride.Sign() > 0 {
		exitPrice = *exitOverride
	} else {
		m, ok := b.registry.Get(ps.p.Ticker)
		if !ok {
			return CloseResult{}, fmt.Errorf("close %s: %w", ps.p.Ticker, ErrUnknownTicker)
		}
		exitPrice = m.CurrentPrice
	}

	realized := ps.p.PnLAt(exitPrice)
	gross := ps.p.Margin.Add(realized)
	if gross.Sign() < 0 {
		gross = decimal.Zero
	}
	fee := b.ledger.QuoteFee(ledger.TradePerpClose, gross)
	net := gross.Sub(fee)
	if net.Sign() < 0 {
		net = decimal.Zero
	}

	if _, err := b.ledger.CreditWithPnL(ps.p.OwnerID, net, realized, ledger.EntryPositionSettlement, id.String()); err != nil {
		return CloseResult{}, fmt.Errorf("close %s settlement: %w", id, err)
	}
	feeRec, err := b.ledger.ProcessTradingFee(ps.p.OwnerID, ledger.TradePerpClose, gross)
	if err != nil {
		return CloseResult{}, fmt.Errorf("close %s fee processing: %w", id, err)
	}

	now := b.now()
	ps.p.Status = StatusClosed
	ps.p.ClosedAt = &now
	ps.p.UnrealizedPnL = decimal.Zero

	b.registry.AddOpenInterest(ps.p.Ticker, ps.p.Size.Mul(ps.p.EntryPrice).Neg())
	b.registry.AddVolume(ps.p.Ticker, ps.p.Notional(exitPrice))
	if b.dirty != nil {
		b.dirty.MarkPosition(id.String())
	}
	if b.metrics != nil {
		b.metrics.PositionsClosed.WithLabelValues(ps.p.Ticker, "user").Inc()
		b.metrics.OpenPositions.Dec()
	}

	closed := ps.p
	b.publisher.PublishPositionClosed(event.PositionClosedEvent{
		PositionID:  id,
		OwnerID:     closed.OwnerID,
		Ticker:      closed.Ticker,
		RealizedPnL: realized,
		Timestamp:   now,
	})

	return CloseResult{
		Position:       closed,
		RealizedPnL:    realized,
		MarginReturned: gross,
		Fee:            feeRec,
	}, nil
}

// UpdatePositions recomputes unrealized PnL for every open position whose
// ticker appears in the price map. It never closes positions; liquidation
// is the monitor's concern.
func (b *Book) UpdatePositions(prices map[string]decimal.Decimal) {
	for ticker, price := range prices {
		if price.Sign() <= 0 {
			continue
		}
		for _, ps := range b.openOnTicker(ticker) {
			ps.mu.Lock()
			if ps.p.IsOpen() {
				ps.p.UnrealizedPnL = ps.p.PnLAt(price)
				if b.dirty != nil {
					b.dirty.MarkPosition(ps.p.ID.String())
				}
			}
			ps.mu.Unlock()
		}
	}
}

// forceClose transitions a position to Liquidated with full margin
// forfeiture. The margin stays where the open debit left it (no return,
// no fee); the realized loss still lands in lifetime PnL.
func (b *Book) forceClose(ps *positionState, fillPrice decimal.Decimal) (Position, bool) {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	if !ps.p.IsOpen() {
		return Position{}, false
	}

	now := b.now()
	ps.p.Status = StatusLiquidated
	ps.p.ClosedAt = &now
	ps.p.UnrealizedPnL = decimal.Zero

	b.ledger.CreditWithPnL(ps.p.OwnerID, decimal.Zero, ps.p.Margin.Neg(), ledger.EntryPositionSettlement, ps.p.ID.String())

	b.registry.AddOpenInterest(ps.p.Ticker, ps.p.Size.Mul(ps.p.EntryPrice).Neg())
	if b.dirty != nil {
		b.dirty.MarkPosition(ps.p.ID.String())
	}
	if b.metrics != nil {
		b.metrics.PositionsClosed.WithLabelValues(ps.p.Ticker, "liquidation").Inc()
		b.metrics.OpenPositions.Dec()
	}
	return ps.p, true
}

func (b *Book) insert(ps *positionState) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.byID[ps.p.ID] = ps
	if b.byTicker[ps.p.Ticker] == nil {
		b.byTicker[ps.p.Ticker] = make(map[uuid.UUID]*positionState)
	}
	b.byTicker[ps.p.Ticker][ps.p.ID] = ps
	if b.byOwner[ps.p.OwnerID] == nil {
		b.byOwner[ps.p.OwnerID] = make(map[uuid.UUID]*positionState)
	}
	b.byOwner[ps.p.OwnerID][ps.p.ID] = ps
}

func (b *Book) lookup(id uuid.UUID) *positionState {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.byID[id]
}

// openOnTicker returns the states currently indexed for a ticker.
func (b *Book) openOnTicker(ticker string) []*positionState {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]*positionState, 0, len(b.byTicker[ticker]))
	for _, ps := range b.byTicker[ticker] {
		out = append(out, ps)
	}
	return out
}

// Get returns a snapshot copy of one position.
func (b *Book) Get(id uuid.UUID) (Position, bool) {
	ps := b.lookup(id)
	if ps == nil {
		return Position{}, false
	}
	ps.mu.Lock()
	defer ps.mu.Unlock()
	return ps.p, true
}

// ByOwner returns snapshot copies of an owner's positions, oldest first.
func (b *Book) ByOwner(ownerID string) []Position {
	b.mu.RLock()
	states := make([]*positionState, 0, len(b.byOwner[ownerID]))
	for _, ps := range b.byOwner[ownerID] {
		states = append(states, ps)
	}
	b.mu.RUnlock()

	out := make([]Position, 0, len(states))
	for _, ps := range states {
		ps.mu.Lock()
		out = append(out, ps.p)
		ps.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OpenedAt.Before(out[j].OpenedAt) })
	return out
}

// OpenByTicker returns snapshot copies of open positions on a ticker.
func (b *Book) OpenByTicker(ticker string) []Position {
	out := make([]Position, 0)
	for _, ps := range b.openOnTicker(ticker) {
		ps.mu.Lock()
		if ps.p.IsOpen() {
			out = append(out, ps.p)
		}
		ps.mu.Unlock()
	}
	return out
}

// All returns snapshot copies of every position, oldest first.
func (b *Book) All() []Position {
	b.mu.RLock()
	states := make([]*positionState, 0, len(b.byID))
	for _, ps := range b.byID {
		states = append(states, ps)
	}
	b.mu.RUnlock()

	out := make([]Position, 0, len(states))
	for _, ps := range states {
		ps.mu.Lock()
		out = append(out, ps.p)
		ps.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OpenedAt.Before(out[j].OpenedAt) })
	return out
}

// Restore installs a persisted position during hydration or state
// import, replacing any in-memory state with the same ID.
func (b *Book) Restore(p Position) {
	b.insert(&positionState{p: p})
	if b.metrics != nil && p.IsOpen() {
		b.metrics.OpenPositions.Inc()
	}
}

func (b *Book) countRejection(reason string) {
	if b.metrics != nil {
		b.metrics.PositionsRejected.WithLabelValues(reason).Inc()
	}
}
