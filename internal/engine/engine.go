// Package engine composes the trading components behind one facade and
// classifies their errors for outer surfaces.
package engine

import (
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"BabylonEngine/internal/config"
	"BabylonEngine/internal/event"
	"BabylonEngine/internal/ledger"
	"BabylonEngine/internal/market"
	"BabylonEngine/internal/observability"
	"BabylonEngine/internal/persistence"
	"BabylonEngine/internal/position"
	"BabylonEngine/internal/prediction"
)

// TradingEngine owns the full in-memory trading state: the settlement
// ledger, the market registry, the position book with its liquidation
// monitor and funding processor, the prediction market maker, and the
// daily snapshot recorder.
type TradingEngine struct {
	ledger    *ledger.Ledger
	registry  *market.Registry
	book      *position.Book
	monitor   *position.Monitor
	funding   *position.FundingProcessor
	maker     *prediction.Maker
	snapshots *market.SnapshotRecorder

	tracker *persistence.Tracker
	log     zerolog.Logger
	now     func() time.Time
}

// Option configures optional collaborators.
type Option func(*options)

type options struct {
	tracker   *persistence.Tracker
	publisher event.Publisher
	metrics   *observability.Metrics
	rewards   ledger.RewardsSink
	now       func() time.Time
}

// WithTracker wires dirty-entity tracking for the persistence flush.
func WithTracker(t *persistence.Tracker) Option { return func(o *options) { o.tracker = t } }

// WithPublisher wires the outbound event stream.
func WithPublisher(p event.Publisher) Option { return func(o *options) { o.publisher = p } }

// WithMetrics wires Prometheus metrics.
func WithMetrics(m *observability.Metrics) Option { return func(o *options) { o.metrics = m } }

// WithRewardsSink forwards realized-PnL deltas to the points system.
func WithRewardsSink(s ledger.RewardsSink) Option { return func(o *options) { o.rewards = s } }

// WithClock fixes the time source, for tests.
func WithClock(now func() time.Time) Option { return func(o *options) { o.now = now } }

// New builds a fully wired engine from configuration. The liquidation
// monitor is installed as the registry's tick handler, so every applied
// price immediately sweeps that market's positions.
func New(cfg config.Config, opts ...Option) *TradingEngine {
	o := options{publisher: event.NopPublisher{}, now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}

	fees := ledger.FeeSchedule{
		PerpRate:       decimal.NewFromFloat(cfg.Fees.PerpFeeRate),
		PredictionRate: decimal.NewFromFloat(cfg.Fees.PredictionFeeRate),
		ReferralRate:   decimal.NewFromFloat(cfg.Fees.ReferralRate),
	}
	mmr := decimal.NewFromFloat(cfg.Engine.MaintenanceMarginRate)
	defaults := market.Defaults{
		MaxLeverage:  cfg.Engine.DefaultMaxLeverage,
		MinOrderSize: decimal.NewFromFloat(cfg.Engine.DefaultMinOrderSize),
		FundingRate:  decimal.NewFromFloat(cfg.Engine.DefaultFundingRate),
	}

	ledgerOpts := []ledger.Option{ledger.WithClock(o.now)}
	if o.tracker != nil {
		ledgerOpts = append(ledgerOpts, ledger.WithDirtyMarker(o.tracker))
	}
	if o.metrics != nil {
		ledgerOpts = append(ledgerOpts, ledger.WithMetrics(o.metrics))
	}
	if o.rewards != nil {
		ledgerOpts = append(ledgerOpts, ledger.WithRewardsSink(o.rewards))
	}
	settle := ledger.New(fees, ledgerOpts...)

	registryOpts := []market.RegistryOption{market.WithClock(o.now)}
	if o.tracker != nil {
		registryOpts = append(registryOpts, market.WithDirtyMarker(o.tracker))
	}
	if o.metrics != nil {
		registryOpts = append(registryOpts, market.WithMetrics(o.metrics))
	}
	registry := market.NewRegistry(defaults, registryOpts...)

	bookOpts := []position.BookOption{position.WithClock(o.now), position.WithPublisher(o.publisher)}
	if o.tracker != nil {
		bookOpts = append(bookOpts, position.WithDirtyMarker(o.tracker))
	}
	if o.metrics != nil {
		bookOpts = append(bookOpts, position.WithMetrics(o.metrics))
	}
	book := position.NewBook(registry, settle, mmr, bookOpts...)

	monitorOpts := []position.MonitorOption{position.MonitorWithClock(o.now), position.MonitorWithPublisher(o.publisher)}
	if o.tracker != nil {
		monitorOpts = append(monitorOpts, position.MonitorWithDirtyMarker(o.tracker))
	}
	if o.metrics != nil {
		monitorOpts = append(monitorOpts, position.MonitorWithMetrics(o.metrics))
	}
	monitor := position.NewMonitor(book, mmr, monitorOpts...)

	fundingOpts := []position.FundingOption{position.FundingWithClock(o.now), position.FundingWithPublisher(o.publisher)}
	if o.tracker != nil {
		fundingOpts = append(fundingOpts, position.FundingWithDirtyMarker(o.tracker))
	}
	if o.metrics != nil {
		fundingOpts = append(fundingOpts, position.FundingWithMetrics(o.metrics))
	}
	funding := position.NewFundingProcessor(book, registry, settle, fundingOpts...)

	makerOpts := []prediction.MakerOption{prediction.MakerWithClock(o.now)}
	if o.tracker != nil {
		makerOpts = append(makerOpts, prediction.MakerWithDirtyMarker(o.tracker))
	}
	if o.metrics != nil {
		makerOpts = append(makerOpts, prediction.MakerWithMetrics(o.metrics))
	}
	maker := prediction.NewMaker(settle, makerOpts...)

	var snapMarker market.SnapshotMarker
	if o.tracker != nil {
		snapMarker = o.tracker
	}
	snapshots := market.NewSnapshotRecorder(registry, snapMarker)

	registry.SetTickHandler(monitor.Sweep)

	return &TradingEngine{
		ledger:    settle,
		registry:  registry,
		book:      book,
		monitor:   monitor,
		funding:   funding,
		maker:     maker,
		snapshots: snapshots,
		tracker:   o.tracker,
		log:       observability.NewLogger("engine"),
		now:       o.now,
	}
}

// Component accessors, used by wiring and tests.

func (e *TradingEngine) Ledger() *ledger.Ledger                  { return e.ledger }
func (e *TradingEngine) Registry() *market.Registry              { return e.registry }
func (e *TradingEngine) Book() *position.Book                    { return e.book }
func (e *TradingEngine) Monitor() *position.Monitor              { return e.monitor }
func (e *TradingEngine) Funding() *position.FundingProcessor     { return e.funding }
func (e *TradingEngine) Maker() *prediction.Maker                { return e.maker }
func (e *TradingEngine) Snapshots() *market.SnapshotRecorder     { return e.snapshots }

// InitializeMarkets creates markets for instruments with a defined base
// price. Safe to call again with an overlapping set.
func (e *TradingEngine) InitializeMarkets(instruments []market.Instrument) {
	e.registry.Initialize(instruments)
}

// UpdatePrices applies a price map: market state first, then the
// per-ticker liquidation sweep via the tick handler, then unrealized
// PnL across the book.
func (e *TradingEngine) UpdatePrices(prices map[string]decimal.Decimal) {
	e.registry.UpdatePrices(prices)
	e.book.UpdatePositions(prices)
}

// UpdatePositions recomputes unrealized PnL without touching market
// state or triggering liquidations.
func (e *TradingEngine) UpdatePositions(prices map[string]decimal.Decimal) {
	e.book.UpdatePositions(prices)
}

// OpenPosition opens a leveraged position for the owner.
func (e *TradingEngine) OpenPosition(ownerID string, req position.OpenRequest) (position.OpenResult, error) {
	return e.book.Open(ownerID, req)
}

// ClosePosition settles a position at the current market price, or at
// an explicit override price when given.
func (e *TradingEngine) ClosePosition(id uuid.UUID, exitOverride *decimal.Decimal) (position.CloseResult, error) {
	return e.book.Close(id, exitOverride)
}

// ProcessFunding runs the funding sweep for the boundary containing now.
func (e *TradingEngine) ProcessFunding(now time.Time) bool {
	return e.funding.Process(now)
}

// RecordDailySnapshot upserts the OHLC row for every market at the date.
func (e *TradingEngine) RecordDailySnapshot(date time.Time) {
	e.snapshots.RecordDaily(date)
}

// Deposit credits external funds into a wallet.
func (e *TradingEngine) Deposit(ownerID string, amount decimal.Decimal, relatedID string) (ledger.LedgerEntry, error) {
	return e.ledger.Deposit(ownerID, amount, relatedID)
}

// Withdraw debits funds out of a wallet.
func (e *TradingEngine) Withdraw(ownerID string, amount decimal.Decimal, relatedID string) (ledger.LedgerEntry, error) {
	return e.ledger.Withdraw(ownerID, amount, relatedID)
}

// SetReferrer registers a referral relationship for fee splitting.
func (e *TradingEngine) SetReferrer(ownerID, referrerID string) {
	e.ledger.SetReferrer(ownerID, referrerID)
}

// CreatePredictionMarket opens a binary LMSR market.
func (e *TradingEngine) CreatePredictionMarket(question string, liquidity float64) (prediction.Market, error) {
	return e.maker.CreateMarket(question, liquidity)
}

// BuyPrediction purchases outcome shares.
func (e *TradingEngine) BuyPrediction(ownerID string, marketID uuid.UUID, side prediction.Side, shares float64) (prediction.TradeResult, error) {
	return e.maker.Buy(ownerID, marketID, side, shares)
}

// SellPrediction returns outcome shares to the curve.
func (e *TradingEngine) SellPrediction(ownerID string, marketID uuid.UUID, side prediction.Side, shares float64) (prediction.TradeResult, error) {
	return e.maker.Sell(ownerID, marketID, side, shares)
}

// ResolvePrediction settles a binary market to its outcome.
func (e *TradingEngine) ResolvePrediction(marketID uuid.UUID, outcome prediction.Side) error {
	return e.maker.Resolve(marketID, outcome)
}

// GetMarkets returns all perpetual markets, sorted by ticker.
func (e *TradingEngine) GetMarkets() []market.Market { return e.registry.List() }

// GetMarket returns one perpetual market.
func (e *TradingEngine) GetMarket(ticker string) (market.Market, bool) {
	return e.registry.Get(ticker)
}

// GetUserPositions returns an owner's positions, oldest first.
func (e *TradingEngine) GetUserPositions(ownerID string) []position.Position {
	return e.book.ByOwner(ownerID)
}

// GetPosition returns one position by ID.
func (e *TradingEngine) GetPosition(id uuid.UUID) (position.Position, bool) {
	return e.book.Get(id)
}
