package market

import (
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"BabylonEngine/internal/observability"
)

// DirtyMarker records which markets changed so the persistence flush can
// limit its write set.
type DirtyMarker interface {
	MarkMarket(ticker string)
}

// TickHandler is invoked once per updated ticker after the market's own
// state has been committed. The liquidation sweep hangs off this hook.
type TickHandler func(ticker string, price decimal.Decimal)

// pricePoint is one sample in the rolling 24h window.
type pricePoint struct {
	ts    time.Time
	price decimal.Decimal
}

type volumePoint struct {
	ts     time.Time
	amount decimal.Decimal
}

// marketState pairs a market with its own mutex and rolling windows.
// Per-market locking keeps tick latency independent of market count.
type marketState struct {
	mu      sync.RWMutex
	m       Market
	prices  []pricePoint
	volumes []volumePoint
}

// Defaults supplies registry-level fallbacks for instrument parameters.
type Defaults struct {
	MaxLeverage  int
	MinOrderSize decimal.Decimal
	FundingRate  decimal.Decimal
}

// Registry owns all perpetual-market state. It depends on nothing else in
// the engine; price consumers subscribe through the tick handler.
type Registry struct {
	mu       sync.RWMutex
	markets  map[string]*marketState
	defaults Defaults

	handler TickHandler
	dirty   DirtyMarker
	metrics *observability.Metrics
	log     zerolog.Logger
	now     func() time.Time
}

// RegistryOption configures optional collaborators.
type RegistryOption func(*Registry)

func WithDirtyMarker(m DirtyMarker) RegistryOption { return func(r *Registry) { r.dirty = m } }
func WithMetrics(m *observability.Metrics) RegistryOption {
	return func(r *Registry) { r.metrics = m }
}
func WithClock(now func() time.Time) RegistryOption { return func(r *Registry) { r.now = now } }

func NewRegistry(defaults Defaults, opts ...RegistryOption) *Registry {
	r := &Registry{
		markets:  make(map[string]*marketState),
		defaults: defaults,
		log:      observability.NewLogger("market-registry"),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// SetTickHandler installs the per-ticker post-update hook. Must be called
// during wiring, before price updates begin.
func (r *Registry) SetTickHandler(h TickHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handler = h
}

// Initialize creates one market per instrument with a defined base price.
// Markets are created once and never deleted; re-initializing an existing
// ticker is a no-op.
func (r *Registry) Initialize(instruments []Instrument) {
	now := r.now()
	next := NextFundingTime(now)

	r.mu.Lock()
	defer r.mu.Unlock()

	created := 0
	for _, inst := range instruments {
		if inst.BasePrice.Sign() <= 0 {
			continue
		}
		ticker := DeriveTicker(inst.Name)
		if ticker == "" {
			continue
		}
		if _, exists := r.markets[ticker]; exists {
			continue
		}

		maxLev := inst.MaxLeverage
		if maxLev <= 0 {
			maxLev = r.defaults.MaxLeverage
		}
		minOrder := inst.MinOrderSize
		if minOrder.Sign() <= 0 {
			minOrder = r.defaults.MinOrderSize
		}

		r.markets[ticker] = &marketState{
			m: Market{
				Ticker:          ticker,
				Name:            inst.Name,
				CurrentPrice:    inst.BasePrice,
				IndexPrice:      inst.BasePrice,
				MarkPrice:       inst.BasePrice,
				High24h:         inst.BasePrice,
				Low24h:          inst.BasePrice,
				Change24h:       decimal.Zero,
				Volume24h:       decimal.Zero,
				OpenInterest:    decimal.Zero,
				FundingRate:     r.defaults.FundingRate,
				NextFundingTime: next,
				MaxLeverage:     maxLev,
				MinOrderSize:    minOrder,
				UpdatedAt:       now,
			},
			prices: []pricePoint{{ts: now, price: inst.BasePrice}},
		}
		created++
	}

	r.log.Info().Int("created", created).Int("total", len(r.markets)).Msg("markets initialized")
}

// UpdatePrices is the sole ingress for market data. Each known ticker in
// the map is updated under its own lock and then handed to the tick
// handler; unknown tickers are ignored and absent tickers keep their
// stale prices.
func (r *Registry) UpdatePrices(prices map[string]decimal.Decimal) {
	start := r.now()

	for ticker, price := range prices {
		if price.Sign() <= 0 {
			continue
		}

		r.mu.RLock()
		ms := r.markets[ticker]
		handler := r.handler
		r.mu.RUnlock()

		if ms == nil {
			if r.metrics != nil {
				r.metrics.TicksIgnored.Inc()
			}
			continue
		}

		ms.mu.Lock()
		ms.applyTick(price, start)
		ms.mu.Unlock()

		if r.dirty != nil {
			r.dirty.MarkMarket(ticker)
		}
		if r.metrics != nil {
			r.metrics.TicksApplied.WithLabelValues(ticker).Inc()
		}
		if handler != nil {
			handler(ticker, price)
		}
	}

	if r.metrics != nil {
		r.metrics.TickBatchDur.Observe(time.Since(start).Seconds())
	}
}

// applyTick updates price fields and the rolling 24h window. Caller holds
// ms.mu.
func (ms *marketState) applyTick(price decimal.Decimal, now time.Time) {
	ms.m.CurrentPrice = price
	ms.m.MarkPrice = price
	ms.m.IndexPrice = price
	ms.m.UpdatedAt = now

	cutoff := now.Add(-24 * time.Hour)
	ms.prices = append(ms.prices, pricePoint{ts: now, price: price})
	for len(ms.prices) > 0 && ms.prices[0].ts.Before(cutoff) {
		ms.prices = ms.prices[1:]
	}
	for len(ms.volumes) > 0 && ms.volumes[0].ts.Before(cutoff) {
		ms.volumes = ms.volumes[1:]
	}

	high, low := price, price
	for _, p := range ms.prices {
		if p.price.GreaterThan(high) {
			high = p.price
		}
		if p.price.LessThan(low) {
			low = p.price
		}
	}
	ms.m.High24h = high
	ms.m.Low24h = low

	oldest := ms.prices[0].price
	if oldest.Sign() > 0 {
		ms.m.Change24h = price.Sub(oldest).Div(oldest).Mul(decimal.NewFromInt(100)).Round(4)
	}

	vol := decimal.Zero
	for _, v := range ms.volumes {
		vol = vol.Add(v.amount)
	}
	ms.m.Volume24h = vol
}

// AddVolume records traded notional against the 24h volume window.
func (r *Registry) AddVolume(ticker string, notional decimal.Decimal) {
	r.mu.RLock()
	ms := r.markets[ticker]
	r.mu.RUnlock()
	if ms == nil || notional.Sign() <= 0 {
		return
	}

	ms.mu.Lock()
	ms.volumes = append(ms.volumes, volumePoint{ts: r.now(), amount: notional})
	ms.m.Volume24h = ms.m.Volume24h.Add(notional)
	ms.mu.Unlock()

	if r.dirty != nil {
		r.dirty.MarkMarket(ticker)
	}
}

// AddOpenInterest adjusts open interest by a signed notional delta.
func (r *Registry) AddOpenInterest(ticker string, delta decimal.Decimal) {
	r.mu.RLock()
	ms := r.markets[ticker]
	r.mu.RUnlock()
	if ms == nil {
		return
	}

	ms.mu.Lock()
	oi := ms.m.OpenInterest.Add(delta)
	if oi.Sign() < 0 {
		oi = decimal.Zero
	}
	ms.m.OpenInterest = oi
	ms.mu.Unlock()

	if r.dirty != nil {
		r.dirty.MarkMarket(ticker)
	}
}

// SetNextFundingTime advances a market's funding clock after a sweep.
func (r *Registry) SetNextFundingTime(ticker string, next time.Time) {
	r.mu.RLock()
	ms := r.markets[ticker]
	r.mu.RUnlock()
	if ms == nil {
		return
	}
	ms.mu.Lock()
	ms.m.NextFundingTime = next
	ms.mu.Unlock()

	if r.dirty != nil {
		r.dirty.MarkMarket(ticker)
	}
}

// Get returns a snapshot copy of one market.
func (r *Registry) Get(ticker string) (Market, bool) {
	r.mu.RLock()
	ms := r.markets[ticker]
	r.mu.RUnlock()
	if ms == nil {
		return Market{}, false
	}
	ms.mu.RLock()
	defer ms.mu.RUnlock()
	return ms.m, true
}

// List returns snapshot copies of all markets, sorted by ticker.
func (r *Registry) List() []Market {
	r.mu.RLock()
	states := make([]*marketState, 0, len(r.markets))
	for _, ms := range r.markets {
		states = append(states, ms)
	}
	r.mu.RUnlock()

	out := make([]Market, 0, len(states))
	for _, ms := range states {
		ms.mu.RLock()
		out = append(out, ms.m)
		ms.mu.RUnlock()
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Ticker < out[j].Ticker })
	return out
}

// Restore installs a persisted market during hydration or state import,
// replacing any in-memory state for the ticker.
func (r *Registry) Restore(m Market) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.markets[m.Ticker] = &marketState{
		m:      m,
		prices: []pricePoint{{ts: m.UpdatedAt, price: m.CurrentPrice}},
	}
}
