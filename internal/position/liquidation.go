package position

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"BabylonEngine/internal/event"
	"BabylonEngine/internal/observability"
)

// LiquidationMarker records newly created liquidation rows for the flush.
type LiquidationMarker interface {
	MarkLiquidation(id string)
}

// Monitor watches price ticks and force-closes positions whose margin
// ratio has fallen to the maintenance threshold. Liquidation is
// irrevocable: the full margin is forfeited, no close fee is charged,
// and exactly one Liquidation record is created per position.
type Monitor struct {
	mu      sync.RWMutex
	records map[uuid.UUID]Liquidation

	book            *Book
	maintenanceRate decimal.Decimal

	publisher event.Publisher
	dirty     LiquidationMarker
	metrics   *observability.Metrics
	log       zerolog.Logger
	now       func() time.Time
}

// MonitorOption configures optional collaborators.
type MonitorOption func(*Monitor)

func MonitorWithPublisher(p event.Publisher) MonitorOption {
	return func(m *Monitor) { m.publisher = p }
}
func MonitorWithDirtyMarker(d LiquidationMarker) MonitorOption {
	return func(m *Monitor) { m.dirty = d }
}
func MonitorWithMetrics(mx *observability.Metrics) MonitorOption {
	return func(m *Monitor) { m.metrics = mx }
}
func MonitorWithClock(now func() time.Time) MonitorOption {
	return func(m *Monitor) { m.now = now }
}

func NewMonitor(book *Book, maintenanceRate decimal.Decimal, opts ...MonitorOption) *Monitor {
	m := &Monitor{
		records:         make(map[uuid.UUID]Liquidation),
		book:            book,
		maintenanceRate: maintenanceRate,
		publisher:       event.NopPublisher{},
		log:             observability.NewLogger("liquidation-monitor"),
		now:             time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Sweep checks every open position on a ticker against the new price and
// liquidates the ones at or below the maintenance margin ratio. One
// position failing never stops the sweep; the rest are still checked.
// Wired as the registry's tick handler, so it runs after the market's
// own state has committed.
func (m *Monitor) Sweep(ticker string, price decimal.Decimal) {
	start := m.now()
	if price.Sign() <= 0 {
		return
	}

	for _, ps := range m.book.openOnTicker(ticker) {
		ps.mu.Lock()
		snapshot := ps.p
		ps.mu.Unlock()

		if !snapshot.IsOpen() {
			continue
		}
		if snapshot.MarginRatioAt(price).GreaterThan(m.maintenanceRate) {
			continue
		}

		liquidated, ok := m.book.forceClose(ps, price)
		if !ok {
			continue
		}

		rec := Liquidation{
			ID:              uuid.New(),
			PositionID:      liquidated.ID,
			Ticker:          liquidated.Ticker,
			TriggerPrice:    liquidated.LiquidationPrice,
			ActualFillPrice: price,
			MarginLost:      liquidated.Margin,
			Timestamp:       m.now(),
		}
		m.mu.Lock()
		m.records[rec.ID] = rec
		m.mu.Unlock()

		if m.dirty != nil {
			m.dirty.MarkLiquidation(rec.ID.String())
		}
		if m.metrics != nil {
			m.metrics.LiquidationsExecuted.WithLabelValues(ticker).Inc()
		}
		m.log.Warn().
			Str("position_id", liquidated.ID.String()).
			Str("owner", liquidated.OwnerID).
			Str("ticker", ticker).
			Str("fill_price", price.String()).
			Str("margin_lost", liquidated.Margin.String()).
			Msg("position liquidated")

		m.publisher.PublishLiquidation(event.LiquidationEvent{
			LiquidationID: rec.ID,
			PositionID:    liquidated.ID,
			OwnerID:       liquidated.OwnerID,
			Ticker:        ticker,
			TriggerPrice:  rec.TriggerPrice,
			FillPrice:     price,
			MarginLost:    liquidated.Margin,
			Timestamp:     rec.Timestamp,
		})
	}

	if m.metrics != nil {
		m.metrics.LiquidationSweepDur.Observe(time.Since(start).Seconds())
	}
}

// Records returns copies of all liquidation records, oldest first.
func (m *Monitor) Records() []Liquidation {
	m.mu.RLock()
	out := make([]Liquidation, 0, len(m.records))
	for _, rec := range m.records {
		out = append(out, rec)
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out
}

// Get returns one liquidation record by ID.
func (m *Monitor) Get(id uuid.UUID) (Liquidation, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.records[id]
	return rec, ok
}

// Restore installs persisted liquidation records during hydration or
// state import.
func (m *Monitor) Restore(records []Liquidation) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, rec := range records {
		m.records[rec.ID] = rec
	}
}
