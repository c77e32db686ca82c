package position

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"BabylonEngine/internal/event"
	"BabylonEngine/internal/ledger"
	"BabylonEngine/internal/market"
	"BabylonEngine/internal/observability"
)

// FundingMarker records applied funding sweeps for the flush.
type FundingMarker interface {
	MarkFundingRecord(key string)
}

// FundingProcessor settles funding payments at 8h UTC boundaries
// (00:00, 08:00, 16:00). A positive rate means longs pay shorts. One
// sweep per boundary: re-invocations inside the same epoch are no-ops,
// so the caller can run it on any schedule without double-charging.
type FundingProcessor struct {
	mu           sync.Mutex
	lastBoundary time.Time
	records      map[string]FundingRecord

	book     *Book
	registry *market.Registry
	ledger   *ledger.Ledger

	publisher event.Publisher
	dirty     FundingMarker
	metrics   *observability.Metrics
	log       zerolog.Logger
	now       func() time.Time
}

// FundingOption configures optional collaborators.
type FundingOption func(*FundingProcessor)

func FundingWithPublisher(p event.Publisher) FundingOption {
	return func(fp *FundingProcessor) { fp.publisher = p }
}
func FundingWithDirtyMarker(d FundingMarker) FundingOption {
	return func(fp *FundingProcessor) { fp.dirty = d }
}
func FundingWithMetrics(m *observability.Metrics) FundingOption {
	return func(fp *FundingProcessor) { fp.metrics = m }
}
func FundingWithClock(now func() time.Time) FundingOption {
	return func(fp *FundingProcessor) { fp.now = now }
}

func NewFundingProcessor(book *Book, registry *market.Registry, settle *ledger.Ledger, opts ...FundingOption) *FundingProcessor {
	fp := &FundingProcessor{
		records:   make(map[string]FundingRecord),
		book:      book,
		registry:  registry,
		ledger:    settle,
		publisher: event.NopPublisher{},
		log:       observability.NewLogger("funding-processor"),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(fp)
	}
	return fp
}

// Process runs one funding sweep for the boundary containing now. The
// whole sweep holds the processor mutex, so concurrent invocations
// serialize and at most one applies per boundary. Returns true if a
// sweep was applied, false if the boundary was already settled.
func (fp *FundingProcessor) Process(now time.Time) bool {
	fp.mu.Lock()
	defer fp.mu.Unlock()

	boundary := market.FundingBoundary(now)
	if !boundary.After(fp.lastBoundary) {
		if fp.metrics != nil {
			fp.metrics.FundingSweepsSkipped.Inc()
		}
		return false
	}

	for _, m := range fp.registry.List() {
		settled := fp.sweepMarket(m, boundary)

		rec := FundingRecord{Ticker: m.Ticker, Rate: m.FundingRate, AppliedAt: boundary}
		fp.records[rec.Key()] = rec
		if fp.dirty != nil {
			fp.dirty.MarkFundingRecord(rec.Key())
		}
		if fp.metrics != nil {
			fp.metrics.FundingPositionsSwept.WithLabelValues(m.Ticker).Add(float64(settled))
		}

		fp.registry.SetNextFundingTime(m.Ticker, market.NextFundingTime(boundary))

		fp.publisher.PublishFunding(event.FundingEvent{
			Ticker:           m.Ticker,
			Rate:             m.FundingRate,
			Boundary:         boundary,
			PositionsSettled: settled,
			Timestamp:        fp.now(),
		})
	}

	fp.lastBoundary = boundary
	if fp.metrics != nil {
		fp.metrics.FundingSweeps.Inc()
	}
	fp.log.Info().Time("boundary", boundary).Msg("funding sweep applied")
	return true
}

// sweepMarket settles every open position on one market. A wallet that
// cannot cover its payment is skipped whole: neither the wallet nor the
// position's FundingPaid moves, and the rest of the sweep continues.
func (fp *FundingProcessor) sweepMarket(m market.Market, boundary time.Time) int {
	settled := 0
	for _, ps := range fp.book.openOnTicker(m.Ticker) {
		ps.mu.Lock()
		if !ps.p.IsOpen() {
			ps.mu.Unlock()
			continue
		}

		// Signed flow: positive means this position pays, negative
		// means it receives. payment = size × mark × rate × sideSign.
		flow := ledger.Round(ps.p.Size.Mul(m.MarkPrice).Mul(m.FundingRate).Mul(ps.p.Side.Sign()))

		switch {
		case flow.Sign() > 0:
			_, err := fp.ledger.Debit(ps.p.OwnerID, flow, ledger.EntryFundingPayment, ps.p.ID.String())
			if err != nil {
				if errors.Is(err, ledger.ErrInsufficientFunds) {
					fp.log.Warn().
						Str("position_id", ps.p.ID.String()).
						Str("owner", ps.p.OwnerID).
						Str("payment", flow.String()).
						Msg("funding payment skipped, wallet cannot cover")
				} else {
					fp.log.Error().Err(err).
						Str("position_id", ps.p.ID.String()).
						Msg("funding debit failed")
				}
				ps.mu.Unlock()
				continue
			}
			ps.p.FundingPaid = ps.p.FundingPaid.Add(flow)
		case flow.Sign() < 0:
			if _, err := fp.ledger.Credit(ps.p.OwnerID, flow.Neg(), ledger.EntryFundingReceipt, ps.p.ID.String()); err != nil {
				fp.log.Error().Err(err).
					Str("position_id", ps.p.ID.String()).
					Msg("funding credit failed")
				ps.mu.Unlock()
				continue
			}
			ps.p.FundingPaid = ps.p.FundingPaid.Add(flow)
		}

		if fp.book.dirty != nil {
			fp.book.dirty.MarkPosition(ps.p.ID.String())
		}
		ps.mu.Unlock()
		settled++
	}
	return settled
}

// LastBoundary returns the most recently settled funding boundary.
func (fp *FundingProcessor) LastBoundary() time.Time {
	fp.mu.Lock()
	defer fp.mu.Unlock()
	return fp.lastBoundary
}

// RestoreLastBoundary installs the persisted boundary during hydration,
// so a restart inside an already-settled epoch does not double-charge.
func (fp *FundingProcessor) RestoreLastBoundary(t time.Time) {
	fp.mu.Lock()
	defer fp.mu.Unlock()
	fp.lastBoundary = t.UTC()
}

// Records returns copies of all funding records, oldest first then by
// ticker.
func (fp *FundingProcessor) Records() []FundingRecord {
	fp.mu.Lock()
	out := make([]FundingRecord, 0, len(fp.records))
	for _, rec := range fp.records {
		out = append(out, rec)
	}
	fp.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].AppliedAt.Equal(out[j].AppliedAt) {
			return out[i].AppliedAt.Before(out[j].AppliedAt)
		}
		return out[i].Ticker < out[j].Ticker
	})
	return out
}

// Record returns one funding record by its "ticker:time" key.
func (fp *FundingProcessor) Record(key string) (FundingRecord, bool) {
	fp.mu.Lock()
	defer fp.mu.Unlock()
	rec, ok := fp.records[key]
	return rec, ok
}

// RestoreRecords installs persisted funding records during hydration.
func (fp *FundingProcessor) RestoreRecords(records []FundingRecord) {
	fp.mu.Lock()
	defer fp.mu.Unlock()
	for _, rec := range records {
		fp.records[rec.Key()] = rec
		if rec.AppliedAt.After(fp.lastBoundary) {
			fp.lastBoundary = rec.AppliedAt
		}
	}
}
