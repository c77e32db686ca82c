package persistence

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"BabylonEngine/internal/ledger"
	"BabylonEngine/internal/market"
	"BabylonEngine/internal/position"
	"BabylonEngine/internal/prediction"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

// memStore keeps the last flushed batch and can be told to fail.
type memStore struct {
	flushed []Batch
	loaded  Batch
	fail    error
}

func (s *memStore) EnsureSchema(ctx context.Context) error { return nil }
func (s *memStore) Flush(ctx context.Context, b Batch) error {
	if s.fail != nil {
		return s.fail
	}
	s.flushed = append(s.flushed, b)
	return nil
}
func (s *memStore) Load(ctx context.Context) (Batch, error) { return s.loaded, nil }
func (s *memStore) Close() error                            { return nil }

type workerFixture struct {
	tracker *Tracker
	sources Sources
	store   *memStore
	worker  *FlushWorker
}

func newWorkerFixture(t *testing.T) *workerFixture {
	t.Helper()

	tr := NewTracker()
	l := ledger.New(ledger.DefaultFeeSchedule(), ledger.WithDirtyMarker(tr))
	r := market.NewRegistry(market.Defaults{
		MaxLeverage:  10,
		MinOrderSize: dec("10"),
		FundingRate:  dec("0.0001"),
	}, market.WithDirtyMarker(tr))
	r.Initialize([]market.Instrument{{Name: "Bitcoin", BasePrice: dec("100")}})

	book := position.NewBook(r, l, dec("0.05"), position.WithDirtyMarker(tr))
	monitor := position.NewMonitor(book, dec("0.05"), position.MonitorWithDirtyMarker(tr))
	funding := position.NewFundingProcessor(book, r, l, position.FundingWithDirtyMarker(tr))
	maker := prediction.NewMaker(l, prediction.MakerWithDirtyMarker(tr))
	snapshots := market.NewSnapshotRecorder(r, tr)

	store := &memStore{}
	sources := Sources{
		Ledger:    l,
		Registry:  r,
		Book:      book,
		Maker:     maker,
		Snapshots: snapshots,
		Monitor:   monitor,
		Funding:   funding,
	}
	return &workerFixture{
		tracker: tr,
		sources: sources,
		store:   store,
		worker:  NewFlushWorker(tr, store, sources, time.Second, nil),
	}
}

func TestFlushOnceWritesDirtyRows(t *testing.T) {
	f := newWorkerFixture(t)

	f.sources.Ledger.Deposit("alice", dec("1000"), "test")
	res, err := f.sources.Book.Open("alice", position.OpenRequest{
		Ticker: "BITCOIN", Side: position.SideLong, Size: dec("10"), Leverage: 5,
	})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	pm, _ := f.sources.Maker.CreateMarket("?", 100)
	f.sources.Maker.Buy("alice", pm.ID, prediction.SideYes, 5)
	f.sources.Snapshots.RecordDaily(time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC))

	if err := f.worker.FlushOnce(context.Background()); err != nil {
		t.Fatalf("flush: %v", err)
	}
	if len(f.store.flushed) != 1 {
		t.Fatalf("flushes = %d, want 1", len(f.store.flushed))
	}

	b := f.store.flushed[0]
	// alice plus the platform and float accounts touched by fees.
	if len(b.Wallets) < 2 {
		t.Errorf("wallets flushed = %d, want alice and system accounts", len(b.Wallets))
	}
	if len(b.Markets) != 1 || b.Markets[0].Ticker != "BITCOIN" {
		t.Errorf("markets flushed = %+v, want BITCOIN", b.Markets)
	}
	if len(b.Positions) != 1 || b.Positions[0].ID != res.Position.ID {
		t.Errorf("positions flushed = %d, want the opened one", len(b.Positions))
	}
	if len(b.PredictionMarkets) != 1 || len(b.PredictionPositions) != 1 {
		t.Errorf("prediction rows = %d/%d, want 1/1",
			len(b.PredictionMarkets), len(b.PredictionPositions))
	}
	if len(b.DailySnapshots) != 1 {
		t.Errorf("snapshots flushed = %d, want 1", len(b.DailySnapshots))
	}

	if !f.tracker.Begin().Empty() {
		t.Error("tracker not clean after successful flush")
	}
}

func TestFlushOnceEmptyTrackerWritesNothing(t *testing.T) {
	f := newWorkerFixture(t)
	if err := f.worker.FlushOnce(context.Background()); err != nil {
		t.Fatalf("flush: %v", err)
	}
	if len(f.store.flushed) != 0 {
		t.Errorf("flushes = %d, want 0", len(f.store.flushed))
	}
}

func TestFailedFlushDoesNotCommit(t *testing.T) {
	f := newWorkerFixture(t)
	f.sources.Ledger.Deposit("alice", dec("100"), "test")

	f.store.fail = errors.New("connection refused")
	if err := f.worker.FlushOnce(context.Background()); err == nil {
		t.Fatal("flush succeeded against failing store")
	}

	// The entities stay marked; the next cycle writes them.
	f.store.fail = nil
	if err := f.worker.FlushOnce(context.Background()); err != nil {
		t.Fatalf("retry flush: %v", err)
	}
	if len(f.store.flushed) != 1 || len(f.store.flushed[0].Wallets) != 1 {
		t.Fatalf("retry did not write the held-back wallet")
	}
}

func TestHydrateRebuildsSources(t *testing.T) {
	f := newWorkerFixture(t)

	boundary := time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC)
	f.store.loaded = Batch{
		Wallets: []ledger.Wallet{{OwnerID: "alice", Balance: dec("42")}},
		Markets: []market.Market{{
			Ticker: "BITCOIN", Name: "Bitcoin", CurrentPrice: dec("123"),
			MaxLeverage: 10, MinOrderSize: dec("10"), UpdatedAt: boundary,
		}},
		FundingRecords: []position.FundingRecord{
			{Ticker: "BITCOIN", Rate: dec("0.0001"), AppliedAt: boundary},
		},
	}

	if err := Hydrate(context.Background(), f.store, f.sources); err != nil {
		t.Fatalf("hydrate: %v", err)
	}

	if got := f.sources.Ledger.Balance("alice"); !got.Equal(dec("42")) {
		t.Errorf("balance = %s, want 42", got)
	}
	m, ok := f.sources.Registry.Get("BITCOIN")
	if !ok || !m.CurrentPrice.Equal(dec("123")) {
		t.Errorf("market price = %s, want persisted 123", m.CurrentPrice)
	}
	if !f.sources.Funding.LastBoundary().Equal(boundary) {
		t.Errorf("funding boundary = %v, want %v", f.sources.Funding.LastBoundary(), boundary)
	}
}
