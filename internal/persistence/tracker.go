// Package persistence implements dirty-entity tracking, the Postgres
// store, and the background flush worker that writes changed state in
// batches.
package persistence

import "sync"

// Tracker collects the IDs of entities that changed since the last
// flush. Every mark records the current generation; a flush cycle takes
// a generation cut, writes the marked entities, and commits the cut.
// Marks that land during the flush carry a later generation and survive
// the commit, so a concurrent mutation is never lost to an in-flight
// write.
type Tracker struct {
	mu  sync.Mutex
	gen uint64

	wallets           map[string]uint64
	markets           map[string]uint64
	positions         map[string]uint64
	predictionMarkets map[string]uint64
	dailySnapshots    map[string]uint64
	fundingRecords    map[string]uint64
	liquidations      map[string]uint64
}

func NewTracker() *Tracker {
	return &Tracker{
		wallets:           make(map[string]uint64),
		markets:           make(map[string]uint64),
		positions:         make(map[string]uint64),
		predictionMarkets: make(map[string]uint64),
		dailySnapshots:    make(map[string]uint64),
		fundingRecords:    make(map[string]uint64),
		liquidations:      make(map[string]uint64),
	}
}

func (t *Tracker) mark(m map[string]uint64, id string) {
	t.mu.Lock()
	t.gen++
	m[id] = t.gen
	t.mu.Unlock()
}

// The Mark methods satisfy the per-package marker interfaces.

func (t *Tracker) MarkWallet(ownerID string)        { t.mark(t.wallets, ownerID) }
func (t *Tracker) MarkMarket(ticker string)         { t.mark(t.markets, ticker) }
func (t *Tracker) MarkPosition(id string)           { t.mark(t.positions, id) }
func (t *Tracker) MarkPredictionMarket(id string)   { t.mark(t.predictionMarkets, id) }
func (t *Tracker) MarkFundingRecord(key string)     { t.mark(t.fundingRecords, key) }
func (t *Tracker) MarkLiquidation(id string)        { t.mark(t.liquidations, id) }
func (t *Tracker) MarkDailySnapshot(ticker, date string) {
	t.mark(t.dailySnapshots, ticker+"|"+date)
}

// DirtySet is one flush cycle's view of the changed entities.
type DirtySet struct {
	Wallets           []string
	Markets           []string
	Positions         []string
	PredictionMarkets []string
	DailySnapshots    []string
	FundingRecords    []string
	Liquidations      []string

	cut uint64
}

// Empty reports whether the set holds no IDs at all.
func (s DirtySet) Empty() bool {
	return len(s.Wallets) == 0 && len(s.Markets) == 0 && len(s.Positions) == 0 &&
		len(s.PredictionMarkets) == 0 && len(s.DailySnapshots) == 0 &&
		len(s.FundingRecords) == 0 && len(s.Liquidations) == 0
}

// Size returns the total number of dirty IDs.
func (s DirtySet) Size() int {
	return len(s.Wallets) + len(s.Markets) + len(s.Positions) +
		len(s.PredictionMarkets) + len(s.DailySnapshots) +
		len(s.FundingRecords) + len(s.Liquidations)
}

func keysOf(m map[string]uint64) []string {
	out := make([]string, 0, len(m))
	for id := range m {
		out = append(out, id)
	}
	return out
}

// Begin snapshots the current dirty set and its generation cut. The
// entries stay marked until Commit; a failed flush simply never commits
// and the next cycle picks the same entities up again.
func (t *Tracker) Begin() DirtySet {
	t.mu.Lock()
	defer t.mu.Unlock()
	return DirtySet{
		Wallets:           keysOf(t.wallets),
		Markets:           keysOf(t.markets),
		Positions:         keysOf(t.positions),
		PredictionMarkets: keysOf(t.predictionMarkets),
		DailySnapshots:    keysOf(t.dailySnapshots),
		FundingRecords:    keysOf(t.fundingRecords),
		Liquidations:      keysOf(t.liquidations),
		cut:               t.gen,
	}
}

// Commit clears entries whose last mark is at or before the set's cut.
// Entries re-marked after Begin keep their later generation and stay.
func (t *Tracker) Commit(s DirtySet) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, m := range []map[string]uint64{
		t.wallets, t.markets, t.positions, t.predictionMarkets,
		t.dailySnapshots, t.fundingRecords, t.liquidations,
	} {
		for id, gen := range m {
			if gen <= s.cut {
				delete(m, id)
			}
		}
	}
}
