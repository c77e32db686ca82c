package market

import (
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"BabylonEngine/internal/observability"
)

// DateFormat is the canonical key format for daily snapshots.
const DateFormat = "2006-01-02"

// DailySnapshot is one OHLC row per (ticker, date). The recorder upserts:
// the first observation of a day fixes Open, later observations extend
// High/Low and replace Close.
type DailySnapshot struct {
	Ticker string          `json:"ticker"`
	Date   string          `json:"date"`
	Open   decimal.Decimal `json:"open"`
	High   decimal.Decimal `json:"high"`
	Low    decimal.Decimal `json:"low"`
	Close  decimal.Decimal `json:"close"`
	Volume decimal.Decimal `json:"volume"`
}

// SnapshotMarker records which snapshot rows changed for the flush cycle.
type SnapshotMarker interface {
	MarkDailySnapshot(ticker, date string)
}

type snapshotKey struct {
	ticker string
	date   string
}

// SnapshotRecorder observes the registry and maintains one OHLC row per
// instrument per day.
type SnapshotRecorder struct {
	mu       sync.RWMutex
	rows     map[snapshotKey]*DailySnapshot
	registry *Registry
	dirty    SnapshotMarker
	log      zerolog.Logger
}

func NewSnapshotRecorder(registry *Registry, dirty SnapshotMarker) *SnapshotRecorder {
	return &SnapshotRecorder{
		rows:     make(map[snapshotKey]*DailySnapshot),
		registry: registry,
		dirty:    dirty,
		log:      observability.NewLogger("snapshot-recorder"),
	}
}

// RecordDaily upserts the OHLC row for every market at the given date.
// Calling it again for the same date is idempotent: Open is preserved,
// High/Low widen monotonically, Close and Volume take the latest values.
func (sr *SnapshotRecorder) RecordDaily(date time.Time) {
	day := date.UTC().Format(DateFormat)

	for _, m := range sr.registry.List() {
		key := snapshotKey{ticker: m.Ticker, date: day}

		sr.mu.Lock()
		row := sr.rows[key]
		if row == nil {
			row = &DailySnapshot{
				Ticker: m.Ticker,
				Date:   day,
				Open:   m.CurrentPrice,
				High:   m.CurrentPrice,
				Low:    m.CurrentPrice,
				Close:  m.CurrentPrice,
				Volume: m.Volume24h,
			}
			sr.rows[key] = row
		} else {
			if m.CurrentPrice.GreaterThan(row.High) {
				row.High = m.CurrentPrice
			}
			if m.CurrentPrice.LessThan(row.Low) {
				row.Low = m.CurrentPrice
			}
			row.Close = m.CurrentPrice
			row.Volume = m.Volume24h
		}
		sr.mu.Unlock()

		if sr.dirty != nil {
			sr.dirty.MarkDailySnapshot(m.Ticker, day)
		}
	}

	sr.log.Debug().Str("date", day).Msg("daily snapshot recorded")
}

// Get returns the snapshot row for one (ticker, date).
func (sr *SnapshotRecorder) Get(ticker, date string) (DailySnapshot, bool) {
	sr.mu.RLock()
	defer sr.mu.RUnlock()
	row := sr.rows[snapshotKey{ticker: ticker, date: date}]
	if row == nil {
		return DailySnapshot{}, false
	}
	return *row, true
}

// All returns copies of every snapshot row, ordered by (ticker, date).
func (sr *SnapshotRecorder) All() []DailySnapshot {
	sr.mu.RLock()
	out := make([]DailySnapshot, 0, len(sr.rows))
	for _, row := range sr.rows {
		out = append(out, *row)
	}
	sr.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Ticker != out[j].Ticker {
			return out[i].Ticker < out[j].Ticker
		}
		return out[i].Date < out[j].Date
	})
	return out
}

// Restore installs persisted snapshot rows during hydration or import.
func (sr *SnapshotRecorder) Restore(rows []DailySnapshot) {
	sr.mu.Lock()
	defer sr.mu.Unlock()
	for i := range rows {
		row := rows[i]
		sr.rows[snapshotKey{ticker: row.Ticker, date: row.Date}] = &row
	}
}
