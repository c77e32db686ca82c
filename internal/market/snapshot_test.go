package market

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestRecordDailyUpsert(t *testing.T) {
	r := NewRegistry(testDefaults())
	r.Initialize([]Instrument{{Name: "Bitcoin", BasePrice: dec("100")}})
	sr := NewSnapshotRecorder(r, nil)

	day := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)

	sr.RecordDaily(day)
	row, ok := sr.Get("BITCOIN", "2025-03-10")
	if !ok {
		t.Fatal("snapshot row missing")
	}
	if !row.Open.Equal(dec("100")) || !row.Close.Equal(dec("100")) {
		t.Errorf("first record open/close = %s/%s, want 100/100", row.Open, row.Close)
	}

	// Later in the same day: Open stays, High/Low widen, Close follows.
	r.UpdatePrices(map[string]decimal.Decimal{"BITCOIN": dec("130")})
	sr.RecordDaily(day.Add(4 * time.Hour))
	r.UpdatePrices(map[string]decimal.Decimal{"BITCOIN": dec("80")})
	sr.RecordDaily(day.Add(8 * time.Hour))

	row, _ = sr.Get("BITCOIN", "2025-03-10")
	if !row.Open.Equal(dec("100")) {
		t.Errorf("open rewritten: %s", row.Open)
	}
	if !row.High.Equal(dec("130")) || !row.Low.Equal(dec("80")) {
		t.Errorf("high/low = %s/%s, want 130/80", row.High, row.Low)
	}
	if !row.Close.Equal(dec("80")) {
		t.Errorf("close = %s, want 80", row.Close)
	}

	// A new day opens a fresh row.
	sr.RecordDaily(day.Add(24 * time.Hour))
	next, ok := sr.Get("BITCOIN", "2025-03-11")
	if !ok {
		t.Fatal("next-day row missing")
	}
	if !next.Open.Equal(dec("80")) {
		t.Errorf("next-day open = %s, want 80", next.Open)
	}

	if got := len(sr.All()); got != 2 {
		t.Errorf("rows = %d, want 2", got)
	}
}
