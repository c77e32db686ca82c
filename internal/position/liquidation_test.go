package position

import (
	"testing"

	"github.com/shopspring/decimal"
)

func newMonitorFixture(t *testing.T) (*fixture, *Monitor) {
	t.Helper()
	f := newFixture(t)
	m := NewMonitor(f.book, dec("0.05"), MonitorWithPublisher(f.pub))
	f.registry.SetTickHandler(m.Sweep)
	return f, m
}

func TestSweepLiquidatesUnderwaterPosition(t *testing.T) {
	f, m := newMonitorFixture(t)
	f.fund("alice", "1000")

	res, err := f.book.Open("alice", OpenRequest{
		Ticker: "BABYLON", Side: SideLong, Size: dec("10"), Leverage: 5,
	})
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	// Liquidation price is 85; a tick well below it must force-close.
	f.registry.UpdatePrices(map[string]decimal.Decimal{"BABYLON": dec("70")})

	p, _ := f.book.Get(res.Position.ID)
	if p.Status != StatusLiquidated {
		t.Fatalf("status = %s, want liquidated", p.Status)
	}

	// Full margin forfeiture, no close fee: the wallet keeps its post-open
	// balance and the loss lands in lifetime PnL.
	if got := f.ledger.Balance("alice"); !got.Equal(dec("799")) {
		t.Errorf("balance = %s, want 799", got)
	}
	w, _ := f.ledger.GetWallet("alice")
	if !w.LifetimePnL.Equal(dec("-200")) {
		t.Errorf("lifetime pnl = %s, want -200", w.LifetimePnL)
	}

	recs := m.Records()
	if len(recs) != 1 {
		t.Fatalf("records = %d, want 1", len(recs))
	}
	rec := recs[0]
	if rec.PositionID != res.Position.ID {
		t.Errorf("record position id = %s, want %s", rec.PositionID, res.Position.ID)
	}
	if !rec.MarginLost.Equal(dec("200")) {
		t.Errorf("margin lost = %s, want 200", rec.MarginLost)
	}
	if !rec.TriggerPrice.Equal(dec("85")) || !rec.ActualFillPrice.Equal(dec("70")) {
		t.Errorf("trigger/fill = %s/%s, want 85/70", rec.TriggerPrice, rec.ActualFillPrice)
	}

	if len(f.pub.liquidations) != 1 {
		t.Fatalf("liquidation events = %d, want 1", len(f.pub.liquidations))
	}
	if f.pub.liquidations[0].OwnerID != "alice" {
		t.Errorf("event owner = %s, want alice", f.pub.liquidations[0].OwnerID)
	}
}

func TestSweepSparesHealthyPosition(t *testing.T) {
	f, _ := newMonitorFixture(t)
	f.fund("alice", "1000")

	res, _ := f.book.Open("alice", OpenRequest{
		Ticker: "BABYLON", Side: SideLong, Size: dec("10"), Leverage: 5,
	})

	// 86 is just above the 85 liquidation price.
	f.registry.UpdatePrices(map[string]decimal.Decimal{"BABYLON": dec("86")})

	p, _ := f.book.Get(res.Position.ID)
	if !p.IsOpen() {
		t.Fatalf("status = %s, want open", p.Status)
	}
	if len(f.pub.liquidations) != 0 {
		t.Errorf("liquidation events = %d, want 0", len(f.pub.liquidations))
	}
}

func TestSweepLiquidatesExactlyOnce(t *testing.T) {
	f, m := newMonitorFixture(t)
	f.fund("alice", "1000")

	f.book.Open("alice", OpenRequest{
		Ticker: "BABYLON", Side: SideLong, Size: dec("10"), Leverage: 5,
	})

	f.registry.UpdatePrices(map[string]decimal.Decimal{"BABYLON": dec("70")})
	f.registry.UpdatePrices(map[string]decimal.Decimal{"BABYLON": dec("60")})

	if got := len(m.Records()); got != 1 {
		t.Errorf("records after second sweep = %d, want 1", got)
	}
	if got := len(f.pub.liquidations); got != 1 {
		t.Errorf("events after second sweep = %d, want 1", got)
	}
	w, _ := f.ledger.GetWallet("alice")
	if !w.LifetimePnL.Equal(dec("-200")) {
		t.Errorf("lifetime pnl = %s, want single -200", w.LifetimePnL)
	}
}

func TestSweepShortSideAndMixedBook(t *testing.T) {
	f, m := newMonitorFixture(t)
	f.fund("alice", "1000")
	f.fund("bob", "1000")

	// Short liquidates at 115; the long at 85. A rally to 120 takes out
	// the short and leaves the long open.
	short, _ := f.book.Open("alice", OpenRequest{
		Ticker: "BABYLON", Side: SideShort, Size: dec("10"), Leverage: 5,
	})
	long, _ := f.book.Open("bob", OpenRequest{
		Ticker: "BABYLON", Side: SideLong, Size: dec("10"), Leverage: 5,
	})

	f.registry.UpdatePrices(map[string]decimal.Decimal{"BABYLON": dec("120")})

	sp, _ := f.book.Get(short.Position.ID)
	lp, _ := f.book.Get(long.Position.ID)
	if sp.Status != StatusLiquidated {
		t.Errorf("short status = %s, want liquidated", sp.Status)
	}
	if !lp.IsOpen() {
		t.Errorf("long status = %s, want open", lp.Status)
	}
	if got := len(m.Records()); got != 1 {
		t.Errorf("records = %d, want 1", got)
	}
}
