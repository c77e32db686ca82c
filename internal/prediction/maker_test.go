package prediction

import (
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"BabylonEngine/internal/ledger"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func newMakerFixture(t *testing.T) (*ledger.Ledger, *Maker) {
	t.Helper()
	l := ledger.New(ledger.DefaultFeeSchedule())
	return l, NewMaker(l)
}

func TestCreateMarketValidation(t *testing.T) {
	_, mk := newMakerFixture(t)

	if _, err := mk.CreateMarket("?", 0); !errors.Is(err, ErrInvalidLiquidity) {
		t.Errorf("zero liquidity err = %v, want ErrInvalidLiquidity", err)
	}
	if _, err := mk.CreateMarket("?", -5); !errors.Is(err, ErrInvalidLiquidity) {
		t.Errorf("negative liquidity err = %v, want ErrInvalidLiquidity", err)
	}

	m, err := mk.CreateMarket("Will it rain tomorrow?", 100)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if m.PriceYes != 0.5 || m.PriceNo != 0.5 {
		t.Errorf("fresh prices = %g/%g, want 0.5/0.5", m.PriceYes, m.PriceNo)
	}
	if m.Status != MarketOpen {
		t.Errorf("status = %s, want open", m.Status)
	}
}

func TestBuyMovesMoneyAndCurve(t *testing.T) {
	l, mk := newMakerFixture(t)
	l.Deposit("alice", dec("1000"), "test")

	m, _ := mk.CreateMarket("?", 100)
	res, err := mk.Buy("alice", m.ID, SideYes, 50)
	if err != nil {
		t.Fatalf("buy: %v", err)
	}

	wantCost := ledger.Round(decimal.NewFromFloat(tradeCost(100, 0, 0, 50, SideYes)))
	if !res.Cost.Equal(wantCost) {
		t.Errorf("cost = %s, want %s", res.Cost, wantCost)
	}
	wantFee := l.QuoteFee(ledger.TradePrediction, wantCost)
	if !res.Fee.Equal(wantFee) {
		t.Errorf("fee = %s, want %s", res.Fee, wantFee)
	}

	// Wallet paid cost + fee; the cost sits in the float account.
	wantBalance := dec("1000").Sub(wantCost).Sub(wantFee)
	if got := l.Balance("alice"); !got.Equal(wantBalance) {
		t.Errorf("balance = %s, want %s", got, wantBalance)
	}
	if got := l.Balance(ledger.PredictionFloatAccount); !got.Equal(wantCost) {
		t.Errorf("float balance = %s, want %s", got, wantCost)
	}

	pos, ok := mk.GetPosition(m.ID, "alice")
	if !ok || pos.SharesYes != 50 {
		t.Fatalf("position shares = %+v, want 50 yes", pos)
	}
	if !pos.CostBasis.Equal(wantCost) {
		t.Errorf("cost basis = %s, want %s", pos.CostBasis, wantCost)
	}

	updated, _ := mk.GetMarket(m.ID)
	if updated.PriceYes <= 0.5 {
		t.Errorf("price after yes buy = %g, want > 0.5", updated.PriceYes)
	}
	if updated.PriceYes+updated.PriceNo != 1 {
		t.Errorf("prices sum to %g, want 1", updated.PriceYes+updated.PriceNo)
	}
}

func TestBuyFailuresLeaveNoState(t *testing.T) {
	l, mk := newMakerFixture(t)
	l.Deposit("poor", dec("1"), "test")

	m, _ := mk.CreateMarket("?", 100)

	if _, err := mk.Buy("poor", uuid.New(), SideYes, 10); !errors.Is(err, ErrMarketNotFound) {
		t.Errorf("unknown market err = %v, want ErrMarketNotFound", err)
	}
	if _, err := mk.Buy("poor", m.ID, "maybe", 10); !errors.Is(err, ErrInvalidShares) {
		t.Errorf("bad side err = %v, want ErrInvalidShares", err)
	}
	if _, err := mk.Buy("poor", m.ID, SideYes, -1); !errors.Is(err, ErrInvalidShares) {
		t.Errorf("negative shares err = %v, want ErrInvalidShares", err)
	}
	if _, err := mk.Buy("poor", m.ID, SideYes, 50); !errors.Is(err, ledger.ErrInsufficientFunds) {
		t.Errorf("underfunded err = %v, want ErrInsufficientFunds", err)
	}

	// The curve never moved and the wallet is intact.
	unchanged, _ := mk.GetMarket(m.ID)
	if unchanged.QYes != 0 || unchanged.PriceYes != 0.5 {
		t.Errorf("curve moved on failed buys: q=%g price=%g", unchanged.QYes, unchanged.PriceYes)
	}
	if got := l.Balance("poor"); !got.Equal(dec("1")) {
		t.Errorf("balance = %s, want untouched 1", got)
	}
}

func TestSellRefundsLessThanBuyAfterFees(t *testing.T) {
	l, mk := newMakerFixture(t)
	l.Deposit("alice", dec("1000"), "test")

	m, _ := mk.CreateMarket("?", 100)
	buy, _ := mk.Buy("alice", m.ID, SideYes, 50)

	sell, err := mk.Sell("alice", m.ID, SideYes, 50)
	if err != nil {
		t.Fatalf("sell: %v", err)
	}

	// Refund equals the buy cost on a full round trip, but both legs paid
	// the 1% fee, so the wallet ends below where it started.
	if !sell.Cost.Equal(buy.Cost) {
		t.Errorf("refund = %s, want buy cost %s", sell.Cost, buy.Cost)
	}
	wantBalance := dec("1000").Sub(buy.Fee).Sub(sell.Fee)
	if got := l.Balance("alice"); !got.Equal(wantBalance) {
		t.Errorf("balance = %s, want %s", got, wantBalance)
	}

	pos, _ := mk.GetPosition(m.ID, "alice")
	if pos.SharesYes != 0 {
		t.Errorf("shares after full sell = %g, want 0", pos.SharesYes)
	}
	if !pos.CostBasis.IsZero() {
		t.Errorf("cost basis after round trip = %s, want 0", pos.CostBasis)
	}
}

func TestSellMoreThanHeldFails(t *testing.T) {
	l, mk := newMakerFixture(t)
	l.Deposit("alice", dec("1000"), "test")

	m, _ := mk.CreateMarket("?", 100)
	mk.Buy("alice", m.ID, SideYes, 10)

	if _, err := mk.Sell("alice", m.ID, SideYes, 11); !errors.Is(err, ErrInsufficientShares) {
		t.Errorf("err = %v, want ErrInsufficientShares", err)
	}
	if _, err := mk.Sell("alice", m.ID, SideNo, 1); !errors.Is(err, ErrInsufficientShares) {
		t.Errorf("wrong-side sell err = %v, want ErrInsufficientShares", err)
	}
	if _, err := mk.Sell("stranger", m.ID, SideYes, 1); !errors.Is(err, ErrInsufficientShares) {
		t.Errorf("no-position sell err = %v, want ErrInsufficientShares", err)
	}
}

func TestResolvePaysWinnersAndRealizesPnL(t *testing.T) {
	l, mk := newMakerFixture(t)
	l.Deposit("winner", dec("1000"), "test")
	l.Deposit("loser", dec("1000"), "test")

	m, _ := mk.CreateMarket("?", 100)
	wBuy, _ := mk.Buy("winner", m.ID, SideYes, 50)
	lBuy, _ := mk.Buy("loser", m.ID, SideNo, 30)

	if err := mk.Resolve(m.ID, SideYes); err != nil {
		t.Fatalf("resolve: %v", err)
	}

	// Winning shares pay exactly 1 each.
	wantWinner := dec("1000").Sub(wBuy.Cost).Sub(wBuy.Fee).Add(dec("50"))
	if got := l.Balance("winner"); !got.Equal(wantWinner) {
		t.Errorf("winner balance = %s, want %s", got, wantWinner)
	}
	wantLoser := dec("1000").Sub(lBuy.Cost).Sub(lBuy.Fee)
	if got := l.Balance("loser"); !got.Equal(wantLoser) {
		t.Errorf("loser balance = %s, want %s", got, wantLoser)
	}

	ww, _ := l.GetWallet("winner")
	if !ww.LifetimePnL.Equal(dec("50").Sub(wBuy.Cost)) {
		t.Errorf("winner pnl = %s, want %s", ww.LifetimePnL, dec("50").Sub(wBuy.Cost))
	}
	lw, _ := l.GetWallet("loser")
	if !lw.LifetimePnL.Equal(lBuy.Cost.Neg()) {
		t.Errorf("loser pnl = %s, want %s", lw.LifetimePnL, lBuy.Cost.Neg())
	}

	resolved, _ := mk.GetMarket(m.ID)
	if resolved.Status != MarketResolved || resolved.Outcome == nil || *resolved.Outcome != SideYes {
		t.Errorf("market not marked resolved: %+v", resolved)
	}
}

func TestResolvedMarketIsImmutable(t *testing.T) {
	l, mk := newMakerFixture(t)
	l.Deposit("alice", dec("1000"), "test")

	m, _ := mk.CreateMarket("?", 100)
	mk.Buy("alice", m.ID, SideYes, 10)
	if err := mk.Resolve(m.ID, SideNo); err != nil {
		t.Fatalf("resolve: %v", err)
	}

	if err := mk.Resolve(m.ID, SideYes); !errors.Is(err, ErrMarketResolved) {
		t.Errorf("second resolve err = %v, want ErrMarketResolved", err)
	}
	if _, err := mk.Buy("alice", m.ID, SideYes, 1); !errors.Is(err, ErrMarketResolved) {
		t.Errorf("post-resolve buy err = %v, want ErrMarketResolved", err)
	}
	if _, err := mk.Sell("alice", m.ID, SideYes, 1); !errors.Is(err, ErrMarketResolved) {
		t.Errorf("post-resolve sell err = %v, want ErrMarketResolved", err)
	}
}

func TestRestoreRebuildsMarketAndPositions(t *testing.T) {
	l, mk := newMakerFixture(t)
	l.Deposit("alice", dec("1000"), "test")

	m, _ := mk.CreateMarket("?", 100)
	mk.Buy("alice", m.ID, SideYes, 25)

	snap, _ := mk.GetMarket(m.ID)
	positions := mk.Positions(m.ID)

	_, fresh := newMakerFixture(t)
	fresh.Restore(snap, positions)

	got, ok := fresh.GetMarket(m.ID)
	if !ok || got.QYes != snap.QYes || got.PriceYes != snap.PriceYes {
		t.Fatalf("restored market mismatch: %+v vs %+v", got, snap)
	}
	pos, ok := fresh.GetPosition(m.ID, "alice")
	if !ok || pos.SharesYes != 25 {
		t.Errorf("restored position = %+v, want 25 yes shares", pos)
	}
}
