package ledger

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func newTestLedger() *Ledger {
	return New(DefaultFeeSchedule())
}

func TestDepositWithdraw(t *testing.T) {
	l := newTestLedger()

	if _, err := l.Deposit("alice", dec("1000"), "dep-1"); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if got := l.Balance("alice"); !got.Equal(dec("1000")) {
		t.Errorf("balance after deposit = %s, want 1000", got)
	}

	if _, err := l.Withdraw("alice", dec("400"), "wd-1"); err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	if got := l.Balance("alice"); !got.Equal(dec("600")) {
		t.Errorf("balance after withdraw = %s, want 600", got)
	}

	w, ok := l.GetWallet("alice")
	if !ok {
		t.Fatal("wallet not found")
	}
	if !w.TotalDeposited.Equal(dec("1000")) || !w.TotalWithdrawn.Equal(dec("400")) {
		t.Errorf("totals = %s deposited / %s withdrawn, want 1000 / 400",
			w.TotalDeposited, w.TotalWithdrawn)
	}
}

func TestDebitInsufficientFundsLeavesNoTrace(t *testing.T) {
	l := newTestLedger()
	l.Deposit("bob", dec("50"), "dep-1")

	_, err := l.Debit("bob", dec("100"), EntryMarginLock, "pos-1")
	if !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("err = %v, want ErrInsufficientFunds", err)
	}
	if got := l.Balance("bob"); !got.Equal(dec("50")) {
		t.Errorf("balance mutated on failed debit: %s", got)
	}
	if n := len(l.Entries("bob")); n != 1 {
		t.Errorf("entry count = %d, want 1 (the deposit only)", n)
	}
}

func TestDebitBatchAtomicity(t *testing.T) {
	l := newTestLedger()
	l.Deposit("carol", dec("100"), "dep-1")

	// 90 + 20 exceeds the balance; neither leg may land.
	_, err := l.DebitBatch("carol", []DebitItem{
		{Amount: dec("90"), Type: EntryMarginLock, RelatedID: "pos-1"},
		{Amount: dec("20"), Type: EntryTradeFee, RelatedID: "pos-1"},
	})
	if !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("err = %v, want ErrInsufficientFunds", err)
	}
	if got := l.Balance("carol"); !got.Equal(dec("100")) {
		t.Errorf("balance after failed batch = %s, want 100", got)
	}

	entries, err := l.DebitBatch("carol", []DebitItem{
		{Amount: dec("80"), Type: EntryMarginLock, RelatedID: "pos-2"},
		{Amount: dec("20"), Type: EntryTradeFee, RelatedID: "pos-2"},
	})
	if err != nil {
		t.Fatalf("batch: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("entries = %d, want 2", len(entries))
	}
	if got := l.Balance("carol"); !got.IsZero() {
		t.Errorf("balance after full batch = %s, want 0", got)
	}
}

func TestInvalidAmounts(t *testing.T) {
	l := newTestLedger()
	l.Deposit("dave", dec("10"), "dep-1")

	if _, err := l.Debit("dave", dec("-5"), EntryMarginLock, "x"); !errors.Is(err, ErrInvalidAmount) {
		t.Errorf("negative debit err = %v, want ErrInvalidAmount", err)
	}
	if _, err := l.Debit("dave", decimal.Zero, EntryMarginLock, "x"); !errors.Is(err, ErrInvalidAmount) {
		t.Errorf("zero debit err = %v, want ErrInvalidAmount", err)
	}
	if _, err := l.Credit("dave", dec("-5"), EntryDeposit, "x"); !errors.Is(err, ErrInvalidAmount) {
		t.Errorf("negative credit err = %v, want ErrInvalidAmount", err)
	}
}

func TestSystemAccountMayGoNegative(t *testing.T) {
	l := newTestLedger()

	if _, err := l.Debit(PredictionFloatAccount, dec("250"), EntryPredictionPayout, "mkt-1"); err != nil {
		t.Fatalf("system debit: %v", err)
	}
	if got := l.Balance(PredictionFloatAccount); !got.Equal(dec("-250")) {
		t.Errorf("float balance = %s, want -250", got)
	}
}

type recordingSink struct {
	owner string
	delta decimal.Decimal
	calls int
}

func (s *recordingSink) OnRealizedPnL(ownerID string, delta decimal.Decimal) {
	s.owner = ownerID
	s.delta = delta
	s.calls++
}

func TestCreditWithPnL(t *testing.T) {
	sink := &recordingSink{}
	l := New(DefaultFeeSchedule(), WithRewardsSink(sink))
	l.Deposit("erin", dec("500"), "dep-1")

	if _, err := l.CreditWithPnL("erin", dec("120"), dec("20"), EntryPositionSettlement, "pos-1"); err != nil {
		t.Fatalf("credit with pnl: %v", err)
	}
	if got := l.Balance("erin"); !got.Equal(dec("620")) {
		t.Errorf("balance = %s, want 620", got)
	}
	w, _ := l.GetWallet("erin")
	if !w.LifetimePnL.Equal(dec("20")) {
		t.Errorf("lifetime pnl = %s, want 20", w.LifetimePnL)
	}
	if sink.calls != 1 || sink.owner != "erin" || !sink.delta.Equal(dec("20")) {
		t.Errorf("sink call = %d/%s/%s, want 1/erin/20", sink.calls, sink.owner, sink.delta)
	}

	// A pure loss carries no credit but still moves lifetime PnL.
	if _, err := l.CreditWithPnL("erin", decimal.Zero, dec("-200"), EntryPositionSettlement, "pos-2"); err != nil {
		t.Fatalf("loss recording: %v", err)
	}
	if got := l.Balance("erin"); !got.Equal(dec("620")) {
		t.Errorf("balance after loss recording = %s, want 620 (unchanged)", got)
	}
	w, _ = l.GetWallet("erin")
	if !w.LifetimePnL.Equal(dec("-180")) {
		t.Errorf("lifetime pnl = %s, want -180", w.LifetimePnL)
	}
}

func TestReplayBalanceMatchesWallet(t *testing.T) {
	l := newTestLedger()
	l.Deposit("frank", dec("1000"), "dep-1")
	l.Debit("frank", dec("333.333333"), EntryMarginLock, "pos-1")
	l.Credit("frank", dec("12.5"), EntryPositionSettlement, "pos-1")
	l.Debit("frank", dec("0.000001"), EntryTradeFee, "pos-1")
	l.Withdraw("frank", dec("100"), "wd-1")

	if replayed, live := l.ReplayBalance("frank"), l.Balance("frank"); !replayed.Equal(live) {
		t.Errorf("replayed balance %s != live balance %s", replayed, live)
	}
}

func TestRoundBankersRounding(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"1.0000005", "1"},
		{"1.0000015", "1.000002"},
		{"1.0000025", "1.000002"},
		{"-1.0000005", "-1"},
		{"2.5", "2.5"},
	}
	for _, tc := range cases {
		if got := Round(dec(tc.in)); !got.Equal(dec(tc.want)) {
			t.Errorf("Round(%s) = %s, want %s", tc.in, got, tc.want)
		}
	}
}
