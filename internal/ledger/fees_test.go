package ledger

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestQuoteFeeRates(t *testing.T) {
	l := newTestLedger()

	if got := l.QuoteFee(TradePerpOpen, dec("10000")); !got.Equal(dec("10")) {
		t.Errorf("perp open fee = %s, want 10", got)
	}
	if got := l.QuoteFee(TradePerpClose, dec("10000")); !got.Equal(dec("10")) {
		t.Errorf("perp close fee = %s, want 10", got)
	}
	if got := l.QuoteFee(TradePrediction, dec("10000")); !got.Equal(dec("100")) {
		t.Errorf("prediction fee = %s, want 100", got)
	}
}

func TestProcessTradingFeeWithoutReferrer(t *testing.T) {
	l := newTestLedger()

	rec, err := l.ProcessTradingFee("alice", TradePerpOpen, dec("10000"))
	if err != nil {
		t.Fatalf("process fee: %v", err)
	}
	if !rec.FeeCharged.Equal(dec("10")) {
		t.Errorf("fee = %s, want 10", rec.FeeCharged)
	}
	if rec.ReferrerID != nil || !rec.ReferrerPaid.IsZero() {
		t.Errorf("unexpected referrer share: %s", rec.ReferrerPaid)
	}
	if !rec.PlatformReceived.Equal(dec("10")) {
		t.Errorf("platform share = %s, want the whole fee", rec.PlatformReceived)
	}
	if got := l.Balance(PlatformAccount); !got.Equal(dec("10")) {
		t.Errorf("platform balance = %s, want 10", got)
	}
}

func TestProcessTradingFeeSplitsToReferrer(t *testing.T) {
	l := newTestLedger()
	l.SetReferrer("alice", "bob")

	rec, err := l.ProcessTradingFee("alice", TradePerpOpen, dec("10000"))
	if err != nil {
		t.Fatalf("process fee: %v", err)
	}
	if !rec.ReferrerPaid.Equal(dec("2")) {
		t.Errorf("referrer share = %s, want 2 (20%% of 10)", rec.ReferrerPaid)
	}
	if !rec.PlatformReceived.Equal(dec("8")) {
		t.Errorf("platform share = %s, want 8", rec.PlatformReceived)
	}
	if sum := rec.ReferrerPaid.Add(rec.PlatformReceived); !sum.Equal(rec.FeeCharged) {
		t.Errorf("split sum %s != fee charged %s", sum, rec.FeeCharged)
	}
	if got := l.Balance("bob"); !got.Equal(dec("2")) {
		t.Errorf("referrer balance = %s, want 2", got)
	}
	if got := l.Balance(PlatformAccount); !got.Equal(dec("8")) {
		t.Errorf("platform balance = %s, want 8", got)
	}
}

func TestFeeSplitSumInvariantUnderRounding(t *testing.T) {
	l := newTestLedger()
	l.SetReferrer("alice", "bob")

	// Amounts chosen so the referrer share rounds at the sixth decimal.
	amounts := []string{"0.000001", "1.234567", "99.999999", "1234.567891", "3.141592"}
	for _, a := range amounts {
		rec, err := l.ProcessTradingFee("alice", TradePerpOpen, dec(a))
		if err != nil {
			t.Fatalf("process fee on %s: %v", a, err)
		}
		if sum := rec.ReferrerPaid.Add(rec.PlatformReceived); !sum.Equal(rec.FeeCharged) {
			t.Errorf("amount %s: split %s + %s != fee %s",
				a, rec.ReferrerPaid, rec.PlatformReceived, rec.FeeCharged)
		}
	}
}

func TestZeroFeeProducesNoCredits(t *testing.T) {
	l := New(FeeSchedule{
		PerpRate:       decimal.Zero,
		PredictionRate: decimal.Zero,
		ReferralRate:   dec("0.2"),
	})
	l.SetReferrer("alice", "bob")

	rec, err := l.ProcessTradingFee("alice", TradePerpOpen, dec("10000"))
	if err != nil {
		t.Fatalf("process fee: %v", err)
	}
	if !rec.FeeCharged.IsZero() {
		t.Errorf("fee = %s, want 0", rec.FeeCharged)
	}
	if !l.Balance("bob").IsZero() || !l.Balance(PlatformAccount).IsZero() {
		t.Error("credits landed for a zero fee")
	}
}
