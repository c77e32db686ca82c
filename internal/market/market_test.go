package market

import (
	"testing"
	"time"
)

func TestDeriveTicker(t *testing.T) {
	cases := []struct {
		name string
		want string
	}{
		{"Bitcoin", "BITCOIN"},
		{"ether 2.0", "ETHER20"},
		{"sol-ana", "SOLANA"},
		{"A Very Long Instrument Name", "AVERYLONGINS"},
		{"---", ""},
		{"btc!", "BTC"},
	}
	for _, tc := range cases {
		if got := DeriveTicker(tc.name); got != tc.want {
			t.Errorf("DeriveTicker(%q) = %q, want %q", tc.name, got, tc.want)
		}
	}
}

func TestNextFundingTime(t *testing.T) {
	cases := []struct {
		now  time.Time
		want time.Time
	}{
		{
			time.Date(2025, 3, 10, 3, 15, 0, 0, time.UTC),
			time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC),
		},
		{
			time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC),
			time.Date(2025, 3, 10, 16, 0, 0, 0, time.UTC),
		},
		{
			time.Date(2025, 3, 10, 23, 59, 59, 0, time.UTC),
			time.Date(2025, 3, 11, 0, 0, 0, 0, time.UTC),
		},
		{
			time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC),
			time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC),
		},
	}
	for _, tc := range cases {
		if got := NextFundingTime(tc.now); !got.Equal(tc.want) {
			t.Errorf("NextFundingTime(%v) = %v, want %v", tc.now, got, tc.want)
		}
	}
}

func TestFundingBoundary(t *testing.T) {
	cases := []struct {
		in   time.Time
		want time.Time
	}{
		{
			time.Date(2025, 3, 10, 3, 15, 42, 0, time.UTC),
			time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC),
		},
		{
			time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC),
			time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC),
		},
		{
			time.Date(2025, 3, 10, 15, 59, 59, 0, time.UTC),
			time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC),
		},
		{
			time.Date(2025, 3, 10, 23, 0, 0, 0, time.UTC),
			time.Date(2025, 3, 10, 16, 0, 0, 0, time.UTC),
		},
	}
	for _, tc := range cases {
		if got := FundingBoundary(tc.in); !got.Equal(tc.want) {
			t.Errorf("FundingBoundary(%v) = %v, want %v", tc.in, got, tc.want)
		}
	}

	// Two timestamps in the same epoch share a boundary.
	a := FundingBoundary(time.Date(2025, 3, 10, 8, 1, 0, 0, time.UTC))
	b := FundingBoundary(time.Date(2025, 3, 10, 15, 58, 0, 0, time.UTC))
	if !a.Equal(b) {
		t.Errorf("same-epoch boundaries differ: %v vs %v", a, b)
	}
}
