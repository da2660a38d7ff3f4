package domain

import (
	"testing"

	"pgregory.net/rapid"
)

func TestProperty_FixedPointRoundTrip(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		v := rapid.Int64Range(-1_000_000_000_000, 1_000_000_000_000).Draw(t, "v")
		s := FormatFixed(v, PriceScale)
		got, err := ParseFixed(s, PriceScale)
		if err != nil {
			t.Fatalf("ParseFixed(%q) returned error for value derived from %d: %v", s, v, err)
		}
		if got != v {
			t.Fatalf("round-trip failed: %d → %q → %d", v, s, got)
		}
	})
}

func TestProperty_RatioDecimalRoundTrip(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		r := Ratio(rapid.Int64Range(0, 10*RatioScale).Draw(t, "ratio"))
		if back := RatioFromDecimal(r.Decimal()); back != r {
			t.Fatalf("ratio round-trip failed: %d → %s → %d", r, r.Decimal(), back)
		}
	})
}
