package account

import (
	"errors"
	"testing"

	"github.com/efreitasn/crossmargin/internal/domain"
	"pgregory.net/rapid"
)

// Feature: crossmargin, Property 1: deposits and withdrawals conserve collateral

func TestProperty_DepositWithdrawSum(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		a := New(owner)
		var want int64
		n := rapid.IntRange(1, 40).Draw(t, "ops")
		for i := 0; i < n; i++ {
			amt := rapid.Int64Range(1, 1_000_000).Draw(t, "amount")
			if rapid.Bool().Draw(t, "deposit") {
				if _, err := a.Deposit(0, amt, domain.IndexOne, domain.IndexOne); err != nil {
					t.Fatalf("Deposit: %v", err)
				}
				want += amt
				continue
			}
			if _, err := a.Withdraw(0, amt, domain.IndexOne, domain.IndexOne); err != nil {
				t.Fatalf("Withdraw: %v", err)
			}
			want -= amt
		}
		if got := a.Native(0, domain.IndexOne, domain.IndexOne); !got.Equal(dec(want)) {
			t.Fatalf("net = %s, want %d", got, want)
		}
		if a.Deposits[0] != 0 && a.Borrows[0] != 0 {
			t.Fatalf("deposits %d and borrows %d both non-zero", a.Deposits[0], a.Borrows[0])
		}
	})
}

// Feature: crossmargin, Property 2: the basket never exceeds its capacity

func TestProperty_BasketCapacity(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		a := New(owner)
		held := map[domain.MarketID]bool{}
		n := rapid.IntRange(1, 60).Draw(t, "ops")
		for i := 0; i < n; i++ {
			m := domain.MarketID(rapid.IntRange(0, domain.MaxPairs-1).Draw(t, "market"))
			if rapid.Bool().Draw(t, "release") {
				if a.ReleaseBasketSlot(m) != held[m] {
					t.Fatalf("release of %d disagrees with model", m)
				}
				delete(held, m)
				continue
			}
			before := *a
			_, err := a.AcquireBasketSlot(m, domain.KeyFromString("oo"))
			switch {
			case held[m] || len(held) < domain.MaxNumInMarginBasket:
				if err != nil {
					t.Fatalf("acquire %d: %v", m, err)
				}
				held[m] = true
			default:
				if !errors.Is(err, domain.ErrBasketFull) {
					t.Fatalf("acquire %d over capacity: err = %v", m, err)
				}
				if *a != before {
					t.Fatal("failed acquire changed the account")
				}
			}
			if a.BasketLen() != len(held) {
				t.Fatalf("BasketLen = %d, model has %d", a.BasketLen(), len(held))
			}
		}
	})
}
