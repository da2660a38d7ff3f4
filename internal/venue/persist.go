package venue

import (
	"context"
	"encoding"
	"errors"
	"fmt"
	"strings"

	"github.com/efreitasn/crossmargin/internal/account"
	"github.com/efreitasn/crossmargin/internal/clock"
	"github.com/efreitasn/crossmargin/internal/domain"
	"github.com/efreitasn/crossmargin/internal/engine"
	"github.com/efreitasn/crossmargin/internal/pricecache"
	"github.com/efreitasn/crossmargin/internal/registry"
	"github.com/efreitasn/crossmargin/internal/store"
)

// Records is where the venue persists its binary records.
type Records interface {
	WriteBatch(ctx context.Context, records map[string][]byte) error
	Get(key string) ([]byte, error)
	Scan(prefix string, fn func(key string, value []byte) error) error
}

const (
	keyRegistry   = "registry"
	keyCache      = "cache"
	keyClock      = "clock"
	prefixAccount = "account/"
	prefixBook    = "book/"
)

func bookKey(id domain.MarketID) string {
	return fmt.Sprintf("%s%04d", prefixBook, id)
}

// Save writes every entity as one atomic batch.
func (v *Venue) Save(ctx context.Context, rec Records) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	batch := make(map[string][]byte)
	put := func(key string, m encoding.BinaryMarshaler) error {
		b, err := m.MarshalBinary()
		if err != nil {
			return err
		}
		batch[key] = b
		return nil
	}

	if err := put(keyRegistry, v.reg); err != nil {
		return err
	}
	if err := put(keyCache, v.cache); err != nil {
		return err
	}
	if err := put(keyClock, v.clock); err != nil {
		return err
	}
	for _, a := range v.accounts.All() {
		if err := put(prefixAccount+a.Owner.String(), a); err != nil {
			return err
		}
	}
	for _, id := range v.books.Markets() {
		book, err := v.books.Get(id)
		if err != nil {
			return err
		}
		if err := put(bookKey(id), book); err != nil {
			return err
		}
	}

	if err := rec.WriteBatch(ctx, batch); err != nil {
		return fmt.Errorf("saving venue: %w", err)
	}
	v.log.Info("venue saved", "records", len(batch), "sequence", v.clock.Now())
	return nil
}

// Restore replaces the venue's state with what rec holds. It reports false
// and changes nothing when rec holds no saved venue. The fill log is not
// persisted and starts empty.
func (v *Venue) Restore(rec Records) (bool, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	raw, err := rec.Get(keyRegistry)
	if errors.Is(err, store.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	reg := &registry.Registry{}
	if err := reg.UnmarshalBinary(raw); err != nil {
		return false, err
	}
	if reg.Admin != v.cfg.Admin {
		return false, fmt.Errorf("saved venue has a different admin: %w", domain.ErrUnauthorized)
	}

	cache := pricecache.New()
	if raw, err = rec.Get(keyCache); err != nil {
		return false, err
	}
	if err := cache.UnmarshalBinary(raw); err != nil {
		return false, err
	}

	clockRaw, err := rec.Get(keyClock)
	if err != nil {
		return false, err
	}
	var saved clock.Clock
	if err := saved.UnmarshalBinary(clockRaw); err != nil {
		return false, err
	}

	accounts := store.NewAccountStore()
	err = rec.Scan(prefixAccount, func(key string, value []byte) error {
		a := &account.Account{}
		if err := a.UnmarshalBinary(value); err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		if strings.TrimPrefix(key, prefixAccount) != a.Owner.String() {
			return fmt.Errorf("%s holds the account of %s", key, a.Owner)
		}
		return accounts.Create(a)
	})
	if err != nil {
		return false, err
	}

	books := engine.NewBookManager()
	err = rec.Scan(prefixBook, func(key string, value []byte) error {
		b, err := engine.DecodeBook(value)
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		// The saved capacity wins: a smaller one could strand resting orders.
		if b.MaxOrders() != v.cfg.MaxBookOrders {
			v.log.Warn("restored book capacity differs from configuration",
				"market", b.Market(), "saved", b.MaxOrders(), "configured", v.cfg.MaxBookOrders)
		}
		books.Add(b)
		return nil
	})
	if err != nil {
		return false, err
	}
	for i := 0; i < int(reg.NumPerpMarkets); i++ {
		if _, err := books.Get(domain.MarketID(i)); err != nil {
			return false, fmt.Errorf("restoring venue: %w", err)
		}
	}

	if err := v.clock.UnmarshalBinary(clockRaw); err != nil {
		return false, err
	}
	v.reg = reg
	v.cache = cache
	v.accounts = accounts
	v.books = books
	v.fills = store.NewFillStore()
	v.log.Info("venue restored", "accounts", len(accounts.All()), "perp_markets", reg.NumPerpMarkets,
		"sequence", v.clock.Now())
	return true, nil
}
