package store

import (
	"bytes"
	"sort"
	"sync"

	"github.com/efreitasn/crossmargin/internal/account"
	"github.com/efreitasn/crossmargin/internal/domain"
)

// AccountStore is a thread-safe in-memory store for margin accounts,
// keyed by owner.
type AccountStore struct {
	mu       sync.RWMutex
	accounts map[domain.Key]*account.Account
}

// NewAccountStore creates an empty AccountStore.
func NewAccountStore() *AccountStore {
	return &AccountStore{
		accounts: make(map[domain.Key]*account.Account),
	}
}

// Create adds an account to the store. It returns
// domain.ErrAccountExists if the owner already has one.
func (s *AccountStore) Create(a *account.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.accounts[a.Owner]; exists {
		return domain.ErrAccountExists
	}
	s.accounts[a.Owner] = a
	return nil
}

// Get retrieves an account by owner. It returns
// domain.ErrAccountNotFound if the owner has no account.
func (s *AccountStore) Get(owner domain.Key) (*account.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.accounts[owner]
	if !ok {
		return nil, domain.ErrAccountNotFound
	}
	return a, nil
}

// All returns every account ordered by owner.
func (s *AccountStore) All() []*account.Account {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := make([]*account.Account, 0, len(s.accounts))
	for _, a := range s.accounts {
		all = append(all, a)
	}
	sort.Slice(all, func(i, j int) bool {
		return bytes.Compare(all[i].Owner[:], all[j].Owner[:]) < 0
	})
	return all
}
