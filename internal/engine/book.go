package engine

import (
	"fmt"
	"sort"
	"sync"

	"github.com/google/btree"

	"github.com/efreitasn/crossmargin/internal/domain"
)

// Entry is a single order resting on the book. Entries are values; the
// account that owns one refers to it only by Seq.
type Entry struct {
	Price     int64 // quote native per lot
	Seq       uint64
	Owner     domain.Key
	ClientID  uint64
	Side      domain.Side
	Remaining int64 // lots
}

// PriceLevel represents an aggregated price level in the order book.
type PriceLevel struct {
	Price         int64
	TotalQuantity int64
	OrderCount    int
}

// bidLess orders the bid side by price descending, then sequence
// ascending, so Min() is the best bid.
func bidLess(a, b Entry) bool {
	if a.Price != b.Price {
		return a.Price > b.Price
	}
	return a.Seq < b.Seq
}

// askLess orders the ask side by price ascending, then sequence ascending.
func askLess(a, b Entry) bool {
	if a.Price != b.Price {
		return a.Price < b.Price
	}
	return a.Seq < b.Seq
}

func seqLess(a, b Entry) bool {
	return a.Seq < b.Seq
}

const degree = 32

// Book is the order book and funding record of one perp market. It is not
// safe for concurrent use; the venue serialises access.
type Book struct {
	market    domain.MarketID
	maxOrders int

	bids  *btree.BTreeG[Entry]
	asks  *btree.BTreeG[Entry]
	bySeq *btree.BTreeG[Entry]

	nextSeq      uint64
	funding      int64  // cumulative, quote native per lot scaled by FundingScale
	fundingSeq   uint64 // global sequence of the last funding update
	openInterest int64  // lots, counting both sides
}

// NewBook creates an empty book for market holding at most maxOrders
// resting orders. now stamps the start of funding accrual.
func NewBook(market domain.MarketID, maxOrders int, now uint64) *Book {
	return &Book{
		market:     market,
		maxOrders:  maxOrders,
		bids:       btree.NewG[Entry](degree, bidLess),
		asks:       btree.NewG[Entry](degree, askLess),
		bySeq:      btree.NewG[Entry](degree, seqLess),
		nextSeq:    1,
		fundingSeq: now,
	}
}

// Market returns the market id the book belongs to.
func (b *Book) Market() domain.MarketID { return b.market }

// MaxOrders returns the resting-order capacity.
func (b *Book) MaxOrders() int { return b.maxOrders }

// Len returns the number of resting orders on both sides.
func (b *Book) Len() int { return b.bySeq.Len() }

// Funding returns the cumulative funding of the market.
func (b *Book) Funding() int64 { return b.funding }

// OpenInterest returns the total absolute position across accounts, in lots.
func (b *Book) OpenInterest() int64 { return b.openInterest }

// AdjustOpenInterest applies delta lots to the open-interest counter.
func (b *Book) AdjustOpenInterest(delta int64) { b.openInterest += delta }

func (b *Book) side(s domain.Side) *btree.BTreeG[Entry] {
	if s == domain.SideBid {
		return b.bids
	}
	return b.asks
}

func (b *Book) insert(e Entry) {
	b.side(e.Side).ReplaceOrInsert(e)
	b.bySeq.ReplaceOrInsert(e)
}

func (b *Book) remove(e Entry) {
	b.side(e.Side).Delete(e)
	b.bySeq.Delete(e)
}

// Lookup returns the resting order with the given id.
func (b *Book) Lookup(orderID uint64) (Entry, bool) {
	return b.bySeq.Get(Entry{Seq: orderID})
}

// BestBid returns the highest-priority bid.
func (b *Book) BestBid() (Entry, bool) {
	return b.bids.Min()
}

// BestAsk returns the highest-priority ask.
func (b *Book) BestAsk() (Entry, bool) {
	return b.asks.Min()
}

// TopBids returns up to n aggregated price levels from the bid side,
// ordered by price descending.
func (b *Book) TopBids(n int) []PriceLevel {
	return topLevels(b.bids, n)
}

// TopAsks returns up to n aggregated price levels from the ask side,
// ordered by price ascending.
func (b *Book) TopAsks(n int) []PriceLevel {
	return topLevels(b.asks, n)
}

// topLevels iterates the B-tree in order and aggregates entries into
// at most n price levels.
func topLevels(tree *btree.BTreeG[Entry], n int) []PriceLevel {
	if n <= 0 {
		return nil
	}
	levels := make([]PriceLevel, 0, n)
	tree.Ascend(func(e Entry) bool {
		if len(levels) > 0 && levels[len(levels)-1].Price == e.Price {
			levels[len(levels)-1].TotalQuantity += e.Remaining
			levels[len(levels)-1].OrderCount++
			return true
		}
		if len(levels) >= n {
			return false
		}
		levels = append(levels, PriceLevel{
			Price:         e.Price,
			TotalQuantity: e.Remaining,
			OrderCount:    1,
		})
		return true
	})
	return levels
}

// Checkpoint captures the book so a failed request can be undone. The
// trees are cloned copy-on-write, so taking one is cheap.
type Checkpoint struct {
	bids, asks, bySeq *btree.BTreeG[Entry]

	nextSeq      uint64
	funding      int64
	fundingSeq   uint64
	openInterest int64
}

// Checkpoint snapshots the book.
func (b *Book) Checkpoint() Checkpoint {
	return Checkpoint{
		bids:         b.bids.Clone(),
		asks:         b.asks.Clone(),
		bySeq:        b.bySeq.Clone(),
		nextSeq:      b.nextSeq,
		funding:      b.funding,
		fundingSeq:   b.fundingSeq,
		openInterest: b.openInterest,
	}
}

// Restore puts the book back to cp. A checkpoint is restored at most once.
func (b *Book) Restore(cp Checkpoint) {
	b.bids, b.asks, b.bySeq = cp.bids, cp.asks, cp.bySeq
	b.nextSeq = cp.nextSeq
	b.funding = cp.funding
	b.fundingSeq = cp.fundingSeq
	b.openInterest = cp.openInterest
}

// BookManager maps perp market ids to their books.
type BookManager struct {
	mu    sync.RWMutex
	books map[domain.MarketID]*Book
}

// NewBookManager creates a new BookManager.
func NewBookManager() *BookManager {
	return &BookManager{
		books: make(map[domain.MarketID]*Book),
	}
}

// Add registers book under its market id, replacing any previous one.
func (bm *BookManager) Add(book *Book) {
	bm.mu.Lock()
	defer bm.mu.Unlock()
	bm.books[book.market] = book
}

// Get returns the book for market.
func (bm *BookManager) Get(market domain.MarketID) (*Book, error) {
	bm.mu.RLock()
	defer bm.mu.RUnlock()
	book, ok := bm.books[market]
	if !ok {
		return nil, fmt.Errorf("perp market %d: %w", market, domain.ErrUnknownMarket)
	}
	return book, nil
}

// Markets returns every market with a book, ascending.
func (bm *BookManager) Markets() []domain.MarketID {
	bm.mu.RLock()
	defer bm.mu.RUnlock()
	ids := make([]domain.MarketID, 0, len(bm.books))
	for id := range bm.books {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
