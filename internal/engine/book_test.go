package engine

import (
	"errors"
	"testing"

	"github.com/efreitasn/crossmargin/internal/domain"
)

var (
	alice = domain.KeyFromString("alice")
	bob   = domain.KeyFromString("bob")
	carol = domain.KeyFromString("carol")
)

func makeEntry(price int64, seq uint64) Entry {
	return Entry{Price: price, Seq: seq, Remaining: 1}
}

func TestBidLess_PriceDescending(t *testing.T) {
	a := makeEntry(200, 2)
	b := makeEntry(100, 1)
	if !bidLess(a, b) {
		t.Error("expected higher price to be less on bid side")
	}
	if bidLess(b, a) {
		t.Error("expected lower price to not be less on bid side")
	}
}

func TestBidLess_SequenceAscending(t *testing.T) {
	a := makeEntry(100, 1)
	b := makeEntry(100, 2)
	if !bidLess(a, b) {
		t.Error("expected earlier sequence to be less on bid side at same price")
	}
	if bidLess(b, a) {
		t.Error("expected later sequence to not be less on bid side at same price")
	}
}

func TestAskLess_PriceAscending(t *testing.T) {
	a := makeEntry(100, 2)
	b := makeEntry(200, 1)
	if !askLess(a, b) {
		t.Error("expected lower price to be less on ask side")
	}
	if askLess(b, a) {
		t.Error("expected higher price to not be less on ask side")
	}
}

func TestAskLess_SequenceAscending(t *testing.T) {
	a := makeEntry(100, 1)
	b := makeEntry(100, 2)
	if !askLess(a, b) {
		t.Error("expected earlier sequence to be less on ask side at same price")
	}
}

func rest(t *testing.T, b *Book, owner domain.Key, side domain.Side, price, qty int64) uint64 {
	t.Helper()
	out, err := b.Submit(Order{Owner: owner, Side: side, Kind: domain.OrderKindLimit, Price: price, Quantity: qty}, 0)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if out.Rested != qty {
		t.Fatalf("rested %d of %d", out.Rested, qty)
	}
	return out.OrderID
}

func TestTopLevels_Aggregation(t *testing.T) {
	b := NewBook(0, 100, 0)
	rest(t, b, alice, domain.SideBid, 100, 10)
	rest(t, b, bob, domain.SideBid, 100, 20)
	rest(t, b, alice, domain.SideBid, 99, 5)
	rest(t, b, alice, domain.SideAsk, 101, 7)

	bids := b.TopBids(10)
	if len(bids) != 2 {
		t.Fatalf("expected 2 bid levels, got %d", len(bids))
	}
	if bids[0].Price != 100 || bids[0].TotalQuantity != 30 || bids[0].OrderCount != 2 {
		t.Errorf("level 0 = %+v", bids[0])
	}
	if bids[1].Price != 99 || bids[1].TotalQuantity != 5 {
		t.Errorf("level 1 = %+v", bids[1])
	}
	if got := b.TopBids(1); len(got) != 1 {
		t.Errorf("TopBids(1) returned %d levels", len(got))
	}
	if got := b.TopAsks(0); got != nil {
		t.Errorf("TopAsks(0) = %v, want nil", got)
	}
	if asks := b.TopAsks(5); len(asks) != 1 || asks[0].Price != 101 {
		t.Errorf("asks = %+v", asks)
	}
}

func TestCheckpoint_RestoreUndoesEverything(t *testing.T) {
	b := NewBook(0, 100, 0)
	rest(t, b, alice, domain.SideBid, 100, 10)
	before, _ := b.MarshalBinary()

	cp := b.Checkpoint()
	rest(t, b, bob, domain.SideAsk, 120, 3)
	if _, err := b.Submit(Order{Owner: bob, Side: domain.SideAsk, Kind: domain.OrderKindMarket, Quantity: 4}, 0); err != nil {
		t.Fatal(err)
	}
	b.AdjustOpenInterest(8)

	b.Restore(cp)
	after, _ := b.MarshalBinary()
	if string(before) != string(after) {
		t.Error("restored book differs from the checkpoint")
	}
	if e, ok := b.BestBid(); !ok || e.Remaining != 10 {
		t.Errorf("best bid = %+v, %v", e, ok)
	}
}

func TestBookManager(t *testing.T) {
	bm := NewBookManager()
	bm.Add(NewBook(2, 10, 0))
	bm.Add(NewBook(0, 10, 0))

	if _, err := bm.Get(1); !errors.Is(err, domain.ErrUnknownMarket) {
		t.Errorf("Get(1) err = %v, want ErrUnknownMarket", err)
	}
	b, err := bm.Get(2)
	if err != nil || b.Market() != 2 {
		t.Fatalf("Get(2) = %v, %v", b, err)
	}
	ids := bm.Markets()
	if len(ids) != 2 || ids[0] != 0 || ids[1] != 2 {
		t.Errorf("Markets = %v", ids)
	}
}

func TestCodec_RoundTrip(t *testing.T) {
	b := NewBook(3, 8, 5)
	rest(t, b, alice, domain.SideBid, 100, 10)
	rest(t, b, bob, domain.SideAsk, 110, 2)
	rest(t, b, carol, domain.SideBid, 100, 1)
	b.AdjustOpenInterest(6)

	data, err := b.MarshalBinary()
	if err != nil {
		t.Fatalf("MarshalBinary: %v", err)
	}
	if len(data) != EncodedSize(8) {
		t.Fatalf("len = %d, want %d", len(data), EncodedSize(8))
	}
	got, err := DecodeBook(data)
	if err != nil {
		t.Fatalf("DecodeBook: %v", err)
	}
	again, _ := got.MarshalBinary()
	if string(again) != string(data) {
		t.Error("re-encoded book differs byte for byte")
	}
	if got.Market() != 3 || got.Len() != 3 || got.OpenInterest() != 6 {
		t.Errorf("decoded market=%d len=%d oi=%d", got.Market(), got.Len(), got.OpenInterest())
	}
	// Sequence numbering continues after a reload.
	if id := rest(t, got, alice, domain.SideBid, 90, 1); id != 4 {
		t.Errorf("next order id = %d, want 4", id)
	}
	if _, err := DecodeBook(data[:len(data)-1]); err == nil {
		t.Error("truncated record must be rejected")
	}
}
