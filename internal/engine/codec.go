package engine

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/google/btree"

	"github.com/efreitasn/crossmargin/internal/domain"
)

// bookHeader is the fixed prefix of an encoded book.
type bookHeader struct {
	Market       domain.MarketID
	MaxOrders    uint32
	Count        uint32
	NextSeq      uint64
	Funding      int64
	FundingSeq   uint64
	OpenInterest int64
}

// entryRecord is one order slot. Unused slots are zero.
type entryRecord struct {
	InUse     bool
	Side      domain.Side
	Price     int64
	Seq       uint64
	Owner     domain.Key
	ClientID  uint64
	Remaining int64
}

var (
	headerSize = binary.Size(bookHeader{})
	entrySize  = binary.Size(entryRecord{})
)

// EncodedSize returns the record length of a book with maxOrders slots.
func EncodedSize(maxOrders int) int {
	return headerSize + maxOrders*entrySize
}

// MarshalBinary encodes the book as a fixed-size record: the header, then
// MaxOrders slots holding resting orders in sequence order.
func (b *Book) MarshalBinary() ([]byte, error) {
	var buf bytes.Buffer
	buf.Grow(EncodedSize(b.maxOrders))
	h := bookHeader{
		Market:       b.market,
		MaxOrders:    uint32(b.maxOrders),
		Count:        uint32(b.bySeq.Len()),
		NextSeq:      b.nextSeq,
		Funding:      b.funding,
		FundingSeq:   b.fundingSeq,
		OpenInterest: b.openInterest,
	}
	if err := binary.Write(&buf, binary.LittleEndian, h); err != nil {
		return nil, fmt.Errorf("encoding book %d header: %w", b.market, err)
	}
	slots := make([]entryRecord, b.maxOrders)
	i := 0
	b.bySeq.Ascend(func(e Entry) bool {
		slots[i] = entryRecord{
			InUse:     true,
			Side:      e.Side,
			Price:     e.Price,
			Seq:       e.Seq,
			Owner:     e.Owner,
			ClientID:  e.ClientID,
			Remaining: e.Remaining,
		}
		i++
		return true
	})
	if err := binary.Write(&buf, binary.LittleEndian, slots); err != nil {
		return nil, fmt.Errorf("encoding book %d orders: %w", b.market, err)
	}
	return buf.Bytes(), nil
}

// DecodeBook rebuilds a book from a record produced by MarshalBinary.
func DecodeBook(data []byte) (*Book, error) {
	if len(data) < headerSize {
		return nil, errors.New("book record shorter than its header")
	}
	r := bytes.NewReader(data)
	var h bookHeader
	if err := binary.Read(r, binary.LittleEndian, &h); err != nil {
		return nil, fmt.Errorf("decoding book header: %w", err)
	}
	if want := EncodedSize(int(h.MaxOrders)); len(data) != want {
		return nil, fmt.Errorf("book %d record is %d bytes, want %d", h.Market, len(data), want)
	}
	if h.Count > h.MaxOrders {
		return nil, fmt.Errorf("book %d claims %d orders over capacity %d", h.Market, h.Count, h.MaxOrders)
	}
	slots := make([]entryRecord, h.MaxOrders)
	if err := binary.Read(r, binary.LittleEndian, slots); err != nil {
		return nil, fmt.Errorf("decoding book %d orders: %w", h.Market, err)
	}

	b := &Book{
		market:       h.Market,
		maxOrders:    int(h.MaxOrders),
		bids:         btree.NewG[Entry](degree, bidLess),
		asks:         btree.NewG[Entry](degree, askLess),
		bySeq:        btree.NewG[Entry](degree, seqLess),
		nextSeq:      h.NextSeq,
		funding:      h.Funding,
		fundingSeq:   h.FundingSeq,
		openInterest: h.OpenInterest,
	}
	for _, s := range slots[:h.Count] {
		if !s.InUse {
			return nil, fmt.Errorf("book %d has a gap in its order slots", h.Market)
		}
		b.insert(Entry{
			Price:     s.Price,
			Seq:       s.Seq,
			Owner:     s.Owner,
			ClientID:  s.ClientID,
			Side:      s.Side,
			Remaining: s.Remaining,
		})
	}
	return b, nil
}
