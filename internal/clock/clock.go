// Package clock owns the venue's global sequence number. Cache staleness
// and funding accrual are measured in its steps, never in wall time.
package clock

import (
	"context"
	"encoding/binary"
	"fmt"
	"sync"
	"time"
)

// Clock is a monotonically increasing step counter.
type Clock struct {
	mu  sync.Mutex
	now uint64
}

// New creates a clock reading start.
func New(start uint64) *Clock {
	return &Clock{now: start}
}

// Now returns the current sequence.
func (c *Clock) Now() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by n steps and returns the new reading.
func (c *Clock) Advance(n uint64) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now += n
	return c.now
}

// MarshalBinary encodes the reading as 8 little-endian bytes.
func (c *Clock) MarshalBinary() ([]byte, error) {
	return binary.LittleEndian.AppendUint64(nil, c.Now()), nil
}

// UnmarshalBinary restores a reading produced by MarshalBinary.
func (c *Clock) UnmarshalBinary(data []byte) error {
	if len(data) != 8 {
		return fmt.Errorf("clock record is %d bytes, want 8", len(data))
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = binary.LittleEndian.Uint64(data)
	return nil
}

// Ticker advances a clock by one step per interval.
type Ticker struct {
	interval time.Duration
	advance  func(n uint64) uint64
	onTick   func(seq uint64)
}

// NewTicker creates a ticker that calls advance once per interval and
// hands the new reading to onTick, which may be nil.
func NewTicker(interval time.Duration, advance func(n uint64) uint64, onTick func(seq uint64)) *Ticker {
	return &Ticker{interval: interval, advance: advance, onTick: onTick}
}

// Start launches a background goroutine that ticks at the configured
// interval. It stops when ctx is cancelled.
func (t *Ticker) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(t.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				t.tick()
			}
		}
	}()
}

func (t *Ticker) tick() {
	seq := t.advance(1)
	if t.onTick != nil {
		t.onTick(seq)
	}
}
