package pricecache

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// Size is the length in bytes of an encoded Cache.
var Size = binary.Size(Cache{})

// MarshalBinary encodes the cache as a fixed-size little-endian record.
func (c *Cache) MarshalBinary() ([]byte, error) {
	var buf bytes.Buffer
	buf.Grow(Size)
	if err := binary.Write(&buf, binary.LittleEndian, c); err != nil {
		return nil, fmt.Errorf("encoding price cache: %w", err)
	}
	return buf.Bytes(), nil
}

// UnmarshalBinary decodes a record produced by MarshalBinary.
func (c *Cache) UnmarshalBinary(data []byte) error {
	if len(data) != Size {
		return fmt.Errorf("price cache record is %d bytes, want %d", len(data), Size)
	}
	return binary.Read(bytes.NewReader(data), binary.LittleEndian, c)
}
