package registry

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// Size is the length in bytes of an encoded Registry.
var Size = binary.Size(Registry{})

// MarshalBinary encodes the registry as a fixed-size little-endian record.
func (r *Registry) MarshalBinary() ([]byte, error) {
	var buf bytes.Buffer
	buf.Grow(Size)
	if err := binary.Write(&buf, binary.LittleEndian, r); err != nil {
		return nil, fmt.Errorf("encoding registry: %w", err)
	}
	return buf.Bytes(), nil
}

// UnmarshalBinary decodes a record produced by MarshalBinary.
func (r *Registry) UnmarshalBinary(data []byte) error {
	if len(data) != Size {
		return fmt.Errorf("registry record is %d bytes, want %d", len(data), Size)
	}
	return binary.Read(bytes.NewReader(data), binary.LittleEndian, r)
}
