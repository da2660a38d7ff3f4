package account

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// Size is the length in bytes of an encoded Account.
var Size = binary.Size(Account{})

// MarshalBinary encodes the account as a fixed-size little-endian record.
func (a *Account) MarshalBinary() ([]byte, error) {
	var buf bytes.Buffer
	buf.Grow(Size)
	if err := binary.Write(&buf, binary.LittleEndian, a); err != nil {
		return nil, fmt.Errorf("encoding account %s: %w", a.Owner, err)
	}
	return buf.Bytes(), nil
}

// UnmarshalBinary decodes a record produced by MarshalBinary.
func (a *Account) UnmarshalBinary(data []byte) error {
	if len(data) != Size {
		return fmt.Errorf("account record is %d bytes, want %d", len(data), Size)
	}
	return binary.Read(bytes.NewReader(data), binary.LittleEndian, a)
}
