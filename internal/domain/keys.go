package domain

import (
	"encoding/hex"
	"fmt"
)

// Key is a 32-byte identity: account owners, the registry admin, token
// mints, oracle addresses and spot delegation references all use it.
type Key [32]byte

// IsZero reports whether the key is unset.
func (k Key) IsZero() bool {
	return k == Key{}
}

// String returns the lowercase hex encoding of the key.
func (k Key) String() string {
	return hex.EncodeToString(k[:])
}

// ParseKey decodes a 64-character hex string.
func ParseKey(s string) (Key, error) {
	var k Key
	b, err := hex.DecodeString(s)
	if err != nil {
		return k, &ValidationError{Message: fmt.Sprintf("key must be hex encoded: %v", err)}
	}
	if len(b) != len(k) {
		return k, &ValidationError{Message: fmt.Sprintf("key must be %d bytes, got %d", len(k), len(b))}
	}
	copy(k[:], b)
	return k, nil
}

// MustParseKey is ParseKey for constants and tests.
func MustParseKey(s string) Key {
	k, err := ParseKey(s)
	if err != nil {
		panic(err)
	}
	return k
}

// KeyFromString derives a key by left-aligning a short label. Used for
// fixtures and dev listings where readable identities help.
func KeyFromString(label string) Key {
	var k Key
	copy(k[:], label)
	return k
}

// MarshalText implements encoding.TextMarshaler.
func (k Key) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *Key) UnmarshalText(b []byte) error {
	parsed, err := ParseKey(string(b))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}
