package types

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"sort"

	"github.com/btcsuite/btcutil/bech32"
)

// AddressPrefix is the human-readable part of a rendered address.
const AddressPrefix = "crc"

// Address identifies an account, contract or organization in the sale
// system. The zero value is never a valid participant.
type Address [20]byte

// AddressFromBytes copies b into an Address. It fails when b is not exactly
// 20 bytes long.
func AddressFromBytes(b []byte) (Address, error) {
	var addr Address
	if len(b) != len(addr) {
		return addr, fmt.Errorf("address must be %d bytes, got %d", len(addr), len(b))
	}
	copy(addr[:], b)
	return addr, nil
}

// Bytes returns a copy of the raw address bytes.
func (a Address) Bytes() []byte {
	out := make([]byte, len(a))
	copy(out, a[:])
	return out
}

// IsZero reports whether the address is the all-zero placeholder.
func (a Address) IsZero() bool {
	return a == Address{}
}

// Hex returns the lowercase hex rendering without a prefix, used in event
// attributes and log fields.
func (a Address) Hex() string {
	return hex.EncodeToString(a[:])
}

// String renders the address as bech32 with the crc prefix.
func (a Address) String() string {
	conv, err := bech32.ConvertBits(a[:], 8, 5, true)
	if err != nil {
		panic(err)
	}
	encoded, err := bech32.Encode(AddressPrefix, conv)
	if err != nil {
		panic(err)
	}
	return encoded
}

// DecodeAddress parses a bech32 crc address.
func DecodeAddress(s string) (Address, error) {
	hrp, data, err := bech32.Decode(s)
	if err != nil {
		return Address{}, fmt.Errorf("decode address: %w", err)
	}
	if hrp != AddressPrefix {
		return Address{}, fmt.Errorf("decode address: unsupported prefix %q", hrp)
	}
	conv, err := bech32.ConvertBits(data, 5, 8, false)
	if err != nil {
		return Address{}, fmt.Errorf("decode address: %w", err)
	}
	return AddressFromBytes(conv)
}

// MarshalText renders the address as bech32 for JSON and config payloads.
func (a Address) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

// UnmarshalText parses a bech32 crc address.
func (a *Address) UnmarshalText(text []byte) error {
	decoded, err := DecodeAddress(string(text))
	if err != nil {
		return err
	}
	*a = decoded
	return nil
}

// SortAddresses orders addresses by their raw bytes, used for deterministic
// iteration in events and state dumps.
func SortAddresses(addrs []Address) {
	sort.Slice(addrs, func(i, j int) bool {
		return bytes.Compare(addrs[i][:], addrs[j][:]) < 0
	})
}
