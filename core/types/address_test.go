package types

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestAddressBech32RoundTrip(t *testing.T) {
	var addr Address
	for i := range addr {
		addr[i] = byte(i + 1)
	}
	encoded := addr.String()
	if !strings.HasPrefix(encoded, AddressPrefix+"1") {
		t.Fatalf("unexpected encoding %q", encoded)
	}
	decoded, err := DecodeAddress(encoded)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded != addr {
		t.Fatalf("round trip mismatch: %v != %v", decoded, addr)
	}
}

func TestAddressDecodeRejectsForeignPrefix(t *testing.T) {
	var addr Address
	addr[0] = 0x42
	encoded := addr.String()
	foreign := "xyz" + strings.TrimPrefix(encoded, AddressPrefix)
	if _, err := DecodeAddress(foreign); err == nil {
		t.Fatal("expected prefix rejection")
	}
	if _, err := DecodeAddress("not-bech32"); err == nil {
		t.Fatal("expected decode failure")
	}
}

func TestAddressFromBytesLength(t *testing.T) {
	if _, err := AddressFromBytes(make([]byte, 19)); err == nil {
		t.Fatal("expected length error")
	}
	addr, err := AddressFromBytes(make([]byte, 20))
	if err != nil {
		t.Fatalf("from bytes: %v", err)
	}
	if !addr.IsZero() {
		t.Fatal("zero bytes should yield the zero address")
	}
}

func TestAddressJSON(t *testing.T) {
	var addr Address
	addr[19] = 0x99
	raw, err := json.Marshal(addr)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var decoded Address
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded != addr {
		t.Fatalf("json round trip mismatch")
	}
}

func TestSortAddresses(t *testing.T) {
	var a, b, c Address
	a[0], b[0], c[0] = 0x03, 0x01, 0x02
	addrs := []Address{a, b, c}
	SortAddresses(addrs)
	if addrs[0] != b || addrs[1] != c || addrs[2] != a {
		t.Fatalf("unexpected order: %v", addrs)
	}
}
