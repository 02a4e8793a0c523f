// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package netutil provides MAC-address and small network-token helpers
// shared by the transport, state-store and control-client packages.
package netutil

import (
	"fmt"
	"net"
)

// MAC is a fixed 6-byte hardware address, used as a map key throughout the
// state store so that lookups never pay a string parse/format round-trip
// (design note: "use fixed 6-byte arrays as keys, not string formatting").
type MAC [6]byte

// ZeroMAC is the all-zero sentinel MAC, never a valid client address.
var ZeroMAC MAC

// ParseMAC parses a colon- or hyphen-separated MAC string into a MAC. It
// rejects anything net.ParseMAC accepts but that isn't exactly 6 bytes
// (EUI-64 forms), since every EDGESec entity keys on 6-byte 802 addresses.
func ParseMAC(s string) (MAC, error) {
	hw, err := net.ParseMAC(s)
	if err != nil {
		return MAC{}, fmt.Errorf("netutil: malformed MAC %q: %w", s, err)
	}
	if len(hw) != 6 {
		return MAC{}, fmt.Errorf("netutil: malformed MAC %q: expected 6 bytes, got %d", s, len(hw))
	}
	var m MAC
	copy(m[:], hw)
	return m, nil
}

// String formats the MAC in lowercase colon-separated form.
func (m MAC) String() string {
	return fmt.Sprintf("%02x:%02x:%02x:%02x:%02x:%02x", m[0], m[1], m[2], m[3], m[4], m[5])
}

// IsZero reports whether m is the all-zero sentinel.
func (m MAC) IsZero() bool {
	return m == ZeroMAC
}

// Bytes returns a fresh byte slice copy of the address.
func (m MAC) Bytes() []byte {
	b := make([]byte, 6)
	copy(b, m[:])
	return b
}

// EdgeKey returns the canonical ordering of an undirected MAC pair used to
// key BridgeEdge entries, so add(a,b) and add(b,a) hash to the same slot
// (spec: BridgeEdge.add is commutative).
func EdgeKey(a, b MAC) [2]MAC {
	if lessMAC(b, a) {
		a, b = b, a
	}
	return [2]MAC{a, b}
}

func lessMAC(a, b MAC) bool {
	for i := range a {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return false
}
