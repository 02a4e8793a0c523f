// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package store holds the authoritative per-device and per-VLAN maps (C3):
// MAC→MacConn, VlanID→VlanConn, and the derived SubnetIndex used to resolve
// an IP address to the interface whose configured subnet contains it. All
// mutation is serialized by the event loop thread (spec §3): nothing in
// this package takes its own lock beyond what's needed to let SQLite writes
// and in-memory updates stay atomic with respect to each other.
package store

import (
	"net"
	"time"

	"github.com/nqminds/EDGESec/internal/netutil"
)

// MaxPSKLen bounds MacConn.PSK (spec: "bounded, 0..=max").
const MaxPSKLen = 63 // WPA2 passphrase ceiling

// MaxLabelLen bounds MacConn.Label and AuthTicket.DeviceLabel.
const MaxLabelLen = 128

// MaxIfNameLen bounds MacConn.IfName and VlanConn.IfName (IFNAMSIZ on Linux).
const MaxIfNameLen = 15

// MacConn is the authoritative per-device record, keyed by MAC (spec §3).
type MacConn struct {
	AllowConnection bool
	VlanID          uint16
	NAT             bool
	IPAddr          net.IP // nil when unset; always a 4-byte IPv4 form when set
	IfName          string
	PSK             []byte
	Label           string
	JoinTimestamp   int64 // microseconds since epoch
	IdentityID      []byte

	// AllowAllOrigin records whether this record was most recently
	// populated by the allow_all_connections policy path rather than an
	// explicit ACCEPT_MAC/ticket adoption. Informational only: the
	// original's configure_mac_info distinguishes the two for GET_MAP/
	// GET_ALL output, but it is never persisted to SQLite.
	AllowAllOrigin bool
}

// Clone returns a deep copy, so command handlers can mutate a working copy
// and only commit it back to the map once every invariant check and the
// SQLite write have both succeeded (spec §4.7: "every command is atomic at
// the memory level").
func (m MacConn) Clone() MacConn {
	out := m
	if m.IPAddr != nil {
		out.IPAddr = append(net.IP(nil), m.IPAddr...)
	}
	if m.PSK != nil {
		out.PSK = append([]byte(nil), m.PSK...)
	}
	if m.IdentityID != nil {
		out.IdentityID = append([]byte(nil), m.IdentityID...)
	}
	return out
}

// VlanConn is per-VLAN runtime state, keyed by vlan_id (spec §3).
type VlanConn struct {
	IfName      string
	AnalyserPID int // 0 means "no live capture child"
}

// HasAnalyser reports whether a capture child is currently tracked for this
// VLAN (spec invariant: AnalyserPID is set iff a live capture child exists).
func (v VlanConn) HasAnalyser() bool { return v.AnalyserPID != 0 }

// IfaceConfig is the immutable per-interface tuple loaded once at start
// (spec §3).
type IfaceConfig struct {
	VlanID    uint16
	IfName    string
	IP        net.IP
	Broadcast net.IP
	Netmask   net.IPMask
}

// Network returns the network address (ip & netmask) this interface serves,
// the key SubnetIndex is built from.
func (c IfaceConfig) Network() string {
	return c.IP.Mask(c.Netmask).String() + "/" + net.IP(c.Netmask).String()
}

// AuthTicket is a one-shot credential minted by REGISTER_TICKET and
// consumed by the next unknown-MAC join, or auto-expired (spec §3).
type AuthTicket struct {
	IssuerMAC   netutil.MAC
	DeviceLabel string
	VlanID      uint16
	Passphrase  string
	ExpiresAt   time.Time
}

// Live reports whether the ticket has not yet expired as of now.
func (t *AuthTicket) Live(now time.Time) bool {
	return t != nil && now.Before(t.ExpiresAt)
}

// FingerprintRow is an immutable append-only log entry (spec §3).
type FingerprintRow struct {
	MAC         netutil.MAC
	Protocol    string
	Fingerprint string
	TimestampUS int64
	Query       string
}

// PcapRow is one captured packet's metadata (spec §4.9) — the per-layer
// decode itself is the capture worker's concern, not the store's; this
// table only ever records what libpcap saw, not what it meant.
type PcapRow struct {
	TimestampUS int64
	Caplen      int
	Length      int
	Name        string
	Interface   string
	Filter      string
}

// CompareOp is one of the comparison operators QUERY_FINGERPRINT accepts.
type CompareOp string

const (
	OpEQ CompareOp = "="
	OpLT CompareOp = "<"
	OpGT CompareOp = ">"
	OpLE CompareOp = "<="
	OpGE CompareOp = ">="
)
