// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package store

import (
	"net"
	"sort"

	"github.com/nqminds/EDGESec/internal/netutil"
)

// Memory is the in-process authoritative view: MAC→MacConn, VlanID→VlanConn,
// subnet-network→ifname, and the bridge multigraph (spec §3/§4.3). It is
// only ever touched from the event-loop goroutine; no field here takes its
// own lock.
type Memory struct {
	macs    map[netutil.MAC]MacConn
	vlans   map[uint16]VlanConn
	subnets map[string]string // network CIDR-ish key -> ifname
	bridges map[[2]netutil.MAC]struct{}
	ifaces  []IfaceConfig
}

// NewMemory constructs an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		macs:    make(map[netutil.MAC]MacConn),
		vlans:   make(map[uint16]VlanConn),
		subnets: make(map[string]string),
		bridges: make(map[[2]netutil.MAC]struct{}),
	}
}

// LoadIfaces installs the immutable interface set and rebuilds the derived
// SubnetIndex and the initial VlanConn set from it (spec §3: SubnetIndex "is
// derived ... rebuilt from IfaceConfig at start").
func (m *Memory) LoadIfaces(ifaces []IfaceConfig) {
	m.ifaces = ifaces
	m.subnets = make(map[string]string, len(ifaces))
	for _, c := range ifaces {
		m.subnets[c.Network()] = c.IfName
		if _, ok := m.vlans[c.VlanID]; !ok {
			m.vlans[c.VlanID] = VlanConn{IfName: c.IfName}
		}
	}
}

// IfaceForIP returns the IfaceConfig whose subnet contains ip, if any.
func (m *Memory) IfaceForIP(ip net.IP) (IfaceConfig, bool) {
	for _, c := range m.ifaces {
		if c.IP.Mask(c.Netmask).Equal(ip.Mask(c.Netmask)) {
			return c, true
		}
	}
	return IfaceConfig{}, false
}

// IfnameForIP resolves ip to an interface name via IfaceForIP's scan of the
// loaded interface list.
func (m *Memory) IfnameForIP(ip net.IP) (string, bool) {
	c, ok := m.IfaceForIP(ip)
	if !ok {
		return "", false
	}
	return c.IfName, true
}

// GetMac returns a copy of the MacConn for mac, if known.
func (m *Memory) GetMac(mac netutil.MAC) (MacConn, bool) {
	c, ok := m.macs[mac]
	return c, ok
}

// PutMac installs conn for mac, overwriting any existing record.
func (m *Memory) PutMac(mac netutil.MAC, conn MacConn) {
	m.macs[mac] = conn
}

// AllMacs returns every known MAC in a deterministic (sorted) order, so
// GET_ALL output is stable across repeated queries.
func (m *Memory) AllMacs() []netutil.MAC {
	out := make([]netutil.MAC, 0, len(m.macs))
	for mac := range m.macs {
		out = append(out, mac)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out
}

// GetVlan returns the VlanConn for id, if it exists.
func (m *Memory) GetVlan(id uint16) (VlanConn, bool) {
	v, ok := m.vlans[id]
	return v, ok
}

// PutVlan installs conn for VLAN id.
func (m *Memory) PutVlan(id uint16, conn VlanConn) {
	m.vlans[id] = conn
}

// HasVlan reports whether id is a known VLAN (spec invariant: MacConn.VlanID
// must exist as a key in VlanConn).
func (m *Memory) HasVlan(id uint16) bool {
	_, ok := m.vlans[id]
	return ok
}

// AddBridge adds an undirected edge between a and b. Symmetric and
// idempotent: add(a,b) == add(b,a), and a duplicate add is a no-op (spec
// BridgeEdge invariants).
func (m *Memory) AddBridge(a, b netutil.MAC) (added bool) {
	key := netutil.EdgeKey(a, b)
	if _, ok := m.bridges[key]; ok {
		return false
	}
	m.bridges[key] = struct{}{}
	return true
}

// RemoveBridge removes the undirected edge between a and b, if present.
func (m *Memory) RemoveBridge(a, b netutil.MAC) (removed bool) {
	key := netutil.EdgeKey(a, b)
	if _, ok := m.bridges[key]; !ok {
		return false
	}
	delete(m.bridges, key)
	return true
}

// HasBridge reports whether a and b are currently bridged.
func (m *Memory) HasBridge(a, b netutil.MAC) bool {
	_, ok := m.bridges[netutil.EdgeKey(a, b)]
	return ok
}

// BridgePeers returns every MAC currently bridged with mac.
func (m *Memory) BridgePeers(mac netutil.MAC) []netutil.MAC {
	var peers []netutil.MAC
	for edge := range m.bridges {
		switch {
		case edge[0] == mac:
			peers = append(peers, edge[1])
		case edge[1] == mac:
			peers = append(peers, edge[0])
		}
	}
	return peers
}
