// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package store

import (
	"testing"

	"github.com/nqminds/EDGESec/internal/netutil"
)

func mustMAC(t *testing.T, s string) netutil.MAC {
	t.Helper()
	m, err := netutil.ParseMAC(s)
	if err != nil {
		t.Fatalf("ParseMAC(%q): %v", s, err)
	}
	return m
}

func TestBridgeSymmetry(t *testing.T) {
	m := NewMemory()
	a := mustMAC(t, "aa:bb:cc:dd:ee:01")
	b := mustMAC(t, "aa:bb:cc:dd:ee:02")

	if !m.AddBridge(a, b) {
		t.Fatal("expected first AddBridge(a,b) to add")
	}
	if m.AddBridge(b, a) {
		t.Fatal("AddBridge(b,a) should be a no-op after AddBridge(a,b)")
	}
	if !m.HasBridge(a, b) || !m.HasBridge(b, a) {
		t.Fatal("bridge should be visible from both directions")
	}

	if !m.RemoveBridge(a, b) {
		t.Fatal("expected RemoveBridge(a,b) to remove")
	}
	if m.RemoveBridge(b, a) {
		t.Fatal("RemoveBridge(b,a) should be a no-op once already removed")
	}
}

func TestAcceptDenySequenceKeepsLastCommandPerMAC(t *testing.T) {
	m := NewMemory()
	m.PutVlan(3, VlanConn{IfName: "vlan3"})

	a := mustMAC(t, "aa:bb:cc:dd:ee:01")
	b := mustMAC(t, "aa:bb:cc:dd:ee:02")

	m.PutMac(a, MacConn{AllowConnection: true, VlanID: 3})
	m.PutMac(a, MacConn{AllowConnection: false})
	m.PutMac(b, MacConn{AllowConnection: true, VlanID: 3})

	gotA, _ := m.GetMac(a)
	if gotA.AllowConnection {
		t.Errorf("expected last command (DENY) to win for a, got allow=%v", gotA.AllowConnection)
	}
	gotB, _ := m.GetMac(b)
	if !gotB.AllowConnection {
		t.Errorf("expected allow=true for b")
	}
}
