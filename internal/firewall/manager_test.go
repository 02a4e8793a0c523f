// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

//go:build linux
// +build linux

package firewall

import (
	"net"
	"testing"

	"github.com/google/nftables"
)

// fakeConn is an in-memory NFTablesConn: AddRule/DelRule just track the
// rules it was given so tests can assert on counts without netlink.
type fakeConn struct {
	rules     []*nftables.Rule
	flushErr  error
	flushCalls int
}

func (f *fakeConn) AddTable(t *nftables.Table) *nftables.Table { return t }
func (f *fakeConn) AddChain(c *nftables.Chain) *nftables.Chain { return c }

func (f *fakeConn) AddRule(r *nftables.Rule) *nftables.Rule {
	f.rules = append(f.rules, r)
	return r
}

func (f *fakeConn) DelRule(r *nftables.Rule) error {
	for i, existing := range f.rules {
		if existing == r {
			f.rules = append(f.rules[:i], f.rules[i+1:]...)
			return nil
		}
	}
	return nil
}

func (f *fakeConn) Flush() error {
	f.flushCalls++
	return f.flushErr
}

// noopCheckpointer runs applyFn directly, skipping the real RollbackManager's
// shell-out to `nft list ruleset` so these tests exercise Manager's rule
// bookkeeping without depending on a netfilter-capable host.
type noopCheckpointer struct{}

func (noopCheckpointer) SafeApply(applyFn func() error) error { return applyFn() }

func newTestManager(t *testing.T) (*Manager, *fakeConn) {
	t.Helper()
	conn := &fakeConn{}
	m, err := newManager(conn, noopCheckpointer{})
	if err != nil {
		t.Fatalf("newManager: %v", err)
	}
	return m, conn
}

func TestAddNATIsIdempotent(t *testing.T) {
	m, conn := newTestManager(t)
	ip := net.ParseIP("10.0.0.5")

	if err := m.AddNAT(ip, "eth0"); err != nil {
		t.Fatalf("AddNAT: %v", err)
	}
	if err := m.AddNAT(ip, "eth0"); err != nil {
		t.Fatalf("second AddNAT: %v", err)
	}

	if len(conn.rules) != 1 {
		t.Fatalf("expected exactly one installed NAT rule, got %d", len(conn.rules))
	}
}

func TestRemoveNATWithoutAddIsNoop(t *testing.T) {
	m, conn := newTestManager(t)
	if err := m.RemoveNAT(net.ParseIP("10.0.0.9")); err != nil {
		t.Fatalf("RemoveNAT: %v", err)
	}
	if len(conn.rules) != 0 {
		t.Fatalf("expected no rules, got %d", len(conn.rules))
	}
}

func TestAddThenRemoveNATClearsRule(t *testing.T) {
	m, conn := newTestManager(t)
	ip := net.ParseIP("10.0.0.5")

	if err := m.AddNAT(ip, "eth0"); err != nil {
		t.Fatalf("AddNAT: %v", err)
	}
	if err := m.RemoveNAT(ip); err != nil {
		t.Fatalf("RemoveNAT: %v", err)
	}
	if len(conn.rules) != 0 {
		t.Fatalf("expected the rule to be gone, got %d", len(conn.rules))
	}

	// a second RemoveNAT is a no-op, not an error
	if err := m.RemoveNAT(ip); err != nil {
		t.Fatalf("second RemoveNAT: %v", err)
	}
}

func TestAddBridgeForwardInstallsBothDirections(t *testing.T) {
	m, conn := newTestManager(t)
	a := net.ParseIP("10.0.0.1")
	b := net.ParseIP("10.0.0.2")

	if err := m.AddBridgeForward(a, b); err != nil {
		t.Fatalf("AddBridgeForward: %v", err)
	}
	if len(conn.rules) != 2 {
		t.Fatalf("expected two forward rules (one per direction), got %d", len(conn.rules))
	}

	// reversing the argument order must still hit the same pair key
	if err := m.AddBridgeForward(b, a); err != nil {
		t.Fatalf("AddBridgeForward reversed: %v", err)
	}
	if len(conn.rules) != 2 {
		t.Fatalf("expected AddBridgeForward to be idempotent regardless of argument order, got %d rules", len(conn.rules))
	}
}

func TestRemoveBridgeForwardClearsBothDirections(t *testing.T) {
	m, conn := newTestManager(t)
	a := net.ParseIP("10.0.0.1")
	b := net.ParseIP("10.0.0.2")

	if err := m.AddBridgeForward(a, b); err != nil {
		t.Fatalf("AddBridgeForward: %v", err)
	}
	if err := m.RemoveBridgeForward(a, b); err != nil {
		t.Fatalf("RemoveBridgeForward: %v", err)
	}
	if len(conn.rules) != 0 {
		t.Fatalf("expected both rules removed, got %d", len(conn.rules))
	}
}

func TestAddNATRejectsIPv6(t *testing.T) {
	m, _ := newTestManager(t)
	if err := m.AddNAT(net.ParseIP("::1"), "eth0"); err == nil {
		t.Fatal("expected an error for a non-IPv4 address")
	}
}
