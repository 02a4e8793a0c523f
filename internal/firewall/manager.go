// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

//go:build linux
// +build linux

package firewall

import (
	"fmt"
	"net"

	"github.com/google/nftables"
	"github.com/google/nftables/expr"
	"golang.org/x/sys/unix"

	"github.com/nqminds/EDGESec/internal/errors"
	"github.com/nqminds/EDGESec/internal/logging"
	"github.com/nqminds/EDGESec/internal/metrics"
)

const tableName = "edgesec"

// Manager programs the two rule families the command processor needs:
// per-client MASQUERADE (ADD_NAT/REMOVE_NAT, SET_IP) and per-bridge-pair
// FORWARD accepts (ADD_BRIDGE/REMOVE_BRIDGE, SET_IP). Installed rules are
// tracked by key so a repeated ADD_NAT for an already-NATed client is a
// no-op instead of stacking duplicate rules.
type Manager struct {
	conn   NFTablesConn
	table  *nftables.Table
	nat    *nftables.Chain
	fwd    *nftables.Chain
	log    *logging.Logger

	natRules    map[string]*nftables.Rule
	bridgeRules map[string][2]*nftables.Rule // one rule per direction

	rollback checkpointer
}

// checkpointer is the slice of *RollbackManager that Manager depends on,
// broken out so tests can swap in a fake that skips the real `nft`
// shell-out SaveCheckpoint/Rollback otherwise performs.
type checkpointer interface {
	SafeApply(applyFn func() error) error
}

// NewManager creates the edgesec nftables table with a postrouting NAT
// chain and a forward chain, ready for AddNAT/AddBridgeForward calls.
// Rule mutations are checkpointed against the live ruleset via
// RollbackManager so a failed Flush leaves netfilter in its prior state
// rather than half-applied (spec §9).
func NewManager(conn NFTablesConn) (*Manager, error) {
	return newManager(conn, NewRollbackManager())
}

func newManager(conn NFTablesConn, rollback checkpointer) (*Manager, error) {
	m := &Manager{
		conn:        conn,
		log:         logging.WithComponent("firewall"),
		natRules:    make(map[string]*nftables.Rule),
		bridgeRules: make(map[string][2]*nftables.Rule),
		rollback:    rollback,
	}

	m.table = conn.AddTable(&nftables.Table{Name: tableName, Family: nftables.TableFamilyIPv4})

	natPrio := *nftables.ChainPriorityNATSource
	m.nat = conn.AddChain(&nftables.Chain{
		Name:     "postrouting",
		Table:    m.table,
		Type:     nftables.ChainTypeNAT,
		Hooknum:  nftables.ChainHookPostrouting,
		Priority: &natPrio,
	})

	fwdPrio := *nftables.ChainPriorityFilter
	m.fwd = conn.AddChain(&nftables.Chain{
		Name:     "forward",
		Table:    m.table,
		Type:     nftables.ChainTypeFilter,
		Hooknum:  nftables.ChainHookForward,
		Priority: &fwdPrio,
	})

	if err := conn.Flush(); err != nil {
		return nil, errors.Wrapf(err, errors.KindInternal, "firewall: create base table/chains")
	}
	return m, nil
}

// AddNAT installs a MASQUERADE rule matching packets sourced from ip going
// out natIface, keyed by ip.String() so re-issuing ADD_NAT for the same
// client is idempotent (spec §4.7/§9).
func (m *Manager) AddNAT(ip net.IP, natIface string) error {
	ip4 := ip.To4()
	if ip4 == nil {
		return errors.Errorf(errors.KindValidation, "firewall: AddNAT requires an IPv4 address, got %s", ip)
	}
	key := ip4.String()
	if _, ok := m.natRules[key]; ok {
		return nil
	}

	rule := &nftables.Rule{
		Table: m.table,
		Chain: m.nat,
		Exprs: []expr.Any{
			&expr.Meta{Key: expr.MetaKeyOIFNAME, Register: 1},
			&expr.Cmp{Op: expr.CmpOpEq, Register: 1, Data: ifnamePadded(natIface)},
			&expr.Payload{DestRegister: 1, Base: expr.PayloadBaseNetworkHeader, Offset: 12, Len: 4},
			&expr.Cmp{Op: expr.CmpOpEq, Register: 1, Data: ip4},
			&expr.Masq{},
		},
	}

	err := m.rollback.SafeApply(func() error {
		installed := m.conn.AddRule(rule)
		if err := m.conn.Flush(); err != nil {
			return err
		}
		m.natRules[key] = installed
		return nil
	})
	if err != nil {
		return errors.Wrapf(err, errors.KindUnavailable, "firewall: add nat for %s via %s", ip4, natIface)
	}
	m.log.Info("nat added", "ip", ip4.String(), "iface", natIface)
	metrics.FirewallRulesActive.WithLabelValues("nat").Set(float64(len(m.natRules)))
	return nil
}

// RemoveNAT deletes the MASQUERADE rule for ip, a no-op if none is
// installed.
func (m *Manager) RemoveNAT(ip net.IP) error {
	ip4 := ip.To4()
	if ip4 == nil {
		return errors.Errorf(errors.KindValidation, "firewall: RemoveNAT requires an IPv4 address, got %s", ip)
	}
	key := ip4.String()
	rule, ok := m.natRules[key]
	if !ok {
		return nil
	}

	err := m.rollback.SafeApply(func() error {
		if err := m.conn.DelRule(rule); err != nil {
			return err
		}
		return m.conn.Flush()
	})
	if err != nil {
		return errors.Wrapf(err, errors.KindUnavailable, "firewall: remove nat for %s", ip4)
	}
	delete(m.natRules, key)
	m.log.Info("nat removed", "ip", ip4.String())
	metrics.FirewallRulesActive.WithLabelValues("nat").Set(float64(len(m.natRules)))
	return nil
}

// AddBridgeForward installs the pair of FORWARD accept rules letting a and
// b's IPv4 traffic cross in both directions, keyed by the unordered
// (a, b) pair so ADD_BRIDGE is idempotent regardless of argument order.
func (m *Manager) AddBridgeForward(a, b net.IP) error {
	a4, b4 := a.To4(), b.To4()
	if a4 == nil || b4 == nil {
		return errors.Errorf(errors.KindValidation, "firewall: AddBridgeForward requires IPv4 addresses")
	}
	key := bridgeKey(a4, b4)
	if _, ok := m.bridgeRules[key]; ok {
		return nil
	}

	fwdAB := forwardRule(m.table, m.fwd, a4, b4)
	fwdBA := forwardRule(m.table, m.fwd, b4, a4)

	err := m.rollback.SafeApply(func() error {
		instAB := m.conn.AddRule(fwdAB)
		instBA := m.conn.AddRule(fwdBA)
		if err := m.conn.Flush(); err != nil {
			return err
		}
		m.bridgeRules[key] = [2]*nftables.Rule{instAB, instBA}
		return nil
	})
	if err != nil {
		return errors.Wrapf(err, errors.KindUnavailable, "firewall: add bridge forward %s<->%s", a4, b4)
	}
	m.log.Info("bridge forward added", "a", a4.String(), "b", b4.String())
	metrics.FirewallRulesActive.WithLabelValues("bridge_forward").Set(float64(len(m.bridgeRules)))
	return nil
}

// RemoveBridgeForward deletes both directional rules for the pair, a
// no-op if none are installed.
func (m *Manager) RemoveBridgeForward(a, b net.IP) error {
	a4, b4 := a.To4(), b.To4()
	if a4 == nil || b4 == nil {
		return errors.Errorf(errors.KindValidation, "firewall: RemoveBridgeForward requires IPv4 addresses")
	}
	key := bridgeKey(a4, b4)
	rules, ok := m.bridgeRules[key]
	if !ok {
		return nil
	}

	err := m.rollback.SafeApply(func() error {
		if err := m.conn.DelRule(rules[0]); err != nil {
			return err
		}
		if err := m.conn.DelRule(rules[1]); err != nil {
			return err
		}
		return m.conn.Flush()
	})
	if err != nil {
		return errors.Wrapf(err, errors.KindUnavailable, "firewall: remove bridge forward %s<->%s", a4, b4)
	}
	delete(m.bridgeRules, key)
	m.log.Info("bridge forward removed", "a", a4.String(), "b", b4.String())
	metrics.FirewallRulesActive.WithLabelValues("bridge_forward").Set(float64(len(m.bridgeRules)))
	return nil
}

func forwardRule(table *nftables.Table, chain *nftables.Chain, src, dst net.IP) *nftables.Rule {
	return &nftables.Rule{
		Table: table,
		Chain: chain,
		Exprs: []expr.Any{
			&expr.Payload{DestRegister: 1, Base: expr.PayloadBaseNetworkHeader, Offset: 12, Len: 4},
			&expr.Cmp{Op: expr.CmpOpEq, Register: 1, Data: src},
			&expr.Payload{DestRegister: 1, Base: expr.PayloadBaseNetworkHeader, Offset: 16, Len: 4},
			&expr.Cmp{Op: expr.CmpOpEq, Register: 1, Data: dst},
			&expr.Verdict{Kind: expr.VerdictAccept},
		},
	}
}

func bridgeKey(a, b net.IP) string {
	if a.String() < b.String() {
		return fmt.Sprintf("%s|%s", a, b)
	}
	return fmt.Sprintf("%s|%s", b, a)
}

// ifnamePadded returns name zero-padded to IFNAMSIZ, the fixed width
// expr.Meta's OIFNAME comparison expects.
func ifnamePadded(name string) []byte {
	out := make([]byte, unix.IFNAMSIZ)
	copy(out, name)
	return out
}
