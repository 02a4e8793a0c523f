// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

//go:build linux
// +build linux

// Package firewall is the netfilter controller (C8): idempotent
// add_nat/remove_nat/add_bridge/remove_bridge against the nftables netlink
// API, replacing the original's iptables shell-outs and the teacher's own
// full-ruleset-rebuild idiom with targeted rule add/delete tracked by
// handle (spec §9 open question: idempotence needs a dedupe mechanism,
// resolved here by tracking installed rules in Manager rather than
// re-deriving state by listing the live ruleset on every call).
package firewall

import "github.com/google/nftables"

// NFTablesConn is the narrow slice of *nftables.Conn that Manager needs,
// mirroring the teacher's own dependency-injection idiom for this
// package (a conn field of interface type, swappable with a fake in
// tests) without carrying over the broader Manager the teacher built
// around it.
type NFTablesConn interface {
	AddTable(t *nftables.Table) *nftables.Table
	AddChain(c *nftables.Chain) *nftables.Chain
	AddRule(r *nftables.Rule) *nftables.Rule
	DelRule(r *nftables.Rule) error
	Flush() error
}

// realConn adapts *nftables.Conn to NFTablesConn.
type realConn struct{ conn *nftables.Conn }

// NewRealNFTablesConn wraps a live netlink-backed nftables connection.
func NewRealNFTablesConn(conn *nftables.Conn) NFTablesConn { return &realConn{conn: conn} }

func (r *realConn) AddTable(t *nftables.Table) *nftables.Table { return r.conn.AddTable(t) }
func (r *realConn) AddChain(c *nftables.Chain) *nftables.Chain { return r.conn.AddChain(c) }
func (r *realConn) AddRule(rule *nftables.Rule) *nftables.Rule { return r.conn.AddRule(rule) }
func (r *realConn) DelRule(rule *nftables.Rule) error          { return r.conn.DelRule(rule) }
func (r *realConn) Flush() error                               { return r.conn.Flush() }
