// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package cmdproc is the supervisor / command processor (C7): the operator
// command language dispatcher and the `get_mac_conn` RADIUS callback. Every
// dependency it needs — the AP control client, the firewall manager, the
// credential store, ticket issuance, RADIUS cache invalidation — is taken
// as a narrow interface so the dispatch logic can be tested without a real
// Unix socket, nftables connection, or SQLite file (the same
// dependency-injection idiom used by internal/firewall.NFTablesConn).
package cmdproc

import (
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/nqminds/EDGESec/internal/logging"
	"github.com/nqminds/EDGESec/internal/metrics"
	"github.com/nqminds/EDGESec/internal/netutil"
	"github.com/nqminds/EDGESec/internal/radius"
	"github.com/nqminds/EDGESec/internal/store"
	"github.com/nqminds/EDGESec/internal/transport"
)

// TicketTTL is the default REGISTER_TICKET lifetime (spec §4.4's
// AUTH_TICKET_SECONDS convention).
const TicketTTL = 60 * time.Second

// APClient is the slice of apctl.CmdClient the command processor needs.
type APClient interface {
	Station(mac netutil.MAC) (string, error)
	Disconnect(mac netutil.MAC) error
}

// FirewallManager is the slice of firewall.Manager the command processor
// needs.
type FirewallManager interface {
	AddNAT(ip net.IP, natIface string) error
	RemoveNAT(ip net.IP) error
	AddBridgeForward(a, b net.IP) error
	RemoveBridgeForward(a, b net.IP) error
}

// CredStore is the slice of credstore.Context the command processor needs.
type CredStore interface {
	PutCryptPair(key, id string, value []byte) error
	Delete(key string) error
}

// Tickets is the slice of credstore.TicketManager the command processor
// needs.
type Tickets interface {
	Register(issuer netutil.MAC, label string, vlanID uint16, ttl time.Duration) (string, error)
	ConsumeLive() (*store.AuthTicket, bool)
}

// RadiusInvalidator is the slice of radius.Server the command processor
// needs, so CLEAR_PSK/DENY_MAC can drop a stale memoized attribute chain
// (spec §9 open question).
type RadiusInvalidator interface {
	InvalidateIdentity(identity string)
}

// CaptureSpawner is the slice of the capture scheduler (C9) the command
// processor needs for maybe_schedule_capture (spec §4.7). Left nil-able:
// exec_capture disabled means Spawner is simply never set.
type CaptureSpawner interface {
	Spawn(vlanID uint16, ifname string) (pid int, err error)
}

// Config carries the policy knobs get_mac_conn reads (spec §4.7).
type Config struct {
	AllowAllConnections bool
	DefaultOpenVlan     uint16
	WPAPassphrase       string
	ExecCapture         bool
	NATInterface        string
}

// nowMicros returns the current time in microseconds since epoch, the unit
// MacConn.JoinTimestamp is stored in (spec §3).
var nowMicros = func() int64 { return time.Now().UnixMicro() }

// Processor dispatches the operator command language (spec §4.7) against
// the in-memory store, mirroring every committed mutation to SQLite and to
// the injected AP/firewall/credential dependencies.
type Processor struct {
	mem     *store.Memory
	db      *store.DB
	cred    CredStore
	tickets Tickets
	fw      FirewallManager
	ap      APClient
	radio   RadiusInvalidator
	capture CaptureSpawner
	cfg     Config
	log     *logging.Logger
}

// New constructs a Processor. ap, fw, radio and capture may be nil in
// configurations that don't need them (e.g. a unit test exercising only
// GET_MAP/GET_ALL), in which case commands that would use them are skipped
// rather than panicking.
func New(mem *store.Memory, db *store.DB, cred CredStore, tickets Tickets, fw FirewallManager, ap APClient, radio RadiusInvalidator, capture CaptureSpawner, cfg Config) *Processor {
	return &Processor{
		mem:     mem,
		db:      db,
		cred:    cred,
		tickets: tickets,
		fw:      fw,
		ap:      ap,
		radio:   radio,
		capture: capture,
		cfg:     cfg,
		log:     logging.WithComponent("cmdproc"),
	}
}

// Dispatch parses and executes one operator command line, returning the
// literal reply (spec §4.7: "OK or FAIL except queries"). subscribe is true
// only for SUBSCRIBE_EVENTS, which the transport-owning server (not this
// package) must use to add the caller to its event multicast set.
func (p *Processor) Dispatch(line string) (reply string, subscribe bool) {
	fields := strings.Fields(line)
	cmd := "UNKNOWN"
	if len(fields) > 0 {
		cmd = fields[0]
	}
	reply, subscribe = p.dispatch(line, fields)
	metrics.CommandsTotal.WithLabelValues(cmd, replyBucket(reply)).Inc()
	return reply, subscribe
}

// replyBucket collapses a reply into a low-cardinality label: query
// commands (GET_MAP/GET_ALL/QUERY_FINGERPRINT) return formatted payloads,
// not OK/FAIL, and must not leak into a Prometheus label value verbatim.
func replyBucket(reply string) string {
	switch reply {
	case "OK", "FAIL", "PONG":
		return reply
	default:
		return "data"
	}
}

func (p *Processor) dispatch(line string, fields []string) (reply string, subscribe bool) {
	if len(fields) == 0 {
		return "FAIL", false
	}
	cmd := fields[0]
	args := fields[1:]

	switch cmd {
	case "PING":
		return "PONG", false
	case "SUBSCRIBE_EVENTS":
		return "OK", true
	case "ACCEPT_MAC":
		return p.acceptMac(args), false
	case "DENY_MAC":
		return p.denyMac(args), false
	case "ADD_NAT":
		return p.toggleNAT(args, true), false
	case "REMOVE_NAT":
		return p.toggleNAT(args, false), false
	case "ASSIGN_PSK":
		return p.assignPSK(args), false
	case "CLEAR_PSK":
		return p.clearPSK(args), false
	case "SET_IP":
		return p.setIP(args), false
	case "ADD_BRIDGE":
		return p.toggleBridge(args, true), false
	case "REMOVE_BRIDGE":
		return p.toggleBridge(args, false), false
	case "SET_FINGERPRINT":
		return p.setFingerprint(line), false
	case "QUERY_FINGERPRINT":
		return p.queryFingerprint(args), false
	case "REGISTER_TICKET":
		return p.registerTicket(args), false
	case "GET_MAP":
		return p.getMap(args), false
	case "GET_ALL":
		return p.getAll(), false
	default:
		return "FAIL", false
	}
}

func (p *Processor) acceptMac(args []string) string {
	if len(args) != 2 {
		return "FAIL"
	}
	mac, err := netutil.ParseMAC(args[0])
	if err != nil {
		return "FAIL"
	}
	vlanID, err := parseVlan(args[1])
	if err != nil {
		return "FAIL"
	}
	vlanConn, ok := p.mem.GetVlan(vlanID)
	if !ok {
		return "FAIL"
	}

	clone := p.cloneOrZero(mac)
	clone.AllowConnection = true
	clone.VlanID = vlanID
	clone.IfName = vlanConn.IfName
	clone.AllowAllOrigin = false
	return p.commit(mac, clone)
}

func (p *Processor) denyMac(args []string) string {
	if len(args) != 1 {
		return "FAIL"
	}
	mac, err := netutil.ParseMAC(args[0])
	if err != nil {
		return "FAIL"
	}
	clone := p.cloneOrZero(mac)
	clone.AllowConnection = false
	reply := p.commit(mac, clone)
	if reply != "OK" {
		return reply
	}
	if p.radio != nil {
		p.radio.InvalidateIdentity(mac.String())
	}
	if p.ap != nil {
		if _, err := p.ap.Station(mac); err == nil {
			if err := p.ap.Disconnect(mac); err != nil {
				p.log.Warn("disconnect failed after DENY_MAC", "mac", mac.String(), "err", err)
			}
		}
	}
	return "OK"
}

func (p *Processor) toggleNAT(args []string, enable bool) string {
	if len(args) != 1 {
		return "FAIL"
	}
	mac, err := netutil.ParseMAC(args[0])
	if err != nil {
		return "FAIL"
	}
	conn, ok := p.mem.GetMac(mac)
	if !ok {
		return "FAIL"
	}
	clone := conn.Clone()
	clone.NAT = enable

	if clone.IPAddr != nil && p.fw != nil {
		var err error
		if enable {
			err = p.fw.AddNAT(clone.IPAddr, p.cfg.NATInterface)
		} else {
			err = p.fw.RemoveNAT(clone.IPAddr)
		}
		if err != nil {
			p.log.Warn("nat toggle failed", "mac", mac.String(), "err", err)
			return "FAIL"
		}
	}
	return p.commit(mac, clone)
}

func (p *Processor) assignPSK(args []string) string {
	if len(args) != 2 {
		return "FAIL"
	}
	mac, err := netutil.ParseMAC(args[0])
	if err != nil {
		return "FAIL"
	}
	pass := args[1]
	if len(pass) > store.MaxPSKLen {
		return "FAIL"
	}

	if p.cred != nil {
		if err := p.cred.PutCryptPair(pskKey(mac), mac.String(), []byte(pass)); err != nil {
			p.log.Warn("psk encryption failed", "mac", mac.String(), "err", err)
			return "FAIL"
		}
	}

	clone := p.cloneOrZero(mac)
	clone.PSK = []byte(pass)
	return p.commit(mac, clone)
}

func (p *Processor) clearPSK(args []string) string {
	if len(args) != 1 {
		return "FAIL"
	}
	mac, err := netutil.ParseMAC(args[0])
	if err != nil {
		return "FAIL"
	}

	if p.cred != nil {
		if err := p.cred.Delete(pskKey(mac)); err != nil {
			p.log.Warn("psk delete failed", "mac", mac.String(), "err", err)
			return "FAIL"
		}
	}

	clone := p.cloneOrZero(mac)
	clone.PSK = nil
	reply := p.commit(mac, clone)
	if reply == "OK" && p.radio != nil {
		p.radio.InvalidateIdentity(mac.String())
	}
	return reply
}

// setIP implements SET_IP {add|old|<anything-else>} <mac> <ip> (spec §4.7:
// add and old both mean add, any other third token means remove — §9 open
// question, resolved by preserving this exactly as observed in
// original_source).
func (p *Processor) setIP(args []string) string {
	if len(args) != 3 {
		return "FAIL"
	}
	isAdd := args[0] == "add" || args[0] == "old"
	mac, err := netutil.ParseMAC(args[1])
	if err != nil {
		return "FAIL"
	}
	ip := net.ParseIP(args[2])
	if ip == nil {
		return "FAIL"
	}
	ip4 := ip.To4()
	if ip4 == nil {
		return "FAIL"
	}

	conn, _ := p.mem.GetMac(mac)
	clone := conn.Clone()
	oldIP := conn.IPAddr

	var ifname string
	if isAdd {
		var ok bool
		ifname, ok = p.mem.IfnameForIP(ip4)
		if !ok {
			return "FAIL"
		}
		clone.IPAddr = ip4
		clone.IfName = ifname
	} else {
		clone.IPAddr = nil
	}

	if clone.NAT && p.fw != nil {
		var err error
		if isAdd {
			err = p.fw.AddNAT(ip4, p.cfg.NATInterface)
		} else if oldIP != nil {
			err = p.fw.RemoveNAT(oldIP)
		}
		if err != nil {
			p.log.Warn("set_ip nat toggle failed", "mac", mac.String(), "err", err)
			return "FAIL"
		}
	}

	if p.fw != nil {
		for _, peer := range p.mem.BridgePeers(mac) {
			peerConn, ok := p.mem.GetMac(peer)
			if !ok || peerConn.IPAddr == nil {
				continue
			}
			var err error
			if isAdd {
				err = p.fw.AddBridgeForward(ip4, peerConn.IPAddr)
			} else if oldIP != nil {
				err = p.fw.RemoveBridgeForward(oldIP, peerConn.IPAddr)
			}
			if err != nil {
				p.log.Warn("set_ip bridge forward toggle failed", "mac", mac.String(), "peer", peer.String(), "err", err)
				return "FAIL"
			}
		}
	}

	return p.commit(mac, clone)
}

func (p *Processor) toggleBridge(args []string, enable bool) string {
	if len(args) != 2 {
		return "FAIL"
	}
	a, err := netutil.ParseMAC(args[0])
	if err != nil {
		return "FAIL"
	}
	b, err := netutil.ParseMAC(args[1])
	if err != nil {
		return "FAIL"
	}

	if enable {
		p.mem.AddBridge(a, b)
	} else {
		p.mem.RemoveBridge(a, b)
	}

	if p.fw == nil {
		return "OK"
	}
	connA, okA := p.mem.GetMac(a)
	connB, okB := p.mem.GetMac(b)
	if !okA || !okB || connA.IPAddr == nil || connB.IPAddr == nil {
		return "OK"
	}

	var fwErr error
	if enable {
		fwErr = p.fw.AddBridgeForward(connA.IPAddr, connB.IPAddr)
	} else {
		fwErr = p.fw.RemoveBridgeForward(connA.IPAddr, connB.IPAddr)
	}
	if fwErr != nil {
		p.log.Warn("bridge forward toggle failed", "a", a.String(), "b", b.String(), "err", fwErr)
		return "FAIL"
	}
	return "OK"
}

func (p *Processor) setFingerprint(line string) string {
	tokens := transport.SplitCommand(line, 7) // SET_FINGERPRINT + 6 positional, last absorbs spaces
	if len(tokens) != 7 {
		return "FAIL"
	}
	src, err := netutil.ParseMAC(tokens[1])
	if err != nil {
		return "FAIL"
	}
	dst, err := netutil.ParseMAC(tokens[2])
	if err != nil {
		return "FAIL"
	}
	proto := tokens[3]
	fp := tokens[4]
	ts, err := strconv.ParseInt(tokens[5], 10, 64)
	if err != nil {
		return "FAIL"
	}
	query := tokens[6]

	if p.db == nil {
		return "FAIL"
	}
	rows := []store.FingerprintRow{
		{MAC: src, Protocol: proto, Fingerprint: fp, TimestampUS: ts, Query: query},
		{MAC: dst, Protocol: proto, Fingerprint: fp, TimestampUS: ts, Query: query},
	}
	for _, row := range rows {
		if err := p.db.AppendFingerprint(row); err != nil {
			p.log.Warn("append fingerprint failed", "err", err)
			return "FAIL"
		}
	}
	return "OK"
}

func (p *Processor) queryFingerprint(args []string) string {
	if len(args) != 4 {
		return "FAIL"
	}
	mac, err := netutil.ParseMAC(args[0])
	if err != nil {
		return "FAIL"
	}
	ts, err := strconv.ParseInt(args[1], 10, 64)
	if err != nil {
		return "FAIL"
	}
	op := store.CompareOp(args[2])
	protocol := args[3]

	if p.db == nil {
		return "FAIL"
	}
	rows, err := p.db.QueryFingerprint(mac, ts, op, protocol)
	if err != nil {
		return "FAIL"
	}
	lines := make([]string, len(rows))
	for i, r := range rows {
		lines[i] = fmt.Sprintf("%s,%s,%s,%d,%s", r.MAC, r.Protocol, r.Fingerprint, r.TimestampUS, r.Query)
	}
	return strings.Join(lines, "\n")
}

func (p *Processor) registerTicket(args []string) string {
	if len(args) != 3 {
		return "FAIL"
	}
	mac, err := netutil.ParseMAC(args[0])
	if err != nil {
		return "FAIL"
	}
	label := args[1]
	if len(label) > store.MaxLabelLen {
		return "FAIL"
	}
	vlanID, err := parseVlan(args[2])
	if err != nil {
		return "FAIL"
	}
	if p.tickets == nil {
		return "FAIL"
	}
	pass, err := p.tickets.Register(mac, label, vlanID, TicketTTL)
	if err != nil {
		return "FAIL"
	}
	return pass
}

func (p *Processor) getMap(args []string) string {
	if len(args) != 1 {
		return "FAIL"
	}
	mac, err := netutil.ParseMAC(args[0])
	if err != nil {
		return "FAIL"
	}
	conn, ok := p.mem.GetMac(mac)
	if !ok {
		return "FAIL"
	}
	return formatMacConn(mac, conn)
}

func (p *Processor) getAll() string {
	macs := p.mem.AllMacs()
	lines := make([]string, 0, len(macs))
	for _, mac := range macs {
		conn, ok := p.mem.GetMac(mac)
		if !ok {
			continue
		}
		lines = append(lines, formatMacConn(mac, conn))
	}
	return strings.Join(lines, "\n")
}

// GetMacConn implements the get_mac_conn RADIUS callback (spec §4.7's
// pseudocode, carried verbatim) as a radius.MacConnCallback.
func (p *Processor) GetMacConn(identity string) radius.IdentityInfo {
	info := p.getMacConn(identity)
	decision := "deny"
	if info.Access == radius.Allow {
		decision = "allow"
	}
	metrics.RadiusDecisionsTotal.WithLabelValues(decision).Inc()
	return info
}

func (p *Processor) getMacConn(identity string) radius.IdentityInfo {
	mac, err := netutil.ParseMAC(identity)
	if err != nil {
		return radius.IdentityInfo{Access: radius.Deny}
	}

	if p.cfg.AllowAllConnections {
		info := store.MacConn{
			AllowConnection: true,
			VlanID:          p.cfg.DefaultOpenVlan,
			PSK:             []byte(p.cfg.WPAPassphrase),
			AllowAllOrigin:  true,
		}
		return p.adoptAndReply(mac, info)
	}

	info, found := p.mem.GetMac(mac)
	if found && info.AllowConnection && len(info.PSK) > 0 {
		return p.adoptAndReply(mac, info)
	}

	if !found || (found && info.AllowConnection && len(info.PSK) == 0) {
		info.AllowConnection = true
		if t, ok := p.ticketOrNil(); ok {
			info.VlanID = t.VlanID
			info.PSK = []byte(t.Passphrase)
			info.Label = t.DeviceLabel
		} else {
			info.VlanID = p.cfg.DefaultOpenVlan
			info.PSK = []byte(p.cfg.WPAPassphrase)
		}
		return p.adoptAndReply(mac, info)
	}

	return radius.IdentityInfo{Access: radius.Deny}
}

func (p *Processor) ticketOrNil() (*store.AuthTicket, bool) {
	if p.tickets == nil {
		return nil, false
	}
	return p.tickets.ConsumeLive()
}

func (p *Processor) adoptAndReply(mac netutil.MAC, info store.MacConn) radius.IdentityInfo {
	info.JoinTimestamp = nowMicros()
	p.maybeScheduleCapture(info.VlanID)
	p.mem.PutMac(mac, info)
	if p.db != nil {
		if err := p.db.UpsertMacConn(mac, info); err != nil {
			p.log.Warn("persist macconn failed during get_mac_conn", "mac", mac.String(), "err", err)
		}
	}

	out := radius.IdentityInfo{Access: radius.Allow, VlanID: info.VlanID}
	if len(info.PSK) > 0 {
		out.Class = radius.ClassVLANPass
		out.IDPass = string(info.PSK)
	}
	return out
}

func (p *Processor) maybeScheduleCapture(vlanID uint16) {
	if !p.cfg.ExecCapture || p.capture == nil {
		return
	}
	vlanConn, ok := p.mem.GetVlan(vlanID)
	if !ok || vlanConn.HasAnalyser() {
		return
	}
	pid, err := p.capture.Spawn(vlanID, vlanConn.IfName)
	if err != nil {
		p.log.Warn("capture spawn failed", "vlan", vlanID, "err", err)
		return
	}
	vlanConn.AnalyserPID = pid
	p.mem.PutVlan(vlanID, vlanConn)
}

// commit writes clone to SQLite first; only on success is it installed in
// memory, so a SQLite failure leaves the in-memory map untouched (spec
// §4.7: "every command is atomic at the memory level... SQLite write
// failures roll back the in-memory change").
func (p *Processor) commit(mac netutil.MAC, clone store.MacConn) string {
	if p.db != nil {
		if err := p.db.UpsertMacConn(mac, clone); err != nil {
			p.log.Warn("commit failed, in-memory change discarded", "mac", mac.String(), "err", err)
			return "FAIL"
		}
	}
	p.mem.PutMac(mac, clone)
	return "OK"
}

func (p *Processor) cloneOrZero(mac netutil.MAC) store.MacConn {
	conn, ok := p.mem.GetMac(mac)
	if !ok {
		return store.MacConn{}
	}
	return conn.Clone()
}

func pskKey(mac netutil.MAC) string { return "psk:" + mac.String() }

func parseVlan(s string) (uint16, error) {
	n, err := strconv.ParseUint(s, 10, 16)
	if err != nil {
		return 0, err
	}
	return uint16(n), nil
}

func formatMacConn(mac netutil.MAC, c store.MacConn) string {
	ip := ""
	if c.IPAddr != nil {
		ip = c.IPAddr.String()
	}
	return fmt.Sprintf("mac=%s,allow=%t,vlan=%d,nat=%t,ip=%s,ifname=%s,label=%s,join_ts=%d",
		mac, c.AllowConnection, c.VlanID, c.NAT, ip, c.IfName, c.Label, c.JoinTimestamp)
}
