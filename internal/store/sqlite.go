// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package store

import (
	"database/sql"
	"encoding/hex"
	"fmt"
	"net"

	_ "modernc.org/sqlite"

	"github.com/nqminds/EDGESec/internal/errors"
	"github.com/nqminds/EDGESec/internal/netutil"
)

// DB is the SQLite-backed mirror of the in-memory store (spec §3/§4.3):
// macconn is upserted on every MacConn mutation, fingerprint is append-only,
// and store/secrets back the credential store (C4). One *sql.DB per
// process, serialized by SetMaxOpenConns(1) since every caller already runs
// on the single event-loop goroutine — this only guards against accidental
// concurrent use from a background goroutine (capture metadata writes).
// modernc.org/sqlite is the driver, matching the pure-Go, cgo-free choice
// the rest of the pack already makes for its own SQLite-backed stores.
type DB struct {
	conn *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS macconn (
	mac TEXT PRIMARY KEY,
	allow INTEGER NOT NULL,
	vlan_id INTEGER NOT NULL,
	nat INTEGER NOT NULL,
	ip TEXT,
	ifname TEXT,
	psk_cipher TEXT,
	label TEXT,
	join_ts INTEGER,
	id TEXT
);
CREATE TABLE IF NOT EXISTS fingerprint (
	mac TEXT NOT NULL,
	protocol TEXT NOT NULL,
	fingerprint TEXT NOT NULL,
	timestamp INTEGER NOT NULL,
	query TEXT
);
CREATE INDEX IF NOT EXISTS idx_fingerprint_mac_ts ON fingerprint(mac, timestamp);
CREATE TABLE IF NOT EXISTS store (
	key TEXT PRIMARY KEY,
	value TEXT,
	id TEXT,
	iv TEXT
);
CREATE TABLE IF NOT EXISTS secrets (
	id TEXT PRIMARY KEY,
	value TEXT,
	salt TEXT,
	iv TEXT
);
CREATE TABLE IF NOT EXISTS pcap (
	timestamp_us INTEGER NOT NULL,
	caplen INTEGER NOT NULL,
	length INTEGER NOT NULL,
	name TEXT,
	interface TEXT,
	filter TEXT
);
`

// Open opens (creating if needed) the SQLite file at path and ensures every
// table named in spec §3/§4.3/§6 exists. A missing row is never an error;
// only a missing table at startup is created here.
func Open(path string) (*DB, error) {
	conn, err := sql.Open("sqlite", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, errors.Wrapf(err, errors.KindInternal, "store: open %s", path)
	}
	conn.SetMaxOpenConns(1)

	if _, err := conn.Exec(schema); err != nil {
		conn.Close()
		return nil, errors.Wrapf(err, errors.KindInternal, "store: create schema")
	}
	return &DB{conn: conn}, nil
}

// Close releases the underlying connection.
func (db *DB) Close() error { return db.conn.Close() }

// UpsertMacConn mirrors a MacConn mutation to the macconn table. Binds
// numeric IDs with typed integer binders, not decimal-formatted strings,
// to avoid the format-drift design note §9 warns about.
func (db *DB) UpsertMacConn(mac netutil.MAC, c MacConn) error {
	var ip sql.NullString
	if c.IPAddr != nil {
		ip = sql.NullString{String: c.IPAddr.String(), Valid: true}
	}
	_, err := db.conn.Exec(`
		INSERT INTO macconn (mac, allow, vlan_id, nat, ip, ifname, psk_cipher, label, join_ts, id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(mac) DO UPDATE SET
			allow=excluded.allow, vlan_id=excluded.vlan_id, nat=excluded.nat,
			ip=excluded.ip, ifname=excluded.ifname, psk_cipher=excluded.psk_cipher,
			label=excluded.label, join_ts=excluded.join_ts, id=excluded.id
	`, mac.String(), c.AllowConnection, int(c.VlanID), c.NAT, ip, c.IfName,
		hexOrEmpty(c.PSK), c.Label, c.JoinTimestamp, hexOrEmpty(c.IdentityID))
	if err != nil {
		return errors.Wrapf(err, errors.KindUnavailable, "store: upsert macconn %s", mac)
	}
	return nil
}

// LoadMacConns reloads every persisted MacConn row, used at startup.
func (db *DB) LoadMacConns() (map[netutil.MAC]MacConn, error) {
	rows, err := db.conn.Query(`SELECT mac, allow, vlan_id, nat, ip, ifname, psk_cipher, label, join_ts, id FROM macconn`)
	if err != nil {
		return nil, errors.Wrapf(err, errors.KindUnavailable, "store: load macconn")
	}
	defer rows.Close()

	out := make(map[netutil.MAC]MacConn)
	for rows.Next() {
		var macStr, ifname, pskHex, label, idHex string
		var ip sql.NullString
		var allow, nat bool
		var vlanID int
		var joinTS int64
		if err := rows.Scan(&macStr, &allow, &vlanID, &nat, &ip, &ifname, &pskHex, &label, &joinTS, &idHex); err != nil {
			return nil, errors.Wrapf(err, errors.KindInternal, "store: scan macconn row")
		}
		mac, err := netutil.ParseMAC(macStr)
		if err != nil {
			continue // corrupt row: skip, don't fail the whole reload
		}
		c := MacConn{
			AllowConnection: allow,
			VlanID:          uint16(vlanID),
			NAT:             nat,
			IfName:          ifname,
			PSK:             fromHex(pskHex),
			Label:           label,
			JoinTimestamp:   joinTS,
			IdentityID:      fromHex(idHex),
		}
		if ip.Valid && ip.String != "" {
			c.IPAddr = net.ParseIP(ip.String)
		}
		out[mac] = c
	}
	return out, rows.Err()
}

// AppendFingerprint appends one immutable fingerprint row.
func (db *DB) AppendFingerprint(row FingerprintRow) error {
	_, err := db.conn.Exec(`INSERT INTO fingerprint (mac, protocol, fingerprint, timestamp, query) VALUES (?, ?, ?, ?, ?)`,
		row.MAC.String(), row.Protocol, row.Fingerprint, row.TimestampUS, row.Query)
	if err != nil {
		return errors.Wrapf(err, errors.KindUnavailable, "store: append fingerprint")
	}
	return nil
}

// AppendPcapMeta appends one captured-packet metadata row (spec §4.9).
func (db *DB) AppendPcapMeta(row PcapRow) error {
	_, err := db.conn.Exec(`INSERT INTO pcap (timestamp_us, caplen, length, name, interface, filter) VALUES (?, ?, ?, ?, ?, ?)`,
		row.TimestampUS, row.Caplen, row.Length, row.Name, row.Interface, row.Filter)
	if err != nil {
		return errors.Wrapf(err, errors.KindUnavailable, "store: append pcap meta")
	}
	return nil
}

// QueryFingerprint returns every fingerprint row for mac satisfying
// `timestamp <op> ts`, optionally filtered by protocol. protocol=="all" is
// a wildcard, not a literal match (spec §9 open question, resolved per the
// original C behavior).
func (db *DB) QueryFingerprint(mac netutil.MAC, ts int64, op CompareOp, protocol string) ([]FingerprintRow, error) {
	sqlOp, ok := compareOpSQL(op)
	if !ok {
		return nil, errors.Errorf(errors.KindValidation, "store: unknown comparison operator %q", op)
	}

	query := fmt.Sprintf(`SELECT mac, protocol, fingerprint, timestamp, query FROM fingerprint WHERE mac = ? AND timestamp %s ?`, sqlOp)
	args := []any{mac.String(), ts}
	if protocol != "" && protocol != "all" {
		query += ` AND protocol = ?`
		args = append(args, protocol)
	}

	rows, err := db.conn.Query(query, args...)
	if err != nil {
		return nil, errors.Wrapf(err, errors.KindUnavailable, "store: query fingerprint")
	}
	defer rows.Close()

	var out []FingerprintRow
	for rows.Next() {
		var macStr, proto, fp, q string
		var tsVal int64
		if err := rows.Scan(&macStr, &proto, &fp, &tsVal, &q); err != nil {
			return nil, errors.Wrapf(err, errors.KindInternal, "store: scan fingerprint row")
		}
		m, err := netutil.ParseMAC(macStr)
		if err != nil {
			continue
		}
		out = append(out, FingerprintRow{MAC: m, Protocol: proto, Fingerprint: fp, TimestampUS: tsVal, Query: q})
	}
	return out, rows.Err()
}

func compareOpSQL(op CompareOp) (string, bool) {
	switch op {
	case OpEQ:
		return "=", true
	case OpLT:
		return "<", true
	case OpGT:
		return ">", true
	case OpLE:
		return "<=", true
	case OpGE:
		return ">=", true
	default:
		return "", false
	}
}

func hexOrEmpty(b []byte) string {
	if len(b) == 0 {
		return ""
	}
	return hex.EncodeToString(b)
}

func fromHex(s string) []byte {
	if s == "" {
		return nil
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil
	}
	return b
}

// Conn exposes the underlying *sql.DB for packages (credstore) that
// maintain their own tables (store/secrets) in the same file.
func (db *DB) Conn() *sql.DB { return db.conn }
