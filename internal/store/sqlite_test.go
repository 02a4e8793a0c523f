// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package store

import (
	"net"
	"path/filepath"
	"testing"

	"github.com/nqminds/EDGESec/internal/netutil"
)

func TestMacConnSQLiteRoundTrip(t *testing.T) {
	db, err := Open(filepath.Join(t.TempDir(), "edgesec.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer db.Close()

	mac := mustMAC(t, "aa:bb:cc:dd:ee:ff")
	want := MacConn{
		AllowConnection: true,
		VlanID:          3,
		NAT:             true,
		IPAddr:          net.ParseIP("10.0.3.7").To4(),
		IfName:          "vlan3",
		PSK:             []byte("supersecret"),
		Label:           "kitchen-tablet",
		JoinTimestamp:   1234567890,
		IdentityID:      []byte{0x01, 0x02, 0x03},
	}

	if err := db.UpsertMacConn(mac, want); err != nil {
		t.Fatalf("UpsertMacConn: %v", err)
	}

	got, err := db.LoadMacConns()
	if err != nil {
		t.Fatalf("LoadMacConns: %v", err)
	}
	gotConn, ok := got[mac]
	if !ok {
		t.Fatalf("mac %s not found after reload", mac)
	}

	if gotConn.AllowConnection != want.AllowConnection ||
		gotConn.VlanID != want.VlanID ||
		gotConn.NAT != want.NAT ||
		!gotConn.IPAddr.Equal(want.IPAddr) ||
		gotConn.IfName != want.IfName ||
		string(gotConn.PSK) != string(want.PSK) ||
		gotConn.Label != want.Label ||
		gotConn.JoinTimestamp != want.JoinTimestamp ||
		string(gotConn.IdentityID) != string(want.IdentityID) {
		t.Errorf("round trip mismatch: got %+v, want %+v", gotConn, want)
	}
}

func TestFingerprintAppendAndQuery(t *testing.T) {
	db, err := Open(filepath.Join(t.TempDir(), "edgesec.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer db.Close()

	src := mustMAC(t, "aa:bb:cc:dd:ee:01")
	dst := mustMAC(t, "aa:bb:cc:dd:ee:02")

	rows := []FingerprintRow{
		{MAC: src, Protocol: "dhcp", Fingerprint: "fp1", TimestampUS: 1000, Query: "q1"},
		{MAC: dst, Protocol: "dhcp", Fingerprint: "fp1", TimestampUS: 1000, Query: "q1"},
	}
	for _, r := range rows {
		if err := db.AppendFingerprint(r); err != nil {
			t.Fatalf("AppendFingerprint: %v", err)
		}
	}

	got, err := db.QueryFingerprint(src, 500, OpGT, "all")
	if err != nil {
		t.Fatalf("QueryFingerprint: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected exactly one row for src mac, got %d", len(got))
	}

	gotAll, err := db.QueryFingerprint(src, 500, OpGT, "dhcp")
	if err != nil {
		t.Fatalf("QueryFingerprint filtered: %v", err)
	}
	if len(gotAll) != 1 {
		t.Fatalf("expected one row filtered by protocol, got %d", len(gotAll))
	}
}

func TestEventAppearsTwiceOncePerEndpoint(t *testing.T) {
	db, err := Open(filepath.Join(t.TempDir(), "edgesec.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer db.Close()

	src := mustMAC(t, "aa:bb:cc:dd:ee:01")
	dst := mustMAC(t, "aa:bb:cc:dd:ee:02")

	for _, mac := range []netutil.MAC{src, dst} {
		if err := db.AppendFingerprint(FingerprintRow{MAC: mac, Protocol: "dhcp", Fingerprint: "fp", TimestampUS: 5000, Query: "q"}); err != nil {
			t.Fatalf("AppendFingerprint: %v", err)
		}
	}

	for _, mac := range []netutil.MAC{src, dst} {
		rows, err := db.QueryFingerprint(mac, 0, OpGT, "all")
		if err != nil {
			t.Fatalf("QueryFingerprint: %v", err)
		}
		if len(rows) != 1 {
			t.Errorf("expected exactly one row for %s, got %d", mac, len(rows))
		}
	}
}
