// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package apctl

import "testing"

func TestParseStationEventConnected(t *testing.T) {
	ev, ok := parseStationEvent("<3>AP-STA-CONNECTED aa:bb:cc:dd:ee:ff")
	if !ok {
		t.Fatal("expected a parsed event")
	}
	if !ev.Connected {
		t.Error("expected Connected=true")
	}
	if ev.MAC.String() != "aa:bb:cc:dd:ee:ff" {
		t.Errorf("got mac %s", ev.MAC)
	}
}

func TestParseStationEventDisconnected(t *testing.T) {
	ev, ok := parseStationEvent("AP-STA-DISCONNECTED 11:22:33:44:55:66")
	if !ok {
		t.Fatal("expected a parsed event")
	}
	if ev.Connected {
		t.Error("expected Connected=false")
	}
}

func TestParseStationEventIgnoresOtherLines(t *testing.T) {
	cases := []string{
		"",
		"CTRL-EVENT-SCAN-STARTED",
		"random chatter with no mac",
		"AP-STA-CONNECTED", // missing mac field
	}
	for _, line := range cases {
		if _, ok := parseStationEvent(line); ok {
			t.Errorf("expected %q to be ignored", line)
		}
	}
}

func TestACLOpStringsMatchWireFormat(t *testing.T) {
	cases := map[ACLOp]string{
		AcceptAdd: "ACCEPT_ACL ADD_MAC",
		AcceptDel: "ACCEPT_ACL DEL_MAC",
		DenyAdd:   "DENY_ACL ADD_MAC",
		DenyDel:   "DENY_ACL DEL_MAC",
	}
	for op, want := range cases {
		if got := op.String(); got != want {
			t.Errorf("ACLOp(%d).String() = %q, want %q", op, got, want)
		}
	}
}
