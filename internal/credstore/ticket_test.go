// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package credstore

import (
	"testing"
	"time"

	"github.com/nqminds/EDGESec/internal/eloop"
	"github.com/nqminds/EDGESec/internal/netutil"
)

func newTestLoop(t *testing.T) *eloop.Loop {
	t.Helper()
	l, err := eloop.New()
	if err != nil {
		t.Skipf("epoll unavailable in this environment: %v", err)
	}
	t.Cleanup(func() { l.Close() })
	return l
}

func TestTicketRegisterThenConsume(t *testing.T) {
	loop := newTestLoop(t)
	mgr := NewTicketManager(loop)

	issuer, err := netutil.ParseMAC("aa:bb:cc:dd:ee:ff")
	if err != nil {
		t.Fatalf("ParseMAC: %v", err)
	}

	passphrase, err := mgr.Register(issuer, "new-tablet", 5, time.Minute)
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if passphrase == "" {
		t.Fatal("expected a non-empty passphrase")
	}

	if _, ok := mgr.Consume("wrong-passphrase"); ok {
		t.Fatal("Consume with a wrong passphrase should fail")
	}

	ticket, ok := mgr.Consume(passphrase)
	if !ok {
		t.Fatal("Consume with the correct passphrase should succeed")
	}
	if ticket.DeviceLabel != "new-tablet" || ticket.VlanID != 5 || ticket.IssuerMAC != issuer {
		t.Fatalf("unexpected ticket contents: %+v", ticket)
	}

	if _, ok := mgr.Consume(passphrase); ok {
		t.Fatal("a ticket must not be consumable twice")
	}
}

func TestTicketRegisterReplacesPrevious(t *testing.T) {
	loop := newTestLoop(t)
	mgr := NewTicketManager(loop)
	issuer, _ := netutil.ParseMAC("aa:bb:cc:dd:ee:01")

	first, err := mgr.Register(issuer, "first", 1, time.Minute)
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	second, err := mgr.Register(issuer, "second", 2, time.Minute)
	if err != nil {
		t.Fatalf("Register: %v", err)
	}

	if _, ok := mgr.Consume(first); ok {
		t.Fatal("the superseded ticket must not be consumable")
	}
	ticket, ok := mgr.Consume(second)
	if !ok || ticket.DeviceLabel != "second" {
		t.Fatalf("expected the replacement ticket to be live, got ok=%v ticket=%+v", ok, ticket)
	}
}

func TestExpiredTicketIsNotConsumable(t *testing.T) {
	loop := newTestLoop(t)
	mgr := NewTicketManager(loop)
	issuer, _ := netutil.ParseMAC("aa:bb:cc:dd:ee:02")

	passphrase, err := mgr.Register(issuer, "stale", 1, -time.Second)
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if _, ok := mgr.Consume(passphrase); ok {
		t.Fatal("an already-expired ticket must not be consumable")
	}
}
