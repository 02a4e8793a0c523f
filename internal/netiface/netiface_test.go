// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package netiface

import (
	"testing"

	"github.com/vishvananda/netlink"

	"github.com/nqminds/EDGESec/internal/config"
)

func stubLinks(existing map[string]bool) func() {
	orig := linkByName
	linkByName = func(name string) (netlink.Link, error) {
		if existing[name] {
			return &netlink.Dummy{}, nil
		}
		return nil, errNotFound{name}
	}
	return func() { linkByName = orig }
}

type errNotFound struct{ name string }

func (e errNotFound) Error() string { return "link not found: " + e.name }

func TestLoadDerivesBroadcastWhenUnset(t *testing.T) {
	defer stubLinks(map[string]bool{"vlan10": true})()

	out, err := Load([]config.InterfaceConfig{
		{VlanID: 10, IfName: "vlan10", IP: "10.0.10.1", Netmask: "255.255.255.0"},
	})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got := out[0].Broadcast.String(); got != "10.0.10.255" {
		t.Errorf("derived broadcast = %s, want 10.0.10.255", got)
	}
}

func TestLoadUsesExplicitBroadcast(t *testing.T) {
	defer stubLinks(map[string]bool{"vlan10": true})()

	out, err := Load([]config.InterfaceConfig{
		{VlanID: 10, IfName: "vlan10", IP: "10.0.10.1", Netmask: "255.255.255.0", Broadcast: "10.0.10.254"},
	})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got := out[0].Broadcast.String(); got != "10.0.10.254" {
		t.Errorf("broadcast = %s, want 10.0.10.254", got)
	}
}

func TestLoadRejectsUnknownLink(t *testing.T) {
	defer stubLinks(map[string]bool{})()

	_, err := Load([]config.InterfaceConfig{
		{VlanID: 10, IfName: "vlan10", IP: "10.0.10.1", Netmask: "255.255.255.0"},
	})
	if err == nil {
		t.Fatal("expected an error for a nonexistent interface")
	}
}

func TestLoadRejectsMalformedIP(t *testing.T) {
	defer stubLinks(map[string]bool{"vlan10": true})()

	_, err := Load([]config.InterfaceConfig{
		{VlanID: 10, IfName: "vlan10", IP: "not-an-ip", Netmask: "255.255.255.0"},
	})
	if err == nil {
		t.Fatal("expected an error for a malformed ip")
	}
}
