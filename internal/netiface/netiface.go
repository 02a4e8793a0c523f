// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package netiface turns configured VLAN interface stanzas into the
// store.IfaceConfig slice store.Memory.LoadIfaces wants, verifying each
// named interface actually exists on the host via netlink (its up/down
// state is not checked)
// before the supervisor starts trusting it for SET_IP/ACCEPT_MAC subnet
// resolution.
package netiface

import (
	"net"

	"github.com/vishvananda/netlink"

	"github.com/nqminds/EDGESec/internal/config"
	"github.com/nqminds/EDGESec/internal/errors"
	"github.com/nqminds/EDGESec/internal/store"
)

// linkByName is swapped out in tests so Load doesn't need real kernel
// network interfaces to exercise its parsing/derivation logic.
var linkByName = netlink.LinkByName

// Load resolves cfg's interface stanzas into store.IfaceConfig, verifying
// each named link exists via netlink and deriving its broadcast address
// from ip/netmask when the config doesn't set one explicitly.
func Load(cfgIfaces []config.InterfaceConfig) ([]store.IfaceConfig, error) {
	out := make([]store.IfaceConfig, 0, len(cfgIfaces))
	for _, ci := range cfgIfaces {
		ifc, err := resolve(ci)
		if err != nil {
			return nil, err
		}
		out = append(out, ifc)
	}
	return out, nil
}

func resolve(ci config.InterfaceConfig) (store.IfaceConfig, error) {
	if _, err := linkByName(ci.IfName); err != nil {
		return store.IfaceConfig{}, errors.Wrapf(err, errors.KindUnavailable, "netiface: link %s not found", ci.IfName)
	}

	ip := net.ParseIP(ci.IP).To4()
	if ip == nil {
		return store.IfaceConfig{}, errors.Errorf(errors.KindValidation, "netiface: interface %s: invalid ip %q", ci.IfName, ci.IP)
	}
	mask := net.ParseIP(ci.Netmask).To4()
	if mask == nil {
		return store.IfaceConfig{}, errors.Errorf(errors.KindValidation, "netiface: interface %s: invalid netmask %q", ci.IfName, ci.Netmask)
	}
	netmask := net.IPMask(mask)

	var broadcast net.IP
	if ci.Broadcast != "" {
		broadcast = net.ParseIP(ci.Broadcast).To4()
		if broadcast == nil {
			return store.IfaceConfig{}, errors.Errorf(errors.KindValidation, "netiface: interface %s: invalid broadcast %q", ci.IfName, ci.Broadcast)
		}
	} else {
		broadcast = deriveBroadcast(ip, netmask)
	}

	return store.IfaceConfig{
		VlanID:    ci.VlanID,
		IfName:    ci.IfName,
		IP:        ip,
		Broadcast: broadcast,
		Netmask:   netmask,
	}, nil
}

// deriveBroadcast computes the standard broadcast address (network OR
// inverted-mask) when the config doesn't give us one.
func deriveBroadcast(ip net.IP, mask net.IPMask) net.IP {
	bcast := make(net.IP, len(ip))
	for i := range ip {
		bcast[i] = ip[i] | ^mask[i]
	}
	return bcast
}
