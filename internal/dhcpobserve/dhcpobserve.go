// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package dhcpobserve is the DHCP lease observer (C10). Its job is narrow:
// turn lease add/renew/release events into SET_IP commands on C7's command
// socket. There are two independent sources for those events:
//
//   - a dnsmasq dhcp-script hook, installed once at startup, that writes
//     "SET_IP {add|old|del} <mac> <ip>" directly to the command socket
//     itself (spec §4.8) — the primary path.
//   - a fsnotify-based tailer on dnsmasq's lease file, which reconstructs
//     the same events by diffing successive snapshots of the file. This is
//     a fallback for deployments where installing the hook script isn't
//     possible (read-only dnsmasq config, containerized dnsmasq), and is
//     additive: it does not replace the hook contract.
package dhcpobserve

import (
	"fmt"

	"github.com/nqminds/EDGESec/internal/errors"
	"github.com/nqminds/EDGESec/internal/logging"
	"github.com/nqminds/EDGESec/internal/netutil"
	"github.com/nqminds/EDGESec/internal/transport"
)

// Sender issues SET_IP commands against the supervisor's command socket. It
// is shared by the hook-script generator's documentation and the lease
// tailer's live event path.
type Sender struct {
	client *transport.Client
	log    *logging.Logger
}

// NewSender dials the command socket at cmdSocketPath.
func NewSender(cmdSocketPath string) (*Sender, error) {
	c, err := transport.Dial(cmdSocketPath)
	if err != nil {
		return nil, errors.Wrapf(err, errors.KindUnavailable, "dhcpobserve: dial command socket")
	}
	return &Sender{client: c, log: logging.WithComponent("dhcpobserve")}, nil
}

// Close releases the sender's client socket.
func (s *Sender) Close() error { return s.client.Close() }

// Op is a lease lifecycle event, matching dnsmasq's dhcp-script reason
// codes one-to-one.
type Op string

const (
	OpAdd Op = "add"
	OpOld Op = "old"
	OpDel Op = "del"
)

// Notify sends SET_IP op mac ip and logs a non-OK reply; a lease event the
// supervisor can't apply isn't fatal to the observer, it just leaves the
// client unrouted until the next renewal.
func (s *Sender) Notify(op Op, mac netutil.MAC, ip string) error {
	reply, err := s.client.Send(fmt.Sprintf("SET_IP %s %s %s", op, mac, ip))
	if err != nil {
		return err
	}
	if reply != "OK" {
		s.log.Warn("SET_IP rejected", "op", op, "mac", mac, "ip", ip, "reply", reply)
	}
	return nil
}
