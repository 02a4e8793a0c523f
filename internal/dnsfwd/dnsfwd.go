// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package dnsfwd is a thin liveness probe for the mDNS/DNS forwarder that
// runs alongside the supervisor (dnsmasq, in the same role it plays for
// C10's lease observer). The supervisor doesn't run this forwarder itself
// and doesn't manage its zone data; it only needs to know, periodically,
// whether the forwarder is still answering queries, so a dead forwarder
// shows up in the log instead of silently leaving stations without
// resolution.
package dnsfwd

import (
	"time"

	"github.com/miekg/dns"

	"github.com/nqminds/EDGESec/internal/errors"
)

const probeTimeout = 2 * time.Second

// Checker periodically queries a DNS forwarder and reports whether it is
// answering.
type Checker struct {
	addr   string
	client *dns.Client
}

// NewChecker returns a Checker for the forwarder listening at addr (host:port,
// usually 127.0.0.1:53).
func NewChecker(addr string) *Checker {
	return &Checker{
		addr:   addr,
		client: &dns.Client{Timeout: probeTimeout},
	}
}

// Probe sends a single A query for "localhost." and returns an error unless
// the forwarder replies at all — the supervisor only cares that the
// process is alive and speaking DNS, not that the answer is authoritative
// or even successful (NXDOMAIN is still a live forwarder).
func (c *Checker) Probe() error {
	msg := new(dns.Msg)
	msg.SetQuestion(dns.Fqdn("localhost."), dns.TypeA)

	reply, _, err := c.client.Exchange(msg, c.addr)
	if err != nil {
		return errors.Wrapf(err, errors.KindUnavailable, "dnsfwd: probe %s", c.addr)
	}
	if reply == nil {
		return errors.Errorf(errors.KindUnavailable, "dnsfwd: probe %s: empty reply", c.addr)
	}
	return nil
}

// Run probes the forwarder every interval until stop is closed, invoking
// onResult with the
// outcome of each probe. It never returns on its own; the caller is
// expected to run it in a goroutine and close stop to end it.
func (c *Checker) Run(stop <-chan struct{}, interval time.Duration, onResult func(error)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			onResult(c.Probe())
		}
	}
}
