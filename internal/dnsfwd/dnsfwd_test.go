// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package dnsfwd

import (
	"net"
	"testing"
	"time"

	"github.com/miekg/dns"
)

// startStub runs a minimal DNS server on a random UDP port that answers
// every A query with NXDOMAIN, standing in for a live dnsmasq instance.
func startStub(t *testing.T) (addr string, shutdown func()) {
	t.Helper()

	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}

	srv := &dns.Server{PacketConn: pc, Handler: dns.HandlerFunc(func(w dns.ResponseWriter, r *dns.Msg) {
		reply := new(dns.Msg)
		reply.SetRcode(r, dns.RcodeNameError)
		w.WriteMsg(reply)
	})}
	go srv.ActivateAndServe()

	return pc.LocalAddr().String(), func() { srv.Shutdown() }
}

func TestProbeSucceedsAgainstLiveForwarder(t *testing.T) {
	addr, shutdown := startStub(t)
	defer shutdown()

	checker := NewChecker(addr)
	if err := checker.Probe(); err != nil {
		t.Fatalf("Probe: %v", err)
	}
}

func TestProbeFailsAgainstDeadForwarder(t *testing.T) {
	// Bind and immediately close to get a port nothing is listening on.
	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := pc.LocalAddr().String()
	pc.Close()

	checker := NewChecker(addr)
	checker.client.Timeout = 200 * time.Millisecond
	if err := checker.Probe(); err == nil {
		t.Fatal("expected Probe against a dead forwarder to fail")
	}
}
