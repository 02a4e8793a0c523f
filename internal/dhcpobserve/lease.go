// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package dhcpobserve

import (
	"bufio"
	"encoding/hex"
	"net"
	"os"
	"strconv"
	"strings"

	"github.com/insomniacslk/dhcp/dhcpv4"

	"github.com/nqminds/EDGESec/internal/errors"
	"github.com/nqminds/EDGESec/internal/netutil"
)

// Lease is one row of a dnsmasq leases file: "<expiry> <mac> <ip> <host> <client-id>".
type Lease struct {
	MAC      netutil.MAC
	IP       net.IP
	Hostname string
	// ClientIDKind names the RFC 2132 option-61 hardware type the
	// client-id column decodes to: "ethernet" for type 1, otherwise the
	// option's name followed by ":" and the type byte; empty when dnsmasq
	// wrote "*" or the column is not valid hex.
	ClientIDKind string
}

// ParseLeaseFile reads every well-formed lease row in path. Malformed rows
// (dnsmasq writes only well-formed ones, but a concurrent rewrite can be
// read mid-write) are skipped rather than failing the whole read.
func ParseLeaseFile(path string) ([]Lease, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, errors.KindUnavailable, "dhcpobserve: open lease file %s", path)
	}
	defer f.Close()

	var leases []Lease
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		if l, ok := parseLeaseLine(sc.Text()); ok {
			leases = append(leases, l)
		}
	}
	return leases, sc.Err()
}

func parseLeaseLine(line string) (Lease, bool) {
	fields := strings.Fields(line)
	if len(fields) < 3 {
		return Lease{}, false
	}
	// fields[0] is the lease expiry epoch; the observer only cares about
	// current assignment, not TTL bookkeeping (dnsmasq owns expiry).
	mac, err := netutil.ParseMAC(fields[1])
	if err != nil {
		return Lease{}, false
	}
	ip := net.ParseIP(fields[2])
	if ip == nil {
		return Lease{}, false
	}

	l := Lease{MAC: mac, IP: ip}
	if len(fields) >= 4 && fields[3] != "*" {
		l.Hostname = fields[3]
	}
	if len(fields) >= 5 && fields[4] != "*" {
		l.ClientIDKind = decodeClientIDKind(fields[4])
	}
	return l, true
}

// decodeClientIDKind inspects the leading octet of a hex-encoded option-61
// client identifier, which RFC 2132 defines as a hardware-type byte
// followed by the identifier itself for type-1 (Ethernet) clients.
func decodeClientIDKind(hexID string) string {
	raw, err := hex.DecodeString(strings.ReplaceAll(hexID, ":", ""))
	if err != nil || len(raw) == 0 {
		return ""
	}
	if raw[0] == 1 {
		return "ethernet"
	}
	// Anything else is an opaque DUID or vendor-defined identifier; name
	// it by the RFC 2132 option (61, "Client Identifier") it came from
	// rather than guess at its internal structure.
	return dhcpv4.OptionClientIdentifier.String() + ":" + strconv.Itoa(int(raw[0]))
}
