// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package dhcpobserve

import (
	"os"
	"path/filepath"
	"testing"
)

func TestParseLeaseLine(t *testing.T) {
	cases := []struct {
		line    string
		wantOK  bool
		wantMAC string
		wantIP  string
		wantCID string
	}{
		{"1780000000 aa:bb:cc:dd:ee:ff 10.0.10.5 phone 01:aa:bb:cc:dd:ee:ff", true, "aa:bb:cc:dd:ee:ff", "10.0.10.5", "ethernet"},
		{"1780000000 aa:bb:cc:dd:ee:ff 10.0.10.5 * *", true, "aa:bb:cc:dd:ee:ff", "10.0.10.5", ""},
		{"garbage", false, "", "", ""},
		{"1780000000 not-a-mac 10.0.10.5", false, "", "", ""},
	}

	for _, c := range cases {
		l, ok := parseLeaseLine(c.line)
		if ok != c.wantOK {
			t.Fatalf("parseLeaseLine(%q) ok = %v, want %v", c.line, ok, c.wantOK)
		}
		if !ok {
			continue
		}
		if l.MAC.String() != c.wantMAC {
			t.Errorf("parseLeaseLine(%q) mac = %s, want %s", c.line, l.MAC, c.wantMAC)
		}
		if l.IP.String() != c.wantIP {
			t.Errorf("parseLeaseLine(%q) ip = %s, want %s", c.line, l.IP, c.wantIP)
		}
		if l.ClientIDKind != c.wantCID {
			t.Errorf("parseLeaseLine(%q) client id kind = %q, want %q", c.line, l.ClientIDKind, c.wantCID)
		}
	}
}

func TestParseLeaseFileSkipsMalformedRows(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "dnsmasq.leases")
	content := "1780000000 aa:bb:cc:dd:ee:ff 10.0.10.5 phone *\nnot a lease line\n1780000001 11:22:33:44:55:66 10.0.10.6 * *\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write lease file: %v", err)
	}

	leases, err := ParseLeaseFile(path)
	if err != nil {
		t.Fatalf("ParseLeaseFile: %v", err)
	}
	if len(leases) != 2 {
		t.Fatalf("expected 2 well-formed leases, got %d", len(leases))
	}
}
