// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package dhcpobserve

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/nqminds/EDGESec/internal/netutil"
)

type fakeNotifier struct {
	events []string
}

func (f *fakeNotifier) Notify(op Op, mac netutil.MAC, ip string) error {
	f.events = append(f.events, string(op)+" "+mac.String()+" "+ip)
	return nil
}

func writeLeases(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write lease file: %v", err)
	}
}

func TestTailerReconcileDetectsAddOldAndDel(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "dnsmasq.leases")
	writeLeases(t, path, "1 aa:bb:cc:dd:ee:ff 10.0.10.5 * *\n")

	fn := &fakeNotifier{}
	tr, err := NewTailer(path, fn)
	if err != nil {
		t.Fatalf("NewTailer: %v", err)
	}
	defer tr.Close()

	// Initial snapshot should not itself emit anything.
	if len(fn.events) != 0 {
		t.Fatalf("expected no events from initial snapshot, got %v", fn.events)
	}

	// Same MAC, same IP -> renewal (old).
	writeLeases(t, path, "2 aa:bb:cc:dd:ee:ff 10.0.10.5 * *\n")
	tr.reconcile()

	// New MAC -> add, and the first one disappears -> del.
	writeLeases(t, path, "3 11:22:33:44:55:66 10.0.10.6 * *\n")
	tr.reconcile()

	want := []string{
		"old aa:bb:cc:dd:ee:ff 10.0.10.5",
		"add 11:22:33:44:55:66 10.0.10.6",
		"del aa:bb:cc:dd:ee:ff 10.0.10.5",
	}
	if len(fn.events) != len(want) {
		t.Fatalf("events = %v, want %v", fn.events, want)
	}
	for i, w := range want {
		if fn.events[i] != w {
			t.Errorf("event[%d] = %q, want %q", i, fn.events[i], w)
		}
	}
}
