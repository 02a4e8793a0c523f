// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package dhcpobserve

import (
	"context"
	"net"

	"github.com/fsnotify/fsnotify"

	"github.com/nqminds/EDGESec/internal/errors"
	"github.com/nqminds/EDGESec/internal/logging"
	"github.com/nqminds/EDGESec/internal/netutil"
)

// notifier is the narrow slice of Sender that Tailer depends on, broken
// out so tests can swap in a fake instead of a real command-socket dial.
type notifier interface {
	Notify(op Op, mac netutil.MAC, ip string) error
}

// Tailer watches a dnsmasq leases file and turns successive snapshots into
// SET_IP events, for deployments where the dhcp-script hook (hook.go)
// can't be installed. dnsmasq rewrites the whole file on every change, so
// the tailer re-reads it in full on every fsnotify event rather than
// tracking a byte offset.
type Tailer struct {
	path    string
	sender  notifier
	watcher *fsnotify.Watcher
	log     *logging.Logger

	known map[netutil.MAC]net.IP
}

// NewTailer opens path for watching and takes an initial snapshot, so a
// lease that already existed at startup is reported as old, not add, on
// the first fsnotify event.
func NewTailer(path string, sender notifier) (*Tailer, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.Wrapf(err, errors.KindInternal, "dhcpobserve: new watcher")
	}
	if err := w.Add(path); err != nil {
		w.Close()
		return nil, errors.Wrapf(err, errors.KindUnavailable, "dhcpobserve: watch %s", path)
	}

	t := &Tailer{
		path:    path,
		sender:  sender,
		watcher: w,
		log:     logging.WithComponent("dhcpobserve"),
		known:   make(map[netutil.MAC]net.IP),
	}
	if leases, err := ParseLeaseFile(path); err == nil {
		for _, l := range leases {
			t.known[l.MAC] = l.IP
		}
	}
	return t, nil
}

// Close stops watching.
func (t *Tailer) Close() error { return t.watcher.Close() }

// Run blocks, reconciling on every write/create event until ctx is
// cancelled or the watcher's channels close; watch errors are logged and
// Run keeps going.
func (t *Tailer) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-t.watcher.Events:
			if !ok {
				return nil
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				t.reconcile()
			}
		case err, ok := <-t.watcher.Errors:
			if !ok {
				return nil
			}
			t.log.Warn("lease file watch error", "error", err)
		}
	}
}

// reconcile diffs the current lease-file contents against the last known
// snapshot and emits one SET_IP per MAC in the file (add for a new or
// re-addressed MAC, old for an unchanged one), plus a del for each MAC
// that has disappeared.
func (t *Tailer) reconcile() {
	leases, err := ParseLeaseFile(t.path)
	if err != nil {
		t.log.Warn("failed to re-read lease file", "path", t.path, "error", err)
		return
	}

	current := make(map[netutil.MAC]net.IP, len(leases))
	for _, l := range leases {
		current[l.MAC] = l.IP

		prev, existed := t.known[l.MAC]
		switch {
		case !existed:
			t.notify(OpAdd, l.MAC, l.IP)
		case !prev.Equal(l.IP):
			t.notify(OpAdd, l.MAC, l.IP)
		default:
			t.notify(OpOld, l.MAC, l.IP)
		}
	}

	for mac, ip := range t.known {
		if _, still := current[mac]; !still {
			t.notify(OpDel, mac, ip)
		}
	}

	t.known = current
}

func (t *Tailer) notify(op Op, mac netutil.MAC, ip net.IP) {
	if err := t.sender.Notify(op, mac, ip.String()); err != nil {
		t.log.Warn("failed to notify lease event", "op", op, "mac", mac, "ip", ip, "error", err)
	}
}
