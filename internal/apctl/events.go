// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package apctl

import (
	"strings"

	"golang.org/x/sys/unix"

	"github.com/nqminds/EDGESec/internal/errors"
	"github.com/nqminds/EDGESec/internal/eloop"
	"github.com/nqminds/EDGESec/internal/netutil"
)

// StationEvent is a parsed AP-STA-CONNECTED/DISCONNECTED notification
// (spec §4.5).
type StationEvent struct {
	Connected bool
	MAC       netutil.MAC
}

// EventHandler is invoked once per parsed station event.
type EventHandler func(StationEvent)

// EventClient ATTACHes to the AP daemon's event socket once at Dial time
// and thereafter delivers unsolicited lines to a registered handler via
// the event loop's read-readiness callback.
type EventClient struct {
	fd         int
	serverPath string
	localPath  string
	loop       *eloop.Loop
	handler    EventHandler
}

// DialEvents binds a private client socket, sends ATTACH, and registers
// the fd for read-readiness on loop so subsequent unsolicited lines invoke
// handler.
func DialEvents(serverPath string, loop *eloop.Loop, handler EventHandler) (*EventClient, error) {
	fd, local, err := bindClientSocket(serverPath, "evt")
	if err != nil {
		return nil, err
	}
	c := &EventClient{fd: fd, serverPath: serverPath, localPath: local, loop: loop, handler: handler}

	if err := unix.Sendto(fd, []byte("ATTACH"), 0, &unix.SockaddrUnix{Name: serverPath}); err != nil {
		unix.Close(fd)
		return nil, errors.Wrapf(err, errors.KindUnavailable, "apctl: ATTACH")
	}

	if err := loop.RegisterRead(fd, c.onReadable); err != nil {
		unix.Close(fd)
		return nil, err
	}
	return c, nil
}

// Close unregisters the fd from the event loop and removes the socket.
func (c *EventClient) Close() error {
	c.loop.Unregister(c.fd)
	unix.Close(c.fd)
	return removeQuiet(c.localPath)
}

func (c *EventClient) onReadable(fd int) {
	buf := make([]byte, 4096)
	n, _, err := unix.Recvfrom(fd, buf, unix.MSG_DONTWAIT)
	if err != nil {
		return
	}
	line := strings.TrimRight(string(buf[:n]), "\r\n ")
	ev, ok := parseStationEvent(line)
	if !ok {
		return
	}
	if c.handler != nil {
		c.handler(ev)
	}
}

// parseStationEvent recognizes lines whose first whitespace-separated
// token contains AP-STA-CONNECTED or AP-STA-DISCONNECTED, with the second
// token the station MAC (spec §4.5). Lines not matching either shape are
// ignored, not errors — the event socket carries other daemon chatter too.
func parseStationEvent(line string) (StationEvent, bool) {
	fields := strings.Fields(line)
	if len(fields) < 2 {
		return StationEvent{}, false
	}

	var connected bool
	switch {
	case strings.Contains(fields[0], "AP-STA-CONNECTED"):
		connected = true
	case strings.Contains(fields[0], "AP-STA-DISCONNECTED"):
		connected = false
	default:
		return StationEvent{}, false
	}

	mac, err := netutil.ParseMAC(fields[1])
	if err != nil {
		return StationEvent{}, false
	}
	return StationEvent{Connected: connected, MAC: mac}, true
}

func removeQuiet(path string) error {
	if path == "" {
		return nil
	}
	return unix.Unlink(path)
}
