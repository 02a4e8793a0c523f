// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package apctl

import (
	"path/filepath"
	"testing"

	"golang.org/x/sys/unix"

	"github.com/nqminds/EDGESec/internal/netutil"
)

// fakeDaemon is a minimal stand-in for the AP daemon's command socket,
// replying to known request lines with a fixed table of responses.
func fakeDaemon(t *testing.T, path string, replies map[string]string) {
	t.Helper()
	fd, err := unix.Socket(unix.AF_UNIX, unix.SOCK_DGRAM|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		t.Fatalf("socket: %v", err)
	}
	if err := unix.Bind(fd, &unix.SockaddrUnix{Name: path}); err != nil {
		t.Fatalf("bind: %v", err)
	}
	t.Cleanup(func() { unix.Close(fd) })

	go func() {
		buf := make([]byte, 4096)
		for {
			n, from, err := unix.Recvfrom(fd, buf, 0)
			if err != nil {
				return
			}
			req := string(buf[:n])
			reply, ok := replies[req]
			if !ok {
				reply = "FAIL"
			}
			sa, ok := from.(*unix.SockaddrUnix)
			if !ok {
				continue
			}
			unix.Sendto(fd, []byte(reply), 0, sa)
		}
	}()
}

func TestCmdClientPing(t *testing.T) {
	serverPath := filepath.Join(t.TempDir(), "ap-ctrl.sock")
	fakeDaemon(t, serverPath, map[string]string{"PING": "PONG"})

	c, err := Dial(serverPath)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer c.Close()

	ok, err := c.Ping()
	if err != nil {
		t.Fatalf("Ping: %v", err)
	}
	if !ok {
		t.Error("expected Ping to succeed")
	}
}

func TestCmdClientACLAndDisconnect(t *testing.T) {
	serverPath := filepath.Join(t.TempDir(), "ap-ctrl.sock")
	mac, _ := netutil.ParseMAC("aa:bb:cc:dd:ee:ff")
	fakeDaemon(t, serverPath, map[string]string{
		"DENY_ACL ADD_MAC aa:bb:cc:dd:ee:ff": "OK",
		"DENY_ACL DEL_MAC aa:bb:cc:dd:ee:ff": "OK",
	})

	c, err := Dial(serverPath)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer c.Close()

	if err := c.Disconnect(mac); err != nil {
		t.Fatalf("Disconnect: %v", err)
	}
}

func TestCmdClientStationNotAssociated(t *testing.T) {
	serverPath := filepath.Join(t.TempDir(), "ap-ctrl.sock")
	fakeDaemon(t, serverPath, map[string]string{})

	c, err := Dial(serverPath)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer c.Close()

	mac, _ := netutil.ParseMAC("aa:bb:cc:dd:ee:ff")
	if _, err := c.Station(mac); err == nil {
		t.Fatal("expected an error for an unassociated station")
	}
}
