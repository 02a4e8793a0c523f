// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package apctl is the AP control client (C5): a synchronous command
// socket for PING/STA/ACCEPT_ACL/DENY_ACL round-trips, and an event socket
// that ATTACHes once and thereafter delivers unsolicited
// AP-STA-CONNECTED/AP-STA-DISCONNECTED lines to a registered callback.
//
// Both sockets speak the same textual, newline-free, space-separated
// protocol as the command socket C2 implements for our own operators
// (spec §4.5), over a pair of Unix domain datagram sockets — the wire
// shape hostapd's own control interface uses, which this client
// round-trips against unmodified.
package apctl

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/sys/unix"

	"github.com/nqminds/EDGESec/internal/errors"
	"github.com/nqminds/EDGESec/internal/netutil"
)

// ACLOp is one of the four ACL mutations the AP daemon's ACCEPT_ACL/
// DENY_ACL commands accept, typed instead of formatted ad hoc at each call
// site (spec.md design note on untyped command parsing, applied
// symmetrically to the client).
type ACLOp int

const (
	AcceptAdd ACLOp = iota
	AcceptDel
	DenyAdd
	DenyDel
)

func (op ACLOp) String() string {
	switch op {
	case AcceptAdd:
		return "ACCEPT_ACL ADD_MAC"
	case AcceptDel:
		return "ACCEPT_ACL DEL_MAC"
	case DenyAdd:
		return "DENY_ACL ADD_MAC"
	case DenyDel:
		return "DENY_ACL DEL_MAC"
	default:
		return "UNKNOWN_ACL_OP"
	}
}

// recvTimeout bounds every command-socket round trip; spec §4.7 calls for
// "short receive timeouts" since AP control I/O runs inline in a handler.
const recvTimeout = 200 * time.Millisecond

// CmdClient is the synchronous command-socket half of C5.
type CmdClient struct {
	fd         int
	serverPath string
	localPath  string
}

// Dial binds a private client socket at a fresh path beside serverPath and
// readies it for synchronous command round-trips.
func Dial(serverPath string) (*CmdClient, error) {
	fd, local, err := bindClientSocket(serverPath, "cmd")
	if err != nil {
		return nil, err
	}
	return &CmdClient{fd: fd, serverPath: serverPath, localPath: local}, nil
}

// Close removes the client socket.
func (c *CmdClient) Close() error {
	unix.Close(c.fd)
	return os.Remove(c.localPath)
}

// Ping sends PING and reports whether the AP daemon replied PONG within
// the receive timeout.
func (c *CmdClient) Ping() (bool, error) {
	reply, err := c.roundTrip("PING")
	if err != nil {
		return false, err
	}
	return reply == "PONG", nil
}

// Station queries STA <mac>, returning the raw multiline reply (or an
// error if the daemon replies FAIL, meaning the station is not
// associated).
func (c *CmdClient) Station(mac netutil.MAC) (string, error) {
	reply, err := c.roundTrip(fmt.Sprintf("STA %s", mac))
	if err != nil {
		return "", err
	}
	if reply == "FAIL" {
		return "", errors.Errorf(errors.KindNotFound, "apctl: station %s not associated", mac)
	}
	return reply, nil
}

// ACL issues one ACCEPT_ACL/DENY_ACL mutation for mac.
func (c *CmdClient) ACL(op ACLOp, mac netutil.MAC) error {
	reply, err := c.roundTrip(fmt.Sprintf("%s %s", op, mac))
	if err != nil {
		return err
	}
	if reply != "OK" {
		return errors.Errorf(errors.KindPeerProtocol, "apctl: %s %s: unexpected reply %q", op, mac, reply)
	}
	return nil
}

// Disconnect kicks mac off the AP without leaving it permanently denied:
// add then immediately remove from the deny ACL (spec §4.5's composite
// disconnect).
func (c *CmdClient) Disconnect(mac netutil.MAC) error {
	if err := c.ACL(DenyAdd, mac); err != nil {
		return err
	}
	return c.ACL(DenyDel, mac)
}

func (c *CmdClient) roundTrip(cmd string) (string, error) {
	if err := unix.Sendto(c.fd, []byte(cmd), 0, &unix.SockaddrUnix{Name: c.serverPath}); err != nil {
		return "", errors.Wrapf(err, errors.KindUnavailable, "apctl: send %q", cmd)
	}

	timeout := unix.NsecToTimeval(recvTimeout.Nanoseconds())
	if err := unix.SetsockoptTimeval(c.fd, unix.SOL_SOCKET, unix.SO_RCVTIMEO, &timeout); err != nil {
		return "", errors.Wrapf(err, errors.KindInternal, "apctl: set recv timeout")
	}

	buf := make([]byte, 4096)
	n, _, err := unix.Recvfrom(c.fd, buf, 0)
	if err != nil {
		return "", errors.Wrapf(err, errors.KindUnavailable, "apctl: recv reply to %q", cmd)
	}
	return strings.TrimRight(string(buf[:n]), "\r\n "), nil
}

func bindClientSocket(serverPath, suffix string) (fd int, localPath string, err error) {
	fd, err = unix.Socket(unix.AF_UNIX, unix.SOCK_DGRAM|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return -1, "", errors.Wrapf(err, errors.KindInternal, "apctl: socket")
	}
	localPath = filepath.Join(filepath.Dir(serverPath), fmt.Sprintf(".apctl-%s-%d.sock", suffix, os.Getpid()))
	os.Remove(localPath)
	if err := unix.Bind(fd, &unix.SockaddrUnix{Name: localPath}); err != nil {
		unix.Close(fd)
		return -1, "", errors.Wrapf(err, errors.KindInternal, "apctl: bind %s", localPath)
	}
	return fd, localPath, nil
}
