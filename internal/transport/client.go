// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package transport

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/sys/unix"

	"github.com/nqminds/EDGESec/internal/errors"
)

// recvTimeout bounds a Client round trip; callers issuing SET_IP from a
// lease-change hook run inline and can't block indefinitely on a wedged
// supervisor.
const recvTimeout = 200 * time.Millisecond

// Client is the datagram-socket counterpart to Socket, for processes other
// than the supervisor itself that need to issue commands against C7's
// command socket (the DHCP lease observer's SET_IP hook, operator CLIs).
type Client struct {
	fd         int
	serverPath string
	localPath  string
}

// Dial binds a private client socket beside serverPath and readies it for
// synchronous request/reply round trips against the command socket.
func Dial(serverPath string) (*Client, error) {
	fd, err := unix.Socket(unix.AF_UNIX, unix.SOCK_DGRAM|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return nil, errors.Wrapf(err, errors.KindInternal, "transport: client socket")
	}
	local := filepath.Join(filepath.Dir(serverPath), fmt.Sprintf(".edgesec-cmd-%d.sock", os.Getpid()))
	os.Remove(local)
	if err := unix.Bind(fd, &unix.SockaddrUnix{Name: local}); err != nil {
		unix.Close(fd)
		return nil, errors.Wrapf(err, errors.KindInternal, "transport: bind %s", local)
	}
	return &Client{fd: fd, serverPath: serverPath, localPath: local}, nil
}

// Close removes the client's bound path.
func (c *Client) Close() error {
	unix.Close(c.fd)
	return os.Remove(c.localPath)
}

// Send issues cmd and returns the trimmed reply, or an error if the
// supervisor doesn't answer within recvTimeout.
func (c *Client) Send(cmd string) (string, error) {
	if err := unix.Sendto(c.fd, []byte(cmd), 0, &unix.SockaddrUnix{Name: c.serverPath}); err != nil {
		return "", errors.Wrapf(err, errors.KindUnavailable, "transport: send %q", cmd)
	}

	timeout := unix.NsecToTimeval(recvTimeout.Nanoseconds())
	if err := unix.SetsockoptTimeval(c.fd, unix.SOL_SOCKET, unix.SO_RCVTIMEO, &timeout); err != nil {
		return "", errors.Wrapf(err, errors.KindInternal, "transport: set recv timeout")
	}

	buf := make([]byte, MaxDatagram)
	n, _, err := unix.Recvfrom(c.fd, buf, 0)
	if err != nil {
		return "", errors.Wrapf(err, errors.KindUnavailable, "transport: recv reply to %q", cmd)
	}
	return strings.TrimRight(string(buf[:n]), "\r\n "), nil
}
