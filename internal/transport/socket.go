// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package transport implements the Unix-domain datagram request/reply
// transport (spec C2): one datagram per direction, bounded to the kernel
// receive buffer, sized exactly via FIONREAD before a single non-blocking
// read. The server keeps no connection state per client — replies go back
// to whatever path the client's recvfrom reported.
package transport

import (
	"fmt"
	"os"
	"strings"

	"golang.org/x/sys/unix"
)

// MaxDatagram bounds a single request or reply, matching the practical
// ceiling of a Unix datagram socket's receive buffer.
const MaxDatagram = 65536

// Socket is a bound, non-blocking Unix datagram socket.
type Socket struct {
	fd   int
	path string
}

// Listen creates (or replaces) a Unix datagram socket at path and binds it,
// per spec C2's "filesystem socket" transport.
func Listen(path string) (*Socket, error) {
	_ = os.Remove(path)

	fd, err := unix.Socket(unix.AF_UNIX, unix.SOCK_DGRAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return nil, fmt.Errorf("transport: socket: %w", err)
	}
	sa := &unix.SockaddrUnix{Name: path}
	if err := unix.Bind(fd, sa); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("transport: bind %s: %w", path, err)
	}
	return &Socket{fd: fd, path: path}, nil
}

// Fd returns the underlying file descriptor, for registration with the
// event loop's RegisterRead.
func (s *Socket) Fd() int { return s.fd }

// Close closes the socket and removes the filesystem path.
func (s *Socket) Close() error {
	err := unix.Close(s.fd)
	_ = os.Remove(s.path)
	return err
}

// Datagram is one received request together with the path to reply to.
type Datagram struct {
	Payload []byte
	From    string
}

// Recv sizes a buffer exactly via FIONREAD then performs one non-blocking
// recvfrom, per spec C2.
func (s *Socket) Recv() (*Datagram, error) {
	n, err := unix.IoctlGetInt(s.fd, unix.FIONREAD)
	if err != nil {
		return nil, fmt.Errorf("transport: FIONREAD: %w", err)
	}
	if n == 0 {
		n = MaxDatagram
	}
	buf := make([]byte, n)
	nr, from, err := unix.Recvfrom(s.fd, buf, 0)
	if err != nil {
		return nil, fmt.Errorf("transport: recvfrom: %w", err)
	}
	path := ""
	if su, ok := from.(*unix.SockaddrUnix); ok {
		path = su.Name
	}
	return &Datagram{Payload: TrimTrailingWhitespace(buf[:nr]), From: path}, nil
}

// SendTo sends payload to the client's bound path, as reported by its own
// Recv call — the server never holds per-client connection state.
func (s *Socket) SendTo(path string, payload []byte) error {
	if path == "" {
		return fmt.Errorf("transport: send: empty client path")
	}
	sa := &unix.SockaddrUnix{Name: path}
	return unix.Sendto(s.fd, payload, 0, sa)
}

// TrimTrailingWhitespace strips trailing whitespace before parsing, per
// spec C2 ("Trailing whitespace is stripped before parsing").
func TrimTrailingWhitespace(b []byte) []byte {
	return []byte(strings.TrimRight(string(b), " \t\r\n"))
}

// SplitTokens splits a command into space-separated tokens. It is the
// inverse of JoinTokens: for well-formed commands, JoinTokens(SplitTokens(s))
// == s (spec §8 round-trip property).
func SplitTokens(s string) []string {
	return strings.Fields(s)
}

// SplitCommand splits a command line into up to maxTokens tokens, where the
// final token absorbs any remaining text verbatim (including embedded
// spaces). This matches how SET_FINGERPRINT's trailing `query` argument and
// ASSIGN_PSK's passphrase argument are parsed: every positional argument
// except the last is a single printable token, and the payload that may
// contain spaces is only ever the final positional argument (spec §4.2).
func SplitCommand(s string, maxTokens int) []string {
	fields := strings.Fields(s)
	if maxTokens <= 0 || len(fields) <= maxTokens {
		return fields
	}
	out := make([]string, 0, maxTokens)
	rest := s
	for i := 0; i < maxTokens-1; i++ {
		rest = strings.TrimLeft(rest, " \t")
		idx := strings.IndexAny(rest, " \t")
		if idx < 0 {
			break
		}
		out = append(out, rest[:idx])
		rest = rest[idx+1:]
	}
	rest = strings.TrimSpace(rest)
	if rest != "" {
		out = append(out, rest)
	}
	return out
}

// JoinTokens rejoins tokens with a single space separator, the identity
// transform for SplitTokens on well-formed commands (spec §8).
func JoinTokens(tokens []string) string {
	return strings.Join(tokens, " ")
}
