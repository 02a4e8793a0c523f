// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package radius

import (
	"net"
	"strconv"
	"sync"

	"golang.org/x/sys/unix"

	"github.com/nqminds/EDGESec/internal/eloop"
	"github.com/nqminds/EDGESec/internal/errors"
	"github.com/nqminds/EDGESec/internal/logging"
)

// AccessDecision is the outcome get_mac_conn returns for an identity.
type AccessDecision int

const (
	Deny AccessDecision = iota
	Allow
)

// UserClass distinguishes a plain VLAN assignment from one that also
// carries a Tunnel-Password (spec §4.6).
type UserClass int

const (
	ClassVLAN UserClass = iota
	ClassVLANPass
)

// IdentityInfo is what get_mac_conn returns for a given RADIUS identity.
type IdentityInfo struct {
	Access  AccessDecision
	Class   UserClass
	VlanID  uint16
	IDPass  string // Tunnel-Password plaintext; empty means ClassVLAN
}

// MacConnCallback resolves a RADIUS identity (the station's MAC, as a
// string) to access policy, implemented by the command processor (C7).
type MacConnCallback func(identity string) IdentityInfo

// Config configures a Server.
type Config struct {
	ListenAddr string // e.g. "0.0.0.0:1812"
	Secret     []byte
}

// Server is the RADIUS/EAP UDP listener (C6).
type Server struct {
	fd     int
	secret []byte
	lookup MacConnCallback
	log    *logging.Logger

	mu    sync.Mutex
	cache map[string][]Attribute // identity -> memoized attribute chain
}

// New binds the RADIUS UDP socket and registers it for read-readiness on
// loop. lookup is called once per Access-Request (cache misses only).
func New(cfg Config, loop *eloop.Loop, lookup MacConnCallback) (*Server, error) {
	fd, err := bindUDP(cfg.ListenAddr)
	if err != nil {
		return nil, err
	}
	s := &Server{
		fd:     fd,
		secret: cfg.Secret,
		lookup: lookup,
		log:    logging.WithComponent("radius"),
		cache:  make(map[string][]Attribute),
	}
	if err := loop.RegisterRead(fd, s.onReadable); err != nil {
		unix.Close(fd)
		return nil, err
	}
	return s, nil
}

// Close unregisters and closes the socket.
func (s *Server) Close(loop *eloop.Loop) error {
	loop.Unregister(s.fd)
	return unix.Close(s.fd)
}

// InvalidateIdentity drops any memoized attribute chain for identity,
// called by the command processor on CLEAR_PSK/DENY_MAC (spec §9 open
// question, resolved: those commands must not leave a stale VLAN/password
// chain replayed to a later retransmission of the same Access-Request).
func (s *Server) InvalidateIdentity(identity string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.cache, identity)
}

func (s *Server) onReadable(fd int) {
	buf := make([]byte, 4096)
	n, from, err := unix.Recvfrom(fd, buf, unix.MSG_DONTWAIT)
	if err != nil {
		return
	}

	pkt, err := Decode(buf[:n])
	if err != nil {
		s.log.Warn("dropping malformed radius packet", "error", err)
		return
	}
	if pkt.Code != CodeAccessRequest {
		return
	}
	if !validAuthenticator(pkt.Authenticator) {
		s.log.Warn("dropping access-request with zero authenticator")
		return
	}

	reply := s.handleAccessRequest(pkt)
	encoded, err := reply.Encode(pkt.Authenticator, s.secret)
	if err != nil {
		s.log.Warn("failed to encode radius reply", "error", err)
		return
	}

	if sa, ok := from.(*unix.SockaddrInet4); ok {
		unix.Sendto(fd, encoded, 0, sa)
	}
}

func (s *Server) handleAccessRequest(req *Packet) *Packet {
	identityBytes, _ := req.Get(AttrUserName)
	identity := string(identityBytes)

	reply := &Packet{Identifier: req.Identifier}

	attrs, ok := s.cachedAttrs(identity)
	if !ok {
		info := s.lookup(identity)
		if info.Access == Deny {
			reply.Code = CodeAccessReject
			return reply
		}
		built, err := s.buildAttrs(info, req.Authenticator)
		if err != nil {
			s.log.Warn("failed to build radius attributes", "identity", identity, "error", err)
			reply.Code = CodeAccessReject
			return reply
		}
		attrs = built
		s.mu.Lock()
		s.cache[identity] = attrs
		s.mu.Unlock()
	}

	reply.Code = CodeAccessAccept
	reply.Attributes = attrs
	return reply
}

func (s *Server) cachedAttrs(identity string) ([]Attribute, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.cache[identity]
	return a, ok
}

func (s *Server) buildAttrs(info IdentityInfo, requestAuth [16]byte) ([]Attribute, error) {
	var attrs []Attribute
	attrs = append(attrs, Attribute{Type: AttrTunnelType, Value: tunnelTypeValue(TunnelTypeVLAN)})
	attrs = append(attrs, Attribute{Type: AttrTunnelMediumType, Value: tunnelTypeValue(TunnelMediumTypeIEEE802)})
	attrs = append(attrs, Attribute{Type: AttrTunnelPrivateGroupID, Value: []byte(strconv.Itoa(int(info.VlanID)))})

	if info.Class == ClassVLANPass && info.IDPass != "" {
		salt, err := randomSalt()
		if err != nil {
			return nil, err
		}
		encrypted, err := encryptTunnelPassword(info.IDPass, s.secret, requestAuth[:], salt)
		if err != nil {
			return nil, err
		}
		attrs = append(attrs, Attribute{Type: AttrTunnelPassword, Value: encrypted})
	}
	return attrs, nil
}

// tunnelTypeValue encodes a Tunnel-Type/Tunnel-Medium-Type value: a tag
// octet (0, meaning untagged) followed by a 3-byte big-endian value
// (RFC 2868 §3.1/§3.2).
func tunnelTypeValue(v uint32) []byte {
	return []byte{0, byte(v >> 16), byte(v >> 8), byte(v)}
}

func bindUDP(addr string) (int, error) {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return -1, errors.Wrapf(err, errors.KindValidation, "radius: malformed listen address %q", addr)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return -1, errors.Wrapf(err, errors.KindValidation, "radius: invalid port %q", portStr)
	}

	var ip4 [4]byte
	if host != "" && host != "0.0.0.0" {
		parsed := net.ParseIP(host).To4()
		if parsed == nil {
			return -1, errors.Errorf(errors.KindValidation, "radius: invalid ipv4 address %q", host)
		}
		copy(ip4[:], parsed)
	}

	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_DGRAM|unix.SOCK_CLOEXEC|unix.SOCK_NONBLOCK, 0)
	if err != nil {
		return -1, errors.Wrapf(err, errors.KindInternal, "radius: socket")
	}
	if err := unix.Bind(fd, &unix.SockaddrInet4{Port: port, Addr: ip4}); err != nil {
		unix.Close(fd)
		return -1, errors.Wrapf(err, errors.KindInternal, "radius: bind %s", addr)
	}
	return fd, nil
}
