// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package radius

import (
	"testing"

	"github.com/nqminds/EDGESec/internal/logging"
)

func TestBuildAttrsVLANOnly(t *testing.T) {
	s := &Server{secret: []byte("secret"), cache: make(map[string][]Attribute)}
	reqAuth, _ := randomAuthenticator()

	attrs, err := s.buildAttrs(IdentityInfo{Access: Allow, Class: ClassVLAN, VlanID: 5}, reqAuth)
	if err != nil {
		t.Fatalf("buildAttrs: %v", err)
	}

	pkt := &Packet{Attributes: attrs}
	tt, ok := pkt.Get(AttrTunnelType)
	if !ok {
		t.Fatal("expected Tunnel-Type")
	}
	if tt[3] != TunnelTypeVLAN {
		t.Errorf("expected tunnel type VLAN, got %v", tt)
	}
	mt, ok := pkt.Get(AttrTunnelMediumType)
	if !ok || mt[3] != TunnelMediumTypeIEEE802 {
		t.Errorf("expected tunnel medium type IEEE-802, got %v ok=%v", mt, ok)
	}
	group, ok := pkt.Get(AttrTunnelPrivateGroupID)
	if !ok || string(group) != "5" {
		t.Errorf("expected group id 5, got %q", group)
	}
	if _, ok := pkt.Get(AttrTunnelPassword); ok {
		t.Error("did not expect a Tunnel-Password for ClassVLAN")
	}
}

func TestBuildAttrsVLANPass(t *testing.T) {
	s := &Server{secret: []byte("secret"), cache: make(map[string][]Attribute)}
	reqAuth, _ := randomAuthenticator()

	attrs, err := s.buildAttrs(IdentityInfo{Access: Allow, Class: ClassVLANPass, VlanID: 7, IDPass: "wifipass"}, reqAuth)
	if err != nil {
		t.Fatalf("buildAttrs: %v", err)
	}
	pkt := &Packet{Attributes: attrs}
	tp, ok := pkt.Get(AttrTunnelPassword)
	if !ok {
		t.Fatal("expected a Tunnel-Password attribute")
	}
	got, err := decryptTunnelPassword(tp, s.secret, reqAuth[:])
	if err != nil {
		t.Fatalf("decryptTunnelPassword: %v", err)
	}
	if got != "wifipass" {
		t.Errorf("got %q", got)
	}
}

func TestHandleAccessRequestMemoizesAttributeChain(t *testing.T) {
	calls := 0
	s := &Server{
		secret: []byte("secret"),
		cache:  make(map[string][]Attribute),
		lookup: func(identity string) IdentityInfo {
			calls++
			return IdentityInfo{Access: Allow, Class: ClassVLAN, VlanID: 5}
		},
		log: logging.WithComponent("radius-test"),
	}

	req := &Packet{Code: CodeAccessRequest, Identifier: 1}
	auth, _ := randomAuthenticator()
	req.Authenticator = auth
	req.Add(AttrUserName, []byte("aa:bb:cc:dd:ee:ff"))

	first := s.handleAccessRequest(req)
	second := s.handleAccessRequest(req)

	if calls != 1 {
		t.Fatalf("expected the callback to be invoked once (memoized), got %d calls", calls)
	}
	if len(first.Attributes) != len(second.Attributes) {
		t.Fatalf("expected identical attribute chains across retransmission")
	}
	for i := range first.Attributes {
		if string(first.Attributes[i].Value) != string(second.Attributes[i].Value) {
			t.Fatalf("attribute %d differs between retransmissions", i)
		}
	}
}

func TestHandleAccessRequestDeny(t *testing.T) {
	s := &Server{
		secret: []byte("secret"),
		cache:  make(map[string][]Attribute),
		lookup: func(identity string) IdentityInfo { return IdentityInfo{Access: Deny} },
		log:    logging.WithComponent("radius-test"),
	}
	req := &Packet{Code: CodeAccessRequest, Identifier: 1}
	req.Add(AttrUserName, []byte("unknown"))

	reply := s.handleAccessRequest(req)
	if reply.Code != CodeAccessReject {
		t.Fatalf("expected Access-Reject, got %v", reply.Code)
	}
}

func TestInvalidateIdentityForcesRelookup(t *testing.T) {
	calls := 0
	s := &Server{
		secret: []byte("secret"),
		cache:  make(map[string][]Attribute),
		lookup: func(identity string) IdentityInfo {
			calls++
			return IdentityInfo{Access: Allow, Class: ClassVLAN, VlanID: uint16(calls)}
		},
		log: logging.WithComponent("radius-test"),
	}
	req := &Packet{Code: CodeAccessRequest, Identifier: 1}
	req.Add(AttrUserName, []byte("aa:bb:cc:dd:ee:ff"))

	s.handleAccessRequest(req)
	s.InvalidateIdentity("aa:bb:cc:dd:ee:ff")
	s.handleAccessRequest(req)

	if calls != 2 {
		t.Fatalf("expected a relookup after invalidation, got %d calls", calls)
	}
}
