// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package radius

import "testing"

func TestEncodeDecodeRoundTrip(t *testing.T) {
	reqAuth, err := randomAuthenticator()
	if err != nil {
		t.Fatalf("randomAuthenticator: %v", err)
	}
	secret := []byte("testing123")

	p := &Packet{Code: CodeAccessAccept, Identifier: 7}
	p.Add(AttrTunnelType, tunnelTypeValue(TunnelTypeVLAN))
	p.Add(AttrTunnelPrivateGroupID, []byte("5"))

	encoded, err := p.Encode(reqAuth, secret)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	decoded, err := Decode(encoded)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if decoded.Code != CodeAccessAccept || decoded.Identifier != 7 {
		t.Fatalf("unexpected header: %+v", decoded)
	}
	vg, ok := decoded.Get(AttrTunnelPrivateGroupID)
	if !ok || string(vg) != "5" {
		t.Fatalf("expected Tunnel-Private-Group-ID=5, got %q ok=%v", vg, ok)
	}
}

func TestDecodeRejectsShortPacket(t *testing.T) {
	if _, err := Decode([]byte{1, 2, 3}); err == nil {
		t.Fatal("expected an error for a too-short packet")
	}
}

func TestMessageAuthenticatorHMACIsDeterministic(t *testing.T) {
	secret := []byte("shared")
	body := []byte("some packet bytes")
	a := messageAuthenticatorHMAC(body, secret)
	b := messageAuthenticatorHMAC(body, secret)
	if string(a) != string(b) {
		t.Fatal("expected the same HMAC for the same inputs")
	}
}
