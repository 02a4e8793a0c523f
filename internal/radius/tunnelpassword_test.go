// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package radius

import "testing"

func TestTunnelPasswordRoundTrip(t *testing.T) {
	secret := []byte("radius-shared-secret")
	reqAuth, err := randomAuthenticator()
	if err != nil {
		t.Fatalf("randomAuthenticator: %v", err)
	}
	salt, err := randomSalt()
	if err != nil {
		t.Fatalf("randomSalt: %v", err)
	}
	if salt&0x8000 == 0 {
		t.Fatal("expected the top bit of the salt to be set")
	}

	encoded, err := encryptTunnelPassword("correct-horse-battery-staple", secret, reqAuth[:], salt)
	if err != nil {
		t.Fatalf("encryptTunnelPassword: %v", err)
	}

	got, err := decryptTunnelPassword(encoded, secret, reqAuth[:])
	if err != nil {
		t.Fatalf("decryptTunnelPassword: %v", err)
	}
	if got != "correct-horse-battery-staple" {
		t.Fatalf("got %q", got)
	}
}

func TestTunnelPasswordWrongSecretFails(t *testing.T) {
	reqAuth, _ := randomAuthenticator()
	salt, _ := randomSalt()
	encoded, err := encryptTunnelPassword("hunter2", []byte("secret-a"), reqAuth[:], salt)
	if err != nil {
		t.Fatalf("encryptTunnelPassword: %v", err)
	}
	got, err := decryptTunnelPassword(encoded, []byte("secret-b"), reqAuth[:])
	if err == nil && got == "hunter2" {
		t.Fatal("decrypting with the wrong secret should not recover the original plaintext")
	}
}
