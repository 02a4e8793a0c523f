// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package credstore is the encrypted-at-rest key/value store (C4): PSKs in
// a `store` table, key material in a `secrets` table, and at most one live
// AuthTicket per process. Every ciphertext is produced by an AEAD
// construction so it is indistinguishable from random bytes to an attacker
// who only has the SQLite file (spec §4.4).
//
// Encryption is envelope-style: a per-id data key is derived from the
// process master secret via HKDF-SHA256 over a random salt, itself
// wrapped (encrypted) under a key derived directly from the master secret
// and persisted in `secrets`; the actual value is then sealed under the
// unwrapped data key and persisted in `store` alongside its own nonce. Both
// layers use ChaCha20-Poly1305, the authenticated cipher already present in
// the example pack's crypto stack (golang.org/x/crypto), in place of the
// original's AES — no hardware-AES requirement is stated in spec.md, and
// ChaCha20-Poly1305 avoids needing constant-time AES-NI fallbacks.
package credstore

import (
	"crypto/rand"
	"crypto/sha256"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"

	"github.com/nqminds/EDGESec/internal/errors"
)

const (
	saltSize = 32
)

// deriveKey runs HKDF-SHA256 over secret and salt to produce a
// chacha20poly1305.KeySize-byte key, with info binding the derived key to
// its purpose so the same (secret, salt) pair can't be reused across
// contexts.
func deriveKey(secret, salt []byte, info string) ([]byte, error) {
	r := hkdf.New(sha256.New, secret, salt, []byte(info))
	key := make([]byte, chacha20poly1305.KeySize)
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, errors.Wrapf(err, errors.KindInternal, "credstore: derive key")
	}
	return key, nil
}

// seal encrypts plaintext under key, returning a freshly random nonce and
// the ciphertext (which includes the AEAD tag).
func seal(key, plaintext []byte) (nonce, ciphertext []byte, err error) {
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, nil, errors.Wrapf(err, errors.KindInternal, "credstore: new aead")
	}
	nonce = make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, nil, errors.Wrapf(err, errors.KindInternal, "credstore: random nonce")
	}
	ciphertext = aead.Seal(nil, nonce, plaintext, nil)
	return nonce, ciphertext, nil
}

// open decrypts ciphertext sealed by seal, authenticating the AEAD tag.
func open(key, nonce, ciphertext []byte) ([]byte, error) {
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, errors.Wrapf(err, errors.KindInternal, "credstore: new aead")
	}
	plaintext, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, errors.Wrapf(err, errors.KindValidation, "credstore: authentication failed")
	}
	return plaintext, nil
}

func randomSalt() ([]byte, error) {
	salt := make([]byte, saltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, errors.Wrapf(err, errors.KindInternal, "credstore: random salt")
	}
	return salt, nil
}

// randomPassphrase returns a fixed-length hex passphrase for ticket
// issuance and default WPA passphrases, drawn from crypto/rand — the pack
// has no dedicated CSPRNG wrapper library beyond what crypto/rand already
// provides, so stdlib is used directly (justified in DESIGN.md).
func randomPassphrase(byteLen int) (string, error) {
	b := make([]byte, byteLen)
	if _, err := rand.Read(b); err != nil {
		return "", errors.Wrapf(err, errors.KindInternal, "credstore: random passphrase")
	}
	const hexDigits = "0123456789abcdef"
	out := make([]byte, byteLen*2)
	for i, c := range b {
		out[i*2] = hexDigits[c>>4]
		out[i*2+1] = hexDigits[c&0x0f]
	}
	return string(out), nil
}
