// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package radius

import (
	"crypto/md5"
	"crypto/rand"

	"github.com/nqminds/EDGESec/internal/errors"
)

// encryptTunnelPassword implements RFC 2868 §3.5's Tunnel-Password
// encryption: a random 16-bit salt with the top bit set, then an MD5-chain
// XOR of the length-prefixed, 16-byte-block-padded plaintext against
// repeated MD5(secret || authenticator-or-previous-block).
func encryptTunnelPassword(plaintext string, secret, requestAuth []byte, salt uint16) ([]byte, error) {
	if len(plaintext) > 253 {
		return nil, errors.Errorf(errors.KindValidation, "radius: tunnel password too long")
	}

	padded := make([]byte, 1+len(plaintext))
	padded[0] = byte(len(plaintext))
	copy(padded[1:], plaintext)
	if rem := len(padded) % 16; rem != 0 {
		padded = append(padded, make([]byte, 16-rem)...)
	}

	out := make([]byte, 2+len(padded))
	out[0] = byte(salt >> 8)
	out[1] = byte(salt & 0xff)

	prev := make([]byte, 0, len(requestAuth)+2)
	prev = append(prev, requestAuth...)
	prev = append(prev, out[0], out[1])

	for i := 0; i < len(padded); i += 16 {
		h := md5.New()
		h.Write(secret)
		h.Write(prev)
		b := h.Sum(nil)

		block := padded[i : i+16]
		cipher := make([]byte, 16)
		for j := range block {
			cipher[j] = block[j] ^ b[j]
		}
		copy(out[2+i:2+i+16], cipher)
		prev = cipher
	}
	return out, nil
}

// decryptTunnelPassword reverses encryptTunnelPassword, returning the
// original plaintext.
func decryptTunnelPassword(encoded []byte, secret, requestAuth []byte) (string, error) {
	if len(encoded) < 2+16 || (len(encoded)-2)%16 != 0 {
		return "", errors.Errorf(errors.KindValidation, "radius: malformed tunnel password, %d bytes", len(encoded))
	}
	salt := encoded[:2]
	ciphertext := encoded[2:]

	prev := make([]byte, 0, len(requestAuth)+2)
	prev = append(prev, requestAuth...)
	prev = append(prev, salt...)

	plain := make([]byte, len(ciphertext))
	for i := 0; i < len(ciphertext); i += 16 {
		h := md5.New()
		h.Write(secret)
		h.Write(prev)
		b := h.Sum(nil)

		block := ciphertext[i : i+16]
		for j := range block {
			plain[i+j] = block[j] ^ b[j]
		}
		prev = block
	}

	n := int(plain[0])
	if n < 0 || n+1 > len(plain) {
		return "", errors.Errorf(errors.KindValidation, "radius: tunnel password length byte out of range")
	}
	return string(plain[1 : 1+n]), nil
}

// randomSalt returns a 16-bit RFC 2868 salt with the most significant bit
// of the first octet set.
func randomSalt() (uint16, error) {
	var b [2]byte
	if _, err := rand.Read(b[:]); err != nil {
		return 0, errors.Wrapf(err, errors.KindInternal, "radius: random salt")
	}
	salt := uint16(b[0])<<8 | uint16(b[1])
	salt |= 0x8000
	return salt, nil
}
