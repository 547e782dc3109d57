// Package kdf implements the KMAC256-based extract-and-expand key
// derivation function of spec.md §4.2 (C3), and the kind-specific
// subkey derivation built on top of it.
package kdf

import "golang.org/x/crypto/sha3"

// maxOutputLen bounds a single KMAC256 call's output, matching the
// reference KDF's use of fixed-size derived material everywhere it is
// invoked (32 or 48 bytes).
const maxOutputLen = 64

// Extract implements the NIST SP 800-56C extract step:
// KMAC256(salt, secret, |out|, custom).
func Extract(secret, salt, custom []byte, outLen int) []byte {
	return kmac256(salt, secret, custom, outLen)
}

// Expand implements the NIST SP 800-108 expand step:
// KMAC256(key, salt, |out|, custom).
func Expand(key, salt, custom []byte, outLen int) []byte {
	return kmac256(key, salt, custom, outLen)
}

// kmac256 computes KMAC256(key, data, outLen, custom).
func kmac256(key, data, custom []byte, outLen int) []byte {
	if outLen <= 0 || outLen > maxOutputLen {
		panic("kdf: invalid output length")
	}
	h := sha3.NewKMAC256(key, outLen, custom)
	_, _ = h.Write(data)
	out := make([]byte, outLen)
	_, _ = h.Read(out)
	return out
}
