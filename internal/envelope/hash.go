package envelope

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Domain prefix for the v1 derived signature. The version suffix enables
// future algorithm migration without ambiguity against old signatures.
const domainSignature = "selam/signature/v1"

// PayloadHash computes the 64-hex SHA-256 of the canonical payload encoding.
// Stable across devices: equal payloads always hash identically.
func PayloadHash(payload map[string]string) string {
	sum := sha256.Sum256(EncodeCanonical(payload))
	return hex.EncodeToString(sum[:])
}

// DeriveSignature computes the v1 wire signature binding payloadHash to
// authorPubkey: SHA256(domain + 0x00 + payloadHash + 0x00 + authorPubkey).
// The null separators prevent boundary ambiguity between the inputs.
//
// SECURITY: this is a one-way binding, not a public-key signature. It proves
// knowledge of the payload hash, not possession of a private key; anyone who
// observes the hash can forge it. It is kept as the v1 wire scheme for peer
// compatibility and is isolated behind Signer so a real asymmetric scheme
// (Ed25519/Schnorr) can replace it under a new schema version.
func DeriveSignature(payloadHash, authorPubkey string) string {
	h := sha256.New()
	h.Write([]byte(domainSignature))
	h.Write([]byte{0x00})
	h.Write([]byte(strings.ToLower(payloadHash)))
	h.Write([]byte{0x00})
	h.Write([]byte(strings.ToLower(authorPubkey)))
	return hex.EncodeToString(h.Sum(nil))
}

// VerifySignature checks sig against the expected derived signature.
// Comparison is case-insensitive: peers may emit upper- or lower-case hex.
func VerifySignature(payloadHash, authorPubkey, sig string) bool {
	return strings.EqualFold(sig, DeriveSignature(payloadHash, authorPubkey))
}

// isHex64 reports whether s is exactly 64 hexadecimal characters.
func isHex64(s string) bool {
	if len(s) != 64 {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= '0' && c <= '9':
		case c >= 'a' && c <= 'f':
		case c >= 'A' && c <= 'F':
		default:
			return false
		}
	}
	return true
}
