package envelope

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
)

// Signer produces wire signatures for locally authored envelopes.
// Implemented by DerivedSigner (the v1 scheme). A future schema version
// replaces it with a real asymmetric signer over the same canonical bytes.
type Signer interface {
	// PublicKey returns the author's 64-hex public key.
	PublicKey() string

	// Sign signs a payload hash, returning the 64-hex wire signature.
	Sign(payloadHash string) (string, error)
}

// DerivedSigner implements the v1 derived signature scheme. See
// DeriveSignature for the security limitation of this scheme.
type DerivedSigner struct {
	pubKey string
}

// NewDerivedSigner creates a signer for the given 64-hex public key.
func NewDerivedSigner(pubKeyHex string) (*DerivedSigner, error) {
	if !isHex64(pubKeyHex) {
		return nil, fmt.Errorf("author pubkey must be 64 hex chars, got %q", pubKeyHex)
	}
	return &DerivedSigner{pubKey: strings.ToLower(pubKeyHex)}, nil
}

// PublicKey returns the signer's public key.
func (s *DerivedSigner) PublicKey() string {
	return s.pubKey
}

// Sign returns the derived signature for the payload hash.
func (s *DerivedSigner) Sign(payloadHash string) (string, error) {
	if !isHex64(payloadHash) {
		return "", fmt.Errorf("payload hash must be 64 hex chars, got %q", payloadHash)
	}
	return DeriveSignature(payloadHash, s.pubKey), nil
}

// GenerateKey returns a fresh random 64-hex author key.
// Used by node initialization; key persistence is the caller's concern.
func GenerateKey() (string, error) {
	var key [32]byte
	if _, err := rand.Read(key[:]); err != nil {
		return "", fmt.Errorf("generate author key: %w", err)
	}
	return hex.EncodeToString(key[:]), nil
}
