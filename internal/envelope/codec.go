package envelope

import (
	"fmt"
	"strings"

	"github.com/selamnet/selam/internal/fault"
)

// Codec builds and validates envelopes. Build signs with the configured
// signer; Validate works for envelopes from any author.
type Codec struct {
	signer Signer
}

// NewCodec creates a codec signing with the given signer.
func NewCodec(signer Signer) *Codec {
	return &Codec{signer: signer}
}

// Author returns the public key of the configured signer.
func (c *Codec) Author() string {
	return c.signer.PublicKey()
}

// BuildInput carries the caller-supplied fields for a new envelope.
// EventID and CreatedAt are injected so construction stays deterministic
// under test; no implicit "now" defaults.
type BuildInput struct {
	EventType    string
	EntityID     string
	EventID      string
	CreatedAt    int64
	LamportClock uint64
	ExpiresAt    int64 // zero means no expiry
	Payload      map[string]string
}

// Build computes the payload hash, signs it, and returns a fully populated
// envelope. Pure construction: no I/O, input payload is copied.
func (c *Codec) Build(in BuildInput) (Envelope, error) {
	payload := make(map[string]string, len(in.Payload))
	for k, v := range in.Payload {
		payload[k] = v
	}

	hash := PayloadHash(payload)
	sig, err := c.signer.Sign(hash)
	if err != nil {
		return Envelope{}, fmt.Errorf("build envelope: %w", err)
	}

	return Envelope{
		SchemaVersion: SchemaVersion,
		EventID:       in.EventID,
		EventType:     in.EventType,
		EntityID:      in.EntityID,
		AuthorPubkey:  c.signer.PublicKey(),
		CreatedAt:     in.CreatedAt,
		LamportClock:  in.LamportClock,
		ExpiresAt:     in.ExpiresAt,
		PayloadHash:   hash,
		Signature:     sig,
		Payload:       payload,
	}, nil
}

// Validate checks an envelope against the protocol. Checks run in a fixed
// order and the first failure wins:
//
//  1. schema version
//  2. hex format of author_pubkey, payload_hash, signature
//  3. expiry against now (seconds)
//  4. payload hash recomputation
//  5. signature recomputation (case-insensitive compare)
//
// Returns nil only if every check passes. Hash mismatch and signature
// mismatch are distinct failure reasons: a hash mismatch means the payload
// was altered, a signature mismatch means the binding to the author is bad.
func Validate(env Envelope, now int64) *fault.Failure {
	if env.SchemaVersion != SchemaVersion {
		return fault.Protocol("schema-version-mismatch").
			With("schema_version", env.SchemaVersion)
	}

	if !isHex64(env.AuthorPubkey) {
		return fault.Protocol("invalid-author-pubkey")
	}
	if !isHex64(env.PayloadHash) {
		return fault.Protocol("invalid-payload-hash")
	}
	if !isHex64(env.Signature) {
		return fault.Protocol("invalid-signature")
	}

	if env.ExpiresAt != 0 && env.ExpiresAt < now {
		return fault.Policy("envelope-expired").
			With("expires_at", fmt.Sprintf("%d", env.ExpiresAt))
	}

	if !strings.EqualFold(PayloadHash(env.Payload), env.PayloadHash) {
		return fault.Protocol("payload-hash-mismatch")
	}

	if !VerifySignature(env.PayloadHash, env.AuthorPubkey, env.Signature) {
		return fault.Protocol("signature-mismatch")
	}

	return nil
}
