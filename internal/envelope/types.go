// Package envelope implements the signed mutation-event wire protocol:
// canonical payload encoding, hashing, signing, and envelope validation.
//
// An Envelope is the immutable unit of mutation intent exchanged between
// devices. It binds a string/string payload to its author via a payload hash
// over the canonical encoding and a signature over (payloadHash, author).
package envelope

import "encoding/json"

// SchemaVersion is the single supported protocol version. Envelopes carrying
// any other version are rejected before further inspection.
const SchemaVersion = "1.0"

// Envelope is the signed, hashed record of one mutation. Immutable once
// created. Field names on the wire are fixed by the protocol.
type Envelope struct {
	SchemaVersion string `json:"schema_version"`

	// EventID is a random unique identifier, used purely for envelope
	// deduplication and logging, never for conflict resolution.
	EventID string `json:"event_id"`

	EventType string `json:"event_type"`

	// EntityID is the stable identifier of the mutated entity, namespaced
	// by kind, e.g. "pin:<id>".
	EntityID string `json:"entity_id"`

	// AuthorPubkey is the 64-hex public key of the signer. An author may
	// mutate only entities they created, except for explicitly multi-author
	// event types such as approvals.
	AuthorPubkey string `json:"author_pubkey"`

	// CreatedAt is author wall-clock seconds. Advisory only; clocks are
	// untrusted and this value never breaks ties.
	CreatedAt int64 `json:"created_at"`

	// LamportClock is the author-local monotonic counter. It orders an
	// author's own history but is not the cross-device conflict tie-break.
	LamportClock uint64 `json:"lamport_clock"`

	// ExpiresAt, when non-zero, rejects the envelope once now > ExpiresAt.
	ExpiresAt int64 `json:"expires_at,omitempty"`

	PayloadHash string `json:"payload_hash"`
	Signature   string `json:"signature"`

	Payload map[string]string `json:"payload"`
}

// MarshalWire serializes the envelope to its JSON wire form.
func (e Envelope) MarshalWire() ([]byte, error) {
	return json.Marshal(e)
}

// UnmarshalWire parses an envelope from its JSON wire form.
func UnmarshalWire(data []byte) (Envelope, error) {
	var e Envelope
	if err := json.Unmarshal(data, &e); err != nil {
		return Envelope{}, err
	}
	return e, nil
}

// ClonePayload returns a defensive copy of the payload map.
func (e Envelope) ClonePayload() map[string]string {
	out := make(map[string]string, len(e.Payload))
	for k, v := range e.Payload {
		out[k] = v
	}
	return out
}
