// Package transport implements the frame codec shared with the external
// mesh/relay layer: a fixed literal token followed by the base64url encoding
// of the JSON envelope, plus routing metadata tags that must match the
// decoded envelope.
//
// The transport itself (radio, relay, retries) lives outside this module;
// only the framing of its content strings is specified here.
package transport

import (
	"encoding/base64"
	"strings"

	"github.com/selamnet/selam/internal/envelope"
	"github.com/selamnet/selam/internal/fault"
)

// FrameToken is the literal prefix identifying envelope frames on the wire.
const FrameToken = "selamenv1:"

// Tags is the routing metadata accompanying a frame. The transport uses it
// to route without decoding; the core cross-checks it against the decoded
// envelope.
type Tags struct {
	EventID   string
	EventType string
}

// Encode serializes an envelope into its frame content string and the
// routing tags the transport attaches alongside it.
func Encode(env envelope.Envelope) (string, Tags, error) {
	raw, err := env.MarshalWire()
	if err != nil {
		return "", Tags{}, err
	}
	content := FrameToken + base64.RawURLEncoding.EncodeToString(raw)
	return content, Tags{EventID: env.EventID, EventType: env.EventType}, nil
}

// Decode parses a frame content string and cross-checks the metadata tags.
//
// Malformed frames (missing token, bad base64, bad JSON) are protocol
// failures. A tag/envelope mismatch is a transport-level rejection: the
// envelope itself may be fine, but the carrier lied about what it routed.
func Decode(content string, tags Tags) (envelope.Envelope, *fault.Failure) {
	body, ok := strings.CutPrefix(content, FrameToken)
	if !ok {
		return envelope.Envelope{}, fault.Protocol("bad-framing")
	}

	raw, err := base64.RawURLEncoding.DecodeString(body)
	if err != nil {
		return envelope.Envelope{}, fault.Protocol("bad-framing").With("detail", err.Error())
	}

	env, err := envelope.UnmarshalWire(raw)
	if err != nil {
		return envelope.Envelope{}, fault.Protocol("bad-framing").With("detail", err.Error())
	}

	if tags.EventID != "" && tags.EventID != env.EventID {
		return envelope.Envelope{}, fault.Transport("event-id-mismatch").
			With("tag", tags.EventID).
			With("envelope", env.EventID)
	}
	if tags.EventType != "" && tags.EventType != env.EventType {
		return envelope.Envelope{}, fault.Transport("event-type-mismatch").
			With("tag", tags.EventType).
			With("envelope", env.EventType)
	}

	return env, nil
}
