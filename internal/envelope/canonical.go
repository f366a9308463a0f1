package envelope

import (
	"bytes"
	"encoding/json"
	"sort"

	"golang.org/x/text/unicode/norm"
)

// EncodeCanonical produces the canonical byte encoding of a payload.
// CRITICAL: This is the ONLY serialization that may feed the payload hash.
//
// Guarantees:
//  1. Keys are sorted lexicographically by byte order
//  2. No HTML escaping (< > & are NOT escaped)
//  3. Strings are NFC normalized at the serialization boundary
//  4. Equal payloads (as mappings) produce byte-identical output,
//     regardless of insertion order
//
// The input is never mutated. A nil payload encodes as "{}".
func EncodeCanonical(payload map[string]string) []byte {
	keys := make([]string, 0, len(payload))
	for k := range payload {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		buf.Write(encodeCanonicalString(k))
		buf.WriteByte(':')
		buf.Write(encodeCanonicalString(payload[k]))
	}
	buf.WriteByte('}')
	return buf.Bytes()
}

// encodeCanonicalString encodes one JSON string with NFC normalization and
// HTML escaping disabled. Only control characters, backslash, and quote are
// escaped, so equal strings always encode identically.
func encodeCanonicalString(s string) []byte {
	normalized := norm.NFC.String(s)

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	// Encoding a plain string cannot fail.
	_ = enc.Encode(normalized)

	// json.Encoder appends a trailing newline, remove it.
	out := buf.Bytes()
	if n := len(out); n > 0 && out[n-1] == '\n' {
		out = out[:n-1]
	}
	return out
}
