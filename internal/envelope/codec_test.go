package envelope

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/selamnet/selam/internal/fault"
)

func testCodec(t *testing.T) *Codec {
	t.Helper()
	signer, err := NewDerivedSigner(strings.Repeat("ab", 32))
	require.NoError(t, err)
	return NewCodec(signer)
}

func buildValid(t *testing.T) Envelope {
	t.Helper()
	env, err := testCodec(t).Build(BuildInput{
		EventType:    "pin-create",
		EntityID:     "pin:semay",
		EventID:      "evt-001",
		CreatedAt:    1700000000,
		LamportClock: 7,
		Payload:      map[string]string{"name": "Semay Coffee", "lat": "15.3229", "lon": "38.9251"},
	})
	require.NoError(t, err)
	return env
}

func TestBuild_ProducesValidEnvelope(t *testing.T) {
	env := buildValid(t)

	require.Equal(t, SchemaVersion, env.SchemaVersion)
	require.Equal(t, strings.Repeat("ab", 32), env.AuthorPubkey)
	require.Equal(t, PayloadHash(env.Payload), env.PayloadHash)
	require.Nil(t, Validate(env, 1700000001))
}

func TestBuild_CopiesPayload(t *testing.T) {
	payload := map[string]string{"name": "Semay Coffee"}
	env, err := testCodec(t).Build(BuildInput{
		EventType: "pin-create",
		EntityID:  "pin:semay",
		EventID:   "evt-001",
		Payload:   payload,
	})
	require.NoError(t, err)

	payload["name"] = "altered"
	require.Equal(t, "Semay Coffee", env.Payload["name"])
}

func TestValidate_ChecksRunInOrder(t *testing.T) {
	now := int64(1700000001)

	tests := []struct {
		name       string
		corrupt    func(*Envelope)
		wantClass  fault.Class
		wantReason string
	}{
		{
			name:       "schema version wins over everything",
			corrupt:    func(e *Envelope) { e.SchemaVersion = "2.0"; e.Payload["name"] = "tampered" },
			wantClass:  fault.ClassProtocol,
			wantReason: "schema-version-mismatch",
		},
		{
			name:       "bad author pubkey hex",
			corrupt:    func(e *Envelope) { e.AuthorPubkey = "not-hex" },
			wantClass:  fault.ClassProtocol,
			wantReason: "invalid-author-pubkey",
		},
		{
			name:       "bad payload hash hex",
			corrupt:    func(e *Envelope) { e.PayloadHash = strings.Repeat("z", 64) },
			wantClass:  fault.ClassProtocol,
			wantReason: "invalid-payload-hash",
		},
		{
			name:       "bad signature hex",
			corrupt:    func(e *Envelope) { e.Signature = e.Signature[:60] },
			wantClass:  fault.ClassProtocol,
			wantReason: "invalid-signature",
		},
		{
			name:       "expired envelope",
			corrupt:    func(e *Envelope) { e.ExpiresAt = now - 100 },
			wantClass:  fault.ClassPolicy,
			wantReason: "envelope-expired",
		},
		{
			name:       "tampered payload",
			corrupt:    func(e *Envelope) { e.Payload["name"] = "tampered" },
			wantClass:  fault.ClassProtocol,
			wantReason: "payload-hash-mismatch",
		},
		{
			name: "signature from wrong author",
			corrupt: func(e *Envelope) {
				e.Signature = DeriveSignature(e.PayloadHash, strings.Repeat("cd", 32))
			},
			wantClass:  fault.ClassProtocol,
			wantReason: "signature-mismatch",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := buildValid(t)
			tt.corrupt(&env)

			failure := Validate(env, now)
			require.NotNil(t, failure)
			require.Equal(t, tt.wantClass, failure.Class)
			require.Equal(t, tt.wantReason, failure.Reason)
		})
	}
}

func TestValidate_AcceptsUppercaseHex(t *testing.T) {
	env := buildValid(t)
	env.PayloadHash = strings.ToUpper(env.PayloadHash)
	env.Signature = strings.ToUpper(env.Signature)

	require.Nil(t, Validate(env, 1700000001))
}

func TestValidate_ZeroExpiryNeverExpires(t *testing.T) {
	env := buildValid(t)
	env.ExpiresAt = 0

	require.Nil(t, Validate(env, 1<<40))
}

func TestValidate_ExpiryBoundary(t *testing.T) {
	env, err := testCodec(t).Build(BuildInput{
		EventType: "pin-create",
		EntityID:  "pin:semay",
		EventID:   "evt-002",
		CreatedAt: 1700000000,
		ExpiresAt: 1700000050,
		Payload:   map[string]string{"name": "Semay Coffee"},
	})
	require.NoError(t, err)

	// expires_at equal to now is still valid; only strictly past expires.
	require.Nil(t, Validate(env, 1700000050))
	failure := Validate(env, 1700000051)
	require.NotNil(t, failure)
	require.Equal(t, "envelope-expired", failure.Reason)
}

func TestGenerateKey(t *testing.T) {
	a, err := GenerateKey()
	require.NoError(t, err)
	b, err := GenerateKey()
	require.NoError(t, err)

	require.Len(t, a, 64)
	require.NotEqual(t, a, b)
	_, err = NewDerivedSigner(a)
	require.NoError(t, err)
}

func TestDerivedSigner_RejectsBadKeys(t *testing.T) {
	for _, key := range []string{"", "short", strings.Repeat("g", 64)} {
		if _, err := NewDerivedSigner(key); err == nil {
			t.Errorf("NewDerivedSigner(%q) accepted a bad key", key)
		}
	}
}

func TestWireRoundTrip(t *testing.T) {
	env := buildValid(t)

	data, err := env.MarshalWire()
	require.NoError(t, err)

	decoded, err := UnmarshalWire(data)
	require.NoError(t, err)
	require.Equal(t, env, decoded)
	require.Nil(t, Validate(decoded, 1700000001))
}
