package merge

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/selamnet/selam/internal/entity"
	"github.com/selamnet/selam/internal/envelope"
	"github.com/selamnet/selam/internal/event"
	"github.com/selamnet/selam/internal/store"
)

func testEngine(t *testing.T) (*Engine, *store.Store) {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "merge.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return New(s, nil), s
}

// env builds a minimal envelope for merge tests. The merge engine trusts
// that codec validation already ran, so signatures can be synthetic.
func env(eventID string, typ event.Type, entityID string, payload map[string]string) envelope.Envelope {
	author := strings.Repeat("ab", 32)
	hash := envelope.PayloadHash(payload)
	return envelope.Envelope{
		SchemaVersion: envelope.SchemaVersion,
		EventID:       eventID,
		EventType:     string(typ),
		EntityID:      entityID,
		AuthorPubkey:  author,
		CreatedAt:     1700000000,
		PayloadHash:   hash,
		Signature:     envelope.DeriveSignature(hash, author),
		Payload:       payload,
	}
}

func TestApply_CreateAndReplay(t *testing.T) {
	m, _ := testEngine(t)
	ctx := context.Background()

	create := env("evt-1", event.PinCreate, "pin:semay", map[string]string{
		"name": "Semay Coffee", "lat": "15.3229", "lon": "38.9251", "created_at": "1700000000",
	})

	res, failure, err := m.Apply(ctx, create)
	require.NoError(t, err)
	require.Nil(t, failure)
	require.True(t, res.Mutated)
	require.Equal(t, "Semay Coffee", res.Entity.Attrs["name"])
	require.Equal(t, int64(1700000000), res.Entity.CreatedAt)

	// Replay is accepted but mutates nothing.
	res, failure, err = m.Apply(ctx, create)
	require.NoError(t, err)
	require.Nil(t, failure)
	require.False(t, res.Mutated)
	require.Equal(t, "Semay Coffee", res.Entity.Attrs["name"])
}

func TestApply_FirstCreateWins(t *testing.T) {
	m, _ := testEngine(t)
	ctx := context.Background()

	first := env("evt-1", event.PinCreate, "pin:semay", map[string]string{
		"name": "Semay Coffee", "created_at": "1700000000",
	})
	second := env("evt-2", event.PinCreate, "pin:semay", map[string]string{
		"name": "Impostor", "created_at": "1700009999",
	})

	_, failure, err := m.Apply(ctx, first)
	require.NoError(t, err)
	require.Nil(t, failure)

	res, failure, err := m.Apply(ctx, second)
	require.NoError(t, err)
	require.Nil(t, failure)
	require.False(t, res.Mutated)
	require.Equal(t, "Semay Coffee", res.Entity.Attrs["name"])
}

func TestApply_UpdateLastWriterWins(t *testing.T) {
	m, _ := testEngine(t)
	ctx := context.Background()

	_, failure, err := m.Apply(ctx, env("evt-1", event.PinCreate, "pin:semay", map[string]string{
		"name": "Semay Coffee", "created_at": "1700000000",
	}))
	require.NoError(t, err)
	require.Nil(t, failure)

	// Newer update applies.
	res, failure, err := m.Apply(ctx, env("evt-2", event.PinUpdate, "pin:semay", map[string]string{
		"name": "Semay Coffee House", "updated_at": "1700000100",
	}))
	require.NoError(t, err)
	require.Nil(t, failure)
	require.True(t, res.Mutated)
	require.Equal(t, int64(1700000100), res.Entity.UpdatedAt)

	// Older concurrent update arrives late: stale no-op, not a failure.
	res, failure, err = m.Apply(ctx, env("evt-3", event.PinUpdate, "pin:semay", map[string]string{
		"name": "Old Name", "updated_at": "1700000050",
	}))
	require.NoError(t, err)
	require.Nil(t, failure)
	require.False(t, res.Mutated)
	require.Equal(t, "Semay Coffee House", res.Entity.Attrs["name"])

	// Equal timestamp is also stale: strictly-greater comparator.
	res, failure, err = m.Apply(ctx, env("evt-4", event.PinUpdate, "pin:semay", map[string]string{
		"name": "Tie Breaker", "updated_at": "1700000100",
	}))
	require.NoError(t, err)
	require.Nil(t, failure)
	require.False(t, res.Mutated)
	require.Equal(t, "Semay Coffee House", res.Entity.Attrs["name"])
}

func TestApply_UpdateRejections(t *testing.T) {
	m, _ := testEngine(t)
	ctx := context.Background()

	// Unknown target.
	_, failure, err := m.Apply(ctx, env("evt-1", event.PinUpdate, "pin:ghost", map[string]string{
		"updated_at": "1700000100",
	}))
	require.NoError(t, err)
	require.NotNil(t, failure)
	require.Equal(t, "unknown-pin", failure.Reason)

	// Malformed timestamp.
	_, failure, err = m.Apply(ctx, env("evt-2", event.PinCreate, "pin:semay", map[string]string{
		"name": "Semay Coffee", "created_at": "1700000000",
	}))
	require.NoError(t, err)
	require.Nil(t, failure)
	_, failure, err = m.Apply(ctx, env("evt-3", event.PinUpdate, "pin:semay", map[string]string{
		"updated_at": "yesterday",
	}))
	require.NoError(t, err)
	require.NotNil(t, failure)
	require.Equal(t, "invalid-updated-at", failure.Reason)
}

func TestApply_EntityKindMismatch(t *testing.T) {
	m, _ := testEngine(t)

	_, failure, err := m.Apply(context.Background(),
		env("evt-1", event.PinCreate, "business:semay", map[string]string{"name": "x"}))
	require.NoError(t, err)
	require.NotNil(t, failure)
	require.Equal(t, "entity-kind-mismatch", failure.Reason)
}

func TestApply_AnnotationsAppendOnly(t *testing.T) {
	m, s := testEngine(t)
	ctx := context.Background()

	_, failure, err := m.Apply(ctx, env("evt-1", event.PinCreate, "pin:semay", map[string]string{
		"name": "Semay Coffee", "created_at": "1700000000",
	}))
	require.NoError(t, err)
	require.Nil(t, failure)

	approval := env("evt-2", event.PinApproval, "pin:semay", map[string]string{
		"pin_id": "semay", "note": "confirmed on site",
	})
	res, failure, err := m.Apply(ctx, approval)
	require.NoError(t, err)
	require.Nil(t, failure)
	require.True(t, res.Mutated)

	// Replay with a different event ID but the same payload hash dedupes.
	replay := approval
	replay.EventID = "evt-3"
	res, failure, err = m.Apply(ctx, replay)
	require.NoError(t, err)
	require.Nil(t, failure)
	require.False(t, res.Mutated)

	anns, err := s.Annotations(ctx, "pin:semay")
	require.NoError(t, err)
	require.Len(t, anns, 1)

	// Annotations never advance the update timestamp.
	e, found, err := s.GetEntity(ctx, "pin:semay")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, int64(1700000000), e.UpdatedAt)
}

func TestApply_PromiseStatusPrecedence(t *testing.T) {
	m, _ := testEngine(t)
	ctx := context.Background()

	_, failure, err := m.Apply(ctx, env("evt-1", event.PromiseCreate, "promise:p-1", map[string]string{
		"amount": "50", "currency": "ETB",
		"to_pubkey":  strings.Repeat("cd", 32),
		"created_at": "1700000000",
	}))
	require.NoError(t, err)
	require.Nil(t, failure)

	res, failure, err := m.Apply(ctx, env("evt-2", event.PromiseSettle, "promise:p-1", map[string]string{
		"promise_id": "p-1", "note": "paid in cash",
	}))
	require.NoError(t, err)
	require.Nil(t, failure)
	require.Equal(t, entity.StatusPromiseSettled, res.Entity.Status)

	// A late accept never demotes a settled promise.
	res, failure, err = m.Apply(ctx, env("evt-3", event.PromiseAccept, "promise:p-1", map[string]string{
		"promise_id": "p-1",
	}))
	require.NoError(t, err)
	require.Nil(t, failure)
	require.Equal(t, entity.StatusPromiseSettled, res.Entity.Status)
}

func TestApply_HiddenStatusTombstone(t *testing.T) {
	m, _ := testEngine(t)
	ctx := context.Background()

	_, failure, err := m.Apply(ctx, env("evt-1", event.PinCreate, "pin:semay", map[string]string{
		"name": "Semay Coffee", "created_at": "1700000000",
	}))
	require.NoError(t, err)
	require.Nil(t, failure)

	res, failure, err := m.Apply(ctx, env("evt-2", event.PinUpdate, "pin:semay", map[string]string{
		"status": "hidden", "updated_at": "1700000100",
	}))
	require.NoError(t, err)
	require.Nil(t, failure)
	require.Equal(t, entity.StatusHidden, res.Entity.Status)
	require.False(t, res.Entity.Visible)
}

// TestApply_PermutationConvergence applies a fixed envelope set in every
// order. Applying the set repeatedly until no pass mutates must land every
// permutation on identical final state.
func TestApply_PermutationConvergence(t *testing.T) {
	envelopes := []envelope.Envelope{
		env("evt-1", event.PinCreate, "pin:semay", map[string]string{
			"name": "Semay Coffee", "created_at": "1700000000",
		}),
		// The winning update replaces the attrs wholesale, so every
		// permutation lands on evt-2's payload.
		env("evt-2", event.PinUpdate, "pin:semay", map[string]string{
			"name": "Semay Coffee House", "description": "best buna", "updated_at": "1700000200",
		}),
		env("evt-3", event.PinUpdate, "pin:semay", map[string]string{
			"name": "Semay Cafe", "description": "coffee", "updated_at": "1700000100",
		}),
		env("evt-4", event.PinApproval, "pin:semay", map[string]string{
			"pin_id": "semay",
		}),
	}

	type finalState struct {
		name, description string
		updatedAt         int64
		annotations       int
	}
	var states []finalState

	for _, perm := range permutations(len(envelopes)) {
		m, s := testEngine(t)
		ctx := context.Background()

		// Fold to fixpoint: an unreliable transport redelivers rejected
		// envelopes until their dependencies exist.
		for pass := 0; pass < len(envelopes); pass++ {
			changed := false
			for _, i := range perm {
				res, _, err := m.Apply(ctx, envelopes[i])
				require.NoError(t, err)
				changed = changed || res.Mutated
			}
			if !changed {
				break
			}
		}

		e, found, err := s.GetEntity(ctx, "pin:semay")
		require.NoError(t, err)
		require.True(t, found, "permutation %v never materialized the entity", perm)
		anns, err := s.Annotations(ctx, "pin:semay")
		require.NoError(t, err)

		states = append(states, finalState{
			name:        e.Attrs["name"],
			description: e.Attrs["description"],
			updatedAt:   e.UpdatedAt,
			annotations: len(anns),
		})
	}

	want := finalState{
		name:        "Semay Coffee House",
		description: "best buna",
		updatedAt:   1700000200,
		annotations: 1,
	}
	for i, st := range states {
		require.Equal(t, want, st, fmt.Sprintf("permutation %d diverged", i))
	}
}

// TestApply_DisjointKeyUpdateConvergence crosses updates with disjoint key
// sets. A losing update's keys must not survive in one arrival order and
// vanish in another: the winner's payload is the final attrs either way.
func TestApply_DisjointKeyUpdateConvergence(t *testing.T) {
	create := env("evt-1", event.PinCreate, "pin:semay", map[string]string{
		"name": "origin", "created_at": "1700000100",
	})
	descOnly := env("evt-2", event.PinUpdate, "pin:semay", map[string]string{
		"description": "old", "updated_at": "1700000200",
	})
	nameOnly := env("evt-3", event.PinUpdate, "pin:semay", map[string]string{
		"name": "renamed", "updated_at": "1700000300",
	})

	orders := [][]envelope.Envelope{
		{create, descOnly, nameOnly},
		{create, nameOnly, descOnly},
	}
	for i, order := range orders {
		m, s := testEngine(t)
		ctx := context.Background()
		for _, envlp := range order {
			_, failure, err := m.Apply(ctx, envlp)
			require.NoError(t, err)
			require.Nil(t, failure)
		}

		e, found, err := s.GetEntity(ctx, "pin:semay")
		require.NoError(t, err)
		require.True(t, found)
		require.Equal(t, "renamed", e.Attrs["name"], "order %d", i)
		_, hasDesc := e.Attrs["description"]
		require.False(t, hasDesc, "order %d kept a superseded key", i)
		require.Equal(t, int64(1700000300), e.UpdatedAt, "order %d", i)
	}
}

// permutations returns every ordering of [0, n).
func permutations(n int) [][]int {
	base := make([]int, n)
	for i := range base {
		base[i] = i
	}
	var out [][]int
	var rec func([]int, int)
	rec = func(cur []int, k int) {
		if k == len(cur) {
			out = append(out, append([]int(nil), cur...))
			return
		}
		for i := k; i < len(cur); i++ {
			cur[k], cur[i] = cur[i], cur[k]
			rec(cur, k+1)
			cur[k], cur[i] = cur[i], cur[k]
		}
	}
	rec(base, 0)
	return out
}
