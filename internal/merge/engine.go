// Package merge folds protocol-valid, policy-valid envelopes into the
// entity store with idempotent, order-insensitive convergence.
//
// Convergence rules, per accepted envelope:
//
//   - create: first-seen wins, replays and duplicate creates no-op
//   - update: applied iff the payload's updated_at is strictly greater than
//     the entity's current updatedAt, and the winning payload replaces the
//     attrs wholesale; equal or smaller is a stale no-op, accepted but
//     unapplied
//   - approval/settlement: append-only, deduplicated by payload hash
//
// Applying the same set of envelopes in any order, any number of times,
// yields the same final entity state. The comparator is the author-supplied
// application timestamp, not the Lamport clock and not arrival order: the
// Lamport clock orders one author's history but does not total-order across
// authors.
package merge

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/selamnet/selam/internal/entity"
	"github.com/selamnet/selam/internal/envelope"
	"github.com/selamnet/selam/internal/event"
	"github.com/selamnet/selam/internal/fault"
	"github.com/selamnet/selam/internal/store"
)

// Engine applies accepted envelopes to the store. It must only be called
// under the core's serialized mutation boundary.
type Engine struct {
	store  *store.Store
	logger *slog.Logger
}

// New creates a merge engine over the given store.
func New(s *store.Store, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{store: s, logger: logger}
}

// Result reports the outcome of one envelope application.
type Result struct {
	// Entity is the post-application projection, nil when the target does
	// not exist (rejected references).
	Entity *entity.Entity

	// Mutated reports whether store state actually changed. Stale updates
	// and replays are accepted with Mutated=false.
	Mutated bool
}

// Apply folds one envelope into the store. The envelope must already have
// passed codec validation and policy validation. Returns a failure for
// rule-level rejections (unknown references, malformed timestamps); such
// envelopes produce no entity mutation.
func (m *Engine) Apply(ctx context.Context, env envelope.Envelope) (Result, *fault.Failure, error) {
	t := event.Type(env.EventType)
	kind := event.KindOf(t)
	if kind == "" {
		return Result{}, fault.Protocol("unknown-event-type").With("event_type", env.EventType), nil
	}
	if got := event.EntityKind(env.EntityID); got != kind {
		return Result{}, fault.Policy("entity-kind-mismatch").
			With("entity_id", env.EntityID).
			With("event_type", env.EventType), nil
	}

	switch event.ClassOf(t) {
	case event.ClassCreate:
		return m.applyCreate(ctx, env, entity.Kind(kind))
	case event.ClassUpdate:
		return m.applyUpdate(ctx, env, entity.Kind(kind))
	case event.ClassAppend:
		return m.applyAppend(ctx, env, entity.Kind(kind))
	}
	return Result{}, fault.Protocol("unknown-event-type").With("event_type", env.EventType), nil
}

func (m *Engine) applyCreate(ctx context.Context, env envelope.Envelope, kind entity.Kind) (Result, *fault.Failure, error) {
	existing, ok, err := m.store.GetEntity(ctx, env.EntityID)
	if err != nil {
		return Result{}, nil, err
	}
	if ok {
		// Duplicate or replayed create: a no-op, not an error.
		m.logger.Debug("duplicate create ignored",
			"entity_id", env.EntityID, "event_id", env.EventID)
		return Result{Entity: existing, Mutated: false}, nil, nil
	}

	// The application timestamp comes from the payload; the envelope's own
	// created_at is the advisory fallback for payloads that omit both keys.
	appliedAt, tsErr := event.AppliedAt(env.Payload)
	if tsErr != nil {
		appliedAt = env.CreatedAt
	}

	e := entity.New(env.EntityID, kind)
	for k, v := range env.Payload {
		e.Attrs[k] = v
	}
	e.CreatedAt = appliedAt
	e.UpdatedAt = appliedAt
	if kind == entity.KindPromise {
		e.Status = entity.StatusPromiseOpen
	}
	syncStatusFromAttrs(e)

	if err := m.store.PutEntity(ctx, e); err != nil {
		return Result{}, nil, err
	}
	m.logger.Info("entity created",
		"entity_id", e.ID, "kind", string(kind), "event_id", env.EventID)
	return Result{Entity: e, Mutated: true}, nil, nil
}

func (m *Engine) applyUpdate(ctx context.Context, env envelope.Envelope, kind entity.Kind) (Result, *fault.Failure, error) {
	e, ok, err := m.store.GetEntity(ctx, env.EntityID)
	if err != nil {
		return Result{}, nil, err
	}
	if !ok {
		return Result{}, unknownEntity(kind, env.EntityID), nil
	}

	appliedAt, tsErr := event.AppliedAt(env.Payload)
	if tsErr != nil {
		return Result{}, fault.Policy("invalid-updated-at").
			With("entity_id", env.EntityID).
			With("detail", tsErr.Error()), nil
	}

	// Strictly-greater comparison: equal timestamps keep the current state
	// so replays of the winning envelope stay no-ops.
	if appliedAt <= e.UpdatedAt {
		m.logger.Debug("stale update ignored",
			"entity_id", e.ID, "event_id", env.EventID,
			"update_at", appliedAt, "entity_at", e.UpdatedAt)
		return Result{Entity: e, Mutated: false}, nil, nil
	}

	// A winning update supersedes the entity's attrs wholesale. The entity
	// carries one updatedAt, so folding keys from losing updates would make
	// the final key set depend on arrival order; replacing keeps the state a
	// function of the max-timestamp payload alone.
	e.Attrs = env.ClonePayload()
	e.Status = ""
	e.UpdatedAt = appliedAt
	syncStatusFromAttrs(e)

	if err := m.store.PutEntity(ctx, e); err != nil {
		return Result{}, nil, err
	}
	m.logger.Info("entity updated",
		"entity_id", e.ID, "event_id", env.EventID, "updated_at", appliedAt)
	return Result{Entity: e, Mutated: true}, nil, nil
}

func (m *Engine) applyAppend(ctx context.Context, env envelope.Envelope, kind entity.Kind) (Result, *fault.Failure, error) {
	e, ok, err := m.store.GetEntity(ctx, env.EntityID)
	if err != nil {
		return Result{}, nil, err
	}
	if !ok {
		return Result{}, unknownEntity(kind, env.EntityID), nil
	}

	inserted, err := m.store.AddAnnotation(ctx, entity.Annotation{
		EntityID:     env.EntityID,
		PayloadHash:  env.PayloadHash,
		EventType:    env.EventType,
		AuthorPubkey: env.AuthorPubkey,
		Payload:      env.ClonePayload(),
	})
	if err != nil {
		return Result{}, nil, err
	}
	if !inserted {
		m.logger.Debug("annotation already recorded, skipping (idempotent)",
			"entity_id", e.ID, "payload_hash", env.PayloadHash)
		return Result{Entity: e, Mutated: false}, nil, nil
	}

	mutated := false
	if next, ok := promiseStatusFor(event.Type(env.EventType)); ok {
		// Status moves by precedence, not arrival order, so concurrent
		// transitions converge: settled > rejected > accepted > open.
		if promiseStatusRank(next) > promiseStatusRank(e.Status) {
			e.Status = next
			mutated = true
			if err := m.store.PutEntity(ctx, e); err != nil {
				return Result{}, nil, err
			}
		}
	}

	m.logger.Info("annotation recorded",
		"entity_id", e.ID, "event_type", env.EventType, "event_id", env.EventID)
	return Result{Entity: e, Mutated: mutated || inserted}, nil, nil
}

func unknownEntity(kind entity.Kind, entityID string) *fault.Failure {
	return fault.Policy(fmt.Sprintf("unknown-%s", kind)).With("entity_id", entityID)
}

// syncStatusFromAttrs mirrors the tombstone fields from folded attrs.
// Entities are never physically deleted; hiding is a status flip.
func syncStatusFromAttrs(e *entity.Entity) {
	if status, ok := e.Attrs["status"]; ok && status != "" {
		e.Status = status
	}
	e.Visible = e.Status != entity.StatusHidden
}

func promiseStatusFor(t event.Type) (string, bool) {
	switch t {
	case event.PromiseAccept:
		return entity.StatusPromiseAccepted, true
	case event.PromiseReject:
		return entity.StatusPromiseRejected, true
	case event.PromiseSettle:
		return entity.StatusPromiseSettled, true
	}
	return "", false
}

func promiseStatusRank(status string) int {
	switch status {
	case entity.StatusPromiseSettled:
		return 3
	case entity.StatusPromiseRejected:
		return 2
	case entity.StatusPromiseAccepted:
		return 1
	}
	return 0
}
