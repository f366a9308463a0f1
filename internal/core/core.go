// Package core wires the envelope codec, payload schemas, policy
// validators, merge engine, and publication state machine into the single
// serialized mutation boundary of the sync core.
//
// All external actors (UI-triggered local writes, inbound ingestion from the
// transport, share requests) go through one Core instance holding injected
// dependencies: store, signer, clock, ID generator. No operation blocks on
// I/O beyond the local database; persistence of already-validated data is
// synchronous and transmission belongs to the external transport layer.
package core

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/selamnet/selam/internal/entity"
	"github.com/selamnet/selam/internal/envelope"
	"github.com/selamnet/selam/internal/event"
	"github.com/selamnet/selam/internal/fault"
	"github.com/selamnet/selam/internal/merge"
	"github.com/selamnet/selam/internal/policy"
	"github.com/selamnet/selam/internal/publish"
	"github.com/selamnet/selam/internal/schema"
	"github.com/selamnet/selam/internal/store"
	"github.com/selamnet/selam/internal/transport"
)

// Core is the sync core facade. Mutations are serialized through an
// internal lock: envelope application and outbox maintenance are
// single-threaded with respect to each other.
type Core struct {
	mu      sync.Mutex
	store   *store.Store
	codec   *envelope.Codec
	schemas *schema.Registry
	merge   *merge.Engine
	pub     *publish.Machine
	lamport *LamportClock
	seq     int64
	ids     IDGenerator
	now     func() int64
	logger  *slog.Logger
}

// Option configures a Core.
type Option func(*Core)

// WithIDGenerator injects the event ID generator.
func WithIDGenerator(ids IDGenerator) Option {
	return func(c *Core) { c.ids = ids }
}

// WithLogger injects the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Core) { c.logger = logger }
}

// New builds a Core over an open store, resuming the Lamport clock and the
// local sequence counter from the envelope log.
//
// The wall-clock source is an explicit parameter rather than an implicit
// time.Now so the merge engine stays deterministic and testable; New
// refuses a nil clock.
func New(s *store.Store, signer envelope.Signer, now func() int64, opts ...Option) (*Core, error) {
	if now == nil {
		return nil, fmt.Errorf("core: nil clock")
	}

	schemas, err := schema.Load()
	if err != nil {
		return nil, fmt.Errorf("core: %w", err)
	}

	ctx := context.Background()
	maxLamport, err := s.MaxLamport(ctx)
	if err != nil {
		return nil, fmt.Errorf("core: %w", err)
	}
	maxSeq, err := s.MaxSeq(ctx)
	if err != nil {
		return nil, fmt.Errorf("core: %w", err)
	}

	c := &Core{
		store:   s,
		codec:   envelope.NewCodec(signer),
		schemas: schemas,
		lamport: NewLamportClockAt(maxLamport),
		seq:     maxSeq,
		ids:     UUIDv7Generator{},
		now:     now,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.merge = merge.New(s, c.logger)
	c.pub = publish.New(s, c.logger)
	return c, nil
}

// ApplyResult is the outcome of an ingestion attempt. Applied means the
// envelope was accepted into the log; a stale update is applied with no
// state change. Reason is set exactly when the envelope was not applied.
type ApplyResult struct {
	Applied bool
	Reason  string
	Entity  *entity.Entity
}

// ApplyLocal builds, signs, validates, and applies a locally authored
// mutation, then lets the publication machine re-review the entity if it is
// network-scoped. Returns the updated projection.
func (c *Core) ApplyLocal(ctx context.Context, eventType event.Type, entityID string, payload map[string]string) (*entity.Entity, error) {
	if !event.Known(eventType) {
		return nil, fmt.Errorf("apply local: unknown event type %q", eventType)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	env, err := c.codec.Build(envelope.BuildInput{
		EventType:    string(eventType),
		EntityID:     entityID,
		EventID:      c.ids.NewID(),
		CreatedAt:    c.now(),
		LamportClock: c.lamport.Next(),
		Payload:      payload,
	})
	if err != nil {
		return nil, fmt.Errorf("apply local: %w", err)
	}

	result, failure, err := c.ingest(ctx, env, store.OriginLocal)
	if err != nil {
		return nil, fmt.Errorf("apply local: %w", err)
	}
	if failure != nil {
		return nil, failure
	}

	if result.Mutated && result.Entity != nil {
		if err := c.pub.OnLocalEdit(ctx, result.Entity, c.nextSeq()); err != nil {
			return nil, fmt.Errorf("apply local: %w", err)
		}
	}
	return result.Entity, nil
}

// ApplyInbound runs the full decode, validate, policy, merge pipeline on a
// framed message from the transport. It never panics and always carries a
// classified reason when the envelope was not applied, regardless of how
// malformed the input is.
func (c *Core) ApplyInbound(ctx context.Context, content string, tags transport.Tags) ApplyResult {
	env, failure := transport.Decode(content, tags)
	if failure != nil {
		c.logger.Warn("inbound frame rejected", "reason", failure.Error())
		return ApplyResult{Applied: false, Reason: failure.Error()}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if failure := envelope.Validate(env, c.now()); failure != nil {
		c.logger.Warn("inbound envelope rejected",
			"event_id", env.EventID, "reason", failure.Error())
		return ApplyResult{Applied: false, Reason: failure.Error()}
	}

	// A valid peer stamp advances the local Lamport clock even when the
	// envelope is later rejected by policy: the author clearly produced it.
	c.lamport.Observe(env.LamportClock)

	result, failure, err := c.ingest(ctx, env, store.OriginInbound)
	if err != nil {
		// Local storage trouble, not the peer's fault; classified under
		// transport so callers can distinguish it from protocol rejects.
		c.logger.Error("inbound ingestion failed", "event_id", env.EventID, "error", err)
		return ApplyResult{Applied: false, Reason: fault.Transport("store-unavailable").Error()}
	}
	if failure != nil {
		c.logger.Warn("inbound envelope rejected",
			"event_id", env.EventID, "reason", failure.Error())
		return ApplyResult{Applied: false, Reason: failure.Error()}
	}

	return ApplyResult{Applied: true, Entity: result.Entity}
}

// ingest runs schema, policy, and merge for an already protocol-valid
// envelope, then records it in the append-only log. Callers hold c.mu.
func (c *Core) ingest(ctx context.Context, env envelope.Envelope, origin string) (merge.Result, *fault.Failure, error) {
	t := event.Type(env.EventType)
	if !event.Known(t) {
		return merge.Result{}, fault.Protocol("unknown-event-type").With("event_type", env.EventType), nil
	}

	if failure := c.schemas.Validate(t, env.Payload); failure != nil {
		return merge.Result{}, failure, nil
	}

	decoded, err := event.Decode(t, env.Payload)
	if err != nil {
		return merge.Result{}, fault.Protocol("unknown-event-type").With("event_type", env.EventType), nil
	}
	failure, err := policy.Validate(ctx, decoded, storeView{c.store})
	if err != nil {
		return merge.Result{}, nil, err
	}
	if failure != nil {
		return merge.Result{}, failure, nil
	}

	result, failure, err := c.merge.Apply(ctx, env)
	if err != nil || failure != nil {
		return merge.Result{}, failure, err
	}

	inserted, err := c.store.AppendEnvelope(ctx, env, origin, c.nextSeq())
	if err != nil {
		return merge.Result{}, nil, err
	}
	if !inserted {
		c.logger.Debug("envelope already in log (replay)",
			"event_id", env.EventID, "origin", origin)
	}
	return result, nil, nil
}

// RequestNetworkShare runs the quality validators for an entity and, on
// success, queues it for transmission. See publish.Machine for the state
// transitions.
func (c *Core) RequestNetworkShare(ctx context.Context, entityID string) (publish.ShareResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok, err := c.store.GetEntity(ctx, entityID)
	if err != nil {
		return publish.ShareResult{}, err
	}
	if !ok {
		return publish.ShareResult{Accepted: false, Reasons: []string{"unknown-entity"}}, nil
	}
	return c.pub.RequestNetworkShare(ctx, e, c.nextSeq())
}

// SetScope changes the share scope of an entity. Reverting to personal
// immediately removes any outbox entry and resets the state to local_only.
// Moving to network goes through RequestNetworkShare so the quality gates
// always run.
func (c *Core) SetScope(ctx context.Context, entityID string, scope entity.ShareScope) error {
	if scope == entity.ScopeNetwork {
		_, err := c.RequestNetworkShare(ctx, entityID)
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok, err := c.store.GetEntity(ctx, entityID)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("set scope: unknown entity %q", entityID)
	}
	return c.pub.SetScopePersonal(ctx, e)
}

// PendingOutbox returns the queued publications in enqueue order, for the
// transport layer to (re)transmit. Finite and restartable.
func (c *Core) PendingOutbox(ctx context.Context) ([]entity.OutboxEntry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.store.PendingOutbox(ctx)
}

// MarkPublished records a network acknowledgment for an entity.
func (c *Core) MarkPublished(ctx context.Context, entityID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok, err := c.store.GetEntity(ctx, entityID)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("mark published: unknown entity %q", entityID)
	}
	return c.pub.MarkPublished(ctx, e)
}

// MarkRejected records a moderation rejection from the network.
func (c *Core) MarkRejected(ctx context.Context, entityID string, reasons []string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok, err := c.store.GetEntity(ctx, entityID)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("mark rejected: unknown entity %q", entityID)
	}
	return c.pub.MarkRejected(ctx, e, reasons)
}

// RecordTransportFailure remembers a delivery failure reported by the
// transport collaborator as a non-retry state on the outbox entry.
func (c *Core) RecordTransportFailure(ctx context.Context, entityID, reason string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok, err := c.store.GetEntity(ctx, entityID)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("record transport failure: unknown entity %q", entityID)
	}
	return c.pub.RecordTransportFailure(ctx, e, reason)
}

// Entity returns the current projection for an entity ID.
func (c *Core) Entity(ctx context.Context, entityID string) (*entity.Entity, bool, error) {
	return c.store.GetEntity(ctx, entityID)
}

// Entities returns all projections of one kind.
func (c *Core) Entities(ctx context.Context, kind entity.Kind) ([]*entity.Entity, error) {
	return c.store.ListEntities(ctx, kind)
}

// Annotations returns the append-only annotations for an entity.
func (c *Core) Annotations(ctx context.Context, entityID string) ([]entity.Annotation, error) {
	return c.store.Annotations(ctx, entityID)
}

// EncodeFrame serializes an envelope from the log into its wire frame.
// Used by the transport layer when transmitting outbox entries.
func (c *Core) EncodeFrame(env envelope.Envelope) (string, transport.Tags, error) {
	return transport.Encode(env)
}

// Rebuild refolds the entity and annotation projections from the envelope
// log. Publication state (scope, publish state, quality reasons, outbox) is
// local-only and carried across the refold unchanged.
func (c *Core) Rebuild(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	publication, err := c.store.PublicationStates(ctx)
	if err != nil {
		return fmt.Errorf("rebuild: %w", err)
	}

	if err := c.store.ClearProjections(ctx); err != nil {
		return fmt.Errorf("rebuild: %w", err)
	}

	records, err := c.store.Envelopes(ctx)
	if err != nil {
		return fmt.Errorf("rebuild: %w", err)
	}

	for _, rec := range records {
		if _, failure, err := c.merge.Apply(ctx, rec.Envelope); err != nil {
			return fmt.Errorf("rebuild: event %s: %w", rec.Envelope.EventID, err)
		} else if failure != nil {
			// Logged envelopes were accepted once; a failure here means the
			// log was folded in a different order than acceptance. The fold
			// stays convergent, so skip and report.
			c.logger.Warn("replay skipped envelope",
				"event_id", rec.Envelope.EventID, "reason", failure.Error())
		}
	}

	for id, ps := range publication {
		e, ok, err := c.store.GetEntity(ctx, id)
		if err != nil {
			return fmt.Errorf("rebuild: %w", err)
		}
		if !ok {
			continue
		}
		e.ShareScope = ps.ShareScope
		e.PublishState = ps.PublishState
		e.QualityReasons = ps.QualityReasons
		if err := c.store.PutEntity(ctx, e); err != nil {
			return fmt.Errorf("rebuild: %w", err)
		}
	}

	c.logger.Info("projections rebuilt", "envelopes", len(records))
	return nil
}

// AuthorPubkey returns the local author key the core signs with.
func (c *Core) AuthorPubkey() string {
	return c.codec.Author()
}

// LogSize returns the number of envelopes in the append-only log.
func (c *Core) LogSize(ctx context.Context) (int64, error) {
	return c.store.CountEnvelopes(ctx)
}

func (c *Core) nextSeq() int64 {
	c.seq++
	return c.seq
}

// storeView adapts the store to the read-only view policy validators get.
type storeView struct {
	s *store.Store
}

func (v storeView) Get(ctx context.Context, entityID string) (*entity.Entity, bool, error) {
	return v.s.GetEntity(ctx, entityID)
}
