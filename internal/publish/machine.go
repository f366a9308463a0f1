// Package publish implements the publication state machine that gates what
// is shared onto the network, and maintains the outbox of pending
// publications.
//
// States: local_only -> pending_review -> {published, rejected}, with an
// orthogonal personal/network share scope. An entity is never shared without
// an explicit local action.
package publish

import (
	"context"
	"log/slog"

	"github.com/selamnet/selam/internal/entity"
	"github.com/selamnet/selam/internal/fault"
	"github.com/selamnet/selam/internal/policy"
	"github.com/selamnet/selam/internal/store"
)

// Machine drives publication transitions. Like the merge engine, it must
// only be called under the core's serialized mutation boundary.
type Machine struct {
	store  *store.Store
	logger *slog.Logger
}

// New creates a publication state machine over the given store.
func New(s *store.Store, logger *slog.Logger) *Machine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Machine{store: s, logger: logger}
}

// ShareResult reports the outcome of a network-share request.
type ShareResult struct {
	Accepted bool
	Reasons  []string
}

// RequestNetworkShare runs the quality validators for the entity. On
// success the entity moves to scope=network, state=pending_review and one
// outbox entry is enqueued. On failure the scope stays personal, the state
// moves to rejected, and the reasons are recorded on the entity; nothing is
// enqueued. Failure is visible but non-fatal and does not block further
// local edits.
func (p *Machine) RequestNetworkShare(ctx context.Context, e *entity.Entity, seq int64) (ShareResult, error) {
	reasons := policy.QualityCheck(e)
	if len(reasons) > 0 {
		e.PublishState = entity.StateRejected
		e.QualityReasons = reasons
		if err := p.store.PutEntity(ctx, e); err != nil {
			return ShareResult{}, err
		}
		p.logger.Info("network share rejected",
			"entity_id", e.ID, "reasons", reasons)
		return ShareResult{Accepted: false, Reasons: reasons}, nil
	}

	e.ShareScope = entity.ScopeNetwork
	e.PublishState = entity.StatePendingReview
	e.QualityReasons = []string{}
	if err := p.store.PutEntity(ctx, e); err != nil {
		return ShareResult{}, err
	}
	if err := p.enqueue(ctx, e, seq, nil); err != nil {
		return ShareResult{}, err
	}

	p.logger.Info("network share queued", "entity_id", e.ID)
	return ShareResult{Accepted: true, Reasons: []string{}}, nil
}

// SetScopePersonal reverts an entity to personal scope: any outbox entry is
// removed immediately and the state resets to local_only. Subsequent local
// edits enqueue nothing until scope is explicitly set to network again.
func (p *Machine) SetScopePersonal(ctx context.Context, e *entity.Entity) error {
	if err := p.store.DeleteOutbox(ctx, e.ID); err != nil {
		return err
	}
	e.ShareScope = entity.ScopePersonal
	e.PublishState = entity.StateLocalOnly
	if err := p.store.PutEntity(ctx, e); err != nil {
		return err
	}
	p.logger.Info("scope reverted to personal", "entity_id", e.ID)
	return nil
}

// OnLocalEdit re-reviews a network-scoped entity after a local mutation.
// Edits to a shared entity are re-reviewed, never silently republished: the
// entity returns to pending_review and its outbox entry is refreshed. An
// edit that breaks the quality gates moves the entity to rejected and
// removes the outbox entry; the scope stays network so a fixing edit
// re-queues automatically.
func (p *Machine) OnLocalEdit(ctx context.Context, e *entity.Entity, seq int64) error {
	if e.ShareScope != entity.ScopeNetwork {
		return nil
	}

	reasons := policy.QualityCheck(e)
	if len(reasons) > 0 {
		if err := p.store.DeleteOutbox(ctx, e.ID); err != nil {
			return err
		}
		e.PublishState = entity.StateRejected
		e.QualityReasons = reasons
		if err := p.store.PutEntity(ctx, e); err != nil {
			return err
		}
		p.logger.Info("shared entity failed re-review",
			"entity_id", e.ID, "reasons", reasons)
		return nil
	}

	e.PublishState = entity.StatePendingReview
	e.QualityReasons = []string{}
	if err := p.store.PutEntity(ctx, e); err != nil {
		return err
	}
	if err := p.enqueue(ctx, e, seq, nil); err != nil {
		return err
	}
	p.logger.Debug("shared entity re-queued after edit", "entity_id", e.ID)
	return nil
}

// MarkPublished records a network acknowledgment: pending_review moves to
// published and the outbox entry is removed.
func (p *Machine) MarkPublished(ctx context.Context, e *entity.Entity) error {
	if e.PublishState != entity.StatePendingReview {
		return nil
	}
	if err := p.store.DeleteOutbox(ctx, e.ID); err != nil {
		return err
	}
	e.PublishState = entity.StatePublished
	if err := p.store.PutEntity(ctx, e); err != nil {
		return err
	}
	p.logger.Info("entity published", "entity_id", e.ID)
	return nil
}

// MarkRejected records a moderation rejection from the network. The record
// stays locally visible; only its publication lifecycle changes.
func (p *Machine) MarkRejected(ctx context.Context, e *entity.Entity, reasons []string) error {
	if err := p.store.DeleteOutbox(ctx, e.ID); err != nil {
		return err
	}
	e.PublishState = entity.StateRejected
	if reasons == nil {
		reasons = []string{}
	}
	e.QualityReasons = reasons
	if err := p.store.PutEntity(ctx, e); err != nil {
		return err
	}
	p.logger.Info("entity rejected by network", "entity_id", e.ID, "reasons", reasons)
	return nil
}

// RecordTransportFailure remembers a delivery failure reported by the
// transport collaborator as a non-retry state: the outbox entry keeps its
// place but carries the classified reason so the transport does not
// retransmit it automatically.
func (p *Machine) RecordTransportFailure(ctx context.Context, e *entity.Entity, reason string) error {
	f := fault.Transport(reason)
	p.logger.Warn("transport delivery failure recorded",
		"entity_id", e.ID, "reason", f.Error())
	return p.store.SetOutboxReasons(ctx, e.ID, []string{f.Error()})
}

func (p *Machine) enqueue(ctx context.Context, e *entity.Entity, seq int64, reasons []string) error {
	if reasons == nil {
		reasons = []string{}
	}
	return p.store.UpsertOutbox(ctx, entity.OutboxEntry{
		EntityID:     e.ID,
		EntityKind:   e.Kind,
		PublishState: e.PublishState,
		Reasons:      reasons,
		EnqueuedSeq:  seq,
	})
}
