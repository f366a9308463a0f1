package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/selamnet/selam/internal/entity"
	"github.com/selamnet/selam/internal/envelope"
)

// Origin values for envelope log records.
const (
	OriginLocal   = "local"
	OriginInbound = "inbound"
)

// AppendEnvelope inserts an accepted envelope into the append-only log.
// Uses ON CONFLICT(event_id) DO NOTHING for deduplication: replayed
// envelopes are silently ignored and inserted reports false.
//
// The payload is serialized with the canonical encoding so the stored form
// re-hashes to payload_hash on replay.
func (s *Store) AppendEnvelope(ctx context.Context, env envelope.Envelope, origin string, seq int64) (inserted bool, err error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO envelopes
		(event_id, event_type, entity_id, author_pubkey, created_at,
		 lamport_clock, expires_at, payload, payload_hash, signature, origin, seq)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(event_id) DO NOTHING
	`,
		env.EventID,
		env.EventType,
		env.EntityID,
		env.AuthorPubkey,
		env.CreatedAt,
		int64(env.LamportClock),
		env.ExpiresAt,
		string(envelope.EncodeCanonical(env.Payload)),
		env.PayloadHash,
		env.Signature,
		origin,
		seq,
	)
	if err != nil {
		return false, fmt.Errorf("append envelope: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("append envelope: rows affected: %w", err)
	}
	return affected > 0, nil
}

// PutEntity upserts the authoritative projection for an entity.
func (s *Store) PutEntity(ctx context.Context, e *entity.Entity) error {
	attrs := string(envelope.EncodeCanonical(e.Attrs))
	reasons, err := marshalReasons(e.QualityReasons)
	if err != nil {
		return fmt.Errorf("put entity: %w", err)
	}

	visible := 0
	if e.Visible {
		visible = 1
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO entities
		(entity_id, kind, attrs, created_at, updated_at,
		 share_scope, publish_state, quality_reasons, is_visible, status)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(entity_id) DO UPDATE SET
			attrs = excluded.attrs,
			created_at = excluded.created_at,
			updated_at = excluded.updated_at,
			share_scope = excluded.share_scope,
			publish_state = excluded.publish_state,
			quality_reasons = excluded.quality_reasons,
			is_visible = excluded.is_visible,
			status = excluded.status
	`,
		e.ID,
		string(e.Kind),
		attrs,
		e.CreatedAt,
		e.UpdatedAt,
		string(e.ShareScope),
		string(e.PublishState),
		reasons,
		visible,
		e.Status,
	)
	if err != nil {
		return fmt.Errorf("put entity: %w", err)
	}
	return nil
}

// AddAnnotation inserts an append-only annotation record.
// The (entity_id, payload_hash) primary key makes re-application of the same
// envelope a no-op; inserted reports whether a new record was written.
func (s *Store) AddAnnotation(ctx context.Context, a entity.Annotation) (inserted bool, err error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO annotations
		(entity_id, payload_hash, event_type, author_pubkey, payload)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(entity_id, payload_hash) DO NOTHING
	`,
		a.EntityID,
		a.PayloadHash,
		a.EventType,
		a.AuthorPubkey,
		string(envelope.EncodeCanonical(a.Payload)),
	)
	if err != nil {
		return false, fmt.Errorf("add annotation: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("add annotation: rows affected: %w", err)
	}
	return affected > 0, nil
}

// UpsertOutbox replaces the outbox entry for an entity. At most one entry
// exists per entity; a re-enqueue refreshes state, reasons, and ordering.
func (s *Store) UpsertOutbox(ctx context.Context, o entity.OutboxEntry) error {
	reasons, err := marshalReasons(o.Reasons)
	if err != nil {
		return fmt.Errorf("upsert outbox: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO outbox (entity_id, entity_kind, publish_state, reasons, enqueued_seq)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(entity_id) DO UPDATE SET
			publish_state = excluded.publish_state,
			reasons = excluded.reasons,
			enqueued_seq = excluded.enqueued_seq
	`,
		o.EntityID,
		string(o.EntityKind),
		string(o.PublishState),
		reasons,
		o.EnqueuedSeq,
	)
	if err != nil {
		return fmt.Errorf("upsert outbox: %w", err)
	}
	return nil
}

// SetOutboxReasons replaces the reasons on an existing outbox entry without
// touching its queue position. No-op when the entity has no entry.
func (s *Store) SetOutboxReasons(ctx context.Context, entityID string, reasons []string) error {
	encoded, err := marshalReasons(reasons)
	if err != nil {
		return fmt.Errorf("set outbox reasons: %w", err)
	}
	if _, err := s.db.ExecContext(ctx,
		`UPDATE outbox SET reasons = ? WHERE entity_id = ?`, encoded, entityID); err != nil {
		return fmt.Errorf("set outbox reasons: %w", err)
	}
	return nil
}

// DeleteOutbox removes the outbox entry for an entity, if any.
func (s *Store) DeleteOutbox(ctx context.Context, entityID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM outbox WHERE entity_id = ?`, entityID); err != nil {
		return fmt.Errorf("delete outbox: %w", err)
	}
	return nil
}

// ClearProjections drops the entity and annotation projections so they can
// be refolded from the envelope log. The log itself is never cleared, and
// the outbox is preserved: publication state is local-only and not derivable
// from envelopes.
func (s *Store) ClearProjections(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("clear projections: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	for _, table := range []string{"entities", "annotations"} {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("clear projections: %s: %w", table, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("clear projections: commit: %w", err)
	}
	return nil
}

func marshalReasons(reasons []string) (string, error) {
	if reasons == nil {
		reasons = []string{}
	}
	b, err := json.Marshal(reasons)
	if err != nil {
		return "", fmt.Errorf("marshal reasons: %w", err)
	}
	return string(b), nil
}
