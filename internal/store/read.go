package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/selamnet/selam/internal/entity"
	"github.com/selamnet/selam/internal/envelope"
)

// EnvelopeRecord is one row of the append-only log.
type EnvelopeRecord struct {
	Envelope envelope.Envelope
	Origin   string
	Seq      int64
}

// GetEntity returns the projection for an entity ID, or (nil, false) when no
// entity exists. The returned value is a copy owned by the caller.
func (s *Store) GetEntity(ctx context.Context, entityID string) (*entity.Entity, bool, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT entity_id, kind, attrs, created_at, updated_at,
		       share_scope, publish_state, quality_reasons, is_visible, status
		FROM entities
		WHERE entity_id = ?
	`, entityID)

	e, err := scanEntity(row)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get entity: %w", err)
	}
	return e, true, nil
}

// ListEntities returns all projections of one kind, ordered by entity ID for
// deterministic output.
func (s *Store) ListEntities(ctx context.Context, kind entity.Kind) ([]*entity.Entity, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT entity_id, kind, attrs, created_at, updated_at,
		       share_scope, publish_state, quality_reasons, is_visible, status
		FROM entities
		WHERE kind = ?
		ORDER BY entity_id COLLATE BINARY ASC
	`, string(kind))
	if err != nil {
		return nil, fmt.Errorf("list entities: %w", err)
	}
	defer rows.Close()

	entities := []*entity.Entity{}
	for rows.Next() {
		e, err := scanEntity(rows)
		if err != nil {
			return nil, fmt.Errorf("list entities: %w", err)
		}
		entities = append(entities, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list entities: iterate: %w", err)
	}
	return entities, nil
}

// Annotations returns the append-only annotations for an entity, ordered by
// payload hash so the set reads identically regardless of arrival order.
func (s *Store) Annotations(ctx context.Context, entityID string) ([]entity.Annotation, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT entity_id, payload_hash, event_type, author_pubkey, payload
		FROM annotations
		WHERE entity_id = ?
		ORDER BY payload_hash COLLATE BINARY ASC
	`, entityID)
	if err != nil {
		return nil, fmt.Errorf("query annotations: %w", err)
	}
	defer rows.Close()

	annotations := []entity.Annotation{}
	for rows.Next() {
		var a entity.Annotation
		var payloadJSON string
		if err := rows.Scan(&a.EntityID, &a.PayloadHash, &a.EventType, &a.AuthorPubkey, &payloadJSON); err != nil {
			return nil, fmt.Errorf("scan annotation: %w", err)
		}
		if err := json.Unmarshal([]byte(payloadJSON), &a.Payload); err != nil {
			return nil, fmt.Errorf("decode annotation payload: %w", err)
		}
		annotations = append(annotations, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate annotations: %w", err)
	}
	return annotations, nil
}

// PendingOutbox returns the queued publications in enqueue order.
// Finite and restartable: callers may re-read it at any time.
func (s *Store) PendingOutbox(ctx context.Context) ([]entity.OutboxEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT entity_id, entity_kind, publish_state, reasons, enqueued_seq
		FROM outbox
		ORDER BY enqueued_seq ASC, entity_id COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query outbox: %w", err)
	}
	defer rows.Close()

	entries := []entity.OutboxEntry{}
	for rows.Next() {
		var o entity.OutboxEntry
		var kind, state, reasonsJSON string
		if err := rows.Scan(&o.EntityID, &kind, &state, &reasonsJSON, &o.EnqueuedSeq); err != nil {
			return nil, fmt.Errorf("scan outbox entry: %w", err)
		}
		o.EntityKind = entity.Kind(kind)
		o.PublishState = entity.PublishState(state)
		if err := json.Unmarshal([]byte(reasonsJSON), &o.Reasons); err != nil {
			return nil, fmt.Errorf("decode outbox reasons: %w", err)
		}
		entries = append(entries, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate outbox: %w", err)
	}
	return entries, nil
}

// Envelopes returns the full append-only log with deterministic ordering:
// ORDER BY seq ASC, event_id ASC COLLATE BINARY. Used by Rebuild.
func (s *Store) Envelopes(ctx context.Context) ([]EnvelopeRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT event_id, event_type, entity_id, author_pubkey, created_at,
		       lamport_clock, expires_at, payload, payload_hash, signature,
		       origin, seq
		FROM envelopes
		ORDER BY seq ASC, event_id COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query envelopes: %w", err)
	}
	defer rows.Close()

	records := []EnvelopeRecord{}
	for rows.Next() {
		var rec EnvelopeRecord
		var lamport int64
		var payloadJSON string
		err := rows.Scan(
			&rec.Envelope.EventID,
			&rec.Envelope.EventType,
			&rec.Envelope.EntityID,
			&rec.Envelope.AuthorPubkey,
			&rec.Envelope.CreatedAt,
			&lamport,
			&rec.Envelope.ExpiresAt,
			&payloadJSON,
			&rec.Envelope.PayloadHash,
			&rec.Envelope.Signature,
			&rec.Origin,
			&rec.Seq,
		)
		if err != nil {
			return nil, fmt.Errorf("scan envelope: %w", err)
		}
		rec.Envelope.SchemaVersion = envelope.SchemaVersion
		rec.Envelope.LamportClock = uint64(lamport)
		if err := json.Unmarshal([]byte(payloadJSON), &rec.Envelope.Payload); err != nil {
			return nil, fmt.Errorf("decode envelope payload: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate envelopes: %w", err)
	}
	return records, nil
}

// PublicationState is the local-only publication snapshot of one entity,
// carried across projection rebuilds.
type PublicationState struct {
	ShareScope     entity.ShareScope
	PublishState   entity.PublishState
	QualityReasons []string
}

// PublicationStates returns the publication fields of every entity, keyed by
// entity ID. Used by Rebuild: these fields are local state, not folds of the
// envelope log, so they must survive a refold.
func (s *Store) PublicationStates(ctx context.Context) (map[string]PublicationState, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT entity_id, share_scope, publish_state, quality_reasons
		FROM entities
	`)
	if err != nil {
		return nil, fmt.Errorf("query publication states: %w", err)
	}
	defer rows.Close()

	states := map[string]PublicationState{}
	for rows.Next() {
		var id, scope, state, reasonsJSON string
		if err := rows.Scan(&id, &scope, &state, &reasonsJSON); err != nil {
			return nil, fmt.Errorf("scan publication state: %w", err)
		}
		ps := PublicationState{
			ShareScope:   entity.ShareScope(scope),
			PublishState: entity.PublishState(state),
		}
		if err := json.Unmarshal([]byte(reasonsJSON), &ps.QualityReasons); err != nil {
			return nil, fmt.Errorf("decode publication reasons: %w", err)
		}
		states[id] = ps
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate publication states: %w", err)
	}
	return states, nil
}

// MaxSeq returns the highest sequence number in the envelope log, zero for
// an empty log. Used to resume the local clock after restart.
func (s *Store) MaxSeq(ctx context.Context) (int64, error) {
	var seq sql.NullInt64
	if err := s.db.QueryRowContext(ctx, `SELECT MAX(seq) FROM envelopes`).Scan(&seq); err != nil {
		return 0, fmt.Errorf("max seq: %w", err)
	}
	return seq.Int64, nil
}

// MaxLamport returns the highest Lamport clock value in the envelope log.
// Used to resume the author's Lamport counter after restart.
func (s *Store) MaxLamport(ctx context.Context) (uint64, error) {
	var lamport sql.NullInt64
	if err := s.db.QueryRowContext(ctx, `SELECT MAX(lamport_clock) FROM envelopes`).Scan(&lamport); err != nil {
		return 0, fmt.Errorf("max lamport: %w", err)
	}
	return uint64(lamport.Int64), nil
}

// CountEnvelopes returns the size of the append-only log.
func (s *Store) CountEnvelopes(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM envelopes`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count envelopes: %w", err)
	}
	return n, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntity(row rowScanner) (*entity.Entity, error) {
	var e entity.Entity
	var kind, scope, state, attrsJSON, reasonsJSON string
	var visible int

	err := row.Scan(
		&e.ID, &kind, &attrsJSON, &e.CreatedAt, &e.UpdatedAt,
		&scope, &state, &reasonsJSON, &visible, &e.Status,
	)
	if err != nil {
		return nil, err
	}

	e.Kind = entity.Kind(kind)
	e.ShareScope = entity.ShareScope(scope)
	e.PublishState = entity.PublishState(state)
	e.Visible = visible != 0

	if err := json.Unmarshal([]byte(attrsJSON), &e.Attrs); err != nil {
		return nil, fmt.Errorf("decode attrs: %w", err)
	}
	if e.Attrs == nil {
		e.Attrs = map[string]string{}
	}
	if err := json.Unmarshal([]byte(reasonsJSON), &e.QualityReasons); err != nil {
		return nil, fmt.Errorf("decode quality reasons: %w", err)
	}
	return &e, nil
}
