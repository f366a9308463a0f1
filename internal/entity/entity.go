// Package entity defines the materialized projections built by folding
// accepted envelopes, plus the share-scope and publish-state vocabulary of
// the publication lifecycle.
package entity

// Kind is an entity kind namespace, matching the entity ID prefix.
type Kind string

const (
	KindPin      Kind = "pin"
	KindBusiness Kind = "business"
	KindPromise  Kind = "promise"
	KindChat     Kind = "chat"
	KindService  Kind = "service"
)

// ShareScope is the orthogonal personal/network publication scope.
// Entities are never shared without an explicit local action.
type ShareScope string

const (
	ScopePersonal ShareScope = "personal"
	ScopeNetwork  ShareScope = "network"
)

// PublishState is the lifecycle stage of a network-shared entity.
type PublishState string

const (
	StateLocalOnly     PublishState = "local_only"
	StatePendingReview PublishState = "pending_review"
	StatePublished     PublishState = "published"
	StateRejected      PublishState = "rejected"
)

// Status values for tombstoning. Entities are never physically deleted;
// hiding is a status flip.
const (
	StatusActive = "active"
	StatusHidden = "hidden"

	StatusPromiseOpen     = "open"
	StatusPromiseAccepted = "accepted"
	StatusPromiseRejected = "rejected"
	StatusPromiseSettled  = "settled"
)

// Entity is the mutable projection of all accepted envelopes for one
// identifier. Ownership is exclusively held by the store; callers receive
// copies.
type Entity struct {
	ID   string
	Kind Kind

	// Attrs is the folded key/value state from create/update payloads.
	Attrs map[string]string

	// CreatedAt is immutable after the first accepted create envelope.
	// UpdatedAt advances with every accepted mutation; it is the
	// last-writer-wins convergence key, in author application seconds.
	CreatedAt int64
	UpdatedAt int64

	ShareScope   ShareScope
	PublishState PublishState

	// QualityReasons holds the machine-readable reason codes from the last
	// network-share validation, for user-facing display.
	QualityReasons []string

	Visible bool
	Status  string
}

// New returns an entity in the default publication state: personal scope,
// local-only, visible, active.
func New(id string, kind Kind) *Entity {
	return &Entity{
		ID:           id,
		Kind:         kind,
		Attrs:        make(map[string]string),
		ShareScope:   ScopePersonal,
		PublishState: StateLocalOnly,
		Visible:      true,
		Status:       StatusActive,
	}
}

// Clone returns a deep copy. The store hands out clones so callers can never
// mutate authoritative state.
func (e *Entity) Clone() *Entity {
	out := *e
	out.Attrs = make(map[string]string, len(e.Attrs))
	for k, v := range e.Attrs {
		out.Attrs[k] = v
	}
	out.QualityReasons = append([]string(nil), e.QualityReasons...)
	return &out
}

// Annotation is one append-only record (approval, settlement) attached to an
// entity. Deduplicated by payload hash, so replays and out-of-order delivery
// converge to the same annotation set.
type Annotation struct {
	EntityID     string
	PayloadHash  string
	EventType    string
	AuthorPubkey string
	Payload      map[string]string
}

// OutboxEntry is one queued publication, consumed by the external transport
// layer. At most one entry exists per entity.
type OutboxEntry struct {
	EntityID     string
	EntityKind   Kind
	PublishState PublishState
	Reasons      []string

	// EnqueuedSeq orders the outbox deterministically for transmission.
	EnqueuedSeq int64
}
