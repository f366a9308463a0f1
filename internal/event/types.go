// Package event defines the closed set of mutation event types and the
// strongly-typed payload views decoded from verified envelopes.
package event

import "strings"

// Type is a mutation event type tag. The set is closed; extending the
// protocol means adding a variant here plus its schema and validator.
type Type string

const (
	PinCreate        Type = "pin-create"
	PinUpdate        Type = "pin-update"
	PinApproval      Type = "pin-approval"
	BusinessRegister Type = "business-register"
	BusinessUpdate   Type = "business-update"
	PromiseCreate    Type = "promise-create"
	PromiseAccept    Type = "promise-accept"
	PromiseReject    Type = "promise-reject"
	PromiseSettle    Type = "promise-settle"
	ChatMessage      Type = "chat-message"
	ServiceCreate    Type = "service-directory-create"
	ServiceUpdate    Type = "service-directory-update"
)

// Class describes how the merge engine folds a type into the store.
type Class int

const (
	// ClassCreate materializes an entity; first-seen wins, replays no-op.
	ClassCreate Class = iota + 1
	// ClassUpdate mutates fields under the last-writer-wins comparator.
	ClassUpdate
	// ClassAppend records an annotation (approval, settlement) on an
	// existing entity; append-only and deduplicated by payload hash.
	ClassAppend
)

// registry maps each type to its merge class and entity kind namespace.
var registry = map[Type]struct {
	class Class
	kind  string
}{
	PinCreate:        {ClassCreate, "pin"},
	PinUpdate:        {ClassUpdate, "pin"},
	PinApproval:      {ClassAppend, "pin"},
	BusinessRegister: {ClassCreate, "business"},
	BusinessUpdate:   {ClassUpdate, "business"},
	PromiseCreate:    {ClassCreate, "promise"},
	PromiseAccept:    {ClassAppend, "promise"},
	PromiseReject:    {ClassAppend, "promise"},
	PromiseSettle:    {ClassAppend, "promise"},
	ChatMessage:      {ClassCreate, "chat"},
	ServiceCreate:    {ClassCreate, "service"},
	ServiceUpdate:    {ClassUpdate, "service"},
}

// Known reports whether t is part of the protocol's closed set.
func Known(t Type) bool {
	_, ok := registry[t]
	return ok
}

// ClassOf returns the merge class for t. Zero for unknown types.
func ClassOf(t Type) Class {
	return registry[t].class
}

// KindOf returns the entity kind namespace for t ("pin", "promise", ...).
// Empty for unknown types.
func KindOf(t Type) string {
	return registry[t].kind
}

// All returns every known type, useful for schema and validator wiring.
func All() []Type {
	out := make([]Type, 0, len(registry))
	for t := range registry {
		out = append(out, t)
	}
	return out
}

// EntityKind extracts the kind namespace from an entity ID, e.g.
// "pin:abc" -> "pin". Empty when the ID carries no namespace.
func EntityKind(entityID string) string {
	kind, _, ok := strings.Cut(entityID, ":")
	if !ok {
		return ""
	}
	return kind
}
