// Package schema validates payload structure against embedded CUE
// definitions, one per event type. The check runs after hash/signature
// verification and before the domain policy validators: it answers "is this
// payload shaped right", not "is it allowed".
package schema

import (
	_ "embed"
	"fmt"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"

	"github.com/selamnet/selam/internal/event"
	"github.com/selamnet/selam/internal/fault"
)

//go:embed payloads.cue
var payloadsCUE string

// definitions maps event types to their CUE definition names.
var definitions = map[event.Type]string{
	event.PinCreate:        "#PinCreate",
	event.PinUpdate:        "#PinUpdate",
	event.PinApproval:      "#PinApproval",
	event.BusinessRegister: "#BusinessRegister",
	event.BusinessUpdate:   "#BusinessUpdate",
	event.PromiseCreate:    "#PromiseCreate",
	event.PromiseAccept:    "#PromiseTransition",
	event.PromiseReject:    "#PromiseTransition",
	event.PromiseSettle:    "#PromiseTransition",
	event.ChatMessage:      "#ChatMessage",
	event.ServiceCreate:    "#ServiceCreate",
	event.ServiceUpdate:    "#ServiceUpdate",
}

// Registry holds the compiled payload schemas.
type Registry struct {
	ctx     *cue.Context
	schemas map[event.Type]cue.Value
}

// Load compiles the embedded schemas. Fails fast if any definition is
// missing or malformed, so a broken schema file cannot ship silently.
func Load() (*Registry, error) {
	ctx := cuecontext.New()
	root := ctx.CompileString(payloadsCUE, cue.Filename("payloads.cue"))
	if err := root.Err(); err != nil {
		return nil, fmt.Errorf("compile payload schemas: %w", err)
	}

	schemas := make(map[event.Type]cue.Value, len(definitions))
	for t, def := range definitions {
		v := root.LookupPath(cue.ParsePath(def))
		if !v.Exists() {
			return nil, fmt.Errorf("payload schema %s for %q not found", def, t)
		}
		if err := v.Err(); err != nil {
			return nil, fmt.Errorf("payload schema %s: %w", def, err)
		}
		schemas[t] = v
	}

	// Every known event type must carry a schema; a new type without one is
	// a wiring error caught at startup.
	for _, t := range event.All() {
		if _, ok := schemas[t]; !ok {
			return nil, fmt.Errorf("no payload schema registered for event type %q", t)
		}
	}

	return &Registry{ctx: ctx, schemas: schemas}, nil
}

// Validate checks a payload against the schema for its event type.
// Returns a policy_rejected failure naming the schema violation, or nil.
func (r *Registry) Validate(t event.Type, payload map[string]string) *fault.Failure {
	schema, ok := r.schemas[t]
	if !ok {
		return fault.Protocol("unknown-event-type").With("event_type", string(t))
	}

	val := r.ctx.Encode(payload)
	if err := val.Err(); err != nil {
		return fault.Policy("payload-schema-mismatch").With("detail", err.Error())
	}

	unified := schema.Unify(val)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return fault.Policy("payload-schema-mismatch").
			With("event_type", string(t)).
			With("detail", err.Error())
	}
	return nil
}
