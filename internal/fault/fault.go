// Package fault defines the failure taxonomy shared by the envelope codec,
// policy validators, merge engine, and transport framing.
//
// Every failure is a value, never a panic. The ingestion pipeline always
// completes and reports a classified reason, so a malicious or buggy peer can
// at most have its envelopes dropped.
package fault

import (
	"errors"
	"fmt"
)

// Class is the top-level failure category.
type Class string

const (
	// ClassProtocol marks a malformed or internally inconsistent envelope
	// (bad hex, hash mismatch, signature mismatch, schema mismatch, bad
	// framing). Dropped silently from the store's point of view.
	ClassProtocol Class = "protocol_invalid"

	// ClassPolicy marks a structurally valid envelope that violates domain
	// rules (expired, missing required field, unknown reference). May be
	// user-actionable.
	ClassPolicy Class = "policy_rejected"

	// ClassTransport is reserved for the external transport layer. The core
	// never raises it for its own checks, but classifies frame metadata
	// mismatches and remembered delivery failures under it.
	ClassTransport Class = "transport_failed"
)

// Failure is a structured, non-fatal rejection.
type Failure struct {
	Class  Class
	Reason string

	// Details carries optional diagnostic context (entity IDs, field names).
	Details map[string]string
}

// Error implements the error interface as "<class>:<reason>".
func (f *Failure) Error() string {
	return fmt.Sprintf("%s:%s", f.Class, f.Reason)
}

// Protocol builds a protocol_invalid failure.
func Protocol(reason string) *Failure {
	return &Failure{Class: ClassProtocol, Reason: reason}
}

// Policy builds a policy_rejected failure.
func Policy(reason string) *Failure {
	return &Failure{Class: ClassPolicy, Reason: reason}
}

// Transport builds a transport_failed failure.
func Transport(reason string) *Failure {
	return &Failure{Class: ClassTransport, Reason: reason}
}

// With attaches a detail key/value and returns the failure for chaining.
func (f *Failure) With(key, value string) *Failure {
	if f.Details == nil {
		f.Details = make(map[string]string, 2)
	}
	f.Details[key] = value
	return f
}

// IsProtocol reports whether err is a protocol_invalid failure.
// Uses errors.As to handle wrapped errors.
func IsProtocol(err error) bool {
	var f *Failure
	return errors.As(err, &f) && f.Class == ClassProtocol
}

// IsPolicy reports whether err is a policy_rejected failure.
func IsPolicy(err error) bool {
	var f *Failure
	return errors.As(err, &f) && f.Class == ClassPolicy
}

// IsTransport reports whether err is a transport_failed failure.
func IsTransport(err error) bool {
	var f *Failure
	return errors.As(err, &f) && f.Class == ClassTransport
}
