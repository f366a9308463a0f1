// Package policy holds the per-event-type domain validators and the
// quality checks run before an entity is shared onto the network.
//
// Validators are pure: they read the store view, never mutate it, and return
// structured failures instead of errors thrown across the pipeline.
package policy

import (
	"context"
	"strings"

	"github.com/selamnet/selam/internal/entity"
	"github.com/selamnet/selam/internal/event"
	"github.com/selamnet/selam/internal/fault"
)

// View is the read-only store access validators get. Implemented by the
// store under the core's mutation lock.
type View interface {
	Get(ctx context.Context, entityID string) (*entity.Entity, bool, error)
}

// Validate runs the domain validator for an event type against its decoded
// payload. Consulted by the merge engine before rule application.
func Validate(ctx context.Context, d event.Decoded, view View) (*fault.Failure, error) {
	switch d.Type {
	case event.PinCreate, event.PinUpdate:
		return validatePin(d), nil

	case event.PinApproval:
		return validatePinApproval(ctx, d, view)

	case event.BusinessRegister, event.BusinessUpdate:
		if d.Type == event.BusinessRegister && strings.TrimSpace(d.Business.Name) == "" {
			return fault.Policy("missing-business-name"), nil
		}
		return nil, nil

	case event.PromiseCreate:
		return validatePromiseCreate(d), nil

	case event.PromiseAccept, event.PromiseReject, event.PromiseSettle:
		return validatePromiseTransition(ctx, d, view)

	case event.ChatMessage:
		if strings.TrimSpace(d.Chat.Text) == "" {
			return fault.Policy("missing-message-text"), nil
		}
		return nil, nil

	case event.ServiceCreate, event.ServiceUpdate:
		if d.Type == event.ServiceCreate && strings.TrimSpace(d.Service.Name) == "" {
			return fault.Policy("missing-service-name"), nil
		}
		return nil, nil
	}

	return fault.Protocol("unknown-event-type").With("event_type", string(d.Type)), nil
}

func validatePin(d event.Decoded) *fault.Failure {
	// Updates may omit name entirely; an explicitly empty name is invalid
	// for both create and update.
	if d.Type == event.PinCreate && strings.TrimSpace(d.Pin.Name) == "" {
		return fault.Policy("missing-pin-name")
	}
	return nil
}

func validatePinApproval(ctx context.Context, d event.Decoded, view View) (*fault.Failure, error) {
	pinID := d.Approval.PinID
	if strings.TrimSpace(pinID) == "" {
		return fault.Policy("missing-pin-reference"), nil
	}
	_, ok, err := view.Get(ctx, "pin:"+pinID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return fault.Policy("unknown-pin").With("pin_id", pinID), nil
	}
	return nil, nil
}

func validatePromiseCreate(d event.Decoded) *fault.Failure {
	p := d.Promise
	if strings.TrimSpace(p.Amount) == "" || strings.TrimSpace(p.Currency) == "" {
		return fault.Policy("missing-promise-amount")
	}
	if strings.TrimSpace(p.ToPubkey) == "" {
		return fault.Policy("missing-promise-counterparty")
	}
	return nil
}

func validatePromiseTransition(ctx context.Context, d event.Decoded, view View) (*fault.Failure, error) {
	promiseID := d.Promise.PromiseID
	if strings.TrimSpace(promiseID) == "" {
		return fault.Policy("missing-promise-reference"), nil
	}
	_, ok, err := view.Get(ctx, "promise:"+promiseID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return fault.Policy("unknown-promise").With("promise_id", promiseID), nil
	}
	return nil, nil
}
