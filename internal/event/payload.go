package event

import (
	"fmt"
	"strconv"
)

// Payload keys shared across event types.
const (
	KeyUpdatedAt = "updated_at"
	KeyCreatedAt = "created_at"
)

// AppliedAt extracts the author-supplied application timestamp from a
// payload: updated_at, falling back to created_at. This value is the
// cross-device convergence key, distinct from the envelope's own CreatedAt.
func AppliedAt(payload map[string]string) (int64, error) {
	raw, ok := payload[KeyUpdatedAt]
	if !ok || raw == "" {
		raw, ok = payload[KeyCreatedAt]
		if !ok || raw == "" {
			return 0, fmt.Errorf("payload carries neither updated_at nor created_at")
		}
	}
	ts, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse application timestamp %q: %w", raw, err)
	}
	return ts, nil
}

// Pin is the typed view of pin-create/pin-update payloads.
type Pin struct {
	Name        string
	Lat         string
	Lon         string
	Description string
}

// Approval is the typed view of a pin-approval payload.
type Approval struct {
	PinID string
	Note  string
}

// Business is the typed view of business-register/business-update payloads.
type Business struct {
	Name     string
	Category string
	Phone    string
}

// Promise is the typed view of promise lifecycle payloads.
type Promise struct {
	Amount    string
	Currency  string
	ToPubkey  string
	PromiseID string // referenced promise for accept/reject/settle
	Note      string
}

// Chat is the typed view of a chat-message payload.
type Chat struct {
	Text    string
	Channel string
}

// Service is the typed view of service-directory payloads.
type Service struct {
	Name     string
	Category string
	Details  string
	Phone    string
	Email    string
	WhatsApp string
}

// Decoded is the strongly-typed projection of one verified payload.
// Exactly one field besides Type is populated, matching the event type.
type Decoded struct {
	Type     Type
	Pin      *Pin
	Approval *Approval
	Business *Business
	Promise  *Promise
	Chat     *Chat
	Service  *Service
}

// Decode converts a generic key/value payload into its typed view.
// Called only after hash/signature verification; structural completeness is
// the schema layer's concern, so Decode never fails on missing fields.
func Decode(t Type, payload map[string]string) (Decoded, error) {
	d := Decoded{Type: t}
	switch t {
	case PinCreate, PinUpdate:
		d.Pin = &Pin{
			Name:        payload["name"],
			Lat:         payload["lat"],
			Lon:         payload["lon"],
			Description: payload["description"],
		}
	case PinApproval:
		d.Approval = &Approval{
			PinID: payload["pin_id"],
			Note:  payload["note"],
		}
	case BusinessRegister, BusinessUpdate:
		d.Business = &Business{
			Name:     payload["name"],
			Category: payload["category"],
			Phone:    payload["phone"],
		}
	case PromiseCreate, PromiseAccept, PromiseReject, PromiseSettle:
		d.Promise = &Promise{
			Amount:    payload["amount"],
			Currency:  payload["currency"],
			ToPubkey:  payload["to_pubkey"],
			PromiseID: payload["promise_id"],
			Note:      payload["note"],
		}
	case ChatMessage:
		d.Chat = &Chat{
			Text:    payload["text"],
			Channel: payload["channel"],
		}
	case ServiceCreate, ServiceUpdate:
		d.Service = &Service{
			Name:     payload["name"],
			Category: payload["category"],
			Details:  payload["details"],
			Phone:    payload["phone"],
			Email:    payload["email"],
			WhatsApp: payload["whatsapp"],
		}
	default:
		return Decoded{}, fmt.Errorf("unknown event type %q", t)
	}
	return d, nil
}

// FormatTimestamp renders a seconds timestamp as a payload value.
func FormatTimestamp(ts int64) string {
	return strconv.FormatInt(ts, 10)
}
