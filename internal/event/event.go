// Package event holds the canonical in-memory form of a provider
// notification. Events are built once from an already-validated callback
// payload and never mutated afterwards, so they can be shared freely across
// concurrent rule evaluations.
package event

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// Category classifies a notification by the provider's callback category.
type Category string

const (
	CategoryMutation                  Category = "MUTATION"
	CategoryRequest                   Category = "REQUEST"
	CategoryScheduleResult            Category = "SCHEDULE_RESULT"
	CategoryScheduleStatus            Category = "SCHEDULE_STATUS"
	CategoryPayment                   Category = "PAYMENT"
	CategoryDraftPayment              Category = "DRAFT_PAYMENT"
	CategoryBilling                   Category = "BILLING"
	CategoryIdeal                     Category = "IDEAL"
	CategorySofort                    Category = "SOFORT"
	CategoryCardTransactionFailed     Category = "CARD_TRANSACTION_FAILED"
	CategoryCardTransactionSuccessful Category = "CARD_TRANSACTION_SUCCESSFUL"
)

// Type identifies the state change the provider is notifying about.
type Type string

const (
	TypeMutationCreated           Type = "MUTATION_CREATED"
	TypeMutationReceived          Type = "MUTATION_RECEIVED"
	TypePaymentCreated            Type = "PAYMENT_CREATED"
	TypePaymentReceived           Type = "PAYMENT_RECEIVED"
	TypeCardPaymentAllowed        Type = "CARD_PAYMENT_ALLOWED"
	TypeCardTransactionNotAllowed Type = "CARD_TRANSACTION_NOT_ALLOWED"
	TypeRequestInquiryCreated     Type = "REQUEST_INQUIRY_CREATED"
	TypeRequestInquiryAccepted    Type = "REQUEST_INQUIRY_ACCEPTED"
	TypeRequestInquiryRejected    Type = "REQUEST_INQUIRY_REJECTED"
	TypeRequestResponseCreated    Type = "REQUEST_RESPONSE_CREATED"
	TypeRequestResponseAccepted   Type = "REQUEST_RESPONSE_ACCEPTED"
	TypeRequestResponseRejected   Type = "REQUEST_RESPONSE_REJECTED"
)

// ObjectKind names the single object variant carried by a notification.
type ObjectKind string

const (
	KindPayment             ObjectKind = "Payment"
	KindRequestInquiry      ObjectKind = "RequestInquiry"
	KindRequestInquiryBatch ObjectKind = "RequestInquiryBatch"
	KindRequestResponse     ObjectKind = "RequestResponse"
	KindMasterCardAction    ObjectKind = "MasterCardAction"
)

var validCategories = map[Category]bool{
	CategoryMutation:                  true,
	CategoryRequest:                   true,
	CategoryScheduleResult:            true,
	CategoryScheduleStatus:            true,
	CategoryPayment:                   true,
	CategoryDraftPayment:              true,
	CategoryBilling:                   true,
	CategoryIdeal:                     true,
	CategorySofort:                    true,
	CategoryCardTransactionFailed:     true,
	CategoryCardTransactionSuccessful: true,
}

var validTypes = map[Type]bool{
	TypeMutationCreated:           true,
	TypeMutationReceived:          true,
	TypePaymentCreated:            true,
	TypePaymentReceived:           true,
	TypeCardPaymentAllowed:        true,
	TypeCardTransactionNotAllowed: true,
	TypeRequestInquiryCreated:     true,
	TypeRequestInquiryAccepted:    true,
	TypeRequestInquiryRejected:    true,
	TypeRequestResponseCreated:    true,
	TypeRequestResponseAccepted:   true,
	TypeRequestResponseRejected:   true,
}

// Valid reports whether c is a known callback category.
func (c Category) Valid() bool { return validCategories[c] }

// Valid reports whether t is a known event type.
func (t Type) Valid() bool { return validTypes[t] }

var objectKinds = []ObjectKind{
	KindPayment,
	KindRequestInquiry,
	KindRequestInquiryBatch,
	KindRequestResponse,
	KindMasterCardAction,
}

// Event is an immutable, normalized notification. The object payload is kept
// as a generic field tree; consumers read it through Resolve.
type Event struct {
	category Category
	kind     ObjectKind
	typ      Type
	fields   map[string]any
	id       string
}

// New builds an Event from pre-decoded object fields. The caller is expected
// to hand over ownership of fields; the map must not be mutated afterwards.
func New(category Category, typ Type, kind ObjectKind, fields map[string]any) *Event {
	return &Event{
		category: category,
		typ:      typ,
		kind:     kind,
		fields:   fields,
		id:       providerID(fields),
	}
}

func (e *Event) Category() Category { return e.category }
func (e *Event) Type() Type         { return e.typ }
func (e *Event) Kind() ObjectKind   { return e.kind }

// ID returns the stable event identifier used for idempotency. It combines
// the provider object id with the callback category, so redeliveries of the
// same notification map to the same identifier.
func (e *Event) ID() string {
	return string(e.category) + ":" + e.id
}

// callbackEnvelope mirrors the provider's NotificationUrl wrapper.
type callbackEnvelope struct {
	NotificationURL struct {
		TargetURL string                     `json:"target_url"`
		Category  string                     `json:"category"`
		EventType string                     `json:"event_type"`
		Object    map[string]json.RawMessage `json:"object"`
	} `json:"NotificationUrl"`
}

// ParseCallback decodes a raw callback body into an Event. It enforces the
// structural constraints of the callback schema: known category and event
// type, and exactly one known object variant.
func ParseCallback(raw []byte) (*Event, error) {
	var env callbackEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("decode callback: %w", err)
	}

	n := env.NotificationURL
	category := Category(n.Category)
	if !validCategories[category] {
		return nil, fmt.Errorf("unknown callback category %q", n.Category)
	}
	typ := Type(n.EventType)
	if !validTypes[typ] {
		return nil, fmt.Errorf("unknown event type %q", n.EventType)
	}
	if len(n.Object) == 0 {
		return nil, fmt.Errorf("callback carries no object")
	}

	var (
		kind  ObjectKind
		body  json.RawMessage
		found int
	)
	for _, k := range objectKinds {
		if raw, ok := n.Object[string(k)]; ok {
			kind = k
			body = raw
			found++
		}
	}
	if found == 0 {
		return nil, fmt.Errorf("callback object has no known variant")
	}
	if found > 1 {
		return nil, fmt.Errorf("callback object has %d variants, want exactly one", found)
	}

	var fields map[string]any
	if err := json.Unmarshal(body, &fields); err != nil {
		return nil, fmt.Errorf("decode %s object: %w", kind, err)
	}

	return New(category, typ, kind, fields), nil
}

// providerID extracts the numeric object id as a string. Notifications
// without an id (never seen in practice) fall back to an empty id; the
// fingerprint still includes the category so they do not collide across
// categories.
func providerID(fields map[string]any) string {
	switch v := fields["id"].(type) {
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case string:
		return v
	default:
		return ""
	}
}
