package domain

import (
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

var (
	ErrInvalidProvider       = errors.New("invalid_provider")
	ErrProviderNotFound      = errors.New("provider_not_found")
	ErrInvalidConfig         = errors.New("invalid_provider_config")
	ErrUntrustedEvent        = errors.New("untrusted_event")
	ErrInvalidPayload        = errors.New("invalid_payload")
	ErrInvalidEvent          = errors.New("invalid_event")
	ErrEventIgnored          = errors.New("event_ignored")
	ErrEventAlreadyProcessed = errors.New("event_already_processed")
	ErrGatewayUnavailable    = errors.New("gateway_unavailable")
	ErrUnknownIntent         = errors.New("unknown_payment_intent")
)

const (
	EventTypePaymentSucceeded = "payment_succeeded"
	EventTypePaymentFailed    = "payment_failed"
)

// EventRecord stores every verified provider event exactly once;
// (provider, provider_event_id) is the dedup key.
type EventRecord struct {
	ID              snowflake.ID   `json:"id" gorm:"primaryKey"`
	Provider        string         `json:"provider" gorm:"type:text;not null;uniqueIndex:ux_payment_events_provider_event"`
	ProviderEventID string         `json:"provider_event_id" gorm:"type:text;not null;uniqueIndex:ux_payment_events_provider_event"`
	EventType       string         `json:"event_type" gorm:"type:text;not null"`
	OrderID         snowflake.ID   `json:"order_id" gorm:"not null;index"`
	Payload         datatypes.JSON `json:"payload" gorm:"type:jsonb;not null"`
	ReceivedAt      time.Time      `json:"received_at" gorm:"not null"`
	ProcessedAt     *time.Time     `json:"processed_at"`
}

func (EventRecord) TableName() string { return "payment_events" }

// IntentRecord remembers every provider intent ever minted for an
// order. A buyer can hold several live checkouts for one order (two
// tabs, a double click); settlement on any of them must still find
// the order.
type IntentRecord struct {
	ID               snowflake.ID `json:"id" gorm:"primaryKey"`
	OrderID          snowflake.ID `json:"order_id" gorm:"not null;index"`
	Provider         string       `json:"provider" gorm:"type:text;not null;uniqueIndex:ux_payment_intents_provider_intent"`
	ProviderIntentID string       `json:"provider_intent_id" gorm:"type:text;not null;uniqueIndex:ux_payment_intents_provider_intent"`
	ApprovalURL      string       `json:"approval_url" gorm:"type:text;not null;default:''"`
	CreatedAt        time.Time    `json:"created_at" gorm:"not null"`
}

func (IntentRecord) TableName() string { return "payment_intents" }

// PaymentEvent is the canonical event shape adapters normalize provider
// payloads into.
type PaymentEvent struct {
	Provider         string
	ProviderEventID  string
	ProviderIntentID string
	Type             string
	Amount           int64
	Currency         string
	FailureReason    string
	OccurredAt       time.Time
	RawPayload       []byte
}

// CheckoutSession is what Initiate hands back to the buyer's client.
type CheckoutSession struct {
	Provider    string `json:"provider"`
	IntentID    string `json:"intent_id"`
	ApprovalURL string `json:"approval_url"`
}
