package domain

import (
	"context"
	"net/http"
	"net/url"

	"github.com/shopspring/decimal"
)

// AdapterConfig carries provider credentials. Keys are provider
// specific ("secret_key", "webhook_secret", "client_id", ...).
type AdapterConfig struct {
	Config     map[string]any
	HTTPClient *http.Client
	BaseURL    string
}

type AdapterFactory interface {
	Provider() string
	NewAdapter(cfg AdapterConfig) (PaymentAdapter, error)
}

// CreateIntentRequest describes the charge Initiate asks the provider
// to collect. IdempotencyKey makes replayed attempts safe.
type CreateIntentRequest struct {
	OrderID        string
	Amount         decimal.Decimal
	Currency       string
	Description    string
	IdempotencyKey string
	ReturnURL      string
	CancelURL      string
}

type PaymentAdapter interface {
	// Verify authenticates an inbound webhook. It fails closed: any
	// doubt about the signature is ErrUntrustedEvent.
	Verify(ctx context.Context, payload []byte, headers http.Header) error

	// Parse normalizes a verified payload. Events the pipeline does not
	// act on return ErrEventIgnored.
	Parse(ctx context.Context, payload []byte) (*PaymentEvent, error)

	// CreateIntent registers the charge with the provider and returns
	// the approval URL the buyer is sent to.
	CreateIntent(ctx context.Context, req CreateIntentRequest) (*CheckoutSession, error)

	// ReturnIntentID extracts the provider intent id from the
	// redirect-return query string.
	ReturnIntentID(query url.Values) (string, error)

	// FetchIntent polls the provider for the intent's settled state and
	// normalizes it like a webhook event. Used on redirect-return,
	// where no signed payload exists.
	FetchIntent(ctx context.Context, intentID string) (*PaymentEvent, error)
}
