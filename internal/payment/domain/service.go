package domain

import (
	"context"
	"net/http"
	"net/url"

	"github.com/bwmarrin/snowflake"
)

type Service interface {
	// Initiate creates a provider payment intent for a pending order and
	// returns the approval URL.
	Initiate(ctx context.Context, userID string, orderID snowflake.ID, provider string) (*CheckoutSession, error)

	// IngestWebhook verifies, dedupes, and applies one provider webhook
	// delivery. Replays are no-ops.
	IngestWebhook(ctx context.Context, provider string, payload []byte, headers http.Header) error

	// HandleReturn reconciles on redirect-return by polling the provider
	// for the intent state, then applying it through the same path as a
	// webhook. Returns the order the intent belongs to.
	HandleReturn(ctx context.Context, provider string, query url.Values) (snowflake.ID, error)
}
