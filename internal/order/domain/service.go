package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
)

type Service interface {
	// Create freezes the caller's cart into a ledger row. The cart is
	// cleared only after the order commits. Zero-total orders complete
	// immediately; nothing to collect.
	Create(ctx context.Context, userID string) (*Order, error)

	Get(ctx context.Context, userID string, id snowflake.ID) (*Order, []LineItem, error)
	List(ctx context.Context, userID string) ([]Order, error)

	// Find looks an order up by id without user scoping; for internal
	// callers reconciling provider events.
	Find(ctx context.Context, id snowflake.ID) (*Order, error)

	// Complete moves a pending order to COMPLETED and grants the buyer's
	// entitlements in the same transaction. Completing an already
	// completed order is a no-op; any other terminal state is an
	// invalid transition.
	Complete(ctx context.Context, id snowflake.ID, provider, intentID string) error

	// Fail moves a pending order to FAILED. Failing an already failed
	// order is a no-op.
	Fail(ctx context.Context, id snowflake.ID, reason string) error

	// Cancel is buyer-initiated and only valid while pending.
	Cancel(ctx context.Context, userID string, id snowflake.ID) error

	// AttachIntent records the gateway's intent id so webhook events can
	// be correlated back to the order.
	AttachIntent(ctx context.Context, id snowflake.ID, provider, intentID string) error

	FindByProviderIntent(ctx context.Context, provider, intentID string) (*Order, error)
}
