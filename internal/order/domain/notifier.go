package domain

import "context"

// Notifier is told about completed orders after the transaction
// commits. Implementations must not block the caller; delivery is best
// effort and never affects the ledger.
type Notifier interface {
	OrderCompleted(ctx context.Context, order Order, items []LineItem)
}
