package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	// InsertEvent returns false when the (provider, event id) pair was
	// already recorded.
	InsertEvent(ctx context.Context, db *gorm.DB, record *EventRecord) (bool, error)
	FindEvent(ctx context.Context, db *gorm.DB, provider, providerEventID string) (*EventRecord, error)
	MarkProcessed(ctx context.Context, db *gorm.DB, id snowflake.ID, at time.Time) error

	InsertIntent(ctx context.Context, db *gorm.DB, record *IntentRecord) error
	FindIntent(ctx context.Context, db *gorm.DB, provider, providerIntentID string) (*IntentRecord, error)
	// FindLatestIntentByOrder returns the most recent intent minted for
	// the order with the given provider, or nil.
	FindLatestIntentByOrder(ctx context.Context, db *gorm.DB, orderID snowflake.ID, provider string) (*IntentRecord, error)
}
