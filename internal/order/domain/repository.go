package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, order *Order, items []LineItem) error
	Find(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Order, error)
	FindForUpdate(ctx context.Context, tx *gorm.DB, id snowflake.ID) (*Order, error)
	FindByProviderIntent(ctx context.Context, db *gorm.DB, provider, intentID string) (*Order, error)
	ListByUser(ctx context.Context, db *gorm.DB, userID string) ([]Order, error)
	ListItems(ctx context.Context, db *gorm.DB, orderID snowflake.ID) ([]LineItem, error)
	UpdateStatus(ctx context.Context, tx *gorm.DB, order *Order) error
	SetProviderIntent(ctx context.Context, db *gorm.DB, id snowflake.ID, provider, intentID string) error
}
