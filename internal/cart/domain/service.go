package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

type Service interface {
	AddItem(ctx context.Context, userID string, productID snowflake.ID, override *decimal.Decimal) (*Item, error)
	RemoveItem(ctx context.Context, userID string, productID snowflake.ID) error
	Clear(ctx context.Context, userID string) error
	Get(ctx context.Context, userID string) ([]ResolvedItem, []Total, error)
}
