package domain

import (
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

var (
	ErrItemNotFound = errors.New("cart_item_not_found")
	ErrInvalidUser  = errors.New("invalid_user")
)

// Item is one pending selection in a user's cart. The override is only
// meaningful for name-your-price products and is re-validated at order
// creation; cart rows are advisory, never authoritative.
type Item struct {
	ID            snowflake.ID     `json:"id" gorm:"primaryKey"`
	UserID        string           `json:"user_id" gorm:"type:text;not null;index:ux_cart_items_user_product,unique,priority:1"`
	ProductID     snowflake.ID     `json:"product_id" gorm:"not null;index:ux_cart_items_user_product,unique,priority:2"`
	PriceOverride *decimal.Decimal `json:"price_override,omitempty" gorm:"type:numeric(12,2)"`
	CreatedAt     time.Time        `json:"created_at" gorm:"not null"`
	UpdatedAt     time.Time        `json:"updated_at" gorm:"not null"`
}

func (Item) TableName() string { return "cart_items" }

// ResolvedItem pairs a cart row with its display price.
type ResolvedItem struct {
	Item     Item            `json:"item"`
	Amount   decimal.Decimal `json:"amount"`
	Currency string          `json:"currency"`
}

// Total is the advisory display total for one settlement currency.
type Total struct {
	Currency string          `json:"currency"`
	Amount   decimal.Decimal `json:"amount"`
}
