package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

// Entry records that a user owns a product. Ownership is permanent;
// entries are never updated or deleted, only inserted.
type Entry struct {
	ID        snowflake.ID    `json:"id" gorm:"primaryKey"`
	UserID    string          `json:"user_id" gorm:"type:text;not null;uniqueIndex:ux_library_entries_user_product"`
	ProductID snowflake.ID    `json:"product_id" gorm:"not null;uniqueIndex:ux_library_entries_user_product"`
	ReleaseID snowflake.ID    `json:"release_id" gorm:"not null;index"`
	OrderID   snowflake.ID    `json:"order_id" gorm:"not null"`
	PricePaid decimal.Decimal `json:"price_paid" gorm:"type:numeric(12,2);not null;default:0"`
	Currency  string          `json:"currency" gorm:"type:text;not null;default:''"`
	AcquiredAt time.Time      `json:"acquired_at" gorm:"not null"`
}

func (Entry) TableName() string { return "library_entries" }
