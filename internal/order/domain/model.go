package domain

import (
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

var (
	ErrOrderNotFound     = errors.New("order_not_found")
	ErrEmptyOrder        = errors.New("empty_order")
	ErrCurrencyMismatch  = errors.New("currency_mismatch")
	ErrInvalidTransition = errors.New("invalid_order_transition")
	ErrOrderNotPayable   = errors.New("order_not_payable")
)

type OrderStatus string

const (
	StatusPending   OrderStatus = "PENDING"
	StatusCompleted OrderStatus = "COMPLETED"
	StatusFailed    OrderStatus = "FAILED"
	StatusCancelled OrderStatus = "CANCELLED"
)

// Terminal reports whether the status admits no further transitions.
func (s OrderStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// Order is a ledger row. Amounts are frozen at creation time; catalog
// price changes after that never alter an existing order.
type Order struct {
	ID               snowflake.ID    `json:"id" gorm:"primaryKey"`
	UserID           string          `json:"user_id" gorm:"type:text;not null;index"`
	Status           OrderStatus     `json:"status" gorm:"type:text;not null"`
	Currency         string          `json:"currency" gorm:"type:text;not null;default:''"`
	TotalAmount      decimal.Decimal `json:"total_amount" gorm:"type:numeric(12,2);not null;default:0"`
	Provider         string          `json:"provider,omitempty" gorm:"type:text;not null;default:''"`
	ProviderIntentID string          `json:"-" gorm:"type:text;not null;default:'';index"`
	FailureReason    string          `json:"failure_reason,omitempty" gorm:"type:text;not null;default:''"`
	CreatedAt        time.Time       `json:"created_at" gorm:"not null"`
	UpdatedAt        time.Time       `json:"updated_at" gorm:"not null"`
	CompletedAt      *time.Time      `json:"completed_at,omitempty"`
}

func (Order) TableName() string { return "orders" }

// LineItem snapshots one purchased product. Title and artist are
// copied from the catalog so the receipt survives catalog edits.
type LineItem struct {
	ID        snowflake.ID    `json:"id" gorm:"primaryKey"`
	OrderID   snowflake.ID    `json:"order_id" gorm:"not null;index"`
	ProductID snowflake.ID    `json:"product_id" gorm:"not null"`
	ReleaseID snowflake.ID    `json:"release_id" gorm:"not null"`
	Title     string          `json:"title" gorm:"type:text;not null"`
	Artist    string          `json:"artist" gorm:"type:text;not null"`
	Amount    decimal.Decimal `json:"amount" gorm:"type:numeric(12,2);not null;default:0"`
	Currency  string          `json:"currency" gorm:"type:text;not null;default:''"`
	CreatedAt time.Time       `json:"created_at" gorm:"not null"`
}

func (LineItem) TableName() string { return "order_items" }
