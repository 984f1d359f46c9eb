package domain

import (
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

var (
	ErrReleaseNotFound = errors.New("release_not_found")
	ErrProductNotFound = errors.New("product_not_found")
	ErrInvalidProduct  = errors.New("invalid_product")
)

// PricingModel selects how a product is charged.
type PricingModel string

const (
	PricingFree         PricingModel = "free"
	PricingPaid         PricingModel = "paid"
	PricingNameYourPrice PricingModel = "nyp"
)

type Release struct {
	ID        snowflake.ID `json:"id" gorm:"primaryKey"`
	Artist    string       `json:"artist" gorm:"type:text;not null"`
	Title     string       `json:"title" gorm:"type:text;not null"`
	Slug      string       `json:"slug" gorm:"type:text;not null;uniqueIndex"`
	CreatedAt time.Time    `json:"created_at" gorm:"not null"`
}

func (Release) TableName() string { return "releases" }

type Track struct {
	ID         snowflake.ID `json:"id" gorm:"primaryKey"`
	ReleaseID  snowflake.ID `json:"release_id" gorm:"not null;index"`
	Position   int          `json:"position" gorm:"not null"`
	Title      string       `json:"title" gorm:"type:text;not null"`
	SourcePath string       `json:"-" gorm:"type:text;not null"`
	DurationSec int         `json:"duration_sec" gorm:"not null;default:0"`
}

func (Track) TableName() string { return "tracks" }

// Product is the sellable unit wrapping a release.
type Product struct {
	ID           snowflake.ID     `json:"id" gorm:"primaryKey"`
	ReleaseID    snowflake.ID     `json:"release_id" gorm:"not null;uniqueIndex"`
	PricingModel PricingModel     `json:"pricing_model" gorm:"type:text;not null"`
	BasePrice    *decimal.Decimal `json:"base_price,omitempty" gorm:"type:numeric(12,2)"`
	Currency     string           `json:"currency" gorm:"type:text;not null;default:''"`
	MinimumPrice decimal.Decimal  `json:"minimum_price" gorm:"type:numeric(12,2);not null;default:0"`
	CreatedAt    time.Time        `json:"created_at" gorm:"not null"`
}

func (Product) TableName() string { return "products" }

// Validate enforces the pricing-model invariants.
func (p Product) Validate() error {
	switch p.PricingModel {
	case PricingFree:
		return nil
	case PricingPaid:
		if p.BasePrice == nil || !p.BasePrice.IsPositive() {
			return ErrInvalidProduct
		}
		if p.Currency == "" {
			return ErrInvalidProduct
		}
		return nil
	case PricingNameYourPrice:
		if p.Currency == "" {
			return ErrInvalidProduct
		}
		if p.MinimumPrice.IsNegative() {
			return ErrInvalidProduct
		}
		return nil
	default:
		return ErrInvalidProduct
	}
}
