package pricing

import (
	"errors"
	"strings"

	catalogdomain "github.com/soundcrate/soundcrate/internal/catalog/domain"
	"github.com/shopspring/decimal"
)

var ErrInvalidPrice = errors.New("invalid_price")

// Charge is the authoritative amount a buyer is charged for one product.
type Charge struct {
	Amount   decimal.Decimal
	Currency string
}

// Resolve computes the charge for a product given an optional
// client-supplied override. It is deterministic and side-effect free:
// the same inputs always produce the same charge, which is what lets
// the cart call it for display and the order ledger call it again as
// the authority.
func Resolve(product catalogdomain.Product, override *decimal.Decimal) (Charge, error) {
	if err := product.Validate(); err != nil {
		return Charge{}, err
	}

	currency := strings.ToUpper(strings.TrimSpace(product.Currency))

	switch product.PricingModel {
	case catalogdomain.PricingFree:
		return Charge{Amount: decimal.Zero, Currency: currency}, nil

	case catalogdomain.PricingPaid:
		// Client-supplied amounts are never trusted for fixed pricing.
		return Charge{Amount: *product.BasePrice, Currency: currency}, nil

	case catalogdomain.PricingNameYourPrice:
		if override == nil {
			return Charge{}, ErrInvalidPrice
		}
		if override.IsNegative() {
			return Charge{}, ErrInvalidPrice
		}
		if override.LessThan(product.MinimumPrice) {
			return Charge{}, ErrInvalidPrice
		}
		return Charge{Amount: *override, Currency: currency}, nil

	default:
		return Charge{}, ErrInvalidPrice
	}
}
