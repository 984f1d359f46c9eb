package pricing_test

import (
	"testing"

	catalogdomain "github.com/soundcrate/soundcrate/internal/catalog/domain"
	"github.com/soundcrate/soundcrate/internal/pricing"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func decPtr(s string) *decimal.Decimal {
	d := dec(s)
	return &d
}

func TestResolveFree(t *testing.T) {
	product := catalogdomain.Product{PricingModel: catalogdomain.PricingFree}

	charge, err := pricing.Resolve(product, nil)
	require.NoError(t, err)
	assert.True(t, charge.Amount.IsZero())

	// Overrides on free products are ignored, not rejected.
	charge, err = pricing.Resolve(product, decPtr("9.99"))
	require.NoError(t, err)
	assert.True(t, charge.Amount.IsZero())
}

func TestResolvePaidIgnoresOverride(t *testing.T) {
	product := catalogdomain.Product{
		PricingModel: catalogdomain.PricingPaid,
		BasePrice:    decPtr("7.00"),
		Currency:     "usd",
	}

	charge, err := pricing.Resolve(product, decPtr("0.01"))
	require.NoError(t, err)
	assert.True(t, charge.Amount.Equal(dec("7.00")))
	assert.Equal(t, "USD", charge.Currency)
}

func TestResolveNameYourPrice(t *testing.T) {
	product := catalogdomain.Product{
		PricingModel: catalogdomain.PricingNameYourPrice,
		Currency:     "USD",
		MinimumPrice: dec("2.00"),
	}

	_, err := pricing.Resolve(product, nil)
	assert.ErrorIs(t, err, pricing.ErrInvalidPrice)

	_, err = pricing.Resolve(product, decPtr("1.00"))
	assert.ErrorIs(t, err, pricing.ErrInvalidPrice)

	_, err = pricing.Resolve(product, decPtr("-5.00"))
	assert.ErrorIs(t, err, pricing.ErrInvalidPrice)

	charge, err := pricing.Resolve(product, decPtr("5.00"))
	require.NoError(t, err)
	assert.True(t, charge.Amount.Equal(dec("5.00")))
}

func TestResolveDeterministic(t *testing.T) {
	product := catalogdomain.Product{
		PricingModel: catalogdomain.PricingNameYourPrice,
		Currency:     "EUR",
		MinimumPrice: dec("1.50"),
	}

	first, err := pricing.Resolve(product, decPtr("3.33"))
	require.NoError(t, err)
	second, err := pricing.Resolve(product, decPtr("3.33"))
	require.NoError(t, err)
	assert.True(t, first.Amount.Equal(second.Amount))
	assert.Equal(t, first.Currency, second.Currency)
}

func TestResolveInvalidProduct(t *testing.T) {
	// PAID with no base price violates the product invariant.
	product := catalogdomain.Product{
		PricingModel: catalogdomain.PricingPaid,
		Currency:     "USD",
	}
	_, err := pricing.Resolve(product, nil)
	assert.ErrorIs(t, err, catalogdomain.ErrInvalidProduct)
}
