package seed

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gosimple/slug"
	"github.com/shopspring/decimal"
	catalogdomain "github.com/soundcrate/soundcrate/internal/catalog/domain"
	"gorm.io/gorm"
)

type demoRelease struct {
	artist  string
	title   string
	model   catalogdomain.PricingModel
	price   string
	minimum string
	tracks  []string
}

var demoCatalog = []demoRelease{
	{
		artist: "Night Bus",
		title:  "Terminal",
		model:  catalogdomain.PricingPaid,
		price:  "9.99",
		tracks: []string{"Departure", "Overpass", "Last Stop"},
	},
	{
		artist:  "Glass Harbor",
		title:   "Low Tide",
		model:   catalogdomain.PricingNameYourPrice,
		minimum: "4.00",
		tracks:  []string{"Moorings", "Salt Air"},
	},
	{
		artist: "Pale Signal",
		title:  "First Transmission",
		model:  catalogdomain.PricingFree,
		tracks: []string{"Static", "Carrier Wave", "Sign Off"},
	},
}

// EnsureDemoCatalog seeds a small storefront so a fresh local install
// has something to browse and buy. Existing slugs are left alone, so
// reseeding is harmless.
func EnsureDemoCatalog(db *gorm.DB) error {
	if db == nil {
		return errors.New("seed database handle is required")
	}

	node, err := snowflake.NewNode(9)
	if err != nil {
		return err
	}

	ctx := context.Background()
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, demo := range demoCatalog {
			if err := ensureReleaseTx(ctx, tx, node, demo); err != nil {
				return err
			}
		}
		return nil
	})
}

func ensureReleaseTx(ctx context.Context, tx *gorm.DB, node *snowflake.Node, demo demoRelease) error {
	releaseSlug := slug.Make(demo.artist + " " + demo.title)

	var count int64
	if err := tx.WithContext(ctx).Model(&catalogdomain.Release{}).
		Where("slug = ?", releaseSlug).
		Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	now := time.Now().UTC()
	release := catalogdomain.Release{
		ID:        node.Generate(),
		Artist:    demo.artist,
		Title:     demo.title,
		Slug:      releaseSlug,
		CreatedAt: now,
	}
	if err := tx.WithContext(ctx).Create(&release).Error; err != nil {
		return err
	}

	for i, title := range demo.tracks {
		track := catalogdomain.Track{
			ID:         node.Generate(),
			ReleaseID:  release.ID,
			Position:   i + 1,
			Title:      title,
			SourcePath: "./data/sources/" + releaseSlug + "/" + slug.Make(title) + ".wav",
		}
		if err := tx.WithContext(ctx).Create(&track).Error; err != nil {
			return err
		}
	}

	product := catalogdomain.Product{
		ID:           node.Generate(),
		ReleaseID:    release.ID,
		PricingModel: demo.model,
		CreatedAt:    now,
	}
	if demo.model != catalogdomain.PricingFree {
		product.Currency = "USD"
	}
	if demo.price != "" {
		price := decimal.RequireFromString(demo.price)
		product.BasePrice = &price
	}
	if demo.minimum != "" {
		product.MinimumPrice = decimal.RequireFromString(demo.minimum)
	}
	if err := product.Validate(); err != nil {
		return err
	}
	return tx.WithContext(ctx).Create(&product).Error
}
