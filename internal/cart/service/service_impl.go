package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	cartdomain "github.com/soundcrate/soundcrate/internal/cart/domain"
	catalogdomain "github.com/soundcrate/soundcrate/internal/catalog/domain"
	"github.com/soundcrate/soundcrate/internal/clock"
	"github.com/soundcrate/soundcrate/internal/pricing"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB          *gorm.DB
	Log         *zap.Logger
	GenID       *snowflake.Node
	Clock       clock.Clock
	Repo        cartdomain.Repository
	CatalogRepo catalogdomain.Repository
}

type Service struct {
	db          *gorm.DB
	log         *zap.Logger
	genID       *snowflake.Node
	clock       clock.Clock
	repo        cartdomain.Repository
	catalogRepo catalogdomain.Repository
}

func NewService(p Params) cartdomain.Service {
	return &Service{
		db:          p.DB,
		log:         p.Log.Named("cart.service"),
		genID:       p.GenID,
		clock:       p.Clock,
		repo:        p.Repo,
		catalogRepo: p.CatalogRepo,
	}
}

func (s *Service) AddItem(ctx context.Context, userID string, productID snowflake.ID, override *decimal.Decimal) (*cartdomain.Item, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, cartdomain.ErrInvalidUser
	}

	product, err := s.catalogRepo.FindProduct(ctx, s.db, productID)
	if err != nil {
		return nil, err
	}
	if product == nil {
		return nil, catalogdomain.ErrProductNotFound
	}

	// Early feedback only; order creation re-resolves authoritatively.
	if _, err := pricing.Resolve(*product, override); err != nil {
		return nil, err
	}
	if product.PricingModel != catalogdomain.PricingNameYourPrice {
		override = nil
	}

	now := s.clock.Now().UTC()
	item := &cartdomain.Item{
		ID:            s.genID.Generate(),
		UserID:        userID,
		ProductID:     product.ID,
		PriceOverride: override,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.repo.Upsert(ctx, s.db, item); err != nil {
		return nil, err
	}
	return item, nil
}

func (s *Service) RemoveItem(ctx context.Context, userID string, productID snowflake.ID) error {
	removed, err := s.repo.Delete(ctx, s.db, userID, productID)
	if err != nil {
		return err
	}
	if !removed {
		return cartdomain.ErrItemNotFound
	}
	return nil
}

func (s *Service) Clear(ctx context.Context, userID string) error {
	return s.repo.DeleteAll(ctx, s.db, userID)
}

func (s *Service) Get(ctx context.Context, userID string) ([]cartdomain.ResolvedItem, []cartdomain.Total, error) {
	items, err := s.repo.List(ctx, s.db, userID)
	if err != nil {
		return nil, nil, err
	}

	resolved := make([]cartdomain.ResolvedItem, 0, len(items))
	totals := map[string]decimal.Decimal{}
	order := make([]string, 0, 2)
	for _, item := range items {
		product, err := s.catalogRepo.FindProduct(ctx, s.db, item.ProductID)
		if err != nil {
			return nil, nil, err
		}
		if product == nil {
			// Product was pulled from the catalog; drop the stale row.
			if _, err := s.repo.Delete(ctx, s.db, userID, item.ProductID); err != nil {
				s.log.Warn("failed to drop stale cart row", zap.Error(err))
			}
			continue
		}

		charge, err := pricing.Resolve(*product, item.PriceOverride)
		if err != nil {
			return nil, nil, err
		}
		resolved = append(resolved, cartdomain.ResolvedItem{
			Item:     item,
			Amount:   charge.Amount,
			Currency: charge.Currency,
		})
		// Free products carry no currency and contribute nothing.
		if charge.Currency == "" {
			continue
		}
		if _, seen := totals[charge.Currency]; !seen {
			order = append(order, charge.Currency)
		}
		totals[charge.Currency] = totals[charge.Currency].Add(charge.Amount)
	}

	out := make([]cartdomain.Total, 0, len(order))
	for _, currency := range order {
		out = append(out, cartdomain.Total{Currency: currency, Amount: totals[currency]})
	}
	return resolved, out, nil
}
