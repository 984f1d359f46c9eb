package service

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	cartdomain "github.com/soundcrate/soundcrate/internal/cart/domain"
	catalogdomain "github.com/soundcrate/soundcrate/internal/catalog/domain"
	"github.com/soundcrate/soundcrate/internal/clock"
	librarydomain "github.com/soundcrate/soundcrate/internal/library/domain"
	"github.com/soundcrate/soundcrate/internal/observability/metrics"
	orderdomain "github.com/soundcrate/soundcrate/internal/order/domain"
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
	Repo        orderdomain.Repository
	CartRepo    cartdomain.Repository
	CatalogRepo catalogdomain.Repository
	Library     librarydomain.Service
	Metrics     *metrics.Metrics     `optional:"true"`
	Notifier    orderdomain.Notifier `optional:"true"`
}

type Service struct {
	db          *gorm.DB
	log         *zap.Logger
	genID       *snowflake.Node
	clock       clock.Clock
	repo        orderdomain.Repository
	cartRepo    cartdomain.Repository
	catalogRepo catalogdomain.Repository
	library     librarydomain.Service
	metrics     *metrics.Metrics
	notifier    orderdomain.Notifier
}

func NewService(p Params) orderdomain.Service {
	return &Service{
		db:          p.DB,
		log:         p.Log.Named("order.service"),
		genID:       p.GenID,
		clock:       p.Clock,
		repo:        p.Repo,
		cartRepo:    p.CartRepo,
		catalogRepo: p.CatalogRepo,
		library:     p.Library,
		metrics:     p.Metrics,
		notifier:    p.Notifier,
	}
}

func (s *Service) Create(ctx context.Context, userID string) (*orderdomain.Order, error) {
	if userID == "" {
		return nil, cartdomain.ErrInvalidUser
	}

	cartItems, err := s.cartRepo.List(ctx, s.db, userID)
	if err != nil {
		return nil, err
	}
	if len(cartItems) == 0 {
		return nil, orderdomain.ErrEmptyOrder
	}

	now := s.clock.Now().UTC()
	order := &orderdomain.Order{
		ID:        s.genID.Generate(),
		UserID:    userID,
		Status:    orderdomain.StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}

	// Re-resolve every line against the live catalog. The cart's view is
	// advisory; this pass produces the frozen ledger amounts.
	items := make([]orderdomain.LineItem, 0, len(cartItems))
	total := decimal.Zero
	for _, ci := range cartItems {
		product, err := s.catalogRepo.FindProduct(ctx, s.db, ci.ProductID)
		if err != nil {
			return nil, err
		}
		if product == nil {
			return nil, catalogdomain.ErrProductNotFound
		}
		charge, err := pricing.Resolve(*product, ci.PriceOverride)
		if err != nil {
			return nil, err
		}
		release, err := s.catalogRepo.FindRelease(ctx, s.db, product.ReleaseID)
		if err != nil {
			return nil, err
		}
		if release == nil {
			return nil, catalogdomain.ErrReleaseNotFound
		}

		if charge.Currency != "" {
			if order.Currency == "" {
				order.Currency = charge.Currency
			} else if order.Currency != charge.Currency {
				return nil, orderdomain.ErrCurrencyMismatch
			}
		}
		total = total.Add(charge.Amount)
		items = append(items, orderdomain.LineItem{
			ID:        s.genID.Generate(),
			OrderID:   order.ID,
			ProductID: product.ID,
			ReleaseID: release.ID,
			Title:     release.Title,
			Artist:    release.Artist,
			Amount:    charge.Amount,
			Currency:  charge.Currency,
			CreatedAt: now,
		})
	}
	order.TotalAmount = total

	err = s.db.Transaction(func(tx *gorm.DB) error {
		return s.repo.Insert(ctx, tx, order, items)
	})
	if err != nil {
		return nil, err
	}

	// Clearing after commit at worst leaves the cart populated if we
	// crash in between; stale rows are cheap, lost orders are not.
	if err := s.cartRepo.DeleteAll(ctx, s.db, userID); err != nil {
		s.log.Warn("failed to clear cart after order creation",
			zap.String("order_id", order.ID.String()),
			zap.Error(err))
	}

	s.metrics.RecordOrderCreated(ctx, order.Currency)
	s.log.Info("order created",
		zap.String("order_id", order.ID.String()),
		zap.String("user_id", userID),
		zap.String("total", order.TotalAmount.String()),
		zap.String("currency", order.Currency))

	if order.TotalAmount.IsZero() {
		if err := s.Complete(ctx, order.ID, "", ""); err != nil {
			return nil, err
		}
		return s.findExisting(ctx, order.ID)
	}
	return order, nil
}

func (s *Service) findExisting(ctx context.Context, id snowflake.ID) (*orderdomain.Order, error) {
	order, err := s.repo.Find(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, orderdomain.ErrOrderNotFound
	}
	return order, nil
}

func (s *Service) Find(ctx context.Context, id snowflake.ID) (*orderdomain.Order, error) {
	return s.findExisting(ctx, id)
}

func (s *Service) Get(ctx context.Context, userID string, id snowflake.ID) (*orderdomain.Order, []orderdomain.LineItem, error) {
	order, err := s.findExisting(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if order.UserID != userID {
		return nil, nil, orderdomain.ErrOrderNotFound
	}
	items, err := s.repo.ListItems(ctx, s.db, id)
	if err != nil {
		return nil, nil, err
	}
	return order, items, nil
}

func (s *Service) List(ctx context.Context, userID string) ([]orderdomain.Order, error) {
	return s.repo.ListByUser(ctx, s.db, userID)
}

func (s *Service) Complete(ctx context.Context, id snowflake.ID, provider, intentID string) error {
	var completed *orderdomain.Order
	var items []orderdomain.LineItem

	err := s.db.Transaction(func(tx *gorm.DB) error {
		order, err := s.repo.FindForUpdate(ctx, tx, id)
		if err != nil {
			return err
		}
		if order == nil {
			return orderdomain.ErrOrderNotFound
		}
		if order.Status == orderdomain.StatusCompleted {
			// Replay of a settled event; nothing to do.
			return nil
		}
		if order.Status != orderdomain.StatusPending {
			return orderdomain.ErrInvalidTransition
		}

		now := s.clock.Now().UTC()
		order.Status = orderdomain.StatusCompleted
		order.CompletedAt = &now
		order.UpdatedAt = now
		if err := s.repo.UpdateStatus(ctx, tx, order); err != nil {
			return err
		}

		items, err = s.repo.ListItems(ctx, tx, id)
		if err != nil {
			return err
		}

		entries := make([]librarydomain.Entry, 0, len(items))
		for _, item := range items {
			entries = append(entries, librarydomain.Entry{
				ID:         s.genID.Generate(),
				UserID:     order.UserID,
				ProductID:  item.ProductID,
				ReleaseID:  item.ReleaseID,
				OrderID:    order.ID,
				PricePaid:  item.Amount,
				Currency:   item.Currency,
				AcquiredAt: now,
			})
		}
		if err := s.library.Grant(ctx, tx, entries); err != nil {
			return err
		}
		completed = order
		return nil
	})
	if err != nil {
		return err
	}
	if completed == nil {
		return nil
	}

	s.metrics.RecordOrderCompleted(ctx, provider)
	s.log.Info("order completed",
		zap.String("order_id", completed.ID.String()),
		zap.String("provider", provider),
		zap.String("intent_id", intentID))

	if s.notifier != nil {
		s.notifier.OrderCompleted(ctx, *completed, items)
	}
	return nil
}

func (s *Service) Fail(ctx context.Context, id snowflake.ID, reason string) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		order, err := s.repo.FindForUpdate(ctx, tx, id)
		if err != nil {
			return err
		}
		if order == nil {
			return orderdomain.ErrOrderNotFound
		}
		if order.Status == orderdomain.StatusFailed {
			return nil
		}
		if order.Status != orderdomain.StatusPending {
			return orderdomain.ErrInvalidTransition
		}

		now := s.clock.Now().UTC()
		order.Status = orderdomain.StatusFailed
		order.FailureReason = reason
		order.UpdatedAt = now
		return s.repo.UpdateStatus(ctx, tx, order)
	})
}

func (s *Service) Cancel(ctx context.Context, userID string, id snowflake.ID) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		order, err := s.repo.FindForUpdate(ctx, tx, id)
		if err != nil {
			return err
		}
		if order == nil || order.UserID != userID {
			return orderdomain.ErrOrderNotFound
		}
		if order.Status == orderdomain.StatusCancelled {
			return nil
		}
		if order.Status != orderdomain.StatusPending {
			return orderdomain.ErrInvalidTransition
		}

		now := s.clock.Now().UTC()
		order.Status = orderdomain.StatusCancelled
		order.UpdatedAt = now
		return s.repo.UpdateStatus(ctx, tx, order)
	})
}

func (s *Service) AttachIntent(ctx context.Context, id snowflake.ID, provider, intentID string) error {
	order, err := s.findExisting(ctx, id)
	if err != nil {
		return err
	}
	if order.Status != orderdomain.StatusPending {
		return orderdomain.ErrOrderNotPayable
	}
	return s.repo.SetProviderIntent(ctx, s.db, id, provider, intentID)
}

func (s *Service) FindByProviderIntent(ctx context.Context, provider, intentID string) (*orderdomain.Order, error) {
	order, err := s.repo.FindByProviderIntent(ctx, s.db, provider, intentID)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, orderdomain.ErrOrderNotFound
	}
	return order, nil
}
