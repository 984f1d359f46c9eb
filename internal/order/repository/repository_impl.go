package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/soundcrate/soundcrate/internal/order/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, order *domain.Order, items []domain.LineItem) error {
	err := db.WithContext(ctx).Exec(
		`INSERT INTO orders (id, user_id, status, currency, total_amount, provider, provider_intent_id, failure_reason, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, '', '', '', ?, ?)`,
		order.ID,
		order.UserID,
		order.Status,
		order.Currency,
		order.TotalAmount,
		order.CreatedAt,
		order.UpdatedAt,
	).Error
	if err != nil {
		return err
	}
	for _, item := range items {
		err := db.WithContext(ctx).Exec(
			`INSERT INTO order_items (id, order_id, product_id, release_id, title, artist, amount, currency, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			item.ID,
			item.OrderID,
			item.ProductID,
			item.ReleaseID,
			item.Title,
			item.Artist,
			item.Amount,
			item.Currency,
			item.CreatedAt,
		).Error
		if err != nil {
			return err
		}
	}
	return nil
}

const orderColumns = `id, user_id, status, currency, total_amount, provider, provider_intent_id, failure_reason, created_at, updated_at, completed_at`

func (r *repo) Find(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Order, error) {
	var order domain.Order
	err := db.WithContext(ctx).Raw(
		`SELECT `+orderColumns+` FROM orders WHERE id = ?`,
		id,
	).Scan(&order).Error
	if err != nil {
		return nil, err
	}
	if order.ID == 0 {
		return nil, nil
	}
	return &order, nil
}

func (r *repo) FindForUpdate(ctx context.Context, tx *gorm.DB, id snowflake.ID) (*domain.Order, error) {
	var order domain.Order
	err := tx.WithContext(ctx).Raw(
		`SELECT `+orderColumns+`
		 FROM orders
		 WHERE id = ?
		 FOR UPDATE`,
		id,
	).Scan(&order).Error
	if err != nil {
		return nil, err
	}
	if order.ID == 0 {
		return nil, nil
	}
	return &order, nil
}

func (r *repo) FindByProviderIntent(ctx context.Context, db *gorm.DB, provider, intentID string) (*domain.Order, error) {
	var order domain.Order
	err := db.WithContext(ctx).Raw(
		`SELECT `+orderColumns+`
		 FROM orders
		 WHERE provider = ? AND provider_intent_id = ?
		 LIMIT 1`,
		provider,
		intentID,
	).Scan(&order).Error
	if err != nil {
		return nil, err
	}
	if order.ID == 0 {
		return nil, nil
	}
	return &order, nil
}

func (r *repo) ListByUser(ctx context.Context, db *gorm.DB, userID string) ([]domain.Order, error) {
	var orders []domain.Order
	err := db.WithContext(ctx).Raw(
		`SELECT `+orderColumns+`
		 FROM orders
		 WHERE user_id = ?
		 ORDER BY created_at DESC`,
		userID,
	).Scan(&orders).Error
	if err != nil {
		return nil, err
	}
	return orders, nil
}

func (r *repo) ListItems(ctx context.Context, db *gorm.DB, orderID snowflake.ID) ([]domain.LineItem, error) {
	var items []domain.LineItem
	err := db.WithContext(ctx).Raw(
		`SELECT id, order_id, product_id, release_id, title, artist, amount, currency, created_at
		 FROM order_items
		 WHERE order_id = ?
		 ORDER BY id`,
		orderID,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) UpdateStatus(ctx context.Context, tx *gorm.DB, order *domain.Order) error {
	return tx.WithContext(ctx).Exec(
		`UPDATE orders
		 SET status = ?, failure_reason = ?, completed_at = ?, updated_at = ?
		 WHERE id = ?`,
		order.Status,
		order.FailureReason,
		order.CompletedAt,
		order.UpdatedAt,
		order.ID,
	).Error
}

func (r *repo) SetProviderIntent(ctx context.Context, db *gorm.DB, id snowflake.ID, provider, intentID string) error {
	return db.WithContext(ctx).Exec(
		`UPDATE orders SET provider = ?, provider_intent_id = ? WHERE id = ?`,
		provider,
		intentID,
		id,
	).Error
}
