package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/soundcrate/soundcrate/internal/cart/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Upsert(ctx context.Context, db *gorm.DB, item *domain.Item) error {
	// Last write wins on the override for an existing (user, product) row.
	return db.WithContext(ctx).Exec(
		`INSERT INTO cart_items (id, user_id, product_id, price_override, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT (user_id, product_id)
		 DO UPDATE SET price_override = EXCLUDED.price_override,
		               updated_at = EXCLUDED.updated_at`,
		item.ID,
		item.UserID,
		item.ProductID,
		item.PriceOverride,
		item.CreatedAt,
		item.UpdatedAt,
	).Error
}

func (r *repo) Delete(ctx context.Context, db *gorm.DB, userID string, productID snowflake.ID) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`DELETE FROM cart_items WHERE user_id = ? AND product_id = ?`,
		userID,
		productID,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) DeleteAll(ctx context.Context, db *gorm.DB, userID string) error {
	return db.WithContext(ctx).Exec(
		`DELETE FROM cart_items WHERE user_id = ?`,
		userID,
	).Error
}

func (r *repo) List(ctx context.Context, db *gorm.DB, userID string) ([]domain.Item, error) {
	var items []domain.Item
	err := db.WithContext(ctx).Raw(
		`SELECT id, user_id, product_id, price_override, created_at, updated_at
		 FROM cart_items
		 WHERE user_id = ?
		 ORDER BY created_at`,
		userID,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}
