package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/soundcrate/soundcrate/internal/library/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) InsertIgnoreDuplicate(ctx context.Context, db *gorm.DB, entry *domain.Entry) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO library_entries (id, user_id, product_id, release_id, order_id, price_paid, currency, acquired_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (user_id, product_id) DO NOTHING`,
		entry.ID,
		entry.UserID,
		entry.ProductID,
		entry.ReleaseID,
		entry.OrderID,
		entry.PricePaid,
		entry.Currency,
		entry.AcquiredAt,
	).Error
}

func (r *repo) List(ctx context.Context, db *gorm.DB, userID string) ([]domain.Entry, error) {
	var entries []domain.Entry
	err := db.WithContext(ctx).Raw(
		`SELECT id, user_id, product_id, release_id, order_id, price_paid, currency, acquired_at
		 FROM library_entries
		 WHERE user_id = ?
		 ORDER BY acquired_at DESC`,
		userID,
	).Scan(&entries).Error
	if err != nil {
		return nil, err
	}
	return entries, nil
}

func (r *repo) ExistsByRelease(ctx context.Context, db *gorm.DB, userID string, releaseID snowflake.ID) (bool, error) {
	var count int64
	err := db.WithContext(ctx).Raw(
		`SELECT COUNT(1) FROM library_entries WHERE user_id = ? AND release_id = ?`,
		userID,
		releaseID,
	).Scan(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}
