package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/soundcrate/soundcrate/internal/catalog/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) FindRelease(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Release, error) {
	var item domain.Release
	err := db.WithContext(ctx).Raw(
		`SELECT id, artist, title, slug, created_at
		 FROM releases
		 WHERE id = ?
		 LIMIT 1`,
		id,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) ListReleases(ctx context.Context, db *gorm.DB, limit int) ([]domain.Release, error) {
	if limit <= 0 {
		limit = 50
	}
	var items []domain.Release
	err := db.WithContext(ctx).Raw(
		`SELECT id, artist, title, slug, created_at
		 FROM releases
		 ORDER BY created_at DESC
		 LIMIT ?`,
		limit,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) ListTracks(ctx context.Context, db *gorm.DB, releaseID snowflake.ID) ([]domain.Track, error) {
	var items []domain.Track
	err := db.WithContext(ctx).Raw(
		`SELECT id, release_id, position, title, source_path, duration_sec
		 FROM tracks
		 WHERE release_id = ?
		 ORDER BY position`,
		releaseID,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) FindProduct(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Product, error) {
	var item domain.Product
	err := db.WithContext(ctx).Raw(
		`SELECT id, release_id, pricing_model, base_price, currency, minimum_price, created_at
		 FROM products
		 WHERE id = ?
		 LIMIT 1`,
		id,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) FindProductByRelease(ctx context.Context, db *gorm.DB, releaseID snowflake.ID) (*domain.Product, error) {
	var item domain.Product
	err := db.WithContext(ctx).Raw(
		`SELECT id, release_id, pricing_model, base_price, currency, minimum_price, created_at
		 FROM products
		 WHERE release_id = ?
		 LIMIT 1`,
		releaseID,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}
