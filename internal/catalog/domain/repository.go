package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// Repository is the read-only catalog lookup; the core never mutates
// catalog data.
type Repository interface {
	FindRelease(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Release, error)
	ListReleases(ctx context.Context, db *gorm.DB, limit int) ([]Release, error)
	ListTracks(ctx context.Context, db *gorm.DB, releaseID snowflake.ID) ([]Track, error)
	FindProduct(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Product, error)
	FindProductByRelease(ctx context.Context, db *gorm.DB, releaseID snowflake.ID) (*Product, error)
}
