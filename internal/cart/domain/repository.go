package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Upsert(ctx context.Context, db *gorm.DB, item *Item) error
	Delete(ctx context.Context, db *gorm.DB, userID string, productID snowflake.ID) (bool, error)
	DeleteAll(ctx context.Context, db *gorm.DB, userID string) error
	List(ctx context.Context, db *gorm.DB, userID string) ([]Item, error)
}
