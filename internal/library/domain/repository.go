package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	InsertIgnoreDuplicate(ctx context.Context, db *gorm.DB, entry *Entry) error
	List(ctx context.Context, db *gorm.DB, userID string) ([]Entry, error)
	ExistsByRelease(ctx context.Context, db *gorm.DB, userID string, releaseID snowflake.ID) (bool, error)
}
