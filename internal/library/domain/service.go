package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Service interface {
	// Grant inserts entries inside the caller's transaction. Entries the
	// user already owns are skipped, so replayed grants are harmless.
	Grant(ctx context.Context, tx *gorm.DB, entries []Entry) error
	List(ctx context.Context, userID string) ([]Entry, error)
	IsEntitled(ctx context.Context, userID string, releaseID snowflake.ID) (bool, error)
}
