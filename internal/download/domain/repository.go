package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, job *Job) error
	Find(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Job, error)

	// FindReusable returns the newest job for (user, release, format)
	// that is still in flight or READY and unexpired.
	FindReusable(ctx context.Context, db *gorm.DB, userID string, releaseID snowflake.ID, format Format, now time.Time) (*Job, error)

	// ClaimPending atomically moves one PENDING job to PROCESSING and
	// returns it; nil when the queue is empty.
	ClaimPending(ctx context.Context, db *gorm.DB, now time.Time) (*Job, error)

	MarkReady(ctx context.Context, db *gorm.DB, id snowflake.ID, artifactKey string, size int64, expiresAt, now time.Time) error
	MarkFailed(ctx context.Context, db *gorm.DB, id snowflake.ID, reason string, now time.Time) error

	// ListExpiredReady returns READY jobs whose retention window has
	// lapsed.
	ListExpiredReady(ctx context.Context, db *gorm.DB, now time.Time, limit int) ([]Job, error)
	MarkExpired(ctx context.Context, db *gorm.DB, id snowflake.ID, now time.Time) (bool, error)

	// ListStuckProcessing returns PROCESSING jobs started before the
	// cutoff; their worker is presumed gone.
	ListStuckProcessing(ctx context.Context, db *gorm.DB, cutoff time.Time, limit int) ([]Job, error)
}
