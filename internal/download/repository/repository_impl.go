package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/soundcrate/soundcrate/internal/download/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

const jobColumns = `id, user_id, release_id, format, status, artifact_key, size_bytes, failure_reason,
	expires_at, created_at, updated_at, started_at, completed_at`

func (r *repo) Insert(ctx context.Context, db *gorm.DB, job *domain.Job) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO download_jobs (id, user_id, release_id, format, status, artifact_key, size_bytes, failure_reason, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, '', 0, '', ?, ?)`,
		job.ID,
		job.UserID,
		job.ReleaseID,
		job.Format,
		job.Status,
		job.CreatedAt,
		job.UpdatedAt,
	).Error
}

func (r *repo) Find(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Job, error) {
	var job domain.Job
	err := db.WithContext(ctx).Raw(
		`SELECT `+jobColumns+` FROM download_jobs WHERE id = ?`,
		id,
	).Scan(&job).Error
	if err != nil {
		return nil, err
	}
	if job.ID == 0 {
		return nil, nil
	}
	return &job, nil
}

func (r *repo) FindReusable(ctx context.Context, db *gorm.DB, userID string, releaseID snowflake.ID, format domain.Format, now time.Time) (*domain.Job, error) {
	var job domain.Job
	err := db.WithContext(ctx).Raw(
		`SELECT `+jobColumns+`
		 FROM download_jobs
		 WHERE user_id = ? AND release_id = ? AND format = ?
		   AND (status IN (?, ?) OR (status = ? AND expires_at > ?))
		 ORDER BY created_at DESC
		 LIMIT 1`,
		userID,
		releaseID,
		format,
		domain.StatusPending,
		domain.StatusProcessing,
		domain.StatusReady,
		now,
	).Scan(&job).Error
	if err != nil {
		return nil, err
	}
	if job.ID == 0 {
		return nil, nil
	}
	return &job, nil
}

func (r *repo) ClaimPending(ctx context.Context, db *gorm.DB, now time.Time) (*domain.Job, error) {
	var claimed *domain.Job
	err := db.Transaction(func(tx *gorm.DB) error {
		var job domain.Job
		err := tx.WithContext(ctx).Raw(
			`SELECT `+jobColumns+`
			 FROM download_jobs
			 WHERE status = ?
			 ORDER BY created_at
			 LIMIT 1
			 FOR UPDATE SKIP LOCKED`,
			domain.StatusPending,
		).Scan(&job).Error
		if err != nil {
			return err
		}
		if job.ID == 0 {
			return nil
		}

		// The conditional WHERE keeps two workers from claiming the same
		// job even without the row lock.
		result := tx.WithContext(ctx).Exec(
			`UPDATE download_jobs
			 SET status = ?, started_at = ?, updated_at = ?
			 WHERE id = ? AND status = ?`,
			domain.StatusProcessing,
			now,
			now,
			job.ID,
			domain.StatusPending,
		)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return nil
		}
		job.Status = domain.StatusProcessing
		job.StartedAt = &now
		job.UpdatedAt = now
		claimed = &job
		return nil
	})
	if err != nil {
		return nil, err
	}
	return claimed, nil
}

func (r *repo) MarkReady(ctx context.Context, db *gorm.DB, id snowflake.ID, artifactKey string, size int64, expiresAt, now time.Time) error {
	result := db.WithContext(ctx).Exec(
		`UPDATE download_jobs
		 SET status = ?, artifact_key = ?, size_bytes = ?, expires_at = ?, completed_at = ?, updated_at = ?
		 WHERE id = ? AND status = ?`,
		domain.StatusReady,
		artifactKey,
		size,
		expiresAt,
		now,
		now,
		id,
		domain.StatusProcessing,
	)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrJobNotFound
	}
	return nil
}

func (r *repo) MarkFailed(ctx context.Context, db *gorm.DB, id snowflake.ID, reason string, now time.Time) error {
	result := db.WithContext(ctx).Exec(
		`UPDATE download_jobs
		 SET status = ?, failure_reason = ?, completed_at = ?, updated_at = ?
		 WHERE id = ? AND status IN (?, ?)`,
		domain.StatusFailed,
		reason,
		now,
		now,
		id,
		domain.StatusPending,
		domain.StatusProcessing,
	)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrJobNotFound
	}
	return nil
}

func (r *repo) ListExpiredReady(ctx context.Context, db *gorm.DB, now time.Time, limit int) ([]domain.Job, error) {
	var jobs []domain.Job
	err := db.WithContext(ctx).Raw(
		`SELECT `+jobColumns+`
		 FROM download_jobs
		 WHERE status = ? AND expires_at <= ?
		 ORDER BY expires_at
		 LIMIT ?`,
		domain.StatusReady,
		now,
		limit,
	).Scan(&jobs).Error
	if err != nil {
		return nil, err
	}
	return jobs, nil
}

func (r *repo) MarkExpired(ctx context.Context, db *gorm.DB, id snowflake.ID, now time.Time) (bool, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE download_jobs
		 SET status = ?, updated_at = ?
		 WHERE id = ? AND status = ?`,
		domain.StatusExpired,
		now,
		id,
		domain.StatusReady,
	)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repo) ListStuckProcessing(ctx context.Context, db *gorm.DB, cutoff time.Time, limit int) ([]domain.Job, error) {
	var jobs []domain.Job
	err := db.WithContext(ctx).Raw(
		`SELECT `+jobColumns+`
		 FROM download_jobs
		 WHERE status = ? AND started_at < ?
		 ORDER BY started_at
		 LIMIT ?`,
		domain.StatusProcessing,
		cutoff,
		limit,
	).Scan(&jobs).Error
	if err != nil {
		return nil, err
	}
	return jobs, nil
}
