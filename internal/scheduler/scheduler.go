package scheduler

import (
	"context"
	"errors"
	"time"

	"github.com/soundcrate/soundcrate/internal/clock"
	"github.com/soundcrate/soundcrate/internal/config"
	downloaddomain "github.com/soundcrate/soundcrate/internal/download/domain"
	"github.com/soundcrate/soundcrate/internal/observability/metrics"
	"github.com/soundcrate/soundcrate/internal/ratelimit"
	"github.com/soundcrate/soundcrate/internal/storage"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var ErrInvalidConfig = errors.New("scheduler: missing dependency")

// sweepLockKey elects a single sweep runner when several scheduler
// instances share a database and redis is configured.
const sweepLockKey = "soundcrate:sweep:leader"

type Params struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	Clock   clock.Clock
	AppCfg  config.Config
	Repo    downloaddomain.Repository
	Blob    storage.BlobStore
	Locker  *ratelimit.Locker `optional:"true"`
	Metrics *metrics.Metrics  `optional:"true"`
	Config  Config            `optional:"true"`
}

// Scheduler runs the periodic maintenance sweeps over download jobs:
// expiring READY artifacts past retention and failing PROCESSING jobs
// whose worker is presumed gone.
type Scheduler struct {
	db             *gorm.DB
	log            *zap.Logger
	cfg            Config
	clock          clock.Clock
	repo           downloaddomain.Repository
	blob           storage.BlobStore
	locker         *ratelimit.Locker
	metrics        *metrics.Metrics
	stuckThreshold time.Duration
}

func New(p Params) (*Scheduler, error) {
	if p.DB == nil || p.Log == nil || p.Clock == nil || p.Repo == nil || p.Blob == nil {
		return nil, ErrInvalidConfig
	}
	cfg := p.Config.withDefaults()
	stuck := p.AppCfg.Download.StuckThreshold
	if stuck <= 0 {
		stuck = 30 * time.Minute
	}
	return &Scheduler{
		db:             p.DB,
		log:            p.Log.Named("scheduler"),
		cfg:            cfg,
		clock:          p.Clock,
		repo:           p.Repo,
		blob:           p.Blob,
		locker:         p.Locker,
		metrics:        p.Metrics,
		stuckThreshold: stuck,
	}, nil
}

func (s *Scheduler) runJob(parent context.Context, name string, timeout time.Duration, fn func(ctx context.Context) error) error {
	start := s.clock.Now()
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	log := s.log.With(zap.String("job", name))
	err := fn(ctx)
	if err != nil {
		log.Warn("job failed", zap.Error(err), zap.Duration("took", s.clock.Now().Sub(start)))
		return err
	}
	log.Debug("job finished", zap.Duration("took", s.clock.Now().Sub(start)))
	return nil
}

func (s *Scheduler) RunOnce(parent context.Context) error {
	var err error

	jobs := []struct {
		Name string
		Run  func(context.Context) error
	}{
		{"expire_artifacts", func(ctx context.Context) error {
			return s.runJob(ctx, "expire_artifacts", 30*time.Second, s.ExpireArtifactsJob)
		}},
		{"recover_stuck", func(ctx context.Context) error {
			return s.runJob(ctx, "recover_stuck", 30*time.Second, s.RecoverStuckJob)
		}},
	}

	for _, job := range jobs {
		err = errors.Join(err, job.Run(parent))
	}
	return err
}

func (s *Scheduler) RunForever(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.RunInterval)
	defer ticker.Stop()

	for {
		s.runLeaderElected(ctx)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// runLeaderElected takes the redis lease before sweeping so only one
// instance touches the blob store per interval. Without redis every
// instance sweeps; MarkExpired tolerates the race.
func (s *Scheduler) runLeaderElected(ctx context.Context) {
	if s.locker == nil {
		if err := s.RunOnce(ctx); err != nil {
			s.log.Warn("sweep run failed", zap.Error(err))
		}
		return
	}

	token, ok, err := s.locker.TryLock(ctx, sweepLockKey, s.cfg.LeaseTTL)
	if err != nil {
		s.log.Warn("sweep lease unavailable", zap.Error(err))
		return
	}
	if !ok {
		return
	}
	defer func() {
		if err := s.locker.Release(ctx, sweepLockKey, token); err != nil {
			s.log.Warn("sweep lease release failed", zap.Error(err))
		}
	}()

	if err := s.RunOnce(ctx); err != nil {
		s.log.Warn("sweep run failed", zap.Error(err))
	}
}

// ExpireArtifactsJob deletes artifacts whose retention window lapsed
// and marks their jobs EXPIRED. The blob is deleted before the row
// flips so a crash leaves the job visible to the next sweep rather
// than leaking storage.
func (s *Scheduler) ExpireArtifactsJob(ctx context.Context) error {
	var jobErr error

	for {
		if ctx.Err() != nil {
			return errors.Join(jobErr, ctx.Err())
		}

		now := s.clock.Now().UTC()
		jobs, err := s.repo.ListExpiredReady(ctx, s.db, now, s.cfg.BatchSize)
		if err != nil {
			return errors.Join(jobErr, err)
		}
		if len(jobs) == 0 {
			return jobErr
		}

		for _, job := range jobs {
			if err := s.expireOne(ctx, job, now); err != nil {
				jobErr = errors.Join(jobErr, err)
			}
		}
		if len(jobs) < s.cfg.BatchSize {
			return jobErr
		}
	}
}

func (s *Scheduler) expireOne(ctx context.Context, job downloaddomain.Job, now time.Time) error {
	log := s.log.With(
		zap.String("job_id", job.ID.String()),
		zap.String("artifact_key", job.ArtifactKey))

	if job.ArtifactKey != "" {
		if err := s.blob.Delete(ctx, job.ArtifactKey); err != nil && !errors.Is(err, storage.ErrNotFound) {
			return err
		}
	}

	flipped, err := s.repo.MarkExpired(ctx, s.db, job.ID, now)
	if err != nil {
		return err
	}
	if !flipped {
		// Another sweeper got there first.
		return nil
	}

	s.metrics.RecordArtifactExpired(ctx)
	log.Info("artifact expired")
	return nil
}

// RecoverStuckJob fails PROCESSING jobs started before the stuck
// threshold. The user can request the download again and a healthy
// worker will pick it up.
func (s *Scheduler) RecoverStuckJob(ctx context.Context) error {
	now := s.clock.Now().UTC()
	cutoff := now.Add(-s.stuckThreshold)

	jobs, err := s.repo.ListStuckProcessing(ctx, s.db, cutoff, s.cfg.BatchSize)
	if err != nil {
		return err
	}

	var jobErr error
	for _, job := range jobs {
		if err := s.repo.MarkFailed(ctx, s.db, job.ID, "packaging worker lost", now); err != nil {
			if errors.Is(err, downloaddomain.ErrJobNotFound) {
				continue
			}
			jobErr = errors.Join(jobErr, err)
			continue
		}
		s.metrics.RecordDownloadJob(ctx, string(job.Format), string(downloaddomain.StatusFailed))
		s.log.Warn("recovered stuck job",
			zap.String("job_id", job.ID.String()),
			zap.Time("started_at", derefTime(job.StartedAt)))
	}
	return jobErr
}

func derefTime(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return *t
}
