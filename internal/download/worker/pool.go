package worker

import (
	"context"
	"sync"
	"time"

	"github.com/bwmarrin/snowflake"
	catalogdomain "github.com/soundcrate/soundcrate/internal/catalog/domain"
	"github.com/soundcrate/soundcrate/internal/clock"
	"github.com/soundcrate/soundcrate/internal/config"
	downloaddomain "github.com/soundcrate/soundcrate/internal/download/domain"
	"github.com/soundcrate/soundcrate/internal/download/packager"
	"github.com/soundcrate/soundcrate/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const pollInterval = 2 * time.Second

type Params struct {
	fx.In

	DB          *gorm.DB
	Log         *zap.Logger
	Clock       clock.Clock
	Cfg         config.Config
	Repo        downloaddomain.Repository
	CatalogRepo catalogdomain.Repository
	Packager    *packager.Packager
	Metrics     *metrics.Metrics `optional:"true"`
}

// Pool runs N goroutines that claim PENDING jobs and package them.
// Claims use a conditional status update, so pools on multiple nodes
// never double-process a job.
type Pool struct {
	db          *gorm.DB
	log         *zap.Logger
	clock       clock.Clock
	repo        downloaddomain.Repository
	catalogRepo catalogdomain.Repository
	packager    *packager.Packager
	metrics     *metrics.Metrics
	workers     int
	retention   time.Duration
}

func NewPool(p Params) *Pool {
	workers := p.Cfg.Download.WorkerCount
	if workers <= 0 {
		workers = 1
	}
	return &Pool{
		db:          p.DB,
		log:         p.Log.Named("download.worker"),
		clock:       p.Clock,
		repo:        p.Repo,
		catalogRepo: p.CatalogRepo,
		packager:    p.Packager,
		metrics:     p.Metrics,
		workers:     workers,
		retention:   p.Cfg.Download.RetentionWindow,
	}
}

func (p *Pool) Run(ctx context.Context) {
	p.log.Info("packaging pool starting", zap.Int("workers", p.workers))

	var wg sync.WaitGroup
	for i := 0; i < p.workers; i++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			p.runWorker(ctx, worker)
		}(i)
	}
	wg.Wait()
	p.log.Info("packaging pool stopped")
}

func (p *Pool) runWorker(ctx context.Context, worker int) {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		// Drain the queue before sleeping again.
		for {
			if ctx.Err() != nil {
				return
			}
			processed, err := p.RunOnce(ctx)
			if err != nil {
				p.log.Error("claim failed", zap.Int("worker", worker), zap.Error(err))
				break
			}
			if !processed {
				break
			}
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// RunOnce claims and processes at most one job. It reports whether a
// job was claimed.
func (p *Pool) RunOnce(ctx context.Context) (bool, error) {
	now := p.clock.Now().UTC()
	job, err := p.repo.ClaimPending(ctx, p.db, now)
	if err != nil {
		return false, err
	}
	if job == nil {
		return false, nil
	}
	p.process(ctx, job)
	return true, nil
}

func (p *Pool) process(ctx context.Context, job *downloaddomain.Job) {
	log := p.log.With(
		zap.String("job_id", job.ID.String()),
		zap.String("release_id", job.ReleaseID.String()),
		zap.String("format", string(job.Format)))
	start := p.clock.Now()

	key, size, err := p.build(ctx, job)
	if err != nil {
		log.Warn("packaging failed", zap.Error(err))
		p.finishFailed(ctx, job.ID, err.Error())
		p.metrics.RecordDownloadJob(ctx, string(job.Format), string(downloaddomain.StatusFailed))
		return
	}

	now := p.clock.Now().UTC()
	expiresAt := now.Add(p.retention)
	if err := p.repo.MarkReady(ctx, p.db, job.ID, key, size, expiresAt, now); err != nil {
		log.Error("failed to mark job ready", zap.Error(err))
		return
	}

	p.metrics.RecordDownloadJob(ctx, string(job.Format), string(downloaddomain.StatusReady))
	p.metrics.ObservePackagingDuration(ctx, string(job.Format), p.clock.Now().Sub(start))
	log.Info("artifact ready",
		zap.String("artifact_key", key),
		zap.Int64("size_bytes", size),
		zap.Time("expires_at", expiresAt))
}

func (p *Pool) build(ctx context.Context, job *downloaddomain.Job) (string, int64, error) {
	release, err := p.catalogRepo.FindRelease(ctx, p.db, job.ReleaseID)
	if err != nil {
		return "", 0, err
	}
	if release == nil {
		return "", 0, catalogdomain.ErrReleaseNotFound
	}
	tracks, err := p.catalogRepo.ListTracks(ctx, p.db, job.ReleaseID)
	if err != nil {
		return "", 0, err
	}
	return p.packager.Package(ctx, job, release, tracks)
}

func (p *Pool) finishFailed(ctx context.Context, id snowflake.ID, reason string) {
	now := p.clock.Now().UTC()
	if len(reason) > 500 {
		reason = reason[:500]
	}
	if err := p.repo.MarkFailed(ctx, p.db, id, reason, now); err != nil {
		p.log.Error("failed to mark job failed",
			zap.String("job_id", id.String()),
			zap.Error(err))
	}
}
