package service

import (
	"context"
	"fmt"

	"github.com/bwmarrin/snowflake"
	catalogdomain "github.com/soundcrate/soundcrate/internal/catalog/domain"
	"github.com/soundcrate/soundcrate/internal/clock"
	downloaddomain "github.com/soundcrate/soundcrate/internal/download/domain"
	librarydomain "github.com/soundcrate/soundcrate/internal/library/domain"
	"github.com/soundcrate/soundcrate/internal/observability/metrics"
	"github.com/soundcrate/soundcrate/internal/storage"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB          *gorm.DB
	Log         *zap.Logger
	GenID       *snowflake.Node
	Clock       clock.Clock
	Repo        downloaddomain.Repository
	CatalogRepo catalogdomain.Repository
	Library     librarydomain.Service
	Blob        storage.BlobStore
	Metrics     *metrics.Metrics `optional:"true"`
}

type Service struct {
	db          *gorm.DB
	log         *zap.Logger
	genID       *snowflake.Node
	clock       clock.Clock
	repo        downloaddomain.Repository
	catalogRepo catalogdomain.Repository
	library     librarydomain.Service
	blob        storage.BlobStore
	metrics     *metrics.Metrics
}

func NewService(p Params) downloaddomain.Service {
	return &Service{
		db:          p.DB,
		log:         p.Log.Named("download.service"),
		genID:       p.GenID,
		clock:       p.Clock,
		repo:        p.Repo,
		catalogRepo: p.CatalogRepo,
		library:     p.Library,
		blob:        p.Blob,
		metrics:     p.Metrics,
	}
}

func (s *Service) Request(ctx context.Context, userID string, releaseID snowflake.ID, format downloaddomain.Format) (*downloaddomain.Job, error) {
	if !format.Valid() {
		return nil, downloaddomain.ErrUnsupportedFormat
	}

	release, err := s.catalogRepo.FindRelease(ctx, s.db, releaseID)
	if err != nil {
		return nil, err
	}
	if release == nil {
		return nil, catalogdomain.ErrReleaseNotFound
	}
	if err := s.checkEntitlement(ctx, userID, releaseID); err != nil {
		return nil, err
	}

	now := s.clock.Now().UTC()
	existing, err := s.repo.FindReusable(ctx, s.db, userID, releaseID, format, now)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}

	job := &downloaddomain.Job{
		ID:        s.genID.Generate(),
		UserID:    userID,
		ReleaseID: releaseID,
		Format:    format,
		Status:    downloaddomain.StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repo.Insert(ctx, s.db, job); err != nil {
		return nil, err
	}

	s.metrics.RecordDownloadJob(ctx, string(format), string(downloaddomain.StatusPending))
	s.log.Info("download job queued",
		zap.String("job_id", job.ID.String()),
		zap.String("user_id", userID),
		zap.String("release_id", releaseID.String()),
		zap.String("format", string(format)))
	return job, nil
}

// checkEntitlement allows owners of the release's product and anyone
// for FREE releases.
func (s *Service) checkEntitlement(ctx context.Context, userID string, releaseID snowflake.ID) error {
	entitled, err := s.library.IsEntitled(ctx, userID, releaseID)
	if err != nil {
		return err
	}
	if entitled {
		return nil
	}

	product, err := s.catalogRepo.FindProductByRelease(ctx, s.db, releaseID)
	if err != nil {
		return err
	}
	if product != nil && product.PricingModel == catalogdomain.PricingFree {
		return nil
	}
	return downloaddomain.ErrNotEntitled
}

func (s *Service) Status(ctx context.Context, userID string, id snowflake.ID) (*downloaddomain.Job, error) {
	job, err := s.repo.Find(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if job == nil || job.UserID != userID {
		return nil, downloaddomain.ErrJobNotFound
	}
	return job, nil
}

func (s *Service) FetchArtifact(ctx context.Context, userID string, id snowflake.ID) (*downloaddomain.Artifact, error) {
	job, err := s.Status(ctx, userID, id)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now().UTC()
	switch job.Status {
	case downloaddomain.StatusExpired:
		return nil, downloaddomain.ErrArtifactExpired
	case downloaddomain.StatusReady:
		if !job.Usable(now) {
			// Past retention but the sweep has not caught up yet.
			return nil, downloaddomain.ErrArtifactExpired
		}
	default:
		return nil, downloaddomain.ErrArtifactNotReady
	}

	body, size, err := s.blob.Open(ctx, job.ArtifactKey)
	if err != nil {
		if err == storage.ErrNotFound {
			return nil, downloaddomain.ErrArtifactExpired
		}
		return nil, err
	}

	filename := fmt.Sprintf("%s-%s.zip", job.ReleaseID.String(), job.Format)
	if release, err := s.catalogRepo.FindRelease(ctx, s.db, job.ReleaseID); err == nil && release != nil {
		filename = fmt.Sprintf("%s-%s.zip", release.Slug, job.Format)
	}

	return &downloaddomain.Artifact{
		Body:        body,
		Size:        size,
		Filename:    filename,
		ContentType: "application/zip",
	}, nil
}
