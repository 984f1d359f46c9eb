package service

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/soundcrate/soundcrate/internal/catalog/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB   *gorm.DB
	Log  *zap.Logger
	Repo domain.Repository
}

type Service struct {
	db   *gorm.DB
	log  *zap.Logger
	repo domain.Repository
}

func NewService(p Params) domain.Service {
	return &Service{
		db:   p.DB,
		log:  p.Log.Named("catalog.service"),
		repo: p.Repo,
	}
}

func (s *Service) ListReleases(ctx context.Context, limit int) ([]domain.Release, error) {
	return s.repo.ListReleases(ctx, s.db, limit)
}

func (s *Service) GetRelease(ctx context.Context, id snowflake.ID) (*domain.Release, []domain.Track, error) {
	release, err := s.repo.FindRelease(ctx, s.db, id)
	if err != nil {
		return nil, nil, err
	}
	if release == nil {
		return nil, nil, domain.ErrReleaseNotFound
	}
	tracks, err := s.repo.ListTracks(ctx, s.db, release.ID)
	if err != nil {
		return nil, nil, err
	}
	return release, tracks, nil
}

func (s *Service) GetProduct(ctx context.Context, id snowflake.ID) (*domain.Product, error) {
	product, err := s.repo.FindProduct(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if product == nil {
		return nil, domain.ErrProductNotFound
	}
	return product, nil
}

func (s *Service) GetProductByRelease(ctx context.Context, releaseID snowflake.ID) (*domain.Product, error) {
	product, err := s.repo.FindProductByRelease(ctx, s.db, releaseID)
	if err != nil {
		return nil, err
	}
	if product == nil {
		return nil, domain.ErrProductNotFound
	}
	return product, nil
}
