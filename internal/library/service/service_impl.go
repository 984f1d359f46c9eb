package service

import (
	"context"

	"github.com/bwmarrin/snowflake"
	librarydomain "github.com/soundcrate/soundcrate/internal/library/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB   *gorm.DB
	Log  *zap.Logger
	Repo librarydomain.Repository
}

type Service struct {
	db   *gorm.DB
	log  *zap.Logger
	repo librarydomain.Repository
}

func NewService(p Params) librarydomain.Service {
	return &Service{
		db:   p.DB,
		log:  p.Log.Named("library.service"),
		repo: p.Repo,
	}
}

func (s *Service) Grant(ctx context.Context, tx *gorm.DB, entries []librarydomain.Entry) error {
	for i := range entries {
		if err := s.repo.InsertIgnoreDuplicate(ctx, tx, &entries[i]); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) List(ctx context.Context, userID string) ([]librarydomain.Entry, error) {
	return s.repo.List(ctx, s.db, userID)
}

func (s *Service) IsEntitled(ctx context.Context, userID string, releaseID snowflake.ID) (bool, error) {
	return s.repo.ExistsByRelease(ctx, s.db, userID, releaseID)
}
