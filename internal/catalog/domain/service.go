package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
)

type Service interface {
	ListReleases(ctx context.Context, limit int) ([]Release, error)
	GetRelease(ctx context.Context, id snowflake.ID) (*Release, []Track, error)
	GetProduct(ctx context.Context, id snowflake.ID) (*Product, error)
	GetProductByRelease(ctx context.Context, releaseID snowflake.ID) (*Product, error)
}
