package catalog

import (
	"github.com/soundcrate/soundcrate/internal/catalog/repository"
	catalogservice "github.com/soundcrate/soundcrate/internal/catalog/service"
	"go.uber.org/fx"
)

var Module = fx.Module("catalog.service",
	fx.Provide(repository.Provide),
	fx.Provide(catalogservice.NewService),
)
