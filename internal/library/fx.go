package library

import (
	"github.com/soundcrate/soundcrate/internal/library/repository"
	libraryservice "github.com/soundcrate/soundcrate/internal/library/service"
	"go.uber.org/fx"
)

var Module = fx.Module("library.service",
	fx.Provide(repository.Provide),
	fx.Provide(libraryservice.NewService),
)
