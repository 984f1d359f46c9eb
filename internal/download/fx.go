package download

import (
	"github.com/soundcrate/soundcrate/internal/download/repository"
	downloadservice "github.com/soundcrate/soundcrate/internal/download/service"
	"go.uber.org/fx"
)

var Module = fx.Module("download.service",
	fx.Provide(repository.Provide),
	fx.Provide(downloadservice.NewService),
)
