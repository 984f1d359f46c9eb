package cart

import (
	"github.com/soundcrate/soundcrate/internal/cart/repository"
	cartservice "github.com/soundcrate/soundcrate/internal/cart/service"
	"go.uber.org/fx"
)

var Module = fx.Module("cart.service",
	fx.Provide(repository.Provide),
	fx.Provide(cartservice.NewService),
)
