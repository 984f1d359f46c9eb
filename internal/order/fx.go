package order

import (
	"github.com/soundcrate/soundcrate/internal/order/repository"
	orderservice "github.com/soundcrate/soundcrate/internal/order/service"
	"go.uber.org/fx"
)

var Module = fx.Module("order.service",
	fx.Provide(repository.Provide),
	fx.Provide(orderservice.NewService),
)
