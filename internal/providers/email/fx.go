package email

import (
	"github.com/soundcrate/soundcrate/internal/config"
	orderdomain "github.com/soundcrate/soundcrate/internal/order/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("providers.email",
	fx.Provide(NewFromConfig),
	fx.Provide(func(provider Provider, log *zap.Logger) orderdomain.Notifier {
		return NewOrderNotifier(provider, log)
	}),
)

func NewFromConfig(cfg config.Config, log *zap.Logger) Provider {
	if cfg.SMTP.Host == "" {
		log.Named("providers.email").Info("smtp not configured, confirmations disabled")
		return &NoOpProvider{}
	}
	return NewSMTP(Config{
		Host:     cfg.SMTP.Host,
		Port:     cfg.SMTP.Port,
		Username: cfg.SMTP.Username,
		Password: cfg.SMTP.Password,
		From:     cfg.SMTP.From,
	})
}
