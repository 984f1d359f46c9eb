package payment

import (
	"net/http"

	"github.com/soundcrate/soundcrate/internal/config"
	"github.com/soundcrate/soundcrate/internal/payment/adapters"
	"github.com/soundcrate/soundcrate/internal/payment/adapters/paypal"
	"github.com/soundcrate/soundcrate/internal/payment/adapters/stripe"
	paymentdomain "github.com/soundcrate/soundcrate/internal/payment/domain"
	"github.com/soundcrate/soundcrate/internal/payment/repository"
	paymentservice "github.com/soundcrate/soundcrate/internal/payment/service"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("payment.service",
	fx.Provide(NewRegistry),
	fx.Provide(repository.Provide),
	fx.Provide(paymentservice.NewService),
)

// NewRegistry wires every provider whose credentials are configured.
// A store with no providers still runs; only Initiate is unavailable.
func NewRegistry(cfg config.Config, log *zap.Logger) (*adapters.Registry, error) {
	registry := adapters.NewRegistry()
	client := &http.Client{Timeout: cfg.Payment.GatewayTimeout}

	if cfg.Payment.StripeSecretKey != "" {
		err := registry.Register(stripe.NewFactory(), paymentdomain.AdapterConfig{
			Config: map[string]any{
				"secret_key":     cfg.Payment.StripeSecretKey,
				"webhook_secret": cfg.Payment.StripeWebhookSecret,
			},
			HTTPClient: client,
		})
		if err != nil {
			return nil, err
		}
	}

	if cfg.Payment.PaypalClientID != "" {
		err := registry.Register(paypal.NewFactory(), paymentdomain.AdapterConfig{
			Config: map[string]any{
				"client_id":     cfg.Payment.PaypalClientID,
				"client_secret": cfg.Payment.PaypalClientSecret,
				"webhook_id":    cfg.Payment.PaypalWebhookID,
			},
			HTTPClient: client,
		})
		if err != nil {
			return nil, err
		}
	}

	log.Named("payment").Info("payment providers registered",
		zap.Strings("providers", registry.Providers()))
	return registry, nil
}
