package adapters

import (
	"strings"

	"github.com/soundcrate/soundcrate/internal/payment/domain"
)

// Registry maps provider names to adapter factories. Adapters are
// constructed once at wiring time, not per request.
type Registry struct {
	adapters map[string]domain.PaymentAdapter
}

func NewRegistry() *Registry {
	return &Registry{adapters: map[string]domain.PaymentAdapter{}}
}

func (r *Registry) Register(factory domain.AdapterFactory, cfg domain.AdapterConfig) error {
	provider := strings.ToLower(strings.TrimSpace(factory.Provider()))
	if provider == "" {
		return domain.ErrInvalidProvider
	}
	adapter, err := factory.NewAdapter(cfg)
	if err != nil {
		return err
	}
	r.adapters[provider] = adapter
	return nil
}

func (r *Registry) Adapter(provider string) (domain.PaymentAdapter, error) {
	if r == nil {
		return nil, domain.ErrProviderNotFound
	}
	provider = strings.ToLower(strings.TrimSpace(provider))
	adapter, ok := r.adapters[provider]
	if !ok {
		return nil, domain.ErrProviderNotFound
	}
	return adapter, nil
}

func (r *Registry) Providers() []string {
	if r == nil {
		return nil
	}
	providers := make([]string, 0, len(r.adapters))
	for provider := range r.adapters {
		providers = append(providers, provider)
	}
	return providers
}
