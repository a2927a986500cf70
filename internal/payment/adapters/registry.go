package adapters

import (
	"fmt"
	"sort"
	"strings"

	"github.com/smallbiznis/revenue/internal/payment/domain"
)

// Registry maps a PAYMENT_PROVIDER name to the factory that builds its
// gateway. Names are matched case-insensitively.
type Registry struct {
	factories map[string]domain.AdapterFactory
}

func NewRegistry(factories ...domain.AdapterFactory) *Registry {
	registry := &Registry{factories: map[string]domain.AdapterFactory{}}
	for _, factory := range factories {
		if factory == nil {
			continue
		}
		if name := normalizeProvider(factory.Provider()); name != "" {
			registry.factories[name] = factory
		}
	}
	return registry
}

// Providers lists the registered gateway names in sorted order.
func (r *Registry) Providers() []string {
	if r == nil {
		return nil
	}
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// NewAdapter builds the gateway named by cfg.Provider. An unknown name
// wraps ErrProviderNotFound and lists the supported providers.
func (r *Registry) NewAdapter(cfg domain.AdapterConfig) (domain.Gateway, error) {
	name := normalizeProvider(cfg.Provider)
	if r == nil {
		return nil, domain.ErrProviderNotFound
	}
	factory, ok := r.factories[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q (supported: %s)", domain.ErrProviderNotFound, name, strings.Join(r.Providers(), ", "))
	}
	cfg.Provider = name
	return factory.NewAdapter(cfg)
}

func normalizeProvider(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
