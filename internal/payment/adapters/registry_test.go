package adapters_test

import (
	"testing"

	"github.com/smallbiznis/revenue/internal/payment/adapters"
	"github.com/smallbiznis/revenue/internal/payment/adapters/intasend"
	"github.com/smallbiznis/revenue/internal/payment/adapters/sandbox"
	"github.com/smallbiznis/revenue/internal/payment/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryBuildsNamedProvider(t *testing.T) {
	registry := adapters.NewRegistry(intasend.NewFactory(), sandbox.NewFactory(), nil)
	assert.Equal(t, []string{"intasend", "sandbox"}, registry.Providers())

	gw, err := registry.NewAdapter(domain.AdapterConfig{Provider: "  SandBox "})
	require.NoError(t, err)
	assert.Equal(t, "sandbox", gw.Provider())
}

func TestRegistryUnknownProvider(t *testing.T) {
	registry := adapters.NewRegistry(sandbox.NewFactory())

	_, err := registry.NewAdapter(domain.AdapterConfig{Provider: "stripe"})
	require.ErrorIs(t, err, domain.ErrProviderNotFound)
	assert.Contains(t, err.Error(), `"stripe"`)
	assert.Contains(t, err.Error(), "supported: sandbox")

	var nilRegistry *adapters.Registry
	assert.Empty(t, nilRegistry.Providers())
	_, err = nilRegistry.NewAdapter(domain.AdapterConfig{Provider: "sandbox"})
	assert.ErrorIs(t, err, domain.ErrProviderNotFound)
}
