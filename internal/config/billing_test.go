package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultBillingConfig(t *testing.T) {
	cfg := DefaultBillingConfig()

	assert.Equal(t, "KES", cfg.Currency)
	assert.Equal(t, 30, cfg.DueDays)
	assert.Equal(t, ProcessingFeeRule{Rate: 0.02, Minimum: 50, Maximum: 1000}, cfg.ProcessingFee)
	require.Len(t, cfg.Services, 5)

	codes := make([]string, 0, len(cfg.Services))
	for _, svc := range cfg.Services {
		codes = append(codes, svc.Code)
		assert.NotEmpty(t, svc.BillingRules, svc.Code)
	}
	assert.ElementsMatch(t, []string{"WTR", "PRK", "BIZ", "LND", "WST"}, codes)
}

func TestValidateBillingConfig(t *testing.T) {
	base := withBillingDefaults(BillingConfig{})
	require.NoError(t, validateBillingConfig(base))

	dup := base
	dup.Services = []ServiceSeed{{Code: "WTR"}, {Code: "wtr"}}
	assert.Error(t, validateBillingConfig(dup))

	inverted := base
	inverted.ProcessingFee = ProcessingFeeRule{Rate: 0.02, Minimum: 100, Maximum: 10}
	assert.Error(t, validateBillingConfig(inverted))
}

func TestStaticHolder(t *testing.T) {
	holder := NewStaticBillingConfigHolder(BillingConfig{Currency: "USD"})
	got := holder.Get()
	assert.Equal(t, "USD", got.Currency)
	assert.Equal(t, 30, got.DueDays)
	assert.Equal(t, 0.02, got.ProcessingFee.Rate)
}
