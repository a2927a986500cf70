package config

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

//go:embed billing.yml
var defaultBillingYAML []byte

// BillingConfig is the hot-reloadable pricing configuration.
type BillingConfig struct {
	Currency      string            `mapstructure:"currency"`
	DueDays       int               `mapstructure:"dueDays"`
	ProcessingFee ProcessingFeeRule `mapstructure:"processingFee"`
	Services      []ServiceSeed     `mapstructure:"services"`
}

// ProcessingFeeRule clamps amount*Rate into [Minimum, Maximum].
type ProcessingFeeRule struct {
	Rate    float64 `mapstructure:"rate"`
	Minimum float64 `mapstructure:"minimum"`
	Maximum float64 `mapstructure:"maximum"`
}

// ServiceSeed is a catalog entry seeded into the database on startup.
type ServiceSeed struct {
	Code          string         `mapstructure:"code"`
	Name          string         `mapstructure:"name"`
	Description   string         `mapstructure:"description"`
	ServiceType   string         `mapstructure:"serviceType"`
	BillingPeriod string         `mapstructure:"billingPeriod"`
	Zones         []string       `mapstructure:"zones"`
	BillingRules  map[string]any `mapstructure:"billingRules"`
}

// DefaultBillingConfig returns the configuration shipped with the binary.
func DefaultBillingConfig() BillingConfig {
	v := viper.New()
	v.SetConfigType("yml")
	if err := v.ReadConfig(bytes.NewReader(defaultBillingYAML)); err != nil {
		panic(fmt.Sprintf("embedded billing config: %v", err))
	}
	var cfg BillingConfig
	if err := v.UnmarshalKey("billing", &cfg); err != nil {
		panic(fmt.Sprintf("embedded billing config: %v", err))
	}
	return cfg
}

type BillingConfigHolder struct {
	current atomic.Value // holds BillingConfig
}

func NewBillingConfigHolder(log *zap.Logger) (*BillingConfigHolder, error) {
	if log == nil {
		log = zap.NewNop()
	}
	log = log.Named("config.billing")

	v := viper.New()

	v.SetConfigName("billing")
	v.SetConfigType("yml")
	v.AddConfigPath("/var/lib/revenue/config")
	v.AddConfigPath("/etc/revenue")
	v.AddConfigPath(".")

	v.SetEnvPrefix("REVENUE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	fileFound := true
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		fileFound = false
		if err := v.ReadConfig(bytes.NewReader(defaultBillingYAML)); err != nil {
			return nil, err
		}
	}

	var cfg BillingConfig
	if err := v.UnmarshalKey("billing", &cfg); err != nil {
		return nil, err
	}
	cfg = withBillingDefaults(cfg)
	if err := validateBillingConfig(cfg); err != nil {
		return nil, err
	}

	holder := &BillingConfigHolder{}
	holder.current.Store(cfg)

	if !fileFound {
		log.Info("billing config file not found, using embedded defaults")
		return holder, nil
	}

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		var updated BillingConfig
		if err := v.UnmarshalKey("billing", &updated); err != nil {
			log.Warn("billing config reload failed", zap.Error(err))
			return
		}
		updated = withBillingDefaults(updated)
		if err := validateBillingConfig(updated); err != nil {
			log.Warn("invalid billing config ignored", zap.Error(err))
			return
		}
		holder.current.Store(updated)
		log.Info("billing config reloaded", zap.String("file", e.Name))
	})

	return holder, nil
}

// NewStaticBillingConfigHolder wraps a fixed configuration without file watching.
func NewStaticBillingConfigHolder(cfg BillingConfig) *BillingConfigHolder {
	holder := &BillingConfigHolder{}
	holder.current.Store(withBillingDefaults(cfg))
	return holder
}

func (h *BillingConfigHolder) Get() BillingConfig {
	return h.current.Load().(BillingConfig)
}

func withBillingDefaults(cfg BillingConfig) BillingConfig {
	if strings.TrimSpace(cfg.Currency) == "" {
		cfg.Currency = "KES"
	}
	if cfg.DueDays <= 0 {
		cfg.DueDays = 30
	}
	if cfg.ProcessingFee == (ProcessingFeeRule{}) {
		cfg.ProcessingFee = ProcessingFeeRule{Rate: 0.02, Minimum: 50, Maximum: 1000}
	}
	return cfg
}

func validateBillingConfig(cfg BillingConfig) error {
	fee := cfg.ProcessingFee
	if fee.Rate < 0 || fee.Minimum < 0 {
		return errors.New("billing.processingFee cannot be negative")
	}
	if fee.Maximum < fee.Minimum {
		return errors.New("billing.processingFee.maximum must be >= minimum")
	}
	seen := make(map[string]struct{}, len(cfg.Services))
	for _, svc := range cfg.Services {
		code := strings.ToUpper(strings.TrimSpace(svc.Code))
		if code == "" {
			return errors.New("billing.services[].code is required")
		}
		if _, ok := seen[code]; ok {
			return fmt.Errorf("billing.services: duplicate code %s", code)
		}
		seen[code] = struct{}{}
	}
	return nil
}
