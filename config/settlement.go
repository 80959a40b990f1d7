package config

import (
	"errors"
	"log"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

const (
	BackendSimulated = "simulated"
	BackendChain     = "chain"

	// EntitlementOptimistic applies a plan change before the upgrade payment
	// settles; EntitlementOnConfirm gates it behind a confirmed transaction.
	EntitlementOptimistic = "optimistic"
	EntitlementOnConfirm  = "on_confirm"
)

// SettlementConfig is the hot-reloadable policy block for the settlement
// engine and lifecycle manager.
type SettlementConfig struct {
	Backend             string          `mapstructure:"backend"`
	TreasuryAddress     string          `mapstructure:"treasuryAddress"`
	Currency            string          `mapstructure:"currency"`
	UpgradeEntitlement  string          `mapstructure:"upgradeEntitlement"`
	Simulated           SimulatedConfig `mapstructure:"simulated"`
	Retention           RetentionConfig `mapstructure:"retention"`
	OverageRequestsWei  string          `mapstructure:"overageRequestsWei"`
	OverageStorageWei   string          `mapstructure:"overageStorageWei"`
	OverageBandwidthWei string          `mapstructure:"overageBandwidthWei"`
}

type SimulatedConfig struct {
	SuccessRate float64 `mapstructure:"successRate"`
	DelayMs     int     `mapstructure:"delayMs"`
}

type RetentionConfig struct {
	TransactionTTLDays int `mapstructure:"transactionTtlDays"`
	BillingTTLDays     int `mapstructure:"billingTtlDays"`
	EventTTLDays       int `mapstructure:"eventTtlDays"`
	EventKeep          int `mapstructure:"eventKeep"`
}

func DefaultSettlementConfig() SettlementConfig {
	return SettlementConfig{
		Backend:            BackendSimulated,
		TreasuryAddress:    "0x000000000000000000000000000000000000dEaD",
		Currency:           "ETH",
		UpgradeEntitlement: EntitlementOptimistic,
		Simulated: SimulatedConfig{
			SuccessRate: 0.9,
			DelayMs:     1500,
		},
		Retention: RetentionConfig{
			TransactionTTLDays: 365,
			BillingTTLDays:     730,
			EventTTLDays:       365,
			EventKeep:          100,
		},
	}
}

// SettlementHolder keeps the current SettlementConfig behind an atomic.Value
// so concurrent readers never observe a partially-applied reload.
type SettlementHolder struct {
	current atomic.Value // holds SettlementConfig
}

// NewSettlementHolder reads the settlement block from a payments.yml config
// file (falling back to defaults) and watches it for changes. Invalid updates
// are logged and ignored.
func NewSettlementHolder() (*SettlementHolder, error) {
	v := viper.New()

	v.SetConfigName("payments")
	v.SetConfigType("yml")
	v.AddConfigPath("/var/lib/nestwatch/config")
	v.AddConfigPath("/etc/nestwatch")
	v.AddConfigPath(".")

	v.SetEnvPrefix("NESTWATCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultSettlementConfig()
	v.SetDefault("settlement.backend", defaults.Backend)
	v.SetDefault("settlement.treasuryAddress", defaults.TreasuryAddress)
	v.SetDefault("settlement.currency", defaults.Currency)
	v.SetDefault("settlement.upgradeEntitlement", defaults.UpgradeEntitlement)
	v.SetDefault("settlement.simulated.successRate", defaults.Simulated.SuccessRate)
	v.SetDefault("settlement.simulated.delayMs", defaults.Simulated.DelayMs)
	v.SetDefault("settlement.retention.transactionTtlDays", defaults.Retention.TransactionTTLDays)
	v.SetDefault("settlement.retention.billingTtlDays", defaults.Retention.BillingTTLDays)
	v.SetDefault("settlement.retention.eventTtlDays", defaults.Retention.EventTTLDays)
	v.SetDefault("settlement.retention.eventKeep", defaults.Retention.EventKeep)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var cfg SettlementConfig
	if err := v.UnmarshalKey("settlement", &cfg); err != nil {
		return nil, err
	}
	if err := validateSettlementConfig(cfg); err != nil {
		return nil, err
	}

	holder := &SettlementHolder{}
	holder.current.Store(cfg)

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		var updated SettlementConfig
		if err := v.UnmarshalKey("settlement", &updated); err != nil {
			log.Printf("[settlement-config] reload failed: %v", err)
			return
		}
		if err := validateSettlementConfig(updated); err != nil {
			log.Printf("[settlement-config] invalid config ignored: %v", err)
			return
		}
		holder.current.Store(updated)
		log.Printf("[settlement-config] reloaded from %s", e.Name)
	})

	return holder, nil
}

// NewStaticSettlementHolder wraps a fixed config, for tests and embedded use.
func NewStaticSettlementHolder(cfg SettlementConfig) *SettlementHolder {
	holder := &SettlementHolder{}
	holder.current.Store(cfg)
	return holder
}

func (h *SettlementHolder) Get() SettlementConfig {
	return h.current.Load().(SettlementConfig)
}

func (h *SettlementHolder) Store(cfg SettlementConfig) error {
	if err := validateSettlementConfig(cfg); err != nil {
		return err
	}
	h.current.Store(cfg)
	return nil
}

func validateSettlementConfig(cfg SettlementConfig) error {
	switch cfg.Backend {
	case BackendSimulated, BackendChain:
	default:
		return errors.New("settlement.backend must be simulated or chain")
	}
	switch cfg.UpgradeEntitlement {
	case EntitlementOptimistic, EntitlementOnConfirm:
	default:
		return errors.New("settlement.upgradeEntitlement must be optimistic or on_confirm")
	}
	if cfg.TreasuryAddress == "" {
		return errors.New("settlement.treasuryAddress cannot be empty")
	}
	if cfg.Simulated.SuccessRate < 0 || cfg.Simulated.SuccessRate > 1 {
		return errors.New("settlement.simulated.successRate must be within [0,1]")
	}
	if cfg.Retention.EventKeep <= 0 {
		return errors.New("settlement.retention.eventKeep must be positive")
	}
	return nil
}
