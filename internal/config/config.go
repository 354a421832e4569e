// Package config содержит логику чтения конфигурации сервиса происхождения поставок.
package config

import (
	"flag"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

const defaultRefreshInterval = 30 * time.Second

// Config содержит параметры конфигурации сервиса происхождения поставок.
type Config struct {
	RunAddress      string        `env:"RUN_ADDRESS"`
	LedgerAddress   string        `env:"LEDGER_ADDRESS"`
	ModuleAddress   string        `env:"MODULE_ADDRESS"`
	KnownAccounts   []string      `env:"KNOWN_ACCOUNTS" envSeparator:","`
	NotifyAddress   string        `env:"NOTIFY_ADDRESS"`
	RefreshInterval time.Duration `env:"REFRESH_INTERVAL"`
	SessionSecret   string        `env:"SESSION_SECRET"`
}

// Parse считывает конфигурацию из флагов командной строки и переменных окружения.
// Переменные окружения имеют приоритет над флагами.
func Parse() (*Config, error) {
	cfg := &Config{}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	envRunAddress := cfg.RunAddress
	envLedgerAddress := cfg.LedgerAddress
	envModuleAddress := cfg.ModuleAddress
	envKnownAccounts := cfg.KnownAccounts
	envNotifyAddress := cfg.NotifyAddress
	envRefreshInterval := cfg.RefreshInterval
	envSessionSecret := cfg.SessionSecret

	var accountsFlag string

	flag.StringVar(&cfg.RunAddress, "a", "localhost:8080", "address and port for HTTP server")
	flag.StringVar(&cfg.LedgerAddress, "l", "", "ledger node address")
	flag.StringVar(&cfg.ModuleAddress, "m", "", "supply chain module address on the ledger")
	flag.StringVar(&accountsFlag, "k", "", "comma-separated list of known supplier accounts")
	flag.StringVar(&cfg.NotifyAddress, "n", "", "notification gateway address")
	flag.DurationVar(&cfg.RefreshInterval, "i", defaultRefreshInterval, "catalog refresh interval")
	flag.StringVar(&cfg.SessionSecret, "s", "", "secret key for session cookies")

	flag.Parse()

	cfg.KnownAccounts = splitAccounts(accountsFlag)

	if envRunAddress != "" {
		cfg.RunAddress = envRunAddress
	}
	if envLedgerAddress != "" {
		cfg.LedgerAddress = envLedgerAddress
	}
	if envModuleAddress != "" {
		cfg.ModuleAddress = envModuleAddress
	}
	if len(envKnownAccounts) > 0 {
		cfg.KnownAccounts = envKnownAccounts
	}
	if envNotifyAddress != "" {
		cfg.NotifyAddress = envNotifyAddress
	}
	if envRefreshInterval > 0 {
		cfg.RefreshInterval = envRefreshInterval
	}
	if envSessionSecret != "" {
		cfg.SessionSecret = envSessionSecret
	}

	if cfg.RunAddress == "" {
		cfg.RunAddress = "localhost:8080"
	}
	if cfg.RefreshInterval <= 0 {
		cfg.RefreshInterval = defaultRefreshInterval
	}

	return cfg, nil
}

func splitAccounts(s string) []string {
	if s == "" {
		return nil
	}

	parts := strings.Split(s, ",")
	accounts := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			accounts = append(accounts, trimmed)
		}
	}
	return accounts
}
