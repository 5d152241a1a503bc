package config

import (
	"bastion/internal/advisor"
	"bastion/internal/firewall"
	"bastion/internal/gateway/broker"
	"bastion/internal/gateway/marketdata"
	"bastion/internal/snapshot"
	"bastion/internal/trader"
)

// Config is the full application configuration tree.
type Config struct {
	Log      LogConfig              `mapstructure:"log"`
	Session  snapshot.SessionConfig `mapstructure:"session"`
	Signals  snapshot.SignalConfig  `mapstructure:"signals"`
	Firewall firewall.Config        `mapstructure:"firewall"`
	Advisor  AdvisorConfig          `mapstructure:"advisor"`
	Alpaca   AlpacaConfig           `mapstructure:"alpaca"`
	Trader   trader.Config          `mapstructure:"trader"`
	Storage  StorageConfig          `mapstructure:"storage"`
	Admin    AdminConfig            `mapstructure:"admin"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

// AdvisorConfig selects and parameterizes the model backend.
type AdvisorConfig struct {
	BaseURL        string `mapstructure:"base_url"`
	APIKey         string `mapstructure:"api_key"`
	Model          string `mapstructure:"model"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
	MaxRetries     int    `mapstructure:"max_retries"`
}

// AlpacaConfig carries both the trading and market-data credentials; the
// same key pair usually serves both APIs.
type AlpacaConfig struct {
	APIKey    string `mapstructure:"api_key"`
	APISecret string `mapstructure:"api_secret"`
	BaseURL   string `mapstructure:"base_url"`
	// Paper switches execution to the in-process simulator. Market data
	// still comes from Alpaca.
	Paper        bool    `mapstructure:"paper"`
	PaperCash    float64 `mapstructure:"paper_cash"`
}

func (c AlpacaConfig) BrokerConfig() broker.AlpacaConfig {
	return broker.AlpacaConfig{APIKey: c.APIKey, APISecret: c.APISecret, BaseURL: c.BaseURL}
}

func (c AlpacaConfig) MarketDataConfig() marketdata.AlpacaConfig {
	return marketdata.AlpacaConfig{APIKey: c.APIKey, APISecret: c.APISecret}
}

type StorageConfig struct {
	AuditPath    string `mapstructure:"audit_path"`
	StrategyPath string `mapstructure:"strategy_path"`
}

type AdminConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Listen  string `mapstructure:"listen"`
}

// ChatClient builds the advisor transport from this config.
func (c AdvisorConfig) ChatClient() *advisor.OpenAIChatClient {
	client := &advisor.OpenAIChatClient{
		BaseURL:    c.BaseURL,
		APIKey:     c.APIKey,
		Model:      c.Model,
		MaxRetries: c.MaxRetries,
	}
	if c.TimeoutSeconds > 0 {
		client.Timeout = secondsToDuration(c.TimeoutSeconds)
	}
	return client
}
