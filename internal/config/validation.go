package config

import (
	"fmt"
	"strings"

	"bastion/internal/firewall"
	"bastion/internal/scheduler"
)

func validate(c *Config) error {
	if err := c.Session.Validate(); err != nil {
		return err
	}
	if err := validateFirewall(c.Firewall); err != nil {
		return err
	}
	if err := validateTrader(c); err != nil {
		return err
	}
	if strings.TrimSpace(c.Storage.AuditPath) == "" {
		return fmt.Errorf("storage.audit_path cannot be empty")
	}
	if strings.TrimSpace(c.Storage.StrategyPath) == "" {
		return fmt.Errorf("storage.strategy_path cannot be empty")
	}
	return nil
}

func validateFirewall(f firewall.Config) error {
	if f.MaxSpreadPct <= 0 {
		return fmt.Errorf("firewall.max_spread_pct must be > 0")
	}
	if f.MinBuySignals < 0 {
		return fmt.Errorf("firewall.min_buy_signals must be >= 0")
	}
	if f.MinBuyConfidence < 0 || f.MinBuyConfidence > 100 {
		return fmt.Errorf("firewall.min_buy_confidence must be in [0,100]")
	}
	if f.MaxPositionSizePct <= 0 || f.MaxPositionSizePct > 100 {
		return fmt.Errorf("firewall.max_position_size_pct must be in (0,100]")
	}
	if f.MaxPositionSizePctExtended <= 0 || f.MaxPositionSizePctExtended > f.MaxPositionSizePct {
		return fmt.Errorf("firewall.max_position_size_pct_extended must be in (0,max_position_size_pct]")
	}
	if f.StopLossMinPct <= 0 || f.StopLossMaxPct < f.StopLossMinPct {
		return fmt.Errorf("firewall stop loss band invalid: [%.2f,%.2f]", f.StopLossMinPct, f.StopLossMaxPct)
	}
	if f.TakeProfitMinPct <= 0 || f.TakeProfitMaxPct < f.TakeProfitMinPct {
		return fmt.Errorf("firewall take profit band invalid: [%.2f,%.2f]", f.TakeProfitMinPct, f.TakeProfitMaxPct)
	}
	if f.DayCircuitBreakerPct >= 0 {
		return fmt.Errorf("firewall.day_circuit_breaker_pct must be negative")
	}
	if f.HardStopLossPct >= 0 {
		return fmt.Errorf("firewall.hard_stop_loss_pct must be negative")
	}
	if f.CooldownMinutes < 0 || f.MinTradeIntervalMinutes < 0 {
		return fmt.Errorf("firewall cooldown intervals must be >= 0")
	}
	return nil
}

func validateTrader(c *Config) error {
	for name, value := range map[string]string{
		"trader.evaluate_interval": c.Trader.EvaluateInterval,
		"trader.monitor_interval":  c.Trader.MonitorInterval,
		"trader.cycle_timeout":     c.Trader.CycleTimeout,
	} {
		if _, ok := scheduler.ParseIntervalDuration(value); !ok {
			return fmt.Errorf("%s is not a valid interval: %q", name, value)
		}
	}
	return nil
}
