package config

import (
	"github.com/spf13/viper"

	"bastion/internal/firewall"
	"bastion/internal/snapshot"
	"bastion/internal/trader"
)

// setDefaults declares every built-in value in one place. Structured
// sections pull their numbers from the owning package's DefaultConfig so a
// threshold is never defined twice.
func setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")

	session := snapshot.DefaultSessionConfig()
	v.SetDefault("session.timezone", session.Timezone)
	v.SetDefault("session.premarket_open", session.PreMarketOpen)
	v.SetDefault("session.regular_open", session.RegularOpen)
	v.SetDefault("session.regular_close", session.RegularClose)
	v.SetDefault("session.afterhours_close", session.AfterHoursClose)

	signals := snapshot.DefaultSignalConfig()
	v.SetDefault("signals.volume_surge_ratio", signals.VolumeSurgeRatio)
	v.SetDefault("signals.rsi_healthy_min", signals.RSIHealthyMin)
	v.SetDefault("signals.rsi_healthy_max", signals.RSIHealthyMax)
	v.SetDefault("signals.breakout_resistance_frac", signals.BreakoutResistanceFrac)

	fw := firewall.DefaultConfig()
	v.SetDefault("firewall.enable_extended_hours", fw.EnableExtendedHours)
	v.SetDefault("firewall.max_spread_pct", fw.MaxSpreadPct)
	v.SetDefault("firewall.min_liquidity_score", fw.MinLiquidityScore)
	v.SetDefault("firewall.min_buy_signals", fw.MinBuySignals)
	v.SetDefault("firewall.max_position_size_pct", fw.MaxPositionSizePct)
	v.SetDefault("firewall.max_position_size_pct_extended", fw.MaxPositionSizePctExtended)
	v.SetDefault("firewall.min_buy_confidence", fw.MinBuyConfidence)
	v.SetDefault("firewall.stop_loss_min_pct", fw.StopLossMinPct)
	v.SetDefault("firewall.stop_loss_max_pct", fw.StopLossMaxPct)
	v.SetDefault("firewall.take_profit_min_pct", fw.TakeProfitMinPct)
	v.SetDefault("firewall.take_profit_max_pct", fw.TakeProfitMaxPct)
	v.SetDefault("firewall.day_circuit_breaker_pct", fw.DayCircuitBreakerPct)
	v.SetDefault("firewall.cooldown_minutes", fw.CooldownMinutes)
	v.SetDefault("firewall.min_trade_interval_minutes", fw.MinTradeIntervalMinutes)
	v.SetDefault("firewall.hard_stop_loss_pct", fw.HardStopLossPct)

	v.SetDefault("advisor.base_url", "https://api.openai.com/v1")
	v.SetDefault("advisor.model", "gpt-4o-mini")
	v.SetDefault("advisor.timeout_seconds", 60)
	v.SetDefault("advisor.max_retries", 2)

	v.SetDefault("alpaca.base_url", "https://paper-api.alpaca.markets")
	v.SetDefault("alpaca.paper", false)
	v.SetDefault("alpaca.paper_cash", 100000)

	tr := trader.DefaultConfig()
	v.SetDefault("trader.watchlist_path", tr.WatchlistPath)
	v.SetDefault("trader.evaluate_interval", tr.EvaluateInterval)
	v.SetDefault("trader.monitor_interval", tr.MonitorInterval)
	v.SetDefault("trader.cycle_timeout", tr.CycleTimeout)

	v.SetDefault("storage.audit_path", "data/audit.db")
	v.SetDefault("storage.strategy_path", "data/strategy.db")

	v.SetDefault("admin.enabled", true)
	v.SetDefault("admin.listen", ":8087")
}
