package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := LoadDefaults()
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "America/New_York", cfg.Session.Timezone)
	assert.Equal(t, 3, cfg.Firewall.MinBuySignals)
	assert.Equal(t, 65, cfg.Firewall.MinBuyConfidence)
	assert.Equal(t, -2.0, cfg.Firewall.DayCircuitBreakerPct)
	assert.Equal(t, "5m", cfg.Trader.EvaluateInterval)
	assert.True(t, cfg.Admin.Enabled)
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
log:
  level: debug
firewall:
  min_buy_confidence: 70
  max_spread_pct: 0.3
trader:
  symbols: [aapl, msft]
  evaluate_interval: 15m
alpaca:
  paper: true
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, 70, cfg.Firewall.MinBuyConfidence)
	assert.Equal(t, 0.3, cfg.Firewall.MaxSpreadPct)
	assert.Equal(t, []string{"aapl", "msft"}, cfg.Trader.Symbols)
	assert.Equal(t, "15m", cfg.Trader.EvaluateInterval)
	assert.True(t, cfg.Alpaca.Paper)
	// Untouched sections keep their defaults.
	assert.Equal(t, 3, cfg.Firewall.MinBuySignals)
}

func TestLoadRejectsInvalidFirewall(t *testing.T) {
	cases := map[string]string{
		"positive breaker":  "firewall:\n  day_circuit_breaker_pct: 2\n",
		"inverted stops":    "firewall:\n  stop_loss_min_pct: 6\n  stop_loss_max_pct: 3\n",
		"confidence range":  "firewall:\n  min_buy_confidence: 150\n",
		"positive hardstop": "firewall:\n  hard_stop_loss_pct: 5\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeConfig(t, body))
			assert.Error(t, err)
		})
	}
}

func TestLoadRejectsBadInterval(t *testing.T) {
	_, err := Load(writeConfig(t, "trader:\n  evaluate_interval: sometimes\n"))
	assert.Error(t, err)
}

func TestLoadRejectsBadSession(t *testing.T) {
	_, err := Load(writeConfig(t, "session:\n  regular_open: \"25:99\"\n"))
	assert.Error(t, err)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
