package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeWatchlist(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "watchlist.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadWatchlist(t *testing.T) {
	path := writeWatchlist(t, `
symbols:
  - symbol: aapl
    max_notional: 5000
  - symbol: " msft "
  - symbol: AAPL
    max_notional: 9999
  - symbol: ""
`)

	wl, err := LoadWatchlist(path)
	require.NoError(t, err)

	// Duplicates and blanks dropped, tickers normalized, first entry wins.
	require.Len(t, wl.Symbols, 2)
	assert.Equal(t, "AAPL", wl.Symbols[0].Symbol)
	assert.Equal(t, 5000.0, wl.Symbols[0].MaxNotional)
	assert.Equal(t, "MSFT", wl.Symbols[1].Symbol)
	assert.Equal(t, []string{"AAPL", "MSFT"}, wl.SymbolNames())
}

func TestLoadWatchlistMissingFile(t *testing.T) {
	_, err := LoadWatchlist(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoadWatchlistBadYAML(t *testing.T) {
	path := writeWatchlist(t, "symbols: [not a mapping")
	_, err := LoadWatchlist(path)
	assert.Error(t, err)
}
