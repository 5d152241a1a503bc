package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// WatchEntry is one symbol in a watchlist file, with optional sizing cap.
type WatchEntry struct {
	Symbol      string  `yaml:"symbol"`
	MaxNotional float64 `yaml:"max_notional"`
}

// Watchlist is the external symbol list format. Keeping it as a separate
// file lets operators edit the traded universe without touching thresholds.
type Watchlist struct {
	Symbols []WatchEntry `yaml:"symbols"`
}

// LoadWatchlist reads and normalizes a watchlist file. Duplicate and empty
// symbols are dropped.
func LoadWatchlist(path string) (Watchlist, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Watchlist{}, fmt.Errorf("reading watchlist: %w", err)
	}
	var wl Watchlist
	if err := yaml.Unmarshal(data, &wl); err != nil {
		return Watchlist{}, fmt.Errorf("parsing watchlist: %w", err)
	}

	seen := make(map[string]bool)
	out := wl.Symbols[:0]
	for _, e := range wl.Symbols {
		sym := strings.ToUpper(strings.TrimSpace(e.Symbol))
		if sym == "" || seen[sym] {
			continue
		}
		seen[sym] = true
		e.Symbol = sym
		out = append(out, e)
	}
	wl.Symbols = out
	return wl, nil
}

// SymbolNames flattens the watchlist to its ticker list.
func (w Watchlist) SymbolNames() []string {
	names := make([]string, 0, len(w.Symbols))
	for _, e := range w.Symbols {
		names = append(names, e.Symbol)
	}
	return names
}
