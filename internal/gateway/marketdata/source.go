// Package marketdata produces per-symbol market views with computed
// technical indicators.
package marketdata

import (
	"context"

	"bastion/internal/snapshot"
)

// Source fetches the latest market view for one symbol.
type Source interface {
	Fetch(ctx context.Context, symbol string) (snapshot.MarketData, error)
	// LatestPrice is the lightweight path used by the position monitor.
	LatestPrice(ctx context.Context, symbol string) (float64, error)
}
