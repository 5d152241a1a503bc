// Package app wires the configuration into running services and owns their
// lifecycle.
package app

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	bcfg "bastion/internal/config"
	"bastion/internal/logger"
	"bastion/internal/trader"
	adminhttp "bastion/internal/transport/http/admin"
)

// App orchestrates the trader and the admin HTTP server.
type App struct {
	cfg       *bcfg.Config
	cfgPath   string
	trader    *trader.AutoTrader
	adminHTTP *adminhttp.Server
	cleanup   func()
}

// NewApp builds the full dependency graph without starting anything.
func NewApp(cfg *bcfg.Config, cfgPath string) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	logger.SetLevel(cfg.Log.Level)
	return build(cfg, cfgPath)
}

// Run starts the services and blocks until ctx is done or one fails.
func (a *App) Run(ctx context.Context) error {
	if a == nil || a.cfg == nil {
		return fmt.Errorf("app not initialized")
	}
	if a.cleanup != nil {
		defer a.cleanup()
	}

	group, ctx := errgroup.WithContext(ctx)

	if a.adminHTTP != nil {
		group.Go(func() error {
			logger.Infof("admin api listening on %s", a.adminHTTP.Addr())
			if err := a.adminHTTP.Start(ctx); err != nil {
				return fmt.Errorf("admin http server error: %w", err)
			}
			return nil
		})
	}

	group.Go(func() error {
		if err := a.trader.Start(ctx); err != nil {
			return fmt.Errorf("trader start: %w", err)
		}
		<-ctx.Done()
		a.trader.Stop()
		return nil
	})

	return group.Wait()
}

// Trader exposes the underlying trader instance for test harnesses.
func (a *App) Trader() *trader.AutoTrader {
	if a == nil {
		return nil
	}
	return a.trader
}
