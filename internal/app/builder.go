package app

import (
	"context"
	"fmt"
	"time"

	"bastion/internal/advisor"
	"bastion/internal/audit"
	bcfg "bastion/internal/config"
	"bastion/internal/firewall"
	"bastion/internal/gateway/broker"
	"bastion/internal/gateway/marketdata"
	"bastion/internal/logger"
	"bastion/internal/risk"
	"bastion/internal/snapshot"
	"bastion/internal/statemachine"
	"bastion/internal/store"
	"bastion/internal/store/model"
	storesqlite "bastion/internal/store/sqlite"
	"bastion/internal/trader"
	adminhttp "bastion/internal/transport/http/admin"
)

// build assembles every component from the configuration.
func build(cfg *bcfg.Config, cfgPath string) (*App, error) {
	auditStore, err := audit.NewStore(cfg.Storage.AuditPath)
	if err != nil {
		return nil, fmt.Errorf("audit store: %w", err)
	}
	storage, err := storesqlite.NewSqliteStore(cfg.Storage.StrategyPath)
	if err != nil {
		auditStore.Close()
		return nil, fmt.Errorf("strategy store: %w", err)
	}
	cleanup := func() {
		if err := storage.Close(); err != nil {
			logger.Warnf("strategy store close: %v", err)
		}
		if err := auditStore.Close(); err != nil {
			logger.Warnf("audit store close: %v", err)
		}
	}

	market := marketdata.NewAlpacaSource(cfg.Alpaca.MarketDataConfig())

	var exec broker.Broker
	if cfg.Alpaca.Paper {
		logger.Infof("broker: paper simulator with %.0f starting cash", cfg.Alpaca.PaperCash)
		exec = broker.NewPaperBroker(cfg.Alpaca.PaperCash, func(symbol string) (float64, error) {
			return market.LatestPrice(context.Background(), symbol)
		})
	} else {
		exec = broker.NewAlpacaBroker(cfg.Alpaca.BrokerConfig())
	}

	fw := firewall.New(cfg.Firewall)
	if cfgPath != "" {
		if err := bcfg.WatchFirewall(cfgPath, fw.SetConfig); err != nil {
			logger.Warnf("config watch disabled: %v", err)
		}
	}

	machine := statemachine.New(time.Duration(cfg.Firewall.CooldownMinutes) * time.Minute)
	riskCtx := risk.NewContext()
	builder := snapshot.NewBuilder(cfg.Session, cfg.Signals)
	engine := advisor.NewEngine(cfg.Advisor.ChatClient())

	traderCfg := cfg.Trader
	if traderCfg.WatchlistPath != "" {
		wl, werr := bcfg.LoadWatchlist(traderCfg.WatchlistPath)
		if werr != nil {
			cleanup()
			return nil, fmt.Errorf("watchlist: %w", werr)
		}
		traderCfg.Symbols = append(traderCfg.Symbols, wl.SymbolNames()...)
		seedTasks(storage, wl)
	}

	tr := trader.New(traderCfg, trader.Deps{
		Builder:  builder,
		Advisor:  engine,
		Firewall: fw,
		Machine:  machine,
		AuditLog: auditStore,
		RiskCtx:  riskCtx,
		Broker:   exec,
		Market:   market,
		Storage:  storage,
	})

	var adminSrv *adminhttp.Server
	if cfg.Admin.Enabled {
		adminSrv, err = adminhttp.NewServer(adminhttp.ServerConfig{
			Addr:   cfg.Admin.Listen,
			Router: adminhttp.NewRouter(auditStore, machine, storage),
		})
		if err != nil {
			cleanup()
			return nil, fmt.Errorf("admin server: %w", err)
		}
	}

	return &App{
		cfg:       cfg,
		cfgPath:   cfgPath,
		trader:    tr,
		adminHTTP: adminSrv,
		cleanup:   cleanup,
	}, nil
}

// seedTasks enrolls watchlist symbols as active tasks, keeping any existing
// row's status and sizing overrides.
func seedTasks(storage store.Store, wl bcfg.Watchlist) {
	ctx := context.Background()
	for _, e := range wl.Symbols {
		if existing, err := storage.Tasks().FindBySymbol(ctx, e.Symbol); err == nil && existing != nil {
			continue
		}
		task := &model.StrategyTaskModel{
			Symbol:      e.Symbol,
			Status:      model.TaskStatusActive,
			MaxNotional: e.MaxNotional,
		}
		if err := storage.Tasks().Save(ctx, task); err != nil {
			logger.Warnf("watchlist: enrolling %s: %v", e.Symbol, err)
		}
	}
}
