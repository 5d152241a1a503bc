package store

import (
	"context"

	"bastion/internal/store/model"
)

// Store is the entry point for strategy persistence.
type Store interface {
	Tasks() TaskRepository
	Positions() PositionRepository
	Trades() TradeRepository
	Signals() SignalRepository
	Close() error
}

// TaskRepository manages the enrolled-symbol list.
type TaskRepository interface {
	Save(ctx context.Context, task *model.StrategyTaskModel) error
	FindBySymbol(ctx context.Context, symbol string) (*model.StrategyTaskModel, error)
	ListActive(ctx context.Context) ([]model.StrategyTaskModel, error)
	List(ctx context.Context) ([]model.StrategyTaskModel, error)
	Delete(ctx context.Context, symbol string) error
}

// PositionRepository manages monitored open positions.
type PositionRepository interface {
	Save(ctx context.Context, pos *model.MonitoredPositionModel) error
	ListOpen(ctx context.Context) ([]model.MonitoredPositionModel, error)
	FindOpenBySymbol(ctx context.Context, symbol string) (*model.MonitoredPositionModel, error)
	MarkClosed(ctx context.Context, id int64, closedAtUnix int64) error
}

// TradeRepository persists executed orders.
type TradeRepository interface {
	Insert(ctx context.Context, rec *model.TradeRecordModel) error
	ListRecent(ctx context.Context, symbol string, limit int) ([]model.TradeRecordModel, error)
}

// SignalRepository persists per-cycle decision outcomes.
type SignalRepository interface {
	Insert(ctx context.Context, sig *model.TradingSignalModel) error
	ListRecent(ctx context.Context, symbol string, limit int) ([]model.TradingSignalModel, error)
}
