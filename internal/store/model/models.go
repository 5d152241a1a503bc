package model

import (
	"gorm.io/datatypes"
)

type TaskStatus int

const (
	TaskStatusPaused TaskStatus = 0
	TaskStatusActive TaskStatus = 1
	TaskStatusDone   TaskStatus = 2
)

type PositionStatus int

const (
	PositionStatusOpen   PositionStatus = 1
	PositionStatusClosed PositionStatus = 2
)

// StrategyTaskModel is one symbol enrolled in the automated strategy, with
// its per-symbol sizing overrides.
type StrategyTaskModel struct {
	ID            int64          `gorm:"column:id;primaryKey"`
	Symbol        string         `gorm:"column:symbol;uniqueIndex"`
	Status        TaskStatus     `gorm:"column:status"`
	MaxNotional   float64        `gorm:"column:max_notional"`
	ParamsJSON    datatypes.JSON `gorm:"column:params_json;type:TEXT"`
	CreatedAtUnix int64          `gorm:"column:created_at"`
	UpdatedAtUnix int64          `gorm:"column:updated_at"`
}

func (StrategyTaskModel) TableName() string { return "strategy_tasks" }

// MonitoredPositionModel tracks an open position and the exit levels the
// monitor loop enforces.
type MonitoredPositionModel struct {
	ID            int64          `gorm:"column:id;primaryKey"`
	Symbol        string         `gorm:"column:symbol;index"`
	Quantity      float64        `gorm:"column:quantity"`
	EntryPrice    float64        `gorm:"column:entry_price"`
	StopLossPct   float64        `gorm:"column:stop_loss_pct"`
	TakeProfitPct float64        `gorm:"column:take_profit_pct"`
	Status        PositionStatus `gorm:"column:status;index"`
	AuditEntryID  string         `gorm:"column:audit_entry_id"`
	OpenedAtUnix  int64          `gorm:"column:opened_at"`
	ClosedAtUnix  int64          `gorm:"column:closed_at"`
}

func (MonitoredPositionModel) TableName() string { return "monitored_positions" }

// TradeRecordModel is one executed order, as reported by the broker.
type TradeRecordModel struct {
	ID            int64   `gorm:"column:id;primaryKey"`
	Symbol        string  `gorm:"column:symbol;index"`
	Side          string  `gorm:"column:side"`
	Quantity      float64 `gorm:"column:quantity"`
	Price         float64 `gorm:"column:price"`
	Notional      float64 `gorm:"column:notional"`
	PnLPct        float64 `gorm:"column:pnl_pct"`
	OrderID       string  `gorm:"column:order_id;index"`
	AuditEntryID  string  `gorm:"column:audit_entry_id"`
	ExecutedUnix  int64   `gorm:"column:executed_at"`
	CreatedAtUnix int64   `gorm:"column:created_at"`
}

func (TradeRecordModel) TableName() string { return "trade_records" }

// TradingSignalModel is the compact per-cycle outcome kept for trend
// analysis, smaller than the full audit entry.
type TradingSignalModel struct {
	ID            int64          `gorm:"column:id;primaryKey"`
	Symbol        string         `gorm:"column:symbol;index"`
	Action        string         `gorm:"column:action"`
	Confidence    int            `gorm:"column:confidence"`
	Allowed       bool           `gorm:"column:allowed"`
	ReasonsJSON   datatypes.JSON `gorm:"column:reasons_json;type:TEXT"`
	SnapshotHash  string         `gorm:"column:snapshot_hash"`
	AuditEntryID  string         `gorm:"column:audit_entry_id"`
	CreatedAtUnix int64          `gorm:"column:created_at"`
}

func (TradingSignalModel) TableName() string { return "trading_signals" }
