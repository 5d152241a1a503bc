package sqlite

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"bastion/internal/store"
	"bastion/internal/store/model"
)

type SqliteStore struct {
	db *gorm.DB
}

var _ store.Store = (*SqliteStore)(nil)

func NewSqliteStore(path string) (*SqliteStore, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("database path cannot be empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&cache=shared", path)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:                                   logger.Default.LogMode(logger.Silent),
		DisableForeignKeyConstraintWhenMigrating: true,
	})
	if err != nil {
		return nil, err
	}
	return newSqliteStore(db)
}

func NewSqliteStoreFromDB(db *gorm.DB) (*SqliteStore, error) {
	if db == nil {
		return nil, fmt.Errorf("gorm db cannot be nil")
	}
	return newSqliteStore(db)
}

func newSqliteStore(db *gorm.DB) (*SqliteStore, error) {
	models := []interface{}{
		&model.StrategyTaskModel{},
		&model.MonitoredPositionModel{},
		&model.TradeRecordModel{},
		&model.TradingSignalModel{},
	}
	if err := db.AutoMigrate(models...); err != nil {
		return nil, err
	}
	if sqlDB, err := db.DB(); err == nil {
		sqlDB.SetMaxOpenConns(2)
		sqlDB.SetMaxIdleConns(2)
	}
	return &SqliteStore{db: db}, nil
}

func (s *SqliteStore) Tasks() store.TaskRepository         { return &taskRepo{db: s.db} }
func (s *SqliteStore) Positions() store.PositionRepository { return &positionRepo{db: s.db} }
func (s *SqliteStore) Trades() store.TradeRepository       { return &tradeRepo{db: s.db} }
func (s *SqliteStore) Signals() store.SignalRepository     { return &signalRepo{db: s.db} }

func (s *SqliteStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

type taskRepo struct {
	db *gorm.DB
}

func (r *taskRepo) Save(ctx context.Context, task *model.StrategyTaskModel) error {
	now := time.Now().Unix()
	task.Symbol = strings.ToUpper(task.Symbol)
	task.UpdatedAtUnix = now
	if task.CreatedAtUnix == 0 {
		task.CreatedAtUnix = now
	}
	return r.db.WithContext(ctx).Save(task).Error
}

func (r *taskRepo) FindBySymbol(ctx context.Context, symbol string) (*model.StrategyTaskModel, error) {
	var task model.StrategyTaskModel
	err := r.db.WithContext(ctx).Where("symbol = ?", strings.ToUpper(symbol)).First(&task).Error
	if err != nil {
		return nil, err
	}
	return &task, nil
}

func (r *taskRepo) ListActive(ctx context.Context) ([]model.StrategyTaskModel, error) {
	var tasks []model.StrategyTaskModel
	err := r.db.WithContext(ctx).Where("status = ?", model.TaskStatusActive).Find(&tasks).Error
	return tasks, err
}

func (r *taskRepo) List(ctx context.Context) ([]model.StrategyTaskModel, error) {
	var tasks []model.StrategyTaskModel
	err := r.db.WithContext(ctx).Order("symbol").Find(&tasks).Error
	return tasks, err
}

func (r *taskRepo) Delete(ctx context.Context, symbol string) error {
	return r.db.WithContext(ctx).
		Where("symbol = ?", strings.ToUpper(symbol)).
		Delete(&model.StrategyTaskModel{}).Error
}

type positionRepo struct {
	db *gorm.DB
}

func (r *positionRepo) Save(ctx context.Context, pos *model.MonitoredPositionModel) error {
	pos.Symbol = strings.ToUpper(pos.Symbol)
	if pos.OpenedAtUnix == 0 {
		pos.OpenedAtUnix = time.Now().Unix()
	}
	return r.db.WithContext(ctx).Save(pos).Error
}

func (r *positionRepo) ListOpen(ctx context.Context) ([]model.MonitoredPositionModel, error) {
	var positions []model.MonitoredPositionModel
	err := r.db.WithContext(ctx).Where("status = ?", model.PositionStatusOpen).Find(&positions).Error
	return positions, err
}

func (r *positionRepo) FindOpenBySymbol(ctx context.Context, symbol string) (*model.MonitoredPositionModel, error) {
	var pos model.MonitoredPositionModel
	err := r.db.WithContext(ctx).
		Where("symbol = ? AND status = ?", strings.ToUpper(symbol), model.PositionStatusOpen).
		First(&pos).Error
	if err != nil {
		return nil, err
	}
	return &pos, nil
}

func (r *positionRepo) MarkClosed(ctx context.Context, id int64, closedAtUnix int64) error {
	return r.db.WithContext(ctx).Model(&model.MonitoredPositionModel{}).
		Where("id = ?", id).
		Updates(map[string]any{"status": model.PositionStatusClosed, "closed_at": closedAtUnix}).Error
}

type tradeRepo struct {
	db *gorm.DB
}

func (r *tradeRepo) Insert(ctx context.Context, rec *model.TradeRecordModel) error {
	rec.Symbol = strings.ToUpper(rec.Symbol)
	if rec.CreatedAtUnix == 0 {
		rec.CreatedAtUnix = time.Now().Unix()
	}
	return r.db.WithContext(ctx).Create(rec).Error
}

func (r *tradeRepo) ListRecent(ctx context.Context, symbol string, limit int) ([]model.TradeRecordModel, error) {
	if limit <= 0 {
		limit = 50
	}
	q := r.db.WithContext(ctx).Order("executed_at DESC").Limit(limit)
	if symbol != "" {
		q = q.Where("symbol = ?", strings.ToUpper(symbol))
	}
	var records []model.TradeRecordModel
	err := q.Find(&records).Error
	return records, err
}

type signalRepo struct {
	db *gorm.DB
}

func (r *signalRepo) Insert(ctx context.Context, sig *model.TradingSignalModel) error {
	sig.Symbol = strings.ToUpper(sig.Symbol)
	if sig.CreatedAtUnix == 0 {
		sig.CreatedAtUnix = time.Now().Unix()
	}
	return r.db.WithContext(ctx).Create(sig).Error
}

func (r *signalRepo) ListRecent(ctx context.Context, symbol string, limit int) ([]model.TradingSignalModel, error) {
	if limit <= 0 {
		limit = 50
	}
	q := r.db.WithContext(ctx).Order("created_at DESC").Limit(limit)
	if symbol != "" {
		q = q.Where("symbol = ?", strings.ToUpper(symbol))
	}
	var signals []model.TradingSignalModel
	err := q.Find(&signals).Error
	return signals, err
}
