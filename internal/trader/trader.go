// Package trader runs the full decision pipeline: capture a snapshot, ask
// the advisor, rule through the firewall, gate through the state machine,
// record to the audit trail, and only then touch the broker.
package trader

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"bastion/internal/advisor"
	"bastion/internal/audit"
	"bastion/internal/firewall"
	"bastion/internal/gateway/broker"
	"bastion/internal/gateway/marketdata"
	"bastion/internal/logger"
	"bastion/internal/risk"
	"bastion/internal/scheduler"
	"bastion/internal/snapshot"
	"bastion/internal/statemachine"
	"bastion/internal/store"
	"bastion/internal/store/model"

	"gorm.io/datatypes"
)

// maxConcurrentCycles bounds how many symbols evaluate at once; same-symbol
// cycles are additionally serialized by per-symbol locks.
const maxConcurrentCycles = 4

// Config holds the trader's loop timing and watchlist.
type Config struct {
	Symbols          []string `mapstructure:"symbols"`
	WatchlistPath    string   `mapstructure:"watchlist_path"`
	EvaluateInterval string   `mapstructure:"evaluate_interval"`
	MonitorInterval  string   `mapstructure:"monitor_interval"`
	CycleTimeout     string   `mapstructure:"cycle_timeout"`
}

func DefaultConfig() Config {
	return Config{
		EvaluateInterval: "5m",
		MonitorInterval:  "1m",
		CycleTimeout:     "2m",
	}
}

// AutoTrader owns the evaluation and monitor loops. Start and Stop bracket
// its lifetime; a second Start without Stop is rejected.
type AutoTrader struct {
	cfg      Config
	builder  *snapshot.Builder
	advisor  advisor.Advisor
	firewall *firewall.Firewall
	machine  *statemachine.Machine
	auditLog *audit.Store
	riskCtx  *risk.Context
	broker   broker.Broker
	market   marketdata.Source
	storage  store.Store

	mu        sync.Mutex
	cancel    context.CancelFunc
	done      chan struct{}
	symbolMu  map[string]*sync.Mutex
	symbolsMu sync.Mutex
}

type Deps struct {
	Builder  *snapshot.Builder
	Advisor  advisor.Advisor
	Firewall *firewall.Firewall
	Machine  *statemachine.Machine
	AuditLog *audit.Store
	RiskCtx  *risk.Context
	Broker   broker.Broker
	Market   marketdata.Source
	Storage  store.Store
}

func New(cfg Config, deps Deps) *AutoTrader {
	return &AutoTrader{
		cfg:      cfg,
		builder:  deps.Builder,
		advisor:  deps.Advisor,
		firewall: deps.Firewall,
		machine:  deps.Machine,
		auditLog: deps.AuditLog,
		riskCtx:  deps.RiskCtx,
		broker:   deps.Broker,
		market:   deps.Market,
		storage:  deps.Storage,
		symbolMu: make(map[string]*sync.Mutex),
	}
}

// Start launches the loops. Returns immediately; errors inside cycles are
// logged, not fatal.
func (t *AutoTrader) Start(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.cancel != nil {
		return fmt.Errorf("trader already running")
	}

	evalEvery, ok := scheduler.ParseIntervalDuration(t.cfg.EvaluateInterval)
	if !ok {
		return fmt.Errorf("invalid evaluate_interval %q", t.cfg.EvaluateInterval)
	}
	monitorEvery, ok := scheduler.ParseIntervalDuration(t.cfg.MonitorInterval)
	if !ok {
		return fmt.Errorf("invalid monitor_interval %q", t.cfg.MonitorInterval)
	}

	t.reconcileLifecycle(ctx)

	runCtx, cancel := context.WithCancel(ctx)
	t.cancel = cancel
	t.done = make(chan struct{})

	g, gctx := errgroup.WithContext(runCtx)
	g.Go(func() error {
		sched := scheduler.NewAlignedScheduler(gctx, evalEvery, 5*time.Second)
		sched.Start(func() { t.EvaluateAll(gctx) })
		return nil
	})
	g.Go(func() error {
		sched := scheduler.NewAlignedScheduler(gctx, monitorEvery, 0)
		sched.Start(func() { t.MonitorPositions(gctx) })
		return nil
	})

	go func() {
		defer close(t.done)
		if err := g.Wait(); err != nil {
			logger.Errorf("trader: loop exited: %v", err)
		}
	}()

	logger.Infof("trader: started, evaluate every %s, monitor every %s", evalEvery, monitorEvery)
	return nil
}

// Stop cancels the loops and waits for them to drain.
func (t *AutoTrader) Stop() {
	t.mu.Lock()
	cancel := t.cancel
	done := t.done
	t.cancel = nil
	t.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
	logger.Infof("trader: stopped")
}

// reconcileLifecycle aligns the state machine with broker reality. After a
// restart the machine starts every symbol in WAIT; held symbols move to
// MANAGING so exits stay legal.
func (t *AutoTrader) reconcileLifecycle(ctx context.Context) {
	positions, err := t.broker.GetPositions(ctx)
	if err != nil {
		logger.Warnf("trader: lifecycle reconcile skipped, positions unavailable: %v", err)
		return
	}
	for _, pos := range positions {
		symbol := strings.ToUpper(pos.Symbol)
		if pos.Quantity <= 0 || t.machine.CanClose(symbol) {
			continue
		}
		t.machine.ForceState(symbol, statemachine.StateManaging)
	}
}

// EvaluateAll runs one decision cycle for every active symbol.
func (t *AutoTrader) EvaluateAll(ctx context.Context) {
	symbols := t.activeSymbols(ctx)
	if len(symbols) == 0 {
		logger.Debugf("trader: no active symbols")
		return
	}

	cycleTimeout, ok := scheduler.ParseIntervalDuration(t.cfg.CycleTimeout)
	if !ok {
		cycleTimeout = 2 * time.Minute
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentCycles)
	for _, symbol := range symbols {
		symbol := symbol
		g.Go(func() error {
			cctx, cancel := context.WithTimeout(gctx, cycleTimeout)
			defer cancel()
			if err := t.EvaluateSymbol(cctx, symbol); err != nil {
				logger.Errorf("trader: cycle for %s failed: %v", symbol, err)
			}
			// Failed cycles retry on the next interval; never abort the group.
			return nil
		})
	}
	_ = g.Wait()
}

// EvaluateSymbol runs one full pipeline pass for a single symbol. Cycles
// for the same symbol are serialized; different symbols may overlap.
func (t *AutoTrader) EvaluateSymbol(ctx context.Context, symbol string) error {
	symbol = strings.ToUpper(symbol)
	lock := t.lockFor(symbol)
	lock.Lock()
	defer lock.Unlock()

	acct, err := t.broker.GetAccount(ctx)
	if err != nil {
		return fmt.Errorf("account: %w", err)
	}
	positions, err := t.broker.GetPositions(ctx)
	if err != nil {
		return fmt.Errorf("positions: %w", err)
	}
	md, err := t.market.Fetch(ctx, symbol)
	if err != nil {
		return fmt.Errorf("market data: %w", err)
	}

	riskFacts := t.riskCtx.Facts()
	snap := t.builder.Build(symbol, md, acct, positions, riskFacts)

	result, err := t.advisor.Propose(ctx, snap)
	if err != nil {
		return fmt.Errorf("advisor: %w", err)
	}

	verdict := t.firewall.Check(result.Proposal, snap, riskFacts)

	// The state machine has the final word on lifecycle legality. A SELL
	// is still legal when the broker actually holds the symbol, whatever
	// the machine thinks: exits must survive a restart with stale state.
	if verdict.Allowed {
		blocked := false
		switch verdict.FinalAction {
		case firewall.ActionBuy:
			blocked = !t.machine.CanOpen(symbol)
		case firewall.ActionSell:
			blocked = !t.machine.CanClose(symbol) && !snap.HasPosition
		}
		if blocked {
			attempted := verdict.FinalAction
			verdict.Allowed = false
			verdict.FinalAction = firewall.ActionHold
			verdict.RejectReasons = append(verdict.RejectReasons,
				fmt.Sprintf("lifecycle state %s forbids %s", t.machine.State(symbol), attempted))
			verdict.ReasonCodes = append(verdict.ReasonCodes, firewall.CodeStateMachineBlock)
		}
	}

	entryID, auditErr := t.auditLog.Append(audit.Entry{
		Symbol:        symbol,
		SnapshotHash:  snap.Fingerprint(),
		Snapshot:      &snap,
		PromptVersion: advisor.PromptVersion,
		RawOutput:     result.RawOutput,
		Proposal:      &result.Proposal,
		Verdict:       &verdict,
	})
	if auditErr != nil {
		// The trail must not take the pipeline down with it.
		logger.Errorf("trader: audit append for %s failed: %v", symbol, auditErr)
	}

	t.saveSignal(ctx, symbol, snap, result.Proposal, verdict, entryID)

	if !verdict.Allowed {
		logger.Infof("trader: %s -> %s (denied: %v)", symbol, verdict.FinalAction, verdict.RejectReasons)
		t.machine.Transition(symbol, verdict.FinalAction, snap.HasPosition)
		return nil
	}

	if err := t.execute(ctx, symbol, snap, verdict, entryID); err != nil {
		return fmt.Errorf("execute: %w", err)
	}
	return nil
}

// execute places the approved order and records its outcome.
func (t *AutoTrader) execute(ctx context.Context, symbol string, snap snapshot.Snapshot, verdict firewall.Verdict, entryID string) error {
	var (
		order broker.Order
		err   error
	)
	switch verdict.FinalAction {
	case firewall.ActionBuy:
		notional := snap.AccountEquity * verdict.FinalParams.PositionSizePct / 100
		if notional > snap.AccountBuyingPower {
			notional = snap.AccountBuyingPower
		}
		if notional <= 0 {
			return fmt.Errorf("no buying power for %s", symbol)
		}
		order, err = t.broker.SubmitBuy(ctx, symbol, notional)
	case firewall.ActionSell:
		qty := snap.PositionQuantity * verdict.FinalParams.PositionSizePct / 100
		if verdict.FinalParams.PositionSizePct >= 100 {
			qty = 0 // full liquidation
		}
		order, err = t.broker.SubmitSell(ctx, symbol, qty)
	default:
		return nil
	}
	if err != nil {
		return err
	}

	if _, ferr := t.auditLog.Append(audit.Entry{
		RefEntryID: entryID,
		Kind:       audit.KindFill,
		Symbol:     symbol,
		OrderRequest: &audit.OrderRequest{
			Side:     order.Side,
			Notional: order.Notional,
			Quantity: order.Quantity,
			OrderID:  order.ID,
		},
		OrderFill: &audit.OrderFill{
			OrderID:  order.ID,
			Status:   order.Status,
			Quantity: order.FilledQty,
			AvgPrice: order.FilledPrice,
			FilledAt: order.FilledAt,
		},
	}); ferr != nil {
		logger.Errorf("trader: fill audit for %s failed: %v", symbol, ferr)
	}

	hasPosition := verdict.FinalAction == firewall.ActionBuy
	t.machine.Transition(symbol, verdict.FinalAction, hasPosition)
	t.riskCtx.MarkTrade(symbol)
	t.recordTrade(ctx, symbol, snap, verdict, order, entryID)

	logger.Infof("trader: executed %s %s, order %s status %s",
		verdict.FinalAction, symbol, order.ID, order.Status)
	return nil
}

// MonitorPositions sweeps open positions and force-exits any that breached
// their stop-loss or take-profit levels. The firewall is not consulted:
// these exits come from levels the firewall already approved at entry.
func (t *AutoTrader) MonitorPositions(ctx context.Context) {
	if t.storage == nil {
		return
	}
	open, err := t.storage.Positions().ListOpen(ctx)
	if err != nil {
		logger.Errorf("trader: monitor list: %v", err)
		return
	}
	for _, pos := range open {
		if ctx.Err() != nil {
			return
		}
		if err := t.checkExitLevels(ctx, pos); err != nil {
			logger.Errorf("trader: monitor %s: %v", pos.Symbol, err)
		}
	}
}

func (t *AutoTrader) checkExitLevels(ctx context.Context, pos model.MonitoredPositionModel) error {
	price, err := t.market.LatestPrice(ctx, pos.Symbol)
	if err != nil {
		return err
	}
	if price <= 0 || pos.EntryPrice <= 0 {
		return nil
	}
	pnlPct := (price - pos.EntryPrice) / pos.EntryPrice * 100

	var trigger string
	switch {
	case pos.StopLossPct > 0 && pnlPct <= -pos.StopLossPct:
		trigger = "stop loss"
	case pos.TakeProfitPct > 0 && pnlPct >= pos.TakeProfitPct:
		trigger = "take profit"
	default:
		return nil
	}

	lock := t.lockFor(pos.Symbol)
	lock.Lock()
	defer lock.Unlock()

	logger.Warnf("trader: %s hit for %s (pnl %.2f%%), liquidating", trigger, pos.Symbol, pnlPct)
	order, err := t.broker.SubmitSell(ctx, pos.Symbol, 0)
	if err != nil {
		return err
	}

	entryID, aerr := t.auditLog.Append(audit.Entry{
		Symbol: pos.Symbol,
		Note:   fmt.Sprintf("%s exit at %.2f%% pnl", trigger, pnlPct),
		OrderRequest: &audit.OrderRequest{
			Side:     "sell",
			Quantity: order.FilledQty,
			OrderID:  order.ID,
		},
	})
	if aerr != nil {
		logger.Errorf("trader: monitor audit for %s failed: %v", pos.Symbol, aerr)
	}
	if _, ferr := t.auditLog.AppendFill(entryID, pos.Symbol, audit.OrderFill{
		OrderID:  order.ID,
		Status:   order.Status,
		Quantity: order.FilledQty,
		AvgPrice: order.FilledPrice,
		FilledAt: order.FilledAt,
	}); ferr != nil {
		logger.Errorf("trader: monitor fill audit for %s failed: %v", pos.Symbol, ferr)
	}

	t.machine.Transition(pos.Symbol, statemachine.ActionSell, false)
	t.riskCtx.MarkTrade(pos.Symbol)
	t.riskCtx.RecordOutcome(pnlPct)

	if err := t.storage.Positions().MarkClosed(ctx, pos.ID, time.Now().Unix()); err != nil {
		logger.Errorf("trader: close position record %d: %v", pos.ID, err)
	}
	return nil
}

func (t *AutoTrader) activeSymbols(ctx context.Context) []string {
	seen := make(map[string]bool)
	var out []string
	add := func(sym string) {
		sym = strings.ToUpper(strings.TrimSpace(sym))
		if sym != "" && !seen[sym] {
			seen[sym] = true
			out = append(out, sym)
		}
	}
	for _, sym := range t.cfg.Symbols {
		add(sym)
	}
	if t.storage != nil {
		tasks, err := t.storage.Tasks().ListActive(ctx)
		if err != nil {
			logger.Errorf("trader: list tasks: %v", err)
		} else {
			for _, task := range tasks {
				add(task.Symbol)
			}
		}
	}
	return out
}

func (t *AutoTrader) lockFor(symbol string) *sync.Mutex {
	t.symbolsMu.Lock()
	defer t.symbolsMu.Unlock()
	lock, ok := t.symbolMu[symbol]
	if !ok {
		lock = &sync.Mutex{}
		t.symbolMu[symbol] = lock
	}
	return lock
}

func (t *AutoTrader) saveSignal(ctx context.Context, symbol string, snap snapshot.Snapshot, p firewall.Proposal, v firewall.Verdict, entryID string) {
	if t.storage == nil {
		return
	}
	reasons := make([]string, 0, len(v.ReasonCodes))
	for _, c := range v.ReasonCodes {
		reasons = append(reasons, string(c))
	}
	sig := &model.TradingSignalModel{
		Symbol:       symbol,
		Action:       v.FinalAction,
		Confidence:   v.NormalizedConfidence,
		Allowed:      v.Allowed,
		ReasonsJSON:  toJSON(reasons),
		SnapshotHash: snap.Fingerprint(),
		AuditEntryID: entryID,
	}
	if err := t.storage.Signals().Insert(ctx, sig); err != nil {
		logger.Errorf("trader: save signal for %s: %v", symbol, err)
	}
}

func (t *AutoTrader) recordTrade(ctx context.Context, symbol string, snap snapshot.Snapshot, v firewall.Verdict, order broker.Order, entryID string) {
	if t.storage == nil {
		return
	}
	rec := &model.TradeRecordModel{
		Symbol:       symbol,
		Side:         strings.ToLower(v.FinalAction),
		Quantity:     order.FilledQty,
		Price:        order.FilledPrice,
		Notional:     order.FilledQty * order.FilledPrice,
		OrderID:      order.ID,
		AuditEntryID: entryID,
		ExecutedUnix: order.FilledAt.Unix(),
	}
	if err := t.storage.Trades().Insert(ctx, rec); err != nil {
		logger.Errorf("trader: save trade for %s: %v", symbol, err)
	}

	if v.FinalAction == firewall.ActionBuy && order.Filled() {
		pos := &model.MonitoredPositionModel{
			Symbol:        symbol,
			Quantity:      order.FilledQty,
			EntryPrice:    order.FilledPrice,
			StopLossPct:   v.FinalParams.StopLossPct,
			TakeProfitPct: v.FinalParams.TakeProfitPct,
			Status:        model.PositionStatusOpen,
			AuditEntryID:  entryID,
		}
		if err := t.storage.Positions().Save(ctx, pos); err != nil {
			logger.Errorf("trader: save position for %s: %v", symbol, err)
		}
	}
	if v.FinalAction == firewall.ActionSell {
		if open, err := t.storage.Positions().FindOpenBySymbol(ctx, symbol); err == nil {
			if cerr := t.storage.Positions().MarkClosed(ctx, open.ID, time.Now().Unix()); cerr != nil {
				logger.Errorf("trader: close position record %d: %v", open.ID, cerr)
			}
			if open.EntryPrice > 0 && order.FilledPrice > 0 {
				t.riskCtx.RecordOutcome((order.FilledPrice - open.EntryPrice) / open.EntryPrice * 100)
			}
		}
	}
}

func toJSON(v any) datatypes.JSON {
	b, err := json.Marshal(v)
	if err != nil {
		return datatypes.JSON("[]")
	}
	return datatypes.JSON(b)
}
