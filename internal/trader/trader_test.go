package trader

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"bastion/internal/advisor"
	"bastion/internal/audit"
	"bastion/internal/firewall"
	"bastion/internal/gateway/broker"
	"bastion/internal/risk"
	"bastion/internal/snapshot"
	"bastion/internal/statemachine"
	"bastion/internal/store/model"
	storesqlite "bastion/internal/store/sqlite"
)

// Monday 10:30 New York, regular session.
var testNow = time.Date(2025, 6, 2, 14, 30, 0, 0, time.UTC)

type MockAdvisor struct {
	mock.Mock
}

func (m *MockAdvisor) Propose(ctx context.Context, s snapshot.Snapshot) (advisor.Result, error) {
	args := m.Called(ctx, s)
	return args.Get(0).(advisor.Result), args.Error(1)
}

func advisorReturning(res advisor.Result) *MockAdvisor {
	m := &MockAdvisor{}
	m.On("Propose", mock.Anything, mock.Anything).Return(res, nil)
	return m
}

type stubMarket struct {
	data  snapshot.MarketData
	price float64
}

func (m *stubMarket) Fetch(ctx context.Context, symbol string) (snapshot.MarketData, error) {
	return m.data, nil
}

func (m *stubMarket) LatestPrice(ctx context.Context, symbol string) (float64, error) {
	return m.price, nil
}

func ptr(v float64) *float64 { return &v }

// bullishData satisfies trend, volume, MACD and RSI predicates.
func bullishData() snapshot.MarketData {
	return snapshot.MarketData{
		Symbol:       "AAPL",
		CurrentPrice: 200,
		Open:         195,
		High:         201,
		Low:          194,
		Close:        200,
		Volume:       1_000_000,
		MA5:          ptr(198),
		MA20:         ptr(192),
		MA60:         ptr(185),
		MACD:         ptr(1.5),
		MACDSignal:   ptr(1.0),
		MACDHist:     ptr(0.5),
		RSI:          ptr(60),
		BBUpper:      ptr(205),
		BBMiddle:     ptr(195),
		BBLower:      ptr(185),
		VolumeRatio:  ptr(1.5),
	}
}

func buyResult() advisor.Result {
	return advisor.Result{
		Proposal: firewall.Proposal{
			Symbol:     "AAPL",
			Action:     firewall.ActionBuy,
			Confidence: 80,
			Params: firewall.TradeParams{
				PositionSizePct: 20,
				StopLossPct:     4,
				TakeProfitPct:   10,
			},
			CounterEvidence: []string{"overbought risk", "macro headwinds"},
		},
		RawOutput: `{"action":"BUY","confidence":80}`,
	}
}

type fixture struct {
	trader  *AutoTrader
	broker  *broker.PaperBroker
	machine *statemachine.Machine
	audit   *audit.Store
	risk    *risk.Context
	market  *stubMarket
	storage *storesqlite.SqliteStore
}

func newFixture(t *testing.T, adv advisor.Advisor) *fixture {
	t.Helper()
	dir := t.TempDir()

	auditStore, err := audit.NewStore(filepath.Join(dir, "audit.db"))
	require.NoError(t, err)
	t.Cleanup(func() { auditStore.Close() })

	storage, err := storesqlite.NewSqliteStore(filepath.Join(dir, "strategy.db"))
	require.NoError(t, err)
	t.Cleanup(func() { storage.Close() })

	market := &stubMarket{data: bullishData(), price: 200}
	paper := broker.NewPaperBroker(100000, func(sym string) (float64, error) {
		return market.price, nil
	})

	builder := snapshot.NewBuilder(snapshot.DefaultSessionConfig(), snapshot.DefaultSignalConfig()).
		WithClock(func() time.Time { return testNow })
	fw := firewall.New(firewall.DefaultConfig()).
		WithClock(func() time.Time { return testNow })
	machine := statemachine.New(30 * time.Minute)
	riskCtx := risk.NewContext()

	cfg := DefaultConfig()
	cfg.Symbols = []string{"AAPL"}

	tr := New(cfg, Deps{
		Builder:  builder,
		Advisor:  adv,
		Firewall: fw,
		Machine:  machine,
		AuditLog: auditStore,
		RiskCtx:  riskCtx,
		Broker:   paper,
		Market:   market,
		Storage:  storage,
	})
	return &fixture{
		trader:  tr,
		broker:  paper,
		machine: machine,
		audit:   auditStore,
		risk:    riskCtx,
		market:  market,
		storage: storage,
	}
}

func TestEvaluateSymbolExecutesApprovedBuy(t *testing.T) {
	f := newFixture(t, advisorReturning(buyResult()))
	ctx := context.Background()

	require.NoError(t, f.trader.EvaluateSymbol(ctx, "AAPL"))

	positions, err := f.broker.GetPositions(ctx)
	require.NoError(t, err)
	require.Len(t, positions, 1)
	assert.Equal(t, "AAPL", positions[0].Symbol)

	assert.Equal(t, statemachine.StateEntered, f.machine.State("AAPL"))

	decisions, err := f.audit.List(audit.Query{Kind: audit.KindDecision})
	require.NoError(t, err)
	require.Len(t, decisions, 1)
	assert.True(t, decisions[0].Verdict.Allowed)
	assert.Equal(t, "v2", decisions[0].PromptVersion)
	assert.NotEmpty(t, decisions[0].SnapshotHash)

	fills, err := f.audit.List(audit.Query{Kind: audit.KindFill})
	require.NoError(t, err)
	require.Len(t, fills, 1)
	assert.Equal(t, decisions[0].EntryID, fills[0].RefEntryID)

	_, traded := f.risk.LastTradeAt("AAPL")
	assert.True(t, traded)

	monitored, err := f.storage.Positions().ListOpen(ctx)
	require.NoError(t, err)
	require.Len(t, monitored, 1)
	assert.Equal(t, 4.0, monitored[0].StopLossPct)
}

func TestEvaluateSymbolRecordsDenial(t *testing.T) {
	res := buyResult()
	res.Proposal.Confidence = 50
	f := newFixture(t, advisorReturning(res))
	ctx := context.Background()

	require.NoError(t, f.trader.EvaluateSymbol(ctx, "AAPL"))

	positions, err := f.broker.GetPositions(ctx)
	require.NoError(t, err)
	assert.Empty(t, positions)

	decisions, err := f.audit.List(audit.Query{Kind: audit.KindDecision})
	require.NoError(t, err)
	require.Len(t, decisions, 1)
	assert.False(t, decisions[0].Verdict.Allowed)
	assert.True(t, decisions[0].Verdict.HasCode(firewall.CodeLowConfidence))

	signals, err := f.storage.Signals().ListRecent(ctx, "AAPL", 10)
	require.NoError(t, err)
	require.Len(t, signals, 1)
	assert.False(t, signals[0].Allowed)
}

func TestEvaluateSymbolStateMachineBlocksBuyFromManaging(t *testing.T) {
	f := newFixture(t, advisorReturning(buyResult()))
	ctx := context.Background()

	// A firewall-approved buy must still be blocked when the lifecycle
	// says the symbol is mid-trade.
	f.machine.ForceState("AAPL", statemachine.StateManaging)

	require.NoError(t, f.trader.EvaluateSymbol(ctx, "AAPL"))

	decisions, err := f.audit.List(audit.Query{Kind: audit.KindDecision})
	require.NoError(t, err)
	require.Len(t, decisions, 1)
	assert.False(t, decisions[0].Verdict.Allowed)
	assert.True(t, decisions[0].Verdict.HasCode(firewall.CodeStateMachineBlock))

	positions, err := f.broker.GetPositions(ctx)
	require.NoError(t, err)
	assert.Empty(t, positions)
}

func TestEvaluateSymbolFallbackHoldPlacesNoOrder(t *testing.T) {
	f := newFixture(t, advisorReturning(advisor.Result{
		Proposal:  advisor.FallbackProposal("AAPL"),
		RawOutput: "the market is too uncertain",
		Fallback:  true,
	}))
	ctx := context.Background()

	require.NoError(t, f.trader.EvaluateSymbol(ctx, "AAPL"))

	positions, err := f.broker.GetPositions(ctx)
	require.NoError(t, err)
	assert.Empty(t, positions)

	decisions, err := f.audit.List(audit.Query{})
	require.NoError(t, err)
	require.Len(t, decisions, 1)
	assert.Equal(t, firewall.ActionHold, decisions[0].Verdict.FinalAction)
	assert.Equal(t, 0, decisions[0].Verdict.NormalizedConfidence)
}

func TestMonitorLiquidatesStopLossBreach(t *testing.T) {
	f := newFixture(t, advisorReturning(buyResult()))
	ctx := context.Background()

	require.NoError(t, f.trader.EvaluateSymbol(ctx, "AAPL"))
	require.Equal(t, statemachine.StateEntered, f.machine.State("AAPL"))

	// Price collapses past the 4% stop.
	f.market.price = 180

	f.trader.MonitorPositions(ctx)

	positions, err := f.broker.GetPositions(ctx)
	require.NoError(t, err)
	assert.Empty(t, positions)

	assert.Equal(t, statemachine.StateCooldown, f.machine.State("AAPL"))

	open, err := f.storage.Positions().ListOpen(ctx)
	require.NoError(t, err)
	assert.Empty(t, open)

	facts := f.risk.Facts()
	assert.Equal(t, 1, facts.ConsecutiveLosses)
}

func TestMonitorLeavesHealthyPositionsAlone(t *testing.T) {
	f := newFixture(t, advisorReturning(buyResult()))
	ctx := context.Background()

	require.NoError(t, f.trader.EvaluateSymbol(ctx, "AAPL"))
	f.market.price = 202 // +1%, inside both bands

	f.trader.MonitorPositions(ctx)

	positions, err := f.broker.GetPositions(ctx)
	require.NoError(t, err)
	require.Len(t, positions, 1)
}

func TestActiveSymbolsMergesConfigAndTasks(t *testing.T) {
	f := newFixture(t, advisorReturning(buyResult()))
	ctx := context.Background()

	require.NoError(t, f.storage.Tasks().Save(ctx, &model.StrategyTaskModel{
		Symbol: "msft",
		Status: model.TaskStatusActive,
	}))
	require.NoError(t, f.storage.Tasks().Save(ctx, &model.StrategyTaskModel{
		Symbol: "nvda",
		Status: model.TaskStatusPaused,
	}))

	symbols := f.trader.activeSymbols(ctx)
	assert.ElementsMatch(t, []string{"AAPL", "MSFT"}, symbols)
}

func TestStartRejectsDoubleStart(t *testing.T) {
	f := newFixture(t, advisorReturning(buyResult()))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, f.trader.Start(ctx))
	assert.Error(t, f.trader.Start(ctx))
	f.trader.Stop()

	// Restart after Stop is allowed.
	require.NoError(t, f.trader.Start(ctx))
	f.trader.Stop()
}

func TestEvaluateSymbolHardStopSellSurvivesStaleLifecycle(t *testing.T) {
	res := advisor.Result{
		Proposal: firewall.Proposal{
			Symbol:     "AAPL",
			Action:     firewall.ActionHold,
			Confidence: 40,
		},
		RawOutput: `{"action":"HOLD","confidence":40}`,
	}
	f := newFixture(t, advisorReturning(res))
	ctx := context.Background()

	// Position opened directly with the broker; the machine still says
	// WAIT, as after a process restart.
	_, err := f.broker.SubmitBuy(ctx, "AAPL", 20000)
	require.NoError(t, err)
	require.Equal(t, statemachine.StateWait, f.machine.State("AAPL"))

	// -7.5%, past the hard stop.
	f.market.price = 185
	f.market.data.CurrentPrice = 185

	require.NoError(t, f.trader.EvaluateSymbol(ctx, "AAPL"))

	positions, err := f.broker.GetPositions(ctx)
	require.NoError(t, err)
	assert.Empty(t, positions)

	decisions, err := f.audit.List(audit.Query{Kind: audit.KindDecision})
	require.NoError(t, err)
	require.Len(t, decisions, 1)
	assert.True(t, decisions[0].Verdict.Allowed)
	assert.Equal(t, firewall.ActionSell, decisions[0].Verdict.FinalAction)
	assert.True(t, decisions[0].Verdict.HasCode(firewall.CodeHardStopLoss))

	fills, err := f.audit.List(audit.Query{Kind: audit.KindFill})
	require.NoError(t, err)
	require.Len(t, fills, 1)
}

func TestStartReconcilesHeldSymbolsIntoManaging(t *testing.T) {
	f := newFixture(t, advisorReturning(buyResult()))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	_, err := f.broker.SubmitBuy(ctx, "AAPL", 20000)
	require.NoError(t, err)
	require.False(t, f.machine.CanClose("AAPL"))

	require.NoError(t, f.trader.Start(ctx))
	defer f.trader.Stop()

	assert.Equal(t, statemachine.StateManaging, f.machine.State("AAPL"))
	assert.True(t, f.machine.CanClose("AAPL"))
}
