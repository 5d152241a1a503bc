// Package risk maintains the mutable account-level risk context shared by
// the trading pipeline. Reads hand out copies so callers never observe
// mid-update state.
package risk

import (
	"sync"
	"time"

	"bastion/internal/snapshot"
)

// Context tracks running day P&L, loss streaks and per-symbol trade
// timestamps. Safe for concurrent use.
type Context struct {
	mu                sync.RWMutex
	dayPnLPct         float64
	consecutiveLosses int
	lastTradeBySymbol map[string]time.Time
	dayStarted        time.Time
	nowFn             func() time.Time
}

func NewContext() *Context {
	return &Context{
		lastTradeBySymbol: make(map[string]time.Time),
		nowFn:             time.Now,
	}
}

// WithClock overrides the clock used for trade timestamps and day rollover.
func (c *Context) WithClock(nowFn func() time.Time) *Context {
	if nowFn != nil {
		c.nowFn = nowFn
	}
	return c
}

// Facts returns an immutable copy of the current risk state for embedding
// into a snapshot.
func (c *Context) Facts() snapshot.RiskFacts {
	c.mu.RLock()
	defer c.mu.RUnlock()

	last := make(map[string]time.Time, len(c.lastTradeBySymbol))
	for sym, t := range c.lastTradeBySymbol {
		last[sym] = t
	}
	return snapshot.RiskFacts{
		DayPnLPct:         c.dayPnLPct,
		ConsecutiveLosses: c.consecutiveLosses,
		LastTradeBySymbol: last,
	}
}

// SetDayPnL records the account's running day P&L percentage.
func (c *Context) SetDayPnL(pct float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.dayPnLPct = pct
}

// MarkTrade records that a trade executed for symbol at the current clock.
func (c *Context) MarkTrade(symbol string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastTradeBySymbol[symbol] = c.nowFn()
}

// RecordOutcome updates the loss streak from a realized trade result.
func (c *Context) RecordOutcome(pnlPct float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if pnlPct < 0 {
		c.consecutiveLosses++
	} else {
		c.consecutiveLosses = 0
	}
}

// ResetDay clears day-scoped state at the session boundary. Per-symbol
// trade timestamps survive the rollover so cooldowns spanning midnight
// still apply.
func (c *Context) ResetDay() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.dayPnLPct = 0
	c.dayStarted = c.nowFn()
}

// LastTradeAt returns the last recorded trade time for symbol.
func (c *Context) LastTradeAt(symbol string) (time.Time, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	t, ok := c.lastTradeBySymbol[symbol]
	return t, ok
}
