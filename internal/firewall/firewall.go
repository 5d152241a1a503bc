package firewall

import (
	"fmt"
	"strings"
	"time"

	"bastion/internal/snapshot"
)

// Trade actions as they appear in proposals and verdicts.
const (
	ActionBuy  = "BUY"
	ActionSell = "SELL"
	ActionHold = "HOLD"
)

// TradeParams are the numeric knobs of a proposal, all in percent.
type TradeParams struct {
	PositionSizePct float64 `json:"position_size_pct"`
	StopLossPct     float64 `json:"stop_loss_pct"`
	TakeProfitPct   float64 `json:"take_profit_pct"`
}

// Proposal is the semi-trusted advisory output fed into Check.
type Proposal struct {
	Symbol          string          `json:"symbol"`
	Action          string          `json:"action"`
	Confidence      int             `json:"confidence"`
	Evidence        map[string]bool `json:"evidence,omitempty"`
	Params          TradeParams     `json:"params"`
	RiskLevel       string          `json:"risk_level,omitempty"`
	Warnings        []string        `json:"warnings,omitempty"`
	CounterEvidence []string        `json:"counter_evidence,omitempty"`
	Rationale       string          `json:"rationale,omitempty"`
}

// Verdict is the full outcome of one firewall pass.
type Verdict struct {
	Allowed              bool         `json:"allowed"`
	FinalAction          string       `json:"final_action"`
	FinalParams          TradeParams  `json:"final_params"`
	RejectReasons        []string     `json:"reject_reasons"`
	ReasonCodes          []ReasonCode `json:"reason_codes"`
	NormalizedConfidence int          `json:"normalized_confidence"`
	Modifications        []string     `json:"modifications"`
}

// HasCode reports whether the verdict carries the given reason code.
func (v Verdict) HasCode(code ReasonCode) bool {
	for _, c := range v.ReasonCodes {
		if c == code {
			return true
		}
	}
	return false
}

// Config collects every firewall threshold in one typed place.
type Config struct {
	EnableExtendedHours        bool    `mapstructure:"enable_extended_hours"`
	MaxSpreadPct               float64 `mapstructure:"max_spread_pct"`
	MinLiquidityScore          float64 `mapstructure:"min_liquidity_score"`
	MinBuySignals              int     `mapstructure:"min_buy_signals"`
	MaxPositionSizePct         float64 `mapstructure:"max_position_size_pct"`
	MaxPositionSizePctExtended float64 `mapstructure:"max_position_size_pct_extended"`
	MinBuyConfidence           int     `mapstructure:"min_buy_confidence"`
	StopLossMinPct             float64 `mapstructure:"stop_loss_min_pct"`
	StopLossMaxPct             float64 `mapstructure:"stop_loss_max_pct"`
	TakeProfitMinPct           float64 `mapstructure:"take_profit_min_pct"`
	TakeProfitMaxPct           float64 `mapstructure:"take_profit_max_pct"`
	DayCircuitBreakerPct       float64 `mapstructure:"day_circuit_breaker_pct"`
	CooldownMinutes            int     `mapstructure:"cooldown_minutes"`
	MinTradeIntervalMinutes    int     `mapstructure:"min_trade_interval_minutes"`
	HardStopLossPct            float64 `mapstructure:"hard_stop_loss_pct"`
}

// DefaultConfig is the single place the production thresholds are declared.
func DefaultConfig() Config {
	return Config{
		EnableExtendedHours:        false,
		MaxSpreadPct:               0.5,
		MinLiquidityScore:          50,
		MinBuySignals:              3,
		MaxPositionSizePct:         40,
		MaxPositionSizePctExtended: 20,
		MinBuyConfidence:           65,
		StopLossMinPct:             3,
		StopLossMaxPct:             5,
		TakeProfitMinPct:           5,
		TakeProfitMaxPct:           15,
		DayCircuitBreakerPct:       -2,
		CooldownMinutes:            30,
		MinTradeIntervalMinutes:    5,
		HardStopLossPct:            -5,
	}
}

// Firewall validates proposals against a snapshot. Check is pure with respect
// to its inputs; the only ambient dependency is the clock, which is
// injectable so cooldown arithmetic is testable.
type Firewall struct {
	cfg   Config
	nowFn func() time.Time
}

func New(cfg Config) *Firewall {
	return &Firewall{cfg: cfg, nowFn: time.Now}
}

// WithClock overrides the cooldown clock.
func (f *Firewall) WithClock(nowFn func() time.Time) *Firewall {
	if nowFn != nil {
		f.nowFn = nowFn
	}
	return f
}

// Config returns the active threshold set.
func (f *Firewall) Config() Config { return f.cfg }

// SetConfig swaps the threshold set. Callers are responsible for not racing
// this against in-flight Check calls (the trader serializes via its reload
// path).
func (f *Firewall) SetConfig(cfg Config) { f.cfg = cfg }

// Check runs the full ordered rule chain and never fails: every outcome is a
// Verdict. The ordering is a safety contract - non-negotiable checks (price
// validity, hard stop) run before negotiable ones (clamps) before contextual
// ones (cooldowns) - and must not be rearranged.
func (f *Firewall) Check(p Proposal, s snapshot.Snapshot, risk snapshot.RiskFacts) Verdict {
	var (
		rejectReasons []string
		reasonCodes   []ReasonCode
		modifications []string
	)
	finalAction := normalizeAction(p.Action)
	finalParams := p.Params
	confidence := clampConfidence(p.Confidence)

	// 1. Price integrity. Nothing else matters on garbage data.
	if !s.HasValidPrice {
		return Verdict{
			Allowed:              false,
			FinalAction:          ActionHold,
			RejectReasons:        []string{"invalid price data"},
			ReasonCodes:          []ReasonCode{CodeMissingData},
			NormalizedConfidence: 0,
		}
	}

	// 2. Data completeness. A buy on partial indicators degrades to HOLD
	// but the remaining checks still run and may add reasons.
	if len(s.MissingFields) > 0 && finalAction == ActionBuy {
		rejectReasons = append(rejectReasons,
			fmt.Sprintf("critical indicators missing: %s", strings.Join(s.MissingFields, ", ")))
		reasonCodes = append(reasonCodes, CodeMissingData)
		finalAction = ActionHold
		confidence = penalize(confidence, 20)
	}

	// 3. Hard stop loss. Overrides everything, including an advisory HOLD.
	if s.HasPosition && s.PositionPnLPct <= f.cfg.HardStopLossPct {
		return Verdict{
			Allowed:     true,
			FinalAction: ActionSell,
			FinalParams: TradeParams{
				PositionSizePct: 100,
				StopLossPct:     f.cfg.HardStopLossPct,
				TakeProfitPct:   0,
			},
			ReasonCodes:          []ReasonCode{CodeHardStopLoss},
			NormalizedConfidence: 100,
			Modifications: []string{fmt.Sprintf(
				"hard stop loss triggered (%.2f%% <= %.2f%%), forced full liquidation",
				s.PositionPnLPct, f.cfg.HardStopLossPct)},
		}
	}

	// 4. Session gating.
	switch {
	case s.Session == snapshot.PhaseClosed:
		rejectReasons = append(rejectReasons, "market is closed")
		reasonCodes = append(reasonCodes, CodeInvalidSession)
		finalAction = ActionHold
	case s.Session != snapshot.PhaseRegular:
		if !f.cfg.EnableExtendedHours {
			rejectReasons = append(rejectReasons,
				fmt.Sprintf("non-regular session (%s) and extended hours disabled", s.Session))
			reasonCodes = append(reasonCodes, CodeInvalidSession)
			finalAction = ActionHold
		} else if p.Action == ActionBuy {
			if finalParams.PositionSizePct > f.cfg.MaxPositionSizePctExtended {
				finalParams.PositionSizePct = f.cfg.MaxPositionSizePctExtended
				modifications = append(modifications, fmt.Sprintf(
					"extended hours: position size reduced to %.0f%%", f.cfg.MaxPositionSizePctExtended))
			}
			confidence = penalize(confidence, 10)
		}
	}

	// 5. Liquidity. Blocks entries only; exits must stay unobstructed.
	if s.Spread != nil && *s.Spread > f.cfg.MaxSpreadPct {
		rejectReasons = append(rejectReasons,
			fmt.Sprintf("spread too wide: %.2f%% > %.2f%%", *s.Spread, f.cfg.MaxSpreadPct))
		reasonCodes = append(reasonCodes, CodeHighSpread)
		if p.Action == ActionBuy {
			finalAction = ActionHold
		}
	}
	if s.LiquidityScore != nil && *s.LiquidityScore < f.cfg.MinLiquidityScore {
		rejectReasons = append(rejectReasons,
			fmt.Sprintf("insufficient liquidity: %.1f < %.1f", *s.LiquidityScore, f.cfg.MinLiquidityScore))
		reasonCodes = append(reasonCodes, CodeLowLiquidity)
		if p.Action == ActionBuy {
			finalAction = ActionHold
		}
	}

	// 6. Entry-signal sufficiency, buys only.
	if p.Action == ActionBuy {
		if s.BuySignalCount < f.cfg.MinBuySignals {
			rejectReasons = append(rejectReasons,
				fmt.Sprintf("insufficient buy signals: %d < %d", s.BuySignalCount, f.cfg.MinBuySignals))
			reasonCodes = append(reasonCodes, CodeInsufficientBuySignals)
			finalAction = ActionHold
			confidence = penalize(confidence, 30)
		}
		if p.Confidence < f.cfg.MinBuyConfidence {
			rejectReasons = append(rejectReasons,
				fmt.Sprintf("insufficient confidence: %d < %d", p.Confidence, f.cfg.MinBuyConfidence))
			reasonCodes = append(reasonCodes, CodeLowConfidence)
			finalAction = ActionHold
		}
		if hasSignalConflict(s, p) {
			rejectReasons = append(rejectReasons, "signal conflict: trend up but momentum and volume disagree")
			reasonCodes = append(reasonCodes, CodeSignalConflict)
			finalAction = ActionHold
			confidence = penalize(confidence, 20)
		}
		// An advisor that lists no risks is less trustworthy, not blocked.
		if len(p.CounterEvidence) < 2 {
			modifications = append(modifications, "insufficient counter-evidence provided, confidence reduced")
			confidence = penalize(confidence, 10)
		}
	}

	// 7. Position-size clamp, non-fatal.
	if p.Action == ActionBuy {
		maxSize := f.cfg.MaxPositionSizePct
		if s.Session != snapshot.PhaseRegular {
			maxSize = f.cfg.MaxPositionSizePctExtended
		}
		if finalParams.PositionSizePct > maxSize {
			finalParams.PositionSizePct = maxSize
			modifications = append(modifications, fmt.Sprintf("position size clamped to %.0f%%", maxSize))
			reasonCodes = append(reasonCodes, CodeParamsClamped)
		}
	}

	// 8. Stop-loss / take-profit band clamp. Out-of-band values are
	// corrected, recorded, and never by themselves a denial.
	if clamped, from, to := clampBand(&finalParams.StopLossPct, f.cfg.StopLossMinPct, f.cfg.StopLossMaxPct); clamped {
		modifications = append(modifications, fmt.Sprintf("stop loss clamped from %.2f%% to %.2f%%", from, to))
		reasonCodes = append(reasonCodes, CodeParamsClamped)
	}
	if clamped, from, to := clampBand(&finalParams.TakeProfitPct, f.cfg.TakeProfitMinPct, f.cfg.TakeProfitMaxPct); clamped {
		modifications = append(modifications, fmt.Sprintf("take profit clamped from %.2f%% to %.2f%%", from, to))
		reasonCodes = append(reasonCodes, CodeParamsClamped)
	}

	// 9. Daily circuit breaker, buys only.
	if p.Action == ActionBuy && s.DayPnLPct <= f.cfg.DayCircuitBreakerPct {
		rejectReasons = append(rejectReasons,
			fmt.Sprintf("daily circuit breaker: %.2f%% <= %.2f%%", s.DayPnLPct, f.cfg.DayCircuitBreakerPct))
		reasonCodes = append(reasonCodes, CodeDayCircuitBreaker)
		finalAction = ActionHold
	}

	// 10. Cooldown and minimum trade interval.
	if lastTrade, ok := lastTradeFor(s, risk); ok {
		sinceLast := f.nowFn().Sub(lastTrade)
		cooldown := time.Duration(f.cfg.CooldownMinutes) * time.Minute
		if p.Action == ActionBuy && sinceLast < cooldown {
			rejectReasons = append(rejectReasons,
				fmt.Sprintf("cooldown active: %d min < %d min", int(sinceLast.Minutes()), f.cfg.CooldownMinutes))
			reasonCodes = append(reasonCodes, CodeCooldownActive)
			finalAction = ActionHold
		}
		minInterval := time.Duration(f.cfg.MinTradeIntervalMinutes) * time.Minute
		if sinceLast < minInterval {
			rejectReasons = append(rejectReasons,
				fmt.Sprintf("trade interval too short: %d min < %d min", int(sinceLast.Minutes()), f.cfg.MinTradeIntervalMinutes))
			reasonCodes = append(reasonCodes, CodeMinTradeInterval)
			// A SELL keeps its action here, but the recorded reason still
			// fails the final resolution, so the verdict is denied either way.
			if p.Action != ActionSell {
				finalAction = ActionHold
			}
		}
	}

	// 11. Final resolution.
	allowed := (finalAction == ActionBuy || finalAction == ActionSell) && len(rejectReasons) == 0
	if !allowed {
		finalAction = ActionHold
	}

	return Verdict{
		Allowed:              allowed,
		FinalAction:          finalAction,
		FinalParams:          finalParams,
		RejectReasons:        rejectReasons,
		ReasonCodes:          reasonCodes,
		NormalizedConfidence: confidence,
		Modifications:        modifications,
	}
}

// hasSignalConflict flags an internal contradiction: an aligned trend while
// both momentum and volume disagree, in the snapshot or in the advisor's own
// claimed evidence.
func hasSignalConflict(s snapshot.Snapshot, p Proposal) bool {
	if s.TrendOK && !s.MACDOK && !s.VolumeOK {
		return true
	}
	if p.Evidence["trend_ok"] && !p.Evidence["macd_ok"] && !p.Evidence["volume_ok"] {
		return true
	}
	return false
}

func lastTradeFor(s snapshot.Snapshot, risk snapshot.RiskFacts) (time.Time, bool) {
	if t, ok := risk.LastTradeBySymbol[s.Symbol]; ok {
		return t, true
	}
	if t, ok := s.LastTradeAt(); ok {
		return t, true
	}
	return time.Time{}, false
}

func clampBand(v *float64, min, max float64) (clamped bool, from, to float64) {
	if *v >= min && *v <= max {
		return false, *v, *v
	}
	from = *v
	switch {
	case *v < min:
		*v = min
	case *v > max:
		*v = max
	}
	return true, from, *v
}

func penalize(confidence, by int) int {
	confidence -= by
	if confidence < 0 {
		return 0
	}
	return confidence
}

func clampConfidence(v int) int {
	switch {
	case v < 0:
		return 0
	case v > 100:
		return 100
	default:
		return v
	}
}

func normalizeAction(action string) string {
	switch strings.ToUpper(strings.TrimSpace(action)) {
	case ActionBuy:
		return ActionBuy
	case ActionSell:
		return ActionSell
	default:
		return ActionHold
	}
}
