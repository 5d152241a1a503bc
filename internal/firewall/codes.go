package firewall

// ReasonCode is the machine-readable tag attached to every denial, override
// and modification. Audit statistics aggregate on these values, so they are
// part of the persisted contract and must stay stable.
type ReasonCode string

const (
	CodeAllowed                ReasonCode = "ALLOWED"
	CodeInvalidSession         ReasonCode = "INVALID_SESSION"
	CodeLowLiquidity           ReasonCode = "LOW_LIQUIDITY"
	CodeHighSpread             ReasonCode = "HIGH_SPREAD"
	CodeInsufficientBuySignals ReasonCode = "INSUFFICIENT_BUY_SIGNALS"
	CodePositionSizeExceeded   ReasonCode = "POSITION_SIZE_EXCEEDED"
	CodeParamsClamped          ReasonCode = "PARAMS_CLAMPED"
	CodeDayCircuitBreaker      ReasonCode = "DAY_CIRCUIT_BREAKER"
	CodeCooldownActive         ReasonCode = "COOLDOWN_ACTIVE"
	CodeMinTradeInterval       ReasonCode = "MIN_TRADE_INTERVAL"
	CodeMissingData            ReasonCode = "MISSING_DATA"
	CodeLowConfidence          ReasonCode = "LOW_CONFIDENCE"
	CodeSignalConflict         ReasonCode = "SIGNAL_CONFLICT"
	CodeHardStopLoss           ReasonCode = "HARD_STOP_LOSS"

	// CodeStateMachineBlock is appended by the evaluation pipeline, not by
	// Check itself, when the per-symbol state machine refuses the action.
	CodeStateMachineBlock ReasonCode = "STATE_MACHINE_BLOCK"
)
