package snapshot

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
	"time"
)

// Phase is the trading-session phase derived from exchange-local time.
type Phase string

const (
	PhasePreMarket  Phase = "premarket"
	PhaseRegular    Phase = "regular"
	PhaseAfterHours Phase = "afterhours"
	PhaseClosed     Phase = "closed"
)

// CrossState describes the MACD line relative to its signal line.
type CrossState string

const (
	CrossGolden CrossState = "golden"
	CrossDeath  CrossState = "death"
	CrossNone   CrossState = "none"
)

// BandPosition locates the price inside the Bollinger channel.
type BandPosition string

const (
	BandUpper  BandPosition = "upper"
	BandMiddle BandPosition = "middle"
	BandLower  BandPosition = "lower"
)

// MarketData is the value object the market-data collaborator produces.
// Indicator fields are optional: a nil pointer means the upstream series was
// too short to compute the value, which is different from a value of zero.
type MarketData struct {
	Symbol       string
	CurrentPrice float64
	Open         float64
	High         float64
	Low          float64
	Close        float64
	Volume       int64

	MA5  *float64
	MA20 *float64
	MA60 *float64

	MACD       *float64
	MACDSignal *float64
	MACDHist   *float64

	RSI *float64

	BBUpper  *float64
	BBMiddle *float64
	BBLower  *float64

	VolumeRatio    *float64
	Spread         *float64
	LiquidityScore *float64
}

// AccountInfo carries the account facts frozen into a snapshot.
type AccountInfo struct {
	Equity      float64
	BuyingPower float64
	Cash        float64
}

// Position is one open broker position.
type Position struct {
	Symbol        string
	Quantity      float64
	AvgEntryPrice float64
	CurrentPrice  float64
}

// RiskFacts is the read-only view of the mutable risk context at capture time.
type RiskFacts struct {
	DayPnLPct         float64
	ConsecutiveLosses int
	LastTradeBySymbol map[string]time.Time
}

// Snapshot is an immutable point-in-time view of one symbol. It is built once
// per evaluation cycle; every derived field (session phase, predicates, the
// signal count) is computed at build time and never recomputed downstream, so
// the advisor and the firewall always reason about identical facts.
type Snapshot struct {
	Symbol       string
	CapturedUTC  time.Time
	CapturedLoc  time.Time
	Price        float64
	Open         float64
	High         float64
	Low          float64
	Close        float64
	Volume       int64

	MA5  *float64
	MA20 *float64
	MA60 *float64

	MACD       *float64
	MACDSignal *float64
	MACDHist   *float64
	MACDCross  CrossState

	RSI *float64

	BBUpper    *float64
	BBMiddle   *float64
	BBLower    *float64
	BBPosition BandPosition

	AvgVolume5  *float64
	VolumeRatio *float64

	Spread         *float64
	LiquidityScore *float64

	Session Phase

	Support    *float64
	Resistance *float64

	AccountEquity      float64
	AccountBuyingPower float64

	HasPosition      bool
	PositionCost     float64
	PositionQuantity float64
	PositionPnLPct   float64

	DayPnLPct         float64
	ConsecutiveLosses int
	LastTradeBySymbol map[string]time.Time

	TrendOK        bool
	VolumeOK       bool
	MACDOK         bool
	RSIOK          bool
	BreakoutOK     bool
	BBOK           bool
	BuySignalCount int

	HasValidPrice      bool
	HasValidIndicators bool
	MissingFields      []string
}

// fingerprintView is the canonical content hashed for audit cross-reference.
// Capture times are excluded so two evaluations of identical market conditions
// produce identical fingerprints.
type fingerprintView struct {
	Symbol         string             `json:"symbol"`
	Price          float64            `json:"price"`
	Open           float64            `json:"open"`
	High           float64            `json:"high"`
	Low            float64            `json:"low"`
	Close          float64            `json:"close"`
	Volume         int64              `json:"volume"`
	MA5            *float64           `json:"ma5"`
	MA20           *float64           `json:"ma20"`
	MA60           *float64           `json:"ma60"`
	MACD           *float64           `json:"macd"`
	MACDSignal     *float64           `json:"macd_signal"`
	MACDHist       *float64           `json:"macd_hist"`
	MACDCross      CrossState         `json:"macd_cross"`
	RSI            *float64           `json:"rsi"`
	BBUpper        *float64           `json:"bb_upper"`
	BBMiddle       *float64           `json:"bb_middle"`
	BBLower        *float64           `json:"bb_lower"`
	BBPosition     BandPosition       `json:"bb_position"`
	AvgVolume5     *float64           `json:"avg_volume_5"`
	VolumeRatio    *float64           `json:"volume_ratio"`
	Spread         *float64           `json:"spread"`
	Liquidity      *float64           `json:"liquidity_score"`
	Session        Phase              `json:"session"`
	Support        *float64           `json:"support"`
	Resistance     *float64           `json:"resistance"`
	Equity         float64            `json:"account_equity"`
	BuyingPower    float64            `json:"account_buying_power"`
	HasPosition    bool               `json:"has_position"`
	PositionCost   float64            `json:"position_cost"`
	PositionQty    float64            `json:"position_quantity"`
	PositionPnLPct float64            `json:"position_pnl_pct"`
	DayPnLPct      float64            `json:"day_pnl_pct"`
	Losses         int                `json:"consecutive_losses"`
	LastTrades     map[string]string  `json:"last_trade_time_by_symbol"`
	TrendOK        bool               `json:"trend_ok"`
	VolumeOK       bool               `json:"volume_ok"`
	MACDOK         bool               `json:"macd_ok"`
	RSIOK          bool               `json:"rsi_ok"`
	BreakoutOK     bool               `json:"breakout_ok"`
	BBOK           bool               `json:"bb_ok"`
	BuySignals     int                `json:"buy_signal_count"`
	ValidPrice     bool               `json:"has_valid_price"`
	ValidIndics    bool               `json:"has_valid_indicators"`
	Missing        []string           `json:"missing_fields"`
}

// Fingerprint returns a short stable content hash of the snapshot.
func (s Snapshot) Fingerprint() string {
	lastTrades := make(map[string]string, len(s.LastTradeBySymbol))
	for sym, t := range s.LastTradeBySymbol {
		lastTrades[sym] = t.UTC().Format(time.RFC3339Nano)
	}
	missing := append([]string(nil), s.MissingFields...)
	sort.Strings(missing)
	view := fingerprintView{
		Symbol:         s.Symbol,
		Price:          s.Price,
		Open:           s.Open,
		High:           s.High,
		Low:            s.Low,
		Close:          s.Close,
		Volume:         s.Volume,
		MA5:            s.MA5,
		MA20:           s.MA20,
		MA60:           s.MA60,
		MACD:           s.MACD,
		MACDSignal:     s.MACDSignal,
		MACDHist:       s.MACDHist,
		MACDCross:      s.MACDCross,
		RSI:            s.RSI,
		BBUpper:        s.BBUpper,
		BBMiddle:       s.BBMiddle,
		BBLower:        s.BBLower,
		BBPosition:     s.BBPosition,
		AvgVolume5:     s.AvgVolume5,
		VolumeRatio:    s.VolumeRatio,
		Spread:         s.Spread,
		Liquidity:      s.LiquidityScore,
		Session:        s.Session,
		Support:        s.Support,
		Resistance:     s.Resistance,
		Equity:         s.AccountEquity,
		BuyingPower:    s.AccountBuyingPower,
		HasPosition:    s.HasPosition,
		PositionCost:   s.PositionCost,
		PositionQty:    s.PositionQuantity,
		PositionPnLPct: s.PositionPnLPct,
		DayPnLPct:      s.DayPnLPct,
		Losses:         s.ConsecutiveLosses,
		LastTrades:     lastTrades,
		TrendOK:        s.TrendOK,
		VolumeOK:       s.VolumeOK,
		MACDOK:         s.MACDOK,
		RSIOK:          s.RSIOK,
		BreakoutOK:     s.BreakoutOK,
		BBOK:           s.BBOK,
		BuySignals:     s.BuySignalCount,
		ValidPrice:     s.HasValidPrice,
		ValidIndics:    s.HasValidIndicators,
		Missing:        missing,
	}
	b, err := json.Marshal(view)
	if err != nil {
		return ""
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])[:16]
}

// LastTradeAt returns the recorded last trade time for the snapshot's own
// symbol, if any.
func (s Snapshot) LastTradeAt() (time.Time, bool) {
	t, ok := s.LastTradeBySymbol[s.Symbol]
	return t, ok
}
