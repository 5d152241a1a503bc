package snapshot

import (
	"strings"
	"time"
)

// SignalConfig holds the thresholds behind the six entry predicates.
type SignalConfig struct {
	VolumeSurgeRatio       float64 `mapstructure:"volume_surge_ratio"`
	RSIHealthyMin          float64 `mapstructure:"rsi_healthy_min"`
	RSIHealthyMax          float64 `mapstructure:"rsi_healthy_max"`
	BreakoutResistanceFrac float64 `mapstructure:"breakout_resistance_frac"`
}

// DefaultSignalConfig holds the production thresholds: 1.2x volume surge,
// RSI 50-70 healthy band, breakout at 99% of resistance.
func DefaultSignalConfig() SignalConfig {
	return SignalConfig{
		VolumeSurgeRatio:       1.2,
		RSIHealthyMin:          50,
		RSIHealthyMax:          70,
		BreakoutResistanceFrac: 0.99,
	}
}

// Builder assembles snapshots. It is stateless apart from configuration and
// may be shared across concurrent evaluations.
type Builder struct {
	session SessionConfig
	signals SignalConfig
	nowFn   func() time.Time
}

func NewBuilder(session SessionConfig, signals SignalConfig) *Builder {
	return &Builder{
		session: session,
		signals: signals,
		nowFn:   time.Now,
	}
}

// WithClock overrides the capture clock. Tests use this to pin the session
// phase and cooldown arithmetic.
func (b *Builder) WithClock(nowFn func() time.Time) *Builder {
	if nowFn != nil {
		b.nowFn = nowFn
	}
	return b
}

// Build assembles an immutable snapshot from collaborator outputs. It never
// fails: a non-positive price yields a constructed snapshot flagged invalid,
// and absent indicators are enumerated in MissingFields instead of being
// silently defaulted to zero.
func (b *Builder) Build(symbol string, md MarketData, acct AccountInfo, positions []Position, risk RiskFacts) Snapshot {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	nowUTC := b.nowFn().UTC()
	loc, err := b.session.Location()
	if err != nil {
		loc = time.UTC
	}
	nowLocal := nowUTC.In(loc)

	price := md.CurrentPrice

	s := Snapshot{
		Symbol:         symbol,
		CapturedUTC:    nowUTC,
		CapturedLoc:    nowLocal,
		Price:          price,
		Open:           orPrice(md.Open, price),
		High:           orPrice(md.High, price),
		Low:            orPrice(md.Low, price),
		Close:          orPrice(md.Close, price),
		Volume:         md.Volume,
		MA5:            md.MA5,
		MA20:           md.MA20,
		MA60:           md.MA60,
		MACD:           md.MACD,
		MACDSignal:     md.MACDSignal,
		MACDHist:       md.MACDHist,
		RSI:            md.RSI,
		BBUpper:        md.BBUpper,
		BBMiddle:       md.BBMiddle,
		BBLower:        md.BBLower,
		VolumeRatio:    md.VolumeRatio,
		Spread:         md.Spread,
		LiquidityScore: md.LiquidityScore,
		Session:        b.session.PhaseAt(nowLocal),
	}

	s.MACDCross = deriveCross(md.MACD, md.MACDSignal, md.MACDHist)
	s.BBPosition = deriveBandPosition(price, md.BBUpper, md.BBMiddle, md.BBLower)

	if md.VolumeRatio != nil && *md.VolumeRatio > 0 && md.Volume > 0 {
		avg := float64(md.Volume) / *md.VolumeRatio
		s.AvgVolume5 = &avg
	}

	// Nearest-extreme approximation of support and resistance.
	if s.Low > 0 {
		sup := s.Low * 0.98
		s.Support = &sup
	}
	if s.High > 0 {
		res := s.High * 1.02
		s.Resistance = &res
	}

	s.AccountEquity = acct.Equity
	s.AccountBuyingPower = acct.BuyingPower
	if s.AccountBuyingPower == 0 {
		s.AccountBuyingPower = acct.Cash
	}

	for _, pos := range positions {
		if !strings.EqualFold(pos.Symbol, symbol) {
			continue
		}
		s.HasPosition = true
		s.PositionCost = pos.AvgEntryPrice
		s.PositionQuantity = pos.Quantity
		current := pos.CurrentPrice
		if current <= 0 {
			current = price
		}
		if pos.AvgEntryPrice > 0 {
			s.PositionPnLPct = (current - pos.AvgEntryPrice) / pos.AvgEntryPrice * 100
		}
	}

	s.DayPnLPct = risk.DayPnLPct
	s.ConsecutiveLosses = risk.ConsecutiveLosses
	if len(risk.LastTradeBySymbol) > 0 {
		frozen := make(map[string]time.Time, len(risk.LastTradeBySymbol))
		for sym, t := range risk.LastTradeBySymbol {
			frozen[strings.ToUpper(sym)] = t
		}
		s.LastTradeBySymbol = frozen
	}

	b.derivePredicates(&s)
	b.deriveIntegrity(&s)
	return s
}

func (b *Builder) derivePredicates(s *Snapshot) {
	price := s.Price

	if price > 0 && s.MA5 != nil && s.MA20 != nil && s.MA60 != nil {
		s.TrendOK = price > *s.MA5 && *s.MA5 > *s.MA20 && *s.MA20 > *s.MA60
	}

	if s.VolumeRatio != nil {
		s.VolumeOK = *s.VolumeRatio > b.signals.VolumeSurgeRatio
	}

	// All four conditions, not merely a cross.
	if s.MACD != nil && s.MACDSignal != nil {
		s.MACDOK = *s.MACD > 0 && *s.MACD > *s.MACDSignal && s.MACDCross == CrossGolden
	}

	if s.RSI != nil {
		s.RSIOK = *s.RSI >= b.signals.RSIHealthyMin && *s.RSI <= b.signals.RSIHealthyMax
	}

	if s.Resistance != nil && price > 0 {
		s.BreakoutOK = price >= *s.Resistance*b.signals.BreakoutResistanceFrac
	}

	if s.BBPosition != "" && s.BBMiddle != nil && price > 0 {
		s.BBOK = (s.BBPosition == BandMiddle || s.BBPosition == BandUpper) && price >= *s.BBMiddle
	}

	count := 0
	for _, ok := range []bool{s.TrendOK, s.VolumeOK, s.MACDOK, s.RSIOK, s.BreakoutOK, s.BBOK} {
		if ok {
			count++
		}
	}
	s.BuySignalCount = count
}

func (b *Builder) deriveIntegrity(s *Snapshot) {
	s.HasValidPrice = s.Price > 0
	if !s.HasValidPrice {
		s.MissingFields = append(s.MissingFields, "price")
	}
	if s.MA5 == nil {
		s.MissingFields = append(s.MissingFields, "ma5")
	}
	if s.MA20 == nil {
		s.MissingFields = append(s.MissingFields, "ma20")
	}
	if s.MA60 == nil {
		s.MissingFields = append(s.MissingFields, "ma60")
	}
	if s.MACD == nil {
		s.MissingFields = append(s.MissingFields, "macd")
	}
	if s.RSI == nil {
		s.MissingFields = append(s.MissingFields, "rsi")
	}
	s.HasValidIndicators = len(s.MissingFields) == 0
}

func deriveCross(macd, signal, hist *float64) CrossState {
	if macd == nil || signal == nil || hist == nil {
		return CrossNone
	}
	switch {
	case *hist > 0 && *macd > *signal:
		return CrossGolden
	case *hist < 0 && *macd < *signal:
		return CrossDeath
	default:
		return CrossNone
	}
}

func deriveBandPosition(price float64, upper, middle, lower *float64) BandPosition {
	if upper == nil || middle == nil || lower == nil || price <= 0 {
		return ""
	}
	switch {
	case price >= *upper*0.98:
		return BandUpper
	case price >= *middle:
		return BandMiddle
	default:
		return BandLower
	}
}

func orPrice(v, fallback float64) float64 {
	if v > 0 {
		return v
	}
	return fallback
}
