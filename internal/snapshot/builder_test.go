package snapshot

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Monday 10:30 in New York, inside the regular session.
var testNow = time.Date(2025, 6, 2, 14, 30, 0, 0, time.UTC)

func fp(v float64) *float64 { return &v }

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func testBuilder() *Builder {
	return NewBuilder(DefaultSessionConfig(), DefaultSignalConfig()).WithClock(fixedClock(testNow))
}

func bullishMarketData() MarketData {
	return MarketData{
		Symbol:       "AAPL",
		CurrentPrice: 200,
		Open:         196,
		High:         195,
		Low:          192,
		Close:        199,
		Volume:       1_000_000,
		MA5:          fp(195),
		MA20:         fp(190),
		MA60:         fp(185),
		MACD:         fp(1.2),
		MACDSignal:   fp(0.8),
		MACDHist:     fp(0.4),
		RSI:          fp(60),
		BBUpper:      fp(205),
		BBMiddle:     fp(195),
		BBLower:      fp(185),
		VolumeRatio:  fp(1.5),
		Spread:       fp(0.05),
		LiquidityScore: fp(90),
	}
}

func testAccount() AccountInfo {
	return AccountInfo{Equity: 100000, BuyingPower: 50000, Cash: 40000}
}

func TestBuildBullishSnapshot(t *testing.T) {
	s := testBuilder().Build("aapl", bullishMarketData(), testAccount(), nil, RiskFacts{})

	assert.Equal(t, "AAPL", s.Symbol)
	assert.Equal(t, PhaseRegular, s.Session)
	assert.Equal(t, testNow, s.CapturedUTC)

	assert.True(t, s.TrendOK)
	assert.True(t, s.VolumeOK)
	assert.True(t, s.MACDOK)
	assert.True(t, s.RSIOK)
	assert.True(t, s.BreakoutOK)
	assert.True(t, s.BBOK)
	assert.Equal(t, 6, s.BuySignalCount)

	assert.Equal(t, CrossGolden, s.MACDCross)
	assert.Equal(t, BandMiddle, s.BBPosition)

	require.NotNil(t, s.AvgVolume5)
	assert.InDelta(t, 666666.7, *s.AvgVolume5, 0.1)
	require.NotNil(t, s.Support)
	assert.InDelta(t, 192*0.98, *s.Support, 1e-9)
	require.NotNil(t, s.Resistance)
	assert.InDelta(t, 195*1.02, *s.Resistance, 1e-9)

	assert.True(t, s.HasValidPrice)
	assert.True(t, s.HasValidIndicators)
	assert.Empty(t, s.MissingFields)
}

func TestBuildMissingIndicators(t *testing.T) {
	md := bullishMarketData()
	md.MA5 = nil
	md.MACD = nil
	md.RSI = nil

	s := testBuilder().Build("AAPL", md, testAccount(), nil, RiskFacts{})

	assert.True(t, s.HasValidPrice)
	assert.False(t, s.HasValidIndicators)
	assert.ElementsMatch(t, []string{"ma5", "macd", "rsi"}, s.MissingFields)

	// Predicates backed by absent series stay false rather than defaulting.
	assert.False(t, s.TrendOK)
	assert.False(t, s.MACDOK)
	assert.False(t, s.RSIOK)
}

func TestBuildInvalidPrice(t *testing.T) {
	md := bullishMarketData()
	md.CurrentPrice = 0

	s := testBuilder().Build("AAPL", md, testAccount(), nil, RiskFacts{})

	assert.False(t, s.HasValidPrice)
	assert.Contains(t, s.MissingFields, "price")
	assert.False(t, s.TrendOK)
	assert.False(t, s.BreakoutOK)
}

func TestBuildPositionFacts(t *testing.T) {
	positions := []Position{
		{Symbol: "msft", Quantity: 10, AvgEntryPrice: 300},
		{Symbol: "aapl", Quantity: 5, AvgEntryPrice: 180},
	}

	s := testBuilder().Build("AAPL", bullishMarketData(), testAccount(), positions, RiskFacts{})

	assert.True(t, s.HasPosition)
	assert.Equal(t, 5.0, s.PositionQuantity)
	assert.Equal(t, 180.0, s.PositionCost)
	assert.InDelta(t, 11.11, s.PositionPnLPct, 0.01)
}

func TestBuildBuyingPowerFallsBackToCash(t *testing.T) {
	s := testBuilder().Build("AAPL", bullishMarketData(), AccountInfo{Equity: 100000, Cash: 40000}, nil, RiskFacts{})
	assert.Equal(t, 40000.0, s.AccountBuyingPower)
}

func TestMACDRequiresAllConditions(t *testing.T) {
	t.Run("negative macd line", func(t *testing.T) {
		md := bullishMarketData()
		md.MACD = fp(-0.5)
		md.MACDSignal = fp(-0.9)
		md.MACDHist = fp(0.4)
		s := testBuilder().Build("AAPL", md, testAccount(), nil, RiskFacts{})
		assert.False(t, s.MACDOK)
	})
	t.Run("negative histogram", func(t *testing.T) {
		md := bullishMarketData()
		md.MACDHist = fp(-0.1)
		s := testBuilder().Build("AAPL", md, testAccount(), nil, RiskFacts{})
		assert.NotEqual(t, CrossGolden, s.MACDCross)
		assert.False(t, s.MACDOK)
	})
}

func TestBuildFreezesRiskFacts(t *testing.T) {
	last := time.Date(2025, 6, 2, 14, 0, 0, 0, time.UTC)
	risk := RiskFacts{
		DayPnLPct:         -1.2,
		ConsecutiveLosses: 2,
		LastTradeBySymbol: map[string]time.Time{"aapl": last},
	}

	s := testBuilder().Build("AAPL", bullishMarketData(), testAccount(), nil, risk)

	assert.Equal(t, -1.2, s.DayPnLPct)
	assert.Equal(t, 2, s.ConsecutiveLosses)
	got, ok := s.LastTradeAt()
	require.True(t, ok)
	assert.Equal(t, last, got)
}

func TestFingerprintIgnoresCaptureTime(t *testing.T) {
	b1 := NewBuilder(DefaultSessionConfig(), DefaultSignalConfig()).WithClock(fixedClock(testNow))
	b2 := NewBuilder(DefaultSessionConfig(), DefaultSignalConfig()).WithClock(fixedClock(testNow.Add(5 * time.Minute)))

	s1 := b1.Build("AAPL", bullishMarketData(), testAccount(), nil, RiskFacts{})
	s2 := b2.Build("AAPL", bullishMarketData(), testAccount(), nil, RiskFacts{})

	assert.NotEqual(t, s1.CapturedUTC, s2.CapturedUTC)
	assert.Equal(t, s1.Fingerprint(), s2.Fingerprint())
	assert.Len(t, s1.Fingerprint(), 16)
}

func TestFingerprintReflectsContent(t *testing.T) {
	s1 := testBuilder().Build("AAPL", bullishMarketData(), testAccount(), nil, RiskFacts{})
	md := bullishMarketData()
	md.CurrentPrice = 201
	s2 := testBuilder().Build("AAPL", md, testAccount(), nil, RiskFacts{})

	assert.NotEqual(t, s1.Fingerprint(), s2.Fingerprint())
}
