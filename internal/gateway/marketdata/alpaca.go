package marketdata

import (
	"context"
	"fmt"
	"strings"
	"time"

	md "github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"
	"github.com/markcheno/go-talib"

	"bastion/internal/snapshot"
)

// Bar counts and periods for the indicator set.
const (
	barLookbackDays = 120
	maShortPeriod   = 5
	maMidPeriod     = 20
	maLongPeriod    = 60
	rsiPeriod       = 14
	bbPeriod        = 20
	volumeAvgBars   = 5
)

// AlpacaConfig holds the market-data credentials.
type AlpacaConfig struct {
	APIKey    string `mapstructure:"api_key"`
	APISecret string `mapstructure:"api_secret"`
}

// AlpacaSource pulls daily bars plus the live quote from Alpaca and derives
// indicators with talib. Series too short for an indicator leave that field
// nil rather than zero.
type AlpacaSource struct {
	client *md.Client
	nowFn  func() time.Time
}

var _ Source = (*AlpacaSource)(nil)

func NewAlpacaSource(cfg AlpacaConfig) *AlpacaSource {
	return &AlpacaSource{
		client: md.NewClient(md.ClientOpts{
			APIKey:    cfg.APIKey,
			APISecret: cfg.APISecret,
		}),
		nowFn: time.Now,
	}
}

func (s *AlpacaSource) Fetch(ctx context.Context, symbol string) (snapshot.MarketData, error) {
	symbol = strings.ToUpper(symbol)
	now := s.nowFn()

	bars, err := s.client.GetBars(symbol, md.GetBarsRequest{
		TimeFrame: md.OneDay,
		Start:     now.AddDate(0, 0, -barLookbackDays),
		End:       now,
	})
	if err != nil {
		return snapshot.MarketData{}, fmt.Errorf("bars for %s: %w", symbol, err)
	}
	if len(bars) == 0 {
		return snapshot.MarketData{}, fmt.Errorf("no bars for %s", symbol)
	}

	data := fromBars(symbol, bars)

	// The live quote refines the last bar's close and yields the spread.
	quote, qerr := s.client.GetLatestQuote(symbol, md.GetLatestQuoteRequest{})
	if qerr == nil && quote != nil && quote.AskPrice > 0 && quote.BidPrice > 0 {
		mid := (quote.AskPrice + quote.BidPrice) / 2
		data.CurrentPrice = mid
		spreadPct := (quote.AskPrice - quote.BidPrice) / mid * 100
		data.Spread = &spreadPct
	}
	return data, nil
}

func (s *AlpacaSource) LatestPrice(ctx context.Context, symbol string) (float64, error) {
	quote, err := s.client.GetLatestQuote(strings.ToUpper(symbol), md.GetLatestQuoteRequest{})
	if err != nil {
		return 0, fmt.Errorf("quote for %s: %w", symbol, err)
	}
	if quote.AskPrice > 0 && quote.BidPrice > 0 {
		return (quote.AskPrice + quote.BidPrice) / 2, nil
	}
	if quote.AskPrice > 0 {
		return quote.AskPrice, nil
	}
	return 0, fmt.Errorf("no usable quote for %s", symbol)
}

// fromBars derives the full indicator set from a daily bar series.
func fromBars(symbol string, bars []md.Bar) snapshot.MarketData {
	closes := make([]float64, len(bars))
	volumes := make([]float64, len(bars))
	for i, b := range bars {
		closes[i] = b.Close
		volumes[i] = float64(b.Volume)
	}
	last := bars[len(bars)-1]

	data := snapshot.MarketData{
		Symbol:       symbol,
		CurrentPrice: last.Close,
		Open:         last.Open,
		High:         last.High,
		Low:          last.Low,
		Close:        last.Close,
		Volume:       int64(last.Volume),
	}

	data.MA5 = lastOf(smaIfEnough(closes, maShortPeriod))
	data.MA20 = lastOf(smaIfEnough(closes, maMidPeriod))
	data.MA60 = lastOf(smaIfEnough(closes, maLongPeriod))

	if len(closes) >= 34 { // slow EMA 26 plus signal 9 warmup
		macd, signal, hist := talib.Macd(closes, 12, 26, 9)
		data.MACD = lastOf(macd)
		data.MACDSignal = lastOf(signal)
		data.MACDHist = lastOf(hist)
	}

	if len(closes) > rsiPeriod {
		data.RSI = lastOf(talib.Rsi(closes, rsiPeriod))
	}

	if len(closes) >= bbPeriod {
		upper, middle, lower := talib.BBands(closes, bbPeriod, 2, 2, talib.SMA)
		data.BBUpper = lastOf(upper)
		data.BBMiddle = lastOf(middle)
		data.BBLower = lastOf(lower)
	}

	if len(volumes) > volumeAvgBars {
		avg := 0.0
		for _, v := range volumes[len(volumes)-volumeAvgBars-1 : len(volumes)-1] {
			avg += v
		}
		avg /= volumeAvgBars
		if avg > 0 {
			ratio := float64(last.Volume) / avg
			data.VolumeRatio = &ratio
		}
	}
	return data
}

func smaIfEnough(closes []float64, period int) []float64 {
	if len(closes) < period {
		return nil
	}
	return talib.Sma(closes, period)
}

func lastOf(series []float64) *float64 {
	if len(series) == 0 {
		return nil
	}
	v := series[len(series)-1]
	return &v
}
