package advisor

import (
	"fmt"
	"strings"

	"bastion/internal/snapshot"
)

const systemPrompt = `You are a disciplined US equity trading analyst. You receive one market snapshot and must answer with a single JSON object, no prose outside the JSON.

Rules:
- Only recommend BUY when the evidence is strong and aligned.
- Always list at least two pieces of counter-evidence against your own call.
- Confidence is an integer 0-100 and must reflect genuine conviction.

Answer with exactly this JSON shape:
{
  "symbol": "TICKER",
  "action": "BUY" | "SELL" | "HOLD",
  "confidence": 0-100,
  "evidence": {"trend_ok": bool, "volume_ok": bool, "macd_ok": bool, "rsi_ok": bool, "breakout_ok": bool, "bb_ok": bool},
  "params": {"position_size_pct": number, "stop_loss_pct": number, "take_profit_pct": number},
  "risk_level": "low" | "medium" | "high",
  "warnings": ["..."],
  "counter_evidence": ["...", "..."],
  "rationale": "one short paragraph"
}`

// SystemPrompt returns the fixed system message for the current prompt
// generation.
func SystemPrompt() string { return systemPrompt }

// BuildUserPrompt renders one snapshot as the user message. Only derived
// facts go in; the model never sees raw account identifiers.
func BuildUserPrompt(s snapshot.Snapshot) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Symbol: %s\n", s.Symbol)
	fmt.Fprintf(&b, "Session: %s\n", s.Session)
	fmt.Fprintf(&b, "Price: %.2f (open %.2f, high %.2f, low %.2f)\n",
		s.Price, s.Open, s.High, s.Low)
	fmt.Fprintf(&b, "Volume: %d", s.Volume)
	if s.VolumeRatio != nil {
		fmt.Fprintf(&b, " (ratio %.2f)", *s.VolumeRatio)
	}
	b.WriteString("\n")

	b.WriteString("\nIndicators:\n")
	writeIndicator(&b, "MA5", s.MA5)
	writeIndicator(&b, "MA20", s.MA20)
	writeIndicator(&b, "MA60", s.MA60)
	writeIndicator(&b, "RSI", s.RSI)
	writeIndicator(&b, "MACD", s.MACD)
	writeIndicator(&b, "MACD signal", s.MACDSignal)
	writeIndicator(&b, "MACD hist", s.MACDHist)
	fmt.Fprintf(&b, "- MACD cross: %s\n", s.MACDCross)
	fmt.Fprintf(&b, "- Bollinger position: %s\n", s.BBPosition)
	if s.Support != nil && s.Resistance != nil {
		fmt.Fprintf(&b, "- Support ~%.2f, resistance ~%.2f\n", *s.Support, *s.Resistance)
	}

	b.WriteString("\nSignal summary:\n")
	fmt.Fprintf(&b, "- trend_ok=%t volume_ok=%t macd_ok=%t rsi_ok=%t breakout_ok=%t bb_ok=%t (buy signals: %d)\n",
		s.TrendOK, s.VolumeOK, s.MACDOK, s.RSIOK, s.BreakoutOK, s.BBOK, s.BuySignalCount)

	b.WriteString("\nAccount:\n")
	fmt.Fprintf(&b, "- Equity %.2f, buying power %.2f, day P&L %.2f%%\n",
		s.AccountEquity, s.AccountBuyingPower, s.DayPnLPct)
	if s.HasPosition {
		fmt.Fprintf(&b, "- Holding %.4f shares, avg entry %.2f, unrealized P&L %.2f%%\n",
			s.PositionQuantity, s.PositionCost, s.PositionPnLPct)
	} else {
		b.WriteString("- No open position in this symbol\n")
	}

	if len(s.MissingFields) > 0 {
		fmt.Fprintf(&b, "\nData caveat: missing indicators: %s\n", strings.Join(s.MissingFields, ", "))
	}

	b.WriteString("\nRespond with the JSON object only.")
	return b.String()
}

func writeIndicator(b *strings.Builder, name string, v *float64) {
	if v == nil {
		fmt.Fprintf(b, "- %s: n/a\n", name)
		return
	}
	fmt.Fprintf(b, "- %s: %.4f\n", name, *v)
}
