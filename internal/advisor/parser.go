package advisor

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/tidwall/gjson"

	"bastion/internal/firewall"
	"bastion/internal/pkg/jsonutil"
)

// Defaults applied when the model omits optional params.
const (
	defaultPositionSizePct = 20.0
	defaultStopLossPct     = 5.0
	defaultTakeProfitPct   = 10.0
	defaultRiskLevel       = "medium"
)

const proposalSchemaJSON = `{
  "type": "object",
  "required": ["action", "confidence"],
  "properties": {
    "symbol": {"type": "string"},
    "action": {"type": "string", "enum": ["BUY", "SELL", "HOLD", "buy", "sell", "hold"]},
    "confidence": {"type": "number", "minimum": 0, "maximum": 100},
    "evidence": {"type": "object", "additionalProperties": {"type": "boolean"}},
    "params": {
      "type": "object",
      "properties": {
        "position_size_pct": {"type": "number", "minimum": 0},
        "stop_loss_pct": {"type": "number", "minimum": 0},
        "take_profit_pct": {"type": "number", "minimum": 0}
      }
    },
    "risk_level": {"type": "string"},
    "warnings": {"type": "array", "items": {"type": "string"}},
    "counter_evidence": {"type": "array", "items": {"type": "string"}},
    "rationale": {"type": "string"}
  }
}`

var proposalSchema = jsonschema.MustCompileString("proposal.json", proposalSchemaJSON)

// wireProposal mirrors the JSON contract; optional numerics are pointers so
// absent and zero are distinguishable.
type wireProposal struct {
	Symbol     string          `json:"symbol"`
	Action     string          `json:"action"`
	Confidence float64         `json:"confidence"`
	Evidence   map[string]bool `json:"evidence"`
	Params     *struct {
		PositionSizePct *float64 `json:"position_size_pct"`
		StopLossPct     *float64 `json:"stop_loss_pct"`
		TakeProfitPct   *float64 `json:"take_profit_pct"`
	} `json:"params"`
	RiskLevel       string   `json:"risk_level"`
	Warnings        []string `json:"warnings"`
	CounterEvidence []string `json:"counter_evidence"`
	Rationale       string   `json:"rationale"`
}

// ParseProposal extracts and validates the JSON object from a raw model
// reply. The returned proposal always carries symbol and defaulted params.
func ParseProposal(symbol, raw string) (firewall.Proposal, error) {
	block, ok := jsonutil.ExtractObject(raw)
	if !ok {
		return firewall.Proposal{}, fmt.Errorf("no JSON object in model output")
	}
	if !gjson.Valid(block) {
		return firewall.Proposal{}, fmt.Errorf("malformed JSON in model output")
	}

	var doc any
	if err := json.Unmarshal([]byte(block), &doc); err != nil {
		return firewall.Proposal{}, fmt.Errorf("decode proposal: %w", err)
	}
	if err := proposalSchema.Validate(doc); err != nil {
		return firewall.Proposal{}, fmt.Errorf("proposal schema: %w", err)
	}

	var w wireProposal
	if err := json.Unmarshal([]byte(block), &w); err != nil {
		return firewall.Proposal{}, fmt.Errorf("decode proposal: %w", err)
	}

	p := firewall.Proposal{
		Symbol:          symbol,
		Action:          strings.ToUpper(strings.TrimSpace(w.Action)),
		Confidence:      int(w.Confidence),
		Evidence:        w.Evidence,
		RiskLevel:       w.RiskLevel,
		Warnings:        w.Warnings,
		CounterEvidence: w.CounterEvidence,
		Rationale:       w.Rationale,
		Params: firewall.TradeParams{
			PositionSizePct: defaultPositionSizePct,
			StopLossPct:     defaultStopLossPct,
			TakeProfitPct:   defaultTakeProfitPct,
		},
	}
	if p.RiskLevel == "" {
		p.RiskLevel = defaultRiskLevel
	}
	if w.Params != nil {
		if w.Params.PositionSizePct != nil {
			p.Params.PositionSizePct = *w.Params.PositionSizePct
		}
		if w.Params.StopLossPct != nil {
			p.Params.StopLossPct = *w.Params.StopLossPct
		}
		if w.Params.TakeProfitPct != nil {
			p.Params.TakeProfitPct = *w.Params.TakeProfitPct
		}
	}
	return p, nil
}

// FallbackProposal is the conservative substitute used when model output is
// unusable: zero-confidence HOLD that the firewall will never allow through.
func FallbackProposal(symbol string) firewall.Proposal {
	return firewall.Proposal{
		Symbol:     symbol,
		Action:     firewall.ActionHold,
		Confidence: 0,
		RiskLevel:  "high",
		Warnings:   []string{"model output unparseable, defaulting to HOLD"},
		Params: firewall.TradeParams{
			PositionSizePct: 0,
			StopLossPct:     defaultStopLossPct,
			TakeProfitPct:   defaultTakeProfitPct,
		},
	}
}
