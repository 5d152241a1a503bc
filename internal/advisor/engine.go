package advisor

import (
	"context"
	"fmt"

	"bastion/internal/logger"
	"bastion/internal/snapshot"
)

// Engine is the default Advisor: renders the prompt, calls the model,
// parses the reply. Transport failures and unparseable replies both
// degrade to a conservative fallback so the pipeline keeps its
// one-verdict-per-cycle rhythm.
type Engine struct {
	client ChatClient
}

func NewEngine(client ChatClient) *Engine {
	return &Engine{client: client}
}

func (e *Engine) Propose(ctx context.Context, s snapshot.Snapshot) (Result, error) {
	raw, err := e.client.CallWithMessages(ctx, SystemPrompt(), BuildUserPrompt(s))
	if err != nil {
		logger.Warnf("advisor: model call for %s failed, substituting HOLD: %v", s.Symbol, err)
		p := FallbackProposal(s.Symbol)
		p.Rationale = fmt.Sprintf("model call failed: %v", err)
		return Result{
			Proposal: p,
			Fallback: true,
			ParseErr: err,
		}, nil
	}

	p, perr := ParseProposal(s.Symbol, raw)
	if perr != nil {
		logger.Warnf("advisor: unusable output for %s, substituting HOLD: %v", s.Symbol, perr)
		fb := FallbackProposal(s.Symbol)
		fb.Rationale = fmt.Sprintf("output unparseable: %v", perr)
		return Result{
			Proposal:  fb,
			RawOutput: raw,
			Fallback:  true,
			ParseErr:  perr,
		}, nil
	}

	return Result{Proposal: p, RawOutput: raw}, nil
}
