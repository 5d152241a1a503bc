// Package advisor obtains trade proposals from a chat-completion model and
// parses them into structured form. Everything the model returns is treated
// as semi-trusted input; validation beyond shape happens downstream.
package advisor

import (
	"context"

	"bastion/internal/firewall"
	"bastion/internal/snapshot"
)

// PromptVersion tags every audit entry with the prompt generation that
// produced it.
const PromptVersion = "v2"

// Result carries the parsed proposal together with the raw model output so
// the audit trail can store both.
type Result struct {
	Proposal  firewall.Proposal
	RawOutput string
	// Fallback is set when the model output could not be parsed and a
	// conservative HOLD was substituted.
	Fallback bool
	ParseErr error
}

// Advisor produces a trade proposal for one snapshot.
type Advisor interface {
	Propose(ctx context.Context, s snapshot.Snapshot) (Result, error)
}
