// Package audit persists an append-only record of every decision cycle:
// what the model saw, what it proposed, and what the firewall ruled. Entries
// are never updated; execution outcomes are appended as new entries that
// reference the original.
package audit

import (
	"time"

	"bastion/internal/firewall"
	"bastion/internal/snapshot"
)

// Entry kinds.
const (
	KindDecision = "decision"
	KindFill     = "fill"
)

// Entry is one immutable audit record.
type Entry struct {
	EntryID       string             `json:"entry_id"`
	RefEntryID    string             `json:"ref_entry_id,omitempty"`
	Kind          string             `json:"kind"`
	Timestamp     time.Time          `json:"timestamp"`
	Day           string             `json:"day"`
	Symbol        string             `json:"symbol"`
	SnapshotHash  string             `json:"snapshot_hash"`
	Snapshot      *snapshot.Snapshot `json:"snapshot,omitempty"`
	PromptVersion string             `json:"prompt_version,omitempty"`
	RawOutput     string             `json:"raw_output,omitempty"`
	Proposal      *firewall.Proposal `json:"proposal,omitempty"`
	Verdict       *firewall.Verdict  `json:"verdict,omitempty"`
	OrderRequest  *OrderRequest      `json:"order_request,omitempty"`
	OrderFill     *OrderFill         `json:"order_fill,omitempty"`
	Note          string             `json:"note,omitempty"`
}

// OrderRequest is what was sent to the broker.
type OrderRequest struct {
	Side     string  `json:"side"`
	Notional float64 `json:"notional,omitempty"`
	Quantity float64 `json:"quantity,omitempty"`
	OrderID  string  `json:"order_id,omitempty"`
}

// OrderFill is the broker's reported execution.
type OrderFill struct {
	OrderID  string    `json:"order_id"`
	Status   string    `json:"status"`
	Quantity float64   `json:"filled_qty"`
	AvgPrice float64   `json:"avg_price"`
	FilledAt time.Time `json:"filled_at"`
}

// Statistics aggregates a slice of the audit trail.
type Statistics struct {
	Total         int            `json:"total"`
	Allowed       int            `json:"allowed"`
	Rejected      int            `json:"rejected"`
	Buys          int            `json:"buys"`
	Sells         int            `json:"sells"`
	Holds         int            `json:"holds"`
	RejectReasons map[string]int `json:"reject_reasons"`
	AvgConfidence float64        `json:"avg_confidence"`
}

// Query filters audit reads. Zero values mean no constraint.
type Query struct {
	Symbol string
	Day    string
	Kind   string
	Since  time.Time
	Until  time.Time
	Limit  int
}
