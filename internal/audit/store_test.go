package audit

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bastion/internal/firewall"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(filepath.Join(t.TempDir(), "audit.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func decisionEntry(symbol string, allowed bool, action string, confidence int, codes ...firewall.ReasonCode) Entry {
	v := firewall.Verdict{
		Allowed:              allowed,
		FinalAction:          action,
		ReasonCodes:          codes,
		NormalizedConfidence: confidence,
	}
	return Entry{
		Symbol:        symbol,
		SnapshotHash:  "abcdef0123456789",
		PromptVersion: "v2",
		RawOutput:     `{"action":"` + action + `"}`,
		Verdict:       &v,
	}
}

func TestAppendAssignsIDAndDay(t *testing.T) {
	s := newTestStore(t)

	id, err := s.Append(decisionEntry("aapl", true, "BUY", 80))
	require.NoError(t, err)
	assert.Contains(t, id, "AAPL_")

	entries, err := s.List(Query{Symbol: "AAPL"})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, id, entries[0].EntryID)
	assert.Equal(t, "AAPL", entries[0].Symbol)
	assert.Equal(t, time.Now().UTC().Format("2006-01-02"), entries[0].Day)
	assert.Equal(t, KindDecision, entries[0].Kind)
}

func TestRejectionsAreRecordedSameAsApprovals(t *testing.T) {
	s := newTestStore(t)

	_, err := s.Append(decisionEntry("AAPL", false, "HOLD", 40, firewall.CodeLowConfidence))
	require.NoError(t, err)

	entries, err := s.List(Query{Symbol: "AAPL"})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.False(t, entries[0].Verdict.Allowed)
	assert.Equal(t, firewall.CodeLowConfidence, entries[0].Verdict.ReasonCodes[0])
}

func TestFillReferencesDecision(t *testing.T) {
	s := newTestStore(t)

	decisionID, err := s.Append(decisionEntry("AAPL", true, "BUY", 80))
	require.NoError(t, err)

	fillID, err := s.AppendFill(decisionID, "AAPL", OrderFill{
		OrderID:  "ord-1",
		Status:   "filled",
		Quantity: 10,
		AvgPrice: 190.5,
		FilledAt: time.Now().UTC(),
	})
	require.NoError(t, err)
	assert.NotEqual(t, decisionID, fillID)

	fills, err := s.List(Query{Kind: KindFill})
	require.NoError(t, err)
	require.Len(t, fills, 1)
	assert.Equal(t, decisionID, fills[0].RefEntryID)
	assert.Equal(t, 190.5, fills[0].OrderFill.AvgPrice)
}

func TestListFilters(t *testing.T) {
	s := newTestStore(t)

	_, err := s.Append(decisionEntry("AAPL", true, "BUY", 80))
	require.NoError(t, err)
	_, err = s.Append(decisionEntry("MSFT", false, "HOLD", 30, firewall.CodeHighSpread))
	require.NoError(t, err)

	aapl, err := s.List(Query{Symbol: "AAPL"})
	require.NoError(t, err)
	assert.Len(t, aapl, 1)

	all, err := s.List(Query{})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	none, err := s.List(Query{Day: "1999-01-01"})
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestStatsAggregation(t *testing.T) {
	s := newTestStore(t)

	_, err := s.Append(decisionEntry("AAPL", true, "BUY", 80))
	require.NoError(t, err)
	_, err = s.Append(decisionEntry("AAPL", false, "HOLD", 40, firewall.CodeLowConfidence))
	require.NoError(t, err)
	_, err = s.Append(decisionEntry("AAPL", false, "HOLD", 20, firewall.CodeLowConfidence, firewall.CodeHighSpread))
	require.NoError(t, err)
	_, err = s.Append(decisionEntry("AAPL", true, "SELL", 90))
	require.NoError(t, err)

	stats, err := s.Stats(Query{Symbol: "AAPL"})
	require.NoError(t, err)

	assert.Equal(t, 4, stats.Total)
	assert.Equal(t, 2, stats.Allowed)
	assert.Equal(t, 2, stats.Rejected)
	assert.Equal(t, 1, stats.Buys)
	assert.Equal(t, 1, stats.Sells)
	assert.Equal(t, 2, stats.Holds)
	assert.Equal(t, 2, stats.RejectReasons[string(firewall.CodeLowConfidence)])
	assert.Equal(t, 1, stats.RejectReasons[string(firewall.CodeHighSpread)])
	assert.InDelta(t, 57.5, stats.AvgConfidence, 0.001)
}

func TestCorruptRowIsSkippedNotFatal(t *testing.T) {
	s := newTestStore(t)

	_, err := s.Append(decisionEntry("AAPL", true, "BUY", 80))
	require.NoError(t, err)
	_, err = s.Append(decisionEntry("AAPL", false, "HOLD", 40, firewall.CodeLowConfidence))
	require.NoError(t, err)

	// A row mangled outside the writer path must not poison reads.
	now := time.Now().UTC()
	_, err = s.db.Exec(`INSERT INTO audit_entries
		(entry_id, kind, ts, day, symbol, verdict_json, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		"AAPL_corrupt", KindDecision, now.UnixMilli(), now.Format("2006-01-02"),
		"AAPL", `{"allowed": true, "final_action":`, now.UnixMilli())
	require.NoError(t, err)

	entries, err := s.List(Query{Symbol: "AAPL"})
	require.NoError(t, err)
	require.Len(t, entries, 2)
	for _, e := range entries {
		assert.NotEqual(t, "AAPL_corrupt", e.EntryID)
	}

	stats, err := s.Stats(Query{Symbol: "AAPL"})
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Total)
	assert.Equal(t, 1, stats.Allowed)
}

func TestStatsExcludesFills(t *testing.T) {
	s := newTestStore(t)

	id, err := s.Append(decisionEntry("AAPL", true, "BUY", 80))
	require.NoError(t, err)
	_, err = s.AppendFill(id, "AAPL", OrderFill{OrderID: "ord-1", Status: "filled"})
	require.NoError(t, err)

	stats, err := s.Stats(Query{})
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Total)
}
