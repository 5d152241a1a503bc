package advisor

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bastion/internal/firewall"
	"bastion/internal/snapshot"
)

type stubChatClient struct {
	reply string
	err   error
}

func (c *stubChatClient) CallWithMessages(ctx context.Context, system, user string) (string, error) {
	return c.reply, c.err
}

func TestEngineParsesWellFormedReply(t *testing.T) {
	e := NewEngine(&stubChatClient{reply: `{"action":"BUY","confidence":75}`})

	res, err := e.Propose(context.Background(), snapshot.Snapshot{Symbol: "AAPL"})
	require.NoError(t, err)

	assert.False(t, res.Fallback)
	assert.Equal(t, firewall.ActionBuy, res.Proposal.Action)
	assert.Equal(t, 75, res.Proposal.Confidence)
}

func TestEngineDegradesOnTransportFailure(t *testing.T) {
	e := NewEngine(&stubChatClient{err: errors.New("connection refused")})

	res, err := e.Propose(context.Background(), snapshot.Snapshot{Symbol: "AAPL"})
	require.NoError(t, err)

	assert.True(t, res.Fallback)
	assert.Equal(t, firewall.ActionHold, res.Proposal.Action)
	assert.Equal(t, 0, res.Proposal.Confidence)
	assert.Contains(t, res.Proposal.Rationale, "connection refused")
}

func TestEngineDegradesOnUnparseableReply(t *testing.T) {
	e := NewEngine(&stubChatClient{reply: "the market looks uncertain today"})

	res, err := e.Propose(context.Background(), snapshot.Snapshot{Symbol: "AAPL"})
	require.NoError(t, err)

	assert.True(t, res.Fallback)
	assert.Equal(t, firewall.ActionHold, res.Proposal.Action)
	assert.NotEmpty(t, res.Proposal.Rationale)
	assert.Equal(t, "the market looks uncertain today", res.RawOutput)
}
