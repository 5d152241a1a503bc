package broker

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedPrice(p float64) PriceFunc {
	return func(string) (float64, error) { return p, nil }
}

func TestPaperBuyCreatesPosition(t *testing.T) {
	b := NewPaperBroker(10000, fixedPrice(100))

	order, err := b.SubmitBuy(context.Background(), "aapl", 2000)
	require.NoError(t, err)
	assert.True(t, order.Filled())
	assert.Equal(t, "AAPL", order.Symbol)
	assert.Equal(t, 20.0, order.FilledQty)

	positions, err := b.GetPositions(context.Background())
	require.NoError(t, err)
	require.Len(t, positions, 1)
	assert.Equal(t, 100.0, positions[0].AvgEntryPrice)

	acct, err := b.GetAccount(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 8000.0, acct.Cash)
	assert.Equal(t, 10000.0, acct.Equity)
}

func TestPaperBuyRejectsOverspend(t *testing.T) {
	b := NewPaperBroker(1000, fixedPrice(100))
	_, err := b.SubmitBuy(context.Background(), "AAPL", 5000)
	assert.Error(t, err)
}

func TestPaperSellFullPosition(t *testing.T) {
	b := NewPaperBroker(10000, fixedPrice(100))
	_, err := b.SubmitBuy(context.Background(), "AAPL", 2000)
	require.NoError(t, err)

	order, err := b.SubmitSell(context.Background(), "AAPL", 0)
	require.NoError(t, err)
	assert.Equal(t, 20.0, order.FilledQty)

	positions, err := b.GetPositions(context.Background())
	require.NoError(t, err)
	assert.Empty(t, positions)

	acct, err := b.GetAccount(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 10000.0, acct.Cash)
}

func TestPaperSellWithoutPosition(t *testing.T) {
	b := NewPaperBroker(10000, fixedPrice(100))
	_, err := b.SubmitSell(context.Background(), "AAPL", 5)
	assert.Error(t, err)
}

func TestPaperAveragesEntryPrice(t *testing.T) {
	price := 100.0
	b := NewPaperBroker(100000, func(string) (float64, error) { return price, nil })

	_, err := b.SubmitBuy(context.Background(), "AAPL", 1000)
	require.NoError(t, err)
	price = 200
	_, err = b.SubmitBuy(context.Background(), "AAPL", 1000)
	require.NoError(t, err)

	positions, err := b.GetPositions(context.Background())
	require.NoError(t, err)
	require.Len(t, positions, 1)
	// 10 shares @100 plus 5 shares @200 averages 133.33.
	assert.InDelta(t, 133.33, positions[0].AvgEntryPrice, 0.01)
}

func TestPaperGetOrder(t *testing.T) {
	b := NewPaperBroker(10000, fixedPrice(100))
	order, err := b.SubmitBuy(context.Background(), "AAPL", 500)
	require.NoError(t, err)

	got, err := b.GetOrder(context.Background(), order.ID)
	require.NoError(t, err)
	assert.Equal(t, order.ID, got.ID)

	_, err = b.GetOrder(context.Background(), "missing")
	assert.Error(t, err)
}

func TestPaperListOrders(t *testing.T) {
	now := time.Date(2025, 6, 2, 14, 30, 0, 0, time.UTC)
	b := NewPaperBroker(10000, fixedPrice(100)).WithClock(func() time.Time {
		now = now.Add(time.Minute)
		return now
	})

	first, err := b.SubmitBuy(context.Background(), "AAPL", 500)
	require.NoError(t, err)
	second, err := b.SubmitBuy(context.Background(), "MSFT", 500)
	require.NoError(t, err)

	orders, err := b.ListOrders(context.Background())
	require.NoError(t, err)
	require.Len(t, orders, 2)
	assert.Equal(t, second.ID, orders[0].ID)
	assert.Equal(t, first.ID, orders[1].ID)
}
