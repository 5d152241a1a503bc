// Package broker abstracts order execution and account state behind a
// small interface so the trading loop runs identically against Alpaca and
// the in-process paper simulator.
package broker

import (
	"context"
	"time"

	"bastion/internal/snapshot"
)

// Order is the broker-neutral view of a submitted order.
type Order struct {
	ID          string
	Symbol      string
	Side        string
	Quantity    float64
	Notional    float64
	Status      string
	FilledQty   float64
	FilledPrice float64
	SubmittedAt time.Time
	FilledAt    time.Time
}

// Filled reports whether the order completed.
func (o Order) Filled() bool { return o.Status == "filled" }

// Broker is the execution surface the trader depends on.
type Broker interface {
	GetAccount(ctx context.Context) (snapshot.AccountInfo, error)
	GetPositions(ctx context.Context) ([]snapshot.Position, error)
	// SubmitBuy places a notional market buy.
	SubmitBuy(ctx context.Context, symbol string, notional float64) (Order, error)
	// SubmitSell places a market sell for qty shares; qty <= 0 closes the
	// full position.
	SubmitSell(ctx context.Context, symbol string, qty float64) (Order, error)
	GetOrder(ctx context.Context, orderID string) (Order, error)
	// ListOrders returns open orders, newest first.
	ListOrders(ctx context.Context) ([]Order, error)
	CancelOrder(ctx context.Context, orderID string) error
}
