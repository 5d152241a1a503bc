package broker

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/alpaca"
	"github.com/shopspring/decimal"

	"bastion/internal/logger"
	"bastion/internal/snapshot"
)

// AlpacaConfig holds the trading-API credentials.
type AlpacaConfig struct {
	APIKey    string `mapstructure:"api_key"`
	APISecret string `mapstructure:"api_secret"`
	BaseURL   string `mapstructure:"base_url"`
}

// AlpacaBroker executes against the Alpaca trading API. Point BaseURL at
// the paper endpoint for dry runs.
type AlpacaBroker struct {
	client *alpaca.Client
}

var _ Broker = (*AlpacaBroker)(nil)

func NewAlpacaBroker(cfg AlpacaConfig) *AlpacaBroker {
	return &AlpacaBroker{
		client: alpaca.NewClient(alpaca.ClientOpts{
			APIKey:    cfg.APIKey,
			APISecret: cfg.APISecret,
			BaseURL:   cfg.BaseURL,
		}),
	}
}

func (b *AlpacaBroker) GetAccount(ctx context.Context) (snapshot.AccountInfo, error) {
	acct, err := b.client.GetAccount()
	if err != nil {
		return snapshot.AccountInfo{}, fmt.Errorf("alpaca account: %w", err)
	}
	return snapshot.AccountInfo{
		Equity:      acct.Equity.InexactFloat64(),
		BuyingPower: acct.BuyingPower.InexactFloat64(),
		Cash:        acct.Cash.InexactFloat64(),
	}, nil
}

func (b *AlpacaBroker) GetPositions(ctx context.Context) ([]snapshot.Position, error) {
	positions, err := b.client.GetPositions()
	if err != nil {
		return nil, fmt.Errorf("alpaca positions: %w", err)
	}
	out := make([]snapshot.Position, 0, len(positions))
	for _, p := range positions {
		pos := snapshot.Position{
			Symbol:        p.Symbol,
			Quantity:      p.Qty.InexactFloat64(),
			AvgEntryPrice: p.AvgEntryPrice.InexactFloat64(),
		}
		if p.CurrentPrice != nil {
			pos.CurrentPrice = p.CurrentPrice.InexactFloat64()
		}
		out = append(out, pos)
	}
	return out, nil
}

func (b *AlpacaBroker) SubmitBuy(ctx context.Context, symbol string, notional float64) (Order, error) {
	if notional <= 0 {
		return Order{}, fmt.Errorf("buy notional must be positive, got %.2f", notional)
	}
	amount := decimal.NewFromFloat(notional).Round(2)
	req := alpaca.PlaceOrderRequest{
		Symbol:         strings.ToUpper(symbol),
		Notional:       &amount,
		Side:           alpaca.Buy,
		Type:           alpaca.Market,
		TimeInForce:    alpaca.Day,
		PositionIntent: alpaca.BuyToOpen,
	}
	order, err := b.client.PlaceOrder(req)
	if err != nil {
		return Order{}, fmt.Errorf("alpaca buy %s: %w", symbol, err)
	}
	logger.Infof("broker: buy order %s submitted for %s, notional %.2f", order.ID, symbol, notional)
	return fromAlpacaOrder(order), nil
}

func (b *AlpacaBroker) SubmitSell(ctx context.Context, symbol string, qty float64) (Order, error) {
	symbol = strings.ToUpper(symbol)
	if qty <= 0 {
		// Full liquidation.
		pos, err := b.client.GetPosition(symbol)
		if err != nil {
			return Order{}, fmt.Errorf("alpaca position %s: %w", symbol, err)
		}
		qty = pos.Qty.InexactFloat64()
	}
	amount := decimal.NewFromFloat(qty)
	req := alpaca.PlaceOrderRequest{
		Symbol:         symbol,
		Qty:            &amount,
		Side:           alpaca.Sell,
		Type:           alpaca.Market,
		TimeInForce:    alpaca.Day,
		PositionIntent: alpaca.SellToClose,
	}
	order, err := b.client.PlaceOrder(req)
	if err != nil {
		return Order{}, fmt.Errorf("alpaca sell %s: %w", symbol, err)
	}
	logger.Infof("broker: sell order %s submitted for %s, qty %s", order.ID, symbol, amount.String())
	return fromAlpacaOrder(order), nil
}

func (b *AlpacaBroker) GetOrder(ctx context.Context, orderID string) (Order, error) {
	order, err := b.client.GetOrder(orderID)
	if err != nil {
		return Order{}, fmt.Errorf("alpaca order %s: %w", orderID, err)
	}
	return fromAlpacaOrder(order), nil
}

func (b *AlpacaBroker) ListOrders(ctx context.Context) ([]Order, error) {
	orders, err := b.client.GetOrders(alpaca.GetOrdersRequest{
		Status: "open",
		Limit:  100,
	})
	if err != nil {
		return nil, fmt.Errorf("alpaca orders: %w", err)
	}
	out := make([]Order, 0, len(orders))
	for i := range orders {
		out = append(out, fromAlpacaOrder(&orders[i]))
	}
	return out, nil
}

func (b *AlpacaBroker) CancelOrder(ctx context.Context, orderID string) error {
	if err := b.client.CancelOrder(orderID); err != nil {
		return fmt.Errorf("alpaca cancel %s: %w", orderID, err)
	}
	return nil
}

func fromAlpacaOrder(o *alpaca.Order) Order {
	out := Order{
		ID:          o.ID,
		Symbol:      o.Symbol,
		Side:        string(o.Side),
		Status:      o.Status,
		SubmittedAt: o.SubmittedAt,
	}
	if o.Qty != nil {
		out.Quantity = o.Qty.InexactFloat64()
	}
	if o.Notional != nil {
		out.Notional = o.Notional.InexactFloat64()
	}
	out.FilledQty = o.FilledQty.InexactFloat64()
	if o.FilledAvgPrice != nil {
		out.FilledPrice = o.FilledAvgPrice.InexactFloat64()
	}
	if o.FilledAt != nil {
		out.FilledAt = *o.FilledAt
	}
	return out
}

// WaitForFill polls an order until it fills, fails, or ctx expires.
func WaitForFill(ctx context.Context, b Broker, orderID string, interval time.Duration) (Order, error) {
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		order, err := b.GetOrder(ctx, orderID)
		if err != nil {
			return Order{}, err
		}
		switch order.Status {
		case "filled":
			return order, nil
		case "canceled", "expired", "rejected":
			return order, fmt.Errorf("order %s ended %s", orderID, order.Status)
		}
		select {
		case <-ctx.Done():
			return order, ctx.Err()
		case <-ticker.C:
		}
	}
}
