package broker

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"bastion/internal/snapshot"
)

// PriceFunc supplies the fill price for a symbol.
type PriceFunc func(symbol string) (float64, error)

// PaperBroker is an in-process simulator with instant fills at the supplied
// price. Used for dry runs and the trader tests.
type PaperBroker struct {
	mu        sync.Mutex
	cash      float64
	positions map[string]*snapshot.Position
	orders    map[string]Order
	priceFn   PriceFunc
	nowFn     func() time.Time
}

var _ Broker = (*PaperBroker)(nil)

func NewPaperBroker(startingCash float64, priceFn PriceFunc) *PaperBroker {
	return &PaperBroker{
		cash:      startingCash,
		positions: make(map[string]*snapshot.Position),
		orders:    make(map[string]Order),
		priceFn:   priceFn,
		nowFn:     time.Now,
	}
}

// WithClock overrides fill timestamps.
func (b *PaperBroker) WithClock(nowFn func() time.Time) *PaperBroker {
	if nowFn != nil {
		b.nowFn = nowFn
	}
	return b
}

func (b *PaperBroker) GetAccount(ctx context.Context) (snapshot.AccountInfo, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	equity := b.cash
	for sym, p := range b.positions {
		price, err := b.priceFn(sym)
		if err == nil && price > 0 {
			p.CurrentPrice = price
		}
		equity += p.Quantity * p.CurrentPrice
	}
	return snapshot.AccountInfo{
		Equity:      equity,
		BuyingPower: b.cash,
		Cash:        b.cash,
	}, nil
}

func (b *PaperBroker) GetPositions(ctx context.Context) ([]snapshot.Position, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]snapshot.Position, 0, len(b.positions))
	for sym, p := range b.positions {
		price, err := b.priceFn(sym)
		if err == nil && price > 0 {
			p.CurrentPrice = price
		}
		out = append(out, *p)
	}
	return out, nil
}

func (b *PaperBroker) SubmitBuy(ctx context.Context, symbol string, notional float64) (Order, error) {
	if notional <= 0 {
		return Order{}, fmt.Errorf("buy notional must be positive, got %.2f", notional)
	}
	symbol = strings.ToUpper(symbol)
	price, err := b.priceFn(symbol)
	if err != nil {
		return Order{}, fmt.Errorf("paper buy %s: %w", symbol, err)
	}
	if price <= 0 {
		return Order{}, fmt.Errorf("paper buy %s: no price", symbol)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if notional > b.cash {
		return Order{}, fmt.Errorf("paper buy %s: insufficient cash %.2f < %.2f", symbol, b.cash, notional)
	}

	qty := notional / price
	now := b.nowFn()
	pos, ok := b.positions[symbol]
	if !ok {
		pos = &snapshot.Position{Symbol: symbol}
		b.positions[symbol] = pos
	}
	totalCost := pos.AvgEntryPrice*pos.Quantity + notional
	pos.Quantity += qty
	pos.AvgEntryPrice = totalCost / pos.Quantity
	pos.CurrentPrice = price
	b.cash -= notional

	order := Order{
		ID:          uuid.NewString(),
		Symbol:      symbol,
		Side:        "buy",
		Quantity:    qty,
		Notional:    notional,
		Status:      "filled",
		FilledQty:   qty,
		FilledPrice: price,
		SubmittedAt: now,
		FilledAt:    now,
	}
	b.orders[order.ID] = order
	return order, nil
}

func (b *PaperBroker) SubmitSell(ctx context.Context, symbol string, qty float64) (Order, error) {
	symbol = strings.ToUpper(symbol)
	price, err := b.priceFn(symbol)
	if err != nil {
		return Order{}, fmt.Errorf("paper sell %s: %w", symbol, err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	pos, ok := b.positions[symbol]
	if !ok || pos.Quantity <= 0 {
		return Order{}, fmt.Errorf("paper sell %s: no position", symbol)
	}
	if qty <= 0 || qty > pos.Quantity {
		qty = pos.Quantity
	}

	now := b.nowFn()
	b.cash += qty * price
	pos.Quantity -= qty
	if pos.Quantity <= 1e-9 {
		delete(b.positions, symbol)
	}

	order := Order{
		ID:          uuid.NewString(),
		Symbol:      symbol,
		Side:        "sell",
		Quantity:    qty,
		Status:      "filled",
		FilledQty:   qty,
		FilledPrice: price,
		SubmittedAt: now,
		FilledAt:    now,
	}
	b.orders[order.ID] = order
	return order, nil
}

func (b *PaperBroker) GetOrder(ctx context.Context, orderID string) (Order, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	order, ok := b.orders[orderID]
	if !ok {
		return Order{}, fmt.Errorf("paper order %s not found", orderID)
	}
	return order, nil
}

func (b *PaperBroker) ListOrders(ctx context.Context) ([]Order, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Order, 0, len(b.orders))
	for _, o := range b.orders {
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SubmittedAt.After(out[j].SubmittedAt) })
	return out, nil
}

func (b *PaperBroker) CancelOrder(ctx context.Context, orderID string) error {
	// Fills are instantaneous, nothing is ever pending.
	return nil
}
