package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cassa/internal/core"
	"cassa/internal/storage"
)

func TestCheckout_WidgetScenario(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	widget := env.product(t, "Widget", 100, 10)

	_, err := env.cart.AddToCart(ctx, widget, 3)
	require.NoError(t, err)

	summary, err := env.cart.GetCartSummary(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(30000), summary.TotalPrice.Cents)
	assert.Equal(t, 3, summary.TotalQuantity)

	receipt, err := env.cart.Checkout(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), receipt.TransactionID)
	assert.Equal(t, summary.TotalPrice, receipt.TotalAmount)
	assert.Equal(t, 1, receipt.ItemCount)

	p, err := env.inventory.GetProduct(ctx, widget)
	require.NoError(t, err)
	assert.Equal(t, 7, p.Quantity)

	cart, err := env.cart.GetCart(ctx)
	require.NoError(t, err)
	assert.Empty(t, cart)

	txs, err := env.cart.Transactions(ctx, 10)
	require.NoError(t, err)
	require.Len(t, txs, 1)
	assert.Equal(t, core.TransactionPurchase, txs[0].Type)
	assert.Equal(t, int64(30000), txs[0].TotalAmount.Cents)

	stats, err := env.repo.OutboxStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.Pending, "one settlement event per checkout")
}

func TestCheckout_MultiLineStockDecrement(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	widget := env.product(t, "Widget", 100, 10)
	gadget := env.product(t, "Gadget", 2.5, 8)
	gizmo := env.product(t, "Gizmo", 7, 4)
	stock := map[int64]int{widget: 10, gadget: 8, gizmo: 4}

	for _, line := range []struct {
		id  int64
		qty int
	}{{widget, 2}, {gadget, 3}, {gizmo, 1}, {gadget, 2}} {
		_, err := env.cart.AddToCart(ctx, line.id, line.qty)
		require.NoError(t, err)
	}

	summary, err := env.cart.GetCartSummary(ctx)
	require.NoError(t, err)
	require.Equal(t, 8, summary.TotalQuantity)

	receipt, err := env.cart.Checkout(ctx)
	require.NoError(t, err)
	assert.Equal(t, summary.TotalPrice, receipt.TotalAmount)
	assert.Equal(t, summary.ItemCount, receipt.ItemCount)

	decrement := 0
	for id, was := range stock {
		p, err := env.inventory.GetProduct(ctx, id)
		require.NoError(t, err)
		decrement += was - p.Quantity
	}
	assert.Equal(t, summary.TotalQuantity, decrement)
}

func TestAddToCart_Failures(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	widget := env.product(t, "Widget", 100, 2)

	_, err := env.cart.AddToCart(ctx, 999, 1)
	assert.ErrorIs(t, err, core.ErrProductNotFound)

	_, err = env.cart.AddToCart(ctx, widget, 0)
	assert.True(t, core.IsValidation(err))

	_, err = env.cart.AddToCart(ctx, widget, 3)
	var stockErr *core.InsufficientStockError
	require.ErrorAs(t, err, &stockErr)
	assert.Equal(t, 2, stockErr.Available)

	cart, err := env.cart.GetCart(ctx)
	require.NoError(t, err)
	assert.Empty(t, cart, "failed adds create no line")
}

func TestCart_PriceFrozenAndOrdering(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	widget := env.product(t, "Widget", 10, 10)
	gadget := env.product(t, "Gadget", 2.5, 10)

	first, err := env.cart.AddToCart(ctx, widget, 2)
	require.NoError(t, err)
	env.clock.Advance(time.Second)
	second, err := env.cart.AddToCart(ctx, gadget, 4)
	require.NoError(t, err)

	newPrice := core.MoneyFromFloat(99)
	require.NoError(t, env.inventory.UpdateProduct(ctx, widget, core.ProductUpdate{Price: &newPrice}))

	items, err := env.cart.GetCart(ctx)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, second, items[0].ID)
	assert.Equal(t, first, items[1].ID)
	assert.Equal(t, int64(1000), items[1].Price.Cents)

	again, err := env.cart.GetCart(ctx)
	require.NoError(t, err)
	assert.Equal(t, items, again)

	summary, err := env.cart.GetCartSummary(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, summary.ItemCount)
	assert.Equal(t, 6, summary.TotalQuantity)
	assert.Equal(t, int64(3000), summary.TotalPrice.Cents)

	require.NoError(t, env.cart.UpdateCartLine(ctx, second, 1))
	assert.ErrorIs(t, env.cart.UpdateCartLine(ctx, 999, 1), core.ErrCartLineNotFound)
	require.NoError(t, env.cart.RemoveFromCart(ctx, first))
	assert.ErrorIs(t, env.cart.RemoveFromCart(ctx, first), core.ErrCartLineNotFound)

	require.NoError(t, env.cart.ClearCart(ctx))
	p, err := env.inventory.GetProduct(ctx, gadget)
	require.NoError(t, err)
	assert.Equal(t, 10, p.Quantity, "clearing the cart leaves stock untouched")
}

func TestCheckout_EmptyCart(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	_, err := env.cart.Checkout(ctx)
	assert.ErrorIs(t, err, core.ErrEmptyCart)

	txs, err := env.cart.Transactions(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, txs)
}

func TestCheckout_StockMayGoNegative(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	widget := env.product(t, "Widget", 1, 5)

	_, err := env.cart.AddToCart(ctx, widget, 4)
	require.NoError(t, err)
	_, err = env.cart.AddToCart(ctx, widget, 3)
	require.NoError(t, err)

	receipt, err := env.cart.Checkout(ctx)
	require.NoError(t, err)
	assert.Equal(t, 7, receipt.TotalQuantity)

	p, err := env.inventory.GetProduct(ctx, widget)
	require.NoError(t, err)
	assert.Equal(t, -2, p.Quantity)
}

func TestCheckout_StrictStockRollsBack(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, WithStrictStock(true))
	widget := env.product(t, "Widget", 1, 5)
	gadget := env.product(t, "Gadget", 1, 5)

	_, err := env.cart.AddToCart(ctx, gadget, 2)
	require.NoError(t, err)
	_, err = env.cart.AddToCart(ctx, widget, 4)
	require.NoError(t, err)
	_, err = env.cart.AddToCart(ctx, widget, 3)
	require.NoError(t, err)

	_, err = env.cart.Checkout(ctx)
	require.True(t, core.IsInsufficientStock(err), "got %v", err)

	for id, want := range map[int64]int{widget: 5, gadget: 5} {
		p, err := env.inventory.GetProduct(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, want, p.Quantity)
	}

	cart, err := env.cart.GetCart(ctx)
	require.NoError(t, err)
	assert.Len(t, cart, 3)

	txs, err := env.cart.Transactions(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, txs)

	stats, err := env.repo.OutboxStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, storage.OutboxStats{}, stats)
}

func TestCheckout_CancelledContext(t *testing.T) {
	env := newTestEnv(t)
	widget := env.product(t, "Widget", 1, 5)
	_, err := env.cart.AddToCart(context.Background(), widget, 1)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = env.cart.Checkout(ctx)
	require.Error(t, err)
	assert.False(t, errors.Is(err, core.ErrEmptyCart))

	cart, err := env.cart.GetCart(context.Background())
	require.NoError(t, err)
	assert.Len(t, cart, 1)
}
