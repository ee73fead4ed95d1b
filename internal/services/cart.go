package services

import (
	"context"
	"fmt"
	"log/slog"

	"cassa/internal/amqp"
	"cassa/internal/core"
	"cassa/internal/storage"
)

// CartService reserves products and settles the cart.
type CartService struct {
	storage     *storage.SQLiteRepository
	clock       core.Clock
	strictStock bool
}

type CartOption func(*CartService)

// WithStrictStock makes Checkout refuse a cart whose lines exceed the stock
// on hand at settlement time instead of letting stock go negative.
func WithStrictStock(strict bool) CartOption {
	return func(s *CartService) { s.strictStock = strict }
}

func NewCartService(storage *storage.SQLiteRepository, clock core.Clock, opts ...CartOption) *CartService {
	s := &CartService{storage: storage, clock: clock}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// AddToCart reserves quantity of a product at its current price. The stock
// check is advisory: nothing is decremented until checkout.
func (s *CartService) AddToCart(ctx context.Context, productID int64, quantity int) (int64, error) {
	if err := core.ValidateQuantity(quantity); err != nil {
		return 0, err
	}

	id, err := s.storage.AddCartLine(ctx, productID, quantity, s.clock.Now())
	if err != nil {
		return 0, fmt.Errorf("add to cart: %w", err)
	}
	return id, nil
}

func (s *CartService) UpdateCartLine(ctx context.Context, lineID int64, quantity int) error {
	if err := core.ValidateQuantity(quantity); err != nil {
		return err
	}
	if err := s.storage.UpdateCartLine(ctx, lineID, quantity); err != nil {
		return fmt.Errorf("update cart line: %w", err)
	}
	return nil
}

func (s *CartService) RemoveFromCart(ctx context.Context, lineID int64) error {
	if err := s.storage.RemoveCartLine(ctx, lineID); err != nil {
		return fmt.Errorf("remove from cart: %w", err)
	}
	return nil
}

// GetCart returns the cart lines, newest first.
func (s *CartService) GetCart(ctx context.Context) ([]core.CartItem, error) {
	return s.storage.ListCart(ctx)
}

func (s *CartService) GetCartSummary(ctx context.Context) (core.CartSummary, error) {
	items, err := s.storage.ListCart(ctx)
	if err != nil {
		return core.CartSummary{}, err
	}
	return core.Summarize(items), nil
}

// ClearCart drops every line without touching stock.
func (s *CartService) ClearCart(ctx context.Context) error {
	n, err := s.storage.ClearCart(ctx)
	if err != nil {
		return fmt.Errorf("clear cart: %w", err)
	}
	slog.InfoContext(ctx, "Cart cleared", "lines", n)
	return nil
}

// Checkout settles the cart in one transaction: every line's quantity is
// taken from its product's current stock, one purchase transaction is
// recorded, a settlement event is queued and the cart is emptied. Any
// failure leaves stock, cart and transactions as they were.
func (s *CartService) Checkout(ctx context.Context) (core.Receipt, error) {
	now := s.clock.Now()
	var receipt core.Receipt

	err := s.storage.WithTx(ctx, func(tx *storage.Tx) error {
		items, err := tx.ListCart(ctx)
		if err != nil {
			return err
		}
		if len(items) == 0 {
			return core.ErrEmptyCart
		}
		summary := core.Summarize(items)

		for _, it := range items {
			p, err := tx.GetProduct(ctx, it.ProductID)
			if err != nil {
				return fmt.Errorf("cart line %d: %w", it.ID, err)
			}

			remaining := p.Quantity - it.Quantity
			if remaining < 0 {
				if s.strictStock {
					return &core.InsufficientStockError{ProductID: p.ID, Requested: it.Quantity, Available: p.Quantity}
				}
				slog.WarnContext(ctx, "Checkout takes product stock below zero",
					"product_id", p.ID,
					"stock", p.Quantity,
					"requested", it.Quantity)
			}

			if err := tx.SetProductQuantity(ctx, p.ID, remaining, now); err != nil {
				return err
			}
		}

		txID, err := tx.InsertTransaction(ctx, summary.TotalPrice, core.TransactionPurchase, summary.ItemCount, now)
		if err != nil {
			return err
		}

		entry := core.LedgerEntry{
			Kind:        core.EntryPurchase,
			RefID:       txID,
			Date:        now,
			Label:       core.TransactionPurchase,
			Description: fmt.Sprintf("%d items, %d units", summary.ItemCount, summary.TotalQuantity),
			Amount:      summary.TotalPrice,
		}
		if err := enqueueEntry(ctx, tx, amqp.EventTransactionSettled, entry, now); err != nil {
			return err
		}

		if _, err := tx.ClearCart(ctx); err != nil {
			return err
		}

		receipt = core.Receipt{
			TransactionID: txID,
			TotalAmount:   summary.TotalPrice,
			ItemCount:     summary.ItemCount,
			TotalQuantity: summary.TotalQuantity,
		}
		return nil
	})
	if err != nil {
		return core.Receipt{}, fmt.Errorf("checkout: %w", err)
	}

	slog.InfoContext(ctx, "Checkout completed",
		"transaction_id", receipt.TransactionID,
		"total_cents", receipt.TotalAmount.Cents,
		"items", receipt.ItemCount)

	return receipt, nil
}

// Transactions returns the most recent settlement records.
func (s *CartService) Transactions(ctx context.Context, limit int) ([]core.Transaction, error) {
	if limit < 1 {
		return nil, &core.ValidationError{Field: "limit", Message: "must be at least 1"}
	}
	return s.storage.ListTransactions(ctx, limit)
}
