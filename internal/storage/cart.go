package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"cassa/internal/core"
)

// AddCartLine reserves quantity of a product at its current price. Stock is
// checked but not decremented.
func (r *SQLiteRepository) AddCartLine(ctx context.Context, productID int64, quantity int, now time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, err := getProduct(ctx, r.db, productID)
	if err != nil {
		return 0, err
	}
	if quantity > p.Quantity {
		return 0, &core.InsufficientStockError{ProductID: p.ID, Requested: quantity, Available: p.Quantity}
	}

	res, err := r.db.ExecContext(ctx,
		"INSERT INTO cart_lines (product_id, quantity, price_cents, added_at) VALUES (?, ?, ?, ?)",
		productID, quantity, p.Price.Cents, formatTime(now))
	if err != nil {
		if isForeignKeyViolation(err) {
			return 0, core.ErrProductNotFound
		}
		return 0, fmt.Errorf("insert cart line: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("cart line id: %w", err)
	}

	slog.InfoContext(ctx, "Cart line added",
		"id", id,
		"product_id", productID,
		"quantity", quantity,
		"price_cents", p.Price.Cents)

	return id, nil
}

// UpdateCartLine changes the quantity of a line, checking it against the
// product's current stock.
func (r *SQLiteRepository) UpdateCartLine(ctx context.Context, lineID int64, quantity int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var productID int64
	err := r.db.QueryRowContext(ctx, "SELECT product_id FROM cart_lines WHERE id = ?", lineID).Scan(&productID)
	if errors.Is(err, sql.ErrNoRows) {
		return core.ErrCartLineNotFound
	}
	if err != nil {
		return fmt.Errorf("get cart line %d: %w", lineID, err)
	}

	p, err := getProduct(ctx, r.db, productID)
	if err != nil {
		return err
	}
	if quantity > p.Quantity {
		return &core.InsufficientStockError{ProductID: p.ID, Requested: quantity, Available: p.Quantity}
	}

	res, err := r.db.ExecContext(ctx, "UPDATE cart_lines SET quantity = ? WHERE id = ?", quantity, lineID)
	if err != nil {
		return fmt.Errorf("update cart line %d: %w", lineID, err)
	}
	return rowsAffected(res, core.ErrCartLineNotFound)
}

func (r *SQLiteRepository) RemoveCartLine(ctx context.Context, lineID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	res, err := r.db.ExecContext(ctx, "DELETE FROM cart_lines WHERE id = ?", lineID)
	if err != nil {
		return fmt.Errorf("remove cart line %d: %w", lineID, err)
	}
	if err := rowsAffected(res, core.ErrCartLineNotFound); err != nil {
		return err
	}

	slog.InfoContext(ctx, "Cart line removed", "id", lineID)
	return nil
}

// ListCart returns cart lines joined with their product, newest first.
func (r *SQLiteRepository) ListCart(ctx context.Context) ([]core.CartItem, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return listCart(ctx, r.db)
}

// ClearCart deletes every cart line and returns how many were removed.
func (r *SQLiteRepository) ClearCart(ctx context.Context) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return clearCart(ctx, r.db)
}

// ListCart reads the cart inside the transaction.
func (t *Tx) ListCart(ctx context.Context) ([]core.CartItem, error) {
	return listCart(ctx, t.tx)
}

func (t *Tx) ClearCart(ctx context.Context) (int64, error) {
	return clearCart(ctx, t.tx)
}

// InsertTransaction appends a settlement record.
func (t *Tx) InsertTransaction(ctx context.Context, total core.Money, txType string, itemCount int, now time.Time) (int64, error) {
	res, err := t.tx.ExecContext(ctx,
		"INSERT INTO transactions (total_cents, transaction_type, items_count, created_at) VALUES (?, ?, ?, ?)",
		total.Cents, txType, itemCount, formatTime(now))
	if err != nil {
		return 0, fmt.Errorf("insert transaction: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("transaction id: %w", err)
	}
	return id, nil
}

// ListTransactions returns settlement records, newest first.
func (r *SQLiteRepository) ListTransactions(ctx context.Context, limit int) ([]core.Transaction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, total_cents, transaction_type, items_count, created_at
		FROM transactions ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query transactions: %w", err)
	}
	defer rows.Close()

	txs := []core.Transaction{}
	for rows.Next() {
		var (
			tx      core.Transaction
			created string
		)
		if err := rows.Scan(&tx.ID, &tx.TotalAmount.Cents, &tx.Type, &tx.ItemCount, &created); err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		if tx.CreatedAt, err = parseTime(created); err != nil {
			return nil, err
		}
		txs = append(txs, tx)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transactions: %w", err)
	}
	return txs, nil
}

func listCart(ctx context.Context, q querier) ([]core.CartItem, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT c.id, c.product_id, c.quantity, c.price_cents, c.added_at, p.name, p.category
		FROM cart_lines c
		JOIN products p ON p.id = c.product_id
		ORDER BY c.added_at DESC, c.id DESC`)
	if err != nil {
		return nil, fmt.Errorf("query cart: %w", err)
	}
	defer rows.Close()

	items := []core.CartItem{}
	for rows.Next() {
		var (
			it    core.CartItem
			added string
		)
		if err := rows.Scan(&it.ID, &it.ProductID, &it.Quantity, &it.Price.Cents, &added,
			&it.ProductName, &it.Category); err != nil {
			return nil, fmt.Errorf("scan cart line: %w", err)
		}
		if it.AddedAt, err = parseTime(added); err != nil {
			return nil, err
		}
		it.LineTotal = it.Price.Mul(it.Quantity)
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate cart: %w", err)
	}
	return items, nil
}

func clearCart(ctx context.Context, q querier) (int64, error) {
	res, err := q.ExecContext(ctx, "DELETE FROM cart_lines")
	if err != nil {
		return 0, fmt.Errorf("clear cart: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return n, nil
}
