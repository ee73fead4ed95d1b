package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"cassa/internal/core"
)

const productColumns = `id, name, price_cents, quantity, category, description, created_at, updated_at`

// CreateProduct inserts a product and returns its id. A name collision is
// reported as core.ErrDuplicateName.
func (r *SQLiteRepository) CreateProduct(ctx context.Context, p core.NewProduct, now time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	ts := formatTime(now)
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO products (name, price_cents, quantity, category, description, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		p.Name, p.Price.Cents, p.Quantity, p.Category, p.Description, ts, ts)
	if err != nil {
		if isUniqueViolation(err) {
			return 0, fmt.Errorf("create product %q: %w", p.Name, core.ErrDuplicateName)
		}
		return 0, fmt.Errorf("create product: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("product id: %w", err)
	}

	slog.InfoContext(ctx, "Product saved to SQLite",
		"id", id,
		"name", p.Name,
		"price_cents", p.Price.Cents,
		"quantity", p.Quantity)

	return id, nil
}

func (r *SQLiteRepository) GetProduct(ctx context.Context, id int64) (core.Product, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return getProduct(ctx, r.db, id)
}

// UpdateProduct applies u to the stored product and stamps updated_at.
func (r *SQLiteRepository) UpdateProduct(ctx context.Context, id int64, u core.ProductUpdate, now time.Time) error {
	if u.IsEmpty() {
		return core.ErrNoFieldsToUpdate
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	sets := []string{}
	args := []any{}
	if u.Name != nil {
		sets = append(sets, "name = ?")
		args = append(args, strings.TrimSpace(*u.Name))
	}
	if u.Price != nil {
		sets = append(sets, "price_cents = ?")
		args = append(args, u.Price.Cents)
	}
	if u.Quantity != nil {
		sets = append(sets, "quantity = ?")
		args = append(args, *u.Quantity)
	}
	if u.Category != nil {
		sets = append(sets, "category = ?")
		args = append(args, *u.Category)
	}
	if u.Description != nil {
		sets = append(sets, "description = ?")
		args = append(args, *u.Description)
	}
	sets = append(sets, "updated_at = ?")
	args = append(args, formatTime(now), id)

	res, err := r.db.ExecContext(ctx,
		"UPDATE products SET "+strings.Join(sets, ", ")+" WHERE id = ?", args...)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("update product %d: %w", id, core.ErrDuplicateName)
		}
		return fmt.Errorf("update product %d: %w", id, err)
	}
	if err := rowsAffected(res, core.ErrProductNotFound); err != nil {
		return err
	}

	slog.InfoContext(ctx, "Product updated", "id", id, "fields", len(sets)-1)
	return nil
}

// ListProducts returns all products ordered by (category, name), or the
// products of one category ordered by name.
func (r *SQLiteRepository) ListProducts(ctx context.Context, category string) ([]core.Product, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if category == "" {
		return queryProducts(ctx, r.db,
			"SELECT "+productColumns+" FROM products ORDER BY category, name")
	}
	return queryProducts(ctx, r.db,
		"SELECT "+productColumns+" FROM products WHERE category = ? ORDER BY name", category)
}

// SearchProducts matches term as a substring of the product name.
func (r *SQLiteRepository) SearchProducts(ctx context.Context, term string) ([]core.Product, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	escaped := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(term)
	return queryProducts(ctx, r.db,
		"SELECT "+productColumns+` FROM products WHERE name LIKE ? ESCAPE '\' ORDER BY name`,
		"%"+escaped+"%")
}

// DeleteProduct removes a product. A product still referenced by a cart line
// is refused with core.ErrProductInCart.
func (r *SQLiteRepository) DeleteProduct(ctx context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var refs int
	if err := r.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM cart_lines WHERE product_id = ?", id).Scan(&refs); err != nil {
		return fmt.Errorf("count cart references: %w", err)
	}
	if refs > 0 {
		return fmt.Errorf("delete product %d: %w", id, core.ErrProductInCart)
	}

	res, err := r.db.ExecContext(ctx, "DELETE FROM products WHERE id = ?", id)
	if err != nil {
		if isForeignKeyViolation(err) {
			return fmt.Errorf("delete product %d: %w", id, core.ErrProductInCart)
		}
		return fmt.Errorf("delete product %d: %w", id, err)
	}
	if err := rowsAffected(res, core.ErrProductNotFound); err != nil {
		return err
	}

	slog.InfoContext(ctx, "Product deleted", "id", id)
	return nil
}

// GetProduct reads a product inside the transaction.
func (t *Tx) GetProduct(ctx context.Context, id int64) (core.Product, error) {
	return getProduct(ctx, t.tx, id)
}

// SetProductQuantity overwrites the stock of a product.
func (t *Tx) SetProductQuantity(ctx context.Context, id int64, quantity int, now time.Time) error {
	res, err := t.tx.ExecContext(ctx,
		"UPDATE products SET quantity = ?, updated_at = ? WHERE id = ?",
		quantity, formatTime(now), id)
	if err != nil {
		return fmt.Errorf("set quantity of product %d: %w", id, err)
	}
	return rowsAffected(res, core.ErrProductNotFound)
}

func getProduct(ctx context.Context, q querier, id int64) (core.Product, error) {
	row := q.QueryRowContext(ctx, "SELECT "+productColumns+" FROM products WHERE id = ?", id)
	p, err := scanProduct(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Product{}, core.ErrProductNotFound
	}
	if err != nil {
		return core.Product{}, fmt.Errorf("get product %d: %w", id, err)
	}
	return p, nil
}

func queryProducts(ctx context.Context, q querier, query string, args ...any) ([]core.Product, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query products: %w", err)
	}
	defer rows.Close()

	products := []core.Product{}
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate products: %w", err)
	}
	return products, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanProduct(s scanner) (core.Product, error) {
	var (
		p                core.Product
		created, updated string
	)
	if err := s.Scan(&p.ID, &p.Name, &p.Price.Cents, &p.Quantity, &p.Category,
		&p.Description, &created, &updated); err != nil {
		return core.Product{}, err
	}
	var err error
	if p.CreatedAt, err = parseTime(created); err != nil {
		return core.Product{}, err
	}
	if p.UpdatedAt, err = parseTime(updated); err != nil {
		return core.Product{}, err
	}
	return p, nil
}
