package storage

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"cassa/internal/core"
)

// ledgerTable describes one of the two symmetric ledger tables.
type ledgerTable struct {
	name     string
	keyCol   string // category or source
	kindCol  string // payment_method or income_type
	notFound error
}

var (
	expensesTable = ledgerTable{name: "expenses", keyCol: "category", kindCol: "payment_method", notFound: core.ErrExpenseNotFound}
	incomeTable   = ledgerTable{name: "income", keyCol: "source", kindCol: "income_type", notFound: core.ErrIncomeNotFound}
)

// LedgerRecord is a row of either ledger table. Key holds the category or
// source, Kind holds the payment method or income type.
type LedgerRecord struct {
	ID          int64
	Key         string
	Amount      core.Money
	Description string
	Date        time.Time
	Kind        string
}

// LedgerTable runs windowed queries against one ledger table.
type LedgerTable struct {
	repo  *SQLiteRepository
	table ledgerTable
}

// Expenses returns the expense ledger.
func (r *SQLiteRepository) Expenses() *LedgerTable {
	return &LedgerTable{repo: r, table: expensesTable}
}

// Income returns the income ledger.
func (r *SQLiteRepository) Income() *LedgerTable {
	return &LedgerTable{repo: r, table: incomeTable}
}

// InsertExpense records an expense inside the transaction.
func (t *Tx) InsertExpense(ctx context.Context, e core.NewExpense) (int64, error) {
	return insertLedger(ctx, t.tx, expensesTable, LedgerRecord{
		Key: e.Category, Amount: e.Amount, Description: e.Description, Date: e.Date, Kind: e.PaymentMethod,
	})
}

// InsertIncome records an income entry inside the transaction.
func (t *Tx) InsertIncome(ctx context.Context, i core.NewIncome) (int64, error) {
	return insertLedger(ctx, t.tx, incomeTable, LedgerRecord{
		Key: i.Source, Amount: i.Amount, Description: i.Description, Date: i.Date, Kind: i.IncomeType,
	})
}

func insertLedger(ctx context.Context, q querier, t ledgerTable, rec LedgerRecord) (int64, error) {
	res, err := q.ExecContext(ctx, fmt.Sprintf(
		"INSERT INTO %s (%s, amount_cents, description, date, %s) VALUES (?, ?, ?, ?, ?)",
		t.name, t.keyCol, t.kindCol),
		rec.Key, rec.Amount.Cents, rec.Description, formatTime(rec.Date), rec.Kind)
	if err != nil {
		return 0, fmt.Errorf("insert into %s: %w", t.name, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("%s id: %w", t.name, err)
	}

	slog.InfoContext(ctx, "Ledger entry saved to SQLite",
		"table", t.name,
		"id", id,
		t.keyCol, rec.Key,
		"amount_cents", rec.Amount.Cents)

	return id, nil
}

// Recent returns entries dated at or after since, newest first.
func (l *LedgerTable) Recent(ctx context.Context, since time.Time) ([]LedgerRecord, error) {
	return l.query(ctx, fmt.Sprintf(
		"SELECT id, %s, amount_cents, description, date, %s FROM %s WHERE date >= ? ORDER BY date DESC, id DESC",
		l.table.keyCol, l.table.kindCol, l.table.name), formatTime(since))
}

// Top returns the limit largest entries dated at or after since. Equal
// amounts are ordered by id.
func (l *LedgerTable) Top(ctx context.Context, limit int, since time.Time) ([]LedgerRecord, error) {
	return l.query(ctx, fmt.Sprintf(
		"SELECT id, %s, amount_cents, description, date, %s FROM %s WHERE date >= ? ORDER BY amount_cents DESC, id ASC LIMIT ?",
		l.table.keyCol, l.table.kindCol, l.table.name), formatTime(since), limit)
}

// TotalsByKey sums entries dated at or after since per category or source.
func (l *LedgerTable) TotalsByKey(ctx context.Context, since time.Time) (map[string]core.Money, error) {
	l.repo.mu.RLock()
	defer l.repo.mu.RUnlock()

	rows, err := l.repo.db.QueryContext(ctx, fmt.Sprintf(
		"SELECT %s, SUM(amount_cents) FROM %s WHERE date >= ? GROUP BY %s",
		l.table.keyCol, l.table.name, l.table.keyCol), formatTime(since))
	if err != nil {
		return nil, fmt.Errorf("totals by %s: %w", l.table.keyCol, err)
	}
	defer rows.Close()

	totals := map[string]core.Money{}
	for rows.Next() {
		var (
			key   string
			cents int64
		)
		if err := rows.Scan(&key, &cents); err != nil {
			return nil, fmt.Errorf("scan %s total: %w", l.table.keyCol, err)
		}
		totals[key] = core.Money{Cents: cents}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s totals: %w", l.table.keyCol, err)
	}
	return totals, nil
}

// Total sums entries dated at or after since.
func (l *LedgerTable) Total(ctx context.Context, since time.Time) (core.Money, error) {
	return l.sum(ctx, "date >= ?", formatTime(since))
}

// TotalBetween sums entries dated within [from, to].
func (l *LedgerTable) TotalBetween(ctx context.Context, from, to time.Time) (core.Money, error) {
	return l.sum(ctx, "date BETWEEN ? AND ?", formatTime(from), formatTime(to))
}

// TotalOn sums entries on the UTC calendar day of day.
func (l *LedgerTable) TotalOn(ctx context.Context, day time.Time) (core.Money, error) {
	return l.sum(ctx, "substr(date, 1, 10) = ?", day.UTC().Format(dateLayout))
}

// Delete removes one entry.
func (l *LedgerTable) Delete(ctx context.Context, id int64) error {
	l.repo.mu.Lock()
	defer l.repo.mu.Unlock()

	res, err := l.repo.db.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s WHERE id = ?", l.table.name), id)
	if err != nil {
		return fmt.Errorf("delete from %s: %w", l.table.name, err)
	}
	if err := rowsAffected(res, l.table.notFound); err != nil {
		return err
	}

	slog.InfoContext(ctx, "Ledger entry deleted", "table", l.table.name, "id", id)
	return nil
}

func (l *LedgerTable) sum(ctx context.Context, where string, args ...any) (core.Money, error) {
	l.repo.mu.RLock()
	defer l.repo.mu.RUnlock()

	var cents int64
	err := l.repo.db.QueryRowContext(ctx, fmt.Sprintf(
		"SELECT COALESCE(SUM(amount_cents), 0) FROM %s WHERE %s", l.table.name, where), args...).Scan(&cents)
	if err != nil {
		return core.Money{}, fmt.Errorf("sum %s: %w", l.table.name, err)
	}
	return core.Money{Cents: cents}, nil
}

func (l *LedgerTable) query(ctx context.Context, query string, args ...any) ([]LedgerRecord, error) {
	l.repo.mu.RLock()
	defer l.repo.mu.RUnlock()

	rows, err := l.repo.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", l.table.name, err)
	}
	defer rows.Close()

	records := []LedgerRecord{}
	for rows.Next() {
		var (
			rec  LedgerRecord
			date string
		)
		if err := rows.Scan(&rec.ID, &rec.Key, &rec.Amount.Cents, &rec.Description, &date, &rec.Kind); err != nil {
			return nil, fmt.Errorf("scan %s: %w", l.table.name, err)
		}
		if rec.Date, err = parseTime(date); err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s: %w", l.table.name, err)
	}
	return records, nil
}
