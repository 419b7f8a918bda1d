package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/noah-isme/backend-pos/internal/ledger"
	"github.com/noah-isme/backend-pos/internal/loyalty"
)

// Ledger persists the append-only sales record. Transactions are immutable:
// there is no update or delete path.
type Ledger struct {
	pool *pgxpool.Pool
}

// NewLedger constructs a Ledger store backed by a pgx connection pool.
func NewLedger(pool *pgxpool.Pool) *Ledger {
	return &Ledger{pool: pool}
}

// Append writes the transaction header and its lines atomically.
func (s *Ledger) Append(ctx context.Context, t ledger.Transaction) error {
	if s == nil || s.pool == nil {
		return ErrUnavailable
	}
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	var pointsEarned, newBalance any
	if t.Accrual != nil {
		pointsEarned = t.Accrual.PointsEarned
		newBalance = t.Accrual.NewBalance
	}
	var memberID any
	if t.MemberID != nil {
		memberID = *t.MemberID
	}
	_, err = tx.Exec(ctx, `INSERT INTO transactions
(transaction_id, ts, customer_name, member_id, payment_method, currency, subtotal, discount, tax, total, points_earned, new_balance)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		t.TransactionID, t.Timestamp, t.CustomerName, memberID, t.PaymentMethod, t.Currency,
		t.Subtotal, t.Discount, t.Tax, t.Total, pointsEarned, newBalance)
	if isUniqueViolation(err) {
		return fmt.Errorf("transaction %s: %w", t.TransactionID, ledger.ErrDuplicate)
	}
	if err != nil {
		return err
	}
	for _, line := range t.Lines {
		if _, err := tx.Exec(ctx, `INSERT INTO transaction_lines
(transaction_id, item_id, name, qty, unit_price, discount_bps)
VALUES ($1, $2, $3, $4, $5, $6)`,
			t.TransactionID, line.ItemID, line.Name, line.Qty, line.UnitPrice, line.DiscountBps); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

// List returns transactions in the window, newest first, with their lines.
func (s *Ledger) List(ctx context.Context, from, to time.Time, limit int32) ([]ledger.Transaction, error) {
	if s == nil || s.pool == nil {
		return nil, ErrUnavailable
	}
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx, `SELECT transaction_id, ts, customer_name, member_id, payment_method, currency,
subtotal, discount, tax, total, points_earned, new_balance
FROM transactions
WHERE ts >= $1 AND ts <= $2
ORDER BY ts DESC
LIMIT $3`, from, to, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var txs []ledger.Transaction
	ids := make([]string, 0, limit)
	for rows.Next() {
		var t ledger.Transaction
		var memberID sql.NullString
		var pointsEarned, newBalance sql.NullInt64
		if err := rows.Scan(&t.TransactionID, &t.Timestamp, &t.CustomerName, &memberID, &t.PaymentMethod,
			&t.Currency, &t.Subtotal, &t.Discount, &t.Tax, &t.Total, &pointsEarned, &newBalance); err != nil {
			return nil, err
		}
		if memberID.Valid {
			t.MemberID = &memberID.String
		}
		if pointsEarned.Valid {
			t.Accrual = &loyalty.Accrual{PointsEarned: pointsEarned.Int64, NewBalance: newBalance.Int64}
		}
		txs = append(txs, t)
		ids = append(ids, t.TransactionID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(txs) == 0 {
		return txs, nil
	}

	lines, err := s.linesFor(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range txs {
		txs[i].Lines = lines[txs[i].TransactionID]
	}
	return txs, nil
}

func (s *Ledger) linesFor(ctx context.Context, ids []string) (map[string][]ledger.Line, error) {
	rows, err := s.pool.Query(ctx, `SELECT transaction_id, item_id, name, qty, unit_price, discount_bps
FROM transaction_lines
WHERE transaction_id = ANY($1)
ORDER BY id`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string][]ledger.Line, len(ids))
	for rows.Next() {
		var txID string
		var line ledger.Line
		if err := rows.Scan(&txID, &line.ItemID, &line.Name, &line.Qty, &line.UnitPrice, &line.DiscountBps); err != nil {
			return nil, err
		}
		out[txID] = append(out[txID], line)
	}
	return out, rows.Err()
}

// DailyTotals aggregates orders and revenue per day in the window.
func (s *Ledger) DailyTotals(ctx context.Context, from, to time.Time) ([]ledger.DailyTotal, error) {
	if s == nil || s.pool == nil {
		return nil, ErrUnavailable
	}
	rows, err := s.pool.Query(ctx, `SELECT date_trunc('day', ts) AS day, count(*), coalesce(sum(total), 0)
FROM transactions
WHERE ts >= $1 AND ts <= $2
GROUP BY day
ORDER BY day`, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var totals []ledger.DailyTotal
	for rows.Next() {
		var d ledger.DailyTotal
		if err := rows.Scan(&d.Day, &d.Orders, &d.Revenue); err != nil {
			return nil, err
		}
		totals = append(totals, d)
	}
	return totals, rows.Err()
}

// TopItems ranks items by quantity sold in the window.
func (s *Ledger) TopItems(ctx context.Context, from, to time.Time, limit int32) ([]ledger.TopItem, error) {
	if s == nil || s.pool == nil {
		return nil, ErrUnavailable
	}
	if limit <= 0 || limit > 100 {
		limit = 5
	}
	rows, err := s.pool.Query(ctx, `SELECT l.item_id, max(l.name), sum(l.qty)::bigint
FROM transaction_lines l
JOIN transactions t ON t.transaction_id = l.transaction_id
WHERE t.ts >= $1 AND t.ts <= $2
GROUP BY l.item_id
ORDER BY sum(l.qty) DESC
LIMIT $3`, from, to, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []ledger.TopItem
	for rows.Next() {
		var item ledger.TopItem
		if err := rows.Scan(&item.ItemID, &item.Name, &item.QtySold); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}
