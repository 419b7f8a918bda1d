// Package store implements the persistence contracts of the domain packages
// over a pgx connection pool.
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/noah-isme/backend-pos/internal/checkout"
	"github.com/noah-isme/backend-pos/internal/inventory"
)

// ErrUnavailable indicates the store's pool dependency is not configured.
var ErrUnavailable = errors.New("store: pool unavailable")

// Inventory persists the catalog and its stock levels. Every stock change
// writes a row to stock_movements for the audit trail.
type Inventory struct {
	pool *pgxpool.Pool
}

// NewInventory constructs an Inventory backed by a pgx connection pool.
func NewInventory(pool *pgxpool.Pool) *Inventory {
	return &Inventory{pool: pool}
}

const itemColumns = `id, name, sku, price, stock, reorder_point`

func scanItem(row pgx.Row) (inventory.Item, error) {
	var item inventory.Item
	err := row.Scan(&item.ID, &item.Name, &item.SKU, &item.Price, &item.Stock, &item.ReorderPoint)
	if errors.Is(err, pgx.ErrNoRows) {
		return inventory.Item{}, inventory.ErrNotFound
	}
	return item, err
}

// List returns the catalog ordered by name.
func (s *Inventory) List(ctx context.Context) ([]inventory.Item, error) {
	if s == nil || s.pool == nil {
		return nil, ErrUnavailable
	}
	rows, err := s.pool.Query(ctx, `SELECT `+itemColumns+` FROM inventory_items ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []inventory.Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// Get fetches one item by id.
func (s *Inventory) Get(ctx context.Context, id string) (inventory.Item, error) {
	if s == nil || s.pool == nil {
		return inventory.Item{}, ErrUnavailable
	}
	return scanItem(s.pool.QueryRow(ctx, `SELECT `+itemColumns+` FROM inventory_items WHERE id = $1`, id))
}

// Create inserts a catalog item.
func (s *Inventory) Create(ctx context.Context, item inventory.Item) (inventory.Item, error) {
	if s == nil || s.pool == nil {
		return inventory.Item{}, ErrUnavailable
	}
	row := s.pool.QueryRow(ctx, `INSERT INTO inventory_items (id, name, sku, price, stock, reorder_point)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING `+itemColumns,
		item.ID, item.Name, item.SKU, item.Price, item.Stock, item.ReorderPoint)
	created, err := scanItem(row)
	if isUniqueViolation(err) {
		return inventory.Item{}, fmt.Errorf("item or sku already exists: %w", inventory.ErrInvalidInput)
	}
	return created, err
}

// SetStock replaces an item's stock level and records the movement with the
// operator-supplied reason.
func (s *Inventory) SetStock(ctx context.Context, id string, newQuantity int32, reason string) (inventory.Item, error) {
	if s == nil || s.pool == nil {
		return inventory.Item{}, ErrUnavailable
	}
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return inventory.Item{}, err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	var prev int32
	if err := tx.QueryRow(ctx, `SELECT stock FROM inventory_items WHERE id = $1 FOR UPDATE`, id).Scan(&prev); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return inventory.Item{}, inventory.ErrNotFound
		}
		return inventory.Item{}, err
	}
	item, err := scanItem(tx.QueryRow(ctx, `UPDATE inventory_items SET stock = $2, updated_at = now()
WHERE id = $1
RETURNING `+itemColumns, id, newQuantity))
	if err != nil {
		return inventory.Item{}, err
	}
	if _, err := tx.Exec(ctx, `INSERT INTO stock_movements (item_id, delta, new_stock, reason)
VALUES ($1, $2, $3, $4)`, id, newQuantity-prev, newQuantity, reason); err != nil {
		return inventory.Item{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return inventory.Item{}, err
	}
	return item, nil
}

// StockLevels reads the current stock and reorder point for the given items.
func (s *Inventory) StockLevels(ctx context.Context, itemIDs []string) (map[string]checkout.Level, error) {
	if s == nil || s.pool == nil {
		return nil, ErrUnavailable
	}
	rows, err := s.pool.Query(ctx, `SELECT id, stock, reorder_point FROM inventory_items WHERE id = ANY($1)`, itemIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	levels := make(map[string]checkout.Level, len(itemIDs))
	for rows.Next() {
		var id string
		var level checkout.Level
		if err := rows.Scan(&id, &level.Stock, &level.ReorderPoint); err != nil {
			return nil, err
		}
		levels[id] = level
	}
	return levels, rows.Err()
}

// DecrementStock applies a sale decrement with a guard that keeps stock
// non-negative. The read-then-write race is closed by the condition on the
// UPDATE itself.
func (s *Inventory) DecrementStock(ctx context.Context, itemID string, qty int32) (int32, error) {
	if s == nil || s.pool == nil {
		return 0, ErrUnavailable
	}
	return s.moveStock(ctx, itemID, -qty, "sale",
		`UPDATE inventory_items SET stock = stock - $2, updated_at = now()
WHERE id = $1 AND stock >= $2
RETURNING stock`, qty)
}

// IncrementStock restores stock, used by checkout compensation.
func (s *Inventory) IncrementStock(ctx context.Context, itemID string, qty int32) (int32, error) {
	if s == nil || s.pool == nil {
		return 0, ErrUnavailable
	}
	return s.moveStock(ctx, itemID, qty, "compensation",
		`UPDATE inventory_items SET stock = stock + $2, updated_at = now()
WHERE id = $1
RETURNING stock`, qty)
}

func (s *Inventory) moveStock(ctx context.Context, itemID string, delta int32, reason, query string, qty int32) (int32, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return 0, err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	var newStock int32
	if err := tx.QueryRow(ctx, query, itemID, qty).Scan(&newStock); err != nil {
		if !errors.Is(err, pgx.ErrNoRows) {
			return 0, err
		}
		// The guarded UPDATE matched nothing: either the item is gone or
		// the decrement would have driven stock negative.
		var exists bool
		if checkErr := s.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM inventory_items WHERE id = $1)`, itemID).Scan(&exists); checkErr != nil {
			return 0, checkErr
		}
		if !exists {
			return 0, inventory.ErrNotFound
		}
		return 0, inventory.ErrInsufficientStock
	}
	if _, err := tx.Exec(ctx, `INSERT INTO stock_movements (item_id, delta, new_stock, reason)
VALUES ($1, $2, $3, $4)`, itemID, delta, newStock, reason); err != nil {
		return 0, err
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, err
	}
	return newStock, nil
}
