package checkout

import (
	"fmt"
	"sort"
	"strings"

	"github.com/noah-isme/backend-pos/internal/cart"
)

// StockWrite is one pending inventory decrement produced by a reservation.
// NewStock is the level the write expects to leave behind, computed from the
// snapshot the reservation was planned against.
type StockWrite struct {
	ItemID   string
	Qty      int32
	NewStock int32
}

// InsufficientStockError lists every item whose requested quantity exceeds
// the available stock. A reservation is all-or-nothing: one short item fails
// the whole plan.
type InsufficientStockError struct {
	ItemIDs []string
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for items: %s", strings.Join(e.ItemIDs, ", "))
}

// Reserve plans the stock decrements for a cart snapshot against the given
// stock levels. All lines are validated before any write is planned; the
// returned writes preserve cart line order.
func Reserve(lines []cart.Line, stock map[string]int32) ([]StockWrite, error) {
	if len(lines) == 0 {
		return nil, ErrEmptyCart
	}
	needed := make(map[string]int32, len(lines))
	order := make([]string, 0, len(lines))
	for _, line := range lines {
		if line.Qty <= 0 {
			return nil, fmt.Errorf("line %q has non-positive quantity", line.ItemID)
		}
		if _, seen := needed[line.ItemID]; !seen {
			order = append(order, line.ItemID)
		}
		needed[line.ItemID] += int32(line.Qty)
	}

	var short []string
	for id, qty := range needed {
		available, ok := stock[id]
		if !ok || available < qty {
			short = append(short, id)
		}
	}
	if len(short) > 0 {
		sort.Strings(short)
		return nil, &InsufficientStockError{ItemIDs: short}
	}

	writes := make([]StockWrite, 0, len(order))
	for _, id := range order {
		writes = append(writes, StockWrite{
			ItemID:   id,
			Qty:      needed[id],
			NewStock: stock[id] - needed[id],
		})
	}
	return writes, nil
}
