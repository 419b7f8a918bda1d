package cart_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/noah-isme/backend-pos/internal/cart"
	"github.com/noah-isme/backend-pos/internal/discount"
	"github.com/noah-isme/backend-pos/internal/inventory"
)

type stubCatalog struct {
	items map[string]inventory.Item
}

func (s *stubCatalog) Get(_ context.Context, id string) (inventory.Item, error) {
	item, ok := s.items[id]
	if !ok {
		return inventory.Item{}, inventory.ErrNotFound
	}
	return item, nil
}

func newTestService(t *testing.T) (*cart.Service, *stubCatalog) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	catalog := &stubCatalog{items: map[string]inventory.Item{
		"latte":     {ID: "latte", Name: "Latte", Price: 1000, Stock: 5},
		"croissant": {ID: "croissant", Name: "Croissant", Price: 500, Stock: 2},
		"gone":      {ID: "gone", Name: "Sold Out", Price: 300, Stock: 0},
	}}
	svc := &cart.Service{
		R:       rdb,
		Catalog: catalog,
		Codes:   discount.DefaultTable(),
		TTL:     time.Hour,
	}
	return svc, catalog
}

func TestAddItemIncrementsExistingLine(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	if _, err := svc.AddItem(ctx, "s1", "latte", 2); err != nil {
		t.Fatalf("first add: %v", err)
	}
	c, err := svc.AddItem(ctx, "s1", "latte", 1)
	if err != nil {
		t.Fatalf("second add: %v", err)
	}
	if len(c.Lines) != 1 {
		t.Fatalf("expected a single line, got %d", len(c.Lines))
	}
	if c.Lines[0].Qty != 3 {
		t.Fatalf("qty = %d, want 3", c.Lines[0].Qty)
	}
	if c.Version != 2 {
		t.Fatalf("version = %d, want 2", c.Version)
	}
}

func TestAddItemRejectsBeyondStock(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	if _, err := svc.AddItem(ctx, "s1", "croissant", 2); err != nil {
		t.Fatalf("add: %v", err)
	}
	if _, err := svc.AddItem(ctx, "s1", "croissant", 1); !errors.Is(err, cart.ErrOutOfStock) {
		t.Fatalf("expected ErrOutOfStock, got %v", err)
	}
	if _, err := svc.AddItem(ctx, "s2", "gone", 1); !errors.Is(err, cart.ErrOutOfStock) {
		t.Fatalf("expected ErrOutOfStock for zero-stock item, got %v", err)
	}
}

func TestDecreaseToZeroRemovesLine(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	if _, err := svc.AddItem(ctx, "s1", "latte", 1); err != nil {
		t.Fatalf("add: %v", err)
	}
	c, err := svc.DecreaseQty(ctx, "s1", "latte")
	if err != nil {
		t.Fatalf("decrease: %v", err)
	}
	if len(c.Lines) != 0 {
		t.Fatalf("expected empty cart, got %d lines", len(c.Lines))
	}
}

func TestApplyCodeStampsEveryLine(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	if _, err := svc.AddItem(ctx, "s1", "latte", 1); err != nil {
		t.Fatalf("add latte: %v", err)
	}
	if _, err := svc.AddItem(ctx, "s1", "croissant", 1); err != nil {
		t.Fatalf("add croissant: %v", err)
	}

	c, resolved, err := svc.ApplyCode(ctx, "s1", "save20")
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if !resolved {
		t.Fatal("expected SAVE20 to resolve")
	}
	for _, ln := range c.Lines {
		if ln.DiscountBps != 2000 {
			t.Fatalf("line %s discount = %d, want 2000", ln.ItemID, ln.DiscountBps)
		}
	}

	// last applied code wins; codes do not stack
	c, resolved, err = svc.ApplyCode(ctx, "s1", "SAVE10")
	if err != nil || !resolved {
		t.Fatalf("apply SAVE10: resolved=%v err=%v", resolved, err)
	}
	for _, ln := range c.Lines {
		if ln.DiscountBps != 1000 {
			t.Fatalf("line %s discount = %d, want 1000", ln.ItemID, ln.DiscountBps)
		}
	}
}

func TestApplyUnknownCodeIsNoop(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	if _, err := svc.AddItem(ctx, "s1", "latte", 1); err != nil {
		t.Fatalf("add: %v", err)
	}
	c, resolved, err := svc.ApplyCode(ctx, "s1", "BOGUS")
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if resolved {
		t.Fatal("unknown code must not resolve")
	}
	if c.Lines[0].DiscountBps != 0 {
		t.Fatalf("discount = %d, want 0", c.Lines[0].DiscountBps)
	}
}

func TestClearIfVersion(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	if _, err := svc.AddItem(ctx, "s1", "latte", 1); err != nil {
		t.Fatalf("add: %v", err)
	}
	c, err := svc.AddItem(ctx, "s1", "croissant", 1)
	if err != nil {
		t.Fatalf("add: %v", err)
	}

	// A stale snapshot version must leave the cart alone.
	cleared, err := svc.ClearIfVersion(ctx, "s1", c.Version-1)
	if err != nil {
		t.Fatalf("stale clear: %v", err)
	}
	if cleared {
		t.Fatal("stale version must not clear the cart")
	}
	kept, err := svc.Get(ctx, "s1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(kept.Lines) != 2 {
		t.Fatalf("lines = %d, want 2 after refused clear", len(kept.Lines))
	}

	cleared, err = svc.ClearIfVersion(ctx, "s1", c.Version)
	if err != nil {
		t.Fatalf("clear: %v", err)
	}
	if !cleared {
		t.Fatal("matching version must clear the cart")
	}

	// A missing cart counts as cleared.
	cleared, err = svc.ClearIfVersion(ctx, "s2", 7)
	if err != nil {
		t.Fatalf("clear missing: %v", err)
	}
	if !cleared {
		t.Fatal("missing cart counts as cleared")
	}
}

func TestClearAndGetEmpty(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	if _, err := svc.AddItem(ctx, "s1", "latte", 1); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := svc.Clear(ctx, "s1"); err != nil {
		t.Fatalf("clear: %v", err)
	}
	c, err := svc.Get(ctx, "s1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(c.Lines) != 0 || c.Version != 0 {
		t.Fatalf("expected pristine cart, got %+v", c)
	}
}
