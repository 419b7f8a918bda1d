package checkout

import (
	"errors"
	"reflect"
	"testing"

	"github.com/noah-isme/backend-pos/internal/cart"
)

func TestReservePlansWritesInLineOrder(t *testing.T) {
	lines := []cart.Line{
		{ItemID: "itm_coffee", Qty: 2},
		{ItemID: "itm_tea", Qty: 1},
	}
	stock := map[string]int32{"itm_coffee": 10, "itm_tea": 3}

	writes, err := Reserve(lines, stock)
	if err != nil {
		t.Fatalf("Reserve: %v", err)
	}
	want := []StockWrite{
		{ItemID: "itm_coffee", Qty: 2, NewStock: 8},
		{ItemID: "itm_tea", Qty: 1, NewStock: 2},
	}
	if !reflect.DeepEqual(writes, want) {
		t.Fatalf("writes = %+v, want %+v", writes, want)
	}
}

func TestReserveMergesDuplicateLines(t *testing.T) {
	lines := []cart.Line{
		{ItemID: "itm_coffee", Qty: 2},
		{ItemID: "itm_coffee", Qty: 3},
	}
	writes, err := Reserve(lines, map[string]int32{"itm_coffee": 5})
	if err != nil {
		t.Fatalf("Reserve: %v", err)
	}
	if len(writes) != 1 || writes[0].Qty != 5 || writes[0].NewStock != 0 {
		t.Fatalf("writes = %+v, want one merged write of qty 5", writes)
	}
}

func TestReserveAllOrNothing(t *testing.T) {
	lines := []cart.Line{
		{ItemID: "itm_coffee", Qty: 2},
		{ItemID: "itm_tea", Qty: 5},
		{ItemID: "itm_unknown", Qty: 1},
	}
	stock := map[string]int32{"itm_coffee": 10, "itm_tea": 3}

	writes, err := Reserve(lines, stock)
	if writes != nil {
		t.Fatalf("expected no writes, got %+v", writes)
	}
	var short *InsufficientStockError
	if !errors.As(err, &short) {
		t.Fatalf("err = %v, want InsufficientStockError", err)
	}
	want := []string{"itm_tea", "itm_unknown"}
	if !reflect.DeepEqual(short.ItemIDs, want) {
		t.Fatalf("short items = %v, want %v", short.ItemIDs, want)
	}
}

func TestReserveEmptyAndInvalid(t *testing.T) {
	if _, err := Reserve(nil, nil); !errors.Is(err, ErrEmptyCart) {
		t.Fatalf("err = %v, want ErrEmptyCart", err)
	}
	lines := []cart.Line{{ItemID: "itm_coffee", Qty: 0}}
	if _, err := Reserve(lines, map[string]int32{"itm_coffee": 5}); err == nil {
		t.Fatal("expected error for zero quantity line")
	}
}
