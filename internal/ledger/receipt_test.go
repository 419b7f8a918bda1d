package ledger

import (
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/noah-isme/backend-pos/internal/loyalty"
)

func TestRenderReceipt(t *testing.T) {
	memberID := "mem_1"
	tx := Transaction{
		TransactionID: "tx_9",
		Timestamp:     time.Date(2026, 8, 1, 12, 30, 0, 0, time.UTC),
		CustomerName:  "Aina",
		MemberID:      &memberID,
		PaymentMethod: "card",
		Currency:      "MYR",
		Lines: []Line{
			{ItemID: "itm_coffee", Name: "Caffe Latte", Qty: 2, UnitPrice: 1200},
			{ItemID: "itm_toast", Name: "Kaya Toast", Qty: 1, UnitPrice: 480, DiscountBps: 2000},
		},
		Subtotal: 2880,
		Discount: 96,
		Tax:      167,
		Total:    2951,
		Accrual:  &loyalty.Accrual{PointsEarned: 28, NewBalance: 128},
	}

	out := RenderReceipt("Kopi & Co", tx)
	for _, want := range []string{
		"Kopi & Co",
		"tx_9",
		"Customer: Aina",
		"Caffe Latte",
		"Kaya Toast",
		"29.51",
		"Paid by card",
		"Points earned: 28 (balance 128)",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("receipt missing %q:\n%s", want, out)
		}
	}
}

func TestRenderReceiptMultibyteNames(t *testing.T) {
	tx := Transaction{
		TransactionID: "tx_11",
		Timestamp:     time.Date(2026, 8, 1, 9, 0, 0, 0, time.UTC),
		PaymentMethod: "cash",
		Currency:      "MYR",
		Lines: []Line{
			// 23 runes, all multi-byte: must truncate at a rune boundary.
			{ItemID: "itm_tea", Name: "特製凍檸茶特製凍檸茶特製凍檸茶特製凍檸茶特製凍", Qty: 1, UnitPrice: 650},
		},
		Subtotal: 650,
		Tax:      39,
		Total:    689,
	}
	out := RenderReceipt("Kafe 咖啡店", tx)
	if !utf8.ValidString(out) {
		t.Fatalf("receipt contains invalid UTF-8:\n%s", out)
	}
	if !strings.Contains(out, "…") {
		t.Fatalf("long name was not truncated:\n%s", out)
	}
}

func TestRenderReceiptWalkIn(t *testing.T) {
	tx := Transaction{
		TransactionID: "tx_10",
		Timestamp:     time.Date(2026, 8, 1, 9, 0, 0, 0, time.UTC),
		PaymentMethod: "cash",
		Currency:      "MYR",
		Lines:         []Line{{ItemID: "itm_teh", Name: "Teh Tarik", Qty: 1, UnitPrice: 500}},
		Subtotal:      500,
		Tax:           30,
		Total:         530,
	}
	out := RenderReceipt("Kopi & Co", tx)
	if strings.Contains(out, "Points earned") {
		t.Fatalf("walk-in receipt must not mention points:\n%s", out)
	}
	if strings.Contains(out, "Customer:") {
		t.Fatalf("unnamed sale must not print a customer line:\n%s", out)
	}
}
