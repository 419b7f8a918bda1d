package queue

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/noah-isme/backend-pos/internal/common"
	"github.com/noah-isme/backend-pos/internal/ledger"
	"github.com/noah-isme/backend-pos/internal/member"
)

type stubMembers struct {
	m   member.Member
	err error
}

func (s stubMembers) Get(ctx context.Context, memberID string) (member.Member, error) {
	if s.err != nil {
		return member.Member{}, s.err
	}
	return s.m, nil
}

func receiptTask(t *testing.T, tx ledger.Transaction) Task {
	t.Helper()
	payload, err := json.Marshal(tx)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return Task{Kind: KindReceiptEmail, Payload: payload}
}

func TestReceiptMailerSendsToMember(t *testing.T) {
	outbox := &common.InMemoryEmail{}
	memberID := "mem_1"
	h := ReceiptMailer{
		Email:     outbox,
		Members:   stubMembers{m: member.Member{MemberID: memberID, Email: "aina@example.com"}},
		StoreName: "Kopi & Co",
	}
	tx := ledger.Transaction{
		TransactionID: "tx_1",
		Timestamp:     time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC),
		MemberID:      &memberID,
		PaymentMethod: "card",
		Currency:      "MYR",
		Lines:         []ledger.Line{{ItemID: "itm_1", Name: "Coffee", Qty: 2, UnitPrice: 1000}},
		Subtotal:      2000,
		Tax:           120,
		Total:         2120,
	}

	if err := h.Handle(context.Background(), receiptTask(t, tx)); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if len(outbox.Outbox) != 1 {
		t.Fatalf("emails sent = %d, want 1", len(outbox.Outbox))
	}
	sent := outbox.Outbox[0]
	if sent.To != "aina@example.com" {
		t.Fatalf("to = %q", sent.To)
	}
	if !strings.Contains(sent.Body, "tx_1") || !strings.Contains(sent.Body, "Coffee") {
		t.Fatalf("receipt body missing expected content:\n%s", sent.Body)
	}
	if !strings.Contains(sent.Body, "21.20") {
		t.Fatalf("receipt body missing total:\n%s", sent.Body)
	}
}

func TestReceiptMailerSkipsWalkIns(t *testing.T) {
	outbox := &common.InMemoryEmail{}
	h := ReceiptMailer{Email: outbox, Members: stubMembers{}, StoreName: "Kopi & Co"}

	tx := ledger.Transaction{TransactionID: "tx_2", PaymentMethod: "cash"}
	if err := h.Handle(context.Background(), receiptTask(t, tx)); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if len(outbox.Outbox) != 0 {
		t.Fatal("walk-in sale must not send email")
	}
}

func TestReorderNotifierDecodes(t *testing.T) {
	h := ReorderNotifier{Log: zerolog.Nop()}
	payload := []byte(`{"itemId":"itm_1","stock":2,"reorderPoint":5}`)
	if err := h.Handle(context.Background(), Task{Kind: KindReorderNotice, Payload: payload}); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if err := h.Handle(context.Background(), Task{Kind: KindReorderNotice, Payload: []byte("bogus")}); err == nil {
		t.Fatal("expected decode error")
	}
}
