package queue

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/noah-isme/backend-pos/internal/common"
	"github.com/noah-isme/backend-pos/internal/ledger"
	"github.com/noah-isme/backend-pos/internal/member"
)

// MemberReader resolves the email address for receipt delivery.
type MemberReader interface {
	Get(ctx context.Context, memberID string) (member.Member, error)
}

// ReceiptMailer renders and emails a receipt for a completed checkout. The
// task payload is the full transaction carried on checkout.completed.
type ReceiptMailer struct {
	Email     common.EmailSender
	Members   MemberReader
	StoreName string
}

// Handle sends the receipt. Transactions without a member (or a member
// without an email) are acked without sending; there is nowhere to deliver.
func (h ReceiptMailer) Handle(ctx context.Context, t Task) error {
	var tx ledger.Transaction
	if err := json.Unmarshal(t.Payload, &tx); err != nil {
		return fmt.Errorf("decode transaction: %w", err)
	}
	if tx.MemberID == nil || h.Members == nil {
		return nil
	}
	m, err := h.Members.Get(ctx, *tx.MemberID)
	if err != nil {
		return fmt.Errorf("resolve member %s: %w", *tx.MemberID, err)
	}
	if m.Email == "" {
		return nil
	}
	subject := fmt.Sprintf("Your receipt from %s (%s)", h.StoreName, tx.TransactionID)
	body := ledger.RenderReceipt(h.StoreName, tx)
	if err := h.Email.Send(m.Email, subject, body); err != nil {
		return fmt.Errorf("send receipt: %w", err)
	}
	return nil
}

type lowStockPayload struct {
	ItemID       string `json:"itemId"`
	Stock        int32  `json:"stock"`
	ReorderPoint int32  `json:"reorderPoint"`
}

// ReorderNotifier logs reorder notices for items that crossed their reorder
// point. Purchasing watches this log; there is no supplier integration.
type ReorderNotifier struct {
	Log zerolog.Logger
}

// Handle records the notice.
func (h ReorderNotifier) Handle(ctx context.Context, t Task) error {
	var p lowStockPayload
	if err := json.Unmarshal(t.Payload, &p); err != nil {
		return fmt.Errorf("decode low stock payload: %w", err)
	}
	h.Log.Warn().
		Str("item_id", p.ItemID).
		Int32("stock", p.Stock).
		Int32("reorder_point", p.ReorderPoint).
		Msg("item at or below reorder point")
	return nil
}
