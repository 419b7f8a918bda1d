package ledger

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/noah-isme/backend-pos/internal/pricing"
)

// RenderReceipt formats a transaction as the plain-text receipt printed at
// the register and attached to receipt emails. Amounts are rendered in major
// units with two decimals.
func RenderReceipt(storeName string, tx Transaction) string {
	var b strings.Builder
	width := 38

	center := func(s string) {
		if pad := (width - utf8.RuneCountInString(s)) / 2; pad > 0 {
			b.WriteString(strings.Repeat(" ", pad))
		}
		b.WriteString(s)
		b.WriteByte('\n')
	}
	center(storeName)
	center(tx.Timestamp.Format("2006-01-02 15:04"))
	b.WriteString(strings.Repeat("-", width))
	b.WriteByte('\n')
	b.WriteString(fmt.Sprintf("Receipt %s\n", tx.TransactionID))
	if tx.CustomerName != "" {
		b.WriteString(fmt.Sprintf("Customer: %s\n", tx.CustomerName))
	}
	b.WriteString(strings.Repeat("-", width))
	b.WriteByte('\n')

	for _, line := range tx.Lines {
		b.WriteString(fmt.Sprintf("%s %3dx %9s\n", padRight(truncate(line.Name, 22), 22), line.Qty, formatMoney(line.UnitPrice)))
		if line.DiscountBps > 0 {
			b.WriteString(fmt.Sprintf("  discount %37s\n", fmt.Sprintf("-%d.%02d%%", line.DiscountBps/100, line.DiscountBps%100)))
		}
	}

	b.WriteString(strings.Repeat("-", width))
	b.WriteByte('\n')
	writeAmount(&b, width, "Subtotal", tx.Subtotal)
	if tx.Discount > 0 {
		writeAmount(&b, width, "Discount", -tx.Discount)
	}
	writeAmount(&b, width, "Tax", tx.Tax)
	writeAmount(&b, width, "Total "+tx.Currency, tx.Total)
	b.WriteString(strings.Repeat("-", width))
	b.WriteByte('\n')
	b.WriteString(fmt.Sprintf("Paid by %s\n", tx.PaymentMethod))
	if tx.Accrual != nil {
		b.WriteString(fmt.Sprintf("Points earned: %d (balance %d)\n", tx.Accrual.PointsEarned, tx.Accrual.NewBalance))
	}
	center("Thank you!")
	return b.String()
}

func writeAmount(b *strings.Builder, width int, label string, amount pricing.Money) {
	value := formatMoney(amount)
	pad := width - len(label) - len(value)
	if pad < 1 {
		pad = 1
	}
	b.WriteString(label)
	b.WriteString(strings.Repeat(" ", pad))
	b.WriteString(value)
	b.WriteByte('\n')
}

func formatMoney(amount pricing.Money) string {
	sign := ""
	if amount < 0 {
		sign = "-"
		amount = -amount
	}
	return fmt.Sprintf("%s%d.%02d", sign, amount/100, amount%100)
}

// truncate and padRight count runes, not bytes; item names are not ASCII.
func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max-1]) + "…"
}

func padRight(s string, width int) string {
	if pad := width - utf8.RuneCountInString(s); pad > 0 {
		return s + strings.Repeat(" ", pad)
	}
	return s
}
