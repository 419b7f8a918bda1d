package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/noah-isme/backend-pos/internal/loyalty"
	"github.com/noah-isme/backend-pos/internal/pricing"
)

// ErrDuplicate indicates a transaction id was appended twice.
var ErrDuplicate = errors.New("transaction already recorded")

// ErrValidation indicates the transaction payload is not acceptable.
var ErrValidation = errors.New("invalid transaction")

// Line is one purchased item on a recorded transaction.
type Line struct {
	ItemID      string        `json:"itemId"`
	Name        string        `json:"name"`
	Qty         int           `json:"quantity"`
	UnitPrice   pricing.Money `json:"unitPrice"`
	DiscountBps int32         `json:"discountBps"`
}

// Transaction is an immutable, append-only sales record.
type Transaction struct {
	TransactionID string           `json:"transactionId"`
	Timestamp     time.Time        `json:"timestamp"`
	CustomerName  string           `json:"customerName"`
	MemberID      *string          `json:"memberId,omitempty"`
	PaymentMethod string           `json:"paymentMethod"`
	Currency      string           `json:"currency"`
	Lines         []Line           `json:"lineItems"`
	Subtotal      pricing.Money    `json:"subtotal"`
	Discount      pricing.Money    `json:"discountAmount"`
	Tax           pricing.Money    `json:"tax"`
	Total         pricing.Money    `json:"totalAmount"`
	Accrual       *loyalty.Accrual `json:"memberAccrual,omitempty"`
}

// DailyTotal is one day of the sales report.
type DailyTotal struct {
	Day     time.Time     `json:"day"`
	Orders  int64         `json:"orders"`
	Revenue pricing.Money `json:"revenue"`
}

// TopItem ranks an item by quantity sold in the report window.
type TopItem struct {
	ItemID  string `json:"itemId"`
	Name    string `json:"name"`
	QtySold int64  `json:"qtySold"`
}

// Store is the persistence contract for the sales ledger.
type Store interface {
	Append(ctx context.Context, tx Transaction) error
	List(ctx context.Context, from, to time.Time, limit int32) ([]Transaction, error)
	DailyTotals(ctx context.Context, from, to time.Time) ([]DailyTotal, error)
	TopItems(ctx context.Context, from, to time.Time, limit int32) ([]TopItem, error)
}

// Report aggregates the date-ranged sales view rendered by the back office.
type Report struct {
	From     time.Time     `json:"from"`
	To       time.Time     `json:"to"`
	Orders   int64         `json:"orders"`
	Revenue  pricing.Money `json:"revenue"`
	Daily    []DailyTotal  `json:"daily"`
	TopItems []TopItem     `json:"topItems"`
}

// Service provides cached, read access to the ledger plus the append used by
// checkout. Reports are cached briefly since the register polls them.
type Service struct {
	Store        Store
	R            *redis.Client
	TTL          time.Duration
	DefaultRange int
	Now          func() time.Time
}

func (s *Service) now() time.Time {
	if s != nil && s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func cacheKey(parts ...any) string {
	formatted := make([]string, 0, len(parts))
	for _, part := range parts {
		formatted = append(formatted, fmt.Sprint(part))
	}
	return strings.Join(formatted, ":")
}

// Append records a completed transaction.
func (s *Service) Append(ctx context.Context, tx Transaction) error {
	if s == nil || s.Store == nil {
		return errors.New("ledger service not configured")
	}
	if strings.TrimSpace(tx.TransactionID) == "" || len(tx.Lines) == 0 {
		return fmt.Errorf("transaction id and line items are required: %w", ErrValidation)
	}
	return s.Store.Append(ctx, tx)
}

// List returns recent transactions inside the window, newest first.
func (s *Service) List(ctx context.Context, from, to time.Time, limit int32) ([]Transaction, error) {
	if s == nil || s.Store == nil {
		return nil, errors.New("ledger service not configured")
	}
	from, to = s.normalizeRange(from, to)
	if limit <= 0 {
		limit = 100
	}
	return s.Store.List(ctx, from, to, limit)
}

// SalesReport builds the cached report for the window.
func (s *Service) SalesReport(ctx context.Context, from, to time.Time) (Report, error) {
	if s == nil || s.Store == nil {
		return Report{}, errors.New("ledger service not configured")
	}
	from, to = s.normalizeRange(from, to)
	key := cacheKey("pos", "report", from.Format("2006-01-02"), to.Format("2006-01-02"))
	if report, ok := s.fromCache(ctx, key); ok {
		return report, nil
	}
	daily, err := s.Store.DailyTotals(ctx, from, to)
	if err != nil {
		return Report{}, err
	}
	top, err := s.Store.TopItems(ctx, from, to, 10)
	if err != nil {
		return Report{}, err
	}
	report := Report{From: from, To: to, Daily: daily, TopItems: top}
	for _, d := range daily {
		report.Orders += d.Orders
		report.Revenue += d.Revenue
	}
	s.store(ctx, key, report)
	return report, nil
}

func (s *Service) normalizeRange(from, to time.Time) (time.Time, time.Time) {
	rangeDays := s.DefaultRange
	if rangeDays <= 0 {
		rangeDays = 30
	}
	if to.IsZero() {
		to = s.now()
	}
	if from.IsZero() || from.After(to) {
		from = to.AddDate(0, 0, -rangeDays)
	}
	return from, to
}

func (s *Service) fromCache(ctx context.Context, key string) (Report, bool) {
	if s.R == nil || s.TTL <= 0 {
		return Report{}, false
	}
	data, err := s.R.Get(ctx, key).Bytes()
	if err != nil {
		return Report{}, false
	}
	var report Report
	if err := json.Unmarshal(data, &report); err != nil {
		return Report{}, false
	}
	return report, true
}

func (s *Service) store(ctx context.Context, key string, value any) {
	if s.R == nil || s.TTL <= 0 {
		return
	}
	data, err := json.Marshal(value)
	if err != nil {
		return
	}
	_ = s.R.Set(ctx, key, data, s.TTL).Err()
}
