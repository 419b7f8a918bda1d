package ledger_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/noah-isme/backend-pos/internal/ledger"
)

type stubStore struct {
	dailyCalls int
	topCalls   int
	appended   []ledger.Transaction
}

func (s *stubStore) Append(_ context.Context, tx ledger.Transaction) error {
	s.appended = append(s.appended, tx)
	return nil
}

func (s *stubStore) List(context.Context, time.Time, time.Time, int32) ([]ledger.Transaction, error) {
	return nil, nil
}

func (s *stubStore) DailyTotals(_ context.Context, from, _ time.Time) ([]ledger.DailyTotal, error) {
	s.dailyCalls++
	return []ledger.DailyTotal{
		{Day: from, Orders: 2, Revenue: 5088},
		{Day: from.AddDate(0, 0, 1), Orders: 1, Revenue: 2544},
	}, nil
}

func (s *stubStore) TopItems(context.Context, time.Time, time.Time, int32) ([]ledger.TopItem, error) {
	s.topCalls++
	return []ledger.TopItem{{ItemID: "a", Name: "Americano", QtySold: 6}}, nil
}

func TestSalesReportCached(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	defer mr.Close()
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	store := &stubStore{}
	svc := &ledger.Service{Store: store, R: rdb, TTL: time.Minute}
	from := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 0, 7)

	first, err := svc.SalesReport(context.Background(), from, to)
	if err != nil {
		t.Fatalf("first call: %v", err)
	}
	if first.Orders != 3 || first.Revenue != 7632 {
		t.Fatalf("unexpected aggregates: %+v", first)
	}
	if _, err := svc.SalesReport(context.Background(), from, to); err != nil {
		t.Fatalf("second call: %v", err)
	}
	if store.dailyCalls != 1 || store.topCalls != 1 {
		t.Fatalf("expected 1 store call each, got daily=%d top=%d", store.dailyCalls, store.topCalls)
	}
}

func TestAppendValidation(t *testing.T) {
	svc := &ledger.Service{Store: &stubStore{}}
	err := svc.Append(context.Background(), ledger.Transaction{})
	if err == nil {
		t.Fatal("expected validation error for empty transaction")
	}
}
