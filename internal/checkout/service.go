package checkout

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/noah-isme/backend-pos/internal/cart"
	"github.com/noah-isme/backend-pos/internal/events"
	"github.com/noah-isme/backend-pos/internal/inventory"
	"github.com/noah-isme/backend-pos/internal/ledger"
	"github.com/noah-isme/backend-pos/internal/lock"
	"github.com/noah-isme/backend-pos/internal/loyalty"
	"github.com/noah-isme/backend-pos/internal/member"
	"github.com/noah-isme/backend-pos/internal/obs"
	"github.com/noah-isme/backend-pos/internal/pricing"
)

// ErrEmptyCart is returned when checkout is attempted on an empty cart.
var ErrEmptyCart = errors.New("cart is empty")

// ErrInvalidPayment is returned for an unsupported payment method.
var ErrInvalidPayment = errors.New("unsupported payment method")

// ErrCheckoutInFlight is returned when a checkout already holds the session.
var ErrCheckoutInFlight = errors.New("checkout already in progress for session")

// ErrInvalidInput is returned when the request payload is invalid.
var ErrInvalidInput = errors.New("invalid input")

// PersistenceError reports a commit that failed after stock writes began.
// Applied lists item ids whose stock was decremented; Compensated lists
// those successfully restored. Any id in Applied but not in Compensated
// needs manual reconciliation.
type PersistenceError struct {
	Applied     []string
	Compensated []string
	Err         error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("checkout persistence failed (applied=%d compensated=%d): %v",
		len(e.Applied), len(e.Compensated), e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// Level is a point-in-time stock reading for one item.
type Level struct {
	Stock        int32
	ReorderPoint int32
}

// InventoryStore is the stock contract used by the orchestrator. Decrements
// are conditional: the store must refuse any write that would drive stock
// negative and return inventory.ErrInsufficientStock in that case.
type InventoryStore interface {
	StockLevels(ctx context.Context, itemIDs []string) (map[string]Level, error)
	DecrementStock(ctx context.Context, itemID string, qty int32) (int32, error)
	IncrementStock(ctx context.Context, itemID string, qty int32) (int32, error)
}

// MemberStore resolves loyalty members and persists their balances.
type MemberStore interface {
	Get(ctx context.Context, memberID string) (member.Member, error)
	SetPoints(ctx context.Context, memberID string, balance int64) error
}

// LedgerStore appends committed transactions.
type LedgerStore interface {
	Append(ctx context.Context, tx ledger.Transaction) error
}

// CartStore reads the session cart snapshot and clears it after commit. The
// clear is version-guarded: a cart mutated after the snapshot was priced must
// not be deleted.
type CartStore interface {
	Get(ctx context.Context, sessionID string) (cart.Cart, error)
	ClearIfVersion(ctx context.Context, sessionID string, version int64) (bool, error)
}

// SessionLocker serializes checkouts per session.
type SessionLocker interface {
	TryWithLock(ctx context.Context, key string, ttl time.Duration, fn func(context.Context) error) error
}

// EventEmitter publishes domain events after commit.
type EventEmitter interface {
	Emit(ctx context.Context, topic, aggregateID string, payload any) (events.Event, error)
}

// Input is a checkout request for one session cart.
type Input struct {
	SessionID     string
	PaymentMethod string
	CustomerName  string
	MemberID      string
}

// Receipt is the result of a committed checkout. Warnings report best-effort
// steps that failed after the sale was recorded.
type Receipt struct {
	Transaction ledger.Transaction `json:"transaction"`
	Warnings    []string           `json:"warnings,omitempty"`
}

// Service orchestrates checkout: price the cart snapshot, reserve and write
// stock, append the ledger record, then accrue points and emit events. Stock
// writes carry compensations; if the ledger append fails every applied
// decrement is restored in reverse order.
type Service struct {
	Carts     CartStore
	Inventory InventoryStore
	Members   MemberStore
	Ledger    LedgerStore
	Locks     SessionLocker
	Events    EventEmitter

	TaxBps   int
	Currency string
	LockTTL  time.Duration

	Now   func() time.Time
	NewID func() string
}

func (s *Service) now() time.Time {
	if s != nil && s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *Service) newID() string {
	if s != nil && s.NewID != nil {
		return s.NewID()
	}
	return "tx_" + uuid.NewString()
}

func (s *Service) lockTTL() time.Duration {
	if s == nil || s.LockTTL <= 0 {
		return 30 * time.Second
	}
	return s.LockTTL
}

func validPayment(method string) bool {
	switch method {
	case "card", "cash", "ewallet":
		return true
	}
	return false
}

// Checkout runs the full orchestration for one session. A second call while
// the session lock is held fails with ErrCheckoutInFlight without touching
// any store.
func (s *Service) Checkout(ctx context.Context, in Input) (Receipt, error) {
	if s == nil || s.Carts == nil || s.Inventory == nil || s.Ledger == nil || s.Locks == nil {
		return Receipt{}, errors.New("checkout service not configured")
	}
	started := s.now()

	in.SessionID = strings.TrimSpace(in.SessionID)
	if in.SessionID == "" {
		return Receipt{}, fmt.Errorf("session id required: %w", ErrInvalidInput)
	}
	if !validPayment(in.PaymentMethod) {
		observeCheckout("invalid_payment", in.PaymentMethod, started, s.now())
		return Receipt{}, fmt.Errorf("%q: %w", in.PaymentMethod, ErrInvalidPayment)
	}

	var receipt Receipt
	err := s.Locks.TryWithLock(ctx, "checkout:sess:"+in.SessionID, s.lockTTL(), func(ctx context.Context) error {
		var runErr error
		receipt, runErr = s.run(ctx, in)
		return runErr
	})
	if errors.Is(err, lock.ErrNotAcquired) {
		observeCheckout("in_flight", in.PaymentMethod, started, s.now())
		return Receipt{}, ErrCheckoutInFlight
	}
	if err != nil {
		observeCheckout("failure", in.PaymentMethod, started, s.now())
		return Receipt{}, err
	}
	observeCheckout("success", in.PaymentMethod, started, s.now())
	return receipt, nil
}

func (s *Service) run(ctx context.Context, in Input) (Receipt, error) {
	log := zerolog.Ctx(ctx)

	snapshot, err := s.Carts.Get(ctx, in.SessionID)
	if err != nil {
		return Receipt{}, fmt.Errorf("load cart: %w", err)
	}
	if len(snapshot.Lines) == 0 {
		return Receipt{}, ErrEmptyCart
	}

	summary := pricing.Price(snapshot.PricingLines(), s.TaxBps)

	// Resolve the member up front so a bad id fails before any stock write.
	var warnings []string
	var mem *member.Member
	if id := strings.TrimSpace(in.MemberID); id != "" {
		if s.Members == nil {
			warnings = append(warnings, "membership unavailable; points not accrued")
		} else {
			m, lookupErr := s.Members.Get(ctx, id)
			if lookupErr != nil {
				if errors.Is(lookupErr, member.ErrNotFound) {
					warnings = append(warnings, fmt.Sprintf("member %s not found; points not accrued", id))
				} else {
					return Receipt{}, fmt.Errorf("resolve member: %w", lookupErr)
				}
			} else {
				mem = &m
			}
		}
	}

	itemIDs := make([]string, 0, len(snapshot.Lines))
	for _, line := range snapshot.Lines {
		itemIDs = append(itemIDs, line.ItemID)
	}
	levels, err := s.Inventory.StockLevels(ctx, itemIDs)
	if err != nil {
		return Receipt{}, fmt.Errorf("read stock levels: %w", err)
	}
	stock := make(map[string]int32, len(levels))
	for id, level := range levels {
		stock[id] = level.Stock
	}
	writes, err := Reserve(snapshot.Lines, stock)
	if err != nil {
		return Receipt{}, err
	}

	// Persisting has begun: detach from client cancellation so a dropped
	// connection cannot leave half the stock writes applied.
	pctx := context.WithoutCancel(ctx)

	applied, newStocks, writeErr := s.applyWrites(pctx, writes)
	if writeErr != nil {
		compensated := s.compensate(pctx, writes, applied)
		var short *InsufficientStockError
		if errors.As(writeErr, &short) && len(applied) == len(compensated) {
			// Lost a cross-session race; all other writes were restored,
			// so this surfaces as a plain stock conflict.
			return Receipt{}, short
		}
		return Receipt{}, &PersistenceError{
			Applied:     writeItemIDs(writes, applied),
			Compensated: compensated,
			Err:         writeErr,
		}
	}

	tx := s.buildTransaction(in, snapshot, summary, mem)
	if err := s.Ledger.Append(pctx, tx); err != nil {
		compensated := s.compensate(pctx, writes, applied)
		return Receipt{}, &PersistenceError{
			Applied:     writeItemIDs(writes, applied),
			Compensated: compensated,
			Err:         fmt.Errorf("ledger append: %w", err),
		}
	}

	// The sale is committed. Everything below is best-effort.
	if mem != nil && tx.Accrual != nil {
		if err := s.Members.SetPoints(pctx, mem.MemberID, tx.Accrual.NewBalance); err != nil {
			log.Warn().Err(err).Str("member_id", mem.MemberID).Msg("points accrual failed")
			warnings = append(warnings, fmt.Sprintf("points accrual for %s failed; balance unchanged", mem.MemberID))
			observeAccrual("failure")
		} else {
			observeAccrual("success")
		}
	}

	s.emitEvents(pctx, tx, writes, newStocks, levels, log)

	cleared, clearErr := s.Carts.ClearIfVersion(pctx, in.SessionID, snapshot.Version)
	switch {
	case clearErr != nil:
		log.Warn().Err(clearErr).Str("session_id", in.SessionID).Msg("cart clear failed")
		warnings = append(warnings, "cart could not be cleared; it may show stale lines")
	case !cleared:
		log.Info().Str("session_id", in.SessionID).Int64("version", snapshot.Version).Msg("cart changed during checkout; left in place")
		warnings = append(warnings, "cart changed during checkout and was kept; purchased lines may still appear")
	}

	return Receipt{Transaction: tx, Warnings: warnings}, nil
}

// applyWrites runs the stock decrements concurrently, one goroutine per
// write. It returns the indexes that were applied and their resulting stock
// levels; the first error is returned for classification.
func (s *Service) applyWrites(ctx context.Context, writes []StockWrite) ([]int, []int32, error) {
	newStocks := make([]int32, len(writes))
	errs := make([]error, len(writes))

	var wg sync.WaitGroup
	for i, w := range writes {
		wg.Add(1)
		go func(i int, w StockWrite) {
			defer wg.Done()
			newStocks[i], errs[i] = s.Inventory.DecrementStock(ctx, w.ItemID, w.Qty)
		}(i, w)
	}
	wg.Wait()

	applied := make([]int, 0, len(writes))
	var firstErr error
	var short []string
	for i, err := range errs {
		switch {
		case err == nil:
			applied = append(applied, i)
			observeStockWrite("success")
		default:
			observeStockWrite("failure")
			if isStockConflict(err) {
				short = append(short, writes[i].ItemID)
			}
			if firstErr == nil {
				firstErr = fmt.Errorf("decrement %s: %w", writes[i].ItemID, err)
			}
		}
	}
	if len(short) > 0 {
		return applied, newStocks, &InsufficientStockError{ItemIDs: short}
	}
	return applied, newStocks, firstErr
}

// compensate restores the applied decrements in reverse order and returns
// the item ids that were successfully restored.
func (s *Service) compensate(ctx context.Context, writes []StockWrite, applied []int) []string {
	log := zerolog.Ctx(ctx)
	compensated := make([]string, 0, len(applied))
	for i := len(applied) - 1; i >= 0; i-- {
		w := writes[applied[i]]
		if _, err := s.Inventory.IncrementStock(ctx, w.ItemID, w.Qty); err != nil {
			log.Error().Err(err).Str("item_id", w.ItemID).Int32("qty", w.Qty).
				Msg("stock compensation failed; manual reconciliation required")
			continue
		}
		if obs.StockCompensationsTotal != nil {
			obs.StockCompensationsTotal.Inc()
		}
		compensated = append(compensated, w.ItemID)
	}
	return compensated
}

func (s *Service) buildTransaction(in Input, snapshot cart.Cart, summary pricing.Summary, mem *member.Member) ledger.Transaction {
	lines := make([]ledger.Line, 0, len(snapshot.Lines))
	for _, l := range snapshot.Lines {
		lines = append(lines, ledger.Line{
			ItemID:      l.ItemID,
			Name:        l.Name,
			Qty:         l.Qty,
			UnitPrice:   l.UnitPrice,
			DiscountBps: l.DiscountBps,
		})
	}
	tx := ledger.Transaction{
		TransactionID: s.newID(),
		Timestamp:     s.now(),
		CustomerName:  strings.TrimSpace(in.CustomerName),
		PaymentMethod: in.PaymentMethod,
		Currency:      s.Currency,
		Lines:         lines,
		Subtotal:      summary.Subtotal,
		Discount:      summary.Discount,
		Tax:           summary.Tax,
		Total:         summary.Total,
	}
	if mem != nil {
		// Points come from the pre-discount, pre-tax subtotal.
		accrual := loyalty.Accrue(summary.Subtotal, mem.Points, mem.PointsMultiplier)
		tx.MemberID = &mem.MemberID
		tx.Accrual = &accrual
	}
	return tx
}

func (s *Service) emitEvents(ctx context.Context, tx ledger.Transaction, writes []StockWrite, newStocks []int32, levels map[string]Level, log *zerolog.Logger) {
	if s.Events == nil {
		return
	}
	// The full transaction rides on the event so the receipt worker never
	// has to read the ledger back.
	if _, err := s.Events.Emit(ctx, events.TopicCheckoutCompleted, tx.TransactionID, tx); err != nil {
		log.Warn().Err(err).Msg("checkout.completed emit failed")
	}

	if tx.Accrual != nil && tx.MemberID != nil {
		accrued := map[string]any{
			"memberId":      *tx.MemberID,
			"pointsEarned":  tx.Accrual.PointsEarned,
			"newBalance":    tx.Accrual.NewBalance,
			"transactionId": tx.TransactionID,
		}
		if _, err := s.Events.Emit(ctx, events.TopicPointsAccrued, *tx.MemberID, accrued); err != nil {
			log.Warn().Err(err).Msg("member.points_accrued emit failed")
		}
	}

	for i, w := range writes {
		level, ok := levels[w.ItemID]
		if !ok || newStocks[i] > level.ReorderPoint {
			continue
		}
		if obs.LowStockTotal != nil {
			obs.LowStockTotal.Inc()
		}
		payload := map[string]any{
			"itemId":       w.ItemID,
			"stock":        newStocks[i],
			"reorderPoint": level.ReorderPoint,
		}
		if _, err := s.Events.Emit(ctx, events.TopicStockLow, w.ItemID, payload); err != nil {
			log.Warn().Err(err).Str("item_id", w.ItemID).Msg("stock.low emit failed")
		}
	}
}

func writeItemIDs(writes []StockWrite, applied []int) []string {
	ids := make([]string, 0, len(applied))
	for _, i := range applied {
		ids = append(ids, writes[i].ItemID)
	}
	return ids
}

func isStockConflict(err error) bool {
	return errors.Is(err, inventory.ErrInsufficientStock)
}

func observeCheckout(result, method string, started, finished time.Time) {
	if obs.CheckoutTotal != nil {
		obs.CheckoutTotal.WithLabelValues(result, method).Inc()
	}
	if obs.CheckoutDuration != nil {
		obs.CheckoutDuration.WithLabelValues(result).Observe(obs.DurationMillis(finished.Sub(started)))
	}
}

func observeStockWrite(result string) {
	if obs.StockWritesTotal != nil {
		obs.StockWritesTotal.WithLabelValues(result).Inc()
	}
}

func observeAccrual(result string) {
	if obs.AccrualTotal != nil {
		obs.AccrualTotal.WithLabelValues(result).Inc()
	}
}
