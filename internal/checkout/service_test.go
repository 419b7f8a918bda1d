package checkout

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/noah-isme/backend-pos/internal/cart"
	"github.com/noah-isme/backend-pos/internal/events"
	"github.com/noah-isme/backend-pos/internal/inventory"
	"github.com/noah-isme/backend-pos/internal/ledger"
	"github.com/noah-isme/backend-pos/internal/lock"
	"github.com/noah-isme/backend-pos/internal/member"
)

type stubCarts struct {
	cart    cart.Cart
	getErr  error
	cleared []string
}

func (s *stubCarts) Get(ctx context.Context, sessionID string) (cart.Cart, error) {
	if s.getErr != nil {
		return cart.Cart{}, s.getErr
	}
	c := s.cart
	c.SessionID = sessionID
	return c, nil
}

func (s *stubCarts) ClearIfVersion(ctx context.Context, sessionID string, version int64) (bool, error) {
	if version != s.cart.Version {
		return false, nil
	}
	s.cleared = append(s.cleared, sessionID)
	return true, nil
}

type stubInventory struct {
	mu         sync.Mutex
	levels     map[string]Level
	failItem   string
	failWith   error
	decrements []string
	increments []string
}

func (s *stubInventory) StockLevels(ctx context.Context, itemIDs []string) (map[string]Level, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]Level, len(itemIDs))
	for _, id := range itemIDs {
		if level, ok := s.levels[id]; ok {
			out[id] = level
		}
	}
	return out, nil
}

func (s *stubInventory) DecrementStock(ctx context.Context, itemID string, qty int32) (int32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if itemID == s.failItem {
		return 0, s.failWith
	}
	level := s.levels[itemID]
	level.Stock -= qty
	s.levels[itemID] = level
	s.decrements = append(s.decrements, itemID)
	return level.Stock, nil
}

func (s *stubInventory) IncrementStock(ctx context.Context, itemID string, qty int32) (int32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	level := s.levels[itemID]
	level.Stock += qty
	s.levels[itemID] = level
	s.increments = append(s.increments, itemID)
	return level.Stock, nil
}

func (s *stubInventory) stock(itemID string) int32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.levels[itemID].Stock
}

type stubMembers struct {
	members   map[string]member.Member
	setErr    error
	setCalls  int
	lastSaved int64
}

func (s *stubMembers) Get(ctx context.Context, memberID string) (member.Member, error) {
	m, ok := s.members[memberID]
	if !ok {
		return member.Member{}, member.ErrNotFound
	}
	return m, nil
}

func (s *stubMembers) SetPoints(ctx context.Context, memberID string, balance int64) error {
	s.setCalls++
	if s.setErr != nil {
		return s.setErr
	}
	s.lastSaved = balance
	return nil
}

type stubLedger struct {
	err      error
	onAppend func()
	appended []ledger.Transaction
}

func (s *stubLedger) Append(ctx context.Context, tx ledger.Transaction) error {
	if s.onAppend != nil {
		s.onAppend()
	}
	if s.err != nil {
		return s.err
	}
	s.appended = append(s.appended, tx)
	return nil
}

type stubLocker struct {
	held  bool
	calls int
}

func (s *stubLocker) TryWithLock(ctx context.Context, key string, ttl time.Duration, fn func(context.Context) error) error {
	s.calls++
	if s.held {
		return lock.ErrNotAcquired
	}
	return fn(ctx)
}

type stubEmitter struct {
	mu     sync.Mutex
	topics []string
}

func (s *stubEmitter) Emit(ctx context.Context, topic, aggregateID string, payload any) (events.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.topics = append(s.topics, topic)
	return events.Event{Topic: topic, AggregateID: aggregateID}, nil
}

func (s *stubEmitter) count(topic string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, t := range s.topics {
		if t == topic {
			n++
		}
	}
	return n
}

func referenceCart() cart.Cart {
	return cart.Cart{
		Lines: []cart.Line{
			{ItemID: "itm_coffee", Name: "Coffee", UnitPrice: 1000, Qty: 2},
			{ItemID: "itm_tea", Name: "Tea", UnitPrice: 500, Qty: 1, DiscountBps: 2000},
		},
		Version: 3,
	}
}

func newTestService(carts *stubCarts, inv *stubInventory, members *stubMembers, led *stubLedger, locker *stubLocker, emitter *stubEmitter) *Service {
	return &Service{
		Carts:     carts,
		Inventory: inv,
		Members:   members,
		Ledger:    led,
		Locks:     locker,
		Events:    emitter,
		TaxBps:    600,
		Currency:  "MYR",
		Now:       func() time.Time { return time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC) },
		NewID:     func() string { return "tx_test" },
	}
}

func TestCheckoutHappyPath(t *testing.T) {
	carts := &stubCarts{cart: referenceCart()}
	inv := &stubInventory{levels: map[string]Level{
		"itm_coffee": {Stock: 10, ReorderPoint: 2},
		"itm_tea":    {Stock: 5, ReorderPoint: 1},
	}}
	members := &stubMembers{members: map[string]member.Member{
		"mem_1": {MemberID: "mem_1", Points: 100, PointsMultiplier: 1.5},
	}}
	led := &stubLedger{}
	emitter := &stubEmitter{}
	svc := newTestService(carts, inv, members, led, &stubLocker{}, emitter)

	receipt, err := svc.Checkout(context.Background(), Input{
		SessionID:     "sess_1",
		PaymentMethod: "card",
		CustomerName:  "Aina",
		MemberID:      "mem_1",
	})
	if err != nil {
		t.Fatalf("Checkout: %v", err)
	}

	tx := receipt.Transaction
	if tx.Subtotal != 2500 || tx.Discount != 100 || tx.Tax != 144 || tx.Total != 2544 {
		t.Fatalf("totals = %d/%d/%d/%d, want 2500/100/144/2544",
			tx.Subtotal, tx.Discount, tx.Tax, tx.Total)
	}
	if tx.Accrual == nil || tx.Accrual.PointsEarned != 37 || tx.Accrual.NewBalance != 137 {
		t.Fatalf("accrual = %+v, want 37 earned on balance 137", tx.Accrual)
	}
	if members.lastSaved != 137 {
		t.Fatalf("saved balance = %d, want 137", members.lastSaved)
	}
	if got := inv.stock("itm_coffee"); got != 8 {
		t.Fatalf("coffee stock = %d, want 8", got)
	}
	if got := inv.stock("itm_tea"); got != 4 {
		t.Fatalf("tea stock = %d, want 4", got)
	}
	if len(led.appended) != 1 {
		t.Fatalf("ledger appends = %d, want 1", len(led.appended))
	}
	if len(carts.cleared) != 1 || carts.cleared[0] != "sess_1" {
		t.Fatalf("cart clear calls = %v, want [sess_1]", carts.cleared)
	}
	if emitter.count(events.TopicCheckoutCompleted) != 1 {
		t.Fatal("checkout.completed event not emitted")
	}
	if len(receipt.Warnings) != 0 {
		t.Fatalf("warnings = %v, want none", receipt.Warnings)
	}
}

func TestCheckoutCompensatesOnLedgerFailure(t *testing.T) {
	carts := &stubCarts{cart: referenceCart()}
	inv := &stubInventory{levels: map[string]Level{
		"itm_coffee": {Stock: 10, ReorderPoint: 2},
		"itm_tea":    {Stock: 5, ReorderPoint: 1},
	}}
	led := &stubLedger{err: errors.New("db down")}
	svc := newTestService(carts, inv, &stubMembers{}, led, &stubLocker{}, &stubEmitter{})

	_, err := svc.Checkout(context.Background(), Input{SessionID: "sess_1", PaymentMethod: "cash"})
	var persist *PersistenceError
	if !errors.As(err, &persist) {
		t.Fatalf("err = %v, want PersistenceError", err)
	}
	if len(persist.Applied) != 2 || len(persist.Compensated) != 2 {
		t.Fatalf("applied=%v compensated=%v, want both sets of 2", persist.Applied, persist.Compensated)
	}
	if got := inv.stock("itm_coffee"); got != 10 {
		t.Fatalf("coffee stock = %d, want restored 10", got)
	}
	if got := inv.stock("itm_tea"); got != 5 {
		t.Fatalf("tea stock = %d, want restored 5", got)
	}
	if len(carts.cleared) != 0 {
		t.Fatal("cart must not be cleared on failed checkout")
	}
}

func TestCheckoutEmptyCart(t *testing.T) {
	carts := &stubCarts{}
	inv := &stubInventory{levels: map[string]Level{}}
	svc := newTestService(carts, inv, &stubMembers{}, &stubLedger{}, &stubLocker{}, &stubEmitter{})

	_, err := svc.Checkout(context.Background(), Input{SessionID: "sess_1", PaymentMethod: "card"})
	if !errors.Is(err, ErrEmptyCart) {
		t.Fatalf("err = %v, want ErrEmptyCart", err)
	}
	if len(inv.decrements) != 0 {
		t.Fatal("no stock writes expected for an empty cart")
	}
}

func TestCheckoutInvalidPayment(t *testing.T) {
	svc := newTestService(&stubCarts{cart: referenceCart()}, &stubInventory{levels: map[string]Level{}},
		&stubMembers{}, &stubLedger{}, &stubLocker{}, &stubEmitter{})

	_, err := svc.Checkout(context.Background(), Input{SessionID: "sess_1", PaymentMethod: "crypto"})
	if !errors.Is(err, ErrInvalidPayment) {
		t.Fatalf("err = %v, want ErrInvalidPayment", err)
	}
}

func TestCheckoutReentrancy(t *testing.T) {
	carts := &stubCarts{cart: referenceCart()}
	inv := &stubInventory{levels: map[string]Level{"itm_coffee": {Stock: 10}, "itm_tea": {Stock: 5}}}
	locker := &stubLocker{held: true}
	svc := newTestService(carts, inv, &stubMembers{}, &stubLedger{}, locker, &stubEmitter{})

	_, err := svc.Checkout(context.Background(), Input{SessionID: "sess_1", PaymentMethod: "card"})
	if !errors.Is(err, ErrCheckoutInFlight) {
		t.Fatalf("err = %v, want ErrCheckoutInFlight", err)
	}
	if len(inv.decrements) != 0 {
		t.Fatal("a locked session must not touch stock")
	}
}

func TestCheckoutLostStockRaceCompensates(t *testing.T) {
	carts := &stubCarts{cart: referenceCart()}
	// The tea write loses a cross-session race at commit time even though
	// the snapshot read said stock was available.
	inv := &stubInventory{
		levels: map[string]Level{
			"itm_coffee": {Stock: 10, ReorderPoint: 2},
			"itm_tea":    {Stock: 5, ReorderPoint: 1},
		},
		failItem: "itm_tea",
		failWith: inventory.ErrInsufficientStock,
	}
	svc := newTestService(carts, inv, &stubMembers{}, &stubLedger{}, &stubLocker{}, &stubEmitter{})

	_, err := svc.Checkout(context.Background(), Input{SessionID: "sess_1", PaymentMethod: "card"})
	var short *InsufficientStockError
	if !errors.As(err, &short) {
		t.Fatalf("err = %v, want InsufficientStockError", err)
	}
	if len(short.ItemIDs) != 1 || short.ItemIDs[0] != "itm_tea" {
		t.Fatalf("short items = %v, want [itm_tea]", short.ItemIDs)
	}
	if got := inv.stock("itm_coffee"); got != 10 {
		t.Fatalf("coffee stock = %d, want restored 10", got)
	}
}

func TestCheckoutAccrualFailureIsBestEffort(t *testing.T) {
	carts := &stubCarts{cart: referenceCart()}
	inv := &stubInventory{levels: map[string]Level{
		"itm_coffee": {Stock: 10, ReorderPoint: 1},
		"itm_tea":    {Stock: 5, ReorderPoint: 1},
	}}
	members := &stubMembers{
		members: map[string]member.Member{"mem_1": {MemberID: "mem_1", Points: 100, PointsMultiplier: 1.5}},
		setErr:  errors.New("db timeout"),
	}
	led := &stubLedger{}
	svc := newTestService(carts, inv, members, led, &stubLocker{}, &stubEmitter{})

	receipt, err := svc.Checkout(context.Background(), Input{SessionID: "sess_1", PaymentMethod: "ewallet", MemberID: "mem_1"})
	if err != nil {
		t.Fatalf("Checkout: %v", err)
	}
	if len(led.appended) != 1 {
		t.Fatal("sale must stay committed when accrual fails")
	}
	if len(receipt.Warnings) == 0 {
		t.Fatal("expected a warning about failed accrual")
	}
}

func TestCheckoutUnknownMemberWarnsAndCommits(t *testing.T) {
	carts := &stubCarts{cart: referenceCart()}
	inv := &stubInventory{levels: map[string]Level{
		"itm_coffee": {Stock: 10, ReorderPoint: 1},
		"itm_tea":    {Stock: 5, ReorderPoint: 1},
	}}
	led := &stubLedger{}
	svc := newTestService(carts, inv, &stubMembers{}, led, &stubLocker{}, &stubEmitter{})

	receipt, err := svc.Checkout(context.Background(), Input{SessionID: "sess_1", PaymentMethod: "card", MemberID: "mem_missing"})
	if err != nil {
		t.Fatalf("Checkout: %v", err)
	}
	if receipt.Transaction.Accrual != nil {
		t.Fatal("no accrual expected for an unknown member")
	}
	if len(receipt.Warnings) == 0 {
		t.Fatal("expected a warning about the unknown member")
	}
	if len(led.appended) != 1 {
		t.Fatal("sale must commit without the member")
	}
}

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

// A line added to the live cart while the ledger append is in flight must
// survive the post-commit clear.
func TestCheckoutKeepsCartMutatedMidCommit(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	cartSvc := &cart.Service{
		R: rdb,
		Catalog: &stubCatalog{items: map[string]inventory.Item{
			"itm_coffee": {ID: "itm_coffee", Name: "Coffee", Price: 1000, Stock: 10},
			"itm_new":    {ID: "itm_new", Name: "Brownie", Price: 800, Stock: 10},
		}},
		TTL: time.Hour,
	}
	ctx := context.Background()
	if _, err := cartSvc.AddItem(ctx, "sess_1", "itm_coffee", 2); err != nil {
		t.Fatalf("seed cart: %v", err)
	}

	inv := &stubInventory{levels: map[string]Level{"itm_coffee": {Stock: 10, ReorderPoint: 2}}}
	led := &stubLedger{onAppend: func() {
		if _, err := cartSvc.AddItem(ctx, "sess_1", "itm_new", 1); err != nil {
			t.Errorf("mid-commit add: %v", err)
		}
	}}
	svc := newTestService(nil, inv, &stubMembers{}, led, &stubLocker{}, &stubEmitter{})
	svc.Carts = cartSvc

	receipt, err := svc.Checkout(ctx, Input{SessionID: "sess_1", PaymentMethod: "card"})
	if err != nil {
		t.Fatalf("Checkout: %v", err)
	}
	if len(receipt.Warnings) == 0 {
		t.Fatal("expected a warning that the cart was kept")
	}

	c, err := cartSvc.Get(ctx, "sess_1")
	if err != nil {
		t.Fatalf("reload cart: %v", err)
	}
	found := false
	for _, ln := range c.Lines {
		if ln.ItemID == "itm_new" {
			found = true
		}
	}
	if !found {
		t.Fatalf("line added mid-commit was destroyed; lines=%+v", c.Lines)
	}
}

func TestCheckoutEmitsLowStockEvents(t *testing.T) {
	carts := &stubCarts{cart: referenceCart()}
	// Tea drops from 2 to 1, at its reorder point of 1.
	inv := &stubInventory{levels: map[string]Level{
		"itm_coffee": {Stock: 10, ReorderPoint: 2},
		"itm_tea":    {Stock: 2, ReorderPoint: 1},
	}}
	emitter := &stubEmitter{}
	svc := newTestService(carts, inv, &stubMembers{}, &stubLedger{}, &stubLocker{}, emitter)

	if _, err := svc.Checkout(context.Background(), Input{SessionID: "sess_1", PaymentMethod: "card"}); err != nil {
		t.Fatalf("Checkout: %v", err)
	}
	if emitter.count(events.TopicStockLow) != 1 {
		t.Fatalf("stock.low events = %d, want 1", emitter.count(events.TopicStockLow))
	}
}
