package cart

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/noah-isme/backend-pos/internal/discount"
	"github.com/noah-isme/backend-pos/internal/inventory"
	"github.com/noah-isme/backend-pos/internal/pricing"
)

// ErrNotFound indicates the requested line is not in the cart.
var ErrNotFound = errors.New("cart line not found")

// ErrInvalidInput is returned when the provided payload is invalid.
var ErrInvalidInput = errors.New("invalid input")

// ErrOutOfStock is returned when an add or increase exceeds live stock.
var ErrOutOfStock = errors.New("item out of stock")

// Line is one product entry in a session cart. Quantity is always >= 1;
// decreasing to zero removes the line.
type Line struct {
	ItemID      string        `json:"itemId"`
	Name        string        `json:"name"`
	UnitPrice   pricing.Money `json:"unitPrice"`
	Qty         int           `json:"quantity"`
	DiscountBps int32         `json:"discountBps"`
}

// Cart is the ordered, session-owned sequence of lines. Version increments
// on every mutation so the orchestrator can detect a stale snapshot.
type Cart struct {
	SessionID string    `json:"sessionId"`
	Lines     []Line    `json:"lines"`
	Version   int64     `json:"version"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// CatalogReader provides the item lookup used when adding lines.
type CatalogReader interface {
	Get(ctx context.Context, id string) (inventory.Item, error)
}

// Service stores session carts in Redis with a sliding TTL.
type Service struct {
	R       *redis.Client
	Catalog CatalogReader
	Codes   *discount.Table
	TTL     time.Duration
	Now     func() time.Time
}

func (s *Service) ttl() time.Duration {
	if s == nil || s.TTL <= 0 {
		return 7 * 24 * time.Hour
	}
	return s.TTL
}

func (s *Service) now() time.Time {
	if s != nil && s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func cartKey(sessionID string) string {
	return "cart:sess:" + sessionID
}

// Get loads the cart for a session; a missing key yields an empty cart.
func (s *Service) Get(ctx context.Context, sessionID string) (Cart, error) {
	if s == nil || s.R == nil {
		return Cart{}, errors.New("cart service not configured")
	}
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return Cart{}, fmt.Errorf("session id required: %w", ErrInvalidInput)
	}
	data, err := s.R.Get(ctx, cartKey(sessionID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Cart{SessionID: sessionID}, nil
		}
		return Cart{}, err
	}
	var c Cart
	if err := json.Unmarshal(data, &c); err != nil {
		return Cart{}, err
	}
	c.SessionID = sessionID
	return c, nil
}

func (s *Service) save(ctx context.Context, c Cart) (Cart, error) {
	c.Version++
	c.UpdatedAt = s.now()
	data, err := json.Marshal(c)
	if err != nil {
		return Cart{}, err
	}
	if err := s.R.Set(ctx, cartKey(c.SessionID), data, s.ttl()).Err(); err != nil {
		return Cart{}, err
	}
	return c, nil
}

// AddItem inserts a line or increments an existing one. The item's name and
// unit price are captured from the catalog at add time; adds beyond live
// stock are rejected.
func (s *Service) AddItem(ctx context.Context, sessionID, itemID string, qty int) (Cart, error) {
	if s == nil || s.R == nil || s.Catalog == nil {
		return Cart{}, errors.New("cart service not configured")
	}
	if qty <= 0 {
		return Cart{}, fmt.Errorf("qty must be positive: %w", ErrInvalidInput)
	}
	c, err := s.Get(ctx, sessionID)
	if err != nil {
		return Cart{}, err
	}
	item, err := s.Catalog.Get(ctx, itemID)
	if err != nil {
		return Cart{}, err
	}
	if item.Stock <= 0 {
		return Cart{}, fmt.Errorf("%s: %w", item.Name, ErrOutOfStock)
	}
	for i := range c.Lines {
		if c.Lines[i].ItemID == item.ID {
			if int32(c.Lines[i].Qty+qty) > item.Stock {
				return Cart{}, fmt.Errorf("%s: %w", item.Name, ErrOutOfStock)
			}
			c.Lines[i].Qty += qty
			return s.save(ctx, c)
		}
	}
	if int32(qty) > item.Stock {
		return Cart{}, fmt.Errorf("%s: %w", item.Name, ErrOutOfStock)
	}
	c.Lines = append(c.Lines, Line{
		ItemID:    item.ID,
		Name:      item.Name,
		UnitPrice: item.Price,
		Qty:       qty,
	})
	return s.save(ctx, c)
}

// IncreaseQty bumps a line by one, capped at live stock.
func (s *Service) IncreaseQty(ctx context.Context, sessionID, itemID string) (Cart, error) {
	return s.AddItem(ctx, sessionID, itemID, 1)
}

// DecreaseQty lowers a line by one; reaching zero removes the line.
func (s *Service) DecreaseQty(ctx context.Context, sessionID, itemID string) (Cart, error) {
	c, err := s.Get(ctx, sessionID)
	if err != nil {
		return Cart{}, err
	}
	for i := range c.Lines {
		if c.Lines[i].ItemID != itemID {
			continue
		}
		c.Lines[i].Qty--
		if c.Lines[i].Qty <= 0 {
			c.Lines = append(c.Lines[:i], c.Lines[i+1:]...)
		}
		return s.save(ctx, c)
	}
	return Cart{}, ErrNotFound
}

// RemoveItem deletes a line regardless of quantity.
func (s *Service) RemoveItem(ctx context.Context, sessionID, itemID string) (Cart, error) {
	c, err := s.Get(ctx, sessionID)
	if err != nil {
		return Cart{}, err
	}
	for i := range c.Lines {
		if c.Lines[i].ItemID != itemID {
			continue
		}
		c.Lines = append(c.Lines[:i], c.Lines[i+1:]...)
		return s.save(ctx, c)
	}
	return Cart{}, ErrNotFound
}

// ApplyCode resolves a discount code and stamps the resolved rate on every
// current line; codes replace each other rather than stacking. An unknown
// code leaves the cart untouched and reports resolved=false.
func (s *Service) ApplyCode(ctx context.Context, sessionID, code string) (Cart, bool, error) {
	c, err := s.Get(ctx, sessionID)
	if err != nil {
		return Cart{}, false, err
	}
	rule, ok := s.Codes.Resolve(code)
	if !ok {
		return c, false, nil
	}
	for i := range c.Lines {
		c.Lines[i].DiscountBps = rule.PercentBps
	}
	c, err = s.save(ctx, c)
	if err != nil {
		return Cart{}, false, err
	}
	return c, true, nil
}

// Clear removes the session cart entirely.
func (s *Service) Clear(ctx context.Context, sessionID string) error {
	if s == nil || s.R == nil {
		return errors.New("cart service not configured")
	}
	return s.R.Del(ctx, cartKey(strings.TrimSpace(sessionID))).Err()
}

// clearIfVersionScript compares the stored cart's version against the
// caller's snapshot before deleting, in one round trip. A missing key counts
// as cleared; an undecodable value is dropped outright.
const clearIfVersionScript = `local raw = redis.call("GET", KEYS[1])
if not raw then return 1 end
local ok, c = pcall(cjson.decode, raw)
if not ok then return redis.call("DEL", KEYS[1]) end
if tonumber(c.version) == tonumber(ARGV[1]) then
  return redis.call("DEL", KEYS[1])
end
return 0`

// ClearIfVersion removes the session cart only if its version still matches
// the snapshot the caller priced. On a mismatch the cart is left in place so
// lines added while a checkout was committing survive; the return reports
// whether the cart was removed.
func (s *Service) ClearIfVersion(ctx context.Context, sessionID string, version int64) (bool, error) {
	if s == nil || s.R == nil {
		return false, errors.New("cart service not configured")
	}
	res, err := s.R.Eval(ctx, clearIfVersionScript, []string{cartKey(strings.TrimSpace(sessionID))}, version).Int64()
	if err != nil {
		return false, err
	}
	return res == 1, nil
}

// PricingLines converts the cart to the calculator's input shape.
func (c Cart) PricingLines() []pricing.Line {
	lines := make([]pricing.Line, 0, len(c.Lines))
	for _, ln := range c.Lines {
		lines = append(lines, pricing.Line{Qty: ln.Qty, UnitPrice: ln.UnitPrice, DiscountBps: ln.DiscountBps})
	}
	return lines
}
