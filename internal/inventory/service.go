package inventory

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/noah-isme/backend-pos/internal/pricing"
)

// ErrNotFound indicates the requested item could not be located.
var ErrNotFound = errors.New("inventory item not found")

// ErrInsufficientStock is returned when a decrement would drive stock negative.
var ErrInsufficientStock = errors.New("insufficient stock")

// ErrInvalidInput is returned when the provided payload is invalid.
var ErrInvalidInput = errors.New("invalid input")

// Item is a catalog entry. Stock is never negative.
type Item struct {
	ID           string        `json:"id"`
	Name         string        `json:"name"`
	SKU          string        `json:"sku"`
	Price        pricing.Money `json:"price"`
	Stock        int32         `json:"stock"`
	ReorderPoint int32         `json:"reorderPoint"`
}

// StockStatus derives the display status used by the register UI.
func (i Item) StockStatus() string {
	switch {
	case i.Stock == 0:
		return "out-of-stock"
	case i.Stock <= i.ReorderPoint:
		return "low-stock"
	default:
		return "in-stock"
	}
}

// Store is the persistence contract for the inventory catalog.
type Store interface {
	List(ctx context.Context) ([]Item, error)
	Get(ctx context.Context, id string) (Item, error)
	Create(ctx context.Context, item Item) (Item, error)
	SetStock(ctx context.Context, id string, newQuantity int32, reason string) (Item, error)
}

// Service exposes catalog operations to handlers.
type Service struct {
	Store Store
	NewID func() string
}

func (s *Service) newID() string {
	if s != nil && s.NewID != nil {
		return s.NewID()
	}
	return "itm_" + uuid.NewString()
}

// List returns the full catalog.
func (s *Service) List(ctx context.Context) ([]Item, error) {
	if s == nil || s.Store == nil {
		return nil, errors.New("inventory service not configured")
	}
	return s.Store.List(ctx)
}

// Get returns a single item by id.
func (s *Service) Get(ctx context.Context, id string) (Item, error) {
	if s == nil || s.Store == nil {
		return Item{}, errors.New("inventory service not configured")
	}
	return s.Store.Get(ctx, strings.TrimSpace(id))
}

// Create validates and persists a new catalog item.
func (s *Service) Create(ctx context.Context, item Item) (Item, error) {
	if s == nil || s.Store == nil {
		return Item{}, errors.New("inventory service not configured")
	}
	item.Name = strings.TrimSpace(item.Name)
	item.SKU = strings.TrimSpace(item.SKU)
	if item.Name == "" || item.SKU == "" {
		return Item{}, fmt.Errorf("name and sku are required: %w", ErrInvalidInput)
	}
	if item.Price < 0 {
		return Item{}, fmt.Errorf("price must not be negative: %w", ErrInvalidInput)
	}
	if item.Stock < 0 || item.ReorderPoint < 0 {
		return Item{}, fmt.Errorf("stock and reorder point must not be negative: %w", ErrInvalidInput)
	}
	if strings.TrimSpace(item.ID) == "" {
		item.ID = s.newID()
	}
	return s.Store.Create(ctx, item)
}

// SetStock writes an absolute stock level with an audit reason.
func (s *Service) SetStock(ctx context.Context, id string, newQuantity int32, reason string) (Item, error) {
	if s == nil || s.Store == nil {
		return Item{}, errors.New("inventory service not configured")
	}
	if newQuantity < 0 {
		return Item{}, fmt.Errorf("stock must not be negative: %w", ErrInvalidInput)
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = "Manual adjustment"
	}
	return s.Store.SetStock(ctx, strings.TrimSpace(id), newQuantity, reason)
}
