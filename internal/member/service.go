package member

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// ErrNotFound indicates the member id is unknown.
var ErrNotFound = errors.New("member not found")

// ErrInvalidInput is returned when the provided payload is invalid.
var ErrInvalidInput = errors.New("invalid input")

// Member is a loyalty program participant.
type Member struct {
	MemberID         string  `json:"memberId"`
	Name             string  `json:"name"`
	Email            string  `json:"email,omitempty"`
	Phone            string  `json:"phone,omitempty"`
	Tier             string  `json:"tier"`
	Points           int64   `json:"points"`
	PointsMultiplier float64 `json:"pointsMultiplier"`
}

// Tier describes a loyalty tier and its accrual multiplier.
type Tier struct {
	Name             string  `json:"tierName"`
	PointsMultiplier float64 `json:"pointsMultiplier"`
}

// Store is the persistence contract for the membership program.
type Store interface {
	Get(ctx context.Context, memberID string) (Member, error)
	Create(ctx context.Context, m Member) (Member, error)
	Update(ctx context.Context, m Member) (Member, error)
	SetPoints(ctx context.Context, memberID string, balance int64) error
	ListTiers(ctx context.Context) ([]Tier, error)
}

// Service exposes membership operations to handlers.
type Service struct {
	Store Store
	NewID func() string
}

func (s *Service) newID() string {
	if s != nil && s.NewID != nil {
		return s.NewID()
	}
	return "mem_" + uuid.NewString()
}

// Get looks up a member by id.
func (s *Service) Get(ctx context.Context, memberID string) (Member, error) {
	if s == nil || s.Store == nil {
		return Member{}, errors.New("member service not configured")
	}
	memberID = strings.TrimSpace(memberID)
	if memberID == "" {
		return Member{}, fmt.Errorf("member id required: %w", ErrInvalidInput)
	}
	return s.Store.Get(ctx, memberID)
}

// Register creates a member on the configured tier. The tier's multiplier is
// resolved at read time so tier changes apply retroactively.
func (s *Service) Register(ctx context.Context, m Member) (Member, error) {
	if s == nil || s.Store == nil {
		return Member{}, errors.New("member service not configured")
	}
	m.Name = strings.TrimSpace(m.Name)
	m.Tier = strings.TrimSpace(m.Tier)
	if m.Name == "" || m.Tier == "" {
		return Member{}, fmt.Errorf("name and tier are required: %w", ErrInvalidInput)
	}
	if m.Points < 0 {
		return Member{}, fmt.Errorf("points must not be negative: %w", ErrInvalidInput)
	}
	tiers, err := s.Store.ListTiers(ctx)
	if err != nil {
		return Member{}, err
	}
	known := false
	for _, t := range tiers {
		if strings.EqualFold(t.Name, m.Tier) {
			m.Tier = t.Name
			known = true
			break
		}
	}
	if !known {
		return Member{}, fmt.Errorf("unknown tier %q: %w", m.Tier, ErrInvalidInput)
	}
	if strings.TrimSpace(m.MemberID) == "" {
		m.MemberID = s.newID()
	}
	return s.Store.Create(ctx, m)
}

// Update edits contact details and tier for an existing member.
func (s *Service) Update(ctx context.Context, m Member) (Member, error) {
	if s == nil || s.Store == nil {
		return Member{}, errors.New("member service not configured")
	}
	if strings.TrimSpace(m.MemberID) == "" {
		return Member{}, fmt.Errorf("member id required: %w", ErrInvalidInput)
	}
	return s.Store.Update(ctx, m)
}

// Tiers lists the loyalty tiers.
func (s *Service) Tiers(ctx context.Context) ([]Tier, error) {
	if s == nil || s.Store == nil {
		return nil, errors.New("member service not configured")
	}
	return s.Store.ListTiers(ctx)
}
