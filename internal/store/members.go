package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/noah-isme/backend-pos/internal/member"
)

// Members persists the loyalty program. Tier multipliers are resolved on
// read so tier changes apply to subsequent purchases automatically.
type Members struct {
	pool *pgxpool.Pool
}

// NewMembers constructs a Members store backed by a pgx connection pool.
func NewMembers(pool *pgxpool.Pool) *Members {
	return &Members{pool: pool}
}

const memberQuery = `SELECT m.member_id, m.name, m.email, m.phone, m.tier, m.points, t.points_multiplier
FROM members m
JOIN tiers t ON t.name = m.tier`

func scanMember(row pgx.Row) (member.Member, error) {
	var m member.Member
	var email, phone sql.NullString
	err := row.Scan(&m.MemberID, &m.Name, &email, &phone, &m.Tier, &m.Points, &m.PointsMultiplier)
	if errors.Is(err, pgx.ErrNoRows) {
		return member.Member{}, member.ErrNotFound
	}
	if err != nil {
		return member.Member{}, err
	}
	m.Email = email.String
	m.Phone = phone.String
	return m, nil
}

// Get fetches a member with the multiplier of their current tier.
func (s *Members) Get(ctx context.Context, memberID string) (member.Member, error) {
	if s == nil || s.pool == nil {
		return member.Member{}, ErrUnavailable
	}
	return scanMember(s.pool.QueryRow(ctx, memberQuery+` WHERE m.member_id = $1`, memberID))
}

// Create registers a member.
func (s *Members) Create(ctx context.Context, m member.Member) (member.Member, error) {
	if s == nil || s.pool == nil {
		return member.Member{}, ErrUnavailable
	}
	_, err := s.pool.Exec(ctx, `INSERT INTO members (member_id, name, email, phone, tier, points)
VALUES ($1, $2, NULLIF($3, ''), NULLIF($4, ''), $5, $6)`,
		m.MemberID, m.Name, m.Email, m.Phone, m.Tier, m.Points)
	if isUniqueViolation(err) {
		return member.Member{}, fmt.Errorf("member already registered: %w", member.ErrInvalidInput)
	}
	if err != nil {
		return member.Member{}, err
	}
	return s.Get(ctx, m.MemberID)
}

// Update rewrites a member's profile fields.
func (s *Members) Update(ctx context.Context, m member.Member) (member.Member, error) {
	if s == nil || s.pool == nil {
		return member.Member{}, ErrUnavailable
	}
	tag, err := s.pool.Exec(ctx, `UPDATE members SET name = $2, email = NULLIF($3, ''), phone = NULLIF($4, ''), tier = $5, updated_at = now()
WHERE member_id = $1`, m.MemberID, m.Name, m.Email, m.Phone, m.Tier)
	if err != nil {
		return member.Member{}, err
	}
	if tag.RowsAffected() == 0 {
		return member.Member{}, member.ErrNotFound
	}
	return s.Get(ctx, m.MemberID)
}

// SetPoints stores a member's new point balance.
func (s *Members) SetPoints(ctx context.Context, memberID string, balance int64) error {
	if s == nil || s.pool == nil {
		return ErrUnavailable
	}
	tag, err := s.pool.Exec(ctx, `UPDATE members SET points = $2, updated_at = now() WHERE member_id = $1`, memberID, balance)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return member.ErrNotFound
	}
	return nil
}

// ListTiers returns the loyalty tiers ordered by multiplier.
func (s *Members) ListTiers(ctx context.Context) ([]member.Tier, error) {
	if s == nil || s.pool == nil {
		return nil, ErrUnavailable
	}
	rows, err := s.pool.Query(ctx, `SELECT name, points_multiplier FROM tiers ORDER BY points_multiplier`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tiers []member.Tier
	for rows.Next() {
		var t member.Tier
		if err := rows.Scan(&t.Name, &t.PointsMultiplier); err != nil {
			return nil, err
		}
		tiers = append(tiers, t)
	}
	return tiers, rows.Err()
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
