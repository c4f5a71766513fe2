package promo

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/noah-isme/maison-parfum/internal/db"
)

var (
	// ErrDuplicateCode is returned when creating a code that already exists.
	ErrDuplicateCode = errors.New("promo code already exists")
	// ErrNotFound is returned when updating a code that does not exist.
	ErrNotFound = errors.New("promo code not found")
	// ErrUsageExhausted is returned when a redemption finds no slot left.
	ErrUsageExhausted = errors.New("promo code usage exhausted")
)

const uniqueViolation = "23505"

const codeColumns = `id::text, code, description, discount_type, discount_value, min_order_amount,
	max_uses, current_uses, starts_at, expires_at, is_active`

// PGStore persists promo codes in Postgres.
type PGStore struct {
	DB db.DBTX
	// ForUpdate locks the looked-up row until the surrounding transaction ends.
	ForUpdate bool
}

// FindByCode implements Store.
func (s PGStore) FindByCode(ctx context.Context, code string) (*Code, error) {
	query := `SELECT ` + codeColumns + ` FROM promo_codes WHERE code = $1`
	if s.ForUpdate {
		query += ` FOR UPDATE`
	}
	c, err := scanCode(s.DB.QueryRow(ctx, query, code))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("select promo code: %w", err)
	}
	return &c, nil
}

// Redeem takes one usage slot. The cap check and the increment happen in a
// single statement so concurrent checkouts cannot both take the last slot.
func (s PGStore) Redeem(ctx context.Context, id string) error {
	tag, err := s.DB.Exec(ctx, `
		UPDATE promo_codes
		SET current_uses = current_uses + 1, updated_at = now()
		WHERE id::text = $1 AND (max_uses IS NULL OR current_uses < max_uses)`, id)
	if err != nil {
		return fmt.Errorf("redeem promo code: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrUsageExhausted
	}
	return nil
}

// Create inserts a new code.
func (s PGStore) Create(ctx context.Context, c Code) (Code, error) {
	maxUses, err := nullableInt(c.MaxUses)
	if err != nil {
		return Code{}, err
	}
	row := s.DB.QueryRow(ctx, `
		INSERT INTO promo_codes (code, description, discount_type, discount_value, min_order_amount,
			max_uses, starts_at, expires_at, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING `+codeColumns,
		c.Code, c.Description, string(c.DiscountType), c.DiscountValue, c.MinOrderAmount,
		maxUses, c.StartsAt, nullableTime(c), c.IsActive)
	created, err := scanCode(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return Code{}, ErrDuplicateCode
		}
		return Code{}, fmt.Errorf("insert promo code: %w", err)
	}
	return created, nil
}

// Update replaces the editable fields of the code identified by code.
func (s PGStore) Update(ctx context.Context, code string, c Code) (Code, error) {
	maxUses, err := nullableInt(c.MaxUses)
	if err != nil {
		return Code{}, err
	}
	row := s.DB.QueryRow(ctx, `
		UPDATE promo_codes
		SET description = $2, discount_type = $3, discount_value = $4, min_order_amount = $5,
			max_uses = $6, starts_at = $7, expires_at = $8, is_active = $9, updated_at = now()
		WHERE code = $1
		RETURNING `+codeColumns,
		code, c.Description, string(c.DiscountType), c.DiscountValue, c.MinOrderAmount,
		maxUses, c.StartsAt, nullableTime(c), c.IsActive)
	updated, err := scanCode(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Code{}, ErrNotFound
	}
	if err != nil {
		return Code{}, fmt.Errorf("update promo code: %w", err)
	}
	return updated, nil
}

// List pages through codes, newest first, and reports the total count.
func (s PGStore) List(ctx context.Context, limit, offset int) ([]Code, int, error) {
	var total int
	if err := s.DB.QueryRow(ctx, `SELECT count(*) FROM promo_codes`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count promo codes: %w", err)
	}
	rows, err := s.DB.Query(ctx,
		`SELECT `+codeColumns+` FROM promo_codes ORDER BY created_at DESC, code LIMIT $1 OFFSET $2`,
		limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list promo codes: %w", err)
	}
	codes, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Code, error) {
		return scanCode(row)
	})
	if err != nil {
		return nil, 0, fmt.Errorf("scan promo codes: %w", err)
	}
	return codes, total, nil
}

func scanCode(row pgx.Row) (Code, error) {
	var (
		c         Code
		kind      string
		maxUses   pgtype.Int4
		expiresAt pgtype.Timestamptz
	)
	err := row.Scan(&c.ID, &c.Code, &c.Description, &kind, &c.DiscountValue, &c.MinOrderAmount,
		&maxUses, &c.CurrentUses, &c.StartsAt, &expiresAt, &c.IsActive)
	if err != nil {
		return Code{}, err
	}
	c.DiscountType = DiscountType(kind)
	if maxUses.Valid {
		v := int(maxUses.Int32)
		c.MaxUses = &v
	}
	if expiresAt.Valid {
		t := expiresAt.Time
		c.ExpiresAt = &t
	}
	return c, nil
}

// nullableInt maps a usage cap onto the INTEGER max_uses column.
func nullableInt(v *int) (pgtype.Int4, error) {
	if v == nil {
		return pgtype.Int4{}, nil
	}
	if *v < 0 || *v > MaxUsesLimit {
		return pgtype.Int4{}, fmt.Errorf("%w: max uses %d out of range", ErrMalformedRecord, *v)
	}
	return pgtype.Int4{Int32: int32(*v), Valid: true}, nil
}

func nullableTime(c Code) pgtype.Timestamptz {
	if c.ExpiresAt == nil {
		return pgtype.Timestamptz{}
	}
	return pgtype.Timestamptz{Time: *c.ExpiresAt, Valid: true}
}
