package promo

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/noah-isme/maison-parfum/internal/catalog"
	"github.com/noah-isme/maison-parfum/internal/obs"
	"github.com/noah-isme/maison-parfum/internal/pricing"
)

// MaxCodeLength bounds accepted code input.
const MaxCodeLength = 64

var (
	// ErrLookupFailed wraps every failure to read promo or exclusion data.
	// Callers may retry; it is never reported as an invalid code.
	ErrLookupFailed = errors.New("promo lookup failed")
	// ErrCodeRequired is returned for blank or oversized code input.
	ErrCodeRequired = errors.New("promo code is required")
	// ErrInvalidSubtotal is returned for a negative order amount.
	ErrInvalidSubtotal = errors.New("order amount must not be negative")
)

// Store looks up promo records by canonical code. A missing code yields
// (nil, nil).
type Store interface {
	FindByCode(ctx context.Context, code string) (*Code, error)
}

// ExclusionFinder returns the items among ids that refuse promo codes.
type ExclusionFinder interface {
	FindExcluded(ctx context.Context, ids []string) ([]catalog.Item, error)
}

// Service validates promo codes against a cart.
type Service struct {
	Store      Store
	Exclusions ExclusionFinder
	Currency   string
	Now        func() time.Time
	Logger     zerolog.Logger
}

// WithStores returns a copy reading through different stores, typically
// ones bound to a transaction.
func (s *Service) WithStores(store Store, exclusions ExclusionFinder) *Service {
	clone := *s
	clone.Store = store
	clone.Exclusions = exclusions
	return &clone
}

// Validate checks code against the cart. Excluded items are checked before
// the code is looked up, so a cart with an excluded item is refused even for
// a code that does not exist.
func (s *Service) Validate(ctx context.Context, code string, subtotal pricing.Money, productIDs []string) (Outcome, error) {
	if s == nil || s.Store == nil {
		return Outcome{}, errors.New("promo service not configured")
	}
	canonical := Canonicalize(code)
	if canonical == "" || len(canonical) > MaxCodeLength {
		return Outcome{}, ErrCodeRequired
	}
	if subtotal.IsNegative() {
		return Outcome{}, ErrInvalidSubtotal
	}

	outcome, err := s.validate(ctx, canonical, subtotal, normalizeIDs(productIDs))
	if err != nil {
		obs.RecordPromoValidation("lookup_failed")
		s.Logger.Error().Err(err).Str("code", canonical).Msg("promo lookup failed")
		return Outcome{}, err
	}
	obs.RecordPromoValidation(outcome.Result())
	return outcome, nil
}

func (s *Service) validate(ctx context.Context, code string, subtotal pricing.Money, ids []string) (Outcome, error) {
	if len(ids) > 0 && s.Exclusions != nil {
		items, err := s.Exclusions.FindExcluded(ctx, ids)
		if err != nil {
			return Outcome{}, fmt.Errorf("%w: find excluded items: %w", ErrLookupFailed, err)
		}
		if len(items) > 0 {
			return excluded(items), nil
		}
	}

	record, err := s.Store.FindByCode(ctx, code)
	if err != nil {
		return Outcome{}, fmt.Errorf("%w: find code: %w", ErrLookupFailed, err)
	}
	if record == nil {
		return invalidCode(), nil
	}
	if err := record.Check(); err != nil {
		return Outcome{}, fmt.Errorf("%w: %w", ErrLookupFailed, err)
	}
	return Evaluate(*record, s.now(), subtotal, s.Currency), nil
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func normalizeIDs(ids []string) []string {
	if len(ids) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
