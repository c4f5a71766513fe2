// Package promo decides whether a promo code applies to a cart and how much
// it takes off. Rejections are ordinary values; only collaborator failures
// surface as errors.
package promo

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/noah-isme/maison-parfum/internal/catalog"
	"github.com/noah-isme/maison-parfum/internal/pricing"
)

// DiscountType selects how DiscountValue is interpreted.
type DiscountType string

const (
	Percentage DiscountType = "percentage"
	Fixed      DiscountType = "fixed"
)

// ErrMalformedRecord marks a stored promo record that cannot be evaluated.
var ErrMalformedRecord = errors.New("promo: malformed record")

var hundred = pricing.MustParse("100")

// MaxUsesLimit is the largest usage cap the max_uses column can hold.
const MaxUsesLimit = math.MaxInt32

// Code is a stored promo rule.
type Code struct {
	ID             string
	Code           string
	Description    string
	DiscountType   DiscountType
	DiscountValue  pricing.Money
	MinOrderAmount pricing.Money
	MaxUses        *int
	CurrentUses    int
	StartsAt       time.Time
	ExpiresAt      *time.Time
	IsActive       bool
}

// Check rejects records whose values make no sense to evaluate.
func (c Code) Check() error {
	switch c.DiscountType {
	case Percentage:
		if c.DiscountValue.GreaterThan(hundred) {
			return fmt.Errorf("%w: %s percentage %s exceeds 100", ErrMalformedRecord, c.Code, c.DiscountValue)
		}
	case Fixed:
	default:
		return fmt.Errorf("%w: %s has unknown discount type %q", ErrMalformedRecord, c.Code, c.DiscountType)
	}
	if c.DiscountValue.IsNegative() {
		return fmt.Errorf("%w: %s discount value is negative", ErrMalformedRecord, c.Code)
	}
	if c.MinOrderAmount.IsNegative() {
		return fmt.Errorf("%w: %s minimum order amount is negative", ErrMalformedRecord, c.Code)
	}
	if c.MaxUses != nil && *c.MaxUses < 0 {
		return fmt.Errorf("%w: %s max uses is negative", ErrMalformedRecord, c.Code)
	}
	if c.MaxUses != nil && *c.MaxUses > MaxUsesLimit {
		return fmt.Errorf("%w: %s max uses exceeds %d", ErrMalformedRecord, c.Code, MaxUsesLimit)
	}
	if c.CurrentUses < 0 {
		return fmt.Errorf("%w: %s current uses is negative", ErrMalformedRecord, c.Code)
	}
	return nil
}

// Reason identifies why a code was refused.
type Reason string

const (
	ReasonExcludedItems     Reason = "promo_excluded_items"
	ReasonInvalidCode       Reason = "invalid_code"
	ReasonInactive          Reason = "inactive"
	ReasonNotYetStarted     Reason = "not_yet_started"
	ReasonExpired           Reason = "expired"
	ReasonUsageLimitReached Reason = "usage_limit_reached"
	ReasonBelowMinimum      Reason = "below_minimum"
)

// Rejection is a user-displayable refusal.
type Rejection struct {
	Reason        Reason   `json:"reason"`
	Message       string   `json:"message"`
	ExcludedItems []string `json:"excludedItems,omitempty"`
}

// Public is the part of a promo record shown to shoppers.
type Public struct {
	ID             string        `json:"id"`
	Code           string        `json:"code"`
	Description    string        `json:"description"`
	DiscountType   DiscountType  `json:"discountType"`
	DiscountValue  pricing.Money `json:"discountValue"`
	MinOrderAmount pricing.Money `json:"minOrderAmount"`
}

// Public returns the shopper-facing fields.
func (c Code) Public() Public {
	return Public{
		ID:             c.ID,
		Code:           c.Code,
		Description:    c.Description,
		DiscountType:   c.DiscountType,
		DiscountValue:  c.DiscountValue,
		MinOrderAmount: c.MinOrderAmount,
	}
}

// Outcome is the result of validating a code against a cart. Exactly one of
// Promo and Rejection is set.
type Outcome struct {
	Valid          bool
	Promo          *Public
	DiscountAmount pricing.Money
	Rejection      *Rejection
}

// Result labels the outcome for metrics and logs.
func (o Outcome) Result() string {
	if o.Valid || o.Rejection == nil {
		return "valid"
	}
	return string(o.Rejection.Reason)
}

// Canonicalize normalises user input to the stored form of a code.
func Canonicalize(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Evaluate applies the eligibility checks to a found record in their fixed
// order and computes the discount when every check passes. currency is used
// only to format the minimum in the BelowMinimum message.
func Evaluate(c Code, now time.Time, subtotal pricing.Money, currency string) Outcome {
	switch {
	case !c.IsActive:
		return rejected(ReasonInactive, "This promo code is no longer active.")
	case now.Before(c.StartsAt):
		return rejected(ReasonNotYetStarted, "This promo code is not active yet.")
	case c.ExpiresAt != nil && !now.Before(*c.ExpiresAt):
		return rejected(ReasonExpired, "This promo code has expired.")
	case c.MaxUses != nil && c.CurrentUses >= *c.MaxUses:
		return Outcome{Rejection: UsageLimitReached()}
	case c.MinOrderAmount.IsPositive() && subtotal.LessThan(c.MinOrderAmount):
		return rejected(ReasonBelowMinimum,
			fmt.Sprintf("A minimum order of %s is required for this promo code.", pricing.Format(c.MinOrderAmount, currency)))
	}
	pub := c.Public()
	return Outcome{Valid: true, Promo: &pub, DiscountAmount: Discount(c, subtotal)}
}

// Discount computes the rounded reduction for subtotal, never below zero and
// never above the subtotal.
func Discount(c Code, subtotal pricing.Money) pricing.Money {
	if !subtotal.IsPositive() {
		return pricing.Zero
	}
	var amount pricing.Money
	switch c.DiscountType {
	case Percentage:
		amount = subtotal.Mul(c.DiscountValue).Div(hundred)
	case Fixed:
		amount = c.DiscountValue
	default:
		return pricing.Zero
	}
	if amount.IsNegative() {
		return pricing.Zero
	}
	if amount.GreaterThan(subtotal) {
		amount = subtotal
	}
	return pricing.RoundMoney(amount)
}

func rejected(reason Reason, message string) Outcome {
	return Outcome{Rejection: &Rejection{Reason: reason, Message: message}}
}

// UsageLimitReached is the refusal for a code with no redemption slot left.
func UsageLimitReached() *Rejection {
	return &Rejection{Reason: ReasonUsageLimitReached, Message: "This promo code has reached its usage limit."}
}

func invalidCode() Outcome {
	return rejected(ReasonInvalidCode, "Invalid promo code.")
}

func excluded(items []catalog.Item) Outcome {
	names := make([]string, 0, len(items))
	for _, it := range items {
		name := it.Name
		if name == "" {
			name = it.ID
		}
		names = append(names, name)
	}
	out := rejected(ReasonExcludedItems,
		fmt.Sprintf("Promo codes cannot be used with: %s.", strings.Join(names, ", ")))
	out.Rejection.ExcludedItems = names
	return out
}
