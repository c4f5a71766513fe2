package promo

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/maison-parfum/internal/pricing"
)

var evalNow = time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)

func money(v string) pricing.Money { return pricing.MustParse(v) }

func intPtr(v int) *int { return &v }

func timePtr(t time.Time) *time.Time { return &t }

func validCode() Code {
	return Code{
		ID:             "8d0c6a5e-0000-4000-8000-000000000001",
		Code:           "SPRING10",
		Description:    "Spring sale",
		DiscountType:   Percentage,
		DiscountValue:  money("10"),
		MinOrderAmount: money("0"),
		StartsAt:       evalNow.Add(-24 * time.Hour),
		IsActive:       true,
	}
}

func requireReason(t *testing.T, want Reason, o Outcome) {
	t.Helper()
	require.False(t, o.Valid)
	require.NotNil(t, o.Rejection)
	require.Equal(t, want, o.Rejection.Reason, "message: %s", o.Rejection.Message)
}

func TestEvaluatePercentageDiscount(t *testing.T) {
	o := Evaluate(validCode(), evalNow, money("200.00"), "EUR")
	require.True(t, o.Valid)
	require.Nil(t, o.Rejection)
	require.True(t, money("20.00").Equal(o.DiscountAmount))
	require.Equal(t, "SPRING10", o.Promo.Code)

	summary, err := pricing.Compute(
		[]pricing.Line{{ProductID: "p", BasePrice: money("200"), Quantity: 1}},
		pricing.ShippingStandard, pricing.DefaultShippingSettings(), o.DiscountAmount)
	require.NoError(t, err)
	require.True(t, money("180.00").Equal(summary.Total))
}

func TestEvaluateFixedDiscountIsCappedAtSubtotal(t *testing.T) {
	c := validCode()
	c.DiscountType = Fixed
	c.DiscountValue = money("50")
	o := Evaluate(c, evalNow, money("30.00"), "EUR")
	require.True(t, o.Valid)
	require.True(t, money("30.00").Equal(o.DiscountAmount))
	require.False(t, pricing.Total(money("30.00"), pricing.Zero, o.DiscountAmount).IsNegative())
}

func TestEvaluateRejectionOrder(t *testing.T) {
	t.Run("inactive before dates", func(t *testing.T) {
		c := validCode()
		c.IsActive = false
		c.StartsAt = evalNow.Add(time.Hour)
		requireReason(t, ReasonInactive, Evaluate(c, evalNow, money("100"), "EUR"))
	})
	t.Run("not yet started", func(t *testing.T) {
		c := validCode()
		c.StartsAt = evalNow.Add(time.Second)
		requireReason(t, ReasonNotYetStarted, Evaluate(c, evalNow, money("100"), "EUR"))
	})
	t.Run("starts exactly now is valid", func(t *testing.T) {
		c := validCode()
		c.StartsAt = evalNow
		require.True(t, Evaluate(c, evalNow, money("100"), "EUR").Valid)
	})
	t.Run("expired at the boundary instant", func(t *testing.T) {
		c := validCode()
		c.ExpiresAt = timePtr(evalNow)
		requireReason(t, ReasonExpired, Evaluate(c, evalNow, money("100"), "EUR"))
	})
	t.Run("expired wins over below minimum", func(t *testing.T) {
		c := validCode()
		c.ExpiresAt = timePtr(evalNow.Add(-time.Minute))
		c.MinOrderAmount = money("500")
		requireReason(t, ReasonExpired, Evaluate(c, evalNow, money("100"), "EUR"))
	})
	t.Run("usage cap regardless of dates", func(t *testing.T) {
		c := validCode()
		c.MaxUses = intPtr(1)
		c.CurrentUses = 1
		c.ExpiresAt = timePtr(evalNow.Add(24 * time.Hour))
		requireReason(t, ReasonUsageLimitReached, Evaluate(c, evalNow, money("100"), "EUR"))
	})
	t.Run("usage cap wins over minimum", func(t *testing.T) {
		c := validCode()
		c.MaxUses = intPtr(0)
		c.MinOrderAmount = money("500")
		requireReason(t, ReasonUsageLimitReached, Evaluate(c, evalNow, money("100"), "EUR"))
	})
	t.Run("below minimum names the minimum", func(t *testing.T) {
		c := validCode()
		c.MinOrderAmount = money("75")
		o := Evaluate(c, evalNow, money("74.99"), "EUR")
		requireReason(t, ReasonBelowMinimum, o)
		require.Contains(t, o.Rejection.Message, "75.00 EUR")
	})
	t.Run("subtotal equal to minimum qualifies", func(t *testing.T) {
		c := validCode()
		c.MinOrderAmount = money("75")
		require.True(t, Evaluate(c, evalNow, money("75.00"), "EUR").Valid)
	})
}

func TestEvaluateUnlimitedUses(t *testing.T) {
	c := validCode()
	c.CurrentUses = 1_000_000
	require.True(t, Evaluate(c, evalNow, money("10"), "EUR").Valid)
}

func TestDiscountRounding(t *testing.T) {
	c := validCode()
	c.DiscountValue = money("12.5")
	// 12.5% of 10.99 = 1.37375
	require.True(t, money("1.37").Equal(Discount(c, money("10.99"))))
	// 15% of 0.50 = 0.075 rounds half away from zero
	c.DiscountValue = money("15")
	require.True(t, money("0.08").Equal(Discount(c, money("0.50"))))
	require.True(t, Discount(c, pricing.Zero).IsZero())
}

func TestDiscountClampsMalformedValues(t *testing.T) {
	c := validCode()
	c.DiscountValue = money("150")
	require.True(t, money("40").Equal(Discount(c, money("40"))))

	c.DiscountType = Fixed
	c.DiscountValue = money("-5")
	require.True(t, Discount(c, money("40")).IsZero())

	c.DiscountType = DiscountType("bogo")
	require.True(t, Discount(c, money("40")).IsZero())
}

func TestCheckRejectsMalformedRecords(t *testing.T) {
	cases := map[string]func(*Code){
		"negative value":    func(c *Code) { c.DiscountValue = money("-1") },
		"percentage > 100":  func(c *Code) { c.DiscountValue = money("100.01") },
		"negative minimum":  func(c *Code) { c.MinOrderAmount = money("-0.01") },
		"negative max uses": func(c *Code) { c.MaxUses = intPtr(-1) },
		"unknown type":      func(c *Code) { c.DiscountType = "bogo" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			c := validCode()
			mutate(&c)
			require.True(t, errors.Is(c.Check(), ErrMalformedRecord))
		})
	}

	c := validCode()
	c.DiscountValue = money("100")
	require.NoError(t, c.Check())
	c.DiscountType = Fixed
	c.DiscountValue = money("250")
	require.NoError(t, c.Check())
}

func TestCanonicalize(t *testing.T) {
	require.Equal(t, "SPRING10", Canonicalize("  spring10\t"))
	require.Equal(t, "", Canonicalize("   "))
}
