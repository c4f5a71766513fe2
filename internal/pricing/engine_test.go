package pricing

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func money(v string) Money { return MustParse(v) }

func intPtr(v int) *int { return &v }

func requireMoney(t *testing.T, want string, got Money) {
	t.Helper()
	require.True(t, money(want).Equal(got), "expected %s, got %s", want, got.String())
}

func TestEffectiveUnitPriceTiers(t *testing.T) {
	t.Run("selected size price", func(t *testing.T) {
		line := Line{
			UnitPriceBySize: map[string]Money{"5ml": money("25"), "10ml": money("60")},
			BasePrice:       money("40"),
			SelectedSize:    "5ml",
		}
		requireMoney(t, "25", EffectiveUnitPrice(line))
	})

	t.Run("zero size price falls back to lowest positive", func(t *testing.T) {
		line := Line{
			UnitPriceBySize: map[string]Money{"5ml": money("0"), "10ml": money("60")},
			BasePrice:       money("40"),
			SelectedSize:    "5ml",
		}
		requireMoney(t, "60", EffectiveUnitPrice(line))
	})

	t.Run("absent size falls back to lowest positive", func(t *testing.T) {
		line := Line{
			UnitPriceBySize: map[string]Money{"30ml": money("85"), "50ml": money("120")},
			BasePrice:       money("40"),
			SelectedSize:    "100ml",
		}
		requireMoney(t, "85", EffectiveUnitPrice(line))
	})

	t.Run("empty mapping uses base price", func(t *testing.T) {
		line := Line{UnitPriceBySize: map[string]Money{}, BasePrice: money("40"), SelectedSize: "anything"}
		requireMoney(t, "40", EffectiveUnitPrice(line))
	})

	t.Run("all zero sizes use base price", func(t *testing.T) {
		line := Line{UnitPriceBySize: map[string]Money{"5ml": money("0")}, BasePrice: money("40"), SelectedSize: "5ml"}
		requireMoney(t, "40", EffectiveUnitPrice(line))
	})
}

func TestSubtotalIsOrderIndependent(t *testing.T) {
	a := Line{ProductID: "a", BasePrice: money("19.99"), Quantity: 3}
	b := Line{ProductID: "b", UnitPriceBySize: map[string]Money{"50ml": money("74.50")}, SelectedSize: "50ml", Quantity: 2}
	c := Line{ProductID: "c", BasePrice: money("5.05"), Quantity: 1, Stock: intPtr(0)}

	forward := Subtotal([]Line{a, b, c})
	backward := Subtotal([]Line{c, b, a})
	requireMoney(t, "214.02", forward)
	require.True(t, forward.Equal(backward))
	require.False(t, forward.IsNegative())
}

func TestOutOfStock(t *testing.T) {
	lines := []Line{
		{ProductID: "in", Stock: intPtr(4)},
		{ProductID: "untracked"},
		{ProductID: "out", Stock: intPtr(0)},
	}
	require.Equal(t, []string{"out"}, OutOfStock(lines))
}

func TestValidateLines(t *testing.T) {
	valid := Line{ProductID: "p1", BasePrice: money("10"), Quantity: 1}
	require.NoError(t, ValidateLines([]Line{valid}))

	cases := map[string][]Line{
		"empty":          nil,
		"zero quantity":  {{ProductID: "p1", BasePrice: money("10"), Quantity: 0}},
		"no product":     {{BasePrice: money("10"), Quantity: 1}},
		"negative base":  {{ProductID: "p1", BasePrice: money("-1"), Quantity: 1}},
		"negative stock": {{ProductID: "p1", BasePrice: money("10"), Quantity: 1, Stock: intPtr(-2)}},
		"unknown size": {{
			ProductID:       "p1",
			UnitPriceBySize: map[string]Money{"50ml": money("70")},
			SelectedSize:    "75ml",
			Quantity:        1,
		}},
	}
	for name, lines := range cases {
		t.Run(name, func(t *testing.T) {
			err := ValidateLines(lines)
			require.True(t, errors.Is(err, ErrInvalidLine), "got %v", err)
		})
	}
}

func TestShippingCostThreshold(t *testing.T) {
	settings := DefaultShippingSettings()

	cost, err := ShippingCost(money("149.99"), ShippingStandard, settings)
	require.NoError(t, err)
	requireMoney(t, "9.90", cost)

	cost, err = ShippingCost(money("149.99"), ShippingExpress, settings)
	require.NoError(t, err)
	requireMoney(t, "14.90", cost)

	for _, method := range []ShippingMethod{ShippingStandard, ShippingExpress} {
		cost, err = ShippingCost(money("150.00"), method, settings)
		require.NoError(t, err)
		require.True(t, cost.IsZero(), "method %s should ship free", method)
	}

	_, err = ShippingCost(money("10"), ShippingMethod("pigeon"), settings)
	require.ErrorIs(t, err, ErrInvalidShippingMethod)
}

func TestParseShippingMethod(t *testing.T) {
	m, err := ParseShippingMethod(" Express ")
	require.NoError(t, err)
	require.Equal(t, ShippingExpress, m)

	_, err = ParseShippingMethod("overnight")
	require.ErrorIs(t, err, ErrInvalidShippingMethod)
}

func TestComputeWithDiscountAndFreeShipping(t *testing.T) {
	lines := []Line{{ProductID: "p1", BasePrice: money("100"), Quantity: 2}}
	summary, err := Compute(lines, ShippingStandard, DefaultShippingSettings(), money("20"))
	require.NoError(t, err)
	requireMoney(t, "200", summary.Subtotal)
	require.True(t, summary.ShippingCost.IsZero())
	requireMoney(t, "20", summary.DiscountAmount)
	requireMoney(t, "180", summary.Total)
}

func TestComputeCapsDiscountAtSubtotal(t *testing.T) {
	lines := []Line{{ProductID: "p1", BasePrice: money("30"), Quantity: 1}}
	summary, err := Compute(lines, ShippingStandard, DefaultShippingSettings(), money("50"))
	require.NoError(t, err)
	requireMoney(t, "30", summary.DiscountAmount)
	requireMoney(t, "9.90", summary.Total)
}

func TestTotalFloorsAtZero(t *testing.T) {
	require.True(t, Total(money("10"), money("0"), money("50")).IsZero())
	requireMoney(t, "5.01", Total(money("10.005"), money("0"), money("5")))
}

func TestRoundMoneyHalfAwayFromZero(t *testing.T) {
	requireMoney(t, "0.13", RoundMoney(money("0.125")))
	requireMoney(t, "-0.13", RoundMoney(money("-0.125")))
	require.Equal(t, "9.90 EUR", Format(money("9.9"), "EUR"))
}
