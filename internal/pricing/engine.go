package pricing

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrInvalidLine is returned when a cart line cannot be priced.
	ErrInvalidLine = errors.New("invalid cart line")
	// ErrInvalidShippingMethod is returned for any method other than standard or express.
	ErrInvalidShippingMethod = errors.New("invalid shipping method")
)

// Line describes a cart entry as seen by the pricing engine.
type Line struct {
	ProductID       string
	UnitPriceBySize map[string]Money
	BasePrice       Money
	SelectedSize    string
	Quantity        int
	// Stock is nil when the catalog does not track stock for the item.
	Stock *int
}

// Summary aggregates computed pricing components.
type Summary struct {
	Subtotal       Money `json:"subtotal"`
	ShippingCost   Money `json:"shippingCost"`
	DiscountAmount Money `json:"discountAmount"`
	Total          Money `json:"total"`
}

// EffectiveUnitPrice resolves the unit price of a line. Precedence:
//  1. the price of the selected size, when present and positive;
//  2. the lowest positive price across all sizes;
//  3. the base price.
//
// A size priced at zero therefore never makes a product free.
func EffectiveUnitPrice(l Line) Money {
	if price, ok := selectedSizePrice(l); ok {
		return price
	}
	if price, ok := lowestSizePrice(l.UnitPriceBySize); ok {
		return price
	}
	return l.BasePrice
}

func selectedSizePrice(l Line) (Money, bool) {
	price, ok := l.UnitPriceBySize[l.SelectedSize]
	if !ok || !price.IsPositive() {
		return Zero, false
	}
	return price, true
}

func lowestSizePrice(prices map[string]Money) (Money, bool) {
	var (
		lowest Money
		found  bool
	)
	for _, price := range prices {
		if !price.IsPositive() {
			continue
		}
		if !found || price.LessThan(lowest) {
			lowest = price
			found = true
		}
	}
	return lowest, found
}

// LineTotal returns the effective unit price multiplied by the quantity.
func LineTotal(l Line) Money {
	if l.Quantity <= 0 {
		return Zero
	}
	return RoundMoney(EffectiveUnitPrice(l).Mul(decimalFromInt(l.Quantity)))
}

// Subtotal sums line totals. Out-of-stock lines are included; blocking them
// is the checkout's job.
func Subtotal(lines []Line) Money {
	total := Zero
	for _, l := range lines {
		total = total.Add(LineTotal(l))
	}
	return RoundMoney(clampZero(total))
}

// OutOfStock lists the product ids of lines whose stock is exactly zero.
func OutOfStock(lines []Line) []string {
	var ids []string
	for _, l := range lines {
		if l.Stock != nil && *l.Stock == 0 {
			ids = append(ids, l.ProductID)
		}
	}
	return ids
}

// ValidateLines rejects carts the engine must not price.
func ValidateLines(lines []Line) error {
	if len(lines) == 0 {
		return fmt.Errorf("cart is empty: %w", ErrInvalidLine)
	}
	for i, l := range lines {
		if strings.TrimSpace(l.ProductID) == "" {
			return fmt.Errorf("line %d: product id is required: %w", i, ErrInvalidLine)
		}
		if l.Quantity < 1 {
			return fmt.Errorf("line %d: quantity must be at least 1: %w", i, ErrInvalidLine)
		}
		if l.BasePrice.IsNegative() {
			return fmt.Errorf("line %d: negative base price: %w", i, ErrInvalidLine)
		}
		if l.Stock != nil && *l.Stock < 0 {
			return fmt.Errorf("line %d: negative stock: %w", i, ErrInvalidLine)
		}
		for size, price := range l.UnitPriceBySize {
			if price.IsNegative() {
				return fmt.Errorf("line %d: negative price for size %q: %w", i, size, ErrInvalidLine)
			}
		}
		if len(l.UnitPriceBySize) > 0 {
			if _, ok := l.UnitPriceBySize[l.SelectedSize]; !ok {
				return fmt.Errorf("line %d: unknown size %q: %w", i, l.SelectedSize, ErrInvalidLine)
			}
		}
	}
	return nil
}

// Total combines the components, never going below zero.
func Total(subtotal, shipping, discount Money) Money {
	return RoundMoney(clampZero(subtotal.Add(shipping).Sub(discount)))
}

// Compute prices the cart for the given shipping method and an already
// validated discount.
func Compute(lines []Line, method ShippingMethod, settings ShippingSettings, discount Money) (Summary, error) {
	subtotal := Subtotal(lines)
	shipping, err := ShippingCost(subtotal, method, settings)
	if err != nil {
		return Summary{}, err
	}
	discount = RoundMoney(clampZero(discount))
	if discount.GreaterThan(subtotal) {
		discount = subtotal
	}
	return Summary{
		Subtotal:       subtotal,
		ShippingCost:   shipping,
		DiscountAmount: discount,
		Total:          Total(subtotal, shipping, discount),
	}, nil
}
