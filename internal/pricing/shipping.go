package pricing

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// ShippingMethod is the delivery option chosen at checkout.
type ShippingMethod string

const (
	ShippingStandard ShippingMethod = "standard"
	ShippingExpress  ShippingMethod = "express"
)

// Default shipping settings used when the settings store has no value.
var (
	DefaultFreeShippingThreshold = MustParse("150.00")
	DefaultStandardShippingPrice = MustParse("9.90")
	DefaultExpressShippingPrice  = MustParse("14.90")
)

// ShippingSettings holds the externally configured shipping prices.
type ShippingSettings struct {
	FreeShippingThreshold Money `json:"freeShippingThreshold"`
	StandardPrice         Money `json:"standardPrice"`
	ExpressPrice          Money `json:"expressPrice"`
}

// DefaultShippingSettings returns 150.00 / 9.90 / 14.90.
func DefaultShippingSettings() ShippingSettings {
	return ShippingSettings{
		FreeShippingThreshold: DefaultFreeShippingThreshold,
		StandardPrice:         DefaultStandardShippingPrice,
		ExpressPrice:          DefaultExpressShippingPrice,
	}
}

// ParseShippingMethod accepts "standard" or "express", case-insensitively.
func ParseShippingMethod(value string) (ShippingMethod, error) {
	switch m := ShippingMethod(strings.ToLower(strings.TrimSpace(value))); m {
	case ShippingStandard, ShippingExpress:
		return m, nil
	default:
		return "", fmt.Errorf("%q: %w", value, ErrInvalidShippingMethod)
	}
}

// ShippingCost is zero once the subtotal reaches the free shipping threshold,
// otherwise the configured price of the method.
func ShippingCost(subtotal Money, method ShippingMethod, settings ShippingSettings) (Money, error) {
	var price Money
	switch method {
	case ShippingStandard:
		price = settings.StandardPrice
	case ShippingExpress:
		price = settings.ExpressPrice
	default:
		return Zero, fmt.Errorf("%q: %w", method, ErrInvalidShippingMethod)
	}
	if subtotal.GreaterThanOrEqual(settings.FreeShippingThreshold) {
		return Zero, nil
	}
	return RoundMoney(clampZero(price)), nil
}

func decimalFromInt(n int) decimal.Decimal {
	return decimal.NewFromInt(int64(n))
}
