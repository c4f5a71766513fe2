// Package cart prices a shopping cart snapshot on the server. Prices always
// come from the catalog, never from the client.
package cart

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/noah-isme/maison-parfum/internal/catalog"
	"github.com/noah-isme/maison-parfum/internal/pricing"
	"github.com/noah-isme/maison-parfum/internal/promo"
)

var (
	// ErrInvalidInput is returned when the provided payload is invalid.
	ErrInvalidInput = errors.New("invalid input")
	// ErrUnknownItem is returned when a line references no active product or pack.
	ErrUnknownItem = errors.New("unknown product")
	// ErrCatalogUnavailable wraps catalog read failures.
	ErrCatalogUnavailable = errors.New("catalog unavailable")
)

// Catalog resolves item ids to priced catalog entries.
type Catalog interface {
	Items(ctx context.Context, ids []string) (map[string]catalog.Item, error)
}

// Promos validates promo codes against a cart.
type Promos interface {
	Validate(ctx context.Context, code string, subtotal pricing.Money, productIDs []string) (promo.Outcome, error)
}

// LineInput is one cart line as sent by the client.
type LineInput struct {
	ProductID    string `json:"productId" validate:"required,max=64"`
	SelectedSize string `json:"selectedSize" validate:"max=32"`
	Quantity     int    `json:"quantity" validate:"gte=1,lte=99"`
}

// Request is a cart snapshot to price.
type Request struct {
	Lines          []LineInput `json:"lines" validate:"required,min=1,max=50,dive"`
	ShippingMethod string      `json:"shippingMethod" validate:"required"`
	PromoCode      string      `json:"promoCode" validate:"max=64"`
}

// Priced is the full pricing of a request.
type Priced struct {
	Lines      []pricing.Line
	Items      map[string]catalog.Item
	Method     pricing.ShippingMethod
	Summary    pricing.Summary
	Promo      *promo.Outcome
	OutOfStock []string
}

// ProductIDs lists the distinct item ids in the cart.
func (p Priced) ProductIDs() []string {
	ids := make([]string, 0, len(p.Items))
	for id := range p.Items {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Price resolves the request against the catalog and computes subtotal,
// shipping, promo discount and total. A rejected promo code is reported in
// Priced.Promo and leaves the discount at zero.
func Price(ctx context.Context, cat Catalog, promos Promos, settings pricing.ShippingSettings, req Request) (Priced, error) {
	method, err := pricing.ParseShippingMethod(req.ShippingMethod)
	if err != nil {
		return Priced{}, err
	}
	lines, items, err := ResolveLines(ctx, cat, req.Lines)
	if err != nil {
		return Priced{}, err
	}
	if err := pricing.ValidateLines(lines); err != nil {
		return Priced{}, err
	}

	out := Priced{Lines: lines, Items: items, Method: method, OutOfStock: pricing.OutOfStock(lines)}
	discount := pricing.Zero
	if strings.TrimSpace(req.PromoCode) != "" {
		if promos == nil {
			return Priced{}, errors.New("cart: promo service not configured")
		}
		outcome, err := promos.Validate(ctx, req.PromoCode, pricing.Subtotal(lines), out.ProductIDs())
		if err != nil {
			return Priced{}, err
		}
		out.Promo = &outcome
		if outcome.Valid {
			discount = outcome.DiscountAmount
		}
	}

	out.Summary, err = pricing.Compute(lines, method, settings, discount)
	if err != nil {
		return Priced{}, err
	}
	return out, nil
}

// ResolveLines looks up every referenced item and builds pricing lines in
// request order.
func ResolveLines(ctx context.Context, cat Catalog, inputs []LineInput) ([]pricing.Line, map[string]catalog.Item, error) {
	if len(inputs) == 0 {
		return nil, nil, fmt.Errorf("%w: cart is empty", ErrInvalidInput)
	}
	ids := make([]string, 0, len(inputs))
	seen := make(map[string]struct{}, len(inputs))
	for _, in := range inputs {
		id := strings.TrimSpace(in.ProductID)
		if _, ok := seen[id]; ok || id == "" {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	items, err := cat.Items(ctx, ids)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %w", ErrCatalogUnavailable, err)
	}

	var missing []string
	lines := make([]pricing.Line, 0, len(inputs))
	for _, in := range inputs {
		id := strings.TrimSpace(in.ProductID)
		item, ok := items[id]
		if !ok {
			missing = append(missing, id)
			continue
		}
		lines = append(lines, item.Line(strings.TrimSpace(in.SelectedSize), in.Quantity))
	}
	if len(missing) > 0 {
		return nil, nil, fmt.Errorf("%w: %s", ErrUnknownItem, strings.Join(missing, ", "))
	}
	return lines, items, nil
}
