package cart

import (
	"context"

	"github.com/noah-isme/maison-parfum/internal/pricing"
	"github.com/noah-isme/maison-parfum/internal/promo"
)

// ShippingSettings supplies the current shipping configuration.
type ShippingSettings interface {
	Shipping(ctx context.Context) pricing.ShippingSettings
}

// Service produces cart quotes.
type Service struct {
	Catalog  Catalog
	Promos   Promos
	Settings ShippingSettings
	Currency string
}

// QuoteLine is a priced line of a quote.
type QuoteLine struct {
	ProductID    string        `json:"productId"`
	Name         string        `json:"name"`
	SelectedSize string        `json:"selectedSize,omitempty"`
	Quantity     int           `json:"quantity"`
	UnitPrice    pricing.Money `json:"unitPrice"`
	LineTotal    pricing.Money `json:"lineTotal"`
	OutOfStock   bool          `json:"outOfStock"`
}

// Quote is the priced view of a cart returned to the client.
type Quote struct {
	Lines          []QuoteLine      `json:"lines"`
	Currency       string           `json:"currency"`
	ShippingMethod string           `json:"shippingMethod"`
	Subtotal       pricing.Money    `json:"subtotal"`
	ShippingCost   pricing.Money    `json:"shippingCost"`
	DiscountAmount pricing.Money    `json:"discountAmount"`
	Total          pricing.Money    `json:"total"`
	Promo          *promo.Public    `json:"promoCode,omitempty"`
	PromoRejection *promo.Rejection `json:"promoRejection,omitempty"`
	Purchasable    bool             `json:"purchasable"`
	OutOfStock     []string         `json:"outOfStock"`
}

// Quote prices req without side effects.
func (s *Service) Quote(ctx context.Context, req Request) (Quote, error) {
	settings := pricing.DefaultShippingSettings()
	if s.Settings != nil {
		settings = s.Settings.Shipping(ctx)
	}
	priced, err := Price(ctx, s.Catalog, s.Promos, settings, req)
	if err != nil {
		return Quote{}, err
	}
	return BuildQuote(priced, s.Currency), nil
}

// BuildQuote renders a priced cart for clients.
func BuildQuote(p Priced, currency string) Quote {
	out := map[string]bool{}
	for _, id := range p.OutOfStock {
		out[id] = true
	}
	lines := make([]QuoteLine, 0, len(p.Lines))
	for _, l := range p.Lines {
		lines = append(lines, QuoteLine{
			ProductID:    l.ProductID,
			Name:         p.Items[l.ProductID].Name,
			SelectedSize: l.SelectedSize,
			Quantity:     l.Quantity,
			UnitPrice:    pricing.RoundMoney(pricing.EffectiveUnitPrice(l)),
			LineTotal:    pricing.LineTotal(l),
			OutOfStock:   out[l.ProductID],
		})
	}
	q := Quote{
		Lines:          lines,
		Currency:       currency,
		ShippingMethod: string(p.Method),
		Subtotal:       p.Summary.Subtotal,
		ShippingCost:   p.Summary.ShippingCost,
		DiscountAmount: p.Summary.DiscountAmount,
		Total:          p.Summary.Total,
		Purchasable:    len(p.OutOfStock) == 0,
		OutOfStock:     p.OutOfStock,
	}
	if q.OutOfStock == nil {
		q.OutOfStock = []string{}
	}
	if p.Promo != nil {
		q.Promo = p.Promo.Promo
		q.PromoRejection = p.Promo.Rejection
	}
	return q
}
