// Package checkout turns a priced cart into a pending order. Stock, promo
// redemption and the order rows are written in one transaction.
package checkout

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/noah-isme/maison-parfum/internal/cart"
	"github.com/noah-isme/maison-parfum/internal/catalog"
	"github.com/noah-isme/maison-parfum/internal/obs"
	"github.com/noah-isme/maison-parfum/internal/pricing"
	"github.com/noah-isme/maison-parfum/internal/promo"
)

// StatusPendingPayment is the status of a freshly created order.
const StatusPendingPayment = "pending_payment"

var (
	// ErrOutOfStock is matched by *OutOfStockError.
	ErrOutOfStock = errors.New("checkout: items out of stock")
	// ErrPromoRejected is matched by *PromoRejectedError.
	ErrPromoRejected = errors.New("checkout: promo code rejected")
	// ErrEmailRequired is returned when neither the token nor the payload carry an email.
	ErrEmailRequired = errors.New("checkout: contact email is required")
)

// OutOfStockError lists the items that cannot be ordered.
type OutOfStockError struct {
	ProductIDs []string
}

func (e *OutOfStockError) Error() string {
	return fmt.Sprintf("%s: %s", ErrOutOfStock, strings.Join(e.ProductIDs, ", "))
}

func (e *OutOfStockError) Unwrap() error { return ErrOutOfStock }

// PromoRejectedError carries the refusal produced at redemption time.
type PromoRejectedError struct {
	Rejection promo.Rejection
}

func (e *PromoRejectedError) Error() string {
	return fmt.Sprintf("%s: %s", ErrPromoRejected, e.Rejection.Reason)
}

func (e *PromoRejectedError) Unwrap() error { return ErrPromoRejected }

// CatalogStore is the catalog as seen from inside the checkout transaction.
type CatalogStore interface {
	cart.Catalog
	promo.ExclusionFinder
	ReserveStock(ctx context.Context, item catalog.Item, quantity int) error
}

// PromoStore locks and redeems promo codes.
type PromoStore interface {
	promo.Store
	Redeem(ctx context.Context, id string) error
}

// OrderStore persists orders.
type OrderStore interface {
	Insert(ctx context.Context, o Order) error
}

// Stores groups the stores bound to one transaction.
type Stores struct {
	Catalog CatalogStore
	Promos  PromoStore
	Orders  OrderStore
}

// Transactor runs fn inside a transaction. The transaction commits when fn
// returns nil and rolls back otherwise.
type Transactor interface {
	WithinTx(ctx context.Context, fn func(Stores) error) error
}

// Input is the checkout payload: a cart snapshot plus the contact email.
type Input struct {
	cart.Request
	Email string `json:"email" validate:"omitempty,email,max=254"`
}

// OrderLine is a priced order line.
type OrderLine struct {
	ProductID    string        `json:"productId"`
	Name         string        `json:"name"`
	SelectedSize string        `json:"selectedSize,omitempty"`
	Quantity     int           `json:"quantity"`
	UnitPrice    pricing.Money `json:"unitPrice"`
	LineTotal    pricing.Money `json:"lineTotal"`
}

// Order is a created order.
type Order struct {
	ID             string        `json:"id"`
	UserID         string        `json:"userId"`
	Email          string        `json:"email"`
	Status         string        `json:"status"`
	Currency       string        `json:"currency"`
	ShippingMethod string        `json:"shippingMethod"`
	Subtotal       pricing.Money `json:"subtotal"`
	ShippingCost   pricing.Money `json:"shippingCost"`
	DiscountAmount pricing.Money `json:"discountAmount"`
	Total          pricing.Money `json:"total"`
	PromoCodeID    string        `json:"-"`
	PromoCode      string        `json:"promoCode,omitempty"`
	Lines          []OrderLine   `json:"lines"`
	CreatedAt      time.Time     `json:"createdAt"`
}

// Service creates orders.
type Service struct {
	Tx       Transactor
	Promos   *promo.Service
	Settings cart.ShippingSettings
	Currency string
	Now      func() time.Time
	NewID    func() string
	Logger   zerolog.Logger
}

// Create prices in against the current catalog, re-validates and redeems the
// promo code under a row lock, reserves stock and inserts the order.
func (s *Service) Create(ctx context.Context, userID, email string, in Input) (Order, error) {
	if s == nil || s.Tx == nil {
		return Order{}, errors.New("checkout service not configured")
	}
	if strings.TrimSpace(userID) == "" {
		return Order{}, fmt.Errorf("%w: user is required", cart.ErrInvalidInput)
	}
	contact := strings.TrimSpace(email)
	if contact == "" {
		contact = strings.TrimSpace(in.Email)
	}
	if contact == "" {
		return Order{}, ErrEmailRequired
	}

	settings := pricing.DefaultShippingSettings()
	if s.Settings != nil {
		settings = s.Settings.Shipping(ctx)
	}

	var order Order
	err := s.Tx.WithinTx(ctx, func(st Stores) error {
		var promos cart.Promos
		if strings.TrimSpace(in.PromoCode) != "" {
			if s.Promos == nil {
				return errors.New("checkout: promo service not configured")
			}
			promos = s.Promos.WithStores(st.Promos, st.Catalog)
		}
		priced, err := cart.Price(ctx, st.Catalog, promos, settings, in.Request)
		if err != nil {
			return err
		}
		if len(priced.OutOfStock) > 0 {
			return &OutOfStockError{ProductIDs: priced.OutOfStock}
		}
		if priced.Promo != nil {
			if !priced.Promo.Valid {
				return &PromoRejectedError{Rejection: *priced.Promo.Rejection}
			}
			if err := st.Promos.Redeem(ctx, priced.Promo.Promo.ID); err != nil {
				if errors.Is(err, promo.ErrUsageExhausted) {
					return &PromoRejectedError{Rejection: *promo.UsageLimitReached()}
				}
				return err
			}
		}
		if err := reserve(ctx, st.Catalog, priced); err != nil {
			return err
		}

		order = s.buildOrder(userID, contact, priced)
		return st.Orders.Insert(ctx, order)
	})
	if err != nil {
		return Order{}, err
	}

	obs.RecordOrderCreated(order.PromoCodeID != "")
	s.Logger.Info().
		Str("order_id", order.ID).
		Str("user_id", order.UserID).
		Str("total", order.Total.StringFixed(2)).
		Str("promo_code", order.PromoCode).
		Msg("order created")
	return order, nil
}

// reserve takes stock for every line, summing quantities of repeated items.
func reserve(ctx context.Context, store CatalogStore, priced cart.Priced) error {
	quantities := make(map[string]int, len(priced.Items))
	for _, l := range priced.Lines {
		quantities[l.ProductID] += l.Quantity
	}
	for _, id := range priced.ProductIDs() {
		if err := store.ReserveStock(ctx, priced.Items[id], quantities[id]); err != nil {
			if errors.Is(err, catalog.ErrInsufficientStock) {
				return &OutOfStockError{ProductIDs: []string{id}}
			}
			return err
		}
	}
	return nil
}

func (s *Service) buildOrder(userID, email string, priced cart.Priced) Order {
	now := time.Now
	if s.Now != nil {
		now = s.Now
	}
	newID := uuid.NewString
	if s.NewID != nil {
		newID = s.NewID
	}
	quote := cart.BuildQuote(priced, s.Currency)
	o := Order{
		ID:             newID(),
		UserID:         userID,
		Email:          email,
		Status:         StatusPendingPayment,
		Currency:       s.Currency,
		ShippingMethod: quote.ShippingMethod,
		Subtotal:       quote.Subtotal,
		ShippingCost:   quote.ShippingCost,
		DiscountAmount: quote.DiscountAmount,
		Total:          quote.Total,
		Lines:          make([]OrderLine, 0, len(quote.Lines)),
		CreatedAt:      now().UTC(),
	}
	if quote.Promo != nil {
		o.PromoCodeID = quote.Promo.ID
		o.PromoCode = quote.Promo.Code
	}
	for _, l := range quote.Lines {
		o.Lines = append(o.Lines, OrderLine{
			ProductID:    l.ProductID,
			Name:         l.Name,
			SelectedSize: l.SelectedSize,
			Quantity:     l.Quantity,
			UnitPrice:    l.UnitPrice,
			LineTotal:    l.LineTotal,
		})
	}
	return o
}
