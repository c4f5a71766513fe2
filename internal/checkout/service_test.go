package checkout

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/maison-parfum/internal/cart"
	"github.com/noah-isme/maison-parfum/internal/catalog"
	"github.com/noah-isme/maison-parfum/internal/common"
	"github.com/noah-isme/maison-parfum/internal/pricing"
	"github.com/noah-isme/maison-parfum/internal/promo"
)

var checkoutNow = time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)

func m(v string) pricing.Money { return pricing.MustParse(v) }

func intPtr(v int) *int { return &v }

type fakeCatalog struct {
	items    map[string]catalog.Item
	reserved map[string]int
}

func (c *fakeCatalog) Items(_ context.Context, ids []string) (map[string]catalog.Item, error) {
	out := map[string]catalog.Item{}
	for _, id := range ids {
		if it, ok := c.items[id]; ok {
			out[id] = it
		}
	}
	return out, nil
}

func (c *fakeCatalog) FindExcluded(_ context.Context, ids []string) ([]catalog.Item, error) {
	var out []catalog.Item
	for _, id := range ids {
		if it, ok := c.items[id]; ok && !it.PromoAllowed {
			out = append(out, it)
		}
	}
	return out, nil
}

func (c *fakeCatalog) ReserveStock(_ context.Context, item catalog.Item, quantity int) error {
	it := c.items[item.ID]
	if it.Stock != nil {
		if *it.Stock < quantity {
			return catalog.ErrInsufficientStock
		}
		it.Stock = intPtr(*it.Stock - quantity)
		c.items[item.ID] = it
	}
	c.reserved[item.ID] += quantity
	return nil
}

type fakePromos struct {
	codes    map[string]promo.Code
	redeemed []string
	exhaust  bool
}

func (p *fakePromos) FindByCode(_ context.Context, code string) (*promo.Code, error) {
	c, ok := p.codes[code]
	if !ok {
		return nil, nil
	}
	return &c, nil
}

func (p *fakePromos) Redeem(_ context.Context, id string) error {
	if p.exhaust {
		return promo.ErrUsageExhausted
	}
	p.redeemed = append(p.redeemed, id)
	return nil
}

type fakeOrders struct {
	inserted []Order
	err      error
}

func (o *fakeOrders) Insert(_ context.Context, order Order) error {
	if o.err != nil {
		return o.err
	}
	o.inserted = append(o.inserted, order)
	return nil
}

// fakeTx hands the same stores to every transaction and records the outcome.
type fakeTx struct {
	stores    Stores
	commits   int
	rollbacks int
}

func (t *fakeTx) WithinTx(_ context.Context, fn func(Stores) error) error {
	if err := fn(t.stores); err != nil {
		t.rollbacks++
		return err
	}
	t.commits++
	return nil
}

type fixture struct {
	tx      *fakeTx
	catalog *fakeCatalog
	promos  *fakePromos
	orders  *fakeOrders
	svc     *Service
}

func newFixture() *fixture {
	cat := &fakeCatalog{
		items: map[string]catalog.Item{
			"oud": {ID: "oud", Kind: catalog.KindProduct, Name: "Oud Nuit", BasePrice: m("40"),
				PriceBySize: map[string]pricing.Money{"50ml": m("100")}, Stock: intPtr(5), PromoAllowed: true},
			"rose": {ID: "rose", Kind: catalog.KindProduct, Name: "Rose Poudre", BasePrice: m("35"), PromoAllowed: true},
			"coffret": {ID: "coffret", Kind: catalog.KindPack, Name: "Coffret Découverte", BasePrice: m("49"),
				PromoAllowed: false},
			"ambre": {ID: "ambre", Kind: catalog.KindProduct, Name: "Ambre", BasePrice: m("20"), Stock: intPtr(0),
				PromoAllowed: true},
		},
		reserved: map[string]int{},
	}
	promos := &fakePromos{codes: map[string]promo.Code{
		"WELCOME10": {ID: "promo-1", Code: "WELCOME10", DiscountType: promo.Percentage, DiscountValue: m("10"),
			StartsAt: checkoutNow.Add(-time.Hour), IsActive: true, MaxUses: intPtr(100), CurrentUses: 3},
		"OLD": {ID: "promo-2", Code: "OLD", DiscountType: promo.Fixed, DiscountValue: m("5"),
			StartsAt: checkoutNow.Add(-48 * time.Hour), ExpiresAt: timePtr(checkoutNow.Add(-time.Hour)), IsActive: true},
	}}
	orders := &fakeOrders{}
	tx := &fakeTx{stores: Stores{Catalog: cat, Promos: promos, Orders: orders}}
	svc := &Service{
		Tx:       tx,
		Promos:   &promo.Service{Currency: "EUR", Now: func() time.Time { return checkoutNow }},
		Currency: "EUR",
		Now:      func() time.Time { return checkoutNow },
		NewID:    func() string { return "order-1" },
	}
	return &fixture{tx: tx, catalog: cat, promos: promos, orders: orders, svc: svc}
}

func timePtr(t time.Time) *time.Time { return &t }

func input(code string, lines ...cart.LineInput) Input {
	return Input{Request: cart.Request{Lines: lines, ShippingMethod: "standard", PromoCode: code}}
}

func TestCreateRedeemsPromoAndReservesStock(t *testing.T) {
	f := newFixture()
	order, err := f.svc.Create(context.Background(), "user-1", "client@example.com", input("welcome10",
		cart.LineInput{ProductID: "oud", SelectedSize: "50ml", Quantity: 2}))
	require.NoError(t, err)

	require.Equal(t, "order-1", order.ID)
	require.Equal(t, StatusPendingPayment, order.Status)
	require.True(t, m("200").Equal(order.Subtotal))
	require.True(t, order.ShippingCost.IsZero())
	require.True(t, m("20").Equal(order.DiscountAmount))
	require.True(t, m("180").Equal(order.Total))
	require.Equal(t, "WELCOME10", order.PromoCode)
	require.Equal(t, "promo-1", order.PromoCodeID)
	require.Equal(t, checkoutNow, order.CreatedAt)
	require.Len(t, order.Lines, 1)
	require.True(t, m("100").Equal(order.Lines[0].UnitPrice))

	require.Equal(t, []string{"promo-1"}, f.promos.redeemed)
	require.Equal(t, 2, f.catalog.reserved["oud"])
	require.Len(t, f.orders.inserted, 1)
	require.Equal(t, 1, f.tx.commits)
}

func TestCreateWithoutPromoSkipsRedemption(t *testing.T) {
	f := newFixture()
	order, err := f.svc.Create(context.Background(), "user-1", "client@example.com", input("",
		cart.LineInput{ProductID: "rose", Quantity: 1},
		cart.LineInput{ProductID: "rose", Quantity: 2}))
	require.NoError(t, err)
	require.True(t, m("105").Equal(order.Subtotal))
	require.True(t, m("9.90").Equal(order.ShippingCost))
	require.True(t, m("114.90").Equal(order.Total))
	require.Empty(t, order.PromoCodeID)
	require.Empty(t, f.promos.redeemed)
	require.Equal(t, 3, f.catalog.reserved["rose"])
}

func TestCreateRefusesOutOfStock(t *testing.T) {
	f := newFixture()
	_, err := f.svc.Create(context.Background(), "user-1", "client@example.com", input("",
		cart.LineInput{ProductID: "rose", Quantity: 1},
		cart.LineInput{ProductID: "ambre", Quantity: 1}))
	var stock *OutOfStockError
	require.ErrorAs(t, err, &stock)
	require.Equal(t, []string{"ambre"}, stock.ProductIDs)
	require.ErrorIs(t, err, ErrOutOfStock)
	require.Empty(t, f.orders.inserted)
	require.Equal(t, 1, f.tx.rollbacks)
}

func TestCreateRefusesWhenReservationFails(t *testing.T) {
	f := newFixture()
	_, err := f.svc.Create(context.Background(), "user-1", "client@example.com", input("",
		cart.LineInput{ProductID: "oud", SelectedSize: "50ml", Quantity: 6}))
	var stock *OutOfStockError
	require.ErrorAs(t, err, &stock)
	require.Equal(t, []string{"oud"}, stock.ProductIDs)
	require.Empty(t, f.orders.inserted)
}

func TestCreateRevalidatesPromo(t *testing.T) {
	f := newFixture()
	_, err := f.svc.Create(context.Background(), "user-1", "client@example.com", input("OLD",
		cart.LineInput{ProductID: "rose", Quantity: 1}))
	var rejected *PromoRejectedError
	require.ErrorAs(t, err, &rejected)
	require.Equal(t, promo.ReasonExpired, rejected.Rejection.Reason)
	require.Empty(t, f.promos.redeemed)
	require.Empty(t, f.catalog.reserved)
}

func TestCreateRejectsExcludedItemsWithPromo(t *testing.T) {
	f := newFixture()
	_, err := f.svc.Create(context.Background(), "user-1", "client@example.com", input("WELCOME10",
		cart.LineInput{ProductID: "rose", Quantity: 1},
		cart.LineInput{ProductID: "coffret", Quantity: 1}))
	var rejected *PromoRejectedError
	require.ErrorAs(t, err, &rejected)
	require.Equal(t, promo.ReasonExcludedItems, rejected.Rejection.Reason)
	require.Equal(t, []string{"Coffret Découverte"}, rejected.Rejection.ExcludedItems)
}

func TestCreateMapsExhaustedRedemptionToUsageLimit(t *testing.T) {
	f := newFixture()
	f.promos.exhaust = true
	_, err := f.svc.Create(context.Background(), "user-1", "client@example.com", input("WELCOME10",
		cart.LineInput{ProductID: "rose", Quantity: 1}))
	var rejected *PromoRejectedError
	require.ErrorAs(t, err, &rejected)
	require.Equal(t, promo.ReasonUsageLimitReached, rejected.Rejection.Reason)
	require.Empty(t, f.orders.inserted)
	require.Equal(t, 1, f.tx.rollbacks)
}

func TestCreateEmailFallback(t *testing.T) {
	f := newFixture()
	in := input("", cart.LineInput{ProductID: "rose", Quantity: 1})

	_, err := f.svc.Create(context.Background(), "user-1", "", in)
	require.ErrorIs(t, err, ErrEmailRequired)

	in.Email = "payload@example.com"
	order, err := f.svc.Create(context.Background(), "user-1", "", in)
	require.NoError(t, err)
	require.Equal(t, "payload@example.com", order.Email)

	order, err = f.svc.Create(context.Background(), "user-1", "token@example.com", in)
	require.NoError(t, err)
	require.Equal(t, "token@example.com", order.Email)
}

func TestCreatePropagatesStoreFailure(t *testing.T) {
	f := newFixture()
	f.orders.err = errors.New("connection reset")
	_, err := f.svc.Create(context.Background(), "user-1", "client@example.com", input("",
		cart.LineInput{ProductID: "rose", Quantity: 1}))
	require.EqualError(t, err, "connection reset")
	require.Equal(t, 0, f.tx.commits)
}

func serveCheckout(t *testing.T, h *Handler, userID, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/checkout", strings.NewReader(body))
	if userID != "" {
		req = req.WithContext(common.WithUserID(req.Context(), userID))
	}
	rr := httptest.NewRecorder()
	h.Checkout(rr, req)
	return rr
}

func TestHandlerCheckout(t *testing.T) {
	f := newFixture()
	h := &Handler{Svc: f.svc}

	rr := serveCheckout(t, h, "", `{}`)
	require.Equal(t, http.StatusUnauthorized, rr.Code)

	rr = serveCheckout(t, h, "user-1", `{"lines":[],"shippingMethod":"standard"}`)
	require.Equal(t, http.StatusBadRequest, rr.Code)

	rr = serveCheckout(t, h, "user-1",
		`{"lines":[{"productId":"ambre","quantity":1}],"shippingMethod":"standard","email":"a@b.co"}`)
	require.Equal(t, http.StatusConflict, rr.Code)
	require.Contains(t, rr.Body.String(), "OUT_OF_STOCK")

	rr = serveCheckout(t, h, "user-1",
		`{"lines":[{"productId":"rose","quantity":1}],"shippingMethod":"standard","promoCode":"OLD","email":"a@b.co"}`)
	require.Equal(t, http.StatusConflict, rr.Code)
	require.Contains(t, rr.Body.String(), "PROMO_REJECTED")

	rr = serveCheckout(t, h, "user-1",
		`{"lines":[{"productId":"nope","quantity":1}],"shippingMethod":"standard","email":"a@b.co"}`)
	require.Equal(t, http.StatusBadRequest, rr.Code)
	require.Contains(t, rr.Body.String(), "UNKNOWN_PRODUCT")

	rr = serveCheckout(t, h, "user-1",
		`{"lines":[{"productId":"rose","quantity":2}],"shippingMethod":"express","email":"a@b.co"}`)
	require.Equal(t, http.StatusCreated, rr.Code)
	var body struct {
		Data struct {
			ID     string `json:"id"`
			Status string `json:"status"`
			Email  string `json:"email"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	require.Equal(t, "order-1", body.Data.ID)
	require.Equal(t, StatusPendingPayment, body.Data.Status)
	require.Equal(t, "a@b.co", body.Data.Email)
}
