package promo

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/maison-parfum/internal/catalog"
	"github.com/noah-isme/maison-parfum/internal/pricing"
	"github.com/noah-isme/maison-parfum/internal/ratelimit"
)

type memoryAdmin struct {
	codes map[string]Code
}

func (m *memoryAdmin) Create(_ context.Context, c Code) (Code, error) {
	if _, ok := m.codes[c.Code]; ok {
		return Code{}, ErrDuplicateCode
	}
	c.ID = "id-" + c.Code
	m.codes[c.Code] = c
	return c, nil
}

func (m *memoryAdmin) Update(_ context.Context, code string, c Code) (Code, error) {
	existing, ok := m.codes[code]
	if !ok {
		return Code{}, ErrNotFound
	}
	c.ID, c.Code, c.CurrentUses = existing.ID, existing.Code, existing.CurrentUses
	m.codes[code] = c
	return c, nil
}

func (m *memoryAdmin) List(context.Context, int, int) ([]Code, int, error) {
	out := make([]Code, 0, len(m.codes))
	for _, c := range m.codes {
		out = append(out, c)
	}
	return out, len(out), nil
}

type validateBody struct {
	Valid          bool           `json:"valid"`
	PromoCode      *Public        `json:"promoCode"`
	DiscountAmount *pricing.Money `json:"discountAmount"`
	Error          string         `json:"error"`
	Reason         Reason         `json:"reason"`
}

func newRouter(h *Handler, limiter ratelimit.Limiter) http.Handler {
	r := chi.NewRouter()
	limited := ratelimit.Handler{
		Limiter: limiter,
		Config:  ratelimit.Config{Window: time.Minute, Max: 10, Scope: "promo_validate"},
	}
	r.With(limited.Middleware).Post("/promo/validate", h.Validate)
	r.Post("/admin/promo-codes", h.Create)
	r.Put("/admin/promo-codes/{code}", h.Update)
	r.Get("/admin/promo-codes", h.List)
	return r
}

func post(t *testing.T, router http.Handler, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Forwarded-For", "198.51.100.20")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}

func TestValidateEndpointAcceptsCode(t *testing.T) {
	h := &Handler{Svc: newService(storeWith(validCode()), &stubExclusions{})}
	rr := post(t, newRouter(h, ratelimit.NewFixedWindow()), "/promo/validate",
		`{"code":"spring10","orderTotal":200,"productIds":["p-1"]}`)
	require.Equal(t, http.StatusOK, rr.Code)

	var body validateBody
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	require.True(t, body.Valid)
	require.Equal(t, "SPRING10", body.PromoCode.Code)
	require.True(t, pricing.MustParse("20").Equal(*body.DiscountAmount))
}

func TestValidateEndpointReportsRejection(t *testing.T) {
	excl := &stubExclusions{excluded: map[string]catalog.Item{"pack-9": {ID: "pack-9", Name: "Coffret Noël"}}}
	h := &Handler{Svc: newService(storeWith(), excl)}
	rr := post(t, newRouter(h, ratelimit.NewFixedWindow()), "/promo/validate",
		`{"code":"ghost","orderTotal":10,"productIds":["pack-9"]}`)
	require.Equal(t, http.StatusOK, rr.Code)

	var body validateBody
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	require.False(t, body.Valid)
	require.Equal(t, ReasonExcludedItems, body.Reason)
	require.Contains(t, body.Error, "Coffret Noël")
}

func TestValidateEndpointLookupFailureIsGeneric(t *testing.T) {
	h := &Handler{Svc: newService(&stubStore{err: errors.New("pq: password authentication failed")}, &stubExclusions{})}
	rr := post(t, newRouter(h, ratelimit.NewFixedWindow()), "/promo/validate", `{"code":"SPRING10"}`)
	require.Equal(t, http.StatusServiceUnavailable, rr.Code)
	require.Contains(t, rr.Body.String(), "LOOKUP_FAILED")
	require.NotContains(t, rr.Body.String(), "password")
}

func TestValidateEndpointRejectsBadInput(t *testing.T) {
	h := &Handler{Svc: newService(storeWith(validCode()), &stubExclusions{})}
	router := newRouter(h, ratelimit.NewFixedWindow())

	require.Equal(t, http.StatusBadRequest, post(t, router, "/promo/validate", `{"code":""}`).Code)
	require.Equal(t, http.StatusBadRequest, post(t, router, "/promo/validate", `{"code":"A","orderTotal":-3}`).Code)
	require.Equal(t, http.StatusBadRequest, post(t, router, "/promo/validate", `{"code":"A","extra":true}`).Code)
}

func TestValidateEndpointIsRateLimitedBeforePromoLogic(t *testing.T) {
	store := storeWith(validCode())
	h := &Handler{Svc: newService(store, &stubExclusions{})}
	router := newRouter(h, ratelimit.NewFixedWindow())

	for i := 0; i < 10; i++ {
		require.Equal(t, http.StatusOK, post(t, router, "/promo/validate", `{"code":"SPRING10","orderTotal":50}`).Code)
	}
	rr := post(t, router, "/promo/validate", `{"code":"SPRING10","orderTotal":50}`)
	require.Equal(t, http.StatusTooManyRequests, rr.Code)
	require.Contains(t, rr.Body.String(), `"retryAfter":60`)
	require.Equal(t, 10, store.calls)
}

func TestAdminCreateUpdateList(t *testing.T) {
	admin := &memoryAdmin{codes: map[string]Code{}}
	h := &Handler{Svc: newService(storeWith(), &stubExclusions{}), Admin: admin}
	router := newRouter(h, ratelimit.NewFixedWindow())

	rr := post(t, router, "/admin/promo-codes",
		`{"code":" welcome5 ","discountType":"fixed","discountValue":5,"minOrderAmount":20,"maxUses":100}`)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	created := admin.codes["WELCOME5"]
	require.True(t, created.IsActive)
	require.Equal(t, evalNow, created.StartsAt)
	require.Equal(t, 100, *created.MaxUses)

	rr = post(t, router, "/admin/promo-codes", `{"code":"WELCOME5","discountType":"fixed","discountValue":5}`)
	require.Equal(t, http.StatusConflict, rr.Code)

	req := httptest.NewRequest(http.MethodPut, "/admin/promo-codes/welcome5",
		strings.NewReader(`{"code":"WELCOME5","discountType":"percentage","discountValue":15,"isActive":false}`))
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	require.False(t, admin.codes["WELCOME5"].IsActive)
	require.Equal(t, Percentage, admin.codes["WELCOME5"].DiscountType)

	req = httptest.NewRequest(http.MethodGet, "/admin/promo-codes?limit=5", nil)
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)
	require.Contains(t, rr.Body.String(), `"totalItems":1`)
}

func TestAdminRejectsMalformedCodes(t *testing.T) {
	admin := &memoryAdmin{codes: map[string]Code{}}
	h := &Handler{Svc: newService(storeWith(), &stubExclusions{}), Admin: admin}
	router := newRouter(h, ratelimit.NewFixedWindow())

	cases := []string{
		`{"code":"X","discountType":"percentage","discountValue":120}`,
		`{"code":"X","discountType":"fixed","discountValue":-1}`,
		`{"code":"X","discountType":"bogo","discountValue":1}`,
		`{"code":"X","discountType":"fixed","discountValue":1,"maxUses":-2}`,
		`{"code":"X","discountType":"fixed","discountValue":1,"maxUses":3000000000}`,
		`{"code":"X","discountType":"fixed","discountValue":1,"maxUses":4294967297}`,
		`{"code":"X","discountType":"fixed","discountValue":1,"startsAt":"2025-06-02T00:00:00Z","expiresAt":"2025-06-01T00:00:00Z"}`,
	}
	for _, body := range cases {
		rr := post(t, router, "/admin/promo-codes", body)
		require.Equal(t, http.StatusBadRequest, rr.Code, body)
	}
	require.Empty(t, admin.codes)
}

func TestAdminUpdateRejectsOversizedMaxUses(t *testing.T) {
	admin := &memoryAdmin{codes: map[string]Code{"SPRING": {ID: "id-SPRING", Code: "SPRING", DiscountType: Fixed}}}
	h := &Handler{Svc: newService(storeWith(), &stubExclusions{}), Admin: admin}
	router := newRouter(h, ratelimit.NewFixedWindow())

	req := httptest.NewRequest(http.MethodPut, "/admin/promo-codes/spring",
		strings.NewReader(`{"code":"SPRING","discountType":"fixed","discountValue":5,"maxUses":2147483648}`))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	require.Equal(t, http.StatusBadRequest, rr.Code, rr.Body.String())
	require.Nil(t, admin.codes["SPRING"].MaxUses)
}
