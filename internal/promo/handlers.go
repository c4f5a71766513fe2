package promo

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/noah-isme/maison-parfum/internal/common"
	"github.com/noah-isme/maison-parfum/internal/pricing"
)

// AdminStore maintains promo records for the back office.
type AdminStore interface {
	Create(ctx context.Context, c Code) (Code, error)
	Update(ctx context.Context, code string, c Code) (Code, error)
	List(ctx context.Context, limit, offset int) ([]Code, int, error)
}

// Handler exposes the promo validation endpoint and admin maintenance.
type Handler struct {
	Svc       *Service
	Admin     AdminStore
	Validator *validator.Validate
	Logger    zerolog.Logger
}

type validateRequest struct {
	Code       string         `json:"code" validate:"required,max=64"`
	OrderTotal *pricing.Money `json:"orderTotal"`
	ProductIDs []string       `json:"productIds" validate:"max=200,dive,required,max=64"`
}

type validateResponse struct {
	Valid          bool           `json:"valid"`
	PromoCode      *Public        `json:"promoCode,omitempty"`
	DiscountAmount *pricing.Money `json:"discountAmount,omitempty"`
	Error          string         `json:"error,omitempty"`
	Reason         Reason         `json:"reason,omitempty"`
	ExcludedItems  []string       `json:"excludedItems,omitempty"`
}

// Validate handles POST /promo/validate. Rate limiting is applied by the router.
func (h *Handler) Validate(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "promo service not configured", nil)
		return
	}
	var req validateRequest
	if err := common.DecodeJSON(w, r, &req); err != nil {
		common.WriteError(w, err)
		return
	}
	if err := common.ValidateStruct(h.validator(), req); err != nil {
		common.WriteError(w, err)
		return
	}
	subtotal := pricing.Zero
	if req.OrderTotal != nil {
		subtotal = *req.OrderTotal
	}

	outcome, err := h.Svc.Validate(r.Context(), req.Code, subtotal, req.ProductIDs)
	switch {
	case errors.Is(err, ErrCodeRequired), errors.Is(err, ErrInvalidSubtotal):
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error(), nil)
		return
	case errors.Is(err, ErrLookupFailed):
		common.JSONError(w, http.StatusServiceUnavailable, "LOOKUP_FAILED",
			"We could not check this promo code right now. Please try again later.", nil)
		return
	case err != nil:
		h.Logger.Error().Err(err).Msg("promo validate failed")
		common.WriteError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, toResponse(outcome))
}

func toResponse(o Outcome) validateResponse {
	if o.Valid {
		amount := o.DiscountAmount
		return validateResponse{Valid: true, PromoCode: o.Promo, DiscountAmount: &amount}
	}
	resp := validateResponse{Valid: false}
	if o.Rejection != nil {
		resp.Error = o.Rejection.Message
		resp.Reason = o.Rejection.Reason
		resp.ExcludedItems = o.Rejection.ExcludedItems
	}
	return resp
}

type codePayload struct {
	Code           string         `json:"code" validate:"required,max=64"`
	Description    string         `json:"description" validate:"max=500"`
	DiscountType   string         `json:"discountType" validate:"required,oneof=percentage fixed"`
	DiscountValue  pricing.Money  `json:"discountValue"`
	MinOrderAmount *pricing.Money `json:"minOrderAmount"`
	MaxUses        *int           `json:"maxUses" validate:"omitempty,gte=0,max=2147483647"`
	StartsAt       *time.Time     `json:"startsAt"`
	ExpiresAt      *time.Time     `json:"expiresAt"`
	IsActive       *bool          `json:"isActive"`
}

func (p codePayload) toCode(now time.Time) (Code, error) {
	c := Code{
		Code:           Canonicalize(p.Code),
		Description:    strings.TrimSpace(p.Description),
		DiscountType:   DiscountType(p.DiscountType),
		DiscountValue:  pricing.RoundMoney(p.DiscountValue),
		MinOrderAmount: pricing.Zero,
		MaxUses:        p.MaxUses,
		StartsAt:       now,
		ExpiresAt:      p.ExpiresAt,
		IsActive:       true,
	}
	if p.MinOrderAmount != nil {
		c.MinOrderAmount = pricing.RoundMoney(*p.MinOrderAmount)
	}
	if p.StartsAt != nil {
		c.StartsAt = *p.StartsAt
	}
	if p.IsActive != nil {
		c.IsActive = *p.IsActive
	}
	if c.ExpiresAt != nil && !c.ExpiresAt.After(c.StartsAt) {
		return Code{}, common.BadRequest("expiresAt must be after startsAt", nil)
	}
	if err := c.Check(); err != nil {
		return Code{}, common.BadRequest(strings.TrimPrefix(err.Error(), ErrMalformedRecord.Error()+": "), err)
	}
	return c, nil
}

// Create handles POST /admin/promo-codes.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	payload, ok := h.decodePayload(w, r)
	if !ok {
		return
	}
	c, err := payload.toCode(h.now())
	if err != nil {
		common.WriteError(w, err)
		return
	}
	created, err := h.Admin.Create(r.Context(), c)
	if err != nil {
		if errors.Is(err, ErrDuplicateCode) {
			common.JSONError(w, http.StatusConflict, "CONFLICT", "promo code already exists", nil)
			return
		}
		h.Logger.Error().Err(err).Str("code", c.Code).Msg("create promo code failed")
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "failed to create promo code", nil)
		return
	}
	common.Data(w, http.StatusCreated, adminView(created))
}

// Update handles PUT /admin/promo-codes/{code}.
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	code := Canonicalize(chi.URLParam(r, "code"))
	if code == "" {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "code is required", nil)
		return
	}
	payload, ok := h.decodePayload(w, r)
	if !ok {
		return
	}
	c, err := payload.toCode(h.now())
	if err != nil {
		common.WriteError(w, err)
		return
	}
	updated, err := h.Admin.Update(r.Context(), code, c)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			common.JSONError(w, http.StatusNotFound, "NOT_FOUND", "promo code not found", nil)
			return
		}
		h.Logger.Error().Err(err).Str("code", code).Msg("update promo code failed")
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "failed to update promo code", nil)
		return
	}
	common.Data(w, http.StatusOK, adminView(updated))
}

// List handles GET /admin/promo-codes.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	if h.Admin == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "promo store not configured", nil)
		return
	}
	page := common.ParsePagination(r, 20)
	codes, total, err := h.Admin.List(r.Context(), page.PerPage, page.Offset())
	if err != nil {
		h.Logger.Error().Err(err).Msg("list promo codes failed")
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "failed to list promo codes", nil)
		return
	}
	page.TotalItems = total
	views := make([]adminCode, 0, len(codes))
	for _, c := range codes {
		views = append(views, adminView(c))
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": views, "pagination": page})
}

type adminCode struct {
	Public
	MaxUses     *int       `json:"maxUses"`
	CurrentUses int        `json:"currentUses"`
	StartsAt    time.Time  `json:"startsAt"`
	ExpiresAt   *time.Time `json:"expiresAt"`
	IsActive    bool       `json:"isActive"`
}

func adminView(c Code) adminCode {
	return adminCode{
		Public:      c.Public(),
		MaxUses:     c.MaxUses,
		CurrentUses: c.CurrentUses,
		StartsAt:    c.StartsAt,
		ExpiresAt:   c.ExpiresAt,
		IsActive:    c.IsActive,
	}
}

func (h *Handler) decodePayload(w http.ResponseWriter, r *http.Request) (codePayload, bool) {
	if h.Admin == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "promo store not configured", nil)
		return codePayload{}, false
	}
	var payload codePayload
	if err := common.DecodeJSON(w, r, &payload); err != nil {
		common.WriteError(w, err)
		return codePayload{}, false
	}
	if err := common.ValidateStruct(h.validator(), payload); err != nil {
		common.WriteError(w, err)
		return codePayload{}, false
	}
	return payload, true
}

var defaultValidator = common.NewValidator()

func (h *Handler) validator() *validator.Validate {
	if h.Validator != nil {
		return h.Validator
	}
	return defaultValidator
}

func (h *Handler) now() time.Time {
	if h.Svc != nil {
		return h.Svc.now()
	}
	return time.Now()
}
