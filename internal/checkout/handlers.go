package checkout

import (
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/noah-isme/maison-parfum/internal/auth"
	"github.com/noah-isme/maison-parfum/internal/cart"
	"github.com/noah-isme/maison-parfum/internal/common"
)

// Handler exposes checkout over HTTP.
type Handler struct {
	Svc       *Service
	Validator *validator.Validate
	Logger    zerolog.Logger
}

var defaultValidator = common.NewValidator()

// Checkout handles POST /checkout.
func (h *Handler) Checkout(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "checkout service not configured", nil)
		return
	}
	userID, ok := common.UserID(r.Context())
	if !ok {
		common.JSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "authentication required", nil)
		return
	}
	var payload Input
	if err := common.DecodeJSON(w, r, &payload); err != nil {
		common.WriteError(w, err)
		return
	}
	v := h.Validator
	if v == nil {
		v = defaultValidator
	}
	if err := common.ValidateStruct(v, payload); err != nil {
		common.WriteError(w, err)
		return
	}
	order, err := h.Svc.Create(r.Context(), userID, auth.Email(r.Context()), payload)
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.Data(w, http.StatusCreated, order)
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	var stock *OutOfStockError
	var rejected *PromoRejectedError
	switch {
	case errors.As(err, &stock):
		common.JSONError(w, http.StatusConflict, "OUT_OF_STOCK",
			"Some items in your cart are out of stock.", map[string]any{"productIds": stock.ProductIDs})
	case errors.As(err, &rejected):
		common.JSONError(w, http.StatusConflict, "PROMO_REJECTED", rejected.Rejection.Message, rejected.Rejection)
	case errors.Is(err, ErrEmailRequired):
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "a contact email is required", nil)
	default:
		cart.WriteError(w, h.Logger, err)
	}
}
