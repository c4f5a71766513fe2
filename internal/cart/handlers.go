package cart

import (
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/noah-isme/maison-parfum/internal/common"
	"github.com/noah-isme/maison-parfum/internal/pricing"
	"github.com/noah-isme/maison-parfum/internal/promo"
)

// Handler wires cart quotes to HTTP.
type Handler struct {
	Svc       *Service
	Validator *validator.Validate
	Logger    zerolog.Logger
}

// Quote handles POST /cart/quote.
func (h *Handler) Quote(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "cart service not configured", nil)
		return
	}
	var req Request
	if err := common.DecodeJSON(w, r, &req); err != nil {
		common.WriteError(w, err)
		return
	}
	v := h.Validator
	if v == nil {
		v = defaultValidator
	}
	if err := common.ValidateStruct(v, req); err != nil {
		common.WriteError(w, err)
		return
	}
	quote, err := h.Svc.Quote(r.Context(), req)
	if err != nil {
		WriteError(w, h.Logger, err)
		return
	}
	common.Data(w, http.StatusOK, quote)
}

var defaultValidator = common.NewValidator()

// WriteError maps pricing and lookup failures to HTTP responses. Collaborator
// failures are logged and answered with a generic message.
func WriteError(w http.ResponseWriter, logger zerolog.Logger, err error) {
	if _, ok := common.AsAppError(err); ok {
		common.WriteError(w, err)
		return
	}
	switch {
	case errors.Is(err, ErrInvalidInput),
		errors.Is(err, pricing.ErrInvalidLine),
		errors.Is(err, pricing.ErrInvalidShippingMethod),
		errors.Is(err, promo.ErrCodeRequired),
		errors.Is(err, promo.ErrInvalidSubtotal):
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error(), nil)
	case errors.Is(err, ErrUnknownItem):
		common.JSONError(w, http.StatusBadRequest, "UNKNOWN_PRODUCT", err.Error(), nil)
	case errors.Is(err, ErrCatalogUnavailable), errors.Is(err, promo.ErrLookupFailed):
		logger.Error().Err(err).Msg("cart pricing lookup failed")
		common.JSONError(w, http.StatusServiceUnavailable, "LOOKUP_FAILED",
			"We could not price your cart right now. Please try again later.", nil)
	default:
		logger.Error().Err(err).Msg("cart pricing failed")
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "internal server error", nil)
	}
}
