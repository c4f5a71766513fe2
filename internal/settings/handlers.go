package settings

import (
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/noah-isme/maison-parfum/internal/common"
	"github.com/noah-isme/maison-parfum/internal/pricing"
)

// Handler exposes shipping settings to the back office.
type Handler struct {
	Svc       *Service
	Validator *validator.Validate
	Logger    zerolog.Logger
}

type shippingPayload struct {
	FreeShippingThreshold *pricing.Money `json:"freeShippingThreshold" validate:"required"`
	StandardPrice         *pricing.Money `json:"standardPrice" validate:"required"`
	ExpressPrice          *pricing.Money `json:"expressPrice" validate:"required"`
}

// GetShipping handles GET /admin/settings/shipping.
func (h *Handler) GetShipping(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "settings service not configured", nil)
		return
	}
	common.Data(w, http.StatusOK, h.Svc.Shipping(r.Context()))
}

// PutShipping handles PUT /admin/settings/shipping.
func (h *Handler) PutShipping(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "settings service not configured", nil)
		return
	}
	var payload shippingPayload
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
	updated, err := h.Svc.UpdateShipping(r.Context(), pricing.ShippingSettings{
		FreeShippingThreshold: *payload.FreeShippingThreshold,
		StandardPrice:         *payload.StandardPrice,
		ExpressPrice:          *payload.ExpressPrice,
	})
	switch {
	case errors.Is(err, ErrNegativeAmount):
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "shipping amounts must not be negative", nil)
		return
	case err != nil:
		h.Logger.Error().Err(err).Msg("update shipping settings failed")
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "failed to update shipping settings", nil)
		return
	}
	common.Data(w, http.StatusOK, updated)
}

var defaultValidator = common.NewValidator()
