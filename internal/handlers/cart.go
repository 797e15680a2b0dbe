package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	domain "github.com/maplecart/api/internal/domain"
	"github.com/maplecart/api/internal/platform/auth"
	"github.com/maplecart/api/internal/platform/httpx"
	"github.com/maplecart/api/internal/services"
)

const maxCartBodySize = 4 * 1024

// CartHandlers exposes the cart total preview and promo code entry.
type CartHandlers struct {
	authn        *auth.Authenticator
	carts        services.CartService
	promoLimiter rateLimiter
}

// CartOption customises cart handlers.
type CartOption func(*CartHandlers)

// WithPromotionRateLimit bounds promo code submissions per shopper per minute.
func WithPromotionRateLimit(perMinute int) CartOption {
	return func(h *CartHandlers) {
		h.promoLimiter = newPerMinuteRateLimiter(perMinute, nil)
	}
}

// NewCartHandlers constructs cart handlers requiring Firebase authentication.
func NewCartHandlers(authn *auth.Authenticator, carts services.CartService, opts ...CartOption) *CartHandlers {
	h := &CartHandlers{
		authn: authn,
		carts: carts,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

// Routes registers cart endpoints against the provided router.
func (h *CartHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireFirebaseAuth())
	}
	r.Get("/total", h.getTotal)
	r.Post("/promotion", h.applyPromotion)
	r.Delete("/promotion", h.removePromotion)
}

type applyPromotionRequest struct {
	Code        string              `json:"code"`
	Destination *destinationRequest `json:"destination"`
}

type cartTotalResponse struct {
	CartID      string             `json:"cart_id"`
	CartVersion int64              `json:"cart_version"`
	Destination destinationPayload `json:"destination"`
	Promotion   *promotionPayload  `json:"promotion,omitempty"`
	Total       orderTotalPayload  `json:"total"`
}

func (h *CartHandlers) getTotal(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.carts == nil {
		httpx.WriteError(ctx, w, httpx.NewError("cart_service_unavailable", "cart service is unavailable", http.StatusServiceUnavailable))
		return
	}
	identity, ok := requireShopper(w, r)
	if !ok {
		return
	}

	query := r.URL.Query()
	var international *bool
	if raw := strings.TrimSpace(query.Get("international")); raw != "" {
		value := strings.EqualFold(raw, "true") || raw == "1"
		international = &value
	}

	preview, err := h.carts.Preview(ctx, services.CartPreviewCommand{
		UserID:      identity.UID,
		Destination: destinationFromValues(query.Get("province"), query.Get("country"), international),
	})
	if err != nil {
		h.writeCartError(w, r, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildCartTotalResponse(preview))
}

func (h *CartHandlers) applyPromotion(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.carts == nil {
		httpx.WriteError(ctx, w, httpx.NewError("cart_service_unavailable", "cart service is unavailable", http.StatusServiceUnavailable))
		return
	}
	identity, ok := requireShopper(w, r)
	if !ok {
		return
	}
	if h.promoLimiter != nil && !h.promoLimiter.Allow(identity.UID) {
		writeRateLimited(w, r)
		return
	}

	var req applyPromotionRequest
	if !decodeOptionalJSON(w, r, maxCartBodySize, &req) {
		return
	}
	if strings.TrimSpace(req.Code) == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "code is required", http.StatusBadRequest))
		return
	}

	result, err := h.carts.ApplyPromotion(ctx, services.ApplyPromotionCommand{
		UserID:      identity.UID,
		Code:        req.Code,
		Destination: req.Destination.toDomain(),
	})
	if err != nil {
		h.writeCartError(w, r, err)
		return
	}

	payload := buildCartTotalResponse(result.Preview)
	if !result.Validation.Valid {
		httpx.WriteError(ctx, w, httpx.NewError("promotion_rejected", promoRejectionMessage(result.Validation.ErrorKind), http.StatusUnprocessableEntity).
			WithDetails(map[string]any{
				"error_kind": string(result.Validation.ErrorKind),
				"code":       result.Validation.Code,
				"cart":       payload,
			}))
		return
	}
	writeJSONResponse(w, http.StatusOK, payload)
}

func (h *CartHandlers) removePromotion(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.carts == nil {
		httpx.WriteError(ctx, w, httpx.NewError("cart_service_unavailable", "cart service is unavailable", http.StatusServiceUnavailable))
		return
	}
	identity, ok := requireShopper(w, r)
	if !ok {
		return
	}

	preview, err := h.carts.RemovePromotion(ctx, identity.UID)
	if err != nil {
		h.writeCartError(w, r, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildCartTotalResponse(preview))
}

func (h *CartHandlers) writeCartError(w http.ResponseWriter, r *http.Request, err error) {
	ctx := r.Context()
	switch {
	case errors.Is(err, services.ErrCartInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrCartNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("cart_not_found", "cart not found", http.StatusNotFound))
	case errors.Is(err, services.ErrCartStale):
		httpx.WriteError(ctx, w, httpx.NewError("cart_stale", "cart changed while the promotion was being checked; retry with the current cart", http.StatusConflict))
	case errors.Is(err, services.ErrCartPromotionsDisabled):
		httpx.WriteError(ctx, w, httpx.NewError("promotions_disabled", "promotion codes are not accepted right now", http.StatusForbidden))
	case errors.Is(err, services.ErrCartUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("cart_service_unavailable", "cart service is unavailable", http.StatusServiceUnavailable))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("internal_error", "failed to process cart request", http.StatusInternalServerError))
	}
}

func buildCartTotalResponse(preview services.CartPreview) cartTotalResponse {
	return cartTotalResponse{
		CartID:      preview.CartID,
		CartVersion: preview.CartVersion,
		Destination: buildDestinationPayload(preview.Destination),
		Promotion:   buildPromotionPayload(preview.Promotion),
		Total:       buildOrderTotalPayload(preview.Total),
	}
}

func promoRejectionMessage(kind domain.PromoErrorKind) string {
	switch kind {
	case domain.PromoErrorInvalidCode:
		return "promotion code is not valid"
	case domain.PromoErrorUsageExceeded:
		return "promotion code has no remaining uses"
	case domain.PromoErrorBelowMinimum:
		return "cart subtotal is below the promotion minimum"
	case domain.PromoErrorNetwork:
		return "promotion code could not be checked; try again"
	default:
		return "promotion code was not applied"
	}
}
