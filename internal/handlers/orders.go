package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	domain "github.com/maplecart/api/internal/domain"
	"github.com/maplecart/api/internal/platform/auth"
	"github.com/maplecart/api/internal/platform/httpx"
	"github.com/maplecart/api/internal/platform/idempotency"
	"github.com/maplecart/api/internal/services"
)

const maxOrderBodySize = 4 * 1024

// OrderHandlers exposes order submission and read endpoints for authenticated shoppers.
type OrderHandlers struct {
	authn            *auth.Authenticator
	checkout         services.CheckoutService
	orders           services.OrderService
	submitMiddleware []func(http.Handler) http.Handler
}

// OrderOption customises order handlers.
type OrderOption func(*OrderHandlers)

// WithSubmitMiddlewares wraps POST /orders, typically with the idempotency middleware.
func WithSubmitMiddlewares(mw ...func(http.Handler) http.Handler) OrderOption {
	return func(h *OrderHandlers) {
		h.submitMiddleware = append(h.submitMiddleware, mw...)
	}
}

// NewOrderHandlers constructs a new OrderHandlers instance.
func NewOrderHandlers(authn *auth.Authenticator, checkout services.CheckoutService, orders services.OrderService, opts ...OrderOption) *OrderHandlers {
	h := &OrderHandlers{
		authn:    authn,
		checkout: checkout,
		orders:   orders,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

// Routes registers order endpoints against the provided router.
func (h *OrderHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireFirebaseAuth())
	}
	submit := chi.Chain(compactMiddlewares(h.submitMiddleware)...).HandlerFunc(h.submitOrder)
	r.Method(http.MethodPost, "/", submit)
	r.Get("/{orderId}", h.getOrder)
}

type submitOrderRequest struct {
	Destination *destinationRequest `json:"destination"`
}

type submitOrderResponse struct {
	Order        orderPayload    `json:"order"`
	ClientSecret string          `json:"client_secret,omitempty"`
	Warning      *warningPayload `json:"warning,omitempty"`
}

type orderResponse struct {
	Order orderPayload `json:"order"`
}

type orderPayload struct {
	ID              string              `json:"id"`
	CartID          string              `json:"cart_id"`
	Status          string              `json:"status"`
	Currency        string              `json:"currency"`
	Lines           []orderLinePayload  `json:"lines"`
	Destination     destinationPayload  `json:"destination"`
	Totals          orderTotalPayload   `json:"totals"`
	Promotion       *promotionPayload   `json:"promotion,omitempty"`
	PaymentIntentID string              `json:"payment_intent_id,omitempty"`
	Corrections     []correctionPayload `json:"corrections,omitempty"`
	CreatedAt       string              `json:"created_at,omitempty"`
	UpdatedAt       string              `json:"updated_at,omitempty"`
}

type orderLinePayload struct {
	ID        string `json:"id"`
	ProductID string `json:"product_id"`
	SKU       string `json:"sku,omitempty"`
	Name      string `json:"name,omitempty"`
	Kind      string `json:"kind"`
	UnitPrice int64  `json:"unit_price"`
	Quantity  int    `json:"quantity"`
	LineTotal int64  `json:"line_total"`
}

type correctionPayload struct {
	Reason         string `json:"reason"`
	PromotionCode  string `json:"promotion_code,omitempty"`
	PreviousTotal  int64  `json:"previous_total"`
	CorrectedTotal int64  `json:"corrected_total"`
	Message        string `json:"message"`
	CreatedAt      string `json:"created_at,omitempty"`
}

type warningPayload struct {
	Code           string `json:"code"`
	Message        string `json:"message"`
	PreviousTotal  int64  `json:"previous_total"`
	CorrectedTotal int64  `json:"corrected_total"`
}

func (h *OrderHandlers) submitOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.checkout == nil {
		httpx.WriteError(ctx, w, httpx.NewError("checkout_unavailable", "checkout service is unavailable", http.StatusServiceUnavailable))
		return
	}
	identity, ok := requireShopper(w, r)
	if !ok {
		return
	}

	var req submitOrderRequest
	if !decodeOptionalJSON(w, r, maxOrderBodySize, &req) {
		return
	}

	result, err := h.checkout.SubmitOrder(ctx, services.SubmitOrderCommand{
		UserID:         identity.UID,
		Destination:    req.Destination.toDomain(),
		IdempotencyKey: idempotency.KeyFromContext(ctx),
	})
	if err != nil {
		h.writeCheckoutError(w, r, result, err)
		return
	}

	writeJSONResponse(w, http.StatusCreated, buildSubmitOrderResponse(result))
}

func (h *OrderHandlers) getOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service is unavailable", http.StatusServiceUnavailable))
		return
	}
	identity, ok := requireShopper(w, r)
	if !ok {
		return
	}

	orderID := strings.TrimSpace(chi.URLParam(r, "orderId"))
	if orderID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "order id is required", http.StatusBadRequest))
		return
	}

	order, err := h.orders.GetOrder(ctx, identity.UID, orderID)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrOrderInvalidInput):
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		case errors.Is(err, services.ErrOrderNotFound):
			httpx.WriteError(ctx, w, httpx.NewError("order_not_found", "order not found", http.StatusNotFound))
		case errors.Is(err, services.ErrOrderUnavailable):
			httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service is unavailable", http.StatusServiceUnavailable))
		default:
			httpx.WriteError(ctx, w, httpx.NewError("internal_error", "failed to load order", http.StatusInternalServerError))
		}
		return
	}

	writeJSONResponse(w, http.StatusOK, orderResponse{Order: buildOrderPayload(order)})
}

func (h *OrderHandlers) writeCheckoutError(w http.ResponseWriter, r *http.Request, result services.SubmitOrderResult, err error) {
	ctx := r.Context()
	switch {
	case errors.Is(err, services.ErrCheckoutPaymentFailed):
		// The order exists; the client can retry payment against it.
		details := map[string]any{}
		if result.Order.ID != "" {
			details["order_id"] = result.Order.ID
			details["grand_total"] = result.Order.Totals.GrandTotal
		}
		if result.Warning != nil {
			details["warning"] = buildWarningPayload(result.Warning)
		}
		httpx.WriteError(ctx, w, httpx.NewError("payment_failed", "payment could not be initialised", http.StatusPaymentRequired).WithDetails(details))
	case errors.Is(err, services.ErrCheckoutInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrCheckoutCartNotReady):
		httpx.WriteError(ctx, w, httpx.NewError("cart_not_ready", "cart is empty or missing", http.StatusConflict))
	case errors.Is(err, services.ErrCheckoutConflict):
		httpx.WriteError(ctx, w, httpx.NewError("order_conflict", "order could not be created; retry", http.StatusConflict))
	case errors.Is(err, services.ErrCheckoutUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("checkout_unavailable", "checkout is temporarily unavailable", http.StatusServiceUnavailable))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("internal_error", "failed to submit order", http.StatusInternalServerError))
	}
}

func buildSubmitOrderResponse(result services.SubmitOrderResult) submitOrderResponse {
	return submitOrderResponse{
		Order:        buildOrderPayload(result.Order),
		ClientSecret: result.ClientSecret,
		Warning:      buildWarningPayload(result.Warning),
	}
}

func buildWarningPayload(warning *services.OrderWarning) *warningPayload {
	if warning == nil {
		return nil
	}
	return &warningPayload{
		Code:           warning.Code,
		Message:        warning.Message,
		PreviousTotal:  warning.PreviousTotal,
		CorrectedTotal: warning.CorrectedTotal,
	}
}

func buildOrderPayload(order domain.Order) orderPayload {
	payload := orderPayload{
		ID:              order.ID,
		CartID:          order.CartID,
		Status:          string(order.Status),
		Currency:        order.Currency,
		Lines:           make([]orderLinePayload, 0, len(order.Lines)),
		Destination:     buildDestinationPayload(order.Destination),
		Totals:          buildOrderTotalPayload(order.Totals),
		PaymentIntentID: order.PaymentIntentID,
		CreatedAt:       formatTime(order.CreatedAt),
		UpdatedAt:       formatTime(order.UpdatedAt),
	}
	for _, line := range order.Lines {
		payload.Lines = append(payload.Lines, orderLinePayload{
			ID:        line.ID,
			ProductID: line.ProductID,
			SKU:       line.SKU,
			Name:      line.Name,
			Kind:      string(line.Kind),
			UnitPrice: line.UnitPrice,
			Quantity:  line.Quantity,
			LineTotal: line.LineTotal(),
		})
	}
	if order.Promotion != nil {
		payload.Promotion = buildPromotionPayload(*order.Promotion)
	}
	for _, c := range order.Corrections {
		payload.Corrections = append(payload.Corrections, correctionPayload{
			Reason:         c.Reason,
			PromotionCode:  c.PromotionCode,
			PreviousTotal:  c.PreviousTotal,
			CorrectedTotal: c.CorrectedTotal,
			Message:        c.Message,
			CreatedAt:      formatTime(c.CreatedAt),
		})
	}
	return payload
}

func compactMiddlewares(mws []func(http.Handler) http.Handler) []func(http.Handler) http.Handler {
	out := make([]func(http.Handler) http.Handler, 0, len(mws))
	for _, mw := range mws {
		if mw != nil {
			out = append(out, mw)
		}
	}
	return out
}
