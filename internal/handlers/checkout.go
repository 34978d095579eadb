package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	domain "github.com/aistore/storefront/internal/domain"
	"github.com/aistore/storefront/internal/platform/auth"
	"github.com/aistore/storefront/internal/platform/httpx"
	"github.com/aistore/storefront/internal/platform/requestctx"
	"github.com/aistore/storefront/internal/services"
)

const (
	checkoutAttemptsPerMin = 5
	landingRedirectPath    = "/"
)

// Shopper-facing messages.
const (
	msgSignInToCheckout   = "Please sign in to checkout"
	msgCartEmpty          = "Your cart is empty"
	msgGatewayFailed      = "Payment gateway initialization failed"
	msgInvalidSession     = "Invalid Session ID"
	msgNotAuthenticated   = "Not authenticated"
	msgOrderAccessDenied  = "Order access denied"
	msgOrderUnavailable   = "Order details currently unavailable"
	msgTooManyCheckouts   = "Too many checkout attempts, please wait a moment"
	msgMissingCustomer    = "Missing required customer information"
	msgCustomerSyncFailed = "Failed to synchronize customer account. Please try again."
)

// CheckoutHandlers turns the visitor cart into a payment session and serves order confirmations.
type CheckoutHandlers struct {
	checkout services.CheckoutService
	sessions SessionSource
	limiter  rateLimiter
}

// CheckoutOption customises CheckoutHandlers.
type CheckoutOption func(*CheckoutHandlers)

// WithCheckoutClock sets the clock used by the attempt rate limiter.
func WithCheckoutClock(now func() time.Time) CheckoutOption {
	return func(h *CheckoutHandlers) {
		h.limiter = newWindowLimiter(checkoutAttemptsPerMin, time.Minute, now)
	}
}

// NewCheckoutHandlers constructs checkout handlers. Identity comes from optional Firebase auth upstream.
func NewCheckoutHandlers(checkout services.CheckoutService, sessions SessionSource, opts ...CheckoutOption) *CheckoutHandlers {
	h := &CheckoutHandlers{
		checkout: checkout,
		sessions: sessions,
		limiter:  newWindowLimiter(checkoutAttemptsPerMin, time.Minute, nil),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

// Routes registers the API checkout endpoints.
func (h *CheckoutHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/checkout", h.createSession)
	r.Get("/checkout/sessions/{sessionId}", h.getOrder)
}

// LandingRoutes registers the processor success redirect target.
func (h *CheckoutHandlers) LandingRoutes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/checkout/success", h.successLanding)
}

type checkoutResponse struct {
	Success   bool   `json:"success"`
	URL       string `json:"url,omitempty"`
	SessionID string `json:"sessionId,omitempty"`
	ExpiresAt string `json:"expiresAt,omitempty"`
}

type addressPayload struct {
	Line1      string `json:"line1,omitempty"`
	Line2      string `json:"line2,omitempty"`
	City       string `json:"city,omitempty"`
	State      string `json:"state,omitempty"`
	PostalCode string `json:"postalCode,omitempty"`
	Country    string `json:"country,omitempty"`
}

type orderLinePayload struct {
	Name        string `json:"name"`
	Quantity    int64  `json:"quantity"`
	AmountTotal int64  `json:"amountTotal"`
	Currency    string `json:"currency,omitempty"`
}

type orderPayload struct {
	SessionID       string             `json:"sessionId"`
	Status          string             `json:"status"`
	CustomerEmail   string             `json:"customerEmail,omitempty"`
	CustomerName    string             `json:"customerName,omitempty"`
	AmountTotal     int64              `json:"amountTotal"`
	FormattedTotal  string             `json:"formattedTotal"`
	Currency        string             `json:"currency"`
	ShippingName    string             `json:"shippingName,omitempty"`
	ShippingAddress *addressPayload    `json:"shippingAddress,omitempty"`
	Lines           []orderLinePayload `json:"lines"`
	PaymentIntentID string             `json:"paymentIntentId,omitempty"`
}

func (h *CheckoutHandlers) createSession(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.checkout == nil {
		httpx.WriteError(ctx, w, checkoutFailure("checkout_unavailable", "checkout service unavailable", http.StatusServiceUnavailable))
		return
	}

	identity := checkoutIdentity(ctx)
	if identity == nil {
		httpx.WriteError(ctx, w, checkoutFailure("unauthenticated", msgSignInToCheckout, http.StatusUnauthorized))
		return
	}
	if !allow(h.limiter, identity.UserID) {
		httpx.WriteError(ctx, w, checkoutFailure("rate_limited", msgTooManyCheckouts, http.StatusTooManyRequests))
		return
	}

	sess, ok := currentSession(w, r, h.sessions)
	if !ok {
		return
	}

	result, err := h.checkout.CreateCheckoutSession(ctx, services.CreateCheckoutSessionCommand{
		Identity: identity,
		Items:    sess.Cart.Snapshot().Items,
	})
	if err != nil {
		writeCheckoutError(ctx, w, err)
		return
	}

	resp := checkoutResponse{Success: true, URL: result.URL, SessionID: result.SessionID}
	if !result.ExpiresAt.IsZero() {
		resp.ExpiresAt = result.ExpiresAt.UTC().Format(time.RFC3339)
	}
	writeJSONResponse(w, http.StatusOK, resp)
}

func (h *CheckoutHandlers) getOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.checkout == nil {
		httpx.WriteError(ctx, w, httpx.NewError("checkout_unavailable", "checkout service unavailable", http.StatusServiceUnavailable))
		return
	}
	order, err := h.checkout.GetOrderConfirmation(ctx, services.OrderConfirmationQuery{
		SessionID: chi.URLParam(r, "sessionId"),
		UserID:    identityUID(ctx),
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"order": buildOrderPayload(order)})
}

// successLanding shows the confirmation and empties the cart the first time a session is seen.
// Callers that may not view the order are sent back to the storefront.
func (h *CheckoutHandlers) successLanding(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sessionID := strings.TrimSpace(r.URL.Query().Get("session_id"))
	if h.checkout == nil || !services.IsCheckoutSessionID(sessionID) {
		http.Redirect(w, r, landingRedirectPath, http.StatusSeeOther)
		return
	}

	order, err := h.checkout.GetOrderConfirmation(ctx, services.OrderConfirmationQuery{
		SessionID: sessionID,
		UserID:    identityUID(ctx),
	})
	if err != nil {
		if errors.Is(err, services.ErrOrderUnavailable) {
			requestctx.Logger(ctx).Warn("order confirmation unavailable",
				zap.String("checkoutSessionID", sessionID),
				zap.Error(err),
			)
		}
		http.Redirect(w, r, landingRedirectPath, http.StatusSeeOther)
		return
	}

	cleared := false
	if requestctx.SessionID(ctx) != "" && h.sessions != nil {
		if sess, err := h.sessions.Get(ctx, requestctx.SessionID(ctx)); err == nil {
			cleared = sess.ClearCartForOrder(ctx, order.SessionID)
		} else {
			requestctx.Logger(ctx).Warn("cart clear skipped", zap.Error(err))
		}
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{
		"order":       buildOrderPayload(order),
		"cartCleared": cleared,
	})
}

func checkoutIdentity(ctx context.Context) *services.CheckoutIdentity {
	identity, ok := auth.IdentityFromContext(ctx)
	if !ok || strings.TrimSpace(identity.UID) == "" {
		return nil
	}
	email, err := identity.PrimaryEmail(ctx)
	if err != nil {
		requestctx.Logger(ctx).Warn("user email lookup failed", zap.Error(err))
		email = identity.Email
	}
	return &services.CheckoutIdentity{
		UserID: identity.UID,
		Email:  email,
		Name:   identity.DisplayName(),
	}
}

func identityUID(ctx context.Context) string {
	identity, ok := auth.IdentityFromContext(ctx)
	if !ok {
		return ""
	}
	return strings.TrimSpace(identity.UID)
}

func checkoutFailure(code, message string, status int) httpx.Error {
	return httpx.NewError(code, message, status).WithDetails(map[string]any{"success": false})
}

func writeCheckoutError(ctx context.Context, w http.ResponseWriter, err error) {
	var validation *services.CheckoutValidationError
	switch {
	case errors.As(err, &validation):
		httpx.WriteError(ctx, w, checkoutFailure("cart_invalid", validation.Message(), http.StatusConflict).WithDetails(map[string]any{
			"success":  false,
			"problems": validation.Problems,
		}))
	case errors.Is(err, services.ErrCheckoutUnauthenticated):
		httpx.WriteError(ctx, w, checkoutFailure("unauthenticated", msgSignInToCheckout, http.StatusUnauthorized))
	case errors.Is(err, services.ErrCheckoutEmptyCart):
		httpx.WriteError(ctx, w, checkoutFailure("empty_cart", msgCartEmpty, http.StatusBadRequest))
	case errors.Is(err, services.ErrCustomerInvalidInput):
		httpx.WriteError(ctx, w, checkoutFailure("customer_incomplete", msgMissingCustomer, http.StatusBadRequest))
	case errors.Is(err, services.ErrCustomerSyncFailed):
		httpx.WriteError(ctx, w, checkoutFailure("customer_sync_failed", msgCustomerSyncFailed, http.StatusBadGateway))
	default:
		if !errors.Is(err, services.ErrCheckoutFailed) {
			requestctx.Logger(ctx).Error("checkout failed", zap.Error(err))
		}
		httpx.WriteError(ctx, w, checkoutFailure("checkout_failed", msgGatewayFailed, http.StatusBadGateway))
	}
}

func writeOrderError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrOrderInvalidSession):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_session", msgInvalidSession, http.StatusBadRequest))
	case errors.Is(err, services.ErrOrderUnauthenticated):
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", msgNotAuthenticated, http.StatusUnauthorized))
	case errors.Is(err, services.ErrOrderAccessDenied):
		httpx.WriteError(ctx, w, httpx.NewError("access_denied", msgOrderAccessDenied, http.StatusForbidden))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("order_unavailable", msgOrderUnavailable, http.StatusBadGateway))
	}
}

func buildOrderPayload(order domain.OrderConfirmation) orderPayload {
	lines := make([]orderLinePayload, len(order.Lines))
	for i, line := range order.Lines {
		lines[i] = orderLinePayload{
			Name:        line.Name,
			Quantity:    line.Quantity,
			AmountTotal: line.AmountTotal,
			Currency:    line.Currency,
		}
	}
	payload := orderPayload{
		SessionID:       order.SessionID,
		Status:          order.Status,
		CustomerEmail:   order.CustomerEmail,
		CustomerName:    order.CustomerName,
		AmountTotal:     order.AmountTotal,
		FormattedTotal:  domain.FormatPrice(domain.FromMinorUnits(order.AmountTotal), order.Currency),
		Currency:        order.Currency,
		ShippingName:    order.ShippingName,
		Lines:           lines,
		PaymentIntentID: order.PaymentIntentID,
	}
	if addr := order.ShippingAddress; addr != nil {
		payload.ShippingAddress = &addressPayload{
			Line1:      addr.Line1,
			Line2:      addr.Line2,
			City:       addr.City,
			State:      addr.State,
			PostalCode: addr.PostalCode,
			Country:    addr.Country,
		}
	}
	return payload
}
