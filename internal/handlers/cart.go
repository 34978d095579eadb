package handlers

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/aistore/storefront/internal/cartstore"
	domain "github.com/aistore/storefront/internal/domain"
	"github.com/aistore/storefront/internal/platform/httpx"
	"github.com/aistore/storefront/internal/platform/requestctx"
	"github.com/aistore/storefront/internal/stock"
)

const maxCartBodySize = 8 * 1024

// CartHandlers exposes the visitor cart and its stock reconciliation.
type CartHandlers struct {
	sessions SessionSource
	currency string
}

// NewCartHandlers constructs cart handlers backed by the session registry.
func NewCartHandlers(sessions SessionSource, currency string) *CartHandlers {
	return &CartHandlers{sessions: sessions, currency: currency}
}

// Routes wires the cart endpoints.
func (h *CartHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/cart", h.getCart)
	r.Delete("/cart", h.clearCart)
	r.Post("/cart/items", h.addItem)
	r.Put("/cart/items/{productId}", h.updateQuantity)
	r.Delete("/cart/items/{productId}", h.removeItem)
	r.Post("/cart:open", h.visibility(func(ctx context.Context, s *cartstore.Store) cartstore.State { return s.OpenCart(ctx) }))
	r.Post("/cart:close", h.visibility(func(ctx context.Context, s *cartstore.Store) cartstore.State { return s.CloseCart(ctx) }))
	r.Post("/cart:toggle", h.visibility(func(ctx context.Context, s *cartstore.Store) cartstore.State { return s.ToggleCart(ctx) }))
	r.Get("/cart/stock", h.getStock)
}

type cartItemPayload struct {
	ProductID      string  `json:"productId"`
	Name           string  `json:"name"`
	Price          float64 `json:"price"`
	FormattedPrice string  `json:"formattedPrice"`
	Quantity       int     `json:"quantity"`
	Image          string  `json:"image,omitempty"`
}

type cartPayload struct {
	Items          []cartItemPayload `json:"items"`
	IsOpen         bool              `json:"isOpen"`
	TotalItems     int               `json:"totalItems"`
	TotalPrice     float64           `json:"totalPrice"`
	FormattedTotal string            `json:"formattedTotal"`
}

type addItemRequest struct {
	ProductID string  `json:"productId"`
	Name      string  `json:"name"`
	Price     float64 `json:"price"`
	Quantity  int     `json:"quantity"`
	Image     string  `json:"image"`
}

type updateQuantityRequest struct {
	Quantity *int `json:"quantity"`
}

type stockInfoPayload struct {
	CurrentStock      int  `json:"currentStock"`
	IsOutOfStock      bool `json:"isOutOfStock"`
	ExceedsStock      bool `json:"exceedsStock"`
	AvailableQuantity int  `json:"availableQuantity"`
	LowStock          bool `json:"lowStock"`
}

type stockPayload struct {
	Stock          map[string]stockInfoPayload `json:"stock"`
	HasStockIssues bool                        `json:"hasStockIssues"`
	Loading        bool                        `json:"loading"`
	Error          string                      `json:"error,omitempty"`
	CheckedAt      string                      `json:"checkedAt,omitempty"`
}

func (h *CartHandlers) getCart(w http.ResponseWriter, r *http.Request) {
	sess, ok := currentSession(w, r, h.sessions)
	if !ok {
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"cart": h.cartPayload(sess.Cart.Snapshot())})
}

func (h *CartHandlers) addItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sess, ok := currentSession(w, r, h.sessions)
	if !ok {
		return
	}
	var req addItemRequest
	if !decodeBody(w, r, maxCartBodySize, &req) {
		return
	}
	item := domain.CartItem{
		ProductID: strings.TrimSpace(req.ProductID),
		Name:      strings.TrimSpace(req.Name),
		Price:     req.Price,
		Image:     strings.TrimSpace(req.Image),
	}
	if item.ProductID == "" || item.Name == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "productId and name are required", http.StatusBadRequest))
		return
	}
	if item.Price < 0 {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "price must not be negative", http.StatusBadRequest))
		return
	}
	quantity := req.Quantity
	if quantity <= 0 {
		quantity = 1
	}
	state := sess.Cart.AddItem(ctx, item, quantity)
	writeJSONResponse(w, http.StatusOK, map[string]any{"cart": h.cartPayload(state)})
}

func (h *CartHandlers) updateQuantity(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sess, ok := currentSession(w, r, h.sessions)
	if !ok {
		return
	}
	var req updateQuantityRequest
	if !decodeBody(w, r, maxCartBodySize, &req) {
		return
	}
	if req.Quantity == nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "quantity is required", http.StatusBadRequest))
		return
	}
	state := sess.Cart.UpdateQuantity(ctx, chi.URLParam(r, "productId"), *req.Quantity)
	writeJSONResponse(w, http.StatusOK, map[string]any{"cart": h.cartPayload(state)})
}

func (h *CartHandlers) removeItem(w http.ResponseWriter, r *http.Request) {
	sess, ok := currentSession(w, r, h.sessions)
	if !ok {
		return
	}
	state := sess.Cart.RemoveItem(r.Context(), chi.URLParam(r, "productId"))
	writeJSONResponse(w, http.StatusOK, map[string]any{"cart": h.cartPayload(state)})
}

func (h *CartHandlers) clearCart(w http.ResponseWriter, r *http.Request) {
	sess, ok := currentSession(w, r, h.sessions)
	if !ok {
		return
	}
	state := sess.Cart.ClearCart(r.Context())
	writeJSONResponse(w, http.StatusOK, map[string]any{"cart": h.cartPayload(state)})
}

func (h *CartHandlers) visibility(transition func(context.Context, *cartstore.Store) cartstore.State) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, ok := currentSession(w, r, h.sessions)
		if !ok {
			return
		}
		state := transition(r.Context(), sess.Cart)
		writeJSONResponse(w, http.StatusOK, map[string]any{"cart": h.cartPayload(state)})
	}
}

// getStock returns the last reconciliation pass, or runs one now with ?refresh=true.
func (h *CartHandlers) getStock(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sess, ok := currentSession(w, r, h.sessions)
	if !ok {
		return
	}

	snap := sess.Stock.Snapshot()
	if refresh, _ := strconv.ParseBool(r.URL.Query().Get("refresh")); refresh {
		var err error
		snap, err = sess.Stock.Refetch(ctx)
		if err != nil {
			requestctx.Logger(ctx).Warn("stock refetch failed", zap.Error(err))
			snap = sess.Stock.Snapshot()
		}
	}
	writeJSONResponse(w, http.StatusOK, stockResponse(snap))
}

func stockResponse(snap stock.Snapshot) stockPayload {
	out := stockPayload{
		Stock:          make(map[string]stockInfoPayload, len(snap.Stock)),
		HasStockIssues: snap.HasStockIssues,
		Loading:        snap.Loading,
	}
	for id, info := range snap.Stock {
		out.Stock[id] = stockInfoPayload{
			CurrentStock:      info.CurrentStock,
			IsOutOfStock:      info.IsOutOfStock,
			ExceedsStock:      info.ExceedsStock,
			AvailableQuantity: info.AvailableQuantity,
			LowStock:          stock.IsLowStock(info.CurrentStock),
		}
	}
	if snap.Err != nil {
		out.Error = "stock levels are temporarily unavailable"
	}
	if !snap.CheckedAt.IsZero() {
		out.CheckedAt = snap.CheckedAt.UTC().Format(time.RFC3339Nano)
	}
	return out
}

func (h *CartHandlers) cartPayload(state cartstore.State) cartPayload {
	items := make([]cartItemPayload, len(state.Items))
	for i, item := range state.Items {
		items[i] = cartItemPayload{
			ProductID:      item.ProductID,
			Name:           item.Name,
			Price:          item.Price,
			FormattedPrice: domain.FormatPrice(item.Price, h.currency),
			Quantity:       item.Quantity,
			Image:          item.Image,
		}
	}
	total := state.TotalPrice()
	return cartPayload{
		Items:          items,
		IsOpen:         state.IsOpen,
		TotalItems:     state.TotalItems(),
		TotalPrice:     total,
		FormattedTotal: domain.FormatPrice(total, h.currency),
	}
}
