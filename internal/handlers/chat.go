package handlers

import (
	"errors"
	"html"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-chi/chi/v5"
	"github.com/microcosm-cc/bluemonday"
	"go.uber.org/zap"

	"github.com/aistore/storefront/internal/chatstore"
	"github.com/aistore/storefront/internal/platform/httpx"
	"github.com/aistore/storefront/internal/platform/requestctx"
	"github.com/aistore/storefront/internal/services"
)

const (
	maxChatBodySize      = 8 * 1024
	maxChatMessageLength = 2000
	chatMessagesPerMin   = 20
)

// ChatHandlers drives the shopping assistant panel for the visitor.
type ChatHandlers struct {
	sessions  SessionSource
	catalog   services.CatalogService
	sanitizer *bluemonday.Policy
	limiter   rateLimiter
}

// ChatOption customises ChatHandlers.
type ChatOption func(*ChatHandlers)

// WithChatClock sets the clock used by the message rate limiter.
func WithChatClock(now func() time.Time) ChatOption {
	return func(h *ChatHandlers) {
		h.limiter = newWindowLimiter(chatMessagesPerMin, time.Minute, now)
	}
}

// NewChatHandlers constructs chat handlers. catalog resolves product names for similar-product prompts.
func NewChatHandlers(sessions SessionSource, catalog services.CatalogService, opts ...ChatOption) *ChatHandlers {
	h := &ChatHandlers{
		sessions:  sessions,
		catalog:   catalog,
		sanitizer: bluemonday.StrictPolicy(),
		limiter:   newWindowLimiter(chatMessagesPerMin, time.Minute, nil),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

// Routes wires the chat endpoints.
func (h *ChatHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/chat", h.getChat)
	r.Post("/chat:open", h.transition((*chatstore.Store).OpenChat))
	r.Post("/chat:close", h.transition((*chatstore.Store).CloseChat))
	r.Post("/chat:toggle", h.transition((*chatstore.Store).ToggleChat))
	r.Post("/chat/messages", h.openWithMessage)
	r.Post("/chat/pending:consume", h.consumePending)
	r.Delete("/chat/pending", h.transition((*chatstore.Store).ClearPendingMessage))
	r.Post("/chat/similar", h.similarProducts)
}

type chatPayload struct {
	IsOpen         bool   `json:"isOpen"`
	PendingMessage string `json:"pendingMessage,omitempty"`
	HasPending     bool   `json:"hasPending"`
}

type chatMessageRequest struct {
	Message string `json:"message"`
}

type similarProductsRequest struct {
	Slug string `json:"slug"`
}

func (h *ChatHandlers) getChat(w http.ResponseWriter, r *http.Request) {
	sess, ok := currentSession(w, r, h.sessions)
	if !ok {
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"chat": chatResponse(sess.Chat.Snapshot())})
}

func (h *ChatHandlers) transition(fn func(*chatstore.Store) chatstore.State) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, ok := currentSession(w, r, h.sessions)
		if !ok {
			return
		}
		writeJSONResponse(w, http.StatusOK, map[string]any{"chat": chatResponse(fn(sess.Chat))})
	}
}

func (h *ChatHandlers) openWithMessage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sess, ok := currentSession(w, r, h.sessions)
	if !ok {
		return
	}
	if !allow(h.limiter, sess.ID) {
		httpx.WriteError(ctx, w, httpx.NewError("rate_limited", "too many messages, try again shortly", http.StatusTooManyRequests))
		return
	}
	var req chatMessageRequest
	if !decodeBody(w, r, maxChatBodySize, &req) {
		return
	}
	message, err := h.cleanMessage(req.Message)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"chat": chatResponse(sess.Chat.OpenChatWithMessage(message))})
}

func (h *ChatHandlers) consumePending(w http.ResponseWriter, r *http.Request) {
	sess, ok := currentSession(w, r, h.sessions)
	if !ok {
		return
	}
	message, found := sess.Chat.ConsumePendingMessage()
	writeJSONResponse(w, http.StatusOK, map[string]any{
		"message":    message,
		"hasPending": found,
	})
}

func (h *ChatHandlers) similarProducts(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sess, ok := currentSession(w, r, h.sessions)
	if !ok {
		return
	}
	if h.catalog == nil {
		httpx.WriteError(ctx, w, httpx.NewError("catalog_unavailable", "catalog service is unavailable", http.StatusServiceUnavailable))
		return
	}
	var req similarProductsRequest
	if !decodeBody(w, r, maxChatBodySize, &req) {
		return
	}
	product, err := h.catalog.GetProduct(ctx, req.Slug)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrCatalogInvalidInput):
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "slug is required", http.StatusBadRequest))
		case errors.Is(err, services.ErrCatalogNotFound):
			httpx.WriteError(ctx, w, httpx.NewError("product_not_found", "product not found", http.StatusNotFound))
		default:
			requestctx.Logger(ctx).Error("similar products lookup failed", zap.Error(err))
			httpx.WriteError(ctx, w, httpx.NewError("catalog_unavailable", "catalog is temporarily unavailable", http.StatusServiceUnavailable))
		}
		return
	}
	state := sess.Chat.OpenChatWithMessage(chatstore.SimilarProductsPrompt(product.Name))
	writeJSONResponse(w, http.StatusOK, map[string]any{"chat": chatResponse(state)})
}

// cleanMessage strips markup and rejects blank or oversized text.
func (h *ChatHandlers) cleanMessage(raw string) (string, error) {
	cleaned := strings.TrimSpace(html.UnescapeString(h.sanitizer.Sanitize(raw)))
	if cleaned == "" {
		return "", errors.New("message is required")
	}
	if utf8.RuneCountInString(cleaned) > maxChatMessageLength {
		return "", errors.New("message is too long")
	}
	return cleaned, nil
}

func chatResponse(state chatstore.State) chatPayload {
	return chatPayload{
		IsOpen:         state.IsOpen,
		PendingMessage: state.PendingMessage,
		HasPending:     state.HasPending,
	}
}
