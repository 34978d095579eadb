package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/aistore/storefront/internal/platform/httpx"
	"github.com/aistore/storefront/internal/platform/requestctx"
	"github.com/aistore/storefront/internal/session"
)

const defaultMaxBodySize = 16 * 1024

var (
	errEmptyBody    = errors.New("request body is required")
	errBodyTooLarge = errors.New("request body exceeds allowed size")
)

// SessionSource resolves the visitor session attached to a request.
type SessionSource interface {
	Get(ctx context.Context, id string) (*session.Session, error)
}

func readLimitedBody(r *http.Request, limit int64) ([]byte, error) {
	if r == nil || r.Body == nil {
		return nil, errEmptyBody
	}
	if limit <= 0 {
		limit = defaultMaxBodySize
	}
	data, err := io.ReadAll(io.LimitReader(r.Body, limit+1))
	if err != nil {
		return nil, err
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil, errEmptyBody
	}
	if int64(len(data)) > limit {
		return nil, errBodyTooLarge
	}
	return data, nil
}

// decodeBody reads and unmarshals a JSON body, writing the error envelope on failure.
func decodeBody(w http.ResponseWriter, r *http.Request, limit int64, dest any) bool {
	ctx := r.Context()
	body, err := readLimitedBody(r, limit)
	if err != nil {
		if errors.Is(err, errBodyTooLarge) {
			httpx.WriteError(ctx, w, httpx.NewError("payload_too_large", err.Error(), http.StatusRequestEntityTooLarge))
			return false
		}
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return false
	}
	if err := json.Unmarshal(body, dest); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request body must be valid JSON", http.StatusBadRequest))
		return false
	}
	return true
}

func writeJSONResponse(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// currentSession loads the visitor session, writing the error envelope when none is attached.
func currentSession(w http.ResponseWriter, r *http.Request, sessions SessionSource) (*session.Session, bool) {
	ctx := r.Context()
	if sessions == nil {
		httpx.WriteError(ctx, w, httpx.NewError("session_unavailable", "session store is unavailable", http.StatusServiceUnavailable))
		return nil, false
	}
	id := requestctx.SessionID(ctx)
	if id == "" {
		httpx.WriteError(ctx, w, httpx.NewError("session_required", "visitor session is missing", http.StatusBadRequest))
		return nil, false
	}
	sess, err := sessions.Get(ctx, id)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("session_unavailable", "session store is unavailable", http.StatusServiceUnavailable))
		return nil, false
	}
	return sess, true
}
