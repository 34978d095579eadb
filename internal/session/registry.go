// Package session owns per-visitor state: the cart, the assistant panel and the cart's stock tracker.
package session

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/aistore/storefront/internal/cartstore"
	"github.com/aistore/storefront/internal/chatstore"
	"github.com/aistore/storefront/internal/stock"
)

const (
	defaultIdleTTL       = 2 * time.Hour
	defaultSweepInterval = 5 * time.Minute
)

// ErrRegistryClosed is returned once Close has been called.
var ErrRegistryClosed = errors.New("session: registry closed")

// Logger receives structured session events.
type Logger func(ctx context.Context, event string, fields map[string]any)

// Session is the state owned by one visitor.
type Session struct {
	ID    string
	Cart  *cartstore.Store
	Chat  *chatstore.Store
	Stock *stock.Tracker

	prepare  sync.Mutex
	attached bool
	detach   func()

	mu       sync.Mutex
	lastSeen time.Time
	cleared  map[string]struct{}
}

// ClearCartForOrder empties the cart the first time it is called for checkoutSessionID.
// It reports whether the cart was cleared by this call.
func (s *Session) ClearCartForOrder(ctx context.Context, checkoutSessionID string) bool {
	s.mu.Lock()
	if _, done := s.cleared[checkoutSessionID]; done {
		s.mu.Unlock()
		return false
	}
	s.cleared[checkoutSessionID] = struct{}{}
	s.mu.Unlock()

	s.Cart.ClearCart(ctx)
	return true
}

func (s *Session) touch(now time.Time) {
	s.mu.Lock()
	s.lastSeen = now
	s.mu.Unlock()
}

func (s *Session) idleSince(now time.Time) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return now.Sub(s.lastSeen)
}

func (s *Session) close() {
	s.prepare.Lock()
	detach := s.detach
	s.prepare.Unlock()
	if detach != nil {
		detach()
	}
	s.Stock.Close()
}

// Config wires a Registry.
type Config struct {
	Persister     cartstore.Persister
	Fetcher       stock.LevelFetcher
	IdleTTL       time.Duration
	SweepInterval time.Duration
	FetchTimeout  time.Duration
	Clock         func() time.Time
	Logger        Logger
}

// Registry creates sessions lazily and evicts idle ones.
type Registry struct {
	persister     cartstore.Persister
	fetcher       stock.LevelFetcher
	idleTTL       time.Duration
	sweepInterval time.Duration
	fetchTimeout  time.Duration
	now           func() time.Time
	logger        Logger

	mu       sync.Mutex
	sessions map[string]*Session
	closed   bool
}

// NewRegistry validates cfg and returns an empty registry.
func NewRegistry(cfg Config) (*Registry, error) {
	if cfg.Fetcher == nil {
		return nil, errors.New("session: stock fetcher is required")
	}
	idle := cfg.IdleTTL
	if idle <= 0 {
		idle = defaultIdleTTL
	}
	sweep := cfg.SweepInterval
	if sweep <= 0 {
		sweep = defaultSweepInterval
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &Registry{
		persister:     cfg.Persister,
		fetcher:       cfg.Fetcher,
		idleTTL:       idle,
		sweepInterval: sweep,
		fetchTimeout:  cfg.FetchTimeout,
		now:           func() time.Time { return clock().UTC() },
		logger:        logger,
		sessions:      make(map[string]*Session),
	}, nil
}

// Get returns the session for id, creating it on first use.
// Rehydration is retried on every Get until it succeeds; until then the cart lives in memory only.
func (r *Registry) Get(ctx context.Context, id string) (*Session, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, errors.New("session: id is required")
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil, ErrRegistryClosed
	}
	sess, ok := r.sessions[id]
	if !ok {
		sess = r.newSession(id)
		r.sessions[id] = sess
	}
	r.mu.Unlock()

	sess.touch(r.now())
	r.prepare(ctx, sess)
	return sess, nil
}

// prepare rehydrates the cart if it has not been loaded yet and attaches the stock tracker once.
func (r *Registry) prepare(ctx context.Context, sess *Session) {
	sess.prepare.Lock()
	defer sess.prepare.Unlock()

	if r.persister != nil && !sess.Cart.Hydrated() {
		if err := sess.Cart.Rehydrate(ctx); err != nil {
			r.logger(ctx, "session.rehydrate_failed", map[string]any{
				"sessionID": sess.ID,
				"error":     err.Error(),
			})
		}
	}
	if !sess.attached {
		sess.detach = sess.Stock.Attach(sess.Cart)
		sess.attached = true
	}
}

func (r *Registry) newSession(id string) *Session {
	cartOpts := []cartstore.Option{cartstore.WithLogger(cartstore.Logger(r.logger))}
	if r.persister != nil {
		cartOpts = append(cartOpts, cartstore.WithPersister(r.persister))
	}
	return &Session{
		ID:   id,
		Cart: cartstore.New(id, cartOpts...),
		Chat: chatstore.New(),
		Stock: stock.NewTracker(r.fetcher,
			stock.WithTrackerLogger(r.logger),
			stock.WithFetchTimeout(r.fetchTimeout),
			stock.WithTrackerClock(r.now),
		),
		cleared: make(map[string]struct{}),
	}
}

// Len reports the number of live sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Sweep closes and forgets sessions idle for longer than the configured TTL.
// Persisted carts survive eviction. It returns the number of sessions evicted.
func (r *Registry) Sweep(ctx context.Context) int {
	now := r.now()
	var evicted []*Session

	r.mu.Lock()
	for id, sess := range r.sessions {
		if sess.idleSince(now) > r.idleTTL {
			evicted = append(evicted, sess)
			delete(r.sessions, id)
		}
	}
	r.mu.Unlock()

	for _, sess := range evicted {
		sess.close()
	}
	if len(evicted) > 0 {
		r.logger(ctx, "session.swept", map[string]any{"evicted": len(evicted)})
	}
	return len(evicted)
}

// Run sweeps on the configured interval until ctx is done.
func (r *Registry) Run(ctx context.Context) {
	ticker := time.NewTicker(r.sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Sweep(ctx)
		}
	}
}

// Close evicts every session. Later Get calls fail with ErrRegistryClosed.
func (r *Registry) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	sessions := r.sessions
	r.sessions = make(map[string]*Session)
	r.mu.Unlock()

	for _, sess := range sessions {
		sess.close()
	}
}
