package cartstore

import (
	"context"
	"errors"
	"sync"
)

// ErrNoPersister is returned by Rehydrate when the store was built without persistence.
var ErrNoPersister = errors.New("cartstore: persister not configured")

// Listener observes committed state transitions.
type Listener func(prev, next State)

// Logger receives persistence diagnostics.
type Logger func(ctx context.Context, event string, fields map[string]any)

// Store serialises cart transitions for one visitor. Every mutation is an atomic read-modify-write
// over a single State value, and only items are written through to the persister.
type Store struct {
	key       string
	persister Persister
	logger    Logger

	mu        sync.Mutex
	state     State
	hydrated  bool
	listeners map[int]Listener
	nextID    int
}

// Option customises a Store.
type Option func(*Store)

// WithPersister enables write-through persistence of cart items.
func WithPersister(p Persister) Option {
	return func(s *Store) {
		s.persister = p
	}
}

// WithLogger sets the persistence diagnostics logger.
func WithLogger(logger Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithInitialState seeds the store, e.g. with a server-computed cart.
func WithInitialState(state State) Option {
	return func(s *Store) {
		s.state = State{Items: cloneItems(state.Items), IsOpen: state.IsOpen}
	}
}

// New constructs an unhydrated store. Call Rehydrate to load persisted items.
func New(key string, opts ...Option) *Store {
	s := &Store{
		key:       key,
		state:     State{Items: []Item{}},
		listeners: make(map[int]Listener),
		logger:    func(context.Context, string, map[string]any) {},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Key returns the persistence key of the store.
func (s *Store) Key() string { return s.key }

// Snapshot returns the current state. The returned slice must not be mutated.
func (s *Store) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Hydrated reports whether Rehydrate has completed successfully.
func (s *Store) Hydrated() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hydrated
}

// Rehydrate replaces the in-memory items with the persisted ones. Visibility is left unchanged.
// When nothing is persisted the in-memory items are kept and saved.
func (s *Store) Rehydrate(ctx context.Context) error {
	if s.persister == nil {
		return ErrNoPersister
	}
	items, found, err := s.persister.Load(ctx, s.key)
	if err != nil {
		return err
	}

	s.mu.Lock()
	prev := s.state
	next := prev
	if found {
		next = State{Items: sanitizeLoaded(items), IsOpen: prev.IsOpen}
	} else if len(prev.Items) > 0 {
		// Nothing persisted yet: keep what was added in memory and write it through now.
		if err := s.persister.Save(ctx, s.key, prev.Items); err != nil {
			s.logger(ctx, "cart.persist_failed", map[string]any{
				"key":   s.key,
				"error": err.Error(),
			})
		}
	}
	s.state = next
	s.hydrated = true
	listeners := s.listenerList()
	s.mu.Unlock()

	notify(listeners, prev, next)
	return nil
}

// AddItem adds quantity of item to the cart.
func (s *Store) AddItem(ctx context.Context, item Item, quantity int) State {
	return s.apply(ctx, func(st State) State { return AddItem(st, item, quantity) })
}

// RemoveItem removes the line for productID.
func (s *Store) RemoveItem(ctx context.Context, productID string) State {
	return s.apply(ctx, func(st State) State { return RemoveItem(st, productID) })
}

// UpdateQuantity sets the quantity for productID.
func (s *Store) UpdateQuantity(ctx context.Context, productID string, quantity int) State {
	return s.apply(ctx, func(st State) State { return UpdateQuantity(st, productID, quantity) })
}

// ClearCart empties the cart.
func (s *Store) ClearCart(ctx context.Context) State {
	return s.apply(ctx, ClearCart)
}

// ToggleCart flips visibility.
func (s *Store) ToggleCart(ctx context.Context) State {
	return s.apply(ctx, ToggleCart)
}

// OpenCart shows the cart.
func (s *Store) OpenCart(ctx context.Context) State {
	return s.apply(ctx, OpenCart)
}

// CloseCart hides the cart.
func (s *Store) CloseCart(ctx context.Context) State {
	return s.apply(ctx, CloseCart)
}

// Subscribe registers fn for every committed transition and returns a func removing it.
func (s *Store) Subscribe(fn Listener) func() {
	if fn == nil {
		return func() {}
	}
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		delete(s.listeners, id)
		s.mu.Unlock()
	}
}

func (s *Store) apply(ctx context.Context, transition func(State) State) State {
	s.mu.Lock()
	prev := s.state
	next := transition(prev)
	s.state = next
	persist := s.persister != nil && s.hydrated && itemsChanged(prev.Items, next.Items)
	listeners := s.listenerList()
	if persist {
		// Saving under the lock keeps the persisted order identical to the commit order.
		if err := s.persister.Save(ctx, s.key, next.Items); err != nil {
			s.logger(ctx, "cart.persist_failed", map[string]any{
				"key":   s.key,
				"error": err.Error(),
			})
		}
	}
	s.mu.Unlock()

	notify(listeners, prev, next)
	return next
}

func (s *Store) listenerList() []Listener {
	if len(s.listeners) == 0 {
		return nil
	}
	out := make([]Listener, 0, len(s.listeners))
	for id := 0; id < s.nextID; id++ {
		if fn, ok := s.listeners[id]; ok {
			out = append(out, fn)
		}
	}
	return out
}

func notify(listeners []Listener, prev, next State) {
	for _, fn := range listeners {
		fn(prev, next)
	}
}

func itemsChanged(a, b []Item) bool {
	if len(a) != len(b) {
		return true
	}
	for i := range a {
		if a[i] != b[i] {
			return true
		}
	}
	return false
}

func sanitizeLoaded(items []Item) []Item {
	out := []Item{}
	var st State
	for _, item := range items {
		st = AddItem(st, item, item.Quantity)
	}
	if len(st.Items) > 0 {
		out = st.Items
	}
	return out
}
