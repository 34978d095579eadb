package stock

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/aistore/storefront/internal/cartstore"
	"github.com/aistore/storefront/internal/domain"
)

const defaultFetchTimeout = 10 * time.Second

// ErrTrackerClosed is returned by Refetch after Close.
var ErrTrackerClosed = errors.New("stock: tracker closed")

// LevelFetcher loads authoritative stock for exactly the given product ids.
type LevelFetcher interface {
	StockLevels(ctx context.Context, productIDs []string) (map[string]int, error)
}

// LevelFetcherFunc adapts a function to LevelFetcher.
type LevelFetcherFunc func(ctx context.Context, productIDs []string) (map[string]int, error)

// StockLevels implements LevelFetcher.
func (f LevelFetcherFunc) StockLevels(ctx context.Context, productIDs []string) (map[string]int, error) {
	return f(ctx, productIDs)
}

// Snapshot is the most recently applied reconciliation pass.
type Snapshot struct {
	Stock          map[string]domain.StockInfo
	HasStockIssues bool
	Loading        bool
	Err            error
	CheckedAt      time.Time
}

// Tracker keeps a cart's stock map current. A pass starts automatically whenever the set of product
// ids in the cart changes; quantity-only edits are recomputed against the last fetched levels. Each pass carries a sequence number
// and a completion older than the last applied pass is dropped.
type Tracker struct {
	fetcher LevelFetcher
	logger  func(ctx context.Context, event string, fields map[string]any)
	timeout time.Duration
	now     func() time.Time

	baseCtx context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	mu        sync.Mutex
	items     []domain.CartItem
	key       string
	issued    uint64
	applied   uint64
	inflight  int
	stock     map[string]domain.StockInfo
	levels    map[string]int
	levelsKey string
	lastErr   error
	checkedAt time.Time
	closed    bool
}

// TrackerOption customises a Tracker.
type TrackerOption func(*Tracker)

// WithTrackerLogger sets the diagnostics logger.
func WithTrackerLogger(logger func(ctx context.Context, event string, fields map[string]any)) TrackerOption {
	return func(t *Tracker) {
		if logger != nil {
			t.logger = logger
		}
	}
}

// WithFetchTimeout bounds automatic passes.
func WithFetchTimeout(d time.Duration) TrackerOption {
	return func(t *Tracker) {
		if d > 0 {
			t.timeout = d
		}
	}
}

// WithTrackerClock overrides the clock used for CheckedAt.
func WithTrackerClock(now func() time.Time) TrackerOption {
	return func(t *Tracker) {
		if now != nil {
			t.now = now
		}
	}
}

// NewTracker constructs a Tracker backed by fetcher.
func NewTracker(fetcher LevelFetcher, opts ...TrackerOption) *Tracker {
	ctx, cancel := context.WithCancel(context.Background())
	t := &Tracker{
		fetcher: fetcher,
		logger:  func(context.Context, string, map[string]any) {},
		timeout: defaultFetchTimeout,
		now:     time.Now,
		baseCtx: ctx,
		cancel:  cancel,
		stock:   map[string]domain.StockInfo{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(t)
		}
	}
	return t
}

// Attach follows store: the current items are observed immediately and on every transition.
// The returned func detaches the tracker.
func (t *Tracker) Attach(store *cartstore.Store) func() {
	unsubscribe := store.Subscribe(func(_, next cartstore.State) {
		t.Observe(next.Items)
	})
	t.Observe(store.Snapshot().Items)
	return unsubscribe
}

// Observe records the latest cart lines and starts a background pass when the id set changed.
// Otherwise the stock map is recomputed from the last fetched levels.
func (t *Tracker) Observe(items []domain.CartItem) {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	t.items = items
	key := setKey(items)
	if key == t.key {
		if key != "" && key == t.levelsKey {
			t.stock = Compute(items, t.levels)
		}
		t.mu.Unlock()
		return
	}
	t.key = key
	if key == "" {
		t.resetLocked()
		t.mu.Unlock()
		return
	}
	seq := t.beginLocked()
	t.wg.Add(1)
	t.mu.Unlock()

	go func() {
		defer t.wg.Done()
		ctx, cancel := context.WithTimeout(t.baseCtx, t.timeout)
		defer cancel()
		_ = t.pass(ctx, items, seq)
	}()
}

// Refetch runs a pass for the current lines and waits for it.
func (t *Tracker) Refetch(ctx context.Context) (Snapshot, error) {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return Snapshot{}, ErrTrackerClosed
	}
	items := t.items
	if len(ProductIDs(items)) == 0 {
		t.resetLocked()
		snap := t.snapshotLocked()
		t.mu.Unlock()
		return snap, nil
	}
	seq := t.beginLocked()
	t.mu.Unlock()

	err := t.pass(ctx, items, seq)
	return t.Snapshot(), err
}

// Snapshot returns the last applied pass.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.snapshotLocked()
}

// Wait blocks until background passes have finished.
func (t *Tracker) Wait() {
	t.wg.Wait()
}

// Close stops the tracker. Passes still in flight are discarded when they complete.
func (t *Tracker) Close() {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	t.closed = true
	t.mu.Unlock()
	t.cancel()
}

func (t *Tracker) pass(ctx context.Context, items []domain.CartItem, seq uint64) error {
	ids := ProductIDs(items)
	levels, err := t.fetcher.StockLevels(ctx, ids)

	t.mu.Lock()
	defer t.mu.Unlock()
	t.inflight--

	if t.closed {
		return ErrTrackerClosed
	}
	if seq <= t.applied {
		t.logger(ctx, "stock.pass_discarded", map[string]any{
			"seq":     seq,
			"applied": t.applied,
		})
		return nil
	}
	if err != nil {
		t.lastErr = err
		t.logger(ctx, "stock.fetch_failed", map[string]any{
			"seq":        seq,
			"productIds": ids,
			"error":      err.Error(),
		})
		return err
	}
	t.applied = seq
	t.levels = levels
	t.levelsKey = setKey(items)
	if t.levelsKey == setKey(t.items) {
		// Quantities may have moved while the fetch was running.
		items = t.items
	}
	t.stock = Compute(items, levels)
	t.lastErr = nil
	t.checkedAt = t.now()
	return nil
}

func (t *Tracker) beginLocked() uint64 {
	t.issued++
	t.inflight++
	return t.issued
}

func (t *Tracker) resetLocked() {
	t.issued++
	t.applied = t.issued
	t.stock = map[string]domain.StockInfo{}
	t.levels = nil
	t.levelsKey = ""
	t.lastErr = nil
}

func (t *Tracker) snapshotLocked() Snapshot {
	stock := make(map[string]domain.StockInfo, len(t.stock))
	for id, info := range t.stock {
		stock[id] = info
	}
	return Snapshot{
		Stock:          stock,
		HasStockIssues: HasStockIssues(stock),
		Loading:        t.inflight > 0,
		Err:            t.lastErr,
		CheckedAt:      t.checkedAt,
	}
}
