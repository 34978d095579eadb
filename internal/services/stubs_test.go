package services

import (
	"context"
	"sync"
	"time"

	domain "github.com/aistore/storefront/internal/domain"
	"github.com/aistore/storefront/internal/payments"
	"github.com/aistore/storefront/internal/repositories"
)

type stubProductRepository struct {
	findByIDsFunc  func(ctx context.Context, ids []string) (map[string]domain.Product, error)
	findBySlugFunc func(ctx context.Context, slug string) (domain.Product, error)
	listFunc       func(ctx context.Context, q repositories.ProductQuery) ([]domain.Product, error)
	featuredFunc   func(ctx context.Context, limit int) ([]domain.Product, error)
	findByIDsCalls int
}

func (s *stubProductRepository) FindByIDs(ctx context.Context, ids []string) (map[string]domain.Product, error) {
	s.findByIDsCalls++
	if s.findByIDsFunc != nil {
		return s.findByIDsFunc(ctx, ids)
	}
	return map[string]domain.Product{}, nil
}

func (s *stubProductRepository) FindBySlug(ctx context.Context, slug string) (domain.Product, error) {
	if s.findBySlugFunc != nil {
		return s.findBySlugFunc(ctx, slug)
	}
	return domain.Product{}, nil
}

func (s *stubProductRepository) List(ctx context.Context, q repositories.ProductQuery) ([]domain.Product, error) {
	if s.listFunc != nil {
		return s.listFunc(ctx, q)
	}
	return nil, nil
}

func (s *stubProductRepository) Featured(ctx context.Context, limit int) ([]domain.Product, error) {
	if s.featuredFunc != nil {
		return s.featuredFunc(ctx, limit)
	}
	return nil, nil
}

type stubCategoryRepository struct {
	categories []domain.Category
	err        error
	calls      int
}

func (s *stubCategoryRepository) List(context.Context) ([]domain.Category, error) {
	s.calls++
	return s.categories, s.err
}

// memoryCustomerRepository mimics the Firestore repository: one record per email,
// create returns the existing record when one is present.
type memoryCustomerRepository struct {
	mu        sync.Mutex
	byEmail   map[string]domain.Customer
	findErr   error
	createErr error
	patchErr  error
	creates   int
	patches   int
	onFind    func(ctx context.Context) error
}

func newMemoryCustomerRepository() *memoryCustomerRepository {
	return &memoryCustomerRepository{byEmail: map[string]domain.Customer{}}
}

func (r *memoryCustomerRepository) FindByEmail(ctx context.Context, email string) (domain.Customer, error) {
	if r.onFind != nil {
		if err := r.onFind(ctx); err != nil {
			return domain.Customer{}, err
		}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.findErr != nil {
		return domain.Customer{}, r.findErr
	}
	c, ok := r.byEmail[email]
	if !ok {
		return domain.Customer{}, notFoundErr{}
	}
	return c, nil
}

func (r *memoryCustomerRepository) Create(_ context.Context, c domain.Customer) (domain.Customer, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.createErr != nil {
		return domain.Customer{}, false, r.createErr
	}
	if existing, ok := r.byEmail[c.Email]; ok {
		return existing, false, nil
	}
	r.creates++
	c.ID = "cms_" + c.Email
	r.byEmail[c.Email] = c
	return c, true, nil
}

func (r *memoryCustomerRepository) Patch(_ context.Context, id string, patch domain.CustomerPatch) (domain.Customer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.patchErr != nil {
		return domain.Customer{}, r.patchErr
	}
	for email, c := range r.byEmail {
		if c.ID != id {
			continue
		}
		r.patches++
		c.PaymentCustomerID = patch.PaymentCustomerID
		c.AuthUserID = patch.AuthUserID
		c.Name = patch.Name
		c.UpdatedAt = patch.UpdatedAt
		r.byEmail[email] = c
		return c, nil
	}
	return domain.Customer{}, notFoundErr{}
}

type notFoundErr struct{}

func (notFoundErr) Error() string       { return "not found" }
func (notFoundErr) IsNotFound() bool    { return true }
func (notFoundErr) IsConflict() bool    { return false }
func (notFoundErr) IsUnavailable() bool { return false }

type unavailableErr struct{}

func (unavailableErr) Error() string       { return "backend unavailable" }
func (unavailableErr) IsNotFound() bool    { return false }
func (unavailableErr) IsConflict() bool    { return false }
func (unavailableErr) IsUnavailable() bool { return true }

// stubGateway is an in-memory processor. Customer creation is keyed by idempotency key.
type stubGateway struct {
	mu             sync.Mutex
	customers      map[string]*payments.Customer
	findErr        error
	createErr      error
	findCalls      int
	createCalls    int
	createKeys     []string
	createSession  func(ctx context.Context, req payments.CheckoutSessionRequest) (payments.CheckoutSession, error)
	getSession     func(ctx context.Context, id string) (payments.SessionDetails, error)
	sessionCalls   int
	sessionRequest payments.CheckoutSessionRequest
}

func newStubGateway() *stubGateway {
	return &stubGateway{customers: map[string]*payments.Customer{}}
}

func (g *stubGateway) FindCustomerByEmail(_ context.Context, email string) (*payments.Customer, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.findCalls++
	if g.findErr != nil {
		return nil, g.findErr
	}
	for _, c := range g.customers {
		if c.Email == email {
			return c, nil
		}
	}
	return nil, nil
}

func (g *stubGateway) CreateCustomer(_ context.Context, req payments.CreateCustomerRequest) (*payments.Customer, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.createCalls++
	g.createKeys = append(g.createKeys, req.IdempotencyKey)
	if g.createErr != nil {
		return nil, g.createErr
	}
	if c, ok := g.customers[req.IdempotencyKey]; ok {
		return c, nil
	}
	c := &payments.Customer{ID: "cus_" + req.Email, Email: req.Email, Name: req.Name}
	g.customers[req.IdempotencyKey] = c
	return c, nil
}

func (g *stubGateway) CreateCheckoutSession(ctx context.Context, req payments.CheckoutSessionRequest) (payments.CheckoutSession, error) {
	g.mu.Lock()
	g.sessionCalls++
	g.sessionRequest = req
	g.mu.Unlock()
	if g.createSession != nil {
		return g.createSession(ctx, req)
	}
	return payments.CheckoutSession{ID: "cs_test_1", URL: "https://checkout.stripe.com/c/pay/cs_test_1"}, nil
}

func (g *stubGateway) GetCheckoutSession(ctx context.Context, id string) (payments.SessionDetails, error) {
	if g.getSession != nil {
		return g.getSession(ctx, id)
	}
	return payments.SessionDetails{}, payments.ErrSessionNotFound
}

type stubResolver struct {
	resolveFunc func(ctx context.Context, cmd ResolveCustomerCommand) (CustomerResolution, error)
	calls       int
	last        ResolveCustomerCommand
}

func (s *stubResolver) ResolveCustomer(ctx context.Context, cmd ResolveCustomerCommand) (CustomerResolution, error) {
	s.calls++
	s.last = cmd
	if s.resolveFunc != nil {
		return s.resolveFunc(ctx, cmd)
	}
	return CustomerResolution{PaymentCustomerID: "cus_1", CustomerID: "cms_1"}, nil
}

type stubPublisher struct {
	events []CheckoutSessionCreatedEvent
	err    error
}

func (p *stubPublisher) PublishCheckoutSessionCreated(_ context.Context, event CheckoutSessionCreatedEvent) (string, error) {
	p.events = append(p.events, event)
	return "msg-1", p.err
}

type recordingMetrics struct {
	mu          sync.Mutex
	outcomes    []string
	paths       []string
	stockErrors int
	stockCalls  int
}

func (m *recordingMetrics) CheckoutOutcome(outcome string, _ time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.outcomes = append(m.outcomes, outcome)
}

func (m *recordingMetrics) CustomerResolution(path string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.paths = append(m.paths, path)
}

func (m *recordingMetrics) StockFetch(err error, _ time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stockCalls++
	if err != nil {
		m.stockErrors++
	}
}

type recordingLogger struct {
	mu     sync.Mutex
	events []string
}

func (l *recordingLogger) log(_ context.Context, event string, _ map[string]any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, event)
}

func (l *recordingLogger) has(event string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, e := range l.events {
		if e == event {
			return true
		}
	}
	return false
}

func paymentsCustomer(id, email string) *payments.Customer {
	return &payments.Customer{ID: id, Email: email}
}
