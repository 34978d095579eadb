package services

import (
	"context"
	"time"

	domain "github.com/aistore/storefront/internal/domain"
)

// Type aliases expose domain models to the services package without reversing dependency direction.
type (
	Product            = domain.Product
	ProductFilter      = domain.ProductFilter
	Category           = domain.Category
	Customer           = domain.Customer
	CartItem           = domain.CartItem
	OrderConfirmation  = domain.OrderConfirmation
	SystemHealthReport = domain.SystemHealthReport
)

// Logger receives structured service events.
type Logger func(ctx context.Context, event string, fields map[string]any)

// CatalogService serves product browsing and the authoritative stock lookups used by cart reconciliation.
type CatalogService interface {
	ListProducts(ctx context.Context, filter ProductFilter) ([]Product, error)
	GetProduct(ctx context.Context, slug string) (Product, error)
	FeaturedProducts(ctx context.Context) ([]Product, error)
	ListCategories(ctx context.Context) ([]Category, error)
	StockLevels(ctx context.Context, productIDs []string) (map[string]int, error)
}

// CustomerResolver links an authenticated user to a CMS customer and a payment processor customer.
type CustomerResolver interface {
	ResolveCustomer(ctx context.Context, cmd ResolveCustomerCommand) (CustomerResolution, error)
}

// CheckoutService turns a cart into a hosted payment session and reads completed sessions back.
type CheckoutService interface {
	CreateCheckoutSession(ctx context.Context, cmd CreateCheckoutSessionCommand) (CheckoutSessionResult, error)
	GetOrderConfirmation(ctx context.Context, cmd OrderConfirmationQuery) (OrderConfirmation, error)
}

// SystemService reports service health.
type SystemService interface {
	HealthReport(ctx context.Context) (SystemHealthReport, error)
}

// CheckoutIdentity is the signed-in shopper placing an order.
type CheckoutIdentity struct {
	UserID string
	Email  string
	Name   string
}

// CreateCheckoutSessionCommand carries the cart to be paid for. A nil Identity means the caller is anonymous.
type CreateCheckoutSessionCommand struct {
	Identity *CheckoutIdentity
	Items    []CartItem
}

// CheckoutSessionResult is a created payment session.
type CheckoutSessionResult struct {
	SessionID      string
	URL            string
	ExpiresAt      time.Time
	CustomerID     string
	IdempotencyKey string
}

// OrderConfirmationQuery identifies the session to read and the caller reading it.
type OrderConfirmationQuery struct {
	SessionID string
	UserID    string
}

// ResolveCustomerCommand is the input to customer resolution.
type ResolveCustomerCommand struct {
	Email  string
	Name   string
	UserID string
}

// CustomerResolution is the resolved pair of identifiers plus the CMS record.
type CustomerResolution struct {
	PaymentCustomerID string
	CustomerID        string
	Customer          Customer
	Path              string
}

// OrderDataLine is the compact id/quantity encoding stored with checkout sessions.
type OrderDataLine struct {
	ProductID string `json:"id"`
	Quantity  int    `json:"q"`
}

// CheckoutSessionCreatedEvent is published after a payment session is opened.
type CheckoutSessionCreatedEvent struct {
	SessionID      string          `json:"sessionId"`
	AuthUserID     string          `json:"authUserId"`
	CustomerID     string          `json:"cmsCustomerId"`
	Currency       string          `json:"currency"`
	AmountSubtotal int64           `json:"amountSubtotal"`
	Lines          []OrderDataLine `json:"lines"`
	CreatedAt      time.Time       `json:"createdAt"`
	IdempotencyKey string          `json:"idempotencyKey,omitempty"`
}

// CheckoutEventPublisher delivers checkout events for out-of-band fulfillment.
type CheckoutEventPublisher interface {
	PublishCheckoutSessionCreated(ctx context.Context, event CheckoutSessionCreatedEvent) (string, error)
}

// CheckoutMetrics records checkout outcomes.
type CheckoutMetrics interface {
	CheckoutOutcome(outcome string, elapsed time.Duration)
}

// CustomerMetrics records which resolution path was taken.
type CustomerMetrics interface {
	CustomerResolution(path string)
}

// StockMetrics records authoritative stock lookups.
type StockMetrics interface {
	StockFetch(err error, elapsed time.Duration)
}

func noopLogger(context.Context, string, map[string]any) {}
