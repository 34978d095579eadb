package payments

import (
	"errors"
	"time"

	"github.com/aistore/storefront/internal/domain"
)

var (
	// ErrSessionNotFound is returned when the processor has no checkout session for the id.
	ErrSessionNotFound = errors.New("payments: checkout session not found")
	// ErrInvalidRequest indicates the request failed local validation before any processor call.
	ErrInvalidRequest = errors.New("payments: invalid request")
)

// Customer is the processor-side customer record.
type Customer struct {
	ID    string
	Email string
	Name  string
}

// CreateCustomerRequest describes a new processor customer.
type CreateCustomerRequest struct {
	Email          string
	Name           string
	Metadata       map[string]string
	IdempotencyKey string
}

// LineItem is one priced line of a checkout session. UnitAmount is in minor units.
type LineItem struct {
	Name       string
	Image      string
	UnitAmount int64
	Quantity   int64
	Currency   string
	Metadata   map[string]string
}

// CheckoutSessionRequest captures everything required to open a hosted checkout session.
type CheckoutSessionRequest struct {
	CustomerID       string
	Currency         string
	Items            []LineItem
	SuccessURL       string
	CancelURL        string
	AllowedCountries []string
	AllowPromotion   bool
	RequireBilling   bool
	Metadata         map[string]string
	IdempotencyKey   string
}

// CheckoutSession is the processor session returned to the caller.
type CheckoutSession struct {
	ID        string
	URL       string
	ExpiresAt time.Time
}

// SessionDetails is a retrieved checkout session with line items and payment intent expanded.
type SessionDetails struct {
	ID              string
	PaymentStatus   string
	CustomerEmail   string
	CustomerName    string
	AmountTotal     int64
	Currency        string
	ShippingName    string
	ShippingAddress *domain.Address
	Lines           []domain.OrderLine
	PaymentIntentID string
	Metadata        map[string]string
}
