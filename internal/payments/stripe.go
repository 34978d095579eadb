// Package payments wraps the Stripe APIs used by checkout and customer resolution.
package payments

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v78"
	"github.com/stripe/stripe-go/v78/client"
	"github.com/stripe/stripe-go/v78/customer"

	"github.com/aistore/storefront/internal/domain"
)

// StripeLogger defines the logging contract for gateway operations.
type StripeLogger func(ctx context.Context, event string, fields map[string]any)

type stripeCustomerAPI interface {
	Find(params *stripe.CustomerListParams) ([]*stripe.Customer, error)
	New(params *stripe.CustomerParams) (*stripe.Customer, error)
}

type stripeSessionAPI interface {
	New(params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
	Get(id string, params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
}

type stripeClients struct {
	customers stripeCustomerAPI
	sessions  stripeSessionAPI
}

// customerClient drains the list iterator so callers deal in slices.
type customerClient struct {
	api *customer.Client
}

func (c customerClient) Find(params *stripe.CustomerListParams) ([]*stripe.Customer, error) {
	iter := c.api.List(params)
	var out []*stripe.Customer
	for iter.Next() {
		out = append(out, iter.Customer())
		if params.Limit != nil && int64(len(out)) >= *params.Limit {
			break
		}
	}
	if err := iter.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (c customerClient) New(params *stripe.CustomerParams) (*stripe.Customer, error) {
	return c.api.New(params)
}

// GatewayConfig configures the Stripe gateway.
type GatewayConfig struct {
	APIKey    string
	AccountID string
	Backends  *stripe.Backends
	Logger    StripeLogger
	Clock     func() time.Time
	Clients   *stripeClients
}

// Gateway talks to Stripe for customers and hosted checkout sessions.
type Gateway struct {
	api     stripeClients
	account string
	clock   func() time.Time
	logger  StripeLogger
}

// NewGateway constructs a Gateway using the given configuration.
func NewGateway(cfg GatewayConfig) (*Gateway, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" && cfg.Clients == nil {
		return nil, errors.New("stripe: api key is required")
	}

	var clients stripeClients
	if cfg.Clients != nil {
		clients = *cfg.Clients
	} else {
		stripe.SetAppInfo(&stripe.AppInfo{Name: "storefront"})
		sc := client.New(apiKey, cfg.Backends)
		clients = stripeClients{
			customers: customerClient{api: sc.Customers},
			sessions:  sc.CheckoutSessions,
		}
	}
	if clients.customers == nil || clients.sessions == nil {
		return nil, errors.New("stripe: incomplete client configuration")
	}

	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &Gateway{
		api:     clients,
		account: strings.TrimSpace(cfg.AccountID),
		clock: func() time.Time {
			return clock().UTC()
		},
		logger: logger,
	}, nil
}

// FindCustomerByEmail returns the first processor customer with the email, or nil when none exists.
func (g *Gateway) FindCustomerByEmail(ctx context.Context, email string) (*Customer, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return nil, fmt.Errorf("%w: email is required", ErrInvalidRequest)
	}
	params := &stripe.CustomerListParams{Email: stripe.String(email)}
	params.Context = ctx
	params.Limit = stripe.Int64(1)
	params.Single = true
	if g.account != "" {
		params.SetStripeAccount(g.account)
	}

	found, err := g.api.customers.Find(params)
	if err != nil {
		return nil, fmt.Errorf("stripe: list customers: %w", err)
	}
	if len(found) == 0 || found[0] == nil {
		return nil, nil
	}
	return toCustomer(found[0]), nil
}

// CreateCustomer creates a processor customer.
func (g *Gateway) CreateCustomer(ctx context.Context, req CreateCustomerRequest) (*Customer, error) {
	if strings.TrimSpace(req.Email) == "" {
		return nil, fmt.Errorf("%w: email is required", ErrInvalidRequest)
	}
	params := &stripe.CustomerParams{Email: stripe.String(req.Email)}
	params.Context = ctx
	if name := strings.TrimSpace(req.Name); name != "" {
		params.Name = stripe.String(name)
	}
	for k, v := range req.Metadata {
		params.AddMetadata(k, v)
	}
	if key := strings.TrimSpace(req.IdempotencyKey); key != "" {
		params.SetIdempotencyKey(key)
	}
	if g.account != "" {
		params.SetStripeAccount(g.account)
	}

	created, err := g.api.customers.New(params)
	if err != nil {
		return nil, fmt.Errorf("stripe: create customer: %w", err)
	}
	g.logger(ctx, "payments.stripe.customer.created", map[string]any{
		"customerId": created.ID,
	})
	return toCustomer(created), nil
}

// CreateCheckoutSession opens a hosted payment-mode checkout session.
func (g *Gateway) CreateCheckoutSession(ctx context.Context, req CheckoutSessionRequest) (CheckoutSession, error) {
	if len(req.Items) == 0 {
		return CheckoutSession{}, fmt.Errorf("%w: at least one line item is required", ErrInvalidRequest)
	}

	params := &stripe.CheckoutSessionParams{
		Mode:       stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL: stripe.String(req.SuccessURL),
		CancelURL:  stripe.String(req.CancelURL),
	}
	params.Context = ctx
	if key := strings.TrimSpace(req.IdempotencyKey); key != "" {
		params.SetIdempotencyKey(key)
	}
	if g.account != "" {
		params.SetStripeAccount(g.account)
	}
	if req.CustomerID != "" {
		params.Customer = stripe.String(req.CustomerID)
	}
	if req.AllowPromotion {
		params.AllowPromotionCodes = stripe.Bool(true)
	}
	if req.RequireBilling {
		params.BillingAddressCollection = stripe.String(string(stripe.CheckoutSessionBillingAddressCollectionRequired))
	}
	if len(req.AllowedCountries) > 0 {
		params.ShippingAddressCollection = &stripe.CheckoutSessionShippingAddressCollectionParams{
			AllowedCountries: stripe.StringSlice(req.AllowedCountries),
		}
	}
	for k, v := range req.Metadata {
		params.AddMetadata(k, v)
	}

	lineItems := make([]*stripe.CheckoutSessionLineItemParams, 0, len(req.Items))
	for _, item := range req.Items {
		product := &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
			Name: stripe.String(item.Name),
		}
		if item.Image != "" {
			product.Images = stripe.StringSlice([]string{item.Image})
		}
		if len(item.Metadata) > 0 {
			product.Metadata = make(map[string]string, len(item.Metadata))
			for k, v := range item.Metadata {
				product.Metadata[k] = v
			}
		}
		lineItems = append(lineItems, &stripe.CheckoutSessionLineItemParams{
			Quantity: stripe.Int64(max64(item.Quantity, 1)),
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency:    stripe.String(strings.ToLower(defaultString(item.Currency, req.Currency))),
				UnitAmount:  stripe.Int64(item.UnitAmount),
				ProductData: product,
			},
		})
	}
	params.LineItems = lineItems

	session, err := g.api.sessions.New(params)
	if err != nil {
		return CheckoutSession{}, fmt.Errorf("stripe: create checkout session: %w", err)
	}

	g.logger(ctx, "payments.stripe.session.created", map[string]any{
		"sessionId": session.ID,
		"customer":  req.CustomerID,
		"lines":     len(lineItems),
	})

	expiresAt := g.clock().Add(24 * time.Hour)
	if session.ExpiresAt != 0 {
		expiresAt = time.Unix(session.ExpiresAt, 0).UTC()
	}
	return CheckoutSession{
		ID:        session.ID,
		URL:       session.URL,
		ExpiresAt: expiresAt,
	}, nil
}

// GetCheckoutSession retrieves a session with its line items and payment intent expanded.
func (g *Gateway) GetCheckoutSession(ctx context.Context, id string) (SessionDetails, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return SessionDetails{}, fmt.Errorf("%w: session id is required", ErrInvalidRequest)
	}
	params := &stripe.CheckoutSessionParams{}
	params.Context = ctx
	params.AddExpand("line_items")
	params.AddExpand("payment_intent")
	if g.account != "" {
		params.SetStripeAccount(g.account)
	}

	session, err := g.api.sessions.Get(id, params)
	if err != nil {
		if isResourceMissing(err) {
			return SessionDetails{}, ErrSessionNotFound
		}
		return SessionDetails{}, fmt.Errorf("stripe: retrieve checkout session: %w", err)
	}
	if session == nil {
		return SessionDetails{}, ErrSessionNotFound
	}
	return sessionDetails(session), nil
}

func sessionDetails(session *stripe.CheckoutSession) SessionDetails {
	details := SessionDetails{
		ID:            session.ID,
		PaymentStatus: string(session.PaymentStatus),
		AmountTotal:   session.AmountTotal,
		Currency:      string(session.Currency),
		Metadata:      map[string]string{},
	}
	for k, v := range session.Metadata {
		details.Metadata[k] = v
	}
	if cd := session.CustomerDetails; cd != nil {
		details.CustomerEmail = cd.Email
		details.CustomerName = cd.Name
	}
	if sd := session.ShippingDetails; sd != nil {
		details.ShippingName = sd.Name
		details.ShippingAddress = toAddress(sd.Address)
	}
	if session.PaymentIntent != nil {
		details.PaymentIntentID = session.PaymentIntent.ID
	}
	if session.LineItems != nil {
		details.Lines = make([]domain.OrderLine, 0, len(session.LineItems.Data))
		for _, line := range session.LineItems.Data {
			if line == nil {
				continue
			}
			details.Lines = append(details.Lines, domain.OrderLine{
				Name:        line.Description,
				Quantity:    line.Quantity,
				AmountTotal: line.AmountTotal,
				Currency:    string(line.Currency),
			})
		}
	}
	return details
}

func toAddress(addr *stripe.Address) *domain.Address {
	if addr == nil {
		return nil
	}
	return &domain.Address{
		Line1:      addr.Line1,
		Line2:      addr.Line2,
		City:       addr.City,
		State:      addr.State,
		PostalCode: addr.PostalCode,
		Country:    addr.Country,
	}
}

func toCustomer(c *stripe.Customer) *Customer {
	return &Customer{ID: c.ID, Email: c.Email, Name: c.Name}
}

func isResourceMissing(err error) bool {
	var stripeErr *stripe.Error
	if !errors.As(err, &stripeErr) {
		return false
	}
	return stripeErr.Code == stripe.ErrorCodeResourceMissing || stripeErr.HTTPStatusCode == http.StatusNotFound
}

func max64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}

func defaultString(value, fallback string) string {
	if strings.TrimSpace(value) != "" {
		return value
	}
	return fallback
}
