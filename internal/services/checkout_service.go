package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	domain "github.com/aistore/storefront/internal/domain"
	"github.com/aistore/storefront/internal/payments"
	"github.com/aistore/storefront/internal/repositories"
)

const (
	checkoutSessionIDPrefix   = "cs_"
	checkoutIdempotencyWindow = time.Minute
	checkoutSuccessPath       = "/checkout/success?session_id={CHECKOUT_SESSION_ID}"
	checkoutCancelPath        = "/checkout"
)

// Checkout outcomes reported to metrics.
const (
	CheckoutOutcomeCreated    = "created"
	CheckoutOutcomeRejected   = "rejected"
	CheckoutOutcomeInvalid    = "validation_failed"
	CheckoutOutcomeFailed     = "failed"
	checkoutPublishEventError = "checkout.event_publish_failed"
)

var (
	// ErrCheckoutUnauthenticated indicates an anonymous caller tried to check out.
	ErrCheckoutUnauthenticated = errors.New("checkout: unauthenticated")
	// ErrCheckoutEmptyCart indicates the cart had no lines.
	ErrCheckoutEmptyCart = errors.New("checkout: cart is empty")
	// ErrCheckoutFailed covers every upstream failure while building the session.
	ErrCheckoutFailed = errors.New("checkout: payment gateway initialization failed")

	// ErrOrderInvalidSession indicates a blank or malformed checkout session id.
	ErrOrderInvalidSession = errors.New("order: invalid session id")
	// ErrOrderUnauthenticated indicates the confirmation was requested anonymously.
	ErrOrderUnauthenticated = errors.New("order: not authenticated")
	// ErrOrderAccessDenied indicates the session belongs to someone else.
	ErrOrderAccessDenied = errors.New("order: access denied")
	// ErrOrderUnavailable indicates the session could not be read.
	ErrOrderUnavailable = errors.New("order: details unavailable")
)

// CheckoutValidationError lists every cart line that failed re-validation.
type CheckoutValidationError struct {
	Problems []string
}

func (e *CheckoutValidationError) Error() string {
	return "checkout: validation failed: " + e.Message()
}

// Message joins the problems into the sentence shown to the shopper.
func (e *CheckoutValidationError) Message() string {
	return strings.Join(e.Problems, ". ")
}

type checkoutGateway interface {
	CreateCheckoutSession(ctx context.Context, req payments.CheckoutSessionRequest) (payments.CheckoutSession, error)
	GetCheckoutSession(ctx context.Context, id string) (payments.SessionDetails, error)
}

// CheckoutServiceDeps wires the checkout service.
type CheckoutServiceDeps struct {
	Products          repositories.ProductRepository
	Customers         CustomerResolver
	Payments          checkoutGateway
	Events            CheckoutEventPublisher
	Metrics           CheckoutMetrics
	BaseURL           string
	Currency          string
	ShippingCountries []string
	AllowPromotion    bool
	Clock             func() time.Time
	Logger            Logger
}

type checkoutService struct {
	products          repositories.ProductRepository
	customers         CustomerResolver
	payments          checkoutGateway
	events            CheckoutEventPublisher
	metrics           CheckoutMetrics
	baseURL           string
	currency          string
	shippingCountries []string
	allowPromotion    bool
	now               func() time.Time
	logger            Logger
}

var _ CheckoutService = (*checkoutService)(nil)

// NewCheckoutService constructs a CheckoutService validating required dependencies.
func NewCheckoutService(deps CheckoutServiceDeps) (CheckoutService, error) {
	if deps.Products == nil {
		return nil, errors.New("checkout service: product repository is required")
	}
	if deps.Customers == nil {
		return nil, errors.New("checkout service: customer resolver is required")
	}
	if deps.Payments == nil {
		return nil, errors.New("checkout service: payment gateway is required")
	}
	baseURL := strings.TrimRight(strings.TrimSpace(deps.BaseURL), "/")
	if baseURL == "" {
		return nil, errors.New("checkout service: base url is required")
	}
	currency := strings.ToLower(strings.TrimSpace(deps.Currency))
	if currency == "" {
		currency = domain.DefaultCurrency
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = noopLogger
	}
	return &checkoutService{
		products:          deps.Products,
		customers:         deps.Customers,
		payments:          deps.Payments,
		events:            deps.Events,
		metrics:           deps.Metrics,
		baseURL:           baseURL,
		currency:          currency,
		shippingCountries: append([]string(nil), deps.ShippingCountries...),
		allowPromotion:    deps.AllowPromotion,
		now:               func() time.Time { return clock().UTC() },
		logger:            logger,
	}, nil
}

// CreateCheckoutSession re-validates the cart against the CMS and opens a hosted payment session.
// Validation problems return *CheckoutValidationError; upstream failures return ErrCheckoutFailed.
func (s *checkoutService) CreateCheckoutSession(ctx context.Context, cmd CreateCheckoutSessionCommand) (result CheckoutSessionResult, err error) {
	start := s.now()
	defer func() { s.record(err, s.now().Sub(start)) }()

	identity := cmd.Identity
	if identity == nil || strings.TrimSpace(identity.UserID) == "" {
		return CheckoutSessionResult{}, ErrCheckoutUnauthenticated
	}
	if len(cmd.Items) == 0 {
		return CheckoutSessionResult{}, ErrCheckoutEmptyCart
	}
	userID := strings.TrimSpace(identity.UserID)

	products, err := s.products.FindByIDs(ctx, distinctProductIDs(cmd.Items))
	if err != nil {
		return CheckoutSessionResult{}, s.fail(ctx, "checkout.products_lookup_failed", userID, err)
	}

	lines, problems := s.priceLines(cmd.Items, products)
	if len(problems) > 0 {
		return CheckoutSessionResult{}, &CheckoutValidationError{Problems: problems}
	}

	email := strings.ToLower(strings.TrimSpace(identity.Email))
	name := strings.TrimSpace(identity.Name)
	if name == "" {
		name = email
	}
	customer, err := s.customers.ResolveCustomer(ctx, ResolveCustomerCommand{Email: email, Name: name, UserID: userID})
	if err != nil {
		return CheckoutSessionResult{}, s.fail(ctx, "checkout.customer_resolution_failed", userID, err)
	}

	orderData := compactOrderData(cmd.Items)
	encoded, err := json.Marshal(orderData)
	if err != nil {
		return CheckoutSessionResult{}, s.fail(ctx, "checkout.order_data_encode_failed", userID, err)
	}
	idempotencyKey := checkoutIdempotencyKey(userID, orderData, s.now())

	session, err := s.payments.CreateCheckoutSession(ctx, payments.CheckoutSessionRequest{
		CustomerID:       customer.PaymentCustomerID,
		Currency:         s.currency,
		Items:            lines,
		SuccessURL:       s.baseURL + checkoutSuccessPath,
		CancelURL:        s.baseURL + checkoutCancelPath,
		AllowedCountries: s.shippingCountries,
		AllowPromotion:   s.allowPromotion,
		RequireBilling:   true,
		Metadata: map[string]string{
			"authUserId":    userID,
			"cmsCustomerId": customer.CustomerID,
			"orderData":     string(encoded),
		},
		IdempotencyKey: idempotencyKey,
	})
	if err != nil {
		return CheckoutSessionResult{}, s.fail(ctx, "checkout.payment_session_failed", userID, err)
	}
	if strings.TrimSpace(session.URL) == "" {
		return CheckoutSessionResult{}, s.fail(ctx, "checkout.payment_session_failed", userID, errors.New("processor returned no redirect url"))
	}

	s.publish(ctx, CheckoutSessionCreatedEvent{
		SessionID:      session.ID,
		AuthUserID:     userID,
		CustomerID:     customer.CustomerID,
		Currency:       s.currency,
		AmountSubtotal: subtotal(lines),
		Lines:          orderData,
		CreatedAt:      s.now(),
		IdempotencyKey: idempotencyKey,
	})

	return CheckoutSessionResult{
		SessionID:      session.ID,
		URL:            session.URL,
		ExpiresAt:      session.ExpiresAt,
		CustomerID:     customer.CustomerID,
		IdempotencyKey: idempotencyKey,
	}, nil
}

// GetOrderConfirmation reads a completed session on behalf of the user who created it.
func (s *checkoutService) GetOrderConfirmation(ctx context.Context, q OrderConfirmationQuery) (OrderConfirmation, error) {
	sessionID := strings.TrimSpace(q.SessionID)
	if !IsCheckoutSessionID(sessionID) {
		return OrderConfirmation{}, ErrOrderInvalidSession
	}
	userID := strings.TrimSpace(q.UserID)
	if userID == "" {
		return OrderConfirmation{}, ErrOrderUnauthenticated
	}

	details, err := s.payments.GetCheckoutSession(ctx, sessionID)
	if err != nil {
		s.logger(ctx, "checkout.session_fetch_failed", map[string]any{
			"sessionID": sessionID,
			"userID":    userID,
			"error":     err.Error(),
		})
		return OrderConfirmation{}, ErrOrderUnavailable
	}
	if owner := strings.TrimSpace(details.Metadata["authUserId"]); owner == "" || owner != userID {
		s.logger(ctx, "checkout.session_access_denied", map[string]any{
			"sessionID": sessionID,
			"userID":    userID,
		})
		return OrderConfirmation{}, ErrOrderAccessDenied
	}

	return OrderConfirmation{
		SessionID:       details.ID,
		Status:          details.PaymentStatus,
		CustomerEmail:   details.CustomerEmail,
		CustomerName:    details.CustomerName,
		AmountTotal:     details.AmountTotal,
		Currency:        details.Currency,
		ShippingName:    details.ShippingName,
		ShippingAddress: details.ShippingAddress,
		Lines:           append([]domain.OrderLine(nil), details.Lines...),
		PaymentIntentID: details.PaymentIntentID,
	}, nil
}

// IsCheckoutSessionID reports whether id looks like a processor checkout session id.
func IsCheckoutSessionID(id string) bool {
	id = strings.TrimSpace(id)
	return len(id) > len(checkoutSessionIDPrefix) && strings.HasPrefix(id, checkoutSessionIDPrefix)
}

// priceLines validates every cart line in order against the authoritative products.
func (s *checkoutService) priceLines(items []CartItem, products map[string]Product) ([]payments.LineItem, []string) {
	var (
		lines    = make([]payments.LineItem, 0, len(items))
		problems []string
	)
	for _, item := range items {
		product, ok := products[item.ProductID]
		switch {
		case !ok:
			problems = append(problems, fmt.Sprintf("Product %q is no longer available", item.Name))
		case product.Stock <= 0:
			problems = append(problems, fmt.Sprintf("%q is out of stock", product.Name))
		case item.Quantity > product.Stock:
			problems = append(problems, fmt.Sprintf("Only %d of %q remaining", product.Stock, product.Name))
		case domain.ToMinorUnits(product.Price) <= 0:
			problems = append(problems, fmt.Sprintf("%q is currently unavailable for purchase", product.Name))
		default:
			lines = append(lines, payments.LineItem{
				Name:       product.Name,
				Image:      product.PrimaryImage(),
				UnitAmount: domain.ToMinorUnits(product.Price),
				Quantity:   int64(item.Quantity),
				Currency:   s.currency,
				Metadata:   map[string]string{"productId": product.ID},
			})
		}
	}
	return lines, problems
}

func (s *checkoutService) fail(ctx context.Context, event, userID string, err error) error {
	s.logger(ctx, event, map[string]any{
		"userID": userID,
		"error":  err.Error(),
	})
	return ErrCheckoutFailed
}

func (s *checkoutService) publish(ctx context.Context, event CheckoutSessionCreatedEvent) {
	if s.events == nil {
		return
	}
	if _, err := s.events.PublishCheckoutSessionCreated(ctx, event); err != nil {
		s.logger(ctx, checkoutPublishEventError, map[string]any{
			"sessionID": event.SessionID,
			"error":     err.Error(),
		})
	}
}

func (s *checkoutService) record(err error, elapsed time.Duration) {
	if s.metrics == nil {
		return
	}
	var validation *CheckoutValidationError
	outcome := CheckoutOutcomeCreated
	switch {
	case err == nil:
	case errors.As(err, &validation):
		outcome = CheckoutOutcomeInvalid
	case errors.Is(err, ErrCheckoutUnauthenticated), errors.Is(err, ErrCheckoutEmptyCart):
		outcome = CheckoutOutcomeRejected
	default:
		outcome = CheckoutOutcomeFailed
	}
	s.metrics.CheckoutOutcome(outcome, elapsed)
}

func distinctProductIDs(items []CartItem) []string {
	seen := make(map[string]struct{}, len(items))
	ids := make([]string, 0, len(items))
	for _, item := range items {
		if _, ok := seen[item.ProductID]; ok || item.ProductID == "" {
			continue
		}
		seen[item.ProductID] = struct{}{}
		ids = append(ids, item.ProductID)
	}
	return ids
}

func compactOrderData(items []CartItem) []OrderDataLine {
	out := make([]OrderDataLine, len(items))
	for i, item := range items {
		out[i] = OrderDataLine{ProductID: item.ProductID, Quantity: item.Quantity}
	}
	return out
}

func subtotal(lines []payments.LineItem) int64 {
	var total int64
	for _, line := range lines {
		total += line.UnitAmount * line.Quantity
	}
	return total
}

// checkoutIdempotencyKey collapses repeated submissions of the same cart by the
// same user within one window onto a single processor session.
func checkoutIdempotencyKey(userID string, lines []OrderDataLine, now time.Time) string {
	var b strings.Builder
	b.WriteString(userID)
	for _, line := range lines {
		b.WriteByte('|')
		b.WriteString(line.ProductID)
		b.WriteByte(':')
		b.WriteString(strconv.Itoa(line.Quantity))
	}
	b.WriteByte('|')
	b.WriteString(strconv.FormatInt(now.Truncate(checkoutIdempotencyWindow).Unix(), 10))
	sum := sha256.Sum256([]byte(b.String()))
	return "checkout_" + hex.EncodeToString(sum[:16])
}
