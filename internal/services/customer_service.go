package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	domain "github.com/aistore/storefront/internal/domain"
	"github.com/aistore/storefront/internal/payments"
	"github.com/aistore/storefront/internal/repositories"
)

// Resolution paths reported to metrics and logs.
const (
	CustomerPathFastPath  = "cms_fast_path"
	CustomerPathLinked    = "cms_linked"
	CustomerPathCreated   = "cms_created"
	CustomerPathConverged = "cms_converged"
)

const defaultCustomerResolveTimeout = 20 * time.Second

var (
	// ErrCustomerInvalidInput indicates the email or user id was missing.
	ErrCustomerInvalidInput = errors.New("customer: missing required customer information")
	// ErrCustomerSyncFailed indicates the CMS or processor could not be brought in sync.
	ErrCustomerSyncFailed = errors.New("customer: failed to synchronize customer account")
)

type customerGateway interface {
	FindCustomerByEmail(ctx context.Context, email string) (*payments.Customer, error)
	CreateCustomer(ctx context.Context, req payments.CreateCustomerRequest) (*payments.Customer, error)
}

// CustomerServiceDeps wires the customer resolver.
type CustomerServiceDeps struct {
	Customers repositories.CustomerRepository
	Payments  customerGateway
	Metrics   CustomerMetrics
	// Timeout bounds one shared resolution, independent of any single caller's deadline.
	Timeout time.Duration
	Clock   func() time.Time
	Logger  Logger
}

type customerService struct {
	customers repositories.CustomerRepository
	payments  customerGateway
	metrics   CustomerMetrics
	timeout   time.Duration
	now       func() time.Time
	logger    Logger
	inflight  singleflight.Group
}

var _ CustomerResolver = (*customerService)(nil)

// NewCustomerService constructs the resolver.
func NewCustomerService(deps CustomerServiceDeps) (CustomerResolver, error) {
	if deps.Customers == nil {
		return nil, errors.New("customer service: customer repository is required")
	}
	if deps.Payments == nil {
		return nil, errors.New("customer service: payment gateway is required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = noopLogger
	}
	timeout := deps.Timeout
	if timeout <= 0 {
		timeout = defaultCustomerResolveTimeout
	}
	return &customerService{
		customers: deps.Customers,
		payments:  deps.Payments,
		metrics:   deps.Metrics,
		timeout:   timeout,
		now:       func() time.Time { return clock().UTC() },
		logger:    logger,
	}, nil
}

// ResolveCustomer returns the processor and CMS identifiers for the email,
// creating or linking records as needed. Concurrent identical calls share a single resolution.
func (s *customerService) ResolveCustomer(ctx context.Context, cmd ResolveCustomerCommand) (CustomerResolution, error) {
	email := strings.ToLower(strings.TrimSpace(cmd.Email))
	userID := strings.TrimSpace(cmd.UserID)
	if email == "" || userID == "" {
		return CustomerResolution{}, ErrCustomerInvalidInput
	}
	name := strings.TrimSpace(cmd.Name)
	if name == "" {
		name = email
	}

	// The flight runs detached from caller cancellation; each caller stops waiting on its own context.
	flight := s.inflight.DoChan(flightKey(email, name, userID), func() (any, error) {
		flightCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
		defer cancel()
		return s.resolve(flightCtx, email, name, userID)
	})

	var result singleflight.Result
	select {
	case result = <-flight:
	case <-ctx.Done():
		s.logger(ctx, "customer.resolve_abandoned", map[string]any{
			"userID": userID,
			"error":  ctx.Err().Error(),
		})
		return CustomerResolution{}, fmt.Errorf("%w: %w", ErrCustomerSyncFailed, ctx.Err())
	}
	v, err, shared := result.Val, result.Err, result.Shared
	if err != nil {
		s.logger(ctx, "customer.resolve_failed", map[string]any{
			"userID": userID,
			"shared": shared,
			"error":  err.Error(),
		})
		return CustomerResolution{}, ErrCustomerSyncFailed
	}
	res := v.(CustomerResolution)
	if s.metrics != nil && !shared {
		s.metrics.CustomerResolution(res.Path)
	}
	return res, nil
}

func (s *customerService) resolve(ctx context.Context, email, name, userID string) (CustomerResolution, error) {
	existing, err := s.customers.FindByEmail(ctx, email)
	found := err == nil
	if err != nil && !repositories.IsNotFound(err) {
		return CustomerResolution{}, err
	}
	if found && existing.PaymentCustomerID != "" {
		return resolutionFor(existing, CustomerPathFastPath), nil
	}

	paymentCustomerID, err := s.processorCustomer(ctx, email, name, userID)
	if err != nil {
		return CustomerResolution{}, err
	}

	if found {
		patched, err := s.customers.Patch(ctx, existing.ID, domain.CustomerPatch{
			PaymentCustomerID: paymentCustomerID,
			AuthUserID:        userID,
			Name:              name,
			UpdatedAt:         s.now(),
		})
		if err != nil {
			return CustomerResolution{}, err
		}
		return resolutionFor(patched, CustomerPathLinked), nil
	}

	stored, created, err := s.customers.Create(ctx, domain.Customer{
		Email:             email,
		Name:              name,
		AuthUserID:        userID,
		PaymentCustomerID: paymentCustomerID,
	})
	if err != nil {
		return CustomerResolution{}, err
	}
	if created {
		return resolutionFor(stored, CustomerPathCreated), nil
	}

	// Another process created the record first; it may still lack the processor id.
	if stored.PaymentCustomerID == "" {
		stored, err = s.customers.Patch(ctx, stored.ID, domain.CustomerPatch{
			PaymentCustomerID: paymentCustomerID,
			AuthUserID:        userID,
			Name:              name,
			UpdatedAt:         s.now(),
		})
		if err != nil {
			return CustomerResolution{}, err
		}
	}
	return resolutionFor(stored, CustomerPathConverged), nil
}

func (s *customerService) processorCustomer(ctx context.Context, email, name, userID string) (string, error) {
	found, err := s.payments.FindCustomerByEmail(ctx, email)
	if err != nil {
		return "", err
	}
	if found != nil && found.ID != "" {
		return found.ID, nil
	}
	created, err := s.payments.CreateCustomer(ctx, payments.CreateCustomerRequest{
		Email:          email,
		Name:           name,
		Metadata:       map[string]string{"authUserId": userID},
		IdempotencyKey: customerIdempotencyKey(email, name, userID),
	})
	if err != nil {
		return "", err
	}
	if created == nil || created.ID == "" {
		return "", errors.New("customer service: processor returned empty customer")
	}
	return created.ID, nil
}

func resolutionFor(c domain.Customer, path string) CustomerResolution {
	return CustomerResolution{
		PaymentCustomerID: c.PaymentCustomerID,
		CustomerID:        c.ID,
		Customer:          c,
		Path:              path,
	}
}

func flightKey(email, name, userID string) string {
	return email + "\x00" + name + "\x00" + userID
}

// customerIdempotencyKey covers every parameter sent on create; the processor
// rejects a reused key whose request body differs.
func customerIdempotencyKey(email, name, userID string) string {
	sum := sha256.Sum256([]byte("customer|" + flightKey(email, name, userID)))
	return hex.EncodeToString(sum[:16])
}
