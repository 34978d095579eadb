package firestore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	domain "github.com/aistore/storefront/internal/domain"
	pfirestore "github.com/aistore/storefront/internal/platform/firestore"
	"github.com/aistore/storefront/internal/repositories"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const customerCollection = "customers"

// CustomerRepository stores one customer document per normalised email.
type CustomerRepository struct {
	base     *pfirestore.BaseRepository[customerDocument]
	provider *pfirestore.Provider
	now      func() time.Time
}

var _ repositories.CustomerRepository = (*CustomerRepository)(nil)

// NewCustomerRepository constructs a Firestore-backed customer repository.
func NewCustomerRepository(provider *pfirestore.Provider) (*CustomerRepository, error) {
	if provider == nil {
		return nil, errors.New("customer repository requires firestore provider")
	}
	return &CustomerRepository{
		base:     pfirestore.NewBaseRepository[customerDocument](provider, customerCollection, nil, nil),
		provider: provider,
		now:      time.Now,
	}, nil
}

// CustomerDocumentID derives the document ID for an email so that concurrent
// creators for the same address target the same document.
func CustomerDocumentID(email string) string {
	sum := sha256.Sum256([]byte(normalizeEmail(email)))
	return "cus_" + hex.EncodeToString(sum[:12])
}

// FindByEmail looks the customer up by derived ID, then by the email field for
// records created before IDs were derived.
func (r *CustomerRepository) FindByEmail(ctx context.Context, email string) (domain.Customer, error) {
	email = normalizeEmail(email)
	if email == "" {
		return domain.Customer{}, errors.New("customer email is required")
	}

	doc, err := r.base.Get(ctx, CustomerDocumentID(email))
	if err == nil {
		return doc.Data.toDomain(doc), nil
	}
	if !repositories.IsNotFound(err) {
		return domain.Customer{}, err
	}

	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("email", "==", email).Limit(1)
	})
	if err != nil {
		return domain.Customer{}, err
	}
	if len(docs) == 0 {
		return domain.Customer{}, notFound("customers.find_by_email", email)
	}
	return docs[0].Data.toDomain(docs[0]), nil
}

// Create inserts the customer unless a document already exists for the email,
// in which case the stored record wins.
func (r *CustomerRepository) Create(ctx context.Context, customer domain.Customer) (domain.Customer, bool, error) {
	email := normalizeEmail(customer.Email)
	if email == "" {
		return domain.Customer{}, false, errors.New("customer email is required")
	}
	now := r.now().UTC()
	doc := customerDocument{
		Email:             email,
		Name:              strings.TrimSpace(customer.Name),
		AuthUserID:        strings.TrimSpace(customer.AuthUserID),
		PaymentCustomerID: strings.TrimSpace(customer.PaymentCustomerID),
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	id := CustomerDocumentID(email)

	var (
		stored  domain.Customer
		created bool
	)
	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		ref, err := r.base.DocumentRef(ctx, id)
		if err != nil {
			return err
		}
		snap, err := tx.Get(ref)
		switch {
		case err == nil:
			existing, err := r.base.Decode(ctx, snap)
			if err != nil {
				return err
			}
			stored, created = existing.Data.toDomain(existing), false
			return nil
		case status.Code(err) != codes.NotFound:
			return err
		}
		if err := tx.Create(ref, doc); err != nil {
			return err
		}
		stored = doc.toDomain(pfirestore.Document[customerDocument]{ID: id, Data: doc})
		created = true
		return nil
	})
	if err != nil {
		return domain.Customer{}, false, err
	}
	return stored, created, nil
}

// Patch links an existing customer to the payment processor.
func (r *CustomerRepository) Patch(ctx context.Context, customerID string, patch domain.CustomerPatch) (domain.Customer, error) {
	if strings.TrimSpace(customerID) == "" {
		return domain.Customer{}, errors.New("customer id is required")
	}
	updatedAt := patch.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = r.now().UTC()
	}
	updates := []firestore.Update{{Path: "updatedAt", Value: updatedAt}}
	if v := strings.TrimSpace(patch.PaymentCustomerID); v != "" {
		updates = append(updates, firestore.Update{Path: "paymentCustomerId", Value: v})
	}
	if v := strings.TrimSpace(patch.AuthUserID); v != "" {
		updates = append(updates, firestore.Update{Path: "authUserId", Value: v})
	}
	if v := strings.TrimSpace(patch.Name); v != "" {
		updates = append(updates, firestore.Update{Path: "name", Value: v})
	}
	if _, err := r.base.Update(ctx, customerID, updates); err != nil {
		return domain.Customer{}, err
	}
	doc, err := r.base.Get(ctx, customerID)
	if err != nil {
		return domain.Customer{}, err
	}
	return doc.Data.toDomain(doc), nil
}

type customerDocument struct {
	Email             string    `firestore:"email"`
	Name              string    `firestore:"name"`
	AuthUserID        string    `firestore:"authUserId"`
	PaymentCustomerID string    `firestore:"paymentCustomerId"`
	CreatedAt         time.Time `firestore:"createdAt"`
	UpdatedAt         time.Time `firestore:"updatedAt"`
}

func (d customerDocument) toDomain(doc pfirestore.Document[customerDocument]) domain.Customer {
	c := domain.Customer{
		ID:                doc.ID,
		Email:             normalizeEmail(d.Email),
		Name:              strings.TrimSpace(d.Name),
		AuthUserID:        strings.TrimSpace(d.AuthUserID),
		PaymentCustomerID: strings.TrimSpace(d.PaymentCustomerID),
		CreatedAt:         d.CreatedAt,
		UpdatedAt:         d.UpdatedAt,
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = doc.CreateTime
	}
	if c.UpdatedAt.IsZero() {
		c.UpdatedAt = doc.UpdateTime
	}
	return c
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
