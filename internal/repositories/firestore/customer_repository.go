package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	domain "github.com/ashgrove-goods/api/internal/domain"
	pfirestore "github.com/ashgrove-goods/api/internal/platform/firestore"
)

const customerCollection = "customers"

// CustomerRepository persists denormalized customer profiles in Firestore.
type CustomerRepository struct {
	base     *pfirestore.BaseRepository[customerDocument]
	provider *pfirestore.Provider
}

// NewCustomerRepository constructs a Firestore-backed customer repository.
func NewCustomerRepository(provider *pfirestore.Provider) (*CustomerRepository, error) {
	if provider == nil {
		return nil, errors.New("customer repository requires firestore provider")
	}
	base := pfirestore.NewBaseRepository[customerDocument](provider, customerCollection, nil, nil)
	return &CustomerRepository{base: base, provider: provider}, nil
}

// Insert creates the customer document, failing with a conflict when the id is
// already taken.
func (r *CustomerRepository) Insert(ctx context.Context, customer domain.Customer) error {
	if r == nil || r.base == nil {
		return errors.New("customer repository not initialised")
	}
	if strings.TrimSpace(customer.ID) == "" {
		return errors.New("customer id is required")
	}

	ref, err := r.base.DocumentRef(ctx, customer.ID)
	if err != nil {
		return err
	}
	if tx, ok := pfirestore.TransactionFromContext(ctx); ok {
		if err := tx.Create(ref, fromDomainCustomer(customer)); err != nil {
			return pfirestore.WrapError("customers.insert", err)
		}
		return nil
	}
	if _, err := ref.Create(ctx, fromDomainCustomer(customer)); err != nil {
		return pfirestore.WrapError("customers.insert", err)
	}
	return nil
}

// Update overwrites the customer document.
func (r *CustomerRepository) Update(ctx context.Context, customer domain.Customer) error {
	if r == nil || r.base == nil {
		return errors.New("customer repository not initialised")
	}
	if strings.TrimSpace(customer.ID) == "" {
		return errors.New("customer id is required")
	}

	if _, err := r.base.Set(ctx, customer.ID, fromDomainCustomer(customer)); err != nil {
		return err
	}
	return nil
}

// FindByEmail loads the customer keyed by normalized email.
func (r *CustomerRepository) FindByEmail(ctx context.Context, email string) (domain.Customer, error) {
	if r == nil || r.base == nil {
		return domain.Customer{}, errors.New("customer repository not initialised")
	}
	normalized := domain.NormalizeEmail(email)
	if normalized == "" {
		return domain.Customer{}, errors.New("customer email is required")
	}

	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("email", "==", normalized).Limit(1)
	})
	if err != nil {
		return domain.Customer{}, err
	}
	if len(docs) == 0 {
		return domain.Customer{}, pfirestore.WrapError("customers.findByEmail", status.Error(codes.NotFound, "customer not found"))
	}
	return toDomainCustomer(docs[0].ID, docs[0].Data), nil
}

type customerDocument struct {
	Email            string                    `firestore:"email"`
	FirstName        *string                   `firestore:"firstName,omitempty"`
	LastName         *string                   `firestore:"lastName,omitempty"`
	Phone            *string                   `firestore:"phone,omitempty"`
	Addresses        []customerAddressDocument `firestore:"addresses,omitempty"`
	OrderIDs         []string                  `firestore:"orders,omitempty"`
	StripeCustomerID *string                   `firestore:"stripeCustomerId,omitempty"`
	CreatedAt        time.Time                 `firestore:"createdAt"`
	UpdatedAt        time.Time                 `firestore:"updatedAt"`
}

type customerAddressDocument struct {
	Name       *string `firestore:"name,omitempty"`
	Line1      string  `firestore:"line1"`
	Line2      *string `firestore:"line2,omitempty"`
	City       string  `firestore:"city"`
	State      *string `firestore:"state,omitempty"`
	PostalCode string  `firestore:"postalCode"`
	Country    string  `firestore:"country"`
	Default    bool    `firestore:"isDefault"`
}

func fromDomainCustomer(customer domain.Customer) customerDocument {
	addresses := make([]customerAddressDocument, 0, len(customer.Addresses))
	for _, addr := range customer.Addresses {
		addresses = append(addresses, customerAddressDocument{
			Name:       addr.Name,
			Line1:      addr.Line1,
			Line2:      addr.Line2,
			City:       addr.City,
			State:      addr.State,
			PostalCode: addr.PostalCode,
			Country:    addr.Country,
			Default:    addr.Default,
		})
	}

	return customerDocument{
		Email:            domain.NormalizeEmail(customer.Email),
		FirstName:        customer.FirstName,
		LastName:         customer.LastName,
		Phone:            customer.Phone,
		Addresses:        addresses,
		OrderIDs:         customer.OrderIDs,
		StripeCustomerID: customer.StripeCustomerID,
		CreatedAt:        customer.CreatedAt.UTC(),
		UpdatedAt:        customer.UpdatedAt.UTC(),
	}
}

func toDomainCustomer(id string, doc customerDocument) domain.Customer {
	addresses := make([]domain.CustomerAddress, 0, len(doc.Addresses))
	for _, addr := range doc.Addresses {
		addresses = append(addresses, domain.CustomerAddress{
			Name:       addr.Name,
			Line1:      addr.Line1,
			Line2:      addr.Line2,
			City:       addr.City,
			State:      addr.State,
			PostalCode: addr.PostalCode,
			Country:    addr.Country,
			Default:    addr.Default,
		})
	}

	return domain.Customer{
		ID:               id,
		Email:            doc.Email,
		FirstName:        doc.FirstName,
		LastName:         doc.LastName,
		Phone:            doc.Phone,
		Addresses:        addresses,
		OrderIDs:         doc.OrderIDs,
		StripeCustomerID: doc.StripeCustomerID,
		CreatedAt:        doc.CreatedAt,
		UpdatedAt:        doc.UpdatedAt,
	}
}
