package domain

import (
	"time"
)

// SortOrder indicates ascending or descending ordering for list queries.
type SortOrder string

const (
	// SortAsc sorts results in ascending order.
	SortAsc SortOrder = "asc"
	// SortDesc sorts results in descending order.
	SortDesc SortOrder = "desc"
)

// ProductSort names the ordering applied to catalog listings.
type ProductSort string

const (
	// ProductSortName orders products alphabetically by name.
	ProductSortName ProductSort = "name"
	// ProductSortPriceAsc orders products from cheapest to most expensive.
	ProductSortPriceAsc ProductSort = "price_asc"
	// ProductSortPriceDesc orders products from most expensive to cheapest.
	ProductSortPriceDesc ProductSort = "price_desc"
	// ProductSortRelevance orders products by how well they match the search query.
	ProductSortRelevance ProductSort = "relevance"
)

// Product is the CMS projection of a sellable item. Price is expressed in major currency units.
type Product struct {
	ID           string
	Name         string
	Slug         string
	Description  string
	Price        float64
	Stock        int
	Images       []string
	CategoryID   string
	CategorySlug string
	Color        string
	Material     string
	Dimensions   string
	Featured     bool
	UpdatedAt    time.Time
}

// PrimaryImage returns the first product image, if any.
func (p Product) PrimaryImage() string {
	if len(p.Images) == 0 {
		return ""
	}
	return p.Images[0]
}

// ProductFilter captures the catalog browse parameters.
type ProductFilter struct {
	Query        string
	CategorySlug string
	Color        string
	Material     string
	MinPrice     float64
	MaxPrice     float64
	InStockOnly  bool
	Sort         ProductSort
}

// Category groups products for navigation.
type Category struct {
	ID       string
	Title    string
	Slug     string
	ImageURL string
}

// Customer links an authenticated user to the CMS record and the payment processor customer.
type Customer struct {
	ID                string
	Email             string
	Name              string
	AuthUserID        string
	PaymentCustomerID string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// CustomerPatch lists the fields written when an existing CMS customer is linked to the processor.
type CustomerPatch struct {
	PaymentCustomerID string
	AuthUserID        string
	Name              string
	UpdatedAt         time.Time
}

// CartItem is a single line in a visitor cart. Price is client supplied and advisory only.
type CartItem struct {
	ProductID string  `json:"productId"`
	Name      string  `json:"name"`
	Price     float64 `json:"price"`
	Quantity  int     `json:"quantity"`
	Image     string  `json:"image,omitempty"`
}

// StockInfo is the per-line outcome of reconciling a cart against authoritative stock.
type StockInfo struct {
	ProductID         string
	CurrentStock      int
	IsOutOfStock      bool
	ExceedsStock      bool
	AvailableQuantity int
}

// CheckoutResult is returned to callers of the checkout flow.
type CheckoutResult struct {
	Success bool
	URL     string
	Error   string
}

// Address is a postal address as reported by the payment processor.
type Address struct {
	Line1      string
	Line2      string
	City       string
	State      string
	PostalCode string
	Country    string
}

// OrderLine is a purchased line as shown on the confirmation view.
type OrderLine struct {
	Name        string
	Quantity    int64
	AmountTotal int64
	Currency    string
}

// OrderConfirmation is the display projection of a completed checkout session. Amounts are in minor units.
type OrderConfirmation struct {
	SessionID       string
	Status          string
	CustomerEmail   string
	CustomerName    string
	AmountTotal     int64
	Currency        string
	ShippingName    string
	ShippingAddress *Address
	Lines           []OrderLine
	PaymentIntentID string
}

const (
	// HealthStatusOK indicates all dependencies are healthy.
	HealthStatusOK = "ok"
	// HealthStatusDegraded indicates at least one dependency is degraded but service remains running.
	HealthStatusDegraded = "degraded"
	// HealthStatusError indicates the service or a critical dependency is unavailable.
	HealthStatusError = "error"
)

// SystemHealthCheck describes the outcome of an individual dependency probe.
type SystemHealthCheck struct {
	Status    string
	Detail    string
	Error     string
	Latency   time.Duration
	CheckedAt time.Time
}

// SystemHealthReport aggregates dependency status for health endpoints.
type SystemHealthReport struct {
	Status      string
	Checks      map[string]SystemHealthCheck
	Version     string
	CommitSHA   string
	Environment string
	Uptime      time.Duration
	GeneratedAt time.Time
}
