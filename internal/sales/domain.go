package sales

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-pos/internal/shared"
)

// Status enumerates sale lifecycle states.
type Status string

const (
	StatusDraft          Status = "DRAFT"
	StatusPendingSync    Status = "PENDING_SYNC"
	StatusConfirmed      Status = "CONFIRMED"
	StatusReviewRequired Status = "REVIEW_REQUIRED"
	StatusCancelled      Status = "CANCELLED"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusDraft, StatusPendingSync, StatusConfirmed, StatusReviewRequired, StatusCancelled:
		return true
	}
	return false
}

// Sale is a customer order captured at a point of sale.
type Sale struct {
	ID          int64           `json:"id"`
	ClientUUID  *string         `json:"clientId,omitempty"`
	Folio       *string         `json:"folio,omitempty"`
	Status      Status          `json:"status"`
	CustomerID  int64           `json:"customerId"`
	WarehouseID int64           `json:"warehouseId"`
	SellerID    int64           `json:"sellerId"`
	Subtotal    decimal.Decimal `json:"subtotal"`
	TaxTotal    decimal.Decimal `json:"taxTotal"`
	GrandTotal  decimal.Decimal `json:"grandTotal"`
	Notes       *string         `json:"notes,omitempty"`
	CreatedAt   time.Time       `json:"createdAt"`
	ConfirmedAt *time.Time      `json:"confirmedAt,omitempty"`
	CancelledAt *time.Time      `json:"cancelledAt,omitempty"`
	LastError   *string         `json:"lastError,omitempty"`
	RetryCount  int             `json:"retryCount"`
	Items       []Item          `json:"items"`

	// Duplicate is set on responses for a replayed idempotency key. It is never stored.
	Duplicate bool `json:"duplicate,omitempty"`
}

// FolioValue returns the folio or an empty string.
func (s Sale) FolioValue() string {
	if s.Folio == nil {
		return ""
	}
	return *s.Folio
}

// Item is one line of a sale.
type Item struct {
	ID        int64           `json:"id"`
	SaleID    int64           `json:"saleId"`
	ProductID int64           `json:"productId"`
	UnitCode  string          `json:"unitCode"`
	Qty       decimal.Decimal `json:"qty"`
	QtyBase   decimal.Decimal `json:"qtyBase"`
	PriceUnit decimal.Decimal `json:"priceUnit"`
	Discount  decimal.Decimal `json:"discount"`
	LineTotal decimal.Decimal `json:"lineTotal"`
	TaxRate   decimal.Decimal `json:"taxRate"`
	TaxAmount decimal.Decimal `json:"taxAmount"`
}

// ItemInput is a line as submitted by a client.
type ItemInput struct {
	ProductID int64            `json:"productId" validate:"required,gt=0"`
	UnitCode  string           `json:"unitCode" validate:"required,max=20"`
	Qty       decimal.Decimal  `json:"qty"`
	QtyBase   decimal.Decimal  `json:"qtyBase"`
	PriceUnit decimal.Decimal  `json:"priceUnit"`
	Discount  decimal.Decimal  `json:"discount"`
	LineTotal *decimal.Decimal `json:"lineTotal,omitempty"`
}

// ConfirmRequest carries a sale to be drafted or confirmed. Client totals are
// informational; persisted totals are always recomputed.
type ConfirmRequest struct {
	ClientUUID  string           `json:"uuid" validate:"omitempty,uuid"`
	CustomerID  int64            `json:"customerId" validate:"required,gt=0"`
	WarehouseID int64            `json:"warehouseId" validate:"gte=0"`
	SellerID    int64            `json:"sellerId" validate:"required,gt=0"`
	Notes       string           `json:"notes" validate:"max=500"`
	Items       []ItemInput      `json:"items" validate:"required,min=1,dive"`
	Subtotal    *decimal.Decimal `json:"subtotal,omitempty"`
	TaxTotal    *decimal.Decimal `json:"taxTotal,omitempty"`
	GrandTotal  *decimal.Decimal `json:"grandTotal,omitempty"`
	CreatedAt   *time.Time       `json:"createdAt,omitempty"`
	ActorID     int64            `json:"-"`
}

// Product is the slice of the product collaborator the engine reads.
type Product struct {
	ID      int64
	TaxRate decimal.Decimal
}

// Parties identifies the collaborators a sale references.
type Parties struct {
	CustomerID  int64
	WarehouseID int64
	SellerID    int64
}

// ListFilter narrows sale listings.
type ListFilter struct {
	Status      Status
	WarehouseID int64
	From        time.Time
	To          time.Time
	Page        int
	PerPage     int
}

// ErrClientUUIDConflict is returned when a sale with the same idempotency key
// was committed concurrently.
var ErrClientUUIDConflict = fmt.Errorf("%w: client uuid already recorded", shared.ErrDuplicateSubmission)

// IsClientUUIDConflict reports whether err is a lost race on the idempotency key.
func IsClientUUIDConflict(err error) bool {
	return errors.Is(err, ErrClientUUIDConflict)
}

// Normalize applies paging defaults.
func (f ListFilter) Normalize() ListFilter {
	if f.PerPage <= 0 || f.PerPage > 200 {
		f.PerPage = shared.DefaultPerPage
	}
	if f.Page <= 0 {
		f.Page = 1
	}
	return f
}

// ReferenceError reports a sale pointing at an unknown collaborator record. It
// unwraps to shared.ErrNotFound.
type ReferenceError struct {
	Entity string
	ID     int64
}

func (e *ReferenceError) Error() string {
	return fmt.Sprintf("unknown %s %d", e.Entity, e.ID)
}

func (e *ReferenceError) Unwrap() error {
	return shared.ErrNotFound
}

func stringPtr(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}

func timePtr(t time.Time) *time.Time {
	return &t
}
