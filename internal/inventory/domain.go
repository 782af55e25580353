package inventory

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-pos/internal/shared"
)

// MovementType enumerates the causes of a stock quantity change.
type MovementType string

const (
	// MovementTypeSale is an outbound movement caused by a confirmed sale.
	MovementTypeSale MovementType = "SALE"
	// MovementTypePurchase is an inbound restock.
	MovementTypePurchase MovementType = "PURCHASE"
	// MovementTypeAdjustment is a manual correction in either direction.
	MovementTypeAdjustment MovementType = "ADJUSTMENT"
)

// Valid reports whether t is a known movement type.
func (t MovementType) Valid() bool {
	switch t {
	case MovementTypeSale, MovementTypePurchase, MovementTypeAdjustment:
		return true
	}
	return false
}

// Movement sources recorded in journal notes.
const (
	SourceOnline      = "online"
	SourceOfflineSync = "offline-sync"
	SourceConflict    = "conflict-resolution"
)

// Record is the balance of one product in one warehouse.
type Record struct {
	WarehouseID int64           `json:"warehouseId"`
	ProductID   int64           `json:"productId"`
	Qty         decimal.Decimal `json:"qty"`
	UpdatedAt   time.Time       `json:"updatedAt"`
}

// Key identifies a stock record.
type Key struct {
	WarehouseID int64
	ProductID   int64
}

// Movement is an immutable journal entry.
type Movement struct {
	ID          int64           `json:"id"`
	WarehouseID int64           `json:"warehouseId"`
	ProductID   int64           `json:"productId"`
	Delta       decimal.Decimal `json:"delta"`
	Type        MovementType    `json:"type"`
	SaleID      int64           `json:"saleId,omitempty"`
	SaleItemID  int64           `json:"saleItemId,omitempty"`
	ActorID     int64           `json:"actorId"`
	Note        string          `json:"note"`
	CreatedAt   time.Time       `json:"createdAt"`
}

// Demand is the quantity one sale item needs, in the product base unit.
type Demand struct {
	ProductID  int64
	SaleItemID int64
	QtyBase    decimal.Decimal
}

// Availability reports the outcome of an availability check for one item.
type Availability struct {
	ProductID int64           `json:"productId"`
	Available decimal.Decimal `json:"available"`
	Required  decimal.Decimal `json:"required"`
	Remaining decimal.Decimal `json:"remaining"`
}

// Cause links SALE movements to the sale that produced them.
type Cause struct {
	SaleID  int64
	ActorID int64
	Source  string
	Note    string
}

// ReceiptInput restocks a product (PURCHASE).
type ReceiptInput struct {
	WarehouseID int64           `json:"warehouseId" validate:"required,gt=0"`
	ProductID   int64           `json:"productId" validate:"required,gt=0"`
	Qty         decimal.Decimal `json:"qty"`
	Note        string          `json:"note" validate:"max=255"`
	ActorID     int64           `json:"-"`
}

// AdjustmentInput corrects a balance by a signed delta.
type AdjustmentInput struct {
	WarehouseID int64           `json:"warehouseId" validate:"required,gt=0"`
	ProductID   int64           `json:"productId" validate:"required,gt=0"`
	Delta       decimal.Decimal `json:"delta"`
	Note        string          `json:"note" validate:"required,max=255"`
	ActorID     int64           `json:"-"`
}

// MovementFilter narrows journal reads.
type MovementFilter struct {
	WarehouseID int64
	ProductID   int64
	SaleID      int64
	Type        MovementType
	From        time.Time
	To          time.Time
	Limit       int
}

// Drift is a stock record whose balance disagrees with its journal.
type Drift struct {
	Key
	RecordQty  decimal.Decimal `json:"recordQty"`
	JournalQty decimal.Decimal `json:"journalQty"`
}

// ShortageError reports the first item that cannot be covered by stock.
type ShortageError struct {
	WarehouseID int64
	ProductID   int64
	Available   decimal.Decimal
	Required    decimal.Decimal
}

func (e *ShortageError) Error() string {
	return fmt.Sprintf("insufficient stock for product %d in warehouse %d: available %s, required %s",
		e.ProductID, e.WarehouseID, e.Available.String(), e.Required.String())
}

func (e *ShortageError) Unwrap() error {
	return shared.ErrInsufficientStock
}
