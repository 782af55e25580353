package conflicts

import (
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-pos/internal/sales"
)

// Action is an admin decision on a sale awaiting review.
type Action string

const (
	ActionEditQuantities Action = "EDIT_QUANTITIES"
	ActionCancel         Action = "CANCEL"
)

// ItemEdit overrides the quantities of one item. When only one quantity is
// given the other follows the item's unit factor.
type ItemEdit struct {
	ID         int64            `json:"id"`
	NewQty     *decimal.Decimal `json:"newQty,omitempty"`
	NewQtyBase *decimal.Decimal `json:"newQtyBase,omitempty"`
}

// Resolution is a request to close a conflict.
type Resolution struct {
	Action  Action     `json:"action"`
	SaleID  int64      `json:"saleId"`
	Items   []ItemEdit `json:"items,omitempty"`
	Notes   string     `json:"notes,omitempty"`
	ActorID int64      `json:"-"`
}

// ItemView is a sale item with the stock picture of its warehouse.
type ItemView struct {
	sales.Item
	AvailableStock decimal.Decimal `json:"availableStock"`
	RequiredStock  decimal.Decimal `json:"requiredStock"`
	StockShortage  decimal.Decimal `json:"stockShortage"`
}

// Conflict is a REVIEW_REQUIRED sale. Items shadows the embedded sale items.
type Conflict struct {
	sales.Sale
	Items []ItemView `json:"items"`
}

// Filter narrows the conflict list.
type Filter struct {
	WarehouseID int64
	Page        int
	PerPage     int
}
