package sales

import (
	"strconv"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-pos/internal/shared"
)

// Totals are the monetary sums of a sale.
type Totals struct {
	Subtotal   decimal.Decimal
	TaxTotal   decimal.Decimal
	GrandTotal decimal.Decimal
}

// BuildItems turns client lines into priced items. LineTotal is qty × priceUnit
// less discount, tax is LineTotal × the product tax rate. Products missing from
// rates are taxed at zero.
func BuildItems(inputs []ItemInput, products map[int64]Product) []Item {
	items := make([]Item, 0, len(inputs))
	for _, in := range inputs {
		item := Item{
			ProductID: in.ProductID,
			UnitCode:  in.UnitCode,
			Qty:       in.Qty,
			QtyBase:   in.QtyBase,
			PriceUnit: in.PriceUnit,
			Discount:  in.Discount,
			LineTotal: in.Qty.Mul(in.PriceUnit).Sub(in.Discount),
		}
		Price(&item, products[in.ProductID].TaxRate)
		items = append(items, item)
	}
	return items
}

// Price sets the tax rate and tax amount of an item from its current LineTotal.
func Price(item *Item, rate decimal.Decimal) {
	item.TaxRate = rate
	item.TaxAmount = item.LineTotal.Mul(rate)
}

// Sum computes sale totals from priced items.
func Sum(items []Item) Totals {
	var t Totals
	for _, it := range items {
		t.Subtotal = t.Subtotal.Add(it.LineTotal)
		t.TaxTotal = t.TaxTotal.Add(it.TaxAmount)
	}
	t.GrandTotal = t.Subtotal.Add(t.TaxTotal)
	return t
}

// ValidateItems checks quantities and prices, which struct tags cannot express for decimals.
func ValidateItems(inputs []ItemInput) error {
	verr := &shared.ValidationError{}
	for i, in := range inputs {
		field := func(name string) string {
			return "items[" + strconv.Itoa(i) + "]." + name
		}
		if !in.Qty.IsPositive() {
			verr.Add(field("qty"), "must be greater than zero")
		}
		if !in.QtyBase.IsPositive() {
			verr.Add(field("qtyBase"), "must be greater than zero")
		}
		if in.PriceUnit.IsNegative() {
			verr.Add(field("priceUnit"), "must not be negative")
		}
		if in.Discount.IsNegative() {
			verr.Add(field("discount"), "must not be negative")
		} else if in.Discount.GreaterThan(in.Qty.Mul(in.PriceUnit)) {
			verr.Add(field("discount"), "must not exceed qty × priceUnit")
		}
	}
	return verr.OrNil()
}
