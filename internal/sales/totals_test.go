package sales

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestBuildItemsAndSum(t *testing.T) {
	d := decimal.RequireFromString
	items := BuildItems([]ItemInput{
		{ProductID: 1, Qty: d("3"), QtyBase: d("3"), PriceUnit: d("2.50"), Discount: d("0.50")},
		{ProductID: 2, Qty: d("1"), QtyBase: d("12"), PriceUnit: d("10")},
	}, map[int64]Product{1: {ID: 1, TaxRate: d("0.16")}})

	require.True(t, d("7").Equal(items[0].LineTotal))
	require.True(t, d("1.12").Equal(items[0].TaxAmount))
	require.True(t, items[1].TaxAmount.IsZero())

	totals := Sum(items)
	require.True(t, d("17").Equal(totals.Subtotal))
	require.True(t, d("1.12").Equal(totals.TaxTotal))
	require.True(t, d("18.12").Equal(totals.GrandTotal))
}

func TestValidateItems(t *testing.T) {
	d := decimal.RequireFromString
	err := ValidateItems([]ItemInput{{ProductID: 1, Qty: d("1"), QtyBase: d("1"), PriceUnit: d("1"), Discount: d("2")}})
	require.Error(t, err)
	require.Contains(t, err.Error(), "items[0].discount")

	require.NoError(t, ValidateItems([]ItemInput{{ProductID: 1, Qty: d("1"), QtyBase: d("1"), PriceUnit: d("0")}}))
}
