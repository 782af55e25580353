package conflicts_test

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-pos/internal/conflicts"
	"github.com/odyssey-erp/odyssey-pos/internal/folio"
	"github.com/odyssey-erp/odyssey-pos/internal/inventory"
	"github.com/odyssey-erp/odyssey-pos/internal/sales"
	"github.com/odyssey-erp/odyssey-pos/internal/sales/salestest"
	"github.com/odyssey-erp/odyssey-pos/internal/shared"
)

func dec(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func decPtr(v string) *decimal.Decimal {
	d := dec(v)
	return &d
}

type actionRecorder struct {
	actions []string
}

func (r *actionRecorder) ObserveConflictResolution(action string) {
	r.actions = append(r.actions, action)
}

type fixture struct {
	store    *salestest.Store
	intake   *sales.Intake
	workflow *conflicts.Workflow
	recorder *actionRecorder
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := salestest.NewStore()
	store.AddParties(1, 1, 1)
	store.AddProduct(10, dec("0.1"))
	store.AddProduct(11, dec("0"))
	folios, err := folio.NewGenerator(folio.Config{}, nil)
	require.NoError(t, err)
	intake := sales.NewIntake(store, nil, folios, sales.IntakeConfig{DefaultWarehouseID: 1}, nil)
	recorder := &actionRecorder{}
	workflow := conflicts.NewWorkflow(store, intake.Ledger(), folios, recorder, nil)
	return &fixture{store: store, intake: intake, workflow: workflow, recorder: recorder}
}

func (f *fixture) flag(t *testing.T, clientUUID string, items ...sales.ItemInput) sales.Sale {
	t.Helper()
	return f.flagRequest(t, sales.ConfirmRequest{
		ClientUUID:  clientUUID,
		CustomerID:  1,
		WarehouseID: 1,
		SellerID:    1,
		ActorID:     1,
		Items:       items,
	}, "stock_shortage: insufficient stock")
}

func (f *fixture) flagRequest(t *testing.T, req sales.ConfirmRequest, reason string) sales.Sale {
	t.Helper()
	var sale sales.Sale
	err := f.store.WithTx(context.Background(), func(ctx context.Context, tx sales.Tx) error {
		var err error
		sale, err = f.intake.PersistForReview(ctx, tx, req, reason)
		return err
	})
	require.NoError(t, err)
	return sale
}

func line(productID int64, qty, qtyBase, price string) sales.ItemInput {
	return sales.ItemInput{ProductID: productID, UnitCode: "PCS", Qty: dec(qty), QtyBase: dec(qtyBase), PriceUnit: dec(price)}
}

func TestEditQuantitiesConfirmsAndDecrements(t *testing.T) {
	f := newFixture(t)
	f.store.Stock.Seed(1, 11, dec("6"))
	flagged := f.flag(t, "11111111-1111-4111-8111-111111111111", line(11, "10", "10", "5"))

	sale, err := f.workflow.Resolve(context.Background(), conflicts.Resolution{
		Action:  conflicts.ActionEditQuantities,
		SaleID:  flagged.ID,
		Items:   []conflicts.ItemEdit{{ID: flagged.Items[0].ID, NewQtyBase: decPtr("6")}},
		Notes:   "only six left",
		ActorID: 9,
	})
	require.NoError(t, err)
	require.Equal(t, sales.StatusConfirmed, sale.Status)
	require.NotNil(t, sale.Folio)
	require.NotNil(t, sale.ConfirmedAt)
	require.True(t, dec("6").Equal(sale.Items[0].Qty))
	require.True(t, dec("6").Equal(sale.Items[0].QtyBase))
	require.True(t, dec("30").Equal(sale.Items[0].LineTotal))
	require.True(t, dec("30").Equal(sale.GrandTotal))

	require.True(t, f.store.Stock.Qty(1, 11).IsZero())
	movements := f.store.Stock.Movements()
	require.Len(t, movements, 1)
	require.Equal(t, inventory.MovementTypeSale, movements[0].Type)
	require.True(t, dec("-6").Equal(movements[0].Delta))
	require.Equal(t, flagged.Items[0].ID, movements[0].SaleItemID)
	require.Equal(t, int64(9), movements[0].ActorID)

	stored, err := f.store.GetSale(context.Background(), flagged.ID)
	require.NoError(t, err)
	require.Equal(t, sales.StatusConfirmed, stored.Status)
	require.True(t, dec("30").Equal(stored.Items[0].LineTotal))

	audits := f.store.Audits()
	last := audits[len(audits)-1]
	require.Equal(t, "sale:resolve_edit", last.Action)
	require.Equal(t, "50", last.Meta["prior_subtotal"])
	require.Equal(t, "30", last.Meta["subtotal"])
	require.Equal(t, []string{string(conflicts.ActionEditQuantities)}, f.recorder.actions)
}

func TestEditQuantitiesFollowsUnitFactorAndRetaxes(t *testing.T) {
	f := newFixture(t)
	f.store.Stock.Seed(1, 10, dec("100"))
	f.store.Stock.Seed(1, 11, dec("100"))
	flagged := f.flag(t, "", line(10, "2", "24", "10"), line(11, "1", "1", "4"))
	f.store.AddProduct(10, dec("0.2"))

	sale, err := f.workflow.Resolve(context.Background(), conflicts.Resolution{
		Action: conflicts.ActionEditQuantities,
		SaleID: flagged.ID,
		Items: []conflicts.ItemEdit{
			{ID: flagged.Items[0].ID, NewQty: decPtr("1")},
			{ID: flagged.Items[1].ID, NewQtyBase: decPtr("0")},
		},
	})
	require.NoError(t, err)
	require.True(t, dec("12").Equal(sale.Items[0].QtyBase))
	require.True(t, dec("10").Equal(sale.Items[0].LineTotal))
	require.True(t, dec("2").Equal(sale.Items[0].TaxAmount))
	require.True(t, sale.Items[1].Qty.IsZero())
	require.True(t, dec("10").Equal(sale.Subtotal))
	require.True(t, dec("12").Equal(sale.GrandTotal))

	require.True(t, dec("88").Equal(f.store.Stock.Qty(1, 10)))
	require.True(t, dec("100").Equal(f.store.Stock.Qty(1, 11)))
	require.Len(t, f.store.Stock.Movements(), 1)
}

func TestEditQuantitiesRejectsBadEdits(t *testing.T) {
	f := newFixture(t)
	flagged := f.flag(t, "", line(11, "3", "3", "1"))
	other := f.flag(t, "", line(11, "1", "1", "1"))
	ctx := context.Background()

	cases := []conflicts.Resolution{
		{Action: conflicts.ActionEditQuantities, SaleID: flagged.ID, Items: []conflicts.ItemEdit{{ID: other.Items[0].ID, NewQty: decPtr("1")}}},
		{Action: conflicts.ActionEditQuantities, SaleID: flagged.ID, Items: []conflicts.ItemEdit{{ID: flagged.Items[0].ID, NewQty: decPtr("0")}}},
		{Action: conflicts.ActionEditQuantities, SaleID: flagged.ID, Items: []conflicts.ItemEdit{{ID: flagged.Items[0].ID, NewQty: decPtr("-1")}}},
		{Action: conflicts.ActionEditQuantities, SaleID: flagged.ID, Items: []conflicts.ItemEdit{{ID: flagged.Items[0].ID}}},
		{Action: "MERGE", SaleID: flagged.ID},
		{Action: conflicts.ActionCancel},
	}
	for _, res := range cases {
		_, err := f.workflow.Resolve(ctx, res)
		require.ErrorIs(t, err, shared.ErrValidation, "%+v", res)
	}

	stored, err := f.store.GetSale(ctx, flagged.ID)
	require.NoError(t, err)
	require.Equal(t, sales.StatusReviewRequired, stored.Status)
	require.True(t, dec("3").Equal(stored.Items[0].QtyBase))
	require.Empty(t, f.store.Stock.Movements())
	require.Empty(t, f.recorder.actions)
}

func TestEditQuantitiesWithoutEditsConfirmsCurrentQuantities(t *testing.T) {
	f := newFixture(t)
	flagged := f.flag(t, "", line(10, "4", "4", "5"))
	f.store.Stock.Seed(1, 10, dec("20"))

	sale, err := f.workflow.Resolve(context.Background(), conflicts.Resolution{
		Action:  conflicts.ActionEditQuantities,
		SaleID:  flagged.ID,
		ActorID: 2,
	})
	require.NoError(t, err)
	require.Equal(t, sales.StatusConfirmed, sale.Status)
	require.NotNil(t, sale.Folio)
	require.True(t, dec("4").Equal(sale.Items[0].QtyBase))
	require.True(t, dec("20").Equal(sale.Subtotal))
	require.True(t, dec("22").Equal(sale.GrandTotal))
	require.True(t, dec("16").Equal(f.store.Stock.Qty(1, 10)))
	require.Len(t, f.store.Stock.Movements(), 1)
}

func TestEditQuantitiesDropsOfflineDiscount(t *testing.T) {
	f := newFixture(t)
	discounted := line(11, "4", "4", "5")
	discounted.Discount = dec("2")
	untouched := line(10, "1", "1", "5")
	untouched.Discount = dec("1")
	flagged := f.flag(t, "", discounted, untouched)

	sale, err := f.workflow.Resolve(context.Background(), conflicts.Resolution{
		Action: conflicts.ActionEditQuantities,
		SaleID: flagged.ID,
		Items:  []conflicts.ItemEdit{{ID: flagged.Items[0].ID, NewQty: decPtr("3")}},
	})
	require.NoError(t, err)
	require.True(t, sale.Items[0].Discount.IsZero())
	require.True(t, dec("15").Equal(sale.Items[0].LineTotal))
	require.True(t, dec("1").Equal(sale.Items[1].Discount))

	stored, err := f.store.GetSale(context.Background(), flagged.ID)
	require.NoError(t, err)
	require.True(t, stored.Items[0].Discount.IsZero())
	require.True(t, dec("15").Equal(stored.Items[0].LineTotal))
}

func TestEditQuantitiesRequiresKnownReferences(t *testing.T) {
	f := newFixture(t)
	f.store.Stock.Seed(1, 10, dec("10"))
	unknownCustomer := f.flagRequest(t, sales.ConfirmRequest{
		CustomerID: 77, WarehouseID: 1, SellerID: 1, ActorID: 1,
		Items: []sales.ItemInput{line(10, "1", "1", "5")},
	}, "invalid_reference: unknown customer 77")
	unknownProduct := f.flagRequest(t, sales.ConfirmRequest{
		CustomerID: 1, WarehouseID: 1, SellerID: 1, ActorID: 1,
		Items: []sales.ItemInput{line(10, "1", "1", "5"), line(42, "1", "1", "5")},
	}, "invalid_reference: unknown product 42")
	ctx := context.Background()

	for _, id := range []int64{unknownCustomer.ID, unknownProduct.ID} {
		_, err := f.workflow.Resolve(ctx, conflicts.Resolution{Action: conflicts.ActionEditQuantities, SaleID: id})
		var ref *sales.ReferenceError
		require.ErrorAs(t, err, &ref)
		require.ErrorIs(t, err, shared.ErrNotFound)

		stored, err := f.store.GetSale(ctx, id)
		require.NoError(t, err)
		require.Equal(t, sales.StatusReviewRequired, stored.Status)
	}
	require.True(t, dec("10").Equal(f.store.Stock.Qty(1, 10)))
	require.Empty(t, f.store.Stock.Movements())

	sale, err := f.workflow.Resolve(ctx, conflicts.Resolution{
		Action: conflicts.ActionEditQuantities,
		SaleID: unknownProduct.ID,
		Items:  []conflicts.ItemEdit{{ID: unknownProduct.Items[1].ID, NewQtyBase: decPtr("0")}},
	})
	require.NoError(t, err)
	require.Equal(t, sales.StatusConfirmed, sale.Status)
	require.True(t, dec("9").Equal(f.store.Stock.Qty(1, 10)))

	cancelled, err := f.workflow.Resolve(ctx, conflicts.Resolution{Action: conflicts.ActionCancel, SaleID: unknownCustomer.ID})
	require.NoError(t, err)
	require.Equal(t, sales.StatusCancelled, cancelled.Status)
}

func TestCancelLeavesStockUntouched(t *testing.T) {
	f := newFixture(t)
	f.store.Stock.Seed(1, 11, dec("4"))
	flagged := f.flag(t, "", line(11, "10", "10", "5"))

	sale, err := f.workflow.Resolve(context.Background(), conflicts.Resolution{
		Action: conflicts.ActionCancel,
		SaleID: flagged.ID,
		Notes:  "customer left",
	})
	require.NoError(t, err)
	require.Equal(t, sales.StatusCancelled, sale.Status)
	require.NotNil(t, sale.CancelledAt)
	require.Nil(t, sale.Folio)
	require.True(t, dec("4").Equal(f.store.Stock.Qty(1, 11)))
	require.Empty(t, f.store.Stock.Movements())
	audits := f.store.Audits()
	require.Equal(t, "sale:resolve_cancel", audits[len(audits)-1].Action)
}

func TestResolveOnlyTouchesSalesInReview(t *testing.T) {
	f := newFixture(t)
	f.store.Stock.Seed(1, 11, dec("5"))
	confirmed, err := f.intake.CreateAndConfirm(context.Background(), sales.ConfirmRequest{
		CustomerID: 1,
		SellerID:   1,
		Items:      []sales.ItemInput{line(11, "1", "1", "1")},
	})
	require.NoError(t, err)
	flagged := f.flag(t, "", line(11, "1", "1", "1"))
	_, err = f.workflow.Resolve(context.Background(), conflicts.Resolution{Action: conflicts.ActionCancel, SaleID: flagged.ID})
	require.NoError(t, err)

	for _, id := range []int64{confirmed.ID, flagged.ID, 999} {
		_, err := f.workflow.Resolve(context.Background(), conflicts.Resolution{Action: conflicts.ActionCancel, SaleID: id})
		require.ErrorIs(t, err, shared.ErrNotFound)
	}
	require.Len(t, f.store.Stock.Movements(), 1)
}

func TestListReportsShortages(t *testing.T) {
	f := newFixture(t)
	f.store.Stock.Seed(1, 11, dec("3"))
	f.store.Stock.Seed(1, 10, dec("50"))
	flagged := f.flag(t, "", line(11, "10", "10", "5"), line(10, "2", "2", "1"), line(12, "1", "1", "1"))
	f.flag(t, "", line(10, "1", "1", "1"))
	done := f.flag(t, "", line(10, "1", "1", "1"))
	_, err := f.workflow.Resolve(context.Background(), conflicts.Resolution{Action: conflicts.ActionCancel, SaleID: done.ID})
	require.NoError(t, err)

	list, err := f.workflow.List(context.Background(), conflicts.Filter{})
	require.NoError(t, err)
	require.Len(t, list, 2)

	var target conflicts.Conflict
	for _, c := range list {
		if c.ID == flagged.ID {
			target = c
		}
	}
	require.Len(t, target.Items, 3)
	require.True(t, dec("3").Equal(target.Items[0].AvailableStock))
	require.True(t, dec("10").Equal(target.Items[0].RequiredStock))
	require.True(t, dec("7").Equal(target.Items[0].StockShortage))
	require.True(t, target.Items[1].StockShortage.IsZero())
	require.True(t, target.Items[2].AvailableStock.IsZero())
	require.True(t, dec("1").Equal(target.Items[2].StockShortage))

	_, found, err := f.store.FindRecord(context.Background(), 1, 12)
	require.NoError(t, err)
	require.False(t, found)
}
