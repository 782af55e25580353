package inventory_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-pos/internal/inventory"
	"github.com/odyssey-erp/odyssey-pos/internal/inventory/inventorytest"
	"github.com/odyssey-erp/odyssey-pos/internal/shared"
)

func TestJournalAppendValidatesSign(t *testing.T) {
	store := inventorytest.NewStore()
	journal := inventory.NewJournal()
	ctx := context.Background()

	cases := []struct {
		name string
		mv   inventory.Movement
	}{
		{"positive sale", inventory.Movement{WarehouseID: 1, ProductID: 1, Delta: dec("1"), Type: inventory.MovementTypeSale, SaleID: 1}},
		{"negative purchase", inventory.Movement{WarehouseID: 1, ProductID: 1, Delta: dec("-1"), Type: inventory.MovementTypePurchase}},
		{"zero delta", inventory.Movement{WarehouseID: 1, ProductID: 1, Type: inventory.MovementTypeAdjustment}},
		{"sale without sale id", inventory.Movement{WarehouseID: 1, ProductID: 1, Delta: dec("-1"), Type: inventory.MovementTypeSale}},
		{"unknown type", inventory.Movement{WarehouseID: 1, ProductID: 1, Delta: dec("1"), Type: "TRANSFER"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := store.WithTx(ctx, func(ctx context.Context, tx inventory.Tx) error {
				_, err := journal.Append(ctx, tx, tc.mv)
				return err
			})
			require.ErrorIs(t, err, shared.ErrValidation)
		})
	}
	require.Empty(t, store.Movements())
}

func TestJournalHistoryFilters(t *testing.T) {
	store := inventorytest.NewStore()
	journal := inventory.NewJournal()
	ctx := context.Background()

	err := store.WithTx(ctx, func(ctx context.Context, tx inventory.Tx) error {
		for _, mv := range []inventory.Movement{
			{WarehouseID: 1, ProductID: 1, Delta: dec("5"), Type: inventory.MovementTypePurchase},
			{WarehouseID: 1, ProductID: 1, Delta: dec("-2"), Type: inventory.MovementTypeSale, SaleID: 4, SaleItemID: 9},
			{WarehouseID: 2, ProductID: 1, Delta: dec("1"), Type: inventory.MovementTypeAdjustment},
		} {
			if _, err := journal.Append(ctx, tx, mv); err != nil {
				return err
			}
		}
		return nil
	})
	require.NoError(t, err)

	sales, err := journal.History(ctx, store, inventory.MovementFilter{SaleID: 4})
	require.NoError(t, err)
	require.Len(t, sales, 1)
	require.False(t, sales[0].CreatedAt.IsZero())

	wh1, err := journal.History(ctx, store, inventory.MovementFilter{WarehouseID: 1})
	require.NoError(t, err)
	require.Len(t, wh1, 2)

	_, err = journal.History(ctx, store, inventory.MovementFilter{Type: "BOGUS"})
	require.ErrorIs(t, err, shared.ErrValidation)

	now := time.Now()
	_, err = journal.History(ctx, store, inventory.MovementFilter{From: now, To: now.Add(-time.Hour)})
	require.ErrorIs(t, err, shared.ErrValidation)
}
