package inventory_test

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-pos/internal/inventory"
	"github.com/odyssey-erp/odyssey-pos/internal/inventory/inventorytest"
	"github.com/odyssey-erp/odyssey-pos/internal/shared"
)

func dec(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func TestCheckAvailabilityFailsFast(t *testing.T) {
	store := inventorytest.NewStore()
	store.Seed(1, 10, dec("5"))
	store.Seed(1, 11, dec("0"))
	ledger := inventory.NewLedger(nil, nil, inventory.LedgerConfig{})

	var got []inventory.Availability
	err := store.WithTx(context.Background(), func(ctx context.Context, tx inventory.Tx) error {
		var err error
		got, err = ledger.CheckAvailability(ctx, tx, 1, []inventory.Demand{
			{ProductID: 11, QtyBase: dec("1")},
			{ProductID: 10, QtyBase: dec("1")},
		})
		return err
	})
	require.Error(t, err)
	require.Nil(t, got)
	require.ErrorIs(t, err, shared.ErrInsufficientStock)

	var shortage *inventory.ShortageError
	require.True(t, errors.As(err, &shortage))
	require.Equal(t, int64(11), shortage.ProductID)
	require.True(t, shortage.Available.IsZero())
}

func TestCheckAvailabilityAccumulatesPerProduct(t *testing.T) {
	store := inventorytest.NewStore()
	store.Seed(1, 10, dec("5"))
	ledger := inventory.NewLedger(nil, nil, inventory.LedgerConfig{})
	ctx := context.Background()

	err := store.WithTx(ctx, func(ctx context.Context, tx inventory.Tx) error {
		_, err := ledger.CheckAvailability(ctx, tx, 1, []inventory.Demand{
			{ProductID: 10, QtyBase: dec("3")},
			{ProductID: 10, QtyBase: dec("3")},
		})
		return err
	})
	require.ErrorIs(t, err, shared.ErrInsufficientStock)

	var result []inventory.Availability
	err = store.WithTx(ctx, func(ctx context.Context, tx inventory.Tx) error {
		var err error
		result, err = ledger.CheckAvailability(ctx, tx, 1, []inventory.Demand{
			{ProductID: 10, QtyBase: dec("3")},
			{ProductID: 10, QtyBase: dec("2")},
		})
		return err
	})
	require.NoError(t, err)
	require.Len(t, result, 2)
	require.True(t, result[1].Remaining.IsZero())
}

func TestCheckAvailabilityMissingRecordIsZero(t *testing.T) {
	store := inventorytest.NewStore()
	ledger := inventory.NewLedger(nil, nil, inventory.LedgerConfig{})

	err := store.WithTx(context.Background(), func(ctx context.Context, tx inventory.Tx) error {
		_, err := ledger.CheckAvailability(ctx, tx, 1, []inventory.Demand{{ProductID: 99, QtyBase: dec("0.5")}})
		return err
	})
	require.ErrorIs(t, err, shared.ErrInsufficientStock)
}

func TestDecrementWritesOneMovementPerItem(t *testing.T) {
	store := inventorytest.NewStore()
	store.Seed(1, 10, dec("10"))
	store.Seed(1, 11, dec("4"))
	ledger := inventory.NewLedger(nil, nil, inventory.LedgerConfig{})

	var movements []inventory.Movement
	err := store.WithTx(context.Background(), func(ctx context.Context, tx inventory.Tx) error {
		var err error
		movements, err = ledger.Decrement(ctx, tx, 1, []inventory.Demand{
			{ProductID: 10, SaleItemID: 1, QtyBase: dec("2")},
			{ProductID: 11, SaleItemID: 2, QtyBase: dec("0")},
			{ProductID: 11, SaleItemID: 3, QtyBase: dec("1.5")},
		}, inventory.Cause{SaleID: 7, ActorID: 3, Source: inventory.SourceOfflineSync})
		return err
	})
	require.NoError(t, err)
	require.Len(t, movements, 2)
	require.True(t, dec("8").Equal(store.Qty(1, 10)))
	require.True(t, dec("2.5").Equal(store.Qty(1, 11)))
	for _, mv := range movements {
		require.Equal(t, inventory.MovementTypeSale, mv.Type)
		require.Equal(t, int64(7), mv.SaleID)
		require.True(t, mv.Delta.IsNegative())
		require.Contains(t, mv.Note, "offline-sync")
	}
}

func TestDecrementRequiresSale(t *testing.T) {
	store := inventorytest.NewStore()
	ledger := inventory.NewLedger(nil, nil, inventory.LedgerConfig{})
	err := store.WithTx(context.Background(), func(ctx context.Context, tx inventory.Tx) error {
		_, err := ledger.Decrement(ctx, tx, 1, []inventory.Demand{{ProductID: 1, QtyBase: dec("1")}}, inventory.Cause{})
		return err
	})
	require.Error(t, err)
}

func TestDecrementRollsBackWhenJournalFails(t *testing.T) {
	store := inventorytest.NewStore()
	store.Seed(1, 10, dec("10"))
	store.FailInsertMovement = errors.New("disk full")
	ledger := inventory.NewLedger(nil, nil, inventory.LedgerConfig{})

	err := store.WithTx(context.Background(), func(ctx context.Context, tx inventory.Tx) error {
		_, err := ledger.Decrement(ctx, tx, 1, []inventory.Demand{{ProductID: 10, SaleItemID: 1, QtyBase: dec("3")}},
			inventory.Cause{SaleID: 1})
		return err
	})
	require.Error(t, err)
	require.True(t, dec("10").Equal(store.Qty(1, 10)))
	require.Empty(t, store.Movements())
}

func TestAdjustRejectsNegativeBalance(t *testing.T) {
	store := inventorytest.NewStore()
	store.Seed(1, 10, dec("2"))
	ledger := inventory.NewLedger(nil, nil, inventory.LedgerConfig{})

	err := store.WithTx(context.Background(), func(ctx context.Context, tx inventory.Tx) error {
		_, _, err := ledger.Adjust(ctx, tx, inventory.AdjustmentInput{WarehouseID: 1, ProductID: 10, Delta: dec("-3"), Note: "count"})
		return err
	})
	require.ErrorIs(t, err, shared.ErrInsufficientStock)

	permissive := inventory.NewLedger(nil, nil, inventory.LedgerConfig{AllowNegativeAdjustments: true})
	err = store.WithTx(context.Background(), func(ctx context.Context, tx inventory.Tx) error {
		_, _, err := permissive.Adjust(ctx, tx, inventory.AdjustmentInput{WarehouseID: 1, ProductID: 10, Delta: dec("-3"), Note: "count"})
		return err
	})
	require.NoError(t, err)
	require.True(t, dec("-1").Equal(store.Qty(1, 10)))
}
