package inventory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-pos/internal/shared"
)

// Tx is the narrow set of stock operations a ledger call needs. It is bound to
// the caller's transaction so stock writes commit or roll back with the sale.
type Tx interface {
	MovementWriter
	// GetOrCreateRecord returns the locked record, inserting it at zero when absent.
	GetOrCreateRecord(ctx context.Context, warehouseID, productID int64) (Record, error)
	// AddQuantity atomically applies delta and returns the new balance.
	AddQuantity(ctx context.Context, warehouseID, productID int64, delta decimal.Decimal) (Record, error)
}

// Ledger validates availability and applies stock deltas through the journal.
type Ledger struct {
	journal       *Journal
	logger        *slog.Logger
	allowNegative bool
}

// LedgerConfig groups optional settings.
type LedgerConfig struct {
	AllowNegativeAdjustments bool
}

// NewLedger builds a Ledger.
func NewLedger(journal *Journal, logger *slog.Logger, cfg LedgerConfig) *Ledger {
	if journal == nil {
		journal = NewJournal()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Ledger{journal: journal, logger: logger, allowNegative: cfg.AllowNegativeAdjustments}
}

// Journal exposes the journal used by the ledger.
func (l *Ledger) Journal() *Journal {
	return l.journal
}

// CheckAvailability verifies demands in order and stops at the first shortfall.
// Demands for the same product accumulate, so two lines of one product must fit together.
func (l *Ledger) CheckAvailability(ctx context.Context, tx Tx, warehouseID int64, demands []Demand) ([]Availability, error) {
	if warehouseID <= 0 {
		return nil, shared.NewValidationError("warehouseId", "is required")
	}
	result := make([]Availability, 0, len(demands))
	reserved := make(map[int64]decimal.Decimal, len(demands))
	for _, d := range demands {
		if d.QtyBase.IsNegative() {
			return nil, shared.NewValidationError("qtyBase", "must not be negative")
		}
		rec, err := tx.GetOrCreateRecord(ctx, warehouseID, d.ProductID)
		if err != nil {
			return nil, fmt.Errorf("inventory: load stock record: %w", err)
		}
		needed := reserved[d.ProductID].Add(d.QtyBase)
		if rec.Qty.LessThan(needed) {
			return nil, &ShortageError{
				WarehouseID: warehouseID,
				ProductID:   d.ProductID,
				Available:   rec.Qty.Sub(reserved[d.ProductID]),
				Required:    d.QtyBase,
			}
		}
		reserved[d.ProductID] = needed
		result = append(result, Availability{
			ProductID: d.ProductID,
			Available: rec.Qty,
			Required:  d.QtyBase,
			Remaining: rec.Qty.Sub(needed),
		})
	}
	return result, nil
}

// Decrement subtracts each demand from stock and appends one SALE movement per demand.
// Zero quantity demands are skipped. No availability check is made here.
func (l *Ledger) Decrement(ctx context.Context, tx Tx, warehouseID int64, demands []Demand, cause Cause) ([]Movement, error) {
	if warehouseID <= 0 {
		return nil, shared.NewValidationError("warehouseId", "is required")
	}
	if cause.SaleID <= 0 {
		return nil, errors.New("inventory: decrement requires a sale")
	}
	movements := make([]Movement, 0, len(demands))
	for _, d := range demands {
		if d.QtyBase.IsZero() {
			continue
		}
		if d.QtyBase.IsNegative() {
			return nil, shared.NewValidationError("qtyBase", "must not be negative")
		}
		if _, err := tx.GetOrCreateRecord(ctx, warehouseID, d.ProductID); err != nil {
			return nil, fmt.Errorf("inventory: load stock record: %w", err)
		}
		rec, err := tx.AddQuantity(ctx, warehouseID, d.ProductID, d.QtyBase.Neg())
		if err != nil {
			return nil, fmt.Errorf("inventory: decrement stock: %w", err)
		}
		if rec.Qty.IsNegative() {
			l.logger.Warn("stock balance below zero after sale",
				slog.Int64("warehouse_id", warehouseID),
				slog.Int64("product_id", d.ProductID),
				slog.Int64("sale_id", cause.SaleID),
				slog.String("balance", rec.Qty.String()))
		}
		mv, err := l.journal.Append(ctx, tx, Movement{
			WarehouseID: warehouseID,
			ProductID:   d.ProductID,
			Delta:       d.QtyBase.Neg(),
			Type:        MovementTypeSale,
			SaleID:      cause.SaleID,
			SaleItemID:  d.SaleItemID,
			ActorID:     cause.ActorID,
			Note:        saleNote(cause),
		})
		if err != nil {
			return nil, err
		}
		movements = append(movements, mv)
	}
	return movements, nil
}

// Receive restocks a product with a PURCHASE movement.
func (l *Ledger) Receive(ctx context.Context, tx Tx, input ReceiptInput) (Movement, Record, error) {
	if !input.Qty.IsPositive() {
		return Movement{}, Record{}, shared.NewValidationError("qty", "must be greater than zero")
	}
	return l.apply(ctx, tx, input.WarehouseID, input.ProductID, input.Qty, MovementTypePurchase, input.ActorID, input.Note)
}

// Adjust applies a signed correction. Results below zero are rejected unless configured otherwise.
func (l *Ledger) Adjust(ctx context.Context, tx Tx, input AdjustmentInput) (Movement, Record, error) {
	if input.Delta.IsZero() {
		return Movement{}, Record{}, shared.NewValidationError("delta", "must be non zero")
	}
	if !l.allowNegative && input.Delta.IsNegative() {
		rec, err := tx.GetOrCreateRecord(ctx, input.WarehouseID, input.ProductID)
		if err != nil {
			return Movement{}, Record{}, fmt.Errorf("inventory: load stock record: %w", err)
		}
		if rec.Qty.Add(input.Delta).IsNegative() {
			return Movement{}, Record{}, &ShortageError{
				WarehouseID: input.WarehouseID,
				ProductID:   input.ProductID,
				Available:   rec.Qty,
				Required:    input.Delta.Neg(),
			}
		}
	}
	return l.apply(ctx, tx, input.WarehouseID, input.ProductID, input.Delta, MovementTypeAdjustment, input.ActorID, input.Note)
}

func (l *Ledger) apply(ctx context.Context, tx Tx, warehouseID, productID int64, delta decimal.Decimal, typ MovementType, actorID int64, note string) (Movement, Record, error) {
	if _, err := tx.GetOrCreateRecord(ctx, warehouseID, productID); err != nil {
		return Movement{}, Record{}, fmt.Errorf("inventory: load stock record: %w", err)
	}
	rec, err := tx.AddQuantity(ctx, warehouseID, productID, delta)
	if err != nil {
		return Movement{}, Record{}, fmt.Errorf("inventory: apply %s: %w", strings.ToLower(string(typ)), err)
	}
	mv, err := l.journal.Append(ctx, tx, Movement{
		WarehouseID: warehouseID,
		ProductID:   productID,
		Delta:       delta,
		Type:        typ,
		ActorID:     actorID,
		Note:        note,
	})
	if err != nil {
		return Movement{}, Record{}, err
	}
	return mv, rec, nil
}

func saleNote(cause Cause) string {
	source := cause.Source
	if source == "" {
		source = SourceOnline
	}
	note := fmt.Sprintf("sale %d (%s)", cause.SaleID, source)
	if cause.Note != "" {
		note += ": " + cause.Note
	}
	return note
}
