// Package conflicts lets an admin settle offline sales that could not be confirmed.
package conflicts

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/singleflight"

	"github.com/odyssey-erp/odyssey-pos/internal/folio"
	"github.com/odyssey-erp/odyssey-pos/internal/inventory"
	"github.com/odyssey-erp/odyssey-pos/internal/sales"
	"github.com/odyssey-erp/odyssey-pos/internal/shared"
)

var tracer = otel.Tracer("github.com/odyssey-erp/odyssey-pos/internal/conflicts")

// Store is the sales store plus read-only stock lookups.
type Store interface {
	sales.Store
	FindRecord(ctx context.Context, warehouseID, productID int64) (inventory.Record, bool, error)
}

// Recorder receives conflict metrics.
type Recorder interface {
	ObserveConflictResolution(action string)
}

// Workflow lists and resolves REVIEW_REQUIRED sales.
type Workflow struct {
	store   Store
	ledger  *inventory.Ledger
	folios  *folio.Generator
	metrics Recorder
	logger  *slog.Logger
	lists   singleflight.Group
	now     func() time.Time
}

// NewWorkflow builds a Workflow. metrics may be nil.
func NewWorkflow(store Store, ledger *inventory.Ledger, folios *folio.Generator, metrics Recorder, logger *slog.Logger) *Workflow {
	if logger == nil {
		logger = slog.Default()
	}
	if ledger == nil {
		ledger = inventory.NewLedger(nil, logger, inventory.LedgerConfig{})
	}
	return &Workflow{
		store:   store,
		ledger:  ledger,
		folios:  folios,
		metrics: metrics,
		logger:  logger,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// List returns sales awaiting review with per-item stock availability.
// Identical concurrent requests share one read.
func (w *Workflow) List(ctx context.Context, filter Filter) ([]Conflict, error) {
	listFilter := sales.ListFilter{
		Status:      sales.StatusReviewRequired,
		WarehouseID: filter.WarehouseID,
		Page:        filter.Page,
		PerPage:     filter.PerPage,
	}.Normalize()
	key := fmt.Sprintf("%d:%d:%d", listFilter.WarehouseID, listFilter.Page, listFilter.PerPage)
	ch := w.lists.DoChan(key, func() (any, error) {
		return w.list(context.WithoutCancel(ctx), listFilter)
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		rows := res.Val.([]Conflict)
		return append([]Conflict(nil), rows...), nil
	}
}

func (w *Workflow) list(ctx context.Context, filter sales.ListFilter) ([]Conflict, error) {
	rows, _, err := w.store.ListSales(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("conflicts: list sales: %w", err)
	}
	out := make([]Conflict, 0, len(rows))
	for _, sale := range rows {
		c := Conflict{Sale: sale, Items: make([]ItemView, 0, len(sale.Items))}
		for _, it := range sale.Items {
			rec, _, err := w.store.FindRecord(ctx, sale.WarehouseID, it.ProductID)
			if err != nil {
				return nil, fmt.Errorf("conflicts: stock for product %d: %w", it.ProductID, err)
			}
			shortage := it.QtyBase.Sub(rec.Qty)
			if shortage.IsNegative() {
				shortage = decimal.Zero
			}
			c.Items = append(c.Items, ItemView{
				Item:           it,
				AvailableStock: rec.Qty,
				RequiredStock:  it.QtyBase,
				StockShortage:  shortage,
			})
		}
		out = append(out, c)
	}
	return out, nil
}

// Resolve applies an admin decision to a REVIEW_REQUIRED sale.
func (w *Workflow) Resolve(ctx context.Context, res Resolution) (sales.Sale, error) {
	ctx, span := tracer.Start(ctx, "conflicts.resolve")
	defer span.End()
	span.SetAttributes(attribute.String("conflict.action", string(res.Action)), attribute.Int64("sale.id", res.SaleID))

	if res.SaleID <= 0 {
		return sales.Sale{}, shared.NewValidationError("saleId", "is required")
	}
	var (
		sale sales.Sale
		err  error
	)
	switch res.Action {
	case ActionEditQuantities:
		sale, err = w.editQuantities(ctx, res)
	case ActionCancel:
		sale, err = w.cancel(ctx, res)
	default:
		return sales.Sale{}, shared.NewValidationError("action", "must be one of EDIT_QUANTITIES CANCEL")
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return sales.Sale{}, err
	}
	if w.metrics != nil {
		w.metrics.ObserveConflictResolution(string(res.Action))
	}
	w.logger.Info("conflict resolved",
		slog.String("action", string(res.Action)),
		slog.Int64("sale_id", sale.ID),
		slog.String("status", string(sale.Status)))
	return sale, nil
}

func (w *Workflow) editQuantities(ctx context.Context, res Resolution) (sales.Sale, error) {
	if err := validateEdits(res.Items); err != nil {
		return sales.Sale{}, err
	}
	if w.folios == nil {
		return sales.Sale{}, errors.New("conflicts: folio generator not configured")
	}
	var out sales.Sale
	err := w.store.WithTx(ctx, func(ctx context.Context, tx sales.Tx) error {
		sale, err := loadForReview(ctx, tx, res.SaleID)
		if err != nil {
			return err
		}
		if err := tx.CheckParties(ctx, sales.Parties{
			CustomerID:  sale.CustomerID,
			WarehouseID: sale.WarehouseID,
			SellerID:    sale.SellerID,
		}); err != nil {
			return err
		}
		prior := sales.Sum(sale.Items)

		items := append([]sales.Item(nil), sale.Items...)
		index := make(map[int64]int, len(items))
		for i, it := range items {
			index[it.ID] = i
		}
		for i, edit := range res.Items {
			pos, ok := index[edit.ID]
			if !ok {
				return shared.NewValidationError(fmt.Sprintf("items[%d].id", i), "does not belong to the sale")
			}
			applyEdit(&items[pos], edit)
		}
		remaining := false
		for _, it := range items {
			if it.QtyBase.IsPositive() {
				remaining = true
				break
			}
		}
		if !remaining {
			return shared.NewValidationError("items", "all quantities are zero, cancel the sale instead")
		}

		ids := make([]int64, 0, len(items))
		for _, it := range items {
			ids = append(ids, it.ProductID)
		}
		products, err := tx.LookupProducts(ctx, ids)
		if err != nil {
			return fmt.Errorf("conflicts: lookup products: %w", err)
		}
		for i := range items {
			rate := items[i].TaxRate
			p, ok := products[items[i].ProductID]
			switch {
			case ok:
				rate = p.TaxRate
			case items[i].QtyBase.IsPositive():
				return &sales.ReferenceError{Entity: "product", ID: items[i].ProductID}
			}
			sales.Price(&items[i], rate)
			if err := tx.UpdateItem(ctx, items[i]); err != nil {
				return fmt.Errorf("conflicts: update item %d: %w", items[i].ID, err)
			}
		}

		number, err := w.folios.Generate(ctx, tx)
		if err != nil {
			return err
		}
		totals := sales.Sum(items)
		now := w.now()
		sale.Status = sales.StatusConfirmed
		sale.Folio = &number
		sale.ConfirmedAt = &now
		sale.Subtotal = totals.Subtotal
		sale.TaxTotal = totals.TaxTotal
		sale.GrandTotal = totals.GrandTotal
		if res.Notes != "" {
			notes := res.Notes
			sale.Notes = &notes
		}
		if err := tx.UpdateSale(ctx, sale); err != nil {
			return fmt.Errorf("conflicts: update sale: %w", err)
		}
		sale.Items = items

		demands := make([]inventory.Demand, 0, len(items))
		for _, it := range items {
			demands = append(demands, inventory.Demand{ProductID: it.ProductID, SaleItemID: it.ID, QtyBase: it.QtyBase})
		}
		if _, err := w.ledger.Decrement(ctx, tx, sale.WarehouseID, demands, inventory.Cause{
			SaleID:  sale.ID,
			ActorID: res.ActorID,
			Source:  inventory.SourceConflict,
			Note:    res.Notes,
		}); err != nil {
			return err
		}

		if err := tx.InsertAudit(ctx, shared.AuditLog{
			ActorID:  res.ActorID,
			Action:   "sale:resolve_edit",
			Entity:   "sale",
			EntityID: fmt.Sprintf("%d", sale.ID),
			Meta: map[string]any{
				"folio":             number,
				"prior_subtotal":    prior.Subtotal.String(),
				"prior_grand_total": prior.GrandTotal.String(),
				"subtotal":          totals.Subtotal.String(),
				"grand_total":       totals.GrandTotal.String(),
				"edits":             auditEdits(res.Items),
				"notes":             res.Notes,
			},
		}); err != nil {
			return fmt.Errorf("conflicts: audit edit: %w", err)
		}
		out = sale
		return nil
	})
	if err != nil {
		return sales.Sale{}, err
	}
	return out, nil
}

func (w *Workflow) cancel(ctx context.Context, res Resolution) (sales.Sale, error) {
	var out sales.Sale
	err := w.store.WithTx(ctx, func(ctx context.Context, tx sales.Tx) error {
		sale, err := loadForReview(ctx, tx, res.SaleID)
		if err != nil {
			return err
		}
		now := w.now()
		sale.Status = sales.StatusCancelled
		sale.CancelledAt = &now
		if res.Notes != "" {
			notes := res.Notes
			sale.Notes = &notes
		}
		if err := tx.UpdateSale(ctx, sale); err != nil {
			return fmt.Errorf("conflicts: update sale: %w", err)
		}
		if err := tx.InsertAudit(ctx, shared.AuditLog{
			ActorID:  res.ActorID,
			Action:   "sale:resolve_cancel",
			Entity:   "sale",
			EntityID: fmt.Sprintf("%d", sale.ID),
			Meta:     map[string]any{"notes": res.Notes, "grand_total": sale.GrandTotal.String()},
		}); err != nil {
			return fmt.Errorf("conflicts: audit cancel: %w", err)
		}
		out = sale
		return nil
	})
	if err != nil {
		return sales.Sale{}, err
	}
	return out, nil
}

// loadForReview locks a sale and hides every sale not awaiting review.
func loadForReview(ctx context.Context, tx sales.Tx, id int64) (sales.Sale, error) {
	sale, err := tx.GetSaleForUpdate(ctx, id)
	if err != nil {
		return sales.Sale{}, err
	}
	if sale.Status != sales.StatusReviewRequired {
		return sales.Sale{}, fmt.Errorf("sale %d awaiting review: %w", id, shared.ErrNotFound)
	}
	return sale, nil
}

func validateEdits(edits []ItemEdit) error {
	verr := &shared.ValidationError{}
	seen := make(map[int64]bool, len(edits))
	for i, e := range edits {
		field := func(name string) string { return fmt.Sprintf("items[%d].%s", i, name) }
		if e.ID <= 0 {
			verr.Add(field("id"), "is required")
		} else if seen[e.ID] {
			verr.Add(field("id"), "is edited twice")
		}
		seen[e.ID] = true
		if e.NewQty == nil && e.NewQtyBase == nil {
			verr.Add(field("newQty"), "newQty or newQtyBase is required")
		}
		if e.NewQty != nil && e.NewQty.IsNegative() {
			verr.Add(field("newQty"), "must not be negative")
		}
		if e.NewQtyBase != nil && e.NewQtyBase.IsNegative() {
			verr.Add(field("newQtyBase"), "must not be negative")
		}
	}
	return verr.OrNil()
}

// applyEdit sets the new quantities and line total of item. A missing quantity
// is derived from the item's qtyBase/qty ratio. The line is repriced at the unit
// price, so any discount captured offline is dropped.
func applyEdit(item *sales.Item, edit ItemEdit) {
	qty, qtyBase := item.Qty, item.QtyBase
	switch {
	case edit.NewQty != nil && edit.NewQtyBase != nil:
		qty, qtyBase = *edit.NewQty, *edit.NewQtyBase
	case edit.NewQty != nil:
		qty = *edit.NewQty
		qtyBase = convert(qty, item.QtyBase, item.Qty)
	case edit.NewQtyBase != nil:
		qtyBase = *edit.NewQtyBase
		qty = convert(qtyBase, item.Qty, item.QtyBase)
	}
	item.Qty = qty
	item.QtyBase = qtyBase
	item.LineTotal = qty.Mul(item.PriceUnit)
	item.Discount = decimal.Zero
}

// convert scales v by num/den, falling back to v when den is zero.
func convert(v, num, den decimal.Decimal) decimal.Decimal {
	if den.IsZero() {
		return v
	}
	return v.Mul(num).Div(den)
}

func auditEdits(edits []ItemEdit) []map[string]any {
	out := make([]map[string]any, 0, len(edits))
	for _, e := range edits {
		entry := map[string]any{"id": e.ID}
		if e.NewQty != nil {
			entry["new_qty"] = e.NewQty.String()
		}
		if e.NewQtyBase != nil {
			entry["new_qty_base"] = e.NewQtyBase.String()
		}
		out = append(out, entry)
	}
	return out
}
