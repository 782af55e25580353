package inventory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/odyssey-erp/odyssey-pos/internal/shared"
)

// MovementWriter appends journal rows. Implementations expose no update or delete.
type MovementWriter interface {
	InsertMovement(ctx context.Context, m Movement) (int64, error)
}

// MovementReader lists journal rows for reporting and reconciliation.
type MovementReader interface {
	ListMovements(ctx context.Context, filter MovementFilter) ([]Movement, error)
}

// Journal is the append-only stock movement ledger.
type Journal struct {
	now func() time.Time
}

// NewJournal constructs a Journal stamping entries with the wall clock.
func NewJournal() *Journal {
	return &Journal{now: func() time.Time { return time.Now().UTC() }}
}

// Append validates and writes one movement, returning it with id and timestamp set.
func (j *Journal) Append(ctx context.Context, w MovementWriter, m Movement) (Movement, error) {
	if w == nil {
		return Movement{}, errors.New("inventory: journal writer not configured")
	}
	if err := validateMovement(m); err != nil {
		return Movement{}, err
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = j.now()
	}
	id, err := w.InsertMovement(ctx, m)
	if err != nil {
		return Movement{}, fmt.Errorf("inventory: append movement: %w", err)
	}
	m.ID = id
	return m, nil
}

// History reads movements matching filter, newest last.
func (j *Journal) History(ctx context.Context, r MovementReader, filter MovementFilter) ([]Movement, error) {
	if filter.Type != "" && !filter.Type.Valid() {
		return nil, shared.NewValidationError("type", "unknown movement type")
	}
	if !filter.From.IsZero() && !filter.To.IsZero() && filter.To.Before(filter.From) {
		return nil, shared.NewValidationError("to", "must not be before from")
	}
	if filter.Limit <= 0 || filter.Limit > 1000 {
		filter.Limit = 200
	}
	return r.ListMovements(ctx, filter)
}

func validateMovement(m Movement) error {
	verr := &shared.ValidationError{}
	if m.WarehouseID <= 0 {
		verr.Add("warehouseId", "is required")
	}
	if m.ProductID <= 0 {
		verr.Add("productId", "is required")
	}
	if !m.Type.Valid() {
		verr.Add("type", "unknown movement type")
	}
	switch {
	case m.Delta.IsZero():
		verr.Add("delta", "must be non zero")
	case m.Type == MovementTypeSale && m.Delta.IsPositive():
		verr.Add("delta", "sale movements must be negative")
	case m.Type == MovementTypePurchase && m.Delta.IsNegative():
		verr.Add("delta", "purchase movements must be positive")
	}
	if m.Type == MovementTypeSale && m.SaleID <= 0 {
		verr.Add("saleId", "is required for sale movements")
	}
	return verr.OrNil()
}
