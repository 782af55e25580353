// Package inventorytest provides an in-memory stock store for tests.
package inventorytest

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-pos/internal/inventory"
)

// Store keeps stock records and the movement journal in memory. WithTx runs
// closures serially and rolls back every change when the closure fails.
type Store struct {
	sync.Mutex

	records   map[inventory.Key]inventory.Record
	movements []inventory.Movement
	nextID    int64

	// FailInsertMovement, when set, is returned by InsertMovement.
	FailInsertMovement error
}

// NewStore returns an empty Store.
func NewStore() *Store {
	return &Store{records: make(map[inventory.Key]inventory.Record)}
}

// Seed sets the balance of a record without journaling it.
func (s *Store) Seed(warehouseID, productID int64, qty decimal.Decimal) {
	s.Lock()
	defer s.Unlock()
	s.records[inventory.Key{WarehouseID: warehouseID, ProductID: productID}] = inventory.Record{
		WarehouseID: warehouseID,
		ProductID:   productID,
		Qty:         qty,
		UpdatedAt:   time.Now().UTC(),
	}
}

// Qty returns the balance of a record, zero when absent.
func (s *Store) Qty(warehouseID, productID int64) decimal.Decimal {
	s.Lock()
	defer s.Unlock()
	return s.records[inventory.Key{WarehouseID: warehouseID, ProductID: productID}].Qty
}

// FindRecord reads a balance without creating it.
func (s *Store) FindRecord(_ context.Context, warehouseID, productID int64) (inventory.Record, bool, error) {
	s.Lock()
	defer s.Unlock()
	rec, ok := s.records[inventory.Key{WarehouseID: warehouseID, ProductID: productID}]
	if !ok {
		return inventory.Record{WarehouseID: warehouseID, ProductID: productID}, false, nil
	}
	return rec, true, nil
}

// Movements returns a copy of the journal.
func (s *Store) Movements() []inventory.Movement {
	s.Lock()
	defer s.Unlock()
	out := make([]inventory.Movement, len(s.movements))
	copy(out, s.movements)
	return out
}

// WithTx implements inventory.RepositoryPort.
func (s *Store) WithTx(ctx context.Context, fn func(context.Context, inventory.Tx) error) error {
	s.Lock()
	defer s.Unlock()
	restore := s.SnapshotLocked()
	if err := fn(ctx, s.Unlocked()); err != nil {
		restore()
		return err
	}
	return nil
}

// SnapshotLocked captures the current state and returns a function that
// restores it. The caller must hold the Store lock.
func (s *Store) SnapshotLocked() func() {
	records := make(map[inventory.Key]inventory.Record, len(s.records))
	for k, v := range s.records {
		records[k] = v
	}
	movements := make([]inventory.Movement, len(s.movements))
	copy(movements, s.movements)
	nextID := s.nextID
	return func() {
		s.records = records
		s.movements = movements
		s.nextID = nextID
	}
}

// Unlocked returns an inventory.Tx operating on the store. The caller must
// hold the Store lock for as long as the Tx is used.
func (s *Store) Unlocked() inventory.Tx {
	return unlockedTx{s: s}
}

// ListRecords implements inventory.RepositoryPort.
func (s *Store) ListRecords(_ context.Context, warehouseID int64) ([]inventory.Record, error) {
	s.Lock()
	defer s.Unlock()
	out := make([]inventory.Record, 0, len(s.records))
	for _, rec := range s.records {
		if warehouseID == 0 || rec.WarehouseID == warehouseID {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].WarehouseID != out[j].WarehouseID {
			return out[i].WarehouseID < out[j].WarehouseID
		}
		return out[i].ProductID < out[j].ProductID
	})
	return out, nil
}

// SumMovements implements inventory.RepositoryPort.
func (s *Store) SumMovements(_ context.Context, warehouseID int64) (map[inventory.Key]decimal.Decimal, error) {
	s.Lock()
	defer s.Unlock()
	out := make(map[inventory.Key]decimal.Decimal)
	for _, m := range s.movements {
		if warehouseID != 0 && m.WarehouseID != warehouseID {
			continue
		}
		k := inventory.Key{WarehouseID: m.WarehouseID, ProductID: m.ProductID}
		out[k] = out[k].Add(m.Delta)
	}
	return out, nil
}

// ListMovements implements inventory.MovementReader.
func (s *Store) ListMovements(_ context.Context, filter inventory.MovementFilter) ([]inventory.Movement, error) {
	s.Lock()
	defer s.Unlock()
	out := make([]inventory.Movement, 0)
	for _, m := range s.movements {
		switch {
		case filter.WarehouseID != 0 && m.WarehouseID != filter.WarehouseID,
			filter.ProductID != 0 && m.ProductID != filter.ProductID,
			filter.SaleID != 0 && m.SaleID != filter.SaleID,
			filter.Type != "" && m.Type != filter.Type,
			!filter.From.IsZero() && m.CreatedAt.Before(filter.From),
			!filter.To.IsZero() && m.CreatedAt.After(filter.To):
			continue
		}
		out = append(out, m)
		if filter.Limit > 0 && len(out) == filter.Limit {
			break
		}
	}
	return out, nil
}

type unlockedTx struct {
	s *Store
}

func (t unlockedTx) GetOrCreateRecord(_ context.Context, warehouseID, productID int64) (inventory.Record, error) {
	k := inventory.Key{WarehouseID: warehouseID, ProductID: productID}
	rec, ok := t.s.records[k]
	if !ok {
		rec = inventory.Record{WarehouseID: warehouseID, ProductID: productID, UpdatedAt: time.Now().UTC()}
		t.s.records[k] = rec
	}
	return rec, nil
}

func (t unlockedTx) AddQuantity(_ context.Context, warehouseID, productID int64, delta decimal.Decimal) (inventory.Record, error) {
	k := inventory.Key{WarehouseID: warehouseID, ProductID: productID}
	rec, ok := t.s.records[k]
	if !ok {
		return inventory.Record{}, errors.New("inventorytest: record not locked")
	}
	rec.Qty = rec.Qty.Add(delta)
	rec.UpdatedAt = time.Now().UTC()
	t.s.records[k] = rec
	return rec, nil
}

func (t unlockedTx) InsertMovement(_ context.Context, m inventory.Movement) (int64, error) {
	if t.s.FailInsertMovement != nil {
		return 0, t.s.FailInsertMovement
	}
	if m.Type == inventory.MovementTypeSale && m.SaleItemID != 0 {
		for _, existing := range t.s.movements {
			if existing.Type == inventory.MovementTypeSale && existing.SaleItemID == m.SaleItemID {
				return 0, errors.New("inventorytest: duplicate sale movement for item")
			}
		}
	}
	t.s.nextID++
	m.ID = t.s.nextID
	t.s.movements = append(t.s.movements, m)
	return m.ID, nil
}
