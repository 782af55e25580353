// Package salestest provides an in-memory sales store for tests.
package salestest

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-pos/internal/inventory"
	"github.com/odyssey-erp/odyssey-pos/internal/inventory/inventorytest"
	"github.com/odyssey-erp/odyssey-pos/internal/sales"
	"github.com/odyssey-erp/odyssey-pos/internal/shared"
)

// Store implements sales.Store and sales.Tx in memory. Transactions are
// serialized through the stock store lock and roll back on error.
type Store struct {
	Stock *inventorytest.Store

	state state

	// PingErr is returned by Ping.
	PingErr error
	// FailInsertSale, when it returns an error for a sale, aborts InsertSale.
	FailInsertSale func(sales.Sale) error
}

type state struct {
	sales      map[int64]sales.Sale
	byUUID     map[string]int64
	folioSeq   map[string]int64
	audits     []shared.AuditLog
	products   map[int64]sales.Product
	customers  map[int64]bool
	warehouses map[int64]bool
	sellers    map[int64]bool
	nextSale   int64
	nextItem   int64
}

// NewStore returns an empty Store backed by a fresh stock store.
func NewStore() *Store {
	return &Store{
		Stock: inventorytest.NewStore(),
		state: state{
			sales:      make(map[int64]sales.Sale),
			byUUID:     make(map[string]int64),
			folioSeq:   make(map[string]int64),
			products:   make(map[int64]sales.Product),
			customers:  make(map[int64]bool),
			warehouses: make(map[int64]bool),
			sellers:    make(map[int64]bool),
		},
	}
}

// AddProduct registers a product with its tax rate.
func (s *Store) AddProduct(id int64, taxRate decimal.Decimal) {
	s.Stock.Lock()
	defer s.Stock.Unlock()
	s.state.products[id] = sales.Product{ID: id, TaxRate: taxRate}
}

// AddParties registers a customer, a warehouse and a seller.
func (s *Store) AddParties(customerID, warehouseID, sellerID int64) {
	s.Stock.Lock()
	defer s.Stock.Unlock()
	s.state.customers[customerID] = true
	s.state.warehouses[warehouseID] = true
	s.state.sellers[sellerID] = true
}

// Audits returns a copy of the audit records.
func (s *Store) Audits() []shared.AuditLog {
	s.Stock.Lock()
	defer s.Stock.Unlock()
	out := make([]shared.AuditLog, len(s.state.audits))
	copy(out, s.state.audits)
	return out
}

// SaleCount returns the number of stored sales.
func (s *Store) SaleCount() int {
	s.Stock.Lock()
	defer s.Stock.Unlock()
	return len(s.state.sales)
}

// WithTx implements sales.Store.
func (s *Store) WithTx(ctx context.Context, fn func(context.Context, sales.Tx) error) error {
	s.Stock.Lock()
	defer s.Stock.Unlock()
	restoreStock := s.Stock.SnapshotLocked()
	saved := s.state.clone()
	if err := fn(ctx, &memTx{Tx: s.Stock.Unlocked(), s: s}); err != nil {
		restoreStock()
		s.state = saved
		return err
	}
	return nil
}

// Ping implements sales.Store.
func (s *Store) Ping(context.Context) error {
	return s.PingErr
}

// GetSale implements sales.Store.
func (s *Store) GetSale(_ context.Context, id int64) (sales.Sale, error) {
	s.Stock.Lock()
	defer s.Stock.Unlock()
	return s.state.get(id)
}

// FindSaleByClientUUID implements sales.Store.
func (s *Store) FindSaleByClientUUID(_ context.Context, clientUUID string) (sales.Sale, error) {
	s.Stock.Lock()
	defer s.Stock.Unlock()
	return s.state.byClientUUID(clientUUID)
}

// ListSales implements sales.Store.
func (s *Store) ListSales(_ context.Context, filter sales.ListFilter) ([]sales.Sale, int, error) {
	s.Stock.Lock()
	defer s.Stock.Unlock()
	matched := []sales.Sale{}
	for _, sale := range s.state.sales {
		switch {
		case filter.Status != "" && sale.Status != filter.Status,
			filter.WarehouseID != 0 && sale.WarehouseID != filter.WarehouseID,
			!filter.From.IsZero() && sale.CreatedAt.Before(filter.From),
			!filter.To.IsZero() && sale.CreatedAt.After(filter.To):
			continue
		}
		matched = append(matched, cloneSale(sale))
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].ID < matched[j].ID })
	total := len(matched)
	if filter.PerPage > 0 {
		page := filter.Page
		if page <= 0 {
			page = 1
		}
		start := (page - 1) * filter.PerPage
		if start > total {
			start = total
		}
		end := start + filter.PerPage
		if end > total {
			end = total
		}
		matched = matched[start:end]
	}
	return matched, total, nil
}

// FindRecord reads a stock balance without creating it.
func (s *Store) FindRecord(ctx context.Context, warehouseID, productID int64) (inventory.Record, bool, error) {
	return s.Stock.FindRecord(ctx, warehouseID, productID)
}

type memTx struct {
	inventory.Tx
	s *Store
}

func (t *memTx) FindSaleByClientUUID(_ context.Context, clientUUID string) (sales.Sale, error) {
	return t.s.state.byClientUUID(clientUUID)
}

func (t *memTx) GetSaleForUpdate(_ context.Context, id int64) (sales.Sale, error) {
	return t.s.state.get(id)
}

func (t *memTx) InsertSale(_ context.Context, sale sales.Sale) (sales.Sale, error) {
	if t.s.FailInsertSale != nil {
		if err := t.s.FailInsertSale(sale); err != nil {
			return sales.Sale{}, err
		}
	}
	st := &t.s.state
	if sale.ClientUUID != nil {
		if _, ok := st.byUUID[*sale.ClientUUID]; ok {
			return sales.Sale{}, sales.ErrClientUUIDConflict
		}
	}
	if sale.Folio != nil {
		for _, other := range st.sales {
			if other.Folio != nil && *other.Folio == *sale.Folio {
				return sales.Sale{}, fmt.Errorf("salestest: folio %s taken", *sale.Folio)
			}
		}
	}
	st.nextSale++
	sale.ID = st.nextSale
	sale.Items = nil
	st.sales[sale.ID] = sale
	if sale.ClientUUID != nil {
		st.byUUID[*sale.ClientUUID] = sale.ID
	}
	return sale, nil
}

func (t *memTx) UpdateSale(_ context.Context, sale sales.Sale) error {
	current, ok := t.s.state.sales[sale.ID]
	if !ok {
		return fmt.Errorf("sale %d: %w", sale.ID, shared.ErrNotFound)
	}
	sale.Items = current.Items
	t.s.state.sales[sale.ID] = sale
	return nil
}

func (t *memTx) ReplaceItems(_ context.Context, saleID int64, items []sales.Item) ([]sales.Item, error) {
	st := &t.s.state
	sale, ok := st.sales[saleID]
	if !ok {
		return nil, fmt.Errorf("sale %d: %w", saleID, shared.ErrNotFound)
	}
	out := make([]sales.Item, 0, len(items))
	for _, it := range items {
		st.nextItem++
		it.ID = st.nextItem
		it.SaleID = saleID
		out = append(out, it)
	}
	sale.Items = out
	st.sales[saleID] = sale
	return append([]sales.Item(nil), out...), nil
}

func (t *memTx) UpdateItem(_ context.Context, item sales.Item) error {
	sale, ok := t.s.state.sales[item.SaleID]
	if !ok {
		return fmt.Errorf("sale %d: %w", item.SaleID, shared.ErrNotFound)
	}
	items := append([]sales.Item(nil), sale.Items...)
	for idx := range items {
		if items[idx].ID == item.ID {
			items[idx] = item
			sale.Items = items
			t.s.state.sales[sale.ID] = sale
			return nil
		}
	}
	return fmt.Errorf("sale item %d: %w", item.ID, shared.ErrNotFound)
}

func (t *memTx) LookupProducts(_ context.Context, ids []int64) (map[int64]sales.Product, error) {
	out := make(map[int64]sales.Product, len(ids))
	for _, id := range ids {
		if p, ok := t.s.state.products[id]; ok {
			out[id] = p
		}
	}
	return out, nil
}

func (t *memTx) CheckParties(_ context.Context, p sales.Parties) error {
	st := t.s.state
	switch {
	case !st.customers[p.CustomerID]:
		return &sales.ReferenceError{Entity: "customer", ID: p.CustomerID}
	case !st.warehouses[p.WarehouseID]:
		return &sales.ReferenceError{Entity: "warehouse", ID: p.WarehouseID}
	case !st.sellers[p.SellerID]:
		return &sales.ReferenceError{Entity: "seller", ID: p.SellerID}
	}
	return nil
}

func (t *memTx) InsertAudit(_ context.Context, log shared.AuditLog) error {
	t.s.state.audits = append(t.s.state.audits, log)
	return nil
}

func (t *memTx) NextFolioSeq(_ context.Context, day time.Time) (int64, error) {
	k := day.Format("2006-01-02")
	t.s.state.folioSeq[k]++
	return t.s.state.folioSeq[k], nil
}

func (t *memTx) FolioExists(_ context.Context, folio string) (bool, error) {
	for _, sale := range t.s.state.sales {
		if sale.Folio != nil && *sale.Folio == folio {
			return true, nil
		}
	}
	return false, nil
}

func (st state) get(id int64) (sales.Sale, error) {
	sale, ok := st.sales[id]
	if !ok {
		return sales.Sale{}, fmt.Errorf("sale: %w", shared.ErrNotFound)
	}
	return cloneSale(sale), nil
}

func (st state) byClientUUID(clientUUID string) (sales.Sale, error) {
	id, ok := st.byUUID[strings.ToLower(clientUUID)]
	if !ok {
		return sales.Sale{}, fmt.Errorf("sale: %w", shared.ErrNotFound)
	}
	return st.get(id)
}

func (st state) clone() state {
	out := state{
		sales:      make(map[int64]sales.Sale, len(st.sales)),
		byUUID:     make(map[string]int64, len(st.byUUID)),
		folioSeq:   make(map[string]int64, len(st.folioSeq)),
		audits:     append([]shared.AuditLog(nil), st.audits...),
		products:   st.products,
		customers:  st.customers,
		warehouses: st.warehouses,
		sellers:    st.sellers,
		nextSale:   st.nextSale,
		nextItem:   st.nextItem,
	}
	for k, v := range st.sales {
		out.sales[k] = cloneSale(v)
	}
	for k, v := range st.byUUID {
		out.byUUID[k] = v
	}
	for k, v := range st.folioSeq {
		out.folioSeq[k] = v
	}
	return out
}

func cloneSale(s sales.Sale) sales.Sale {
	if s.Items != nil {
		s.Items = append([]sales.Item(nil), s.Items...)
	}
	return s
}
