package sales

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/odyssey-pos/internal/inventory"
	"github.com/odyssey-erp/odyssey-pos/internal/platform/db"
	"github.com/odyssey-erp/odyssey-pos/internal/shared"
)

const clientUUIDConstraint = "sales_client_uuid_key"

const saleColumns = `id, client_uuid::text, folio, status, customer_id, warehouse_id, seller_id,
subtotal, tax_total, grand_total, notes, created_at, confirmed_at, cancelled_at, last_error, retry_count`

const itemColumns = `id, sale_id, product_id, unit_code, qty, qty_base, price_unit, discount, line_total, tax_rate, tax_amount`

// Queries implements Tx on top of a pool or transaction.
type Queries struct {
	*inventory.Queries
	db    db.DBTX
	audit *shared.AuditLogger
}

// NewQueries binds sale statements to the given executor.
func NewQueries(d db.DBTX) *Queries {
	return &Queries{Queries: inventory.NewQueries(d), db: d, audit: shared.NewAuditLogger(d)}
}

// Repository persists sales in PostgreSQL.
type Repository struct {
	*Queries
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{Queries: NewQueries(pool), pool: pool}
}

// WithTx executes the callback inside a read-committed transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, Tx) error) error {
	if r == nil || r.pool == nil {
		return errors.New("sales repository not initialised")
	}
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, NewQueries(tx))
	})
}

// Ping checks the database is reachable.
func (r *Repository) Ping(ctx context.Context) error {
	if r == nil || r.pool == nil {
		return errors.New("sales repository not initialised")
	}
	return r.pool.Ping(ctx)
}

// GetSale loads a sale with items without locking it.
func (q *Queries) GetSale(ctx context.Context, id int64) (Sale, error) {
	return q.loadSale(ctx, `SELECT `+saleColumns+` FROM sales WHERE id = $1`, id)
}

// GetSaleForUpdate loads and locks a sale with its items.
func (q *Queries) GetSaleForUpdate(ctx context.Context, id int64) (Sale, error) {
	return q.loadSale(ctx, `SELECT `+saleColumns+` FROM sales WHERE id = $1 FOR UPDATE`, id)
}

// FindSaleByClientUUID loads the sale recorded for an idempotency key.
func (q *Queries) FindSaleByClientUUID(ctx context.Context, clientUUID string) (Sale, error) {
	return q.loadSale(ctx, `SELECT `+saleColumns+` FROM sales WHERE client_uuid = $1::uuid`, clientUUID)
}

func (q *Queries) loadSale(ctx context.Context, query string, arg any) (Sale, error) {
	sale, err := scanSale(q.db.QueryRow(ctx, query, arg))
	if errors.Is(err, pgx.ErrNoRows) {
		return Sale{}, fmt.Errorf("sale: %w", shared.ErrNotFound)
	}
	if err != nil {
		return Sale{}, err
	}
	items, err := q.listItems(ctx, []int64{sale.ID})
	if err != nil {
		return Sale{}, err
	}
	sale.Items = items[sale.ID]
	if sale.Items == nil {
		sale.Items = []Item{}
	}
	return sale, nil
}

// InsertSale stores a sale header and returns it with id set.
func (q *Queries) InsertSale(ctx context.Context, sale Sale) (Sale, error) {
	var clientUUID any
	if sale.ClientUUID != nil {
		clientUUID = *sale.ClientUUID
	}
	err := q.db.QueryRow(ctx, `INSERT INTO sales (client_uuid, folio, status, customer_id, warehouse_id, seller_id,
subtotal, tax_total, grand_total, notes, created_at, confirmed_at, cancelled_at, last_error, retry_count, updated_at)
VALUES ($1::uuid,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,NOW()) RETURNING id`,
		clientUUID, sale.Folio, string(sale.Status), sale.CustomerID, sale.WarehouseID, sale.SellerID,
		sale.Subtotal, sale.TaxTotal, sale.GrandTotal, sale.Notes, sale.CreatedAt, sale.ConfirmedAt,
		sale.CancelledAt, sale.LastError, sale.RetryCount).Scan(&sale.ID)
	if db.IsUniqueViolation(err, clientUUIDConstraint) {
		return Sale{}, ErrClientUUIDConflict
	}
	if err != nil {
		return Sale{}, err
	}
	return sale, nil
}

// UpdateSale writes mutable header fields.
func (q *Queries) UpdateSale(ctx context.Context, sale Sale) error {
	tag, err := q.db.Exec(ctx, `UPDATE sales SET folio=$2, status=$3, customer_id=$4, warehouse_id=$5, seller_id=$6,
subtotal=$7, tax_total=$8, grand_total=$9, notes=$10, confirmed_at=$11, cancelled_at=$12, last_error=$13,
retry_count=$14, updated_at=NOW() WHERE id=$1`,
		sale.ID, sale.Folio, string(sale.Status), sale.CustomerID, sale.WarehouseID, sale.SellerID,
		sale.Subtotal, sale.TaxTotal, sale.GrandTotal, sale.Notes, sale.ConfirmedAt, sale.CancelledAt,
		sale.LastError, sale.RetryCount)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("sale %d: %w", sale.ID, shared.ErrNotFound)
	}
	return nil
}

// ReplaceItems deletes the current items of a sale and inserts items in order.
func (q *Queries) ReplaceItems(ctx context.Context, saleID int64, items []Item) ([]Item, error) {
	if _, err := q.db.Exec(ctx, `DELETE FROM sale_items WHERE sale_id = $1`, saleID); err != nil {
		return nil, err
	}
	out := make([]Item, 0, len(items))
	for _, it := range items {
		it.SaleID = saleID
		err := q.db.QueryRow(ctx, `INSERT INTO sale_items (sale_id, product_id, unit_code, qty, qty_base, price_unit, discount, line_total, tax_rate, tax_amount)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10) RETURNING id`,
			it.SaleID, it.ProductID, it.UnitCode, it.Qty, it.QtyBase, it.PriceUnit, it.Discount, it.LineTotal, it.TaxRate, it.TaxAmount).Scan(&it.ID)
		if err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	return out, nil
}

// UpdateItem rewrites quantities and amounts of one item.
func (q *Queries) UpdateItem(ctx context.Context, it Item) error {
	tag, err := q.db.Exec(ctx, `UPDATE sale_items SET qty=$3, qty_base=$4, line_total=$5, tax_rate=$6, tax_amount=$7, discount=$8
WHERE id=$1 AND sale_id=$2`, it.ID, it.SaleID, it.Qty, it.QtyBase, it.LineTotal, it.TaxRate, it.TaxAmount, it.Discount)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("sale item %d: %w", it.ID, shared.ErrNotFound)
	}
	return nil
}

// ListSales returns one page of hydrated sales and the total match count.
func (q *Queries) ListSales(ctx context.Context, filter ListFilter) ([]Sale, int, error) {
	var conditions []string
	var args []any
	add := func(cond string, arg any) {
		args = append(args, arg)
		conditions = append(conditions, fmt.Sprintf(cond, len(args)))
	}
	if filter.Status != "" {
		add("status = $%d", string(filter.Status))
	}
	if filter.WarehouseID > 0 {
		add("warehouse_id = $%d", filter.WarehouseID)
	}
	if !filter.From.IsZero() {
		add("created_at >= $%d", filter.From)
	}
	if !filter.To.IsZero() {
		add("created_at <= $%d", filter.To)
	}
	where := ""
	if len(conditions) > 0 {
		where = " WHERE " + strings.Join(conditions, " AND ")
	}

	var total int
	if err := q.db.QueryRow(ctx, `SELECT COUNT(*) FROM sales`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	perPage := filter.PerPage
	if perPage <= 0 {
		perPage = 50
	}
	page := filter.Page
	if page <= 0 {
		page = 1
	}
	args = append(args, perPage, (page-1)*perPage)
	query := `SELECT ` + saleColumns + ` FROM sales` + where +
		fmt.Sprintf(" ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d", len(args)-1, len(args))

	rows, err := q.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	sales := []Sale{}
	ids := []int64{}
	for rows.Next() {
		sale, err := scanSale(rows)
		if err != nil {
			return nil, 0, err
		}
		sales = append(sales, sale)
		ids = append(ids, sale.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	items, err := q.listItems(ctx, ids)
	if err != nil {
		return nil, 0, err
	}
	for idx := range sales {
		sales[idx].Items = items[sales[idx].ID]
		if sales[idx].Items == nil {
			sales[idx].Items = []Item{}
		}
	}
	return sales, total, nil
}

func (q *Queries) listItems(ctx context.Context, saleIDs []int64) (map[int64][]Item, error) {
	out := make(map[int64][]Item, len(saleIDs))
	if len(saleIDs) == 0 {
		return out, nil
	}
	rows, err := q.db.Query(ctx, `SELECT `+itemColumns+` FROM sale_items WHERE sale_id = ANY($1) ORDER BY sale_id, id`, saleIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var it Item
		if err := rows.Scan(&it.ID, &it.SaleID, &it.ProductID, &it.UnitCode, &it.Qty, &it.QtyBase,
			&it.PriceUnit, &it.Discount, &it.LineTotal, &it.TaxRate, &it.TaxAmount); err != nil {
			return nil, err
		}
		out[it.SaleID] = append(out[it.SaleID], it)
	}
	return out, rows.Err()
}

// LookupProducts returns tax data for the products that exist.
func (q *Queries) LookupProducts(ctx context.Context, ids []int64) (map[int64]Product, error) {
	out := make(map[int64]Product, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	rows, err := q.db.Query(ctx, `SELECT id, tax_rate FROM products WHERE id = ANY($1) AND is_active`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var p Product
		if err := rows.Scan(&p.ID, &p.TaxRate); err != nil {
			return nil, err
		}
		out[p.ID] = p
	}
	return out, rows.Err()
}

// CheckParties verifies that customer, warehouse and seller exist.
func (q *Queries) CheckParties(ctx context.Context, p Parties) error {
	var customer, warehouse, seller bool
	err := q.db.QueryRow(ctx, `SELECT
EXISTS(SELECT 1 FROM customers WHERE id = $1),
EXISTS(SELECT 1 FROM warehouses WHERE id = $2),
EXISTS(SELECT 1 FROM users WHERE id = $3)`, p.CustomerID, p.WarehouseID, p.SellerID).Scan(&customer, &warehouse, &seller)
	if err != nil {
		return err
	}
	switch {
	case !customer:
		return &ReferenceError{Entity: "customer", ID: p.CustomerID}
	case !warehouse:
		return &ReferenceError{Entity: "warehouse", ID: p.WarehouseID}
	case !seller:
		return &ReferenceError{Entity: "seller", ID: p.SellerID}
	}
	return nil
}

// NextFolioSeq increments the per-day folio counter in a single statement.
func (q *Queries) NextFolioSeq(ctx context.Context, day time.Time) (int64, error) {
	var seq int64
	err := q.db.QueryRow(ctx, `INSERT INTO folio_counters (day, last_value) VALUES ($1::date, 1)
ON CONFLICT (day) DO UPDATE SET last_value = folio_counters.last_value + 1
RETURNING last_value`, day).Scan(&seq)
	return seq, err
}

// FolioExists reports whether a sale already carries folio.
func (q *Queries) FolioExists(ctx context.Context, folio string) (bool, error) {
	var exists bool
	err := q.db.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM sales WHERE folio = $1)`, folio).Scan(&exists)
	return exists, err
}

// InsertAudit appends an audit record in the current transaction.
func (q *Queries) InsertAudit(ctx context.Context, log shared.AuditLog) error {
	return q.audit.Record(ctx, log)
}

func scanSale(row pgx.Row) (Sale, error) {
	var s Sale
	var status string
	err := row.Scan(&s.ID, &s.ClientUUID, &s.Folio, &status, &s.CustomerID, &s.WarehouseID, &s.SellerID,
		&s.Subtotal, &s.TaxTotal, &s.GrandTotal, &s.Notes, &s.CreatedAt, &s.ConfirmedAt, &s.CancelledAt,
		&s.LastError, &s.RetryCount)
	s.Status = Status(status)
	return s, err
}
