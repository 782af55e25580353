package inventory

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-pos/internal/platform/db"
)

// Queries runs stock statements against a pool or a transaction.
type Queries struct {
	db db.DBTX
}

// NewQueries binds stock statements to the given executor.
func NewQueries(d db.DBTX) *Queries {
	return &Queries{db: d}
}

// Repository persists stock records and movements in PostgreSQL.
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
		return errors.New("inventory repository not initialised")
	}
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, NewQueries(tx))
	})
}

// GetOrCreateRecord inserts a zero balance when absent and returns the row locked for update.
func (q *Queries) GetOrCreateRecord(ctx context.Context, warehouseID, productID int64) (Record, error) {
	if _, err := q.db.Exec(ctx, `INSERT INTO stock_records (warehouse_id, product_id, qty, updated_at)
VALUES ($1, $2, 0, NOW())
ON CONFLICT (warehouse_id, product_id) DO NOTHING`, warehouseID, productID); err != nil {
		return Record{}, err
	}
	var rec Record
	err := q.db.QueryRow(ctx, `SELECT warehouse_id, product_id, qty, updated_at FROM stock_records WHERE warehouse_id=$1 AND product_id=$2 FOR UPDATE`, warehouseID, productID).
		Scan(&rec.WarehouseID, &rec.ProductID, &rec.Qty, &rec.UpdatedAt)
	return rec, err
}

// AddQuantity applies delta in a single statement.
func (q *Queries) AddQuantity(ctx context.Context, warehouseID, productID int64, delta decimal.Decimal) (Record, error) {
	var rec Record
	err := q.db.QueryRow(ctx, `UPDATE stock_records SET qty = qty + $3, updated_at = NOW()
WHERE warehouse_id=$1 AND product_id=$2
RETURNING warehouse_id, product_id, qty, updated_at`, warehouseID, productID, delta).
		Scan(&rec.WarehouseID, &rec.ProductID, &rec.Qty, &rec.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Record{}, fmt.Errorf("stock record %d/%d missing", warehouseID, productID)
	}
	return rec, err
}

// InsertMovement appends a journal row.
func (q *Queries) InsertMovement(ctx context.Context, m Movement) (int64, error) {
	var id int64
	err := q.db.QueryRow(ctx, `INSERT INTO stock_movements (warehouse_id, product_id, delta, movement_type, sale_id, sale_item_id, actor_id, note, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9) RETURNING id`,
		m.WarehouseID, m.ProductID, m.Delta, string(m.Type), nullInt(m.SaleID), nullInt(m.SaleItemID), nullInt(m.ActorID), m.Note, m.CreatedAt).Scan(&id)
	return id, err
}

// FindRecord reads a balance without creating or locking it.
func (q *Queries) FindRecord(ctx context.Context, warehouseID, productID int64) (Record, bool, error) {
	var rec Record
	err := q.db.QueryRow(ctx, `SELECT warehouse_id, product_id, qty, updated_at FROM stock_records WHERE warehouse_id=$1 AND product_id=$2`, warehouseID, productID).
		Scan(&rec.WarehouseID, &rec.ProductID, &rec.Qty, &rec.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Record{WarehouseID: warehouseID, ProductID: productID, Qty: decimal.Zero}, false, nil
	}
	if err != nil {
		return Record{}, false, err
	}
	return rec, true, nil
}

// ListRecords returns balances of a warehouse, or of all warehouses when warehouseID is zero.
func (q *Queries) ListRecords(ctx context.Context, warehouseID int64) ([]Record, error) {
	rows, err := q.db.Query(ctx, `SELECT warehouse_id, product_id, qty, updated_at FROM stock_records
WHERE ($1::bigint = 0 OR warehouse_id = $1)
ORDER BY warehouse_id, product_id`, warehouseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	records := []Record{}
	for rows.Next() {
		var rec Record
		if err := rows.Scan(&rec.WarehouseID, &rec.ProductID, &rec.Qty, &rec.UpdatedAt); err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// ListMovements reads journal rows matching filter in insertion order.
func (q *Queries) ListMovements(ctx context.Context, filter MovementFilter) ([]Movement, error) {
	var conditions []string
	var args []any
	add := func(cond string, arg any) {
		args = append(args, arg)
		conditions = append(conditions, fmt.Sprintf(cond, len(args)))
	}
	if filter.WarehouseID > 0 {
		add("warehouse_id = $%d", filter.WarehouseID)
	}
	if filter.ProductID > 0 {
		add("product_id = $%d", filter.ProductID)
	}
	if filter.SaleID > 0 {
		add("sale_id = $%d", filter.SaleID)
	}
	if filter.Type != "" {
		add("movement_type = $%d", string(filter.Type))
	}
	if !filter.From.IsZero() {
		add("created_at >= $%d", filter.From)
	}
	if !filter.To.IsZero() {
		add("created_at <= $%d", filter.To)
	}
	query := `SELECT id, warehouse_id, product_id, delta, movement_type, COALESCE(sale_id, 0), COALESCE(sale_item_id, 0), COALESCE(actor_id, 0), note, created_at FROM stock_movements`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	args = append(args, filter.Limit)
	query += fmt.Sprintf(" ORDER BY created_at ASC, id ASC LIMIT $%d", len(args))

	rows, err := q.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	movements := []Movement{}
	for rows.Next() {
		var m Movement
		var typ string
		if err := rows.Scan(&m.ID, &m.WarehouseID, &m.ProductID, &m.Delta, &typ, &m.SaleID, &m.SaleItemID, &m.ActorID, &m.Note, &m.CreatedAt); err != nil {
			return nil, err
		}
		m.Type = MovementType(typ)
		movements = append(movements, m)
	}
	return movements, rows.Err()
}

// SumMovements totals journal deltas per record key.
func (q *Queries) SumMovements(ctx context.Context, warehouseID int64) (map[Key]decimal.Decimal, error) {
	rows, err := q.db.Query(ctx, `SELECT warehouse_id, product_id, SUM(delta) FROM stock_movements
WHERE ($1::bigint = 0 OR warehouse_id = $1)
GROUP BY warehouse_id, product_id`, warehouseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	sums := make(map[Key]decimal.Decimal)
	for rows.Next() {
		var k Key
		var sum decimal.Decimal
		if err := rows.Scan(&k.WarehouseID, &k.ProductID, &sum); err != nil {
			return nil, err
		}
		sums[k] = sum
	}
	return sums, rows.Err()
}

func nullInt(value int64) any {
	if value == 0 {
		return nil
	}
	return value
}
