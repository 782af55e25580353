package sales

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/odyssey-erp/odyssey-pos/internal/folio"
	"github.com/odyssey-erp/odyssey-pos/internal/inventory"
	"github.com/odyssey-erp/odyssey-pos/internal/shared"
)

var tracer = otel.Tracer("github.com/odyssey-erp/odyssey-pos/internal/sales")

// Tx is everything a sale workflow may touch inside one transaction.
type Tx interface {
	inventory.Tx
	folio.Counter

	FindSaleByClientUUID(ctx context.Context, clientUUID string) (Sale, error)
	GetSaleForUpdate(ctx context.Context, id int64) (Sale, error)
	InsertSale(ctx context.Context, sale Sale) (Sale, error)
	UpdateSale(ctx context.Context, sale Sale) error
	ReplaceItems(ctx context.Context, saleID int64, items []Item) ([]Item, error)
	UpdateItem(ctx context.Context, item Item) error
	LookupProducts(ctx context.Context, ids []int64) (map[int64]Product, error)
	CheckParties(ctx context.Context, parties Parties) error
	InsertAudit(ctx context.Context, log shared.AuditLog) error
}

// Store opens transactions and serves reads outside of them.
type Store interface {
	WithTx(ctx context.Context, fn func(context.Context, Tx) error) error
	Ping(ctx context.Context) error
	GetSale(ctx context.Context, id int64) (Sale, error)
	FindSaleByClientUUID(ctx context.Context, clientUUID string) (Sale, error)
	ListSales(ctx context.Context, filter ListFilter) ([]Sale, int, error)
}

// IntakeConfig groups intake settings.
type IntakeConfig struct {
	DefaultWarehouseID int64
}

// Intake confirms sales against stock and assigns folios.
type Intake struct {
	store  Store
	ledger *inventory.Ledger
	folios *folio.Generator
	cfg    IntakeConfig
	logger *slog.Logger
	now    func() time.Time
}

// NewIntake builds an Intake.
func NewIntake(store Store, ledger *inventory.Ledger, folios *folio.Generator, cfg IntakeConfig, logger *slog.Logger) *Intake {
	if logger == nil {
		logger = slog.Default()
	}
	if ledger == nil {
		ledger = inventory.NewLedger(nil, logger, inventory.LedgerConfig{})
	}
	return &Intake{
		store:  store,
		ledger: ledger,
		folios: folios,
		cfg:    cfg,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Ledger exposes the stock ledger used for confirmations.
func (i *Intake) Ledger() *inventory.Ledger {
	return i.ledger
}

// Folios exposes the folio generator used for confirmations.
func (i *Intake) Folios() *folio.Generator {
	return i.folios
}

// CreateAndConfirm records a new sale as CONFIRMED and decrements stock in one
// transaction. A known idempotency key returns the stored sale flagged Duplicate.
func (i *Intake) CreateAndConfirm(ctx context.Context, req ConfirmRequest) (Sale, error) {
	return i.upsertAndConfirm(ctx, 0, req)
}

// ConfirmDraft confirms an existing DRAFT sale, replacing its items.
func (i *Intake) ConfirmDraft(ctx context.Context, saleID int64, req ConfirmRequest) (Sale, error) {
	if saleID <= 0 {
		return Sale{}, shared.NewValidationError("id", "is required")
	}
	return i.upsertAndConfirm(ctx, saleID, req)
}

// SaveDraft stores a DRAFT sale without touching stock or folios.
func (i *Intake) SaveDraft(ctx context.Context, req ConfirmRequest) (Sale, error) {
	req, err := i.Prepare(req)
	if err != nil {
		return Sale{}, err
	}
	if dup, ok, err := i.lookupDuplicate(ctx, req.ClientUUID); err != nil || ok {
		return dup, err
	}
	var sale Sale
	err = i.store.WithTx(ctx, func(ctx context.Context, tx Tx) error {
		if err := tx.CheckParties(ctx, partiesOf(req)); err != nil {
			return err
		}
		products, err := i.products(ctx, tx, req.Items, true)
		if err != nil {
			return err
		}
		sale, err = i.persist(ctx, tx, req, StatusDraft, BuildItems(req.Items, products), nil)
		return err
	})
	if err != nil {
		return i.resolveRace(ctx, req.ClientUUID, err)
	}
	return sale, nil
}

// Get returns a sale with its items.
func (i *Intake) Get(ctx context.Context, id int64) (Sale, error) {
	return i.store.GetSale(ctx, id)
}

// List returns a page of sales and the total match count.
func (i *Intake) List(ctx context.Context, filter ListFilter) ([]Sale, int, error) {
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, 0, shared.NewValidationError("status", "unknown status")
	}
	return i.store.ListSales(ctx, filter.Normalize())
}

func (i *Intake) upsertAndConfirm(ctx context.Context, existingID int64, req ConfirmRequest) (Sale, error) {
	ctx, span := tracer.Start(ctx, "sales.confirm")
	defer span.End()

	req, err := i.Prepare(req)
	if err != nil {
		return Sale{}, err
	}
	span.SetAttributes(attribute.String("sale.client_uuid", req.ClientUUID), attribute.Int64("sale.id", existingID))
	if existingID == 0 {
		if dup, ok, err := i.lookupDuplicate(ctx, req.ClientUUID); err != nil || ok {
			return dup, err
		}
	}

	var sale Sale
	err = i.store.WithTx(ctx, func(ctx context.Context, tx Tx) error {
		var err error
		sale, err = i.ConfirmInTx(ctx, tx, existingID, req, inventory.SourceOnline)
		return err
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return i.resolveRace(ctx, req.ClientUUID, err)
	}
	i.logger.Info("sale confirmed",
		slog.Int64("sale_id", sale.ID),
		slog.String("folio", sale.FolioValue()),
		slog.String("grand_total", sale.GrandTotal.String()))
	return sale, nil
}

// Prepare validates a request and applies defaults. It is idempotent.
func (i *Intake) Prepare(req ConfirmRequest) (ConfirmRequest, error) {
	if req.WarehouseID == 0 {
		req.WarehouseID = i.cfg.DefaultWarehouseID
	}
	req.ClientUUID = strings.ToLower(strings.TrimSpace(req.ClientUUID))
	if err := shared.ValidateStruct(req); err != nil {
		return req, err
	}
	if req.WarehouseID <= 0 {
		return req, shared.NewValidationError("warehouseId", "is required")
	}
	if req.ClientUUID != "" {
		if _, err := uuid.Parse(req.ClientUUID); err != nil {
			return req, shared.NewValidationError("uuid", "must be a UUID")
		}
	}
	if err := ValidateItems(req.Items); err != nil {
		return req, err
	}
	if req.ActorID == 0 {
		req.ActorID = req.SellerID
	}
	return req, nil
}

// ConfirmInTx runs the confirmation workflow inside tx: reference checks,
// pricing, availability, folio, sale and item writes, stock decrement and audit.
// existingID selects a DRAFT to confirm; zero inserts a new sale. req must have
// passed Prepare.
func (i *Intake) ConfirmInTx(ctx context.Context, tx Tx, existingID int64, req ConfirmRequest, source string) (Sale, error) {
	var current Sale
	if existingID > 0 {
		var err error
		current, err = tx.GetSaleForUpdate(ctx, existingID)
		if err != nil {
			return Sale{}, err
		}
		if current.Status != StatusDraft {
			return Sale{}, fmt.Errorf("%w: sale %d is %s", shared.ErrInvalidState, existingID, current.Status)
		}
	}
	if err := tx.CheckParties(ctx, partiesOf(req)); err != nil {
		return Sale{}, err
	}
	products, err := i.products(ctx, tx, req.Items, true)
	if err != nil {
		return Sale{}, err
	}
	items := BuildItems(req.Items, products)
	i.logTotalsMismatch(req, Sum(items))

	demands := make([]inventory.Demand, 0, len(items))
	for _, it := range items {
		demands = append(demands, inventory.Demand{ProductID: it.ProductID, QtyBase: it.QtyBase})
	}
	if _, err := i.ledger.CheckAvailability(ctx, tx, req.WarehouseID, demands); err != nil {
		return Sale{}, err
	}
	if i.folios == nil {
		return Sale{}, errors.New("sales: folio generator not configured")
	}
	number, err := i.folios.Generate(ctx, tx)
	if err != nil {
		return Sale{}, err
	}

	var sale Sale
	if existingID > 0 {
		sale, err = i.update(ctx, tx, current, req, items, number)
	} else {
		sale, err = i.persist(ctx, tx, req, StatusConfirmed, items, &number)
	}
	if err != nil {
		return Sale{}, err
	}

	for idx, it := range sale.Items {
		demands[idx].SaleItemID = it.ID
	}
	if _, err := i.ledger.Decrement(ctx, tx, sale.WarehouseID, demands, inventory.Cause{
		SaleID:  sale.ID,
		ActorID: req.ActorID,
		Source:  source,
	}); err != nil {
		return Sale{}, err
	}

	if err := tx.InsertAudit(ctx, shared.AuditLog{
		ActorID:  req.ActorID,
		Action:   "sale:confirm",
		Entity:   "sale",
		EntityID: fmt.Sprintf("%d", sale.ID),
		Meta: map[string]any{
			"folio":       number,
			"source":      source,
			"grand_total": sale.GrandTotal.String(),
		},
	}); err != nil {
		return Sale{}, fmt.Errorf("sales: audit confirm: %w", err)
	}
	return sale, nil
}

// PersistForReview stores a sale that could not be confirmed as REVIEW_REQUIRED
// with its failure reason. No stock is touched.
func (i *Intake) PersistForReview(ctx context.Context, tx Tx, req ConfirmRequest, reason string) (Sale, error) {
	products, err := i.products(ctx, tx, req.Items, false)
	if err != nil {
		return Sale{}, err
	}
	sale, err := i.persist(ctx, tx, req, StatusReviewRequired, BuildItems(req.Items, products), nil, withReview(reason))
	if err != nil {
		return Sale{}, err
	}
	if err := tx.InsertAudit(ctx, shared.AuditLog{
		ActorID:  req.ActorID,
		Action:   "sale:flag_review",
		Entity:   "sale",
		EntityID: fmt.Sprintf("%d", sale.ID),
		Meta:     map[string]any{"reason": reason, "client_uuid": req.ClientUUID},
	}); err != nil {
		return Sale{}, fmt.Errorf("sales: audit review: %w", err)
	}
	return sale, nil
}

type persistOption func(*Sale)

func withReview(reason string) persistOption {
	return func(s *Sale) {
		s.LastError = stringPtr(reason)
		s.RetryCount = 1
	}
}

func (i *Intake) persist(ctx context.Context, tx Tx, req ConfirmRequest, status Status, items []Item, number *string, opts ...persistOption) (Sale, error) {
	totals := Sum(items)
	sale := Sale{
		ClientUUID:  stringPtr(req.ClientUUID),
		Folio:       number,
		Status:      status,
		CustomerID:  req.CustomerID,
		WarehouseID: req.WarehouseID,
		SellerID:    req.SellerID,
		Subtotal:    totals.Subtotal,
		TaxTotal:    totals.TaxTotal,
		GrandTotal:  totals.GrandTotal,
		Notes:       stringPtr(req.Notes),
		CreatedAt:   i.now(),
	}
	if req.CreatedAt != nil && !req.CreatedAt.IsZero() {
		sale.CreatedAt = req.CreatedAt.UTC()
	}
	if status == StatusConfirmed {
		sale.ConfirmedAt = timePtr(i.now())
	}
	for _, opt := range opts {
		opt(&sale)
	}
	stored, err := tx.InsertSale(ctx, sale)
	if err != nil {
		return Sale{}, fmt.Errorf("sales: insert sale: %w", err)
	}
	stored.Items, err = tx.ReplaceItems(ctx, stored.ID, items)
	if err != nil {
		return Sale{}, fmt.Errorf("sales: insert items: %w", err)
	}
	return stored, nil
}

func (i *Intake) update(ctx context.Context, tx Tx, sale Sale, req ConfirmRequest, items []Item, number string) (Sale, error) {
	totals := Sum(items)
	sale.Status = StatusConfirmed
	sale.Folio = &number
	sale.CustomerID = req.CustomerID
	sale.WarehouseID = req.WarehouseID
	sale.SellerID = req.SellerID
	sale.Subtotal = totals.Subtotal
	sale.TaxTotal = totals.TaxTotal
	sale.GrandTotal = totals.GrandTotal
	if req.Notes != "" {
		sale.Notes = stringPtr(req.Notes)
	}
	sale.ConfirmedAt = timePtr(i.now())
	if err := tx.UpdateSale(ctx, sale); err != nil {
		return Sale{}, fmt.Errorf("sales: update sale: %w", err)
	}
	var err error
	sale.Items, err = tx.ReplaceItems(ctx, sale.ID, items)
	if err != nil {
		return Sale{}, fmt.Errorf("sales: replace items: %w", err)
	}
	return sale, nil
}

// products loads tax data. When strict, an unknown product is a ReferenceError.
func (i *Intake) products(ctx context.Context, tx Tx, inputs []ItemInput, strict bool) (map[int64]Product, error) {
	ids := make([]int64, 0, len(inputs))
	seen := make(map[int64]struct{}, len(inputs))
	for _, in := range inputs {
		if _, ok := seen[in.ProductID]; ok {
			continue
		}
		seen[in.ProductID] = struct{}{}
		ids = append(ids, in.ProductID)
	}
	products, err := tx.LookupProducts(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("sales: lookup products: %w", err)
	}
	if strict {
		for _, id := range ids {
			if _, ok := products[id]; !ok {
				return nil, &ReferenceError{Entity: "product", ID: id}
			}
		}
	}
	return products, nil
}

func (i *Intake) lookupDuplicate(ctx context.Context, clientUUID string) (Sale, bool, error) {
	if clientUUID == "" {
		return Sale{}, false, nil
	}
	existing, err := i.store.FindSaleByClientUUID(ctx, clientUUID)
	if errors.Is(err, shared.ErrNotFound) {
		return Sale{}, false, nil
	}
	if err != nil {
		return Sale{}, false, err
	}
	existing.Duplicate = true
	return existing, true, nil
}

// resolveRace turns a lost insert race on the idempotency key into a duplicate response.
func (i *Intake) resolveRace(ctx context.Context, clientUUID string, err error) (Sale, error) {
	if clientUUID == "" || !IsClientUUIDConflict(err) {
		return Sale{}, err
	}
	existing, ok, lookupErr := i.lookupDuplicate(ctx, clientUUID)
	if lookupErr != nil || !ok {
		return Sale{}, err
	}
	return existing, nil
}

func (i *Intake) logTotalsMismatch(req ConfirmRequest, computed Totals) {
	if req.GrandTotal == nil || req.GrandTotal.Equal(computed.GrandTotal) {
		return
	}
	i.logger.Warn("client totals differ from computed totals",
		slog.String("client_uuid", req.ClientUUID),
		slog.String("client_grand_total", req.GrandTotal.String()),
		slog.String("grand_total", computed.GrandTotal.String()))
}

func partiesOf(req ConfirmRequest) Parties {
	return Parties{CustomerID: req.CustomerID, WarehouseID: req.WarehouseID, SellerID: req.SellerID}
}
