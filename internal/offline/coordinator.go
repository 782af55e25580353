// Package offline replays sales captured while a point of sale was disconnected.
package offline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/odyssey-erp/odyssey-pos/internal/inventory"
	"github.com/odyssey-erp/odyssey-pos/internal/sales"
	"github.com/odyssey-erp/odyssey-pos/internal/shared"
)

var tracer = otel.Tracer("github.com/odyssey-erp/odyssey-pos/internal/offline")

// DefaultMaxBatch bounds the number of sales accepted in one call.
const DefaultMaxBatch = 100

// StatusFailed marks a sale that could be neither confirmed nor stored for review.
const StatusFailed = "FAILED"

// Confirmer is the slice of sales.Intake used during replay.
type Confirmer interface {
	Prepare(req sales.ConfirmRequest) (sales.ConfirmRequest, error)
	ConfirmInTx(ctx context.Context, tx sales.Tx, existingID int64, req sales.ConfirmRequest, source string) (sales.Sale, error)
	PersistForReview(ctx context.Context, tx sales.Tx, req sales.ConfirmRequest, reason string) (sales.Sale, error)
}

// Recorder receives sync metrics.
type Recorder interface {
	ObserveSyncBatch(size int)
	ObserveSyncSale(outcome, category string)
}

// SaleInput is one sale captured offline.
type SaleInput struct {
	ID          string            `json:"id"`
	CustomerID  int64             `json:"customerId"`
	WarehouseID int64             `json:"warehouseId"`
	SellerID    int64             `json:"sellerId"`
	Items       []sales.ItemInput `json:"items"`
	Subtotal    *decimal.Decimal  `json:"subtotal,omitempty"`
	TaxTotal    *decimal.Decimal  `json:"taxTotal,omitempty"`
	GrandTotal  *decimal.Decimal  `json:"grandTotal,omitempty"`
	Notes       string            `json:"notes,omitempty"`
	CreatedAt   *time.Time        `json:"createdAt,omitempty"`
}

// BatchRequest is a sync call.
type BatchRequest struct {
	Sales   []SaleInput `json:"sales"`
	ActorID int64       `json:"-"`
}

// SaleResult reports the outcome of one sale.
type SaleResult struct {
	ID        int64   `json:"id,omitempty"`
	ClientID  string  `json:"clientId"`
	Status    string  `json:"status"`
	Folio     *string `json:"folio,omitempty"`
	Error     string  `json:"error,omitempty"`
	Message   string  `json:"message"`
	Duplicate bool    `json:"duplicate,omitempty"`
}

// BatchResult summarises a sync call.
type BatchResult struct {
	Synced         int          `json:"synced"`
	ReviewRequired int          `json:"reviewRequired"`
	Failed         int          `json:"failed"`
	Results        []SaleResult `json:"results"`
}

// Config groups coordinator settings.
type Config struct {
	MaxBatch int
}

// Coordinator replays offline sales one transaction at a time.
type Coordinator struct {
	store    sales.Store
	intake   Confirmer
	receipts *ReceiptCache
	locker   *Locker
	metrics  Recorder
	cfg      Config
	logger   *slog.Logger
}

// NewCoordinator builds a Coordinator. receipts, locker and metrics may be nil.
func NewCoordinator(store sales.Store, intake Confirmer, receipts *ReceiptCache, locker *Locker, metrics Recorder, cfg Config, logger *slog.Logger) *Coordinator {
	if cfg.MaxBatch <= 0 {
		cfg.MaxBatch = DefaultMaxBatch
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{
		store:    store,
		intake:   intake,
		receipts: receipts,
		locker:   locker,
		metrics:  metrics,
		cfg:      cfg,
		logger:   logger,
	}
}

// SyncBatch processes every sale independently. Only failures that affect the
// whole batch, such as an unreachable store, are returned as errors.
func (c *Coordinator) SyncBatch(ctx context.Context, req BatchRequest) (BatchResult, error) {
	ctx, span := tracer.Start(ctx, "offline.sync_batch")
	defer span.End()
	span.SetAttributes(attribute.Int("sync.batch_size", len(req.Sales)))

	if len(req.Sales) == 0 {
		return BatchResult{}, shared.NewValidationError("sales", "must contain at least one sale")
	}
	if len(req.Sales) > c.cfg.MaxBatch {
		return BatchResult{}, shared.NewValidationError("sales", fmt.Sprintf("must contain at most %d sales", c.cfg.MaxBatch))
	}
	if err := c.store.Ping(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "store unreachable")
		if errors.Is(err, context.DeadlineExceeded) {
			return BatchResult{}, fmt.Errorf("%w: %v", shared.ErrTimeout, err)
		}
		return BatchResult{}, fmt.Errorf("%w: %v", shared.ErrConnectivity, err)
	}
	c.observeBatch(len(req.Sales))

	result := BatchResult{Results: make([]SaleResult, 0, len(req.Sales))}
	for _, in := range req.Sales {
		res := c.syncOne(ctx, in, req.ActorID)
		switch res.Status {
		case string(sales.StatusConfirmed):
			result.Synced++
		case string(sales.StatusReviewRequired):
			result.ReviewRequired++
		case StatusFailed:
			result.Failed++
		}
		result.Results = append(result.Results, res)
	}
	c.logger.Info("offline batch processed",
		slog.Int("synced", result.Synced),
		slog.Int("review_required", result.ReviewRequired),
		slog.Int("failed", result.Failed))
	return result, nil
}

func (c *Coordinator) syncOne(ctx context.Context, in SaleInput, actorID int64) SaleResult {
	clientID := strings.ToLower(strings.TrimSpace(in.ID))
	ctx, span := tracer.Start(ctx, "offline.sync_sale")
	defer span.End()
	span.SetAttributes(attribute.String("sale.client_uuid", clientID))
	logger := c.logger.With(slog.String("client_uuid", clientID))

	if _, err := uuid.Parse(clientID); err != nil {
		c.observeSale(StatusFailed, string(CategoryValidation))
		logger.Warn("offline sale without valid uuid rejected")
		return SaleResult{
			ClientID: in.ID,
			Status:   StatusFailed,
			Error:    string(CategoryValidation),
			Message:  "The sale has no valid id and cannot be stored safely.",
		}
	}

	release, err := c.locker.Acquire(ctx, clientID)
	if err != nil {
		logger.Warn("proceeding without submission lock", slog.Any("error", err))
	}
	defer release()

	if res, ok := c.lookupDuplicate(ctx, clientID, logger); ok {
		return res
	}

	req := c.toRequest(clientID, in, actorID)
	prepared, err := c.intake.Prepare(req)
	if err == nil {
		var sale sales.Sale
		err = c.store.WithTx(ctx, func(ctx context.Context, tx sales.Tx) error {
			var txErr error
			sale, txErr = c.intake.ConfirmInTx(ctx, tx, 0, prepared, inventory.SourceOfflineSync)
			return txErr
		})
		if err == nil {
			if cacheErr := c.receipts.Put(ctx, sale); cacheErr != nil {
				logger.Warn("cache sync receipt", slog.Any("error", cacheErr))
			}
			c.observeSale(string(sales.StatusConfirmed), "")
			logger.Info("offline sale confirmed", slog.Int64("sale_id", sale.ID), slog.String("folio", sale.FolioValue()))
			return SaleResult{
				ID:       sale.ID,
				ClientID: clientID,
				Status:   string(sale.Status),
				Folio:    sale.Folio,
				Message:  "Sale confirmed.",
			}
		}
		if sales.IsClientUUIDConflict(err) {
			if res, ok := c.lookupDuplicate(ctx, clientID, logger); ok {
				return res
			}
		}
	}

	category := Classify(err)
	span.RecordError(err)
	span.SetAttributes(attribute.String("sync.category", string(category)))
	logger.Warn("offline sale needs review", slog.String("category", string(category)), slog.Any("error", err))
	return c.flagForReview(ctx, prepared, clientID, category, err, logger)
}

func (c *Coordinator) flagForReview(ctx context.Context, req sales.ConfirmRequest, clientID string, category Category, cause error, logger *slog.Logger) SaleResult {
	reason := fmt.Sprintf("%s: %s", category, cause.Error())
	var sale sales.Sale
	err := c.store.WithTx(ctx, func(ctx context.Context, tx sales.Tx) error {
		var txErr error
		sale, txErr = c.intake.PersistForReview(ctx, tx, req, reason)
		return txErr
	})
	if err != nil {
		if sales.IsClientUUIDConflict(err) {
			if res, ok := c.lookupDuplicate(ctx, clientID, logger); ok {
				return res
			}
		}
		c.observeSale(StatusFailed, string(category))
		logger.Error("offline sale could not be stored for review",
			slog.String("category", string(category)),
			slog.Any("cause", cause),
			slog.Any("error", err))
		return SaleResult{
			ClientID: clientID,
			Status:   StatusFailed,
			Error:    string(category),
			Message:  category.Message(),
		}
	}
	c.observeSale(string(sales.StatusReviewRequired), string(category))
	logger.Info("offline sale stored for review", slog.Int64("sale_id", sale.ID))
	return SaleResult{
		ID:       sale.ID,
		ClientID: clientID,
		Status:   string(sale.Status),
		Error:    string(category),
		Message:  category.Message(),
	}
}

// lookupDuplicate returns the stored outcome of a replayed key.
func (c *Coordinator) lookupDuplicate(ctx context.Context, clientID string, logger *slog.Logger) (SaleResult, bool) {
	receipt, ok, err := c.receipts.Get(ctx, clientID)
	if err != nil {
		logger.Warn("read sync receipt", slog.Any("error", err))
	}
	if ok {
		c.observeSale(string(receipt.Status), string(CategoryDuplicateSubmission))
		res := SaleResult{
			ID:        receipt.SaleID,
			ClientID:  clientID,
			Status:    string(receipt.Status),
			Message:   CategoryDuplicateSubmission.Message(),
			Duplicate: true,
		}
		if receipt.Folio != "" {
			folio := receipt.Folio
			res.Folio = &folio
		}
		return res, true
	}

	existing, err := c.store.FindSaleByClientUUID(ctx, clientID)
	if err != nil {
		if !errors.Is(err, shared.ErrNotFound) {
			logger.Warn("lookup sale by uuid", slog.Any("error", err))
		}
		return SaleResult{}, false
	}
	if cacheErr := c.receipts.Put(ctx, existing); cacheErr != nil {
		logger.Warn("cache sync receipt", slog.Any("error", cacheErr))
	}
	c.observeSale(string(existing.Status), string(CategoryDuplicateSubmission))
	return SaleResult{
		ID:        existing.ID,
		ClientID:  clientID,
		Status:    string(existing.Status),
		Folio:     existing.Folio,
		Message:   CategoryDuplicateSubmission.Message(),
		Duplicate: true,
	}, true
}

func (c *Coordinator) toRequest(clientID string, in SaleInput, actorID int64) sales.ConfirmRequest {
	if actorID == 0 {
		actorID = in.SellerID
	}
	return sales.ConfirmRequest{
		ClientUUID:  clientID,
		CustomerID:  in.CustomerID,
		WarehouseID: in.WarehouseID,
		SellerID:    in.SellerID,
		Notes:       in.Notes,
		Items:       in.Items,
		Subtotal:    in.Subtotal,
		TaxTotal:    in.TaxTotal,
		GrandTotal:  in.GrandTotal,
		CreatedAt:   in.CreatedAt,
		ActorID:     actorID,
	}
}

func (c *Coordinator) observeBatch(size int) {
	if c.metrics != nil {
		c.metrics.ObserveSyncBatch(size)
	}
}

func (c *Coordinator) observeSale(outcome, category string) {
	if c.metrics != nil {
		c.metrics.ObserveSyncSale(strings.ToLower(outcome), category)
	}
}
