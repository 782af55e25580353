package inventory

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-pos/internal/shared"
)

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	MovementReader
	WithTx(ctx context.Context, fn func(context.Context, Tx) error) error
	ListRecords(ctx context.Context, warehouseID int64) ([]Record, error)
	SumMovements(ctx context.Context, warehouseID int64) (map[Key]decimal.Decimal, error)
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service exposes restocking, adjustments and stock reads to collaborators.
type Service struct {
	repo   RepositoryPort
	ledger *Ledger
	audit  AuditPort
	logger *slog.Logger
}

// NewService builds Service.
func NewService(repo RepositoryPort, ledger *Ledger, audit AuditPort, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if ledger == nil {
		ledger = NewLedger(nil, logger, LedgerConfig{})
	}
	return &Service{repo: repo, ledger: ledger, audit: audit, logger: logger}
}

// Receive posts a PURCHASE movement.
func (s *Service) Receive(ctx context.Context, input ReceiptInput) (Movement, Record, error) {
	if err := shared.ValidateStruct(input); err != nil {
		return Movement{}, Record{}, err
	}
	var mv Movement
	var rec Record
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx Tx) error {
		var err error
		mv, rec, err = s.ledger.Receive(ctx, tx, input)
		return err
	})
	if err != nil {
		return Movement{}, Record{}, err
	}
	s.record(ctx, mv)
	return mv, rec, nil
}

// Adjust posts an ADJUSTMENT movement.
func (s *Service) Adjust(ctx context.Context, input AdjustmentInput) (Movement, Record, error) {
	if err := shared.ValidateStruct(input); err != nil {
		return Movement{}, Record{}, err
	}
	var mv Movement
	var rec Record
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx Tx) error {
		var err error
		mv, rec, err = s.ledger.Adjust(ctx, tx, input)
		return err
	})
	if err != nil {
		return Movement{}, Record{}, err
	}
	s.record(ctx, mv)
	return mv, rec, nil
}

// Levels lists stock balances.
func (s *Service) Levels(ctx context.Context, warehouseID int64) ([]Record, error) {
	return s.repo.ListRecords(ctx, warehouseID)
}

// History lists journal entries.
func (s *Service) History(ctx context.Context, filter MovementFilter) ([]Movement, error) {
	return s.ledger.Journal().History(ctx, s.repo, filter)
}

// Verify reports records whose balance disagrees with their journal.
func (s *Service) Verify(ctx context.Context, warehouseID int64) ([]Drift, error) {
	records, err := s.repo.ListRecords(ctx, warehouseID)
	if err != nil {
		return nil, fmt.Errorf("inventory: list records: %w", err)
	}
	sums, err := s.repo.SumMovements(ctx, warehouseID)
	if err != nil {
		return nil, fmt.Errorf("inventory: sum movements: %w", err)
	}
	drifts := Reconcile(records, sums)
	if len(drifts) > 0 {
		s.logger.Warn("stock drift detected", slog.Int("count", len(drifts)), slog.Int64("warehouse_id", warehouseID))
	}
	return drifts, nil
}

func (s *Service) record(ctx context.Context, mv Movement) {
	if s.audit == nil {
		return
	}
	err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  mv.ActorID,
		Action:   fmt.Sprintf("inventory:%s", mv.Type),
		Entity:   "stock_movement",
		EntityID: fmt.Sprintf("%d", mv.ID),
		Meta: map[string]any{
			"warehouse_id": mv.WarehouseID,
			"product_id":   mv.ProductID,
			"delta":        mv.Delta.String(),
			"note":         mv.Note,
		},
	})
	if err != nil {
		s.logger.Warn("audit stock movement", slog.Any("error", err))
	}
}
