package inventory

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/odyssey-pos/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-pos/internal/shared"
)

// Handler wires HTTP endpoints for stock reads and manual movements.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler constructs inventory handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers inventory routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/stock", func(r chi.Router) {
		r.Get("/levels", h.handleLevels)
		r.Get("/movements", h.handleMovements)
		r.Post("/receipts", h.handleReceipt)
		r.Post("/adjustments", h.handleAdjustment)
	})
}

func (h *Handler) handleLevels(w http.ResponseWriter, r *http.Request) {
	warehouseID, err := parseID(r.URL.Query().Get("warehouseId"), "warehouseId")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	records, err := h.service.Levels(r.Context(), warehouseID)
	if err != nil {
		h.logger.Error("list stock levels", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"items": records})
}

func (h *Handler) handleMovements(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := MovementFilter{Type: MovementType(q.Get("type"))}
	verr := &shared.ValidationError{}
	for field, dst := range map[string]*int64{
		"warehouseId": &filter.WarehouseID,
		"productId":   &filter.ProductID,
		"saleId":      &filter.SaleID,
	} {
		v, err := parseID(q.Get(field), field)
		if err != nil {
			verr.Add(field, "must be a positive integer")
			continue
		}
		*dst = v
	}
	if raw := q.Get("from"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			verr.Add("from", "must be RFC3339")
		}
		filter.From = t
	}
	if raw := q.Get("to"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			verr.Add("to", "must be RFC3339")
		}
		filter.To = t
	}
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			verr.Add("limit", "must be an integer")
		}
		filter.Limit = n
	}
	if err := verr.OrNil(); err != nil {
		httpx.RespondError(w, err)
		return
	}
	movements, err := h.service.History(r.Context(), filter)
	if err != nil {
		h.logger.Error("list stock movements", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"items": movements})
}

func (h *Handler) handleReceipt(w http.ResponseWriter, r *http.Request) {
	var input ReceiptInput
	if err := httpx.DecodeJSON(w, r, &input); err != nil {
		httpx.RespondError(w, err)
		return
	}
	input.ActorID, _ = shared.ActorFromContext(r.Context())
	mv, rec, err := h.service.Receive(r.Context(), input)
	if err != nil {
		h.logger.Warn("stock receipt failed", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]any{"movement": mv, "record": rec})
}

func (h *Handler) handleAdjustment(w http.ResponseWriter, r *http.Request) {
	var input AdjustmentInput
	if err := httpx.DecodeJSON(w, r, &input); err != nil {
		httpx.RespondError(w, err)
		return
	}
	input.ActorID, _ = shared.ActorFromContext(r.Context())
	mv, rec, err := h.service.Adjust(r.Context(), input)
	if err != nil {
		h.logger.Warn("stock adjustment failed", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]any{"movement": mv, "record": rec})
}

func parseID(raw, field string) (int64, error) {
	if raw == "" {
		return 0, nil
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, shared.NewValidationError(field, "must be a positive integer")
	}
	return id, nil
}
