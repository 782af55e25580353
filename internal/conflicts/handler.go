package conflicts

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/odyssey-pos/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-pos/internal/shared"
)

// Handler exposes the review queue.
type Handler struct {
	logger   *slog.Logger
	workflow *Workflow
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, workflow *Workflow) *Handler {
	return &Handler{logger: logger, workflow: workflow}
}

// MountRoutes registers conflict routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/conflicts", func(r chi.Router) {
		r.Get("/", h.listConflicts)
		r.Post("/{id}/resolve", h.resolve)
	})
}

func (h *Handler) listConflicts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var filter Filter
	if raw := q.Get("warehouseId"); raw != "" {
		v, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			httpx.RespondError(w, shared.NewValidationError("warehouseId", "must be an integer"))
			return
		}
		filter.WarehouseID = v
	}
	filter.Page, _ = strconv.Atoi(q.Get("page"))
	filter.PerPage, _ = strconv.Atoi(q.Get("perPage"))
	conflicts, err := h.workflow.List(r.Context(), filter)
	if err != nil {
		h.logger.Error("list conflicts failed", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"items": conflicts})
}

func (h *Handler) resolve(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.RespondError(w, shared.NewValidationError("id", "must be an integer"))
		return
	}
	var res Resolution
	if err := httpx.DecodeJSON(w, r, &res); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if res.SaleID != 0 && res.SaleID != id {
		httpx.RespondError(w, shared.NewValidationError("saleId", "does not match the path"))
		return
	}
	res.SaleID = id
	res.ActorID, _ = shared.ActorFromContext(r.Context())
	sale, err := h.workflow.Resolve(r.Context(), res)
	if err != nil {
		h.logger.Warn("resolve conflict failed", slog.Int64("sale_id", id), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, sale)
}
