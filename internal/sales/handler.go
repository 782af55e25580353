package sales

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/odyssey-pos/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-pos/internal/shared"
)

// Handler manages sales endpoints.
type Handler struct {
	logger *slog.Logger
	intake *Intake
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, intake *Intake) *Handler {
	return &Handler{logger: logger, intake: intake}
}

// MountRoutes registers sales routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/sales", func(r chi.Router) {
		r.Get("/", h.listSales)
		r.Post("/", h.createSale)
		r.Post("/drafts", h.saveDraft)
		r.Get("/{id}", h.showSale)
		r.Post("/{id}/confirm", h.confirmDraft)
	})
}

func (h *Handler) createSale(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decode(w, r)
	if !ok {
		return
	}
	sale, err := h.intake.CreateAndConfirm(r.Context(), req)
	if err != nil {
		h.fail(w, "create sale", err)
		return
	}
	status := http.StatusCreated
	if sale.Duplicate {
		status = http.StatusOK
	}
	httpx.JSON(w, status, sale)
}

func (h *Handler) saveDraft(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decode(w, r)
	if !ok {
		return
	}
	sale, err := h.intake.SaveDraft(r.Context(), req)
	if err != nil {
		h.fail(w, "save draft", err)
		return
	}
	status := http.StatusCreated
	if sale.Duplicate {
		status = http.StatusOK
	}
	httpx.JSON(w, status, sale)
}

func (h *Handler) confirmDraft(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.RespondError(w, shared.NewValidationError("id", "must be an integer"))
		return
	}
	req, ok := h.decode(w, r)
	if !ok {
		return
	}
	sale, err := h.intake.ConfirmDraft(r.Context(), id, req)
	if err != nil {
		h.fail(w, "confirm draft", err)
		return
	}
	httpx.JSON(w, http.StatusOK, sale)
}

func (h *Handler) showSale(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.RespondError(w, shared.NewValidationError("id", "must be an integer"))
		return
	}
	sale, err := h.intake.Get(r.Context(), id)
	if err != nil {
		h.fail(w, "get sale", err)
		return
	}
	httpx.JSON(w, http.StatusOK, sale)
}

func (h *Handler) listSales(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := ListFilter{Status: Status(q.Get("status"))}
	verr := &shared.ValidationError{}
	if raw := q.Get("warehouseId"); raw != "" {
		v, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			verr.Add("warehouseId", "must be an integer")
		}
		filter.WarehouseID = v
	}
	filter.Page, _ = strconv.Atoi(q.Get("page"))
	filter.PerPage, _ = strconv.Atoi(q.Get("perPage"))
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
	if err := verr.OrNil(); err != nil {
		httpx.RespondError(w, err)
		return
	}
	filter = filter.Normalize()
	sales, total, err := h.intake.List(r.Context(), filter)
	if err != nil {
		h.fail(w, "list sales", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"items":      sales,
		"pagination": shared.NewPagination(filter.Page, filter.PerPage, total),
	})
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request) (ConfirmRequest, bool) {
	var req ConfirmRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		httpx.RespondError(w, err)
		return req, false
	}
	req.ActorID, _ = shared.ActorFromContext(r.Context())
	return req, true
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	h.logger.Warn(op+" failed", slog.Any("error", err))
	httpx.RespondError(w, err)
}
