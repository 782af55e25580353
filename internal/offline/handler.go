package offline

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"

	"github.com/odyssey-erp/odyssey-pos/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-pos/internal/shared"
)

// Handler exposes the sync endpoint.
type Handler struct {
	logger      *slog.Logger
	coordinator *Coordinator
	perMinute   int
}

// NewHandler builds Handler. perMinute limits sync calls per client IP; zero disables the limit.
func NewHandler(logger *slog.Logger, coordinator *Coordinator, perMinute int) *Handler {
	return &Handler{logger: logger, coordinator: coordinator, perMinute: perMinute}
}

// MountRoutes registers sync routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		if h.perMinute > 0 {
			r.Use(httprate.Limit(h.perMinute, time.Minute, httprate.WithKeyFuncs(httprate.KeyByIP)))
		}
		r.Post("/sync/sales", h.syncSales)
	})
}

func (h *Handler) syncSales(w http.ResponseWriter, r *http.Request) {
	var req BatchRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	req.ActorID, _ = shared.ActorFromContext(r.Context())
	result, err := h.coordinator.SyncBatch(r.Context(), req)
	if err != nil {
		h.logger.Error("offline sync failed", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}
