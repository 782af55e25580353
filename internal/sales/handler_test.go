package sales_test

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-pos/internal/sales"
	"github.com/odyssey-erp/odyssey-pos/internal/shared"
)

func newRouter(t *testing.T) (http.Handler, func(id int64, qty string)) {
	t.Helper()
	store, intake := newIntake(t)
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			next.ServeHTTP(w, req.WithContext(shared.ContextWithActor(req.Context(), 7)))
		})
	})
	sales.NewHandler(slog.Default(), intake).MountRoutes(r)
	return r, func(id int64, qty string) { store.Stock.Seed(1, id, dec(qty)) }
}

func postJSON(t *testing.T, h http.Handler, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	buf, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequestWithContext(context.Background(), http.MethodPost, path, bytes.NewReader(buf))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHandlerCreateSale(t *testing.T) {
	h, seed := newRouter(t)
	seed(10, "4")
	body := map[string]any{
		"uuid":       "0b0d2f64-5f6f-4b8a-9a57-2d7f4a6b1c10",
		"customerId": 1,
		"sellerId":   1,
		"items": []map[string]any{
			{"productId": 10, "unitCode": "PCS", "qty": "2", "qtyBase": "2", "priceUnit": "3"},
		},
	}

	rec := postJSON(t, h, "/sales", body)
	require.Equal(t, http.StatusCreated, rec.Code)
	var sale sales.Sale
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &sale))
	require.Equal(t, sales.StatusConfirmed, sale.Status)
	require.NotNil(t, sale.Folio)

	rec = postJSON(t, h, "/sales", body)
	require.Equal(t, http.StatusOK, rec.Code)
	var dup sales.Sale
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &dup))
	require.True(t, dup.Duplicate)
	require.Equal(t, sale.ID, dup.ID)
}

func TestHandlerMapsErrors(t *testing.T) {
	h, seed := newRouter(t)
	seed(10, "1")

	rec := postJSON(t, h, "/sales", map[string]any{
		"customerId": 1,
		"sellerId":   1,
		"items":      []map[string]any{{"productId": 10, "unitCode": "PCS", "qty": "5", "qtyBase": "5", "priceUnit": "1"}},
	})
	require.Equal(t, http.StatusConflict, rec.Code)

	rec = postJSON(t, h, "/sales", map[string]any{"customerId": 1})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = postJSON(t, h, "/sales", map[string]any{"unknown": true})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = postJSON(t, h, "/sales", map[string]any{
		"customerId": 77,
		"sellerId":   1,
		"items":      []map[string]any{{"productId": 10, "unitCode": "PCS", "qty": "1", "qtyBase": "1", "priceUnit": "1"}},
	})
	require.Equal(t, http.StatusNotFound, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/sales/404", nil)
	res := httptest.NewRecorder()
	h.ServeHTTP(res, req)
	require.Equal(t, http.StatusNotFound, res.Code)
}

func TestHandlerListSales(t *testing.T) {
	h, seed := newRouter(t)
	seed(10, "5")
	rec := postJSON(t, h, "/sales/drafts", map[string]any{
		"customerId": 1,
		"sellerId":   1,
		"items":      []map[string]any{{"productId": 10, "unitCode": "PCS", "qty": "1", "qtyBase": "1", "priceUnit": "1"}},
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/sales?status=DRAFT", nil)
	res := httptest.NewRecorder()
	h.ServeHTTP(res, req)
	require.Equal(t, http.StatusOK, res.Code)

	var payload struct {
		Items      []sales.Sale      `json:"items"`
		Pagination shared.Pagination `json:"pagination"`
	}
	require.NoError(t, json.Unmarshal(res.Body.Bytes(), &payload))
	require.Len(t, payload.Items, 1)
	require.Equal(t, 1, payload.Pagination.Total)
}
