package offline

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"
)

func serveSync(t *testing.T, h http.Handler, body any) *httptest.ResponseRecorder {
	t.Helper()
	buf, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequestWithContext(context.Background(), http.MethodPost, "/sync/sales", bytes.NewReader(buf))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHandlerSyncSales(t *testing.T) {
	f := newFixture(t, nil)
	f.store.Stock.Seed(1, 10, dec("3"))
	r := chi.NewRouter()
	NewHandler(slog.Default(), f.coord, 0).MountRoutes(r)

	rec := serveSync(t, r, map[string]any{"sales": []map[string]any{
		{"id": uuidA, "customerId": 1, "warehouseId": 1, "sellerId": 1, "items": []map[string]any{
			{"productId": 10, "unitCode": "PCS", "qty": "2", "qtyBase": "2", "priceUnit": "5"},
		}},
		{"id": uuidB, "customerId": 1, "warehouseId": 1, "sellerId": 1, "items": []map[string]any{
			{"productId": 10, "unitCode": "PCS", "qty": "2", "qtyBase": "2", "priceUnit": "5"},
		}},
	}})
	require.Equal(t, http.StatusOK, rec.Code)
	var result BatchResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	require.Equal(t, 1, result.Synced)
	require.Equal(t, 1, result.ReviewRequired)
	require.Equal(t, string(CategoryStockShortage), result.Results[1].Error)
}

func TestHandlerSyncSalesErrors(t *testing.T) {
	f := newFixture(t, nil)
	r := chi.NewRouter()
	NewHandler(slog.Default(), f.coord, 0).MountRoutes(r)

	rec := serveSync(t, r, map[string]any{"sales": []any{}})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = serveSync(t, r, map[string]any{"unexpected": true})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	f.store.PingErr = errors.New("connection refused")
	rec = serveSync(t, r, map[string]any{"sales": []map[string]any{{"id": uuidA}}})
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
