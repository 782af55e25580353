package offline

import (
	"context"
	"errors"
	"fmt"
	"net"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-pos/internal/inventory"
	"github.com/odyssey-erp/odyssey-pos/internal/sales"
	"github.com/odyssey-erp/odyssey-pos/internal/shared"
)

type timeoutErr struct{ timeout bool }

func (e timeoutErr) Error() string   { return "i/o failure" }
func (e timeoutErr) Timeout() bool   { return e.timeout }
func (e timeoutErr) Temporary() bool { return false }

var _ net.Error = timeoutErr{}

func TestClassify(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want Category
	}{
		{"nil", nil, ""},
		{"shortage", fmt.Errorf("confirm: %w", &inventory.ShortageError{ProductID: 1}), CategoryStockShortage},
		{"duplicate", sales.ErrClientUUIDConflict, CategoryDuplicateSubmission},
		{"reference", &sales.ReferenceError{Entity: "customer", ID: 9}, CategoryInvalidReference},
		{"fk violation", &pgconn.PgError{Code: "23503"}, CategoryInvalidReference},
		{"unique violation", &pgconn.PgError{Code: "23505"}, CategoryDuplicateSubmission},
		{"check violation", &pgconn.PgError{Code: "23514"}, CategoryValidation},
		{"numeric overflow", &pgconn.PgError{Code: "22003"}, CategoryValidation},
		{"query canceled", &pgconn.PgError{Code: "57014"}, CategoryTimeout},
		{"connection failure", &pgconn.PgError{Code: "08006"}, CategoryConnectivity},
		{"insufficient privilege", &pgconn.PgError{Code: "42501"}, CategoryAuthorization},
		{"serialization", &pgconn.PgError{Code: "40001"}, CategoryDatabase},
		{"not found", shared.ErrNotFound, CategoryInvalidReference},
		{"validation", shared.NewValidationError("items", "is required"), CategoryValidation},
		{"invalid state", shared.ErrInvalidState, CategoryValidation},
		{"authorization", shared.ErrAuthorization, CategoryAuthorization},
		{"deadline", fmt.Errorf("tx: %w", context.DeadlineExceeded), CategoryTimeout},
		{"net timeout", timeoutErr{timeout: true}, CategoryTimeout},
		{"net failure", &net.OpError{Op: "dial", Err: errors.New("refused")}, CategoryConnectivity},
		{"connectivity", shared.ErrConnectivity, CategoryConnectivity},
		{"infrastructure", shared.ErrInfrastructure, CategoryDatabase},
		{"message stock", errors.New("product is out of stock"), CategoryStockShortage},
		{"message fk", errors.New("violates foreign key constraint"), CategoryInvalidReference},
		{"message network", errors.New("write: broken pipe"), CategoryConnectivity},
		{"message sql", errors.New("deadlock detected"), CategoryDatabase},
		{"message unknown", errors.New("boom"), CategoryUnknown},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, Classify(tc.err))
		})
	}
}

func TestCategoryMessage(t *testing.T) {
	require.Equal(t, categoryMessages[CategoryUnknown], Category("mystery").Message())
	for c, msg := range categoryMessages {
		require.NotEmpty(t, msg, c)
	}
}
