package offline

import (
	"context"
	"errors"
	"net"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/odyssey-erp/odyssey-pos/internal/sales"
	"github.com/odyssey-erp/odyssey-pos/internal/shared"
)

// Category groups sync failures for operators and clients.
type Category string

const (
	CategoryStockShortage       Category = "stock_shortage"
	CategoryDuplicateSubmission Category = "duplicate_submission"
	CategoryInvalidReference    Category = "invalid_reference"
	CategoryValidation          Category = "validation"
	CategoryDatabase            Category = "database"
	CategoryTimeout             Category = "timeout"
	CategoryConnectivity        Category = "connectivity"
	CategoryAuthorization       Category = "authorization"
	CategoryUnknown             Category = "unknown"
)

var categoryMessages = map[Category]string{
	CategoryStockShortage:       "Insufficient stock to confirm this sale; it was sent to review.",
	CategoryDuplicateSubmission: "This sale was already submitted.",
	CategoryInvalidReference:    "The sale references a customer, product, warehouse or seller that does not exist.",
	CategoryValidation:          "The sale data is invalid.",
	CategoryDatabase:            "The sale could not be stored because of a database error.",
	CategoryTimeout:             "The server took too long to process this sale.",
	CategoryConnectivity:        "The server could not reach its data store.",
	CategoryAuthorization:       "You are not allowed to submit this sale.",
	CategoryUnknown:             "The sale could not be processed.",
}

// Message returns the user-facing text for c.
func (c Category) Message() string {
	if msg, ok := categoryMessages[c]; ok {
		return msg
	}
	return categoryMessages[CategoryUnknown]
}

// Classify maps an error to a Category. Typed errors and SQLSTATE codes win over
// message heuristics.
func Classify(err error) Category {
	if err == nil {
		return ""
	}
	var ref *sales.ReferenceError
	var pgErr *pgconn.PgError
	var netErr net.Error
	switch {
	case errors.Is(err, shared.ErrInsufficientStock):
		return CategoryStockShortage
	case errors.Is(err, shared.ErrDuplicateSubmission):
		return CategoryDuplicateSubmission
	case errors.As(err, &ref):
		return CategoryInvalidReference
	case errors.As(err, &pgErr):
		return classifySQLState(pgErr.Code)
	case errors.Is(err, shared.ErrNotFound):
		return CategoryInvalidReference
	case errors.Is(err, shared.ErrValidation), errors.Is(err, shared.ErrInvalidState):
		return CategoryValidation
	case errors.Is(err, shared.ErrAuthorization):
		return CategoryAuthorization
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, shared.ErrTimeout):
		return CategoryTimeout
	case errors.As(err, &netErr):
		if netErr.Timeout() {
			return CategoryTimeout
		}
		return CategoryConnectivity
	case errors.Is(err, shared.ErrConnectivity):
		return CategoryConnectivity
	case errors.Is(err, shared.ErrInfrastructure):
		return CategoryDatabase
	}
	return classifyMessage(err.Error())
}

func classifySQLState(code string) Category {
	switch {
	case code == "23503":
		return CategoryInvalidReference
	case code == "23505":
		return CategoryDuplicateSubmission
	case code == "23502", code == "23514", strings.HasPrefix(code, "22"):
		return CategoryValidation
	case code == "57014":
		return CategoryTimeout
	case strings.HasPrefix(code, "08"), code == "57P01":
		return CategoryConnectivity
	case code == "42501", strings.HasPrefix(code, "28"):
		return CategoryAuthorization
	}
	return CategoryDatabase
}

func classifyMessage(msg string) Category {
	msg = strings.ToLower(msg)
	has := func(subs ...string) bool {
		for _, s := range subs {
			if strings.Contains(msg, s) {
				return true
			}
		}
		return false
	}
	switch {
	case has("insufficient stock", "out of stock"):
		return CategoryStockShortage
	case has("duplicate", "already exists"):
		return CategoryDuplicateSubmission
	case has("foreign key", "not found", "does not exist"):
		return CategoryInvalidReference
	case has("timeout", "timed out", "deadline"):
		return CategoryTimeout
	case has("connection refused", "connection reset", "broken pipe", "no such host", "network"):
		return CategoryConnectivity
	case has("permission denied", "unauthorized", "forbidden"):
		return CategoryAuthorization
	case has("invalid", "required", "must be"):
		return CategoryValidation
	case has("sql", "database", "deadlock", "serialization", "pgx", "postgres"):
		return CategoryDatabase
	}
	return CategoryUnknown
}
