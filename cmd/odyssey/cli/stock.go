package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/odyssey-erp/odyssey-pos/internal/inventory"
)

// ExitDrift is returned when at least one stock record disagrees with its journal.
const ExitDrift = 10

// StockVerifier compares stock records with the movement journal.
type StockVerifier interface {
	Verify(ctx context.Context, warehouseID int64) ([]inventory.Drift, error)
}

// StockOpsCLI offers operational helpers around stock balances.
type StockOpsCLI struct {
	verifier StockVerifier
}

// NewStockOpsCLI constructs a new helper instance.
func NewStockOpsCLI(verifier StockVerifier) (*StockOpsCLI, error) {
	if verifier == nil {
		return nil, errors.New("stock cli: verifier is required")
	}
	return &StockOpsCLI{verifier: verifier}, nil
}

// StockVerifyOptions defines available flags for the stock verify command.
type StockVerifyOptions struct {
	WarehouseID int64
	JSONOutput  bool
	Stdout      io.Writer
	Stderr      io.Writer
}

// StockVerifySummary describes the JSON response for stock verify.
type StockVerifySummary struct {
	OK          bool         `json:"ok"`
	WarehouseID int64        `json:"warehouse_id,omitempty"`
	Drifts      []StockDrift `json:"drifts"`
}

// StockDrift reports one record out of line with its journal.
type StockDrift struct {
	WarehouseID int64  `json:"warehouse_id"`
	ProductID   int64  `json:"product_id"`
	RecordQty   string `json:"record_qty"`
	JournalQty  string `json:"journal_qty"`
	Difference  string `json:"difference"`
}

// VerifyCommand executes the stock verify workflow and prints the outcome.
func (c *StockOpsCLI) VerifyCommand(ctx context.Context, opts StockVerifyOptions) int {
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	if opts.WarehouseID < 0 {
		_, _ = fmt.Fprintln(opts.Stderr, "stock verify: --warehouse must not be negative")
		return 1
	}
	drifts, err := c.verifier.Verify(ctx, opts.WarehouseID)
	if err != nil {
		_, _ = fmt.Fprintf(opts.Stderr, "stock verify: %v\n", err)
		return 1
	}
	summary := buildVerifySummary(opts.WarehouseID, drifts)
	if opts.JSONOutput {
		if err := json.NewEncoder(opts.Stdout).Encode(summary); err != nil {
			_, _ = fmt.Fprintf(opts.Stderr, "stock verify: encode json: %v\n", err)
			return 1
		}
	} else {
		renderVerifyHuman(opts.Stdout, summary)
	}
	if !summary.OK {
		return ExitDrift
	}
	return 0
}

func buildVerifySummary(warehouseID int64, drifts []inventory.Drift) StockVerifySummary {
	out := make([]StockDrift, 0, len(drifts))
	for _, d := range drifts {
		out = append(out, StockDrift{
			WarehouseID: d.WarehouseID,
			ProductID:   d.ProductID,
			RecordQty:   d.RecordQty.String(),
			JournalQty:  d.JournalQty.String(),
			Difference:  d.RecordQty.Sub(d.JournalQty).String(),
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].WarehouseID == out[j].WarehouseID {
			return out[i].ProductID < out[j].ProductID
		}
		return out[i].WarehouseID < out[j].WarehouseID
	})
	return StockVerifySummary{OK: len(out) == 0, WarehouseID: warehouseID, Drifts: out}
}

func renderVerifyHuman(out io.Writer, summary StockVerifySummary) {
	scope := "all warehouses"
	if summary.WarehouseID > 0 {
		scope = fmt.Sprintf("warehouse %d", summary.WarehouseID)
	}
	if summary.OK {
		_, _ = fmt.Fprintf(out, "Stock verification for %s: every record matches its journal.\n", scope)
		return
	}
	_, _ = fmt.Fprintf(out, "Stock verification for %s: %d drift(s) detected:\n", scope, len(summary.Drifts))
	for _, d := range summary.Drifts {
		_, _ = fmt.Fprintf(out, " - warehouse %d product %d: record %s, journal %s (diff %s)\n",
			d.WarehouseID, d.ProductID, d.RecordQty, d.JournalQty, d.Difference)
	}
}
