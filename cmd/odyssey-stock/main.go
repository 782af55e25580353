package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/odyssey-erp/odyssey-pos/cmd/odyssey/cli"
	"github.com/odyssey-erp/odyssey-pos/internal/app"
	"github.com/odyssey-erp/odyssey-pos/internal/inventory"
	"github.com/odyssey-erp/odyssey-pos/internal/platform/db"
)

const usage = `usage: odyssey-stock verify [--warehouse ID] [--json]`

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	if len(args) == 0 || args[0] != "verify" {
		_, _ = fmt.Fprintln(os.Stderr, usage)
		return 2
	}
	fs := flag.NewFlagSet("verify", flag.ContinueOnError)
	warehouse := fs.Int64("warehouse", 0, "warehouse id, 0 checks every warehouse")
	jsonOut := fs.Bool("json", false, "print a JSON summary")
	if err := fs.Parse(args[1:]); err != nil {
		return 2
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		return 1
	}
	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN, cfg.PoolOptions())
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		return 1
	}
	defer pool.Close()

	service := inventory.NewService(inventory.NewRepository(pool), nil, nil, logger)
	stockCLI, err := cli.NewStockOpsCLI(service)
	if err != nil {
		logger.Error("stock cli", slog.Any("error", err))
		return 1
	}
	return stockCLI.VerifyCommand(ctx, cli.StockVerifyOptions{
		WarehouseID: *warehouse,
		JSONOutput:  *jsonOut,
	})
}
