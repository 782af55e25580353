// Package folio assigns human-readable sale numbers of the form YYYYMMDD-NNNN.
package folio

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/bwmarrin/snowflake"
)

// DefaultMaxAttempts bounds how often the counter is advanced past taken folios.
const DefaultMaxAttempts = 10

// Counter is the transactional store behind folio assignment.
type Counter interface {
	// NextFolioSeq atomically increments and returns the counter for day.
	NextFolioSeq(ctx context.Context, day time.Time) (int64, error)
	// FolioExists reports whether a sale already carries folio.
	FolioExists(ctx context.Context, folio string) (bool, error)
}

// Config groups generator settings.
type Config struct {
	MaxAttempts int
	Location    *time.Location
	NodeID      int64
}

// Generator produces folios unique across concurrent transactions.
type Generator struct {
	maxAttempts int
	loc         *time.Location
	node        *snowflake.Node
	now         func() time.Time
	logger      *slog.Logger
}

// NewGenerator builds a Generator. The snowflake node backs the fallback suffix.
func NewGenerator(cfg Config, logger *slog.Logger) (*Generator, error) {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if logger == nil {
		logger = slog.Default()
	}
	node, err := snowflake.NewNode(cfg.NodeID)
	if err != nil {
		return nil, fmt.Errorf("folio: snowflake node: %w", err)
	}
	return &Generator{
		maxAttempts: cfg.MaxAttempts,
		loc:         cfg.Location,
		node:        node,
		now:         time.Now,
		logger:      logger,
	}, nil
}

// Generate returns the next free folio for today. It must run inside the
// transaction that stores the folio on its sale.
func (g *Generator) Generate(ctx context.Context, c Counter) (string, error) {
	if c == nil {
		return "", errors.New("folio: counter not configured")
	}
	now := g.now().In(g.loc)
	day := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	prefix := now.Format("20060102")
	for attempt := 0; attempt < g.maxAttempts; attempt++ {
		seq, err := c.NextFolioSeq(ctx, day)
		if err != nil {
			return "", fmt.Errorf("folio: next sequence: %w", err)
		}
		candidate := Format(prefix, seq)
		taken, err := c.FolioExists(ctx, candidate)
		if err != nil {
			return "", fmt.Errorf("folio: check %s: %w", candidate, err)
		}
		if !taken {
			return candidate, nil
		}
	}
	fallback := fmt.Sprintf("%s-%s", prefix, g.node.Generate().String())
	g.logger.Warn("folio counter exhausted, using fallback",
		slog.String("prefix", prefix),
		slog.Int("attempts", g.maxAttempts),
		slog.String("folio", fallback))
	return fallback, nil
}

// Format renders a folio with the sequence zero padded to four digits.
func Format(prefix string, seq int64) string {
	return fmt.Sprintf("%s-%04d", prefix, seq)
}
