package folio

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

type memoryCounter struct {
	mu     sync.Mutex
	seq    map[string]int64
	taken  map[string]bool
	claims bool
}

func newMemoryCounter() *memoryCounter {
	return &memoryCounter{seq: make(map[string]int64), taken: make(map[string]bool)}
}

func (c *memoryCounter) NextFolioSeq(_ context.Context, day time.Time) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	k := day.Format("2006-01-02")
	c.seq[k]++
	return c.seq[k], nil
}

func (c *memoryCounter) FolioExists(_ context.Context, folio string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	taken := c.taken[folio]
	if c.claims && !taken {
		c.taken[folio] = true
	}
	return taken, nil
}

func fixedGenerator(t *testing.T, cfg Config, at time.Time) *Generator {
	t.Helper()
	g, err := NewGenerator(cfg, nil)
	require.NoError(t, err)
	g.now = func() time.Time { return at }
	return g
}

func TestGenerateSequential(t *testing.T) {
	g := fixedGenerator(t, Config{}, time.Date(2024, 3, 9, 15, 0, 0, 0, time.UTC))
	c := newMemoryCounter()

	first, err := g.Generate(context.Background(), c)
	require.NoError(t, err)
	second, err := g.Generate(context.Background(), c)
	require.NoError(t, err)
	require.Equal(t, "20240309-0001", first)
	require.Equal(t, "20240309-0002", second)
}

func TestGenerateUsesLocation(t *testing.T) {
	loc := time.FixedZone("WIB", 7*3600)
	g := fixedGenerator(t, Config{Location: loc}, time.Date(2024, 3, 9, 20, 0, 0, 0, time.UTC))

	folio, err := g.Generate(context.Background(), newMemoryCounter())
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(folio, "20240310-"))
}

func TestGenerateSkipsTakenFolios(t *testing.T) {
	g := fixedGenerator(t, Config{}, time.Date(2024, 3, 9, 0, 0, 0, 0, time.UTC))
	c := newMemoryCounter()
	c.taken["20240309-0001"] = true
	c.taken["20240309-0002"] = true

	folio, err := g.Generate(context.Background(), c)
	require.NoError(t, err)
	require.Equal(t, "20240309-0003", folio)
}

func TestGenerateFallsBackAfterMaxAttempts(t *testing.T) {
	g := fixedGenerator(t, Config{MaxAttempts: 3, NodeID: 7}, time.Date(2024, 3, 9, 0, 0, 0, 0, time.UTC))
	c := newMemoryCounter()
	for i := int64(1); i <= 3; i++ {
		c.taken[Format("20240309", i)] = true
	}

	folio, err := g.Generate(context.Background(), c)
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(folio, "20240309-"))
	require.False(t, c.taken[folio])
	require.Greater(t, len(folio), len("20240309-0004"))
}

func TestGenerateConcurrentUnique(t *testing.T) {
	g := fixedGenerator(t, Config{}, time.Date(2024, 3, 9, 0, 0, 0, 0, time.UTC))
	c := newMemoryCounter()
	c.claims = true

	const n = 64
	results := make([]string, n)
	var eg errgroup.Group
	for i := 0; i < n; i++ {
		eg.Go(func() error {
			folio, err := g.Generate(context.Background(), c)
			if err != nil {
				return fmt.Errorf("generate %d: %w", i, err)
			}
			results[i] = folio
			return nil
		})
	}
	require.NoError(t, eg.Wait())

	seen := make(map[string]struct{}, n)
	for _, f := range results {
		_, dup := seen[f]
		require.False(t, dup, "duplicate folio %s", f)
		seen[f] = struct{}{}
	}
}

func TestNewGeneratorRejectsBadNode(t *testing.T) {
	_, err := NewGenerator(Config{NodeID: 5000}, nil)
	require.Error(t, err)
}
