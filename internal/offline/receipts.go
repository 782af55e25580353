package offline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/odyssey-erp/odyssey-pos/internal/sales"
)

const receiptKeyPrefix = "pos:sync:receipt:"

// Receipt is the cached outcome of a confirmed offline sale.
type Receipt struct {
	SaleID     int64        `json:"saleId"`
	ClientUUID string       `json:"clientUuid"`
	Folio      string       `json:"folio"`
	Status     sales.Status `json:"status"`
}

// ReceiptCache remembers confirmed sales by idempotency key so replays skip the
// database. A nil cache is a valid no-op.
type ReceiptCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewReceiptCache builds a cache. A nil client disables caching.
func NewReceiptCache(client *redis.Client, ttl time.Duration) *ReceiptCache {
	if client == nil {
		return nil
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &ReceiptCache{client: client, ttl: ttl}
}

// Get looks up a receipt.
func (c *ReceiptCache) Get(ctx context.Context, clientUUID string) (Receipt, bool, error) {
	if c == nil {
		return Receipt{}, false, nil
	}
	raw, err := c.client.Get(ctx, receiptKeyPrefix+clientUUID).Bytes()
	if errors.Is(err, redis.Nil) {
		return Receipt{}, false, nil
	}
	if err != nil {
		return Receipt{}, false, fmt.Errorf("offline: receipt get: %w", err)
	}
	var r Receipt
	if err := json.Unmarshal(raw, &r); err != nil {
		return Receipt{}, false, fmt.Errorf("offline: receipt decode: %w", err)
	}
	return r, true, nil
}

// Put stores a receipt for a CONFIRMED sale. Other statuses can still change
// and are never cached.
func (c *ReceiptCache) Put(ctx context.Context, sale sales.Sale) error {
	if c == nil || sale.Status != sales.StatusConfirmed || sale.ClientUUID == nil {
		return nil
	}
	payload, err := json.Marshal(Receipt{
		SaleID:     sale.ID,
		ClientUUID: *sale.ClientUUID,
		Folio:      sale.FolioValue(),
		Status:     sale.Status,
	})
	if err != nil {
		return err
	}
	if err := c.client.Set(ctx, receiptKeyPrefix+*sale.ClientUUID, payload, c.ttl).Err(); err != nil {
		return fmt.Errorf("offline: receipt put: %w", err)
	}
	return nil
}
