package cache

import (
	"context"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/suchimauz/quiet-hours-engine/internal/config"
	"github.com/suchimauz/quiet-hours-engine/internal/core/ports/out"
	"github.com/suchimauz/quiet-hours-engine/internal/metrics"
)

// DeliveryCache помнит MessageId последних обработанных push-сообщений,
// чтобы повторная доставка брокером не применяла снапшот дважды.
type DeliveryCache struct {
	cache  *lru.Cache[string, struct{}]
	mu     sync.RWMutex
	logger out.LoggerPort
}

func NewDeliveryCache(cfg *config.Config, logger out.LoggerPort) (*DeliveryCache, error) {
	cache, err := lru.New[string, struct{}](cfg.Cache.DedupSize)
	if err != nil {
		logger.Error("cache.init.failed", out.LogFields{
			"error": err.Error(),
			"size":  cfg.Cache.DedupSize,
		})
		return nil, err
	}

	return &DeliveryCache{
		cache:  cache,
		logger: logger.WithModule("DeliveryCache"),
	}, nil
}

func (c *DeliveryCache) Seen(ctx context.Context, deliveryID string) bool {
	// Без id дедупликация невозможна
	if deliveryID == "" {
		return false
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	if !c.cache.Contains(deliveryID) {
		return false
	}

	metrics.DuplicateDeliveriesTotal.Inc()
	c.logger.Debug("cache.delivery.duplicate", out.LogFields{
		"deliveryId": deliveryID,
	})
	return true
}

func (c *DeliveryCache) Remember(ctx context.Context, deliveryID string) {
	if deliveryID == "" {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.cache.Add(deliveryID, struct{}{})
}

func (c *DeliveryCache) Len() int {
	return c.cache.Len()
}
