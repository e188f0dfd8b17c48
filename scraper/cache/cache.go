package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"price-agent/metrics"
	"price-agent/models"
	"price-agent/utils"
)

const keyPrefix = "priceagent:listings:"

// Source is the provider being cached.
type Source interface {
	Platform() string
	Fetch(ctx context.Context, query string) ([]*models.Listing, error)
}

// Provider is a read-through cache in front of another provider. Results,
// including empty ones, are stored for the TTL; errors are never cached.
// Redis faults are logged and the inner provider answers instead.
type Provider struct {
	inner   Source
	rdb     *redis.Client
	ttl     time.Duration
	metrics *metrics.Registry
	logger  *utils.Logger
}

func New(inner Source, rdb *redis.Client, ttl time.Duration, reg *metrics.Registry, logger *utils.Logger) *Provider {
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &Provider{inner: inner, rdb: rdb, ttl: ttl, metrics: reg, logger: logger}
}

func (p *Provider) Platform() string { return p.inner.Platform() }

func (p *Provider) Fetch(ctx context.Context, query string) ([]*models.Listing, error) {
	key := Key(p.inner.Platform(), query)

	payload, err := p.rdb.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var listings []*models.Listing
		jerr := json.Unmarshal(payload, &listings)
		if jerr == nil {
			p.metrics.ObserveCache(p.Platform(), true)
			p.logger.Debug("[cache] hit %s (%d listings)", key, len(listings))
			return listings, nil
		}
		p.logger.Warn("[cache] corrupt entry %s: %v", key, jerr)
	case errors.Is(err, redis.Nil):
	default:
		p.logger.Warn("[cache] redis get %s: %v", key, err)
	}
	p.metrics.ObserveCache(p.Platform(), false)

	listings, err := p.inner.Fetch(ctx, query)
	if err != nil {
		return nil, err
	}

	if listings == nil {
		listings = []*models.Listing{}
	}
	data, err := json.Marshal(listings)
	if err != nil {
		p.logger.Warn("[cache] encode %s: %v", key, err)
		return listings, nil
	}
	if err := p.rdb.Set(ctx, key, data, p.ttl).Err(); err != nil {
		p.logger.Warn("[cache] redis set %s: %v", key, err)
	}
	return listings, nil
}

// Key derives the cache key for a platform and query. Queries that differ
// only in case or spacing share a key.
func Key(platform, query string) string {
	norm := strings.ToLower(strings.Join(strings.Fields(query), " "))
	sum := sha256.Sum256([]byte(norm))
	return fmt.Sprintf("%s%s:%s", keyPrefix, platform, hex.EncodeToString(sum[:]))
}
