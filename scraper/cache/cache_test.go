package cache

import (
	"context"
	"errors"
	"io"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"price-agent/metrics"
	"price-agent/models"
	"price-agent/utils"
)

type countingSource struct {
	calls    atomic.Int32
	listings []*models.Listing
	err      error
}

func (c *countingSource) Platform() string { return "amazon" }

func (c *countingSource) Fetch(context.Context, string) ([]*models.Listing, error) {
	c.calls.Add(1)
	return c.listings, c.err
}

func newMiniRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	s, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: s.Addr()})
	t.Cleanup(func() {
		_ = rdb.Close()
		s.Close()
	})
	return s, rdb
}

func testLogger() *utils.Logger { return utils.NewLoggerTo(io.Discard, utils.LogOptions{}) }

func TestCacheServesSecondFetchFromRedis(t *testing.T) {
	_, rdb := newMiniRedis(t)
	src := &countingSource{listings: []*models.Listing{models.NewListing("amazon", "B01", "Phone", 999, 1299)}}
	p := New(src, rdb, time.Minute, metrics.NewRegistry(), testLogger())

	first, err := p.Fetch(context.Background(), "Phone")
	if err != nil {
		t.Fatalf("first fetch: %v", err)
	}
	second, err := p.Fetch(context.Background(), "  phone ")
	if err != nil {
		t.Fatalf("second fetch: %v", err)
	}

	if got := src.calls.Load(); got != 1 {
		t.Errorf("inner calls: got %d, want 1", got)
	}
	if len(second) != 1 || second[0].ProductID != first[0].ProductID || second[0].CurrentPrice != 999 {
		t.Errorf("cached listing mismatch: %+v", second)
	}
	if second[0].DiscountPercentage != first[0].DiscountPercentage {
		t.Errorf("discount lost in cache: got %v, want %v", second[0].DiscountPercentage, first[0].DiscountPercentage)
	}
}

func TestCacheAppliesTTL(t *testing.T) {
	s, rdb := newMiniRedis(t)
	src := &countingSource{}
	p := New(src, rdb, 10*time.Minute, nil, testLogger())

	if _, err := p.Fetch(context.Background(), "kettle"); err != nil {
		t.Fatalf("fetch: %v", err)
	}
	key := Key("amazon", "kettle")
	if !s.Exists(key) {
		t.Fatalf("empty result was not cached under %s", key)
	}
	if ttl := s.TTL(key); ttl != 10*time.Minute {
		t.Errorf("ttl: got %v, want 10m", ttl)
	}

	s.FastForward(11 * time.Minute)
	if _, err := p.Fetch(context.Background(), "kettle"); err != nil {
		t.Fatalf("fetch after expiry: %v", err)
	}
	if got := src.calls.Load(); got != 2 {
		t.Errorf("inner calls after expiry: got %d, want 2", got)
	}
}

func TestCacheDoesNotStoreErrors(t *testing.T) {
	s, rdb := newMiniRedis(t)
	src := &countingSource{err: errors.New("blocked")}
	p := New(src, rdb, time.Minute, nil, testLogger())

	if _, err := p.Fetch(context.Background(), "tv"); err == nil {
		t.Fatal("expected inner error")
	}
	if s.Exists(Key("amazon", "tv")) {
		t.Error("error result must not be cached")
	}
}

func TestCacheFallsThroughWhenRedisIsDown(t *testing.T) {
	s, rdb := newMiniRedis(t)
	s.Close()
	src := &countingSource{listings: []*models.Listing{models.NewListing("amazon", "B02", "Mixer", 2500, 0)}}
	p := New(src, rdb, time.Minute, nil, testLogger())

	got, err := p.Fetch(context.Background(), "mixer")
	if err != nil {
		t.Fatalf("fetch with redis down: %v", err)
	}
	if len(got) != 1 || got[0].ProductID != "B02" {
		t.Errorf("expected inner result, got %+v", got)
	}
}

func TestKeyNormalisesQuery(t *testing.T) {
	if Key("amazon", "Wireless  Mouse") != Key("amazon", "wireless mouse") {
		t.Error("keys differ for equivalent queries")
	}
	if Key("amazon", "mouse") == Key("flipkart", "mouse") {
		t.Error("keys collide across platforms")
	}
}
