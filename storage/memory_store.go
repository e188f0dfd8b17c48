package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"price-agent/models"
)

// MemoryStore keeps price history in process memory. It is safe for
// concurrent use and backs tests and the "memory" backend.
type MemoryStore struct {
	mu      sync.RWMutex
	byID    map[string]struct{}
	records map[string][]models.PriceRecord // product\x00platform -> records
	closed  bool
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byID:    make(map[string]struct{}),
		records: make(map[string][]models.PriceRecord),
	}
}

func seriesKey(productID, platform string) string {
	return productID + "\x00" + platform
}

func (m *MemoryStore) Record(ctx context.Context, l *models.Listing) (models.PriceRecord, error) {
	if err := ctx.Err(); err != nil {
		return models.PriceRecord{}, err
	}
	if !l.Complete() {
		return models.PriceRecord{}, fmt.Errorf("memory: refusing incomplete listing %q", l.ProductID)
	}
	rec := NewPriceRecord(l)

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return models.PriceRecord{}, fmt.Errorf("memory: store closed")
	}
	if _, dup := m.byID[rec.ID]; dup {
		return rec, nil
	}
	m.byID[rec.ID] = struct{}{}
	key := seriesKey(rec.ProductID, rec.Platform)
	m.records[key] = append(m.records[key], rec)
	return rec, nil
}

func (m *MemoryStore) History(ctx context.Context, productID, platform string, windowDays int) ([]models.PriceRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	since := windowStart(windowDays)

	m.mu.RLock()
	series := m.records[seriesKey(productID, platform)]
	out := make([]models.PriceRecord, 0, len(series))
	for _, r := range series {
		if !r.Timestamp.Before(since) {
			out = append(out, r)
		}
	}
	m.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out, nil
}

func (m *MemoryStore) Prune(ctx context.Context, olderThan time.Duration) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	cutoff := time.Now().UTC().Add(-olderThan)

	m.mu.Lock()
	defer m.mu.Unlock()
	removed := 0
	for key, series := range m.records {
		kept := series[:0]
		for _, r := range series {
			if r.Timestamp.Before(cutoff) {
				delete(m.byID, r.ID)
				removed++
				continue
			}
			kept = append(kept, r)
		}
		m.records[key] = kept
	}
	return removed, nil
}

func (m *MemoryStore) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	return nil
}
