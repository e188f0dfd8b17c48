package storage

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/cockroachdb/pebble"

	"price-agent/models"
)

const pebbleKeyPrefix = "ph\x00"

// PebbleStore persists price history in an embedded PebbleDB. Each record
// lives under its own key, product\0platform\0<big-endian unix nanos>, so
// concurrent writers never touch the same row and windowed reads are a
// bounded range scan.
type PebbleStore struct {
	db *pebble.DB

	// mu makes the exists-then-set in Record atomic.
	mu sync.Mutex
}

// NewPebbleStore opens (or creates) a PebbleDB under dir.
func NewPebbleStore(dir string) (*PebbleStore, error) {
	db, err := pebble.Open(filepath.Clean(dir), &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("pebble: open %q: %w", dir, err)
	}
	return &PebbleStore{db: db}, nil
}

func seriesPrefix(productID, platform string) []byte {
	return []byte(pebbleKeyPrefix + productID + "\x00" + platform + "\x00")
}

func recordKey(prefix []byte, ts time.Time) []byte {
	k := make([]byte, len(prefix)+8)
	copy(k, prefix)
	binary.BigEndian.PutUint64(k[len(prefix):], uint64(ts.UnixNano()))
	return k
}

// prefixEnd returns the smallest key greater than every key with prefix.
func prefixEnd(prefix []byte) []byte {
	end := append([]byte(nil), prefix...)
	for i := len(end) - 1; i >= 0; i-- {
		end[i]++
		if end[i] != 0 {
			return end[:i+1]
		}
	}
	return nil
}

func (p *PebbleStore) Record(ctx context.Context, l *models.Listing) (models.PriceRecord, error) {
	if err := ctx.Err(); err != nil {
		return models.PriceRecord{}, err
	}
	if !l.Complete() {
		return models.PriceRecord{}, fmt.Errorf("pebble: refusing incomplete listing %q", l.ProductID)
	}
	rec := NewPriceRecord(l)
	val, err := json.Marshal(rec)
	if err != nil {
		return models.PriceRecord{}, fmt.Errorf("pebble: encode record: %w", err)
	}
	key := recordKey(seriesPrefix(rec.ProductID, rec.Platform), rec.Timestamp)

	p.mu.Lock()
	defer p.mu.Unlock()

	// The first write of a triple wins.
	existing, closer, err := p.db.Get(key)
	switch {
	case err == nil:
		var stored models.PriceRecord
		derr := json.Unmarshal(existing, &stored)
		closer.Close()
		if derr != nil {
			return models.PriceRecord{}, fmt.Errorf("pebble: decode record %x: %w", key, derr)
		}
		return stored, nil
	case !errors.Is(err, pebble.ErrNotFound):
		return models.PriceRecord{}, fmt.Errorf("pebble: read record: %w", err)
	}

	if err := p.db.Set(key, val, pebble.Sync); err != nil {
		return models.PriceRecord{}, fmt.Errorf("pebble: write record: %w", err)
	}
	return rec, nil
}

func (p *PebbleStore) History(ctx context.Context, productID, platform string, windowDays int) ([]models.PriceRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	prefix := seriesPrefix(productID, platform)
	lower := prefix
	if since := windowStart(windowDays); !since.IsZero() {
		lower = recordKey(prefix, since)
	}

	it, err := p.db.NewIter(&pebble.IterOptions{LowerBound: lower, UpperBound: prefixEnd(prefix)})
	if err != nil {
		return nil, fmt.Errorf("pebble: open iterator: %w", err)
	}
	defer it.Close()

	var out []models.PriceRecord
	for it.First(); it.Valid(); it.Next() {
		var rec models.PriceRecord
		if err := json.Unmarshal(it.Value(), &rec); err != nil {
			return nil, fmt.Errorf("pebble: decode record %x: %w", it.Key(), err)
		}
		out = append(out, rec)
	}
	if err := it.Error(); err != nil {
		return nil, fmt.Errorf("pebble: scan history: %w", err)
	}
	return out, nil
}

func (p *PebbleStore) Prune(ctx context.Context, olderThan time.Duration) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	cutoff := uint64(time.Now().UTC().Add(-olderThan).UnixNano())
	prefix := []byte(pebbleKeyPrefix)

	it, err := p.db.NewIter(&pebble.IterOptions{LowerBound: prefix, UpperBound: prefixEnd(prefix)})
	if err != nil {
		return 0, fmt.Errorf("pebble: open iterator: %w", err)
	}
	var stale [][]byte
	for it.First(); it.Valid(); it.Next() {
		k := it.Key()
		if len(k) < 8 {
			continue
		}
		if binary.BigEndian.Uint64(k[len(k)-8:]) < cutoff {
			stale = append(stale, append([]byte(nil), k...))
		}
	}
	iterErr := it.Error()
	_ = it.Close()
	if iterErr != nil {
		return 0, fmt.Errorf("pebble: scan for prune: %w", iterErr)
	}
	if len(stale) == 0 {
		return 0, nil
	}

	b := p.db.NewBatch()
	defer b.Close()
	for _, k := range stale {
		if err := b.Delete(k, nil); err != nil {
			return 0, fmt.Errorf("pebble: stage delete: %w", err)
		}
	}
	if err := b.Commit(pebble.Sync); err != nil {
		return 0, fmt.Errorf("pebble: commit prune: %w", err)
	}
	return len(stale), nil
}

func (p *PebbleStore) Close() error { return p.db.Close() }
