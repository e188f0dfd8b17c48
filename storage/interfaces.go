package storage

import (
	"context"
	"strconv"
	"time"

	"github.com/google/uuid"

	"price-agent/models"
)

// HistoryStore is the interface any price history backend must satisfy.
// Records are append-only: Record is idempotent for an identical
// (product, platform, timestamp) triple and never rewrites an existing row.
type HistoryStore interface {
	Record(ctx context.Context, l *models.Listing) (models.PriceRecord, error)
	History(ctx context.Context, productID, platform string, windowDays int) ([]models.PriceRecord, error)
	Prune(ctx context.Context, olderThan time.Duration) (int, error)
	Close() error
}

// ListingExporter is the interface for writing listing snapshots to a flat file.
type ListingExporter interface {
	WriteListings(query string, listings []*models.Listing) error
	Close() error
}

var recordNamespace = uuid.MustParse("0b4f7b8e-6c1d-4f0e-9a52-3f1d2c7e8a90")

// NewPriceRecord derives the record for a listing. The ID is a name-based
// UUID over the identity triple so repeated writes collapse to one row.
func NewPriceRecord(l *models.Listing) models.PriceRecord {
	// Postgres keeps microseconds; every backend agrees on that precision.
	ts := l.RetrievedAt.UTC().Truncate(time.Microsecond)
	return models.PriceRecord{
		ID:            recordID(l.ProductID, l.Platform, ts),
		ProductID:     l.ProductID,
		Platform:      l.Platform,
		Price:         l.CurrentPrice,
		OriginalPrice: l.OriginalPrice,
		Rating:        l.Rating,
		Timestamp:     ts,
	}
}

func recordID(productID, platform string, ts time.Time) string {
	name := productID + "\x00" + platform + "\x00" + strconv.FormatInt(ts.UnixNano(), 10)
	return uuid.NewSHA1(recordNamespace, []byte(name)).String()
}

// windowStart returns the earliest timestamp included by a window of
// windowDays; a non-positive window includes everything.
func windowStart(windowDays int) time.Time {
	if windowDays <= 0 {
		return time.Time{}
	}
	return time.Now().UTC().AddDate(0, 0, -windowDays)
}
