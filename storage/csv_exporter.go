package storage

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"price-agent/models"
)

// CSVWriter appends listing snapshots to a CSV file.
// It is safe for concurrent use.
type CSVWriter struct {
	mu     sync.Mutex
	file   *os.File
	writer *csv.Writer
}

var csvHeader = []string{
	"query", "platform", "product_id", "title", "current_price", "original_price",
	"discount_percentage", "rating", "seller", "in_stock", "retrieved_at",
}

// NewCSVWriter opens the CSV file at the given path for appending and writes
// the header row when the file is new. Intermediate directories are created
// automatically.
func NewCSVWriter(path string) (*CSVWriter, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("csv: create output dir: %w", err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("csv: open file %q: %w", path, err)
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("csv: stat file %q: %w", path, err)
	}

	w := csv.NewWriter(f)
	if info.Size() == 0 {
		if err := w.Write(csvHeader); err != nil {
			_ = f.Close()
			return nil, fmt.Errorf("csv: write header: %w", err)
		}
		w.Flush()
	}

	return &CSVWriter{file: f, writer: w}, nil
}

// WriteListings appends one row per listing.
func (c *CSVWriter) WriteListings(query string, listings []*models.Listing) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, l := range listings {
		seller := ""
		if l.Seller != nil {
			seller = l.Seller.Name
		}
		row := []string{
			query,
			l.Platform,
			l.ProductID,
			l.Title,
			strconv.FormatFloat(l.CurrentPrice, 'f', 2, 64),
			strconv.FormatFloat(l.OriginalPrice, 'f', 2, 64),
			strconv.FormatFloat(l.DiscountPercentage, 'f', 4, 64),
			strconv.FormatFloat(l.Rating, 'f', 1, 64),
			seller,
			strconv.FormatBool(l.InStock),
			l.RetrievedAt.Format(time.RFC3339),
		}
		if err := c.writer.Write(row); err != nil {
			return fmt.Errorf("csv: write row: %w", err)
		}
	}

	c.writer.Flush()
	return c.writer.Error()
}

// Close flushes and closes the underlying file.
func (c *CSVWriter) Close() error {
	c.writer.Flush()
	return c.file.Close()
}
