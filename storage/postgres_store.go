package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"price-agent/models"
)

// PostgresStore persists price history to PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore opens a connection to PostgreSQL, runs schema migrations,
// and returns a ready-to-use PostgresStore.
func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: open: %w", err)
	}

	for i := 0; i < 10; i++ {
		if err = db.PingContext(ctx); err == nil {
			break
		}
		select {
		case <-ctx.Done():
			_ = db.Close()
			return nil, fmt.Errorf("postgres: ping: %w", ctx.Err())
		case <-time.After(2 * time.Second):
		}
	}
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("postgres: ping failed after retries: %w", err)
	}

	ps := &PostgresStore{db: db}
	if err := ps.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("postgres: migrate: %w", err)
	}

	return ps, nil
}

func (ps *PostgresStore) migrate(ctx context.Context) error {
	_, err := ps.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS price_history (
			id             UUID          PRIMARY KEY,
			product_id     VARCHAR(128)  NOT NULL,
			platform       VARCHAR(50)   NOT NULL,
			price          NUMERIC(12,2) NOT NULL,
			original_price NUMERIC(12,2) NOT NULL DEFAULT 0,
			rating         NUMERIC(4,2)  NOT NULL DEFAULT 0,
			recorded_at    TIMESTAMPTZ   NOT NULL,
			UNIQUE (product_id, platform, recorded_at)
		);

		CREATE INDEX IF NOT EXISTS idx_price_history_series
			ON price_history(product_id, platform, recorded_at);
		CREATE INDEX IF NOT EXISTS idx_price_history_recorded
			ON price_history(recorded_at);
	`)
	return err
}

// Record inserts one row per snapshot; a repeat of the same triple is a no-op.
func (ps *PostgresStore) Record(ctx context.Context, l *models.Listing) (models.PriceRecord, error) {
	if !l.Complete() {
		return models.PriceRecord{}, fmt.Errorf("postgres: refusing incomplete listing %q", l.ProductID)
	}
	rec := NewPriceRecord(l)
	_, err := ps.db.ExecContext(ctx, `
		INSERT INTO price_history (id, product_id, platform, price, original_price, rating, recorded_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (product_id, platform, recorded_at) DO NOTHING
	`, rec.ID, rec.ProductID, rec.Platform, rec.Price, rec.OriginalPrice, rec.Rating, rec.Timestamp)
	if err != nil {
		return models.PriceRecord{}, fmt.Errorf("postgres: insert record: %w", err)
	}
	return rec, nil
}

// History returns the records of one product on one platform, oldest first.
func (ps *PostgresStore) History(ctx context.Context, productID, platform string, windowDays int) ([]models.PriceRecord, error) {
	rows, err := ps.db.QueryContext(ctx, `
		SELECT id, product_id, platform, price, original_price, rating, recorded_at
		FROM price_history
		WHERE product_id = $1 AND platform = $2 AND recorded_at >= $3
		ORDER BY recorded_at ASC
	`, productID, platform, windowStart(windowDays))
	if err != nil {
		return nil, fmt.Errorf("postgres: query history: %w", err)
	}
	defer rows.Close()

	var records []models.PriceRecord
	for rows.Next() {
		var r models.PriceRecord
		if err := rows.Scan(
			&r.ID, &r.ProductID, &r.Platform, &r.Price, &r.OriginalPrice, &r.Rating, &r.Timestamp,
		); err != nil {
			return nil, fmt.Errorf("postgres: scan row: %w", err)
		}
		r.Timestamp = r.Timestamp.UTC()
		records = append(records, r)
	}
	return records, rows.Err()
}

// Prune deletes records older than the retention period.
func (ps *PostgresStore) Prune(ctx context.Context, olderThan time.Duration) (int, error) {
	res, err := ps.db.ExecContext(ctx,
		"DELETE FROM price_history WHERE recorded_at < $1",
		time.Now().UTC().Add(-olderThan))
	if err != nil {
		return 0, fmt.Errorf("postgres: prune: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("postgres: prune rows affected: %w", err)
	}
	return int(n), nil
}

func (ps *PostgresStore) Close() error {
	return ps.db.Close()
}
