package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/irfndi/celebrum-quant/internal/quant"
)

// ErrSeriesNotFound is returned when a ticker has no rows in the window.
var ErrSeriesNotFound = errors.New("price series not found")

// Querier defines the database operations needed by the series repository.
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Begin(ctx context.Context) (pgx.Tx, error)
}

const (
	createPriceHistorySQL = `CREATE TABLE IF NOT EXISTS price_history (
	ticker      TEXT NOT NULL,
	observed_on DATE NOT NULL,
	close       DOUBLE PRECISION NOT NULL CHECK (close > 0),
	PRIMARY KEY (ticker, observed_on)
)`

	selectSeriesSQL = `SELECT observed_on, close FROM price_history
WHERE ticker = $1 AND observed_on >= $2
ORDER BY observed_on ASC`

	upsertObservationSQL = `INSERT INTO price_history (ticker, observed_on, close)
VALUES ($1, $2, $3)
ON CONFLICT (ticker, observed_on) DO UPDATE SET close = EXCLUDED.close`
)

// SeriesRepository reads and writes daily closes.
type SeriesRepository struct {
	db Querier
}

// NewSeriesRepository creates a repository over the postgres pool.
func NewSeriesRepository(db *PostgresDB) *SeriesRepository {
	var querier Querier
	if db != nil && db.Pool != nil {
		querier = db.Pool
	}
	return &SeriesRepository{db: querier}
}

// NewSeriesRepositoryWithQuerier creates a repository with a custom querier (for tests and tracing).
func NewSeriesRepositoryWithQuerier(db Querier) *SeriesRepository {
	return &SeriesRepository{db: db}
}

// EnsureSchema creates the price_history table when missing.
func (r *SeriesRepository) EnsureSchema(ctx context.Context) error {
	if r.db == nil {
		return fmt.Errorf("series database is not available")
	}
	if _, err := r.db.Exec(ctx, createPriceHistorySQL); err != nil {
		return fmt.Errorf("failed to create price_history: %w", err)
	}
	return nil
}

// LoadSeries returns the ticker's closes observed on or after since, oldest first.
func (r *SeriesRepository) LoadSeries(ctx context.Context, ticker string, since time.Time) (quant.PriceSeries, error) {
	if r.db == nil {
		return quant.PriceSeries{}, fmt.Errorf("series database is not available")
	}

	rows, err := r.db.Query(ctx, selectSeriesSQL, ticker, since)
	if err != nil {
		return quant.PriceSeries{}, fmt.Errorf("failed to query %s: %w", ticker, err)
	}
	defer rows.Close()

	var points []quant.Observation
	for rows.Next() {
		var (
			observedOn time.Time
			closePrice float64
		)
		if err := rows.Scan(&observedOn, &closePrice); err != nil {
			return quant.PriceSeries{}, fmt.Errorf("failed to scan %s: %w", ticker, err)
		}
		points = append(points, quant.Observation{Date: observedOn, Price: closePrice})
	}
	if err := rows.Err(); err != nil {
		return quant.PriceSeries{}, fmt.Errorf("failed to read %s: %w", ticker, err)
	}

	if len(points) == 0 {
		return quant.PriceSeries{}, fmt.Errorf("%s: %w", ticker, ErrSeriesNotFound)
	}
	return quant.NewPriceSeries(ticker, points)
}

// SaveSeries upserts every observation of s in one transaction and returns
// the number of rows written.
func (r *SeriesRepository) SaveSeries(ctx context.Context, s quant.PriceSeries) (int, error) {
	if r.db == nil {
		return 0, fmt.Errorf("series database is not available")
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	dates := s.Dates()
	prices := s.Prices()
	for i := range prices {
		if _, err := tx.Exec(ctx, upsertObservationSQL, s.Ticker(), dates[i], prices[i]); err != nil {
			return 0, fmt.Errorf("failed to upsert %s at %s: %w", s.Ticker(), dates[i].Format("2006-01-02"), err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("failed to commit %s: %w", s.Ticker(), err)
	}
	return len(prices), nil
}
