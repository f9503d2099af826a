package database

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/irfndi/celebrum-quant/internal/quant"
)

var (
	selectSeries = regexp.QuoteMeta("SELECT observed_on, close FROM price_history")
	upsertSeries = regexp.QuoteMeta("INSERT INTO price_history")
	day0         = time.Date(2024, time.May, 1, 0, 0, 0, 0, time.UTC)
)

func TestSeriesRepository_LoadSeries(t *testing.T) {
	mockPool, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mockPool.Close()

	repo := NewSeriesRepositoryWithQuerier(mockPool)
	since := day0.AddDate(0, 0, -180)

	mockPool.ExpectQuery(selectSeries).
		WithArgs("BTC-USD", since).
		WillReturnRows(pgxmock.NewRows([]string{"observed_on", "close"}).
			AddRow(day0, 60000.0).
			AddRow(day0.AddDate(0, 0, 1), 61000.5).
			AddRow(day0.AddDate(0, 0, 2), 60500.25))

	series, err := repo.LoadSeries(context.Background(), "BTC-USD", since)
	require.NoError(t, err)
	assert.Equal(t, "BTC-USD", series.Ticker())
	assert.Equal(t, []float64{60000, 61000.5, 60500.25}, series.Prices())
	assert.True(t, series.Dates()[2].Equal(day0.AddDate(0, 0, 2)))
	assert.NoError(t, mockPool.ExpectationsWereMet())
}

func TestSeriesRepository_LoadSeriesEmpty(t *testing.T) {
	mockPool, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mockPool.Close()

	mockPool.ExpectQuery(selectSeries).
		WithArgs("^TNX", day0).
		WillReturnRows(pgxmock.NewRows([]string{"observed_on", "close"}))

	_, err = NewSeriesRepositoryWithQuerier(mockPool).LoadSeries(context.Background(), "^TNX", day0)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrSeriesNotFound))
	assert.Contains(t, err.Error(), "^TNX")
}

func TestSeriesRepository_LoadSeriesQueryError(t *testing.T) {
	mockPool, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mockPool.Close()

	mockPool.ExpectQuery(selectSeries).
		WithArgs("^GSPC", day0).
		WillReturnError(errors.New("connection reset"))

	_, err = NewSeriesRepositoryWithQuerier(mockPool).LoadSeries(context.Background(), "^GSPC", day0)
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrSeriesNotFound))
	assert.Contains(t, err.Error(), "connection reset")
}

func TestSeriesRepository_NoDatabase(t *testing.T) {
	repo := NewSeriesRepository(nil)
	_, err := repo.LoadSeries(context.Background(), "BTC-USD", day0)
	assert.Error(t, err)
	assert.Error(t, repo.EnsureSchema(context.Background()))
}

func TestSeriesRepository_EnsureSchema(t *testing.T) {
	mockPool, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mockPool.Close()

	mockPool.ExpectExec(regexp.QuoteMeta("CREATE TABLE IF NOT EXISTS price_history")).
		WillReturnResult(pgxmock.NewResult("CREATE TABLE", 0))

	require.NoError(t, NewSeriesRepositoryWithQuerier(mockPool).EnsureSchema(context.Background()))
	assert.NoError(t, mockPool.ExpectationsWereMet())
}

func TestSeriesRepository_SaveSeries(t *testing.T) {
	mockPool, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mockPool.Close()

	series, err := quant.NewPriceSeries("ETH-USD", []quant.Observation{
		{Date: day0, Price: 3000},
		{Date: day0.AddDate(0, 0, 1), Price: 3100},
	})
	require.NoError(t, err)

	mockPool.ExpectBegin()
	mockPool.ExpectExec(upsertSeries).WithArgs("ETH-USD", day0, 3000.0).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mockPool.ExpectExec(upsertSeries).WithArgs("ETH-USD", day0.AddDate(0, 0, 1), 3100.0).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mockPool.ExpectCommit()

	n, err := NewSeriesRepositoryWithQuerier(mockPool).SaveSeries(context.Background(), series)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.NoError(t, mockPool.ExpectationsWereMet())
}

func TestSeriesRepository_SaveSeriesRollsBack(t *testing.T) {
	mockPool, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mockPool.Close()

	series, err := quant.NewPriceSeries("ETH-USD", []quant.Observation{{Date: day0, Price: 3000}})
	require.NoError(t, err)

	mockPool.ExpectBegin()
	mockPool.ExpectExec(upsertSeries).WithArgs("ETH-USD", day0, 3000.0).
		WillReturnError(errors.New("disk full"))
	mockPool.ExpectRollback()

	_, err = NewSeriesRepositoryWithQuerier(mockPool).SaveSeries(context.Background(), series)
	assert.ErrorContains(t, err, "disk full")
	assert.NoError(t, mockPool.ExpectationsWereMet())
}

func TestTracedQuerier(t *testing.T) {
	mockPool, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mockPool.Close()

	recorder := tracetest.NewSpanRecorder()
	tracer := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder)).Tracer("test")
	repo := NewSeriesRepositoryWithQuerier(NewTracedQuerier(mockPool, tracer))

	mockPool.ExpectQuery(selectSeries).
		WithArgs("BTC-USD", day0).
		WillReturnRows(pgxmock.NewRows([]string{"observed_on", "close"}).AddRow(day0, 1.0))
	mockPool.ExpectQuery(selectSeries).
		WithArgs("MISSING", day0).
		WillReturnError(errors.New("relation does not exist"))

	_, err = repo.LoadSeries(context.Background(), "BTC-USD", day0)
	require.NoError(t, err)
	_, err = repo.LoadSeries(context.Background(), "MISSING", day0)
	require.Error(t, err)

	spans := recorder.Ended()
	require.Len(t, spans, 2)
	assert.Equal(t, "db.query", spans[0].Name())
	assert.Equal(t, "Unset", spans[0].Status().Code.String())
	assert.Equal(t, "Error", spans[1].Status().Code.String())
}
