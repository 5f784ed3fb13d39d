package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/stockwatch/internal/stock"
)

func TestPutUpsertsRow(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewWithPool(mock, "stock_state")
	require.NoError(t, err)

	now := time.Unix(1700000000, 0).UTC()
	rec := stock.StateRecord{Identity: "https://example.com/p", Availability: stock.InStock, ObservedAt: now}

	mock.ExpectExec("INSERT INTO stock_state").
		WithArgs(rec.Identity, "in", now).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, store.Put(context.Background(), rec))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetReturnsRecord(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewWithPool(mock, "")
	require.NoError(t, err)

	now := time.Unix(1700000000, 0).UTC()
	mock.ExpectQuery("SELECT availability, observed_at FROM stock_state").
		WithArgs("sku-1").
		WillReturnRows(mock.NewRows([]string{"availability", "observed_at"}).AddRow("out", now))

	got, found, err := store.Get(context.Background(), "sku-1")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, stock.OutOfStock, got.Availability)
	require.True(t, now.Equal(got.ObservedAt))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetMissingRow(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewWithPool(mock, "")
	require.NoError(t, err)

	mock.ExpectQuery("SELECT availability, observed_at FROM stock_state").
		WithArgs("sku-2").
		WillReturnError(pgx.ErrNoRows)

	_, found, err := store.Get(context.Background(), "sku-2")
	require.NoError(t, err)
	require.False(t, found)
}

func TestErrorsWrapStoreUnavailable(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewWithPool(mock, "")
	require.NoError(t, err)

	mock.ExpectExec("INSERT INTO stock_state").WillReturnError(errors.New("connection reset"))
	err = store.Put(context.Background(), stock.StateRecord{Identity: "x", Availability: stock.InStock})
	require.ErrorIs(t, err, stock.ErrStoreUnavailable)

	mock.ExpectQuery("SELECT availability").WillReturnError(errors.New("locked"))
	_, _, err = store.Get(context.Background(), "x")
	require.ErrorIs(t, err, stock.ErrStoreUnavailable)
}

func TestEnsureSchema(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewWithPool(mock, "watch_state")
	require.NoError(t, err)

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS watch_state").
		WillReturnResult(pgxmock.NewResult("CREATE TABLE", 0))
	require.NoError(t, store.EnsureSchema(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestNewWithPoolValidation(t *testing.T) {
	t.Parallel()

	_, err := NewWithPool(nil, "")
	require.Error(t, err)

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()
	_, err = NewWithPool(mock, "drop table;")
	require.ErrorContains(t, err, "invalid table name")

	_, err = New(context.Background(), Config{})
	require.ErrorContains(t, err, "state.dsn")
}
