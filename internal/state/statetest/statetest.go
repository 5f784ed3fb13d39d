// Package statetest provides a behavioral suite shared by StateStore backends.
package statetest

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/stockwatch/internal/stock"
)

// Run exercises get/put semantics against store.
func Run(t *testing.T, store stock.StateStore) {
	t.Helper()
	ctx := context.Background()

	_, found, err := store.Get(ctx, "https://example.com/missing")
	require.NoError(t, err)
	require.False(t, found, "unknown identity must be absent")

	first := stock.StateRecord{
		Identity:     "https://example.com/p/1",
		Availability: stock.InStock,
		ObservedAt:   time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
	}
	require.NoError(t, store.Put(ctx, first))

	got, found, err := store.Get(ctx, first.Identity)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, first.Availability, got.Availability)
	require.True(t, first.ObservedAt.Equal(got.ObservedAt), "observed_at %v != %v", got.ObservedAt, first.ObservedAt)

	second := first
	second.Availability = stock.OutOfStock
	second.ObservedAt = first.ObservedAt.Add(time.Minute)
	require.NoError(t, store.Put(ctx, second))

	got, found, err = store.Get(ctx, first.Identity)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, stock.OutOfStock, got.Availability)
	require.True(t, second.ObservedAt.Equal(got.ObservedAt))
}

// RunConcurrent issues parallel writes to distinct identities and checks none are lost.
func RunConcurrent(t *testing.T, store stock.StateStore, n int) {
	t.Helper()
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs <- store.Put(ctx, stock.StateRecord{
				Identity:     fmt.Sprintf("target-%d", i),
				Availability: stock.InStock,
				ObservedAt:   now,
			})
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}
	for i := 0; i < n; i++ {
		_, found, err := store.Get(ctx, fmt.Sprintf("target-%d", i))
		require.NoError(t, err)
		require.True(t, found)
	}
}
