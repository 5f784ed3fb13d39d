package checker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/stockwatch/internal/state/memory"
	"github.com/JakeFAU/stockwatch/internal/stock"
)

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

type step struct {
	result stock.FetchResult
	err    error
}

type scriptedFetcher struct {
	mu    sync.Mutex
	steps []step
	calls int
}

func (f *scriptedFetcher) Fetch(_ context.Context, target stock.Target) (stock.FetchResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	idx := f.calls
	f.calls++
	if idx >= len(f.steps) {
		idx = len(f.steps) - 1
	}
	s := f.steps[idx]
	if s.err != nil {
		return stock.FetchResult{}, s.err
	}
	res := s.result
	res.URL = target.URL
	return res, nil
}

type failingPutStore struct {
	*memory.Store
}

func (failingPutStore) Put(context.Context, stock.StateRecord) error {
	return stock.ErrStoreUnavailable
}

type failingGetStore struct {
	*memory.Store
}

func (failingGetStore) Get(context.Context, string) (stock.StateRecord, bool, error) {
	return stock.StateRecord{}, false, stock.ErrStoreUnavailable
}

var (
	testNow    = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	testTarget = stock.Target{ID: "jacket", URL: "https://shop.test/jacket", Kind: stock.RenderedDOM}
)

func verdictExtractor(results ...stock.Verdict) ExtractorFactory {
	var mu sync.Mutex
	idx := 0
	return func(stock.Target) stock.Extractor {
		return stock.ExtractorFunc(func(stock.FetchResult) stock.Verdict {
			mu.Lock()
			defer mu.Unlock()
			v := results[min(idx, len(results)-1)]
			idx++
			return v
		})
	}
}

func newTestChecker(t *testing.T, f stock.Fetcher, store stock.StateStore, ext ExtractorFactory) (*Checker, *[]time.Duration) {
	t.Helper()
	c := New(f, store, fixedClock{now: testNow}, ext, Config{MaxAttempts: 3, BackoffUnit: time.Second}, nil)
	var waits []time.Duration
	c.sleep = func(_ context.Context, d time.Duration) error {
		waits = append(waits, d)
		return nil
	}
	return c, &waits
}

func okStep() step {
	return step{result: stock.FetchResult{StatusCode: 200, Kind: stock.RenderedDOM, Body: []byte("<html></html>")}}
}

func TestCheckFirstSeenInStockTransitions(t *testing.T) {
	t.Parallel()

	store := memory.New()
	c, _ := newTestChecker(t, &scriptedFetcher{steps: []step{okStep()}}, store, verdictExtractor(stock.VerdictInStock))

	out := c.Check(context.Background(), testTarget)
	require.Equal(t, stock.OutcomeTransitioned, out.Kind)
	require.False(t, out.Known)
	require.Equal(t, stock.OutOfStock, out.Previous.Availability)
	require.True(t, out.Restocked())
	require.Equal(t, 1, out.Attempts)

	rec, ok, err := store.Get(context.Background(), "jacket")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, stock.InStock, rec.Availability)
	require.Equal(t, testNow, rec.ObservedAt)
}

func TestCheckFirstSeenOutOfStockIsUnchangedButPersisted(t *testing.T) {
	t.Parallel()

	store := memory.New()
	c, _ := newTestChecker(t, &scriptedFetcher{steps: []step{okStep()}}, store, verdictExtractor(stock.VerdictOutOfStock))

	out := c.Check(context.Background(), testTarget)
	require.Equal(t, stock.OutcomeUnchanged, out.Kind)
	require.False(t, out.Restocked())

	rec, ok, err := store.Get(context.Background(), "jacket")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, stock.OutOfStock, rec.Availability)
}

func TestCheckIsIdempotentForSteadyState(t *testing.T) {
	t.Parallel()

	store := memory.New()
	c, _ := newTestChecker(t, &scriptedFetcher{steps: []step{okStep()}}, store, verdictExtractor(stock.VerdictInStock))

	first := c.Check(context.Background(), testTarget)
	second := c.Check(context.Background(), testTarget)
	require.Equal(t, stock.OutcomeTransitioned, first.Kind)
	require.Equal(t, stock.OutcomeUnchanged, second.Kind)
	require.True(t, second.Known)
	require.False(t, second.Restocked())
}

func TestCheckTransitionBackToOut(t *testing.T) {
	t.Parallel()

	store := memory.New()
	require.NoError(t, store.Put(context.Background(), stock.StateRecord{Identity: "jacket", Availability: stock.InStock, ObservedAt: testNow.Add(-time.Minute)}))
	c, _ := newTestChecker(t, &scriptedFetcher{steps: []step{okStep()}}, store, verdictExtractor(stock.VerdictOutOfStock))

	out := c.Check(context.Background(), testTarget)
	require.Equal(t, stock.OutcomeTransitioned, out.Kind)
	require.False(t, out.Restocked())
}

func TestCheckRetriesTimeoutsUntilExhausted(t *testing.T) {
	t.Parallel()

	timeout := &stock.FetchError{Kind: stock.FetchTimeout, URL: testTarget.URL, Err: context.DeadlineExceeded}
	fetcher := &scriptedFetcher{steps: []step{{err: timeout}}}
	store := memory.New()
	c, waits := newTestChecker(t, fetcher, store, verdictExtractor(stock.VerdictInStock))

	out := c.Check(context.Background(), testTarget)
	require.Equal(t, stock.OutcomeFailed, out.Kind)
	require.Equal(t, 3, out.Attempts)
	require.Equal(t, 3, fetcher.calls)
	require.Equal(t, []time.Duration{time.Second, 2 * time.Second}, *waits)
	require.Equal(t, "timeout", stock.ErrorKind(out.Err))

	_, ok, err := store.Get(context.Background(), "jacket")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestCheckDoesNotRetryClientErrors(t *testing.T) {
	t.Parallel()

	notFound := &stock.FetchError{Kind: stock.FetchUpstreamHTTP, Status: 404, URL: testTarget.URL}
	fetcher := &scriptedFetcher{steps: []step{{err: notFound}}}
	c, waits := newTestChecker(t, fetcher, memory.New(), verdictExtractor(stock.VerdictInStock))

	out := c.Check(context.Background(), testTarget)
	require.Equal(t, stock.OutcomeFailed, out.Kind)
	require.Equal(t, 1, out.Attempts)
	require.Empty(t, *waits)
}

func TestCheckRetriesIndeterminateThenSucceeds(t *testing.T) {
	t.Parallel()

	fetcher := &scriptedFetcher{steps: []step{okStep()}}
	store := memory.New()
	c, waits := newTestChecker(t, fetcher, store, verdictExtractor(stock.Indeterminate, stock.VerdictInStock))

	out := c.Check(context.Background(), testTarget)
	require.Equal(t, stock.OutcomeTransitioned, out.Kind)
	require.Equal(t, 2, out.Attempts)
	require.Equal(t, []time.Duration{time.Second}, *waits)
}

func TestCheckIndeterminateExhaustion(t *testing.T) {
	t.Parallel()

	c, _ := newTestChecker(t, &scriptedFetcher{steps: []step{okStep()}}, memory.New(), verdictExtractor(stock.Indeterminate))

	out := c.Check(context.Background(), testTarget)
	require.Equal(t, stock.OutcomeFailed, out.Kind)
	require.Equal(t, 3, out.Attempts)
	require.ErrorIs(t, out.Err, stock.ErrIndeterminate)
}

func TestCheckRecoversAfterServerError(t *testing.T) {
	t.Parallel()

	fetcher := &scriptedFetcher{steps: []step{
		{err: &stock.FetchError{Kind: stock.FetchUpstreamHTTP, Status: 503}},
		okStep(),
	}}
	c, _ := newTestChecker(t, fetcher, memory.New(), verdictExtractor(stock.VerdictOutOfStock))

	out := c.Check(context.Background(), testTarget)
	require.Equal(t, stock.OutcomeUnchanged, out.Kind)
	require.Equal(t, 2, out.Attempts)
}

func TestCheckStoreWriteFailure(t *testing.T) {
	t.Parallel()

	store := failingPutStore{memory.New()}
	c, _ := newTestChecker(t, &scriptedFetcher{steps: []step{okStep()}}, store, verdictExtractor(stock.VerdictInStock))

	out := c.Check(context.Background(), testTarget)
	require.Equal(t, stock.OutcomeFailed, out.Kind)
	require.ErrorIs(t, out.Err, stock.ErrStoreUnavailable)
	require.False(t, out.Restocked())
}

func TestCheckStoreReadFailureSkipsFetch(t *testing.T) {
	t.Parallel()

	fetcher := &scriptedFetcher{steps: []step{okStep()}}
	c, _ := newTestChecker(t, fetcher, failingGetStore{memory.New()}, verdictExtractor(stock.VerdictInStock))

	out := c.Check(context.Background(), testTarget)
	require.Equal(t, stock.OutcomeFailed, out.Kind)
	require.ErrorIs(t, out.Err, stock.ErrStoreUnavailable)
	require.Zero(t, fetcher.calls)
}

func TestCheckStopsOnCancellation(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	fetcher := &scriptedFetcher{steps: []step{{err: &stock.FetchError{Kind: stock.FetchNetwork, Err: errors.New("reset")}}}}
	c := New(fetcher, memory.New(), fixedClock{now: testNow}, verdictExtractor(stock.VerdictInStock), Config{MaxAttempts: 3, BackoffUnit: time.Hour}, nil)
	cancel()

	out := c.Check(ctx, testTarget)
	require.Equal(t, stock.OutcomeFailed, out.Kind)
	require.Equal(t, 1, out.Attempts)
	require.ErrorIs(t, out.Err, context.Canceled)
}

func TestLinearRetryPolicy(t *testing.T) {
	t.Parallel()

	p := NewLinearRetryPolicy(0, 500*time.Millisecond)
	require.Equal(t, 3, p.MaxAttempts)
	require.Equal(t, 500*time.Millisecond, p.Backoff(1))
	require.Equal(t, time.Second, p.Backoff(2))
	require.True(t, p.ShouldRetry(errors.New("boom"), 1))
	require.False(t, p.ShouldRetry(errors.New("boom"), 3))
	require.False(t, p.ShouldRetry(&stock.FetchError{Kind: stock.FetchUpstreamHTTP, Status: 410}, 1))
	require.True(t, p.ShouldRetry(&stock.FetchError{Kind: stock.FetchUpstreamHTTP, Status: 429}, 1))
	require.False(t, p.ShouldRetry(context.Canceled, 1))
}
