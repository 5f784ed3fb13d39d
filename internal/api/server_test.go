package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/stockwatch/internal/state/memory"
	"github.com/JakeFAU/stockwatch/internal/stock"
)

type fakeClock struct{ now time.Time }

func (c fakeClock) Now() time.Time { return c.now }

type fakeReadiness struct {
	last  time.Time
	fresh time.Duration
}

func (f fakeReadiness) Ready(now time.Time) bool  { return now.Sub(f.last) <= f.fresh }
func (f fakeReadiness) LastHeartbeat() time.Time { return f.last }

type brokenStore struct{ *memory.Store }

func (brokenStore) Get(context.Context, string) (stock.StateRecord, bool, error) {
	return stock.StateRecord{}, false, stock.ErrStoreUnavailable
}

var now = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func newTestServer(t *testing.T, ready fakeReadiness, store stock.StateStore) *Server {
	t.Helper()
	targets := []stock.Target{
		{ID: "jacket", Name: "Rain Jacket", URL: "https://shop.test/jacket"},
		{URL: "https://shop.test/boots"},
	}
	return NewServer(ready, store, targets, fakeClock{now: now}, nil)
}

func serve(s *Server, method, path string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(method, path, nil))
	return rec
}

func TestHealthzGetAndHead(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, fakeReadiness{}, memory.New())

	rec := serve(s, http.MethodGet, "/healthz")
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
	require.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	rec = serve(s, http.MethodHead, "/healthz")
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestReadyzReflectsHeartbeat(t *testing.T) {
	t.Parallel()

	fresh := newTestServer(t, fakeReadiness{last: now.Add(-time.Minute), fresh: 2 * time.Minute}, memory.New())
	rec := serve(fresh, http.MethodGet, "/readyz")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"ready"`)

	stale := newTestServer(t, fakeReadiness{last: now.Add(-5 * time.Minute), fresh: 2 * time.Minute}, memory.New())
	rec = serve(stale, http.MethodGet, "/readyz")
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec = serve(stale, http.MethodHead, "/readyz")
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)

	noScheduler := NewServer(nil, nil, nil, fakeClock{now: now}, nil)
	require.Equal(t, http.StatusServiceUnavailable, serve(noScheduler, http.MethodGet, "/readyz").Code)
}

func TestMetricsEndpoint(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, fakeReadiness{}, memory.New())
	serve(s, http.MethodGet, "/healthz")

	rec := serve(s, http.MethodGet, "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "http_requests_total")
}

func TestTargetsEndpoints(t *testing.T) {
	t.Parallel()

	store := memory.New()
	require.NoError(t, store.Put(context.Background(), stock.StateRecord{Identity: "jacket", Availability: stock.InStock, ObservedAt: now}))
	s := newTestServer(t, fakeReadiness{}, store)

	rec := serve(s, http.MethodGet, "/v1/targets")
	require.Equal(t, http.StatusOK, rec.Code)
	var list struct {
		Targets []targetStatus `json:"targets"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list.Targets, 2)
	require.Equal(t, "in", list.Targets[0].Availability)
	require.Empty(t, list.Targets[1].Availability)
	require.Equal(t, "https://shop.test/boots", list.Targets[1].Identity)

	rec = serve(s, http.MethodGet, "/v1/targets/jacket")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"Rain Jacket"`)

	rec = serve(s, http.MethodGet, "/v1/targets/missing")
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestTargetByURLIdentity(t *testing.T) {
	t.Parallel()

	store := memory.New()
	require.NoError(t, store.Put(context.Background(), stock.StateRecord{
		Identity:     "https://shop.test/boots",
		Availability: stock.InStock,
		ObservedAt:   now,
	}))
	s := newTestServer(t, fakeReadiness{}, store)

	rec := serve(s, http.MethodGet, "/v1/targets/"+url.PathEscape("https://shop.test/boots"))
	require.Equal(t, http.StatusOK, rec.Code)
	var status targetStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	require.Equal(t, "https://shop.test/boots", status.Identity)
	require.Equal(t, "in", status.Availability)
}

func TestTargetsStoreFailure(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, fakeReadiness{}, brokenStore{memory.New()})
	rec := serve(s, http.MethodGet, "/v1/targets")
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestRecoverMiddleware(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, fakeReadiness{}, memory.New())
	h := s.recoverMiddleware(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusInternalServerError, rec.Code)
}
