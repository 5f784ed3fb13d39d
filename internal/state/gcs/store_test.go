package gcs

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/stockwatch/internal/state/statetest"
	"github.com/JakeFAU/stockwatch/internal/stock"
)

type fakeObjects struct {
	mu       sync.Mutex
	objects  map[string][]byte
	writeErr error
}

func newFakeObjects() *fakeObjects {
	return &fakeObjects{objects: make(map[string][]byte)}
}

func (f *fakeObjects) Read(_ context.Context, name string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.objects[name]
	if !ok {
		return nil, errObjectMissing
	}
	return append([]byte(nil), data...), nil
}

func (f *fakeObjects) Write(_ context.Context, name string, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.writeErr != nil {
		return f.writeErr
	}
	f.objects[name] = append([]byte(nil), data...)
	return nil
}

func TestStoreSemantics(t *testing.T) {
	t.Parallel()

	statetest.Run(t, newStore(newFakeObjects(), "state"))
}

func TestStoreConcurrentWrites(t *testing.T) {
	t.Parallel()

	statetest.RunConcurrent(t, newStore(newFakeObjects(), ""), 16)
}

func TestObjectNamesAreHashedUnderPrefix(t *testing.T) {
	t.Parallel()

	objects := newFakeObjects()
	store := newStore(objects, "/watch/")
	err := store.Put(context.Background(), stock.StateRecord{Identity: "https://a.example/p?x=1", Availability: stock.InStock})
	require.NoError(t, err)

	require.Len(t, objects.objects, 1)
	for name := range objects.objects {
		require.True(t, strings.HasPrefix(name, "watch/"), name)
		require.True(t, strings.HasSuffix(name, ".json"), name)
		require.NotContains(t, name, "https")
	}
}

func TestWriteFailureIsStoreUnavailable(t *testing.T) {
	t.Parallel()

	objects := newFakeObjects()
	objects.writeErr = errors.New("503 backend error")
	store := newStore(objects, "")

	err := store.Put(context.Background(), stock.StateRecord{Identity: "a", Availability: stock.InStock})
	require.ErrorIs(t, err, stock.ErrStoreUnavailable)
}

func TestCorruptObjectIsStoreUnavailable(t *testing.T) {
	t.Parallel()

	objects := newFakeObjects()
	store := newStore(objects, "")
	objects.objects[store.objectName("a")] = []byte(`{"identity":"a","availability":"maybe"}`)

	_, _, err := store.Get(context.Background(), "a")
	require.ErrorIs(t, err, stock.ErrStoreUnavailable)
}

func TestNewValidation(t *testing.T) {
	t.Parallel()

	_, err := New(nil, Config{Bucket: "b"})
	require.Error(t, err)
}
