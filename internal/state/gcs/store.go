// Package gcs provides a StateStore that keeps one JSON object per target in
// a Google Cloud Storage bucket, for deployments without a persistent disk.
package gcs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"cloud.google.com/go/storage"

	"github.com/JakeFAU/stockwatch/internal/hash/sha256"
	"github.com/JakeFAU/stockwatch/internal/state"
	"github.com/JakeFAU/stockwatch/internal/stock"
)

var errObjectMissing = errors.New("object missing")

// Config captures the parameters required to connect to GCS.
type Config struct {
	Bucket string
	Prefix string
}

type objectStore interface {
	Read(ctx context.Context, name string) ([]byte, error)
	Write(ctx context.Context, name string, data []byte) error
}

// Store persists records as gs://bucket/prefix/<sha256(identity)>.json.
type Store struct {
	objects objectStore
	prefix  string
	hasher  *sha256.Hasher
	closer  func() error
}

// New creates a GCS-backed state store. The client is closed by Close.
func New(client *storage.Client, cfg Config) (*Store, error) {
	if client == nil {
		return nil, fmt.Errorf("storage client is required")
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("state.bucket is required")
	}
	s := newStore(&bucketObjects{bucket: client.Bucket(cfg.Bucket)}, cfg.Prefix)
	s.closer = client.Close
	return s, nil
}

func newStore(objects objectStore, prefix string) *Store {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		prefix = "stock-state"
	}
	return &Store{objects: objects, prefix: prefix, hasher: sha256.New()}
}

func (s *Store) objectName(identity string) string {
	return path.Join(s.prefix, s.hasher.Key(identity)+".json")
}

// Get reads the record for identity.
func (s *Store) Get(ctx context.Context, identity string) (stock.StateRecord, bool, error) {
	data, err := s.objects.Read(ctx, s.objectName(identity))
	if errors.Is(err, errObjectMissing) {
		return stock.StateRecord{}, false, nil
	}
	if err != nil {
		return stock.StateRecord{}, false, state.Unavailable("read state object", err)
	}
	var rec stock.StateRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return stock.StateRecord{}, false, state.Unavailable("decode state object", err)
	}
	if _, err := stock.ParseAvailability(string(rec.Availability)); err != nil {
		return stock.StateRecord{}, false, state.Unavailable("decode state object", err)
	}
	return rec, true, nil
}

// Put overwrites the object for record.Identity. Object writes are atomic.
func (s *Store) Put(ctx context.Context, record stock.StateRecord) error {
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}
	if err := s.objects.Write(ctx, s.objectName(record.Identity), data); err != nil {
		return state.Unavailable("write state object", err)
	}
	return nil
}

// Close releases the storage client.
func (s *Store) Close() error {
	if s.closer == nil {
		return nil
	}
	if err := s.closer(); err != nil {
		return fmt.Errorf("close storage client: %w", err)
	}
	return nil
}

type bucketObjects struct {
	bucket *storage.BucketHandle
}

func (b *bucketObjects) Read(ctx context.Context, name string) ([]byte, error) {
	reader, err := b.bucket.Object(name).NewReader(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return nil, errObjectMissing
	}
	if err != nil {
		return nil, fmt.Errorf("open reader: %w", err)
	}
	defer reader.Close()
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("read object: %w", err)
	}
	return data, nil
}

func (b *bucketObjects) Write(ctx context.Context, name string, data []byte) error {
	writer := b.bucket.Object(name).NewWriter(ctx)
	writer.ContentType = "application/json"
	if _, err := writer.Write(data); err != nil {
		closeErr := writer.Close()
		if closeErr != nil {
			return fmt.Errorf("write object: %w (close writer: %v)", err, closeErr)
		}
		return fmt.Errorf("write object: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("close writer: %w", err)
	}
	return nil
}
