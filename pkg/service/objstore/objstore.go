package objstore

import (
	"context"
	"io"

	"cloud.google.com/go/storage"
	"github.com/m-mizutani/goerr/v2"
	"github.com/shiori-lab/shiori/pkg/utils/safe"
)

// Storage persists raw media bytes and hands back stable references
type Storage interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
	Get(ctx context.Context, key string) ([]byte, error)
	Close() error
}

// gcsStorage implements Storage backed by a Cloud Storage bucket
type gcsStorage struct {
	client *storage.Client
	bucket string
	prefix string
}

// Option is a functional option for GCS storage configuration
type Option func(*gcsStorage)

// WithPrefix prepends a path prefix to every object key
func WithPrefix(prefix string) Option {
	return func(s *gcsStorage) {
		s.prefix = prefix
	}
}

// NewGCS creates a Cloud Storage backed store for the given bucket
func NewGCS(ctx context.Context, bucket string, opts ...Option) (Storage, error) {
	if bucket == "" {
		return nil, goerr.New("bucket name is required")
	}

	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create storage client", goerr.V("bucket", bucket))
	}

	s := &gcsStorage{
		client: client,
		bucket: bucket,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s, nil
}

func (s *gcsStorage) objectName(key string) string {
	return s.prefix + key
}

func (s *gcsStorage) Put(ctx context.Context, key string, data []byte, contentType string) error {
	w := s.client.Bucket(s.bucket).Object(s.objectName(key)).NewWriter(ctx)
	w.ContentType = contentType

	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return goerr.Wrap(err, "failed to write object", goerr.V("key", key))
	}
	if err := w.Close(); err != nil {
		return goerr.Wrap(err, "failed to finalize object", goerr.V("key", key))
	}

	return nil
}

func (s *gcsStorage) Get(ctx context.Context, key string) ([]byte, error) {
	r, err := s.client.Bucket(s.bucket).Object(s.objectName(key)).NewReader(ctx)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to open object", goerr.V("key", key))
	}
	defer safe.Close(ctx, r)

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to read object", goerr.V("key", key))
	}

	return data, nil
}

func (s *gcsStorage) Close() error {
	return s.client.Close()
}
