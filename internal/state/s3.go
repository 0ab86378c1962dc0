package state

import (
	"context"
	"errors"
	"fmt"

	"github.com/imamik/stackforge/internal/platform/s3"
)

// ObjectStore is the subset of the S3 client used by S3Backend.
type ObjectStore interface {
	GetObject(ctx context.Context, bucket, key string) ([]byte, error)
	PutObject(ctx context.Context, bucket, key string, data []byte, encrypt bool) (string, error)
}

// S3Backend stores state as one JSON object in a versioned bucket.
type S3Backend struct {
	store   ObjectStore
	bucket  string
	key     string
	encrypt bool
}

// NewS3Backend returns a backend for bucket/key.
func NewS3Backend(store ObjectStore, bucket, key string, encrypt bool) *S3Backend {
	return &S3Backend{store: store, bucket: bucket, key: key, encrypt: encrypt}
}

// Load reads the state object. A missing object yields an empty state.
func (b *S3Backend) Load(ctx context.Context) (*State, error) {
	data, err := b.store.GetObject(ctx, b.bucket, b.key)
	if errors.Is(err, s3.ErrObjectNotFound) {
		return New(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load state s3://%s/%s: %w", b.bucket, b.key, err)
	}
	return Decode(data)
}

// Save writes the state object. Bucket versioning keeps prior revisions.
func (b *S3Backend) Save(ctx context.Context, s *State) error {
	data, err := s.Encode()
	if err != nil {
		return err
	}
	if _, err := b.store.PutObject(ctx, b.bucket, b.key, data, b.encrypt); err != nil {
		return fmt.Errorf("failed to save state s3://%s/%s: %w", b.bucket, b.key, err)
	}
	return nil
}
