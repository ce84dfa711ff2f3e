// Package gcs adapts a Google Cloud Storage bucket to the gallery's remote store.
package gcs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"cloud.google.com/go/storage"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

// Bucket is a gallery remote backed by one GCS bucket.
type Bucket struct {
	client *storage.Client
	bucket *storage.BucketHandle
	name   string
}

// New connects to bucket. Credentials are resolved by the SDK
// (GOOGLE_APPLICATION_CREDENTIALS, workload identity, ...) unless opts override them.
func New(ctx context.Context, bucket string, opts ...option.ClientOption) (*Bucket, error) {
	if bucket == "" {
		return nil, errors.New("bucket name is required")
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating storage client: %w", err)
	}
	return &Bucket{
		client: client,
		bucket: client.Bucket(bucket),
		name:   bucket,
	}, nil
}

// Name returns the bucket name.
func (b *Bucket) Name() string {
	return b.name
}

// Close releases the underlying client.
func (b *Bucket) Close() error {
	if err := b.client.Close(); err != nil {
		return fmt.Errorf("closing storage client: %w", err)
	}
	return nil
}

// List returns the names of all objects under prefix.
func (b *Bucket) List(ctx context.Context, prefix string) ([]string, error) {
	it := b.bucket.Objects(ctx, &storage.Query{Prefix: prefix})

	var names []string
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("listing gs://%s/%s: %w", b.name, prefix, err)
		}
		names = append(names, attrs.Name)
	}
	return names, nil
}

// Get downloads an object.
func (b *Bucket) Get(ctx context.Context, name string) ([]byte, error) {
	r, err := b.bucket.Object(name).NewReader(ctx)
	if err != nil {
		return nil, fmt.Errorf("opening gs://%s/%s: %w", b.name, name, err)
	}
	defer r.Close()

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading gs://%s/%s: %w", b.name, name, err)
	}
	return data, nil
}

// Put uploads an object, replacing any existing one.
func (b *Bucket) Put(ctx context.Context, name string, data []byte) error {
	w := b.bucket.Object(name).NewWriter(ctx)
	w.ContentType = http.DetectContentType(data)

	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return fmt.Errorf("writing gs://%s/%s: %w", b.name, name, err)
	}
	// The object is committed by Close.
	if err := w.Close(); err != nil {
		return fmt.Errorf("uploading gs://%s/%s: %w", b.name, name, err)
	}
	return nil
}

// Delete removes an object. Deleting a missing object is not an error.
func (b *Bucket) Delete(ctx context.Context, name string) error {
	err := b.bucket.Object(name).Delete(ctx)
	if err != nil && !errors.Is(err, storage.ErrObjectNotExist) {
		return fmt.Errorf("deleting gs://%s/%s: %w", b.name, name, err)
	}
	return nil
}
