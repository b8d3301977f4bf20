package gcp

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/iterator"
)

// GetEnv is a helper to read an environment variable or return a default value.
func GetEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

// ObjectInfo describes one object returned by a prefix listing.
type ObjectInfo struct {
	Key     string
	Updated time.Time
}

// ObjectStore wraps a GCS client with the narrow put/get/list/delete surface
// the pipeline consumes. All keys are relative to a caller-supplied bucket.
type ObjectStore struct {
	client *storage.Client
}

// NewObjectStore creates the object store adapter.
func NewObjectStore(ctx context.Context) (*ObjectStore, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}
	return &ObjectStore{client: client}, nil
}

// Put writes content under the given key, overwriting any existing object.
func (s *ObjectStore) Put(ctx context.Context, bucket, key string, data []byte, contentType string) error {
	writer := s.client.Bucket(bucket).Object(key).NewWriter(ctx)
	writer.ContentType = contentType
	if _, err := io.Copy(writer, bytes.NewReader(data)); err != nil {
		_ = writer.Close()
		return fmt.Errorf("failed to write to gs://%s/%s: %w", bucket, key, err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("failed to finalize write to gs://%s/%s: %w", bucket, key, err)
	}
	return nil
}

// Get reads the full contents of an object.
func (s *ObjectStore) Get(ctx context.Context, bucket, key string) ([]byte, error) {
	reader, err := s.client.Bucket(bucket).Object(key).NewReader(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to open gs://%s/%s: %w", bucket, key, err)
	}
	defer reader.Close()
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to read gs://%s/%s: %w", bucket, key, err)
	}
	return data, nil
}

// Delete removes an object. Deleting a missing object is an error the caller
// may choose to ignore.
func (s *ObjectStore) Delete(ctx context.Context, bucket, key string) error {
	if err := s.client.Bucket(bucket).Object(key).Delete(ctx); err != nil {
		return fmt.Errorf("failed to delete gs://%s/%s: %w", bucket, key, err)
	}
	return nil
}

// ListPrefix returns all objects under a prefix in key order.
func (s *ObjectStore) ListPrefix(ctx context.Context, bucket, prefix string) ([]ObjectInfo, error) {
	it := s.client.Bucket(bucket).Objects(ctx, &storage.Query{Prefix: prefix})
	var objects []ObjectInfo
	for {
		attrs, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to list gs://%s/%s*: %w", bucket, prefix, err)
		}
		objects = append(objects, ObjectInfo{Key: attrs.Name, Updated: attrs.Updated})
	}
	sort.Slice(objects, func(i, j int) bool { return objects[i].Key < objects[j].Key })
	return objects, nil
}

// Latest returns the key of the most recently updated object under a prefix,
// or "" when the prefix is empty.
func (s *ObjectStore) Latest(ctx context.Context, bucket, prefix string) (string, error) {
	objects, err := s.ListPrefix(ctx, bucket, prefix)
	if err != nil {
		return "", err
	}
	if len(objects) == 0 {
		return "", nil
	}
	latest := objects[0]
	for _, o := range objects[1:] {
		if o.Updated.After(latest.Updated) {
			latest = o
		}
	}
	return latest.Key, nil
}

// Close releases the underlying client.
func (s *ObjectStore) Close() error {
	return s.client.Close()
}
