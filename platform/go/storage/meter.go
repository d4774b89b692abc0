package storage

import (
	"context"
	"errors"
	"fmt"

	gcs "cloud.google.com/go/storage"
	"github.com/google/uuid"
	"google.golang.org/api/iterator"
)

// PrefixResolver returns the object-store base prefix owned by a school.
type PrefixResolver interface {
	StoragePrefix(ctx context.Context, schoolID uuid.UUID) (string, error)
}

// GCSUsageMeter measures a school's storage consumption by summing object sizes under its prefix.
type GCSUsageMeter struct {
	bucket   string
	prefixes PrefixResolver
	sum      func(ctx context.Context, bucket, prefix string) (int64, error)
	attrs    func(ctx context.Context, bucket string) error
}

// NewGCSUsageMeter constructs a meter over bucket.
func NewGCSUsageMeter(client *gcs.Client, bucket string, prefixes PrefixResolver) *GCSUsageMeter {
	if client == nil {
		panic("storage client is required")
	}
	if bucket == "" {
		panic("bucket is required")
	}
	if prefixes == nil {
		panic("prefix resolver is required")
	}
	return &GCSUsageMeter{
		bucket:   bucket,
		prefixes: prefixes,
		sum: func(ctx context.Context, bucket, prefix string) (int64, error) {
			return sumPrefix(ctx, client, bucket, prefix)
		},
		attrs: func(ctx context.Context, bucket string) error {
			_, err := client.Bucket(bucket).Attrs(ctx)
			return err
		},
	}
}

// CheckBucket verifies the bucket exists and is readable with the current credentials.
func (m *GCSUsageMeter) CheckBucket(ctx context.Context) error {
	if err := m.attrs(ctx, m.bucket); err != nil {
		return fmt.Errorf("bucket %s attrs: %w", m.bucket, err)
	}
	return nil
}

// UsedBytes returns the total size of every object under the school's prefix.
func (m *GCSUsageMeter) UsedBytes(ctx context.Context, schoolID uuid.UUID) (int64, error) {
	prefix, err := m.prefixes.StoragePrefix(ctx, schoolID)
	if err != nil {
		return 0, fmt.Errorf("resolve storage prefix: %w", err)
	}
	if prefix == "" {
		return 0, errors.New("school storage prefix is empty")
	}
	return m.sum(ctx, m.bucket, prefix)
}

func sumPrefix(ctx context.Context, client *gcs.Client, bucket, prefix string) (int64, error) {
	query := &gcs.Query{Prefix: prefix}
	if err := query.SetAttrSelection([]string{"Name", "Size"}); err != nil {
		return 0, fmt.Errorf("select object attrs: %w", err)
	}

	var total int64
	it := client.Bucket(bucket).Objects(ctx, query)
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return 0, fmt.Errorf("list objects under %s: %w", prefix, err)
		}
		total += attrs.Size
	}
	return total, nil
}
