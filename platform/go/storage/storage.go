package storage

import (
	"fmt"
	"strings"
)

// ObjectLocation describes where a document blob lives.
type ObjectLocation struct {
	Bucket   string
	FullPath string
}

// ResolveObjectLocation combines a school's base prefix and a logical key into a bucket/path pair.
//   - bucket comes from deployment configuration (one bucket per environment).
//   - basePrefix is tenant.BuildBasePrefix output and already includes envKey (e.g. "dev/greenfield-1a2b3c4d/").
//   - logicalKey is school-relative, e.g. "documents/<document_uuid>/report.pdf".
func ResolveObjectLocation(basePrefix, bucket, logicalKey string) (ObjectLocation, error) {
	bucket = strings.TrimSpace(bucket)
	if bucket == "" {
		return ObjectLocation{}, fmt.Errorf("bucket is required")
	}
	key := strings.TrimSpace(logicalKey)
	key = strings.TrimPrefix(key, "/")
	if key == "" {
		return ObjectLocation{}, fmt.Errorf("logical key is required")
	}

	prefix := basePrefix
	if prefix == "" {
		return ObjectLocation{}, fmt.Errorf("school base prefix is missing")
	}

	if !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}

	return ObjectLocation{Bucket: bucket, FullPath: prefix + key}, nil
}
