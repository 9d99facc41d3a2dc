package blob

import (
	"context"
	"fmt"
)

// PutResult describes a stored blob.
type PutResult struct {
	Key  string `json:"key"`
	Size int64  `json:"size"`
}

// Bucket is the blob storage service used for large-content overflow.
// Absence is a normal result: Get returns (nil, nil) and Head returns
// (false, nil) for a missing key.
type Bucket interface {
	Put(ctx context.Context, key string, body []byte) (PutResult, error)
	Get(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
	Head(ctx context.Context, key string) (bool, error)
	// List returns every key currently in the bucket.
	List(ctx context.Context) ([]string, error)
}

// Key derives the bucket key for a record body from its id and content
// hash. Different versions of the same id land on different keys as long
// as their content differs.
func Key(id, hash string) string {
	return fmt.Sprintf("content/%s/%s", id, hash)
}
