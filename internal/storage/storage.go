// Package storage publishes pipeline layer trees to object storage. The
// same interface fronts a local directory sink for development and S3 for
// real runs.
package storage

import (
	"context"
	"errors"
)

// Sentinel errors for storage operations.
var (
	ErrObjectNotFound = errors.New("storage: object not found")
	ErrUploadFailed   = errors.New("storage: upload failed")
)

// ObjectInfo describes a stored object.
type ObjectInfo struct {
	Key  string
	Size int64
	ETag string
}

// ObjectStorage abstracts the destination the publish stage writes to.
type ObjectStorage interface {
	// Upload stores a local file under the given object key
	Upload(ctx context.Context, localPath, key string) error

	// Download retrieves an object to a local file
	Download(ctx context.Context, key, localPath string) error

	// Exists reports whether an object is present
	Exists(ctx context.Context, key string) (bool, error)

	// Delete removes an object; deleting a missing object is not an error
	Delete(ctx context.Context, key string) error

	// ListObjects returns objects whose keys start with prefix
	ListObjects(ctx context.Context, prefix string) ([]ObjectInfo, error)
}
