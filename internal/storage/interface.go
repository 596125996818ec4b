package storage

import (
	"context"
	"io"
)

// UploadOptions carries optional object headers.
type UploadOptions struct {
	ContentType string
	// ContentMD5 is the base64 md5 digest checked by the server.
	ContentMD5 string
}

// UploadInfo describes a stored object.
type UploadInfo struct {
	Size int64
	// VersionTag is the bucket's object version id, empty when the bucket
	// is not versioned.
	VersionTag string
}

// ObjectStorage defines the interface for object storage operations.
// Missing objects are reported as domain.ErrNotFound.
type ObjectStorage interface {
	// EnsureBucket creates the bucket if needed and optionally enables versioning.
	EnsureBucket(ctx context.Context, versioned bool) error

	Upload(ctx context.Context, key string, reader io.Reader, size int64, opts UploadOptions) (*UploadInfo, error)

	// Download opens an object. An empty versionTag reads the latest version.
	Download(ctx context.Context, key, versionTag string) (io.ReadCloser, error)

	Delete(ctx context.Context, key string) error

	Exists(ctx context.Context, key string) (bool, error)

	Bucket() string
}
