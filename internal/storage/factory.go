package storage

import (
	"fmt"
	"strings"
)

// NewStorage creates an ObjectStorage instance based on the configuration.
// Parameters:
//   - cfg: storage configuration including endpoint, credentials, and bucket.
// Returns:
//   - ObjectStorage: initialized storage client implementation.
//   - error: non-nil if the storage client cannot be created.
func NewStorage(cfg *S3Config) (ObjectStorage, error) {
	if cfg.Type == "" {
		cfg.Type = detectStorageType(cfg.Endpoint)
	}
	switch cfg.Type {
	case StorageTypeMinIO:
		return NewMinIOStorage(cfg)
	case StorageTypeMemory:
		return NewMemoryStorage(cfg.Bucket), nil
	default:
		return NewS3Storage(cfg)
	}
}

// detectStorageType attempts to detect the storage type from the endpoint
func detectStorageType(endpoint string) StorageType {
	endpoint = strings.ToLower(endpoint)

	switch {
	case strings.Contains(endpoint, "r2.cloudflarestorage.com"):
		return StorageTypeR2
	case strings.Contains(endpoint, "amazonaws.com"):
		return StorageTypeS3
	default:
		return StorageTypeS3Compatible
	}
}

// OpenArchive creates the raw, frozen and volatile bucket clients from base,
// which carries every setting except the bucket name.
func OpenArchive(base S3Config, rawBucket, productBucket, volatileBucket string) (*Archive, error) {
	open := func(bucket string) (ObjectStorage, error) {
		cfg := base
		cfg.Bucket = bucket
		s, err := NewStorage(&cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to open bucket %s: %w", bucket, err)
		}
		return s, nil
	}
	raw, err := open(rawBucket)
	if err != nil {
		return nil, err
	}
	frozen, err := open(productBucket)
	if err != nil {
		return nil, err
	}
	volatile, err := open(volatileBucket)
	if err != nil {
		return nil, err
	}
	return NewArchive(raw, frozen, volatile), nil
}
