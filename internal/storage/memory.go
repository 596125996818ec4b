package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strconv"
	"sync"

	"github.com/timmy/cloudnet/internal/domain"
)

// MemoryStorage is an ObjectStorage held in process memory. Every upload
// creates a new numbered version. It backs local dry runs and tests.
type MemoryStorage struct {
	bucket string

	mu       sync.Mutex
	versions map[string][][]byte
}

// NewMemoryStorage creates an empty in-memory bucket.
func NewMemoryStorage(bucket string) *MemoryStorage {
	return &MemoryStorage{bucket: bucket, versions: make(map[string][][]byte)}
}

func (s *MemoryStorage) Bucket() string { return s.bucket }

func (s *MemoryStorage) EnsureBucket(ctx context.Context, versioned bool) error { return nil }

func (s *MemoryStorage) Upload(ctx context.Context, key string, reader io.Reader, size int64, opts UploadOptions) (*UploadInfo, error) {
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, err
	}
	if int64(len(data)) != size {
		return nil, fmt.Errorf("size mismatch for %s: declared %d, read %d", key, size, len(data))
	}
	if opts.ContentMD5 != "" {
		sums, _ := HashReader(bytes.NewReader(data))
		if sums.MD5 != opts.ContentMD5 {
			return nil, fmt.Errorf("content md5 mismatch for %s", key)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.versions[key] = append(s.versions[key], data)
	return &UploadInfo{Size: size, VersionTag: strconv.Itoa(len(s.versions[key]))}, nil
}

func (s *MemoryStorage) Download(ctx context.Context, key, versionTag string) (io.ReadCloser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	versions := s.versions[key]
	if len(versions) == 0 {
		return nil, domain.ErrNotFound.New("%s/%s", s.bucket, key)
	}
	data := versions[len(versions)-1]
	if versionTag != "" {
		n, err := strconv.Atoi(versionTag)
		if err != nil || n < 1 || n > len(versions) {
			return nil, domain.ErrNotFound.New("%s/%s version %s", s.bucket, key, versionTag)
		}
		data = versions[n-1]
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (s *MemoryStorage) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.versions, key)
	return nil
}

func (s *MemoryStorage) Exists(ctx context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.versions[key]) > 0, nil
}

// Put stores data under key. It is a convenience for seeding buckets.
func (s *MemoryStorage) Put(key string, data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.versions[key] = append(s.versions[key], data)
}
