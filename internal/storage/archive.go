package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/timmy/cloudnet/internal/domain"
)

const netcdfContentType = "application/x-netcdf"

// Archive is the raw and product file store. Raw uploads live in one
// bucket; products live in a versioned frozen bucket or a volatile bucket.
type Archive struct {
	raw      ObjectStorage
	frozen   ObjectStorage
	volatile ObjectStorage
}

// NewArchive creates an Archive over the three buckets.
func NewArchive(raw, frozen, volatile ObjectStorage) *Archive {
	return &Archive{raw: raw, frozen: frozen, volatile: volatile}
}

// EnsureBuckets creates missing buckets. Only the frozen bucket is versioned.
func (a *Archive) EnsureBuckets(ctx context.Context) error {
	if err := a.raw.EnsureBucket(ctx, false); err != nil {
		return err
	}
	if err := a.frozen.EnsureBucket(ctx, true); err != nil {
		return err
	}
	return a.volatile.EnsureBucket(ctx, false)
}

func (a *Archive) productBucket(frozen bool) ObjectStorage {
	if frozen {
		return a.frozen
	}
	return a.volatile
}

// FetchRaw downloads rec into destDir and returns the local path. A missing
// object yields domain.ErrNotFound.
func (a *Archive) FetchRaw(ctx context.Context, rec domain.RawRecord, destDir string) (string, error) {
	key := rec.S3Key
	if key == "" {
		key = domain.RawKey(rec.Site, rec.ID, rec.Filename)
	}
	// Chunks of one day may share a filename; keep them apart.
	dest := filepath.Join(destDir, rec.ID, filepath.Base(rec.Filename))
	if err := a.download(ctx, a.raw, key, "", dest); err != nil {
		return "", err
	}
	return dest, nil
}

// FetchProduct downloads the exact stored version of rec into destDir.
func (a *Archive) FetchProduct(ctx context.Context, rec domain.ProductRecord, destDir string) (string, error) {
	dest := filepath.Join(destDir, string(rec.Product), filepath.Base(rec.Filename))
	if err := a.download(ctx, a.productBucket(rec.Frozen()), rec.Filename, rec.VersionTag, dest); err != nil {
		return "", err
	}
	return dest, nil
}

// UploadProduct stores the file at localPath under key in the frozen or
// volatile bucket, with a Content-MD5 check.
func (a *Archive) UploadProduct(ctx context.Context, localPath, key string, frozen bool) (*UploadInfo, error) {
	sums, err := HashFile(localPath)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(localPath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	return a.productBucket(frozen).Upload(ctx, key, f, sums.Size, UploadOptions{
		ContentType: netcdfContentType,
		ContentMD5:  sums.MD5,
	})
}

// DeleteProduct removes a product object.
func (a *Archive) DeleteProduct(ctx context.Context, key string, frozen bool) error {
	return a.productBucket(frozen).Delete(ctx, key)
}

// PutRaw stores an uploaded raw file.
func (a *Archive) PutRaw(ctx context.Context, key string, r io.Reader, size int64, md5 string) (*UploadInfo, error) {
	return a.raw.Upload(ctx, key, r, size, UploadOptions{
		ContentType: "application/octet-stream",
		ContentMD5:  md5,
	})
}

// DeleteRaw removes a raw upload object.
func (a *Archive) DeleteRaw(ctx context.Context, key string) error {
	return a.raw.Delete(ctx, key)
}

func (a *Archive) download(ctx context.Context, bucket ObjectStorage, key, versionTag, dest string) error {
	body, err := bucket.Download(ctx, key, versionTag)
	if err != nil {
		return err
	}
	defer body.Close()

	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return err
	}
	f, err := os.Create(dest)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, body); err != nil {
		f.Close()
		return fmt.Errorf("failed to write %s: %w", dest, err)
	}
	return f.Close()
}
