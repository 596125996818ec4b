package storage

import (
	"crypto/md5"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"io"
	"os"
)

// Checksums holds the digests of one file.
type Checksums struct {
	SHA256 string // hex, stored on records
	MD5    string // base64, sent as Content-MD5
	Size   int64
}

// HashFile reads path once and returns its digests.
func HashFile(path string) (*Checksums, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return HashReader(f)
}

// HashReader consumes r and returns its digests.
func HashReader(r io.Reader) (*Checksums, error) {
	sha := sha256.New()
	sum := md5.New()
	n, err := io.Copy(io.MultiWriter(sha, sum), r)
	if err != nil {
		return nil, fmt.Errorf("failed to hash: %w", err)
	}
	return &Checksums{
		SHA256: hex.EncodeToString(sha.Sum(nil)),
		MD5:    base64.StdEncoding.EncodeToString(sum.Sum(nil)),
		Size:   n,
	}, nil
}
