// Package fingerprint computes the content hashes used for change detection.
//
// A fingerprint is the lower-case hex SHA-256 of a file's raw bytes. It never
// depends on the file's path or timestamps, so a content-preserving touch is
// not a change and two files with identical bytes share a fingerprint.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"
	"time"
)

// Size is the length of a fingerprint in hex characters.
const Size = sha256.Size * 2

// Bytes returns the fingerprint of content.
func Bytes(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}

// String returns the fingerprint of s.
func String(s string) string {
	return Bytes([]byte(s))
}

// Info is a file fingerprint plus the metadata read alongside it.
type Info struct {
	Fingerprint string
	ModTime     time.Time
	Size        int64
}

// File streams the file at path through SHA-256.
func File(path string) (Info, error) {
	f, err := os.Open(path)
	if err != nil {
		return Info{}, err
	}
	defer func() { _ = f.Close() }()

	stat, err := f.Stat()
	if err != nil {
		return Info{}, err
	}

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return Info{}, err
	}

	return Info{
		Fingerprint: hex.EncodeToString(h.Sum(nil)),
		ModTime:     stat.ModTime(),
		Size:        stat.Size(),
	}, nil
}
