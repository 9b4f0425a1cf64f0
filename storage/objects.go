// Package storage keeps uploaded files (task covers and attachments) in a
// single bucket on the local filesystem and maps them to public URLs.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// PublicPrefix is where objects are served from.
const PublicPrefix = "/storage/v1/object/public/"

var (
	ErrNotObjectURL = errors.New("not an object url")
	ErrInvalidPath  = errors.New("invalid object path")
)

// Object kinds, used as the second path segment.
const (
	KindAttachments = "attachments"
	KindCovers      = "covers"
)

type ObjectStore struct {
	dir     string
	bucket  string
	baseURL string
}

// NewObjectStore creates the bucket directory under root if needed.
func NewObjectStore(root, bucket, baseURL string) (*ObjectStore, error) {
	if bucket == "" || strings.ContainsAny(bucket, `/\`) {
		return nil, fmt.Errorf("invalid bucket name %q", bucket)
	}
	dir := filepath.Join(root, bucket)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create bucket directory: %w", err)
	}
	return &ObjectStore{dir: dir, bucket: bucket, baseURL: strings.TrimRight(baseURL, "/")}, nil
}

func (s *ObjectStore) Bucket() string {
	return s.bucket
}

// ObjectPath builds "{user}/{kind}/{task}/{uuid}.{ext}" for a new upload.
func ObjectPath(userID, kind, taskID, fileName string) string {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(fileName)), ".")
	if ext == "" {
		ext = "bin"
	}
	return path.Join(userID, kind, taskID, uuid.NewString()+"."+ext)
}

// URL is the public address of the object at p.
func (s *ObjectStore) URL(p string) string {
	segments := strings.Split(p, "/")
	for i, seg := range segments {
		segments[i] = url.PathEscape(seg)
	}
	return s.baseURL + PublicPrefix + s.bucket + "/" + strings.Join(segments, "/")
}

// PathFromURL recovers the object path from a public URL produced by URL.
func (s *ObjectStore) PathFromURL(raw string) (string, error) {
	marker := "/object/public/" + s.bucket + "/"
	idx := strings.Index(raw, marker)
	if idx < 0 {
		return "", fmt.Errorf("%w: %s", ErrNotObjectURL, raw)
	}
	rest := raw[idx+len(marker):]
	if q := strings.IndexAny(rest, "?#"); q >= 0 {
		rest = rest[:q]
	}
	p, err := url.PathUnescape(rest)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrNotObjectURL, err)
	}
	if _, err := s.resolve(p); err != nil {
		return "", err
	}
	return p, nil
}

// Upload writes the object and returns its public URL. An existing object at
// the same path is replaced.
func (s *ObjectStore) Upload(ctx context.Context, p string, r io.Reader) (string, error) {
	full, err := s.resolve(p)
	if err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return "", fmt.Errorf("failed to create object directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(full), ".upload-*")
	if err != nil {
		return "", fmt.Errorf("failed to create object: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, r); err != nil {
		tmp.Close()
		return "", fmt.Errorf("failed to write object: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("failed to write object: %w", err)
	}
	if err := os.Rename(tmp.Name(), full); err != nil {
		return "", fmt.Errorf("failed to store object: %w", err)
	}
	return s.URL(p), nil
}

// Delete removes the object. Deleting a missing object is not an error.
func (s *ObjectStore) Delete(ctx context.Context, p string) error {
	full, err := s.resolve(p)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.Remove(full); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to delete object: %w", err)
	}
	return nil
}

// Handler serves the bucket's objects. Mount it at PublicPrefix + bucket + "/".
func (s *ObjectStore) Handler() http.Handler {
	return http.StripPrefix(PublicPrefix+s.bucket+"/", http.FileServer(http.Dir(s.dir)))
}

func (s *ObjectStore) resolve(p string) (string, error) {
	if p == "" || p == "." || strings.HasPrefix(p, "/") || path.Clean(p) != p ||
		p == ".." || strings.HasPrefix(p, "../") {
		return "", fmt.Errorf("%w: %q", ErrInvalidPath, p)
	}
	return filepath.Join(s.dir, filepath.FromSlash(p)), nil
}
