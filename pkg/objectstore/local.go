package objectstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/dustin/go-humanize"

	"sitewatch/pkg/bucket"
	"sitewatch/pkg/log"
	"sitewatch/pkg/models"
	"sitewatch/pkg/store"
)

// Local keeps content in a CAS on disk and the key index in SQLite. Content that no
// key points at any more is removed, so only the latest version of every key is kept.
type Local struct {
	cas       store.Store
	index     *bucket.Store
	publicURL string

	mu      sync.Mutex
	ensured map[string]bool

	// writeMu serialises index updates with content removal, so a hash being
	// collected is never re-linked halfway.
	writeMu sync.Mutex
}

// NewLocal wires a content store and a key index together.
func NewLocal(cas store.Store, index *bucket.Store, publicURL string) *Local {
	return &Local{
		cas:       cas,
		index:     index,
		publicURL: publicURL,
		ensured:   make(map[string]bool),
	}
}

// Index exposes the key index for listing.
func (l *Local) Index() *bucket.Store {
	return l.index
}

// Put stores data under key and returns a reference to the stored version.
func (l *Local) Put(ctx context.Context, key string, data []byte) (string, error) {
	bucketName, objectKey, err := SplitKey(key)
	if err != nil {
		return "", err
	}

	obj, err := l.PutObject(ctx, bucketName, objectKey, bytes.NewReader(data), contentType(key, data))
	if err != nil {
		return "", err
	}

	return Reference(l.publicURL, obj.Hash), nil
}

// PutObject streams content into the CAS and points bucketName/objectKey at it.
// Identical content is stored once. The content the key pointed at before is deleted
// when no other key references it.
func (l *Local) PutObject(ctx context.Context, bucketName, objectKey string, reader io.Reader, contentType string) (*models.BucketObject, error) {
	if err := l.ensureBucket(ctx, bucketName); err != nil {
		return nil, err
	}

	l.writeMu.Lock()
	defer l.writeMu.Unlock()

	previous := l.currentHash(ctx, bucketName, objectKey)

	var (
		hash string
		size int64
	)
	result, err := l.cas.Upload(reader, bucketName+"/"+objectKey)
	var exists store.FileExistsError
	switch {
	case err == nil:
		hash, size = result.Hash, result.Size
	case errors.As(err, &exists):
		info, infoErr := l.cas.GetFileInfo(exists.Hash)
		if infoErr != nil {
			return nil, infoErr
		}
		hash, size = exists.Hash, info.Size
	default:
		return nil, fmt.Errorf("store %s/%s: %w", bucketName, objectKey, err)
	}

	obj, err := l.index.PutObject(ctx, bucketName, objectKey, hash, size, contentType)
	if err != nil {
		l.release(ctx, hash)
		return nil, fmt.Errorf("index %s/%s: %w", bucketName, objectKey, err)
	}

	if previous != "" && previous != hash {
		l.release(ctx, previous)
	}

	log.Debug().
		Str("bucket", bucketName).
		Str("key", objectKey).
		Str("hash", hash).
		Str("size", humanize.Bytes(uint64(size))). //nolint:gosec // sizes are never negative
		Msg("Object stored")
	return obj, nil
}

// Locate returns the reference stored under key.
func (l *Local) Locate(ctx context.Context, key string) (string, error) {
	bucketName, objectKey, err := SplitKey(key)
	if err != nil {
		return "", err
	}

	obj, err := l.index.GetObject(ctx, bucketName, objectKey)
	if errors.Is(err, bucket.ErrBucketNotFound) || errors.Is(err, bucket.ErrObjectNotFound) {
		return "", fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	if err != nil {
		return "", err
	}

	return Reference(l.publicURL, obj.Hash), nil
}

// Get reads the content behind ref.
func (l *Local) Get(ctx context.Context, ref string) ([]byte, error) {
	hash, err := ParseReference(ref)
	if err != nil {
		return nil, err
	}

	reader, err := l.Open(ctx, hash)
	if err != nil {
		return nil, err
	}
	defer func() { _ = reader.Close() }()

	return io.ReadAll(reader)
}

// Open streams content by hash.
func (l *Local) Open(_ context.Context, hash string) (io.ReadCloser, error) {
	reader, err := l.cas.DownloadStream(hash)
	var notFound store.FileNotFoundError
	if errors.As(err, &notFound) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, hash)
	}
	return reader, err
}

// DeleteObject drops bucketName/objectKey and its content when nothing else uses it.
func (l *Local) DeleteObject(ctx context.Context, bucketName, objectKey string) error {
	l.writeMu.Lock()
	defer l.writeMu.Unlock()

	previous := l.currentHash(ctx, bucketName, objectKey)
	if err := l.index.DeleteObject(ctx, bucketName, objectKey); err != nil {
		return err
	}

	if previous != "" {
		l.release(ctx, previous)
	}
	return nil
}

func (l *Local) currentHash(ctx context.Context, bucketName, objectKey string) string {
	obj, err := l.index.GetObject(ctx, bucketName, objectKey)
	if err != nil {
		return ""
	}
	return obj.Hash
}

// release deletes hash from the CAS unless a key still references it. Failures only
// leave garbage behind, so they are logged.
func (l *Local) release(ctx context.Context, hash string) {
	referenced, err := l.index.IsHashReferenced(ctx, hash)
	if err != nil {
		log.Warn().Err(err).Str("hash", hash).Msg("Failed to check content references")
		return
	}
	if referenced {
		return
	}

	var notFound store.FileNotFoundError
	if err := l.cas.Delete(hash); err != nil && !errors.As(err, &notFound) {
		log.Warn().Err(err).Str("hash", hash).Msg("Failed to delete superseded content")
		return
	}
	log.Debug().Str("hash", hash).Msg("Superseded content removed")
}

func (l *Local) ensureBucket(ctx context.Context, name string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.ensured[name] {
		return nil
	}

	if _, err := l.index.EnsureBucket(ctx, name); err != nil {
		return fmt.Errorf("bucket %s: %w", name, err)
	}

	l.ensured[name] = true
	return nil
}
