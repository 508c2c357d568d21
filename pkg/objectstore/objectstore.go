// Package objectstore stores screenshots and the status document under keys such as
// "current/<site>" and hands out version-specific references to the stored bytes.
//
// A reference names content, not a key: writing a key again produces a new reference.
// An earlier reference stays readable only while some key still points at its content;
// content no key points at is removed. Callers that need a version to outlive the next
// write pin it under a key of its own, e.g. "baseline/<site>".
package objectstore

import (
	"context"
	"io"
	"net/http"
	"strings"

	"sitewatch/pkg/store"
)

const objectsPath = "/objects/"

// Store is the object storage contract used by the monitor.
type Store interface {
	// Put stores data under key and returns a reference to this exact version.
	Put(ctx context.Context, key string, data []byte) (string, error)
	// Get fetches the bytes behind a reference returned by Put or Locate.
	Get(ctx context.Context, ref string) ([]byte, error)
	// Locate returns the reference currently stored under key, or ErrNotFound.
	Locate(ctx context.Context, key string) (string, error)
	// Open streams content by hash. The caller closes the reader.
	Open(ctx context.Context, hash string) (io.ReadCloser, error)
}

// SplitKey separates the bucket (first path segment) from the object key.
func SplitKey(key string) (string, string, error) {
	bucketName, objectKey, found := strings.Cut(strings.TrimPrefix(key, "/"), "/")
	if !found || bucketName == "" || objectKey == "" {
		return "", "", &KeyError{Key: key}
	}
	return bucketName, objectKey, nil
}

// Reference builds the public reference for hash.
func Reference(publicURL, hash string) string {
	return strings.TrimSuffix(publicURL, "/") + objectsPath + hash
}

// ParseReference extracts the content hash from a reference.
func ParseReference(ref string) (string, error) {
	idx := strings.LastIndex(ref, objectsPath)
	if idx < 0 {
		return "", &ReferenceError{Ref: ref}
	}

	hash := ref[idx+len(objectsPath):]
	if cut := strings.IndexAny(hash, "?#"); cut >= 0 {
		hash = hash[:cut]
	}
	hash = strings.ToLower(hash)
	if !ValidHash(hash) {
		return "", &ReferenceError{Ref: ref}
	}
	return hash, nil
}

// ValidHash reports whether hash is a lowercase hex SHA-256 digest.
func ValidHash(hash string) bool {
	return store.ValidHash(hash)
}

// contentType sniffs data, preferring JSON for the status document.
func contentType(key string, data []byte) string {
	if strings.HasSuffix(key, ".json") {
		return "application/json"
	}
	return http.DetectContentType(data)
}
