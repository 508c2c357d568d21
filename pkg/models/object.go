package models

import "time"

// Bucket is a named collection of keyed objects, e.g. "current" or "diff".
type Bucket struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`

	// Computed fields (not stored in database).
	ObjectCount int64 `json:"object_count,omitempty"`
	TotalSize   int64 `json:"total_size,omitempty"`
}

// BucketObject maps a key inside a bucket to the content hash currently stored there.
type BucketObject struct {
	ID          int64     `json:"id"`
	BucketID    int64     `json:"-"`
	Key         string    `json:"key"`
	Hash        string    `json:"hash"`
	Size        int64     `json:"size"`
	ContentType string    `json:"content_type,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// BucketUploadResponse is returned by a bucket gateway after an upload.
type BucketUploadResponse struct {
	Hash   string `json:"hash"`
	Key    string `json:"key"`
	Bucket string `json:"bucket"`
	Size   int64  `json:"size"`
}

// ObjectListResponse is a page of objects ordered by key.
type ObjectListResponse struct {
	Objects     []BucketObject `json:"objects"`
	Prefix      string         `json:"prefix,omitempty"`
	IsTruncated bool           `json:"is_truncated"`
	NextCursor  string         `json:"next_cursor,omitempty"`
}
