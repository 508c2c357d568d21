package bucket

import "errors"

var (
	// ErrBucketExists is returned when attempting to create a bucket that already exists.
	ErrBucketExists = errors.New("bucket already exists")

	// ErrBucketNotFound is returned when the requested bucket does not exist.
	ErrBucketNotFound = errors.New("bucket not found")

	// ErrObjectNotFound is returned when the requested object does not exist.
	ErrObjectNotFound = errors.New("object not found")

	// ErrInvalidBucketName is returned when the bucket name does not meet naming requirements.
	ErrInvalidBucketName = errors.New("invalid bucket name")

	// ErrInvalidKey is returned for empty object keys.
	ErrInvalidKey = errors.New("invalid object key")

	// ErrDatabaseError is returned when a database operation fails.
	ErrDatabaseError = errors.New("database error")
)
