package store

import (
	"io"
	"time"
)

// HashLength is the length of a hex encoded SHA-256 digest.
const HashLength = 64

// ValidHash reports whether hash is a lowercase hex SHA-256 digest.
func ValidHash(hash string) bool {
	if len(hash) != HashLength {
		return false
	}

	for _, char := range hash {
		if (char < '0' || char > '9') && (char < 'a' || char > 'f') {
			return false
		}
	}

	return true
}

// FileInfo represents metadata about a stored blob.
type FileInfo struct {
	Hash      string    `json:"hash"`
	Size      int64     `json:"size"`
	CreatedAt time.Time `json:"created_at"`
}

// UploadResult represents the result of an upload operation.
type UploadResult struct {
	Hash string `json:"hash"`
	Size int64  `json:"size"`
}

// Store defines the interface for content-addressable storage operations.
type Store interface {
	// Upload stores the content of reader and returns its hash.
	// If the content already exists, it returns FileExistsError with the existing hash.
	Upload(reader io.Reader, filename string) (*UploadResult, error)

	// DownloadStream opens a stored blob for reading. The caller closes it.
	DownloadStream(hash string) (io.ReadCloser, error)

	// GetFileInfo retrieves metadata about a stored blob.
	GetFileInfo(hash string) (*FileInfo, error)

	// Exists checks if a blob with the given hash exists in storage.
	Exists(hash string) (bool, error)

	// ValidateHash checks if a hash string is valid format.
	ValidateHash(hash string) bool

	// Delete removes a blob with the given hash from storage.
	Delete(hash string) error
}

// FileExistsError is returned when trying to upload content that already exists.
type FileExistsError struct {
	Hash string
}

func (e FileExistsError) Error() string {
	return "file already exists"
}

// FileNotFoundError is returned when trying to access a blob that doesn't exist.
type FileNotFoundError struct {
	Hash string
}

func (e FileNotFoundError) Error() string {
	return "file not found"
}

// InvalidHashError is returned when a hash has invalid format.
type InvalidHashError struct {
	Hash string
}

func (e InvalidHashError) Error() string {
	return "invalid hash format"
}
