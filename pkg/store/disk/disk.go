// Package disk implements store.Store on a plain directory tree. Blobs are named by
// their SHA-256 and spread over two levels of prefix directories.
package disk

import (
	"os"
	"path/filepath"
	"sync"

	"sitewatch/pkg/log"
	"sitewatch/pkg/store"
)

const (
	minHashSubDir = 4 // two levels of two hex chars each
	dirPerm       = 0750
	filePerm      = 0640
	tempDirName   = ".incoming"
)

// Store implements the store.Store interface on the local filesystem.
type Store struct {
	storageDir string
	locks      [256]sync.Mutex
}

// New creates a disk store rooted at storageDir. The directory is created on demand.
func New(storageDir string) *Store {
	return &Store{storageDir: storageDir}
}

// ValidateHash checks if a hash string is a lowercase hex SHA-256.
func (s *Store) ValidateHash(hash string) bool {
	return store.ValidHash(hash)
}

// getFilePath returns the hierarchical path for a hash: storageDir/ab/cd/ef0123...
func (s *Store) getFilePath(hash string) string {
	if len(hash) <= minHashSubDir {
		return ""
	}
	return filepath.Join(s.storageDir, hash[:2], hash[2:4], hash[4:])
}

func (s *Store) tempDir() string {
	return filepath.Join(s.storageDir, tempDirName)
}

// hashLock returns the stripe mutex serialising writers and deleters of hash.
func (s *Store) hashLock(hash string) *sync.Mutex {
	var stripe byte
	if hash != "" {
		stripe = hash[0] ^ hash[len(hash)-1]
	}
	return &s.locks[stripe]
}

// removeEmptyParents prunes the two prefix directories above path once they are empty.
func (s *Store) removeEmptyParents(path string) {
	dir := filepath.Dir(path)
	for range minHashSubDir / 2 {
		if dir == s.storageDir {
			return
		}
		if err := os.Remove(dir); err != nil {
			if !os.IsNotExist(err) {
				log.Debug().Err(err).Str("dir", dir).Msg("Prefix directory not removed")
			}
			return
		}
		dir = filepath.Dir(dir)
	}
}
