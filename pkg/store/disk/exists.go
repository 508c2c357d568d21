package disk

import (
	"os"

	"sitewatch/pkg/store"
)

// Exists checks if a blob with the given hash exists in storage.
func (s *Store) Exists(hash string) (bool, error) {
	if !s.ValidateHash(hash) {
		return false, store.InvalidHashError{Hash: hash}
	}

	info, err := os.Stat(s.getFilePath(hash))
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	return info.Mode().IsRegular(), nil
}
