package disk

import (
	"os"
	"strings"

	"sitewatch/pkg/log"
	"sitewatch/pkg/store"
)

// Delete removes a blob with the given hash from storage and prunes empty prefix
// directories.
func (s *Store) Delete(hash string) error {
	hash = strings.ToLower(hash)
	if !s.ValidateHash(hash) {
		log.Debug().Str("hash", hash).Msg("Invalid hash format for delete")
		return store.InvalidHashError{Hash: hash}
	}

	lock := s.hashLock(hash)
	lock.Lock()
	defer lock.Unlock()

	filePath := s.getFilePath(hash)
	if err := os.Remove(filePath); err != nil {
		if os.IsNotExist(err) {
			log.Debug().Str("hash", hash).Msg("Content not found for delete")
			return store.FileNotFoundError{Hash: hash}
		}
		log.Error().Err(err).Str("file_path", filePath).Str("hash", hash).Msg("Failed to delete content")
		return err
	}

	s.removeEmptyParents(filePath)

	log.Info().Str("hash", hash).Msg("Content deleted")
	return nil
}
