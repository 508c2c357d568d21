package disk

import (
	"os"
	"strings"

	"sitewatch/pkg/log"
	"sitewatch/pkg/store"
)

// GetFileInfo retrieves metadata about a stored blob.
func (s *Store) GetFileInfo(hash string) (*store.FileInfo, error) {
	hash = strings.ToLower(hash)
	if !s.ValidateHash(hash) {
		log.Debug().Str("hash", hash).Msg("Invalid hash format")
		return nil, store.InvalidHashError{Hash: hash}
	}

	osFileInfo, err := os.Stat(s.getFilePath(hash))
	if os.IsNotExist(err) {
		return nil, store.FileNotFoundError{Hash: hash}
	}
	if err != nil {
		log.Error().Err(err).Str("hash", hash).Msg("Failed to get file info")
		return nil, err
	}

	return &store.FileInfo{
		Hash:      hash,
		Size:      osFileInfo.Size(),
		CreatedAt: osFileInfo.ModTime(),
	}, nil
}
