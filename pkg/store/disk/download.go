package disk

import (
	"io"
	"os"
	"strings"

	"sitewatch/pkg/log"
	"sitewatch/pkg/store"
)

// DownloadStream opens the blob for hash. The caller must close the returned reader.
func (s *Store) DownloadStream(hash string) (io.ReadCloser, error) {
	hash = strings.ToLower(hash)
	if !s.ValidateHash(hash) {
		log.Debug().Str("hash", hash).Msg("Invalid hash format")
		return nil, store.InvalidHashError{Hash: hash}
	}

	file, err := os.Open(s.getFilePath(hash)) //nolint:gosec // path is built from a validated hash
	if os.IsNotExist(err) {
		log.Debug().Str("hash", hash).Msg("Content not found")
		return nil, store.FileNotFoundError{Hash: hash}
	}
	if err != nil {
		log.Error().Err(err).Str("hash", hash).Msg("Failed to open content")
		return nil, err
	}

	return file, nil
}
