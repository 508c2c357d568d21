package disk

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"

	"sitewatch/pkg/log"
	"sitewatch/pkg/store"
)

// Upload stores the content of reader and returns its hash.
func (s *Store) Upload(reader io.Reader, filename string) (*store.UploadResult, error) {
	log.Debug().Str("filename", filename).Msg("Processing upload")

	hash, size, tempFile, err := s.processAndHashFile(reader)
	if err != nil {
		return nil, err
	}
	defer s.cleanupTempFile(tempFile)

	lock := s.hashLock(hash)
	lock.Lock()
	defer lock.Unlock()

	if exists, err := s.Exists(hash); err != nil {
		return nil, err
	} else if exists {
		log.Debug().Str("hash", hash).Msg("Content already stored")
		return nil, store.FileExistsError{Hash: hash}
	}

	if err := s.commitTempFile(hash, tempFile); err != nil {
		return nil, err
	}

	log.Info().
		Str("hash", hash).
		Str("filename", filename).
		Str("size", humanize.Bytes(uint64(size))). //nolint:gosec // size comes from io.Copy
		Msg("Content stored")
	return &store.UploadResult{Hash: hash, Size: size}, nil
}

// processAndHashFile streams reader into a temp file inside the storage directory while
// hashing it, so the final move is a same-filesystem rename.
func (s *Store) processAndHashFile(reader io.Reader) (string, int64, *os.File, error) {
	if err := os.MkdirAll(s.tempDir(), dirPerm); err != nil {
		log.Error().Err(err).Str("temp_dir", s.tempDir()).Msg("Failed to create temporary directory")
		return "", 0, nil, err
	}

	tempFile, err := os.CreateTemp(s.tempDir(), "upload-*")
	if err != nil {
		log.Error().Err(err).Msg("Failed to create temporary file")
		return "", 0, nil, err
	}

	hasher := sha256.New()
	size, err := io.Copy(io.MultiWriter(hasher, tempFile), reader)
	if err != nil {
		log.Error().Err(err).Msg("Failed to read upload")
		s.cleanupTempFile(tempFile)
		return "", 0, nil, err
	}

	return hex.EncodeToString(hasher.Sum(nil)), size, tempFile, nil
}

// commitTempFile moves the hashed temp file to its content address.
func (s *Store) commitTempFile(hash string, tempFile *os.File) error {
	targetPath := s.getFilePath(hash)
	if targetPath == "" {
		log.Error().Str("hash", hash).Msg("Invalid hash generated")
		return store.InvalidHashError{Hash: hash}
	}

	targetDir := filepath.Dir(targetPath)
	if err := os.MkdirAll(targetDir, dirPerm); err != nil {
		log.Error().Err(err).Str("target_dir", targetDir).Msg("Failed to create target directory")
		return err
	}

	if err := tempFile.Sync(); err != nil {
		log.Error().Err(err).Msg("Failed to flush temporary file")
		return err
	}

	if err := tempFile.Chmod(filePerm); err != nil {
		log.Error().Err(err).Msg("Failed to set permissions on temporary file")
		return err
	}

	if err := os.Rename(tempFile.Name(), targetPath); err != nil {
		log.Error().Err(err).Str("target_path", targetPath).Msg("Failed to move content into place")
		return err
	}

	return nil
}

// cleanupTempFile closes and removes the temporary file. After a successful rename the
// remove finds nothing, which is fine.
func (s *Store) cleanupTempFile(tempFile *os.File) {
	if tempFile == nil {
		return
	}

	if err := tempFile.Close(); err != nil {
		log.Error().Err(err).Msg("Failed to close temporary file")
	}

	if err := os.Remove(tempFile.Name()); err != nil && !os.IsNotExist(err) {
		log.Error().Err(err).Str("temp_file", tempFile.Name()).Msg("Failed to remove temporary file")
	}
}
