// Package config loads, validates and saves the sites document. The format follows
// the file extension: .yaml/.yml is YAML, anything else JSON.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"sitewatch/pkg/log"
	"sitewatch/pkg/models"
)

const (
	dirPerm  = 0750
	filePerm = 0640

	// maxDocumentSize bounds the sites document read from disk.
	maxDocumentSize = 10 * 1024 * 1024
)

// Default returns the example document written on first start.
func Default() *models.SitesDocument {
	threshold := models.DefaultThreshold
	siteThreshold := models.DefaultThreshold
	delay := float64(models.DefaultDelaySeconds)

	return &models.SitesDocument{
		Sites: []models.SiteConfig{
			{
				ID:        "example",
				Name:      "Example Site",
				URL:       "https://example.com",
				Threshold: &siteThreshold,
			},
		},
		Defaults: models.SiteDefaults{
			Threshold: &threshold,
			Viewport:  &models.Viewport{Width: models.DefaultViewportWidth, Height: models.DefaultViewportHeight},
			Delay:     &delay,
		},
	}
}

// Load reads and parses the document at path.
func Load(path string) (*models.SitesDocument, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("sites document %s: %w", path, err)
	}
	if info.Size() > maxDocumentSize {
		return nil, fmt.Errorf("sites document %s exceeds %d bytes", path, maxDocumentSize)
	}

	data, err := os.ReadFile(path) //nolint:gosec // path is operator supplied
	if err != nil {
		return nil, fmt.Errorf("failed to read sites document %s: %w", path, err)
	}

	return Parse(data, path)
}

// Parse decodes data using the format implied by name's extension.
func Parse(data []byte, name string) (*models.SitesDocument, error) {
	doc := &models.SitesDocument{}

	if isYAMLFile(filepath.Ext(name)) {
		if err := yaml.Unmarshal(data, doc); err != nil {
			return nil, fmt.Errorf("failed to unmarshal YAML from '%s': %w", name, err)
		}
	} else {
		if err := json.Unmarshal(data, doc); err != nil {
			return nil, fmt.Errorf("failed to unmarshal JSON from '%s': %w", name, err)
		}
	}

	if doc.Sites == nil {
		doc.Sites = []models.SiteConfig{}
	}

	return doc, nil
}

// Marshal encodes doc in the format implied by name's extension.
func Marshal(doc *models.SitesDocument, name string) ([]byte, error) {
	if isYAMLFile(filepath.Ext(name)) {
		data, err := yaml.Marshal(doc)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal sites document to YAML: %w", err)
		}
		return data, nil
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal sites document to JSON: %w", err)
	}
	return append(data, '\n'), nil
}

// Save writes doc to path atomically: readers see either the old or the new document.
func Save(path string, doc *models.SitesDocument) error {
	data, err := Marshal(doc, path)
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, dirPerm); err != nil {
		return fmt.Errorf("failed to create config directory %s: %w", dir, err)
	}

	tempFile, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("failed to create temporary file: %w", err)
	}
	tempName := tempFile.Name()
	defer func() {
		if removeErr := os.Remove(tempName); removeErr != nil && !os.IsNotExist(removeErr) {
			log.Warn().Err(removeErr).Str("temp_file", tempName).Msg("Failed to remove temporary file")
		}
	}()

	if _, err := tempFile.Write(data); err != nil {
		_ = tempFile.Close()
		return fmt.Errorf("failed to write sites document: %w", err)
	}
	if err := tempFile.Sync(); err != nil {
		_ = tempFile.Close()
		return fmt.Errorf("failed to flush sites document: %w", err)
	}
	if err := tempFile.Close(); err != nil {
		return fmt.Errorf("failed to close sites document: %w", err)
	}
	if err := os.Chmod(tempName, filePerm); err != nil {
		return fmt.Errorf("failed to set permissions on sites document: %w", err)
	}

	if err := os.Rename(tempName, path); err != nil {
		return fmt.Errorf("failed to replace sites document: %w", err)
	}

	log.Info().Str("path", path).Int("sites", len(doc.Sites)).Msg("Sites document saved")
	return nil
}

// EnsureDefault writes the example document when path does not exist yet. It reports
// whether a document was created.
func EnsureDefault(path string) (bool, error) {
	if _, err := os.Stat(path); err == nil {
		return false, nil
	} else if !os.IsNotExist(err) {
		return false, fmt.Errorf("sites document %s: %w", path, err)
	}

	if err := Save(path, Default()); err != nil {
		return false, err
	}

	log.Info().Str("path", path).Msg("Created default sites document")
	return true, nil
}

func isYAMLFile(ext string) bool {
	ext = strings.ToLower(ext)
	return ext == ".yaml" || ext == ".yml"
}
