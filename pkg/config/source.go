package config

import (
	"context"
	"sync"

	"sitewatch/pkg/models"
)

// Source yields the current sites document. It is re-read on every call so edits
// made through the API or on disk apply to the next check.
type Source interface {
	Read(ctx context.Context) (*models.SitesDocument, error)
}

// FileSource serves the sites document from a file.
type FileSource struct {
	path string
	mu   sync.RWMutex
}

// NewFileSource returns a Source backed by path.
func NewFileSource(path string) *FileSource {
	return &FileSource{path: path}
}

// Read loads the document from disk.
func (f *FileSource) Read(_ context.Context) (*models.SitesDocument, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	return Load(f.path)
}

// Write validates doc and replaces the document on disk.
func (f *FileSource) Write(_ context.Context, doc *models.SitesDocument) error {
	if err := Validate(doc); err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	return Save(f.path, doc)
}

// EnsureDefault creates the example document when none exists.
func (f *FileSource) EnsureDefault() (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	return EnsureDefault(f.path)
}

// Find resolves a site from the current document.
func Find(ctx context.Context, source Source, id string) (*models.SitesDocument, models.SiteConfig, error) {
	doc, err := source.Read(ctx)
	if err != nil {
		return nil, models.SiteConfig{}, err
	}

	site, ok := doc.Find(id)
	if !ok {
		return doc, models.SiteConfig{}, &SiteNotFoundError{ID: id}
	}

	return doc, site, nil
}
