// Package status keeps the last check result of every site in memory and mirrors the
// whole map into the object store as one JSON document.
package status

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"sitewatch/pkg/log"
	"sitewatch/pkg/models"
	"sitewatch/pkg/objectstore"
)

// DocumentKey is where the status document lives in the object store.
const DocumentKey = "site-monitor/status.json"

// Store is the in-memory status map with write-through persistence.
type Store struct {
	objects objectstore.Store

	mu      sync.RWMutex
	records map[string]models.SiteStatus

	// persistMu orders document writes so a later snapshot never lands first.
	persistMu sync.Mutex
}

// New returns an empty store writing to objects.
func New(objects objectstore.Store) *Store {
	return &Store{
		objects: objects,
		records: make(map[string]models.SiteStatus),
	}
}

// Load replaces the in-memory map with the persisted document. A missing or unreadable
// document starts the store empty.
func (s *Store) Load(ctx context.Context) {
	records, err := s.fetch(ctx)
	if err != nil {
		if errors.Is(err, objectstore.ErrNotFound) {
			log.Info().Str("key", DocumentKey).Msg("No existing status found, starting fresh")
		} else {
			log.Warn().Err(err).Str("key", DocumentKey).Msg("Failed to load status, starting fresh")
		}
		records = make(map[string]models.SiteStatus)
	} else {
		log.Info().Int("sites", len(records)).Msg("Loaded existing status")
	}

	s.mu.Lock()
	s.records = records
	s.mu.Unlock()
}

func (s *Store) fetch(ctx context.Context) (map[string]models.SiteStatus, error) {
	ref, err := s.objects.Locate(ctx, DocumentKey)
	if err != nil {
		return nil, err
	}

	data, err := s.objects.Get(ctx, ref)
	if err != nil {
		return nil, err
	}

	records := make(map[string]models.SiteStatus)
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, err
	}

	return records, nil
}

// Get returns a copy of the record for id.
func (s *Store) Get(id string) (models.SiteStatus, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	record, ok := s.records[id]
	if !ok {
		return models.SiteStatus{}, false
	}
	return record.Clone(), true
}

// All returns a copy of every record keyed by site id.
func (s *Store) All() map[string]models.SiteStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]models.SiteStatus, len(s.records))
	for id, record := range s.records {
		out[id] = record.Clone()
	}
	return out
}

// Upsert replaces the record of record.ID and persists the document.
func (s *Store) Upsert(ctx context.Context, record models.SiteStatus) error {
	s.mu.Lock()
	s.records[record.ID] = record.Clone()
	s.mu.Unlock()

	return s.Persist(ctx)
}

// Persist writes the whole map to DocumentKey, overwriting the previous document.
func (s *Store) Persist(ctx context.Context) error {
	s.persistMu.Lock()
	defer s.persistMu.Unlock()

	s.mu.RLock()
	data, err := json.MarshalIndent(s.records, "", "  ")
	count := len(s.records)
	s.mu.RUnlock()
	if err != nil {
		return &PersistenceError{Err: err}
	}

	if _, err := s.objects.Put(ctx, DocumentKey, data); err != nil {
		log.Error().Err(err).Str("key", DocumentKey).Msg("Failed to persist status")
		return &PersistenceError{Err: err}
	}

	log.Debug().Int("sites", count).Msg("Status persisted")
	return nil
}
