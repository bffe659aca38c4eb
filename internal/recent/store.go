package recent

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"go-tube-download/index"
	"go-tube-download/internal/database"
	"go-tube-download/internal/models"

	"github.com/blevesearch/bleve/v2"
	log "github.com/sirupsen/logrus"
)

// ErrNotFound is returned when a record id is not in the store.
var ErrNotFound = errors.New("recent download not found")

// DefaultMaxItems caps the history when no explicit limit is configured.
const DefaultMaxItems = 100

// Store is the bounded, most-recent-first collection of completed downloads.
// Every mutation rewrites the whole collection to the database before it is
// applied in memory, so a crash can lose at most the mutation in flight and a
// failed write leaves the in-memory view untouched. The bleve index is
// maintained best-effort after the durable write.
type Store struct {
	db       *database.DB
	idx      bleve.Index
	maxItems int

	mu    sync.Mutex
	items []models.RecentDownload
}

// NewStore loads the persisted collection from db. A missing key is an empty
// store, not an error. idx may be nil to run without full-text search.
func NewStore(db *database.DB, idx bleve.Index, maxItems int) (*Store, error) {
	if maxItems <= 0 {
		maxItems = DefaultMaxItems
	}
	s := &Store{db: db, idx: idx, maxItems: maxItems}

	raw, err := db.Get([]byte(database.KeyRecentDownloads))
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return s, nil
		}
		return nil, fmt.Errorf("loading recent downloads: %w", err)
	}
	if err := json.Unmarshal(raw, &s.items); err != nil {
		return nil, fmt.Errorf("parsing recent downloads: %w", err)
	}
	log.Debugf("Loaded %d recent download(s)", len(s.items))
	return s, nil
}

// Add upserts a record at the front of the list. An existing record with the
// same id is removed from its position first, so re-downloading moves the
// item to the front rather than duplicating it. Overflow evicts from the
// tail.
func (s *Store) Add(rec models.RecentDownload) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var evicted []models.RecentDownload

	kept := make([]models.RecentDownload, 0, len(s.items)+1)
	kept = append(kept, rec)
	for _, it := range s.items {
		if it.ID == rec.ID {
			continue
		}
		kept = append(kept, it)
	}
	if len(kept) > s.maxItems {
		evicted = kept[s.maxItems:]
		kept = kept[:s.maxItems]
	}

	if err := s.persistLocked(kept); err != nil {
		return err
	}
	s.items = kept

	s.indexAdd(rec)
	for _, ev := range evicted {
		s.indexRemove(ev.ID)
	}
	return nil
}

// List returns the records most-recent-first.
func (s *Store) List() []models.RecentDownload {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]models.RecentDownload, len(s.items))
	copy(out, s.items)
	return out
}

// Get returns one record by id.
func (s *Store) Get(id string) (models.RecentDownload, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, it := range s.items {
		if it.ID == id {
			return it, nil
		}
	}
	return models.RecentDownload{}, ErrNotFound
}

// Search returns records whose title or URL contains the query,
// case-insensitively, preserving list order. An empty query matches
// everything.
func (s *Store) Search(query string) []models.RecentDownload {
	s.mu.Lock()
	defer s.mu.Unlock()

	needle := strings.ToLower(query)
	var out []models.RecentDownload
	for _, it := range s.items {
		if strings.Contains(strings.ToLower(it.Title), needle) ||
			strings.Contains(strings.ToLower(it.URL), needle) {
			out = append(out, it)
		}
	}
	return out
}

// SearchIndexed runs a bleve query-string search over the history and
// returns the matching records in result order.
func (s *Store) SearchIndexed(query string) ([]models.RecentDownload, error) {
	if s.idx == nil {
		return nil, errors.New("no search index configured")
	}
	result, err := index.SearchIndex(s.idx, query)
	if err != nil {
		return nil, fmt.Errorf("index search: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	byID := make(map[string]models.RecentDownload, len(s.items))
	for _, it := range s.items {
		byID[it.ID] = it
	}

	var out []models.RecentDownload
	for _, hit := range result.Hits {
		if rec, ok := byID[hit.ID]; ok {
			out = append(out, rec)
		}
	}
	return out, nil
}

// Remove deletes one record by id.
func (s *Store) Remove(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	found := false
	kept := make([]models.RecentDownload, 0, len(s.items))
	for _, it := range s.items {
		if it.ID == id {
			found = true
			continue
		}
		kept = append(kept, it)
	}
	if !found {
		return ErrNotFound
	}

	if err := s.persistLocked(kept); err != nil {
		return err
	}
	s.items = kept

	s.indexRemove(id)
	return nil
}

// Clear removes all records.
func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	old := s.items
	if err := s.persistLocked(nil); err != nil {
		return err
	}
	s.items = nil

	for _, it := range old {
		s.indexRemove(it.ID)
	}
	return nil
}

// Len reports the number of records held.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

// Reindex points the store at idx and indexes every held record into it.
// Meant for rebuilding a deleted or corrupted index from the durable records.
func (s *Store) Reindex(idx bleve.Index) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.idx = idx
	for _, it := range s.items {
		if err := index.IndexItem(idx, indexItemFor(it)); err != nil {
			return fmt.Errorf("indexing record %s: %w", it.ID, err)
		}
	}
	return nil
}

// persistLocked writes the given collection to the database. Callers hold
// s.mu and assign s.items only after this succeeds.
func (s *Store) persistLocked(items []models.RecentDownload) error {
	data, err := json.Marshal(items)
	if err != nil {
		return fmt.Errorf("marshalling recent downloads: %w", err)
	}
	if err := s.db.Put([]byte(database.KeyRecentDownloads), data); err != nil {
		return fmt.Errorf("persisting recent downloads: %w", err)
	}
	return nil
}

func indexItemFor(rec models.RecentDownload) index.Item {
	return index.Item{
		ID:          rec.ID,
		Title:       rec.Title,
		URL:         rec.URL,
		FilePath:    rec.FilePath,
		Quality:     rec.Quality,
		Uploader:    rec.Uploader,
		SizeBytes:   float64(rec.SizeBytes),
		DurationSec: float64(rec.DurationSec),
		CompletedAt: float64(rec.CompletedAt),
	}
}

func (s *Store) indexAdd(rec models.RecentDownload) {
	if s.idx == nil {
		return
	}
	if err := index.IndexItem(s.idx, indexItemFor(rec)); err != nil {
		log.WithError(err).Warnf("Failed to index recent download %s", rec.ID)
	}
}

func (s *Store) indexRemove(id string) {
	if s.idx == nil {
		return
	}
	if err := index.DeleteItem(s.idx, id); err != nil {
		log.WithError(err).Warnf("Failed to remove %s from search index", id)
	}
}
