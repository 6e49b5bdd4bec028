package catalog

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"

	"github.com/spf13/afero"

	"pgcats/models"
)

const ratingsFileName = "ratings.json"

// ratingStore is the durable cross-run rating cache: a JSON object
// mapping cache key to rating record, read wholesale at startup and
// rewritten wholesale after each build. Records merged during a build
// join whatever was already present.
type ratingStore struct {
	fs   afero.Fs
	path string

	mu      sync.Mutex
	records map[string]models.RatingRecord
}

// newRatingStore loads the cache file from dir. A missing, corrupt or
// unreadable file degrades to an empty cache with a logged warning.
func newRatingStore(fs afero.Fs, dir string) *ratingStore {
	s := &ratingStore{
		fs:      fs,
		path:    filepath.Join(dir, ratingsFileName),
		records: make(map[string]models.RatingRecord),
	}
	data, err := afero.ReadFile(fs, s.path)
	if err != nil {
		// A missing file is the normal first run; anything else gets
		// surfaced before the cache silently starts cold.
		if !errors.Is(err, os.ErrNotExist) {
			log.Printf("[catalog] WARNING: could not read %s, starting with empty ratings cache: %v", s.path, err)
		}
		return s
	}
	if err := json.Unmarshal(data, &s.records); err != nil {
		log.Printf("[catalog] WARNING: could not parse %s, starting with empty ratings cache: %v", s.path, err)
		s.records = make(map[string]models.RatingRecord)
	}
	return s
}

// cacheKey picks the stable identity for a movie: the cross-provider
// IMDB ID when known, else a namespaced TMDB fallback.
func cacheKey(imdbID string, tmdbID int64) string {
	if imdbID != "" {
		return imdbID
	}
	return fmt.Sprintf("tmdb:%d", tmdbID)
}

func (s *ratingStore) get(key string) (models.RatingRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[key]
	return rec, ok
}

// put stores a record. Two tasks racing on the same key resolve
// last-write-wins; rating records are idempotent data.
func (s *ratingStore) put(key string, rec models.RatingRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[key] = rec
}

func (s *ratingStore) size() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

// persist rewrites the cache file, pretty-printed, via tmp+rename so a
// concurrent reader never sees a torn file.
func (s *ratingStore) persist() error {
	s.mu.Lock()
	data, err := json.MarshalIndent(s.records, "", "  ")
	s.mu.Unlock()
	if err != nil {
		return err
	}

	if dir := filepath.Dir(s.path); dir != "." {
		if err := s.fs.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	tmp := s.path + ".tmp"
	if err := afero.WriteFile(s.fs, tmp, data, 0o644); err != nil {
		return err
	}
	return s.fs.Rename(tmp, s.path)
}
