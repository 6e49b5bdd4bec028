package catalog

import (
	"encoding/json"
	"log"
	"path/filepath"
	"sync"
	"time"

	"github.com/spf13/afero"

	"pgcats/models"
)

const catalogFileName = "catalog.json"

// Library keeps the most recent successful build for serving and
// mirrors it to disk so a restart does not blank the catalog. This is
// the caller-side persistence role: the pipeline itself only returns
// the ordered entries.
type Library struct {
	fs   afero.Fs
	path string

	mu      sync.RWMutex
	entries []models.CatalogEntry
	builtAt time.Time
}

// NewLibrary loads the previously stored catalog from dir when present.
func NewLibrary(fs afero.Fs, dir string) *Library {
	l := &Library{fs: fs, path: filepath.Join(dir, catalogFileName)}
	data, err := afero.ReadFile(fs, l.path)
	if err != nil {
		return l
	}
	var entries []models.CatalogEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		log.Printf("[catalog] WARNING: could not parse stored catalog %s: %v", l.path, err)
		return l
	}
	l.entries = entries
	l.builtAt = time.Now()
	return l
}

// Replace swaps in a new build output and persists it best effort.
func (l *Library) Replace(entries []models.CatalogEntry) {
	l.mu.Lock()
	l.entries = entries
	l.builtAt = time.Now()
	l.mu.Unlock()

	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		log.Printf("[catalog] WARNING: could not encode catalog: %v", err)
		return
	}
	if dir := filepath.Dir(l.path); dir != "." {
		if err := l.fs.MkdirAll(dir, 0o755); err != nil {
			log.Printf("[catalog] WARNING: could not create catalog dir: %v", err)
			return
		}
	}
	tmp := l.path + ".tmp"
	if err := afero.WriteFile(l.fs, tmp, data, 0o644); err != nil {
		log.Printf("[catalog] WARNING: could not write catalog file: %v", err)
		return
	}
	if err := l.fs.Rename(tmp, l.path); err != nil {
		log.Printf("[catalog] WARNING: could not replace catalog file: %v", err)
	}
}

// Entries returns the stored catalog in build order.
func (l *Library) Entries() []models.CatalogEntry {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]models.CatalogEntry, len(l.entries))
	copy(out, l.entries)
	return out
}

// Get looks up a single entry by its catalog id.
func (l *Library) Get(id string) (models.CatalogEntry, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	for _, e := range l.entries {
		if e.ID == id {
			return e, true
		}
	}
	return models.CatalogEntry{}, false
}

// BuiltAt reports when the stored catalog was last replaced; zero when
// nothing has been built yet.
func (l *Library) BuiltAt() time.Time {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.builtAt
}
