package index

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/eventsnap/facefinder/internal/domain"
)

const artifactExt = ".json"

// Store persists index artifacts in a directory, one JSON file per corpus
// model. Publishing is atomic: builds are written to a temp file in the
// same directory and renamed over the artifact, so a concurrent reader
// either sees the old complete index or the new complete index, never a
// half-written one.
type Store struct {
	dir string

	mu     sync.RWMutex
	loaded map[string]*Index // read cache, invalidated on save/delete
}

// NewStore creates a store rooted at dir, creating it if needed.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create index dir %s: %w", dir, err)
	}
	return &Store{
		dir:    dir,
		loaded: make(map[string]*Index),
	}, nil
}

func (s *Store) artifactPath(modelID string) string {
	return filepath.Join(s.dir, modelID+artifactExt)
}

// validModelID rejects ids that could escape the store root once joined
// into a file or directory name. Model ids arrive straight from URLs.
func validModelID(id string) bool {
	if id == "" || id == "." || id == ".." {
		return false
	}
	return !strings.ContainsAny(id, `/\`)
}

// Save publishes an index atomically.
func (s *Store) Save(idx *Index) error {
	if !validModelID(idx.ModelID) {
		return fmt.Errorf("invalid model id %q", idx.ModelID)
	}

	data, err := json.Marshal(idx)
	if err != nil {
		return fmt.Errorf("marshal index %s: %w", idx.ModelID, err)
	}

	tmp, err := os.CreateTemp(s.dir, idx.ModelID+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp artifact: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("write temp artifact: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("close temp artifact: %w", err)
	}

	if err := os.Rename(tmpName, s.artifactPath(idx.ModelID)); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("publish index %s: %w", idx.ModelID, err)
	}

	s.mu.Lock()
	s.loaded[idx.ModelID] = idx
	s.mu.Unlock()
	return nil
}

// Load returns the index for a corpus model, reading it from disk on first
// use. Missing artifacts map to IndexNotFound; unreadable ones to
// IndexUnavailable.
func (s *Store) Load(modelID string) (*Index, error) {
	if !validModelID(modelID) {
		return nil, domain.ErrIndexNotFound.WithError(fmt.Errorf("invalid model id %q", modelID))
	}

	s.mu.RLock()
	if idx, ok := s.loaded[modelID]; ok {
		s.mu.RUnlock()
		return idx, nil
	}
	s.mu.RUnlock()

	data, err := os.ReadFile(s.artifactPath(modelID))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, domain.ErrIndexNotFound.WithError(fmt.Errorf("model %s", modelID))
		}
		return nil, domain.ErrIndexUnavailable.WithError(fmt.Errorf("read index %s: %w", modelID, err))
	}

	var idx Index
	if err := json.Unmarshal(data, &idx); err != nil {
		return nil, domain.ErrIndexUnavailable.WithError(fmt.Errorf("corrupt index %s: %w", modelID, err))
	}
	if err := validate(&idx); err != nil {
		return nil, domain.ErrIndexUnavailable.WithError(err)
	}

	s.mu.Lock()
	s.loaded[modelID] = &idx
	s.mu.Unlock()
	return &idx, nil
}

// validate rejects artifacts whose embeddings violate the fixed-512
// contract; matching against them would silently score garbage.
func validate(idx *Index) error {
	for photoID, entry := range idx.ByPhoto {
		for i, face := range entry.Faces {
			if len(face.Embedding) != domain.EmbeddingDim {
				return fmt.Errorf("index %s: photo %s face %d has %d dimensions, want %d",
					idx.ModelID, photoID, i, len(face.Embedding), domain.EmbeddingDim)
			}
		}
	}
	return nil
}

// List returns the stats of all published indexes, sorted by model id.
func (s *Store) List() ([]Stat, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("read index dir: %w", err)
	}

	stats := make([]Stat, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, artifactExt) {
			continue
		}
		modelID := strings.TrimSuffix(name, artifactExt)
		idx, err := s.Load(modelID)
		if err != nil {
			// Keep listing; a single corrupt artifact should not hide the rest.
			stats = append(stats, Stat{ModelID: modelID})
			continue
		}
		stats = append(stats, idx.Stat())
	}

	sort.Slice(stats, func(i, j int) bool { return stats[i].ModelID < stats[j].ModelID })
	return stats, nil
}

// Delete removes a published index artifact.
func (s *Store) Delete(modelID string) error {
	if !validModelID(modelID) {
		return domain.ErrIndexNotFound.WithError(fmt.Errorf("invalid model id %q", modelID))
	}

	err := os.Remove(s.artifactPath(modelID))
	if errors.Is(err, fs.ErrNotExist) {
		return domain.ErrIndexNotFound.WithError(fmt.Errorf("model %s", modelID))
	}
	if err != nil {
		return fmt.Errorf("delete index %s: %w", modelID, err)
	}

	s.mu.Lock()
	delete(s.loaded, modelID)
	s.mu.Unlock()
	return nil
}
