// Package index builds, persists and serves per-corpus face indexes. An
// index is an offline build artifact: every photo of one event corpus
// mapped to the embeddings of the faces found in it. Matching only ever
// reads published indexes; rebuilds replace the artifact atomically.
package index

import (
	"sort"
	"time"

	"github.com/eventsnap/facefinder/internal/domain"
)

// IndexedFace is one face of a corpus photo with its embedding.
type IndexedFace struct {
	Box       domain.BoundingBox `json:"bounding_box"`
	Embedding domain.Embedding   `json:"embedding"`
}

// Entry is the index record of a single corpus photo. Photos without any
// detected face keep an entry with an empty Faces slice, which is what
// distinguishes "processed, nothing found" from "never indexed".
type Entry struct {
	PhotoID string        `json:"photo_id"`
	Path    string        `json:"path"`
	Faces   []IndexedFace `json:"faces"`
}

// FileError records a corpus file the build had to skip.
type FileError struct {
	Path  string `json:"path"`
	Error string `json:"error"`
}

// Index is the in-memory form of one corpus artifact. Read-only after
// build or load; safe for concurrent readers.
type Index struct {
	ModelID  string           `json:"model_id"`
	Version  int              `json:"version"`
	BuiltAt  time.Time        `json:"built_at"`
	PhotoDir string           `json:"photo_dir"`
	ByPhoto  map[string]Entry `json:"entries"`
	Errors   []FileError      `json:"errors,omitempty"`
}

// New creates an empty index for a corpus.
func New(modelID, photoDir string) *Index {
	return &Index{
		ModelID:  modelID,
		Version:  1,
		BuiltAt:  time.Now().UTC(),
		PhotoDir: photoDir,
		ByPhoto:  make(map[string]Entry),
	}
}

// Get returns the entry for a photo id.
func (idx *Index) Get(photoID string) (Entry, bool) {
	e, ok := idx.ByPhoto[photoID]
	return e, ok
}

// Entries returns all entries ordered by photo id, so iteration order
// (and therefore match tie-breaking) is deterministic.
func (idx *Index) Entries() []Entry {
	ids := make([]string, 0, len(idx.ByPhoto))
	for id := range idx.ByPhoto {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	out := make([]Entry, 0, len(ids))
	for _, id := range ids {
		out = append(out, idx.ByPhoto[id])
	}
	return out
}

// FaceCount returns the total number of indexed faces.
func (idx *Index) FaceCount() int {
	var n int
	for _, e := range idx.ByPhoto {
		n += len(e.Faces)
	}
	return n
}

// Stat is the summary returned when listing stored indexes.
type Stat struct {
	ModelID string    `json:"model_id"`
	Photos  int       `json:"photos"`
	Faces   int       `json:"faces"`
	Errors  int       `json:"errors"`
	BuiltAt time.Time `json:"built_at"`
}

// Stat summarizes the index.
func (idx *Index) Stat() Stat {
	return Stat{
		ModelID: idx.ModelID,
		Photos:  len(idx.ByPhoto),
		Faces:   idx.FaceCount(),
		Errors:  len(idx.Errors),
		BuiltAt: idx.BuiltAt,
	}
}
