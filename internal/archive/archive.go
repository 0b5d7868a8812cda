// Package archive packages matched corpus photos into a zip the client
// downloads once its session completes. The zip is the delivery format of
// the original product: matched photos plus a machine-readable manifest.
package archive

import (
	"archive/zip"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/eventsnap/facefinder/internal/domain"
)

const manifestName = "matches.json"

// Manifest describes the zip contents so clients can render scores
// without re-parsing file names.
type Manifest struct {
	ModelID   string          `json:"model_id"`
	CreatedAt time.Time       `json:"created_at"`
	Photos    []ManifestPhoto `json:"photos"`
}

// ManifestPhoto is one matched photo of the manifest.
type ManifestPhoto struct {
	PhotoID    string  `json:"photo_id"`
	File       string  `json:"file"`
	Similarity float64 `json:"similarity"`
	Faces      int     `json:"faces"`
}

// Writer streams result zips. photoRoot holds one corpus directory per
// model; photo ids are resolved against photoRoot/<modelID>.
type Writer struct {
	photoRoot string
	logger    *slog.Logger
}

// NewWriter creates a writer over the photo root directory.
func NewWriter(photoRoot string, logger *slog.Logger) *Writer {
	return &Writer{photoRoot: photoRoot, logger: logger}
}

// Write streams a zip of the matched photos to w, best match first, with
// the manifest as the first archive entry. Photos that disappeared from
// disk since the index was built are logged and dropped from the zip but
// kept in the manifest, so the client still sees the full match list.
func (a *Writer) Write(w io.Writer, modelID string, results []domain.MatchResult) error {
	zw := zip.NewWriter(w)

	manifest := Manifest{
		ModelID:   modelID,
		CreatedAt: time.Now().UTC(),
		Photos:    make([]ManifestPhoto, 0, len(results)),
	}
	for i, res := range results {
		manifest.Photos = append(manifest.Photos, ManifestPhoto{
			PhotoID:    res.PhotoID,
			File:       zipName(i, res.PhotoID),
			Similarity: res.BestSimilarity,
			Faces:      len(res.Faces),
		})
	}

	mf, err := zw.Create(manifestName)
	if err != nil {
		return fmt.Errorf("create manifest entry: %w", err)
	}
	enc := json.NewEncoder(mf)
	enc.SetIndent("", "  ")
	if err := enc.Encode(manifest); err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}

	for i, res := range results {
		if err := a.addPhoto(zw, modelID, zipName(i, res.PhotoID), res.PhotoID); err != nil {
			return err
		}
	}

	if err := zw.Close(); err != nil {
		return fmt.Errorf("finalize archive: %w", err)
	}
	return nil
}

func (a *Writer) addPhoto(zw *zip.Writer, modelID, name, photoID string) error {
	src, err := os.Open(filepath.Join(a.photoRoot, modelID, filepath.FromSlash(photoID)))
	if err != nil {
		a.logger.Warn("matched photo missing from corpus",
			slog.String("photo", photoID),
			slog.Any("error", err),
		)
		return nil
	}
	defer src.Close()

	dst, err := zw.Create(name)
	if err != nil {
		return fmt.Errorf("create archive entry %s: %w", name, err)
	}
	if _, err := io.Copy(dst, src); err != nil {
		return fmt.Errorf("copy %s into archive: %w", photoID, err)
	}
	return nil
}

// zipName flattens nested corpus paths and prefixes the match rank so the
// extracted files sort best-first in a file browser.
func zipName(rank int, photoID string) string {
	return fmt.Sprintf("%03d_%s", rank+1, path.Base(photoID))
}
