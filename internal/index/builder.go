package index

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/eventsnap/facefinder/internal/domain"
	"github.com/eventsnap/facefinder/internal/face"
)

// imageExtensions are the corpus file types the builder picks up.
var imageExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".bmp":  true,
}

// FaceDetector is the slice of the detection pipeline the builder needs.
type FaceDetector interface {
	Detect(ctx context.Context, img []byte, sourceName string, minConfidence float64) ([]domain.DetectedFace, error)
}

// FaceExtractor is the slice of the extraction pipeline the builder needs.
type FaceExtractor interface {
	Extract(ctx context.Context, img []byte, box domain.BoundingBox) (domain.Embedding, error)
}

// Progress reports build advancement: processed and total corpus files and
// the file just finished.
type Progress struct {
	Processed int
	Total     int
	Current   string
}

// Builder constructs index artifacts from a photo directory. Building is
// an offline batch job: individual unreadable or undetectable files are
// recorded and skipped, never fatal; only a backend outage aborts a build.
type Builder struct {
	detector  FaceDetector
	extractor FaceExtractor
	logger    *slog.Logger
}

// NewBuilder creates a builder over the detection and extraction stages.
func NewBuilder(detector FaceDetector, extractor FaceExtractor, logger *slog.Logger) *Builder {
	return &Builder{
		detector:  detector,
		extractor: extractor,
		logger:    logger,
	}
}

// Build walks photoDir recursively, indexes every image file and returns
// the finished index. Photo ids are directory-relative paths, so the
// artifact stays valid when the corpus root moves. onProgress, when
// non-nil, is called after every file.
func (b *Builder) Build(ctx context.Context, modelID, photoDir string, onProgress func(Progress)) (*Index, error) {
	files, err := listImages(photoDir)
	if err != nil {
		return nil, fmt.Errorf("scan corpus %s: %w", photoDir, err)
	}

	idx := New(modelID, photoDir)
	for i, rel := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		entry, fileErr := b.indexFile(ctx, photoDir, rel)
		if fileErr != nil {
			// A dead backend fails the whole build; a bad file is recorded
			// and the build moves on.
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			if isBackendOutage(fileErr) {
				return nil, fileErr
			}
			b.logger.Warn("skipping corpus file",
				slog.String("model", modelID),
				slog.String("file", rel),
				slog.Any("error", fileErr),
			)
			idx.Errors = append(idx.Errors, FileError{Path: rel, Error: fileErr.Error()})
		} else {
			idx.ByPhoto[rel] = entry
		}

		if onProgress != nil {
			onProgress(Progress{Processed: i + 1, Total: len(files), Current: rel})
		}
	}

	return idx, nil
}

// indexFile detects and embeds every face of one corpus photo. A photo
// with zero faces still produces an entry so it is marked as processed.
func (b *Builder) indexFile(ctx context.Context, photoDir, rel string) (Entry, error) {
	data, err := os.ReadFile(filepath.Join(photoDir, rel))
	if err != nil {
		return Entry{}, fmt.Errorf("read: %w", err)
	}

	faces, err := b.detector.Detect(ctx, data, rel, face.IndexConfidenceThreshold)
	if err != nil {
		return Entry{}, fmt.Errorf("detect: %w", err)
	}

	entry := Entry{PhotoID: rel, Path: rel, Faces: make([]IndexedFace, 0, len(faces))}
	for _, f := range faces {
		emb, err := b.extractor.Extract(ctx, data, f.Box)
		if err != nil {
			return Entry{}, fmt.Errorf("extract face at %+v: %w", f.Box, err)
		}
		entry.Faces = append(entry.Faces, IndexedFace{Box: f.Box, Embedding: emb})
	}

	return entry, nil
}

// isBackendOutage picks the failures that should abort a build instead of
// being recorded as per-file errors.
func isBackendOutage(err error) bool {
	return errors.Is(err, domain.ErrDetectionUnavailable) ||
		errors.Is(err, domain.ErrExtractionFailed)
}

// listImages collects image files under root, recursing into
// subdirectories, and returns root-relative sorted paths.
func listImages(root string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if imageExtensions[strings.ToLower(filepath.Ext(path))] {
			rel, err := filepath.Rel(root, path)
			if err != nil {
				return err
			}
			files = append(files, filepath.ToSlash(rel))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return files, nil
}
