// Package scanner walks import folders for camera-trap images and registers
// them in the study datastore.
package scanner

import (
	"io/fs"
	"iter"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/tphakala/camtrap-go/internal/datastore"
	"github.com/tphakala/camtrap-go/internal/logging"
)

// getLoggerSafe returns a logger for the service, falling back to default if logging not initialized
func getLoggerSafe(service string) *slog.Logger {
	logger := logging.ForService(service)
	if logger == nil {
		logger = slog.Default().With("service", service)
	}
	return logger
}

// imageExtensions is the fixed allow-list of media extensions. Video files
// are handled by a separate pipeline and are intentionally excluded.
var imageExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".gif":  true,
	".bmp":  true,
	".webp": true,
}

// IsImageFile reports whether the path carries an allowed image extension.
func IsImageFile(path string) bool {
	return imageExtensions[strings.ToLower(filepath.Ext(path))]
}

// Walk returns a lazy, depth-first sequence of absolute image paths under
// root. The sequence is finite and restartable by re-invocation; no cursor is
// persisted. Directory read errors are yielded to the caller and terminate
// the walk.
func Walk(root string) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		walkErr := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				if !yield("", err) {
					return fs.SkipAll
				}
				return err
			}
			if d.IsDir() || !IsImageFile(path) {
				return nil
			}

			absPath, absErr := filepath.Abs(path)
			if absErr != nil {
				absPath = path
			}
			if !yield(absPath, nil) {
				return fs.SkipAll
			}
			return nil
		})
		// Errors encountered mid-walk were already yielded above; an error
		// opening the root itself arrives through WalkDir's return value.
		_ = walkErr
	}
}

// MediaFromPath builds a Media row for a discovered file. FolderName is the
// file's directory relative to the import root and is later used to derive
// the deployment location.
func MediaFromPath(path, importRoot string) datastore.Media {
	dir := filepath.Dir(path)
	folderName, err := filepath.Rel(importRoot, dir)
	if err != nil || folderName == "." {
		folderName = filepath.Base(dir)
	}

	return datastore.Media{
		FilePath:     path,
		FileName:     filepath.Base(path),
		ImportFolder: importRoot,
		FolderName:   folderName,
	}
}

// BulkInsert walks root and registers every discovered image in the store in
// large transactional batches. It returns the number of media rows inserted.
// No de-duplication by path is performed against existing rows.
func BulkInsert(ds datastore.Interface, root string) (int, error) {
	const flushSize = 500

	absRoot, err := filepath.Abs(root)
	if err != nil {
		absRoot = root
	}

	batch := make([]datastore.Media, 0, flushSize)
	inserted := 0

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := ds.InsertMediaBatch(batch); err != nil {
			return err
		}
		inserted += len(batch)
		batch = batch[:0]
		return nil
	}

	for path, err := range Walk(absRoot) {
		if err != nil {
			return inserted, err
		}
		batch = append(batch, MediaFromPath(path, absRoot))
		if len(batch) >= flushSize {
			if err := flush(); err != nil {
				return inserted, err
			}
		}
	}
	if err := flush(); err != nil {
		return inserted, err
	}

	getLoggerSafe("scanner").Info("media scan complete", "root", absRoot, "inserted", inserted)
	return inserted, nil
}
