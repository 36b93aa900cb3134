package infra

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// FilesystemArchive persists retention archives as JSONL files under a base
// directory, one file per table per sweep. The returned reference is the file
// path relative to the base directory.
type FilesystemArchive struct {
	baseDir string
}

// NewFilesystemArchive creates the archive root if needed.
func NewFilesystemArchive(baseDir string) (*FilesystemArchive, error) {
	if err := os.MkdirAll(baseDir, 0o750); err != nil {
		return nil, fmt.Errorf("create archive dir: %w", err)
	}
	return &FilesystemArchive{baseDir: baseDir}, nil
}

// WriteArchive writes one JSON document per line. The write goes through a
// temp file and rename so a crashed sweep never leaves a partial archive
// that looks complete.
func (a *FilesystemArchive) WriteArchive(ctx context.Context, table string, sweepAt time.Time, rows [][]byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	rel := fmt.Sprintf("%s/%s.jsonl", table, sweepAt.UTC().Format("20060102T150405Z"))
	full := filepath.Join(a.baseDir, rel)
	if err := os.MkdirAll(filepath.Dir(full), 0o750); err != nil {
		return "", fmt.Errorf("create archive table dir: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(full), ".archive-*")
	if err != nil {
		return "", fmt.Errorf("create archive temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	for _, row := range rows {
		if _, err := tmp.Write(append(row, '\n')); err != nil {
			tmp.Close()
			return "", fmt.Errorf("write archive row: %w", err)
		}
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return "", fmt.Errorf("sync archive: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("close archive: %w", err)
	}
	if err := os.Rename(tmp.Name(), full); err != nil {
		return "", fmt.Errorf("finalize archive: %w", err)
	}
	return rel, nil
}
