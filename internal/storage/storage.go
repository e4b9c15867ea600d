// Package storage manages the working directories for uploaded and produced
// files. Every stored file gets a unique name so concurrent requests never
// collide, and a janitor removes files once they are old enough.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
)

var ErrNotFound = errors.New("storage: file not found")

var unsafeChars = regexp.MustCompile(`[^\p{L}\p{N}._ -]+`)

const maxNameRunes = 160

// uuid string plus "_"
const prefixLen = 37

// Store owns the upload and output directories.
type Store struct {
	UploadDir string
	OutputDir string
}

// New creates both directories if needed.
func New(uploadDir, outputDir string) (*Store, error) {
	for _, d := range []string{uploadDir, outputDir} {
		if err := os.MkdirAll(d, 0o755); err != nil {
			return nil, fmt.Errorf("storage: %w", err)
		}
	}
	return &Store{UploadDir: uploadDir, OutputDir: outputDir}, nil
}

// SanitizeName drops any directory part of a client-supplied file name and
// replaces characters that are unsafe in a path.
func SanitizeName(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	name = unsafeChars.ReplaceAllString(name, "_")
	name = strings.Trim(name, " .")
	if r := []rune(name); len(r) > maxNameRunes {
		ext := filepath.Ext(name)
		name = string(r[:maxNameRunes-len([]rune(ext))]) + ext
	}
	if name == "" {
		return "file"
	}
	return name
}

// DisplayName strips the unique prefix added by SaveUpload and OutputPath.
func DisplayName(path string) string {
	base := filepath.Base(path)
	if len(base) > prefixLen && base[prefixLen-1] == '_' {
		if _, err := uuid.Parse(base[:prefixLen-1]); err == nil {
			return base[prefixLen:]
		}
	}
	return base
}

func unique(dir, name string) string {
	return filepath.Join(dir, uuid.NewString()+"_"+SanitizeName(name))
}

// SaveUpload copies r to a new file in the upload directory.
func (s *Store) SaveUpload(name string, r io.Reader) (string, error) {
	path := unique(s.UploadDir, name)
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return "", fmt.Errorf("storage: %w", err)
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		os.Remove(path)
		return "", fmt.Errorf("storage: save %s: %w", name, err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("storage: %w", err)
	}
	return path, nil
}

// OutputPath returns a fresh path in the output directory for name.
func (s *Store) OutputPath(name string) string {
	return unique(s.OutputDir, name)
}

// Resolve maps a download name back to a file in the output directory.
func (s *Store) Resolve(name string) (string, error) {
	if name == "" || name != filepath.Base(name) || strings.HasPrefix(name, ".") {
		return "", ErrNotFound
	}
	path := filepath.Join(s.OutputDir, name)
	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		return "", ErrNotFound
	}
	return path, nil
}

// Cleanup deletes regular files older than maxAge from both directories and
// returns how many were removed.
func (s *Store) Cleanup(maxAge time.Duration) (int, error) {
	cutoff := time.Now().Add(-maxAge)
	removed := 0
	var errs []error
	for _, dir := range []string{s.UploadDir, s.OutputDir} {
		entries, err := os.ReadDir(dir)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		for _, e := range entries {
			if !e.Type().IsRegular() {
				continue
			}
			info, err := e.Info()
			if err != nil || info.ModTime().After(cutoff) {
				continue
			}
			if err := os.Remove(filepath.Join(dir, e.Name())); err != nil && !errors.Is(err, os.ErrNotExist) {
				errs = append(errs, err)
				continue
			}
			removed++
		}
	}
	return removed, errors.Join(errs...)
}

// Run calls Cleanup every interval until ctx is done.
func (s *Store) Run(ctx context.Context, interval, maxAge time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := s.Cleanup(maxAge)
			if err != nil {
				slog.Warn("storage: cleanup error", "err", err)
			}
			if n > 0 {
				slog.Info("storage: removed stale files", "count", n)
			}
		}
	}
}
