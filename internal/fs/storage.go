package fs

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
	"syscall"
	"time"
)

// Storage implements media.ArtifactStore using the filesystem
type Storage struct {
	dataDir string
	baseURL string
}

// NewStorage creates a new filesystem storage rooted at dataDir. Files
// under dataDir are served under baseURL.
func NewStorage(dataDir, baseURL string) (*Storage, error) {
	abs, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory: %w", err)
	}
	if err := os.MkdirAll(abs, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	return &Storage{
		dataDir: abs,
		baseURL: strings.TrimSuffix(baseURL, "/"),
	}, nil
}

// DataDir returns the absolute root directory.
func (s *Storage) DataDir() string {
	return s.dataDir
}

// TempDir returns the directory uploads are spooled to. It lives inside the
// data directory so moving a spooled upload into place is a rename.
func (s *Storage) TempDir() (string, error) {
	dir := filepath.Join(s.dataDir, ".tmp")
	if err := os.MkdirAll(dir, 0700); err != nil {
		return "", fmt.Errorf("failed to create temp directory: %w", err)
	}
	return dir, nil
}

// IngestDir returns the year/month directory for new uploads, creating it.
func (s *Storage) IngestDir(now time.Time) (string, error) {
	dir := filepath.Join(s.dataDir, now.Format("2006"), now.Format("01"))
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create upload directory: %w", err)
	}
	return dir, nil
}

// Exists checks if a regular file exists at path
func (s *Storage) Exists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

// Names lists the regular files directly inside dir. A missing dir has
// no files.
func (s *Storage) Names(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to list directory: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.Type().IsRegular() {
			names = append(names, e.Name())
		}
	}
	return names, nil
}

// Remove deletes the file at path
func (s *Storage) Remove(path string) error {
	if err := os.Remove(path); err != nil {
		if os.IsNotExist(err) {
			return nil // File already deleted
		}
		return fmt.Errorf("failed to delete file: %w", err)
	}
	return nil
}

// Move places src at dst, overwriting dst. It falls back to copying when
// src and dst are on different devices.
func (s *Storage) Move(src, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return fmt.Errorf("failed to create target directory: %w", err)
	}

	err := os.Rename(src, dst)
	if err == nil {
		return nil
	}
	if !errors.Is(err, syscall.EXDEV) {
		return fmt.Errorf("failed to move file: %w", err)
	}

	if err := copyFile(src, dst); err != nil {
		return err
	}
	if err := os.Remove(src); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove source file: %w", err)
	}
	return nil
}

// URL maps a path under the data directory to its public URL. Paths outside
// the data directory have no URL.
func (s *Storage) URL(p string) string {
	rel, err := filepath.Rel(s.dataDir, p)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return ""
	}
	return s.baseURL + path.Clean("/"+filepath.ToSlash(rel))
}

// copyFile writes src to a temp file next to dst, then renames it over dst.
func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open source file: %w", err)
	}
	defer in.Close()

	tmp := dst + ".tmp"
	out, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}

	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(tmp)
		return fmt.Errorf("failed to write file content: %w", err)
	}
	if err := out.Sync(); err != nil {
		out.Close()
		os.Remove(tmp)
		return fmt.Errorf("failed to sync file: %w", err)
	}
	if err := out.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to close file: %w", err)
	}

	if err := os.Rename(tmp, dst); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to move file: %w", err)
	}
	return nil
}
