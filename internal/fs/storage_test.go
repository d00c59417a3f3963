package fs

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStorage(t *testing.T) *Storage {
	t.Helper()
	s, err := NewStorage(t.TempDir(), "/uploads/")
	require.NoError(t, err)
	return s
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

func TestExistsAndRemove(t *testing.T) {
	s := newTestStorage(t)
	p := filepath.Join(s.DataDir(), "photo.jpg")

	assert.False(t, s.Exists(p))
	assert.False(t, s.Exists(s.DataDir()), "directories are not files")

	writeFile(t, p, "jpeg")
	assert.True(t, s.Exists(p))

	require.NoError(t, s.Remove(p))
	assert.False(t, s.Exists(p))

	assert.NoError(t, s.Remove(p), "removing a missing file is not an error")
}

func TestMoveOverwrites(t *testing.T) {
	s := newTestStorage(t)
	tmpDir, err := s.TempDir()
	require.NoError(t, err)

	src := filepath.Join(tmpDir, "upload-1")
	dst := filepath.Join(s.DataDir(), "2026", "10", "photo.jpg")
	writeFile(t, src, "new")
	writeFile(t, dst, "old")

	require.NoError(t, s.Move(src, dst))

	got, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "new", string(got))
	assert.NoFileExists(t, src)
}

func TestMoveMissingSource(t *testing.T) {
	s := newTestStorage(t)
	err := s.Move(filepath.Join(s.DataDir(), "nope"), filepath.Join(s.DataDir(), "photo.jpg"))
	assert.Error(t, err)
}

func TestCopyFile(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src")
	dst := filepath.Join(dir, "dst")
	writeFile(t, src, "content")

	require.NoError(t, copyFile(src, dst))

	got, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "content", string(got))
	assert.NoFileExists(t, dst+".tmp")
}

func TestIngestDir(t *testing.T) {
	s := newTestStorage(t)
	dir, err := s.IngestDir(time.Date(2026, 3, 9, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(s.DataDir(), "2026", "03"), dir)
	assert.DirExists(t, dir)
}

func TestURL(t *testing.T) {
	s := newTestStorage(t)

	assert.Equal(t, "/uploads/2026/10/photo.jpg", s.URL(filepath.Join(s.DataDir(), "2026", "10", "photo.jpg")))
	assert.Equal(t, "", s.URL(filepath.Join(filepath.Dir(s.DataDir()), "elsewhere.jpg")))
}

func TestNames(t *testing.T) {
	s := newTestStorage(t)
	dir := filepath.Join(s.DataDir(), "2026", "10")

	names, err := s.Names(dir)
	require.NoError(t, err)
	assert.Empty(t, names)

	writeFile(t, filepath.Join(dir, "x.png"), "png")
	writeFile(t, filepath.Join(dir, "x-150x150.png"), "png")
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub"), 0755))

	names, err = s.Names(dir)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"x.png", "x-150x150.png"}, names)
}
