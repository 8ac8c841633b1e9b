package watcher

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mkFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestScanFindsSupportedFiles(t *testing.T) {
	root := t.TempDir()
	mkFile(t, filepath.Join(root, "a.md"), "# doc")
	mkFile(t, filepath.Join(root, "src", "main.go"), "package main")
	mkFile(t, filepath.Join(root, "img.png"), "binary")
	mkFile(t, filepath.Join(root, "node_modules", "dep.js"), "skip me")
	mkFile(t, filepath.Join(root, ".git", "config"), "skip me")
	mkFile(t, filepath.Join(root, ".DS_Store"), "skip me")

	results, wait := NewScanner(0).Scan(context.Background(), root)

	var paths []string
	for r := range results {
		paths = append(paths, r.Path)
	}
	require.NoError(t, wait())

	assert.ElementsMatch(t, []string{
		filepath.Join(root, "a.md"),
		filepath.Join(root, "src", "main.go"),
	}, paths)
}

func TestScanSkipsOversizedFiles(t *testing.T) {
	root := t.TempDir()
	mkFile(t, filepath.Join(root, "small.txt"), "ok")
	mkFile(t, filepath.Join(root, "big.txt"), strings.Repeat("x", 4096))

	results, wait := NewScanner(1024).Scan(context.Background(), root)

	var paths []string
	for r := range results {
		paths = append(paths, r.Path)
	}
	require.NoError(t, wait())
	assert.Equal(t, []string{filepath.Join(root, "small.txt")}, paths)
}

func TestScanCancellation(t *testing.T) {
	root := t.TempDir()
	for i := 0; i < 50; i++ {
		mkFile(t, filepath.Join(root, "f", "file"+string(rune('a'+i%26))+".txt"), "x")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	results, wait := NewScanner(0).Scan(ctx, root)
	for range results {
	}
	assert.Error(t, wait())
}

func TestCountFiles(t *testing.T) {
	root := t.TempDir()
	mkFile(t, filepath.Join(root, "a.txt"), "x")
	mkFile(t, filepath.Join(root, "b.py"), "x")

	count, err := NewScanner(0).CountFiles(context.Background(), root)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestExists(t *testing.T) {
	root := t.TempDir()
	assert.True(t, Exists(root))
	assert.False(t, Exists(filepath.Join(root, "missing")))

	file := filepath.Join(root, "f.txt")
	mkFile(t, file, "x")
	assert.False(t, Exists(file), "files are not directories")
}
