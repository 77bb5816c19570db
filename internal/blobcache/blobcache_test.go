package blobcache

import (
	"os"
	"path/filepath"
	"testing"

	"sifter/internal/config"
)

func withTempRoots(t *testing.T) {
	t.Helper()
	dir := t.TempDir()
	prevTemp, prevDigest := config.TempRoot, config.DigestRoot
	config.TempRoot = filepath.Join(dir, "work")
	config.DigestRoot = filepath.Join(dir, "digests")
	t.Cleanup(func() {
		config.TempRoot, config.DigestRoot = prevTemp, prevDigest
	})
}

func TestEpisodeDirCreatesDirectory(t *testing.T) {
	withTempRoots(t)

	dir, err := EpisodeDir("ep1")
	if err != nil {
		t.Fatalf("EpisodeDir: %v", err)
	}
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		t.Fatalf("expected directory at %s to exist", dir)
	}
}

func TestChunkPathNestedUnderEpisodeDir(t *testing.T) {
	withTempRoots(t)

	path, err := ChunkPath("ep1", 3)
	if err != nil {
		t.Fatalf("ChunkPath: %v", err)
	}
	want := filepath.Join(config.TempRoot, "episodes", "ep1", "chunk-0003.mp3")
	if path != want {
		t.Fatalf("expected %s, got %s", want, path)
	}
}

func TestCleanupEpisodeRemovesDirectory(t *testing.T) {
	withTempRoots(t)

	dir, err := EpisodeDir("ep1")
	if err != nil {
		t.Fatalf("EpisodeDir: %v", err)
	}
	if err := CleanupEpisode("ep1"); err != nil {
		t.Fatalf("CleanupEpisode: %v", err)
	}
	if _, err := os.Stat(dir); !os.IsNotExist(err) {
		t.Fatalf("expected directory removed, stat err = %v", err)
	}
}

func TestDigestWorkDirAndCleanup(t *testing.T) {
	withTempRoots(t)

	dir, err := DigestWorkDir("d1")
	if err != nil {
		t.Fatalf("DigestWorkDir: %v", err)
	}
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		t.Fatalf("expected digest work dir to exist at %s", dir)
	}
	if err := CleanupDigest("d1"); err != nil {
		t.Fatalf("CleanupDigest: %v", err)
	}
	if _, err := os.Stat(dir); !os.IsNotExist(err) {
		t.Fatalf("expected digest dir removed")
	}
}
