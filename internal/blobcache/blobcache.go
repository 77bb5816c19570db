// Package blobcache manages the ephemeral working directories each stage
// uses while handling audio: downloaded episode audio, transcription
// chunks, and in-progress digest assembly. Episode work lives under
// config.TempRoot and digest assembly work under config.DigestRoot; each
// directory is cleaned up once a job's stage completes.
package blobcache

import (
	"fmt"
	"os"
	"path/filepath"

	"sifter/internal/config"
)

// EpisodeDir returns (creating if needed) the working directory for
// episodeID's downloaded source audio and transcription chunks.
func EpisodeDir(episodeID string) (string, error) {
	return ensureDir(filepath.Join(config.TempRoot, "episodes", episodeID))
}

// ChunkPath returns the path a transcription chunk numbered index should be
// written to for episodeID.
func ChunkPath(episodeID string, index int) (string, error) {
	dir, err := EpisodeDir(episodeID)
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, fmt.Sprintf("chunk-%04d.mp3", index)), nil
}

// CompressedPath returns the path the single low-bitrate compression pass
// of episodeID's source audio should be written to.
func CompressedPath(episodeID string) (string, error) {
	dir, err := EpisodeDir(episodeID)
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "compressed.mp3"), nil
}

// DigestWorkDir returns (creating if needed) the working directory digest
// assembly uses for clip extraction, narrator TTS segments, and the final
// concatenated output before publication.
func DigestWorkDir(digestID string) (string, error) {
	return ensureDir(filepath.Join(config.DigestRoot, digestID))
}

// CleanupEpisode removes episodeID's working directory once transcription
// has persisted its output to the Persistence Layer.
func CleanupEpisode(episodeID string) error {
	return os.RemoveAll(filepath.Join(config.TempRoot, "episodes", episodeID))
}

// CleanupDigest removes digestID's working directory once its audio has
// been published to the Blob Store.
func CleanupDigest(digestID string) error {
	return os.RemoveAll(filepath.Join(config.DigestRoot, digestID))
}

func ensureDir(path string) (string, error) {
	if err := os.MkdirAll(path, 0o755); err != nil {
		return "", fmt.Errorf("create dir %s: %w", path, err)
	}
	return path, nil
}
