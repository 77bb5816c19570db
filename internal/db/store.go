// Package db implements the persistence layer: typed, transactional access
// to Users, Podcasts, Episodes, Clips, Digests, and DigestClips, with the
// conditional status-transition primitive the rest of the pipeline relies on
// for resumability.
package db

import (
	"context"
	"time"

	"sifter/internal/models"
)

// Store is the persistence interface every pipeline stage depends on.
// Production code uses SQLiteStore; tests use the in-memory fake in
// db/dbtest.
type Store interface {
	GetUser(ctx context.Context, id string) (*models.User, error)
	ListSubscribedPodcastIDs(ctx context.Context, userID string) ([]string, error)

	GetPodcast(ctx context.Context, id string) (*models.Podcast, error)

	GetEpisode(ctx context.Context, id string) (*models.Episode, error)
	ListEpisodes(ctx context.Context, ids []string) ([]*models.Episode, error)
	ListEpisodesForPodcastsSince(ctx context.Context, podcastIDs []string, since time.Time) ([]*models.Episode, error)

	// TransitionEpisodeStatus performs `UPDATE episodes SET status=$next WHERE
	// id=$id AND status IN ($from...)`, atomically. It reports whether a row
	// was updated (false means the episode was not in one of the expected
	// prior states — the caller should fail fast with a Busy error).
	TransitionEpisodeStatus(ctx context.Context, id string, from []models.EpisodeStatus, next models.EpisodeStatus) (bool, error)
	// ResetFailedEpisodesToPending transitions every episode in ids currently
	// `failed` to `pending`, used by the Orchestrator before enqueuing.
	ResetFailedEpisodesToPending(ctx context.Context, ids []string) error
	SaveTranscript(ctx context.Context, episodeID string, transcript *models.Transcript) error

	ReplaceClipsForEpisode(ctx context.Context, episodeID string, clips []*models.Clip) error
	ListClipsForEpisode(ctx context.Context, episodeID string) ([]*models.Clip, error)
	ListClipsForEpisodesWithEpisode(ctx context.Context, episodeIDs []string) ([]*models.ClipWithEpisode, error)
	GetClipsByIDs(ctx context.Context, ids []string) ([]*models.Clip, error)

	CreateDigest(ctx context.Context, d *models.Digest) error
	GetDigest(ctx context.Context, id string) (*models.Digest, error)
	TransitionDigestStatus(ctx context.Context, id string, from []models.DigestStatus, next models.DigestStatus) (bool, error)
	SetNarratorScript(ctx context.Context, digestID string, script *string) error
	PublishDigest(ctx context.Context, digestID string, audioURL string, duration float64) error

	ReplaceDigestClips(ctx context.Context, digestID string, orderedClipIDs []string) error
	ListDigestClips(ctx context.Context, digestID string) ([]*models.DigestClip, error)
	ListDigestClipsWithEpisode(ctx context.Context, digestID string) ([]*models.ClipWithEpisode, error)
}
