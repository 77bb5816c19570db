// Package dbtest provides an in-memory db.Store fake for stage and
// orchestrator tests, so they don't need a real SQLite file.
package dbtest

import (
	"context"
	"sync"
	"time"

	"sifter/internal/errs"
	"sifter/internal/models"
)

// Store is a minimal in-memory implementation of db.Store.
type Store struct {
	mu sync.Mutex

	Users       map[string]*models.User
	Subs        map[string][]string // userID -> podcastIDs
	Podcasts    map[string]*models.Podcast
	Episodes    map[string]*models.Episode
	Clips       map[string]*models.Clip
	Digests     map[string]*models.Digest
	DigestClips map[string][]string // digestID -> ordered clip IDs
}

// New returns an empty fake store ready for test setup.
func New() *Store {
	return &Store{
		Users:       map[string]*models.User{},
		Subs:        map[string][]string{},
		Podcasts:    map[string]*models.Podcast{},
		Episodes:    map[string]*models.Episode{},
		Clips:       map[string]*models.Clip{},
		Digests:     map[string]*models.Digest{},
		DigestClips: map[string][]string{},
	}
}

func (s *Store) GetUser(ctx context.Context, id string) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Users[id], nil
}

func (s *Store) ListSubscribedPodcastIDs(ctx context.Context, userID string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.Subs[userID]...), nil
}

func (s *Store) GetPodcast(ctx context.Context, id string) (*models.Podcast, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Podcasts[id], nil
}

func (s *Store) GetEpisode(ctx context.Context, id string) (*models.Episode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ep := s.Episodes[id]
	if ep == nil {
		return nil, nil
	}
	cp := *ep
	return &cp, nil
}

func (s *Store) ListEpisodes(ctx context.Context, ids []string) ([]*models.Episode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.Episode
	for _, id := range ids {
		if ep, ok := s.Episodes[id]; ok {
			cp := *ep
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *Store) ListEpisodesForPodcastsSince(ctx context.Context, podcastIDs []string, since time.Time) ([]*models.Episode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	want := make(map[string]bool, len(podcastIDs))
	for _, id := range podcastIDs {
		want[id] = true
	}
	var out []*models.Episode
	for _, ep := range s.Episodes {
		if want[ep.PodcastID] && !ep.PublishedAt.Before(since) {
			cp := *ep
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *Store) TransitionEpisodeStatus(ctx context.Context, id string, from []models.EpisodeStatus, next models.EpisodeStatus) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ep, ok := s.Episodes[id]
	if !ok {
		return false, nil
	}
	if !statusIn(ep.Status, from) {
		return false, nil
	}
	ep.Status = next
	return true, nil
}

func (s *Store) ResetFailedEpisodesToPending(ctx context.Context, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		if ep, ok := s.Episodes[id]; ok && ep.Status == models.EpisodeStatusFailed {
			ep.Status = models.EpisodeStatusPending
		}
	}
	return nil
}

func (s *Store) SaveTranscript(ctx context.Context, episodeID string, transcript *models.Transcript) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ep, ok := s.Episodes[episodeID]
	if !ok {
		return errs.NotFound("episode " + episodeID + " not found")
	}
	ep.Transcript = transcript
	d := transcript.Duration
	ep.Duration = &d
	return nil
}

func (s *Store) ReplaceClipsForEpisode(ctx context.Context, episodeID string, clips []*models.Clip) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, c := range s.Clips {
		if c.EpisodeID == episodeID {
			delete(s.Clips, id)
		}
	}
	for _, c := range clips {
		cp := *c
		s.Clips[cp.ID] = &cp
	}
	return nil
}

func (s *Store) ListClipsForEpisode(ctx context.Context, episodeID string) ([]*models.Clip, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.Clip
	for _, c := range s.Clips {
		if c.EpisodeID == episodeID {
			cp := *c
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *Store) ListClipsForEpisodesWithEpisode(ctx context.Context, episodeIDs []string) ([]*models.ClipWithEpisode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	want := make(map[string]bool, len(episodeIDs))
	for _, id := range episodeIDs {
		want[id] = true
	}
	var out []*models.ClipWithEpisode
	for _, c := range s.Clips {
		if !want[c.EpisodeID] {
			continue
		}
		out = append(out, s.withEpisodeLocked(c))
	}
	return out, nil
}

func (s *Store) GetClipsByIDs(ctx context.Context, ids []string) ([]*models.Clip, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.Clip
	for _, id := range ids {
		if c, ok := s.Clips[id]; ok {
			cp := *c
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *Store) CreateDigest(ctx context.Context, d *models.Digest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *d
	s.Digests[cp.ID] = &cp
	return nil
}

func (s *Store) GetDigest(ctx context.Context, id string) (*models.Digest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d := s.Digests[id]
	if d == nil {
		return nil, nil
	}
	cp := *d
	return &cp, nil
}

func (s *Store) TransitionDigestStatus(ctx context.Context, id string, from []models.DigestStatus, next models.DigestStatus) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.Digests[id]
	if !ok {
		return false, nil
	}
	ok = false
	for _, f := range from {
		if d.Status == f {
			ok = true
			break
		}
	}
	if !ok {
		return false, nil
	}
	d.Status = next
	d.UpdatedAt = time.Now().UTC()
	return true, nil
}

func (s *Store) SetNarratorScript(ctx context.Context, digestID string, script *string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.Digests[digestID]
	if !ok {
		return errs.NotFound("digest " + digestID + " not found")
	}
	d.NarratorScript = script
	return nil
}

func (s *Store) PublishDigest(ctx context.Context, digestID string, audioURL string, duration float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.Digests[digestID]
	if !ok {
		return errs.NotFound("digest " + digestID + " not found")
	}
	d.AudioURL = &audioURL
	d.Duration = &duration
	d.Status = models.DigestStatusReady
	d.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *Store) ReplaceDigestClips(ctx context.Context, digestID string, orderedClipIDs []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.DigestClips[digestID] = append([]string(nil), orderedClipIDs...)
	for _, c := range s.Clips {
		if c.DigestID != nil && *c.DigestID == digestID {
			c.DigestID = nil
		}
	}
	for _, id := range orderedClipIDs {
		if c, ok := s.Clips[id]; ok {
			d := digestID
			c.DigestID = &d
		}
	}
	return nil
}

func (s *Store) ListDigestClips(ctx context.Context, digestID string) ([]*models.DigestClip, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := s.DigestClips[digestID]
	out := make([]*models.DigestClip, len(ids))
	for i, id := range ids {
		out[i] = &models.DigestClip{DigestID: digestID, ClipID: id, Order: i}
	}
	return out, nil
}

func (s *Store) ListDigestClipsWithEpisode(ctx context.Context, digestID string) ([]*models.ClipWithEpisode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := s.DigestClips[digestID]
	out := make([]*models.ClipWithEpisode, 0, len(ids))
	for _, id := range ids {
		if c, ok := s.Clips[id]; ok {
			out = append(out, s.withEpisodeLocked(c))
		}
	}
	return out, nil
}

func (s *Store) withEpisodeLocked(c *models.Clip) *models.ClipWithEpisode {
	cwe := &models.ClipWithEpisode{Clip: *c}
	if ep, ok := s.Episodes[c.EpisodeID]; ok {
		cwe.EpisodeTitle = ep.Title
		if pod, ok := s.Podcasts[ep.PodcastID]; ok {
			cwe.PodcastTitle = pod.Title
			cwe.PodcastAuthor = pod.Author
		}
	}
	return cwe
}

func statusIn(status models.EpisodeStatus, set []models.EpisodeStatus) bool {
	for _, s := range set {
		if status == s {
			return true
		}
	}
	return false
}
