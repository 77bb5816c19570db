package db

import (
	"context"
	"testing"
	"time"

	"sifter/internal/models"
)

func openTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func seedUserAndPodcast(t *testing.T, store *SQLiteStore) {
	t.Helper()
	ctx := context.Background()
	if _, err := store.db.ExecContext(ctx, `INSERT INTO users (id, email, interests, frequency, preferred_minutes) VALUES (?, ?, ?, ?, ?)`,
		"u1", "u1@example.com", `["go","ai"]`, "daily", 15); err != nil {
		t.Fatalf("seed user: %v", err)
	}
	if _, err := store.db.ExecContext(ctx, `INSERT INTO podcasts (id, rss_url, title) VALUES (?, ?, ?)`,
		"p1", "https://example.com/feed.xml", "Test Cast"); err != nil {
		t.Fatalf("seed podcast: %v", err)
	}
	if _, err := store.db.ExecContext(ctx, `INSERT INTO subscriptions (user_id, podcast_id) VALUES (?, ?)`, "u1", "p1"); err != nil {
		t.Fatalf("seed subscription: %v", err)
	}
}

func TestGetUserReturnsNilForUnknown(t *testing.T) {
	store := openTestStore(t)
	u, err := store.GetUser(context.Background(), "ghost")
	if err != nil {
		t.Fatalf("GetUser: %v", err)
	}
	if u != nil {
		t.Fatalf("expected nil user, got %+v", u)
	}
}

func TestGetUserDecodesInterests(t *testing.T) {
	store := openTestStore(t)
	seedUserAndPodcast(t, store)

	u, err := store.GetUser(context.Background(), "u1")
	if err != nil {
		t.Fatalf("GetUser: %v", err)
	}
	if len(u.Interests) != 2 || u.Interests[0] != "go" {
		t.Fatalf("expected decoded interests [go ai], got %v", u.Interests)
	}
}

func TestListSubscribedPodcastIDs(t *testing.T) {
	store := openTestStore(t)
	seedUserAndPodcast(t, store)

	ids, err := store.ListSubscribedPodcastIDs(context.Background(), "u1")
	if err != nil {
		t.Fatalf("ListSubscribedPodcastIDs: %v", err)
	}
	if len(ids) != 1 || ids[0] != "p1" {
		t.Fatalf("expected [p1], got %v", ids)
	}
}

func insertEpisode(t *testing.T, store *SQLiteStore, id, podcastID, status string, publishedAt time.Time) {
	t.Helper()
	_, err := store.db.ExecContext(context.Background(), `
		INSERT INTO episodes (id, podcast_id, guid, title, audio_url, published_at, status) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		id, podcastID, id+"-guid", "Episode "+id, "https://example.com/"+id+".mp3", publishedAt, status)
	if err != nil {
		t.Fatalf("insert episode: %v", err)
	}
}

func TestTransitionEpisodeStatusOnlyFromExpectedStates(t *testing.T) {
	store := openTestStore(t)
	seedUserAndPodcast(t, store)
	insertEpisode(t, store, "e1", "p1", "pending", time.Now())

	ok, err := store.TransitionEpisodeStatus(context.Background(), "e1",
		[]models.EpisodeStatus{models.EpisodeStatusPending, models.EpisodeStatusFailed}, models.EpisodeStatusDownloading)
	if err != nil {
		t.Fatalf("TransitionEpisodeStatus: %v", err)
	}
	if !ok {
		t.Fatal("expected transition from pending to succeed")
	}

	ok, err = store.TransitionEpisodeStatus(context.Background(), "e1",
		[]models.EpisodeStatus{models.EpisodeStatusPending, models.EpisodeStatusFailed}, models.EpisodeStatusDownloading)
	if err != nil {
		t.Fatalf("TransitionEpisodeStatus: %v", err)
	}
	if ok {
		t.Fatal("expected second transition from downloading to be rejected")
	}
}

func TestListEpisodesForPodcastsSinceFiltersByWindow(t *testing.T) {
	store := openTestStore(t)
	seedUserAndPodcast(t, store)
	insertEpisode(t, store, "old", "p1", "pending", time.Now().AddDate(0, 0, -30))
	insertEpisode(t, store, "new", "p1", "pending", time.Now())

	since := time.Now().AddDate(0, 0, -1)
	eps, err := store.ListEpisodesForPodcastsSince(context.Background(), []string{"p1"}, since)
	if err != nil {
		t.Fatalf("ListEpisodesForPodcastsSince: %v", err)
	}
	if len(eps) != 1 || eps[0].ID != "new" {
		t.Fatalf("expected only the recent episode, got %v", eps)
	}
}

func TestSaveTranscriptPersistsDurationAndSegments(t *testing.T) {
	store := openTestStore(t)
	seedUserAndPodcast(t, store)
	insertEpisode(t, store, "e1", "p1", "transcribing", time.Now())

	transcript := &models.Transcript{
		Text:     "hello",
		Segments: []models.Segment{{Start: 0, End: 5, Text: "hello"}},
		Duration: 5,
	}
	if err := store.SaveTranscript(context.Background(), "e1", transcript); err != nil {
		t.Fatalf("SaveTranscript: %v", err)
	}

	ep, err := store.GetEpisode(context.Background(), "e1")
	if err != nil {
		t.Fatalf("GetEpisode: %v", err)
	}
	if ep.Transcript == nil || ep.Transcript.Text != "hello" {
		t.Fatalf("expected persisted transcript, got %+v", ep.Transcript)
	}
	if ep.Duration == nil || *ep.Duration != 5 {
		t.Fatalf("expected duration 5, got %v", ep.Duration)
	}
}

func TestReplaceClipsForEpisodeReplacesWholesale(t *testing.T) {
	store := openTestStore(t)
	seedUserAndPodcast(t, store)
	insertEpisode(t, store, "e1", "p1", "analyzing", time.Now())

	first := []*models.Clip{{ID: "c1", EpisodeID: "e1", StartTime: 0, EndTime: 30, Transcript: "t", RelevanceScore: 0.5}}
	if err := store.ReplaceClipsForEpisode(context.Background(), "e1", first); err != nil {
		t.Fatalf("ReplaceClipsForEpisode: %v", err)
	}
	second := []*models.Clip{{ID: "c2", EpisodeID: "e1", StartTime: 0, EndTime: 45, Transcript: "t2", RelevanceScore: 0.8}}
	if err := store.ReplaceClipsForEpisode(context.Background(), "e1", second); err != nil {
		t.Fatalf("ReplaceClipsForEpisode: %v", err)
	}

	clips, err := store.ListClipsForEpisode(context.Background(), "e1")
	if err != nil {
		t.Fatalf("ListClipsForEpisode: %v", err)
	}
	if len(clips) != 1 || clips[0].ID != "c2" {
		t.Fatalf("expected wholesale replacement leaving only c2, got %v", clips)
	}
}

func TestDigestLifecycle(t *testing.T) {
	store := openTestStore(t)
	seedUserAndPodcast(t, store)
	insertEpisode(t, store, "e1", "p1", "analyzed", time.Now())

	clip := &models.Clip{ID: "c1", EpisodeID: "e1", StartTime: 0, EndTime: 60, Transcript: "t", RelevanceScore: 0.9}
	if err := store.ReplaceClipsForEpisode(context.Background(), "e1", []*models.Clip{clip}); err != nil {
		t.Fatalf("ReplaceClipsForEpisode: %v", err)
	}

	digest := &models.Digest{ID: "d1", UserID: "u1", Status: models.DigestStatusCurating, EpisodeIDs: []string{"e1"}, CreatedAt: time.Now().UTC()}
	if err := store.CreateDigest(context.Background(), digest); err != nil {
		t.Fatalf("CreateDigest: %v", err)
	}

	ok, err := store.TransitionDigestStatus(context.Background(), "d1", []models.DigestStatus{models.DigestStatusCurating}, models.DigestStatusPending)
	if err != nil {
		t.Fatalf("TransitionDigestStatus: %v", err)
	}
	if !ok {
		t.Fatal("expected digest transition to succeed")
	}

	if err := store.ReplaceDigestClips(context.Background(), "d1", []string{"c1"}); err != nil {
		t.Fatalf("ReplaceDigestClips: %v", err)
	}

	withEpisode, err := store.ListDigestClipsWithEpisode(context.Background(), "d1")
	if err != nil {
		t.Fatalf("ListDigestClipsWithEpisode: %v", err)
	}
	if len(withEpisode) != 1 || withEpisode[0].PodcastTitle != "Test Cast" {
		t.Fatalf("expected 1 clip joined with podcast title, got %+v", withEpisode)
	}

	script := `{"intro":"hi","transitions":[],"outro":"bye"}`
	if err := store.SetNarratorScript(context.Background(), "d1", &script); err != nil {
		t.Fatalf("SetNarratorScript: %v", err)
	}

	if err := store.PublishDigest(context.Background(), "d1", "https://blobs.example.com/d1.mp3", 90); err != nil {
		t.Fatalf("PublishDigest: %v", err)
	}

	final, err := store.GetDigest(context.Background(), "d1")
	if err != nil {
		t.Fatalf("GetDigest: %v", err)
	}
	if final.Status != models.DigestStatusReady {
		t.Fatalf("expected ready status, got %s", final.Status)
	}
	if final.AudioURL == nil || *final.AudioURL != "https://blobs.example.com/d1.mp3" {
		t.Fatalf("expected published audio url, got %v", final.AudioURL)
	}
	if final.NarratorScript == nil || *final.NarratorScript != script {
		t.Fatalf("expected persisted narrator script, got %v", final.NarratorScript)
	}
}

func TestResetFailedEpisodesToPending(t *testing.T) {
	store := openTestStore(t)
	seedUserAndPodcast(t, store)
	insertEpisode(t, store, "e1", "p1", "failed", time.Now())
	insertEpisode(t, store, "e2", "p1", "analyzed", time.Now())

	if err := store.ResetFailedEpisodesToPending(context.Background(), []string{"e1", "e2"}); err != nil {
		t.Fatalf("ResetFailedEpisodesToPending: %v", err)
	}

	e1, err := store.GetEpisode(context.Background(), "e1")
	if err != nil {
		t.Fatalf("GetEpisode e1: %v", err)
	}
	if e1.Status != models.EpisodeStatusPending {
		t.Fatalf("expected e1 reset to pending, got %s", e1.Status)
	}

	e2, err := store.GetEpisode(context.Background(), "e2")
	if err != nil {
		t.Fatalf("GetEpisode e2: %v", err)
	}
	if e2.Status != models.EpisodeStatusAnalyzed {
		t.Fatalf("expected e2 left untouched at analyzed, got %s", e2.Status)
	}
}
