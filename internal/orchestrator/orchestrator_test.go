package orchestrator

import (
	"context"
	"testing"
	"time"

	"sifter/internal/db/dbtest"
	"sifter/internal/models"
	"sifter/internal/queue/mock"
	"sifter/internal/stagectx"
)

type stubStage struct {
	calls int
	err   error
}

func (s *stubStage) Handle(ctx context.Context, jc stagectx.Context) error {
	s.calls++
	return s.err
}

func TestRunForUserReturnsNilWhenNoSubscriptions(t *testing.T) {
	store := dbtest.New()
	store.Users["u1"] = &models.User{ID: "u1"}
	q := mock.New()
	o := &Orchestrator{Store: store, Queue: q, Curation: &stubStage{}, Assembly: &stubStage{}}

	digest, err := o.RunForUser(context.Background(), &stagectx.Shim{}, "u1")
	if err != nil {
		t.Fatalf("RunForUser: %v", err)
	}
	if digest != nil {
		t.Fatalf("expected nil digest with no subscriptions, got %+v", digest)
	}
}

func TestRunForUserErrorsOnUnknownUser(t *testing.T) {
	store := dbtest.New()
	q := mock.New()
	o := &Orchestrator{Store: store, Queue: q, Curation: &stubStage{}, Assembly: &stubStage{}}

	_, err := o.RunForUser(context.Background(), &stagectx.Shim{}, "ghost")
	if err == nil {
		t.Fatal("expected error for unknown user")
	}
}

func TestRunForUserReturnsNilWhenNoRecentEpisodes(t *testing.T) {
	store := dbtest.New()
	store.Users["u1"] = &models.User{ID: "u1", Frequency: models.FrequencyDaily}
	store.Subs["u1"] = []string{"p1"}
	store.Podcasts["p1"] = &models.Podcast{ID: "p1"}
	store.Episodes["old"] = &models.Episode{
		ID: "old", PodcastID: "p1", Status: models.EpisodeStatusPending,
		PublishedAt: time.Now().AddDate(0, 0, -30),
	}
	q := mock.New()
	o := &Orchestrator{Store: store, Queue: q, Curation: &stubStage{}, Assembly: &stubStage{}}

	digest, err := o.RunForUser(context.Background(), &stagectx.Shim{}, "u1")
	if err != nil {
		t.Fatalf("RunForUser: %v", err)
	}
	if digest != nil {
		t.Fatalf("expected nil digest when no episode falls in window, got %+v", digest)
	}
}

func TestRunForUserEnqueuesTranscriptionForPendingEpisodes(t *testing.T) {
	store := dbtest.New()
	store.Users["u1"] = &models.User{ID: "u1", Frequency: models.FrequencyDaily}
	store.Subs["u1"] = []string{"p1"}
	store.Podcasts["p1"] = &models.Podcast{ID: "p1"}
	store.Episodes["new"] = &models.Episode{
		ID: "new", PodcastID: "p1", Status: models.EpisodeStatusPending,
		PublishedAt: time.Now(),
	}
	q := mock.New()
	o := &Orchestrator{Store: store, Queue: q, Curation: &stubStage{}, Assembly: &stubStage{}}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, _ = o.RunForUser(ctx, &stagectx.Shim{}, "u1")

	jobs := q.JobsFor("transcription")
	if len(jobs) != 1 {
		t.Fatalf("expected 1 transcription job enqueued, got %d", len(jobs))
	}
}

func TestWindowStartUsesDailyFallbackWithoutPriorState(t *testing.T) {
	store := dbtest.New()
	user := &models.User{ID: "u1", Frequency: models.FrequencyDaily}
	o := &Orchestrator{Store: store}

	since, err := o.windowStart(context.Background(), user)
	if err != nil {
		t.Fatalf("windowStart: %v", err)
	}
	dayAgo := time.Now().AddDate(0, 0, -1)
	if since.After(dayAgo.Add(time.Minute)) || since.Before(dayAgo.Add(-time.Minute)) {
		t.Fatalf("expected daily fallback window around %v, got %v", dayAgo, since)
	}
}

func TestWindowStartUsesWeeklyFallbackForWeeklyUser(t *testing.T) {
	store := dbtest.New()
	user := &models.User{ID: "u1", Frequency: models.FrequencyWeekly}
	o := &Orchestrator{Store: store}

	since, err := o.windowStart(context.Background(), user)
	if err != nil {
		t.Fatalf("windowStart: %v", err)
	}
	weekAgo := time.Now().AddDate(0, 0, -7)
	if since.After(weekAgo.Add(time.Minute)) || since.Before(weekAgo.Add(-time.Minute)) {
		t.Fatalf("expected weekly fallback window around %v, got %v", weekAgo, since)
	}
}
