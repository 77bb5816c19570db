package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"sifter/internal/models"
)

// SQLiteStore is the production Store, backed by the pure-Go
// modernc.org/sqlite driver (no cgo required).
type SQLiteStore struct {
	db *sql.DB
}

// Open connects to dsn (see config.DatabaseURL) and ensures the schema
// exists.
func Open(dsn string) (*SQLiteStore, error) {
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	sqlDB.SetMaxOpenConns(1) // sqlite: serialize writers, matches modernc.org/sqlite guidance
	if _, err := sqlDB.Exec(schema); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &SQLiteStore{db: sqlDB}, nil
}

func (s *SQLiteStore) Close() error { return s.db.Close() }

func (s *SQLiteStore) GetUser(ctx context.Context, id string) (*models.User, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, email, name, interests, frequency, preferred_minutes FROM users WHERE id = ?`, id)
	var u models.User
	var name sql.NullString
	var interestsJSON string
	if err := row.Scan(&u.ID, &u.Email, &name, &interestsJSON, &u.Frequency, &u.PreferredMinutes); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	u.Name = name.String
	if err := json.Unmarshal([]byte(interestsJSON), &u.Interests); err != nil {
		return nil, fmt.Errorf("unmarshal interests: %w", err)
	}
	return &u, nil
}

func (s *SQLiteStore) ListSubscribedPodcastIDs(ctx context.Context, userID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT podcast_id FROM subscriptions WHERE user_id = ?`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *SQLiteStore) GetPodcast(ctx context.Context, id string) (*models.Podcast, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, rss_url, title, author, image_url, last_checked_at FROM podcasts WHERE id = ?`, id)
	var p models.Podcast
	var author, imageURL sql.NullString
	var lastChecked sql.NullTime
	if err := row.Scan(&p.ID, &p.RSSURL, &p.Title, &author, &imageURL, &lastChecked); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	p.Author = author.String
	p.ImageURL = imageURL.String
	if lastChecked.Valid {
		p.LastCheckedAt = &lastChecked.Time
	}
	return &p, nil
}

func scanEpisode(row interface {
	Scan(dest ...interface{}) error
}) (*models.Episode, error) {
	var e models.Episode
	var duration sql.NullFloat64
	var transcriptJSON sql.NullString
	if err := row.Scan(&e.ID, &e.PodcastID, &e.GUID, &e.Title, &e.AudioURL, &e.PublishedAt, &duration, &e.Status, &transcriptJSON); err != nil {
		return nil, err
	}
	if duration.Valid {
		e.Duration = &duration.Float64
	}
	if transcriptJSON.Valid && transcriptJSON.String != "" {
		var t models.Transcript
		if err := json.Unmarshal([]byte(transcriptJSON.String), &t); err != nil {
			return nil, fmt.Errorf("unmarshal transcript: %w", err)
		}
		e.Transcript = &t
	}
	return &e, nil
}

const episodeColumns = `id, podcast_id, guid, title, audio_url, published_at, duration, status, transcript`

func (s *SQLiteStore) GetEpisode(ctx context.Context, id string) (*models.Episode, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+episodeColumns+` FROM episodes WHERE id = ?`, id)
	e, err := scanEpisode(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return e, err
}

func (s *SQLiteStore) ListEpisodes(ctx context.Context, ids []string) ([]*models.Episode, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	query, args := inClauseQuery(`SELECT `+episodeColumns+` FROM episodes WHERE id IN (%s)`, ids)
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*models.Episode
	for rows.Next() {
		e, err := scanEpisode(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) ListEpisodesForPodcastsSince(ctx context.Context, podcastIDs []string, since time.Time) ([]*models.Episode, error) {
	if len(podcastIDs) == 0 {
		return nil, nil
	}
	placeholders := make([]string, len(podcastIDs))
	args := make([]interface{}, 0, len(podcastIDs)+1)
	for i, id := range podcastIDs {
		placeholders[i] = "?"
		args = append(args, id)
	}
	args = append(args, since)
	query := fmt.Sprintf(`SELECT %s FROM episodes WHERE podcast_id IN (%s) AND published_at >= ?`, episodeColumns, strings.Join(placeholders, ","))
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*models.Episode
	for rows.Next() {
		e, err := scanEpisode(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) TransitionEpisodeStatus(ctx context.Context, id string, from []models.EpisodeStatus, next models.EpisodeStatus) (bool, error) {
	placeholders := make([]string, len(from))
	args := make([]interface{}, 0, len(from)+2)
	args = append(args, next)
	for i, st := range from {
		placeholders[i] = "?"
		args = append(args, st)
	}
	args = append(args, id)
	query := fmt.Sprintf(`UPDATE episodes SET status = ? WHERE status IN (%s) AND id = ?`, strings.Join(placeholders, ","))
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (s *SQLiteStore) ResetFailedEpisodesToPending(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	query, args := inClauseQuery(`UPDATE episodes SET status = 'pending' WHERE status = 'failed' AND id IN (%s)`, ids)
	_, err := s.db.ExecContext(ctx, query, args...)
	return err
}

func (s *SQLiteStore) SaveTranscript(ctx context.Context, episodeID string, transcript *models.Transcript) error {
	b, err := json.Marshal(transcript)
	if err != nil {
		return fmt.Errorf("marshal transcript: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `UPDATE episodes SET transcript = ?, duration = ? WHERE id = ?`, string(b), transcript.Duration, episodeID)
	return err
}

func (s *SQLiteStore) ReplaceClipsForEpisode(ctx context.Context, episodeID string, clips []*models.Clip) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM clips WHERE episode_id = ?`, episodeID); err != nil {
		return err
	}
	for _, c := range clips {
		if _, err := tx.ExecContext(ctx, `INSERT INTO clips (id, episode_id, start_time, end_time, transcript, relevance_score, reasoning, summary) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			c.ID, episodeID, c.StartTime, c.EndTime, c.Transcript, c.RelevanceScore, c.Reasoning, c.Summary); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func scanClip(row interface {
	Scan(dest ...interface{}) error
}) (*models.Clip, error) {
	var c models.Clip
	var reasoning, summary, digestID sql.NullString
	if err := row.Scan(&c.ID, &c.EpisodeID, &c.StartTime, &c.EndTime, &c.Transcript, &c.RelevanceScore, &reasoning, &summary, &digestID); err != nil {
		return nil, err
	}
	c.Reasoning = reasoning.String
	c.Summary = summary.String
	if digestID.Valid {
		c.DigestID = &digestID.String
	}
	return &c, nil
}

const clipColumns = `id, episode_id, start_time, end_time, transcript, relevance_score, reasoning, summary, digest_id`

func (s *SQLiteStore) ListClipsForEpisode(ctx context.Context, episodeID string) ([]*models.Clip, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+clipColumns+` FROM clips WHERE episode_id = ? ORDER BY relevance_score DESC`, episodeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*models.Clip
	for rows.Next() {
		c, err := scanClip(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) GetClipsByIDs(ctx context.Context, ids []string) ([]*models.Clip, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	query, args := inClauseQuery(`SELECT `+clipColumns+` FROM clips WHERE id IN (%s)`, ids)
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*models.Clip
	for rows.Next() {
		c, err := scanClip(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) ListClipsForEpisodesWithEpisode(ctx context.Context, episodeIDs []string) ([]*models.ClipWithEpisode, error) {
	if len(episodeIDs) == 0 {
		return nil, nil
	}
	query, args := inClauseQuery(`
		SELECT c.id, c.episode_id, c.start_time, c.end_time, c.transcript, c.relevance_score, c.reasoning, c.summary, c.digest_id,
		       e.title, p.title, p.author
		FROM clips c
		JOIN episodes e ON e.id = c.episode_id
		JOIN podcasts p ON p.id = e.podcast_id
		WHERE c.episode_id IN (%s)
		ORDER BY c.relevance_score DESC`, episodeIDs)
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanClipsWithEpisode(rows)
}

func scanClipsWithEpisode(rows *sql.Rows) ([]*models.ClipWithEpisode, error) {
	var out []*models.ClipWithEpisode
	for rows.Next() {
		var cwe models.ClipWithEpisode
		var reasoning, summary, digestID, author sql.NullString
		if err := rows.Scan(&cwe.ID, &cwe.EpisodeID, &cwe.StartTime, &cwe.EndTime, &cwe.Transcript, &cwe.RelevanceScore, &reasoning, &summary, &digestID,
			&cwe.EpisodeTitle, &cwe.PodcastTitle, &author); err != nil {
			return nil, err
		}
		cwe.Reasoning = reasoning.String
		cwe.Summary = summary.String
		cwe.PodcastAuthor = author.String
		if digestID.Valid {
			cwe.DigestID = &digestID.String
		}
		out = append(out, &cwe)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) CreateDigest(ctx context.Context, d *models.Digest) error {
	episodeIDsJSON, err := json.Marshal(d.EpisodeIDs)
	if err != nil {
		return err
	}
	now := d.CreatedAt
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO digests (id, user_id, status, podcast_id, episode_ids, is_public, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		d.ID, d.UserID, d.Status, d.PodcastID, string(episodeIDsJSON), d.IsPublic, now, now)
	return err
}

func scanDigest(row interface {
	Scan(dest ...interface{}) error
}) (*models.Digest, error) {
	var d models.Digest
	var podcastID, narratorScript, audioURL, shareID sql.NullString
	var duration sql.NullFloat64
	var episodeIDsJSON string
	var isPublic int
	if err := row.Scan(&d.ID, &d.UserID, &d.Status, &podcastID, &episodeIDsJSON, &narratorScript, &audioURL, &duration, &isPublic, &shareID, &d.CreatedAt, &d.UpdatedAt); err != nil {
		return nil, err
	}
	if podcastID.Valid {
		d.PodcastID = &podcastID.String
	}
	if narratorScript.Valid {
		d.NarratorScript = &narratorScript.String
	}
	if audioURL.Valid {
		d.AudioURL = &audioURL.String
	}
	if duration.Valid {
		d.Duration = &duration.Float64
	}
	if shareID.Valid {
		d.ShareID = &shareID.String
	}
	d.IsPublic = isPublic != 0
	if err := json.Unmarshal([]byte(episodeIDsJSON), &d.EpisodeIDs); err != nil {
		return nil, fmt.Errorf("unmarshal episode ids: %w", err)
	}
	return &d, nil
}

const digestColumns = `id, user_id, status, podcast_id, episode_ids, narrator_script, audio_url, duration, is_public, share_id, created_at, updated_at`

func (s *SQLiteStore) GetDigest(ctx context.Context, id string) (*models.Digest, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+digestColumns+` FROM digests WHERE id = ?`, id)
	d, err := scanDigest(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return d, err
}

func (s *SQLiteStore) TransitionDigestStatus(ctx context.Context, id string, from []models.DigestStatus, next models.DigestStatus) (bool, error) {
	placeholders := make([]string, len(from))
	args := make([]interface{}, 0, len(from)+3)
	args = append(args, next, time.Now().UTC())
	for i, st := range from {
		placeholders[i] = "?"
		args = append(args, st)
	}
	args = append(args, id)
	query := fmt.Sprintf(`UPDATE digests SET status = ?, updated_at = ? WHERE status IN (%s) AND id = ?`, strings.Join(placeholders, ","))
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (s *SQLiteStore) SetNarratorScript(ctx context.Context, digestID string, script *string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE digests SET narrator_script = ?, updated_at = ? WHERE id = ?`, script, time.Now().UTC(), digestID)
	return err
}

func (s *SQLiteStore) PublishDigest(ctx context.Context, digestID string, audioURL string, duration float64) error {
	_, err := s.db.ExecContext(ctx, `UPDATE digests SET audio_url = ?, duration = ?, status = ?, updated_at = ? WHERE id = ?`,
		audioURL, duration, models.DigestStatusReady, time.Now().UTC(), digestID)
	return err
}

func (s *SQLiteStore) ReplaceDigestClips(ctx context.Context, digestID string, orderedClipIDs []string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM digest_clips WHERE digest_id = ?`, digestID); err != nil {
		return err
	}
	for order, clipID := range orderedClipIDs {
		if _, err := tx.ExecContext(ctx, `INSERT INTO digest_clips (digest_id, clip_id, "order") VALUES (?, ?, ?)`, digestID, clipID, order); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `UPDATE clips SET digest_id = ? WHERE id = ?`, digestID, clipID); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *SQLiteStore) ListDigestClips(ctx context.Context, digestID string) ([]*models.DigestClip, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT digest_id, clip_id, "order" FROM digest_clips WHERE digest_id = ? ORDER BY "order" ASC`, digestID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*models.DigestClip
	for rows.Next() {
		var dc models.DigestClip
		if err := rows.Scan(&dc.DigestID, &dc.ClipID, &dc.Order); err != nil {
			return nil, err
		}
		out = append(out, &dc)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) ListDigestClipsWithEpisode(ctx context.Context, digestID string) ([]*models.ClipWithEpisode, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT c.id, c.episode_id, c.start_time, c.end_time, c.transcript, c.relevance_score, c.reasoning, c.summary, c.digest_id,
		       e.title, p.title, p.author
		FROM digest_clips dc
		JOIN clips c ON c.id = dc.clip_id
		JOIN episodes e ON e.id = c.episode_id
		JOIN podcasts p ON p.id = e.podcast_id
		WHERE dc.digest_id = ?
		ORDER BY dc."order" ASC`, digestID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanClipsWithEpisode(rows)
}

// inClauseQuery expands a `%s` placeholder in query with len(ids) `?`
// placeholders and returns the args slice to pass alongside it.
func inClauseQuery(query string, ids []string) (string, []interface{}) {
	placeholders := make([]string, len(ids))
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		placeholders[i] = "?"
		args[i] = id
	}
	return fmt.Sprintf(query, strings.Join(placeholders, ",")), args
}
