package db

const schema = `
CREATE TABLE IF NOT EXISTS users (
	id TEXT PRIMARY KEY,
	email TEXT NOT NULL,
	name TEXT,
	interests TEXT NOT NULL DEFAULT '[]',
	frequency TEXT NOT NULL DEFAULT 'weekly',
	preferred_minutes INTEGER NOT NULL DEFAULT 15
);

CREATE TABLE IF NOT EXISTS podcasts (
	id TEXT PRIMARY KEY,
	rss_url TEXT NOT NULL UNIQUE,
	title TEXT NOT NULL,
	author TEXT,
	image_url TEXT,
	last_checked_at DATETIME
);

CREATE TABLE IF NOT EXISTS subscriptions (
	user_id TEXT NOT NULL,
	podcast_id TEXT NOT NULL,
	PRIMARY KEY (user_id, podcast_id)
);

CREATE TABLE IF NOT EXISTS episodes (
	id TEXT PRIMARY KEY,
	podcast_id TEXT NOT NULL,
	guid TEXT NOT NULL,
	title TEXT NOT NULL,
	audio_url TEXT NOT NULL,
	published_at DATETIME NOT NULL,
	duration REAL,
	status TEXT NOT NULL DEFAULT 'pending',
	transcript TEXT,
	UNIQUE (podcast_id, guid)
);

CREATE INDEX IF NOT EXISTS idx_episodes_podcast_published ON episodes(podcast_id, published_at);

CREATE TABLE IF NOT EXISTS clips (
	id TEXT PRIMARY KEY,
	episode_id TEXT NOT NULL,
	start_time REAL NOT NULL,
	end_time REAL NOT NULL,
	transcript TEXT NOT NULL,
	relevance_score REAL NOT NULL,
	reasoning TEXT,
	summary TEXT,
	digest_id TEXT
);

CREATE INDEX IF NOT EXISTS idx_clips_episode ON clips(episode_id);

CREATE TABLE IF NOT EXISTS digests (
	id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL,
	status TEXT NOT NULL DEFAULT 'curating',
	podcast_id TEXT,
	episode_ids TEXT NOT NULL DEFAULT '[]',
	narrator_script TEXT,
	audio_url TEXT,
	duration REAL,
	is_public INTEGER NOT NULL DEFAULT 0,
	share_id TEXT,
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS digest_clips (
	digest_id TEXT NOT NULL,
	clip_id TEXT NOT NULL,
	"order" INTEGER NOT NULL,
	PRIMARY KEY (digest_id, clip_id),
	UNIQUE (digest_id, "order")
);
`
