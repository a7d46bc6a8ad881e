package postgres

// schema is applied on every connect; all statements are idempotent.
const schema = `
CREATE TABLE IF NOT EXISTS events (
	id            TEXT PRIMARY KEY,
	user_id       TEXT NOT NULL,
	number        TEXT NOT NULL,
	ts            TIMESTAMPTZ NOT NULL,
	type          TEXT NOT NULL,
	direction     TEXT NOT NULL,
	duration      INTEGER NOT NULL DEFAULT 0,
	content       TEXT,
	carrier       TEXT,
	metadata      JSONB,
	updated_at    TIMESTAMPTZ NOT NULL,
	UNIQUE(user_id, number, ts, type, direction)
);

CREATE INDEX IF NOT EXISTS idx_events_user ON events(user_id, ts);

CREATE TABLE IF NOT EXISTS contact_summaries (
	user_id        TEXT NOT NULL,
	number         TEXT NOT NULL,
	event_count    INTEGER NOT NULL,
	total_duration INTEGER NOT NULL,
	first_seen     TIMESTAMPTZ NOT NULL,
	last_seen      TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (user_id, number)
);

CREATE TABLE IF NOT EXISTS job_status (
	job_id         TEXT PRIMARY KEY,
	user_id        TEXT NOT NULL,
	stage          TEXT NOT NULL,
	progress       DOUBLE PRECISION NOT NULL,
	message        TEXT,
	processed_rows INTEGER NOT NULL DEFAULT 0,
	total_rows     INTEGER NOT NULL DEFAULT 0,
	updated_at     TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS mapping_templates (
	carrier      TEXT NOT NULL,
	format_type  TEXT NOT NULL,
	mappings     JSONB NOT NULL,
	usage_count  INTEGER NOT NULL DEFAULT 0,
	success_rate DOUBLE PRECISION NOT NULL DEFAULT 0,
	updated_at   TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (carrier, format_type)
);

CREATE TABLE IF NOT EXISTS dead_letters (
	id          TEXT PRIMARY KEY,
	job_id      TEXT NOT NULL,
	item_id     TEXT,
	item        JSONB,
	error       JSONB NOT NULL,
	retry_count INTEGER NOT NULL DEFAULT 0,
	created_at  TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_dead_letters_job ON dead_letters(job_id, created_at);

CREATE TABLE IF NOT EXISTS cache_entries (
	key        TEXT PRIMARY KEY,
	value      BYTEA NOT NULL,
	expires_at TIMESTAMPTZ NOT NULL
);
`
