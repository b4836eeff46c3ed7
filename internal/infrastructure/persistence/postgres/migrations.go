package postgres

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 001: CREATE COURSE PROGRESS
// ══════════════════════════════════════════════════════════════════════════════

const migration001Up = `
-- Migration: Create course_progress table
-- Version: 001

-- One row per (identity, course). The record column holds the same JSON
-- document the key-value stores keep, so records move between backends
-- without conversion.
CREATE TABLE IF NOT EXISTS course_progress (
    identity VARCHAR(128) NOT NULL,
    course_id VARCHAR(64) NOT NULL,
    record JSONB NOT NULL,
    updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    PRIMARY KEY (identity, course_id)
);

CREATE INDEX IF NOT EXISTS idx_course_progress_course ON course_progress(course_id);
`

const migration001Down = `
DROP INDEX IF EXISTS idx_course_progress_course;
DROP TABLE IF EXISTS course_progress;
`

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 002: CREATE CREDENTIAL LEDGER
// ══════════════════════════════════════════════════════════════════════════════

const migration002Up = `
-- Migration: Create course registry and credential ledger
-- Version: 002

CREATE TABLE IF NOT EXISTS courses (
    course_id VARCHAR(64) PRIMARY KEY,
    name VARCHAR(200) NOT NULL,
    description TEXT NOT NULL DEFAULT '',
    image_uri TEXT NOT NULL DEFAULT '',
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    CONSTRAINT valid_course_name CHECK (length(trim(name)) > 0)
);

-- Credentials are append-only: rows are never updated or deleted.
CREATE TABLE IF NOT EXISTS credentials (
    token_id BIGINT PRIMARY KEY,
    course_id VARCHAR(64) NOT NULL REFERENCES courses(course_id),
    owner VARCHAR(128) NOT NULL,
    course_name VARCHAR(200) NOT NULL,
    issued_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    CONSTRAINT one_credential_per_course UNIQUE (owner, course_id),
    CONSTRAINT valid_token_id CHECK (token_id >= 0)
);

CREATE INDEX IF NOT EXISTS idx_credentials_owner ON credentials(owner, issued_at DESC);

-- Single-row token counter. Claims lock it to hand out dense ids.
CREATE TABLE IF NOT EXISTS ledger_counter (
    id BOOLEAN PRIMARY KEY DEFAULT TRUE,
    next_id BIGINT NOT NULL DEFAULT 0,

    CONSTRAINT single_row CHECK (id)
);

INSERT INTO ledger_counter (id, next_id) VALUES (TRUE, 0) ON CONFLICT (id) DO NOTHING;
`

const migration002Down = `
DROP TABLE IF EXISTS ledger_counter;
DROP INDEX IF EXISTS idx_credentials_owner;
DROP TABLE IF EXISTS credentials;
DROP TABLE IF EXISTS courses;
`

// GetMigrations returns all migrations in order.
func GetMigrations() []Migration {
	return []Migration{
		{
			Version: 1,
			Name:    "create_course_progress",
			UpSQL:   migration001Up,
			DownSQL: migration001Down,
		},
		{
			Version: 2,
			Name:    "create_credential_ledger",
			UpSQL:   migration002Up,
			DownSQL: migration002Down,
		},
	}
}
