package postgres

// ══════════════════════════════════════════════════════════════════════════════
// ENGINE SCHEMA
// The engine owns only the definition catalog and the ledger.
// ══════════════════════════════════════════════════════════════════════════════

// Migration 001: achievement definitions
const migration001Up = `
CREATE TABLE IF NOT EXISTS achievement_definitions (
    code        VARCHAR(64) PRIMARY KEY,
    name        VARCHAR(255) NOT NULL,
    description TEXT NOT NULL DEFAULT '',
    localized   JSONB NOT NULL DEFAULT '{}'::jsonb,
    icon        VARCHAR(32) NOT NULL DEFAULT '',
    category    VARCHAR(32) NOT NULL,
    difficulty  VARCHAR(16) NOT NULL CHECK (difficulty IN ('easy', 'medium', 'hard')),
    secret      BOOLEAN NOT NULL DEFAULT FALSE,
    active      BOOLEAN NOT NULL DEFAULT TRUE,
    sort_order  INTEGER NOT NULL DEFAULT 0,
    created_at  TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
    updated_at  TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_achievement_definitions_sort
    ON achievement_definitions (sort_order, code);
`

const migration001Down = `
DROP TABLE IF EXISTS achievement_definitions;
`

// Migration 002: achievement ledger
const migration002Up = `
CREATE TABLE IF NOT EXISTS user_achievements (
    user_id     VARCHAR(64) NOT NULL,
    code        VARCHAR(64) NOT NULL,
    earned_at   TIMESTAMP WITH TIME ZONE NOT NULL,
    notified_at TIMESTAMP WITH TIME ZONE,

    CONSTRAINT user_achievements_user_code_key UNIQUE (user_id, code)
);

CREATE INDEX IF NOT EXISTS idx_user_achievements_earned
    ON user_achievements (user_id, earned_at);

CREATE INDEX IF NOT EXISTS idx_user_achievements_unnotified
    ON user_achievements (user_id, earned_at)
    WHERE notified_at IS NULL;
`

const migration002Down = `
DROP TABLE IF EXISTS user_achievements;
`

// GetMigrations returns the engine migrations in order.
func GetMigrations() []Migration {
	return []Migration{
		{Version: 1, Name: "create_achievement_definitions", UpSQL: migration001Up, DownSQL: migration001Down},
		{Version: 2, Name: "create_user_achievements", UpSQL: migration002Up, DownSQL: migration002Down},
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// FACT SCHEMA
// The host application owns these tables. They are created only for local
// development and integration tests; production databases already have them.
// ══════════════════════════════════════════════════════════════════════════════

// Migration 101: host fact tables
const migration101Up = `
CREATE TABLE IF NOT EXISTS users (
    id              VARCHAR(64) PRIMARY KEY,
    organization_id VARCHAR(64) NOT NULL,
    visibility      VARCHAR(16) NOT NULL DEFAULT 'public',
    created_at      TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS workspace_members (
    workspace_id VARCHAR(64) NOT NULL,
    user_id      VARCHAR(64) NOT NULL REFERENCES users(id) ON DELETE CASCADE,
    PRIMARY KEY (workspace_id, user_id)
);

CREATE TABLE IF NOT EXISTS tasks (
    id               VARCHAR(64) PRIMARY KEY,
    organization_id  VARCHAR(64) NOT NULL,
    workspace_id     VARCHAR(64) NOT NULL,
    item_id          VARCHAR(64) NOT NULL,
    assignee_id      VARCHAR(64),
    creator_id       VARCHAR(64) NOT NULL,
    priority         VARCHAR(16) NOT NULL DEFAULT 'medium',
    estimated_effort DOUBLE PRECISION NOT NULL DEFAULT 0,
    actual_effort    DOUBLE PRECISION NOT NULL DEFAULT 0,
    start_at         TIMESTAMP WITH TIME ZONE,
    due_at           TIMESTAMP WITH TIME ZONE,
    created_at       TIMESTAMP WITH TIME ZONE NOT NULL,
    completed_at     TIMESTAMP WITH TIME ZONE,
    completed        BOOLEAN NOT NULL DEFAULT FALSE,
    discarded        BOOLEAN NOT NULL DEFAULT FALSE
);

CREATE INDEX IF NOT EXISTS idx_tasks_org_assignee ON tasks (organization_id, assignee_id);
CREATE INDEX IF NOT EXISTS idx_tasks_org_creator ON tasks (organization_id, creator_id);

CREATE TABLE IF NOT EXISTS item_activities (
    id              VARCHAR(64) PRIMARY KEY,
    organization_id VARCHAR(64) NOT NULL,
    workspace_id    VARCHAR(64) NOT NULL,
    item_id         VARCHAR(64) NOT NULL,
    user_id         VARCHAR(64) NOT NULL,
    action          VARCHAR(32) NOT NULL,
    occurred_at     TIMESTAMP WITH TIME ZONE NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_item_activities_org_user ON item_activities (organization_id, user_id, occurred_at);
CREATE INDEX IF NOT EXISTS idx_item_activities_item ON item_activities (item_id, occurred_at);
`

const migration101Down = `
DROP TABLE IF EXISTS item_activities;
DROP TABLE IF EXISTS tasks;
DROP TABLE IF EXISTS workspace_members;
DROP TABLE IF EXISTS users;
`

// GetFactSchemaMigrations returns the development-only host fact tables.
// They use a separate version range so they never collide with engine
// migrations in schema_migrations.
func GetFactSchemaMigrations() []Migration {
	return []Migration{
		{Version: 101, Name: "create_fact_tables", UpSQL: migration101Up, DownSQL: migration101Down},
	}
}
