package postgres

// allMigrations returns the embedded schema, oldest first.
func allMigrations() []Migration {
	return []Migration{
		{Version: 1, Name: "create_progression", UpSQL: migration001Up},
		{Version: 2, Name: "create_enrollments", UpSQL: migration002Up},
		{Version: 3, Name: "create_achievements", UpSQL: migration003Up},
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 001: CREATE PROGRESSION
// The XP ledger and the materialized per-user profile.
// ══════════════════════════════════════════════════════════════════════════════

const migration001Up = `
-- Migration: Create progression tables
-- Version: 001

-- Append-only XP ledger. Rows are never updated or deleted; the sum of
-- validated amounts per user is the authoritative XP total.
CREATE TABLE IF NOT EXISTS xp_transactions (
    id UUID PRIMARY KEY,
    user_id VARCHAR(128) NOT NULL,
    kind VARCHAR(30) NOT NULL,
    amount INTEGER NOT NULL,
    source_id VARCHAR(100) NOT NULL DEFAULT '',
    source_kind VARCHAR(30) NOT NULL DEFAULT '',
    source_title VARCHAR(200) NOT NULL DEFAULT '',
    multipliers JSONB NOT NULL DEFAULT '[]'::jsonb,
    metadata JSONB NOT NULL DEFAULT '{}'::jsonb,
    validated BOOLEAN NOT NULL DEFAULT TRUE,
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    CONSTRAINT valid_tx_kind CHECK (kind IN ('lesson_complete', 'course_complete', 'achievement', 'daily_streak', 'bonus')),
    CONSTRAINT valid_amount CHECK (amount >= 1)
);

CREATE INDEX IF NOT EXISTS idx_xp_tx_user_created ON xp_transactions(user_id, created_at DESC);

-- Materialized per-user aggregate. current_level and xp_to_next_level are
-- derived from total_xp and recomputed on every write.
CREATE TABLE IF NOT EXISTS progression_profiles (
    user_id VARCHAR(128) PRIMARY KEY,
    total_xp BIGINT NOT NULL DEFAULT 0,
    current_level INTEGER NOT NULL DEFAULT 1,
    xp_to_next_level INTEGER NOT NULL DEFAULT 100,
    streak_current INTEGER NOT NULL DEFAULT 0,
    streak_longest INTEGER NOT NULL DEFAULT 0,
    streak_last_activity_at TIMESTAMP WITH TIME ZONE,
    lessons_completed INTEGER NOT NULL DEFAULT 0,
    tasks_completed INTEGER NOT NULL DEFAULT 0,
    courses_completed INTEGER NOT NULL DEFAULT 0,
    version INTEGER NOT NULL DEFAULT 0,
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    CONSTRAINT valid_total_xp CHECK (total_xp >= 0),
    CONSTRAINT valid_level CHECK (current_level >= 1),
    CONSTRAINT valid_streak CHECK (streak_current >= 0 AND streak_longest >= streak_current)
);

CREATE INDEX IF NOT EXISTS idx_profiles_total_xp ON progression_profiles(total_xp DESC);
`

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 002: CREATE ENROLLMENTS
// Enrollment records plus per-lesson and per-task progress.
// ══════════════════════════════════════════════════════════════════════════════

const migration002Up = `
-- Migration: Create enrollment tables
-- Version: 002

CREATE TABLE IF NOT EXISTS enrollments (
    id UUID PRIMARY KEY,
    user_id VARCHAR(128) NOT NULL,
    course_id VARCHAR(64) NOT NULL,
    status VARCHAR(20) NOT NULL DEFAULT 'enrolled',
    total_lessons INTEGER NOT NULL DEFAULT 0,
    progress_percentage INTEGER NOT NULL DEFAULT 0,
    current_xp INTEGER NOT NULL DEFAULT 0,
    time_spent_minutes INTEGER NOT NULL DEFAULT 0,
    lessons_completed INTEGER NOT NULL DEFAULT 0,
    tasks_completed INTEGER NOT NULL DEFAULT 0,
    average_score DECIMAL(5,2) NOT NULL DEFAULT 0.00,
    scored_submissions INTEGER NOT NULL DEFAULT 0,
    expires_at TIMESTAMP WITH TIME ZONE,
    completed_at TIMESTAMP WITH TIME ZONE,
    version INTEGER NOT NULL DEFAULT 0,
    enrolled_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    CONSTRAINT valid_enrollment_status CHECK (status IN ('enrolled', 'in_progress', 'completed', 'dropped')),
    CONSTRAINT valid_progress CHECK (progress_percentage >= 0 AND progress_percentage <= 100)
);

-- One live enrollment per (user, course); dropped records stay for audit.
CREATE UNIQUE INDEX IF NOT EXISTS idx_enrollments_user_course_live
    ON enrollments(user_id, course_id) WHERE status != 'dropped';
CREATE INDEX IF NOT EXISTS idx_enrollments_user ON enrollments(user_id, enrolled_at DESC);
CREATE INDEX IF NOT EXISTS idx_enrollments_user_completed
    ON enrollments(user_id) WHERE status = 'completed';

CREATE TABLE IF NOT EXISTS lesson_progress (
    user_id VARCHAR(128) NOT NULL,
    lesson_id VARCHAR(64) NOT NULL,
    course_id VARCHAR(64) NOT NULL,
    status VARCHAR(20) NOT NULL DEFAULT 'in_progress',
    time_spent_minutes INTEGER NOT NULL DEFAULT 0,
    attempts INTEGER NOT NULL DEFAULT 0,
    xp_earned INTEGER NOT NULL DEFAULT 0,
    completed_at TIMESTAMP WITH TIME ZONE,
    started_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    PRIMARY KEY (user_id, lesson_id),
    CONSTRAINT valid_lesson_status CHECK (status IN ('not_started', 'in_progress', 'completed'))
);

CREATE INDEX IF NOT EXISTS idx_lesson_progress_user_course ON lesson_progress(user_id, course_id);

CREATE TABLE IF NOT EXISTS task_completions (
    user_id VARCHAR(128) NOT NULL,
    task_id VARCHAR(64) NOT NULL,
    course_id VARCHAR(64) NOT NULL,
    status VARCHAR(20) NOT NULL DEFAULT 'in_progress',
    score INTEGER NOT NULL DEFAULT 0,
    xp_earned INTEGER NOT NULL DEFAULT 0,
    is_passed BOOLEAN NOT NULL DEFAULT FALSE,
    attempts INTEGER NOT NULL DEFAULT 0,
    completed_at TIMESTAMP WITH TIME ZONE,
    updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    PRIMARY KEY (user_id, task_id),
    CONSTRAINT valid_task_status CHECK (status IN ('not_started', 'in_progress', 'completed', 'failed')),
    CONSTRAINT valid_score CHECK (score >= 0 AND score <= 100)
);

CREATE INDEX IF NOT EXISTS idx_task_completions_user_course ON task_completions(user_id, course_id);
`

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 003: CREATE ACHIEVEMENTS
// Definitions plus per-user unlock records.
// ══════════════════════════════════════════════════════════════════════════════

const migration003Up = `
-- Migration: Create achievement tables
-- Version: 003

CREATE TABLE IF NOT EXISTS achievements (
    id VARCHAR(64) PRIMARY KEY,
    name VARCHAR(100) NOT NULL,
    description VARCHAR(300) NOT NULL DEFAULT '',
    requirement_type VARCHAR(30) NOT NULL,
    requirement_threshold INTEGER NOT NULL,
    bonus_xp INTEGER NOT NULL DEFAULT 0,
    active BOOLEAN NOT NULL DEFAULT TRUE,
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    CONSTRAINT valid_requirement_type CHECK (requirement_type IN
        ('total_xp', 'lessons_completed', 'tasks_completed', 'courses_completed', 'streak_days', 'level')),
    CONSTRAINT valid_threshold CHECK (requirement_threshold >= 1),
    CONSTRAINT valid_bonus CHECK (bonus_xp >= 0)
);

CREATE TABLE IF NOT EXISTS unlocked_achievements (
    user_id VARCHAR(128) NOT NULL,
    achievement_id VARCHAR(64) NOT NULL REFERENCES achievements(id),
    unlocked_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    PRIMARY KEY (user_id, achievement_id)
);

CREATE INDEX IF NOT EXISTS idx_unlocked_user ON unlocked_achievements(user_id, unlocked_at DESC);
`
