package postgres

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/jackc/pgx/v5"
)

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION SUPPORT
// ══════════════════════════════════════════════════════════════════════════════

const migrationsTable = "schema_migrations"

// Migration represents a database migration.
type Migration struct {
	Version   int        `json:"version"`
	Name      string     `json:"name"`
	UpSQL     string     `json:"-"`
	DownSQL   string     `json:"-"`
	AppliedAt *time.Time `json:"applied_at,omitempty"`
	IsApplied bool       `json:"is_applied"`
}

// Migrator handles database migrations.
type Migrator struct {
	conn       *Connection
	migrations []Migration
}

// NewMigrator creates a migrator with the embedded migrations.
func NewMigrator(conn *Connection) *Migrator {
	return &Migrator{conn: conn, migrations: Migrations()}
}

func (m *Migrator) ensureTable(ctx context.Context) error {
	_, err := m.conn.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS `+migrationsTable+` (
			version INTEGER PRIMARY KEY,
			name TEXT NOT NULL,
			applied_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
		)`)
	if err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}
	return nil
}

func (m *Migrator) applied(ctx context.Context) (map[int]time.Time, error) {
	rows, err := m.conn.Query(ctx, "SELECT version, applied_at FROM "+migrationsTable+" ORDER BY version")
	if err != nil {
		return nil, fmt.Errorf("failed to query applied migrations: %w", err)
	}
	defer rows.Close()

	applied := make(map[int]time.Time)
	for rows.Next() {
		var version int
		var appliedAt time.Time
		if err := rows.Scan(&version, &appliedAt); err != nil {
			return nil, fmt.Errorf("failed to scan migration row: %w", err)
		}
		applied[version] = appliedAt
	}
	return applied, rows.Err()
}

// Up applies all pending migrations and returns how many ran.
func (m *Migrator) Up(ctx context.Context) (int, error) {
	if err := m.ensureTable(ctx); err != nil {
		return 0, err
	}

	applied, err := m.applied(ctx)
	if err != nil {
		return 0, err
	}

	count := 0
	for _, mig := range m.migrations {
		if _, ok := applied[mig.Version]; ok {
			continue
		}

		err := m.conn.WithTx(ctx, func(tx pgx.Tx) error {
			if _, err := tx.Exec(ctx, mig.UpSQL); err != nil {
				return err
			}
			_, err := tx.Exec(ctx, "INSERT INTO "+migrationsTable+" (version, name) VALUES ($1, $2)", mig.Version, mig.Name)
			return err
		})
		if err != nil {
			return count, fmt.Errorf("%w: version %d (%s): %w", ErrMigrationFailed, mig.Version, mig.Name, err)
		}
		count++
	}

	return count, nil
}

// Down rolls back the last applied migration. It returns the rolled back
// migration, or nil when nothing was applied.
func (m *Migrator) Down(ctx context.Context) (*Migration, error) {
	if err := m.ensureTable(ctx); err != nil {
		return nil, err
	}

	applied, err := m.applied(ctx)
	if err != nil {
		return nil, err
	}

	last := 0
	for v := range applied {
		if v > last {
			last = v
		}
	}
	if last == 0 {
		return nil, nil
	}

	mig := m.find(last)
	if mig == nil || mig.DownSQL == "" {
		return nil, fmt.Errorf("%w: missing down SQL for migration %d", ErrMigrationFailed, last)
	}

	err = m.conn.WithTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, mig.DownSQL); err != nil {
			return err
		}
		_, err := tx.Exec(ctx, "DELETE FROM "+migrationsTable+" WHERE version = $1", last)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("%w: rollback %d: %w", ErrMigrationFailed, last, err)
	}

	return mig, nil
}

// Status returns every known migration with its applied state.
func (m *Migrator) Status(ctx context.Context) ([]Migration, error) {
	if err := m.ensureTable(ctx); err != nil {
		return nil, err
	}

	applied, err := m.applied(ctx)
	if err != nil {
		return nil, err
	}

	return mergeStatus(m.migrations, applied), nil
}

func (m *Migrator) find(version int) *Migration {
	for i := range m.migrations {
		if m.migrations[i].Version == version {
			return &m.migrations[i]
		}
	}
	return nil
}

func mergeStatus(migrations []Migration, applied map[int]time.Time) []Migration {
	result := make([]Migration, len(migrations))
	copy(result, migrations)
	for i := range result {
		if at, ok := applied[result[i].Version]; ok {
			result[i].IsApplied = true
			result[i].AppliedAt = &at
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Version < result[j].Version })
	return result
}

// ══════════════════════════════════════════════════════════════════════════════
// EMBEDDED MIGRATIONS
// ══════════════════════════════════════════════════════════════════════════════

// Migrations returns all embedded migrations in version order.
func Migrations() []Migration {
	return []Migration{
		{Version: 1, Name: "create_students", UpSQL: migration001Up, DownSQL: migration001Down},
		{Version: 2, Name: "create_matching_preferences", UpSQL: migration002Up, DownSQL: migration002Down},
		{Version: 3, Name: "create_study_buddy_matches", UpSQL: migration003Up, DownSQL: migration003Down},
	}
}

// ──────────────────────────────────────────────────────────────────────────────
// 001: students and video progress
// ──────────────────────────────────────────────────────────────────────────────

const migration001Up = `
CREATE TABLE IF NOT EXISTS student_profiles (
    id TEXT PRIMARY KEY,
    display_name VARCHAR(100) NOT NULL,
    avatar_url TEXT NOT NULL DEFAULT '',
    level INTEGER NOT NULL DEFAULT 0,
    current_module INTEGER NOT NULL DEFAULT 0,
    age_group VARCHAR(10) NOT NULL DEFAULT '22+',
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    CONSTRAINT valid_age_group CHECK (age_group IN ('under-18', '18-21', '22+')),
    CONSTRAINT valid_level CHECK (level >= 0)
);

CREATE INDEX IF NOT EXISTS idx_student_profiles_level ON student_profiles(level);
CREATE INDEX IF NOT EXISTS idx_student_profiles_age_level ON student_profiles(age_group, level);

CREATE TABLE IF NOT EXISTS video_progress (
    student_id TEXT NOT NULL REFERENCES student_profiles(id) ON DELETE CASCADE,
    video_id TEXT NOT NULL,
    completed_at TIMESTAMP WITH TIME ZONE,
    PRIMARY KEY (student_id, video_id)
);

CREATE INDEX IF NOT EXISTS idx_video_progress_completed
    ON video_progress(student_id) WHERE completed_at IS NOT NULL;
`

const migration001Down = `
DROP TABLE IF EXISTS video_progress;
DROP TABLE IF EXISTS student_profiles;
`

// ──────────────────────────────────────────────────────────────────────────────
// 002: matching preferences
// ──────────────────────────────────────────────────────────────────────────────

const migration002Up = `
CREATE TABLE IF NOT EXISTS matching_preferences (
    student_id TEXT PRIMARY KEY REFERENCES student_profiles(id) ON DELETE CASCADE,
    weekly_availability_hours DOUBLE PRECISION NOT NULL DEFAULT 0,
    timezone TEXT NOT NULL DEFAULT '',
    preferred_study_times JSONB NOT NULL DEFAULT '[]'::jsonb,
    primary_goal TEXT NOT NULL DEFAULT '',
    interested_topics TEXT[] NOT NULL DEFAULT '{}',
    project_interests TEXT[] NOT NULL DEFAULT '{}',
    learning_style VARCHAR(20) NOT NULL DEFAULT '',
    communication_preference VARCHAR(10) NOT NULL DEFAULT 'any',
    competitiveness SMALLINT NOT NULL DEFAULT 3,
    open_to_matching BOOLEAN NOT NULL DEFAULT FALSE,
    preferred_group_size SMALLINT NOT NULL DEFAULT 2,
    language_preferences TEXT[] NOT NULL DEFAULT '{}',
    updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    CONSTRAINT valid_competitiveness CHECK (competitiveness BETWEEN 1 AND 5)
);

CREATE INDEX IF NOT EXISTS idx_matching_preferences_open
    ON matching_preferences(timezone) WHERE open_to_matching;
`

const migration002Down = `
DROP TABLE IF EXISTS matching_preferences;
`

// ──────────────────────────────────────────────────────────────────────────────
// 003: study buddy matches
// ──────────────────────────────────────────────────────────────────────────────

const migration003Up = `
CREATE TABLE IF NOT EXISTS study_buddy_matches (
    id UUID PRIMARY KEY,
    student_id TEXT NOT NULL REFERENCES student_profiles(id) ON DELETE CASCADE,
    peer_id TEXT NOT NULL REFERENCES student_profiles(id) ON DELETE CASCADE,
    compatibility_score INTEGER NOT NULL,
    match_reasoning TEXT NOT NULL DEFAULT '',
    status VARCHAR(20) NOT NULL DEFAULT 'suggested',
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
    connected_at TIMESTAMP WITH TIME ZONE,
    declined_at TIMESTAMP WITH TIME ZONE,

    CONSTRAINT valid_match_status CHECK (status IN ('suggested', 'connected', 'declined')),
    CONSTRAINT no_self_match CHECK (student_id <> peer_id),
    CONSTRAINT valid_compatibility_score CHECK (compatibility_score BETWEEN 0 AND 100)
);

-- One active record per unordered pair.
CREATE UNIQUE INDEX IF NOT EXISTS uq_study_buddy_matches_active_pair
    ON study_buddy_matches (LEAST(student_id, peer_id), GREATEST(student_id, peer_id))
    WHERE status IN ('suggested', 'connected');

CREATE INDEX IF NOT EXISTS idx_study_buddy_matches_student ON study_buddy_matches(student_id, status);
CREATE INDEX IF NOT EXISTS idx_study_buddy_matches_peer ON study_buddy_matches(peer_id, status);
`

const migration003Down = `
DROP TABLE IF EXISTS study_buddy_matches;
`
