package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/alem-hub/study-buddy/internal/domain/shared"
	"github.com/alem-hub/study-buddy/internal/domain/social"
	"github.com/alem-hub/study-buddy/internal/domain/student"
)

// ══════════════════════════════════════════════════════════════════════════════
// STUDENT REPOSITORY IMPLEMENTATION
// Implements student.ProfileRepository, student.PreferencesRepository,
// student.ActivityRepository and social.CandidatePoolRepository.
// ══════════════════════════════════════════════════════════════════════════════

// StudentRepository reads and writes student data in PostgreSQL.
type StudentRepository struct {
	conn *Connection
}

// NewStudentRepository creates a new StudentRepository.
func NewStudentRepository(conn *Connection) *StudentRepository {
	return &StudentRepository{conn: conn}
}

var (
	_ student.ProfileRepository      = (*StudentRepository)(nil)
	_ student.ActivityRepository     = (*StudentRepository)(nil)
	_ social.CandidatePoolRepository = (*StudentRepository)(nil)
)

const profileColumns = `p.id, p.display_name, p.avatar_url, p.level, p.current_module, p.age_group, p.created_at`

// ─────────────────────────────────────────────────────────────────────────────
// Profiles
// ─────────────────────────────────────────────────────────────────────────────

// GetByID returns a profile by ID.
func (r *StudentRepository) GetByID(ctx context.Context, id string) (*student.Profile, error) {
	query := `SELECT ` + profileColumns + ` FROM student_profiles p WHERE p.id = $1`

	p, err := scanProfile(r.conn.QueryRow(ctx, query, id))
	if IsNoRows(err) {
		return nil, shared.ErrStudentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get student profile: %w", err)
	}
	return p, nil
}

// GetByIDs returns the profiles that exist, in the order of ids.
func (r *StudentRepository) GetByIDs(ctx context.Context, ids []string) ([]*student.Profile, error) {
	if len(ids) == 0 {
		return []*student.Profile{}, nil
	}

	query := `SELECT ` + profileColumns + ` FROM student_profiles p WHERE p.id = ANY($1)`

	rows, err := r.conn.Query(ctx, query, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to query profiles by ids: %w", err)
	}
	defer rows.Close()

	found, err := scanProfiles(rows)
	if err != nil {
		return nil, err
	}

	return orderByIDs(found, ids), nil
}

// orderByIDs restores input order; unknown ids are dropped.
func orderByIDs(profiles []*student.Profile, ids []string) []*student.Profile {
	byID := make(map[string]*student.Profile, len(profiles))
	for _, p := range profiles {
		byID[p.ID] = p
	}

	out := make([]*student.Profile, 0, len(profiles))
	for _, id := range ids {
		if p, ok := byID[id]; ok {
			out = append(out, p)
			delete(byID, id)
		}
	}
	return out
}

// ─────────────────────────────────────────────────────────────────────────────
// Candidate pool
// ─────────────────────────────────────────────────────────────────────────────

// FindCandidatePool applies the hard filters in SQL.
func (r *StudentRepository) FindCandidatePool(ctx context.Context, filter social.CandidatePoolFilter) ([]*student.Profile, error) {
	query, args := buildCandidatePoolQuery(filter)

	rows, err := r.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query candidate pool: %w", err)
	}
	defer rows.Close()

	return scanProfiles(rows)
}

// buildCandidatePoolQuery renders the pool filter as a parameterized query.
func buildCandidatePoolQuery(filter social.CandidatePoolFilter) (string, []any) {
	var (
		conditions []string
		args       []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	conditions = append(conditions,
		"p.id <> "+arg(filter.ExcludeStudentID),
		"p.level BETWEEN "+arg(filter.MinLevel)+" AND "+arg(filter.MaxLevel),
	)
	if filter.AgeRestricted {
		conditions = append(conditions, "p.age_group = "+arg(string(filter.AgeGroup)))
	}

	prefConditions := []string{"mp.student_id = p.id"}
	if filter.OpenToMatching {
		prefConditions = append(prefConditions, "mp.open_to_matching")
	}
	if filter.Timezone != "" {
		prefConditions = append(prefConditions, "mp.timezone = "+arg(filter.Timezone))
	}
	conditions = append(conditions,
		"EXISTS (SELECT 1 FROM matching_preferences mp WHERE "+strings.Join(prefConditions, " AND ")+")",
	)

	query := `SELECT ` + profileColumns + ` FROM student_profiles p WHERE ` +
		strings.Join(conditions, " AND ") +
		` ORDER BY p.created_at, p.id`

	return query, args
}

// ─────────────────────────────────────────────────────────────────────────────
// Activity
// ─────────────────────────────────────────────────────────────────────────────

// CountCompletedVideos returns the number of completed videos for a student.
func (r *StudentRepository) CountCompletedVideos(ctx context.Context, studentID string) (int, error) {
	var count int
	err := r.conn.QueryRow(ctx,
		`SELECT COUNT(*) FROM video_progress WHERE student_id = $1 AND completed_at IS NOT NULL`,
		studentID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count completed videos: %w", err)
	}
	return count, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Helper functions
// ─────────────────────────────────────────────────────────────────────────────

func scanProfile(row pgx.Row) (*student.Profile, error) {
	var p student.Profile
	var ageGroup string

	if err := row.Scan(
		&p.ID,
		&p.DisplayName,
		&p.AvatarURL,
		&p.Level,
		&p.CurrentModule,
		&ageGroup,
		&p.CreatedAt,
	); err != nil {
		return nil, err
	}

	p.AgeGroup = student.AgeGroup(ageGroup)
	return &p, nil
}

func scanProfiles(rows pgx.Rows) ([]*student.Profile, error) {
	profiles := []*student.Profile{}
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan student profile: %w", err)
		}
		profiles = append(profiles, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}
	return profiles, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// PREFERENCES REPOSITORY IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

// PreferencesRepository implements student.PreferencesRepository.
type PreferencesRepository struct {
	conn *Connection
}

// NewPreferencesRepository creates a new PreferencesRepository.
func NewPreferencesRepository(conn *Connection) *PreferencesRepository {
	return &PreferencesRepository{conn: conn}
}

var _ student.PreferencesRepository = (*PreferencesRepository)(nil)

// GetByStudentID returns the preferences of a student.
func (r *PreferencesRepository) GetByStudentID(ctx context.Context, studentID string) (*student.MatchingPreferences, error) {
	query := `
		SELECT student_id, weekly_availability_hours, timezone, preferred_study_times,
			   primary_goal, interested_topics, project_interests, learning_style,
			   communication_preference, competitiveness, open_to_matching,
			   preferred_group_size, language_preferences, updated_at
		FROM matching_preferences
		WHERE student_id = $1
	`

	var (
		prefs         student.MatchingPreferences
		studyTimes    []byte
		learningStyle string
		communication string
	)
	err := r.conn.QueryRow(ctx, query, studentID).Scan(
		&prefs.StudentID,
		&prefs.WeeklyAvailabilityHours,
		&prefs.Timezone,
		&studyTimes,
		&prefs.PrimaryGoal,
		&prefs.InterestedTopics,
		&prefs.ProjectInterests,
		&learningStyle,
		&communication,
		&prefs.Competitiveness,
		&prefs.OpenToMatching,
		&prefs.PreferredGroupSize,
		&prefs.LanguagePreferences,
		&prefs.UpdatedAt,
	)
	if IsNoRows(err) {
		return nil, shared.ErrPreferencesNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get matching preferences: %w", err)
	}

	if len(studyTimes) > 0 {
		if err := json.Unmarshal(studyTimes, &prefs.PreferredStudyTimes); err != nil {
			return nil, fmt.Errorf("failed to decode preferred study times: %w", err)
		}
	}
	prefs.LearningStyle = student.LearningStyle(learningStyle)
	prefs.CommunicationPreference = student.CommunicationPreference(communication)

	return &prefs, nil
}

// Upsert creates or replaces the preferences of a student.
func (r *PreferencesRepository) Upsert(ctx context.Context, prefs *student.MatchingPreferences) error {
	studyTimes, err := json.Marshal(nonNilSlots(prefs.PreferredStudyTimes))
	if err != nil {
		return fmt.Errorf("failed to encode preferred study times: %w", err)
	}

	query := `
		INSERT INTO matching_preferences (
			student_id, weekly_availability_hours, timezone, preferred_study_times,
			primary_goal, interested_topics, project_interests, learning_style,
			communication_preference, competitiveness, open_to_matching,
			preferred_group_size, language_preferences, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (student_id) DO UPDATE SET
			weekly_availability_hours = EXCLUDED.weekly_availability_hours,
			timezone = EXCLUDED.timezone,
			preferred_study_times = EXCLUDED.preferred_study_times,
			primary_goal = EXCLUDED.primary_goal,
			interested_topics = EXCLUDED.interested_topics,
			project_interests = EXCLUDED.project_interests,
			learning_style = EXCLUDED.learning_style,
			communication_preference = EXCLUDED.communication_preference,
			competitiveness = EXCLUDED.competitiveness,
			open_to_matching = EXCLUDED.open_to_matching,
			preferred_group_size = EXCLUDED.preferred_group_size,
			language_preferences = EXCLUDED.language_preferences,
			updated_at = EXCLUDED.updated_at
	`

	_, err = r.conn.Exec(ctx, query,
		prefs.StudentID,
		prefs.WeeklyAvailabilityHours,
		prefs.Timezone,
		studyTimes,
		prefs.PrimaryGoal,
		nonNilStrings(prefs.InterestedTopics),
		nonNilStrings(prefs.ProjectInterests),
		string(prefs.LearningStyle),
		string(prefs.CommunicationPreference),
		prefs.Competitiveness,
		prefs.OpenToMatching,
		prefs.PreferredGroupSize,
		nonNilStrings(prefs.LanguagePreferences),
		prefs.UpdatedAt,
	)
	if err != nil {
		if IsForeignKeyViolation(err) {
			return shared.ErrStudentNotFound
		}
		return fmt.Errorf("failed to upsert matching preferences: %w", err)
	}

	return nil
}

// NOT NULL array columns reject a nil slice encoded as NULL.
func nonNilStrings(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func nonNilSlots(s []student.TimeSlot) []student.TimeSlot {
	if s == nil {
		return []student.TimeSlot{}
	}
	return s
}
