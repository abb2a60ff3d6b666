package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/alem-hub/study-buddy/internal/domain/shared"
	"github.com/alem-hub/study-buddy/internal/domain/social"
)

// ══════════════════════════════════════════════════════════════════════════════
// MATCH REPOSITORY IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

// MatchRepository implements social.MatchRepository for PostgreSQL.
// The active-pair invariant is enforced by uq_study_buddy_matches_active_pair.
type MatchRepository struct {
	conn *Connection
}

// NewMatchRepository creates a new MatchRepository.
func NewMatchRepository(conn *Connection) *MatchRepository {
	return &MatchRepository{conn: conn}
}

var _ social.MatchRepository = (*MatchRepository)(nil)

const matchColumns = `id, student_id, peer_id, compatibility_score, match_reasoning,
	status, created_at, connected_at, declined_at`

// Create inserts a new match.
func (r *MatchRepository) Create(ctx context.Context, m *social.StudyBuddyMatch) error {
	query := `INSERT INTO study_buddy_matches (` + matchColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err := r.conn.Exec(ctx, query,
		m.ID,
		m.StudentID,
		m.PeerID,
		m.CompatibilityScore,
		m.MatchReasoning,
		string(m.Status),
		m.CreatedAt,
		m.ConnectedAt,
		m.DeclinedAt,
	)
	if err != nil {
		switch {
		case IsUniqueViolation(err):
			return shared.ErrMatchExists
		case IsForeignKeyViolation(err):
			return shared.ErrStudentNotFound
		}
		return fmt.Errorf("failed to create match: %w", err)
	}
	return nil
}

// GetByID returns a match by ID.
func (r *MatchRepository) GetByID(ctx context.Context, id string) (*social.StudyBuddyMatch, error) {
	query := `SELECT ` + matchColumns + ` FROM study_buddy_matches WHERE id = $1`

	m, err := scanMatch(r.conn.QueryRow(ctx, query, id))
	if IsNoRows(err) || IsInvalidTextRepresentation(err) {
		return nil, shared.ErrMatchNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get match: %w", err)
	}
	return m, nil
}

// updateMatchSQL only touches a match that is still awaiting a response,
// so two concurrent answers cannot both be written.
const updateMatchSQL = `
		UPDATE study_buddy_matches SET
			status = $1,
			connected_at = $2,
			declined_at = $3
		WHERE id = $4 AND status = $5
	`

// Update persists the status and transition timestamps.
// A match that was answered in the meantime yields shared.ErrInvalidMatchTransition.
func (r *MatchRepository) Update(ctx context.Context, m *social.StudyBuddyMatch) error {
	result, err := r.conn.Exec(ctx, updateMatchSQL,
		string(m.Status), m.ConnectedAt, m.DeclinedAt, m.ID, string(social.MatchStatusSuggested))
	if IsInvalidTextRepresentation(err) {
		return shared.ErrMatchNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to update match: %w", err)
	}
	if result.RowsAffected() > 0 {
		return nil
	}

	var exists bool
	err = r.conn.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM study_buddy_matches WHERE id = $1)`, m.ID).Scan(&exists)
	if err != nil {
		return fmt.Errorf("failed to check match: %w", err)
	}
	if !exists {
		return shared.ErrMatchNotFound
	}
	return shared.ErrInvalidMatchTransition
}

// ListActiveByStudent returns suggested and connected matches on either side of the pair.
func (r *MatchRepository) ListActiveByStudent(ctx context.Context, studentID string) ([]*social.StudyBuddyMatch, error) {
	statuses := social.ActiveMatchStatuses()
	active := make([]string, len(statuses))
	for i, s := range statuses {
		active[i] = string(s)
	}

	query := `SELECT ` + matchColumns + ` FROM study_buddy_matches
		WHERE (student_id = $1 OR peer_id = $1) AND status = ANY($2)
		ORDER BY created_at DESC`

	rows, err := r.conn.Query(ctx, query, studentID, active)
	if err != nil {
		return nil, fmt.Errorf("failed to list active matches: %w", err)
	}
	defer rows.Close()

	matches := []*social.StudyBuddyMatch{}
	for rows.Next() {
		m, err := scanMatch(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan match: %w", err)
		}
		matches = append(matches, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}
	return matches, nil
}

func scanMatch(row pgx.Row) (*social.StudyBuddyMatch, error) {
	var m social.StudyBuddyMatch
	var status string

	if err := row.Scan(
		&m.ID,
		&m.StudentID,
		&m.PeerID,
		&m.CompatibilityScore,
		&m.MatchReasoning,
		&status,
		&m.CreatedAt,
		&m.ConnectedAt,
		&m.DeclinedAt,
	); err != nil {
		return nil, err
	}

	m.Status = social.MatchStatus(status)
	return &m, nil
}
