package query

import (
	"context"
	"fmt"

	"github.com/alem-hub/study-buddy/internal/domain/shared"
	"github.com/alem-hub/study-buddy/internal/domain/social"
)

// ══════════════════════════════════════════════════════════════════════════════
// LIST MATCHES QUERY
// Активные знакомства студента (suggested и connected).
// ══════════════════════════════════════════════════════════════════════════════

// MatchDTO - запись о знакомстве с точки зрения студента.
type MatchDTO struct {
	*social.StudyBuddyMatch

	// PartnerID - второй участник пары.
	PartnerID string `json:"partner_id"`

	// AwaitingMyResponse - студент - адресат предложения, и оно ещё без ответа.
	AwaitingMyResponse bool `json:"awaiting_my_response"`
}

// ListMatchesResult - список записей.
type ListMatchesResult struct {
	StudentID string     `json:"student_id"`
	Matches   []MatchDTO `json:"matches"`
}

// ListMatchesHandler обрабатывает список знакомств.
type ListMatchesHandler struct {
	matches social.MatchRepository
}

// NewListMatchesHandler создаёт новый обработчик.
func NewListMatchesHandler(matches social.MatchRepository) *ListMatchesHandler {
	return &ListMatchesHandler{matches: matches}
}

// Handle возвращает активные записи студента.
func (h *ListMatchesHandler) Handle(ctx context.Context, studentID string) (*ListMatchesResult, error) {
	if studentID == "" {
		return nil, shared.ErrInvalidStudentID
	}

	active, err := h.matches.ListActiveByStudent(ctx, studentID)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", shared.ErrExclusionQuery, err)
	}

	out := make([]MatchDTO, 0, len(active))
	for _, m := range active {
		if m == nil {
			continue
		}
		out = append(out, MatchDTO{
			StudyBuddyMatch:    m,
			PartnerID:          m.OtherStudent(studentID),
			AwaitingMyResponse: m.Status == social.MatchStatusSuggested && m.PeerID == studentID,
		})
	}

	return &ListMatchesResult{StudentID: studentID, Matches: out}, nil
}
