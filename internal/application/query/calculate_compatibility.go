package query

import (
	"context"

	"github.com/alem-hub/study-buddy/internal/domain/shared"
	"github.com/alem-hub/study-buddy/internal/domain/social"
	"github.com/alem-hub/study-buddy/internal/domain/student"
	"github.com/alem-hub/study-buddy/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// CALCULATE COMPATIBILITY QUERY
// Детерминированная оценка одной пары по данным из хранилища.
// ══════════════════════════════════════════════════════════════════════════════

// PairQuery - пара студентов.
type PairQuery struct {
	StudentID   string
	CandidateID string
}

// Validate проверяет параметры.
func (q PairQuery) Validate() error {
	if q.StudentID == "" || q.CandidateID == "" {
		return shared.ErrInvalidStudentID
	}
	if q.StudentID == q.CandidateID {
		return shared.ErrSelfMatch
	}
	return nil
}

// CompatibilityResult - оценка пары.
// Eligible = false, если пара не прошла бы фильтры пула (возраст, уровень,
// open_to_matching, часовой пояс). Оценка при этом всё равно считается.
type CompatibilityResult struct {
	StudentID        string            `json:"student_id"`
	CandidateID      string            `json:"candidate_id"`
	Score            social.MatchScore `json:"match_score"`
	Eligible         bool              `json:"eligible"`
	IneligibleReason string            `json:"ineligible_reason,omitempty"`
}

// CalculateCompatibilityHandler обрабатывает оценку пары.
type CalculateCompatibilityHandler struct {
	loader *participantLoader
	scorer *social.Scorer
}

// NewCalculateCompatibilityHandler создаёт новый обработчик.
func NewCalculateCompatibilityHandler(
	profiles student.ProfileRepository,
	preferences student.PreferencesRepository,
	activity student.ActivityRepository,
	clock Clock,
	log *logger.Logger,
) *CalculateCompatibilityHandler {
	if log == nil {
		log = logger.Nop()
	}
	return &CalculateCompatibilityHandler{
		loader: &participantLoader{
			profiles:    profiles,
			preferences: preferences,
			activity:    activity,
			clock:       clock,
			log:         log.With(logger.Component("calculate_compatibility")),
		},
		scorer: social.NewScorer(social.DefaultScoringRules()),
	}
}

// Handle возвращает оценку пары.
// Отсутствующий профиль или настройки любого участника - NotFound.
func (h *CalculateCompatibilityHandler) Handle(ctx context.Context, q PairQuery) (*CompatibilityResult, error) {
	a, b, err := loadPair(ctx, h.loader, q)
	if err != nil {
		return nil, err
	}

	result := &CompatibilityResult{
		StudentID:   q.StudentID,
		CandidateID: q.CandidateID,
		Score:       h.scorer.Calculate(a.profile, b.profile, a.prefs, b.prefs),
		Eligible:    true,
	}
	if err := social.CheckPair(a.profile.Profile, a.prefs, b.profile.Profile, b.prefs); err != nil {
		result.Eligible = false
		result.IneligibleReason = err.Error()
	}
	return result, nil
}

// loadPair загружает обоих участников пары.
func loadPair(ctx context.Context, loader *participantLoader, q PairQuery) (participant, participant, error) {
	if err := q.Validate(); err != nil {
		return participant{}, participant{}, err
	}

	a, err := loader.loadRequester(ctx, q.StudentID, nil)
	if err != nil {
		return participant{}, participant{}, err
	}
	b, err := loader.loadRequester(ctx, q.CandidateID, nil)
	if err != nil {
		return participant{}, participant{}, err
	}
	return a, b, nil
}
