package query

import (
	"context"
	"time"

	"github.com/alem-hub/study-buddy/internal/domain/shared"
	"github.com/alem-hub/study-buddy/internal/domain/social"
	"github.com/alem-hub/study-buddy/internal/domain/student"
	"github.com/alem-hub/study-buddy/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// RANK MATCHES QUERY
// Ранжирует уже готовый список кандидатов (например, из рекомендательного
// пайплайна). Пул не запрашивается, порог качества не применяется.
// ══════════════════════════════════════════════════════════════════════════════

// RankMatchesQuery содержит кандидатов для ранжирования.
type RankMatchesQuery struct {
	StudentID string

	// Candidates - готовые профили.
	Candidates []student.Profile

	// CandidateIDs - ID, профили которых загружаются из хранилища.
	CandidateIDs []string
}

// Validate проверяет параметры.
func (q RankMatchesQuery) Validate() error {
	if q.StudentID == "" {
		return shared.ErrInvalidStudentID
	}
	return nil
}

// RankMatchesResult - все оценённые кандидаты по убыванию балла.
type RankMatchesResult struct {
	StudentID  string         `json:"student_id"`
	Candidates []CandidateDTO `json:"candidates"`

	// Skipped - кандидаты без настроек или с нечитаемыми данными.
	Skipped int `json:"skipped"`

	GeneratedAt time.Time `json:"generated_at"`
}

// RankMatchesHandler обрабатывает ранжирование.
type RankMatchesHandler struct {
	loader   *participantLoader
	scorer   *social.Scorer
	settings Settings
	log      *logger.Logger
}

// NewRankMatchesHandler создаёт новый обработчик.
func NewRankMatchesHandler(
	profiles student.ProfileRepository,
	preferences student.PreferencesRepository,
	activity student.ActivityRepository,
	settings Settings,
	clock Clock,
	log *logger.Logger,
) *RankMatchesHandler {
	if log == nil {
		log = logger.Nop()
	}
	log = log.With(logger.Component("rank_matches"))

	return &RankMatchesHandler{
		loader: &participantLoader{
			profiles:    profiles,
			preferences: preferences,
			activity:    activity,
			clock:       clock,
			log:         log,
		},
		scorer:   social.NewScorer(social.DefaultScoringRules()),
		settings: settings.withDefaults(),
		log:      log,
	}
}

// Handle ранжирует кандидатов.
func (h *RankMatchesHandler) Handle(ctx context.Context, q RankMatchesQuery) (*RankMatchesResult, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}

	requester, err := h.loader.loadRequester(ctx, q.StudentID, nil)
	if err != nil {
		return nil, err
	}

	candidates, err := h.collect(ctx, q)
	if err != nil {
		return nil, err
	}

	enriched, err := h.loader.enrich(ctx, candidates, h.settings.EnrichConcurrency)
	if err != nil {
		return nil, err
	}

	ranked := scoreAll(h.scorer, requester, enriched.candidates)
	ranked.SortByScore()

	h.log.Debug("candidates ranked",
		logger.StudentID(q.StudentID),
		logger.Count("input", len(candidates)),
		logger.Count("ranked", len(ranked)),
	)

	return &RankMatchesResult{
		StudentID:   q.StudentID,
		Candidates:  toCandidateDTOs(requester.prefs, ranked),
		Skipped:     enriched.incomplete + enriched.failed,
		GeneratedAt: time.Now().UTC(),
	}, nil
}

// collect объединяет переданные профили с загруженными по ID.
// Дубликаты и сам студент отбрасываются, порядок первого появления сохраняется.
func (h *RankMatchesHandler) collect(ctx context.Context, q RankMatchesQuery) ([]*student.Profile, error) {
	seen := map[string]struct{}{q.StudentID: {}}
	out := make([]*student.Profile, 0, len(q.Candidates)+len(q.CandidateIDs))

	add := func(p *student.Profile) {
		if p == nil || p.ID == "" {
			return
		}
		if _, dup := seen[p.ID]; dup {
			return
		}
		seen[p.ID] = struct{}{}
		out = append(out, p)
	}

	for i := range q.Candidates {
		add(&q.Candidates[i])
	}

	if len(q.CandidateIDs) > 0 {
		loaded, err := h.loader.profiles.GetByIDs(ctx, q.CandidateIDs)
		if err != nil {
			return nil, storeError("LoadCandidates", err)
		}
		for _, p := range loaded {
			add(p)
		}
	}
	return out, nil
}
