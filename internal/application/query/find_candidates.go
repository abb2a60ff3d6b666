package query

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alem-hub/study-buddy/internal/domain/shared"
	"github.com/alem-hub/study-buddy/internal/domain/social"
	"github.com/alem-hub/study-buddy/internal/domain/student"
	"github.com/alem-hub/study-buddy/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// FIND CANDIDATES QUERY
// Подбирает напарников для учёбы из живого пула студентов.
//
// Каждый вызов заново читает хранилище: повторный вызов может вернуть
// другой результат. Между вызовами ничего не запоминается.
// ══════════════════════════════════════════════════════════════════════════════

// NoCandidatesMessage - сообщение для пустого результата (не ошибка).
const NoCandidatesMessage = "no compatible partners currently available"

// FindCandidatesQuery содержит параметры подбора.
type FindCandidatesQuery struct {
	// StudentID - кто ищет напарника.
	StudentID string

	// Preferences - настройки для этого поиска.
	// nil означает сохранённые настройки студента.
	Preferences *student.MatchingPreferences

	// Limit - максимальное количество результатов.
	Limit int

	// IncludeAIAnalysis - аннотировать результат AI-оценкой.
	IncludeAIAnalysis bool
}

// Validate проверяет параметры и нормализует лимит.
func (q *FindCandidatesQuery) Validate(s Settings) error {
	if q.StudentID == "" {
		return shared.ErrInvalidStudentID
	}
	if q.Limit <= 0 {
		q.Limit = s.DefaultLimit
	}
	if q.Limit > s.MaxLimit {
		q.Limit = s.MaxLimit
	}
	return nil
}

// FindCandidatesResult содержит результат подбора.
type FindCandidatesResult struct {
	// ─────────────────────────────────────────────────────────────────────────
	// Результаты
	// ─────────────────────────────────────────────────────────────────────────

	StudentID string `json:"student_id"`

	// Candidates - отсортированы по убыванию балла, не больше Limit.
	Candidates []CandidateDTO `json:"candidates"`

	// TotalFound - сколько кандидатов прошло порог (до лимита).
	TotalFound int `json:"total_found"`

	// ─────────────────────────────────────────────────────────────────────────
	// Статистика
	// ─────────────────────────────────────────────────────────────────────────

	// PoolSize - размер пула после фильтров запроса.
	PoolSize int `json:"pool_size"`

	// Excluded - отброшено из-за существующих пар.
	Excluded int `json:"excluded"`

	// Skipped - отброшено из-за отсутствующих или нечитаемых данных.
	Skipped int `json:"skipped"`

	// BelowThreshold - отброшено порогом качества.
	BelowThreshold int `json:"below_threshold"`

	// ─────────────────────────────────────────────────────────────────────────
	// Метаданные
	// ─────────────────────────────────────────────────────────────────────────

	MinScore    int       `json:"min_score"`
	GeneratedAt time.Time `json:"generated_at"`
	Message     string    `json:"message,omitempty"`
}

// FindCandidatesHandler обрабатывает подбор кандидатов.
type FindCandidatesHandler struct {
	loader    *participantLoader
	pool      social.CandidatePoolRepository
	matches   social.MatchRepository
	scorer    *social.Scorer
	annotator *aiAnnotator
	aiToggle  Toggle
	settings  Settings
	log       *logger.Logger
}

// FindCandidatesDeps - зависимости обработчика.
type FindCandidatesDeps struct {
	Profiles    student.ProfileRepository
	Preferences student.PreferencesRepository
	Activity    student.ActivityRepository
	Pool        social.CandidatePoolRepository
	Matches     social.MatchRepository

	// Analyzer, AnalysisCache, AIToggle - опциональны.
	Analyzer      social.CompatibilityAnalyzer
	AnalysisCache social.AnalysisCache
	AIToggle      Toggle

	Scorer   *social.Scorer
	Settings Settings
	Clock    Clock
	Logger   *logger.Logger
}

// NewFindCandidatesHandler создаёт новый обработчик.
func NewFindCandidatesHandler(deps FindCandidatesDeps) *FindCandidatesHandler {
	log := deps.Logger
	if log == nil {
		log = logger.Nop()
	}
	log = log.With(logger.Component("find_candidates"))

	scorer := deps.Scorer
	if scorer == nil {
		scorer = social.NewScorer(social.DefaultScoringRules())
	}

	return &FindCandidatesHandler{
		loader: &participantLoader{
			profiles:    deps.Profiles,
			preferences: deps.Preferences,
			activity:    deps.Activity,
			clock:       deps.Clock,
			log:         log,
		},
		pool:      deps.Pool,
		matches:   deps.Matches,
		scorer:    scorer,
		annotator: &aiAnnotator{analyzer: deps.Analyzer, cache: deps.AnalysisCache, log: log},
		aiToggle:  deps.AIToggle,
		settings:  deps.Settings.withDefaults(),
		log:       log,
	}
}

// Handle выполняет подбор.
//
// Фатальны только: отсутствие профиля или настроек запрашивающего,
// сбой чтения существующих пар и сбой запроса пула. Остальное деградирует локально.
func (h *FindCandidatesHandler) Handle(ctx context.Context, q FindCandidatesQuery) (*FindCandidatesResult, error) {
	start := time.Now()

	if err := q.Validate(h.settings); err != nil {
		return nil, err
	}

	// 1. Запрашивающий студент
	requester, err := h.loader.loadRequester(ctx, q.StudentID, q.Preferences)
	if err != nil {
		return nil, err
	}

	// 2. Существующие пары
	active, err := h.matches.ListActiveByStudent(ctx, q.StudentID)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", shared.ErrExclusionQuery, err)
	}
	excluded := social.ExclusionSet(q.StudentID, active)

	// 3. Пул с жёсткими фильтрами
	filter := social.NewCandidatePoolFilter(requester.profile.Profile, requester.prefs)
	pool, err := h.pool.FindCandidatePool(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", shared.ErrCandidatePoolQuery, err)
	}

	eligible := make([]*student.Profile, 0, len(pool))
	for _, p := range pool {
		if p == nil || p.ID == q.StudentID {
			continue
		}
		if _, ok := excluded[p.ID]; ok {
			continue
		}
		eligible = append(eligible, p)
	}

	// 4. Обогащение и скоринг
	enriched, err := h.loader.enrich(ctx, eligible, h.settings.EnrichConcurrency)
	if err != nil {
		return nil, err
	}

	scored := scoreAll(h.scorer, requester, enriched.candidates)
	kept := scored.FilterByMinScore(h.settings.MinScore)

	// 5. Сортировка и лимит
	kept.SortByScore()
	totalFound := len(kept)
	top := kept.TopN(q.Limit)

	// 6. AI-аннотация без изменения порядка и состава
	if q.IncludeAIAnalysis && len(top) > 0 {
		if toggleOn(h.aiToggle, q.StudentID) {
			h.annotate(ctx, requester, top)
		} else {
			h.log.Debug("AI enrichment disabled for student", logger.StudentID(q.StudentID))
		}
	}

	result := &FindCandidatesResult{
		StudentID:      q.StudentID,
		Candidates:     toCandidateDTOs(requester.prefs, top),
		TotalFound:     totalFound,
		PoolSize:       len(pool),
		Excluded:       len(pool) - len(eligible),
		Skipped:        enriched.incomplete + enriched.failed,
		BelowThreshold: len(scored) - totalFound,
		MinScore:       h.settings.MinScore,
		GeneratedAt:    time.Now().UTC(),
	}
	if len(result.Candidates) == 0 {
		result.Message = NoCandidatesMessage
	}

	h.log.Info("candidates found",
		logger.StudentID(q.StudentID),
		logger.Count("pool_size", result.PoolSize),
		logger.Count("excluded", result.Excluded),
		logger.Count("skipped", result.Skipped),
		logger.Count("returned", len(result.Candidates)),
		logger.Latency(time.Since(start)),
	)

	return result, nil
}

// annotate параллельно добавляет AI-оценку каждому кандидату.
func (h *FindCandidatesHandler) annotate(ctx context.Context, requester participant, list social.MatchCandidateList) {
	var g errgroup.Group
	g.SetLimit(h.settings.AIConcurrency)

	for i := range list {
		g.Go(func() error {
			candidate := participant{profile: list[i].Profile, prefs: list[i].Preferences}
			analysis := h.annotator.analyze(ctx, requester, candidate)
			list[i].AIAnalysis = &analysis
			return nil
		})
	}
	_ = g.Wait()
}
