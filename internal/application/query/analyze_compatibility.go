package query

import (
	"context"

	"github.com/alem-hub/study-buddy/internal/domain/shared"
	"github.com/alem-hub/study-buddy/internal/domain/social"
	"github.com/alem-hub/study-buddy/internal/domain/student"
	"github.com/alem-hub/study-buddy/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// ANALYZE COMPATIBILITY QUERY
// AI-оценка пары. Результат носит справочный характер: он не влияет на подбор,
// а сбой модели возвращается как деградировавший ответ, а не как ошибка.
// ══════════════════════════════════════════════════════════════════════════════

// RateLimiter ограничивает частоту запросов по ключу.
type RateLimiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// AnalysisResult - AI-оценка пары.
type AnalysisResult struct {
	StudentID   string            `json:"student_id"`
	CandidateID string            `json:"candidate_id"`
	Analysis    social.AIAnalysis `json:"analysis"`
	Degraded    bool              `json:"degraded"`
}

// AnalyzeCompatibilityHandler обрабатывает AI-оценку.
type AnalyzeCompatibilityHandler struct {
	loader    *participantLoader
	annotator *aiAnnotator
	limiter   RateLimiter
	toggle    Toggle
	log       *logger.Logger
}

// AnalyzeCompatibilityDeps - зависимости обработчика.
type AnalyzeCompatibilityDeps struct {
	Profiles    student.ProfileRepository
	Preferences student.PreferencesRepository
	Activity    student.ActivityRepository

	Analyzer social.CompatibilityAnalyzer
	Cache    social.AnalysisCache
	Limiter  RateLimiter
	Toggle   Toggle

	Clock  Clock
	Logger *logger.Logger
}

// NewAnalyzeCompatibilityHandler создаёт новый обработчик.
func NewAnalyzeCompatibilityHandler(deps AnalyzeCompatibilityDeps) *AnalyzeCompatibilityHandler {
	log := deps.Logger
	if log == nil {
		log = logger.Nop()
	}
	log = log.With(logger.Component("analyze_compatibility"))

	return &AnalyzeCompatibilityHandler{
		loader: &participantLoader{
			profiles:    deps.Profiles,
			preferences: deps.Preferences,
			activity:    deps.Activity,
			clock:       deps.Clock,
			log:         log,
		},
		annotator: &aiAnnotator{analyzer: deps.Analyzer, cache: deps.Cache, log: log},
		limiter:   deps.Limiter,
		toggle:    deps.Toggle,
		log:       log,
	}
}

// Handle возвращает AI-оценку пары.
// Ошибки: отсутствие участников (NotFound) и превышение лимита (ErrAIRateLimited).
func (h *AnalyzeCompatibilityHandler) Handle(ctx context.Context, q PairQuery) (*AnalysisResult, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}

	if h.limiter != nil {
		allowed, err := h.limiter.Allow(ctx, q.StudentID)
		if err != nil {
			// Лимитер недоступен - не блокируем пользователя.
			h.log.Warn("rate limiter failed", logger.StudentID(q.StudentID), logger.Err(err))
		} else if !allowed {
			return nil, shared.ErrAIRateLimited
		}
	}

	a, b, err := loadPair(ctx, h.loader, q)
	if err != nil {
		return nil, err
	}

	var analysis social.AIAnalysis
	if toggleOn(h.toggle, q.StudentID) {
		analysis = h.annotator.analyze(ctx, a, b)
	} else {
		analysis = social.UnavailableAIAnalysis()
	}

	return &AnalysisResult{
		StudentID:   q.StudentID,
		CandidateID: q.CandidateID,
		Analysis:    analysis,
		Degraded:    analysis.IsDegraded(),
	}, nil
}
