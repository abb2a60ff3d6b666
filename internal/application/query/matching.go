// Package query contains read operations (CQRS - Queries).
package query

import (
	"context"
	"errors"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alem-hub/study-buddy/internal/domain/shared"
	"github.com/alem-hub/study-buddy/internal/domain/social"
	"github.com/alem-hub/study-buddy/internal/domain/student"
	"github.com/alem-hub/study-buddy/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// MATCHING SUPPORT
// Общие части запросов подбора: настройки, загрузка участников,
// параллельное обогащение кандидатов и AI-аннотация.
// ══════════════════════════════════════════════════════════════════════════════

// Settings - параметры подбора.
type Settings struct {
	// MinScore - порог качества findCandidates.
	MinScore int

	// DefaultLimit - лимит, если запрос его не указал.
	DefaultLimit int

	// MaxLimit - верхняя граница лимита.
	MaxLimit int

	// EnrichConcurrency - сколько кандидатов обогащается одновременно.
	EnrichConcurrency int

	// AIConcurrency - сколько AI-оценок выполняется одновременно.
	AIConcurrency int
}

// DefaultSettings возвращает настройки по умолчанию.
func DefaultSettings() Settings {
	return Settings{
		MinScore:          social.DefaultMinScore,
		DefaultLimit:      10,
		MaxLimit:          50,
		EnrichConcurrency: 8,
		AIConcurrency:     3,
	}
}

func (s Settings) withDefaults() Settings {
	d := DefaultSettings()
	if s.MinScore <= 0 {
		s.MinScore = d.MinScore
	}
	if s.DefaultLimit <= 0 {
		s.DefaultLimit = d.DefaultLimit
	}
	if s.MaxLimit <= 0 {
		s.MaxLimit = d.MaxLimit
	}
	if s.EnrichConcurrency <= 0 {
		s.EnrichConcurrency = d.EnrichConcurrency
	}
	if s.AIConcurrency <= 0 {
		s.AIConcurrency = d.AIConcurrency
	}
	return s
}

// Toggle - включённая для конкретного студента функциональность.
type Toggle interface {
	EnabledFor(studentID string) bool
}

// toggleOn возвращает true для nil-переключателя.
func toggleOn(t Toggle, studentID string) bool {
	return t == nil || t.EnabledFor(studentID)
}

// Clock возвращает текущее время.
type Clock func() time.Time

func (c Clock) now() time.Time {
	if c == nil {
		return time.Now().UTC()
	}
	return c()
}

// ─────────────────────────────────────────────────────────────────────────────
// Participants
// ─────────────────────────────────────────────────────────────────────────────

// participant - профиль с темпом и настройками.
type participant struct {
	profile student.PacedProfile
	prefs   *student.MatchingPreferences
}

// participantLoader читает профиль, настройки и темп студента.
type participantLoader struct {
	profiles    student.ProfileRepository
	preferences student.PreferencesRepository
	activity    student.ActivityRepository
	clock       Clock
	log         *logger.Logger
}

// loadRequester загружает запрашивающего студента.
// Профиль и настройки обязательны. Сбой чтения активности даёт темп 0.
func (l *participantLoader) loadRequester(
	ctx context.Context,
	studentID string,
	prefsOverride *student.MatchingPreferences,
) (participant, error) {
	profile, err := l.profiles.GetByID(ctx, studentID)
	if err != nil {
		return participant{}, storeError("LoadProfile", err)
	}

	prefs := prefsOverride
	if prefs == nil {
		prefs, err = l.preferences.GetByStudentID(ctx, studentID)
		if err != nil {
			return participant{}, storeError("LoadPreferences", err)
		}
	}

	return participant{profile: l.pace(ctx, *profile), prefs: prefs}, nil
}

// pace вычисляет темп; ошибка чтения активности не фатальна.
func (l *participantLoader) pace(ctx context.Context, profile student.Profile) student.PacedProfile {
	completed, err := l.activity.CountCompletedVideos(ctx, profile.ID)
	if err != nil {
		l.log.Warn("activity read failed, assuming zero pace",
			logger.StudentID(profile.ID),
			logger.Err(err),
		)
		completed = 0
	}
	return profile.WithPace(completed, l.clock.now())
}

// storeError оставляет NotFound как есть, остальные сбои чтения помечает как QueryFailure.
func storeError(op string, err error) error {
	if shared.IsNotFound(err) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return shared.WrapError("matching", op, shared.ErrQueryFailed, "store read failed", err)
}

// ─────────────────────────────────────────────────────────────────────────────
// Enrichment
// ─────────────────────────────────────────────────────────────────────────────

// enrichment - результат обогащения пула.
type enrichment struct {
	// candidates - в порядке пула, без пропущенных.
	candidates []participant

	// incomplete - кандидаты без настроек.
	incomplete int

	// failed - кандидаты, чтение которых завершилось ошибкой.
	failed int
}

// enrich параллельно загружает настройки и темп кандидатов.
// Результаты раскладываются по индексам пула, поэтому порядок не зависит от
// порядка завершения запросов. Ошибки отдельных кандидатов не прерывают остальных.
func (l *participantLoader) enrich(ctx context.Context, pool []*student.Profile, concurrency int) (enrichment, error) {
	type slot struct {
		p          participant
		ok         bool
		incomplete bool
	}
	slots := make([]slot, len(pool))

	var g errgroup.Group
	g.SetLimit(max(1, concurrency))

	for i, candidate := range pool {
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}

			prefs, err := l.preferences.GetByStudentID(ctx, candidate.ID)
			if err != nil {
				if shared.IsNotFound(err) {
					l.log.Debug("candidate skipped",
						logger.CandidateID(candidate.ID),
						logger.Err(shared.ErrCandidateIncomplete),
					)
					slots[i].incomplete = true
				} else {
					l.log.Warn("candidate skipped: preferences read failed",
						logger.CandidateID(candidate.ID),
						logger.Err(err),
					)
				}
				return nil
			}

			completed, err := l.activity.CountCompletedVideos(ctx, candidate.ID)
			if err != nil {
				l.log.Warn("candidate skipped: activity read failed",
					logger.CandidateID(candidate.ID),
					logger.Err(err),
				)
				return nil
			}

			slots[i] = slot{
				p: participant{
					profile: candidate.WithPace(completed, l.clock.now()),
					prefs:   prefs,
				},
				ok: true,
			}
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return enrichment{}, err
	}

	var out enrichment
	out.candidates = make([]participant, 0, len(pool))
	for _, s := range slots {
		switch {
		case s.ok:
			out.candidates = append(out.candidates, s.p)
		case s.incomplete:
			out.incomplete++
		default:
			out.failed++
		}
	}
	return out, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// AI annotation
// ─────────────────────────────────────────────────────────────────────────────

// aiAnnotator получает AI-оценку пары через кеш.
type aiAnnotator struct {
	analyzer social.CompatibilityAnalyzer
	cache    social.AnalysisCache
	log      *logger.Logger
}

// analyze никогда не возвращает ошибку: сбой кеша логируется, сбой модели
// превращается анализатором в деградировавший ответ.
func (a *aiAnnotator) analyze(ctx context.Context, requester, candidate participant) social.AIAnalysis {
	if a.analyzer == nil {
		return social.UnavailableAIAnalysis()
	}

	studentID, candidateID := requester.profile.ID, candidate.profile.ID

	if a.cache != nil {
		cached, err := a.cache.Get(ctx, studentID, candidateID)
		if err != nil {
			a.log.Warn("analysis cache read failed",
				logger.StudentID(studentID),
				logger.CandidateID(candidateID),
				logger.Err(err),
			)
		} else if cached != nil {
			return *cached
		}
	}

	analysis := a.analyzer.Analyze(ctx, requester.profile, candidate.profile, requester.prefs, candidate.prefs)

	if a.cache != nil && !analysis.IsDegraded() {
		if err := a.cache.Set(ctx, studentID, candidateID, analysis); err != nil {
			a.log.Warn("analysis cache write failed",
				logger.StudentID(studentID),
				logger.CandidateID(candidateID),
				logger.Err(err),
			)
		}
	}
	return analysis
}

// ─────────────────────────────────────────────────────────────────────────────
// DTO
// ─────────────────────────────────────────────────────────────────────────────

// CandidateDTO - кандидат в ответе.
type CandidateDTO struct {
	// ─────────────────────────────────────────────────────────────────────────
	// Профиль
	// ─────────────────────────────────────────────────────────────────────────

	StudentID     string           `json:"student_id"`
	DisplayName   string           `json:"display_name"`
	AvatarURL     string           `json:"avatar_url,omitempty"`
	Level         int              `json:"level"`
	CurrentModule int              `json:"current_module"`
	AgeGroup      student.AgeGroup `json:"age_group"`
	VideosPerWeek int              `json:"videos_per_week"`

	// ─────────────────────────────────────────────────────────────────────────
	// Совместимость
	// ─────────────────────────────────────────────────────────────────────────

	MatchScore social.MatchScore `json:"match_score"`

	// SharedTopics - общие interested_topics (в нижнем регистре).
	SharedTopics []string `json:"shared_topics"`

	// SharedProjects - общие project_interests.
	SharedProjects []string `json:"shared_projects"`

	// AIAnalysis - только при include_ai.
	AIAnalysis *social.AIAnalysis `json:"ai_analysis,omitempty"`
}

func newCandidateDTO(requesterPrefs *student.MatchingPreferences, c social.MatchCandidate) CandidateDTO {
	p := c.Profile
	return CandidateDTO{
		StudentID:      p.ID,
		DisplayName:    p.DisplayName,
		AvatarURL:      p.AvatarURL,
		Level:          p.Level,
		CurrentModule:  p.CurrentModule,
		AgeGroup:       p.AgeGroup,
		VideosPerWeek:  p.VideosPerWeek,
		MatchScore:     c.Score,
		SharedTopics:   requesterPrefs.Topics().Intersection(c.Preferences.Topics()),
		SharedProjects: requesterPrefs.Projects().Intersection(c.Preferences.Projects()),
		AIAnalysis:     c.AIAnalysis,
	}
}

func toCandidateDTOs(requesterPrefs *student.MatchingPreferences, list social.MatchCandidateList) []CandidateDTO {
	out := make([]CandidateDTO, len(list))
	for i, c := range list {
		out[i] = newCandidateDTO(requesterPrefs, c)
	}
	return out
}

// scoreAll скорит обогащённых кандидатов в порядке пула.
func scoreAll(scorer *social.Scorer, requester participant, candidates []participant) social.MatchCandidateList {
	list := make(social.MatchCandidateList, 0, len(candidates))
	for _, c := range candidates {
		list = append(list, social.MatchCandidate{
			Profile:     c.profile,
			Preferences: c.prefs,
			Score:       scorer.Calculate(requester.profile, c.profile, requester.prefs, c.prefs),
		})
	}
	return list
}
