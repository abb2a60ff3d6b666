package social

import (
	"context"

	"github.com/alem-hub/study-buddy/internal/domain/student"
)

// ══════════════════════════════════════════════════════════════════════════════
// AI ANALYSIS
// Вспомогательная оценка пары языковой моделью. Никогда не влияет на
// включение или исключение кандидата в findCandidates.
// ══════════════════════════════════════════════════════════════════════════════

// UnavailableConcern - единственный concern деградировавшего анализа.
const UnavailableConcern = "AI analysis unavailable"

// AIAnalysis - ответ модели: балл 0-100 и пояснения.
type AIAnalysis struct {
	Score    int      `json:"score"`
	Reasons  []string `json:"reasons"`
	Concerns []string `json:"concerns"`
}

// UnavailableAIAnalysis возвращает ответ, который отдаётся вместо ошибки.
func UnavailableAIAnalysis() AIAnalysis {
	return AIAnalysis{
		Score:    0,
		Reasons:  []string{},
		Concerns: []string{UnavailableConcern},
	}
}

// IsDegraded возвращает true для ответа-заглушки.
func (a AIAnalysis) IsDegraded() bool {
	return a.Score == 0 && len(a.Reasons) == 0 &&
		len(a.Concerns) == 1 && a.Concerns[0] == UnavailableConcern
}

// AnalysisCache - кеш AI-оценок по неупорядоченной паре.
type AnalysisCache interface {
	// Get возвращает nil без ошибки при промахе.
	Get(ctx context.Context, studentA, studentB string) (*AIAnalysis, error)

	// Set сохраняет оценку. Деградировавшие оценки не кешируются.
	Set(ctx context.Context, studentA, studentB string, analysis AIAnalysis) error
}

// CompatibilityAnalyzer - порт AI-оценки.
// Реализация не возвращает ошибок: любой сбой превращается в UnavailableAIAnalysis.
type CompatibilityAnalyzer interface {
	Analyze(ctx context.Context, a, b student.PacedProfile, aPrefs, bPrefs *student.MatchingPreferences) AIAnalysis
}
