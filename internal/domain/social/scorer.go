package social

import (
	"math"
	"strings"

	"github.com/alem-hub/study-buddy/internal/domain/student"
)

// ══════════════════════════════════════════════════════════════════════════════
// COMPATIBILITY SCORER
//
// Шесть аддитивных слагаемых, каждое ограничено своим максимумом до суммирования:
// ни одно не уходит в минус и не превышает предел.
//
// Все слагаемые симметричны (модуль разности или пересечение множеств),
// поэтому Calculate(A, B) == Calculate(B, A).
// ══════════════════════════════════════════════════════════════════════════════

// ScoringRules - веса и пороги скорера.
type ScoringRules struct {
	// ─────────────────────────────────────────────────────────────────────────
	// Веса
	// ─────────────────────────────────────────────────────────────────────────

	// LevelPenaltyPerStep - штраф за каждую единицу разницы уровней.
	LevelPenaltyPerStep int

	// PointsPerSharedTopic - баллы за каждую общую тему из interested_topics.
	PointsPerSharedTopic int

	// PointsPerOverlapHour - баллы за каждый час пересечения расписаний.
	PointsPerOverlapHour float64

	// PacePenaltyPerStep - штраф за каждое видео/неделю разницы темпа.
	PacePenaltyPerStep int

	// PointsPerSharedProject - баллы за каждый общий project_interest.
	PointsPerSharedProject int

	// CommunicationMismatch - баллы при несовпадении каналов общения (никогда не 0).
	CommunicationMismatch int

	// ─────────────────────────────────────────────────────────────────────────
	// Пороги для формирования reasoning
	// ─────────────────────────────────────────────────────────────────────────

	LevelReasonThreshold     int
	ScheduleReasonThreshold  int
	GoalReasonThreshold      int
	PaceReasonThreshold      int
	InterestsReasonThreshold int
}

// DefaultScoringRules возвращает стандартные правила.
func DefaultScoringRules() ScoringRules {
	return ScoringRules{
		LevelPenaltyPerStep:    8,
		PointsPerSharedTopic:   7,
		PointsPerOverlapHour:   4,
		PacePenaltyPerStep:     2,
		PointsPerSharedProject: 4,
		CommunicationMismatch:  5,

		LevelReasonThreshold:     20,
		ScheduleReasonThreshold:  15,
		GoalReasonThreshold:      15,
		PaceReasonThreshold:      12,
		InterestsReasonThreshold: 8,
	}
}

// Scorer вычисляет совместимость пары студентов. Не выполняет I/O.
type Scorer struct {
	rules ScoringRules
}

// NewScorer создаёт скорер с заданными правилами.
func NewScorer(rules ScoringRules) *Scorer {
	return &Scorer{rules: rules}
}

// CalculateCompatibility - скоринг по стандартным правилам.
func CalculateCompatibility(a, b student.PacedProfile, aPrefs, bPrefs *student.MatchingPreferences) MatchScore {
	return NewScorer(DefaultScoringRules()).Calculate(a, b, aPrefs, bPrefs)
}

// Calculate возвращает оценку совместимости пары.
// nil-настройки и пустые поля считаются пустыми множествами, а не ошибкой.
func (s *Scorer) Calculate(a, b student.PacedProfile, aPrefs, bPrefs *student.MatchingPreferences) MatchScore {
	breakdown := ScoreBreakdown{
		LevelCompatibility:    s.levelCompatibility(a.Level, b.Level),
		GoalAlignment:         s.goalAlignment(aPrefs, bPrefs),
		ScheduleOverlap:       s.scheduleOverlap(aPrefs, bPrefs),
		LearningPaceMatch:     s.paceMatch(a.VideosPerWeek, b.VideosPerWeek),
		InterestsOverlap:      s.interestsOverlap(aPrefs, bPrefs),
		CommunicationStyleFit: s.communicationFit(aPrefs, bPrefs),
	}

	total := breakdown.Total()
	return MatchScore{
		TotalScore:      total,
		Breakdown:       breakdown,
		ConfidenceLevel: ConfidenceFor(total),
		Reasoning:       s.reasoning(breakdown),
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Слагаемые
// ─────────────────────────────────────────────────────────────────────────────

func (s *Scorer) levelCompatibility(a, b int) int {
	return clamp(MaxLevelCompatibility-s.rules.LevelPenaltyPerStep*absInt(a-b), MaxLevelCompatibility)
}

func (s *Scorer) goalAlignment(a, b *student.MatchingPreferences) int {
	common := a.Topics().IntersectionCount(b.Topics())
	return clamp(s.rules.PointsPerSharedTopic*common, MaxGoalAlignment)
}

func (s *Scorer) scheduleOverlap(a, b *student.MatchingPreferences) int {
	minutes := student.ScheduleOverlapMinutes(a.StudyTimes(), b.StudyTimes())
	if minutes == 0 {
		return 0
	}
	hours := float64(minutes) / 60
	points := math.Min(float64(MaxScheduleOverlap), s.rules.PointsPerOverlapHour*hours)
	return clamp(int(math.Round(points)), MaxScheduleOverlap)
}

func (s *Scorer) paceMatch(a, b int) int {
	return clamp(MaxLearningPaceMatch-s.rules.PacePenaltyPerStep*absInt(a-b), MaxLearningPaceMatch)
}

func (s *Scorer) interestsOverlap(a, b *student.MatchingPreferences) int {
	common := a.Projects().IntersectionCount(b.Projects())
	return clamp(s.rules.PointsPerSharedProject*common, MaxInterestsOverlap)
}

func (s *Scorer) communicationFit(a, b *student.MatchingPreferences) int {
	if a.Communication().CompatibleWith(b.Communication()) {
		return MaxCommunicationStyleFit
	}
	return clamp(s.rules.CommunicationMismatch, MaxCommunicationStyleFit)
}

// ─────────────────────────────────────────────────────────────────────────────
// Reasoning
// ─────────────────────────────────────────────────────────────────────────────

const (
	reasonLevel     = "similar skill levels"
	reasonSchedule  = "overlapping study schedules"
	reasonGoals     = "shared learning goals"
	reasonPace      = "matching learning pace"
	reasonInterests = "common project interests"
	reasonFallback  = "compatible learning styles"
)

// reasoning перечисляет факторы, внёсшие заметный вклад, в фиксированном порядке.
func (s *Scorer) reasoning(b ScoreBreakdown) string {
	var clauses []string
	if b.LevelCompatibility >= s.rules.LevelReasonThreshold {
		clauses = append(clauses, reasonLevel)
	}
	if b.ScheduleOverlap >= s.rules.ScheduleReasonThreshold {
		clauses = append(clauses, reasonSchedule)
	}
	if b.GoalAlignment >= s.rules.GoalReasonThreshold {
		clauses = append(clauses, reasonGoals)
	}
	if b.LearningPaceMatch >= s.rules.PaceReasonThreshold {
		clauses = append(clauses, reasonPace)
	}
	if b.InterestsOverlap >= s.rules.InterestsReasonThreshold {
		clauses = append(clauses, reasonInterests)
	}
	if len(clauses) == 0 {
		clauses = append(clauses, reasonFallback)
	}
	return "Good study match: " + joinClauses(clauses) + "."
}

// joinClauses соединяет части через запятую, последнюю через "and".
func joinClauses(parts []string) string {
	switch len(parts) {
	case 1:
		return parts[0]
	case 2:
		return parts[0] + " and " + parts[1]
	default:
		return strings.Join(parts[:len(parts)-1], ", ") + " and " + parts[len(parts)-1]
	}
}

func clamp(v, maxValue int) int {
	return min(max(v, 0), maxValue)
}

func absInt(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
