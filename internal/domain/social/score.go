package social

// ══════════════════════════════════════════════════════════════════════════════
// MATCH SCORE
// Результат одного вызова скорера. Создаётся заново на каждый вызов и не является
// источником истины: в StudyBuddyMatch сохраняется только снимок.
// ══════════════════════════════════════════════════════════════════════════════

// ConfidenceLevel - качественная оценка итогового балла.
type ConfidenceLevel string

const (
	// ConfidenceHigh - итоговый балл >= 80.
	ConfidenceHigh ConfidenceLevel = "high"
	// ConfidenceMedium - итоговый балл >= 60.
	ConfidenceMedium ConfidenceLevel = "medium"
	// ConfidenceLow - всё остальное.
	ConfidenceLow ConfidenceLevel = "low"
)

// ConfidenceFor возвращает уровень уверенности для итогового балла.
func ConfidenceFor(total int) ConfidenceLevel {
	switch {
	case total >= 80:
		return ConfidenceHigh
	case total >= 60:
		return ConfidenceMedium
	default:
		return ConfidenceLow
	}
}

// Максимальные значения слагаемых.
const (
	MaxLevelCompatibility    = 25
	MaxGoalAlignment         = 20
	MaxScheduleOverlap       = 20
	MaxLearningPaceMatch     = 15
	MaxInterestsOverlap      = 10
	MaxCommunicationStyleFit = 10

	// MaxTotalScore - сумма всех максимумов.
	MaxTotalScore = MaxLevelCompatibility + MaxGoalAlignment + MaxScheduleOverlap +
		MaxLearningPaceMatch + MaxInterestsOverlap + MaxCommunicationStyleFit
)

// ScoreBreakdown - шесть именованных слагаемых итогового балла.
type ScoreBreakdown struct {
	LevelCompatibility    int `json:"level_compatibility"`
	GoalAlignment         int `json:"goal_alignment"`
	ScheduleOverlap       int `json:"schedule_overlap"`
	LearningPaceMatch     int `json:"learning_pace_match"`
	InterestsOverlap      int `json:"interests_overlap"`
	CommunicationStyleFit int `json:"communication_style_fit"`
}

// Total возвращает сумму слагаемых.
func (b ScoreBreakdown) Total() int {
	return b.LevelCompatibility +
		b.GoalAlignment +
		b.ScheduleOverlap +
		b.LearningPaceMatch +
		b.InterestsOverlap +
		b.CommunicationStyleFit
}

// MatchScore - результат скоринга пары.
type MatchScore struct {
	// TotalScore - всегда равен Breakdown.Total(), 0-100.
	TotalScore int `json:"total_score"`

	Breakdown ScoreBreakdown `json:"breakdown"`

	ConfidenceLevel ConfidenceLevel `json:"confidence_level"`

	// Reasoning - предложение о том, какие факторы определили балл.
	Reasoning string `json:"reasoning"`
}

// MeetsFloor возвращает true, если балл не ниже порога.
func (s MatchScore) MeetsFloor(minScore int) bool {
	return s.TotalScore >= minScore
}
