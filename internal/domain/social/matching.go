package social

import (
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/alem-hub/study-buddy/internal/domain/shared"
	"github.com/alem-hub/study-buddy/internal/domain/student"
)

// ══════════════════════════════════════════════════════════════════════════════
// MATCHING
//
// Подбор напарника для учёбы:
// 1. Жёсткие фильтры на уровне запроса (open_to_matching, уровень ±3, возраст)
// 2. Исключение уже предложенных и связанных пар
// 3. Скоринг по шести факторам
// 4. Порог качества и сортировка
// ══════════════════════════════════════════════════════════════════════════════

const (
	// MaxLevelDifference - максимальная разница уровней в пуле кандидатов.
	MaxLevelDifference = 3

	// DefaultMinScore - порог качества findCandidates.
	DefaultMinScore = 60
)

// ══════════════════════════════════════════════════════════════════════════════
// MATCH CANDIDATE
// ══════════════════════════════════════════════════════════════════════════════

// MatchCandidate - кандидат вместе с его оценкой.
type MatchCandidate struct {
	Profile     student.PacedProfile
	Preferences *student.MatchingPreferences
	Score       MatchScore

	// AIAnalysis заполняется только при явном запросе.
	AIAnalysis *AIAnalysis
}

// MatchCandidateList - список кандидатов.
type MatchCandidateList []MatchCandidate

// SortByScore сортирует по убыванию балла.
// Сортировка стабильная: при равных баллах сохраняется порядок пула.
func (l MatchCandidateList) SortByScore() {
	sort.SliceStable(l, func(i, j int) bool {
		return l[i].Score.TotalScore > l[j].Score.TotalScore
	})
}

// FilterByMinScore оставляет кандидатов с баллом не ниже порога.
func (l MatchCandidateList) FilterByMinScore(minScore int) MatchCandidateList {
	result := make(MatchCandidateList, 0, len(l))
	for _, c := range l {
		if c.Score.MeetsFloor(minScore) {
			result = append(result, c)
		}
	}
	return result
}

// TopN возвращает первые n кандидатов.
func (l MatchCandidateList) TopN(n int) MatchCandidateList {
	if n < 0 || n >= len(l) {
		return l
	}
	return l[:n]
}

// IDs возвращает ID кандидатов в текущем порядке.
func (l MatchCandidateList) IDs() []string {
	ids := make([]string, len(l))
	for i, c := range l {
		ids[i] = c.Profile.ID
	}
	return ids
}

// ══════════════════════════════════════════════════════════════════════════════
// STUDY BUDDY MATCH
// Запись о знакомстве двух студентов.
// ══════════════════════════════════════════════════════════════════════════════

// MatchStatus - статус записи.
type MatchStatus string

const (
	// MatchStatusSuggested - пара предложена, ждём ответа.
	MatchStatusSuggested MatchStatus = "suggested"

	// MatchStatusConnected - пара приняла предложение (терминальный).
	MatchStatusConnected MatchStatus = "connected"

	// MatchStatusDeclined - предложение отклонено (терминальный).
	MatchStatusDeclined MatchStatus = "declined"
)

// IsValid проверяет статус.
func (s MatchStatus) IsValid() bool {
	switch s {
	case MatchStatusSuggested, MatchStatusConnected, MatchStatusDeclined:
		return true
	default:
		return false
	}
}

// IsActive возвращает true для статусов, блокирующих повторный подбор пары.
func (s MatchStatus) IsActive() bool {
	return s == MatchStatusSuggested || s == MatchStatusConnected
}

// ActiveMatchStatuses - статусы, попадающие в множество исключений.
func ActiveMatchStatuses() []MatchStatus {
	return []MatchStatus{MatchStatusSuggested, MatchStatusConnected}
}

// StudyBuddyMatch - агрегат знакомства.
type StudyBuddyMatch struct {
	// ─────────────────────────────────────────────────────────────────────────
	// Идентификация
	// ─────────────────────────────────────────────────────────────────────────

	// ID - UUID записи.
	ID string `json:"id"`

	// StudentID - кому предложили напарника.
	StudentID string `json:"student_id"`

	// PeerID - предложенный напарник. Только он может ответить.
	PeerID string `json:"peer_id"`

	// ─────────────────────────────────────────────────────────────────────────
	// Снимок оценки на момент знакомства
	// ─────────────────────────────────────────────────────────────────────────

	CompatibilityScore int    `json:"compatibility_score"`
	MatchReasoning     string `json:"match_reasoning"`

	// ─────────────────────────────────────────────────────────────────────────
	// Состояние
	// ─────────────────────────────────────────────────────────────────────────

	Status      MatchStatus `json:"status"`
	CreatedAt   time.Time   `json:"created_at"`
	ConnectedAt *time.Time  `json:"connected_at,omitempty"`
	DeclinedAt  *time.Time  `json:"declined_at,omitempty"`
}

// NewStudyBuddyMatch создаёт предложенную пару со снимком оценки.
func NewStudyBuddyMatch(studentID, peerID string, score MatchScore, now time.Time) (*StudyBuddyMatch, error) {
	if studentID == "" || peerID == "" {
		return nil, shared.ErrInvalidStudentID
	}
	if studentID == peerID {
		return nil, shared.ErrSelfMatch
	}

	return &StudyBuddyMatch{
		ID:                 uuid.New().String(),
		StudentID:          studentID,
		PeerID:             peerID,
		CompatibilityScore: score.TotalScore,
		MatchReasoning:     score.Reasoning,
		Status:             MatchStatusSuggested,
		CreatedAt:          now,
	}, nil
}

// Connect переводит предложение в connected.
func (m *StudyBuddyMatch) Connect(now time.Time) error {
	if m.Status != MatchStatusSuggested {
		return shared.ErrInvalidMatchTransition
	}
	m.Status = MatchStatusConnected
	m.ConnectedAt = &now
	return nil
}

// Decline переводит предложение в declined.
func (m *StudyBuddyMatch) Decline(now time.Time) error {
	if m.Status != MatchStatusSuggested {
		return shared.ErrInvalidMatchTransition
	}
	m.Status = MatchStatusDeclined
	m.DeclinedAt = &now
	return nil
}

// PairKey - ключ неупорядоченной пары.
func (m *StudyBuddyMatch) PairKey() string {
	return shared.PairKey(m.StudentID, m.PeerID)
}

// InvolvesStudent проверяет участие студента в паре.
func (m *StudyBuddyMatch) InvolvesStudent(id string) bool {
	return m.StudentID == id || m.PeerID == id
}

// OtherStudent возвращает второго участника пары или "" для постороннего.
func (m *StudyBuddyMatch) OtherStudent(id string) string {
	switch id {
	case m.StudentID:
		return m.PeerID
	case m.PeerID:
		return m.StudentID
	default:
		return ""
	}
}

// IsActive возвращает true, пока пара блокирует повторный подбор.
func (m *StudyBuddyMatch) IsActive() bool {
	return m.Status.IsActive()
}

// ExclusionSet строит множество ID собеседников студента по активным записям.
// Учитываются обе стороны пары.
func ExclusionSet(studentID string, matches []*StudyBuddyMatch) map[string]struct{} {
	excluded := make(map[string]struct{}, len(matches))
	for _, m := range matches {
		if m == nil || !m.IsActive() {
			continue
		}
		if other := m.OtherStudent(studentID); other != "" {
			excluded[other] = struct{}{}
		}
	}
	return excluded
}
