package student

import (
	"math"
	"strings"
	"time"

	"github.com/alem-hub/study-buddy/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// VALUE OBJECTS
// ══════════════════════════════════════════════════════════════════════════════

// AgeGroup - грубая возрастная корзина, используется только для правила безопасности.
type AgeGroup string

const (
	// AgeGroupUnder18 - несовершеннолетние.
	AgeGroupUnder18 AgeGroup = "under-18"
	// AgeGroup18To21 - 18-21 год.
	AgeGroup18To21 AgeGroup = "18-21"
	// AgeGroupAdult - открытая группа, может подбираться с любой взрослой группой.
	AgeGroupAdult AgeGroup = "22+"
)

// IsValid проверяет, что группа известна.
func (g AgeGroup) IsValid() bool {
	switch g {
	case AgeGroupUnder18, AgeGroup18To21, AgeGroupAdult:
		return true
	default:
		return false
	}
}

// IsOpen возвращает true для открытой группы "22+".
// Для всех остальных групп кандидаты обязаны быть из той же группы.
func (g AgeGroup) IsOpen() bool {
	return g == AgeGroupAdult
}

// RequiredCandidateGroup возвращает группу, которой обязаны принадлежать кандидаты.
// restricted=false только для "22+". Пустая или неизвестная группа ограничивает
// кандидатов той же (несуществующей) группой, то есть никем.
func (g AgeGroup) RequiredCandidateGroup() (group AgeGroup, restricted bool) {
	if g.IsOpen() {
		return "", false
	}
	return g, true
}

// String возвращает строковое представление группы.
func (g AgeGroup) String() string {
	return string(g)
}

// ══════════════════════════════════════════════════════════════════════════════
// PROFILE
// ══════════════════════════════════════════════════════════════════════════════

// Profile - идентичность студента и снимок его прогресса.
type Profile struct {
	// ID - идентификатор студента.
	ID string `json:"id"`

	// DisplayName - отображаемое имя.
	DisplayName string `json:"display_name"`

	// AvatarURL - ссылка на аватар.
	AvatarURL string `json:"avatar_url,omitempty"`

	// Level - числовой уровень навыков.
	Level int `json:"level"`

	// CurrentModule - текущая позиция в программе курса.
	CurrentModule int `json:"current_module"`

	// AgeGroup - возрастная группа.
	AgeGroup AgeGroup `json:"age_group"`

	// CreatedAt - когда создан аккаунт.
	CreatedAt time.Time `json:"created_at"`
}

// LevelRange возвращает допустимый диапазон уровней кандидатов [level-d, level+d].
func (p Profile) LevelRange(maxDifference int) (minLevel, maxLevel int) {
	return p.Level - maxDifference, p.Level + maxDifference
}

// PacedProfile - профиль вместе с вычисленным темпом обучения.
type PacedProfile struct {
	Profile

	// VideosPerWeek - темп: завершённые видео в неделю (округление вверх).
	VideosPerWeek int `json:"videos_per_week"`
}

// WithPace добавляет к профилю темп, вычисленный по количеству завершённых видео.
func (p Profile) WithPace(completedVideos int, now time.Time) PacedProfile {
	return PacedProfile{
		Profile:       p,
		VideosPerWeek: CalculatePace(completedVideos, p.CreatedAt, now),
	}
}

// CalculatePace вычисляет темп обучения:
// ceil(completed / max(1, полных недель с момента регистрации)).
// Регистрация в тот же день (или в будущем) считается одной неделей.
func CalculatePace(completedVideos int, joinedAt, now time.Time) int {
	if completedVideos <= 0 {
		return 0
	}
	weeks := max(1, timeutil.WeeksSince(joinedAt, now))
	return int(math.Ceil(float64(completedVideos) / float64(weeks)))
}

// ══════════════════════════════════════════════════════════════════════════════
// ENUMS
// ══════════════════════════════════════════════════════════════════════════════

// LearningStyle - предпочитаемый стиль обучения.
type LearningStyle string

const (
	LearningStyleVisual      LearningStyle = "visual"
	LearningStyleHandsOn     LearningStyle = "hands-on"
	LearningStyleTheoretical LearningStyle = "theoretical"
	LearningStyleSocial      LearningStyle = "social"
)

// IsValid проверяет стиль обучения.
func (s LearningStyle) IsValid() bool {
	switch s {
	case LearningStyleVisual, LearningStyleHandsOn, LearningStyleTheoretical, LearningStyleSocial:
		return true
	default:
		return false
	}
}

// CommunicationPreference - предпочитаемый канал общения.
type CommunicationPreference string

const (
	CommunicationText  CommunicationPreference = "text"
	CommunicationVoice CommunicationPreference = "voice"
	CommunicationVideo CommunicationPreference = "video"
	CommunicationAny   CommunicationPreference = "any"
)

// IsValid проверяет канал общения.
func (c CommunicationPreference) IsValid() bool {
	switch c {
	case CommunicationText, CommunicationVoice, CommunicationVideo, CommunicationAny:
		return true
	default:
		return false
	}
}

// CompatibleWith возвращает true, если каналы совпадают или один из них "any".
func (c CommunicationPreference) CompatibleWith(other CommunicationPreference) bool {
	a := CommunicationPreference(strings.ToLower(string(c)))
	b := CommunicationPreference(strings.ToLower(string(other)))
	return a == b || a == CommunicationAny || b == CommunicationAny
}
