package social

import (
	"context"
	"errors"

	"github.com/alem-hub/study-buddy/internal/domain/student"
)

// ══════════════════════════════════════════════════════════════════════════════
// REPOSITORY INTERFACES
// Эти интерфейсы определяют контракт для работы с хранилищем данных.
// Реализации находятся в infrastructure/persistence.
// ══════════════════════════════════════════════════════════════════════════════

// CandidatePoolFilter - жёсткие фильтры пула, применяются в запросе, а не после.
type CandidatePoolFilter struct {
	// ExcludeStudentID - сам запрашивающий студент.
	ExcludeStudentID string

	// MinLevel, MaxLevel - включительный диапазон уровней.
	MinLevel int
	MaxLevel int

	// AgeRestricted - кандидаты строго из группы AgeGroup (даже если она пуста).
	AgeRestricted bool
	AgeGroup      student.AgeGroup

	// Timezone - если не пусто, точное совпадение часового пояса.
	Timezone string

	// OpenToMatching - требовать open_to_matching = true.
	OpenToMatching bool
}

// NewCandidatePoolFilter строит фильтр для студента.
// Правило безопасности: вне открытой группы "22+" возрастная группа совпадает точно.
func NewCandidatePoolFilter(requester student.Profile, prefs *student.MatchingPreferences) CandidatePoolFilter {
	minLevel, maxLevel := requester.LevelRange(MaxLevelDifference)
	group, restricted := requester.AgeGroup.RequiredCandidateGroup()

	filter := CandidatePoolFilter{
		ExcludeStudentID: requester.ID,
		MinLevel:         minLevel,
		MaxLevel:         maxLevel,
		AgeRestricted:    restricted,
		AgeGroup:         group,
		OpenToMatching:   true,
	}
	if prefs != nil {
		filter.Timezone = prefs.Timezone
	}
	return filter
}

// Ошибки проверки кандидата по фильтру.
var (
	ErrFilterSelf     = errors.New("candidate is the requester")
	ErrFilterLevel    = errors.New("level outside the allowed range")
	ErrFilterAgeGroup = errors.New("age group not allowed for this student")
	ErrFilterNotOpen  = errors.New("student is not open to matching")
	ErrFilterTimezone = errors.New("timezone differs")
)

// Check проверяет профиль и настройки по фильтру и называет первое нарушенное правило.
func (f CandidatePoolFilter) Check(p student.Profile, prefs *student.MatchingPreferences) error {
	switch {
	case p.ID == f.ExcludeStudentID:
		return ErrFilterSelf
	case p.Level < f.MinLevel || p.Level > f.MaxLevel:
		return ErrFilterLevel
	case f.AgeRestricted && p.AgeGroup != f.AgeGroup:
		return ErrFilterAgeGroup
	case f.OpenToMatching && (prefs == nil || !prefs.OpenToMatching):
		return ErrFilterNotOpen
	case f.Timezone != "" && (prefs == nil || prefs.Timezone != f.Timezone):
		return ErrFilterTimezone
	}
	return nil
}

// Matches - Check без причины. Используется in-memory реализациями и тестами.
func (f CandidatePoolFilter) Matches(p student.Profile, prefs *student.MatchingPreferences) bool {
	return f.Check(p, prefs) == nil
}

// CheckPair проверяет пару в обе стороны: партнёр проходит фильтр студента,
// а студент проходит возрастное правило партнёра.
func CheckPair(
	requester student.Profile, requesterPrefs *student.MatchingPreferences,
	peer student.Profile, peerPrefs *student.MatchingPreferences,
) error {
	if err := NewCandidatePoolFilter(requester, requesterPrefs).Check(peer, peerPrefs); err != nil {
		return err
	}
	if group, restricted := peer.AgeGroup.RequiredCandidateGroup(); restricted && requester.AgeGroup != group {
		return ErrFilterAgeGroup
	}
	return nil
}

// CandidatePoolRepository - выборка пула кандидатов.
type CandidatePoolRepository interface {
	// FindCandidatePool возвращает профили, прошедшие фильтр, в стабильном порядке.
	FindCandidatePool(ctx context.Context, filter CandidatePoolFilter) ([]*student.Profile, error)
}

// MatchRepository - записи о знакомствах.
type MatchRepository interface {
	// Create сохраняет новую запись.
	// Возвращает shared.ErrMatchExists, если у пары уже есть активная запись.
	Create(ctx context.Context, match *StudyBuddyMatch) error

	// GetByID возвращает запись по ID.
	// Возвращает shared.ErrMatchNotFound, если запись не найдена.
	GetByID(ctx context.Context, id string) (*StudyBuddyMatch, error)

	// Update сохраняет новый статус записи, только если она всё ещё suggested.
	// Возвращает shared.ErrInvalidMatchTransition, если на запись уже ответили,
	// и shared.ErrMatchNotFound, если её нет.
	Update(ctx context.Context, match *StudyBuddyMatch) error

	// ListActiveByStudent возвращает записи suggested/connected с участием студента
	// с любой стороны пары.
	ListActiveByStudent(ctx context.Context, studentID string) ([]*StudyBuddyMatch, error)
}
