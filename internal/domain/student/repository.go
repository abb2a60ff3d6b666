package student

import (
	"context"
)

// ══════════════════════════════════════════════════════════════════════════════
// REPOSITORY INTERFACES
// Эти интерфейсы определяют контракт для работы с хранилищем данных.
// Реализации находятся в infrastructure/persistence.
// ══════════════════════════════════════════════════════════════════════════════

// ProfileRepository - чтение профилей студентов.
type ProfileRepository interface {
	// GetByID возвращает профиль по ID.
	// Возвращает shared.ErrStudentNotFound, если профиль не найден.
	GetByID(ctx context.Context, id string) (*Profile, error)

	// GetByIDs возвращает профили по списку ID в порядке ids.
	// Отсутствующие ID пропускаются без ошибки.
	GetByIDs(ctx context.Context, ids []string) ([]*Profile, error)
}

// PreferencesRepository - настройки подбора.
type PreferencesRepository interface {
	// GetByStudentID возвращает настройки студента.
	// Возвращает shared.ErrPreferencesNotFound, если студент их не заполнял.
	GetByStudentID(ctx context.Context, studentID string) (*MatchingPreferences, error)

	// Upsert создаёт или обновляет настройки.
	// Возвращает shared.ErrStudentNotFound, если профиля нет.
	Upsert(ctx context.Context, prefs *MatchingPreferences) error
}

// ActivityRepository - история просмотров, нужна только для расчёта темпа.
type ActivityRepository interface {
	// CountCompletedVideos возвращает количество завершённых видео студента.
	CountCompletedVideos(ctx context.Context, studentID string) (int, error)
}
