package student

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/alem-hub/study-buddy/internal/domain/shared"
	"github.com/alem-hub/study-buddy/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// TIME SLOT
// ══════════════════════════════════════════════════════════════════════════════

// TimeSlot - регулярный интервал для учёбы: день недели и время "HH:MM".
type TimeSlot struct {
	Day   string `json:"day"`
	Start string `json:"start"`
	End   string `json:"end"`
}

// Bounds возвращает день недели и границы слота в минутах от полуночи.
// ok=false для слотов с нераспознанным днём, временем или пустым интервалом.
func (s TimeSlot) Bounds() (day time.Weekday, start, end int, ok bool) {
	day, ok = timeutil.ParseWeekday(s.Day)
	if !ok {
		return 0, 0, 0, false
	}
	start, err := timeutil.ParseClock(s.Start)
	if err != nil {
		return 0, 0, 0, false
	}
	end, err = timeutil.ParseClock(s.End)
	if err != nil || end <= start {
		return 0, 0, 0, false
	}
	return day, start, end, true
}

// Validate проверяет слот при сохранении настроек.
func (s TimeSlot) Validate() error {
	if _, ok := timeutil.ParseWeekday(s.Day); !ok {
		return fmt.Errorf("unknown day %q", s.Day)
	}
	start, err := timeutil.ParseClock(s.Start)
	if err != nil {
		return err
	}
	end, err := timeutil.ParseClock(s.End)
	if err != nil {
		return err
	}
	if end <= start {
		return fmt.Errorf("slot %s %s-%s ends before it starts", s.Day, s.Start, s.End)
	}
	return nil
}

// ScheduleOverlapMinutes суммирует пересечения по всем парам слотов одного дня недели.
// Нераспознанные слоты вклада не дают.
func ScheduleOverlapMinutes(a, b []TimeSlot) int {
	total := 0
	for _, sa := range a {
		dayA, startA, endA, ok := sa.Bounds()
		if !ok {
			continue
		}
		for _, sb := range b {
			dayB, startB, endB, ok := sb.Bounds()
			if !ok || dayA != dayB {
				continue
			}
			total += timeutil.OverlapMinutes(startA, endA, startB, endB)
		}
	}
	return total
}

// ══════════════════════════════════════════════════════════════════════════════
// MATCHING PREFERENCES
// ══════════════════════════════════════════════════════════════════════════════

// MatchingPreferences - настройки подбора партнёра (одна запись на студента).
type MatchingPreferences struct {
	// ─────────────────────────────────────────────────────────────────────────
	// Идентификация
	// ─────────────────────────────────────────────────────────────────────────

	StudentID string `json:"student_id"`

	// ─────────────────────────────────────────────────────────────────────────
	// Расписание
	// ─────────────────────────────────────────────────────────────────────────

	// WeeklyAvailabilityHours - сколько часов в неделю готов учиться.
	WeeklyAvailabilityHours float64 `json:"weekly_availability_hours"`

	// Timezone - IANA-имя часового пояса.
	Timezone string `json:"timezone"`

	// PreferredStudyTimes - удобные слоты для совместной учёбы.
	PreferredStudyTimes []TimeSlot `json:"preferred_study_times"`

	// ─────────────────────────────────────────────────────────────────────────
	// Цели и интересы
	// ─────────────────────────────────────────────────────────────────────────

	PrimaryGoal      string   `json:"primary_goal"`
	InterestedTopics []string `json:"interested_topics"`
	ProjectInterests []string `json:"project_interests"`

	// ─────────────────────────────────────────────────────────────────────────
	// Стиль
	// ─────────────────────────────────────────────────────────────────────────

	LearningStyle           LearningStyle           `json:"learning_style"`
	CommunicationPreference CommunicationPreference `json:"communication_preference"`

	// Competitiveness - порядковая шкала 1-5.
	Competitiveness int `json:"competitiveness"`

	// OpenToMatching - без этого флага студент не попадает в пул кандидатов.
	OpenToMatching bool `json:"open_to_matching"`

	PreferredGroupSize  int      `json:"preferred_group_size"`
	LanguagePreferences []string `json:"language_preferences"`

	UpdatedAt time.Time `json:"updated_at"`
}

// Validate проверяет настройки при сохранении.
// Ядро подбора не вызывает Validate: при скоринге пустые поля считаются пустыми.
func (p *MatchingPreferences) Validate() error {
	var errs []error

	if p.StudentID == "" {
		errs = append(errs, errors.New("student_id is required"))
	}
	if p.WeeklyAvailabilityHours < 0 || p.WeeklyAvailabilityHours > 168 {
		errs = append(errs, errors.New("weekly_availability_hours must be between 0 and 168"))
	}
	if p.Timezone != "" {
		if _, err := time.LoadLocation(p.Timezone); err != nil {
			errs = append(errs, fmt.Errorf("unknown timezone %q", p.Timezone))
		}
	}
	for i, slot := range p.PreferredStudyTimes {
		if err := slot.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("preferred_study_times[%d]: %w", i, err))
		}
	}
	if p.LearningStyle != "" && !p.LearningStyle.IsValid() {
		errs = append(errs, fmt.Errorf("unknown learning_style %q", p.LearningStyle))
	}
	if p.CommunicationPreference != "" && !p.CommunicationPreference.IsValid() {
		errs = append(errs, fmt.Errorf("unknown communication_preference %q", p.CommunicationPreference))
	}
	if p.Competitiveness != 0 && (p.Competitiveness < 1 || p.Competitiveness > 5) {
		errs = append(errs, errors.New("competitiveness must be between 1 and 5"))
	}
	if p.PreferredGroupSize < 0 {
		errs = append(errs, errors.New("preferred_group_size cannot be negative"))
	}

	if len(errs) > 0 {
		return shared.WrapError("student", "ValidatePreferences", shared.ErrValidation,
			"invalid matching preferences", errors.Join(errs...))
	}
	return nil
}

// Значения по умолчанию для незаполненных полей (совпадают с DEFAULT в схеме).
const (
	DefaultCompetitiveness    = 3
	DefaultPreferredGroupSize = 2
)

// Normalize приводит настройки к каноническому виду перед сохранением.
// Пропущенные competitiveness и preferred_group_size получают значения по умолчанию.
func (p *MatchingPreferences) Normalize() {
	if p.Competitiveness == 0 {
		p.Competitiveness = DefaultCompetitiveness
	}
	if p.PreferredGroupSize == 0 {
		p.PreferredGroupSize = DefaultPreferredGroupSize
	}
	p.Timezone = strings.TrimSpace(p.Timezone)
	p.LearningStyle = LearningStyle(strings.ToLower(strings.TrimSpace(string(p.LearningStyle))))
	p.CommunicationPreference = CommunicationPreference(strings.ToLower(strings.TrimSpace(string(p.CommunicationPreference))))
	for i := range p.PreferredStudyTimes {
		slot := &p.PreferredStudyTimes[i]
		slot.Day = strings.ToLower(strings.TrimSpace(slot.Day))
		// "9:00" -> "09:00"; нераспознанное значение оставляем для Validate
		if m, err := timeutil.ParseClock(slot.Start); err == nil {
			slot.Start = timeutil.FormatClock(m)
		}
		if m, err := timeutil.ParseClock(slot.End); err == nil {
			slot.End = timeutil.FormatClock(m)
		}
	}
}

// Topics возвращает interested_topics как регистронезависимое множество.
func (p *MatchingPreferences) Topics() shared.TagSet {
	if p == nil {
		return shared.TagSet{}
	}
	return shared.NewTagSet(p.InterestedTopics)
}

// Projects возвращает project_interests как регистронезависимое множество.
func (p *MatchingPreferences) Projects() shared.TagSet {
	if p == nil {
		return shared.TagSet{}
	}
	return shared.NewTagSet(p.ProjectInterests)
}

// StudyTimes безопасно возвращает слоты (nil-настройки дают пустой список).
func (p *MatchingPreferences) StudyTimes() []TimeSlot {
	if p == nil {
		return nil
	}
	return p.PreferredStudyTimes
}

// Communication безопасно возвращает канал общения.
func (p *MatchingPreferences) Communication() CommunicationPreference {
	if p == nil {
		return ""
	}
	return p.CommunicationPreference
}
