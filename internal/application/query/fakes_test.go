package query

import (
	"context"
	"sync"
	"time"

	"github.com/alem-hub/study-buddy/internal/domain/shared"
	"github.com/alem-hub/study-buddy/internal/domain/social"
	"github.com/alem-hub/study-buddy/internal/domain/student"
)

var testNow = time.Date(2025, 3, 31, 12, 0, 0, 0, time.UTC)

func fixedClock() time.Time { return testNow }

// store - in-memory хранилище, реализующее все порты чтения.
type store struct {
	mu sync.Mutex

	order    []string
	profiles map[string]*student.Profile
	prefs    map[string]*student.MatchingPreferences
	counts   map[string]int

	// missingPrefs - настройки видны пулу, но не читаются (гонка с удалением).
	missingPrefs map[string]bool
	countErr     map[string]error
	prefsErr     map[string]error

	poolErr    error
	matchesErr error
	matches    []*social.StudyBuddyMatch

	lastFilter social.CandidatePoolFilter
}

func newStore() *store {
	return &store{
		profiles:     map[string]*student.Profile{},
		prefs:        map[string]*student.MatchingPreferences{},
		counts:       map[string]int{},
		missingPrefs: map[string]bool{},
		countErr:     map[string]error{},
		prefsErr:     map[string]error{},
	}
}

func (s *store) add(p student.Profile, prefs *student.MatchingPreferences, completed int) {
	if p.CreatedAt.IsZero() {
		p.CreatedAt = testNow.Add(-4 * 7 * 24 * time.Hour)
	}
	if p.AgeGroup == "" {
		p.AgeGroup = student.AgeGroupAdult
	}
	s.order = append(s.order, p.ID)
	s.profiles[p.ID] = &p
	if prefs != nil {
		prefs.StudentID = p.ID
		s.prefs[p.ID] = prefs
	}
	s.counts[p.ID] = completed
}

func (s *store) GetByID(_ context.Context, id string) (*student.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.profiles[id]
	if !ok {
		return nil, shared.ErrStudentNotFound
	}
	cp := *p
	return &cp, nil
}

func (s *store) GetByIDs(_ context.Context, ids []string) ([]*student.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*student.Profile, 0, len(ids))
	for _, id := range ids {
		if p, ok := s.profiles[id]; ok {
			cp := *p
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *store) GetByStudentID(_ context.Context, id string) (*student.MatchingPreferences, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.prefsErr[id]; err != nil {
		return nil, err
	}
	p, ok := s.prefs[id]
	if !ok || s.missingPrefs[id] {
		return nil, shared.ErrPreferencesNotFound
	}
	return p, nil
}

func (s *store) Upsert(_ context.Context, prefs *student.MatchingPreferences) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.profiles[prefs.StudentID]; !ok {
		return shared.ErrStudentNotFound
	}
	s.prefs[prefs.StudentID] = prefs
	return nil
}

func (s *store) CountCompletedVideos(_ context.Context, id string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.countErr[id]; err != nil {
		return 0, err
	}
	return s.counts[id], nil
}

func (s *store) FindCandidatePool(_ context.Context, filter social.CandidatePoolFilter) ([]*student.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastFilter = filter
	if s.poolErr != nil {
		return nil, s.poolErr
	}
	var out []*student.Profile
	for _, id := range s.order {
		p := s.profiles[id]
		if filter.Matches(*p, s.prefs[id]) {
			cp := *p
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *store) Create(_ context.Context, m *social.StudyBuddyMatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.matches {
		if existing.IsActive() && existing.PairKey() == m.PairKey() {
			return shared.ErrMatchExists
		}
	}
	s.matches = append(s.matches, m)
	return nil
}

func (s *store) GetMatch(id string) *social.StudyBuddyMatch {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range s.matches {
		if m.ID == id {
			return m
		}
	}
	return nil
}

func (s *store) Update(_ context.Context, m *social.StudyBuddyMatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, existing := range s.matches {
		if existing.ID != m.ID {
			continue
		}
		if existing.Status != social.MatchStatusSuggested {
			return shared.ErrInvalidMatchTransition
		}
		cp := *m
		s.matches[i] = &cp
		return nil
	}
	return shared.ErrMatchNotFound
}

func (s *store) ListActiveByStudent(_ context.Context, id string) ([]*social.StudyBuddyMatch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.matchesErr != nil {
		return nil, s.matchesErr
	}
	var out []*social.StudyBuddyMatch
	for _, m := range s.matches {
		if m.IsActive() && m.InvolvesStudent(id) {
			out = append(out, m)
		}
	}
	return out, nil
}

// matchStore оборачивает store, чтобы GetByID не конфликтовал с ProfileRepository.
type matchStore struct{ *store }

func (m matchStore) GetByID(_ context.Context, id string) (*social.StudyBuddyMatch, error) {
	if match := m.GetMatch(id); match != nil {
		return match, nil
	}
	return nil, shared.ErrMatchNotFound
}

// fakeAnalyzer возвращает заданный ответ и считает вызовы.
type fakeAnalyzer struct {
	mu       sync.Mutex
	calls    int
	analysis social.AIAnalysis
}

func (f *fakeAnalyzer) Analyze(_ context.Context, _, _ student.PacedProfile, _, _ *student.MatchingPreferences) social.AIAnalysis {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.analysis
}

func (f *fakeAnalyzer) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeCache struct {
	mu    sync.Mutex
	items map[string]social.AIAnalysis
	sets  int
}

func newFakeCache() *fakeCache {
	return &fakeCache{items: map[string]social.AIAnalysis{}}
}

func (c *fakeCache) Get(_ context.Context, a, b string) (*social.AIAnalysis, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if v, ok := c.items[shared.PairKey(a, b)]; ok {
		return &v, nil
	}
	return nil, nil
}

func (c *fakeCache) Set(_ context.Context, a, b string, analysis social.AIAnalysis) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items[shared.PairKey(a, b)] = analysis
	c.sets++
	return nil
}

type toggle bool

func (t toggle) EnabledFor(string) bool { return bool(t) }

type fakeLimiter struct{ allow bool }

func (l fakeLimiter) Allow(context.Context, string) (bool, error) { return l.allow, nil }
