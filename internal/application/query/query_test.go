package query

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alem-hub/study-buddy/internal/domain/shared"
	"github.com/alem-hub/study-buddy/internal/domain/social"
	"github.com/alem-hub/study-buddy/internal/domain/student"
)

func goodPrefs() *student.MatchingPreferences {
	return &student.MatchingPreferences{
		InterestedTopics:        []string{"go", "sql", "docker"},
		ProjectInterests:        []string{"web", "cli"},
		PreferredStudyTimes:     []student.TimeSlot{{Day: "monday", Start: "18:00", End: "21:00"}},
		CommunicationPreference: student.CommunicationText,
		OpenToMatching:          true,
	}
}

func poorPrefs() *student.MatchingPreferences {
	return &student.MatchingPreferences{
		InterestedTopics:        []string{"go"},
		CommunicationPreference: student.CommunicationVoice,
		OpenToMatching:          true,
	}
}

// seededStore: requester "me" (level 5, pace 3) и пул из разных кандидатов.
func seededStore() *store {
	s := newStore()
	s.add(student.Profile{ID: "me", Level: 5}, goodPrefs(), 12)

	s.add(student.Profile{ID: "tie1", Level: 6}, goodPrefs(), 12)
	s.add(student.Profile{ID: "strong", Level: 5}, goodPrefs(), 12)
	s.add(student.Profile{ID: "weak", Level: 8}, poorPrefs(), 40)
	s.add(student.Profile{ID: "connected", Level: 5}, goodPrefs(), 12)

	closed := goodPrefs()
	closed.OpenToMatching = false
	s.add(student.Profile{ID: "closed", Level: 5}, closed, 12)

	s.add(student.Profile{ID: "race", Level: 5}, goodPrefs(), 12)
	s.missingPrefs["race"] = true

	s.add(student.Profile{ID: "tie2", Level: 4}, goodPrefs(), 12)
	s.add(student.Profile{ID: "faraway", Level: 9}, goodPrefs(), 12)

	s.matches = []*social.StudyBuddyMatch{
		{ID: "m1", StudentID: "connected", PeerID: "me", Status: social.MatchStatusConnected},
		{ID: "m2", StudentID: "me", PeerID: "tie2", Status: social.MatchStatusDeclined},
	}
	return s
}

func newFindHandler(s *store, mutate func(*FindCandidatesDeps)) *FindCandidatesHandler {
	deps := FindCandidatesDeps{
		Profiles:    s,
		Preferences: s,
		Activity:    s,
		Pool:        s,
		Matches:     matchStore{s},
		Settings:    DefaultSettings(),
		Clock:       fixedClock,
	}
	if mutate != nil {
		mutate(&deps)
	}
	return NewFindCandidatesHandler(deps)
}

func candidateIDs(list []CandidateDTO) []string {
	ids := make([]string, len(list))
	for i, c := range list {
		ids[i] = c.StudentID
	}
	return ids
}

func TestFindCandidates_FloorExclusionAndStableOrder(t *testing.T) {
	s := seededStore()
	h := newFindHandler(s, nil)

	res, err := h.Handle(context.Background(), FindCandidatesQuery{StudentID: "me"})
	require.NoError(t, err)

	assert.Equal(t, []string{"strong", "tie1", "tie2"}, candidateIDs(res.Candidates))
	assert.Equal(t, 90, res.Candidates[0].MatchScore.TotalScore)
	assert.Equal(t, 82, res.Candidates[1].MatchScore.TotalScore)
	assert.Equal(t, 82, res.Candidates[2].MatchScore.TotalScore)
	assert.Equal(t, []string{"docker", "go", "sql"}, res.Candidates[0].SharedTopics)
	assert.Equal(t, 3, res.Candidates[0].VideosPerWeek)

	assert.Equal(t, 3, res.TotalFound)
	assert.Equal(t, 6, res.PoolSize)
	assert.Equal(t, 1, res.Excluded)
	assert.Equal(t, 1, res.Skipped)
	assert.Equal(t, 1, res.BelowThreshold)
	assert.Empty(t, res.Message)

	for _, c := range res.Candidates {
		assert.GreaterOrEqual(t, c.MatchScore.TotalScore, 60)
		assert.NotEqual(t, "connected", c.StudentID)
		assert.NotEqual(t, "closed", c.StudentID)
	}

	assert.Equal(t, social.CandidatePoolFilter{
		ExcludeStudentID: "me",
		MinLevel:         2,
		MaxLevel:         8,
		OpenToMatching:   true,
	}, s.lastFilter)
}

func TestFindCandidates_LimitAppliesAfterSorting(t *testing.T) {
	h := newFindHandler(seededStore(), nil)

	res, err := h.Handle(context.Background(), FindCandidatesQuery{StudentID: "me", Limit: 2})
	require.NoError(t, err)

	assert.Equal(t, []string{"strong", "tie1"}, candidateIDs(res.Candidates))
	assert.Equal(t, 3, res.TotalFound)
}

func TestFindCandidates_LimitIsCapped(t *testing.T) {
	q := FindCandidatesQuery{StudentID: "me", Limit: 500}
	require.NoError(t, q.Validate(DefaultSettings()))
	assert.Equal(t, 50, q.Limit)

	q = FindCandidatesQuery{StudentID: "me"}
	require.NoError(t, q.Validate(DefaultSettings()))
	assert.Equal(t, 10, q.Limit)

	assert.ErrorIs(t, (&FindCandidatesQuery{}).Validate(DefaultSettings()), shared.ErrInvalidStudentID)
}

func TestFindCandidates_AgeSafetyAndTimezone(t *testing.T) {
	s := newStore()
	mine := goodPrefs()
	mine.Timezone = "Asia/Almaty"
	s.add(student.Profile{ID: "me", Level: 3, AgeGroup: student.AgeGroupUnder18}, mine, 4)

	for _, c := range []struct {
		id  string
		age student.AgeGroup
		tz  string
	}{
		{"teen", student.AgeGroupUnder18, "Asia/Almaty"},
		{"adult", student.AgeGroupAdult, "Asia/Almaty"},
		{"young", student.AgeGroup18To21, "Asia/Almaty"},
		{"teen-elsewhere", student.AgeGroupUnder18, "Europe/Berlin"},
	} {
		p := goodPrefs()
		p.Timezone = c.tz
		s.add(student.Profile{ID: c.id, Level: 3, AgeGroup: c.age}, p, 4)
	}

	res, err := newFindHandler(s, nil).Handle(context.Background(), FindCandidatesQuery{StudentID: "me"})
	require.NoError(t, err)

	assert.Equal(t, []string{"teen"}, candidateIDs(res.Candidates))
	for _, c := range res.Candidates {
		assert.Equal(t, student.AgeGroupUnder18, c.AgeGroup)
	}
	assert.Equal(t, student.AgeGroupUnder18, s.lastFilter.AgeGroup)
	assert.Equal(t, "Asia/Almaty", s.lastFilter.Timezone)
}

func TestFindCandidates_FatalFailures(t *testing.T) {
	ctx := context.Background()

	t.Run("unknown requester", func(t *testing.T) {
		_, err := newFindHandler(seededStore(), nil).Handle(ctx, FindCandidatesQuery{StudentID: "ghost"})
		assert.ErrorIs(t, err, shared.ErrStudentNotFound)
	})

	t.Run("requester without preferences", func(t *testing.T) {
		s := seededStore()
		s.missingPrefs["me"] = true
		_, err := newFindHandler(s, nil).Handle(ctx, FindCandidatesQuery{StudentID: "me"})
		assert.ErrorIs(t, err, shared.ErrPreferencesNotFound)
	})

	t.Run("pool query failure", func(t *testing.T) {
		s := seededStore()
		s.poolErr = errors.New("connection refused")
		res, err := newFindHandler(s, nil).Handle(ctx, FindCandidatesQuery{StudentID: "me"})
		assert.Nil(t, res)
		assert.ErrorIs(t, err, shared.ErrCandidatePoolQuery)
		assert.True(t, shared.IsQueryFailure(err))
		assert.Contains(t, err.Error(), "connection refused")
	})

	t.Run("exclusion query failure", func(t *testing.T) {
		s := seededStore()
		s.matchesErr = errors.New("timeout")
		_, err := newFindHandler(s, nil).Handle(ctx, FindCandidatesQuery{StudentID: "me"})
		assert.ErrorIs(t, err, shared.ErrExclusionQuery)
		assert.True(t, shared.IsQueryFailure(err))
	})

	t.Run("profile store failure is a query failure", func(t *testing.T) {
		s := seededStore()
		s.prefsErr["me"] = errors.New("disk on fire")
		_, err := newFindHandler(s, nil).Handle(ctx, FindCandidatesQuery{StudentID: "me"})
		assert.True(t, shared.IsQueryFailure(err))
		assert.False(t, shared.IsNotFound(err))
	})
}

func TestFindCandidates_LocalDegradation(t *testing.T) {
	s := seededStore()
	s.countErr["me"] = errors.New("activity store down")
	s.prefsErr["tie1"] = errors.New("row decode failed")

	res, err := newFindHandler(s, nil).Handle(context.Background(), FindCandidatesQuery{StudentID: "me"})
	require.NoError(t, err)

	// Темп запрашивающего 0: pace-слагаемое strong = 15 - 2*3 = 9.
	assert.Equal(t, []string{"strong", "tie2"}, candidateIDs(res.Candidates))
	assert.Equal(t, 9, res.Candidates[0].MatchScore.Breakdown.LearningPaceMatch)
	assert.Equal(t, 2, res.Skipped)
}

func TestFindCandidates_PreferencesOverride(t *testing.T) {
	s := seededStore()
	s.missingPrefs["me"] = true

	override := goodPrefs()
	override.InterestedTopics = nil

	res, err := newFindHandler(s, nil).Handle(context.Background(), FindCandidatesQuery{
		StudentID:   "me",
		Preferences: override,
	})
	require.NoError(t, err)

	// Без общих тем: strong = 25+0+12+15+8+10 = 70, tie1/tie2 = 62.
	assert.Equal(t, []string{"strong", "tie1", "tie2"}, candidateIDs(res.Candidates))
	assert.Equal(t, 70, res.Candidates[0].MatchScore.TotalScore)
}

func TestFindCandidates_EmptyResultIsNotAnError(t *testing.T) {
	s := newStore()
	s.add(student.Profile{ID: "me", Level: 5}, goodPrefs(), 0)
	s.add(student.Profile{ID: "weak", Level: 8}, poorPrefs(), 40)

	res, err := newFindHandler(s, nil).Handle(context.Background(), FindCandidatesQuery{StudentID: "me"})
	require.NoError(t, err)

	assert.Empty(t, res.Candidates)
	assert.NotNil(t, res.Candidates)
	assert.Equal(t, NoCandidatesMessage, res.Message)
}

func TestFindCandidates_ConcurrentEnrichmentKeepsPoolOrder(t *testing.T) {
	s := newStore()
	s.add(student.Profile{ID: "me", Level: 5}, goodPrefs(), 12)
	var want []string
	for i := range 40 {
		id := fmt.Sprintf("peer-%02d", i)
		want = append(want, id)
		s.add(student.Profile{ID: id, Level: 5}, goodPrefs(), 12)
	}

	h := newFindHandler(s, func(d *FindCandidatesDeps) {
		d.Settings.EnrichConcurrency = 7
		d.Settings.MaxLimit = 100
	})
	res, err := h.Handle(context.Background(), FindCandidatesQuery{StudentID: "me", Limit: 100})
	require.NoError(t, err)

	assert.Equal(t, want, candidateIDs(res.Candidates))
}

func TestFindCandidates_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s := seededStore()
	h := newFindHandler(s, nil)
	_, err := h.Handle(ctx, FindCandidatesQuery{StudentID: "me"})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestFindCandidates_AIAnnotationDoesNotReorder(t *testing.T) {
	degraded := &fakeAnalyzer{analysis: social.UnavailableAIAnalysis()}
	h := newFindHandler(seededStore(), func(d *FindCandidatesDeps) {
		d.Analyzer = degraded
		d.AnalysisCache = newFakeCache()
	})

	res, err := h.Handle(context.Background(), FindCandidatesQuery{StudentID: "me", IncludeAIAnalysis: true})
	require.NoError(t, err)

	assert.Equal(t, []string{"strong", "tie1", "tie2"}, candidateIDs(res.Candidates))
	for _, c := range res.Candidates {
		require.NotNil(t, c.AIAnalysis)
		assert.True(t, c.AIAnalysis.IsDegraded())
	}
	assert.Equal(t, 3, degraded.Calls())
}

func TestFindCandidates_AIAnnotationUsesCacheAndToggle(t *testing.T) {
	analyzer := &fakeAnalyzer{analysis: social.AIAnalysis{Score: 77, Reasons: []string{"same level"}, Concerns: []string{}}}
	cache := newFakeCache()
	cache.items[shared.PairKey("me", "strong")] = social.AIAnalysis{Score: 95, Reasons: []string{"cached"}}

	h := newFindHandler(seededStore(), func(d *FindCandidatesDeps) {
		d.Analyzer = analyzer
		d.AnalysisCache = cache
	})
	res, err := h.Handle(context.Background(), FindCandidatesQuery{StudentID: "me", IncludeAIAnalysis: true})
	require.NoError(t, err)

	assert.Equal(t, 95, res.Candidates[0].AIAnalysis.Score)
	assert.Equal(t, 77, res.Candidates[1].AIAnalysis.Score)
	assert.Equal(t, 2, analyzer.Calls())
	assert.Equal(t, 2, cache.sets)

	off := newFindHandler(seededStore(), func(d *FindCandidatesDeps) {
		d.Analyzer = analyzer
		d.AIToggle = toggle(false)
	})
	res, err = off.Handle(context.Background(), FindCandidatesQuery{StudentID: "me", IncludeAIAnalysis: true})
	require.NoError(t, err)
	for _, c := range res.Candidates {
		assert.Nil(t, c.AIAnalysis)
	}
	assert.Equal(t, 2, analyzer.Calls())
}

func TestRankMatches_NoFloorDedupeAndSelf(t *testing.T) {
	s := seededStore()
	h := NewRankMatchesHandler(s, s, s, DefaultSettings(), fixedClock, nil)

	weak, _ := s.GetByID(context.Background(), "weak")
	res, err := h.Handle(context.Background(), RankMatchesQuery{
		StudentID:    "me",
		Candidates:   []student.Profile{*weak},
		CandidateIDs: []string{"tie1", "me", "weak", "strong", "ghost", "race", "faraway"},
	})
	require.NoError(t, err)

	// faraway вне диапазона уровней, но rankMatches пул не фильтрует.
	assert.Equal(t, []string{"strong", "tie1", "faraway", "weak"}, candidateIDs(res.Candidates))
	assert.Equal(t, 14, res.Candidates[3].MatchScore.TotalScore)
	assert.Equal(t, 1, res.Skipped)
}

func TestRankMatches_RequiresRequester(t *testing.T) {
	s := seededStore()
	h := NewRankMatchesHandler(s, s, s, DefaultSettings(), fixedClock, nil)

	_, err := h.Handle(context.Background(), RankMatchesQuery{StudentID: "ghost", CandidateIDs: []string{"tie1"}})
	assert.ErrorIs(t, err, shared.ErrStudentNotFound)

	_, err = h.Handle(context.Background(), RankMatchesQuery{})
	assert.ErrorIs(t, err, shared.ErrInvalidStudentID)
}

func TestCalculateCompatibility(t *testing.T) {
	s := seededStore()
	h := NewCalculateCompatibilityHandler(s, s, s, fixedClock, nil)

	res, err := h.Handle(context.Background(), PairQuery{StudentID: "me", CandidateID: "strong"})
	require.NoError(t, err)
	assert.Equal(t, 90, res.Score.TotalScore)
	assert.Equal(t, social.ConfidenceHigh, res.Score.ConfidenceLevel)
	assert.True(t, res.Eligible)
	assert.Empty(t, res.IneligibleReason)

	reverse, err := h.Handle(context.Background(), PairQuery{StudentID: "strong", CandidateID: "me"})
	require.NoError(t, err)
	assert.Equal(t, res.Score, reverse.Score)

	_, err = h.Handle(context.Background(), PairQuery{StudentID: "me", CandidateID: "race"})
	assert.ErrorIs(t, err, shared.ErrPreferencesNotFound)

	_, err = h.Handle(context.Background(), PairQuery{StudentID: "me", CandidateID: "me"})
	assert.ErrorIs(t, err, shared.ErrSelfMatch)
}

func TestCalculateCompatibility_FlagsIneligiblePairs(t *testing.T) {
	s := seededStore()
	s.add(student.Profile{ID: "minor", Level: 5, AgeGroup: student.AgeGroupUnder18}, goodPrefs(), 12)
	h := NewCalculateCompatibilityHandler(s, s, s, fixedClock, nil)

	for _, c := range []struct {
		name      string
		studentID string
		peerID    string
		reason    error
	}{
		{"adult asks for a minor", "me", "minor", social.ErrFilterAgeGroup},
		{"minor asks for an adult", "minor", "me", social.ErrFilterAgeGroup},
		{"peer opted out", "me", "closed", social.ErrFilterNotOpen},
		{"level gap", "me", "faraway", social.ErrFilterLevel},
	} {
		t.Run(c.name, func(t *testing.T) {
			res, err := h.Handle(context.Background(), PairQuery{StudentID: c.studentID, CandidateID: c.peerID})
			require.NoError(t, err)
			assert.False(t, res.Eligible)
			assert.Equal(t, c.reason.Error(), res.IneligibleReason)
		})
	}
}

func newAnalyzeHandler(s *store, analyzer social.CompatibilityAnalyzer, cache social.AnalysisCache, mutate func(*AnalyzeCompatibilityDeps)) *AnalyzeCompatibilityHandler {
	deps := AnalyzeCompatibilityDeps{
		Profiles:    s,
		Preferences: s,
		Activity:    s,
		Analyzer:    analyzer,
		Cache:       cache,
		Clock:       fixedClock,
	}
	if mutate != nil {
		mutate(&deps)
	}
	return NewAnalyzeCompatibilityHandler(deps)
}

func TestAnalyzeCompatibility_CachesHealthyAnalysesOnly(t *testing.T) {
	s := seededStore()
	healthy := &fakeAnalyzer{analysis: social.AIAnalysis{Score: 81, Reasons: []string{"shared goals"}, Concerns: []string{}}}
	cache := newFakeCache()
	h := newAnalyzeHandler(s, healthy, cache, nil)

	for range 2 {
		res, err := h.Handle(context.Background(), PairQuery{StudentID: "me", CandidateID: "strong"})
		require.NoError(t, err)
		assert.Equal(t, 81, res.Analysis.Score)
		assert.False(t, res.Degraded)
	}
	assert.Equal(t, 1, healthy.Calls())

	failing := &fakeAnalyzer{analysis: social.UnavailableAIAnalysis()}
	h = newAnalyzeHandler(s, failing, cache, nil)
	for range 2 {
		res, err := h.Handle(context.Background(), PairQuery{StudentID: "me", CandidateID: "tie1"})
		require.NoError(t, err)
		assert.True(t, res.Degraded)
		assert.Equal(t, []string{social.UnavailableConcern}, res.Analysis.Concerns)
	}
	assert.Equal(t, 2, failing.Calls())
	assert.Equal(t, 1, cache.sets)
}

func TestAnalyzeCompatibility_RateLimitAndToggle(t *testing.T) {
	s := seededStore()
	analyzer := &fakeAnalyzer{analysis: social.AIAnalysis{Score: 50}}

	limited := newAnalyzeHandler(s, analyzer, nil, func(d *AnalyzeCompatibilityDeps) {
		d.Limiter = fakeLimiter{allow: false}
	})
	_, err := limited.Handle(context.Background(), PairQuery{StudentID: "me", CandidateID: "strong"})
	assert.ErrorIs(t, err, shared.ErrAIRateLimited)

	off := newAnalyzeHandler(s, analyzer, nil, func(d *AnalyzeCompatibilityDeps) {
		d.Toggle = toggle(false)
	})
	res, err := off.Handle(context.Background(), PairQuery{StudentID: "me", CandidateID: "strong"})
	require.NoError(t, err)
	assert.True(t, res.Degraded)
	assert.Zero(t, analyzer.Calls())

	noAnalyzer := newAnalyzeHandler(s, nil, nil, nil)
	res, err = noAnalyzer.Handle(context.Background(), PairQuery{StudentID: "me", CandidateID: "strong"})
	require.NoError(t, err)
	assert.Equal(t, social.UnavailableAIAnalysis(), res.Analysis)

	_, err = noAnalyzer.Handle(context.Background(), PairQuery{StudentID: "me", CandidateID: "ghost"})
	assert.ErrorIs(t, err, shared.ErrStudentNotFound)
}

func TestListMatches(t *testing.T) {
	s := seededStore()
	s.matches = append(s.matches, &social.StudyBuddyMatch{
		ID: "m3", StudentID: "strong", PeerID: "me", Status: social.MatchStatusSuggested,
	})

	res, err := NewListMatchesHandler(matchStore{s}).Handle(context.Background(), "me")
	require.NoError(t, err)

	require.Len(t, res.Matches, 2)
	assert.Equal(t, "connected", res.Matches[0].PartnerID)
	assert.False(t, res.Matches[0].AwaitingMyResponse)
	assert.Equal(t, "strong", res.Matches[1].PartnerID)
	assert.True(t, res.Matches[1].AwaitingMyResponse)
}
