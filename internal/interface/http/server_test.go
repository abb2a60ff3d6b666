package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alem-hub/study-buddy/internal/application/command"
	"github.com/alem-hub/study-buddy/internal/application/query"
	"github.com/alem-hub/study-buddy/internal/domain/shared"
	"github.com/alem-hub/study-buddy/internal/domain/social"
	"github.com/alem-hub/study-buddy/internal/domain/student"
	"github.com/alem-hub/study-buddy/internal/interface/http/handlers"
	"github.com/alem-hub/study-buddy/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// STUBS
// ══════════════════════════════════════════════════════════════════════════════

type stubFinder struct {
	got    query.FindCandidatesQuery
	result *query.FindCandidatesResult
	err    error
}

func (s *stubFinder) Handle(_ context.Context, q query.FindCandidatesQuery) (*query.FindCandidatesResult, error) {
	s.got = q
	return s.result, s.err
}

type stubRanker struct {
	got query.RankMatchesQuery
	err error
}

func (s *stubRanker) Handle(_ context.Context, q query.RankMatchesQuery) (*query.RankMatchesResult, error) {
	s.got = q
	if s.err != nil {
		return nil, s.err
	}
	return &query.RankMatchesResult{StudentID: q.StudentID, Candidates: []query.CandidateDTO{}}, nil
}

type stubCalculator struct {
	got query.PairQuery
	err error
}

func (s *stubCalculator) Handle(_ context.Context, q query.PairQuery) (*query.CompatibilityResult, error) {
	s.got = q
	if s.err != nil {
		return nil, s.err
	}
	return &query.CompatibilityResult{StudentID: q.StudentID, CandidateID: q.CandidateID, Score: social.MatchScore{TotalScore: 74}}, nil
}

type stubAnalyzer struct {
	err error
}

func (s *stubAnalyzer) Handle(_ context.Context, q query.PairQuery) (*query.AnalysisResult, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &query.AnalysisResult{StudentID: q.StudentID, CandidateID: q.CandidateID, Analysis: social.UnavailableAIAnalysis(), Degraded: true}, nil
}

type stubSuggester struct {
	got command.SuggestMatchCommand
	err error
}

func (s *stubSuggester) Handle(_ context.Context, cmd command.SuggestMatchCommand) (*social.StudyBuddyMatch, error) {
	s.got = cmd
	if s.err != nil {
		return nil, s.err
	}
	return &social.StudyBuddyMatch{ID: "m-1", StudentID: cmd.StudentID, PeerID: cmd.PeerID, Status: social.MatchStatusSuggested}, nil
}

type stubResponder struct {
	got command.RespondToMatchCommand
	err error
}

func (s *stubResponder) Handle(_ context.Context, cmd command.RespondToMatchCommand) (*social.StudyBuddyMatch, error) {
	s.got = cmd
	if s.err != nil {
		return nil, s.err
	}
	status := social.MatchStatusDeclined
	if cmd.Accept {
		status = social.MatchStatusConnected
	}
	return &social.StudyBuddyMatch{ID: cmd.MatchID, PeerID: cmd.StudentID, Status: status}, nil
}

type stubPreferences struct {
	got command.UpdatePreferencesCommand
}

func (s *stubPreferences) Handle(_ context.Context, cmd command.UpdatePreferencesCommand) (*student.MatchingPreferences, error) {
	s.got = cmd
	prefs := cmd.Preferences
	prefs.StudentID = cmd.StudentID
	if err := prefs.Validate(); err != nil {
		return nil, err
	}
	return &prefs, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// HELPERS
// ══════════════════════════════════════════════════════════════════════════════

type envelope struct {
	Success   bool            `json:"success"`
	Data      json.RawMessage `json:"data"`
	Error     *APIError       `json:"error"`
	RequestID string          `json:"request_id"`
}

func newTestServer(deps Dependencies) *Server {
	deps.Logger = logger.Nop()
	return NewServer(DefaultConfig(), deps)
}

func do(t *testing.T, s *Server, method, path, body string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()

	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	return rec, env
}

// ══════════════════════════════════════════════════════════════════════════════
// HEALTH
// ══════════════════════════════════════════════════════════════════════════════

func TestHealth_NonCriticalFailureKeepsReady(t *testing.T) {
	checker := handlers.NewCompositeHealthChecker("test")
	checker.AddCheck("postgres", func(context.Context) error { return nil }, true)
	checker.AddCheck("redis", func(context.Context) error { return errors.New("connection refused") }, false)
	s := newTestServer(Dependencies{HealthChecker: checker})

	rec, env := do(t, s, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var status handlers.HealthStatus
	require.NoError(t, json.Unmarshal(env.Data, &status))
	assert.False(t, status.Healthy)
	assert.True(t, status.Ready)
	assert.Equal(t, "Some checks failed: redis", status.Message)
	assert.Equal(t, "connection refused", status.Checks["redis"].Message)

	rec, _ = do(t, s, http.MethodGet, "/ready", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHealth_CriticalFailureNotReady(t *testing.T) {
	checker := handlers.NewCompositeHealthChecker("test")
	checker.AddCheck("postgres", func(context.Context) error { return errors.New("down") }, true)
	s := newTestServer(Dependencies{HealthChecker: checker})

	rec, env := do(t, s, http.MethodGet, "/ready", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.False(t, env.Success)

	rec, _ = do(t, s, http.MethodGet, "/live", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

// ══════════════════════════════════════════════════════════════════════════════
// MATCHING
// ══════════════════════════════════════════════════════════════════════════════

func TestFindCandidates_PassesRequest(t *testing.T) {
	finder := &stubFinder{result: &query.FindCandidatesResult{StudentID: "alice", Candidates: []query.CandidateDTO{}, MinScore: 60}}
	s := newTestServer(Dependencies{FindCandidates: finder})

	rec, env := do(t, s, http.MethodPost, "/api/v1/students/alice/candidates",
		`{"limit": 5, "include_ai": true, "preferences": {"primary_goal": "get a job"}}`)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, env.Success)
	assert.NotEmpty(t, env.RequestID)
	assert.Equal(t, env.RequestID, rec.Header().Get("X-Request-ID"))

	assert.Equal(t, "alice", finder.got.StudentID)
	assert.Equal(t, 5, finder.got.Limit)
	assert.True(t, finder.got.IncludeAIAnalysis)
	require.NotNil(t, finder.got.Preferences)
	assert.Equal(t, "get a job", finder.got.Preferences.PrimaryGoal)

	var result query.FindCandidatesResult
	require.NoError(t, json.Unmarshal(env.Data, &result))
	assert.Equal(t, 60, result.MinScore)
}

func TestFindCandidates_EmptyBodyUsesStoredPreferences(t *testing.T) {
	finder := &stubFinder{result: &query.FindCandidatesResult{StudentID: "alice"}}
	s := newTestServer(Dependencies{FindCandidates: finder})

	rec, _ := do(t, s, http.MethodPost, "/api/v1/students/alice/candidates", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Nil(t, finder.got.Preferences)
	assert.Zero(t, finder.got.Limit)
}

func TestFindCandidates_ErrorMapping(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		status  int
		code    string
		message string
	}{
		{name: "unknown requester", err: shared.ErrStudentNotFound, status: http.StatusNotFound, code: "not_found", message: "student profile not found"},
		{name: "no preferences", err: shared.ErrPreferencesNotFound, status: http.StatusNotFound, code: "not_found", message: "matching preferences not found"},
		{name: "pool query", err: fmt.Errorf("%w: %w", shared.ErrCandidatePoolQuery, errors.New("conn reset")), status: http.StatusServiceUnavailable, code: "matching_unavailable", message: matchingUnavailableMessage},
		{name: "exclusion query", err: fmt.Errorf("%w: %w", shared.ErrExclusionQuery, errors.New("timeout")), status: http.StatusServiceUnavailable, code: "matching_unavailable", message: matchingUnavailableMessage},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(Dependencies{FindCandidates: &stubFinder{err: tt.err}})

			rec, env := do(t, s, http.MethodPost, "/api/v1/students/alice/candidates", `{}`)
			assert.Equal(t, tt.status, rec.Code)
			assert.False(t, env.Success)
			require.NotNil(t, env.Error)
			assert.Equal(t, tt.code, env.Error.Code)
			assert.Equal(t, tt.message, env.Error.Message)
			assert.NotContains(t, rec.Body.String(), "conn reset")
		})
	}
}

func TestRankMatches(t *testing.T) {
	ranker := &stubRanker{}
	s := newTestServer(Dependencies{RankMatches: ranker})

	rec, _ := do(t, s, http.MethodPost, "/api/v1/students/alice/rank", `{"candidate_ids": ["bob", "carol"]}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "alice", ranker.got.StudentID)
	assert.Equal(t, []string{"bob", "carol"}, ranker.got.CandidateIDs)

	rec, env := do(t, s, http.MethodPost, "/api/v1/students/alice/rank", `{"candidate_ids": [`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_request", env.Error.Code)

	rec, _ = do(t, s, http.MethodPost, "/api/v1/students/alice/rank", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCompatibility(t *testing.T) {
	calc := &stubCalculator{}
	s := newTestServer(Dependencies{CalculateCompatibility: calc})

	rec, env := do(t, s, http.MethodGet, "/api/v1/students/alice/compatibility/bob", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, query.PairQuery{StudentID: "alice", CandidateID: "bob"}, calc.got)

	var result query.CompatibilityResult
	require.NoError(t, json.Unmarshal(env.Data, &result))
	assert.Equal(t, 74, result.Score.TotalScore)

	calc.err = shared.ErrSelfMatch
	rec, _ = do(t, s, http.MethodGet, "/api/v1/students/alice/compatibility/alice", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAIAnalysis(t *testing.T) {
	s := newTestServer(Dependencies{AnalyzeCompatibility: &stubAnalyzer{}})

	rec, env := do(t, s, http.MethodGet, "/api/v1/students/alice/compatibility/bob/ai", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var result query.AnalysisResult
	require.NoError(t, json.Unmarshal(env.Data, &result))
	assert.True(t, result.Degraded)

	s = newTestServer(Dependencies{AnalyzeCompatibility: &stubAnalyzer{err: shared.ErrAIRateLimited}})
	rec, env = do(t, s, http.MethodGet, "/api/v1/students/alice/compatibility/bob/ai", "")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))
	assert.Equal(t, "rate_limited", env.Error.Code)
}

// ══════════════════════════════════════════════════════════════════════════════
// PREFERENCES & MATCH LIFECYCLE
// ══════════════════════════════════════════════════════════════════════════════

func TestUpdatePreferences(t *testing.T) {
	prefs := &stubPreferences{}
	s := newTestServer(Dependencies{UpdatePreferences: prefs})

	rec, env := do(t, s, http.MethodPut, "/api/v1/students/alice/preferences",
		`{"student_id": "mallory", "primary_goal": "pass exams"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "alice", prefs.got.StudentID)

	var saved student.MatchingPreferences
	require.NoError(t, json.Unmarshal(env.Data, &saved))
	assert.Equal(t, "alice", saved.StudentID)

	rec, env = do(t, s, http.MethodPut, "/api/v1/students/alice/preferences", `{"competitiveness": 9}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid matching preferences", env.Error.Message)
	assert.Contains(t, env.Error.Details, "competitiveness")
}

func TestSuggestMatch(t *testing.T) {
	suggester := &stubSuggester{}
	s := newTestServer(Dependencies{SuggestMatch: suggester})

	rec, env := do(t, s, http.MethodPost, "/api/v1/matches", `{"student_id": "alice", "peer_id": "bob"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, command.SuggestMatchCommand{StudentID: "alice", PeerID: "bob"}, suggester.got)

	var match social.StudyBuddyMatch
	require.NoError(t, json.Unmarshal(env.Data, &match))
	assert.Equal(t, social.MatchStatusSuggested, match.Status)

	suggester.err = shared.ErrMatchExists
	rec, env = do(t, s, http.MethodPost, "/api/v1/matches", `{"student_id": "alice", "peer_id": "bob"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "already_exists", env.Error.Code)

	suggester.err = fmt.Errorf("%w: %s", shared.ErrIneligiblePair, social.ErrFilterAgeGroup)
	rec, env = do(t, s, http.MethodPost, "/api/v1/matches", `{"student_id": "minor", "peer_id": "adult"}`)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "forbidden", env.Error.Code)
	assert.Equal(t, "pair does not meet matching eligibility rules", env.Error.Message)
}

func TestRespondToMatch(t *testing.T) {
	responder := &stubResponder{}
	s := newTestServer(Dependencies{RespondToMatch: responder})

	rec, _ := do(t, s, http.MethodPost, "/api/v1/matches/m-1/connect", `{"student_id": "bob"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, command.RespondToMatchCommand{MatchID: "m-1", StudentID: "bob", Accept: true}, responder.got)

	rec, _ = do(t, s, http.MethodPost, "/api/v1/matches/m-1/decline", `{"student_id": "bob"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, responder.got.Accept)

	responder.err = shared.ErrNotMatchParticipant
	rec, _ = do(t, s, http.MethodPost, "/api/v1/matches/m-1/connect", `{"student_id": "alice"}`)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	responder.err = shared.ErrInvalidMatchTransition
	rec, env := do(t, s, http.MethodPost, "/api/v1/matches/m-1/connect", `{"student_id": "bob"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "invalid_state", env.Error.Code)

	responder.err = shared.ErrMatchNotFound
	rec, _ = do(t, s, http.MethodPost, "/api/v1/matches/nope/decline", `{"student_id": "bob"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

// ══════════════════════════════════════════════════════════════════════════════
// ROUTING & ERRORS
// ══════════════════════════════════════════════════════════════════════════════

func TestRouting_UnconfiguredAndUnknown(t *testing.T) {
	s := newTestServer(Dependencies{})

	rec, env := do(t, s, http.MethodGet, "/api/v1/students/alice/matches", "")
	assert.Equal(t, http.StatusNotImplemented, rec.Code)
	assert.Equal(t, "not_implemented", env.Error.Code)

	rec, env = do(t, s, http.MethodGet, "/api/v1/nowhere", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "not_found", env.Error.Code)

	rec, _ = do(t, s, http.MethodDelete, "/api/v1/matches", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err      error
		matching bool
		status   int
	}{
		{shared.ErrStudentNotFound, true, http.StatusNotFound},
		{shared.ErrInvalidStudentID, true, http.StatusBadRequest},
		{shared.ErrMatchExists, false, http.StatusConflict},
		{shared.ErrNotMatchParticipant, false, http.StatusForbidden},
		{shared.ErrIneligiblePair, false, http.StatusForbidden},
		{shared.ErrInvalidMatchTransition, false, http.StatusConflict},
		{shared.ErrAIRateLimited, true, http.StatusTooManyRequests},
		{errors.New("boom"), true, http.StatusServiceUnavailable},
		{errors.New("boom"), false, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		status, _ := statusFor(tt.err, tt.matching)
		assert.Equal(t, tt.status, status, tt.err.Error())
	}
}
