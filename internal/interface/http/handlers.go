package http

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/alem-hub/study-buddy/internal/application/command"
	"github.com/alem-hub/study-buddy/internal/application/query"
	"github.com/alem-hub/study-buddy/internal/domain/shared"
	"github.com/alem-hub/study-buddy/internal/domain/student"
	"github.com/alem-hub/study-buddy/pkg/logger"
)

// matchingUnavailableMessage is shown when matching fails for reasons the
// caller cannot fix.
const matchingUnavailableMessage = "unable to find matches right now"

// ══════════════════════════════════════════════════════════════════════════════
// HEALTH & STATUS HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// handleHealth handles GET /health.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.deps.HealthChecker == nil {
		writeJSON(w, r, http.StatusOK, map[string]string{"status": "healthy"})
		return
	}

	status := s.deps.HealthChecker.Check(r.Context())
	if !status.Healthy {
		writeJSON(w, r, http.StatusServiceUnavailable, status)
		return
	}
	writeJSON(w, r, http.StatusOK, status)
}

// handleReady handles GET /ready. Only critical checks take the service out of rotation.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.deps.HealthChecker != nil {
		status := s.deps.HealthChecker.Check(r.Context())
		if !status.Ready {
			writeJSON(w, r, http.StatusServiceUnavailable, map[string]string{
				"status": "not_ready",
				"reason": status.Message,
			})
			return
		}
	}
	writeJSON(w, r, http.StatusOK, map[string]string{"status": "ready"})
}

// handleLive handles GET /live.
func (s *Server) handleLive(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, map[string]string{"status": "alive"})
}

// ══════════════════════════════════════════════════════════════════════════════
// MATCHING HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

type findCandidatesRequest struct {
	Preferences *student.MatchingPreferences `json:"preferences,omitempty"`
	Limit       int                          `json:"limit,omitempty"`
	IncludeAI   bool                         `json:"include_ai,omitempty"`
}

// handleFindCandidates handles POST /api/v1/students/{id}/candidates.
// The body is optional; without it the stored preferences are used.
func (s *Server) handleFindCandidates(w http.ResponseWriter, r *http.Request) {
	if s.deps.FindCandidates == nil {
		writeNotConfigured(w, r)
		return
	}

	var req findCandidatesRequest
	if !decodeBody(w, r, &req, true) {
		return
	}

	result, err := s.deps.FindCandidates.Handle(r.Context(), query.FindCandidatesQuery{
		StudentID:         chi.URLParam(r, "id"),
		Preferences:       req.Preferences,
		Limit:             req.Limit,
		IncludeAIAnalysis: req.IncludeAI,
	})
	if err != nil {
		s.writeError(w, r, err, true)
		return
	}
	writeJSON(w, r, http.StatusOK, result)
}

type rankMatchesRequest struct {
	CandidateIDs []string `json:"candidate_ids"`
}

// handleRankMatches handles POST /api/v1/students/{id}/rank.
func (s *Server) handleRankMatches(w http.ResponseWriter, r *http.Request) {
	if s.deps.RankMatches == nil {
		writeNotConfigured(w, r)
		return
	}

	var req rankMatchesRequest
	if !decodeBody(w, r, &req, false) {
		return
	}

	result, err := s.deps.RankMatches.Handle(r.Context(), query.RankMatchesQuery{
		StudentID:    chi.URLParam(r, "id"),
		CandidateIDs: req.CandidateIDs,
	})
	if err != nil {
		s.writeError(w, r, err, true)
		return
	}
	writeJSON(w, r, http.StatusOK, result)
}

// handleCompatibility handles GET /api/v1/students/{id}/compatibility/{candidateID}.
func (s *Server) handleCompatibility(w http.ResponseWriter, r *http.Request) {
	if s.deps.CalculateCompatibility == nil {
		writeNotConfigured(w, r)
		return
	}

	result, err := s.deps.CalculateCompatibility.Handle(r.Context(), pairFromPath(r))
	if err != nil {
		s.writeError(w, r, err, true)
		return
	}
	writeJSON(w, r, http.StatusOK, result)
}

// handleAIAnalysis handles GET /api/v1/students/{id}/compatibility/{candidateID}/ai.
// A model failure is still a 200 with a degraded analysis.
func (s *Server) handleAIAnalysis(w http.ResponseWriter, r *http.Request) {
	if s.deps.AnalyzeCompatibility == nil {
		writeNotConfigured(w, r)
		return
	}

	result, err := s.deps.AnalyzeCompatibility.Handle(r.Context(), pairFromPath(r))
	if err != nil {
		if errors.Is(err, shared.ErrRateLimited) {
			w.Header().Set("Retry-After", "60")
		}
		s.writeError(w, r, err, true)
		return
	}
	writeJSON(w, r, http.StatusOK, result)
}

func pairFromPath(r *http.Request) query.PairQuery {
	return query.PairQuery{
		StudentID:   chi.URLParam(r, "id"),
		CandidateID: chi.URLParam(r, "candidateID"),
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// PREFERENCES & MATCH LIFECYCLE HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// handleUpdatePreferences handles PUT /api/v1/students/{id}/preferences.
func (s *Server) handleUpdatePreferences(w http.ResponseWriter, r *http.Request) {
	if s.deps.UpdatePreferences == nil {
		writeNotConfigured(w, r)
		return
	}

	var prefs student.MatchingPreferences
	if !decodeBody(w, r, &prefs, false) {
		return
	}

	saved, err := s.deps.UpdatePreferences.Handle(r.Context(), command.UpdatePreferencesCommand{
		StudentID:   chi.URLParam(r, "id"),
		Preferences: prefs,
	})
	if err != nil {
		s.writeError(w, r, err, false)
		return
	}
	writeJSON(w, r, http.StatusOK, saved)
}

// handleListMatches handles GET /api/v1/students/{id}/matches.
func (s *Server) handleListMatches(w http.ResponseWriter, r *http.Request) {
	if s.deps.ListMatches == nil {
		writeNotConfigured(w, r)
		return
	}

	result, err := s.deps.ListMatches.Handle(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err, false)
		return
	}
	writeJSON(w, r, http.StatusOK, result)
}

type suggestMatchRequest struct {
	StudentID string `json:"student_id"`
	PeerID    string `json:"peer_id"`
}

// handleSuggestMatch handles POST /api/v1/matches.
func (s *Server) handleSuggestMatch(w http.ResponseWriter, r *http.Request) {
	if s.deps.SuggestMatch == nil {
		writeNotConfigured(w, r)
		return
	}

	var req suggestMatchRequest
	if !decodeBody(w, r, &req, false) {
		return
	}

	match, err := s.deps.SuggestMatch.Handle(r.Context(), command.SuggestMatchCommand{
		StudentID: req.StudentID,
		PeerID:    req.PeerID,
	})
	if err != nil {
		s.writeError(w, r, err, false)
		return
	}
	writeJSON(w, r, http.StatusCreated, match)
}

type respondMatchRequest struct {
	StudentID string `json:"student_id"`
}

// handleRespondToMatch handles POST /api/v1/matches/{matchID}/connect and /decline.
func (s *Server) handleRespondToMatch(accept bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.deps.RespondToMatch == nil {
			writeNotConfigured(w, r)
			return
		}

		var req respondMatchRequest
		if !decodeBody(w, r, &req, false) {
			return
		}

		match, err := s.deps.RespondToMatch.Handle(r.Context(), command.RespondToMatchCommand{
			MatchID:   chi.URLParam(r, "matchID"),
			StudentID: req.StudentID,
			Accept:    accept,
		})
		if err != nil {
			s.writeError(w, r, err, false)
			return
		}
		writeJSON(w, r, http.StatusOK, match)
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// REQUEST & ERROR HELPERS
// ══════════════════════════════════════════════════════════════════════════════

// decodeBody reads a JSON body into dst. It writes a 400 and returns false
// on malformed input.
func decodeBody(w http.ResponseWriter, r *http.Request, dst any, optional bool) bool {
	err := json.NewDecoder(r.Body).Decode(dst)
	switch {
	case err == nil:
		return true
	case errors.Is(err, io.EOF) && optional:
		return true
	case errors.Is(err, io.EOF):
		writeJSONError(w, r, http.StatusBadRequest, "invalid_request", "Request body is required")
		return false
	}

	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		writeJSONError(w, r, http.StatusRequestEntityTooLarge, "payload_too_large", "Request body too large")
		return false
	}
	writeJSONErrorWithDetails(w, r, http.StatusBadRequest, "invalid_request", "Malformed JSON body", err.Error())
	return false
}

// statusFor maps a domain error to an HTTP status and error code.
func statusFor(err error, matching bool) (int, string) {
	switch {
	case shared.IsNotFound(err):
		return http.StatusNotFound, "not_found"
	case shared.IsValidation(err):
		return http.StatusBadRequest, "invalid_request"
	case shared.IsAlreadyExists(err):
		return http.StatusConflict, "already_exists"
	case shared.IsForbidden(err):
		return http.StatusForbidden, "forbidden"
	case shared.IsStateConflict(err):
		return http.StatusConflict, "invalid_state"
	case errors.Is(err, shared.ErrRateLimited):
		return http.StatusTooManyRequests, "rate_limited"
	case matching:
		return http.StatusServiceUnavailable, "matching_unavailable"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

// writeError writes the error envelope. Client errors carry the domain
// message; server errors never expose the underlying cause.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error, matching bool) {
	status, code := statusFor(err, matching)

	if status < http.StatusInternalServerError {
		message, details := clientMessage(err)
		writeJSONErrorWithDetails(w, r, status, code, message, details)
		return
	}

	logger.FromContext(r.Context()).Error("request failed",
		logger.String("path", r.URL.Path),
		logger.Int("status", status),
		logger.Err(err),
	)

	message := "An unexpected error occurred"
	if matching {
		message = matchingUnavailableMessage
	}
	writeJSONError(w, r, status, code, message)
}

// clientMessage splits a domain error into its message and, for
// validation failures, the list of offending fields.
func clientMessage(err error) (string, string) {
	var de *shared.DomainError
	if !errors.As(err, &de) || de.Message == "" {
		return err.Error(), ""
	}
	if de.Err != nil && shared.IsValidation(de) {
		return de.Message, de.Err.Error()
	}
	return de.Message, ""
}

func writeNotConfigured(w http.ResponseWriter, r *http.Request) {
	writeJSONError(w, r, http.StatusNotImplemented, "not_implemented", "Handler not configured")
}
