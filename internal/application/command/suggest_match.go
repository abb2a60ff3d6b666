// Package command contains write operations (CQRS - Commands).
package command

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/alem-hub/study-buddy/internal/application/query"
	"github.com/alem-hub/study-buddy/internal/domain/shared"
	"github.com/alem-hub/study-buddy/internal/domain/social"
	"github.com/alem-hub/study-buddy/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// SUGGEST MATCH COMMAND
// Records that two students were introduced as study buddies.
// The compatibility score is snapshotted at introduction time.
// ══════════════════════════════════════════════════════════════════════════════

// SuggestMatchCommand contains the pair to introduce.
type SuggestMatchCommand struct {
	// StudentID is the student who receives the suggestion.
	StudentID string

	// PeerID is the suggested study buddy. Only the peer can respond.
	PeerID string
}

// Validate validates the command.
func (c SuggestMatchCommand) Validate() error {
	if c.StudentID == "" || c.PeerID == "" {
		return shared.ErrInvalidStudentID
	}
	if c.StudentID == c.PeerID {
		return shared.ErrSelfMatch
	}
	return nil
}

// CompatibilityCalculator scores a stored pair.
type CompatibilityCalculator interface {
	Handle(ctx context.Context, q query.PairQuery) (*query.CompatibilityResult, error)
}

// ══════════════════════════════════════════════════════════════════════════════
// HANDLER
// ══════════════════════════════════════════════════════════════════════════════

// SuggestMatchHandler handles the SuggestMatchCommand.
type SuggestMatchHandler struct {
	calculator CompatibilityCalculator
	matches    social.MatchRepository
	clock      query.Clock
	log        *logger.Logger
}

// NewSuggestMatchHandler creates a new SuggestMatchHandler.
func NewSuggestMatchHandler(
	calculator CompatibilityCalculator,
	matches social.MatchRepository,
	clock query.Clock,
	log *logger.Logger,
) *SuggestMatchHandler {
	if log == nil {
		log = logger.Nop()
	}
	return &SuggestMatchHandler{
		calculator: calculator,
		matches:    matches,
		clock:      clock,
		log:        log.With(logger.Component("suggest_match")),
	}
}

// Handle creates a suggested StudyBuddyMatch.
// Returns shared.ErrIneligiblePair if the pair fails the candidate pool rules
// and shared.ErrMatchExists if the pair already has an active match.
func (h *SuggestMatchHandler) Handle(ctx context.Context, cmd SuggestMatchCommand) (*social.StudyBuddyMatch, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	scored, err := h.calculator.Handle(ctx, query.PairQuery{StudentID: cmd.StudentID, CandidateID: cmd.PeerID})
	if err != nil {
		return nil, fmt.Errorf("suggest_match: %w", err)
	}
	if !scored.Eligible {
		h.log.Warn("ineligible pair rejected",
			logger.StudentID(cmd.StudentID),
			logger.CandidateID(cmd.PeerID),
			logger.String("reason", scored.IneligibleReason),
		)
		return nil, fmt.Errorf("%w: %s", shared.ErrIneligiblePair, scored.IneligibleReason)
	}

	match, err := social.NewStudyBuddyMatch(cmd.StudentID, cmd.PeerID, scored.Score, now(h.clock))
	if err != nil {
		return nil, err
	}

	if err := h.matches.Create(ctx, match); err != nil {
		if errors.Is(err, shared.ErrMatchExists) {
			return nil, err
		}
		return nil, fmt.Errorf("suggest_match: failed to save match: %w", err)
	}

	h.log.Info("match suggested",
		logger.MatchID(match.ID),
		logger.StudentID(match.StudentID),
		logger.CandidateID(match.PeerID),
		logger.Score(match.CompatibilityScore),
	)
	return match, nil
}

func now(c query.Clock) time.Time {
	if c == nil {
		return time.Now().UTC()
	}
	return c()
}
