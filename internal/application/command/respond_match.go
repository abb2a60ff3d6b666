package command

import (
	"context"
	"fmt"

	"github.com/alem-hub/study-buddy/internal/application/query"
	"github.com/alem-hub/study-buddy/internal/domain/shared"
	"github.com/alem-hub/study-buddy/internal/domain/social"
	"github.com/alem-hub/study-buddy/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// RESPOND TO MATCH COMMAND
// The suggested peer accepts (connected) or declines a suggestion.
// Both outcomes are terminal.
// ══════════════════════════════════════════════════════════════════════════════

// RespondToMatchCommand contains the response.
type RespondToMatchCommand struct {
	MatchID string

	// StudentID is the responder. Must be the match's peer.
	StudentID string

	// Accept connects the pair when true, declines otherwise.
	Accept bool
}

// Validate validates the command.
func (c RespondToMatchCommand) Validate() error {
	if c.MatchID == "" {
		return shared.NewDomainError("matching", "Respond", shared.ErrInvalidID, "match_id is required")
	}
	if c.StudentID == "" {
		return shared.ErrInvalidStudentID
	}
	return nil
}

// RespondToMatchHandler handles the RespondToMatchCommand.
type RespondToMatchHandler struct {
	matches social.MatchRepository
	clock   query.Clock
	log     *logger.Logger
}

// NewRespondToMatchHandler creates a new RespondToMatchHandler.
func NewRespondToMatchHandler(matches social.MatchRepository, clock query.Clock, log *logger.Logger) *RespondToMatchHandler {
	if log == nil {
		log = logger.Nop()
	}
	return &RespondToMatchHandler{
		matches: matches,
		clock:   clock,
		log:     log.With(logger.Component("respond_match")),
	}
}

// Handle applies the response and persists it.
func (h *RespondToMatchHandler) Handle(ctx context.Context, cmd RespondToMatchCommand) (*social.StudyBuddyMatch, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	match, err := h.matches.GetByID(ctx, cmd.MatchID)
	if err != nil {
		return nil, err
	}

	if match.PeerID != cmd.StudentID {
		return nil, shared.ErrNotMatchParticipant
	}

	at := now(h.clock)
	if cmd.Accept {
		err = match.Connect(at)
	} else {
		err = match.Decline(at)
	}
	if err != nil {
		return nil, err
	}

	if err := h.matches.Update(ctx, match); err != nil {
		return nil, fmt.Errorf("respond_match: failed to save match: %w", err)
	}

	h.log.Info("match answered",
		logger.MatchID(match.ID),
		logger.StudentID(cmd.StudentID),
		logger.String("status", string(match.Status)),
	)
	return match, nil
}
