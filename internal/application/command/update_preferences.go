package command

import (
	"context"
	"fmt"

	"github.com/alem-hub/study-buddy/internal/application/query"
	"github.com/alem-hub/study-buddy/internal/domain/student"
	"github.com/alem-hub/study-buddy/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// UPDATE PREFERENCES COMMAND
// Replaces a student's matching preferences.
// This is the only write path for preferences; the matching core only reads them.
// ══════════════════════════════════════════════════════════════════════════════

// UpdatePreferencesCommand contains the new preferences.
type UpdatePreferencesCommand struct {
	// StudentID is the owner of the preferences. Overrides Preferences.StudentID.
	StudentID string

	Preferences student.MatchingPreferences
}

// UpdatePreferencesHandler handles the UpdatePreferencesCommand.
type UpdatePreferencesHandler struct {
	preferences student.PreferencesRepository
	clock       query.Clock
	log         *logger.Logger
}

// NewUpdatePreferencesHandler creates a new UpdatePreferencesHandler.
func NewUpdatePreferencesHandler(
	preferences student.PreferencesRepository,
	clock query.Clock,
	log *logger.Logger,
) *UpdatePreferencesHandler {
	if log == nil {
		log = logger.Nop()
	}
	return &UpdatePreferencesHandler{
		preferences: preferences,
		clock:       clock,
		log:         log.With(logger.Component("update_preferences")),
	}
}

// Handle normalizes, validates and stores the preferences.
func (h *UpdatePreferencesHandler) Handle(ctx context.Context, cmd UpdatePreferencesCommand) (*student.MatchingPreferences, error) {
	prefs := cmd.Preferences
	prefs.StudentID = cmd.StudentID
	prefs.Normalize()

	if err := prefs.Validate(); err != nil {
		return nil, err
	}

	prefs.UpdatedAt = now(h.clock)

	if err := h.preferences.Upsert(ctx, &prefs); err != nil {
		return nil, fmt.Errorf("update_preferences: %w", err)
	}

	h.log.Info("matching preferences updated",
		logger.StudentID(prefs.StudentID),
		logger.Bool("open_to_matching", prefs.OpenToMatching),
	)
	return &prefs, nil
}
