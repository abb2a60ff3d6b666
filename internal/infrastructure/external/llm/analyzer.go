package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/alem-hub/study-buddy/internal/domain/shared"
	"github.com/alem-hub/study-buddy/internal/domain/social"
	"github.com/alem-hub/study-buddy/internal/domain/student"
	"github.com/alem-hub/study-buddy/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// AI COMPATIBILITY ANALYZER
// Asks the model for a 0-100 score with reasons and concerns. Any failure
// becomes social.UnavailableAIAnalysis; the analyzer never returns an error.
// ══════════════════════════════════════════════════════════════════════════════

// ErrMalformedReply is returned by ParseAnalysis for replies that are not the expected JSON.
var ErrMalformedReply = errors.New("llm: malformed analysis reply")

const systemPrompt = `You evaluate how well two students would work together as study partners.
Reply with a single JSON object and nothing else:
{"score": <integer 0-100>, "reasons": [<short strings>], "concerns": [<short strings>]}`

// DefaultAnalyzeTimeout bounds a whole analysis including retries.
const DefaultAnalyzeTimeout = 30 * time.Second

// Analyzer implements social.CompatibilityAnalyzer.
type Analyzer struct {
	completer Completer
	timeout   time.Duration
	log       *logger.Logger
}

var _ social.CompatibilityAnalyzer = (*Analyzer)(nil)

// NewAnalyzer creates an analyzer on top of a completer.
func NewAnalyzer(completer Completer, timeout time.Duration, log *logger.Logger) *Analyzer {
	if timeout <= 0 {
		timeout = DefaultAnalyzeTimeout
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Analyzer{
		completer: completer,
		timeout:   timeout,
		log:       log.With(logger.Component("ai_analyzer")),
	}
}

// Analyze scores the pair with the language model.
func (a *Analyzer) Analyze(ctx context.Context, s, c student.PacedProfile, sPrefs, cPrefs *student.MatchingPreferences) social.AIAnalysis {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	start := time.Now()
	reply, err := a.completer.Complete(ctx, systemPrompt, BuildPrompt(s, c, sPrefs, cPrefs))
	if err != nil {
		a.degraded(s.ID, c.ID, "completion failed", err)
		return social.UnavailableAIAnalysis()
	}

	analysis, err := ParseAnalysis(reply)
	if err != nil {
		a.degraded(s.ID, c.ID, "unparsable reply", err)
		return social.UnavailableAIAnalysis()
	}

	a.log.Debug("ai analysis completed",
		logger.StudentID(s.ID),
		logger.CandidateID(c.ID),
		logger.Score(analysis.Score),
		logger.Latency(time.Since(start)),
	)
	return analysis
}

func (a *Analyzer) degraded(studentID, candidateID, reason string, err error) {
	a.log.Warn("ai analysis unavailable",
		logger.StudentID(studentID),
		logger.CandidateID(candidateID),
		logger.Err(fmt.Errorf("%w: %s: %w", shared.ErrAIAnalysisFailed, reason, err)),
	)
}

// ─────────────────────────────────────────────────────────────────────────────
// Prompt
// ─────────────────────────────────────────────────────────────────────────────

// BuildPrompt describes both students for the model.
func BuildPrompt(s, c student.PacedProfile, sPrefs, cPrefs *student.MatchingPreferences) string {
	var b strings.Builder
	b.WriteString("Rate the study partnership between these two students.\n\n")
	writeStudent(&b, "Student A", s, sPrefs)
	b.WriteString("\n")
	writeStudent(&b, "Student B", c, cPrefs)
	b.WriteString("\nConsider skill level, goals, schedule, pace, interests and communication style.")
	return b.String()
}

func writeStudent(b *strings.Builder, title string, p student.PacedProfile, prefs *student.MatchingPreferences) {
	fmt.Fprintf(b, "%s:\n", title)
	fmt.Fprintf(b, "- Level: %d (module %d)\n", p.Level, p.CurrentModule)
	fmt.Fprintf(b, "- Pace: %d videos per week\n", p.VideosPerWeek)

	if prefs == nil {
		b.WriteString("- Preferences: unknown\n")
		return
	}

	fmt.Fprintf(b, "- Goal: %s\n", orNone(prefs.PrimaryGoal))
	fmt.Fprintf(b, "- Topics: %s\n", joinOrNone(prefs.InterestedTopics))
	fmt.Fprintf(b, "- Projects: %s\n", joinOrNone(prefs.ProjectInterests))
	fmt.Fprintf(b, "- Availability: %.1f hours per week, timezone %s\n", prefs.WeeklyAvailabilityHours, orNone(prefs.Timezone))

	slots := make([]string, 0, len(prefs.StudyTimes()))
	for _, slot := range prefs.StudyTimes() {
		slots = append(slots, fmt.Sprintf("%s %s-%s", slot.Day, slot.Start, slot.End))
	}
	fmt.Fprintf(b, "- Study times: %s\n", joinOrNone(slots))
	fmt.Fprintf(b, "- Learning style: %s\n", orNone(string(prefs.LearningStyle)))
	fmt.Fprintf(b, "- Communication: %s\n", orNone(string(prefs.Communication())))
	fmt.Fprintf(b, "- Competitiveness: %d/5\n", prefs.Competitiveness)
}

func orNone(s string) string {
	if strings.TrimSpace(s) == "" {
		return "none"
	}
	return s
}

func joinOrNone(items []string) string {
	if len(items) == 0 {
		return "none"
	}
	return strings.Join(items, ", ")
}

// ─────────────────────────────────────────────────────────────────────────────
// Reply parsing
// ─────────────────────────────────────────────────────────────────────────────

type analysisReply struct {
	Score    *float64 `json:"score"`
	Reasons  []string `json:"reasons"`
	Concerns []string `json:"concerns"`
}

// ParseAnalysis extracts the JSON object from a model reply.
// Code fences and surrounding prose are tolerated; the score is clamped to 0-100.
func ParseAnalysis(reply string) (social.AIAnalysis, error) {
	body := extractObject(stripFences(reply))
	if body == "" {
		return social.AIAnalysis{}, fmt.Errorf("%w: no JSON object", ErrMalformedReply)
	}

	var parsed analysisReply
	if err := json.Unmarshal([]byte(body), &parsed); err != nil {
		return social.AIAnalysis{}, fmt.Errorf("%w: %w", ErrMalformedReply, err)
	}
	if parsed.Score == nil || math.IsNaN(*parsed.Score) {
		return social.AIAnalysis{}, fmt.Errorf("%w: missing score", ErrMalformedReply)
	}

	analysis := social.AIAnalysis{
		Score:    clampScore(*parsed.Score),
		Reasons:  parsed.Reasons,
		Concerns: parsed.Concerns,
	}
	if analysis.Reasons == nil {
		analysis.Reasons = []string{}
	}
	if analysis.Concerns == nil {
		analysis.Concerns = []string{}
	}
	return analysis, nil
}

func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	// language tag on the opening fence
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[i+1:]
	}
	return strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(s), "```"))
}

func extractObject(s string) string {
	start := strings.IndexByte(s, '{')
	end := strings.LastIndexByte(s, '}')
	if start < 0 || end <= start {
		return ""
	}
	return s[start : end+1]
}

func clampScore(v float64) int {
	switch {
	case v < 0:
		return 0
	case v > 100:
		return 100
	}
	return int(math.Round(v))
}
