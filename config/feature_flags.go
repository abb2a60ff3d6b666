package config

import (
	"hash/fnv"
	"os"
	"strconv"
	"strings"
	"sync"
)

// FeatureFlags manages feature toggles with per-student percentage rollout.
// A student's bucket is a hash of the flag name and the student ID, so the
// same student keeps the same answer while the percentage stays fixed.
type FeatureFlags struct {
	mu sync.RWMutex

	features map[string]*Feature

	// studentID -> feature -> enabled
	overrides map[string]map[string]bool
}

// Feature represents a single feature flag.
type Feature struct {
	Name        string
	Description string
	Enabled     bool

	// RolloutPercent (0-100) of students that see the feature.
	RolloutPercent int
}

// Predefined feature flag names.
const (
	// GET .../compatibility/{candidateID}/ai
	FeatureMatchingAIAnalysis = "matching.ai_analysis"

	// include_ai on candidate search
	FeatureMatchingAIEnrichment = "matching.ai_enrichment"
)

// LoadFeatureFlags loads feature flags from defaults and environment variables.
func LoadFeatureFlags() *FeatureFlags {
	ff := &FeatureFlags{
		features:  make(map[string]*Feature),
		overrides: make(map[string]map[string]bool),
	}

	ff.initializeDefaults()
	ff.loadFromEnvironment()

	return ff
}

func (ff *FeatureFlags) initializeDefaults() {
	ff.features[FeatureMatchingAIAnalysis] = &Feature{
		Name:           FeatureMatchingAIAnalysis,
		Description:    "On-demand AI compatibility analysis of a pair",
		Enabled:        true,
		RolloutPercent: 100,
	}

	ff.features[FeatureMatchingAIEnrichment] = &Feature{
		Name:           FeatureMatchingAIEnrichment,
		Description:    "AI analysis attached to candidate search results",
		Enabled:        true,
		RolloutPercent: 100,
	}
}

// loadFromEnvironment applies overrides from env vars.
// Format: FEATURE_<NAME>=true|false|<percent>
// Example: FEATURE_MATCHING_AI_ANALYSIS=false
// Example: FEATURE_MATCHING_AI_ENRICHMENT=25 (25% rollout)
func (ff *FeatureFlags) loadFromEnvironment() {
	for name, feature := range ff.features {
		val := strings.TrimSpace(os.Getenv(featureNameToEnvKey(name)))
		if val == "" {
			continue
		}

		if b, err := strconv.ParseBool(val); err == nil {
			feature.Enabled = b
			feature.RolloutPercent = 0
			if b {
				feature.RolloutPercent = 100
			}
			continue
		}

		if p, err := strconv.Atoi(val); err == nil && p >= 0 && p <= 100 {
			feature.Enabled = p > 0
			feature.RolloutPercent = p
		}
	}
}

// featureNameToEnvKey converts a feature name to its environment variable key.
// "matching.ai_analysis" -> "FEATURE_MATCHING_AI_ANALYSIS"
func featureNameToEnvKey(name string) string {
	key := strings.ToUpper(name)
	key = strings.ReplaceAll(key, ".", "_")
	return "FEATURE_" + key
}

// IsEnabled checks if a feature is enabled for the student.
// An empty studentID only passes fully rolled out features.
func (ff *FeatureFlags) IsEnabled(featureName, studentID string) bool {
	ff.mu.RLock()
	defer ff.mu.RUnlock()

	if studentID != "" {
		if enabled, ok := ff.overrides[studentID][featureName]; ok {
			return enabled
		}
	}

	feature, ok := ff.features[featureName]
	if !ok || !feature.Enabled {
		return false
	}

	if feature.RolloutPercent >= 100 {
		return true
	}
	if studentID == "" {
		return false
	}
	return inRollout(featureName, studentID, feature.RolloutPercent)
}

// inRollout maps the student to a 0-99 bucket.
func inRollout(featureName, studentID string, percent int) bool {
	h := fnv.New32a()
	_, _ = h.Write([]byte(featureName))
	_, _ = h.Write([]byte(studentID))
	return int(h.Sum32()%100) < percent
}

// SetStudentOverride forces a feature on or off for one student.
func (ff *FeatureFlags) SetStudentOverride(studentID, featureName string, enabled bool) {
	ff.mu.Lock()
	defer ff.mu.Unlock()

	if _, ok := ff.overrides[studentID]; !ok {
		ff.overrides[studentID] = make(map[string]bool)
	}
	ff.overrides[studentID][featureName] = enabled
}

// ClearStudentOverrides removes all overrides for a student.
func (ff *FeatureFlags) ClearStudentOverrides(studentID string) {
	ff.mu.Lock()
	defer ff.mu.Unlock()
	delete(ff.overrides, studentID)
}

// SetRolloutPercent updates the rollout percentage for a feature.
func (ff *FeatureFlags) SetRolloutPercent(featureName string, percent int) error {
	ff.mu.Lock()
	defer ff.mu.Unlock()

	feature, ok := ff.features[featureName]
	if !ok {
		return ErrFeatureNotFound
	}
	if percent < 0 || percent > 100 {
		return ErrInvalidRolloutPercent
	}

	feature.RolloutPercent = percent
	feature.Enabled = percent > 0
	return nil
}

// EnableFeature enables a feature at 100% rollout.
func (ff *FeatureFlags) EnableFeature(featureName string) error {
	return ff.SetRolloutPercent(featureName, 100)
}

// DisableFeature disables a feature completely.
func (ff *FeatureFlags) DisableFeature(featureName string) error {
	return ff.SetRolloutPercent(featureName, 0)
}

// GetAllFeatures returns a copy of all feature configurations.
func (ff *FeatureFlags) GetAllFeatures() map[string]Feature {
	ff.mu.RLock()
	defer ff.mu.RUnlock()

	result := make(map[string]Feature, len(ff.features))
	for k, v := range ff.features {
		result[k] = *v
	}
	return result
}

// Toggle binds one flag to the matching handlers' Toggle interface.
func (ff *FeatureFlags) Toggle(featureName string) FlagToggle {
	return FlagToggle{flags: ff, name: featureName}
}

// FlagToggle answers EnabledFor for a single flag.
type FlagToggle struct {
	flags *FeatureFlags
	name  string
}

// EnabledFor reports whether the flag is on for the student.
func (t FlagToggle) EnabledFor(studentID string) bool {
	return t.flags.IsEnabled(t.name, studentID)
}

// --- Errors ---

var (
	ErrFeatureNotFound       = &FeatureFlagError{Message: "feature not found"}
	ErrInvalidRolloutPercent = &FeatureFlagError{Message: "rollout percent must be 0-100"}
)

// FeatureFlagError represents a feature flag error.
type FeatureFlagError struct {
	Message string
}

func (e *FeatureFlagError) Error() string {
	return e.Message
}
