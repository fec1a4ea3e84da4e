package config

import (
	"hash/fnv"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"
)

// FeatureFlags manages engine toggles with gradual per-organization rollout.
// Organizations are assigned to buckets by a hash of their ID, so a rollout
// percentage always selects the same organizations.
type FeatureFlags struct {
	mu sync.RWMutex

	features map[string]*Feature

	// Override rules (for testing/debugging)
	orgOverrides map[string]map[string]bool // organizationID -> feature -> enabled

	now func() time.Time
}

// Feature represents a single feature flag.
type Feature struct {
	Name        string
	Description string
	Enabled     bool

	// Rollout percentage (0-100)
	RolloutPercent int

	// Time-based activation
	EnabledFrom  *time.Time
	EnabledUntil *time.Time
}

// FeatureContext provides context for feature flag evaluation.
type FeatureContext struct {
	OrganizationID string
}

// Predefined feature flag names.
const (
	// === Evaluation ===
	FeatureIncrementalEvaluation = "engine.incremental" // Evaluate on FactRecorded events
	FeatureScheduledSweep        = "engine.sweep"       // Periodic full sweeps

	// === Rankings ===
	FeatureRankingCache = "ranking.cache" // Cache rankings in redis
	FeatureRankingWarm  = "ranking.warm"  // Recompute rankings ahead of reads
)

// LoadFeatureFlags loads feature flags from environment variables.
func LoadFeatureFlags() *FeatureFlags {
	ff := &FeatureFlags{
		features:     make(map[string]*Feature),
		orgOverrides: make(map[string]map[string]bool),
		now:          time.Now,
	}
	ff.initializeDefaults()
	ff.loadFromEnvironment()
	return ff
}

// initializeDefaults sets up all features with default values.
func (ff *FeatureFlags) initializeDefaults() {
	ff.features[FeatureIncrementalEvaluation] = &Feature{
		Name:           FeatureIncrementalEvaluation,
		Description:    "Evaluate triggered predicates when a fact is recorded",
		Enabled:        true,
		RolloutPercent: 100,
	}

	ff.features[FeatureScheduledSweep] = &Feature{
		Name:           FeatureScheduledSweep,
		Description:    "Sweep organizations on a schedule",
		Enabled:        true,
		RolloutPercent: 100,
	}

	ff.features[FeatureRankingCache] = &Feature{
		Name:           FeatureRankingCache,
		Description:    "Cache computed rankings with a last-known fallback",
		Enabled:        true,
		RolloutPercent: 100,
	}

	ff.features[FeatureRankingWarm] = &Feature{
		Name:           FeatureRankingWarm,
		Description:    "Recompute rankings on a schedule",
		Enabled:        true,
		RolloutPercent: 100,
	}
}

// loadFromEnvironment loads feature flag overrides from env vars.
// Format: FEATURE_<NAME>=true|false|<percent>
// Example: FEATURE_ENGINE_SWEEP=false
// Example: FEATURE_ENGINE_INCREMENTAL=25 (25% of organizations)
func (ff *FeatureFlags) loadFromEnvironment() {
	for name, feature := range ff.features {
		val := os.Getenv(featureNameToEnvKey(name))
		if val == "" {
			continue
		}
		if b, err := strconv.ParseBool(val); err == nil {
			feature.Enabled = b
			if b {
				feature.RolloutPercent = 100
			} else {
				feature.RolloutPercent = 0
			}
			continue
		}
		if p, err := strconv.Atoi(val); err == nil && p >= 0 && p <= 100 {
			feature.Enabled = p > 0
			feature.RolloutPercent = p
		}
	}
}

// featureNameToEnvKey converts feature name to environment variable key.
// "engine.sweep" -> "FEATURE_ENGINE_SWEEP"
func featureNameToEnvKey(name string) string {
	key := strings.ToUpper(name)
	key = strings.ReplaceAll(key, ".", "_")
	return "FEATURE_" + key
}

// IsEnabled checks if a feature is enabled for the given context.
// A nil context or an empty organization asks about the feature globally.
func (ff *FeatureFlags) IsEnabled(featureName string, ctx *FeatureContext) bool {
	if ff == nil {
		return true
	}
	ff.mu.RLock()
	defer ff.mu.RUnlock()

	if ctx != nil && ctx.OrganizationID != "" {
		if overrides, ok := ff.orgOverrides[ctx.OrganizationID]; ok {
			if enabled, ok := overrides[featureName]; ok {
				return enabled
			}
		}
	}

	feature, ok := ff.features[featureName]
	if !ok || !feature.Enabled {
		return false
	}

	now := ff.now()
	if feature.EnabledFrom != nil && now.Before(*feature.EnabledFrom) {
		return false
	}
	if feature.EnabledUntil != nil && now.After(*feature.EnabledUntil) {
		return false
	}

	if feature.RolloutPercent < 100 && ctx != nil && ctx.OrganizationID != "" {
		return isInRollout(ctx.OrganizationID, featureName, feature.RolloutPercent)
	}
	return feature.RolloutPercent > 0
}

// EnabledFor is IsEnabled for one organization.
func (ff *FeatureFlags) EnabledFor(featureName, organizationID string) bool {
	return ff.IsEnabled(featureName, &FeatureContext{OrganizationID: organizationID})
}

// isInRollout uses consistent hashing so organizations stay in their bucket.
func isInRollout(organizationID, featureName string, percent int) bool {
	h := fnv.New32a()
	h.Write([]byte(featureName))
	h.Write([]byte(organizationID))
	return int(h.Sum32()%100) < percent
}

// SetOrganizationOverride forces a feature on or off for one organization.
func (ff *FeatureFlags) SetOrganizationOverride(organizationID, featureName string, enabled bool) {
	ff.mu.Lock()
	defer ff.mu.Unlock()

	if _, ok := ff.orgOverrides[organizationID]; !ok {
		ff.orgOverrides[organizationID] = make(map[string]bool)
	}
	ff.orgOverrides[organizationID][featureName] = enabled
}

// ClearOrganizationOverrides removes all overrides for an organization.
func (ff *FeatureFlags) ClearOrganizationOverrides(organizationID string) {
	ff.mu.Lock()
	defer ff.mu.Unlock()
	delete(ff.orgOverrides, organizationID)
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
func (ff *FeatureFlags) GetAllFeatures() map[string]*Feature {
	ff.mu.RLock()
	defer ff.mu.RUnlock()

	result := make(map[string]*Feature, len(ff.features))
	for k, v := range ff.features {
		featureCopy := *v
		result[k] = &featureCopy
	}
	return result
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
