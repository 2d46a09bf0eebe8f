package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadFeatureFlags_Defaults(t *testing.T) {
	ff := LoadFeatureFlags()

	assert.True(t, ff.IsEnabled(FeatureProgressionStreaks, nil))
	assert.True(t, ff.IsEnabled(FeatureProgressionRateGuard, nil))
	assert.True(t, ff.IsEnabled(FeatureLeaderboardProjection, nil))
	assert.False(t, ff.IsEnabled(FeatureExperimentalWebhooks, nil))
	assert.False(t, ff.IsEnabled("no.such.feature", nil))
}

func TestLoadFeatureFlags_EnvBoolOverride(t *testing.T) {
	t.Setenv("FEATURE_PROGRESSION_RATE_GUARD", "false")
	t.Setenv("FEATURE_EXPERIMENTAL_WEBHOOKS", "true")

	ff := LoadFeatureFlags()

	assert.False(t, ff.IsEnabled(FeatureProgressionRateGuard, nil))
	assert.True(t, ff.IsEnabled(FeatureExperimentalWebhooks, nil))
}

func TestLoadFeatureFlags_EnvPercentOverride(t *testing.T) {
	t.Setenv("FEATURE_LEADERBOARD_NEIGHBORS", "40")

	ff := LoadFeatureFlags()
	feature := ff.GetAllFeatures()[FeatureLeaderboardNeighbors]

	assert.True(t, feature.Enabled)
	assert.Equal(t, 40, feature.RolloutPercent)
}

func TestLoadFeatureFlags_MalformedEnvIgnored(t *testing.T) {
	t.Setenv("FEATURE_PROGRESSION_STREAKS", "150")

	ff := LoadFeatureFlags()
	feature := ff.GetAllFeatures()[FeatureProgressionStreaks]

	assert.Equal(t, 100, feature.RolloutPercent)
}

func TestRolloutBucketing(t *testing.T) {
	ff := LoadFeatureFlags()
	assert.NoError(t, ff.SetRolloutPercent(FeatureLeaderboardNeighbors, 50))

	// Bucketing is deterministic per user+feature.
	users := []string{"user-1", "user-2", "user-3", "user-4", "user-5"}
	first := make(map[string]bool, len(users))
	for _, u := range users {
		first[u] = ff.IsEnabled(FeatureLeaderboardNeighbors, &FeatureContext{UserID: u})
	}
	for _, u := range users {
		assert.Equal(t, first[u], ff.IsEnabled(FeatureLeaderboardNeighbors, &FeatureContext{UserID: u}))
	}

	// Boundary percentages admit everyone or no one.
	assert.NoError(t, ff.SetRolloutPercent(FeatureLeaderboardNeighbors, 100))
	for _, u := range users {
		assert.True(t, ff.IsEnabled(FeatureLeaderboardNeighbors, &FeatureContext{UserID: u}))
	}
	assert.NoError(t, ff.SetRolloutPercent(FeatureLeaderboardNeighbors, 0))
	for _, u := range users {
		assert.False(t, ff.IsEnabled(FeatureLeaderboardNeighbors, &FeatureContext{UserID: u}))
	}
}

func TestSetRolloutPercent_Errors(t *testing.T) {
	ff := LoadFeatureFlags()

	assert.ErrorIs(t, ff.SetRolloutPercent("no.such.feature", 50), ErrFeatureNotFound)
	assert.ErrorIs(t, ff.SetRolloutPercent(FeatureProgressionStreaks, 101), ErrInvalidRolloutPercent)
	assert.ErrorIs(t, ff.SetRolloutPercent(FeatureProgressionStreaks, -1), ErrInvalidRolloutPercent)
}

func TestEnableDisableFeature(t *testing.T) {
	ff := LoadFeatureFlags()

	assert.NoError(t, ff.DisableFeature(FeatureProgressionMultipliers))
	assert.False(t, ff.IsEnabled(FeatureProgressionMultipliers, nil))

	assert.NoError(t, ff.EnableFeature(FeatureProgressionMultipliers))
	assert.True(t, ff.IsEnabled(FeatureProgressionMultipliers, nil))
}

func TestUserOverrides(t *testing.T) {
	ff := LoadFeatureFlags()
	ctx := &FeatureContext{UserID: "user-1"}

	ff.SetUserOverride("user-1", FeatureExperimentalAnalytics, true)
	assert.True(t, ff.IsEnabled(FeatureExperimentalAnalytics, ctx))
	assert.False(t, ff.IsEnabled(FeatureExperimentalAnalytics, &FeatureContext{UserID: "user-2"}))

	ff.ClearUserOverrides("user-1")
	assert.False(t, ff.IsEnabled(FeatureExperimentalAnalytics, ctx))
}

func TestAdminSeesEverything(t *testing.T) {
	ff := LoadFeatureFlags()

	admin := &FeatureContext{UserID: "admin-1", IsAdmin: true}
	assert.True(t, ff.IsEnabled(FeatureExperimentalAnalytics, admin))
}

func TestTimeWindowActivation(t *testing.T) {
	ff := LoadFeatureFlags()
	future := time.Now().Add(time.Hour)
	past := time.Now().Add(-time.Hour)

	feature := ff.features[FeatureProgressionStreaks]
	feature.EnabledFrom = &future
	assert.False(t, ff.IsEnabled(FeatureProgressionStreaks, nil))

	feature.EnabledFrom = nil
	feature.EnabledUntil = &past
	assert.False(t, ff.IsEnabled(FeatureProgressionStreaks, nil))

	feature.EnabledUntil = nil
	assert.True(t, ff.IsEnabled(FeatureProgressionStreaks, nil))
}

func TestGetVariant(t *testing.T) {
	ff := LoadFeatureFlags()
	ctx := &FeatureContext{UserID: "user-1"}

	// No variants configured.
	assert.Equal(t, "", ff.GetVariant(FeatureProgressionStreaks, ctx))

	ff.features[FeatureProgressionStreaks].Variants = []string{"control", "treatment"}
	got := ff.GetVariant(FeatureProgressionStreaks, ctx)
	assert.Contains(t, []string{"control", "treatment"}, got)
	assert.Equal(t, got, ff.GetVariant(FeatureProgressionStreaks, ctx))

	// Disabled feature yields no variant.
	assert.NoError(t, ff.DisableFeature(FeatureProgressionStreaks))
	assert.Equal(t, "", ff.GetVariant(FeatureProgressionStreaks, ctx))
}
