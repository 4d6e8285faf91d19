package testutil

import (
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"

	"github.com/mlahti/bookfetch/internal/cache"
	"github.com/mlahti/bookfetch/internal/config"
)

// ConfigState holds a snapshot of the config package globals.
type ConfigState struct {
	ISBNdbAPIKey      string
	GoogleBooksAPIKey string
	SchedulerToken    string
	AdminToken        string
	StorePath         string
	CacheDBFile       string
}

// SaveConfigState captures the current state of the config globals.
func SaveConfigState() ConfigState {
	return ConfigState{
		ISBNdbAPIKey:      config.ISBNdbAPIKey,
		GoogleBooksAPIKey: config.GoogleBooksAPIKey,
		SchedulerToken:    config.SchedulerToken,
		AdminToken:        config.AdminToken,
		StorePath:         config.StorePath,
		CacheDBFile:       config.CacheDBFile,
	}
}

// RestoreConfigState restores the config globals to a saved state.
func RestoreConfigState(state ConfigState) {
	config.ISBNdbAPIKey = state.ISBNdbAPIKey
	config.GoogleBooksAPIKey = state.GoogleBooksAPIKey
	config.SchedulerToken = state.SchedulerToken
	config.AdminToken = state.AdminToken
	config.StorePath = state.StorePath
	config.CacheDBFile = state.CacheDBFile
}

// ResetConfig resets viper and schedules restoration of the config
// globals when the test completes.
func ResetConfig(t *testing.T) {
	t.Helper()

	state := SaveConfigState()
	viper.Reset()

	t.Cleanup(func() {
		RestoreConfigState(state)
		viper.Reset()
	})
}

// SetupTestCache points the global response cache at a fresh database in
// a temp directory and resets it again after the test. Viper is reset on
// both sides, so API key and token settings do not leak between tests.
func SetupTestCache(t *testing.T) {
	t.Helper()

	viper.Reset()
	viper.Set("cache.dbfile", filepath.Join(t.TempDir(), "cache.db"))
	require.NoError(t, cache.ResetGlobal())

	t.Cleanup(func() {
		_ = cache.ResetGlobal()
		viper.Reset()
	})
}
