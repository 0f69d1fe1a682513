package state_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/packwright/core/internal/state"
)

type fixedClock struct{ at time.Time }

func (c fixedClock) Now() time.Time { return c.at }

func TestNewDefaults(t *testing.T) {
	t.Setenv("HEX_HOME", "")
	t.Setenv("HEX_API_URL", "")
	t.Setenv("HEX_OFFLINE", "")
	t.Setenv("HEX_HTTP_CONCURRENCY", "")

	s, err := state.New()
	require.NoError(t, err)
	assert.Equal(t, "https://hex.pm", s.APIBaseURL)
	assert.Equal(t, 8, s.HTTPConcurrency)
	assert.False(t, s.Offline)

	repo, ok := s.Repo("hexpm")
	require.True(t, ok)
	assert.Equal(t, "https://hex.pm", repo.URL)
}

func TestNewReadsEnv(t *testing.T) {
	t.Setenv("HEX_API_URL", "https://hex.example.com")
	t.Setenv("HEX_OFFLINE", "true")
	t.Setenv("HEX_HTTP_CONCURRENCY", "16")

	s, err := state.New()
	require.NoError(t, err)
	assert.Equal(t, "https://hex.example.com", s.APIBaseURL)
	assert.True(t, s.Offline)
	assert.Equal(t, 16, s.HTTPConcurrency)
}

func TestWithClockOption(t *testing.T) {
	at := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s, err := state.New(state.WithClock(fixedClock{at: at}))
	require.NoError(t, err)
	assert.Equal(t, at, s.Clock.Now())
}

func TestWithRepoOverridesDefault(t *testing.T) {
	s, err := state.New(state.WithRepo(state.RepoConfig{
		Name:              "hexpm",
		URL:               "https://custom.example.com",
		NoVerifySignature: true,
	}))
	require.NoError(t, err)
	repo, ok := s.Repo("hexpm")
	require.True(t, ok)
	assert.Equal(t, "https://custom.example.com", repo.URL)
	assert.True(t, repo.NoVerifySignature)
}
