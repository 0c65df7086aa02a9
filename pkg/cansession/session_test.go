package cansession

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/subterminator/core/pkg/models"
)

func TestNewCreatesTimestampedDirectory(t *testing.T) {
	root := t.TempDir()
	start := time.Date(2026, 7, 29, 10, 30, 0, 0, time.UTC)
	s, err := New(root, "netflix", start)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "netflix_20260729_103000"), s.Dir())

	info, err := os.Stat(s.Dir())
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestRecordTransitionWritesNumberedScreenshot(t *testing.T) {
	root := t.TempDir()
	s, err := New(root, "netflix", time.Now())
	require.NoError(t, err)

	path, err := s.RecordTransition(models.StateStart, models.StateAccountActive, "navigate", "https://netflix.com/account", "heuristic", 0.85, []byte("png-bytes"))
	require.NoError(t, err)
	assert.Equal(t, "00_ACCOUNT_ACTIVE.png", path)

	data, err := os.ReadFile(filepath.Join(s.Dir(), path))
	require.NoError(t, err)
	assert.Equal(t, "png-bytes", string(data))
}

func TestFinalizeWritesSessionJSON(t *testing.T) {
	root := t.TempDir()
	s, err := New(root, "netflix", time.Now())
	require.NoError(t, err)

	_, err = s.RecordTransition(models.StateStart, models.StateAccountActive, "navigate", "https://netflix.com/account", "heuristic", 0.85, nil)
	require.NoError(t, err)
	s.RecordAICall(models.StateAccountActive, "clicking cancel link", 0.9)

	require.NoError(t, s.Finalize("success", models.StateComplete, nil))

	data, err := os.ReadFile(filepath.Join(s.Dir(), "session.json"))
	require.NoError(t, err)
	var manifest Manifest
	require.NoError(t, json.Unmarshal(data, &manifest))
	assert.Equal(t, "netflix", manifest.Service)
	assert.Equal(t, "success", manifest.Result)
	assert.Len(t, manifest.Transitions, 1)
	assert.Len(t, manifest.AICalls, 1)
}
