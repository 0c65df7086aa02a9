// Package cansession writes Core A's per-run session log: session.json plus
// numbered transition screenshots under a directory named after the service
// and the run's start time (§3, §6 "Per-session log file (Core A)").
// Grounded on codeready-toolchain-tarsy/pkg/session/types.go's mutex-guarded
// mutation pattern, repurposed here for transitions/ai-calls rather than
// chat messages.
package cansession

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/subterminator/core/pkg/models"
)

// Transition is one state-machine hop recorded by the orchestrator (§4.1
// "Side effects").
type Transition struct {
	Index             int    `json:"index"`
	From              string `json:"from"`
	To                string `json:"to"`
	Trigger           string `json:"trigger"`
	URL               string `json:"url"`
	ScreenshotPath    string `json:"screenshot_path"`
	DetectionMethod   string `json:"detection_method"`
	DetectorConfidence float64 `json:"detector_confidence"`
	Timestamp         time.Time `json:"timestamp"`
}

// AICall is one planner invocation recorded for diagnostics.
type AICall struct {
	State      string    `json:"state"`
	Reasoning  string    `json:"reasoning"`
	Confidence float64   `json:"confidence"`
	Timestamp  time.Time `json:"timestamp"`
}

// Manifest is the full session.json document.
type Manifest struct {
	Service     string       `json:"service"`
	StartedAt   time.Time    `json:"started_at"`
	FinishedAt  *time.Time   `json:"finished_at,omitempty"`
	Result      string       `json:"result,omitempty"`
	FinalState  string       `json:"final_state,omitempty"`
	Error       string       `json:"error,omitempty"`
	Transitions []Transition `json:"transitions"`
	AICalls     []AICall     `json:"ai_calls"`
}

// Session owns one run's directory and in-memory manifest, guarded by a
// mutex since the orchestrator and agent write concurrently with cleanup
// paths (panic recovery).
type Session struct {
	mu       sync.Mutex
	dir      string
	manifest Manifest
}

// New creates `<outputDir>/<service>_<yyyyMMdd_HHmmss>/` and returns a
// Session rooted there.
func New(outputDir, service string, startedAt time.Time) (*Session, error) {
	dirName := fmt.Sprintf("%s_%s", service, startedAt.Format("20060102_150405"))
	dir := filepath.Join(outputDir, dirName)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("cansession: create session directory: %w", err)
	}
	return &Session{
		dir: dir,
		manifest: Manifest{
			Service:   service,
			StartedAt: startedAt,
		},
	}, nil
}

// Dir returns the session's root directory.
func (s *Session) Dir() string { return s.dir }

// RecordTransition appends a Transition, saves screenshot as the numbered
// PNG for this index, and returns the screenshot's relative path.
func (s *Session) RecordTransition(from, to models.State, trigger, url, detectionMethod string, confidence float64, screenshot []byte) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	index := len(s.manifest.Transitions)
	filename := fmt.Sprintf("%02d_%s.png", index, to)
	path := filepath.Join(s.dir, filename)
	if len(screenshot) > 0 {
		if err := os.WriteFile(path, screenshot, 0o644); err != nil {
			return "", fmt.Errorf("cansession: write screenshot: %w", err)
		}
	}

	s.manifest.Transitions = append(s.manifest.Transitions, Transition{
		Index:              index,
		From:               string(from),
		To:                 string(to),
		Trigger:            trigger,
		URL:                url,
		ScreenshotPath:     filename,
		DetectionMethod:    detectionMethod,
		DetectorConfidence: confidence,
		Timestamp:          time.Now(),
	})
	return filename, nil
}

// RecordAICall appends an AICall entry.
func (s *Session) RecordAICall(state models.State, reasoning string, confidence float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.manifest.AICalls = append(s.manifest.AICalls, AICall{
		State:      string(state),
		Reasoning:  reasoning,
		Confidence: confidence,
		Timestamp:  time.Now(),
	})
}

// Finalize records the terminal result and writes session.json. It is safe
// to call from a deferred recover() handler so it always runs, even on
// panic (§4.1 "On process termination... the session log is finalized").
func (s *Session) Finalize(result string, finalState models.State, runErr error) error {
	s.mu.Lock()
	now := time.Now()
	s.manifest.FinishedAt = &now
	s.manifest.Result = result
	s.manifest.FinalState = string(finalState)
	if runErr != nil {
		s.manifest.Error = runErr.Error()
	}
	data, err := json.MarshalIndent(s.manifest, "", "  ")
	s.mu.Unlock()
	if err != nil {
		return fmt.Errorf("cansession: marshal manifest: %w", err)
	}
	return os.WriteFile(filepath.Join(s.dir, "session.json"), data, 0o644)
}
