// Package store provides in-memory storage for saved scripts and their runs.
package store

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/lemonberrylabs/oida/pkg/types"
)

// Sentinel errors returned (wrapped) by the store.
var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
	ErrNotActive     = errors.New("not active")
)

// ScriptState represents the state of a stored script.
type ScriptState string

const (
	ScriptActive ScriptState = "ACTIVE"
)

// RunState represents the state of a script run.
type RunState string

const (
	RunActive    RunState = "ACTIVE"
	RunSucceeded RunState = "SUCCEEDED"
	RunFailed    RunState = "FAILED"
	RunCancelled RunState = "CANCELLED"
)

// Script is a saved oida program.
type Script struct {
	ID          string      `json:"id"`
	Description string      `json:"description,omitempty"`
	State       ScriptState `json:"state"`
	RevisionID  string      `json:"revisionId"`
	CreateTime  time.Time   `json:"createTime"`
	UpdateTime  time.Time   `json:"updateTime"`
	Source      string      `json:"source"`
}

// Run is one execution of a script.
type Run struct {
	ID               string    `json:"id"`
	ScriptID         string    `json:"scriptId"`
	State            RunState  `json:"state"`
	Output           string    `json:"output,omitempty"`
	Diagnostics      []string  `json:"diagnostics,omitempty"`
	Error            *RunError `json:"error,omitempty"`
	Steps            int       `json:"steps"`
	StartTime        time.Time `json:"startTime"`
	EndTime          time.Time `json:"endTime,omitempty"`
	ScriptRevisionID string    `json:"scriptRevisionId"`
}

// RunError describes why a run failed.
type RunError struct {
	Message string `json:"message"`
	Kind    string `json:"kind,omitempty"`
}

// Finished reports whether the run has left the ACTIVE state.
func (r Run) Finished() bool {
	return r.State != RunActive
}

// Store is a thread-safe in-memory storage for scripts and runs. All
// accessors return copies, so callers never share state with the store.
type Store struct {
	mu      sync.RWMutex
	scripts map[string]*Script
	runs    map[string]map[string]*Run // script ID -> run ID -> run

	revCounter int64
}

// New creates a new empty store.
func New() *Store {
	return &Store{
		scripts: make(map[string]*Script),
		runs:    make(map[string]map[string]*Run),
	}
}

func (s *Store) nextRevision() string {
	s.revCounter++
	return fmt.Sprintf("%06d-%s", s.revCounter, uuid.NewString()[:3])
}

// CreateScript stores a new script under id.
func (s *Store) CreateScript(id, source, description string) (Script, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.scripts[id]; exists {
		return Script{}, fmt.Errorf("script '%s': %w", id, ErrAlreadyExists)
	}

	now := time.Now()
	sc := &Script{
		ID:          id,
		Description: description,
		State:       ScriptActive,
		RevisionID:  s.nextRevision(),
		CreateTime:  now,
		UpdateTime:  now,
		Source:      source,
	}
	s.scripts[id] = sc
	s.runs[id] = make(map[string]*Run)
	return *sc, nil
}

// GetScript retrieves a script by ID.
func (s *Store) GetScript(id string) (Script, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sc, ok := s.scripts[id]
	if !ok {
		return Script{}, fmt.Errorf("script '%s': %w", id, ErrNotFound)
	}
	return *sc, nil
}

// ListScripts returns all scripts ordered by ID.
func (s *Store) ListScripts() []Script {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]Script, 0, len(s.scripts))
	for _, sc := range s.scripts {
		result = append(result, *sc)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result
}

// UpdateScript replaces a script's source and, when non-empty, its
// description. An empty source keeps the current one. Every update gets a
// new revision.
func (s *Store) UpdateScript(id, source, description string) (Script, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sc, ok := s.scripts[id]
	if !ok {
		return Script{}, fmt.Errorf("script '%s': %w", id, ErrNotFound)
	}

	if source != "" {
		sc.Source = source
	}
	if description != "" {
		sc.Description = description
	}
	sc.RevisionID = s.nextRevision()
	sc.UpdateTime = time.Now()
	return *sc, nil
}

// DeleteScript removes a script together with its runs.
func (s *Store) DeleteScript(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.scripts[id]; !ok {
		return fmt.Errorf("script '%s': %w", id, ErrNotFound)
	}
	delete(s.scripts, id)
	delete(s.runs, id)
	return nil
}

// CreateRun records a new ACTIVE run of the script's current revision.
func (s *Store) CreateRun(scriptID string) (Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sc, ok := s.scripts[scriptID]
	if !ok {
		return Run{}, fmt.Errorf("script '%s': %w", scriptID, ErrNotFound)
	}

	r := &Run{
		ID:               uuid.NewString(),
		ScriptID:         scriptID,
		State:            RunActive,
		StartTime:        time.Now(),
		ScriptRevisionID: sc.RevisionID,
	}
	s.runs[scriptID][r.ID] = r
	return r.copy(), nil
}

// GetRun retrieves a run.
func (s *Store) GetRun(scriptID, runID string) (Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, err := s.lookupRun(scriptID, runID)
	if err != nil {
		return Run{}, err
	}
	return r.copy(), nil
}

// ListRuns returns the runs of a script, newest first.
func (s *Store) ListRuns(scriptID string) ([]Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	runs, ok := s.runs[scriptID]
	if !ok {
		return nil, fmt.Errorf("script '%s': %w", scriptID, ErrNotFound)
	}
	result := make([]Run, 0, len(runs))
	for _, r := range runs {
		result = append(result, r.copy())
	}
	sortNewestFirst(result)
	return result, nil
}

// RecentRuns returns up to limit runs across all scripts, newest first.
func (s *Store) RecentRuns(limit int) []Run {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []Run
	for _, runs := range s.runs {
		for _, r := range runs {
			result = append(result, r.copy())
		}
	}
	sortNewestFirst(result)
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result
}

// CompleteRun marks an active run as succeeded.
func (s *Store) CompleteRun(scriptID, runID, output string, diagnostics []string, steps int) error {
	return s.finish(scriptID, runID, func(r *Run) {
		r.State = RunSucceeded
		r.Output = output
		r.Diagnostics = append([]string(nil), diagnostics...)
		r.Steps = steps
	})
}

// FailRun marks an active run as failed. Output produced before the
// failure is kept.
func (s *Store) FailRun(scriptID, runID, output string, diagnostics []string, runErr error) error {
	return s.finish(scriptID, runID, func(r *Run) {
		r.State = RunFailed
		r.Output = output
		r.Diagnostics = append([]string(nil), diagnostics...)
		r.Error = &RunError{Message: runErr.Error(), Kind: string(types.KindOf(runErr))}
	})
}

// CancelRun marks an active run as cancelled.
func (s *Store) CancelRun(scriptID, runID string) error {
	return s.finish(scriptID, runID, func(r *Run) {
		r.State = RunCancelled
	})
}

func (s *Store) finish(scriptID, runID string, update func(*Run)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, err := s.lookupRun(scriptID, runID)
	if err != nil {
		return err
	}
	if r.State != RunActive {
		return fmt.Errorf("run '%s' is %s: %w", runID, r.State, ErrNotActive)
	}
	update(r)
	r.EndTime = time.Now()
	return nil
}

func (s *Store) lookupRun(scriptID, runID string) (*Run, error) {
	runs, ok := s.runs[scriptID]
	if !ok {
		return nil, fmt.Errorf("script '%s': %w", scriptID, ErrNotFound)
	}
	r, ok := runs[runID]
	if !ok {
		return nil, fmt.Errorf("run '%s': %w", runID, ErrNotFound)
	}
	return r, nil
}

func (r *Run) copy() Run {
	c := *r
	c.Diagnostics = append([]string(nil), r.Diagnostics...)
	if r.Error != nil {
		e := *r.Error
		c.Error = &e
	}
	return c
}

func sortNewestFirst(runs []Run) {
	sort.SliceStable(runs, func(i, j int) bool {
		return runs[i].StartTime.After(runs[j].StartTime)
	})
}
