package task

import (
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"iconforge/internal/domain"
)

// NewTaskID returns a fresh task identifier in the "tsk_" + 22 character
// form used throughout the API surface.
func NewTaskID() string {
	compact := strings.ReplaceAll(uuid.NewString(), "-", "")
	return "tsk_" + compact[:22]
}

// Store is the in-memory task registry. Readers always receive copies;
// mutations go through the setters so lifecycle rules hold under
// concurrency.
type Store struct {
	mu    sync.RWMutex
	tasks map[string]*domain.Task
}

// NewStore constructs an empty registry.
func NewStore() *Store {
	return &Store{tasks: make(map[string]*domain.Task)}
}

// Create registers a new pending task and returns it.
func (s *Store) Create(t domain.Task) domain.Task {
	if t.ID == "" {
		t.ID = NewTaskID()
	}
	if t.Status == "" {
		t.Status = domain.TaskStatusPending
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}
	if t.PromptHash == "" {
		t.PromptHash = domain.HashPrompt(t.Prompt)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	stored := t
	s.tasks[t.ID] = &stored
	return t
}

// Get returns a snapshot of the task.
func (s *Store) Get(id string) (domain.Task, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tasks[id]
	if !ok {
		return domain.Task{}, false
	}
	return *t, true
}

// SetProcessing moves a pending task into the processing state.
func (s *Store) SetProcessing(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	if !ok || t.Status.Terminal() {
		return
	}
	t.Status = domain.TaskStatusProcessing
}

// SetProgress advances the task's progress. Progress never decreases and
// terminal tasks are left untouched.
func (s *Store) SetProgress(id string, progress float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	if !ok || t.Status.Terminal() {
		return
	}
	if progress > t.Progress {
		t.Progress = progress
	}
}

// Complete marks the task finished with its public result reference.
// Terminal states are absorbing so a late Complete after Fail is a no-op.
// A completed task never carries an error, whatever happened along the way.
func (s *Store) Complete(id, resultURL string, q *domain.QualityAssessment) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	if !ok || t.Status.Terminal() {
		return
	}
	t.Status = domain.TaskStatusCompleted
	t.Progress = 1.0
	t.ResultURL = &resultURL
	t.Error = nil
	t.Quality = q
}

// Fail marks the task failed with the given error text. Progress is left at
// its last value.
func (s *Store) Fail(id, msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	if !ok || t.Status.Terminal() {
		return
	}
	t.Status = domain.TaskStatusFailed
	if msg != "" {
		t.Error = &msg
	}
}
