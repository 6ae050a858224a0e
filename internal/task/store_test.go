package task

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"iconforge/internal/domain"
)

func TestNewTaskIDFormat(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id := NewTaskID()
		assert.True(t, strings.HasPrefix(id, "tsk_"), "id %q missing prefix", id)
		assert.Len(t, id, 26)
		assert.False(t, seen[id], "duplicate id %q", id)
		seen[id] = true
	}
}

func TestStoreCreateDefaults(t *testing.T) {
	s := NewStore()
	created := s.Create(domain.Task{Prompt: "blue rocket icon"})

	assert.NotEmpty(t, created.ID)
	assert.Equal(t, domain.TaskStatusPending, created.Status)
	assert.Equal(t, domain.HashPrompt("blue rocket icon"), created.PromptHash)
	assert.False(t, created.CreatedAt.IsZero())

	got, ok := s.Get(created.ID)
	require.True(t, ok)
	assert.Equal(t, created.ID, got.ID)
}

func TestStoreGetMissing(t *testing.T) {
	s := NewStore()
	_, ok := s.Get("tsk_nope")
	assert.False(t, ok)
}

func TestStoreProgressMonotonic(t *testing.T) {
	s := NewStore()
	created := s.Create(domain.Task{Prompt: "icon"})

	s.SetProgress(created.ID, 0.5)
	s.SetProgress(created.ID, 0.25)

	got, _ := s.Get(created.ID)
	assert.Equal(t, 0.5, got.Progress, "progress never decreases")

	s.SetProgress(created.ID, 0.7)
	got, _ = s.Get(created.ID)
	assert.Equal(t, 0.7, got.Progress)
}

func TestStoreTerminalStatesAbsorb(t *testing.T) {
	s := NewStore()
	created := s.Create(domain.Task{Prompt: "icon"})

	s.Fail(created.ID, "all_providers_failed")
	s.Complete(created.ID, "http://example.com/x.png", nil)
	s.SetProgress(created.ID, 1.0)
	s.SetProcessing(created.ID)

	got, _ := s.Get(created.ID)
	assert.Equal(t, domain.TaskStatusFailed, got.Status)
	assert.Nil(t, got.ResultURL)
	require.NotNil(t, got.Error)
	assert.Equal(t, "all_providers_failed", *got.Error)
}

func TestStoreCompleteClearsDiagnostics(t *testing.T) {
	s := NewStore()
	stale := "provider_failed:dashscope:boom"
	created := s.Create(domain.Task{Prompt: "icon", Error: &stale})

	s.Complete(created.ID, "http://example.com/x.png", nil)

	got, _ := s.Get(created.ID)
	assert.Equal(t, domain.TaskStatusCompleted, got.Status)
	assert.Nil(t, got.Error, "a completed task never carries an error")
}

func TestStoreCompleteSetsResult(t *testing.T) {
	s := NewStore()
	created := s.Create(domain.Task{Prompt: "icon"})

	s.Complete(created.ID, "http://example.com/tsk.png", &domain.QualityAssessment{Acceptable: true, Retries: 1})

	got, _ := s.Get(created.ID)
	assert.Equal(t, domain.TaskStatusCompleted, got.Status)
	assert.Equal(t, 1.0, got.Progress)
	require.NotNil(t, got.ResultURL)
	assert.Equal(t, "http://example.com/tsk.png", *got.ResultURL)
	require.NotNil(t, got.Quality)
	assert.True(t, got.Quality.Acceptable)
}
