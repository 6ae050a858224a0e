package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// TaskStatus enumerates task lifecycle states. Transitions are one-directional
// and the terminal states are absorbing.
type TaskStatus string

const (
	TaskStatusPending    TaskStatus = "pending"
	TaskStatusProcessing TaskStatus = "processing"
	TaskStatusCompleted  TaskStatus = "completed"
	TaskStatusFailed     TaskStatus = "failed"
)

// Terminal reports whether the status admits no further transitions.
func (s TaskStatus) Terminal() bool {
	return s == TaskStatusCompleted || s == TaskStatusFailed
}

// GenerationMode selects the background/compliance strategy for a generation.
type GenerationMode string

const (
	ModeStandard         GenerationMode = "standard"
	ModeApple            GenerationMode = "apple"
	ModeHighContrastClip GenerationMode = "high_contrast_clip"
	ModeUniversal        GenerationMode = "universal"
)

// NormalizeGenerationMode sanitizes free-form input into a supported mode.
func NormalizeGenerationMode(mode string) GenerationMode {
	switch GenerationMode(mode) {
	case ModeApple, ModeHighContrastClip, ModeUniversal:
		return GenerationMode(mode)
	default:
		return ModeStandard
	}
}

// QualitySensitive reports whether the mode always runs quality assessment.
func (m GenerationMode) QualitySensitive() bool {
	return m == ModeHighContrastClip || m == ModeUniversal
}

// QualityAssessment summarizes the outcome of the quality-retry loop for a
// completed task.
type QualityAssessment struct {
	Acceptable     bool   `json:"acceptable"`
	Retries        int    `json:"retries"`
	FinalImagePath string `json:"finalImagePath"`
}

// Task is the unit of orchestrated work. A task is mutated only by the single
// background routine that owns it; readers receive copies.
type Task struct {
	ID         string
	Status     TaskStatus
	Progress   float64
	ResultURL  *string
	Error      *string
	Prompt     string
	PromptHash string
	Style      string
	Parameters Params
	UserID     string
	Plan       string
	Provider   string
	CreatedAt  time.Time
	Quality    *QualityAssessment
}

// HashPrompt produces the short one-way hash used in place of raw prompt text
// in logs.
func HashPrompt(prompt string) string {
	sum := sha256.Sum256([]byte(prompt))
	return hex.EncodeToString(sum[:])[:16]
}
