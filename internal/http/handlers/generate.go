package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"iconforge/internal/domain"
	"iconforge/internal/quota"
	"iconforge/internal/task"
)

type generateRequest struct {
	Prompt     string        `json:"prompt"`
	Style      string        `json:"style"`
	Parameters domain.Params `json:"parameters"`
}

type generateResponse struct {
	TaskID string `json:"taskId"`
}

type taskStatusResponse struct {
	TaskID            string                    `json:"taskId"`
	Status            string                    `json:"status"`
	Progress          float64                   `json:"progress"`
	ResultURL         *string                   `json:"resultURL"`
	Error             *string                   `json:"error"`
	QualityAssessment *domain.QualityAssessment `json:"qualityAssessment,omitempty"`
}

// CreateTask admits a generation request and returns the task handle.
func (a *App) CreateTask(w http.ResponseWriter, r *http.Request) {
	req, ok := a.decodeGenerate(w, r)
	if !ok {
		return
	}
	a.submit(w, r, req)
}

// CreateQualityOptimizedTask admits a generation request with quality
// assessment forced on.
func (a *App) CreateQualityOptimizedTask(w http.ResponseWriter, r *http.Request) {
	req, ok := a.decodeGenerate(w, r)
	if !ok {
		return
	}
	if req.Parameters == nil {
		req.Parameters = domain.Params{}
	}
	if req.Parameters.Mode() == domain.ModeHighContrastClip || req.Parameters.Bool("evaluateQuality", true) {
		req.Parameters["qualityAssessment"] = map[string]any{"enabled": true}
		req.Parameters["maxQualityRetries"] = req.Parameters.Int("maxQualityRetries", 2)
	}
	a.submit(w, r, req)
}

// TaskStatus reports the current snapshot of a task.
func (a *App) TaskStatus(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "taskID")
	t, ok := a.Orchestrator.Status(taskID)
	if !ok {
		a.error(w, http.StatusNotFound, "not_found", "unknown task id")
		return
	}
	a.json(w, http.StatusOK, taskStatusResponse{
		TaskID:            t.ID,
		Status:            string(t.Status),
		Progress:          t.Progress,
		ResultURL:         t.ResultURL,
		Error:             t.Error,
		QualityAssessment: t.Quality,
	})
}

// GenerationModes lists the supported generation modes and their traits.
func (a *App) GenerationModes(w http.ResponseWriter, r *http.Request) {
	a.json(w, http.StatusOK, map[string]any{
		"standard": map[string]any{
			"name":        "Standard",
			"description": "Standard generation mode, using high contrast background to improve clipping effect",
			"features":    []string{"High contrast background", "Optimized clipping", "Vector quality"},
		},
		"apple": map[string]any{
			"name":        "Apple Platform",
			"description": "Transparent background mode following Apple Human Interface Guidelines",
			"features":    []string{"Transparent background", "Apple HIG compliant", "Small scale optimization"},
		},
		"high_contrast_clip": map[string]any{
			"name":        "High Contrast Clip",
			"description": "High contrast background mode optimized specifically for clipping",
			"features":    []string{"Maximum contrast", "Optimized clipping", "Clear boundaries"},
		},
		"universal": map[string]any{
			"name":        "Universal",
			"description": "Universal generation mode: Combining best practices from Apple HIG guidelines, high contrast backgrounds, and quality assessment",
			"features":    []string{"Apple HIG compliant", "High contrast background", "Quality assessment", "Scalable design"},
		},
	})
}

func (a *App) decodeGenerate(w http.ResponseWriter, r *http.Request) (generateRequest, bool) {
	var req generateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "invalid_request", "Request validation failed")
		return req, false
	}
	if strings.TrimSpace(req.Prompt) == "" {
		a.error(w, http.StatusBadRequest, "invalid_request", "prompt is required")
		return req, false
	}
	return req, true
}

func (a *App) submit(w http.ResponseWriter, r *http.Request, req generateRequest) {
	userID, plan := identity(r)
	taskID, err := a.Orchestrator.Submit(task.SubmitRequest{
		Prompt:     req.Prompt,
		Style:      req.Style,
		Parameters: req.Parameters,
		UserID:     userID,
		Plan:       plan,
	})
	if err != nil {
		if errors.Is(err, quota.ErrExceeded) {
			a.error(w, http.StatusPaymentRequired, "quota_exceeded", "Daily "+plan+" quota exceeded")
			return
		}
		a.error(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	a.json(w, http.StatusOK, generateResponse{TaskID: taskID})
}
