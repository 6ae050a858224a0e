package handlers

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"iconforge/internal/quality"
	"iconforge/internal/task"
)

type qualityAssessmentRequest struct {
	ImageURL       string  `json:"imageUrl"`
	MinResolution  int     `json:"min_resolution"`
	MinContrast    float64 `json:"min_contrast"`
	MinClarity     float64 `json:"min_clarity"`
	ExpectedAspect string  `json:"expected_aspect_ratio"`
}

type qualityAssessmentResponse struct {
	TaskID       string          `json:"taskId"`
	IsAcceptable bool            `json:"isAcceptable"`
	QualityScore float64         `json:"qualityScore"`
	Metrics      quality.Metrics `json:"metrics"`
	Error        *string         `json:"error"`
}

// AssessQuality scores an arbitrary image against the icon quality gates.
// Remote URLs are fetched into the store first; store-relative references
// are resolved in place.
func (a *App) AssessQuality(w http.ResponseWriter, r *http.Request) {
	var req qualityAssessmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || strings.TrimSpace(req.ImageURL) == "" {
		a.error(w, http.StatusBadRequest, "invalid_request", "imageUrl is required")
		return
	}

	taskID := task.NewTaskID()
	imagePath, err := a.resolveImage(r, taskID, req.ImageURL)
	if err != nil {
		a.error(w, http.StatusNotFound, "not_found", err.Error())
		return
	}

	metrics := quality.ScoreFile(imagePath, quality.Thresholds{
		MinResolution:  req.MinResolution,
		MinContrast:    req.MinContrast,
		MinClarity:     req.MinClarity,
		ExpectedAspect: req.ExpectedAspect,
	})
	a.json(w, http.StatusOK, qualityAssessmentResponse{
		TaskID:       taskID,
		IsAcceptable: metrics.IsAcceptable,
		QualityScore: metrics.OverallScore,
		Metrics:      metrics,
	})
}

// resolveImage turns an image reference into a local filesystem path.
func (a *App) resolveImage(r *http.Request, taskID, imageURL string) (string, error) {
	if strings.HasPrefix(imageURL, "http://") || strings.HasPrefix(imageURL, "https://") {
		return a.downloadImage(r, taskID, imageURL)
	}
	key, ok := a.Files.KeyFromURL(imageURL)
	if !ok {
		key = imageURL
	}
	path, err := a.Files.Path(key)
	if err != nil {
		return "", fmt.Errorf("invalid image reference")
	}
	return path, nil
}

func (a *App) downloadImage(r *http.Request, taskID, imageURL string) (string, error) {
	req, err := http.NewRequestWithContext(r.Context(), http.MethodGet, imageURL, nil)
	if err != nil {
		return "", fmt.Errorf("invalid image url")
	}
	resp, err := a.HTTPClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("image not reachable")
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return "", fmt.Errorf("image fetch failed with status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("image read failed")
	}
	key, err := a.Files.Write(r.Context(), taskID+"_assessment.png", data)
	if err != nil {
		return "", fmt.Errorf("image store failed")
	}
	return a.Files.Path(key)
}
