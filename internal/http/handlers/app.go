package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"iconforge/internal/infra"
	"iconforge/internal/quota"
	"iconforge/internal/storage"
	"iconforge/internal/task"
)

// App bundles the handler dependencies.
type App struct {
	Orchestrator *task.Orchestrator
	Quotas       *quota.Manager
	Files        *storage.FileStore
	HTTPClient   *http.Client
	Logger       *infra.Logger
}

// NewApp wires the handler container.
func NewApp(orch *task.Orchestrator, quotas *quota.Manager, files *storage.FileStore, logger *infra.Logger) *App {
	return &App{
		Orchestrator: orch,
		Quotas:       quotas,
		Files:        files,
		HTTPClient:   http.DefaultClient,
		Logger:       logger,
	}
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// error writes the unified error envelope shared by every endpoint.
func (a *App) error(w http.ResponseWriter, status int, code, message string) {
	a.json(w, status, map[string]any{"error": code, "message": message, "code": status})
}

// identity derives the caller from headers. Authentication is out of scope;
// the identity headers exist so quotas and concurrency have a subject.
func identity(r *http.Request) (userID, plan string) {
	userID = strings.TrimSpace(r.Header.Get("X-User-Id"))
	if userID == "" {
		userID = "anon"
	}
	plan = strings.ToLower(strings.TrimSpace(r.Header.Get("X-Plan")))
	if plan != "pro" {
		plan = "free"
	}
	return userID, plan
}
