package task

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"

	"iconforge/internal/domain"
	"iconforge/internal/infra"
	"iconforge/internal/providers/image"
	"iconforge/internal/quality"
	"iconforge/internal/quota"
	"iconforge/internal/storage"
)

// progressCheckpoints are the intermediate values reported while a task
// waits on its provider.
var progressCheckpoints = []float64{0.25, 0.5, 0.7, 0.9}

// Options tunes the orchestrator's concurrency and pacing.
type Options struct {
	// GlobalConcurrency caps tasks generating at once across all users.
	GlobalConcurrency int
	// PerUserConcurrency caps tasks generating at once for a single user.
	PerUserConcurrency int
	// QueueDelay simulates admission latency before a task starts
	// processing.
	QueueDelay time.Duration
	// PaceInterval spaces the intermediate progress checkpoints.
	PaceInterval time.Duration
	// MaxQualityRetries bounds the quality-retry loop when the request does
	// not specify its own budget.
	MaxQualityRetries int
	// PublicBaseURL prefixes result references so callers receive absolute
	// URLs.
	PublicBaseURL string
	Logger        *infra.Logger
}

func (o Options) normalized() Options {
	if o.GlobalConcurrency <= 0 {
		o.GlobalConcurrency = 3
	}
	if o.PerUserConcurrency <= 0 {
		o.PerUserConcurrency = 3
	}
	if o.QueueDelay < 0 {
		o.QueueDelay = 0
	} else if o.QueueDelay == 0 {
		o.QueueDelay = 300 * time.Millisecond
	}
	if o.PaceInterval < 0 {
		o.PaceInterval = 0
	} else if o.PaceInterval == 0 {
		o.PaceInterval = 400 * time.Millisecond
	}
	if o.MaxQualityRetries <= 0 {
		o.MaxQualityRetries = 2
	}
	o.PublicBaseURL = strings.TrimRight(o.PublicBaseURL, "/")
	return o
}

// SubmitRequest carries everything the orchestrator needs to admit a task.
type SubmitRequest struct {
	Prompt     string
	Style      string
	Parameters domain.Params
	UserID     string
	Plan       string
}

// Orchestrator owns task lifecycles: admission, bounded-concurrency
// execution, provider fallback, conditional quality supervision, and final
// state recording.
type Orchestrator struct {
	store      *Store
	quotas     *quota.Manager
	router     *image.Router
	providers  image.Registry
	files      *storage.FileStore
	supervisor *quality.Supervisor
	logger     *infra.Logger
	opts       Options

	globalSem *semaphore.Weighted

	userMu   sync.Mutex
	userSems map[string]*semaphore.Weighted

	wg sync.WaitGroup
}

// NewOrchestrator wires the orchestrator's collaborators together.
func NewOrchestrator(store *Store, quotas *quota.Manager, router *image.Router, providers image.Registry, files *storage.FileStore, supervisor *quality.Supervisor, opts Options) *Orchestrator {
	opts = opts.normalized()
	logger := opts.Logger
	if logger == nil {
		discard := zerolog.New(io.Discard)
		l := infra.Logger(discard)
		logger = &l
	}
	return &Orchestrator{
		store:      store,
		quotas:     quotas,
		router:     router,
		providers:  providers,
		files:      files,
		supervisor: supervisor,
		logger:     logger,
		opts:       opts,
		globalSem:  semaphore.NewWeighted(int64(opts.GlobalConcurrency)),
		userSems:   make(map[string]*semaphore.Weighted),
	}
}

// Submit admits a request: quota check, parameter normalization, provider
// selection, then asynchronous execution. It returns the task id
// immediately; callers poll Status for progress.
func (o *Orchestrator) Submit(req SubmitRequest) (string, error) {
	if strings.TrimSpace(req.Prompt) == "" {
		return "", errors.New("task: prompt is required")
	}
	userID := req.UserID
	if userID == "" {
		userID = "anon"
	}
	plan := req.Plan
	if plan == "" {
		plan = "free"
	}
	if err := o.quotas.CheckAndIncrement(userID, plan); err != nil {
		return "", err
	}

	params := req.Parameters.Clone()
	if params == nil {
		params = domain.Params{}
	}
	params["size"] = params.Size()
	params["removeBackground"] = params.Bool("removeBackground", false)

	t := o.store.Create(domain.Task{
		Prompt:     req.Prompt,
		Style:      req.Style,
		Parameters: params,
		UserID:     userID,
		Plan:       plan,
		Provider:   o.router.Choose(plan),
	})

	o.logger.Info().
		Str("task_id", t.ID).
		Str("prompt_hash", t.PromptHash).
		Str("provider", t.Provider).
		Str("plan", plan).
		Int("size", params.Size()).
		Msg("task: submitted")

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		o.run(context.Background(), t.ID)
	}()
	return t.ID, nil
}

// Status returns a snapshot of the task.
func (o *Orchestrator) Status(taskID string) (domain.Task, bool) {
	return o.store.Get(taskID)
}

// WaitAll blocks until every in-flight task has finished.
func (o *Orchestrator) WaitAll() {
	o.wg.Wait()
}

// run executes one task end to end. It never panics outward; any failure is
// recorded on the task record.
func (o *Orchestrator) run(ctx context.Context, taskID string) {
	t, ok := o.store.Get(taskID)
	if !ok {
		return
	}

	time.Sleep(o.opts.QueueDelay)
	o.store.SetProcessing(taskID)
	o.store.SetProgress(taskID, 0.1)

	if err := o.globalSem.Acquire(ctx, 1); err != nil {
		o.store.Fail(taskID, fmt.Sprintf("scheduler: %v", err))
		return
	}
	defer o.globalSem.Release(1)

	userSem := o.userSemaphore(t.UserID)
	if err := userSem.Acquire(ctx, 1); err != nil {
		o.store.Fail(taskID, fmt.Sprintf("scheduler: %v", err))
		return
	}
	defer userSem.Release(1)

	for _, p := range progressCheckpoints {
		time.Sleep(o.opts.PaceInterval)
		o.store.SetProgress(taskID, p)
	}

	key, err := o.generateWithFallback(ctx, t)
	if err != nil {
		o.logger.Error().
			Str("task_id", taskID).
			Str("prompt_hash", t.PromptHash).
			Err(err).
			Msg("task: all providers failed")
		o.store.Fail(taskID, err.Error())
		return
	}

	var assessment *domain.QualityAssessment
	if t.Parameters.WantsQualityAssessment() {
		assessment, key = o.superviseQuality(ctx, t, key)
	}

	resultURL := o.publicURL(key)
	o.store.Complete(taskID, resultURL, assessment)
	o.logger.Info().
		Str("task_id", taskID).
		Str("provider", t.Provider).
		Bool("quality_assessed", assessment != nil).
		Msg("task: completed")
}

// generateWithFallback walks the task's fallback chain, attempting each
// provider exactly once. The stored image key is returned on the first
// success; an aggregated error describes every failed link otherwise.
// Failures are collected locally and surface on the task record only when
// the whole chain is exhausted, so a completed task never carries an error.
func (o *Orchestrator) generateWithFallback(ctx context.Context, t domain.Task) (string, error) {
	req := o.buildRequest(t, t.Parameters, "")
	chain := o.router.FallbackChain(t.Provider)

	var failures []string
	for _, name := range chain {
		gen, ok := o.providers.Lookup(name)
		if !ok {
			failures = append(failures, fmt.Sprintf("provider_failed:%s:not configured", name))
			continue
		}
		asset, err := gen.Generate(ctx, req)
		if err != nil {
			failures = append(failures, fmt.Sprintf("provider_failed:%s:%v", name, err))
			o.logger.Warn().
				Str("task_id", t.ID).
				Str("provider", name).
				Str("prompt_hash", t.PromptHash).
				Err(err).
				Msg("task: provider failed, walking fallback chain")
			continue
		}
		key, err := o.persist(ctx, t.ID+".png", asset, t.Parameters.Size())
		if err != nil {
			failures = append(failures, fmt.Sprintf("provider_failed:%s:%v", name, err))
			continue
		}
		return key, nil
	}
	return "", errors.New("all_providers_failed: " + strings.Join(failures, "; "))
}

// persist writes the asset under key and normalizes it to the requested
// square size.
func (o *Orchestrator) persist(ctx context.Context, key string, asset *image.Asset, size int) (string, error) {
	cleanKey, err := o.files.Write(ctx, key, asset.Data)
	if err != nil {
		return "", err
	}
	if err := o.files.Resize(ctx, cleanKey, size); err != nil {
		return "", err
	}
	return cleanKey, nil
}

// buildRequest normalizes task inputs into a provider request: symbol
// enrichment, quality hints from retry parameters, background mode from the
// generation mode, and the clamped target size.
func (o *Orchestrator) buildRequest(t domain.Task, params domain.Params, keySuffix string) image.GenerateRequest {
	prompt := image.EnrichPrompt(t.Prompt, params.StringList("symbols"))
	prompt += image.QualityHintSuffix(
		params.Float(quality.ParamQualityLevel, 0),
		params.Bool(quality.ParamHIGCompliance, false),
		params.Bool(quality.ParamMultiAspect, false),
		params.Bool(quality.ParamQualityFocused, false),
	)
	return image.GenerateRequest{
		TaskID:     t.ID + keySuffix,
		Prompt:     prompt,
		Size:       params.Size(),
		Background: backgroundFor(params.Mode()),
	}
}

// superviseQuality runs the quality-retry loop. Failures here are fully
// absorbed: the task still completes with the image produced by the main
// pipeline.
func (o *Orchestrator) superviseQuality(ctx context.Context, t domain.Task, key string) (assessment *domain.QualityAssessment, finalKey string) {
	finalKey = key
	defer func() {
		if r := recover(); r != nil {
			o.logger.Error().
				Str("task_id", t.ID).
				Interface("panic", r).
				Msg("task: quality assessment panicked, keeping original image")
			assessment = nil
			finalKey = key
		}
	}()

	imagePath, err := o.files.Path(key)
	if err != nil {
		return nil, key
	}

	maxRetries := t.Parameters.Int("maxQualityRetries", o.opts.MaxQualityRetries)
	retrySeq := 0
	regen := func(ctx context.Context, enhanced domain.Params) (string, error) {
		retrySeq++
		gen, ok := o.providers.Lookup(t.Provider)
		if !ok {
			return "", fmt.Errorf("provider %s not configured", t.Provider)
		}
		req := o.buildRequest(t, enhanced, fmt.Sprintf("_retry_%d", retrySeq))
		asset, err := gen.Generate(ctx, req)
		if err != nil {
			return "", err
		}
		retryKey, err := o.persist(ctx, fmt.Sprintf("%s_retry_%d.png", t.ID, retrySeq), asset, enhanced.Size())
		if err != nil {
			return "", err
		}
		return o.files.Path(retryKey)
	}

	outcome := o.supervisor.AssessAndRetry(ctx, imagePath, t.Parameters, maxRetries, regen)
	if outcome.FinalPath != imagePath {
		finalKey = filepath.Base(outcome.FinalPath)
	}
	return &domain.QualityAssessment{
		Acceptable:     outcome.Acceptable,
		Retries:        outcome.Retries,
		FinalImagePath: o.files.PublicURL(finalKey),
	}, finalKey
}

func (o *Orchestrator) userSemaphore(userID string) *semaphore.Weighted {
	o.userMu.Lock()
	defer o.userMu.Unlock()
	sem, ok := o.userSems[userID]
	if !ok {
		sem = semaphore.NewWeighted(int64(o.opts.PerUserConcurrency))
		o.userSems[userID] = sem
	}
	return sem
}

func (o *Orchestrator) publicURL(key string) string {
	return o.opts.PublicBaseURL + o.files.PublicURL(key)
}

// backgroundFor maps a generation mode to the provider background hint:
// Apple mode wants transparency, the clipping modes want a white canvas, and
// standard mode leaves the provider default in place.
func backgroundFor(mode domain.GenerationMode) image.BackgroundMode {
	switch mode {
	case domain.ModeApple:
		return image.BackgroundTransparent
	case domain.ModeHighContrastClip, domain.ModeUniversal:
		return image.BackgroundWhite
	default:
		return image.BackgroundUnspecified
	}
}
