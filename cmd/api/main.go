package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"iconforge/internal/http/handlers"
	httpapi "iconforge/internal/http/httpapi"
	"iconforge/internal/infra"
	"iconforge/internal/providers/image"
	"iconforge/internal/quality"
	"iconforge/internal/quota"
	"iconforge/internal/storage"
	"iconforge/internal/task"
)

func main() {
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv)

	files, err := storage.NewFileStore(cfg.StoragePath, cfg.StorageBaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize storage")
	}

	// Provider registry. The local generator is always present so the
	// fallback chain can terminate even with no credentials configured.
	retry := image.DefaultRetryPolicy()
	providers := image.Registry{
		image.ProviderLocal: image.NewLocalGenerator(&logger),
	}
	if cfg.DashScopeConfigured() {
		providers[image.ProviderDashScope] = image.NewDashScopeGenerator(image.DashScopeOptions{
			APIKey:  cfg.DashScopeAPIKey,
			BaseURL: cfg.DashScopeBaseURL,
			Model:   cfg.DashScopeModel,
			Logger:  &logger,
			Retry:   retry,
		})
	}
	if cfg.ModelScopeConfigured() {
		providers[image.ProviderModelScope] = image.NewModelScopeGenerator(image.ModelScopeOptions{
			APIKey:  cfg.ModelScopeAPIKey,
			BaseURL: cfg.ModelScopeBaseURL,
			Model:   cfg.ModelScopeModel,
			Logger:  &logger,
			Retry:   retry,
		})
	}
	router := image.NewRouter(cfg.DashScopeConfigured(), cfg.ModelScopeConfigured())

	quotas := quota.NewManager(quota.Options{
		FreeDailyLimit: cfg.FreeDailyLimit,
		ProDailyLimit:  cfg.ProDailyLimit,
		Bypass:         cfg.BypassQuota,
		Logger:         &logger,
	})

	orch := task.NewOrchestrator(
		task.NewStore(),
		quotas,
		router,
		providers,
		files,
		quality.NewSupervisor(&logger),
		task.Options{
			GlobalConcurrency:  cfg.GlobalConcurrency,
			PerUserConcurrency: cfg.PerUserConcurrency,
			MaxQualityRetries:  cfg.MaxQualityRetries,
			PublicBaseURL:      cfg.PublicBaseURL,
			Logger:             &logger,
		},
	)

	app := handlers.NewApp(orch, quotas, files, &logger)
	apiRouter := httpapi.NewRouter(app, httpapi.Options{
		Logger:          logger,
		RateLimitPerMin: cfg.RateLimitPerMin,
		StaticDir:       files.BasePath(),
	})

	server := infra.NewHTTPServer(cfg, apiRouter)

	// Credentials themselves never reach the log; only whether each remote
	// provider is usable.
	logger.Info().
		Str("env", cfg.AppEnv).
		Bool("dashscope_configured", cfg.DashScopeConfigured()).
		Bool("modelscope_configured", cfg.ModelScopeConfigured()).
		Int("free_daily_limit", cfg.FreeDailyLimit).
		Bool("quota_bypass", cfg.BypassQuota).
		Msg("starting icon generation service")

	go func() {
		logger.Info().Msgf("API listening on :%s", cfg.Port)
		if err := server.Start(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTPIdleTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("failed to shutdown server")
	}
	orch.WaitAll()
	logger.Info().Msg("server stopped")
}
