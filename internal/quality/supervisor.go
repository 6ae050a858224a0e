package quality

import (
	"context"
	"io"

	"github.com/rs/zerolog"

	"iconforge/internal/domain"
	"iconforge/internal/infra"
)

// Parameter keys written by retry enhancement and read back by the
// regeneration path when composing prompts.
const (
	ParamQualityLevel   = "qualityLevel"
	ParamHIGCompliance  = "higCompliance"
	ParamMultiAspect    = "multiAspectOptimization"
	ParamQualityFocused = "qualityFocused"
)

// RegenerateFunc produces a replacement image using the enhanced parameters
// and returns the path of the new file.
type RegenerateFunc func(ctx context.Context, params domain.Params) (string, error)

// Outcome is the supervisor's verdict for one image.
type Outcome struct {
	Acceptable bool
	Retries    int
	FinalPath  string
	Metrics    Metrics
}

// Supervisor scores a generated image and drives bounded regeneration when
// the score falls short. Regeneration failures never abort the loop; the
// last scored image is always returned.
type Supervisor struct {
	logger *infra.Logger
}

// NewSupervisor constructs a supervisor. A nil logger discards output.
func NewSupervisor(logger *infra.Logger) *Supervisor {
	if logger == nil {
		discard := zerolog.New(io.Discard)
		l := infra.Logger(discard)
		logger = &l
	}
	return &Supervisor{logger: logger}
}

// AssessAndRetry scores imagePath against the request's thresholds and, when
// unacceptable, regenerates with progressively enhanced parameters up to
// maxRetries times. The returned verdict always reflects a fresh score of
// the returned path.
func (s *Supervisor) AssessAndRetry(ctx context.Context, imagePath string, params domain.Params, maxRetries int, regen RegenerateFunc) Outcome {
	if maxRetries < 0 {
		maxRetries = 0
	}
	thresholds := thresholdsFrom(params)

	metrics := ScoreFile(imagePath, thresholds)
	s.logger.Info().
		Int("attempt", 0).
		Float64("overall_score", metrics.OverallScore).
		Bool("acceptable", metrics.IsAcceptable).
		Msg("quality: scored image")
	if metrics.IsAcceptable {
		return Outcome{Acceptable: true, Retries: 0, FinalPath: imagePath, Metrics: metrics}
	}

	retry := 0
	for retry < maxRetries {
		if ctx.Err() != nil {
			break
		}
		retry++
		enhanced := EnhanceParameters(params, retry)
		newPath, err := regen(ctx, enhanced)
		if err != nil {
			// A failed regeneration burns the retry; the previous image
			// remains the candidate.
			s.logger.Warn().Err(err).Int("retry", retry).Msg("quality: regeneration failed")
			continue
		}
		if newPath != "" {
			imagePath = newPath
		}
		metrics = ScoreFile(imagePath, thresholds)
		s.logger.Info().
			Int("attempt", retry).
			Float64("overall_score", metrics.OverallScore).
			Bool("acceptable", metrics.IsAcceptable).
			Msg("quality: scored image")
		if metrics.IsAcceptable {
			return Outcome{Acceptable: true, Retries: retry, FinalPath: imagePath, Metrics: metrics}
		}
	}

	s.logger.Info().
		Int("retries", retry).
		Float64("overall_score", metrics.OverallScore).
		Msg("quality: retries exhausted, returning last candidate")
	return Outcome{Acceptable: metrics.IsAcceptable, Retries: retry, FinalPath: imagePath, Metrics: metrics}
}

// EnhanceParameters derives a regeneration parameter set for the given retry
// pass. The first pass raises the target size and mode-specific quality
// levels; the second layers on composition and detail hints.
func EnhanceParameters(params domain.Params, retry int) domain.Params {
	enhanced := params.Clone()
	mode := params.Mode()

	if retry >= 1 {
		size := enhanced.Int("size", domain.DefaultTargetSize)
		if size < 1400 {
			upscaled := int(float64(size) * 1.2)
			if upscaled > domain.MaxTargetSize {
				upscaled = domain.MaxTargetSize
			}
			enhanced["size"] = upscaled
		}
		switch mode {
		case domain.ModeHighContrastClip:
			enhanced[ParamQualityLevel] = 1.2
		case domain.ModeUniversal:
			enhanced[ParamQualityLevel] = 1.3
			enhanced[ParamHIGCompliance] = true
		}
	}
	if retry >= 2 {
		if mode == domain.ModeUniversal {
			enhanced[ParamMultiAspect] = true
			enhanced[ParamHIGCompliance] = true
		}
		enhanced[ParamQualityFocused] = true
	}
	return enhanced
}

func thresholdsFrom(params domain.Params) Thresholds {
	defaults := DefaultThresholds()
	return Thresholds{
		MinResolution:  params.Int("size", domain.DefaultTargetSize),
		MinContrast:    params.Float("minContrast", defaults.MinContrast),
		MinClarity:     params.Float("minClarity", defaults.MinClarity),
		ExpectedAspect: params.String("aspectRatio", defaults.ExpectedAspect),
	}
}
