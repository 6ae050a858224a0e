package quality

import (
	"context"
	"errors"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"iconforge/internal/domain"
)

func TestAssessAndRetryAcceptsFirstPass(t *testing.T) {
	dir := t.TempDir()
	path := writePNG(t, dir, "good.png", sharpImage(600, 600))

	regenCalled := false
	outcome := NewSupervisor(nil).AssessAndRetry(context.Background(), path, domain.Params{"size": 512}, 2,
		func(ctx context.Context, params domain.Params) (string, error) {
			regenCalled = true
			return "", nil
		})

	assert.True(t, outcome.Acceptable)
	assert.Zero(t, outcome.Retries)
	assert.Equal(t, path, outcome.FinalPath)
	assert.False(t, regenCalled, "acceptable image should not trigger regeneration")
}

func TestAssessAndRetryRecoversAfterRegeneration(t *testing.T) {
	dir := t.TempDir()
	blurry := writePNG(t, dir, "blurry.png", flatImage(600, 600, color.RGBA{R: 128, G: 128, B: 128, A: 255}))
	sharp := writePNG(t, dir, "sharp.png", sharpImage(600, 600))

	var seen []domain.Params
	outcome := NewSupervisor(nil).AssessAndRetry(context.Background(), blurry, domain.Params{"size": 512}, 2,
		func(ctx context.Context, params domain.Params) (string, error) {
			seen = append(seen, params)
			return sharp, nil
		})

	assert.True(t, outcome.Acceptable)
	assert.Equal(t, 1, outcome.Retries)
	assert.Equal(t, sharp, outcome.FinalPath)
	require.Len(t, seen, 1)
	// First retry raises the requested size by 20%.
	assert.Equal(t, 614, seen[0].Int("size", 0))
}

func TestAssessAndRetryAbsorbsRegenerationFailure(t *testing.T) {
	dir := t.TempDir()
	blurry := writePNG(t, dir, "blurry.png", flatImage(600, 600, color.RGBA{R: 128, G: 128, B: 128, A: 255}))

	calls := 0
	outcome := NewSupervisor(nil).AssessAndRetry(context.Background(), blurry, domain.Params{"size": 512}, 2,
		func(ctx context.Context, params domain.Params) (string, error) {
			calls++
			return "", errors.New("provider down")
		})

	assert.False(t, outcome.Acceptable)
	assert.Equal(t, 2, outcome.Retries)
	assert.Equal(t, blurry, outcome.FinalPath, "failed retries keep the last candidate")
	assert.Equal(t, 2, calls)
}

func TestAssessAndRetryReturnsLastCandidateWhenExhausted(t *testing.T) {
	dir := t.TempDir()
	blurry := writePNG(t, dir, "blurry.png", flatImage(600, 600, color.RGBA{R: 128, G: 128, B: 128, A: 255}))
	stillBlurry := writePNG(t, dir, "still_blurry.png", flatImage(600, 600, color.RGBA{R: 130, G: 130, B: 130, A: 255}))

	outcome := NewSupervisor(nil).AssessAndRetry(context.Background(), blurry, domain.Params{"size": 512}, 1,
		func(ctx context.Context, params domain.Params) (string, error) {
			return stillBlurry, nil
		})

	assert.False(t, outcome.Acceptable)
	assert.Equal(t, 1, outcome.Retries)
	assert.Equal(t, stillBlurry, outcome.FinalPath)
}

func TestAssessAndRetryZeroBudget(t *testing.T) {
	dir := t.TempDir()
	blurry := writePNG(t, dir, "blurry.png", flatImage(600, 600, color.RGBA{R: 128, G: 128, B: 128, A: 255}))

	outcome := NewSupervisor(nil).AssessAndRetry(context.Background(), blurry, domain.Params{"size": 512}, 0,
		func(ctx context.Context, params domain.Params) (string, error) {
			t.Fatal("regeneration must not run with a zero budget")
			return "", nil
		})

	assert.False(t, outcome.Acceptable)
	assert.Zero(t, outcome.Retries)
}

func TestEnhanceParametersFirstRetry(t *testing.T) {
	params := domain.Params{"size": 1024, "generationMode": "high_contrast_clip"}
	enhanced := EnhanceParameters(params, 1)

	assert.Equal(t, 1228, enhanced.Int("size", 0))
	assert.InDelta(t, 1.2, enhanced.Float(ParamQualityLevel, 0), 1e-9)
	assert.False(t, enhanced.Bool(ParamQualityFocused, false))
	// The source map stays untouched.
	assert.Equal(t, 1024, params.Int("size", 0))
}

func TestEnhanceParametersUniversalMode(t *testing.T) {
	params := domain.Params{"size": 1024, "generationMode": "universal"}

	first := EnhanceParameters(params, 1)
	assert.InDelta(t, 1.3, first.Float(ParamQualityLevel, 0), 1e-9)
	assert.True(t, first.Bool(ParamHIGCompliance, false))

	second := EnhanceParameters(params, 2)
	assert.True(t, second.Bool(ParamMultiAspect, false))
	assert.True(t, second.Bool(ParamQualityFocused, false))
}

func TestEnhanceParametersSizeCap(t *testing.T) {
	nearCap := EnhanceParameters(domain.Params{"size": 1300}, 1)
	assert.Equal(t, 1440, nearCap.Int("size", 0))

	atCeiling := EnhanceParameters(domain.Params{"size": 1400}, 1)
	assert.Equal(t, 1400, atCeiling.Int("size", 0), "sizes at 1400 or above stay put")
}
