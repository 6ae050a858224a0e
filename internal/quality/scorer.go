package quality

import (
	"fmt"
	"image"
	"math"
	"os"
	"strconv"
	"strings"

	_ "image/jpeg"
	_ "image/png"
)

// Metric weights for the overall score.
const (
	weightResolution   = 0.20
	weightClarity      = 0.25
	weightContrast     = 0.20
	weightColorBalance = 0.15
	weightAspect       = 0.20
)

// acceptOverallFloor is the overall score a result must reach on top of the
// per-metric gates.
const acceptOverallFloor = 0.6

// maxResolution is the edge length that earns a full resolution score.
const maxResolution = 1440

// clarityNorm divides the Laplacian variance; below roughly 100 an image
// reads as blurry, above 500 as sharp.
const clarityNorm = 500.0

// contrastNorm is the mid-level RMS a channel needs for a full contrast
// score.
const contrastNorm = 128.0

// Metrics is the scored breakdown for one image.
type Metrics struct {
	ResolutionScore   float64  `json:"resolution_score"`
	ClarityScore      float64  `json:"clarity_score"`
	ContrastScore     float64  `json:"contrast_score"`
	ColorBalanceScore float64  `json:"color_balance_score"`
	OverallScore      float64  `json:"overall_score"`
	IsAcceptable      bool     `json:"is_acceptable"`
	Recommendations   []string `json:"recommendations"`
}

// Thresholds holds the per-request acceptance gates.
type Thresholds struct {
	MinResolution  int
	MinContrast    float64
	MinClarity     float64
	ExpectedAspect string
}

// DefaultThresholds returns the standard icon acceptance gates.
func DefaultThresholds() Thresholds {
	return Thresholds{MinResolution: 512, MinContrast: 0.2, MinClarity: 0.5, ExpectedAspect: "1:1"}
}

func (t Thresholds) normalized() Thresholds {
	if t.MinResolution <= 0 {
		t.MinResolution = 512
	}
	if t.MinContrast <= 0 {
		t.MinContrast = 0.2
	}
	if t.MinClarity <= 0 {
		t.MinClarity = 0.5
	}
	if t.ExpectedAspect == "" {
		t.ExpectedAspect = "1:1"
	}
	return t
}

// ScoreFile decodes the image at path and scores it. Any decode failure
// fails closed: all scores zero and not acceptable.
func ScoreFile(path string, t Thresholds) Metrics {
	f, err := os.Open(path)
	if err != nil {
		return failedMetrics(err)
	}
	defer f.Close()
	img, _, err := image.Decode(f)
	if err != nil {
		return failedMetrics(err)
	}
	return ScoreImage(img, t)
}

// ScoreImage scores a decoded image against the thresholds: a weighted blend
// of resolution, clarity, contrast, color balance and aspect fit, gated by
// per-metric floors.
func ScoreImage(img image.Image, t Thresholds) Metrics {
	t = t.normalized()
	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()

	gray, channels := flatten(img)
	m := Metrics{
		ResolutionScore:   resolutionScore(width, height, t.MinResolution),
		ClarityScore:      clarityScore(gray, width, height),
		ContrastScore:     contrastScore(channels),
		ColorBalanceScore: colorBalanceScore(img, channels),
	}
	aspect := aspectScore(width, height, t.ExpectedAspect)
	m.OverallScore = m.ResolutionScore*weightResolution +
		m.ClarityScore*weightClarity +
		m.ContrastScore*weightContrast +
		m.ColorBalanceScore*weightColorBalance +
		aspect*weightAspect

	resolutionOK := m.ResolutionScore >= 0.5
	clarityOK := m.ClarityScore >= t.MinClarity
	contrastOK := m.ContrastScore >= t.MinContrast
	m.IsAcceptable = resolutionOK && clarityOK && contrastOK && m.OverallScore >= acceptOverallFloor

	if !resolutionOK {
		m.Recommendations = append(m.Recommendations, fmt.Sprintf(
			"Image resolution may be blurry, should not be lower than %dx%d. For better quality, recommend using higher resolution images (e.g. > 1024x1024).",
			t.MinResolution, t.MinResolution))
	}
	if !clarityOK {
		m.Recommendations = append(m.Recommendations, fmt.Sprintf(
			"Image might be blurry, low clarity (<%g), try improving clarity parameters.", t.MinClarity))
	}
	if !contrastOK {
		m.Recommendations = append(m.Recommendations, fmt.Sprintf(
			"Image contrast is low (<%g), consider enhancing image contrast.", t.MinContrast))
	}
	if m.OverallScore < acceptOverallFloor {
		m.Recommendations = append(m.Recommendations, fmt.Sprintf(
			"Overall quality insufficient, consider regenerating or applying improvements. Current overall score: %.2f/1.0", m.OverallScore))
	}
	if len(m.Recommendations) == 0 {
		m.Recommendations = []string{"Icon quality is excellent, meets all quality standards."}
	}
	return m
}

func failedMetrics(err error) Metrics {
	return Metrics{
		IsAcceptable:    false,
		Recommendations: []string{fmt.Sprintf("Unable to assess image quality: %v", err)},
	}
}

// channelStats accumulates per-channel sums over all pixels in 0..255 space.
type channelStats struct {
	sum    [3]float64
	sumSq  [3]float64
	pixels float64
}

func (s *channelStats) mean(c int) float64 {
	if s.pixels == 0 {
		return 0
	}
	return s.sum[c] / s.pixels
}

func (s *channelStats) rms(c int) float64 {
	if s.pixels == 0 {
		return 0
	}
	return math.Sqrt(s.sumSq[c] / s.pixels)
}

// flatten walks the image once, producing a grayscale plane for the
// Laplacian and per-channel statistics for contrast and balance.
func flatten(img image.Image) ([]float64, *channelStats) {
	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	gray := make([]float64, width*height)
	stats := &channelStats{pixels: float64(width * height)}

	i := 0
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			r16, g16, b16, _ := img.At(x, y).RGBA()
			r := float64(r16 >> 8)
			g := float64(g16 >> 8)
			b := float64(b16 >> 8)
			stats.sum[0] += r
			stats.sum[1] += g
			stats.sum[2] += b
			stats.sumSq[0] += r * r
			stats.sumSq[1] += g * g
			stats.sumSq[2] += b * b
			// ITU-R 601 luma, same conversion PIL uses for mode L.
			gray[i] = 0.299*r + 0.587*g + 0.114*b
			i++
		}
	}
	return gray, stats
}

// resolutionScore scales the shorter edge linearly from 0.5 at the minimum
// to 1.0 at 1440; anything below the minimum scores zero.
func resolutionScore(width, height, minResolution int) float64 {
	edge := width
	if height < edge {
		edge = height
	}
	switch {
	case edge < minResolution:
		return 0.0
	case edge >= maxResolution:
		return 1.0
	default:
		score := 0.5 + float64(edge-minResolution)/float64(maxResolution-minResolution)*0.5
		return clamp01(score)
	}
}

// clarityScore is the variance of the 4-neighbour Laplacian over the
// grayscale plane, normalized so that 500 and above reads as fully sharp.
func clarityScore(gray []float64, width, height int) float64 {
	if width < 3 || height < 3 {
		return 0.0
	}
	var sum, sumSq float64
	n := 0
	for y := 1; y < height-1; y++ {
		for x := 1; x < width-1; x++ {
			idx := y*width + x
			lap := gray[idx-width] + gray[idx+width] + gray[idx-1] + gray[idx+1] - 4*gray[idx]
			sum += lap
			sumSq += lap * lap
			n++
		}
	}
	mean := sum / float64(n)
	variance := sumSq/float64(n) - mean*mean
	return clamp01(variance / clarityNorm)
}

// contrastScore averages the per-channel RMS and normalizes against a
// mid-level value of 128.
func contrastScore(stats *channelStats) float64 {
	avg := (stats.rms(0) + stats.rms(1) + stats.rms(2)) / 3
	return clamp01(avg / contrastNorm)
}

// colorBalanceScore rewards channels whose means sit close together.
// Grayscale images are balanced by definition.
func colorBalanceScore(img image.Image, stats *channelStats) float64 {
	switch img.(type) {
	case *image.Gray, *image.Gray16:
		return 1.0
	}
	means := [3]float64{stats.mean(0), stats.mean(1), stats.mean(2)}
	avg := (means[0] + means[1] + means[2]) / 3
	variance := ((means[0]-avg)*(means[0]-avg) + (means[1]-avg)*(means[1]-avg) + (means[2]-avg)*(means[2]-avg)) / 3
	denom := math.Max(avg, 128.0)
	normalized := 0.0
	if avg != 0 {
		normalized = variance / (denom * denom)
	}
	return clamp01(1 / (1 + normalized))
}

// aspectScore measures how close the actual ratio sits to the expected one.
// Square expectations tolerate at most a 50% deviation.
func aspectScore(width, height int, expected string) float64 {
	actual := 1.0
	if height != 0 {
		actual = float64(width) / float64(height)
	}
	if expected == "1:1" {
		return math.Max(0.0, 1.0-2*math.Abs(actual-1.0))
	}
	parts := strings.Split(expected, ":")
	if len(parts) != 2 {
		return 0.5
	}
	w, errW := strconv.Atoi(strings.TrimSpace(parts[0]))
	h, errH := strconv.Atoi(strings.TrimSpace(parts[1]))
	if errW != nil || errH != nil || w <= 0 || h <= 0 {
		return 0.5
	}
	want := float64(w) / float64(h)
	return math.Max(0.0, 1.0-math.Abs(actual-want)/want)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
