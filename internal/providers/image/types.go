package image

import (
	"context"
	"math"
)

// BackgroundMode conveys the background treatment requested from a provider.
type BackgroundMode string

const (
	// BackgroundUnspecified leaves the provider's default (contrast)
	// background in place.
	BackgroundUnspecified BackgroundMode = ""
	// BackgroundTransparent requests an alpha-preserving transparent
	// background.
	BackgroundTransparent BackgroundMode = "transparent"
	// BackgroundWhite requests a pure white background to maximize clipping
	// contrast.
	BackgroundWhite BackgroundMode = "white"
)

// GenerateRequest describes a normalized request passed to any provider
// adapter. Size is the caller's square target edge, already clamped into
// [256, 1440]; adapters snap it to their own supported buckets.
type GenerateRequest struct {
	TaskID         string
	Prompt         string
	NegativePrompt string
	Size           int
	Background     BackgroundMode
}

// Asset represents a generated image. Data always carries the decoded bytes;
// URL is retained when the provider returned a remote reference.
type Asset struct {
	URL    string
	Data   []byte
	Format string
	Width  int
	Height int
}

// Generator is the contract implemented by all image providers.
type Generator interface {
	Generate(ctx context.Context, req GenerateRequest) (*Asset, error)
	Name() string
}

// Registry maps provider names to adapters. Selection happens through the
// Router; the registry is the closed set of configured variants.
type Registry map[string]Generator

// Lookup returns the adapter registered under name.
func (r Registry) Lookup(name string) (Generator, bool) {
	g, ok := r[name]
	return g, ok
}

// sizeBucket is one fixed aspect-ratio output size supported upstream.
type sizeBucket struct {
	width  int
	height int
}

func (b sizeBucket) ratio() float64 {
	return float64(b.width) / float64(b.height)
}

// supportedBuckets is the fixed table of upstream output sizes (1:1, 16:9,
// 9:16, 4:3, 3:4, 3:2, 2:3).
var supportedBuckets = []sizeBucket{
	{1328, 1328},
	{1664, 928},
	{928, 1664},
	{1472, 1140},
	{1140, 1472},
	{1584, 1056},
	{1056, 1584},
}

// maxBucketEdge is the longest edge any bucket supports.
const maxBucketEdge = 1664

// snapToBucket picks the supported bucket whose aspect ratio is closest to
// the requested one.
func snapToBucket(width, height int) sizeBucket {
	requested := 1.0
	if height != 0 {
		requested = float64(width) / float64(height)
	}
	best := supportedBuckets[0]
	bestDiff := math.Abs(best.ratio() - requested)
	for _, b := range supportedBuckets[1:] {
		if diff := math.Abs(b.ratio() - requested); diff < bestDiff {
			best, bestDiff = b, diff
		}
	}
	return best
}

// enhanceSize scales the requested dimensions by factor (generating larger
// and downscaling improves perceived sharpness), caps the result at the
// largest supported edge, then snaps to the nearest bucket.
func enhanceSize(width, height int, factor float64) sizeBucket {
	w := int(float64(width) * factor)
	h := int(float64(height) * factor)
	if w > maxBucketEdge || h > maxBucketEdge {
		scale := float64(maxBucketEdge) / math.Max(float64(w), float64(h))
		w = int(float64(w) * scale)
		h = int(float64(h) * scale)
	}
	return snapToBucket(w, h)
}
