package image

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"math/rand"
	"strings"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"iconforge/internal/infra"
)

// localSeed keeps placeholder output reproducible for a given prompt and
// size.
const localSeed = 7

// LocalGenerator synthesizes a deterministic placeholder icon: a light
// canvas, a rounded accent rectangle, and the prompt text overlaid in the
// center. It never fails for well-formed input and serves as the terminal
// link of every fallback chain.
type LocalGenerator struct {
	logger *infra.Logger
}

// NewLocalGenerator constructs the fallback generator.
func NewLocalGenerator(logger *infra.Logger) *LocalGenerator {
	return &LocalGenerator{logger: ensureLogger(logger)}
}

// Name implements Generator.
func (g *LocalGenerator) Name() string { return ProviderLocal }

// Generate implements Generator.
func (g *LocalGenerator) Generate(ctx context.Context, req GenerateRequest) (*Asset, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	size := req.Size
	if size <= 0 {
		size = 1024
	}

	rng := rand.New(rand.NewSource(localSeed))
	img := image.NewRGBA(image.Rect(0, 0, size, size))
	canvas := color.RGBA{R: 240, G: 243, B: 248, A: 255}
	draw.Draw(img, img.Bounds(), &image.Uniform{C: canvas}, image.Point{}, draw.Src)

	accent := color.RGBA{
		R: uint8(80 + rng.Intn(121)),
		G: uint8(80 + rng.Intn(121)),
		B: uint8(80 + rng.Intn(121)),
		A: 255,
	}
	inset := size / 16
	radius := size / 8
	fillRoundedRect(img, image.Rect(inset, inset, size-inset, size-inset), radius, accent)

	drawCenteredLabel(img, truncateLabel(req.Prompt, 30), size)

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("local: encode placeholder: %w", err)
	}
	g.logger.Debug().
		Str("task_id", req.TaskID).
		Int("size", size).
		Msg("local: synthesized placeholder image")
	return &Asset{Data: buf.Bytes(), Format: "image/png", Width: size, Height: size}, nil
}

// fillRoundedRect paints rect with corners rounded to radius.
func fillRoundedRect(img *image.RGBA, rect image.Rectangle, radius int, c color.RGBA) {
	if radius*2 > rect.Dx() {
		radius = rect.Dx() / 2
	}
	if radius*2 > rect.Dy() {
		radius = rect.Dy() / 2
	}
	r2 := radius * radius
	for y := rect.Min.Y; y < rect.Max.Y; y++ {
		for x := rect.Min.X; x < rect.Max.X; x++ {
			dx, dy := 0, 0
			if x < rect.Min.X+radius {
				dx = rect.Min.X + radius - x
			} else if x >= rect.Max.X-radius {
				dx = x - (rect.Max.X - radius - 1)
			}
			if y < rect.Min.Y+radius {
				dy = rect.Min.Y + radius - y
			} else if y >= rect.Max.Y-radius {
				dy = y - (rect.Max.Y - radius - 1)
			}
			if dx*dx+dy*dy <= r2 {
				img.SetRGBA(x, y, c)
			}
		}
	}
}

func drawCenteredLabel(img *image.RGBA, label string, size int) {
	if label == "" {
		return
	}
	face := basicfont.Face7x13
	drawer := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(color.RGBA{R: 255, G: 255, B: 255, A: 245}),
		Face: face,
	}
	width := drawer.MeasureString(label)
	drawer.Dot = fixed.Point26_6{
		X: fixed.I(size)/2 - width/2,
		Y: fixed.I(size/2 + face.Height/2),
	}
	drawer.DrawString(label)
}

func truncateLabel(s string, limit int) string {
	s = strings.TrimSpace(s)
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit]) + "..."
}

var _ Generator = (*LocalGenerator)(nil)
