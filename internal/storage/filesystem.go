package storage

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"strings"

	xdraw "golang.org/x/image/draw"

	_ "image/jpeg"
)

// FileStore persists generated assets onto the local filesystem and maps
// storage keys to the public URL space they are served from.
type FileStore struct {
	basePath string
	baseURL  string
}

// NewFileStore initializes a FileStore rooted at basePath. Keys resolve to
// public URLs under baseURL (for example "/static").
func NewFileStore(basePath, baseURL string) (*FileStore, error) {
	basePath = strings.TrimSpace(basePath)
	if basePath == "" {
		return nil, errors.New("storage: base path is required")
	}
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("storage: ensure base path: %w", err)
	}
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		baseURL = "/static"
	}
	return &FileStore{basePath: basePath, baseURL: baseURL}, nil
}

// BasePath returns the configured root directory.
func (s *FileStore) BasePath() string {
	if s == nil {
		return ""
	}
	return s.basePath
}

// Write persists the provided bytes at the given relative key and returns the
// canonicalized storage key. Keys are cleaned to prevent directory traversal.
func (s *FileStore) Write(ctx context.Context, key string, data []byte) (string, error) {
	if s == nil {
		return "", errors.New("storage: no store configured")
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	cleanKey, err := sanitizeKey(key)
	if err != nil {
		return "", err
	}
	fullPath := filepath.Join(s.basePath, filepath.FromSlash(cleanKey))
	if err := os.MkdirAll(filepath.Dir(fullPath), 0o755); err != nil {
		return "", fmt.Errorf("storage: ensure directory: %w", err)
	}
	if err := os.WriteFile(fullPath, data, 0o644); err != nil {
		return "", fmt.Errorf("storage: write file: %w", err)
	}
	return cleanKey, nil
}

// Path resolves a key to its absolute filesystem location.
func (s *FileStore) Path(key string) (string, error) {
	if s == nil {
		return "", errors.New("storage: no store configured")
	}
	cleanKey, err := sanitizeKey(key)
	if err != nil {
		return "", err
	}
	return filepath.Join(s.basePath, filepath.FromSlash(cleanKey)), nil
}

// PublicURL maps a storage key to the URL path it is served under.
func (s *FileStore) PublicURL(key string) string {
	cleanKey, err := sanitizeKey(key)
	if err != nil {
		return ""
	}
	return s.baseURL + "/" + cleanKey
}

// KeyFromURL inverts PublicURL. The boolean reports whether the URL belongs
// to this store's public space.
func (s *FileStore) KeyFromURL(url string) (string, bool) {
	prefix := s.baseURL + "/"
	if !strings.HasPrefix(url, prefix) {
		return "", false
	}
	cleanKey, err := sanitizeKey(strings.TrimPrefix(url, prefix))
	if err != nil {
		return "", false
	}
	return cleanKey, true
}

// Resize re-renders the stored image so the output is exactly target pixels
// square: the source is scaled until its shorter edge matches the target,
// then center-cropped. Output is always PNG regardless of the input format.
func (s *FileStore) Resize(ctx context.Context, key string, target int) error {
	if s == nil {
		return errors.New("storage: no store configured")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if target <= 0 {
		return fmt.Errorf("storage: invalid target size %d", target)
	}
	path, err := s.Path(key)
	if err != nil {
		return err
	}
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("storage: open image: %w", err)
	}
	src, _, err := image.Decode(f)
	f.Close()
	if err != nil {
		return fmt.Errorf("storage: decode image: %w", err)
	}

	bounds := src.Bounds()
	if bounds.Dx() == target && bounds.Dy() == target {
		return nil
	}

	scale := float64(target) / float64(minInt(bounds.Dx(), bounds.Dy()))
	scaledW := int(float64(bounds.Dx())*scale + 0.5)
	scaledH := int(float64(bounds.Dy())*scale + 0.5)
	if scaledW < target {
		scaledW = target
	}
	if scaledH < target {
		scaledH = target
	}
	scaled := image.NewRGBA(image.Rect(0, 0, scaledW, scaledH))
	xdraw.CatmullRom.Scale(scaled, scaled.Bounds(), src, bounds, xdraw.Over, nil)

	offsetX := (scaledW - target) / 2
	offsetY := (scaledH - target) / 2
	cropped := scaled.SubImage(image.Rect(offsetX, offsetY, offsetX+target, offsetY+target))

	out, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("storage: rewrite image: %w", err)
	}
	defer out.Close()
	if err := png.Encode(out, cropped); err != nil {
		return fmt.Errorf("storage: encode image: %w", err)
	}
	return nil
}

// sanitizeKey normalizes a key and prevents escaping the storage root.
func sanitizeKey(key string) (string, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return "", errors.New("storage: key is required")
	}
	key = strings.ReplaceAll(key, "\\", "/")
	key = strings.TrimPrefix(key, "./")
	key = strings.TrimLeft(key, "/")
	cleaned := filepath.Clean(key)
	cleaned = strings.ReplaceAll(cleaned, "\\", "/")
	if cleaned == "." || strings.HasPrefix(cleaned, "../") {
		return "", errors.New("storage: invalid key")
	}
	return cleaned, nil
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
