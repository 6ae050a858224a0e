package image

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"testing"
)

func testPNG(t *testing.T, width, height int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.SetRGBA(x, y, color.RGBA{R: 200, G: 100, B: 50, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode test png: %v", err)
	}
	return buf.Bytes()
}

func TestDashScopeGenerateInlineImage(t *testing.T) {
	pngData := testPNG(t, 8, 8)
	var captured dashScopeRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("authorization = %q", got)
		}
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Errorf("decode request: %v", err)
		}
		ref := "data:image/png;base64," + base64.StdEncoding.EncodeToString(pngData)
		json.NewEncoder(w).Encode(map[string]any{
			"output": map[string]any{
				"choices": []any{map[string]any{
					"message": map[string]any{
						"content": []any{map[string]any{"image": ref}},
					},
				}},
			},
			"request_id": "req-1",
		})
	}))
	defer srv.Close()

	g := NewDashScopeGenerator(DashScopeOptions{
		APIKey:       "test-key",
		BaseURL:      srv.URL,
		PromptExtend: true,
		HTTPClient:   srv.Client(),
		Retry:        fastRetry(1),
	})
	asset, err := g.Generate(context.Background(), GenerateRequest{
		TaskID:     "tsk_test",
		Prompt:     "blue rocket icon",
		Size:       1024,
		Background: BackgroundTransparent,
	})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if !bytes.Equal(asset.Data, pngData) {
		t.Fatalf("asset bytes do not match served image")
	}
	if asset.Width != 8 || asset.Height != 8 {
		t.Fatalf("dimensions = %dx%d, want 8x8", asset.Width, asset.Height)
	}

	if captured.Model != "qwen-image" {
		t.Fatalf("model = %q, want qwen-image", captured.Model)
	}
	if captured.Parameters.Size != "1328*1328" {
		t.Fatalf("size = %q, want 1328*1328", captured.Parameters.Size)
	}
	if captured.Parameters.Background != "transparent" {
		t.Fatalf("background = %q, want transparent", captured.Parameters.Background)
	}
	if captured.Parameters.ImageFormat != "png" {
		t.Fatalf("image_format = %q, want png", captured.Parameters.ImageFormat)
	}
	if captured.Parameters.PromptExtend == nil || !*captured.Parameters.PromptExtend {
		t.Fatalf("prompt_extend should be true")
	}
	if len(captured.Input.Messages) != 1 || captured.Input.Messages[0].Content[0].Text != "blue rocket icon" {
		t.Fatalf("unexpected message payload: %+v", captured.Input)
	}
}

func TestDashScopeGenerateDownloadsRemoteReference(t *testing.T) {
	pngData := testPNG(t, 4, 4)
	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	defer srv.Close()

	mux.HandleFunc("/image.png", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		w.Write(pngData)
	})
	mux.HandleFunc("/services/aigc/multimodal-generation/generation", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"output": map[string]any{
				"choices": []any{map[string]any{
					"message": map[string]any{
						"content": []any{map[string]any{"image": srv.URL + "/image.png"}},
					},
				}},
			},
		})
	})

	g := NewDashScopeGenerator(DashScopeOptions{
		APIKey:     "test-key",
		BaseURL:    srv.URL,
		HTTPClient: srv.Client(),
		Retry:      fastRetry(1),
	})
	asset, err := g.Generate(context.Background(), GenerateRequest{Prompt: "icon", Size: 512})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if asset.URL != srv.URL+"/image.png" {
		t.Fatalf("url = %q", asset.URL)
	}
	if !bytes.Equal(asset.Data, pngData) {
		t.Fatalf("downloaded bytes mismatch")
	}
}

func TestDashScopeGenerateRequiresCredentials(t *testing.T) {
	g := NewDashScopeGenerator(DashScopeOptions{})
	_, err := g.Generate(context.Background(), GenerateRequest{Prompt: "icon", Size: 512})
	if !errors.Is(err, ErrMissingAPIKey) {
		t.Fatalf("expected ErrMissingAPIKey, got %v", err)
	}
}

func TestDashScopeGenerateNoResult(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"output": map[string]any{"choices": []any{}}})
	}))
	defer srv.Close()

	g := NewDashScopeGenerator(DashScopeOptions{
		APIKey:     "test-key",
		BaseURL:    srv.URL,
		HTTPClient: srv.Client(),
		Retry:      fastRetry(1),
	})
	_, err := g.Generate(context.Background(), GenerateRequest{Prompt: "icon", Size: 512})
	if !errors.Is(err, ErrNoResult) {
		t.Fatalf("expected ErrNoResult, got %v", err)
	}
}

func TestDashScopeGenerateUpstreamErrorCode(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"code": "InvalidParameter", "message": "bad size"})
	}))
	defer srv.Close()

	g := NewDashScopeGenerator(DashScopeOptions{
		APIKey:     "test-key",
		BaseURL:    srv.URL,
		HTTPClient: srv.Client(),
		Retry:      fastRetry(1),
	})
	_, err := g.Generate(context.Background(), GenerateRequest{Prompt: "icon", Size: 512})
	var upstream *UpstreamError
	if !errors.As(err, &upstream) {
		t.Fatalf("expected UpstreamError, got %v", err)
	}
}
