package image

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"image"
	"io"
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"iconforge/internal/infra"
)

// DashScopeOptions configures the synchronous DashScope adapter.
type DashScopeOptions struct {
	APIKey       string
	BaseURL      string
	Model        string
	PromptExtend bool
	Watermark    bool
	HTTPClient   *http.Client
	Logger       *infra.Logger
	Retry        RetryPolicy
}

// DashScopeGenerator calls DashScope's qwen-image multimodal-generation API
// in synchronous mode: one POST, one image out of the first response choice.
type DashScopeGenerator struct {
	apiKey       string
	baseURL      string
	model        string
	promptExtend bool
	watermark    bool
	client       *apiClient
	logger       *infra.Logger
}

type dashScopeRequest struct {
	Model      string          `json:"model"`
	Input      dashScopeInput  `json:"input"`
	Parameters dashScopeParams `json:"parameters"`
}

type dashScopeInput struct {
	Messages []dashScopeMessage `json:"messages"`
}

type dashScopeMessage struct {
	Role    string             `json:"role"`
	Content []dashScopeContent `json:"content"`
}

type dashScopeContent struct {
	Text string `json:"text,omitempty"`
}

type dashScopeParams struct {
	Size           string `json:"size,omitempty"`
	NegativePrompt string `json:"negative_prompt,omitempty"`
	PromptExtend   *bool  `json:"prompt_extend,omitempty"`
	Watermark      *bool  `json:"watermark,omitempty"`
	Background     string `json:"background,omitempty"`
	ImageFormat    string `json:"image_format,omitempty"`
}

type dashScopeResponse struct {
	Output struct {
		Choices []struct {
			Message struct {
				Content []struct {
					Image string `json:"image"`
				} `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	} `json:"output"`
	RequestID string `json:"request_id"`
	Code      string `json:"code"`
	Message   string `json:"message"`
}

// NewDashScopeGenerator constructs the adapter with sane defaults.
func NewDashScopeGenerator(opts DashScopeOptions) *DashScopeGenerator {
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://dashscope.aliyuncs.com/api/v1"
	}
	model := strings.TrimSpace(opts.Model)
	if model == "" {
		model = "qwen-image"
	}
	return &DashScopeGenerator{
		apiKey:       strings.TrimSpace(opts.APIKey),
		baseURL:      baseURL,
		model:        model,
		promptExtend: opts.PromptExtend,
		watermark:    opts.Watermark,
		client:       newAPIClient(ProviderDashScope, opts.HTTPClient, opts.Retry),
		logger:       ensureLogger(opts.Logger),
	}
}

// Name implements Generator.
func (g *DashScopeGenerator) Name() string { return ProviderDashScope }

// HasCredentials reports whether the adapter can perform remote calls.
func (g *DashScopeGenerator) HasCredentials() bool { return g.apiKey != "" }

// Generate implements Generator.
func (g *DashScopeGenerator) Generate(ctx context.Context, req GenerateRequest) (*Asset, error) {
	if !g.HasCredentials() {
		return nil, ErrMissingAPIKey
	}
	prompt := strings.TrimSpace(req.Prompt)
	if prompt == "" {
		return nil, fmt.Errorf("dashscope: prompt is required")
	}
	bucket := snapToBucket(req.Size, req.Size)

	extend := g.promptExtend
	watermark := g.watermark
	payload := dashScopeRequest{
		Model: g.model,
		Input: dashScopeInput{Messages: []dashScopeMessage{{
			Role:    "user",
			Content: []dashScopeContent{{Text: prompt}},
		}}},
		Parameters: dashScopeParams{
			Size:         fmt.Sprintf("%d*%d", bucket.width, bucket.height),
			PromptExtend: &extend,
			Watermark:    &watermark,
		},
	}
	if neg := strings.TrimSpace(req.NegativePrompt); neg != "" {
		payload.Parameters.NegativePrompt = neg
	}
	if req.Background != BackgroundUnspecified {
		payload.Parameters.Background = string(req.Background)
		// Only PNG output preserves the alpha channel upstream.
		payload.Parameters.ImageFormat = "png"
	}

	endpoint := g.baseURL + "/services/aigc/multimodal-generation/generation"
	headers := map[string]string{"Authorization": "Bearer " + g.apiKey}
	var decoded dashScopeResponse
	if err := g.client.postJSON(ctx, endpoint, headers, payload, &decoded); err != nil {
		return nil, err
	}
	if decoded.Code != "" {
		return nil, &UpstreamError{Provider: ProviderDashScope, Status: http.StatusOK, Message: fmt.Sprintf("%s (%s)", decoded.Message, decoded.Code)}
	}
	ref := firstChoiceImage(decoded)
	if ref == "" {
		return nil, fmt.Errorf("%w: dashscope request %s", ErrNoResult, decoded.RequestID)
	}
	asset, err := materializeReference(ctx, g.client, ref)
	if err != nil {
		return nil, err
	}
	g.logger.Debug().
		Str("model", g.model).
		Str("request_id", decoded.RequestID).
		Int("width", asset.Width).
		Int("height", asset.Height).
		Msg("dashscope: generated image asset")
	return asset, nil
}

func firstChoiceImage(resp dashScopeResponse) string {
	for _, choice := range resp.Output.Choices {
		for _, content := range choice.Message.Content {
			if ref := strings.TrimSpace(content.Image); ref != "" {
				return ref
			}
		}
	}
	return ""
}

// materializeReference resolves an image reference into bytes: inline data
// URIs are decoded, remote URLs are downloaded under the retry policy.
func materializeReference(ctx context.Context, client *apiClient, ref string) (*Asset, error) {
	asset := &Asset{Format: "image/png"}
	if strings.HasPrefix(ref, "data:image/") {
		idx := strings.Index(ref, ",")
		if idx < 0 {
			return nil, fmt.Errorf("%w: %s: malformed data uri", ErrInvalidResponse, client.provider)
		}
		data, err := base64.StdEncoding.DecodeString(ref[idx+1:])
		if err != nil {
			return nil, fmt.Errorf("%w: %s: decode data uri: %v", ErrInvalidResponse, client.provider, err)
		}
		asset.Data = data
	} else {
		data, format, err := client.download(ctx, ref)
		if err != nil {
			return nil, err
		}
		asset.URL = ref
		asset.Data = data
		asset.Format = format
	}
	if cfg, _, err := image.DecodeConfig(bytes.NewReader(asset.Data)); err == nil {
		asset.Width, asset.Height = cfg.Width, cfg.Height
	}
	return asset, nil
}

func ensureLogger(logger *infra.Logger) *infra.Logger {
	if logger != nil {
		return logger
	}
	discard := zerolog.New(io.Discard)
	l := infra.Logger(discard)
	return &l
}

var _ Generator = (*DashScopeGenerator)(nil)
