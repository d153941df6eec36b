// Package gemini provides an ImageGenerator implementation using Google's Gemini API.
//
// This provider uses the Gemini API backend via the official Go SDK:
// https://github.com/googleapis/go-genai
package gemini

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/mhpenta/imagestudio"
	"google.golang.org/genai"
)

// Model name constants - the actual API model names.
const (
	// APIModelNanoBanana1 is the actual API name for Gemini 2.5 Flash Image
	APIModelNanoBanana1 = "gemini-2.5-flash-image"

	// APIModelNanoBanana2 is the actual API name for Gemini 3 Pro Image
	APIModelNanoBanana2 = "gemini-3-pro-image-preview"
)

// contentGenerator is the part of genai.Models this provider uses.
type contentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// GeminiGenerator implements ImageGenerator using Google's Gemini API.
type GeminiGenerator struct {
	models contentGenerator
}

var _ imagestudio.ImageGenerator = (*GeminiGenerator)(nil)

// New creates a new GeminiGenerator from a ProviderConfig.
func New(ctx context.Context, config *imagestudio.ProviderConfig) (*GeminiGenerator, error) {
	if config == nil {
		config = &imagestudio.ProviderConfig{}
	}

	clientCfg := &genai.ClientConfig{
		Backend: genai.BackendGeminiAPI,
	}

	// If APIKey is empty, the SDK will try GOOGLE_API_KEY or GEMINI_API_KEY env vars
	if config.APIKey != "" {
		clientCfg.APIKey = config.APIKey
	}
	if config.BaseURL != "" {
		clientCfg.HTTPOptions = genai.HTTPOptions{BaseURL: config.BaseURL}
	}

	client, err := genai.NewClient(ctx, clientCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	return &GeminiGenerator{
		models: client.Models,
	}, nil
}

// NewWithAPIKey creates a generator with an API key for Gemini API.
func NewWithAPIKey(ctx context.Context, apiKey string) (*GeminiGenerator, error) {
	return New(ctx, &imagestudio.ProviderConfig{
		Provider: imagestudio.ProviderGeminiAPI,
		APIKey:   apiKey,
	})
}

// Generate creates images from a text prompt.
func (g *GeminiGenerator) Generate(ctx context.Context, prompt string, config *imagestudio.GenerateConfig) (*imagestudio.GenerateResult, error) {
	if err := imagestudio.ValidatePrompt(prompt); err != nil {
		return nil, err
	}

	result, err := g.generate(ctx, config, []*genai.Part{{Text: prompt}})
	if err != nil {
		return nil, fmt.Errorf("generation failed: %w", err)
	}
	return result, nil
}

// Edit modifies an existing image based on a text instruction.
func (g *GeminiGenerator) Edit(ctx context.Context, image imagestudio.InputImage, instruction string, config *imagestudio.GenerateConfig) (*imagestudio.GenerateResult, error) {
	if err := imagestudio.ValidatePrompt(instruction); err != nil {
		return nil, err
	}
	if err := imagestudio.ValidateInputImage(image); err != nil {
		return nil, err
	}

	parts := []*genai.Part{imagePart(image), {Text: instruction}}

	result, err := g.generate(ctx, config, parts)
	if err != nil {
		return nil, fmt.Errorf("edit failed: %w", err)
	}
	return result, nil
}

// EditMultiple performs editing with multiple reference images.
func (g *GeminiGenerator) EditMultiple(ctx context.Context, images []imagestudio.InputImage, instruction string, config *imagestudio.GenerateConfig) (*imagestudio.GenerateResult, error) {
	if err := imagestudio.ValidatePrompt(instruction); err != nil {
		return nil, err
	}
	if err := imagestudio.ValidateInputImages(images); err != nil {
		return nil, err
	}

	// All images first, then the instruction
	parts := make([]*genai.Part, 0, len(images)+1)
	for _, img := range images {
		parts = append(parts, imagePart(img))
	}
	parts = append(parts, &genai.Part{Text: instruction})

	result, err := g.generate(ctx, config, parts)
	if err != nil {
		return nil, fmt.Errorf("multi-image edit failed: %w", err)
	}
	return result, nil
}

// Models returns the model definitions supported by this provider.
// The first model (NanoBanana1) is the default.
func (g *GeminiGenerator) Models() []imagestudio.ModelInfo {
	return []imagestudio.ModelInfo{
		NanoBanana1Info,
		NanoBanana2Info,
	}
}

// Close releases any resources held by the generator.
func (g *GeminiGenerator) Close() error {
	// The genai.Client doesn't require explicit closing in the current SDK
	return nil
}

func (g *GeminiGenerator) generate(ctx context.Context, config *imagestudio.GenerateConfig, parts []*genai.Part) (*imagestudio.GenerateResult, error) {
	if config == nil {
		config = imagestudio.DefaultConfig()
	}
	modelName := g.resolveModel(config)

	contents := []*genai.Content{{Role: "user", Parts: parts}}

	resp, err := g.models.GenerateContent(ctx, modelName, contents, buildGenerateContentConfig(config))
	if err != nil {
		return nil, checkRateLimitError(err, modelName)
	}
	return parseResult(resp)
}

// resolveModel determines which API model name to use.
// Falls back to the first model (default) if none specified or if the
// manager's public default name leaked through.
func (g *GeminiGenerator) resolveModel(config *imagestudio.GenerateConfig) string {
	if config != nil && config.Model != "" && config.Model != imagestudio.ModelDefault {
		return string(config.Model)
	}
	models := g.Models()
	if len(models) == 0 {
		return APIModelNanoBanana1
	}
	return models[0].APIModelName
}

func imagePart(img imagestudio.InputImage) *genai.Part {
	return &genai.Part{
		InlineData: &genai.Blob{
			Data:     img.Data,
			MIMEType: img.MIMEType,
		},
	}
}

// buildGenerateContentConfig converts our config to Gemini's GenerateContentConfig format.
func buildGenerateContentConfig(config *imagestudio.GenerateConfig) *genai.GenerateContentConfig {
	genConfig := &genai.GenerateContentConfig{
		ResponseModalities: []string{"TEXT", "IMAGE"},
	}

	if config.Size != "" || config.AspectRatio != "" {
		genConfig.ImageConfig = &genai.ImageConfig{
			ImageSize:   config.Size.String(),
			AspectRatio: config.AspectRatio.String(),
		}
	}

	if config.Temperature != nil {
		genConfig.Temperature = genai.Ptr(*config.Temperature)
	}

	return genConfig
}

// parseResult converts a Gemini response to our result type. Thought parts
// are skipped. A response blocked before any candidate is reported as an error.
func parseResult(resp *genai.GenerateContentResponse) (*imagestudio.GenerateResult, error) {
	if resp == nil {
		return nil, errors.New("empty response from model")
	}
	if len(resp.Candidates) == 0 {
		if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
			return nil, fmt.Errorf("prompt blocked: %s", resp.PromptFeedback.BlockReason)
		}
		return nil, errors.New("empty response from model")
	}

	result := &imagestudio.GenerateResult{
		Images: make([]imagestudio.GeneratedImage, 0),
	}

	var text []string
	imageIndex := 0
	for _, candidate := range resp.Candidates {
		if candidate.Content == nil {
			continue
		}

		for _, part := range candidate.Content.Parts {
			if part.Thought {
				continue
			}
			if part.Text != "" {
				text = append(text, part.Text)
			}
			if part.InlineData != nil && len(part.InlineData.Data) > 0 {
				result.Images = append(result.Images, imagestudio.GeneratedImage{
					Data:     part.InlineData.Data,
					MIMEType: part.InlineData.MIMEType,
					Index:    imageIndex,
				})
				imageIndex++
			}
		}
	}
	result.Text = strings.Join(text, "")

	if len(result.Images) == 0 && result.Text == "" {
		if reason := resp.Candidates[0].FinishReason; reason != "" && reason != genai.FinishReasonStop {
			result.Text = fmt.Sprintf("generation stopped: %s", reason)
		}
	}

	if resp.UsageMetadata != nil {
		result.UsageMetadata = &imagestudio.UsageMetadata{
			PromptTokens:     int(resp.UsageMetadata.PromptTokenCount),
			CandidatesTokens: int(resp.UsageMetadata.CandidatesTokenCount),
			TotalTokens:      int(resp.UsageMetadata.TotalTokenCount),
			ImageCount:       len(result.Images),
		}
	}

	return result, nil
}

// checkRateLimitError wraps a Gemini quota error in a RateLimitError for
// standardized handling; other errors are returned unchanged.
func checkRateLimitError(err error, model string) error {
	if err == nil {
		return nil
	}

	var apiErr genai.APIError
	if !errors.As(err, &apiErr) {
		return err
	}

	if apiErr.Code != http.StatusTooManyRequests && apiErr.Status != "RESOURCE_EXHAUSTED" {
		return err
	}

	return &imagestudio.RateLimitError{
		RetryAfter: 60 * time.Second, // API doesn't reliably provide Retry-After
		LimitType:  "requests",
		Model:      model,
		Err:        err,
	}
}
