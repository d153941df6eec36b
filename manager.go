package imagestudio

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/mhpenta/imagestudio/ratelimiter"
)

const (
	ModelNanoBanana1 Model = "nano-banana-1" // Gemini 2.5 Flash Image
	ModelNanoBanana2 Model = "nano-banana-2" // Gemini 3 Pro Image

	ModelDefault Model = ModelNanoBanana1
)

// tokenBuffer is added to every estimate to cover response tokens the
// estimator cannot see.
const tokenBuffer = 100

var (
	// ErrModelNotRegistered is returned when no provider serves the model.
	ErrModelNotRegistered = errors.New("model not registered")

	// ErrUnsupportedOperation is returned when the model cannot serve the request's mode.
	ErrUnsupportedOperation = errors.New("operation not supported by model")
)

// Provider names a model backend.
type Provider string

const (
	ProviderGeminiAPI Provider = "gemini"
)

// ProviderConfig configures a provider client.
type ProviderConfig struct {
	Provider Provider

	// APIKey for authentication
	APIKey string

	// BaseURL for custom endpoints (optional)
	BaseURL string
}

// Manager is the Generator used in production. It turns a GenerationRequest
// into a provider call: it shapes the prompt for the sub-function, decodes the
// attachments, routes to Generate, Edit or EditMultiple on the model's
// provider, and returns the first image as a data URL.
type Manager struct {
	mu sync.RWMutex

	models    map[Model]*modelEntry
	providers []ImageGenerator

	// defaultModel serves requests when config.Model is empty
	defaultModel Model

	// config is copied into every provider call
	config GenerateConfig

	logger         *slog.Logger
	tokenEstimator TokenEstimator
}

// modelEntry binds a registered model to the provider that serves it.
type modelEntry struct {
	info     ModelInfo
	provider ImageGenerator
	limiter  ratelimiter.Limiter // nil when the model is unlimited
}

var _ Generator = (*Manager)(nil)

// New creates a Manager with no providers.
func New() *Manager {
	return &Manager{
		models:         make(map[Model]*modelEntry),
		defaultModel:   ModelDefault,
		config:         *DefaultConfig(),
		logger:         slog.Default(),
		tokenEstimator: NewSimpleTokenEstimator(),
	}
}

// RegisterProvider registers every model gen reports. Models with rate limits
// get an in-memory limiter; use SetRateLimiter to replace it. A model name
// registered twice is served by the later provider.
func (m *Manager) RegisterProvider(gen ImageGenerator) *Manager {
	models := gen.Models()

	m.mu.Lock()
	defer m.mu.Unlock()

	m.providers = append(m.providers, gen)
	for _, info := range models {
		entry := &modelEntry{info: info, provider: gen}
		if rl := info.RateLimits; rl.TokensPerMinute > 0 || rl.RequestsPerMinute > 0 {
			entry.limiter = ratelimiter.New(rl.TokensPerMinute, rl.RequestsPerMinute)
		}
		m.models[Model(info.Name)] = entry
	}
	return m
}

// SetRateLimiter replaces the limiter of a registered model. A nil limiter
// removes rate limiting. Unknown models are ignored.
func (m *Manager) SetRateLimiter(model Model, limiter ratelimiter.Limiter) *Manager {
	m.mu.Lock()
	defer m.mu.Unlock()

	if entry, ok := m.models[model]; ok {
		entry.limiter = limiter
	}
	return m
}

// SetDefaultModel sets the model used when config.Model is empty.
func (m *Manager) SetDefaultModel(model Model) *Manager {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.defaultModel = model
	return m
}

// DefaultModel returns the model used when config.Model is empty.
func (m *Manager) DefaultModel() Model {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.defaultModel
}

// GetModelInfo returns the registered info for model.
func (m *Manager) GetModelInfo(model Model) (ModelInfo, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	entry, ok := m.models[model]
	if !ok {
		return ModelInfo{}, false
	}
	return entry.info, true
}

// Models returns every registered model sorted by name.
func (m *Manager) Models() []ModelInfo {
	m.mu.RLock()
	defer m.mu.RUnlock()

	models := make([]ModelInfo, 0, len(m.models))
	for _, entry := range m.models {
		models = append(models, entry.info)
	}
	slices.SortFunc(models, func(a, b ModelInfo) int {
		return cmp.Compare(a.Name, b.Name)
	})
	return models
}

// Close releases every provider. The manager serves nothing afterwards.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var errs []error
	for _, gen := range m.providers {
		if err := gen.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	m.providers = nil
	clear(m.models)

	return errors.Join(errs...)
}

// GenerateImage implements Generator.
func (m *Manager) GenerateImage(ctx context.Context, req GenerationRequest) (string, error) {
	if err := ValidateRequest(req); err != nil {
		return "", err
	}

	images, err := decodeAttachments(req)
	if err != nil {
		return "", err
	}

	m.mu.RLock()
	config := m.config
	logger := m.logger
	model := cmp.Or(config.Model, m.defaultModel)
	entry, ok := m.models[model]
	var limiter ratelimiter.Limiter
	if ok {
		limiter = entry.limiter
	}
	m.mu.RUnlock()

	if !ok {
		return "", fmt.Errorf("%w: %s", ErrModelNotRegistered, model)
	}
	if !entry.info.Capabilities.Supports(req.Mode, len(images)) {
		return "", fmt.Errorf("%w: %s cannot %s with %d image(s)", ErrUnsupportedOperation, model, req.Mode, len(images))
	}

	instruction := ShapePrompt(req)

	logger.Debug("starting image generation",
		"model", string(model),
		"mode", req.Mode.String(),
		"function", req.Function,
		"prompt_length", len(instruction),
		"image_count", len(images),
	)

	tokens := m.tokenEstimator.EstimateTokens(instruction, len(images)) + tokenBuffer
	if err := reserve(ctx, limiter, model, tokens, &config); err != nil {
		logger.Warn("rate limit hit",
			"model", string(model),
			"estimated_tokens", tokens,
			"error", err.Error(),
		)
		return "", err
	}

	config.Model = Model(entry.info.APIModelName)

	start := time.Now()
	result, err := dispatch(ctx, entry.provider, req.Mode, instruction, images, &config)
	duration := time.Since(start)
	if err != nil {
		logger.Error("generation failed",
			"model", string(model),
			"mode", req.Mode.String(),
			"duration_ms", duration.Milliseconds(),
			"error", err.Error(),
		)
		return "", err
	}

	logAttrs := []any{
		"model", string(model),
		"mode", req.Mode.String(),
		"function", req.Function,
		"duration_ms", duration.Milliseconds(),
		"image_count", len(result.Images),
	}
	if result.UsageMetadata != nil {
		logAttrs = append(logAttrs,
			"prompt_tokens", result.UsageMetadata.PromptTokens,
			"response_tokens", result.UsageMetadata.CandidatesTokens,
			"total_tokens", result.UsageMetadata.TotalTokens,
		)
	}
	logger.Info("generation completed", logAttrs...)

	img, ok := result.FirstImage()
	if !ok {
		return "", &NoImageError{Text: result.Text}
	}
	return EncodeImageRef(img.Data, img.MIMEType), nil
}

// reserve takes tokens from limiter, waiting for capacity when the config
// asks for it. A nil limiter never blocks.
func reserve(ctx context.Context, limiter ratelimiter.Limiter, model Model, tokens int, config *GenerateConfig) error {
	if limiter == nil {
		return nil
	}

	if config.WaitOnRateLimit {
		return limiter.WaitAndConsume(ctx, tokens, config.MaxWaitDuration)
	}

	if !limiter.TryConsume(tokens) {
		return &RateLimitError{
			RetryAfter: limiter.TimeUntilAvailable(tokens),
			LimitType:  "tokens",
			Model:      string(model),
		}
	}
	return nil
}

// dispatch picks the provider operation for the request shape. Create mode
// sends text only; edit sends one or both images.
func dispatch(ctx context.Context, gen ImageGenerator, mode Mode, instruction string, images []InputImage, config *GenerateConfig) (*GenerateResult, error) {
	switch {
	case mode == ModeCreate:
		return gen.Generate(ctx, instruction, config)
	case mode != ModeEdit:
		return nil, fmt.Errorf("%w: %q", ErrUnknownMode, mode)
	case len(images) == 0:
		return nil, ErrMissingEditImage
	case len(images) > 1:
		return gen.EditMultiple(ctx, images, instruction, config)
	default:
		return gen.Edit(ctx, images[0], instruction, config)
	}
}

// decodeAttachments decodes the slots an edit request carries. Create
// requests never send images, and only compose sends the second slot.
func decodeAttachments(req GenerationRequest) ([]InputImage, error) {
	if req.Mode != ModeEdit {
		return nil, nil
	}
	attachments := req.Images()
	if req.Function != string(EditCompose) && req.Image1 != nil {
		attachments = []*ImageAttachment{req.Image1}
	}
	images := make([]InputImage, 0, len(attachments))
	for _, a := range attachments {
		img, err := a.Decode()
		if err != nil {
			return nil, err
		}
		images = append(images, img)
	}
	return images, nil
}
