package imagestudio

import "context"

// Generator is the generation call the submission workflow depends on.
// GenerateImage returns a reference to the generated image, or an error
// whose message can be shown to the user.
type Generator interface {
	GenerateImage(ctx context.Context, req GenerationRequest) (string, error)
}

// GeneratorFunc adapts a plain function to Generator.
type GeneratorFunc func(ctx context.Context, req GenerationRequest) (string, error)

// GenerateImage calls f(ctx, req).
func (f GeneratorFunc) GenerateImage(ctx context.Context, req GenerationRequest) (string, error) {
	return f(ctx, req)
}

// ImageGenerator is the provider-level interface for image generation models.
// Implement this interface to add support for new models or providers.
//
// The first model returned by Models() is considered the default model.
type ImageGenerator interface {
	// Generate creates images from a text prompt.
	Generate(ctx context.Context, prompt string, genConfig *GenerateConfig) (*GenerateResult, error)

	// Edit modifies an existing image based on a text instruction.
	Edit(ctx context.Context, image InputImage, instruction string, genConfig *GenerateConfig) (*GenerateResult, error)

	// EditMultiple performs editing with multiple reference images.
	EditMultiple(ctx context.Context, images []InputImage, instruction string, genConfig *GenerateConfig) (*GenerateResult, error)

	// Models returns the model definitions supported by this provider.
	// The first model in the list is the default.
	Models() []ModelInfo

	// Close releases any resources held by the generator.
	Close() error
}
