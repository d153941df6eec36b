package imagestudio

// ModelCapabilities describes what a model can do.
type ModelCapabilities struct {
	SupportsTextToImage  bool
	SupportsImageEditing bool
	SupportsMultiImage   bool // Multiple input images for editing

	// Limits
	MaxInputImages int
}

// Supports reports whether the model can serve a request in the given mode
// with n input images.
func (c ModelCapabilities) Supports(mode Mode, n int) bool {
	switch {
	case mode == ModeCreate:
		return c.SupportsTextToImage
	case n > 1:
		return c.SupportsMultiImage && (c.MaxInputImages == 0 || n <= c.MaxInputImages)
	default:
		return c.SupportsImageEditing
	}
}

// RateLimits defines rate limiting parameters for a model.
type RateLimits struct {
	TokensPerMinute   int
	RequestsPerMinute int
}

// ModelInfo contains metadata for a model.
type ModelInfo struct {
	Name         string   // Public model name (e.g., "nano-banana-1")
	Provider     Provider // Which provider serves this model
	APIModelName string   // Actual API name (e.g., "gemini-2.5-flash-image")
	Description  string

	Capabilities ModelCapabilities

	SupportedAspectRatios []AspectRatio
	SupportedSizes        []ImageSize

	RateLimits RateLimits
}
