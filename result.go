package imagestudio

// GeneratedImage represents a single generated image result.
type GeneratedImage struct {
	// Data contains the raw image bytes
	Data []byte

	// MIMEType of the generated image
	MIMEType string

	// Index is the position in a multi-image result (0-indexed)
	Index int
}

// GenerateResult holds the complete result of a provider call.
type GenerateResult struct {
	// Images contains all generated images
	Images []GeneratedImage

	// Text contains any text response from the model
	Text string

	// UsageMetadata contains token/billing information
	UsageMetadata *UsageMetadata
}

// FirstImage returns the first generated image, or false when there is none.
func (r *GenerateResult) FirstImage() (GeneratedImage, bool) {
	if r == nil || len(r.Images) == 0 {
		return GeneratedImage{}, false
	}
	return r.Images[0], true
}

// UsageMetadata contains usage information for billing and monitoring.
type UsageMetadata struct {
	PromptTokens     int
	CandidatesTokens int
	TotalTokens      int
	ImageCount       int
}
