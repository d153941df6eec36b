package gemini

import "github.com/mhpenta/imagestudio"

// NanoBanana1Info is the model info for Gemini 2.5 Flash Image (nano-banana-1).
var NanoBanana1Info = imagestudio.ModelInfo{
	Name:         string(imagestudio.ModelNanoBanana1),
	Provider:     imagestudio.ProviderGeminiAPI,
	APIModelName: APIModelNanoBanana1,
	Description:  "Gemini 2.5 Flash Image, fast create and edit",

	Capabilities: imagestudio.ModelCapabilities{
		SupportsTextToImage:  true,
		SupportsImageEditing: true,
		SupportsMultiImage:   true,
		MaxInputImages:       3,
	},

	SupportedAspectRatios: imagestudio.AspectRatios,

	// Flash Image only supports ~1024px output (1K)
	SupportedSizes: []imagestudio.ImageSize{
		imagestudio.ImageSize1K,
	},

	RateLimits: imagestudio.RateLimits{
		TokensPerMinute:   4000000,
		RequestsPerMinute: 500,
	},
}

// NanoBanana2Info is the model info for Gemini 3 Pro Image (nano-banana-2).
var NanoBanana2Info = imagestudio.ModelInfo{
	Name:         string(imagestudio.ModelNanoBanana2),
	Provider:     imagestudio.ProviderGeminiAPI,
	APIModelName: APIModelNanoBanana2,
	Description:  "Gemini 3 Pro Image, higher fidelity up to 4K",

	Capabilities: imagestudio.ModelCapabilities{
		SupportsTextToImage:  true,
		SupportsImageEditing: true,
		SupportsMultiImage:   true,
		MaxInputImages:       14,
	},

	SupportedAspectRatios: imagestudio.AspectRatios,
	SupportedSizes: []imagestudio.ImageSize{
		imagestudio.ImageSize1K,
		imagestudio.ImageSize2K,
		imagestudio.ImageSize4K,
	},

	RateLimits: imagestudio.RateLimits{
		TokensPerMinute:   4000000,
		RequestsPerMinute: 360,
	},
}
