package imagestudio

import (
	"time"
)

// Model is the public identifier of an image model (e.g., "nano-banana-1").
type Model string

// ImageSize represents the output resolution for generated images.
type ImageSize string

const (
	ImageSize1K ImageSize = "1K"
	ImageSize2K ImageSize = "2K"
	ImageSize4K ImageSize = "4K"
)

// AspectRatio represents the aspect ratio for generated images.
type AspectRatio string

const (
	AspectRatio1x1  AspectRatio = "1:1"
	AspectRatio16x9 AspectRatio = "16:9"
	AspectRatio9x16 AspectRatio = "9:16"
	AspectRatio4x3  AspectRatio = "4:3"
	AspectRatio3x4  AspectRatio = "3:4"
	AspectRatio2x3  AspectRatio = "2:3"
	AspectRatio3x2  AspectRatio = "3:2"
	AspectRatio4x5  AspectRatio = "4:5"
	AspectRatio5x4  AspectRatio = "5:4"
	AspectRatio21x9 AspectRatio = "21:9"
	AspectRatioAuto AspectRatio = ""
)

// AspectRatios lists every explicit ratio a provider may accept.
var AspectRatios = []AspectRatio{
	AspectRatio1x1, AspectRatio16x9, AspectRatio9x16, AspectRatio4x3, AspectRatio3x4,
	AspectRatio2x3, AspectRatio3x2, AspectRatio4x5, AspectRatio5x4, AspectRatio21x9,
}

// GenerateConfig holds provider options for one generation call.
type GenerateConfig struct {
	// Model to use for generation (if empty, uses manager's default)
	Model Model

	// Size of the output image (1K, 2K, 4K); empty lets the model decide
	Size ImageSize

	// AspectRatio of the output image
	AspectRatio AspectRatio

	// Temperature controls randomness (0.0-2.0)
	Temperature *float32

	// WaitOnRateLimit, if true, causes the Manager to wait when rate limited.
	// If false, a RateLimitError is returned immediately.
	WaitOnRateLimit bool

	// MaxWaitDuration is the maximum time to wait when WaitOnRateLimit is true.
	// Zero means no limit.
	MaxWaitDuration time.Duration
}

// DefaultConfig returns a config that leaves model, size and aspect ratio to
// the Manager and the model.
func DefaultConfig() *GenerateConfig {
	return &GenerateConfig{
		AspectRatio: AspectRatioAuto,
	}
}

// InputImage is a decoded image handed to a provider.
type InputImage struct {
	// Data is the raw image bytes
	Data []byte

	// MIMEType of the image (e.g., "image/jpeg", "image/png")
	MIMEType string
}

func (s ImageSize) String() string {
	return string(s)
}

func (a AspectRatio) String() string {
	return string(a)
}

// String returns the model identifier.
func (m Model) String() string {
	return string(m)
}
