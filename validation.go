package imagestudio

import (
	"errors"
	"fmt"
)

// Validation errors
var (
	ErrEmptyPrompt           = errors.New("prompt cannot be empty")
	ErrMissingEditImage      = errors.New("edit mode requires an image")
	ErrComposeNeedsTwoImages = errors.New("compose requires two images")

	ErrEmptyImageData       = errors.New("image data cannot be empty")
	ErrInvalidImageEncoding = errors.New("image data is not valid base64")
	ErrInvalidMIMEType      = errors.New("invalid or unsupported MIME type")
	ErrImageTooLarge        = errors.New("image data exceeds maximum size")
	ErrTooManyImages        = errors.New("too many input images")
)

// Image size limits
const (
	// MaxImageSize is the maximum allowed image size in bytes (20MB)
	MaxImageSize = 20 * 1024 * 1024

	// MaxInputImages is the number of image slots a request can carry
	MaxInputImages = 2
)

// ValidMIMETypes contains the supported image MIME types
var ValidMIMETypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/webp": true,
	"image/gif":  true,
}

// requestCheck is one step of request validation. pass reports whether the
// request satisfies it; otherwise err is returned and later checks are skipped.
type requestCheck struct {
	pass func(GenerationRequest) bool
	err  *ValidationError
}

// requestChecks run in order; the first failure wins.
var requestChecks = []requestCheck{
	{
		pass: func(r GenerationRequest) bool { return r.Mode.Valid() },
		err:  &ValidationError{Message: MsgUnknownMode, Err: ErrUnknownMode},
	},
	{
		pass: func(r GenerationRequest) bool { return r.Prompt != "" },
		err:  &ValidationError{Message: MsgEmptyPrompt, Err: ErrEmptyPrompt},
	},
	{
		pass: func(r GenerationRequest) bool { return r.Mode != ModeEdit || r.Image1 != nil },
		err:  &ValidationError{Message: MsgMissingEditImage, Err: ErrMissingEditImage},
	},
	{
		pass: func(r GenerationRequest) bool {
			return r.Mode != ModeEdit || r.Function != string(EditCompose) || r.Image2 != nil
		},
		err: &ValidationError{Message: MsgComposeNeedsTwo, Err: ErrComposeNeedsTwoImages},
	},
}

// ValidateRequest checks a generation request before it is dispatched.
// It returns a *ValidationError for the first failed check.
func ValidateRequest(req GenerationRequest) error {
	for _, c := range requestChecks {
		if !c.pass(req) {
			return c.err
		}
	}
	return nil
}

// ValidatePrompt validates a text prompt.
func ValidatePrompt(prompt string) error {
	if prompt == "" {
		return ErrEmptyPrompt
	}
	return nil
}

// ValidateInputImage validates a decoded input image.
func ValidateInputImage(img InputImage) error {
	if len(img.Data) == 0 {
		return ErrEmptyImageData
	}

	if len(img.Data) > MaxImageSize {
		return fmt.Errorf("%w: %d bytes (max %d)", ErrImageTooLarge, len(img.Data), MaxImageSize)
	}

	if img.MIMEType == "" {
		return fmt.Errorf("%w: MIME type is required", ErrInvalidMIMEType)
	}

	if !ValidMIMETypes[img.MIMEType] {
		return fmt.Errorf("%w: %s", ErrInvalidMIMEType, img.MIMEType)
	}

	return nil
}

// ValidateInputImages validates a slice of input images.
func ValidateInputImages(images []InputImage) error {
	if len(images) == 0 {
		return ErrEmptyImageData
	}

	if len(images) > MaxInputImages {
		return fmt.Errorf("%w: %d (max %d)", ErrTooManyImages, len(images), MaxInputImages)
	}

	for i, img := range images {
		if err := ValidateInputImage(img); err != nil {
			return fmt.Errorf("image %d: %w", i, err)
		}
	}

	return nil
}
