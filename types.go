package imagestudio

import (
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
)

// Mode selects between generating a new image and editing an existing one.
type Mode string

const (
	ModeCreate Mode = "create"
	ModeEdit   Mode = "edit"
)

// Valid reports whether m is a known mode.
func (m Mode) Valid() bool {
	return m == ModeCreate || m == ModeEdit
}

// String returns the mode identifier.
func (m Mode) String() string {
	return string(m)
}

// CreateFunction refines a create request.
type CreateFunction string

const (
	CreateFree    CreateFunction = "free"
	CreateSticker CreateFunction = "sticker"
	CreateText    CreateFunction = "text"
	CreateComic   CreateFunction = "comic"
)

// CreateFunctions lists the create functions in display order.
var CreateFunctions = []CreateFunction{CreateFree, CreateSticker, CreateText, CreateComic}

// Valid reports whether f is a known create function.
func (f CreateFunction) Valid() bool {
	for _, known := range CreateFunctions {
		if f == known {
			return true
		}
	}
	return false
}

func (f CreateFunction) String() string {
	return string(f)
}

// EditFunction refines an edit request.
type EditFunction string

const (
	EditAddRemove EditFunction = "add-remove"
	EditRetouch   EditFunction = "retouch"
	EditStyle     EditFunction = "style"
	EditCompose   EditFunction = "compose"
)

// EditFunctions lists the edit functions in display order.
var EditFunctions = []EditFunction{EditAddRemove, EditRetouch, EditStyle, EditCompose}

// Valid reports whether f is a known edit function.
func (f EditFunction) Valid() bool {
	for _, known := range EditFunctions {
		if f == known {
			return true
		}
	}
	return false
}

func (f EditFunction) String() string {
	return string(f)
}

// ImageAttachment is an uploaded image encoded for transport.
type ImageAttachment struct {
	// Base64 holds the standard-encoded image bytes
	Base64 string `json:"base64"`

	// MIMEType of the image (e.g., "image/png")
	MIMEType string `json:"mimeType"`

	// Name is the display name, usually the original file name
	Name string `json:"name"`
}

// NewImageAttachment encodes raw image bytes into an attachment.
func NewImageAttachment(data []byte, mimeType, name string) *ImageAttachment {
	return &ImageAttachment{
		Base64:   base64.StdEncoding.EncodeToString(data),
		MIMEType: mimeType,
		Name:     name,
	}
}

// LoadImageAttachment reads an image file from disk. The MIME type is derived
// from the file extension.
func LoadImageAttachment(path string) (*ImageAttachment, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading image %s: %w", path, err)
	}
	return NewImageAttachment(data, GetMIMEType(path), filepath.Base(path)), nil
}

func (a *ImageAttachment) clone() *ImageAttachment {
	if a == nil {
		return nil
	}
	c := *a
	return &c
}

// Decode converts the attachment into an InputImage for a provider.
func (a *ImageAttachment) Decode() (InputImage, error) {
	if a == nil {
		return InputImage{}, ErrEmptyImageData
	}
	data, err := base64.StdEncoding.DecodeString(a.Base64)
	if err != nil {
		return InputImage{}, fmt.Errorf("%w: %s: %v", ErrInvalidImageEncoding, a.Name, err)
	}
	img := InputImage{Data: data, MIMEType: a.MIMEType}
	if err := ValidateInputImage(img); err != nil {
		return InputImage{}, fmt.Errorf("%s: %w", a.Name, err)
	}
	return img, nil
}

// GenerationRequest is the exact payload handed to the generation call.
type GenerationRequest struct {
	Prompt string `json:"prompt"`
	Mode   Mode   `json:"mode"`

	// Function is the sub-function active for Mode: a CreateFunction when
	// creating, an EditFunction when editing.
	Function string `json:"function"`

	Image1 *ImageAttachment `json:"image1,omitempty"`
	Image2 *ImageAttachment `json:"image2,omitempty"`
}

// Images returns the populated slots in order.
func (r GenerationRequest) Images() []*ImageAttachment {
	images := make([]*ImageAttachment, 0, 2)
	for _, img := range []*ImageAttachment{r.Image1, r.Image2} {
		if img != nil {
			images = append(images, img)
		}
	}
	return images
}

// OutcomeKind is the state of the latest submission.
type OutcomeKind int

const (
	OutcomeEmpty OutcomeKind = iota
	OutcomePending
	OutcomeSuccess
	OutcomeFailure
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomePending:
		return "pending"
	case OutcomeSuccess:
		return "success"
	case OutcomeFailure:
		return "failure"
	default:
		return "empty"
	}
}

// Outcome is the result of a submission attempt.
type Outcome struct {
	Kind OutcomeKind

	// ImageRef is set on success
	ImageRef string

	// Message is set on failure
	Message string
}
